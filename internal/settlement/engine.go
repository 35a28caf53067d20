package settlement

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"math/big"

	"github.com/RyuseiKamei/MeowChain/internal/chain"
	"github.com/RyuseiKamei/MeowChain/internal/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// fallbackGasLimit is used when estimation fails. Estimation is advisory;
// a failed estimate never aborts the settlement on its own.
const fallbackGasLimit uint64 = 200000

// ChainClient is the wallet/chain collaborator the engine settles through.
// *chain.Client satisfies it; tests substitute a recorder.
type ChainClient interface {
	SenderAddress() string
	TokenBalance(ctx context.Context, address string) (*big.Int, error)
	NativeBalance(ctx context.Context, address string) (*big.Int, error)
	GasPrice(ctx context.Context) (*big.Int, error)
	EstimateTransferGas(ctx context.Context, recipient string, amount *big.Int) (uint64, error)
	SubmitTransfer(ctx context.Context, recipient string, amount *big.Int, gasLimit uint64, gasPrice *big.Int) (string, error)
	AwaitConfirmation(ctx context.Context, txHash string) error
}

// BalanceStore caches a recipient's refreshed balance after settlement.
type BalanceStore interface {
	SaveBalance(ctx context.Context, address string, baseUnits *big.Int) error
}

// ComputeReward converts a finalized walk distance into whole tokens.
// Every completed session pays at least one token.
func ComputeReward(distanceM float64) int64 {
	return int64(math.Floor(distanceM)) + 1
}

// Engine executes confirmed settlements through a guarded transfer chain:
// source balance, gas funds, estimation (with fallback), submission,
// confirmation wait, balance refresh.
type Engine struct {
	db       db.Querier
	chain    ChainClient
	balances BalanceStore
	decimals int
}

func NewEngine(database db.Querier, chainClient ChainClient, balances BalanceStore, decimals int) *Engine {
	return &Engine{db: database, chain: chainClient, balances: balances, decimals: decimals}
}

// CreateQuote records a settlement waiting for the user's explicit answer.
// Nothing touches the chain until Confirm(accept=true).
func (e *Engine) CreateQuote(ctx context.Context, s Settlement) (Settlement, error) {
	if s.Recipient == "" {
		return Settlement{}, ErrWalletNotConnected
	}
	s.ID = uuid.NewString()
	s.Status = StatusConfirmRequested

	row := e.db.QueryRow(ctx, `
		INSERT INTO settlements (id, kind, session_id, item_id, recipient, token_amount, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, updated_at
	`, s.ID, s.Kind, nullable(s.SessionID), nullable(s.ItemID), s.Recipient, s.TokenAmount, s.Status)
	if err := row.Scan(&s.CreatedAt, &s.UpdatedAt); err != nil {
		return Settlement{}, err
	}
	return s, nil
}

// QuoteReward prices a finalized walk and records the pending settlement.
func (e *Engine) QuoteReward(ctx context.Context, sessionID, recipient string, distanceM float64) (Settlement, error) {
	return e.CreateQuote(ctx, Settlement{
		Kind:        KindReward,
		SessionID:   sessionID,
		Recipient:   recipient,
		TokenAmount: ComputeReward(distanceM),
	})
}

func (e *Engine) Get(ctx context.Context, id string) (Settlement, error) {
	row := e.db.QueryRow(ctx, `
		SELECT id, kind, COALESCE(session_id,''), COALESCE(item_id,''), recipient,
		       token_amount, status, COALESCE(tx_hash,''), COALESCE(failure,''),
		       created_at, updated_at
		FROM settlements WHERE id=$1
	`, id)
	var s Settlement
	if err := row.Scan(&s.ID, &s.Kind, &s.SessionID, &s.ItemID, &s.Recipient,
		&s.TokenAmount, &s.Status, &s.TxHash, &s.Failure, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return Settlement{}, err
	}
	return s, nil
}

// Confirm resolves the pending prompt. A negative answer cancels; a
// positive one runs the guarded transfer. postSuccess fires only after a
// confirmed transfer, and its outcome never changes the settlement.
func (e *Engine) Confirm(ctx context.Context, id string, accept bool, postSuccess func()) (Settlement, error) {
	s, err := e.Get(ctx, id)
	if err != nil {
		return Settlement{}, err
	}
	if s.Status != StatusConfirmRequested {
		return Settlement{}, ErrNotConfirmable
	}

	if !accept {
		return e.transition(ctx, s, StatusCancelled, "", "")
	}
	return e.execute(ctx, s, postSuccess)
}

func (e *Engine) execute(ctx context.Context, s Settlement, postSuccess func()) (Settlement, error) {
	s, err := e.transition(ctx, s, StatusPreflightChecking, "", "")
	if err != nil {
		return Settlement{}, err
	}

	if e.chain == nil {
		return e.fail(ctx, s, StatusPreflightFailed, errors.New("no chain signer configured"))
	}

	amount := chain.ToBaseUnits(s.TokenAmount, e.decimals)
	sender := e.chain.SenderAddress()

	srcBalance, err := e.chain.TokenBalance(ctx, sender)
	if err != nil {
		return e.fail(ctx, s, StatusPreflightFailed, fmt.Errorf("token balance query: %w", err))
	}
	if srcBalance.Cmp(amount) < 0 {
		return e.fail(ctx, s, StatusPreflightFailed, ErrInsufficientTokenBalance)
	}

	nativeBalance, err := e.chain.NativeBalance(ctx, sender)
	if err != nil {
		return e.fail(ctx, s, StatusPreflightFailed, fmt.Errorf("native balance query: %w", err))
	}
	gasPrice, err := e.chain.GasPrice(ctx)
	if err != nil {
		return e.fail(ctx, s, StatusPreflightFailed, fmt.Errorf("gas price query: %w", err))
	}

	gasLimit, err := e.chain.EstimateTransferGas(ctx, s.Recipient, amount)
	if err != nil {
		log.Printf("settlement %s: gas estimation failed, using fallback %d: %v", s.ID, fallbackGasLimit, err)
		gasLimit = fallbackGasLimit
	}

	gasCost := new(big.Int).Mul(new(big.Int).SetUint64(gasLimit), gasPrice)
	if nativeBalance.Cmp(gasCost) < 0 {
		return e.fail(ctx, s, StatusPreflightFailed, ErrInsufficientGasBalance)
	}

	s, err = e.transition(ctx, s, StatusSubmitting, "", "")
	if err != nil {
		return Settlement{}, err
	}

	txHash, err := e.chain.SubmitTransfer(ctx, s.Recipient, amount, gasLimit, gasPrice)
	if err != nil {
		return e.fail(ctx, s, StatusFailed, fmt.Errorf("%w: %v", ErrTransferFailed, err))
	}

	s, err = e.transition(ctx, s, StatusAwaitingConfirmation, txHash, "")
	if err != nil {
		return Settlement{}, err
	}

	if err := e.chain.AwaitConfirmation(ctx, txHash); err != nil {
		return e.fail(ctx, s, StatusFailed, fmt.Errorf("%w: %v", ErrTransferFailed, err))
	}

	s, err = e.transition(ctx, s, StatusConfirmed, "", "")
	if err != nil {
		return Settlement{}, err
	}

	e.refreshBalance(ctx, s.Recipient)

	if postSuccess != nil {
		postSuccess()
	}
	return s, nil
}

// refreshBalance re-queries the recipient and updates the cached display
// balance. Failures are logged; the settlement is already committed.
func (e *Engine) refreshBalance(ctx context.Context, recipient string) {
	if e.balances == nil {
		return
	}
	balance, err := e.chain.TokenBalance(ctx, recipient)
	if err != nil {
		log.Printf("balance refresh for %s: %v", recipient, err)
		return
	}
	if err := e.balances.SaveBalance(ctx, recipient, balance); err != nil {
		log.Printf("balance cache for %s: %v", recipient, err)
	}
}

func (e *Engine) fail(ctx context.Context, s Settlement, status string, cause error) (Settlement, error) {
	if _, err := e.transition(ctx, s, status, "", cause.Error()); err != nil {
		log.Printf("settlement %s: record failure: %v", s.ID, err)
	}
	return Settlement{}, cause
}

// transition advances the settlement only if the row still holds the
// status this process last saw. Zero rows means another confirm won the
// race, which surfaces as ErrNotConfirmable instead of a second payout.
func (e *Engine) transition(ctx context.Context, s Settlement, status, txHash, failure string) (Settlement, error) {
	row := e.db.QueryRow(ctx, `
		UPDATE settlements
		SET status=$3, tx_hash=COALESCE(NULLIF($4,''), tx_hash), failure=NULLIF($5,''), updated_at=now()
		WHERE id=$1 AND status=$2
		RETURNING updated_at
	`, s.ID, s.Status, status, txHash, failure)
	if err := row.Scan(&s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Settlement{}, ErrNotConfirmable
		}
		return Settlement{}, err
	}
	s.Status = status
	if txHash != "" {
		s.TxHash = txHash
	}
	s.Failure = failure
	return s, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
