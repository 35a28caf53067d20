package settlement

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
)

type fakeChain struct {
	calls []string

	tokenBalance     *big.Int
	recipientBalance *big.Int
	nativeBalance    *big.Int
	gasPrice         *big.Int
	estimateGas      uint64
	estimateErr      error
	submitErr        error
	awaitErr         error

	submittedGasLimit uint64
	submittedAmount   *big.Int
}

func (f *fakeChain) SenderAddress() string { return "0xtreasury" }

func (f *fakeChain) TokenBalance(_ context.Context, address string) (*big.Int, error) {
	f.calls = append(f.calls, "token_balance:"+address)
	if address == "0xtreasury" {
		return f.tokenBalance, nil
	}
	return f.recipientBalance, nil
}

func (f *fakeChain) NativeBalance(_ context.Context, address string) (*big.Int, error) {
	f.calls = append(f.calls, "native_balance:"+address)
	return f.nativeBalance, nil
}

func (f *fakeChain) GasPrice(context.Context) (*big.Int, error) {
	f.calls = append(f.calls, "gas_price")
	return f.gasPrice, nil
}

func (f *fakeChain) EstimateTransferGas(_ context.Context, _ string, _ *big.Int) (uint64, error) {
	f.calls = append(f.calls, "estimate_gas")
	if f.estimateErr != nil {
		return 0, f.estimateErr
	}
	return f.estimateGas, nil
}

func (f *fakeChain) SubmitTransfer(_ context.Context, _ string, amount *big.Int, gasLimit uint64, _ *big.Int) (string, error) {
	f.calls = append(f.calls, "submit")
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.submittedGasLimit = gasLimit
	f.submittedAmount = amount
	return "0xtxhash", nil
}

func (f *fakeChain) AwaitConfirmation(_ context.Context, _ string) error {
	f.calls = append(f.calls, "await")
	return f.awaitErr
}

func (f *fakeChain) called(name string) bool {
	for _, c := range f.calls {
		if c == name || strings.HasPrefix(c, name+":") {
			return true
		}
	}
	return false
}

func healthyChain() *fakeChain {
	return &fakeChain{
		tokenBalance:     big.NewInt(1_000_000_000),
		recipientBalance: big.NewInt(1_300_000),
		nativeBalance:    big.NewInt(1_000_000_000_000),
		gasPrice:         big.NewInt(25_000),
		estimateGas:      60_000,
	}
}

type fakeBalances struct {
	saved map[string]*big.Int
}

func (f *fakeBalances) SaveBalance(_ context.Context, address string, base *big.Int) error {
	if f.saved == nil {
		f.saved = map[string]*big.Int{}
	}
	f.saved[address] = base
	return nil
}

func newEngineMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func expectGet(mock pgxmock.PgxPoolIface, id, kind, status string, amount int64) {
	mock.ExpectQuery(`SELECT id, kind, COALESCE\(session_id,''\)`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "kind", "session_id", "item_id", "recipient",
			"token_amount", "status", "tx_hash", "failure", "created_at", "updated_at",
		}).AddRow(id, kind, "session-1", "", "0xwallet", amount, status, "", "", time.Now(), time.Now()))
}

func expectTransition(mock pgxmock.PgxPoolIface, id, from, to string) {
	mock.ExpectQuery(`UPDATE settlements`).
		WithArgs(id, from, to, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))
}

var errNoRow = errors.New("no rows in result set")

func TestComputeReward(t *testing.T) {
	cases := []struct {
		distance float64
		want     int64
	}{
		{0, 1},
		{0.9, 1},
		{12.7, 13},
		{99.9, 100},
		{100, 101},
	}
	for _, c := range cases {
		if got := ComputeReward(c.distance); got != c.want {
			t.Fatalf("ComputeReward(%v) = %d, want %d", c.distance, got, c.want)
		}
	}
}

// A zero-distance session still pays one token. The product copy once
// advertised a 100m minimum, but no such gate exists in the payout
// formula; this test pins the formula as the authoritative behavior.
func TestComputeRewardNoMinimumDistanceGate(t *testing.T) {
	if ComputeReward(0) != 1 {
		t.Fatalf("completed session must pay at least 1 token")
	}
	if ComputeReward(99.9) != 100 {
		t.Fatalf("sub-100m distances still pay")
	}
}

func TestCreateQuoteRequiresRecipient(t *testing.T) {
	engine := NewEngine(newEngineMock(t), healthyChain(), nil, 5)
	_, err := engine.CreateQuote(context.Background(), Settlement{Kind: KindReward, TokenAmount: 5})
	if !errors.Is(err, ErrWalletNotConnected) {
		t.Fatalf("expected ErrWalletNotConnected, got %v", err)
	}
}

func TestCreateQuote(t *testing.T) {
	mock := newEngineMock(t)
	engine := NewEngine(mock, healthyChain(), nil, 5)

	mock.ExpectQuery(`INSERT INTO settlements`).
		WithArgs(pgxmock.AnyArg(), KindReward, pgxmock.AnyArg(), pgxmock.AnyArg(), "0xwallet", int64(13), StatusConfirmRequested).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(time.Now(), time.Now()))

	s, err := engine.CreateQuote(context.Background(), Settlement{
		Kind: KindReward, SessionID: "session-1", Recipient: "0xwallet", TokenAmount: 13,
	})
	if err != nil {
		t.Fatalf("create quote: %v", err)
	}
	if s.Status != StatusConfirmRequested || s.ID == "" {
		t.Fatalf("unexpected quote: %+v", s)
	}
}

func TestConfirmDecline(t *testing.T) {
	mock := newEngineMock(t)
	fc := healthyChain()
	engine := NewEngine(mock, fc, nil, 5)

	expectGet(mock, "s-1", KindReward, StatusConfirmRequested, 13)
	expectTransition(mock, "s-1", StatusConfirmRequested, StatusCancelled)

	s, err := engine.Confirm(context.Background(), "s-1", false, nil)
	if err != nil {
		t.Fatalf("decline: %v", err)
	}
	if s.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", s.Status)
	}
	if len(fc.calls) != 0 {
		t.Fatalf("declined settlement must never touch the chain: %v", fc.calls)
	}
}

func TestConfirmHappyPath(t *testing.T) {
	mock := newEngineMock(t)
	fc := healthyChain()
	balances := &fakeBalances{}
	engine := NewEngine(mock, fc, balances, 5)

	expectGet(mock, "s-1", KindReward, StatusConfirmRequested, 13)
	expectTransition(mock, "s-1", StatusConfirmRequested, StatusPreflightChecking)
	expectTransition(mock, "s-1", StatusPreflightChecking, StatusSubmitting)
	expectTransition(mock, "s-1", StatusSubmitting, StatusAwaitingConfirmation)
	expectTransition(mock, "s-1", StatusAwaitingConfirmation, StatusConfirmed)

	hookFired := false
	s, err := engine.Confirm(context.Background(), "s-1", true, func() { hookFired = true })
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if s.Status != StatusConfirmed {
		t.Fatalf("expected confirmed, got %s", s.Status)
	}
	if !hookFired {
		t.Fatalf("post-success hook must fire after a confirmed transfer")
	}
	if fc.submittedAmount.Cmp(big.NewInt(1_300_000)) != 0 {
		t.Fatalf("expected 13 tokens in base units, got %s", fc.submittedAmount)
	}
	if fc.submittedGasLimit != 60_000 {
		t.Fatalf("expected estimated gas limit, got %d", fc.submittedGasLimit)
	}
	if balances.saved["0xwallet"] == nil {
		t.Fatalf("expected post-settlement balance refresh")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsufficientTokenBalanceBeforeEstimation(t *testing.T) {
	mock := newEngineMock(t)
	fc := healthyChain()
	fc.tokenBalance = big.NewInt(100) // below 13 tokens in base units
	engine := NewEngine(mock, fc, nil, 5)

	expectGet(mock, "s-1", KindReward, StatusConfirmRequested, 13)
	expectTransition(mock, "s-1", StatusConfirmRequested, StatusPreflightChecking)
	expectTransition(mock, "s-1", StatusPreflightChecking, StatusPreflightFailed)

	_, err := engine.Confirm(context.Background(), "s-1", true, nil)
	if !errors.Is(err, ErrInsufficientTokenBalance) {
		t.Fatalf("expected ErrInsufficientTokenBalance, got %v", err)
	}
	if fc.called("estimate_gas") || fc.called("submit") {
		t.Fatalf("balance failure must precede estimation and submission: %v", fc.calls)
	}
}

func TestGasEstimationFallback(t *testing.T) {
	mock := newEngineMock(t)
	fc := healthyChain()
	fc.estimateErr = errors.New("execution reverted")
	engine := NewEngine(mock, fc, nil, 5)

	expectGet(mock, "s-1", KindReward, StatusConfirmRequested, 13)
	expectTransition(mock, "s-1", StatusConfirmRequested, StatusPreflightChecking)
	expectTransition(mock, "s-1", StatusPreflightChecking, StatusSubmitting)
	expectTransition(mock, "s-1", StatusSubmitting, StatusAwaitingConfirmation)
	expectTransition(mock, "s-1", StatusAwaitingConfirmation, StatusConfirmed)

	s, err := engine.Confirm(context.Background(), "s-1", true, nil)
	if err != nil {
		t.Fatalf("estimation failure must not abort: %v", err)
	}
	if s.Status != StatusConfirmed {
		t.Fatalf("expected confirmed, got %s", s.Status)
	}
	if fc.submittedGasLimit != fallbackGasLimit {
		t.Fatalf("expected fallback gas limit %d, got %d", fallbackGasLimit, fc.submittedGasLimit)
	}
}

func TestInsufficientGasBalance(t *testing.T) {
	mock := newEngineMock(t)
	fc := healthyChain()
	fc.nativeBalance = big.NewInt(1) // cannot cover estimatedGas * gasPrice
	engine := NewEngine(mock, fc, nil, 5)

	expectGet(mock, "s-1", KindReward, StatusConfirmRequested, 13)
	expectTransition(mock, "s-1", StatusConfirmRequested, StatusPreflightChecking)
	expectTransition(mock, "s-1", StatusPreflightChecking, StatusPreflightFailed)

	_, err := engine.Confirm(context.Background(), "s-1", true, nil)
	if !errors.Is(err, ErrInsufficientGasBalance) {
		t.Fatalf("expected ErrInsufficientGasBalance, got %v", err)
	}
	if fc.called("submit") {
		t.Fatalf("gas failure must precede submission: %v", fc.calls)
	}
}

func TestSubmitFailureNoHook(t *testing.T) {
	mock := newEngineMock(t)
	fc := healthyChain()
	fc.submitErr = errors.New("rejected")
	engine := NewEngine(mock, fc, nil, 5)

	expectGet(mock, "s-1", KindPurchase, StatusConfirmRequested, 150)
	expectTransition(mock, "s-1", StatusConfirmRequested, StatusPreflightChecking)
	expectTransition(mock, "s-1", StatusPreflightChecking, StatusSubmitting)
	expectTransition(mock, "s-1", StatusSubmitting, StatusFailed)

	hookFired := false
	_, err := engine.Confirm(context.Background(), "s-1", true, func() { hookFired = true })
	if !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
	if hookFired {
		t.Fatalf("hook must not fire on a failed transfer")
	}
}

func TestAwaitFailure(t *testing.T) {
	mock := newEngineMock(t)
	fc := healthyChain()
	fc.awaitErr = errors.New("dropped")
	engine := NewEngine(mock, fc, nil, 5)

	expectGet(mock, "s-1", KindReward, StatusConfirmRequested, 13)
	expectTransition(mock, "s-1", StatusConfirmRequested, StatusPreflightChecking)
	expectTransition(mock, "s-1", StatusPreflightChecking, StatusSubmitting)
	expectTransition(mock, "s-1", StatusSubmitting, StatusAwaitingConfirmation)
	expectTransition(mock, "s-1", StatusAwaitingConfirmation, StatusFailed)

	_, err := engine.Confirm(context.Background(), "s-1", true, nil)
	if !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
}

func TestConfirmTerminalState(t *testing.T) {
	mock := newEngineMock(t)
	engine := NewEngine(mock, healthyChain(), nil, 5)

	expectGet(mock, "s-1", KindReward, StatusConfirmed, 13)

	_, err := engine.Confirm(context.Background(), "s-1", true, nil)
	if !errors.Is(err, ErrNotConfirmable) {
		t.Fatalf("expected ErrNotConfirmable, got %v", err)
	}
}

// Two confirms can race past the status read; the conditional UPDATE is
// what guarantees only one of them pays. The loser's transition matches
// zero rows and must bail before any chain call.
func TestConfirmLostRaceDoesNotSubmit(t *testing.T) {
	mock := newEngineMock(t)
	fc := healthyChain()
	engine := NewEngine(mock, fc, nil, 5)

	expectGet(mock, "s-1", KindReward, StatusConfirmRequested, 13)
	mock.ExpectQuery(`UPDATE settlements`).
		WithArgs("s-1", StatusConfirmRequested, StatusPreflightChecking, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)

	_, err := engine.Confirm(context.Background(), "s-1", true, nil)
	if !errors.Is(err, ErrNotConfirmable) {
		t.Fatalf("expected ErrNotConfirmable for the losing confirm, got %v", err)
	}
	if len(fc.calls) != 0 {
		t.Fatalf("losing confirm must never touch the chain: %v", fc.calls)
	}
}
