package shop

import (
	"context"
	"errors"
	"math/big"
	"strings"

	"github.com/RyuseiKamei/MeowChain/internal/chain"
	"github.com/RyuseiKamei/MeowChain/internal/db"
	"github.com/RyuseiKamei/MeowChain/internal/settlement"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TokenBalancer reads a wallet's token balance for eligibility checks.
type TokenBalancer interface {
	TokenBalance(ctx context.Context, address string) (*big.Int, error)
}

// Service sells real-world items for tokens. A purchase settles through
// the engine to the configured shop recipient and, once committed, fires
// the dispense signal.
type Service struct {
	db        db.Querier
	engine    *settlement.Engine
	balances  TokenBalancer
	recipient string
	decimals  int
	dispense  func()
}

func NewService(database db.Querier, engine *settlement.Engine, balances TokenBalancer, recipient string, decimals int, dispense func()) *Service {
	return &Service{
		db:        database,
		engine:    engine,
		balances:  balances,
		recipient: recipient,
		decimals:  decimals,
		dispense:  dispense,
	}
}

// Items lists the catalog. When a wallet is given, each item carries an
// eligibility flag: the wallet's balance must cover the price before the
// purchase button is worth showing.
func (s *Service) Items(ctx context.Context, wallet string) ([]ItemView, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, price_tokens, in_stock, created_at
		FROM shop_items
		ORDER BY price_tokens
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ItemView
	for rows.Next() {
		var v ItemView
		if err := rows.Scan(&v.ID, &v.Name, &v.PriceTokens, &v.InStock, &v.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, v)
	}

	if wallet != "" && s.balances != nil {
		balance, err := s.balances.TokenBalance(ctx, wallet)
		if err == nil {
			for i := range items {
				price := chain.ToBaseUnits(items[i].PriceTokens, s.decimals)
				items[i].Eligible = balance.Cmp(price) >= 0
			}
		}
	}
	return items, nil
}

func (s *Service) Item(ctx context.Context, id string) (Item, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, name, price_tokens, in_stock, created_at
		FROM shop_items WHERE id=$1
	`, id)
	var item Item
	if err := row.Scan(&item.ID, &item.Name, &item.PriceTokens, &item.InStock, &item.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrItemNotFound
		}
		return Item{}, err
	}
	return item, nil
}

// Buy runs the whole spend flow for one item: eligibility, quote,
// confirmation, settlement, dispense. accept=false records a cancelled
// settlement without touching the chain.
func (s *Service) Buy(ctx context.Context, itemID, userID, wallet string, accept bool) (settlement.Settlement, error) {
	if userID != "" {
		// A buyer with a bound wallet may only spend through that wallet.
		var bound string
		if err := s.db.QueryRow(ctx, `
			SELECT COALESCE(wallet_address,'') FROM users WHERE id=$1
		`, userID).Scan(&bound); err != nil {
			return settlement.Settlement{}, err
		}
		if bound != "" && !strings.EqualFold(bound, wallet) {
			return settlement.Settlement{}, ErrWalletMismatch
		}
	}

	item, err := s.Item(ctx, itemID)
	if err != nil {
		return settlement.Settlement{}, err
	}
	if !item.InStock {
		return settlement.Settlement{}, ErrItemUnavailable
	}

	if s.balances != nil {
		balance, err := s.balances.TokenBalance(ctx, wallet)
		if err != nil {
			return settlement.Settlement{}, err
		}
		if balance.Cmp(chain.ToBaseUnits(item.PriceTokens, s.decimals)) < 0 {
			return settlement.Settlement{}, ErrNotEligible
		}
	}

	quote, err := s.engine.CreateQuote(ctx, settlement.Settlement{
		Kind:        settlement.KindPurchase,
		ItemID:      item.ID,
		Recipient:   s.recipient,
		TokenAmount: item.PriceTokens,
	})
	if err != nil {
		return settlement.Settlement{}, err
	}

	if _, err := s.db.Exec(ctx, `
		INSERT INTO purchases (id, item_id, wallet_address, settlement_id)
		VALUES ($1,$2,$3,$4)
	`, uuid.NewString(), item.ID, wallet, quote.ID); err != nil {
		return settlement.Settlement{}, err
	}

	return s.engine.Confirm(ctx, quote.ID, accept, s.dispense)
}
