package shop

import (
	"errors"
	"time"
)

type Item struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	PriceTokens int64     `json:"price_tokens"`
	InStock     bool      `json:"in_stock"`
	CreatedAt   time.Time `json:"created_at"`
}

// ItemView is an Item plus whether the asking wallet can afford it.
type ItemView struct {
	Item
	Eligible bool `json:"eligible"`
}

type Purchase struct {
	ID            string    `json:"id"`
	ItemID        string    `json:"item_id"`
	WalletAddress string    `json:"wallet_address"`
	SettlementID  string    `json:"settlement_id"`
	CreatedAt     time.Time `json:"created_at"`
}

var (
	ErrItemNotFound    = errors.New("item not found")
	ErrItemUnavailable = errors.New("item is out of stock")
	ErrNotEligible     = errors.New("wallet balance does not cover the item price")
	ErrWalletMismatch  = errors.New("wallet does not match the buyer's bound wallet")
)
