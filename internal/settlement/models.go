package settlement

import (
	"errors"
	"time"
)

// Settlement kinds. Only purchases fire the dispense hook.
const (
	KindReward   = "reward"
	KindPurchase = "purchase"
)

// Per-attempt state machine. Terminal states never return to an earlier
// one; a fresh attempt means a fresh settlement row.
const (
	StatusConfirmRequested     = "confirm_requested"
	StatusCancelled            = "cancelled"
	StatusPreflightChecking    = "preflight_checking"
	StatusPreflightFailed      = "preflight_failed"
	StatusSubmitting           = "submitting"
	StatusAwaitingConfirmation = "awaiting_confirmation"
	StatusConfirmed            = "confirmed"
	StatusFailed               = "failed"
)

var (
	ErrWalletNotConnected       = errors.New("no wallet address on record")
	ErrInsufficientTokenBalance = errors.New("treasury token balance is insufficient")
	ErrInsufficientGasBalance   = errors.New("treasury gas balance is insufficient")
	ErrTransferFailed           = errors.New("transfer rejected or failed")
	ErrNotConfirmable           = errors.New("settlement is not awaiting confirmation")
)

type Settlement struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	SessionID   string    `json:"session_id,omitempty"`
	ItemID      string    `json:"item_id,omitempty"`
	Recipient   string    `json:"recipient"`
	TokenAmount int64     `json:"token_amount"`
	Status      string    `json:"status"`
	TxHash      string    `json:"tx_hash,omitempty"`
	Failure     string    `json:"failure,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
