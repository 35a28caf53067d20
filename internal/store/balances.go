package store

import (
	"context"
	"errors"
	"math/big"

	"github.com/RyuseiKamei/MeowChain/internal/chain"

	"github.com/redis/go-redis/v9"
)

// Key prefixes mirror the names the web client kept in local storage.
const (
	walletKeyPrefix  = "walletAddress:"
	balanceKeyPrefix = "tokenBalance:"
)

var ErrNotCached = errors.New("no cached value")

// Balances persists each user's wallet address and last-known formatted
// token balance so the profile can render before any chain round-trip.
type Balances struct {
	rdb      *redis.Client
	decimals int
}

func NewBalances(rdb *redis.Client, decimals int) *Balances {
	return &Balances{rdb: rdb, decimals: decimals}
}

func (b *Balances) SaveWallet(ctx context.Context, userID, address string) error {
	if b.rdb == nil {
		return nil
	}
	return b.rdb.Set(ctx, walletKeyPrefix+userID, address, 0).Err()
}

func (b *Balances) Wallet(ctx context.Context, userID string) (string, error) {
	if b.rdb == nil {
		return "", ErrNotCached
	}
	address, err := b.rdb.Get(ctx, walletKeyPrefix+userID).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotCached
	}
	return address, err
}

// SaveBalance stores the display-formatted balance for an address. This
// is the settlement engine's post-settlement refresh target.
func (b *Balances) SaveBalance(ctx context.Context, address string, baseUnits *big.Int) error {
	if b.rdb == nil {
		return nil
	}
	return b.rdb.Set(ctx, balanceKeyPrefix+address, chain.FormatUnits(baseUnits, b.decimals), 0).Err()
}

func (b *Balances) Balance(ctx context.Context, address string) (string, error) {
	if b.rdb == nil {
		return "", ErrNotCached
	}
	balance, err := b.rdb.Get(ctx, balanceKeyPrefix+address).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotCached
	}
	return balance, err
}
