// Package cache holds the read-through balance cache. The ledger never writes
// balances into it; a commit only invalidates, and a snapshot taken before the
// latest invalidation is refused.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// WalletCachePrefix namespaces wallet keys in shared stores.
const WalletCachePrefix = "wallet"

// Snapshot is a cached view of a wallet. ReadAt is taken before the database
// read that produced it.
type Snapshot struct {
	UserID       uint            `json:"user_id"`
	WalletID     uint            `json:"wallet_id"`
	Balance      decimal.Decimal `json:"balance"`
	Currency     string          `json:"currency"`
	Frozen       bool            `json:"frozen"`
	FreezeReason string          `json:"freeze_reason,omitempty"`
	ReadAt       time.Time       `json:"read_at"`
}

// BalanceCache is implemented by the in-process and Redis backends.
type BalanceCache interface {
	Get(ctx context.Context, userID uint) (*Snapshot, bool, error)
	// Set stores snap unless the user was invalidated at or after snap.ReadAt.
	Set(ctx context.Context, snap *Snapshot) error
	Invalidate(ctx context.Context, userID uint) error
}

func walletKey(userID uint) string {
	return fmt.Sprintf("%s:user:%d", WalletCachePrefix, userID)
}

func tombstoneKey(userID uint) string {
	return fmt.Sprintf("%s:invalidated:%d", WalletCachePrefix, userID)
}
