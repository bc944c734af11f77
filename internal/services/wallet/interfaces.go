package wallet

import (
	"context"
	"time"

	"bundlepay/internal/models"
	"bundlepay/internal/repositories/cache"

	"github.com/shopspring/decimal"
)

// Ledger is the write side: every balance change goes through one of these.
type Ledger interface {
	// InTx runs fn in one database transaction. Wallets touched by fn are
	// invalidated in the cache only after the commit succeeds.
	InTx(ctx context.Context, fn func(tx *LedgerTx) error) error
	Credit(ctx context.Context, req CreditRequest) (*Result, error)
	Debit(ctx context.Context, req DebitRequest) (*Result, error)
}

// Service defines the main wallet service interface
type Service interface {
	Ledger

	// Reads
	GetBalance(ctx context.Context, userID uint) (*cache.Snapshot, error)
	GetOverview(ctx context.Context, userID uint) (*Overview, error)
	GetTransactionHistory(ctx context.Context, userID uint, limit, offset int) ([]models.WalletTransaction, int64, error)
	GetTransactionByReference(ctx context.Context, reference string) (*models.WalletTransaction, error)
	// ClaimStalePending returns up to limit pending entries older than
	// olderThan, least recently checked first, and stamps them as checked.
	ClaimStalePending(ctx context.Context, txType string, olderThan time.Duration, limit int) ([]models.WalletTransaction, error)

	// Administration
	AdminCredit(ctx context.Context, userID, adminID uint, amount decimal.Decimal, reason string) (*Result, error)
	AdminDebit(ctx context.Context, userID, adminID uint, amount decimal.Decimal, reason string) (*Result, error)
	Adjust(ctx context.Context, req AdjustRequest) (*Result, error)
	Freeze(ctx context.Context, userID uint, reason string) error
	Unfreeze(ctx context.Context, userID uint) error
}

// MetricsCollector receives ledger measurements.
type MetricsCollector interface {
	RecordOperationDuration(operation string, duration time.Duration)
	RecordOperationResult(operation, result string)
	RecordCacheHit(operation string)
	RecordCacheMiss(operation string)
	RecordBalanceChange(userID uint, oldBalance, newBalance float64)
	RecordError(operation, errType string)
	RecordTransaction(txType, status string, amount float64)
}
