package repositories

import (
	"context"
	"errors"
	"time"

	"bundlepay/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrTransactionNotFound = errors.New("transaction not found")
)

// SumFilter narrows a transaction total.
type SumFilter struct {
	Types    []string
	Statuses []string
	Since    time.Time
	// ExcludeSources drops entries from these sources.
	ExcludeSources []string
}

// WalletRepository defines the interface for wallet-related database operations
type WalletRepository interface {
	// EnsureWallet inserts the wallet unless one already exists for the user.
	EnsureWallet(ctx context.Context, wallet *models.Wallet) error
	GetByUserID(ctx context.Context, userID uint) (*models.Wallet, error)
	// GetByUserIDForUpdate reads the wallet holding a row lock until the
	// surrounding transaction ends.
	GetByUserIDForUpdate(ctx context.Context, userID uint) (*models.Wallet, error)
	Update(ctx context.Context, wallet *models.Wallet) error

	// Transaction operations
	CreateTransaction(ctx context.Context, tx *models.WalletTransaction) error
	UpdateTransaction(ctx context.Context, tx *models.WalletTransaction) error
	GetTransactionByReference(ctx context.Context, reference string) (*models.WalletTransaction, error)
	SumTransactions(ctx context.Context, walletID uint, filter SumFilter) (decimal.Decimal, error)
	// GetTransactionHistory lists entries newest first by commit time: a
	// settled deposit sorts by its completion, not by its reservation.
	GetTransactionHistory(ctx context.Context, walletID uint, limit, offset int) ([]models.WalletTransaction, int64, error)
	// ListPendingTransactions returns the pending entries checked least
	// recently, so repeated calls rotate through the whole backlog.
	ListPendingTransactions(ctx context.Context, txType string, createdBefore time.Time, limit int) ([]models.WalletTransaction, error)
	MarkTransactionsChecked(ctx context.Context, ids []uint, at time.Time) error

	// ExecuteInTransaction runs fn against a repository bound to one database transaction.
	ExecuteInTransaction(ctx context.Context, fn func(WalletRepository) error) error
	// DB returns the handle the repository is bound to, so collaborators can
	// join the same transaction.
	DB() *gorm.DB
}
