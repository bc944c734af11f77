package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bundlepay/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type walletRepository struct {
	db *gorm.DB
}

func NewWalletRepository(db *gorm.DB) WalletRepository {
	return &walletRepository{
		db: db,
	}
}

func (r *walletRepository) DB() *gorm.DB {
	return r.db
}

func (r *walletRepository) EnsureWallet(ctx context.Context, wallet *models.Wallet) error {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(wallet)
	if result.Error != nil {
		return fmt.Errorf("failed to create wallet: %w", result.Error)
	}
	return nil
}

func (r *walletRepository) GetByUserID(ctx context.Context, userID uint) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&wallet).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return &wallet, nil
}

func (r *walletRepository) GetByUserIDForUpdate(ctx context.Context, userID uint) (*models.Wallet, error) {
	var wallet models.Wallet
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to lock wallet: %w", err)
	}
	return &wallet, nil
}

func (r *walletRepository) Update(ctx context.Context, wallet *models.Wallet) error {
	if err := r.db.WithContext(ctx).Save(wallet).Error; err != nil {
		return fmt.Errorf("failed to update wallet: %w", err)
	}
	return nil
}

func (r *walletRepository) CreateTransaction(ctx context.Context, tx *models.WalletTransaction) error {
	if err := r.db.WithContext(ctx).Create(tx).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("reference %s: %w", tx.Reference, ErrDuplicateKey)
		}
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

func (r *walletRepository) UpdateTransaction(ctx context.Context, tx *models.WalletTransaction) error {
	if err := r.db.WithContext(ctx).Save(tx).Error; err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	return nil
}

func (r *walletRepository) GetTransactionByReference(ctx context.Context, reference string) (*models.WalletTransaction, error) {
	var tx models.WalletTransaction
	if err := r.db.WithContext(ctx).Where("reference = ?", reference).First(&tx).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return &tx, nil
}

func (r *walletRepository) SumTransactions(ctx context.Context, walletID uint, filter SumFilter) (decimal.Decimal, error) {
	q := r.db.WithContext(ctx).
		Model(&models.WalletTransaction{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("wallet_id = ?", walletID)
	if len(filter.Types) > 0 {
		q = q.Where("type IN ?", filter.Types)
	}
	if len(filter.Statuses) > 0 {
		q = q.Where("status IN ?", filter.Statuses)
	}
	if len(filter.ExcludeSources) > 0 {
		q = q.Where("source NOT IN ?", filter.ExcludeSources)
	}
	if !filter.Since.IsZero() {
		q = q.Where("created_at >= ?", filter.Since)
	}

	var total decimal.Decimal
	if err := q.Row().Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum transactions: %w", err)
	}
	return total.Round(2), nil
}

func (r *walletRepository) GetTransactionHistory(ctx context.Context, walletID uint, limit, offset int) ([]models.WalletTransaction, int64, error) {
	var (
		txs   []models.WalletTransaction
		total int64
	)
	base := r.db.WithContext(ctx).Model(&models.WalletTransaction{}).Where("wallet_id = ?", walletID)
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	err := base.Order("COALESCE(completed_at, created_at) DESC, id DESC").Limit(limit).Offset(offset).Find(&txs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get transaction history: %w", err)
	}
	return txs, total, nil
}

func (r *walletRepository) ListPendingTransactions(ctx context.Context, txType string, createdBefore time.Time, limit int) ([]models.WalletTransaction, error) {
	var txs []models.WalletTransaction
	err := r.db.WithContext(ctx).
		Where("type = ? AND status = ? AND created_at < ?", txType, models.TransactionStatusPending, createdBefore).
		Order("COALESCE(last_checked_at, created_at) ASC, id ASC").
		Limit(limit).
		Find(&txs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending transactions: %w", err)
	}
	return txs, nil
}

func (r *walletRepository) MarkTransactionsChecked(ctx context.Context, ids []uint, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).
		Model(&models.WalletTransaction{}).
		Where("id IN ? AND status = ?", ids, models.TransactionStatusPending).
		UpdateColumn("last_checked_at", at).Error
	if err != nil {
		return fmt.Errorf("failed to mark transactions checked: %w", err)
	}
	return nil
}

func (r *walletRepository) ExecuteInTransaction(ctx context.Context, fn func(WalletRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewWalletRepository(tx))
	})
}
