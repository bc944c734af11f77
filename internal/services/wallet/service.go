package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "bundlepay/internal/errors"
	"bundlepay/internal/models"
	"bundlepay/internal/repositories"
	"bundlepay/internal/repositories/cache"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type service struct {
	repo    repositories.WalletRepository
	cache   cache.BalanceCache
	config  WalletConfig
	metrics MetricsCollector
	now     func() time.Time
}

// NewService creates a new wallet service
func NewService(
	repo repositories.WalletRepository,
	balanceCache cache.BalanceCache,
	config WalletConfig,
	metrics MetricsCollector,
) Service {
	if repo == nil {
		panic("repo is required")
	}
	if balanceCache == nil {
		panic("cache is required")
	}

	// Set default configuration values if not provided
	if config.DefaultCurrency == "" {
		config.DefaultCurrency = DefaultCurrency
	}
	if config.DailyLimit.IsZero() {
		config.DailyLimit = DefaultDailyLimit
	}
	if config.MonthlyLimit.IsZero() {
		config.MonthlyLimit = DefaultMonthlyLimit
	}
	if config.MaxBalance.IsZero() {
		config.MaxBalance = DefaultMaxBalance
	}
	if config.DailySpendingLimit.IsZero() {
		config.DailySpendingLimit = DefaultDailySpendingLimit
	}
	if config.RecentTransactions <= 0 {
		config.RecentTransactions = DefaultRecentTransactions
	}

	// Metrics is optional, create no-op collector if nil
	if metrics == nil {
		metrics = &NoopMetricsCollector{}
	}

	return &service{
		repo:    repo,
		cache:   balanceCache,
		config:  config,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *service) InTx(ctx context.Context, fn func(tx *LedgerTx) error) error {
	var ltx *LedgerTx
	err := s.repo.ExecuteInTransaction(ctx, func(repo repositories.WalletRepository) error {
		ltx = newLedgerTx(ctx, s, repo)
		return fn(ltx)
	})
	if err != nil {
		return err
	}
	ltx.committed()
	return nil
}

func (s *service) Credit(ctx context.Context, req CreditRequest) (res *Result, err error) {
	defer s.observe(OpCredit, time.Now(), &err)
	err = s.InTx(ctx, func(tx *LedgerTx) error {
		var e error
		res, e = tx.Credit(req)
		return e
	})
	return res, err
}

func (s *service) Debit(ctx context.Context, req DebitRequest) (res *Result, err error) {
	defer s.observe(OpDebit, time.Now(), &err)
	err = s.InTx(ctx, func(tx *LedgerTx) error {
		var e error
		res, e = tx.Debit(req)
		return e
	})
	return res, err
}

// GetBalance serves from the cache, falling back to the store. The read time
// is taken before the store read so a concurrent commit wins over this fill.
func (s *service) GetBalance(ctx context.Context, userID uint) (*cache.Snapshot, error) {
	snap, found, err := s.cache.Get(ctx, userID)
	if err != nil {
		zap.L().Warn("balance cache read failed", zap.Uint("user_id", userID), zap.Error(err))
	}
	if found {
		s.metrics.RecordCacheHit(OpGetBalance)
		return snap, nil
	}
	s.metrics.RecordCacheMiss(OpGetBalance)

	readAt := s.now()
	w, err := s.loadWallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	snap = snapshotOf(w)
	snap.ReadAt = readAt
	if err := s.cache.Set(ctx, snap); err != nil {
		zap.L().Warn("balance cache fill failed", zap.Uint("user_id", userID), zap.Error(err))
	}
	return snap, nil
}

func (s *service) GetOverview(ctx context.Context, userID uint) (*Overview, error) {
	snap, err := s.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	w, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	usage, err := usageOf(ctx, s.repo, w, s.now())
	if err != nil {
		return nil, err
	}
	recent, _, err := s.repo.GetTransactionHistory(ctx, w.ID, s.config.RecentTransactions, 0)
	if err != nil {
		return nil, err
	}

	return &Overview{
		Balance:            snap.Balance,
		Currency:           snap.Currency,
		Frozen:             snap.Frozen,
		FreezeReason:       snap.FreezeReason,
		Limits:             s.limitsOf(w),
		Usage:              *usage,
		RecentTransactions: recent,
	}, nil
}

func (s *service) GetTransactionHistory(ctx context.Context, userID uint, limit, offset int) ([]models.WalletTransaction, int64, error) {
	w, err := s.loadWallet(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	return s.repo.GetTransactionHistory(ctx, w.ID, limit, offset)
}

func (s *service) GetTransactionByReference(ctx context.Context, reference string) (*models.WalletTransaction, error) {
	tx, err := s.repo.GetTransactionByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, repositories.ErrTransactionNotFound) {
			return nil, apperrors.NotFound("transaction", reference)
		}
		return nil, err
	}
	return tx, nil
}

func (s *service) ClaimStalePending(ctx context.Context, txType string, olderThan time.Duration, limit int) ([]models.WalletTransaction, error) {
	now := s.now()
	txs, err := s.repo.ListPendingTransactions(ctx, txType, now.Add(-olderThan), limit)
	if err != nil || len(txs) == 0 {
		return txs, err
	}
	ids := make([]uint, len(txs))
	for i := range txs {
		ids[i] = txs[i].ID
	}
	if err := s.repo.MarkTransactionsChecked(ctx, ids, now); err != nil {
		return nil, err
	}
	return txs, nil
}

// loadWallet reads a wallet, creating it on first use.
func (s *service) loadWallet(ctx context.Context, userID uint) (*models.Wallet, error) {
	if err := s.repo.EnsureWallet(ctx, s.newWallet(userID)); err != nil {
		return nil, err
	}
	return s.repo.GetByUserID(ctx, userID)
}

func (s *service) newWallet(userID uint) *models.Wallet {
	return &models.Wallet{UserID: userID, Currency: s.config.DefaultCurrency}
}

func (s *service) limitsOf(w *models.Wallet) Limits {
	pick := func(own, def decimal.Decimal) decimal.Decimal {
		if own.IsPositive() {
			return own
		}
		return def
	}
	return Limits{
		Daily:         pick(w.DailyLimit, s.config.DailyLimit),
		Monthly:       pick(w.MonthlyLimit, s.config.MonthlyLimit),
		MaxBalance:    pick(w.MaxBalance, s.config.MaxBalance),
		DailySpending: pick(w.DailySpendingLimit, s.config.DailySpendingLimit),
	}
}

func usageOf(ctx context.Context, repo repositories.WalletRepository, w *models.Wallet, now time.Time) (*LimitUsage, error) {
	day, month := windowStarts(now)
	deposits := repositories.SumFilter{
		Types:          []string{models.TransactionTypeDeposit},
		Statuses:       []string{models.TransactionStatusPending, models.TransactionStatusCompleted},
		ExcludeSources: []string{models.SourceAdmin},
	}

	deposits.Since = day
	today, err := repo.SumTransactions(ctx, w.ID, deposits)
	if err != nil {
		return nil, err
	}
	deposits.Since = month
	thisMonth, err := repo.SumTransactions(ctx, w.ID, deposits)
	if err != nil {
		return nil, err
	}
	spent, err := repo.SumTransactions(ctx, w.ID, repositories.SumFilter{
		Types:    []string{models.TransactionTypePurchase},
		Statuses: []string{models.TransactionStatusCompleted},
		Since:    day,
	})
	if err != nil {
		return nil, err
	}
	return &LimitUsage{
		DepositedToday:     today,
		DepositedThisMonth: thisMonth,
		SpentToday:         spent.Neg(),
	}, nil
}

// windowStarts returns the start of the UTC day and month containing now.
func windowStarts(now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return day, month
}

func (s *service) observe(op string, start time.Time, err *error) {
	s.metrics.RecordOperationDuration(op, time.Since(start))
	if *err == nil {
		s.metrics.RecordOperationResult(op, ResultSuccess)
		return
	}
	s.metrics.RecordOperationResult(op, ResultFailure)
	kind := "internal"
	if de, ok := apperrors.As(*err); ok {
		kind = string(de.Kind)
	}
	s.metrics.RecordError(op, kind)
}
