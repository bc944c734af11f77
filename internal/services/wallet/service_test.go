package wallet

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	apperrors "bundlepay/internal/errors"
	"bundlepay/internal/models"
	"bundlepay/internal/repositories"
	"bundlepay/internal/repositories/cache"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := repositories.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", name), 1)
	require.NoError(t, err)
	require.NoError(t, repositories.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func newTestService(t *testing.T, cfg WalletConfig) (*service, *gorm.DB, *cache.MemoryCache) {
	t.Helper()
	db := newTestDB(t)
	c := cache.NewMemoryCache(time.Minute)
	svc := NewService(repositories.NewWalletRepository(db), c, cfg, nil).(*service)
	return svc, db, c
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func fund(t *testing.T, svc Service, userID uint, amount string) {
	t.Helper()
	_, err := svc.AdminCredit(context.Background(), userID, 99, dec(amount), "test funding")
	require.NoError(t, err)
}

func ledgerSum(t *testing.T, db *gorm.DB, userID uint) decimal.Decimal {
	t.Helper()
	var txs []models.WalletTransaction
	require.NoError(t, db.Where("user_id = ? AND status = ?", userID, models.TransactionStatusCompleted).Find(&txs).Error)
	sum := decimal.Zero
	for _, tx := range txs {
		sum = sum.Add(tx.Amount)
	}
	return sum
}

func walletBalance(t *testing.T, db *gorm.DB, userID uint) decimal.Decimal {
	t.Helper()
	var w models.Wallet
	require.NoError(t, db.Where("user_id = ?", userID).First(&w).Error)
	return w.Balance
}

func TestCreditDebit_LedgerMatchesBalance(t *testing.T) {
	svc, db, _ := newTestService(t, WalletConfig{})
	ctx := context.Background()

	res, err := svc.Credit(ctx, CreditRequest{
		UserID:    1,
		Amount:    dec("100.00"),
		Type:      models.TransactionTypeDeposit,
		Reference: "DEP-1",
		Source:    models.SourcePaystack,
	})
	require.NoError(t, err)
	assert.True(t, res.Balance.Equal(dec("100")))
	assert.True(t, res.Transaction.BalanceBefore.Equal(decimal.Zero))

	res, err = svc.Debit(ctx, DebitRequest{
		UserID:    1,
		Amount:    dec("12.50"),
		Type:      models.TransactionTypePurchase,
		Reference: "PUR-1",
	})
	require.NoError(t, err)
	assert.True(t, res.Balance.Equal(dec("87.50")))
	assert.True(t, res.Transaction.Amount.Equal(dec("-12.50")))
	assert.True(t, res.Transaction.BalanceAfter.Equal(res.Transaction.BalanceBefore.Add(res.Transaction.Amount)))

	assert.True(t, walletBalance(t, db, 1).Equal(dec("87.50")))
	assert.True(t, ledgerSum(t, db, 1).Equal(walletBalance(t, db, 1)))
}

func TestDebit_InsufficientFunds(t *testing.T) {
	svc, db, _ := newTestService(t, WalletConfig{})
	ctx := context.Background()
	fund(t, svc, 1, "30.00")

	_, err := svc.Debit(ctx, DebitRequest{
		UserID:    1,
		Amount:    dec("100.00"),
		Type:      models.TransactionTypePurchase,
		Reference: "PUR-1",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientFunds)

	de, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, "30.00", de.Details["currentBalance"])
	assert.Equal(t, "100.00", de.Details["requiredAmount"])
	assert.Equal(t, "70.00", de.Details["shortfall"])

	assert.True(t, walletBalance(t, db, 1).Equal(dec("30")))
	var count int64
	db.Model(&models.WalletTransaction{}).Where("reference = ?", "PUR-1").Count(&count)
	assert.Zero(t, count)
}

func TestDebit_ConcurrentNeverOverdraws(t *testing.T) {
	svc, db, _ := newTestService(t, WalletConfig{})
	ctx := context.Background()
	fund(t, svc, 1, "100.00")

	const workers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Debit(ctx, DebitRequest{
				UserID:    1,
				Amount:    dec("15.00"),
				Type:      models.TransactionTypePurchase,
				Reference: fmt.Sprintf("PUR-%d", i),
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, apperrors.ErrInsufficientFunds)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 6, succeeded)
	assert.True(t, walletBalance(t, db, 1).Equal(dec("10")))
	assert.True(t, ledgerSum(t, db, 1).Equal(dec("10")))
}

func TestRecordPending_DailyLimit(t *testing.T) {
	svc, _, _ := newTestService(t, WalletConfig{DailyLimit: dec("10000")})
	ctx := context.Background()

	record := func(ref string) error {
		return svc.InTx(ctx, func(tx *LedgerTx) error {
			_, err := tx.RecordPending(PendingRequest{UserID: 1, Amount: dec("6000"), Reference: ref})
			return err
		})
	}

	require.NoError(t, record("DEP-1"))
	err := record("DEP-2")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrLimitExceeded)

	de, _ := apperrors.As(err)
	assert.Equal(t, apperrors.LimitDaily, de.Details["limitType"])
	assert.Equal(t, "10000.00", de.Details["limit"])
	assert.Equal(t, "6000.00", de.Details["used"])
	assert.Equal(t, "4000.00", de.Details["remaining"])
}

func TestCredit_MaxBalance(t *testing.T) {
	svc, _, _ := newTestService(t, WalletConfig{MaxBalance: dec("500")})
	fund(t, svc, 1, "450")

	_, err := svc.AdminCredit(context.Background(), 1, 99, dec("100"), "top up")
	assert.ErrorIs(t, err, apperrors.ErrLimitExceeded)
}

func TestDebit_DailySpendingLimit(t *testing.T) {
	svc, _, _ := newTestService(t, WalletConfig{DailySpendingLimit: dec("50")})
	ctx := context.Background()
	fund(t, svc, 1, "200")

	_, err := svc.Debit(ctx, DebitRequest{UserID: 1, Amount: dec("40"), Type: models.TransactionTypePurchase, Reference: "PUR-1"})
	require.NoError(t, err)
	_, err = svc.Debit(ctx, DebitRequest{UserID: 1, Amount: dec("20"), Type: models.TransactionTypePurchase, Reference: "PUR-2"})
	assert.ErrorIs(t, err, apperrors.ErrLimitExceeded)

	// Operator withdrawals are not purchases.
	_, err = svc.AdminDebit(ctx, 1, 99, dec("20"), "correction")
	assert.NoError(t, err)
}

func TestFrozenWalletRejectsMutations(t *testing.T) {
	svc, _, _ := newTestService(t, WalletConfig{})
	ctx := context.Background()
	fund(t, svc, 1, "100")

	require.NoError(t, svc.Freeze(ctx, 1, "chargeback review"))

	_, err := svc.Debit(ctx, DebitRequest{UserID: 1, Amount: dec("1"), Type: models.TransactionTypePurchase, Reference: "PUR-1"})
	require.ErrorIs(t, err, apperrors.ErrFrozenWallet)
	de, _ := apperrors.As(err)
	assert.Equal(t, "chargeback review", de.Details["reason"])

	_, err = svc.AdminCredit(ctx, 1, 99, dec("1"), "bonus")
	assert.ErrorIs(t, err, apperrors.ErrFrozenWallet)

	snap, err := svc.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.True(t, snap.Frozen)

	require.NoError(t, svc.Unfreeze(ctx, 1))
	_, err = svc.Debit(ctx, DebitRequest{UserID: 1, Amount: dec("1"), Type: models.TransactionTypePurchase, Reference: "PUR-2"})
	assert.NoError(t, err)
}

func TestDuplicateReference(t *testing.T) {
	svc, db, _ := newTestService(t, WalletConfig{})
	ctx := context.Background()
	fund(t, svc, 1, "100")

	req := DebitRequest{UserID: 1, Amount: dec("10"), Type: models.TransactionTypePurchase, Reference: "PUR-ORDER-7"}
	_, err := svc.Debit(ctx, req)
	require.NoError(t, err)
	_, err = svc.Debit(ctx, req)
	assert.ErrorIs(t, err, apperrors.ErrDuplicateReference)
	assert.True(t, walletBalance(t, db, 1).Equal(dec("90")))
}

func TestAmountValidation(t *testing.T) {
	svc, _, _ := newTestService(t, WalletConfig{})
	ctx := context.Background()

	tests := []struct {
		name   string
		amount string
	}{
		{name: "zero", amount: "0"},
		{name: "negative", amount: "-5"},
		{name: "sub-cent", amount: "1.005"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Credit(ctx, CreditRequest{UserID: 1, Amount: dec(tt.amount), Type: models.TransactionTypeDeposit, Reference: "X-" + tt.name})
			assert.ErrorIs(t, err, apperrors.ErrValidation)
		})
	}
}

func TestGetBalance_CacheInvalidatedAfterCommit(t *testing.T) {
	svc, _, c := newTestService(t, WalletConfig{})
	ctx := context.Background()

	snap, err := svc.GetBalance(ctx, 5)
	require.NoError(t, err)
	assert.True(t, snap.Balance.IsZero())
	assert.Equal(t, 1, c.Len())

	fund(t, svc, 5, "25.00")
	assert.Equal(t, 0, c.Len(), "commit must invalidate, not overwrite")

	snap, err = svc.GetBalance(ctx, 5)
	require.NoError(t, err)
	assert.True(t, snap.Balance.Equal(dec("25")))
}

func TestInTx_RollbackKeepsCache(t *testing.T) {
	svc, db, c := newTestService(t, WalletConfig{})
	ctx := context.Background()
	fund(t, svc, 1, "50")
	_, err := svc.GetBalance(ctx, 1)
	require.NoError(t, err)

	ran := false
	err = svc.InTx(ctx, func(tx *LedgerTx) error {
		tx.AfterCommit(func() { ran = true })
		if _, err := tx.Debit(DebitRequest{UserID: 1, Amount: dec("20"), Type: models.TransactionTypePurchase, Reference: "PUR-1"}); err != nil {
			return err
		}
		_, err := tx.Debit(DebitRequest{UserID: 1, Amount: dec("40"), Type: models.TransactionTypePurchase, Reference: "PUR-2"})
		return err
	})
	require.ErrorIs(t, err, apperrors.ErrInsufficientFunds)
	assert.False(t, ran)
	assert.Equal(t, 1, c.Len())
	assert.True(t, walletBalance(t, db, 1).Equal(dec("50")))
}

func TestSettlePending_ExactlyOnce(t *testing.T) {
	svc, db, _ := newTestService(t, WalletConfig{})
	ctx := context.Background()

	require.NoError(t, svc.InTx(ctx, func(tx *LedgerTx) error {
		_, err := tx.RecordPending(PendingRequest{UserID: 3, Amount: dec("40"), Reference: "DEP-A", Source: models.SourcePaystack})
		return err
	}))
	assert.True(t, walletBalance(t, db, 3).IsZero())

	settled := 0
	for i := 0; i < 3; i++ {
		var res *Result
		require.NoError(t, svc.InTx(ctx, func(tx *LedgerTx) error {
			var err error
			res, err = tx.SettlePending("DEP-A", SettleOutcome{Success: true})
			return err
		}))
		if !res.AlreadySettled {
			settled++
		}
		assert.True(t, res.Balance.Equal(dec("40")))
	}
	assert.Equal(t, 1, settled)
	assert.True(t, walletBalance(t, db, 3).Equal(dec("40")))
	assert.True(t, ledgerSum(t, db, 3).Equal(dec("40")))
}

func TestSettlePending_Failure(t *testing.T) {
	svc, db, _ := newTestService(t, WalletConfig{})
	ctx := context.Background()

	require.NoError(t, svc.InTx(ctx, func(tx *LedgerTx) error {
		_, err := tx.RecordPending(PendingRequest{UserID: 3, Amount: dec("40"), Reference: "DEP-B"})
		return err
	}))
	require.NoError(t, svc.InTx(ctx, func(tx *LedgerTx) error {
		_, err := tx.SettlePending("DEP-B", SettleOutcome{Success: false, Reason: "declined"})
		return err
	}))

	tx, err := svc.GetTransactionByReference(ctx, "DEP-B")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusFailed, tx.Status)
	assert.Equal(t, "declined", tx.Metadata.String("failure_reason"))
	assert.True(t, walletBalance(t, db, 3).IsZero())
}

func TestAdjust(t *testing.T) {
	tests := []struct {
		name          string
		amount        string
		allowNegative bool
		wantErr       error
		wantBalance   string
	}{
		{name: "positive correction", amount: "15", wantBalance: "25"},
		{name: "negative within balance", amount: "-4", wantBalance: "6"},
		{name: "negative beyond balance rejected", amount: "-30", wantErr: apperrors.ErrInsufficientFunds, wantBalance: "10"},
		{name: "negative beyond balance allowed", amount: "-30", allowNegative: true, wantBalance: "-20"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, db, _ := newTestService(t, WalletConfig{})
			fund(t, svc, 1, "10")

			res, err := svc.Adjust(context.Background(), AdjustRequest{
				UserID:        1,
				AdminID:       99,
				Amount:        dec(tt.amount),
				Reason:        "reconciliation",
				AllowNegative: tt.allowNegative,
			})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.True(t, res.Balance.Equal(dec(tt.wantBalance)))
			}
			assert.True(t, walletBalance(t, db, 1).Equal(dec(tt.wantBalance)))
		})
	}
}

func TestGetOverview(t *testing.T) {
	svc, _, _ := newTestService(t, WalletConfig{DailyLimit: dec("1000")})
	ctx := context.Background()
	fund(t, svc, 1, "100")
	_, err := svc.Debit(ctx, DebitRequest{UserID: 1, Amount: dec("30"), Type: models.TransactionTypePurchase, Reference: "PUR-1"})
	require.NoError(t, err)
	require.NoError(t, svc.InTx(ctx, func(tx *LedgerTx) error {
		_, err := tx.RecordPending(PendingRequest{UserID: 1, Amount: dec("200"), Reference: "DEP-1"})
		return err
	}))

	ov, err := svc.GetOverview(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ov.Balance.Equal(dec("70")))
	assert.True(t, ov.Limits.Daily.Equal(dec("1000")))
	assert.True(t, ov.Usage.DepositedToday.Equal(dec("200")), "admin credits are not counted, pending deposits are")
	assert.True(t, ov.Usage.SpentToday.Equal(dec("30")))
	assert.Len(t, ov.RecentTransactions, 3)
}

type recordingMetrics struct {
	NoopMetricsCollector
	mu      sync.Mutex
	results []string
}

func (m *recordingMetrics) RecordOperationResult(op, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, op+":"+result)
}

func TestPendingLifecycleRecordsMetrics(t *testing.T) {
	m := &recordingMetrics{}
	db := newTestDB(t)
	svc := NewService(repositories.NewWalletRepository(db), cache.NewMemoryCache(time.Minute), WalletConfig{}, m)
	ctx := context.Background()

	require.NoError(t, svc.InTx(ctx, func(tx *LedgerTx) error {
		_, err := tx.RecordPending(PendingRequest{UserID: 5, Amount: dec("40"), Reference: "DEP-M"})
		return err
	}))
	require.NoError(t, svc.InTx(ctx, func(tx *LedgerTx) error {
		_, err := tx.SettlePending("DEP-M", SettleOutcome{Success: true})
		return err
	}))
	err := svc.InTx(ctx, func(tx *LedgerTx) error {
		_, err := tx.SettlePending("DEP-MISSING", SettleOutcome{Success: true})
		return err
	})
	require.Error(t, err)

	assert.Equal(t, []string{
		OpPending + ":" + ResultSuccess,
		OpSettle + ":" + ResultSuccess,
		OpSettle + ":" + ResultFailure,
	}, m.results)
}

func TestTransactionHistory_OrderedByCommitTime(t *testing.T) {
	svc, db, _ := newTestService(t, WalletConfig{})
	ctx := context.Background()
	fund(t, svc, 6, "100")

	require.NoError(t, svc.InTx(ctx, func(tx *LedgerTx) error {
		_, err := tx.RecordPending(PendingRequest{UserID: 6, Amount: dec("50"), Reference: "DEP-H"})
		return err
	}))
	_, err := svc.Debit(ctx, DebitRequest{UserID: 6, Amount: dec("30"), Type: models.TransactionTypePurchase, Reference: "PUR-H"})
	require.NoError(t, err)
	require.NoError(t, svc.InTx(ctx, func(tx *LedgerTx) error {
		_, err := tx.SettlePending("DEP-H", SettleOutcome{Success: true})
		return err
	}))

	// Pin the timestamps so the deposit was reserved first but committed last.
	base := time.Now().UTC().Add(-time.Hour)
	pin := func(reference string, created, completed time.Time) {
		require.NoError(t, db.Model(&models.WalletTransaction{}).
			Where("reference = ?", reference).
			UpdateColumns(map[string]interface{}{"created_at": created, "completed_at": completed}).Error)
	}
	var funding models.WalletTransaction
	require.NoError(t, db.Where("user_id = ? AND type = ?", 6, models.TransactionTypeDeposit).
		Where("reference <> ?", "DEP-H").First(&funding).Error)
	pin(funding.Reference, base, base)
	pin("DEP-H", base.Add(time.Minute), base.Add(3*time.Minute))
	pin("PUR-H", base.Add(2*time.Minute), base.Add(2*time.Minute))

	txs, total, err := svc.GetTransactionHistory(ctx, 6, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, txs, 3)
	assert.Equal(t, []string{"DEP-H", "PUR-H", funding.Reference},
		[]string{txs[0].Reference, txs[1].Reference, txs[2].Reference})
	// Each balance_before is the previous entry's balance_after.
	assert.True(t, txs[0].BalanceBefore.Equal(txs[1].BalanceAfter))
	assert.True(t, txs[1].BalanceBefore.Equal(txs[2].BalanceAfter))
}

func TestClaimStalePending_RotatesThroughBacklog(t *testing.T) {
	svc, db, _ := newTestService(t, WalletConfig{})
	ctx := context.Background()

	refs := []string{"DEP-R1", "DEP-R2", "DEP-R3"}
	for i, ref := range refs {
		require.NoError(t, svc.InTx(ctx, func(tx *LedgerTx) error {
			_, err := tx.RecordPending(PendingRequest{UserID: 7, Amount: dec("10"), Reference: ref})
			return err
		}))
		require.NoError(t, db.Model(&models.WalletTransaction{}).
			Where("reference = ?", ref).
			Update("created_at", time.Now().UTC().Add(-time.Duration(60-i*10)*time.Minute)).Error)
	}

	first, err := svc.ClaimStalePending(ctx, models.TransactionTypeDeposit, time.Minute, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "DEP-R1", first[0].Reference)
	assert.Equal(t, "DEP-R2", first[1].Reference)

	second, err := svc.ClaimStalePending(ctx, models.TransactionTypeDeposit, time.Minute, 2)
	require.NoError(t, err)
	require.Len(t, second, 2)
	assert.Equal(t, "DEP-R3", second[0].Reference)
}
