package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "bundlepay/internal/errors"
	"bundlepay/internal/models"
	"bundlepay/internal/repositories"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// LedgerTx is one atomic ledger scope. Every mutation locks the owning wallet
// row first, so concurrent scopes on the same wallet are serialised.
type LedgerTx struct {
	ctx         context.Context
	svc         *service
	repo        repositories.WalletRepository
	touched     map[uint]struct{}
	afterCommit []func()
}

func newLedgerTx(ctx context.Context, svc *service, repo repositories.WalletRepository) *LedgerTx {
	return &LedgerTx{
		ctx:     ctx,
		svc:     svc,
		repo:    repo,
		touched: make(map[uint]struct{}),
	}
}

// DB returns the transaction handle for collaborators joining the scope.
func (t *LedgerTx) DB() *gorm.DB {
	return t.repo.DB()
}

// Context returns the context the scope was opened with.
func (t *LedgerTx) Context() context.Context {
	return t.ctx
}

// AfterCommit schedules fn to run once the scope has committed. It never runs
// on rollback.
func (t *LedgerTx) AfterCommit(fn func()) {
	t.afterCommit = append(t.afterCommit, fn)
}

func (t *LedgerTx) committed() {
	for userID := range t.touched {
		if err := t.svc.cache.Invalidate(t.ctx, userID); err != nil {
			// The TTL bounds staleness if an invalidation is lost.
			zap.L().Error("failed to invalidate balance cache",
				zap.Uint("user_id", userID), zap.Error(err))
		}
	}
	for _, fn := range t.afterCommit {
		fn()
	}
}

// Credit adds amount to the wallet and appends a completed entry.
func (t *LedgerTx) Credit(req CreditRequest) (*Result, error) {
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}
	if req.Reference == "" {
		return nil, apperrors.Validation("reference is required", nil)
	}

	w, err := t.lockWallet(req.UserID)
	if err != nil {
		return nil, err
	}
	if w.Frozen {
		return nil, apperrors.Frozen(w.FreezeReason)
	}
	if err := t.ensureReferenceFree(req.Reference); err != nil {
		return nil, err
	}
	if err := t.checkCreditLimits(w, req.Amount, creditChecks(req.Type, req.Source)); err != nil {
		return nil, err
	}

	now := t.svc.now()
	before := w.Balance
	after := before.Add(req.Amount)
	txn := &models.WalletTransaction{
		WalletID:      w.ID,
		UserID:        w.UserID,
		Type:          req.Type,
		Amount:        req.Amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		Reference:     req.Reference,
		Status:        models.TransactionStatusCompleted,
		Description:   req.Description,
		Source:        req.Source,
		Metadata:      req.Metadata,
		CompletedAt:   &now,
	}
	if err := t.apply(w, txn); err != nil {
		return nil, err
	}
	return &Result{Balance: after, Transaction: txn}, nil
}

// Debit removes amount from the wallet and appends a completed entry with a
// negative amount.
func (t *LedgerTx) Debit(req DebitRequest) (*Result, error) {
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}
	if req.Reference == "" {
		return nil, apperrors.Validation("reference is required", nil)
	}

	w, err := t.lockWallet(req.UserID)
	if err != nil {
		return nil, err
	}
	if w.Frozen {
		return nil, apperrors.Frozen(w.FreezeReason)
	}
	if err := t.ensureReferenceFree(req.Reference); err != nil {
		return nil, err
	}
	if !req.AllowNegative && w.Balance.LessThan(req.Amount) {
		return nil, apperrors.InsufficientFunds(w.Balance, req.Amount)
	}
	if debitChecks(req.Type).has(CheckDailySpending) {
		if err := t.checkDailySpending(w, req.Amount); err != nil {
			return nil, err
		}
	}

	now := t.svc.now()
	before := w.Balance
	after := before.Sub(req.Amount)
	txn := &models.WalletTransaction{
		WalletID:      w.ID,
		UserID:        w.UserID,
		Type:          req.Type,
		Amount:        req.Amount.Neg(),
		BalanceBefore: before,
		BalanceAfter:  after,
		Reference:     req.Reference,
		Status:        models.TransactionStatusCompleted,
		Description:   req.Description,
		Source:        req.Source,
		Metadata:      req.Metadata,
		CompletedAt:   &now,
	}
	if err := t.apply(w, txn); err != nil {
		return nil, err
	}
	return &Result{Balance: after, Transaction: txn}, nil
}

// RecordPending appends a pending deposit. The balance is untouched, but the
// amount counts against the deposit windows from now on.
func (t *LedgerTx) RecordPending(req PendingRequest) (_ *models.WalletTransaction, err error) {
	defer t.svc.observe(OpPending, time.Now(), &err)
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}

	w, err := t.lockWallet(req.UserID)
	if err != nil {
		return nil, err
	}
	if w.Frozen {
		return nil, apperrors.Frozen(w.FreezeReason)
	}
	if err := t.ensureReferenceFree(req.Reference); err != nil {
		return nil, err
	}
	if err := t.checkCreditLimits(w, req.Amount, CheckDepositWindows|CheckMaxBalance); err != nil {
		return nil, err
	}

	txn := &models.WalletTransaction{
		WalletID:      w.ID,
		UserID:        w.UserID,
		Type:          models.TransactionTypeDeposit,
		Amount:        req.Amount,
		BalanceBefore: w.Balance,
		BalanceAfter:  w.Balance,
		Reference:     req.Reference,
		Status:        models.TransactionStatusPending,
		Description:   req.Description,
		Source:        req.Source,
		Metadata:      req.Metadata,
	}
	if err := t.createTransaction(txn); err != nil {
		return nil, err
	}
	return txn, nil
}

// AnnotatePending merges metadata into a pending entry.
func (t *LedgerTx) AnnotatePending(reference string, metadata models.JSON) error {
	txn, err := t.transaction(reference)
	if err != nil {
		return err
	}
	if !txn.IsPending() {
		return nil
	}
	txn.Metadata = txn.Metadata.Merge(metadata)
	return t.repo.UpdateTransaction(t.ctx, txn)
}

// SettlePending moves a pending deposit to its final state. A successful
// outcome credits the wallet through the same entry, so a deposit is counted
// in the balance exactly once. Entries that are already final are returned
// unchanged with AlreadySettled set.
func (t *LedgerTx) SettlePending(reference string, outcome SettleOutcome) (_ *Result, err error) {
	defer t.svc.observe(OpSettle, time.Now(), &err)
	txn, err := t.transaction(reference)
	if err != nil {
		return nil, err
	}
	w, err := t.lockWallet(txn.UserID)
	if err != nil {
		return nil, err
	}
	// Re-read under the wallet lock; a concurrent settle may have won.
	if txn, err = t.transaction(reference); err != nil {
		return nil, err
	}

	switch txn.Status {
	case models.TransactionStatusCompleted:
		return &Result{Balance: txn.BalanceAfter, Transaction: txn, AlreadySettled: true}, nil
	case models.TransactionStatusFailed:
		return &Result{Balance: w.Balance, Transaction: txn, AlreadySettled: true}, nil
	}

	meta := txn.Metadata.Merge(outcome.Metadata)
	if !outcome.Success {
		if outcome.Reason != "" {
			meta["failure_reason"] = outcome.Reason
		}
		txn.Status = models.TransactionStatusFailed
		txn.Metadata = meta
		if err := t.repo.UpdateTransaction(t.ctx, txn); err != nil {
			return nil, err
		}
		t.AfterCommit(func() {
			t.svc.metrics.RecordTransaction(txn.Type, txn.Status, txn.Amount.InexactFloat64())
		})
		return &Result{Balance: w.Balance, Transaction: txn}, nil
	}

	if w.Frozen {
		return nil, apperrors.Frozen(w.FreezeReason)
	}

	now := t.svc.now()
	before := w.Balance
	after := before.Add(txn.Amount)
	txn.BalanceBefore = before
	txn.BalanceAfter = after
	txn.Status = models.TransactionStatusCompleted
	txn.CompletedAt = &now
	txn.Metadata = meta
	if err := t.repo.UpdateTransaction(t.ctx, txn); err != nil {
		return nil, err
	}
	if err := t.updateWallet(w, before, after, txn); err != nil {
		return nil, err
	}
	return &Result{Balance: after, Transaction: txn}, nil
}

// SetFrozen freezes or unfreezes a wallet.
func (t *LedgerTx) SetFrozen(userID uint, frozen bool, reason string) error {
	w, err := t.lockWallet(userID)
	if err != nil {
		return err
	}
	w.Frozen = frozen
	w.FreezeReason = ""
	if frozen {
		w.FreezeReason = reason
	}
	if err := t.repo.Update(t.ctx, w); err != nil {
		return err
	}
	t.touched[userID] = struct{}{}
	return nil
}

// lockWallet creates the wallet on first use and reads it under a row lock.
func (t *LedgerTx) lockWallet(userID uint) (*models.Wallet, error) {
	if userID == 0 {
		return nil, apperrors.Validation("user id is required", nil)
	}
	if err := t.repo.EnsureWallet(t.ctx, t.svc.newWallet(userID)); err != nil {
		return nil, err
	}
	return t.repo.GetByUserIDForUpdate(t.ctx, userID)
}

func (t *LedgerTx) transaction(reference string) (*models.WalletTransaction, error) {
	txn, err := t.repo.GetTransactionByReference(t.ctx, reference)
	if err != nil {
		if errors.Is(err, repositories.ErrTransactionNotFound) {
			return nil, apperrors.NotFound("transaction", reference)
		}
		return nil, err
	}
	return txn, nil
}

func (t *LedgerTx) ensureReferenceFree(reference string) error {
	_, err := t.repo.GetTransactionByReference(t.ctx, reference)
	switch {
	case err == nil:
		return apperrors.DuplicateReference(reference)
	case errors.Is(err, repositories.ErrTransactionNotFound):
		return nil
	default:
		return err
	}
}

func (t *LedgerTx) createTransaction(txn *models.WalletTransaction) error {
	if err := t.repo.CreateTransaction(t.ctx, txn); err != nil {
		if errors.Is(err, repositories.ErrDuplicateKey) {
			return apperrors.DuplicateReference(txn.Reference)
		}
		return err
	}
	return nil
}

// apply appends a completed entry and moves the wallet to its balanceAfter.
func (t *LedgerTx) apply(w *models.Wallet, txn *models.WalletTransaction) error {
	if err := t.createTransaction(txn); err != nil {
		return err
	}
	return t.updateWallet(w, txn.BalanceBefore, txn.BalanceAfter, txn)
}

func (t *LedgerTx) updateWallet(w *models.Wallet, before, after decimal.Decimal, txn *models.WalletTransaction) error {
	now := t.svc.now()
	w.Balance = after
	w.LastTransactionAt = &now
	if err := t.repo.Update(t.ctx, w); err != nil {
		return fmt.Errorf("failed to persist balance: %w", err)
	}
	t.touched[w.UserID] = struct{}{}

	metrics := t.svc.metrics
	t.AfterCommit(func() {
		metrics.RecordBalanceChange(w.UserID, before.InexactFloat64(), after.InexactFloat64())
		metrics.RecordTransaction(txn.Type, txn.Status, txn.Amount.InexactFloat64())
	})
	return nil
}

// creditChecks picks the limits a credit must respect. Gateway deposits are
// bound by the deposit windows, refunds return money already counted, and
// every other credit is only capped by the maximum balance.
func creditChecks(txType, source string) LimitCheck {
	switch {
	case txType == models.TransactionTypeRefund:
		return 0
	case txType == models.TransactionTypeDeposit && source != models.SourceAdmin:
		return CheckDepositWindows | CheckMaxBalance
	default:
		return CheckMaxBalance
	}
}

// debitChecks picks the limits a debit must respect. Only purchases count
// against the daily spending limit.
func debitChecks(txType string) LimitCheck {
	if txType == models.TransactionTypePurchase {
		return CheckDailySpending
	}
	return 0
}

func (t *LedgerTx) checkCreditLimits(w *models.Wallet, amount decimal.Decimal, checks LimitCheck) error {
	limits := t.svc.limitsOf(w)

	if checks.has(CheckMaxBalance) {
		if w.Balance.Add(amount).GreaterThan(limits.MaxBalance) {
			return apperrors.LimitExceeded(apperrors.LimitMaxBalance, limits.MaxBalance, w.Balance, amount)
		}
	}
	if !checks.has(CheckDepositWindows) {
		return nil
	}

	usage, err := usageOf(t.ctx, t.repo, w, t.svc.now())
	if err != nil {
		return err
	}
	if usage.DepositedToday.Add(amount).GreaterThan(limits.Daily) {
		return apperrors.LimitExceeded(apperrors.LimitDaily, limits.Daily, usage.DepositedToday, amount)
	}
	if usage.DepositedThisMonth.Add(amount).GreaterThan(limits.Monthly) {
		return apperrors.LimitExceeded(apperrors.LimitMonthly, limits.Monthly, usage.DepositedThisMonth, amount)
	}
	return nil
}

func (t *LedgerTx) checkDailySpending(w *models.Wallet, amount decimal.Decimal) error {
	limits := t.svc.limitsOf(w)
	usage, err := usageOf(t.ctx, t.repo, w, t.svc.now())
	if err != nil {
		return err
	}
	if usage.SpentToday.Add(amount).GreaterThan(limits.DailySpending) {
		return apperrors.LimitExceeded(apperrors.LimitDailySpending, limits.DailySpending, usage.SpentToday, amount)
	}
	return nil
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperrors.Validation("amount must be greater than zero",
			map[string]interface{}{"amount": amount.String()})
	}
	if !amount.Equal(amount.Round(2)) {
		return apperrors.Validation("amount must have at most two decimal places",
			map[string]interface{}{"amount": amount.String()})
	}
	return nil
}
