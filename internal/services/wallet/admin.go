package wallet

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "bundlepay/internal/errors"
	"bundlepay/internal/models"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AdminReference builds a time-ordered reference for operator actions.
func AdminReference(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, ulid.Make().String())
}

func (s *service) AdminCredit(ctx context.Context, userID, adminID uint, amount decimal.Decimal, reason string) (*Result, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, apperrors.Validation("reason is required", nil)
	}
	return s.Credit(ctx, CreditRequest{
		UserID:      userID,
		Amount:      amount,
		Type:        models.TransactionTypeDeposit,
		Reference:   AdminReference("ADM"),
		Description: reason,
		Source:      models.SourceAdmin,
		Metadata:    models.JSON{"admin_id": adminID, "reason": reason},
	})
}

func (s *service) AdminDebit(ctx context.Context, userID, adminID uint, amount decimal.Decimal, reason string) (*Result, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, apperrors.Validation("reason is required", nil)
	}
	return s.Debit(ctx, DebitRequest{
		UserID:      userID,
		Amount:      amount,
		Type:        models.TransactionTypeWithdrawal,
		Reference:   AdminReference("ADM"),
		Description: reason,
		Source:      models.SourceAdmin,
		Metadata:    models.JSON{"admin_id": adminID, "reason": reason},
	})
}

// Adjust applies a signed correction. Only an adjustment with AllowNegative
// may take a balance below zero; it is logged at warn level when it does.
func (s *service) Adjust(ctx context.Context, req AdjustRequest) (res *Result, err error) {
	defer s.observe(OpAdjust, time.Now(), &err)

	if strings.TrimSpace(req.Reason) == "" {
		return nil, apperrors.Validation("reason is required", nil)
	}
	meta := models.JSON{
		"admin_id":       req.AdminID,
		"reason":         req.Reason,
		"adjustment":     true,
		"allow_negative": req.AllowNegative,
	}

	err = s.InTx(ctx, func(tx *LedgerTx) error {
		var e error
		if req.Amount.IsPositive() {
			res, e = tx.Credit(CreditRequest{
				UserID:      req.UserID,
				Amount:      req.Amount,
				Type:        models.TransactionTypeDeposit,
				Reference:   AdminReference("ADJ"),
				Description: req.Reason,
				Source:      models.SourceAdmin,
				Metadata:    meta,
			})
			return e
		}
		res, e = tx.Debit(DebitRequest{
			UserID:        req.UserID,
			Amount:        req.Amount.Neg(),
			Type:          models.TransactionTypeWithdrawal,
			Reference:     AdminReference("ADJ"),
			Description:   req.Reason,
			Source:        models.SourceAdmin,
			Metadata:      meta,
			AllowNegative: req.AllowNegative,
		})
		return e
	})
	if err != nil {
		return nil, err
	}
	if res.Balance.IsNegative() {
		zap.L().Warn("admin adjustment left wallet negative",
			zap.Uint("user_id", req.UserID),
			zap.Uint("admin_id", req.AdminID),
			zap.String("balance", res.Balance.StringFixed(2)))
	}
	return res, nil
}

func (s *service) Freeze(ctx context.Context, userID uint, reason string) (err error) {
	defer s.observe(OpFreeze, time.Now(), &err)
	if strings.TrimSpace(reason) == "" {
		return apperrors.Validation("reason is required", nil)
	}
	return s.InTx(ctx, func(tx *LedgerTx) error {
		return tx.SetFrozen(userID, true, reason)
	})
}

func (s *service) Unfreeze(ctx context.Context, userID uint) (err error) {
	defer s.observe(OpFreeze, time.Now(), &err)
	return s.InTx(ctx, func(tx *LedgerTx) error {
		return tx.SetFrozen(userID, false, "")
	})
}
