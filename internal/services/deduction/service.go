// Package deduction debits wallets for purchases within the request cycle.
package deduction

import (
	"context"
	"strings"

	apperrors "bundlepay/internal/errors"
	"bundlepay/internal/models"
	"bundlepay/internal/services/wallet"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Request struct {
	UserID      uint
	Amount      decimal.Decimal
	Description string
	OrderID     string
	Metadata    map[string]interface{}
}

type Service struct {
	wallets wallet.Service
}

func NewService(wallets wallet.Service) *Service {
	return &Service{wallets: wallets}
}

// Reference is the ledger reference of the purchase for orderID. One order
// can be paid for at most once.
func Reference(orderID string) string {
	return "PUR-" + orderID
}

// Debit charges a purchase to the wallet. It fails with InsufficientFunds,
// FrozenWallet or LimitExceeded (daily spending) and leaves the balance
// untouched in that case.
func (s *Service) Debit(ctx context.Context, req Request) (*wallet.Result, error) {
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return nil, apperrors.Validation("order id is required", nil)
	}
	description := req.Description
	if description == "" {
		description = "Order payment " + orderID
	}

	res, err := s.wallets.Debit(ctx, wallet.DebitRequest{
		UserID:      req.UserID,
		Amount:      req.Amount,
		Type:        models.TransactionTypePurchase,
		Reference:   Reference(orderID),
		Description: description,
		Source:      models.SourceWallet,
		Metadata:    models.JSON{"order_id": orderID}.Merge(req.Metadata),
	})
	if err != nil {
		zap.L().Info("purchase debit rejected",
			zap.Uint("user_id", req.UserID),
			zap.String("order_id", orderID),
			zap.Error(err))
		return nil, err
	}

	zap.L().Info("purchase debited",
		zap.Uint("user_id", req.UserID),
		zap.String("order_id", orderID),
		zap.String("amount", req.Amount.StringFixed(2)),
		zap.String("balance", res.Balance.StringFixed(2)))
	return res, nil
}
