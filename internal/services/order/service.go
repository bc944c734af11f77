// Package order administers order status. Moving an order into failed
// refunds its owner through the refund coordinator in the same ledger scope.
package order

import (
	"context"
	"errors"

	apperrors "bundlepay/internal/errors"
	"bundlepay/internal/models"
	"bundlepay/internal/repositories"
	"bundlepay/internal/services/refund"
	"bundlepay/internal/services/wallet"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MaxBulkItems bounds a single bulk status update.
const MaxBulkItems = 100

type RefundInfo struct {
	Reference string          `json:"reference"`
	Amount    decimal.Decimal `json:"amount"`
	Balance   decimal.Decimal `json:"balance"`
}

type StatusResult struct {
	OrderID        uint        `json:"order_id"`
	PreviousStatus string      `json:"previous_status"`
	Status         string      `json:"status"`
	Refund         *RefundInfo `json:"refund,omitempty"`
}

// BulkItemResult is the isolated outcome of one order in a bulk update.
type BulkItemResult struct {
	OrderID        uint        `json:"order_id"`
	Success        bool        `json:"success"`
	PreviousStatus string      `json:"previous_status,omitempty"`
	Refund         *RefundInfo `json:"refund,omitempty"`
	Error          string      `json:"error,omitempty"`
	Code           string      `json:"code,omitempty"`
}

type Service struct {
	wallets wallet.Service
	refunds *refund.Coordinator
}

func NewService(wallets wallet.Service, refunds *refund.Coordinator) *Service {
	return &Service{wallets: wallets, refunds: refunds}
}

// UpdateStatus sets the status of one order. The order row is locked for the
// whole scope, so the refund guard sees the status committed by any earlier
// update. If the refund cannot be credited the status change is rolled back.
func (s *Service) UpdateStatus(ctx context.Context, orderID uint, status string) (*StatusResult, error) {
	if !models.ValidOrderStatus(status) {
		return nil, apperrors.Validation("invalid order status", map[string]interface{}{"status": status})
	}

	var result *StatusResult
	err := s.wallets.InTx(ctx, func(tx *wallet.LedgerTx) error {
		orders := repositories.NewOrderRepository(tx.DB())
		order, err := orders.GetByIDForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, repositories.ErrOrderNotFound) {
				return apperrors.NotFound("order", orderID)
			}
			return err
		}

		prev := order.Status
		result = &StatusResult{OrderID: order.ID, PreviousStatus: prev, Status: status}
		if prev == status {
			return nil
		}
		if err := orders.UpdateStatus(ctx, order.ID, status); err != nil {
			return err
		}

		res, err := s.refunds.OnStatusChange(tx, order, prev, status)
		if err != nil {
			return err
		}
		if res != nil {
			result.Refund = &RefundInfo{
				Reference: res.Transaction.Reference,
				Amount:    res.Transaction.Amount,
				Balance:   res.Balance,
			}
		}
		return nil
	})
	if err != nil {
		zap.L().Warn("order status update failed",
			zap.Uint("order_id", orderID),
			zap.String("status", status),
			zap.Error(err))
		return nil, err
	}
	return result, nil
}

// BulkUpdateStatus applies status to each order in its own scope. A failure
// on one order is reported in its item and never affects the others.
func (s *Service) BulkUpdateStatus(ctx context.Context, orderIDs []uint, status string) ([]BulkItemResult, error) {
	if !models.ValidOrderStatus(status) {
		return nil, apperrors.Validation("invalid order status", map[string]interface{}{"status": status})
	}
	if len(orderIDs) == 0 || len(orderIDs) > MaxBulkItems {
		return nil, apperrors.Validation("order ids must contain between 1 and 100 entries", nil)
	}

	results := make([]BulkItemResult, 0, len(orderIDs))
	for _, id := range orderIDs {
		item := BulkItemResult{OrderID: id}
		res, err := s.UpdateStatus(ctx, id, status)
		if err != nil {
			item.Error = err.Error()
			if de, ok := apperrors.As(err); ok {
				item.Code = de.Code
			}
		} else {
			item.Success = true
			item.PreviousStatus = res.PreviousStatus
			item.Refund = res.Refund
		}
		results = append(results, item)
	}
	return results, nil
}
