// Package refund credits order owners when their orders fail.
package refund

import (
	"fmt"

	"bundlepay/internal/models"
	"bundlepay/internal/services/notification"
	"bundlepay/internal/services/wallet"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// Coordinator refunds an order exactly once per transition into failed. It
// runs inside the ledger scope that changes the order status, so the status
// change and the refund commit or roll back together.
type Coordinator struct {
	notifier notification.Notifier
}

func NewCoordinator(notifier notification.Notifier) *Coordinator {
	return &Coordinator{notifier: notifier}
}

// Reference derives a unique refund reference from the order id and the
// current time.
func Reference(orderID uint) string {
	return fmt.Sprintf("REF-%d-%s", orderID, ulid.Make().String())
}

// ShouldRefund reports whether moving from prev to next triggers a refund.
// Re-asserting failed on an order that already failed never does.
func ShouldRefund(prev, next string) bool {
	return next == models.OrderStatusFailed && prev != models.OrderStatusFailed
}

// OnStatusChange credits the order price back to its owner when the
// transition calls for it. It returns nil when no refund is due.
func (c *Coordinator) OnStatusChange(tx *wallet.LedgerTx, order *models.Order, prev, next string) (*wallet.Result, error) {
	if !ShouldRefund(prev, next) {
		return nil, nil
	}
	if !order.Price.IsPositive() {
		zap.L().Warn("failed order has no price to refund", zap.Uint("order_id", order.ID))
		return nil, nil
	}

	res, err := tx.Credit(wallet.CreditRequest{
		UserID:      order.UserID,
		Amount:      order.Price,
		Type:        models.TransactionTypeRefund,
		Reference:   Reference(order.ID),
		Description: "Refund for failed order " + order.OrderNumber,
		Source:      models.SourceSystem,
		Metadata: models.JSON{
			"order_id":        order.ID,
			"order_number":    order.OrderNumber,
			"previous_status": prev,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("refund for order %d: %w", order.ID, err)
	}

	txn := res.Transaction
	ctx := tx.Context()
	tx.AfterCommit(func() {
		zap.L().Info("order refunded",
			zap.Uint("order_id", order.ID),
			zap.Uint("user_id", order.UserID),
			zap.String("reference", txn.Reference),
			zap.String("amount", txn.Amount.StringFixed(2)))
		evt := notification.NewEvent(notification.SubjectRefundIssued, txn)
		evt.OrderID = order.ID
		notification.Send(ctx, c.notifier, evt)
	})
	return res, nil
}
