// Package notification publishes wallet events for the notification service.
// Publishing is best effort and never affects the ledger write that caused it.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bundlepay/internal/models"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Event subjects
const (
	SubjectDepositCompleted = "wallet.deposit.completed"
	SubjectDepositFailed    = "wallet.deposit.failed"
	SubjectRefundIssued     = "wallet.refund.issued"
)

// Event is the payload published for each subject.
type Event struct {
	Subject      string    `json:"subject"`
	UserID       uint      `json:"user_id"`
	Reference    string    `json:"reference"`
	Type         string    `json:"type"`
	Amount       string    `json:"amount"`
	BalanceAfter string    `json:"balance_after"`
	OrderID      uint      `json:"order_id,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// Notifier is implemented by the log and NATS publishers.
type Notifier interface {
	Publish(ctx context.Context, evt Event) error
}

// NewEvent builds an event from a ledger entry.
func NewEvent(subject string, tx *models.WalletTransaction) Event {
	return Event{
		Subject:      subject,
		UserID:       tx.UserID,
		Reference:    tx.Reference,
		Type:         tx.Type,
		Amount:       tx.Amount.StringFixed(2),
		BalanceAfter: tx.BalanceAfter.StringFixed(2),
		OccurredAt:   time.Now().UTC(),
	}
}

// Send publishes evt and only logs a failure.
func Send(ctx context.Context, n Notifier, evt Event) {
	if n == nil {
		return
	}
	if err := n.Publish(ctx, evt); err != nil {
		zap.L().Warn("failed to publish wallet event",
			zap.String("subject", evt.Subject),
			zap.String("reference", evt.Reference),
			zap.Error(err))
	}
}

// LogNotifier writes events to the log. Used when no broker is configured.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier { return &LogNotifier{} }

func (LogNotifier) Publish(_ context.Context, evt Event) error {
	zap.L().Info("wallet event",
		zap.String("subject", evt.Subject),
		zap.Uint("user_id", evt.UserID),
		zap.String("reference", evt.Reference),
		zap.String("amount", evt.Amount))
	return nil
}

// NATSNotifier publishes events as JSON on NATS subjects.
type NATSNotifier struct {
	conn *nats.Conn
}

// ConnectNATS dials the broker with reconnects enabled.
func ConnectNATS(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.Timeout(5*time.Second),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			zap.L().Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			zap.L().Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return nc, nil
}

func NewNATSNotifier(conn *nats.Conn) *NATSNotifier {
	return &NATSNotifier{conn: conn}
}

func (n *NATSNotifier) Publish(_ context.Context, evt Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return n.conn.Publish(evt.Subject, data)
}
