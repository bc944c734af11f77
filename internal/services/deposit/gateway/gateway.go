// Package gateway adapts external payment providers to the deposit flow.
package gateway

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// Verification statuses
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusPending = "pending"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrIgnoredEvent     = errors.New("webhook event ignored")
	// ErrTransactionNotFound means the provider has no record of the deposit,
	// which is not a final answer: the checkout may never have been created.
	ErrTransactionNotFound = errors.New("transaction not found at gateway")
)

type InitializeRequest struct {
	Reference   string
	Amount      decimal.Decimal
	Currency    string
	Email       string
	CallbackURL string
	Metadata    map[string]interface{}
}

type InitializeResponse struct {
	AuthorizationURL string
	AccessCode       string
	// GatewayRef is the provider's own handle when it differs from Reference.
	GatewayRef string
}

type VerifyRequest struct {
	Reference  string
	GatewayRef string
}

type VerifyResponse struct {
	Status     string
	Amount     decimal.Decimal
	Currency   string
	GatewayRef string
	Message    string
	PaidAt     string
}

// Gateway is implemented by every payment provider.
type Gateway interface {
	Name() string
	Initialize(ctx context.Context, req InitializeRequest) (*InitializeResponse, error)
	Verify(ctx context.Context, req VerifyRequest) (*VerifyResponse, error)
	// ParseWebhook authenticates a provider callback and returns the deposit
	// reference it concerns.
	ParseWebhook(payload []byte, signature string) (string, error)
}

// toMinor converts an amount to the provider's minor unit (pesewas, cents).
func toMinor(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func fromMinor(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}
