package deposit

import (
	"time"

	"github.com/shopspring/decimal"
)

// Metadata keys written on deposit entries.
const (
	MetaGatewayRef       = "gateway_ref"
	MetaAccessCode       = "access_code"
	MetaAuthorizationURL = "authorization_url"
	MetaEmail            = "email"
	MetaGatewayMessage   = "gateway_message"
	MetaPaidAmount       = "paid_amount"
	MetaPaidAt           = "paid_at"
)

// ReasonExpired is recorded on deposits that outlived PendingExpiry without a
// final gateway answer.
const ReasonExpired = "expired"

type Config struct {
	Currency       string
	MinAmount      decimal.Decimal
	MaxAmount      decimal.Decimal
	CallbackURL    string
	GatewayTimeout time.Duration
	// PendingExpiry is the age after which a deposit the gateway still
	// reports as unpaid is settled failed, releasing its limit reservation.
	PendingExpiry time.Duration
}

type InitiateRequest struct {
	UserID   uint
	Amount   decimal.Decimal
	Email    string
	Metadata map[string]interface{}
}

type InitiateResult struct {
	Reference        string          `json:"reference"`
	AuthorizationURL string          `json:"authorization_url"`
	AccessCode       string          `json:"access_code"`
	Amount           decimal.Decimal `json:"amount"`
	Status           string          `json:"status"`
}

type VerifyResult struct {
	Reference string           `json:"reference"`
	Status    string           `json:"status"`
	Amount    decimal.Decimal  `json:"amount"`
	Balance   *decimal.Decimal `json:"new_balance,omitempty"`
	Message   string           `json:"message,omitempty"`
}

// ReconcileReport summarises one reconciliation pass.
type ReconcileReport struct {
	Checked      int `json:"checked"`
	Completed    int `json:"completed"`
	Failed       int `json:"failed"`
	StillPending int `json:"still_pending"`
	Errors       int `json:"errors"`
}
