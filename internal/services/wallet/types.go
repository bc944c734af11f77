package wallet

import (
	"bundlepay/internal/models"
	"bundlepay/internal/repositories/cache"

	"github.com/shopspring/decimal"
)

// WalletConfig holds the defaults applied to wallets whose own limit columns
// are unset.
type WalletConfig struct {
	DefaultCurrency    string
	DailyLimit         decimal.Decimal
	MonthlyLimit       decimal.Decimal
	MaxBalance         decimal.Decimal
	DailySpendingLimit decimal.Decimal
	RecentTransactions int
}

// Limits are the effective limits of one wallet.
type Limits struct {
	Daily         decimal.Decimal `json:"daily"`
	Monthly       decimal.Decimal `json:"monthly"`
	MaxBalance    decimal.Decimal `json:"max_balance"`
	DailySpending decimal.Decimal `json:"daily_spending"`
}

// LimitUsage reports how much of each window is consumed. Deposit totals
// include pending deposits, which reserve their share of the window.
type LimitUsage struct {
	DepositedToday     decimal.Decimal `json:"deposited_today"`
	DepositedThisMonth decimal.Decimal `json:"deposited_this_month"`
	SpentToday         decimal.Decimal `json:"spent_today"`
}

// LimitCheck selects which limits a credit or debit must respect.
type LimitCheck uint8

const (
	CheckDepositWindows LimitCheck = 1 << iota // daily and monthly deposit totals
	CheckMaxBalance
	CheckDailySpending
)

func (c LimitCheck) has(flag LimitCheck) bool { return c&flag != 0 }

type CreditRequest struct {
	UserID      uint
	Amount      decimal.Decimal
	Type        string
	Reference   string
	Description string
	Source      string
	Metadata    models.JSON
}

type DebitRequest struct {
	UserID      uint
	Amount      decimal.Decimal
	Type        string
	Reference   string
	Description string
	Source      string
	Metadata    models.JSON
	// AllowNegative skips the sufficiency check. Only admin adjustments set it.
	AllowNegative bool
}

// PendingRequest reserves a deposit that the gateway has yet to confirm.
type PendingRequest struct {
	UserID      uint
	Amount      decimal.Decimal
	Reference   string
	Description string
	Source      string
	Metadata    models.JSON
}

// SettleOutcome is the gateway verdict applied to a pending deposit.
type SettleOutcome struct {
	Success  bool
	Reason   string
	Metadata models.JSON
}

// Result is returned by every ledger mutation.
type Result struct {
	Balance     decimal.Decimal           `json:"balance"`
	Transaction *models.WalletTransaction `json:"transaction"`
	// AlreadySettled is set when SettlePending found the entry already final.
	AlreadySettled bool `json:"-"`
}

// Overview is the balance view served to wallet owners.
type Overview struct {
	Balance            decimal.Decimal            `json:"balance"`
	Currency           string                     `json:"currency"`
	Frozen             bool                       `json:"frozen"`
	FreezeReason       string                     `json:"freeze_reason,omitempty"`
	Limits             Limits                     `json:"limits"`
	Usage              LimitUsage                 `json:"usage"`
	RecentTransactions []models.WalletTransaction `json:"recent_transactions"`
}

type AdjustRequest struct {
	UserID        uint
	AdminID       uint
	Amount        decimal.Decimal // signed
	Reason        string
	AllowNegative bool
}

func snapshotOf(w *models.Wallet) *cache.Snapshot {
	return &cache.Snapshot{
		UserID:       w.UserID,
		WalletID:     w.ID,
		Balance:      w.Balance,
		Currency:     w.Currency,
		Frozen:       w.Frozen,
		FreezeReason: w.FreezeReason,
	}
}
