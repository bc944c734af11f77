package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction types
const (
	TransactionTypeDeposit    = "deposit"
	TransactionTypePurchase   = "purchase"
	TransactionTypeRefund     = "refund"
	TransactionTypeWithdrawal = "withdrawal"
)

// Transaction statuses
const (
	TransactionStatusPending   = "pending"
	TransactionStatusCompleted = "completed"
	TransactionStatusFailed    = "failed"
)

// Transaction sources
const (
	SourcePaystack = "paystack"
	SourceStripe   = "stripe"
	SourceAdmin    = "admin"
	SourceSystem   = "system"
	SourceWallet   = "wallet"
)

// WalletTransaction is an append-only ledger entry. Amount is signed: credits
// are positive, debits negative. A completed entry satisfies
// BalanceAfter = BalanceBefore + Amount; pending and failed entries leave the
// balance untouched.
type WalletTransaction struct {
	ID            uint            `gorm:"primarykey" json:"id"`
	WalletID      uint            `gorm:"index;not null" json:"wallet_id"`
	UserID        uint            `gorm:"index;not null" json:"user_id"`
	Type          string          `gorm:"size:20;not null;index" json:"type"`
	Amount        decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"amount"`
	BalanceBefore decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"balance_before"`
	BalanceAfter  decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"balance_after"`
	Reference     string          `gorm:"size:100;uniqueIndex;not null" json:"reference"`
	Status        string          `gorm:"size:20;not null;default:'pending';index" json:"status"`
	Description   string          `json:"description"`
	Source        string          `gorm:"size:20" json:"source"`
	Metadata      JSON            `gorm:"type:jsonb" json:"metadata,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	LastCheckedAt *time.Time      `gorm:"index" json:"-"`
	CreatedAt     time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (t *WalletTransaction) IsPending() bool   { return t.Status == TransactionStatusPending }
func (t *WalletTransaction) IsCompleted() bool { return t.Status == TransactionStatusCompleted }
func (t *WalletTransaction) IsFailed() bool    { return t.Status == TransactionStatusFailed }
