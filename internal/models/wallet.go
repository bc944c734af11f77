package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Wallet holds a user's single balance. Limit columns left at zero fall back
// to the configured defaults.
type Wallet struct {
	ID                 uint            `gorm:"primarykey" json:"id"`
	UserID             uint            `gorm:"uniqueIndex;not null" json:"user_id"`
	Balance            decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"balance"`
	Currency           string          `gorm:"size:3;not null;default:'GHS'" json:"currency"`
	Frozen             bool            `gorm:"not null;default:false" json:"frozen"`
	FreezeReason       string          `gorm:"default:''" json:"freeze_reason,omitempty"`
	DailyLimit         decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"daily_limit"`
	MonthlyLimit       decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"monthly_limit"`
	MaxBalance         decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"max_balance"`
	DailySpendingLimit decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"daily_spending_limit"`
	LastTransactionAt  *time.Time      `json:"last_transaction_at,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

func (w *Wallet) BeforeCreate(tx *gorm.DB) error {
	// A wallet is always born empty.
	w.Balance = decimal.Zero
	return nil
}
