package models

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Order statuses
const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusCompleted  = "completed"
	OrderStatusFailed     = "failed"
	OrderStatusCancelled  = "cancelled"
)

// ValidOrderStatus reports whether status is a known order status.
func ValidOrderStatus(status string) bool {
	switch status {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusCompleted, OrderStatusFailed, OrderStatusCancelled:
		return true
	}
	return false
}

// Order is written by the purchase flow; the ledger reads its price and owner
// and drives its status.
type Order struct {
	ID          uint            `gorm:"primarykey" json:"id"`
	OrderNumber string          `gorm:"size:100;uniqueIndex;not null" json:"order_number"`
	UserID      uint            `gorm:"index;not null" json:"user_id"`
	Price       decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"price"`
	Status      string          `gorm:"size:20;not null;default:'pending'" json:"status"`
	Networks    pq.StringArray  `gorm:"type:text" json:"networks"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
