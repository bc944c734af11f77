package models

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Discount types
const (
	DiscountTypePercentage = "percentage"
	DiscountTypeFixed      = "fixed"
)

type PromoCode struct {
	ID            uint                `gorm:"primarykey" json:"id"`
	Code          string              `gorm:"size:50;uniqueIndex;not null" json:"code"`
	Description   string              `json:"description"`
	DiscountType  string              `gorm:"size:20;not null" json:"discount_type"`
	DiscountValue decimal.Decimal     `gorm:"type:numeric(20,2);not null" json:"discount_value"`
	MinOrder      decimal.Decimal     `gorm:"type:numeric(20,2);not null;default:0" json:"min_order"`
	MaxDiscount   decimal.NullDecimal `gorm:"type:numeric(20,2)" json:"max_discount"`
	// UsageLimit nil means unlimited.
	UsageLimit *int `json:"usage_limit"`
	UsageCount int  `gorm:"not null;default:0" json:"usage_count"`
	// PerUserLimit zero means unlimited.
	PerUserLimit int       `gorm:"not null" json:"per_user_limit"`
	ValidFrom    time.Time `json:"valid_from"`
	ValidUntil   time.Time `json:"valid_until"`
	// ApplicableNetworks empty means every network.
	ApplicableNetworks pq.StringArray `gorm:"type:text" json:"applicable_networks"`
	Active             bool           `gorm:"not null" json:"active"`
	CreatedBy          uint           `json:"created_by"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// PromoUsage is one confirmed use of a promo code. An order can consume a
// given code at most once.
type PromoUsage struct {
	ID              uint            `gorm:"primarykey" json:"id"`
	PromoCodeID     uint            `gorm:"not null;uniqueIndex:idx_promo_usage_order" json:"promo_code_id"`
	OrderID         string          `gorm:"size:100;not null;uniqueIndex:idx_promo_usage_order" json:"order_id"`
	UserID          uint            `gorm:"not null;index" json:"user_id"`
	OrderAmount     decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"order_amount"`
	DiscountApplied decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"discount_applied"`
	UsedAt          time.Time       `json:"used_at"`
}
