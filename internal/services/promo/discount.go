package promo

import (
	"strings"
	"time"

	apperrors "bundlepay/internal/errors"
	"bundlepay/internal/models"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ComputeDiscount returns the discount promo grants on orderAmount. Percentage
// discounts are capped at MaxDiscount, and no discount exceeds the order.
func ComputeDiscount(promo *models.PromoCode, orderAmount decimal.Decimal) decimal.Decimal {
	var discount decimal.Decimal
	switch promo.DiscountType {
	case models.DiscountTypePercentage:
		discount = orderAmount.Mul(promo.DiscountValue).Div(hundred)
		if promo.MaxDiscount.Valid && discount.GreaterThan(promo.MaxDiscount.Decimal) {
			discount = promo.MaxDiscount.Decimal
		}
	case models.DiscountTypeFixed:
		discount = promo.DiscountValue
	}
	if discount.GreaterThan(orderAmount) {
		discount = orderAmount
	}
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	return discount.Round(2)
}

// usage is what eligibility needs to know about past redemptions.
type usage struct {
	byUser int64
}

// checkEligible applies every rule that does not depend on the order's
// networks, in the order a customer would want them reported.
func checkEligible(promo *models.PromoCode, orderAmount decimal.Decimal, u usage, now time.Time) error {
	if !promo.Active {
		return apperrors.PromoInvalid(promo.Code, "promo code is not active")
	}
	if !promo.ValidFrom.IsZero() && now.Before(promo.ValidFrom) {
		return apperrors.PromoInvalid(promo.Code, "promo code is not yet valid")
	}
	if !promo.ValidUntil.IsZero() && now.After(promo.ValidUntil) {
		return apperrors.PromoInvalid(promo.Code, "promo code has expired")
	}
	if promo.UsageLimit != nil && promo.UsageCount >= *promo.UsageLimit {
		return apperrors.PromoExhausted(promo.Code, "promo code usage limit reached")
	}
	if promo.PerUserLimit > 0 && u.byUser >= int64(promo.PerUserLimit) {
		err := apperrors.PromoExhausted(promo.Code, "you have already used this promo code")
		err.Details["perUserLimit"] = promo.PerUserLimit
		return err
	}
	if orderAmount.LessThan(promo.MinOrder) {
		err := apperrors.PromoInvalid(promo.Code, "order amount is below the promo minimum")
		err.Details["minOrder"] = promo.MinOrder.StringFixed(2)
		return err
	}
	return nil
}

// checkNetworks requires at least one order network to be covered when the
// promo is restricted to specific networks.
func checkNetworks(promo *models.PromoCode, networks []string) error {
	if len(promo.ApplicableNetworks) == 0 {
		return nil
	}
	for _, want := range promo.ApplicableNetworks {
		for _, got := range networks {
			if strings.EqualFold(strings.TrimSpace(want), strings.TrimSpace(got)) {
				return nil
			}
		}
	}
	err := apperrors.PromoInvalid(promo.Code, "promo code does not apply to these networks")
	err.Details["applicableNetworks"] = []string(promo.ApplicableNetworks)
	return err
}

// NormalizeCode trims and upper-cases a promo code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
