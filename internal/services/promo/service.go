// Package promo quotes and redeems promotional discounts. Quoting is free of
// side effects; a usage is recorded only by Confirm, after the discounted
// purchase has committed.
package promo

import (
	"context"
	"errors"
	"time"

	apperrors "bundlepay/internal/errors"
	"bundlepay/internal/models"
	"bundlepay/internal/repositories"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type QuoteRequest struct {
	Code        string
	UserID      uint
	OrderAmount decimal.Decimal
	Networks    []string
}

type Quote struct {
	Code           string          `json:"code"`
	DiscountType   string          `json:"discount_type"`
	OrderAmount    decimal.Decimal `json:"order_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	FinalAmount    decimal.Decimal `json:"final_amount"`
}

type ConfirmRequest struct {
	Code            string
	UserID          uint
	OrderAmount     decimal.Decimal
	DiscountApplied decimal.Decimal
	OrderID         string
}

type CreateRequest struct {
	Code               string
	Description        string
	DiscountType       string
	DiscountValue      decimal.Decimal
	MinOrder           decimal.Decimal
	MaxDiscount        *decimal.Decimal
	UsageLimit         *int
	PerUserLimit       *int
	ValidFrom          time.Time
	ValidUntil         time.Time
	ApplicableNetworks []string
}

type Service struct {
	promos repositories.PromoRepository
	now    func() time.Time
}

func NewService(promos repositories.PromoRepository) *Service {
	return &Service{promos: promos, now: func() time.Time { return time.Now().UTC() }}
}

// Quote prices an order with a promo code without recording anything.
func (s *Service) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	if !req.OrderAmount.IsPositive() {
		return nil, apperrors.Validation("order amount must be greater than zero", nil)
	}
	code := NormalizeCode(req.Code)
	promo, err := s.load(ctx, s.promos, code, false)
	if err != nil {
		return nil, err
	}

	used, err := s.promos.CountUsagesByUser(ctx, promo.ID, req.UserID)
	if err != nil {
		return nil, err
	}
	if err := checkEligible(promo, req.OrderAmount, usage{byUser: used}, s.now()); err != nil {
		return nil, err
	}
	if err := checkNetworks(promo, req.Networks); err != nil {
		return nil, err
	}

	discount := ComputeDiscount(promo, req.OrderAmount)
	return &Quote{
		Code:           promo.Code,
		DiscountType:   promo.DiscountType,
		OrderAmount:    req.OrderAmount,
		DiscountAmount: discount,
		FinalAmount:    req.OrderAmount.Sub(discount),
	}, nil
}

// Confirm records one redemption for an order. The code row is locked while
// the usage limits are re-checked, so concurrent confirmations cannot exceed
// them. Confirming the same order twice fails with DuplicateReference.
func (s *Service) Confirm(ctx context.Context, req ConfirmRequest) (*models.PromoUsage, error) {
	if req.OrderID == "" {
		return nil, apperrors.Validation("order id is required", nil)
	}
	if !req.OrderAmount.IsPositive() || req.DiscountApplied.IsNegative() {
		return nil, apperrors.Validation("invalid order or discount amount", nil)
	}
	code := NormalizeCode(req.Code)

	var recorded *models.PromoUsage
	err := s.promos.ExecuteInTransaction(ctx, func(repo repositories.PromoRepository) error {
		promo, err := s.load(ctx, repo, code, true)
		if err != nil {
			return err
		}
		used, err := repo.CountUsagesByUser(ctx, promo.ID, req.UserID)
		if err != nil {
			return err
		}
		if err := checkEligible(promo, req.OrderAmount, usage{byUser: used}, s.now()); err != nil {
			return err
		}
		if granted := ComputeDiscount(promo, req.OrderAmount); req.DiscountApplied.GreaterThan(granted) {
			return apperrors.Validation("discount exceeds what the promo grants", map[string]interface{}{
				"maxDiscount":     granted.StringFixed(2),
				"discountApplied": req.DiscountApplied.StringFixed(2),
			})
		}

		u := &models.PromoUsage{
			PromoCodeID:     promo.ID,
			OrderID:         req.OrderID,
			UserID:          req.UserID,
			OrderAmount:     req.OrderAmount,
			DiscountApplied: req.DiscountApplied.Round(2),
			UsedAt:          s.now(),
		}
		if err := repo.RecordUsage(ctx, u); err != nil {
			if errors.Is(err, repositories.ErrPromoUsageDup) {
				return apperrors.DuplicateReference(req.OrderID)
			}
			return err
		}
		recorded = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("promo redeemed",
		zap.String("code", code),
		zap.Uint("user_id", req.UserID),
		zap.String("order_id", req.OrderID),
		zap.String("discount", recorded.DiscountApplied.StringFixed(2)))
	return recorded, nil
}

// Create registers a new promo code on behalf of an administrator.
func (s *Service) Create(ctx context.Context, adminID uint, req CreateRequest) (*models.PromoCode, error) {
	code := NormalizeCode(req.Code)
	if code == "" {
		return nil, apperrors.Validation("code is required", nil)
	}
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	promo := &models.PromoCode{
		Code:               code,
		Description:        req.Description,
		DiscountType:       req.DiscountType,
		DiscountValue:      req.DiscountValue,
		MinOrder:           req.MinOrder,
		UsageLimit:         req.UsageLimit,
		PerUserLimit:       1,
		ValidFrom:          req.ValidFrom.UTC(),
		ValidUntil:         req.ValidUntil.UTC(),
		ApplicableNetworks: pq.StringArray(req.ApplicableNetworks),
		Active:             true,
		CreatedBy:          adminID,
	}
	if req.MaxDiscount != nil {
		promo.MaxDiscount = decimal.NewNullDecimal(*req.MaxDiscount)
	}
	if req.PerUserLimit != nil {
		promo.PerUserLimit = *req.PerUserLimit
	}
	if promo.ValidFrom.IsZero() {
		promo.ValidFrom = s.now()
	}

	if err := s.promos.Create(ctx, promo); err != nil {
		if errors.Is(err, repositories.ErrPromoCodeTaken) {
			return nil, &apperrors.DomainError{
				Kind:    apperrors.KindDuplicateReference,
				Code:    "PROMO_CODE_TAKEN",
				Message: "promo code already exists",
				Details: map[string]interface{}{"code": code},
			}
		}
		return nil, err
	}

	zap.L().Info("promo code created", zap.String("code", code), zap.Uint("admin_id", adminID))
	return promo, nil
}

func validateCreate(req CreateRequest) error {
	switch req.DiscountType {
	case models.DiscountTypePercentage:
		if req.DiscountValue.GreaterThan(hundred) {
			return apperrors.Validation("percentage discount cannot exceed 100", nil)
		}
	case models.DiscountTypeFixed:
	default:
		return apperrors.Validation("discount type must be percentage or fixed", nil)
	}
	if !req.DiscountValue.IsPositive() {
		return apperrors.Validation("discount value must be greater than zero", nil)
	}
	if req.MinOrder.IsNegative() {
		return apperrors.Validation("minimum order cannot be negative", nil)
	}
	if req.MaxDiscount != nil && !req.MaxDiscount.IsPositive() {
		return apperrors.Validation("max discount must be greater than zero", nil)
	}
	if req.UsageLimit != nil && *req.UsageLimit < 1 {
		return apperrors.Validation("usage limit must be at least 1", nil)
	}
	if req.PerUserLimit != nil && *req.PerUserLimit < 0 {
		return apperrors.Validation("per-user limit cannot be negative", nil)
	}
	if req.ValidUntil.IsZero() {
		return apperrors.Validation("valid until is required", nil)
	}
	if !req.ValidFrom.IsZero() && !req.ValidUntil.After(req.ValidFrom) {
		return apperrors.Validation("valid until must be after valid from", nil)
	}
	return nil
}

func (s *Service) load(ctx context.Context, repo repositories.PromoRepository, code string, lock bool) (*models.PromoCode, error) {
	if code == "" {
		return nil, apperrors.Validation("promo code is required", nil)
	}
	var (
		promo *models.PromoCode
		err   error
	)
	if lock {
		promo, err = repo.GetByCodeForUpdate(ctx, code)
	} else {
		promo, err = repo.GetByCode(ctx, code)
	}
	if err != nil {
		if errors.Is(err, repositories.ErrPromoNotFound) {
			return nil, apperrors.PromoInvalid(code, "promo code not found")
		}
		return nil, err
	}
	return promo, nil
}
