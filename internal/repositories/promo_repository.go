package repositories

import (
	"context"
	"errors"
	"fmt"

	"bundlepay/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrPromoNotFound  = errors.New("promo code not found")
	ErrPromoCodeTaken = errors.New("promo code already exists")
	ErrPromoUsageDup  = errors.New("promo already used for order")
)

type PromoRepository interface {
	Create(ctx context.Context, promo *models.PromoCode) error
	GetByCode(ctx context.Context, code string) (*models.PromoCode, error)
	GetByCodeForUpdate(ctx context.Context, code string) (*models.PromoCode, error)
	CountUsagesByUser(ctx context.Context, promoID, userID uint) (int64, error)
	// RecordUsage appends the usage entry and bumps the code's usage count.
	RecordUsage(ctx context.Context, usage *models.PromoUsage) error
	ExecuteInTransaction(ctx context.Context, fn func(PromoRepository) error) error
}

type promoRepository struct {
	db *gorm.DB
}

func NewPromoRepository(db *gorm.DB) PromoRepository {
	return &promoRepository{db: db}
}

func (r *promoRepository) Create(ctx context.Context, promo *models.PromoCode) error {
	if err := r.db.WithContext(ctx).Create(promo).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrPromoCodeTaken
		}
		return fmt.Errorf("failed to create promo code: %w", err)
	}
	return nil
}

func (r *promoRepository) GetByCode(ctx context.Context, code string) (*models.PromoCode, error) {
	return r.get(r.db.WithContext(ctx), code)
}

func (r *promoRepository) GetByCodeForUpdate(ctx context.Context, code string) (*models.PromoCode, error) {
	return r.get(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), code)
}

func (r *promoRepository) get(q *gorm.DB, code string) (*models.PromoCode, error) {
	var promo models.PromoCode
	if err := q.Where("code = ?", code).First(&promo).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPromoNotFound
		}
		return nil, fmt.Errorf("failed to get promo code: %w", err)
	}
	return &promo, nil
}

func (r *promoRepository) CountUsagesByUser(ctx context.Context, promoID, userID uint) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.PromoUsage{}).
		Where("promo_code_id = ? AND user_id = ?", promoID, userID).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count promo usages: %w", err)
	}
	return n, nil
}

func (r *promoRepository) RecordUsage(ctx context.Context, usage *models.PromoUsage) error {
	db := r.db.WithContext(ctx)
	if err := db.Create(usage).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrPromoUsageDup
		}
		return fmt.Errorf("failed to record promo usage: %w", err)
	}
	err := db.Model(&models.PromoCode{}).
		Where("id = ?", usage.PromoCodeID).
		UpdateColumn("usage_count", gorm.Expr("usage_count + ?", 1)).Error
	if err != nil {
		return fmt.Errorf("failed to increment promo usage: %w", err)
	}
	return nil
}

func (r *promoRepository) ExecuteInTransaction(ctx context.Context, fn func(PromoRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&promoRepository{db: tx})
	})
}
