package promo

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	apperrors "bundlepay/internal/errors"
	"bundlepay/internal/models"
	"bundlepay/internal/repositories"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func intPtr(i int) *int { return &i }

func newTestService(t *testing.T) (*Service, repositories.PromoRepository) {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := repositories.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", name), 1)
	require.NoError(t, err)
	require.NoError(t, repositories.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	repo := repositories.NewPromoRepository(db)
	return NewService(repo), repo
}

func newPromo(code string) *models.PromoCode {
	now := time.Now().UTC()
	return &models.PromoCode{
		Code:          code,
		DiscountType:  models.DiscountTypePercentage,
		DiscountValue: dec("10"),
		MaxDiscount:   decimal.NewNullDecimal(dec("5")),
		PerUserLimit:  1,
		ValidFrom:     now.Add(-time.Hour),
		ValidUntil:    now.Add(24 * time.Hour),
		Active:        true,
	}
}

func TestComputeDiscount(t *testing.T) {
	tests := []struct {
		name   string
		promo  models.PromoCode
		amount string
		want   string
	}{
		{
			name:   "percentage capped at max discount",
			promo:  models.PromoCode{DiscountType: models.DiscountTypePercentage, DiscountValue: dec("10"), MaxDiscount: decimal.NewNullDecimal(dec("5"))},
			amount: "100",
			want:   "5",
		},
		{
			name:   "percentage under cap",
			promo:  models.PromoCode{DiscountType: models.DiscountTypePercentage, DiscountValue: dec("10"), MaxDiscount: decimal.NewNullDecimal(dec("50"))},
			amount: "100",
			want:   "10",
		},
		{
			name:   "percentage without cap rounds to pesewas",
			promo:  models.PromoCode{DiscountType: models.DiscountTypePercentage, DiscountValue: dec("12.5")},
			amount: "33.33",
			want:   "4.17",
		},
		{
			name:   "fixed",
			promo:  models.PromoCode{DiscountType: models.DiscountTypeFixed, DiscountValue: dec("3")},
			amount: "20",
			want:   "3",
		},
		{
			name:   "fixed clamped to order amount",
			promo:  models.PromoCode{DiscountType: models.DiscountTypeFixed, DiscountValue: dec("30")},
			amount: "20",
			want:   "20",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeDiscount(&tt.promo, dec(tt.amount))
			assert.True(t, dec(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestQuote_CappedPercentage(t *testing.T) {
	svc, repo := newTestService(t)
	require.NoError(t, repo.Create(context.Background(), newPromo("SAVE10")))

	q, err := svc.Quote(context.Background(), QuoteRequest{Code: " save10 ", UserID: 1, OrderAmount: dec("100")})
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", q.Code)
	assert.True(t, dec("5").Equal(q.DiscountAmount))
	assert.True(t, dec("95").Equal(q.FinalAmount))

	// Quoting never consumes usage.
	_, err = svc.Quote(context.Background(), QuoteRequest{Code: "SAVE10", UserID: 1, OrderAmount: dec("100")})
	require.NoError(t, err)
	stored, err := repo.GetByCode(context.Background(), "SAVE10")
	require.NoError(t, err)
	assert.Equal(t, 0, stored.UsageCount)
}

func TestQuote_Rejections(t *testing.T) {
	now := time.Now().UTC()
	tests := []struct {
		name     string
		mutate   func(p *models.PromoCode)
		amount   string
		networks []string
		kind     apperrors.Kind
	}{
		{name: "inactive", mutate: func(p *models.PromoCode) { p.Active = false }, kind: apperrors.KindPromoInvalid},
		{name: "not yet valid", mutate: func(p *models.PromoCode) { p.ValidFrom = now.Add(time.Hour) }, kind: apperrors.KindPromoInvalid},
		{name: "expired", mutate: func(p *models.PromoCode) { p.ValidUntil = now.Add(-time.Minute) }, kind: apperrors.KindPromoInvalid},
		{
			name: "global limit reached",
			mutate: func(p *models.PromoCode) {
				p.UsageLimit = intPtr(3)
				p.UsageCount = 3
			},
			kind: apperrors.KindPromoExhausted,
		},
		{name: "below minimum order", mutate: func(p *models.PromoCode) { p.MinOrder = dec("50") }, amount: "49.99", kind: apperrors.KindPromoInvalid},
		{
			name:     "network not covered",
			mutate:   func(p *models.PromoCode) { p.ApplicableNetworks = pq.StringArray{"MTN", "Telecel"} },
			networks: []string{"AirtelTigo"},
			kind:     apperrors.KindPromoInvalid,
		},
		{name: "non-positive order", amount: "0", kind: apperrors.KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo := newTestService(t)
			p := newPromo("CODE")
			if tt.mutate != nil {
				tt.mutate(p)
			}
			require.NoError(t, repo.Create(context.Background(), p))

			amount := tt.amount
			if amount == "" {
				amount = "100"
			}
			_, err := svc.Quote(context.Background(), QuoteRequest{Code: "CODE", UserID: 1, OrderAmount: dec(amount), Networks: tt.networks})
			assert.True(t, apperrors.IsKind(err, tt.kind), "got %v", err)
		})
	}
}

func TestQuote_UnknownCode(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Quote(context.Background(), QuoteRequest{Code: "NOPE", UserID: 1, OrderAmount: dec("10")})
	assert.ErrorIs(t, err, apperrors.ErrPromoInvalid)
}

func TestQuote_NetworkMatchIgnoresCase(t *testing.T) {
	svc, repo := newTestService(t)
	p := newPromo("MTNONLY")
	p.ApplicableNetworks = pq.StringArray{"MTN"}
	require.NoError(t, repo.Create(context.Background(), p))

	_, err := svc.Quote(context.Background(), QuoteRequest{Code: "MTNONLY", UserID: 1, OrderAmount: dec("20"), Networks: []string{"mtn"}})
	assert.NoError(t, err)
}

func TestConfirm(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	p := newPromo("SAVE10")
	p.UsageLimit = intPtr(2)
	require.NoError(t, repo.Create(ctx, p))

	u, err := svc.Confirm(ctx, ConfirmRequest{Code: "save10", UserID: 1, OrderAmount: dec("100"), DiscountApplied: dec("5"), OrderID: "ORD-1"})
	require.NoError(t, err)
	assert.Equal(t, p.ID, u.PromoCodeID)

	stored, err := repo.GetByCode(ctx, "SAVE10")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.UsageCount)

	// Per-user limit of one.
	_, err = svc.Confirm(ctx, ConfirmRequest{Code: "SAVE10", UserID: 1, OrderAmount: dec("100"), DiscountApplied: dec("5"), OrderID: "ORD-2"})
	assert.ErrorIs(t, err, apperrors.ErrPromoExhausted)

	// Same order confirmed again.
	_, err = svc.Confirm(ctx, ConfirmRequest{Code: "SAVE10", UserID: 2, OrderAmount: dec("100"), DiscountApplied: dec("5"), OrderID: "ORD-1"})
	assert.ErrorIs(t, err, apperrors.ErrDuplicateReference)

	_, err = svc.Confirm(ctx, ConfirmRequest{Code: "SAVE10", UserID: 3, OrderAmount: dec("100"), DiscountApplied: dec("5"), OrderID: "ORD-3"})
	require.NoError(t, err)

	// Global limit of two.
	_, err = svc.Confirm(ctx, ConfirmRequest{Code: "SAVE10", UserID: 4, OrderAmount: dec("100"), DiscountApplied: dec("5"), OrderID: "ORD-4"})
	assert.ErrorIs(t, err, apperrors.ErrPromoExhausted)

	stored, err = repo.GetByCode(ctx, "SAVE10")
	require.NoError(t, err)
	assert.Equal(t, 2, stored.UsageCount)
}

func TestConfirm_RejectsInflatedDiscount(t *testing.T) {
	svc, repo := newTestService(t)
	require.NoError(t, repo.Create(context.Background(), newPromo("SAVE10")))

	_, err := svc.Confirm(context.Background(), ConfirmRequest{Code: "SAVE10", UserID: 1, OrderAmount: dec("100"), DiscountApplied: dec("10"), OrderID: "ORD-1"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestCreate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	until := time.Now().Add(48 * time.Hour)

	p, err := svc.Create(ctx, 9, CreateRequest{
		Code:          " weekend ",
		DiscountType:  models.DiscountTypeFixed,
		DiscountValue: dec("2"),
		PerUserLimit:  intPtr(0),
		ValidUntil:    until,
	})
	require.NoError(t, err)
	assert.Equal(t, "WEEKEND", p.Code)
	assert.Equal(t, 0, p.PerUserLimit)
	assert.True(t, p.Active)
	assert.Equal(t, uint(9), p.CreatedBy)

	_, err = svc.Create(ctx, 9, CreateRequest{Code: "Weekend", DiscountType: models.DiscountTypeFixed, DiscountValue: dec("2"), ValidUntil: until})
	assert.ErrorIs(t, err, apperrors.ErrDuplicateReference)
}

func TestCreate_Validation(t *testing.T) {
	until := time.Now().Add(time.Hour)
	tests := []struct {
		name string
		req  CreateRequest
	}{
		{name: "missing code", req: CreateRequest{DiscountType: models.DiscountTypeFixed, DiscountValue: dec("1"), ValidUntil: until}},
		{name: "unknown type", req: CreateRequest{Code: "A", DiscountType: "bogo", DiscountValue: dec("1"), ValidUntil: until}},
		{name: "percentage over 100", req: CreateRequest{Code: "A", DiscountType: models.DiscountTypePercentage, DiscountValue: dec("101"), ValidUntil: until}},
		{name: "zero value", req: CreateRequest{Code: "A", DiscountType: models.DiscountTypeFixed, DiscountValue: dec("0"), ValidUntil: until}},
		{name: "missing expiry", req: CreateRequest{Code: "A", DiscountType: models.DiscountTypeFixed, DiscountValue: dec("1")}},
		{name: "inverted window", req: CreateRequest{Code: "A", DiscountType: models.DiscountTypeFixed, DiscountValue: dec("1"), ValidFrom: until, ValidUntil: until.Add(-time.Minute)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(t)
			_, err := svc.Create(context.Background(), 1, tt.req)
			assert.ErrorIs(t, err, apperrors.ErrValidation)
		})
	}
}
