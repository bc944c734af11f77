package handlers

import (
	"time"

	"bundlepay/internal/services/order"
	"bundlepay/internal/services/promo"
	"bundlepay/internal/services/wallet"
	"bundlepay/internal/utils/response"
	"bundlepay/internal/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type AdminHandler struct {
	wallets  wallet.Service
	orders   *order.Service
	promos   *promo.Service
	validate *validation.Validator
}

func NewAdminHandler(wallets wallet.Service, orders *order.Service, promos *promo.Service, validate *validation.Validator) *AdminHandler {
	return &AdminHandler{wallets: wallets, orders: orders, promos: promos, validate: validate}
}

type addMoneyBody struct {
	Amount decimal.Decimal `json:"amount" validate:"gt=0"`
	Reason string          `json:"reason" validate:"max=255"`
}

type deductMoneyBody struct {
	Amount decimal.Decimal `json:"amount" validate:"gt=0"`
	Reason string          `json:"reason" validate:"required,max=255"`
}

type adjustBody struct {
	Amount        decimal.Decimal `json:"amount"`
	Reason        string          `json:"reason" validate:"required,max=255"`
	AllowNegative bool            `json:"allow_negative"`
}

type freezeBody struct {
	Reason string `json:"reason" validate:"required,max=255"`
}

type orderStatusBody struct {
	Status string `json:"status" validate:"required,oneof=pending processing completed failed cancelled"`
}

type bulkStatusBody struct {
	OrderIDs []uint `json:"order_ids" validate:"required,min=1,max=100"`
	Status   string `json:"status" validate:"required,oneof=pending processing completed failed cancelled"`
}

type createPromoBody struct {
	Code               string           `json:"code" validate:"required,max=50"`
	Description        string           `json:"description" validate:"max=255"`
	DiscountType       string           `json:"discount_type" validate:"required,oneof=percentage fixed"`
	DiscountValue      decimal.Decimal  `json:"discount_value" validate:"gt=0"`
	MinOrder           decimal.Decimal  `json:"min_order" validate:"gte=0"`
	MaxDiscount        *decimal.Decimal `json:"max_discount"`
	UsageLimit         *int             `json:"usage_limit"`
	PerUserLimit       *int             `json:"per_user_limit"`
	ValidFrom          time.Time        `json:"valid_from"`
	ValidUntil         time.Time        `json:"valid_until" validate:"required"`
	ApplicableNetworks []string         `json:"applicable_networks"`
}

func (h *AdminHandler) AddMoney(c *fiber.Ctx) error {
	admin, err := claimsOf(c)
	if err != nil {
		return response.Unauthorized(c)
	}
	userID, err := idParam(c, "id")
	if err != nil {
		return response.DomainError(c, err)
	}
	var body addMoneyBody
	if err := bind(c, h.validate, &body); err != nil {
		return response.DomainError(c, err)
	}
	reason := body.Reason
	if reason == "" {
		reason = "Admin top-up"
	}

	res, err := h.wallets.AdminCredit(c.UserContext(), userID, admin.UserID, body.Amount, reason)
	if err != nil {
		return response.DomainError(c, err)
	}
	return response.Success(c, "Money added to wallet", res)
}

func (h *AdminHandler) DeductMoney(c *fiber.Ctx) error {
	admin, err := claimsOf(c)
	if err != nil {
		return response.Unauthorized(c)
	}
	userID, err := idParam(c, "id")
	if err != nil {
		return response.DomainError(c, err)
	}
	var body deductMoneyBody
	if err := bind(c, h.validate, &body); err != nil {
		return response.DomainError(c, err)
	}

	res, err := h.wallets.AdminDebit(c.UserContext(), userID, admin.UserID, body.Amount, body.Reason)
	if err != nil {
		return response.DomainError(c, err)
	}
	return response.Success(c, "Money deducted from wallet", res)
}

// Adjust applies a signed corrective entry. Only this endpoint may take a
// balance below zero, and only when allow_negative is set.
func (h *AdminHandler) Adjust(c *fiber.Ctx) error {
	admin, err := claimsOf(c)
	if err != nil {
		return response.Unauthorized(c)
	}
	userID, err := idParam(c, "id")
	if err != nil {
		return response.DomainError(c, err)
	}
	var body adjustBody
	if err := bind(c, h.validate, &body); err != nil {
		return response.DomainError(c, err)
	}

	res, err := h.wallets.Adjust(c.UserContext(), wallet.AdjustRequest{
		UserID:        userID,
		AdminID:       admin.UserID,
		Amount:        body.Amount,
		Reason:        body.Reason,
		AllowNegative: body.AllowNegative,
	})
	if err != nil {
		return response.DomainError(c, err)
	}
	return response.Success(c, "Wallet adjusted", res)
}

func (h *AdminHandler) Freeze(c *fiber.Ctx) error {
	userID, err := idParam(c, "id")
	if err != nil {
		return response.DomainError(c, err)
	}
	var body freezeBody
	if err := bind(c, h.validate, &body); err != nil {
		return response.DomainError(c, err)
	}
	if err := h.wallets.Freeze(c.UserContext(), userID, body.Reason); err != nil {
		return response.DomainError(c, err)
	}
	return response.Success(c, "Wallet frozen", fiber.Map{"user_id": userID, "reason": body.Reason})
}

func (h *AdminHandler) Unfreeze(c *fiber.Ctx) error {
	userID, err := idParam(c, "id")
	if err != nil {
		return response.DomainError(c, err)
	}
	if err := h.wallets.Unfreeze(c.UserContext(), userID); err != nil {
		return response.DomainError(c, err)
	}
	return response.Success(c, "Wallet unfrozen", fiber.Map{"user_id": userID})
}

func (h *AdminHandler) UpdateOrderStatus(c *fiber.Ctx) error {
	orderID, err := idParam(c, "id")
	if err != nil {
		return response.DomainError(c, err)
	}
	var body orderStatusBody
	if err := bind(c, h.validate, &body); err != nil {
		return response.DomainError(c, err)
	}

	res, err := h.orders.UpdateStatus(c.UserContext(), orderID, body.Status)
	if err != nil {
		return response.DomainError(c, err)
	}
	return response.Success(c, "Order status updated", res)
}

// BulkUpdateOrderStatus always answers 200 with one result per order; each
// item reports its own success.
func (h *AdminHandler) BulkUpdateOrderStatus(c *fiber.Ctx) error {
	var body bulkStatusBody
	if err := bind(c, h.validate, &body); err != nil {
		return response.DomainError(c, err)
	}

	results, err := h.orders.BulkUpdateStatus(c.UserContext(), body.OrderIDs, body.Status)
	if err != nil {
		return response.DomainError(c, err)
	}
	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	return response.Success(c, "Bulk status update processed", fiber.Map{
		"results":   results,
		"succeeded": succeeded,
		"failed":    len(results) - succeeded,
	})
}

func (h *AdminHandler) CreatePromo(c *fiber.Ctx) error {
	admin, err := claimsOf(c)
	if err != nil {
		return response.Unauthorized(c)
	}
	var body createPromoBody
	if err := bind(c, h.validate, &body); err != nil {
		return response.DomainError(c, err)
	}

	p, err := h.promos.Create(c.UserContext(), admin.UserID, promo.CreateRequest{
		Code:               body.Code,
		Description:        body.Description,
		DiscountType:       body.DiscountType,
		DiscountValue:      body.DiscountValue,
		MinOrder:           body.MinOrder,
		MaxDiscount:        body.MaxDiscount,
		UsageLimit:         body.UsageLimit,
		PerUserLimit:       body.PerUserLimit,
		ValidFrom:          body.ValidFrom,
		ValidUntil:         body.ValidUntil,
		ApplicableNetworks: body.ApplicableNetworks,
	})
	if err != nil {
		return response.DomainError(c, err)
	}
	return response.Created(c, "Promo code created", p)
}
