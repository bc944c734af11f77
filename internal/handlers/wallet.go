package handlers

import (
	"errors"

	"bundlepay/internal/services/deduction"
	"bundlepay/internal/services/deposit"
	"bundlepay/internal/services/deposit/gateway"
	"bundlepay/internal/services/promo"
	"bundlepay/internal/services/wallet"
	"bundlepay/internal/utils/pagination"
	"bundlepay/internal/utils/response"
	"bundlepay/internal/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type WalletHandler struct {
	wallets    wallet.Service
	deposits   *deposit.Service
	deductions *deduction.Service
	promos     *promo.Service
	validate   *validation.Validator
}

func NewWalletHandler(
	wallets wallet.Service,
	deposits *deposit.Service,
	deductions *deduction.Service,
	promos *promo.Service,
	validate *validation.Validator,
) *WalletHandler {
	return &WalletHandler{
		wallets:    wallets,
		deposits:   deposits,
		deductions: deductions,
		promos:     promos,
		validate:   validate,
	}
}

type depositBody struct {
	Amount   decimal.Decimal        `json:"amount" validate:"gt=0"`
	Email    string                 `json:"email" validate:"omitempty,email"`
	Metadata map[string]interface{} `json:"metadata"`
}

type deductBody struct {
	Amount      decimal.Decimal        `json:"amount" validate:"gt=0"`
	OrderID     string                 `json:"order_id" validate:"required,max=80"`
	Description string                 `json:"description" validate:"max=255"`
	Metadata    map[string]interface{} `json:"metadata"`
}

type orderItem struct {
	Network string `json:"network"`
}

type applyPromoBody struct {
	Code        string          `json:"code" validate:"required,max=50"`
	OrderAmount decimal.Decimal `json:"order_amount" validate:"gt=0"`
	OrderItems  []orderItem     `json:"order_items"`
}

type confirmPromoBody struct {
	Code            string          `json:"code" validate:"required,max=50"`
	OrderAmount     decimal.Decimal `json:"order_amount" validate:"gt=0"`
	DiscountApplied decimal.Decimal `json:"discount_applied" validate:"gte=0"`
	OrderID         string          `json:"order_id" validate:"required,max=100"`
}

// GetBalance returns the balance, limits, usage and recent transactions.
func (h *WalletHandler) GetBalance(c *fiber.Ctx) error {
	claims, err := claimsOf(c)
	if err != nil {
		return response.Unauthorized(c)
	}
	overview, err := h.wallets.GetOverview(c.UserContext(), claims.UserID)
	if err != nil {
		return response.DomainError(c, err)
	}
	return response.Success(c, "Wallet retrieved", overview)
}

func (h *WalletHandler) GetTransactions(c *fiber.Ctx) error {
	claims, err := claimsOf(c)
	if err != nil {
		return response.Unauthorized(c)
	}
	p := pagination.ParseFromRequest(c)
	txns, total, err := h.wallets.GetTransactionHistory(c.UserContext(), claims.UserID, p.Limit, p.Offset)
	if err != nil {
		return response.DomainError(c, err)
	}
	p.Total = total
	return c.JSON(pagination.Response(p, txns))
}

func (h *WalletHandler) Deposit(c *fiber.Ctx) error {
	claims, err := claimsOf(c)
	if err != nil {
		return response.Unauthorized(c)
	}
	var body depositBody
	if err := bind(c, h.validate, &body); err != nil {
		return response.DomainError(c, err)
	}

	res, err := h.deposits.Initiate(c.UserContext(), deposit.InitiateRequest{
		UserID:   claims.UserID,
		Amount:   body.Amount,
		Email:    body.Email,
		Metadata: body.Metadata,
	})
	if err != nil {
		return response.DomainError(c, err)
	}
	return response.Success(c, "Deposit initiated", res)
}

func (h *WalletHandler) VerifyDeposit(c *fiber.Ctx) error {
	claims, err := claimsOf(c)
	if err != nil {
		return response.Unauthorized(c)
	}
	res, err := h.deposits.VerifyForUser(c.UserContext(), claims.UserID, c.Params("reference"))
	if err != nil {
		return response.DomainError(c, err)
	}
	return response.Success(c, "Deposit "+res.Status, res)
}

// DepositWebhook receives gateway callbacks. It is public; authenticity comes
// from the provider signature.
func (h *WalletHandler) DepositWebhook(c *fiber.Ctx) error {
	signature := c.Get("X-Paystack-Signature")
	if signature == "" {
		signature = c.Get("Stripe-Signature")
	}

	res, err := h.deposits.HandleWebhook(c.UserContext(), c.Params("provider"), c.Body(), signature)
	switch {
	case errors.Is(err, gateway.ErrInvalidSignature):
		return response.Error(c, fiber.StatusUnauthorized, "invalid signature")
	case errors.Is(err, gateway.ErrIgnoredEvent):
		return c.JSON(fiber.Map{"status": "ignored"})
	case err != nil:
		return response.DomainError(c, err)
	}
	return c.JSON(fiber.Map{"status": res.Status, "reference": res.Reference})
}

func (h *WalletHandler) Deduct(c *fiber.Ctx) error {
	claims, err := claimsOf(c)
	if err != nil {
		return response.Unauthorized(c)
	}
	var body deductBody
	if err := bind(c, h.validate, &body); err != nil {
		return response.DomainError(c, err)
	}

	res, err := h.deductions.Debit(c.UserContext(), deduction.Request{
		UserID:      claims.UserID,
		Amount:      body.Amount,
		Description: body.Description,
		OrderID:     body.OrderID,
		Metadata:    body.Metadata,
	})
	if err != nil {
		return response.DomainError(c, err)
	}
	return response.Success(c, "Payment successful", res)
}

func (h *WalletHandler) ApplyPromo(c *fiber.Ctx) error {
	claims, err := claimsOf(c)
	if err != nil {
		return response.Unauthorized(c)
	}
	var body applyPromoBody
	if err := bind(c, h.validate, &body); err != nil {
		return response.DomainError(c, err)
	}

	networks := make([]string, 0, len(body.OrderItems))
	for _, item := range body.OrderItems {
		if item.Network != "" {
			networks = append(networks, item.Network)
		}
	}
	quote, err := h.promos.Quote(c.UserContext(), promo.QuoteRequest{
		Code:        body.Code,
		UserID:      claims.UserID,
		OrderAmount: body.OrderAmount,
		Networks:    networks,
	})
	if err != nil {
		return response.DomainError(c, err)
	}
	return response.Success(c, "Promo code applied", quote)
}

func (h *WalletHandler) ConfirmPromo(c *fiber.Ctx) error {
	claims, err := claimsOf(c)
	if err != nil {
		return response.Unauthorized(c)
	}
	var body confirmPromoBody
	if err := bind(c, h.validate, &body); err != nil {
		return response.DomainError(c, err)
	}

	usage, err := h.promos.Confirm(c.UserContext(), promo.ConfirmRequest{
		Code:            body.Code,
		UserID:          claims.UserID,
		OrderAmount:     body.OrderAmount,
		DiscountApplied: body.DiscountApplied,
		OrderID:         body.OrderID,
	})
	if err != nil {
		return response.DomainError(c, err)
	}
	return response.Success(c, "Promo usage recorded", usage)
}
