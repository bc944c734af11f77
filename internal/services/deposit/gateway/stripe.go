package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"bundlepay/internal/models"

	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/checkout/session"
	"github.com/stripe/stripe-go/v72/webhook"
)

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	CancelURL     string
}

// StripeGateway collects deposits through Stripe Checkout sessions. The
// deposit reference travels as the session's client reference id.
type StripeGateway struct {
	webhookSecret string
	cancelURL     string
}

func NewStripeGateway(cfg StripeConfig) *StripeGateway {
	stripe.Key = cfg.SecretKey
	return &StripeGateway{webhookSecret: cfg.WebhookSecret, cancelURL: cfg.CancelURL}
}

func (g *StripeGateway) Name() string { return models.SourceStripe }

func (g *StripeGateway) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResponse, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(req.Reference),
		CustomerEmail:     stripe.String(req.Email),
		SuccessURL:        stripe.String(withReference(req.CallbackURL, req.Reference)),
		CancelURL:         stripe.String(g.cancelURL),
		PaymentMethodTypes: stripe.StringSlice([]string{
			"card",
		}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(strings.ToLower(req.Currency)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String("Wallet deposit"),
					},
					UnitAmount: stripe.Int64(toMinor(req.Amount)),
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, fmt.Sprint(v))
	}

	sess, err := session.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe checkout session failed: %w", err)
	}
	return &InitializeResponse{
		AuthorizationURL: sess.URL,
		AccessCode:       sess.ID,
		GatewayRef:       sess.ID,
	}, nil
}

// Verify reads the checkout session. Without a stored session id it falls
// back to searching recent sessions for the deposit reference.
func (g *StripeGateway) Verify(ctx context.Context, req VerifyRequest) (*VerifyResponse, error) {
	var (
		sess *stripe.CheckoutSession
		err  error
	)
	if req.GatewayRef != "" {
		params := &stripe.CheckoutSessionParams{}
		params.Context = ctx
		sess, err = session.Get(req.GatewayRef, params)
		if err != nil {
			return nil, fmt.Errorf("stripe session lookup failed: %w", err)
		}
	} else if sess, err = g.findSession(ctx, req.Reference); err != nil {
		return nil, err
	}
	return &VerifyResponse{
		Status:     stripeStatus(sess),
		Amount:     fromMinor(sess.AmountTotal),
		Currency:   strings.ToUpper(string(sess.Currency)),
		GatewayRef: sess.ID,
		Message:    string(sess.PaymentStatus),
	}, nil
}

// stripeLookupLimit bounds how many recent sessions findSession scans.
const stripeLookupLimit = 300

func (g *StripeGateway) findSession(ctx context.Context, reference string) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionListParams{}
	params.Context = ctx
	params.Limit = stripe.Int64(100)

	it := session.List(params)
	for n := 0; n < stripeLookupLimit && it.Next(); n++ {
		if sess := it.CheckoutSession(); sess.ClientReferenceID == reference {
			return sess, nil
		}
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("stripe session search failed: %w", err)
	}
	return nil, fmt.Errorf("stripe session for %s: %w", reference, ErrTransactionNotFound)
}

func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (string, error) {
	evt, err := webhook.ConstructEvent(payload, signature, g.webhookSecret)
	if err != nil {
		return "", ErrInvalidSignature
	}
	if !strings.HasPrefix(evt.Type, "checkout.session.") {
		return "", ErrIgnoredEvent
	}
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(evt.Data.Raw, &sess); err != nil {
		return "", fmt.Errorf("failed to decode checkout session: %w", err)
	}
	if sess.ClientReferenceID == "" {
		return "", ErrIgnoredEvent
	}
	return sess.ClientReferenceID, nil
}

func stripeStatus(sess *stripe.CheckoutSession) string {
	switch {
	case sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid:
		return StatusSuccess
	case string(sess.Status) == "expired":
		return StatusFailed
	default:
		return StatusPending
	}
}

func withReference(callbackURL, reference string) string {
	sep := "?"
	if strings.Contains(callbackURL, "?") {
		sep = "&"
	}
	return callbackURL + sep + "reference=" + reference
}
