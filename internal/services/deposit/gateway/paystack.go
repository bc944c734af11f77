package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bundlepay/internal/models"
)

type PaystackConfig struct {
	SecretKey string
	BaseURL   string
	Timeout   time.Duration
}

// PaystackGateway talks to the Paystack transaction API.
type PaystackGateway struct {
	secretKey  string
	baseURL    string
	httpClient *http.Client
}

func NewPaystackGateway(cfg PaystackConfig) *PaystackGateway {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.paystack.co"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &PaystackGateway{
		secretKey:  cfg.SecretKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (p *PaystackGateway) Name() string { return models.SourcePaystack }

type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type paystackInitData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type paystackTransaction struct {
	ID              int64  `json:"id"`
	Status          string `json:"status"`
	Reference       string `json:"reference"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	GatewayResponse string `json:"gateway_response"`
	PaidAt          string `json:"paid_at"`
}

type paystackEvent struct {
	Event string              `json:"event"`
	Data  paystackTransaction `json:"data"`
}

func (p *PaystackGateway) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResponse, error) {
	body := map[string]interface{}{
		"email":        req.Email,
		"amount":       toMinor(req.Amount),
		"currency":     req.Currency,
		"reference":    req.Reference,
		"callback_url": req.CallbackURL,
		"metadata":     req.Metadata,
	}

	var data paystackInitData
	if err := p.do(ctx, http.MethodPost, "/transaction/initialize", body, &data); err != nil {
		return nil, err
	}
	return &InitializeResponse{
		AuthorizationURL: data.AuthorizationURL,
		AccessCode:       data.AccessCode,
		GatewayRef:       data.Reference,
	}, nil
}

func (p *PaystackGateway) Verify(ctx context.Context, req VerifyRequest) (*VerifyResponse, error) {
	var data paystackTransaction
	path := "/transaction/verify/" + url.PathEscape(req.Reference)
	if err := p.do(ctx, http.MethodGet, path, nil, &data); err != nil {
		return nil, err
	}
	return &VerifyResponse{
		Status:     paystackStatus(data.Status),
		Amount:     fromMinor(data.Amount),
		Currency:   data.Currency,
		GatewayRef: fmt.Sprintf("%d", data.ID),
		Message:    data.GatewayResponse,
		PaidAt:     data.PaidAt,
	}, nil
}

// ParseWebhook checks the x-paystack-signature header, an HMAC-SHA512 of the
// raw body keyed with the secret key.
func (p *PaystackGateway) ParseWebhook(payload []byte, signature string) (string, error) {
	mac := hmac.New(sha512.New, []byte(p.secretKey))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(signature))) {
		return "", ErrInvalidSignature
	}

	var evt paystackEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return "", fmt.Errorf("failed to decode paystack event: %w", err)
	}
	if !strings.HasPrefix(evt.Event, "charge.") || evt.Data.Reference == "" {
		return "", ErrIgnoredEvent
	}
	return evt.Data.Reference, nil
}

// paystackStatus maps Paystack transaction states. Anything not final stays
// pending; abandoned checkouts may still be completed by the customer.
func paystackStatus(status string) string {
	switch status {
	case "success":
		return StatusSuccess
	case "failed", "reversed":
		return StatusFailed
	default:
		return StatusPending
	}
}

func (p *PaystackGateway) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode paystack request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build paystack request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("paystack request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read paystack response: %w", err)
	}

	var env paystackEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("failed to decode paystack response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= http.StatusBadRequest || !env.Status {
		if resp.StatusCode == http.StatusNotFound || strings.Contains(strings.ToLower(env.Message), "not found") {
			return fmt.Errorf("paystack %s %s: %s: %w", method, path, env.Message, ErrTransactionNotFound)
		}
		return fmt.Errorf("paystack %s %s: %d %s", method, path, resp.StatusCode, env.Message)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode paystack data: %w", err)
	}
	return nil
}
