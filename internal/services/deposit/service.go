// Package deposit orchestrates gateway-funded wallet deposits: a pending entry
// is reserved, the customer pays at the gateway, and verification settles the
// entry exactly once no matter how many times it is requested.
package deposit

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	apperrors "bundlepay/internal/errors"
	"bundlepay/internal/models"
	"bundlepay/internal/repositories"
	"bundlepay/internal/services/deposit/gateway"
	"bundlepay/internal/services/notification"
	"bundlepay/internal/services/wallet"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Service struct {
	wallets      wallet.Service
	users        repositories.UserRepository
	gateway      gateway.Gateway
	notifier     notification.Notifier
	config       Config
	newReference func() string
	now          func() time.Time
}

// annotateAttempts bounds the retries of recording the gateway handle.
const annotateAttempts = 3

func NewService(
	wallets wallet.Service,
	users repositories.UserRepository,
	gw gateway.Gateway,
	notifier notification.Notifier,
	config Config,
) *Service {
	if wallets == nil || users == nil || gw == nil {
		panic("deposit: wallets, users and gateway are required")
	}
	if config.Currency == "" {
		config.Currency = wallet.DefaultCurrency
	}
	if config.MinAmount.IsZero() {
		config.MinAmount = decimal.NewFromInt(10)
	}
	if config.MaxAmount.IsZero() {
		config.MaxAmount = decimal.NewFromInt(100000)
	}
	if config.GatewayTimeout == 0 {
		config.GatewayTimeout = 15 * time.Second
	}
	if config.PendingExpiry == 0 {
		config.PendingExpiry = 24 * time.Hour
	}
	if notifier == nil {
		notifier = notification.NewLogNotifier()
	}
	return &Service{
		wallets:      wallets,
		users:        users,
		gateway:      gw,
		notifier:     notifier,
		config:       config,
		newReference: newReference,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func newReference() string {
	return "DEP-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// Provider returns the name of the configured gateway.
func (s *Service) Provider() string {
	return s.gateway.Name()
}

// Initiate reserves a pending deposit and opens a gateway checkout for it.
func (s *Service) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	if err := s.validateAmount(req.Amount); err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, apperrors.NotFound("user", req.UserID)
		}
		return nil, err
	}
	if !user.CanFund() {
		return nil, apperrors.Validation("account is not eligible for deposits", map[string]interface{}{
			"status":   user.Status,
			"approved": user.Approved,
		})
	}
	email := req.Email
	if email == "" {
		email = user.Email
	}

	reference := s.newReference()
	meta := models.JSON{MetaEmail: email}.Merge(req.Metadata)
	err = s.wallets.InTx(ctx, func(tx *wallet.LedgerTx) error {
		_, err := tx.RecordPending(wallet.PendingRequest{
			UserID:      req.UserID,
			Amount:      req.Amount,
			Reference:   reference,
			Description: "Wallet deposit",
			Source:      s.gateway.Name(),
			Metadata:    meta,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	gwCtx, cancel := context.WithTimeout(ctx, s.config.GatewayTimeout)
	resp, err := s.gateway.Initialize(gwCtx, gateway.InitializeRequest{
		Reference:   reference,
		Amount:      req.Amount,
		Currency:    s.config.Currency,
		Email:       email,
		CallbackURL: s.config.CallbackURL,
		Metadata:    map[string]interface{}{"user_id": req.UserID, "reference": reference},
	})
	cancel()
	if err != nil {
		if indeterminate(err) {
			// The checkout may exist at the gateway; verification decides.
			zap.L().Warn("deposit initialization timed out",
				zap.String("reference", reference),
				zap.String("gateway", s.gateway.Name()),
				zap.Error(err))
			gwErr := apperrors.Gateway("payment gateway did not respond", err)
			gwErr.Details = map[string]interface{}{
				"reference": reference,
				"status":    models.TransactionStatusPending,
			}
			return nil, gwErr
		}
		zap.L().Error("deposit initialization failed",
			zap.String("reference", reference),
			zap.String("gateway", s.gateway.Name()),
			zap.Error(err))
		s.markFailed(ctx, reference, "gateway initialization failed: "+err.Error())
		return nil, apperrors.Gateway("payment gateway initialization failed", err)
	}

	s.annotate(ctx, reference, models.JSON{
		MetaGatewayRef:       resp.GatewayRef,
		MetaAccessCode:       resp.AccessCode,
		MetaAuthorizationURL: resp.AuthorizationURL,
	})

	zap.L().Info("deposit initiated",
		zap.Uint("user_id", req.UserID),
		zap.String("reference", reference),
		zap.String("amount", req.Amount.StringFixed(2)))

	return &InitiateResult{
		Reference:        reference,
		AuthorizationURL: resp.AuthorizationURL,
		AccessCode:       resp.AccessCode,
		Amount:           req.Amount,
		Status:           models.TransactionStatusPending,
	}, nil
}

// VerifyForUser verifies a deposit owned by userID.
func (s *Service) VerifyForUser(ctx context.Context, userID uint, reference string) (*VerifyResult, error) {
	txn, err := s.lookup(ctx, reference)
	if err != nil {
		return nil, err
	}
	if txn.UserID != userID {
		return nil, apperrors.NotFound("transaction", reference)
	}
	return s.verify(ctx, txn)
}

// Verify asks the gateway for the outcome of a pending deposit and settles it.
// Final deposits are answered from the ledger without calling the gateway.
// A gateway failure leaves the deposit pending and returns a GatewayError.
func (s *Service) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	txn, err := s.lookup(ctx, reference)
	if err != nil {
		return nil, err
	}
	return s.verify(ctx, txn)
}

func (s *Service) lookup(ctx context.Context, reference string) (*models.WalletTransaction, error) {
	if strings.TrimSpace(reference) == "" {
		return nil, apperrors.Validation("reference is required", nil)
	}
	txn, err := s.wallets.GetTransactionByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if txn.Type != models.TransactionTypeDeposit {
		return nil, apperrors.NotFound("transaction", reference)
	}
	return txn, nil
}

func (s *Service) verify(ctx context.Context, txn *models.WalletTransaction) (*VerifyResult, error) {
	if !txn.IsPending() {
		return resultOf(txn), nil
	}

	gwCtx, cancel := context.WithTimeout(ctx, s.config.GatewayTimeout)
	resp, err := s.gateway.Verify(gwCtx, gateway.VerifyRequest{
		Reference:  txn.Reference,
		GatewayRef: txn.Metadata.String(MetaGatewayRef),
	})
	cancel()

	switch {
	case errors.Is(err, gateway.ErrTransactionNotFound):
		resp = &gateway.VerifyResponse{Status: gateway.StatusPending, Message: "unknown to gateway"}
	case err != nil:
		zap.L().Warn("deposit verification failed",
			zap.String("reference", txn.Reference), zap.Error(err))
		return nil, apperrors.Gateway("payment verification failed", err)
	}

	outcome, final := outcomeOf(txn, resp)
	if !final && s.expired(txn) {
		outcome, final = wallet.SettleOutcome{
			Success:  false,
			Reason:   ReasonExpired,
			Metadata: models.JSON{MetaGatewayMessage: resp.Message},
		}, true
	}
	if !final {
		if resp.GatewayRef != "" && txn.Metadata.String(MetaGatewayRef) == "" {
			s.annotate(ctx, txn.Reference, models.JSON{MetaGatewayRef: resp.GatewayRef})
		}
		return &VerifyResult{
			Reference: txn.Reference,
			Status:    models.TransactionStatusPending,
			Amount:    txn.Amount,
			Message:   resp.Message,
		}, nil
	}

	var res *wallet.Result
	err = s.wallets.InTx(ctx, func(tx *wallet.LedgerTx) error {
		var err error
		res, err = tx.SettlePending(txn.Reference, outcome)
		if err != nil || res.AlreadySettled {
			return err
		}
		settled := res.Transaction
		tx.AfterCommit(func() {
			subject := notification.SubjectDepositFailed
			if settled.IsCompleted() {
				subject = notification.SubjectDepositCompleted
			}
			notification.Send(ctx, s.notifier, notification.NewEvent(subject, settled))
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !res.AlreadySettled {
		zap.L().Info("deposit settled",
			zap.String("reference", txn.Reference),
			zap.String("status", res.Transaction.Status),
			zap.String("balance", res.Balance.StringFixed(2)))
	}
	return resultOf(res.Transaction), nil
}

// outcomeOf turns a gateway answer into a settlement. The second value is
// false while the gateway has no final answer.
func outcomeOf(txn *models.WalletTransaction, resp *gateway.VerifyResponse) (wallet.SettleOutcome, bool) {
	meta := models.JSON{MetaGatewayMessage: resp.Message}
	if resp.GatewayRef != "" {
		meta[MetaGatewayRef] = resp.GatewayRef
	}
	if resp.PaidAt != "" {
		meta[MetaPaidAt] = resp.PaidAt
	}

	switch resp.Status {
	case gateway.StatusSuccess:
		meta[MetaPaidAmount] = resp.Amount.StringFixed(2)
		if resp.Amount.LessThan(txn.Amount) {
			return wallet.SettleOutcome{
				Success:  false,
				Reason:   fmt.Sprintf("amount mismatch: paid %s, expected %s", resp.Amount.StringFixed(2), txn.Amount.StringFixed(2)),
				Metadata: meta,
			}, true
		}
		return wallet.SettleOutcome{Success: true, Metadata: meta}, true
	case gateway.StatusFailed:
		return wallet.SettleOutcome{Success: false, Reason: resp.Message, Metadata: meta}, true
	default:
		return wallet.SettleOutcome{}, false
	}
}

func resultOf(txn *models.WalletTransaction) *VerifyResult {
	res := &VerifyResult{
		Reference: txn.Reference,
		Status:    txn.Status,
		Amount:    txn.Amount,
	}
	switch txn.Status {
	case models.TransactionStatusCompleted:
		balance := txn.BalanceAfter
		res.Balance = &balance
		res.Message = "deposit completed"
	case models.TransactionStatusFailed:
		res.Message = txn.Metadata.String("failure_reason")
	}
	return res
}

// HandleWebhook authenticates a gateway callback and verifies the deposit it
// names. The callback body itself is never trusted for the outcome.
func (s *Service) HandleWebhook(ctx context.Context, provider string, payload []byte, signature string) (*VerifyResult, error) {
	if provider != s.gateway.Name() {
		return nil, apperrors.NotFound("gateway", provider)
	}
	reference, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		return nil, err
	}
	return s.Verify(ctx, reference)
}

// ReconcilePending re-verifies deposits pending for longer than olderThan.
func (s *Service) ReconcilePending(ctx context.Context, olderThan time.Duration, batch int) (ReconcileReport, error) {
	var report ReconcileReport
	pending, err := s.wallets.ClaimStalePending(ctx, models.TransactionTypeDeposit, olderThan, batch)
	if err != nil {
		return report, err
	}

	for i := range pending {
		if ctx.Err() != nil {
			break
		}
		report.Checked++
		res, err := s.verify(ctx, &pending[i])
		if err != nil {
			report.Errors++
			continue
		}
		switch res.Status {
		case models.TransactionStatusCompleted:
			report.Completed++
		case models.TransactionStatusFailed:
			report.Failed++
		default:
			report.StillPending++
		}
	}
	return report, nil
}

// expired reports whether a pending deposit is past PendingExpiry.
func (s *Service) expired(txn *models.WalletTransaction) bool {
	return s.now().Sub(txn.CreatedAt) >= s.config.PendingExpiry
}

// annotate records gateway handles on a pending entry, retrying a few times.
// A deposit whose handle is lost is still found by its reference.
func (s *Service) annotate(ctx context.Context, reference string, meta models.JSON) {
	var err error
	for attempt := 1; attempt <= annotateAttempts; attempt++ {
		err = s.wallets.InTx(ctx, func(tx *wallet.LedgerTx) error {
			return tx.AnnotatePending(reference, meta)
		})
		if err == nil || ctx.Err() != nil {
			break
		}
	}
	if err != nil {
		zap.L().Warn("failed to record gateway handle",
			zap.String("reference", reference), zap.Error(err))
	}
}

// indeterminate reports whether a gateway call ended without a definite
// answer, in which case the gateway may still have acted on it.
func indeterminate(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (s *Service) markFailed(ctx context.Context, reference, reason string) {
	err := s.wallets.InTx(ctx, func(tx *wallet.LedgerTx) error {
		_, err := tx.SettlePending(reference, wallet.SettleOutcome{Success: false, Reason: reason})
		return err
	})
	if err != nil {
		zap.L().Error("failed to mark deposit failed",
			zap.String("reference", reference), zap.Error(err))
	}
}

func (s *Service) validateAmount(amount decimal.Decimal) error {
	if amount.LessThan(s.config.MinAmount) || amount.GreaterThan(s.config.MaxAmount) {
		return apperrors.Validation("deposit amount out of range", map[string]interface{}{
			"min":    s.config.MinAmount.StringFixed(2),
			"max":    s.config.MaxAmount.StringFixed(2),
			"amount": amount.StringFixed(2),
		})
	}
	if !amount.Equal(amount.Round(2)) {
		return apperrors.Validation("amount must have at most two decimal places", nil)
	}
	return nil
}
