package deposit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	apperrors "bundlepay/internal/errors"
	"bundlepay/internal/models"
	"bundlepay/internal/repositories"
	"bundlepay/internal/repositories/cache"
	"bundlepay/internal/services/deposit/gateway"
	"bundlepay/internal/services/notification"
	"bundlepay/internal/services/wallet"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Name() string { return "paystack" }

func (m *mockGateway) Initialize(ctx context.Context, req gateway.InitializeRequest) (*gateway.InitializeResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*gateway.InitializeResponse)
	return resp, args.Error(1)
}

func (m *mockGateway) Verify(ctx context.Context, req gateway.VerifyRequest) (*gateway.VerifyResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*gateway.VerifyResponse)
	return resp, args.Error(1)
}

func (m *mockGateway) ParseWebhook(payload []byte, signature string) (string, error) {
	args := m.Called(payload, signature)
	return args.String(0), args.Error(1)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Publish(ctx context.Context, evt notification.Event) error {
	return m.Called(ctx, evt).Error(0)
}

type fixture struct {
	svc      *Service
	wallets  wallet.Service
	gw       *mockGateway
	notifier *mockNotifier
	db       *gorm.DB
	user     *models.User
}

func newFixture(t *testing.T, cfg Config) *fixture {
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

	users := repositories.NewUserRepository(db)
	user := &models.User{Email: "ama@example.com", Name: "Ama", PasswordHash: "x", Approved: true}
	require.NoError(t, users.Create(context.Background(), user))

	wallets := wallet.NewService(repositories.NewWalletRepository(db), cache.NewMemoryCache(time.Minute), wallet.WalletConfig{}, nil)
	gw := &mockGateway{}
	n := &mockNotifier{}
	n.On("Publish", mock.Anything, mock.Anything).Return(nil)

	return &fixture{
		svc:      NewService(wallets, users, gw, n, cfg),
		wallets:  wallets,
		gw:       gw,
		notifier: n,
		db:       db,
		user:     user,
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (f *fixture) initiate(t *testing.T, amount string) string {
	t.Helper()
	f.gw.On("Initialize", mock.Anything, mock.Anything).Return(&gateway.InitializeResponse{
		AuthorizationURL: "https://checkout.example.com/abc",
		AccessCode:       "abc",
	}, nil).Once()
	res, err := f.svc.Initiate(context.Background(), InitiateRequest{UserID: f.user.ID, Amount: dec(amount)})
	require.NoError(t, err)
	return res.Reference
}

func (f *fixture) transaction(t *testing.T, reference string) *models.WalletTransaction {
	t.Helper()
	var txn models.WalletTransaction
	require.NoError(t, f.db.Where("reference = ?", reference).First(&txn).Error)
	return &txn
}

func (f *fixture) balance(t *testing.T) decimal.Decimal {
	t.Helper()
	snap, err := f.wallets.GetBalance(context.Background(), f.user.ID)
	require.NoError(t, err)
	return snap.Balance
}

func TestInitiate_RecordsPendingDeposit(t *testing.T) {
	f := newFixture(t, Config{CallbackURL: "https://app.example.com/cb"})

	f.gw.On("Initialize", mock.Anything, mock.MatchedBy(func(req gateway.InitializeRequest) bool {
		return req.Amount.Equal(dec("100")) && req.Email == "ama@example.com" && req.CallbackURL == "https://app.example.com/cb"
	})).Return(&gateway.InitializeResponse{
		AuthorizationURL: "https://checkout.example.com/abc",
		AccessCode:       "abc",
		GatewayRef:       "gw-1",
	}, nil)

	res, err := f.svc.Initiate(context.Background(), InitiateRequest{UserID: f.user.ID, Amount: dec("100")})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Reference, "DEP-"))
	assert.Equal(t, "https://checkout.example.com/abc", res.AuthorizationURL)
	assert.Equal(t, models.TransactionStatusPending, res.Status)

	txn := f.transaction(t, res.Reference)
	assert.True(t, txn.IsPending())
	assert.Equal(t, "paystack", txn.Source)
	assert.Equal(t, "gw-1", txn.Metadata.String(MetaGatewayRef))
	assert.True(t, f.balance(t).IsZero())
	f.gw.AssertExpectations(t)
}

func TestInitiate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		setup  func(t *testing.T, f *fixture)
		kind   apperrors.Kind
		code   string
	}{
		{name: "below minimum", amount: "5", kind: apperrors.KindValidation},
		{name: "above maximum", amount: "100001", kind: apperrors.KindValidation},
		{name: "fractional pesewas", amount: "10.005", kind: apperrors.KindValidation},
		{
			name:   "unapproved user",
			amount: "50",
			setup: func(t *testing.T, f *fixture) {
				require.NoError(t, f.db.Model(f.user).Update("approved", false).Error)
			},
			kind: apperrors.KindValidation,
		},
		{
			name:   "disabled user",
			amount: "50",
			setup: func(t *testing.T, f *fixture) {
				require.NoError(t, f.db.Model(f.user).Update("status", models.UserStatusDisabled).Error)
			},
			kind: apperrors.KindValidation,
		},
		{
			name:   "frozen wallet",
			amount: "50",
			setup: func(t *testing.T, f *fixture) {
				require.NoError(t, f.wallets.Freeze(context.Background(), f.user.ID, "review"))
			},
			kind: apperrors.KindFrozenWallet,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Config{})
			if tt.setup != nil {
				tt.setup(t, f)
			}
			_, err := f.svc.Initiate(context.Background(), InitiateRequest{UserID: f.user.ID, Amount: dec(tt.amount)})
			require.Error(t, err)
			assert.True(t, apperrors.IsKind(err, tt.kind), "got %v", err)
			f.gw.AssertNotCalled(t, "Initialize", mock.Anything, mock.Anything)
		})
	}
}

func TestInitiate_UnknownUser(t *testing.T) {
	f := newFixture(t, Config{})
	_, err := f.svc.Initiate(context.Background(), InitiateRequest{UserID: 404, Amount: dec("50")})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestInitiate_DailyLimitCountsPending(t *testing.T) {
	f := newFixture(t, Config{})
	f.initiate(t, "6000")

	_, err := f.svc.Initiate(context.Background(), InitiateRequest{UserID: f.user.ID, Amount: dec("6000")})
	require.Error(t, err)
	de, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindLimitExceeded, de.Kind)
	assert.Equal(t, apperrors.LimitDaily, de.Details["limitType"])
	assert.Equal(t, "4000.00", de.Details["remaining"])
}

func TestInitiate_GatewayFailureMarksDepositFailed(t *testing.T) {
	f := newFixture(t, Config{})
	f.gw.On("Initialize", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

	_, err := f.svc.Initiate(context.Background(), InitiateRequest{UserID: f.user.ID, Amount: dec("100")})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrGateway)

	var txns []models.WalletTransaction
	require.NoError(t, f.db.Where("user_id = ?", f.user.ID).Find(&txns).Error)
	require.Len(t, txns, 1)
	assert.True(t, txns[0].IsFailed())
	assert.Contains(t, txns[0].Metadata.String("failure_reason"), "connection refused")
}

func TestInitiate_GatewayTimeoutLeavesPending(t *testing.T) {
	f := newFixture(t, Config{GatewayTimeout: 20 * time.Millisecond})
	f.gw.On("Initialize", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.DeadlineExceeded)

	_, err := f.svc.Initiate(context.Background(), InitiateRequest{UserID: f.user.ID, Amount: dec("100")})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrGateway)
	de, ok := apperrors.As(err)
	require.True(t, ok)
	ref, _ := de.Details["reference"].(string)
	require.NotEmpty(t, ref)
	assert.True(t, f.transaction(t, ref).IsPending())

	// The checkout was created after all and the customer paid.
	f.gw.On("Verify", mock.Anything, mock.MatchedBy(func(req gateway.VerifyRequest) bool {
		return req.Reference == ref
	})).Return(&gateway.VerifyResponse{Status: gateway.StatusSuccess, Amount: dec("100")}, nil)

	res, err := f.svc.Verify(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusCompleted, res.Status)
	assert.True(t, dec("100").Equal(f.balance(t)))
}

func TestVerify_CreditsExactlyOnce(t *testing.T) {
	f := newFixture(t, Config{})
	ref := f.initiate(t, "100")
	f.gw.On("Verify", mock.Anything, mock.Anything).Return(&gateway.VerifyResponse{
		Status: gateway.StatusSuccess,
		Amount: dec("100"),
	}, nil)

	for i := 0; i < 3; i++ {
		res, err := f.svc.Verify(context.Background(), ref)
		require.NoError(t, err)
		assert.Equal(t, models.TransactionStatusCompleted, res.Status)
		require.NotNil(t, res.Balance)
		assert.True(t, dec("100").Equal(*res.Balance))
	}

	assert.True(t, dec("100").Equal(f.balance(t)))
	// Final deposits are answered from the ledger.
	f.gw.AssertNumberOfCalls(t, "Verify", 1)
	f.notifier.AssertNumberOfCalls(t, "Publish", 1)
}

func TestVerify_ConcurrentCreditsExactlyOnce(t *testing.T) {
	f := newFixture(t, Config{})
	ref := f.initiate(t, "250")
	f.gw.On("Verify", mock.Anything, mock.Anything).Return(&gateway.VerifyResponse{
		Status: gateway.StatusSuccess,
		Amount: dec("250"),
	}, nil)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Verify(context.Background(), ref)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	assert.True(t, dec("250").Equal(f.balance(t)))
	var completed int64
	require.NoError(t, f.db.Model(&models.WalletTransaction{}).
		Where("user_id = ? AND status = ?", f.user.ID, models.TransactionStatusCompleted).
		Count(&completed).Error)
	assert.Equal(t, int64(1), completed)
	f.notifier.AssertNumberOfCalls(t, "Publish", 1)
}

func TestVerify_GatewayTimeoutLeavesPending(t *testing.T) {
	f := newFixture(t, Config{GatewayTimeout: 20 * time.Millisecond})
	ref := f.initiate(t, "100")
	f.gw.On("Verify", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.DeadlineExceeded)

	_, err := f.svc.Verify(context.Background(), ref)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrGateway)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.True(t, f.transaction(t, ref).IsPending())
	assert.True(t, f.balance(t).IsZero())
}

func TestVerify_Outcomes(t *testing.T) {
	tests := []struct {
		name    string
		resp    *gateway.VerifyResponse
		status  string
		balance string
		reason  string
	}{
		{
			name:    "still pending",
			resp:    &gateway.VerifyResponse{Status: gateway.StatusPending, Message: "ongoing"},
			status:  models.TransactionStatusPending,
			balance: "0",
		},
		{
			name:    "declined",
			resp:    &gateway.VerifyResponse{Status: gateway.StatusFailed, Message: "Declined"},
			status:  models.TransactionStatusFailed,
			balance: "0",
			reason:  "Declined",
		},
		{
			name:    "underpaid",
			resp:    &gateway.VerifyResponse{Status: gateway.StatusSuccess, Amount: dec("99.99")},
			status:  models.TransactionStatusFailed,
			balance: "0",
			reason:  "amount mismatch",
		},
		{
			name:    "overpaid credits the requested amount",
			resp:    &gateway.VerifyResponse{Status: gateway.StatusSuccess, Amount: dec("120")},
			status:  models.TransactionStatusCompleted,
			balance: "100",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Config{})
			ref := f.initiate(t, "100")
			f.gw.On("Verify", mock.Anything, mock.Anything).Return(tt.resp, nil)

			res, err := f.svc.Verify(context.Background(), ref)
			require.NoError(t, err)
			assert.Equal(t, tt.status, res.Status)
			assert.True(t, dec(tt.balance).Equal(f.balance(t)))
			if tt.reason != "" {
				assert.Contains(t, f.transaction(t, ref).Metadata.String("failure_reason"), tt.reason)
			}
		})
	}
}

func TestVerify_FrozenWalletStaysPending(t *testing.T) {
	f := newFixture(t, Config{})
	ref := f.initiate(t, "100")
	require.NoError(t, f.wallets.Freeze(context.Background(), f.user.ID, "review"))
	f.gw.On("Verify", mock.Anything, mock.Anything).Return(&gateway.VerifyResponse{
		Status: gateway.StatusSuccess,
		Amount: dec("100"),
	}, nil)

	_, err := f.svc.Verify(context.Background(), ref)
	assert.ErrorIs(t, err, apperrors.ErrFrozenWallet)
	assert.True(t, f.transaction(t, ref).IsPending())
}

func TestVerifyForUser_OtherUsersDeposit(t *testing.T) {
	f := newFixture(t, Config{})
	ref := f.initiate(t, "100")

	_, err := f.svc.VerifyForUser(context.Background(), f.user.ID+1, ref)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	f.gw.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)
}

func TestVerify_UnknownReference(t *testing.T) {
	f := newFixture(t, Config{})
	_, err := f.svc.Verify(context.Background(), "DEP-MISSING")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestHandleWebhook(t *testing.T) {
	f := newFixture(t, Config{})
	ref := f.initiate(t, "100")
	payload := []byte(`{"event":"charge.success"}`)

	f.gw.On("ParseWebhook", payload, "good").Return(ref, nil)
	f.gw.On("ParseWebhook", payload, "bad").Return("", gateway.ErrInvalidSignature)
	f.gw.On("Verify", mock.Anything, mock.Anything).Return(&gateway.VerifyResponse{
		Status: gateway.StatusSuccess,
		Amount: dec("100"),
	}, nil)

	_, err := f.svc.HandleWebhook(context.Background(), "paystack", payload, "bad")
	assert.ErrorIs(t, err, gateway.ErrInvalidSignature)
	assert.True(t, f.balance(t).IsZero())

	_, err = f.svc.HandleWebhook(context.Background(), "stripe", payload, "good")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	res, err := f.svc.HandleWebhook(context.Background(), "paystack", payload, "good")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusCompleted, res.Status)
	assert.True(t, dec("100").Equal(f.balance(t)))
}

func TestReconcilePending(t *testing.T) {
	f := newFixture(t, Config{})
	paid := f.initiate(t, "100")
	declined := f.initiate(t, "50")
	fresh := f.initiate(t, "20")

	past := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, f.db.Model(&models.WalletTransaction{}).
		Where("reference IN ?", []string{paid, declined}).
		Update("created_at", past).Error)

	f.gw.On("Verify", mock.Anything, mock.MatchedBy(func(req gateway.VerifyRequest) bool {
		return req.Reference == paid
	})).Return(&gateway.VerifyResponse{Status: gateway.StatusSuccess, Amount: dec("100")}, nil)
	f.gw.On("Verify", mock.Anything, mock.MatchedBy(func(req gateway.VerifyRequest) bool {
		return req.Reference == declined
	})).Return(&gateway.VerifyResponse{Status: gateway.StatusFailed, Message: "abandoned"}, nil)

	report, err := f.svc.ReconcilePending(context.Background(), 10*time.Minute, 50)
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{Checked: 2, Completed: 1, Failed: 1}, report)

	assert.True(t, dec("100").Equal(f.balance(t)))
	assert.True(t, f.transaction(t, fresh).IsPending())
}

func TestReconcilePending_RotatesThroughBacklog(t *testing.T) {
	f := newFixture(t, Config{})
	abandonedA := f.initiate(t, "10")
	abandonedB := f.initiate(t, "20")
	paid := f.initiate(t, "100")

	now := time.Now().UTC()
	for ref, age := range map[string]time.Duration{abandonedA: 50 * time.Minute, abandonedB: 40 * time.Minute, paid: 30 * time.Minute} {
		require.NoError(t, f.db.Model(&models.WalletTransaction{}).
			Where("reference = ?", ref).
			Update("created_at", now.Add(-age)).Error)
	}

	f.gw.On("Verify", mock.Anything, mock.MatchedBy(func(req gateway.VerifyRequest) bool {
		return req.Reference == paid
	})).Return(&gateway.VerifyResponse{Status: gateway.StatusSuccess, Amount: dec("100")}, nil)
	f.gw.On("Verify", mock.Anything, mock.Anything).
		Return(&gateway.VerifyResponse{Status: gateway.StatusPending, Message: "abandoned"}, nil)

	report, err := f.svc.ReconcilePending(context.Background(), 10*time.Minute, 2)
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{Checked: 2, StillPending: 2}, report)
	assert.True(t, f.balance(t).IsZero())

	report, err = f.svc.ReconcilePending(context.Background(), 10*time.Minute, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Completed)
	assert.True(t, dec("100").Equal(f.balance(t)))
	assert.True(t, f.transaction(t, abandonedA).IsPending())
	assert.True(t, f.transaction(t, abandonedB).IsPending())
}

func TestVerify_ExpiresStalePendingDeposits(t *testing.T) {
	tests := []struct {
		name       string
		age        time.Duration
		resp       *gateway.VerifyResponse
		err        error
		wantStatus string
	}{
		{
			name:       "unpaid past expiry",
			age:        3 * time.Hour,
			resp:       &gateway.VerifyResponse{Status: gateway.StatusPending, Message: "abandoned"},
			wantStatus: models.TransactionStatusFailed,
		},
		{
			name:       "unknown to gateway past expiry",
			age:        3 * time.Hour,
			err:        gateway.ErrTransactionNotFound,
			wantStatus: models.TransactionStatusFailed,
		},
		{
			name:       "unknown to gateway before expiry",
			age:        time.Hour,
			err:        gateway.ErrTransactionNotFound,
			wantStatus: models.TransactionStatusPending,
		},
		{
			name:       "paid past expiry",
			age:        3 * time.Hour,
			resp:       &gateway.VerifyResponse{Status: gateway.StatusSuccess, Amount: dec("6000")},
			wantStatus: models.TransactionStatusCompleted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Config{PendingExpiry: 2 * time.Hour})
			ref := f.initiate(t, "6000")
			require.NoError(t, f.db.Model(&models.WalletTransaction{}).
				Where("reference = ?", ref).
				Update("created_at", time.Now().UTC().Add(-tt.age)).Error)
			f.gw.On("Verify", mock.Anything, mock.Anything).Return(tt.resp, tt.err)

			res, err := f.svc.Verify(context.Background(), ref)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, res.Status)

			txn := f.transaction(t, ref)
			assert.Equal(t, tt.wantStatus, txn.Status)
			if tt.wantStatus == models.TransactionStatusFailed {
				assert.Equal(t, ReasonExpired, txn.Metadata.String("failure_reason"))
			}
		})
	}
}

func TestVerify_ExpiredDepositReleasesDailyWindow(t *testing.T) {
	f := newFixture(t, Config{PendingExpiry: time.Minute})
	ref := f.initiate(t, "6000")

	_, err := f.svc.Initiate(context.Background(), InitiateRequest{UserID: f.user.ID, Amount: dec("6000")})
	require.ErrorIs(t, err, apperrors.ErrLimitExceeded)

	f.svc.now = func() time.Time { return time.Now().UTC().Add(2 * time.Minute) }
	f.gw.On("Verify", mock.Anything, mock.Anything).
		Return(&gateway.VerifyResponse{Status: gateway.StatusPending, Message: "abandoned"}, nil)
	res, err := f.svc.Verify(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusFailed, res.Status)

	f.initiate(t, "6000")
}

func TestVerify_RecordsGatewayHandleLearnedLater(t *testing.T) {
	f := newFixture(t, Config{})
	ref := f.initiate(t, "100")
	f.gw.On("Verify", mock.Anything, mock.Anything).
		Return(&gateway.VerifyResponse{Status: gateway.StatusPending, GatewayRef: "cs_test_9"}, nil)

	res, err := f.svc.Verify(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusPending, res.Status)
	assert.Equal(t, "cs_test_9", f.transaction(t, ref).Metadata.String(MetaGatewayRef))
}
