package payment

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/channel-access/internal/lib/cryptokit"
	"github.com/magabrotheeeer/channel-access/internal/models"
	"github.com/magabrotheeeer/channel-access/internal/storage/repository"
	"github.com/magabrotheeeer/channel-access/internal/tariffs"
)

const (
	testKey        = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA="
	testAppSecret  = "test-secret"
	testWebhookURL = "https://access.example.com"
)

type RepoMock struct{ mock.Mock }

func (m *RepoMock) CreatePayment(ctx context.Context, payment models.Payment) (int, error) {
	args := m.Called(ctx, payment)
	return args.Int(0), args.Error(1)
}

func (m *RepoMock) GetPaymentByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func (m *RepoMock) UpdatePaymentStatus(ctx context.Context, paymentID int, status string) (string, error) {
	args := m.Called(ctx, paymentID, status)
	return args.String(0), args.Error(1)
}

func (m *RepoMock) GetSubscriberByHash(ctx context.Context, telegramIDHash string) (*models.Subscriber, error) {
	args := m.Called(ctx, telegramIDHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscriber), args.Error(1)
}

type LedgerMock struct{ mock.Mock }

func (m *LedgerMock) Grant(ctx context.Context, telegramID int64, username string, tariffCode string) (*models.Subscriber, tariffs.Tariff, error) {
	args := m.Called(ctx, telegramID, username, tariffCode)
	var sub *models.Subscriber
	if args.Get(0) != nil {
		sub = args.Get(0).(*models.Subscriber)
	}
	return sub, args.Get(1).(tariffs.Tariff), args.Error(2)
}

type GatewayMock struct{ mock.Mock }

func (m *GatewayMock) TerminalKey() string {
	return m.Called().String(0)
}

func (m *GatewayMock) Sign(params map[string]string) {
	m.Called(params)
}

func (m *GatewayMock) Verify(params map[string]string) bool {
	return m.Called(params).Bool(0)
}

func (m *GatewayMock) Init(ctx context.Context, params map[string]string) (string, error) {
	args := m.Called(ctx, params)
	return args.String(0), args.Error(1)
}

type AuditMock struct{ mock.Mock }

func (m *AuditMock) Log(ctx context.Context, telegramID *int64, action string, meta string) {
	m.Called(ctx, telegramID, action, meta)
}

func newService(t *testing.T, repo *RepoMock, ledger *LedgerMock, gateway *GatewayMock, audit *AuditMock) *Service {
	t.Helper()
	codec, err := cryptokit.NewCodec(testKey)
	require.NoError(t, err)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := New(repo, ledger, gateway, audit, codec, testAppSecret, testWebhookURL, log)
	svc.now = func() time.Time { return time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestBuildStarsInvoice(t *testing.T) {
	svc := newService(t, new(RepoMock), new(LedgerMock), new(GatewayMock), new(AuditMock))

	invoice, err := svc.BuildStarsInvoice("3m")
	require.NoError(t, err)
	assert.Equal(t, "sub_3m", invoice.Payload)
	assert.Equal(t, "XTR", invoice.Currency)
	require.Len(t, invoice.Prices, 1)
	assert.Equal(t, 650, invoice.Prices[0].Amount)

	_, err = svc.BuildStarsInvoice("2w")
	require.ErrorIs(t, err, tariffs.ErrUnknownTariff)
}

func TestSettleStars(t *testing.T) {
	repo := new(RepoMock)
	ledger := new(LedgerMock)
	audit := new(AuditMock)
	svc := newService(t, repo, ledger, new(GatewayMock), audit)
	ctx := context.Background()

	digest := cryptokit.HashID(testAppSecret, 42)
	end := time.Date(2025, time.September, 1, 12, 0, 0, 0, time.UTC)
	tariff, _ := tariffs.Get("3m")

	repo.On("CreatePayment", ctx, mock.MatchedBy(func(p models.Payment) bool {
		return p.TelegramIDHash == digest &&
			p.Amount == 650 &&
			p.Currency == "XTR" &&
			p.Method == models.MethodStars &&
			p.Status == models.PaymentStatusPaid &&
			p.Payload != nil && *p.Payload == "sub_3m"
	})).Return(1, nil)
	ledger.On("Grant", ctx, int64(42), "alice", "3m").
		Return(&models.Subscriber{ID: 1, SubscriptionEnd: &end}, tariff, nil)
	audit.On("Log", ctx, mock.Anything, "payment_received", mock.Anything).Once()

	sub, got, err := svc.SettleStars(ctx, 42, "alice", "sub_3m", 650)
	require.NoError(t, err)
	assert.Equal(t, "3m", got.Code)
	require.NotNil(t, sub.SubscriptionEnd)
	repo.AssertExpectations(t)
	audit.AssertExpectations(t)
}

func TestSettleStars_UnknownPayload(t *testing.T) {
	repo := new(RepoMock)
	ledger := new(LedgerMock)
	svc := newService(t, repo, ledger, new(GatewayMock), new(AuditMock))
	ctx := context.Background()

	cases := []string{"", "3m", "sub_2w", "order_3m"}
	for _, payload := range cases {
		_, _, err := svc.SettleStars(ctx, 42, "alice", payload, 650)
		require.ErrorIs(t, err, ErrUnknownPayload, "payload %q", payload)
	}
	repo.AssertNotCalled(t, "CreatePayment", mock.Anything, mock.Anything)
	ledger.AssertNotCalled(t, "Grant", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCreatePaymentLink(t *testing.T) {
	repo := new(RepoMock)
	gateway := new(GatewayMock)
	audit := new(AuditMock)
	svc := newService(t, repo, new(LedgerMock), gateway, audit)
	ctx := context.Background()

	digest := cryptokit.HashID(testAppSecret, 42)
	wantOrderID := fmt.Sprintf("sub_3m_%s_%d", digest, svc.now().Unix())

	repo.On("CreatePayment", ctx, mock.MatchedBy(func(p models.Payment) bool {
		return p.TelegramIDHash == digest &&
			p.Amount == 30000 &&
			p.Currency == "RUB" &&
			p.Method == models.MethodTinkoff &&
			p.Status == models.PaymentStatusPending &&
			p.OrderID != nil && *p.OrderID == wantOrderID
	})).Return(1, nil)
	gateway.On("TerminalKey").Return("terminal-1")
	gateway.On("Sign", mock.Anything).Run(func(args mock.Arguments) {
		params := args.Get(0).(map[string]string)
		params["Token"] = "signed"
	})
	gateway.On("Init", ctx, mock.MatchedBy(func(params map[string]string) bool {
		return params["TerminalKey"] == "terminal-1" &&
			params["Amount"] == "30000" &&
			params["OrderId"] == wantOrderID &&
			params["NotificationURL"] == testWebhookURL+"/webhook/tinkoff" &&
			params["Token"] == "signed"
	})).Return("https://securepay.example.com/form/1", nil)
	audit.On("Log", ctx, mock.Anything, "payment_link_created", mock.Anything).Once()

	url, err := svc.CreatePaymentLink(ctx, 42, "3m")
	require.NoError(t, err)
	assert.Equal(t, "https://securepay.example.com/form/1", url)
	repo.AssertExpectations(t)
	gateway.AssertExpectations(t)
}

func TestCreatePaymentLink_GatewayErrorLeavesNoRecord(t *testing.T) {
	repo := new(RepoMock)
	gateway := new(GatewayMock)
	audit := new(AuditMock)
	svc := newService(t, repo, new(LedgerMock), gateway, audit)

	gateway.On("TerminalKey").Return("terminal-1")
	gateway.On("Sign", mock.Anything)
	gateway.On("Init", mock.Anything, mock.Anything).
		Return("", fmt.Errorf("tinkoff.Init: gateway init failed"))

	_, err := svc.CreatePaymentLink(context.Background(), 42, "3m")
	require.Error(t, err)
	repo.AssertNotCalled(t, "CreatePayment", mock.Anything, mock.Anything)
	audit.AssertNotCalled(t, "Log", mock.Anything, mock.Anything, "payment_link_created", mock.Anything)
}

func TestCreatePaymentLink_UnknownTariff(t *testing.T) {
	repo := new(RepoMock)
	svc := newService(t, repo, new(LedgerMock), new(GatewayMock), new(AuditMock))

	_, err := svc.CreatePaymentLink(context.Background(), 42, "2w")
	require.ErrorIs(t, err, tariffs.ErrUnknownTariff)
	repo.AssertNotCalled(t, "CreatePayment", mock.Anything, mock.Anything)
}

func webhookNotification(svc *Service, orderID, status string) map[string]any {
	return map[string]any{
		"TerminalKey": "terminal-1",
		"OrderId":     orderID,
		"Status":      status,
		"Success":     true,
		"Amount":      float64(30000),
		"Token":       "signature",
	}
}

func TestProcessWebhook_InvalidSignature(t *testing.T) {
	repo := new(RepoMock)
	gateway := new(GatewayMock)
	audit := new(AuditMock)
	svc := newService(t, repo, new(LedgerMock), gateway, audit)
	ctx := context.Background()

	gateway.On("Verify", mock.Anything).Return(false)
	audit.On("Log", ctx, mock.Anything, "webhook_invalid_signature", "").Once()

	_, err := svc.ProcessWebhook(ctx, webhookNotification(svc, "sub_3m_x_1", models.PaymentStatusConfirmed))
	require.ErrorIs(t, err, ErrInvalidSignature)
	repo.AssertNotCalled(t, "GetPaymentByOrderID", mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "UpdatePaymentStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessWebhook_MissingOrderID(t *testing.T) {
	gateway := new(GatewayMock)
	svc := newService(t, new(RepoMock), new(LedgerMock), gateway, new(AuditMock))

	gateway.On("Verify", mock.Anything).Return(true)

	notification := map[string]any{"Status": models.PaymentStatusConfirmed, "Token": "signature"}
	_, err := svc.ProcessWebhook(context.Background(), notification)
	require.ErrorIs(t, err, ErrMissingOrderID)
}

func TestProcessWebhook_MalformedOrderID(t *testing.T) {
	repo := new(RepoMock)
	ledger := new(LedgerMock)
	gateway := new(GatewayMock)
	svc := newService(t, repo, ledger, gateway, new(AuditMock))
	ctx := context.Background()

	gateway.On("Verify", mock.Anything).Return(true)

	for _, orderID := range []string{"totally-garbage", "order_3m_hash_1", "sub_3m"} {
		_, err := svc.ProcessWebhook(ctx, webhookNotification(svc, orderID, models.PaymentStatusConfirmed))
		require.ErrorIs(t, err, ErrMalformedOrderID, "order id %q", orderID)
	}
	repo.AssertNotCalled(t, "GetPaymentByOrderID", mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "UpdatePaymentStatus", mock.Anything, mock.Anything, mock.Anything)
	ledger.AssertNotCalled(t, "Grant", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessWebhook_AlternateOrderIDSpelling(t *testing.T) {
	repo := new(RepoMock)
	ledger := new(LedgerMock)
	gateway := new(GatewayMock)
	svc := newService(t, repo, ledger, gateway, new(AuditMock))
	ctx := context.Background()

	digest := cryptokit.HashID(testAppSecret, 42)
	orderID := fmt.Sprintf("sub_3m_%s_1748779200", digest)

	notification := map[string]any{
		"TerminalKey": "terminal-1",
		"OrderID":     orderID,
		"Status":      "AUTHORIZED",
		"Token":       "signature",
	}

	gateway.On("Verify", mock.Anything).Return(true)
	repo.On("GetPaymentByOrderID", ctx, orderID).
		Return(&models.Payment{ID: 5, Status: models.PaymentStatusPending}, nil)
	repo.On("UpdatePaymentStatus", ctx, 5, "AUTHORIZED").
		Return(models.PaymentStatusPending, nil)

	result, err := svc.ProcessWebhook(ctx, notification)
	require.NoError(t, err)
	assert.False(t, result.Granted)
	repo.AssertExpectations(t)
}

func TestProcessWebhook_IntermediateStatus(t *testing.T) {
	repo := new(RepoMock)
	ledger := new(LedgerMock)
	gateway := new(GatewayMock)
	svc := newService(t, repo, ledger, gateway, new(AuditMock))
	ctx := context.Background()

	digest := cryptokit.HashID(testAppSecret, 42)
	orderID := fmt.Sprintf("sub_3m_%s_1748779200", digest)

	gateway.On("Verify", mock.Anything).Return(true)
	repo.On("GetPaymentByOrderID", ctx, orderID).
		Return(&models.Payment{ID: 5, Status: models.PaymentStatusPending}, nil)
	repo.On("UpdatePaymentStatus", ctx, 5, "AUTHORIZED").
		Return(models.PaymentStatusPending, nil)

	result, err := svc.ProcessWebhook(ctx, webhookNotification(svc, orderID, "AUTHORIZED"))
	require.NoError(t, err)
	assert.False(t, result.Granted)
	ledger.AssertNotCalled(t, "Grant", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessWebhook_Confirmed(t *testing.T) {
	repo := new(RepoMock)
	ledger := new(LedgerMock)
	gateway := new(GatewayMock)
	audit := new(AuditMock)
	svc := newService(t, repo, ledger, gateway, audit)
	ctx := context.Background()

	codec, err := cryptokit.NewCodec(testKey)
	require.NoError(t, err)
	encryptedID, err := codec.EncryptID(42)
	require.NoError(t, err)

	digest := cryptokit.HashID(testAppSecret, 42)
	orderID := fmt.Sprintf("sub_3m_%s_1748779200", digest)
	username := "alice"
	tariff, _ := tariffs.Get("3m")

	gateway.On("Verify", mock.Anything).Return(true)
	repo.On("GetPaymentByOrderID", ctx, orderID).
		Return(&models.Payment{ID: 5, Status: models.PaymentStatusPending}, nil)
	repo.On("UpdatePaymentStatus", ctx, 5, models.PaymentStatusConfirmed).
		Return(models.PaymentStatusPending, nil)
	repo.On("GetSubscriberByHash", ctx, digest).
		Return(&models.Subscriber{ID: 1, TelegramID: encryptedID, TelegramIDHash: digest, Username: &username}, nil)
	ledger.On("Grant", ctx, int64(42), "alice", "3m").
		Return(&models.Subscriber{ID: 1}, tariff, nil)
	audit.On("Log", ctx, mock.Anything, "payment_received", mock.Anything).Once()

	result, err := svc.ProcessWebhook(ctx, webhookNotification(svc, orderID, models.PaymentStatusConfirmed))
	require.NoError(t, err)
	assert.True(t, result.Granted)
	assert.Equal(t, int64(42), result.TelegramID)
	assert.Equal(t, "3m", result.Tariff.Code)
	ledger.AssertExpectations(t)
	audit.AssertExpectations(t)
}

func TestProcessWebhook_DuplicateConfirmation(t *testing.T) {
	repo := new(RepoMock)
	ledger := new(LedgerMock)
	gateway := new(GatewayMock)
	svc := newService(t, repo, ledger, gateway, new(AuditMock))
	ctx := context.Background()

	digest := cryptokit.HashID(testAppSecret, 42)
	orderID := fmt.Sprintf("sub_3m_%s_1748779200", digest)

	gateway.On("Verify", mock.Anything).Return(true)
	repo.On("GetPaymentByOrderID", ctx, orderID).
		Return(&models.Payment{ID: 5, Status: models.PaymentStatusConfirmed}, nil)
	repo.On("UpdatePaymentStatus", ctx, 5, models.PaymentStatusConfirmed).
		Return(models.PaymentStatusConfirmed, nil)

	result, err := svc.ProcessWebhook(ctx, webhookNotification(svc, orderID, models.PaymentStatusConfirmed))
	require.NoError(t, err)
	assert.False(t, result.Granted)
	ledger.AssertNotCalled(t, "Grant", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "GetSubscriberByHash", mock.Anything, mock.Anything)
}

func TestProcessWebhook_SubscriberNotFound(t *testing.T) {
	repo := new(RepoMock)
	ledger := new(LedgerMock)
	gateway := new(GatewayMock)
	audit := new(AuditMock)
	svc := newService(t, repo, ledger, gateway, audit)
	ctx := context.Background()

	digest := cryptokit.HashID(testAppSecret, 42)
	orderID := fmt.Sprintf("sub_3m_%s_1748779200", digest)

	gateway.On("Verify", mock.Anything).Return(true)
	repo.On("GetPaymentByOrderID", ctx, orderID).Return(nil, nil)
	repo.On("GetSubscriberByHash", ctx, digest).
		Return(nil, fmt.Errorf("storage.GetSubscriberByHash: %w", repository.ErrSubscriberNotFound))
	audit.On("Log", ctx, mock.Anything, "tinkoff_user_not_found", mock.Anything).Once()

	result, err := svc.ProcessWebhook(ctx, webhookNotification(svc, orderID, models.PaymentStatusConfirmed))
	require.NoError(t, err)
	assert.False(t, result.Granted)
	audit.AssertExpectations(t)
	ledger.AssertNotCalled(t, "Grant", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessWebhook_ConfirmedWithoutStoredPayment(t *testing.T) {
	repo := new(RepoMock)
	ledger := new(LedgerMock)
	gateway := new(GatewayMock)
	audit := new(AuditMock)
	svc := newService(t, repo, ledger, gateway, audit)
	ctx := context.Background()

	codec, err := cryptokit.NewCodec(testKey)
	require.NoError(t, err)
	encryptedID, err := codec.EncryptID(42)
	require.NoError(t, err)

	digest := cryptokit.HashID(testAppSecret, 42)
	orderID := fmt.Sprintf("sub_1m_%s_1748779200", digest)
	tariff, _ := tariffs.Get("1m")

	gateway.On("Verify", mock.Anything).Return(true)
	repo.On("GetPaymentByOrderID", ctx, orderID).Return(nil, nil)
	repo.On("GetSubscriberByHash", ctx, digest).
		Return(&models.Subscriber{ID: 1, TelegramID: encryptedID, TelegramIDHash: digest}, nil)
	ledger.On("Grant", ctx, int64(42), "", "1m").
		Return(&models.Subscriber{ID: 1}, tariff, nil)
	audit.On("Log", ctx, mock.Anything, "payment_received", mock.Anything).Once()

	result, err := svc.ProcessWebhook(ctx, webhookNotification(svc, orderID, models.PaymentStatusConfirmed))
	require.NoError(t, err)
	assert.True(t, result.Granted)
	repo.AssertNotCalled(t, "UpdatePaymentStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestParseOrderID(t *testing.T) {
	digest := cryptokit.HashID(testAppSecret, 42)

	code, gotDigest, err := parseOrderID(fmt.Sprintf("sub_3m_%s_1748779200", digest))
	require.NoError(t, err)
	assert.Equal(t, "3m", code)
	assert.Equal(t, digest, gotDigest)

	for _, malformed := range []string{"", "sub_3m", "order_3m_hash_1", "sub_3m_hash_notatime"} {
		_, _, err := parseOrderID(malformed)
		require.ErrorIs(t, err, ErrMalformedOrderID, "order id %q", malformed)
	}
}
