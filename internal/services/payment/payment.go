// Package payment реализует обе схемы оплаты доступа: мгновенное
// зачисление Telegram Stars и отложенное подтверждение карточного
// шлюза через вебхук.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/magabrotheeeer/channel-access/internal/lib/cryptokit"
	"github.com/magabrotheeeer/channel-access/internal/models"
	"github.com/magabrotheeeer/channel-access/internal/storage/repository"
	"github.com/magabrotheeeer/channel-access/internal/tariffs"
	"github.com/magabrotheeeer/channel-access/internal/telegram"
	"github.com/magabrotheeeer/channel-access/internal/tinkoff"
)

var (
	// ErrUnknownPayload возвращается для метки счёта, не указывающей
	// на тариф из каталога.
	ErrUnknownPayload = errors.New("unknown invoice payload")
	// ErrInvalidSignature возвращается для уведомления с неверной подписью.
	ErrInvalidSignature = errors.New("invalid notification signature")
	// ErrMissingOrderID возвращается для уведомления без идентификатора заказа.
	ErrMissingOrderID = errors.New("notification without order id")
	// ErrMalformedOrderID возвращается для идентификатора заказа,
	// не соответствующего формату sub_<код>_<дайджест>_<unix>.
	ErrMalformedOrderID = errors.New("malformed order id")
)

// PaymentRepository определяет методы хранилища, нужные платёжному сервису.
type PaymentRepository interface {
	CreatePayment(ctx context.Context, payment models.Payment) (int, error)
	GetPaymentByOrderID(ctx context.Context, orderID string) (*models.Payment, error)
	UpdatePaymentStatus(ctx context.Context, paymentID int, status string) (string, error)
	GetSubscriberByHash(ctx context.Context, telegramIDHash string) (*models.Subscriber, error)
}

// Ledger описывает продление подписки после успешной оплаты.
type Ledger interface {
	Grant(ctx context.Context, telegramID int64, username string, tariffCode string) (*models.Subscriber, tariffs.Tariff, error)
}

// Gateway описывает операции карточного шлюза.
type Gateway interface {
	TerminalKey() string
	Sign(params map[string]string)
	Verify(params map[string]string) bool
	Init(ctx context.Context, params map[string]string) (string, error)
}

// Auditor пишет записи журнала безопасности.
type Auditor interface {
	Log(ctx context.Context, telegramID *int64, action string, meta string)
}

// Service реализует оплату доступа.
type Service struct {
	repo           PaymentRepository
	ledger         Ledger
	gateway        Gateway
	audit          Auditor
	codec          *cryptokit.Codec
	appSecret      string
	webhookBaseURL string
	log            *slog.Logger
	now            func() time.Time
}

// New создает новый экземпляр Service.
func New(repo PaymentRepository, ledger Ledger, gateway Gateway, audit Auditor,
	codec *cryptokit.Codec, appSecret, webhookBaseURL string, log *slog.Logger) *Service {
	return &Service{
		repo:           repo,
		ledger:         ledger,
		gateway:        gateway,
		audit:          audit,
		codec:          codec,
		appSecret:      appSecret,
		webhookBaseURL: webhookBaseURL,
		log:            log,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// BuildStarsInvoice собирает счёт Telegram Stars для тарифа.
// Метка счёта вида sub_<код тарифа> возвращается боту в successful_payment
// и по ней зачисляется оплата.
func (s *Service) BuildStarsInvoice(tariffCode string) (telegram.Invoice, error) {
	const op = "payment.BuildStarsInvoice"

	tariff, err := tariffs.Get(tariffCode)
	if err != nil {
		return telegram.Invoice{}, fmt.Errorf("%s: %w", op, err)
	}
	return telegram.Invoice{
		Title:       "Доступ к архиву",
		Description: "Закрытые материалы. Полный доступ.",
		Payload:     "sub_" + tariff.Code,
		Currency:    "XTR",
		Prices: []telegram.LabeledPrice{
			{Label: fmt.Sprintf("Подписка на %d мес.", tariff.Months), Amount: tariff.PriceStars},
		},
	}, nil
}

// SettleStars зачисляет оплату Telegram Stars: разбирает метку счёта,
// записывает платёж и продлевает подписку. Stars приходят уже списанными,
// подтверждения шлюза здесь нет.
func (s *Service) SettleStars(ctx context.Context, telegramID int64, username string,
	payload string, amount int) (*models.Subscriber, tariffs.Tariff, error) {
	const op = "payment.SettleStars"

	code, ok := strings.CutPrefix(payload, "sub_")
	if !ok {
		return nil, tariffs.Tariff{}, fmt.Errorf("%s: %w: %q", op, ErrUnknownPayload, payload)
	}
	if _, err := tariffs.Get(code); err != nil {
		return nil, tariffs.Tariff{}, fmt.Errorf("%s: %w: %q", op, ErrUnknownPayload, payload)
	}

	encryptedID, err := s.codec.EncryptID(telegramID)
	if err != nil {
		return nil, tariffs.Tariff{}, fmt.Errorf("%s: %w", op, err)
	}
	record := models.Payment{
		TelegramID:     encryptedID,
		TelegramIDHash: cryptokit.HashID(s.appSecret, telegramID),
		Amount:         amount,
		Currency:       "XTR",
		Method:         models.MethodStars,
		Status:         models.PaymentStatusPaid,
		Payload:        &payload,
	}
	if _, err := s.repo.CreatePayment(ctx, record); err != nil {
		return nil, tariffs.Tariff{}, fmt.Errorf("%s: %w", op, err)
	}

	sub, tariff, err := s.ledger.Grant(ctx, telegramID, username, code)
	if err != nil {
		return nil, tariffs.Tariff{}, fmt.Errorf("%s: %w", op, err)
	}

	s.audit.Log(ctx, &telegramID, "payment_received",
		fmt.Sprintf("method=stars tariff=%s amount=%d", tariff.Code, amount))
	return sub, tariff, nil
}

// CreatePaymentLink регистрирует платёж в карточном шлюзе и возвращает
// URL платёжной формы. Запись о платеже со статусом pending создаётся
// только после успешной регистрации: отказ шлюза не оставляет следов.
func (s *Service) CreatePaymentLink(ctx context.Context, telegramID int64, tariffCode string) (string, error) {
	const op = "payment.CreatePaymentLink"

	tariff, err := tariffs.Get(tariffCode)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	digest := cryptokit.HashID(s.appSecret, telegramID)
	orderID := fmt.Sprintf("sub_%s_%s_%d", tariff.Code, digest, s.now().Unix())
	amount := tariff.PriceRub * 100
	payload := "sub_" + tariff.Code

	encryptedID, err := s.codec.EncryptID(telegramID)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	params := map[string]string{
		"TerminalKey":     s.gateway.TerminalKey(),
		"Amount":          strconv.Itoa(amount),
		"OrderId":         orderID,
		"Description":     fmt.Sprintf("Доступ к архиву. %d мес.", tariff.Months),
		"NotificationURL": s.webhookBaseURL + "/webhook/tinkoff",
	}
	s.gateway.Sign(params)

	url, err := s.gateway.Init(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	record := models.Payment{
		TelegramID:     encryptedID,
		TelegramIDHash: digest,
		Amount:         amount,
		Currency:       "RUB",
		Method:         models.MethodTinkoff,
		Status:         models.PaymentStatusPending,
		OrderID:        &orderID,
		Payload:        &payload,
	}
	if _, err := s.repo.CreatePayment(ctx, record); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	s.audit.Log(ctx, &telegramID, "payment_link_created",
		fmt.Sprintf("tariff=%s order_id=%s", tariff.Code, orderID))
	return url, nil
}

// Result — итог обработки уведомления шлюза.
// Granted выставляется только при фактическом продлении подписки;
// TelegramID тогда содержит расшифрованный идентификатор, чтобы
// вызывающий код мог уведомить пользователя.
type Result struct {
	Message    string
	Granted    bool
	TelegramID int64
	Tariff     tariffs.Tariff
	Status     string
}

// ProcessWebhook обрабатывает уведомление карточного шлюза.
//
// Подпись проверяется до любых изменений состояния. Статус записывается
// в платёж как есть; подписка продлевается только при переходе платежа
// в подтверждённый статус, поэтому повторная доставка одного уведомления
// не продлевает подписку дважды. Уведомление с неверной подписью либо
// без разборного идентификатора заказа отклоняется типизированной
// ошибкой до каких-либо изменений состояния.
func (s *Service) ProcessWebhook(ctx context.Context, notification map[string]any) (Result, error) {
	const op = "payment.ProcessWebhook"

	params := tinkoff.FlattenParams(notification)
	if !s.gateway.Verify(params) {
		s.audit.Log(ctx, nil, "webhook_invalid_signature", "")
		return Result{}, fmt.Errorf("%s: %w", op, ErrInvalidSignature)
	}

	// Шлюз присылает идентификатор заказа в одном из двух написаний.
	orderID := params["OrderId"]
	if orderID == "" {
		orderID = params["OrderID"]
	}
	if orderID == "" {
		return Result{}, fmt.Errorf("%s: %w", op, ErrMissingOrderID)
	}
	status := params["Status"]

	code, digest, err := parseOrderID(orderID)
	if err != nil {
		s.log.Warn("webhook for unparseable order id", slog.String("order_id", orderID))
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}

	previousStatus := ""
	stored, err := s.repo.GetPaymentByOrderID(ctx, orderID)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}
	if stored != nil {
		previousStatus, err = s.repo.UpdatePaymentStatus(ctx, stored.ID, status)
		if err != nil {
			return Result{}, fmt.Errorf("%s: %w", op, err)
		}
	}

	if status != models.PaymentStatusConfirmed {
		return Result{Message: "status recorded", Status: status}, nil
	}
	if previousStatus == models.PaymentStatusConfirmed {
		s.log.Info("duplicate confirmation for order", slog.String("order_id", orderID))
		return Result{Message: "already processed", Status: status}, nil
	}

	sub, err := s.repo.GetSubscriberByHash(ctx, digest)
	if err != nil {
		if errors.Is(err, repository.ErrSubscriberNotFound) {
			s.audit.Log(ctx, nil, "tinkoff_user_not_found", fmt.Sprintf("order_id=%s", orderID))
			return Result{Message: "user not found", Status: status}, nil
		}
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}
	telegramID, err := s.codec.DecryptID(sub.TelegramID)
	if err != nil {
		s.audit.Log(ctx, nil, "tinkoff_user_not_found", fmt.Sprintf("order_id=%s", orderID))
		return Result{Message: "user not found", Status: status}, nil
	}

	username := ""
	if sub.Username != nil {
		username = *sub.Username
	}
	_, tariff, err := s.ledger.Grant(ctx, telegramID, username, code)
	if err != nil {
		if errors.Is(err, tariffs.ErrUnknownTariff) {
			s.log.Error("confirmed order references unknown tariff", slog.String("order_id", orderID))
			return Result{Message: "unknown tariff", Status: status}, nil
		}
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}

	s.audit.Log(ctx, &telegramID, "payment_received",
		fmt.Sprintf("method=tinkoff tariff=%s order_id=%s", tariff.Code, orderID))
	return Result{
		Message:    "payment confirmed",
		Granted:    true,
		TelegramID: telegramID,
		Tariff:     tariff,
		Status:     status,
	}, nil
}

// parseOrderID разбирает идентификатор заказа вида sub_<код>_<дайджест>_<unix>.
// Дайджест сам содержит символ подчёркивания (url-safe base64), поэтому
// разбор идёт по крайним сегментам.
func parseOrderID(orderID string) (tariffCode, digest string, err error) {
	parts := strings.Split(orderID, "_")
	if len(parts) < 4 || parts[0] != "sub" {
		return "", "", fmt.Errorf("%w: %q", ErrMalformedOrderID, orderID)
	}
	if _, err := strconv.ParseInt(parts[len(parts)-1], 10, 64); err != nil {
		return "", "", fmt.Errorf("%w: %q", ErrMalformedOrderID, orderID)
	}
	return parts[1], strings.Join(parts[2:len(parts)-1], "_"), nil
}
