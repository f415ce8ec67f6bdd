package bot

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/channel-access/internal/models"
	"github.com/magabrotheeeer/channel-access/internal/services/invite"
	"github.com/magabrotheeeer/channel-access/internal/tariffs"
	"github.com/magabrotheeeer/channel-access/internal/telegram"
)

const testChannelID = int64(-1001234567890)

type MessengerMock struct{ mock.Mock }

func (m *MessengerMock) GetUpdates(ctx context.Context, offset int64, timeoutSeconds int) ([]telegram.Update, error) {
	args := m.Called(ctx, offset, timeoutSeconds)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]telegram.Update), args.Error(1)
}

func (m *MessengerMock) SendMessage(ctx context.Context, chatID int64, text string) error {
	args := m.Called(ctx, chatID, text)
	return args.Error(0)
}

func (m *MessengerMock) SendInvoice(ctx context.Context, chatID int64, invoice telegram.Invoice) error {
	args := m.Called(ctx, chatID, invoice)
	return args.Error(0)
}

func (m *MessengerMock) AnswerPreCheckoutQuery(ctx context.Context, queryID string, ok bool, errorMessage string) error {
	args := m.Called(ctx, queryID, ok, errorMessage)
	return args.Error(0)
}

type LedgerMock struct{ mock.Mock }

func (m *LedgerMock) EnsureSubscriber(ctx context.Context, telegramID int64, username string) (*models.Subscriber, error) {
	args := m.Called(ctx, telegramID, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscriber), args.Error(1)
}

func (m *LedgerMock) DaysLeft(ctx context.Context, telegramID int64) (int, bool, error) {
	args := m.Called(ctx, telegramID)
	return args.Int(0), args.Bool(1), args.Error(2)
}

type PaymentsMock struct{ mock.Mock }

func (m *PaymentsMock) BuildStarsInvoice(tariffCode string) (telegram.Invoice, error) {
	args := m.Called(tariffCode)
	return args.Get(0).(telegram.Invoice), args.Error(1)
}

func (m *PaymentsMock) SettleStars(ctx context.Context, telegramID int64, username string, payload string, amount int) (*models.Subscriber, tariffs.Tariff, error) {
	args := m.Called(ctx, telegramID, username, payload, amount)
	var sub *models.Subscriber
	if args.Get(0) != nil {
		sub = args.Get(0).(*models.Subscriber)
	}
	return sub, args.Get(1).(tariffs.Tariff), args.Error(2)
}

func (m *PaymentsMock) CreatePaymentLink(ctx context.Context, telegramID int64, tariffCode string) (string, error) {
	args := m.Called(ctx, telegramID, tariffCode)
	return args.String(0), args.Error(1)
}

type InvitesMock struct{ mock.Mock }

func (m *InvitesMock) Issue(ctx context.Context, telegramID int64, username string) (string, error) {
	args := m.Called(ctx, telegramID, username)
	return args.String(0), args.Error(1)
}

func (m *InvitesMock) MarkUsed(ctx context.Context, inviteLink string) {
	m.Called(ctx, inviteLink)
}

func (m *InvitesMock) RecordJoin(ctx context.Context, telegramID int64, inviteLink string) {
	m.Called(ctx, telegramID, inviteLink)
}

func (m *InvitesMock) RecordLeave(ctx context.Context, telegramID int64) {
	m.Called(ctx, telegramID)
}

func newBot(messenger *MessengerMock, ledger *LedgerMock, payments *PaymentsMock, invites *InvitesMock) *Bot {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(messenger, ledger, payments, invites, testChannelID, 30, log)
}

func privateMessage(text string) *telegram.Message {
	return &telegram.Message{
		From: &telegram.User{ID: 42, Username: "alice"},
		Chat: telegram.Chat{ID: 42},
		Text: text,
	}
}

func TestHandleStart(t *testing.T) {
	messenger := new(MessengerMock)
	ledger := new(LedgerMock)
	bot := newBot(messenger, ledger, new(PaymentsMock), new(InvitesMock))
	ctx := context.Background()

	ledger.On("EnsureSubscriber", ctx, int64(42), "alice").
		Return(&models.Subscriber{ID: 1}, nil)
	messenger.On("SendMessage", ctx, int64(42), mock.MatchedBy(func(text string) bool {
		return strings.Contains(text, "/buy_1m") &&
			strings.Contains(text, "/buy_12m") &&
			strings.Contains(text, "/access")
	})).Return(nil)

	bot.handleUpdate(ctx, telegram.Update{Message: privateMessage("/start")})
	ledger.AssertExpectations(t)
	messenger.AssertExpectations(t)
}

func TestHandleAccess_NoSubscription(t *testing.T) {
	messenger := new(MessengerMock)
	invites := new(InvitesMock)
	bot := newBot(messenger, new(LedgerMock), new(PaymentsMock), invites)
	ctx := context.Background()

	invites.On("Issue", ctx, int64(42), "alice").Return("", invite.ErrNoActiveSubscription)
	messenger.On("SendMessage", ctx, int64(42), mock.MatchedBy(func(text string) bool {
		return strings.Contains(text, "/start")
	})).Return(nil)

	bot.handleUpdate(ctx, telegram.Update{Message: privateMessage("/access")})
	messenger.AssertExpectations(t)
}

func TestHandleAccess_IssuesLink(t *testing.T) {
	messenger := new(MessengerMock)
	invites := new(InvitesMock)
	bot := newBot(messenger, new(LedgerMock), new(PaymentsMock), invites)
	ctx := context.Background()

	invites.On("Issue", ctx, int64(42), "alice").Return("https://t.me/+abc", nil)
	messenger.On("SendMessage", ctx, int64(42), mock.MatchedBy(func(text string) bool {
		return strings.Contains(text, "https://t.me/+abc")
	})).Return(nil)

	bot.handleUpdate(ctx, telegram.Update{Message: privateMessage("/access")})
	messenger.AssertExpectations(t)
}

func TestHandleStatus(t *testing.T) {
	messenger := new(MessengerMock)
	ledger := new(LedgerMock)
	bot := newBot(messenger, ledger, new(PaymentsMock), new(InvitesMock))
	ctx := context.Background()

	ledger.On("DaysLeft", ctx, int64(42)).Return(17, true, nil)
	messenger.On("SendMessage", ctx, int64(42), mock.MatchedBy(func(text string) bool {
		return strings.Contains(text, "17")
	})).Return(nil)

	bot.handleUpdate(ctx, telegram.Update{Message: privateMessage("/status")})
	messenger.AssertExpectations(t)
}

func TestHandleBuy(t *testing.T) {
	messenger := new(MessengerMock)
	payments := new(PaymentsMock)
	bot := newBot(messenger, new(LedgerMock), payments, new(InvitesMock))
	ctx := context.Background()

	invoice := telegram.Invoice{Payload: "sub_3m", Currency: "XTR"}
	payments.On("BuildStarsInvoice", "3m").Return(invoice, nil)
	messenger.On("SendInvoice", ctx, int64(42), invoice).Return(nil)
	payments.On("CreatePaymentLink", ctx, int64(42), "3m").
		Return("https://securepay.example.com/form/1", nil)
	messenger.On("SendMessage", ctx, int64(42), mock.MatchedBy(func(text string) bool {
		return strings.Contains(text, "https://securepay.example.com/form/1")
	})).Return(nil)

	bot.handleUpdate(ctx, telegram.Update{Message: privateMessage("/buy_3m")})
	payments.AssertExpectations(t)
	messenger.AssertExpectations(t)
}

func TestHandleBuy_UnknownTariff(t *testing.T) {
	messenger := new(MessengerMock)
	payments := new(PaymentsMock)
	bot := newBot(messenger, new(LedgerMock), payments, new(InvitesMock))
	ctx := context.Background()

	payments.On("BuildStarsInvoice", "2w").
		Return(telegram.Invoice{}, tariffs.ErrUnknownTariff)
	messenger.On("SendMessage", ctx, int64(42), mock.Anything).Return(nil)

	bot.handleUpdate(ctx, telegram.Update{Message: privateMessage("/buy_2w")})
	messenger.AssertNotCalled(t, "SendInvoice", mock.Anything, mock.Anything, mock.Anything)
	payments.AssertNotCalled(t, "CreatePaymentLink", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandlePreCheckout(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		wantOK  bool
	}{
		{"known tariff", "sub_3m", true},
		{"unknown tariff", "sub_2w", false},
		{"garbage payload", "something", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			messenger := new(MessengerMock)
			bot := newBot(messenger, new(LedgerMock), new(PaymentsMock), new(InvitesMock))
			ctx := context.Background()

			messenger.On("AnswerPreCheckoutQuery", ctx, "q1", tc.wantOK, mock.Anything).Return(nil)

			bot.handleUpdate(ctx, telegram.Update{PreCheckoutQuery: &telegram.PreCheckoutQuery{
				ID:             "q1",
				From:           telegram.User{ID: 42},
				InvoicePayload: tc.payload,
			}})
			messenger.AssertExpectations(t)
		})
	}
}

func TestHandleSuccessfulPayment(t *testing.T) {
	messenger := new(MessengerMock)
	payments := new(PaymentsMock)
	invites := new(InvitesMock)
	bot := newBot(messenger, new(LedgerMock), payments, invites)
	ctx := context.Background()

	tariff, _ := tariffs.Get("3m")
	payments.On("SettleStars", ctx, int64(42), "alice", "sub_3m", 650).
		Return(&models.Subscriber{ID: 1}, tariff, nil)
	invites.On("Issue", ctx, int64(42), "alice").Return("https://t.me/+abc", nil)
	messenger.On("SendMessage", ctx, int64(42), mock.MatchedBy(func(text string) bool {
		return strings.Contains(text, "https://t.me/+abc") && strings.Contains(text, "3 мес.")
	})).Return(nil)

	msg := privateMessage("")
	msg.SuccessfulPayment = &telegram.SuccessfulPayment{
		Currency:       "XTR",
		TotalAmount:    650,
		InvoicePayload: "sub_3m",
	}
	bot.handleUpdate(ctx, telegram.Update{Message: msg})
	payments.AssertExpectations(t)
	invites.AssertExpectations(t)
	messenger.AssertExpectations(t)
}

func TestHandleChatMember_JoinMarksInviteUsed(t *testing.T) {
	invites := new(InvitesMock)
	bot := newBot(new(MessengerMock), new(LedgerMock), new(PaymentsMock), invites)
	ctx := context.Background()

	invites.On("MarkUsed", ctx, "https://t.me/+abc").Once()
	invites.On("RecordJoin", ctx, int64(42), "https://t.me/+abc").Once()

	bot.handleUpdate(ctx, telegram.Update{ChatMember: &telegram.ChatMemberUpdated{
		Chat:          telegram.Chat{ID: testChannelID},
		NewChatMember: telegram.ChatMember{User: telegram.User{ID: 42}, Status: "member"},
		InviteLink:    &telegram.ChatInviteLink{InviteLink: "https://t.me/+abc"},
	}})
	invites.AssertExpectations(t)
}

func TestHandleChatMember_Leave(t *testing.T) {
	invites := new(InvitesMock)
	bot := newBot(new(MessengerMock), new(LedgerMock), new(PaymentsMock), invites)
	ctx := context.Background()

	invites.On("RecordLeave", ctx, int64(42)).Once()

	bot.handleUpdate(ctx, telegram.Update{ChatMember: &telegram.ChatMemberUpdated{
		Chat:          telegram.Chat{ID: testChannelID},
		NewChatMember: telegram.ChatMember{User: telegram.User{ID: 42}, Status: "left"},
	}})
	invites.AssertExpectations(t)
}

func TestHandleChatMember_ForeignChatIgnored(t *testing.T) {
	invites := new(InvitesMock)
	bot := newBot(new(MessengerMock), new(LedgerMock), new(PaymentsMock), invites)

	bot.handleUpdate(context.Background(), telegram.Update{ChatMember: &telegram.ChatMemberUpdated{
		Chat:          telegram.Chat{ID: -100555},
		NewChatMember: telegram.ChatMember{User: telegram.User{ID: 42}, Status: "member"},
	}})
	invites.AssertNotCalled(t, "RecordJoin", mock.Anything, mock.Anything, mock.Anything)
	invites.AssertNotCalled(t, "RecordLeave", mock.Anything, mock.Anything)
}
