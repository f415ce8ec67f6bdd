// Package bot реализует цикл обновлений Telegram-бота: команды продажи
// и выдачи доступа, подтверждение списаний Stars и учёт событий членства
// в канале.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/magabrotheeeer/channel-access/internal/lib/sl"
	"github.com/magabrotheeeer/channel-access/internal/models"
	"github.com/magabrotheeeer/channel-access/internal/services/invite"
	"github.com/magabrotheeeer/channel-access/internal/tariffs"
	"github.com/magabrotheeeer/channel-access/internal/telegram"
)

// retryDelay — пауза перед повтором после ошибки getUpdates.
const retryDelay = 3 * time.Second

// Messenger описывает операции Bot API, нужные циклу обновлений.
type Messenger interface {
	GetUpdates(ctx context.Context, offset int64, timeoutSeconds int) ([]telegram.Update, error)
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendInvoice(ctx context.Context, chatID int64, invoice telegram.Invoice) error
	AnswerPreCheckoutQuery(ctx context.Context, queryID string, ok bool, errorMessage string) error
}

// Ledger описывает операции над подписками.
type Ledger interface {
	EnsureSubscriber(ctx context.Context, telegramID int64, username string) (*models.Subscriber, error)
	DaysLeft(ctx context.Context, telegramID int64) (int, bool, error)
}

// Payments описывает обе схемы оплаты.
type Payments interface {
	BuildStarsInvoice(tariffCode string) (telegram.Invoice, error)
	SettleStars(ctx context.Context, telegramID int64, username string, payload string, amount int) (*models.Subscriber, tariffs.Tariff, error)
	CreatePaymentLink(ctx context.Context, telegramID int64, tariffCode string) (string, error)
}

// Invites описывает выдачу и учёт ссылок-приглашений.
type Invites interface {
	Issue(ctx context.Context, telegramID int64, username string) (string, error)
	MarkUsed(ctx context.Context, inviteLink string)
	RecordJoin(ctx context.Context, telegramID int64, inviteLink string)
	RecordLeave(ctx context.Context, telegramID int64)
}

// Bot обрабатывает ленту обновлений.
type Bot struct {
	messenger   Messenger
	ledger      Ledger
	payments    Payments
	invites     Invites
	channelID   int64
	pollTimeout int
	log         *slog.Logger
}

// New создает новый экземпляр Bot.
func New(messenger Messenger, ledger Ledger, payments Payments, invites Invites,
	channelID int64, pollTimeout int, log *slog.Logger) *Bot {
	return &Bot{
		messenger:   messenger,
		ledger:      ledger,
		payments:    payments,
		invites:     invites,
		channelID:   channelID,
		pollTimeout: pollTimeout,
		log:         log,
	}
}

// Run крутит long-polling до отмены контекста. Сбой одного обновления
// не прерывает цикл.
func (b *Bot) Run(ctx context.Context) {
	var offset int64
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		updates, err := b.messenger.GetUpdates(ctx, offset, b.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.log.Error("failed to get updates", sl.Err(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(retryDelay):
			}
			continue
		}

		for _, update := range updates {
			offset = update.UpdateID + 1
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update telegram.Update) {
	switch {
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	case update.PreCheckoutQuery != nil:
		b.handlePreCheckout(ctx, update.PreCheckoutQuery)
	case update.ChatMember != nil:
		b.handleChatMember(ctx, update.ChatMember)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *telegram.Message) {
	if msg.SuccessfulPayment != nil {
		b.handleSuccessfulPayment(ctx, msg)
		return
	}
	if msg.From == nil {
		return
	}

	switch {
	case msg.Text == "/start":
		b.handleStart(ctx, msg)
	case msg.Text == "/access":
		b.handleAccess(ctx, msg)
	case msg.Text == "/status":
		b.handleStatus(ctx, msg)
	case strings.HasPrefix(msg.Text, "/buy_"):
		b.handleBuy(ctx, msg, strings.TrimPrefix(msg.Text, "/buy_"))
	case strings.HasPrefix(msg.Text, "/"):
		b.reply(ctx, msg.Chat.ID,
			"Не знаю такой команды. Доступны: /start, /access, /status.")
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *telegram.Message) {
	if _, err := b.ledger.EnsureSubscriber(ctx, msg.From.ID, msg.From.Username); err != nil {
		b.log.Error("failed to ensure subscriber", sl.Err(err))
		b.reply(ctx, msg.Chat.ID, "Что-то пошло не так, попробуйте позже.")
		return
	}

	var sb strings.Builder
	sb.WriteString("Доступ к закрытому каналу по подписке.\n\nТарифы:\n")
	for _, t := range tariffs.All() {
		fmt.Fprintf(&sb, "%d мес. — %d ⭐ или %d ₽ — /buy_%s\n",
			t.Months, t.PriceStars, t.PriceRub, t.Code)
	}
	sb.WriteString("\n/access — получить ссылку в канал\n/status — срок действия подписки")
	b.reply(ctx, msg.Chat.ID, sb.String())
}

func (b *Bot) handleAccess(ctx context.Context, msg *telegram.Message) {
	link, err := b.invites.Issue(ctx, msg.From.ID, msg.From.Username)
	if err != nil {
		if errors.Is(err, invite.ErrNoActiveSubscription) {
			b.reply(ctx, msg.Chat.ID,
				"Активной подписки нет. Оформить её можно командой /start.")
			return
		}
		b.log.Error("failed to issue invite", sl.Err(err))
		b.reply(ctx, msg.Chat.ID, "Не получилось выдать ссылку, попробуйте позже.")
		return
	}
	b.reply(ctx, msg.Chat.ID, fmt.Sprintf(
		"Ссылка для входа в канал (действует 30 минут, одно использование):\n%s", link))
}

func (b *Bot) handleStatus(ctx context.Context, msg *telegram.Message) {
	days, active, err := b.ledger.DaysLeft(ctx, msg.From.ID)
	if err != nil {
		b.log.Error("failed to get subscription status", sl.Err(err))
		b.reply(ctx, msg.Chat.ID, "Что-то пошло не так, попробуйте позже.")
		return
	}
	if !active {
		b.reply(ctx, msg.Chat.ID, "Подписка не активна. Оформить её можно командой /start.")
		return
	}
	b.reply(ctx, msg.Chat.ID, fmt.Sprintf("Подписка активна, осталось %d дн.", days))
}

// handleBuy выставляет счёт Stars и отдельным сообщением присылает
// ссылку карточной оплаты. Сбой одного способа не отменяет второй.
func (b *Bot) handleBuy(ctx context.Context, msg *telegram.Message, tariffCode string) {
	invoice, err := b.payments.BuildStarsInvoice(tariffCode)
	if err != nil {
		b.reply(ctx, msg.Chat.ID, "Неизвестный тариф. Список тарифов — /start.")
		return
	}
	if err := b.messenger.SendInvoice(ctx, msg.Chat.ID, invoice); err != nil {
		b.log.Error("failed to send invoice", sl.Err(err))
	}

	url, err := b.payments.CreatePaymentLink(ctx, msg.From.ID, tariffCode)
	if err != nil {
		b.log.Error("failed to create payment link", sl.Err(err))
		return
	}
	b.reply(ctx, msg.Chat.ID, fmt.Sprintf("Оплата картой: %s", url))
}

// handlePreCheckout подтверждает списание Stars, если метка счёта
// указывает на существующий тариф.
func (b *Bot) handlePreCheckout(ctx context.Context, query *telegram.PreCheckoutQuery) {
	code, found := strings.CutPrefix(query.InvoicePayload, "sub_")
	if found {
		_, err := tariffs.Get(code)
		found = err == nil
	}
	if !found {
		if err := b.messenger.AnswerPreCheckoutQuery(ctx, query.ID, false,
			"Этот тариф больше недоступен."); err != nil {
			b.log.Error("failed to answer pre-checkout query", sl.Err(err))
		}
		return
	}
	if err := b.messenger.AnswerPreCheckoutQuery(ctx, query.ID, true, ""); err != nil {
		b.log.Error("failed to answer pre-checkout query", sl.Err(err))
	}
}

func (b *Bot) handleSuccessfulPayment(ctx context.Context, msg *telegram.Message) {
	if msg.From == nil {
		return
	}
	pay := msg.SuccessfulPayment

	_, tariff, err := b.payments.SettleStars(ctx, msg.From.ID, msg.From.Username,
		pay.InvoicePayload, pay.TotalAmount)
	if err != nil {
		b.log.Error("failed to settle stars payment", sl.Err(err))
		b.reply(ctx, msg.Chat.ID,
			"Оплата получена, но начислить подписку не удалось. Напишите в поддержку.")
		return
	}

	link, err := b.invites.Issue(ctx, msg.From.ID, msg.From.Username)
	if err != nil {
		b.log.Error("failed to issue invite after payment", sl.Err(err))
		b.reply(ctx, msg.Chat.ID, fmt.Sprintf(
			"Оплата получена, подписка продлена на %d мес. Ссылку можно запросить командой /access.",
			tariff.Months))
		return
	}
	b.reply(ctx, msg.Chat.ID, fmt.Sprintf(
		"Оплата получена. Подписка продлена на %d мес.\n"+
			"Ссылка для входа в канал (действует 30 минут, одно использование):\n%s",
		tariff.Months, link))
}

// handleChatMember учитывает события членства в закрытом канале.
func (b *Bot) handleChatMember(ctx context.Context, event *telegram.ChatMemberUpdated) {
	if event.Chat.ID != b.channelID {
		return
	}
	user := event.NewChatMember.User

	switch event.NewChatMember.Status {
	case "member", "administrator", "creator":
		linkText := ""
		if event.InviteLink != nil {
			linkText = event.InviteLink.InviteLink
			b.invites.MarkUsed(ctx, linkText)
		}
		b.invites.RecordJoin(ctx, user.ID, linkText)
	case "left", "kicked":
		b.invites.RecordLeave(ctx, user.ID)
	}
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if err := b.messenger.SendMessage(ctx, chatID, text); err != nil {
		b.log.Error("failed to send message", sl.Err(err))
	}
}
