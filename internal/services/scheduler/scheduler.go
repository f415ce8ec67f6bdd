// Package scheduler содержит фоновые задачи жизненного цикла доступа:
// отключение просроченных подписок и рассылка напоминаний.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/channel-access/internal/lib/cryptokit"
	"github.com/magabrotheeeer/channel-access/internal/lib/sl"
	"github.com/magabrotheeeer/channel-access/internal/models"
	"github.com/magabrotheeeer/channel-access/internal/rabbitmq"
)

// Интервалы запуска задач.
const (
	ExpirationInterval = 30 * time.Minute
	ReminderInterval   = 24 * time.Hour
)

// reminderDays — за сколько дней до окончания подписки отправляются напоминания.
var reminderDays = []int{10, 5, 3, 1}

// Ledger описывает операции над подписками, нужные задачам.
type Ledger interface {
	ListExpired(ctx context.Context, asOf time.Time) ([]*models.Subscriber, error)
	ListExpiringBetween(ctx context.Context, windowStart, windowEnd time.Time) ([]*models.Subscriber, error)
	Deactivate(ctx context.Context, subscriberID int, telegramIDHash string) error
}

// Messenger описывает исключение пользователя из канала.
type Messenger interface {
	BanChatMember(ctx context.Context, chatID int64, userID int64) error
}

// Publisher публикует события напоминаний.
type Publisher interface {
	Publish(routingKey string, message any) error
}

// Auditor пишет записи журнала безопасности.
type Auditor interface {
	Log(ctx context.Context, telegramID *int64, action string, meta string)
}

// Service реализует фоновые задачи.
type Service struct {
	ledger    Ledger
	messenger Messenger
	publisher Publisher
	audit     Auditor
	codec     *cryptokit.Codec
	channelID int64
	log       *slog.Logger
	now       func() time.Time
}

// New создает новый экземпляр Service.
func New(ledger Ledger, messenger Messenger, publisher Publisher, audit Auditor,
	codec *cryptokit.Codec, channelID int64, log *slog.Logger) *Service {
	return &Service{
		ledger:    ledger,
		messenger: messenger,
		publisher: publisher,
		audit:     audit,
		codec:     codec,
		channelID: channelID,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RunExpirationJob один раз обходит просроченные подписки: исключает
// подписчика из канала и деактивирует запись. Сбой на одной строке не
// прерывает обход. Неудачное исключение журналируется, но деактивацию
// не отменяет: локальное состояние отражает намерение, а не успех
// транспорта, иначе строка всплывала бы в каждом обходе.
func (s *Service) RunExpirationJob(ctx context.Context) error {
	const op = "scheduler.RunExpirationJob"

	expired, err := s.ledger.ListExpired(ctx, s.now())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("expiration job started", slog.Int("expired", len(expired)))

	for _, sub := range expired {
		telegramID, err := s.codec.DecryptID(sub.TelegramID)
		if err != nil {
			s.log.Error("cannot decrypt subscriber id", slog.Int("subscriber_id", sub.ID), sl.Err(err))
			s.audit.Log(ctx, nil, "decrypt_failed", fmt.Sprintf("subscriber_id=%d", sub.ID))
			continue
		}
		kicked := true
		if err := s.messenger.BanChatMember(ctx, s.channelID, telegramID); err != nil {
			s.log.Error("failed to kick expired subscriber", slog.Int("subscriber_id", sub.ID), sl.Err(err))
			s.audit.Log(ctx, &telegramID, "kick_failed", "")
			kicked = false
		}
		if err := s.ledger.Deactivate(ctx, sub.ID, sub.TelegramIDHash); err != nil {
			s.log.Error("failed to deactivate subscriber", slog.Int("subscriber_id", sub.ID), sl.Err(err))
			continue
		}
		if kicked {
			s.audit.Log(ctx, &telegramID, "subscription_expired_kick", "")
		}
	}
	return nil
}

// RunReminderJob один раз публикует события напоминаний: для каждого
// срока из reminderDays берётся суточное окно дат окончания и по каждой
// строке публикуется событие с зашифрованным идентификатором.
func (s *Service) RunReminderJob(ctx context.Context) error {
	const op = "scheduler.RunReminderJob"

	now := s.now()
	for _, days := range reminderDays {
		windowStart := now.Add(time.Duration(days) * 24 * time.Hour)
		windowEnd := windowStart.Add(24 * time.Hour)

		expiring, err := s.ledger.ListExpiringBetween(ctx, windowStart, windowEnd)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		for _, sub := range expiring {
			if sub.SubscriptionEnd == nil {
				continue
			}
			event := models.ReminderEvent{
				TelegramID:      sub.TelegramID,
				TelegramIDHash:  sub.TelegramIDHash,
				DaysLeft:        days,
				SubscriptionEnd: *sub.SubscriptionEnd,
			}
			if err := s.publisher.Publish(rabbitmq.ReminderRoutingKey, event); err != nil {
				s.log.Error("failed to publish reminder event",
					slog.Int("subscriber_id", sub.ID), sl.Err(err))
			}
		}
	}
	return nil
}

// RunExpirationLoop запускает задачу отключения по тикеру до отмены контекста.
func (s *Service) RunExpirationLoop(ctx context.Context) {
	ticker := time.NewTicker(ExpirationInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.RunExpirationJob(ctx); err != nil {
				s.log.Error("expiration job failed", sl.Err(err))
			}
		}
	}
}

// RunReminderLoop запускает задачу напоминаний по тикеру до отмены контекста.
func (s *Service) RunReminderLoop(ctx context.Context) {
	ticker := time.NewTicker(ReminderInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.RunReminderJob(ctx); err != nil {
				s.log.Error("reminder job failed", sl.Err(err))
			}
		}
	}
}
