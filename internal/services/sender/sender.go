// Package sender доставляет напоминания об окончании подписки.
// Напоминания — best-effort: любое терминальное условие подтверждает
// сообщение, чтобы очередь не зацикливалась на недоставляемых событиях.
package sender

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/channel-access/internal/lib/cryptokit"
	"github.com/magabrotheeeer/channel-access/internal/lib/sl"
	"github.com/magabrotheeeer/channel-access/internal/models"
)

// Messenger описывает отправку личного сообщения пользователю.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Auditor пишет записи журнала безопасности.
type Auditor interface {
	Log(ctx context.Context, telegramID *int64, action string, meta string)
}

// Service доставляет события напоминаний из очереди.
type Service struct {
	messenger Messenger
	audit     Auditor
	codec     *cryptokit.Codec
	log       *slog.Logger
}

// New создает новый экземпляр Service.
func New(messenger Messenger, audit Auditor, codec *cryptokit.Codec, log *slog.Logger) *Service {
	return &Service{
		messenger: messenger,
		audit:     audit,
		codec:     codec,
		log:       log,
	}
}

// ProcessMessage обрабатывает одно событие напоминания. Возвращает nil
// во всех терминальных случаях, чтобы сообщение было подтверждено:
// повторная доставка не исправит ни битое событие, ни неверный шифротекст.
func (s *Service) ProcessMessage(ctx context.Context, body []byte) error {
	var event models.ReminderEvent
	if err := json.Unmarshal(body, &event); err != nil {
		s.log.Error("cannot unmarshal reminder event", sl.Err(err))
		return nil
	}

	telegramID, err := s.codec.DecryptID(event.TelegramID)
	if err != nil {
		s.log.Error("cannot decrypt reminder recipient", sl.Err(err))
		s.audit.Log(ctx, nil, "decrypt_failed", fmt.Sprintf("telegram_id_hash=%s", event.TelegramIDHash))
		return nil
	}

	text := fmt.Sprintf(
		"Ваша подписка на канал заканчивается через %d дн. (%s).\n"+
			"Продлить доступ можно командой /start.",
		event.DaysLeft, event.SubscriptionEnd.Format("02.01.2006"))

	if err := s.messenger.SendMessage(ctx, telegramID, text); err != nil {
		s.log.Error("failed to send reminder", sl.Err(err))
		s.audit.Log(ctx, &telegramID, "reminder_send_failed", "")
		return nil
	}

	s.log.Info("reminder sent", slog.Int("days_left", event.DaysLeft))
	return nil
}
