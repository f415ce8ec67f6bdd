// Package audit реализует журнал безопасности: только добавление записей
// о чувствительных действиях.
package audit

import (
	"context"
	"log/slog"

	"github.com/magabrotheeeer/channel-access/internal/lib/cryptokit"
	"github.com/magabrotheeeer/channel-access/internal/lib/sl"
	"github.com/magabrotheeeer/channel-access/internal/models"
)

// Repository описывает запись журнала в хранилище.
type Repository interface {
	AddSecurityLog(ctx context.Context, entry models.SecurityLog) (int, error)
}

// Service пишет записи журнала безопасности, псевдонимизируя идентификаторы.
type Service struct {
	repo      Repository
	codec     *cryptokit.Codec
	appSecret string
	log       *slog.Logger
}

// New создает новый экземпляр Service.
func New(repo Repository, codec *cryptokit.Codec, appSecret string, log *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		codec:     codec,
		appSecret: appSecret,
		log:       log,
	}
}

// Log добавляет запись журнала. Идентификатор может отсутствовать.
// Сбой записи журнала не прерывает вызывающую операцию: ошибка только логируется.
func (s *Service) Log(ctx context.Context, telegramID *int64, action string, meta string) {
	entry := models.SecurityLog{
		Action: action,
	}
	if meta != "" {
		entry.Meta = &meta
	}
	if telegramID != nil {
		digest := cryptokit.HashID(s.appSecret, *telegramID)
		entry.TelegramIDHash = &digest
		encrypted, err := s.codec.EncryptID(*telegramID)
		if err != nil {
			s.log.Error("failed to encrypt id for security log",
				slog.String("action", action), sl.Err(err))
		} else {
			entry.TelegramID = &encrypted
		}
	}
	if _, err := s.repo.AddSecurityLog(ctx, entry); err != nil {
		s.log.Error("failed to write security log",
			slog.String("action", action), sl.Err(err))
	}
}
