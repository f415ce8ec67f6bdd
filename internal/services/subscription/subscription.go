// Package subscription содержит бизнес-логику учёта подписок:
// создание подписчика, продление, проверка активности и выборки
// для фоновых задач.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/channel-access/internal/lib/cryptokit"
	"github.com/magabrotheeeer/channel-access/internal/lib/month"
	"github.com/magabrotheeeer/channel-access/internal/lib/sl"
	"github.com/magabrotheeeer/channel-access/internal/models"
	"github.com/magabrotheeeer/channel-access/internal/storage/repository"
	"github.com/magabrotheeeer/channel-access/internal/tariffs"
)

// activeCacheTTL — время жизни кешированного статуса активности.
// Продление и деактивация инвалидируют запись, TTL страхует от
// рассинхронизации при прямых изменениях в базе.
const activeCacheTTL = 5 * time.Minute

// SubscriptionRepository определяет методы хранилища, нужные учёту подписок.
type SubscriptionRepository interface {
	GetSubscriberByHash(ctx context.Context, telegramIDHash string) (*models.Subscriber, error)
	CreateSubscriber(ctx context.Context, sub models.Subscriber) (int, error)
	UpdateSubscription(ctx context.Context, id int, subscriptionEnd time.Time, tariff string) (int, error)
	UpdateSubscriberStatus(ctx context.Context, id int, isActive bool) error
	ListExpiredSubscribers(ctx context.Context, now time.Time) ([]*models.Subscriber, error)
	ListSubscribersExpiringBetween(ctx context.Context, windowStart, windowEnd time.Time) ([]*models.Subscriber, error)
}

// Cache описывает методы для кеширования статуса подписки.
type Cache interface {
	Get(key string, result any) (bool, error)
	Set(key string, value any, expiration time.Duration) error
	Invalidate(key string) error
}

// Service реализует учёт подписок поверх хранилища и кеша.
type Service struct {
	repo      SubscriptionRepository
	cache     Cache
	codec     *cryptokit.Codec
	appSecret string
	log       *slog.Logger
	now       func() time.Time
}

// New создает новый экземпляр Service.
func New(repo SubscriptionRepository, cache Cache, codec *cryptokit.Codec, appSecret string, log *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		cache:     cache,
		codec:     codec,
		appSecret: appSecret,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// HashID возвращает дайджест идентификатора под секретом сервиса.
func (s *Service) HashID(telegramID int64) string {
	return cryptokit.HashID(s.appSecret, telegramID)
}

// EnsureSubscriber возвращает существующего подписчика по дайджесту
// идентификатора или создаёт нового без активной подписки. Идемпотентна.
func (s *Service) EnsureSubscriber(ctx context.Context, telegramID int64, username string) (*models.Subscriber, error) {
	const op = "subscription.EnsureSubscriber"

	digest := s.HashID(telegramID)
	existing, err := s.repo.GetSubscriberByHash(ctx, digest)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrSubscriberNotFound) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	encryptedID, err := s.codec.EncryptID(telegramID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	sub := models.Subscriber{
		TelegramID:     encryptedID,
		TelegramIDHash: digest,
		IsActive:       true,
		CreatedAt:      s.now(),
	}
	if username != "" {
		encryptedUsername, err := s.codec.EncryptText(username)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		sub.Username = &encryptedUsername
	}

	id, err := s.repo.CreateSubscriber(ctx, sub)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	sub.ID = id
	s.log.Info("created new subscriber", slog.Int("id", id))
	return &sub, nil
}

// Grant продлевает подписку на срок тарифа: новая дата окончания
// отсчитывается от max(now, текущая дата окончания) календарными месяцами.
// Идемпотентность по платежу обеспечивается уровнем выше.
func (s *Service) Grant(ctx context.Context, telegramID int64, username string, tariffCode string) (*models.Subscriber, tariffs.Tariff, error) {
	const op = "subscription.Grant"

	tariff, err := tariffs.Get(tariffCode)
	if err != nil {
		return nil, tariffs.Tariff{}, fmt.Errorf("%s: %w", op, err)
	}
	sub, err := s.EnsureSubscriber(ctx, telegramID, username)
	if err != nil {
		return nil, tariffs.Tariff{}, err
	}

	newEnd := month.ComputeEnd(sub.SubscriptionEnd, tariff.Months, s.now())
	if _, err := s.repo.UpdateSubscription(ctx, sub.ID, newEnd, tariff.Code); err != nil {
		return nil, tariffs.Tariff{}, fmt.Errorf("%s: %w", op, err)
	}

	sub.SubscriptionEnd = &newEnd
	sub.Tariff = &tariff.Code
	sub.IsActive = true

	s.invalidateActive(sub.TelegramIDHash)
	s.log.Info("subscription granted",
		slog.String("tariff", tariff.Code),
		slog.Time("subscription_end", newEnd))
	return sub, tariff, nil
}

// IsActive сообщает, действует ли подписка пользователя сейчас.
func (s *Service) IsActive(ctx context.Context, telegramID int64) (bool, error) {
	return s.IsActiveByHash(ctx, s.HashID(telegramID))
}

// IsActiveByHash — IsActive по уже вычисленному дайджесту. Читает кеш,
// при промахе идёт в хранилище и кеширует результат.
func (s *Service) IsActiveByHash(ctx context.Context, telegramIDHash string) (bool, error) {
	const op = "subscription.IsActiveByHash"

	cacheKey := activeCacheKey(telegramIDHash)
	var cached bool
	found, err := s.cache.Get(cacheKey, &cached)
	if err != nil {
		s.log.Warn("failed to read active status from cache",
			slog.String("key", cacheKey), sl.Err(err))
	} else if found {
		return cached, nil
	}

	sub, err := s.repo.GetSubscriberByHash(ctx, telegramIDHash)
	if err != nil {
		if errors.Is(err, repository.ErrSubscriberNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("%s: %w", op, err)
	}
	active := sub.IsActive &&
		sub.SubscriptionEnd != nil &&
		sub.SubscriptionEnd.After(s.now())

	if err := s.cache.Set(cacheKey, active, activeCacheTTL); err != nil {
		s.log.Warn("failed to cache active status",
			slog.String("key", cacheKey), sl.Err(err))
	}
	return active, nil
}

// DaysLeft возвращает число полных дней до окончания подписки.
// Второй результат false, если подписка не оформлялась.
func (s *Service) DaysLeft(ctx context.Context, telegramID int64) (int, bool, error) {
	const op = "subscription.DaysLeft"

	sub, err := s.repo.GetSubscriberByHash(ctx, s.HashID(telegramID))
	if err != nil {
		if errors.Is(err, repository.ErrSubscriberNotFound) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("%s: %w", op, err)
	}
	if sub.SubscriptionEnd == nil {
		return 0, false, nil
	}
	days := int(sub.SubscriptionEnd.Sub(s.now()).Hours() / 24)
	if days < 0 {
		days = 0
	}
	return days, true, nil
}

// Deactivate снимает флаг активности подписчика.
// Используется только задачей удаления просроченных.
func (s *Service) Deactivate(ctx context.Context, subscriberID int, telegramIDHash string) error {
	const op = "subscription.Deactivate"
	if err := s.repo.UpdateSubscriberStatus(ctx, subscriberID, false); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.invalidateActive(telegramIDHash)
	return nil
}

// ListExpired возвращает активных подписчиков с истёкшей подпиской.
func (s *Service) ListExpired(ctx context.Context, asOf time.Time) ([]*models.Subscriber, error) {
	return s.repo.ListExpiredSubscribers(ctx, asOf)
}

// ListExpiringBetween возвращает активных подписчиков с датой окончания
// в полуинтервале (windowStart, windowEnd].
func (s *Service) ListExpiringBetween(ctx context.Context, windowStart, windowEnd time.Time) ([]*models.Subscriber, error) {
	return s.repo.ListSubscribersExpiringBetween(ctx, windowStart, windowEnd)
}

func (s *Service) invalidateActive(telegramIDHash string) {
	cacheKey := activeCacheKey(telegramIDHash)
	if err := s.cache.Invalidate(cacheKey); err != nil {
		s.log.Warn("failed to invalidate active status cache",
			slog.String("key", cacheKey), sl.Err(err))
	}
}

func activeCacheKey(telegramIDHash string) string {
	return fmt.Sprintf("subscriber:active:%s", telegramIDHash)
}
