package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/channel-access/internal/models"
)

// ErrSubscriberNotFound возвращается, когда подписчик с данным дайджестом отсутствует.
var ErrSubscriberNotFound = errors.New("subscriber not found")

// CreateSubscriber вставляет нового подписчика и возвращает его ID.
func (s *Storage) CreateSubscriber(ctx context.Context, sub models.Subscriber) (int, error) {
	const op = "storage.CreateSubscriber"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO subscribers (telegram_id, telegram_id_hash, username,
			      subscription_end, tariff, is_active)
			  VALUES ($1, $2, $3, $4, $5, $6)
			  RETURNING id`
	var newID int
	err := s.DB.QueryRowContext(ctx, query,
		sub.TelegramID, sub.TelegramIDHash, sub.Username,
		sub.SubscriptionEnd, sub.Tariff, sub.IsActive).Scan(&newID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return newID, nil
}

// GetSubscriberByHash возвращает подписчика по дайджесту идентификатора.
func (s *Storage) GetSubscriberByHash(ctx context.Context, telegramIDHash string) (*models.Subscriber, error) {
	const op = "storage.GetSubscriberByHash"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, telegram_id, telegram_id_hash, username,
			      subscription_end, tariff, is_active, created_at
			  FROM subscribers
			  WHERE telegram_id_hash = $1`
	row := s.DB.QueryRowContext(ctx, query, telegramIDHash)

	sub, err := scanSubscriberRow(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrSubscriberNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// UpdateSubscription устанавливает новую дату окончания подписки и тариф,
// помечая подписчика активным. Возвращает количество изменённых строк.
func (s *Storage) UpdateSubscription(ctx context.Context, id int, subscriptionEnd time.Time, tariff string) (int, error) {
	const op = "storage.UpdateSubscription"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE subscribers
			  SET subscription_end = $1, tariff = $2, is_active = true
			  WHERE id = $3`
	result, err := s.DB.ExecContext(ctx, query, subscriptionEnd, tariff, id)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

// UpdateSubscriberStatus меняет флаг is_active подписчика.
func (s *Storage) UpdateSubscriberStatus(ctx context.Context, id int, isActive bool) error {
	const op = "storage.UpdateSubscriberStatus"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE subscribers
			  SET is_active = $1
			  WHERE id = $2`
	_, err := s.DB.ExecContext(ctx, query, isActive, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ListExpiredSubscribers возвращает активных подписчиков,
// чья подписка закончилась не позже now.
func (s *Storage) ListExpiredSubscribers(ctx context.Context, now time.Time) ([]*models.Subscriber, error) {
	const op = "storage.ListExpiredSubscribers"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, telegram_id, telegram_id_hash, username,
			      subscription_end, tariff, is_active, created_at
			  FROM subscribers
			  WHERE subscription_end IS NOT NULL
			    AND subscription_end <= $1
			    AND is_active = true`
	rows, err := s.DB.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	result, err := collectSubscribers(rows)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// ListSubscribersExpiringBetween возвращает активных подписчиков с датой
// окончания в полуинтервале (windowStart, windowEnd].
func (s *Storage) ListSubscribersExpiringBetween(ctx context.Context, windowStart, windowEnd time.Time) ([]*models.Subscriber, error) {
	const op = "storage.ListSubscribersExpiringBetween"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, telegram_id, telegram_id_hash, username,
			      subscription_end, tariff, is_active, created_at
			  FROM subscribers
			  WHERE subscription_end IS NOT NULL
			    AND subscription_end > $1
			    AND subscription_end <= $2
			    AND is_active = true`
	rows, err := s.DB.QueryContext(ctx, query, windowStart, windowEnd)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	result, err := collectSubscribers(rows)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// CountSubscribers возвращает общее число подписчиков и число активных
// с непросроченной подпиской.
func (s *Storage) CountSubscribers(ctx context.Context, now time.Time) (total int, active int, err error) {
	const op = "storage.CountSubscribers"
	select {
	case <-ctx.Done():
		return 0, 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT COUNT(*),
			      COUNT(*) FILTER (WHERE is_active = true
			          AND subscription_end IS NOT NULL
			          AND subscription_end > $1)
			  FROM subscribers`
	if err := s.DB.QueryRowContext(ctx, query, now).Scan(&total, &active); err != nil {
		return 0, 0, fmt.Errorf("%s: %w", op, err)
	}
	return total, active, nil
}

func scanSubscriberRow(scan func(dest ...any) error) (*models.Subscriber, error) {
	var sub models.Subscriber
	var username, tariff sql.NullString
	var subscriptionEnd sql.NullTime
	if err := scan(&sub.ID, &sub.TelegramID, &sub.TelegramIDHash, &username,
		&subscriptionEnd, &tariff, &sub.IsActive, &sub.CreatedAt); err != nil {
		return nil, err
	}
	if username.Valid {
		sub.Username = &username.String
	}
	if subscriptionEnd.Valid {
		sub.SubscriptionEnd = &subscriptionEnd.Time
	}
	if tariff.Valid {
		sub.Tariff = &tariff.String
	}
	return &sub, nil
}

func collectSubscribers(rows *sql.Rows) ([]*models.Subscriber, error) {
	var result []*models.Subscriber
	for rows.Next() {
		sub, err := scanSubscriberRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
