package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/channel-access/internal/models"
)

// SaveInvite сохраняет новую ссылку, одновременно помечая прежние
// неиспользованные ссылки этого дайджеста использованными. Обе записи
// выполняются в одной транзакции: локальное состояние — источник истины
// для инварианта "не более одной активной ссылки".
func (s *Storage) SaveInvite(ctx context.Context, invite models.Invite) (int, error) {
	const op = "storage.SaveInvite"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var newID int
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		invalidate := `UPDATE invites
				       SET is_used = true
				       WHERE telegram_id_hash = $1 AND is_used = false`
		if _, err := tx.ExecContext(ctx, invalidate, invite.TelegramIDHash); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		insert := `INSERT INTO invites (telegram_id, telegram_id_hash,
				       invite_link, is_used, expires_at)
				   VALUES ($1, $2, $3, $4, $5)
				   RETURNING id`
		if err := tx.QueryRowContext(ctx, insert,
			invite.TelegramID, invite.TelegramIDHash, invite.InviteLink,
			invite.IsUsed, invite.ExpiresAt).Scan(&newID); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return newID, nil
}

// GetActiveInviteByHash возвращает неиспользованную ссылку подписчика.
// Возвращает (nil, nil), если такой ссылки нет.
func (s *Storage) GetActiveInviteByHash(ctx context.Context, telegramIDHash string) (*models.Invite, error) {
	const op = "storage.GetActiveInviteByHash"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, telegram_id, telegram_id_hash, invite_link, is_used, expires_at
			  FROM invites
			  WHERE telegram_id_hash = $1 AND is_used = false
			  ORDER BY id DESC
			  LIMIT 1`
	row := s.DB.QueryRowContext(ctx, query, telegramIDHash)

	var invite models.Invite
	if err := row.Scan(&invite.ID, &invite.TelegramID, &invite.TelegramIDHash,
		&invite.InviteLink, &invite.IsUsed, &invite.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &invite, nil
}

// MarkInviteUsed помечает ссылку использованной по её тексту.
// Неизвестная ссылка — не ошибка: она могла истечь и быть вычищенной.
func (s *Storage) MarkInviteUsed(ctx context.Context, inviteLink string) error {
	const op = "storage.MarkInviteUsed"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE invites
			  SET is_used = true
			  WHERE invite_link = $1`
	if _, err := s.DB.ExecContext(ctx, query, inviteLink); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// CountUnusedInvites возвращает число неиспользованных непросроченных ссылок.
func (s *Storage) CountUnusedInvites(ctx context.Context, now time.Time) (int, error) {
	const op = "storage.CountUnusedInvites"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT COUNT(*)
			  FROM invites
			  WHERE is_used = false AND expires_at > $1`
	var count int
	if err := s.DB.QueryRowContext(ctx, query, now).Scan(&count); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return count, nil
}
