package repository

import (
	"context"
	"fmt"

	"github.com/magabrotheeeer/channel-access/internal/models"
)

// AddSecurityLog добавляет запись в журнал безопасности.
// Журнал только пополняется: обновление и удаление записей не предусмотрены.
func (s *Storage) AddSecurityLog(ctx context.Context, entry models.SecurityLog) (int, error) {
	const op = "storage.AddSecurityLog"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO security_logs (telegram_id, telegram_id_hash, action, meta)
			  VALUES ($1, $2, $3, $4)
			  RETURNING id`
	var newID int
	err := s.DB.QueryRowContext(ctx, query,
		entry.TelegramID, entry.TelegramIDHash, entry.Action, entry.Meta).Scan(&newID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return newID, nil
}
