package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/channel-access/internal/models"
)

// CreatePayment вставляет запись о платеже и возвращает её ID.
func (s *Storage) CreatePayment(ctx context.Context, payment models.Payment) (int, error) {
	const op = "storage.CreatePayment"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO payments (telegram_id, telegram_id_hash, amount,
			      currency, method, status, order_id, payload)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			  RETURNING id`
	var newID int
	err := s.DB.QueryRowContext(ctx, query,
		payment.TelegramID, payment.TelegramIDHash, payment.Amount,
		payment.Currency, payment.Method, payment.Status,
		payment.OrderID, payment.Payload).Scan(&newID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return newID, nil
}

// GetPaymentByOrderID возвращает платёж по идентификатору заказа шлюза.
// Возвращает (nil, nil), если платёж не найден: отсутствие строки для
// коллбека — штатная ситуация, а не ошибка.
func (s *Storage) GetPaymentByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	const op = "storage.GetPaymentByOrderID"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, telegram_id, telegram_id_hash, amount, currency,
			      method, status, order_id, payload, created_at
			  FROM payments
			  WHERE order_id = $1`
	row := s.DB.QueryRowContext(ctx, query, orderID)

	var p models.Payment
	var oid, payload sql.NullString
	if err := row.Scan(&p.ID, &p.TelegramID, &p.TelegramIDHash, &p.Amount,
		&p.Currency, &p.Method, &p.Status, &oid, &payload, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if oid.Valid {
		p.OrderID = &oid.String
	}
	if payload.Valid {
		p.Payload = &payload.String
	}
	return &p, nil
}

// UpdatePaymentStatus записывает новый статус платежа и возвращает прежний.
// Прежний статус нужен вызывающему коду как ключ идемпотентности:
// подписка продлевается только при переходе в подтверждённый статус.
func (s *Storage) UpdatePaymentStatus(ctx context.Context, paymentID int, status string) (string, error) {
	const op = "storage.UpdatePaymentStatus"
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE payments p
			  SET status = $1
			  FROM (SELECT status FROM payments WHERE id = $2 FOR UPDATE) prev
			  WHERE p.id = $2
			  RETURNING prev.status`
	var previous string
	if err := s.DB.QueryRowContext(ctx, query, status, paymentID).Scan(&previous); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return previous, nil
}

// SumPaidAmountByCurrency суммирует подтверждённые платежи по валютам.
func (s *Storage) SumPaidAmountByCurrency(ctx context.Context) (map[string]int, error) {
	const op = "storage.SumPaidAmountByCurrency"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT currency, COALESCE(SUM(amount), 0)
			  FROM payments
			  WHERE status IN ($1, $2)
			  GROUP BY currency`
	rows, err := s.DB.QueryContext(ctx, query,
		models.PaymentStatusPaid, models.PaymentStatusConfirmed)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	result := make(map[string]int)
	for rows.Next() {
		var currency string
		var sum int
		if err := rows.Scan(&currency, &sum); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result[currency] = sum
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
