// Package stats собирает сводку по подписчикам и платежам
// для административного API.
package stats

import (
	"context"
	"fmt"
	"time"
)

// StatsRepository определяет методы хранилища для сводки.
type StatsRepository interface {
	CountSubscribers(ctx context.Context, now time.Time) (total int, active int, err error)
	CountUnusedInvites(ctx context.Context, now time.Time) (int, error)
	SumPaidAmountByCurrency(ctx context.Context) (map[string]int, error)
}

// Summary — сводка для административного API. Суммы в минимальных
// единицах валюты, ключ — код валюты.
type Summary struct {
	TotalSubscribers  int            `json:"total_subscribers"`
	ActiveSubscribers int            `json:"active_subscribers"`
	UnusedInvites     int            `json:"unused_invites"`
	PaidByCurrency    map[string]int `json:"paid_by_currency"`
}

// Service собирает сводку.
type Service struct {
	repo StatsRepository
	now  func() time.Time
}

// New создает новый экземпляр Service.
func New(repo StatsRepository) *Service {
	return &Service{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Collect возвращает текущую сводку.
func (s *Service) Collect(ctx context.Context) (*Summary, error) {
	const op = "stats.Collect"

	now := s.now()
	total, active, err := s.repo.CountSubscribers(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	unused, err := s.repo.CountUnusedInvites(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	paid, err := s.repo.SumPaidAmountByCurrency(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Summary{
		TotalSubscribers:  total,
		ActiveSubscribers: active,
		UnusedInvites:     unused,
		PaidByCurrency:    paid,
	}, nil
}
