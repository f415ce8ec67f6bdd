// Package auth реализует вход администратора: проверку учётных данных
// из конфигурации и выдачу JWT для административного API.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/channel-access/internal/lib/password"
)

// ErrInvalidCredentials возвращается при неверном имени или пароле.
var ErrInvalidCredentials = errors.New("invalid credentials")

// TokenMaker описывает выдачу JWT токена.
type TokenMaker interface {
	GenerateToken(username, role string) (string, error)
}

// Auditor пишет записи журнала безопасности.
type Auditor interface {
	Log(ctx context.Context, telegramID *int64, action string, meta string)
}

// Service проверяет учётные данные администратора. Администратор один
// и задаётся конфигурацией; таблицы пользователей нет.
type Service struct {
	adminUsername string
	passwordHash  string
	maker         TokenMaker
	audit         Auditor
	log           *slog.Logger
}

// New создает новый экземпляр Service.
func New(adminUsername, passwordHash string, maker TokenMaker, audit Auditor, log *slog.Logger) *Service {
	return &Service{
		adminUsername: adminUsername,
		passwordHash:  passwordHash,
		maker:         maker,
		audit:         audit,
		log:           log,
	}
}

// Login проверяет имя и пароль администратора и возвращает JWT.
// Возвращает ErrInvalidCredentials без уточнения, что именно не совпало.
func (s *Service) Login(ctx context.Context, username, pass string) (string, error) {
	const op = "auth.Login"

	if username != s.adminUsername {
		s.audit.Log(ctx, nil, "admin_login_failed", fmt.Sprintf("username=%s", username))
		return "", ErrInvalidCredentials
	}
	if err := password.CompareHash(s.passwordHash, pass); err != nil {
		s.audit.Log(ctx, nil, "admin_login_failed", fmt.Sprintf("username=%s", username))
		return "", ErrInvalidCredentials
	}

	token, err := s.maker.GenerateToken(username, "admin")
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	s.audit.Log(ctx, nil, "admin_login_success", fmt.Sprintf("username=%s", username))
	s.log.Info("admin logged in", slog.String("username", username))
	return token, nil
}
