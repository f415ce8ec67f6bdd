// Package invite управляет одноразовыми ссылками-приглашениями в канал:
// выдача, учёт использования и журналирование входов/выходов.
package invite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/magabrotheeeer/channel-access/internal/lib/cryptokit"
	"github.com/magabrotheeeer/channel-access/internal/lib/sl"
	"github.com/magabrotheeeer/channel-access/internal/models"
)

// InviteTTL — срок действия одноразовой ссылки.
const InviteTTL = 30 * time.Minute

// ErrNoActiveSubscription возвращается при попытке выдать ссылку
// без действующей подписки.
var ErrNoActiveSubscription = errors.New("no active subscription")

// InviteRepository определяет методы хранилища для ссылок-приглашений.
type InviteRepository interface {
	GetActiveInviteByHash(ctx context.Context, telegramIDHash string) (*models.Invite, error)
	SaveInvite(ctx context.Context, invite models.Invite) (int, error)
	MarkInviteUsed(ctx context.Context, inviteLink string) error
}

// Ledger описывает проверку действующей подписки.
type Ledger interface {
	IsActive(ctx context.Context, telegramID int64) (bool, error)
}

// Messenger описывает операции транспорта над ссылками.
type Messenger interface {
	CreateChatInviteLink(ctx context.Context, chatID int64, expireAt time.Time) (string, error)
	RevokeChatInviteLink(ctx context.Context, chatID int64, inviteLink string) error
}

// Auditor пишет записи журнала безопасности.
type Auditor interface {
	Log(ctx context.Context, telegramID *int64, action string, meta string)
}

// Service реализует выдачу и учёт ссылок-приглашений.
type Service struct {
	repo      InviteRepository
	ledger    Ledger
	messenger Messenger
	audit     Auditor
	codec     *cryptokit.Codec
	appSecret string
	channelID int64
	log       *slog.Logger
	now       func() time.Time

	// Выдача для одного дайджеста сериализуется, чтобы параллельные
	// запросы не породили две активные ссылки.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New создает новый экземпляр Service.
func New(repo InviteRepository, ledger Ledger, messenger Messenger, audit Auditor,
	codec *cryptokit.Codec, appSecret string, channelID int64, log *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		ledger:    ledger,
		messenger: messenger,
		audit:     audit,
		codec:     codec,
		appSecret: appSecret,
		channelID: channelID,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
		locks:     make(map[string]*sync.Mutex),
	}
}

// Issue выдаёт одноразовую ссылку в канал. Прежняя неиспользованная ссылка
// подписчика отзывается по возможности: неуспех отзыва журналируется,
// но выдачу не прерывает. Возвращает ErrNoActiveSubscription, если
// подписка не действует.
func (s *Service) Issue(ctx context.Context, telegramID int64, username string) (string, error) {
	const op = "invite.Issue"

	digest := cryptokit.HashID(s.appSecret, telegramID)
	lock := s.lockFor(digest)
	lock.Lock()
	defer lock.Unlock()

	active, err := s.ledger.IsActive(ctx, telegramID)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if !active {
		s.audit.Log(ctx, &telegramID, "invite_denied_no_subscription", "")
		return "", ErrNoActiveSubscription
	}

	current, err := s.repo.GetActiveInviteByHash(ctx, digest)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if current != nil {
		if err := s.messenger.RevokeChatInviteLink(ctx, s.channelID, current.InviteLink); err != nil {
			s.log.Warn("failed to revoke previous invite link", sl.Err(err))
			s.audit.Log(ctx, &telegramID, "invite_revoke_failed", "")
		}
	}

	expiresAt := s.now().Add(InviteTTL)
	link, err := s.messenger.CreateChatInviteLink(ctx, s.channelID, expiresAt)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	encryptedID, err := s.codec.EncryptID(telegramID)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	record := models.Invite{
		TelegramID:     encryptedID,
		TelegramIDHash: digest,
		InviteLink:     link,
		IsUsed:         false,
		ExpiresAt:      expiresAt,
	}
	if _, err := s.repo.SaveInvite(ctx, record); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	s.audit.Log(ctx, &telegramID, "invite_issued", fmt.Sprintf("username=%s", username))
	return link, nil
}

// MarkUsed помечает ссылку использованной, когда транспорт сообщает
// о входе по ней. Неизвестная ссылка — no-op.
func (s *Service) MarkUsed(ctx context.Context, inviteLink string) {
	if err := s.repo.MarkInviteUsed(ctx, inviteLink); err != nil {
		s.log.Error("failed to mark invite used", sl.Err(err))
	}
}

// RecordJoin журналирует вход в канал. Состояние членства живёт
// в самом канале, здесь только след для разбора инцидентов.
func (s *Service) RecordJoin(ctx context.Context, telegramID int64, inviteLink string) {
	meta := "invite_link=unknown"
	if inviteLink != "" {
		meta = fmt.Sprintf("invite_link=%s", inviteLink)
	}
	s.audit.Log(ctx, &telegramID, "channel_join", meta)
}

// RecordLeave журналирует выход из канала.
func (s *Service) RecordLeave(ctx context.Context, telegramID int64) {
	s.audit.Log(ctx, &telegramID, "channel_leave", "")
}

func (s *Service) lockFor(digest string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[digest]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[digest] = lock
	}
	return lock
}
