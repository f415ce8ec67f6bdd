package models

import "time"

// Invite представляет одноразовую ссылку-приглашение в канал.
// На один дайджест одновременно существует не более одной
// неиспользованной непросроченной ссылки.
type Invite struct {
	ID             int       // Первичный ключ
	TelegramID     string    // Зашифрованный идентификатор Telegram
	TelegramIDHash string    // Дайджест идентификатора
	InviteLink     string    // Текст ссылки, выданной Telegram
	IsUsed         bool      // Использована ли ссылка для входа
	ExpiresAt      time.Time // Время истечения ссылки
}
