package models

import "time"

// SecurityLog — запись журнала безопасности, только добавление.
// Идентификатор может отсутствовать, если действие не привязано
// к конкретному пользователю.
type SecurityLog struct {
	ID             int       // Первичный ключ
	TelegramID     *string   // Зашифрованный идентификатор (опционально)
	TelegramIDHash *string   // Дайджест идентификатора (опционально)
	Action         string    // Метка действия, например invite_issued
	Meta           *string   // Произвольные детали (опционально)
	CreatedAt      time.Time // Время записи
}
