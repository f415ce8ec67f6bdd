// Package models содержит доменные структуры: подписчик, платёж, инвайт
// и запись журнала безопасности.
//
// Идентификатор Telegram нигде не хранится в открытом виде: поле
// TelegramID содержит шифротекст, поле TelegramIDHash — детерминированный
// дайджест, по которому выполняются все поиски и связи между таблицами.
package models

import "time"

// Subscriber представляет подписчика канала, одна строка на дайджест.
// SubscriptionEnd == nil означает, что подписка не оформлялась.
type Subscriber struct {
	ID              int        // Первичный ключ
	TelegramID      string     // Зашифрованный идентификатор Telegram
	TelegramIDHash  string     // Дайджест идентификатора, ключ поиска
	Username        *string    // Зашифрованное имя пользователя (опционально)
	SubscriptionEnd *time.Time // Дата окончания подписки
	Tariff          *string    // Код последнего оплаченного тарифа
	IsActive        bool       // Должен ли подписчик оставаться в канале
	CreatedAt       time.Time  // Дата первого контакта
}
