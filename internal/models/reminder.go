package models

import "time"

// ReminderEvent — событие напоминания об окончании подписки.
// Идентификатор передаётся зашифрованным и расшифровывается
// только на стороне отправителя.
type ReminderEvent struct {
	TelegramID      string    `json:"telegram_id"`
	TelegramIDHash  string    `json:"telegram_id_hash"`
	DaysLeft        int       `json:"days_left"`
	SubscriptionEnd time.Time `json:"subscription_end"`
}
