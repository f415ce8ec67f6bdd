package models

import "time"

// Способы оплаты.
const (
	MethodStars   = "stars"   // Telegram Stars, зачисляется мгновенно
	MethodTinkoff = "tinkoff" // Карточный шлюз, подтверждается вебхуком
)

// Статусы платежа. Шлюз может отчитываться и другими статусами,
// они сохраняются как есть.
const (
	PaymentStatusPending   = "pending"
	PaymentStatusPaid      = "paid"
	PaymentStatusConfirmed = "CONFIRMED"
)

// Payment представляет одну попытку оплаты.
// OrderID уникален, когда присутствует, и служит ключом идемпотентности
// для коллбеков шлюза.
type Payment struct {
	ID             int       // Первичный ключ
	TelegramID     string    // Зашифрованный идентификатор Telegram
	TelegramIDHash string    // Дайджест идентификатора
	Amount         int       // Сумма в минимальных единицах валюты
	Currency       string    // Код валюты: XTR или RUB
	Method         string    // Способ оплаты: stars или tinkoff
	Status         string    // Статус платежа
	OrderID        *string   // Идентификатор заказа в шлюзе (опционально)
	Payload        *string   // Метка тарифа вида sub_<code> (опционально)
	CreatedAt      time.Time // Время создания записи
}
