package telegram

// User — пользователь Telegram в событиях Bot API.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Chat — чат, в котором произошло событие.
type Chat struct {
	ID int64 `json:"id"`
}

// ChatInviteLink — одноразовая ссылка-приглашение.
type ChatInviteLink struct {
	InviteLink  string `json:"invite_link"`
	MemberLimit int    `json:"member_limit"`
	ExpireDate  int64  `json:"expire_date"`
	IsRevoked   bool   `json:"is_revoked"`
}

// SuccessfulPayment — подтверждение мгновенной оплаты Stars.
type SuccessfulPayment struct {
	Currency       string `json:"currency"`
	TotalAmount    int    `json:"total_amount"`
	InvoicePayload string `json:"invoice_payload"`
}

// Message — входящее сообщение.
type Message struct {
	MessageID         int                `json:"message_id"`
	From              *User              `json:"from"`
	Chat              Chat               `json:"chat"`
	Text              string             `json:"text"`
	SuccessfulPayment *SuccessfulPayment `json:"successful_payment"`
}

// PreCheckoutQuery — запрос подтверждения перед списанием Stars.
type PreCheckoutQuery struct {
	ID             string `json:"id"`
	From           User   `json:"from"`
	Currency       string `json:"currency"`
	TotalAmount    int    `json:"total_amount"`
	InvoicePayload string `json:"invoice_payload"`
}

// ChatMember — участник чата с его статусом.
type ChatMember struct {
	User   User   `json:"user"`
	Status string `json:"status"`
}

// ChatMemberUpdated — событие изменения членства в канале.
type ChatMemberUpdated struct {
	Chat          Chat            `json:"chat"`
	From          User            `json:"from"`
	OldChatMember ChatMember      `json:"old_chat_member"`
	NewChatMember ChatMember      `json:"new_chat_member"`
	InviteLink    *ChatInviteLink `json:"invite_link"`
}

// Update — элемент ленты getUpdates.
type Update struct {
	UpdateID         int64              `json:"update_id"`
	Message          *Message           `json:"message"`
	PreCheckoutQuery *PreCheckoutQuery  `json:"pre_checkout_query"`
	ChatMember       *ChatMemberUpdated `json:"chat_member"`
}

// LabeledPrice — позиция счёта в минимальных единицах валюты.
type LabeledPrice struct {
	Label  string `json:"label"`
	Amount int    `json:"amount"`
}

// Invoice — параметры счёта для sendInvoice.
type Invoice struct {
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	Payload       string         `json:"payload"`
	Currency      string         `json:"currency"`
	Prices        []LabeledPrice `json:"prices"`
	ProviderToken string         `json:"provider_token"`
}
