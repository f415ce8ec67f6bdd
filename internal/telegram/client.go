// Package telegram реализует HTTP-клиент Bot API: доставка сообщений,
// одноразовые ссылки-приглашения, удаление участников и лента обновлений.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client инкапсулирует HTTP-доступ к Telegram Bot API.
type Client struct {
	token      string
	apiURL     string
	httpClient *http.Client
}

// NewClient создаёт клиент Bot API. baseURL без завершающего слеша,
// например https://api.telegram.org.
func NewClient(token, baseURL string) *Client {
	return &Client{
		token:      token,
		apiURL:     baseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
}

func (c *Client) call(ctx context.Context, method string, params any, result any) error {
	const op = "telegram.call"
	var buf bytes.Buffer
	if params != nil {
		if err := json.NewEncoder(&buf).Encode(params); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	url := fmt.Sprintf("%s/bot%s/%s", c.apiURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %s: %w", op, method, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("%s: %s: %w", op, method, err)
	}
	if !body.OK {
		return fmt.Errorf("%s: %s: %s", op, method, body.Description)
	}
	if result != nil {
		if err := json.Unmarshal(body.Result, result); err != nil {
			return fmt.Errorf("%s: %s: %w", op, method, err)
		}
	}
	return nil
}

// SendMessage отправляет текстовое сообщение пользователю или в чат.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	params := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	return c.call(ctx, "sendMessage", params, nil)
}

// CreateChatInviteLink создаёт одноразовую ссылку-приглашение в канал
// с лимитом в одного участника.
func (c *Client) CreateChatInviteLink(ctx context.Context, chatID int64, expireAt time.Time) (string, error) {
	params := map[string]any{
		"chat_id":      chatID,
		"member_limit": 1,
		"expire_date":  expireAt.Unix(),
	}
	var link ChatInviteLink
	if err := c.call(ctx, "createChatInviteLink", params, &link); err != nil {
		return "", err
	}
	return link.InviteLink, nil
}

// RevokeChatInviteLink отзывает ранее выданную ссылку.
func (c *Client) RevokeChatInviteLink(ctx context.Context, chatID int64, inviteLink string) error {
	params := map[string]any{
		"chat_id":     chatID,
		"invite_link": inviteLink,
	}
	return c.call(ctx, "revokeChatInviteLink", params, nil)
}

// BanChatMember удаляет участника из канала.
func (c *Client) BanChatMember(ctx context.Context, chatID int64, userID int64) error {
	params := map[string]any{
		"chat_id": chatID,
		"user_id": userID,
	}
	return c.call(ctx, "banChatMember", params, nil)
}

// SendInvoice выставляет счёт в Telegram Stars.
func (c *Client) SendInvoice(ctx context.Context, chatID int64, invoice Invoice) error {
	params := map[string]any{
		"chat_id":        chatID,
		"title":          invoice.Title,
		"description":    invoice.Description,
		"payload":        invoice.Payload,
		"currency":       invoice.Currency,
		"prices":         invoice.Prices,
		"provider_token": invoice.ProviderToken,
	}
	return c.call(ctx, "sendInvoice", params, nil)
}

// AnswerPreCheckoutQuery подтверждает или отклоняет списание Stars.
func (c *Client) AnswerPreCheckoutQuery(ctx context.Context, queryID string, ok bool, errorMessage string) error {
	params := map[string]any{
		"pre_checkout_query_id": queryID,
		"ok":                    ok,
	}
	if errorMessage != "" {
		params["error_message"] = errorMessage
	}
	return c.call(ctx, "answerPreCheckoutQuery", params, nil)
}

// GetUpdates возвращает обновления long-polling запросом.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeoutSeconds int) ([]Update, error) {
	params := map[string]any{
		"offset":          offset,
		"timeout":         timeoutSeconds,
		"allowed_updates": []string{"message", "pre_checkout_query", "chat_member"},
	}
	var updates []Update
	if err := c.call(ctx, "getUpdates", params, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}
