// Package tinkoff реализует клиент карточного шлюза: подпись запросов,
// вызов Init и проверку подписи входящих уведомлений.
package tinkoff

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrGateway возвращается, когда шлюз отклонил запрос Init.
var ErrGateway = errors.New("gateway init failed")

// Client инкапсулирует HTTP-доступ к шлюзу.
type Client struct {
	terminalKey string
	secret      string
	apiURL      string
	httpClient  *http.Client
}

// NewClient создаёт клиент шлюза. baseURL без завершающего слеша,
// например https://securepay.tinkoff.ru.
func NewClient(terminalKey, secret, baseURL string) *Client {
	return &Client{
		terminalKey: terminalKey,
		secret:      secret,
		apiURL:      baseURL,
		httpClient:  &http.Client{Timeout: 20 * time.Second},
	}
}

// TerminalKey возвращает идентификатор терминала.
func (c *Client) TerminalKey() string { return c.terminalKey }

// Sign добавляет в параметры поле Token с подписью.
func (c *Client) Sign(params map[string]string) {
	params["Token"] = Token(params, c.secret)
}

// Verify проверяет подпись входящего уведомления.
func (c *Client) Verify(params map[string]string) bool {
	return VerifySignature(params, c.secret)
}

type initResponse struct {
	Success    bool   `json:"Success"`
	ErrorCode  string `json:"ErrorCode"`
	Message    string `json:"Message"`
	PaymentURL string `json:"PaymentURL"`
}

// Init регистрирует платёж в шлюзе и возвращает URL платёжной формы.
func (c *Client) Init(ctx context.Context, params map[string]string) (string, error) {
	const op = "tinkoff.Init"

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(params); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/v2/Init", &buf)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s: unexpected status %s: %w", op, resp.Status, ErrGateway)
	}

	var body initResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if !body.Success {
		return "", fmt.Errorf("%s: %s: %w", op, body.Message, ErrGateway)
	}
	return body.PaymentURL, nil
}
