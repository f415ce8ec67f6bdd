// Package tinkoff реализует HTTP-обработчик уведомлений карточного шлюза.
//
// Шлюз повторяет доставку до получения успешного ответа, поэтому обработчик
// возвращает 200 для всех терминальных исходов и ошибочный статус только
// когда повтор имеет смысл. Доставка приглашения после подтверждения —
// best-effort: её сбой не меняет ответ шлюзу.
package tinkoff

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/channel-access/internal/http/response"
	"github.com/magabrotheeeer/channel-access/internal/lib/sl"
	"github.com/magabrotheeeer/channel-access/internal/services/payment"
)

// Processor описывает обработку уведомления шлюза.
type Processor interface {
	ProcessWebhook(ctx context.Context, notification map[string]any) (payment.Result, error)
}

// InviteIssuer описывает выдачу ссылки-приглашения после оплаты.
type InviteIssuer interface {
	Issue(ctx context.Context, telegramID int64, username string) (string, error)
}

// Messenger описывает отправку сообщения пользователю.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Handler обрабатывает POST /webhook/tinkoff.
type Handler struct {
	log       *slog.Logger
	processor Processor
	invites   InviteIssuer
	messenger Messenger
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, processor Processor, invites InviteIssuer, messenger Messenger) *Handler {
	return &Handler{
		log:       log,
		processor: processor,
		invites:   invites,
		messenger: messenger,
	}
}

// ServeHTTP godoc
// @Summary Уведомление карточного шлюза
// @Description Принимает уведомление о смене статуса платежа. При подтверждении продлевает подписку и отправляет плательщику ссылку-приглашение.
// @Tags Webhook
// @Accept  json
// @Produce  json
// @Success 200 {object} map[string]any "Уведомление обработано"
// @Failure 400 {object} response.ErrorResponse "Неверная подпись или формат"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /webhook/tinkoff [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.webhook.tinkoff"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var notification map[string]any
	if err := json.NewDecoder(r.Body).Decode(&notification); err != nil {
		log.Error("failed to decode notification body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	result, err := h.processor.ProcessWebhook(r.Context(), notification)
	if err != nil {
		if errors.Is(err, payment.ErrInvalidSignature) ||
			errors.Is(err, payment.ErrMissingOrderID) ||
			errors.Is(err, payment.ErrMalformedOrderID) {
			log.Error("notification rejected", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error("notification rejected"))
			return
		}
		log.Error("failed to process notification", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	if result.Granted {
		h.deliverInvite(r.Context(), log, result)
	}

	log.Info("notification processed",
		slog.String("status", result.Status),
		slog.Bool("granted", result.Granted))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"message": result.Message,
	}))
}

// deliverInvite отправляет плательщику подтверждение и свежую ссылку.
func (h *Handler) deliverInvite(ctx context.Context, log *slog.Logger, result payment.Result) {
	link, err := h.invites.Issue(ctx, result.TelegramID, "")
	if err != nil {
		log.Error("failed to issue invite after payment", sl.Err(err))
		return
	}
	text := fmt.Sprintf(
		"Оплата получена. Подписка продлена на %d мес.\n"+
			"Ссылка для входа в канал (действует 30 минут, одно использование):\n%s",
		result.Tariff.Months, link)
	if err := h.messenger.SendMessage(ctx, result.TelegramID, text); err != nil {
		log.Error("failed to notify payer", sl.Err(err))
	}
}
