// Package stats реализует HTTP-обработчик сводки административного API.
package stats

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/channel-access/internal/http/middlewarectx"
	"github.com/magabrotheeeer/channel-access/internal/http/response"
	"github.com/magabrotheeeer/channel-access/internal/lib/sl"
	"github.com/magabrotheeeer/channel-access/internal/services/stats"
)

// Service описывает сбор сводки.
type Service interface {
	Collect(ctx context.Context) (*stats.Summary, error)
}

// Handler обрабатывает GET /admin/subscribers/stats.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Сводка по подписчикам
// @Description Возвращает количество подписчиков, активных подписок, неиспользованных приглашений и суммы платежей по валютам.
// @Tags Admin
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} map[string]any "Сводка"
// @Failure 401 {object} response.ErrorResponse "Неавторизован"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /admin/subscribers/stats [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.stats"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	username, ok := r.Context().Value(middlewarectx.User).(string)
	if !ok || username == "" {
		log.Error("username not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	summary, err := h.service.Collect(r.Context())
	if err != nil {
		log.Error("failed to collect stats", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not collect stats"))
		return
	}

	log.Info("stats collected",
		slog.Int("total", summary.TotalSubscribers),
		slog.Int("active", summary.ActiveSubscribers))
	render.JSON(w, r, response.OKWithData(summary))
}
