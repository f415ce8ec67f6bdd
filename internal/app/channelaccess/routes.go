// Package channelaccess предоставляет маршруты основного процесса.
package channelaccess

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"golang.org/x/time/rate"

	adminlogin "github.com/magabrotheeeer/channel-access/internal/http/handlers/admin/login"
	adminstats "github.com/magabrotheeeer/channel-access/internal/http/handlers/admin/stats"
	"github.com/magabrotheeeer/channel-access/internal/http/handlers/health"
	webhooktinkoff "github.com/magabrotheeeer/channel-access/internal/http/handlers/webhook/tinkoff"
	"github.com/magabrotheeeer/channel-access/internal/http/middlewarectx"
	"github.com/magabrotheeeer/channel-access/internal/lib/jwt"
	authservice "github.com/magabrotheeeer/channel-access/internal/services/auth"
	paymentservice "github.com/magabrotheeeer/channel-access/internal/services/payment"
	statsservice "github.com/magabrotheeeer/channel-access/internal/services/stats"
	"github.com/magabrotheeeer/channel-access/internal/telegram"
)

// InviteIssuer — выдача ссылки-приглашения после подтверждённой оплаты.
type InviteIssuer = webhooktinkoff.InviteIssuer

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, maker *jwt.Maker,
	paymentService *paymentservice.Service, invites InviteIssuer,
	messenger *telegram.Client, authService *authservice.Service,
	statsService *statsservice.Service) {
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	r.Get("/health", health.New(logger).ServeHTTP)
	r.Post("/webhook/tinkoff", webhooktinkoff.New(logger, paymentService, invites, messenger).ServeHTTP)

	r.Route("/admin", func(r chi.Router) {
		r.Post("/login", adminlogin.New(logger, authService).ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(maker, logger))
			r.Use(middlewarectx.RateLimitMiddleware(rate.NewLimiter(1, 3), logger))
			r.Get("/subscribers/stats", adminstats.New(logger, statsService).ServeHTTP)
		})
	})

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
