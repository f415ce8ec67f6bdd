// Package channelaccess собирает основной процесс: хранилище, кеш,
// брокер, клиенты Telegram и шлюза, сервисы, HTTP-сервер, цикл бота
// и фоновые задачи.
package channelaccess

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/channel-access/internal/bot"
	"github.com/magabrotheeeer/channel-access/internal/cache"
	"github.com/magabrotheeeer/channel-access/internal/config"
	"github.com/magabrotheeeer/channel-access/internal/lib/cryptokit"
	"github.com/magabrotheeeer/channel-access/internal/lib/jwt"
	"github.com/magabrotheeeer/channel-access/internal/migrations"
	"github.com/magabrotheeeer/channel-access/internal/rabbitmq"
	auditservice "github.com/magabrotheeeer/channel-access/internal/services/audit"
	authservice "github.com/magabrotheeeer/channel-access/internal/services/auth"
	inviteservice "github.com/magabrotheeeer/channel-access/internal/services/invite"
	paymentservice "github.com/magabrotheeeer/channel-access/internal/services/payment"
	schedulerservice "github.com/magabrotheeeer/channel-access/internal/services/scheduler"
	statsservice "github.com/magabrotheeeer/channel-access/internal/services/stats"
	subscriptionservice "github.com/magabrotheeeer/channel-access/internal/services/subscription"
	"github.com/magabrotheeeer/channel-access/internal/storage/repository"
	"github.com/magabrotheeeer/channel-access/internal/telegram"
	"github.com/magabrotheeeer/channel-access/internal/tinkoff"
)

// App — собранный процесс channel-access.
type App struct {
	server    *http.Server
	bot       *bot.Bot
	scheduler *schedulerservice.Service
	db        *repository.Storage
	amqpConn  *amqp.Connection
	amqpCh    *amqp.Channel
	logger    *slog.Logger
}

// New строит все зависимости процесса. Конструирование явное,
// без глобального состояния.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err := migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, err
	}

	amqpConn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, err
	}
	amqpCh, err := rabbitmq.SetupChannel(amqpConn, rabbitmq.GetNotificationQueues())
	if err != nil {
		_ = amqpConn.Close()
		return nil, err
	}
	publisher := rabbitmq.NewChannelPublisher(amqpCh)

	codec, err := cryptokit.NewCodec(cfg.EncryptionKey)
	if err != nil {
		return nil, err
	}

	tgClient := telegram.NewClient(cfg.BotToken, cfg.TelegramAPI)
	gateway := tinkoff.NewClient(cfg.TerminalKey, cfg.TinkoffSecret, cfg.GatewayURL)
	maker := jwt.NewMaker(cfg.JWTSecretKey, cfg.TokenTTL)

	auditService := auditservice.New(db, codec, cfg.AppSecret, logger)
	subscriptionService := subscriptionservice.New(db, cacheRedis, codec, cfg.AppSecret, logger)
	inviteService := inviteservice.New(db, subscriptionService, tgClient, auditService,
		codec, cfg.AppSecret, cfg.ChannelID, logger)
	paymentService := paymentservice.New(db, subscriptionService, gateway, auditService,
		codec, cfg.AppSecret, cfg.WebhookBaseURL, logger)
	schedulerService := schedulerservice.New(subscriptionService, tgClient, publisher,
		auditService, codec, cfg.ChannelID, logger)
	authService := authservice.New(cfg.AdminUsername, cfg.AdminPasswordHash, maker, auditService, logger)
	statsService := statsservice.New(db)

	accessBot := bot.New(tgClient, subscriptionService, paymentService, inviteService,
		cfg.ChannelID, cfg.PollTimeout, logger)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, maker, paymentService, inviteService, tgClient,
		authService, statsService)

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server:    srv,
		bot:       accessBot,
		scheduler: schedulerService,
		db:        db,
		amqpConn:  amqpConn,
		amqpCh:    amqpCh,
		logger:    logger,
	}, nil
}

// Run запускает HTTP-сервер, цикл бота и фоновые задачи и блокируется
// до отмены контекста или падения сервера.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		a.bot.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		a.scheduler.RunExpirationLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		a.scheduler.RunReminderLoop(ctx)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down gracefully")
		err := a.server.Shutdown(timeoutCtx)
		wg.Wait()
		if closeErr := a.amqpCh.Close(); closeErr != nil {
			a.logger.Error("failed to close channel", slog.Any("err", closeErr))
		}
		if closeErr := a.amqpConn.Close(); closeErr != nil {
			a.logger.Error("failed to close connection", slog.Any("err", closeErr))
		}
		_ = a.db.DB.Close()
		return err
	}
}
