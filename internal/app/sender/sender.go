// Package sender собирает процесс доставки напоминаний: подключение
// к брокеру, расшифровка получателей и отправка сообщений ботом.
package sender

import (
	"context"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/channel-access/internal/config"
	"github.com/magabrotheeeer/channel-access/internal/lib/cryptokit"
	"github.com/magabrotheeeer/channel-access/internal/rabbitmq"
	auditservice "github.com/magabrotheeeer/channel-access/internal/services/audit"
	senderservice "github.com/magabrotheeeer/channel-access/internal/services/sender"
	"github.com/magabrotheeeer/channel-access/internal/storage/repository"
	"github.com/magabrotheeeer/channel-access/internal/telegram"
)

// App — собранный процесс notification-sender.
type App struct {
	conn          *amqp.Connection
	ch            *amqp.Channel
	senderService *senderservice.Service
	db            *repository.Storage
	logger        *slog.Logger
}

// New строит все зависимости процесса.
func New(_ context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}

	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, err
	}
	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetNotificationQueues())
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	codec, err := cryptokit.NewCodec(cfg.EncryptionKey)
	if err != nil {
		return nil, err
	}

	tgClient := telegram.NewClient(cfg.BotToken, cfg.TelegramAPI)
	auditService := auditservice.New(db, codec, cfg.AppSecret, logger)
	senderService := senderservice.New(tgClient, auditService, codec, logger)

	return &App{
		conn:          conn,
		ch:            ch,
		senderService: senderService,
		db:            db,
		logger:        logger,
	}, nil
}

// Run запускает потребителя очереди напоминаний и блокируется
// до отмены контекста.
func (a *App) Run(ctx context.Context) error {
	handler := func(body []byte) error {
		return a.senderService.ProcessMessage(ctx, body)
	}
	if err := rabbitmq.ConsumerMessage(ctx, a.ch, rabbitmq.ReminderQueue, handler); err != nil {
		a.logger.Error("failed to start reminder consumer", slog.Any("err", err))
		return err
	}

	<-ctx.Done()
	a.logger.Info("sender shutting down gracefully")

	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", slog.Any("err", err))
	}
	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", slog.Any("err", err))
	}
	_ = a.db.DB.Close()
	return nil
}
