// Package config предоставляет структуры и функцию для парсинга и загрузки конфига.
package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config общая структура для хранения настроек процесса.
// Все значения задаются один раз при старте и не меняются.
type Config struct {
	Env                     string `yaml:"env" env-default:"local"`
	StorageConnectionString string `yaml:"storage_connection_string" env:"STORAGE_CONNECTION_STRING"`
	MigrationsPath          string `yaml:"migrations_path" env-default:"./migrations"`
	RedisConnection         `yaml:"redis_connection"`
	RabbitMQ                `yaml:"rabbitmq"`
	HTTPServer              `yaml:"http_server"`
	Telegram                `yaml:"telegram"`
	Tinkoff                 `yaml:"tinkoff"`
	Security                `yaml:"security"`
	Admin                   `yaml:"admin"`
	JWTToken                `yaml:"jwttoken"`
}

// HTTPServer структура для настройки сервера.
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env-default:"0.0.0.0:8080"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env-default:"10s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// RedisConnection структура для настройки подключения к redis.
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries" env-default:"3"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env-default:"5s"`
	TimeoutRedis time.Duration `yaml:"timeoutredis" env-default:"3s"`
}

// RabbitMQ структура для настройки подключения к брокеру уведомлений.
type RabbitMQ struct {
	RabbitMQURL        string        `yaml:"rabbitmq_url" env:"RABBITMQ_URL"`
	RabbitMQMaxRetries int           `yaml:"rabbitmq_max_retries" env-default:"10"`
	RabbitMQRetryDelay time.Duration `yaml:"rabbitmq_retry_delay" env-default:"3s"`
}

// Telegram структура с параметрами бота и закрытого канала.
type Telegram struct {
	BotToken    string `yaml:"bot_token" env:"BOT_TOKEN"`
	ChannelID   int64  `yaml:"channel_id"`
	PollTimeout int    `yaml:"poll_timeout" env-default:"30"`
	TelegramAPI string `yaml:"telegram_api" env-default:"https://api.telegram.org"`
}

// Tinkoff структура с параметрами карточного шлюза.
type Tinkoff struct {
	TerminalKey    string `yaml:"terminal_key" env:"TINKOFF_TERMINAL_KEY"`
	TinkoffSecret  string `yaml:"tinkoff_secret" env:"TINKOFF_SECRET"`
	GatewayURL     string `yaml:"gateway_url" env-default:"https://securepay.tinkoff.ru"`
	WebhookBaseURL string `yaml:"webhook_base_url"`
}

// Security структура с секретами псевдонимизации и шифрования идентификаторов.
type Security struct {
	AppSecret     string `yaml:"app_secret" env:"APP_SECRET"`
	EncryptionKey string `yaml:"encryption_key" env:"ENCRYPTION_KEY"`
}

// Admin структура с учётными данными административного API.
type Admin struct {
	AdminUsername     string `yaml:"admin_username" env-default:"admin"`
	AdminPasswordHash string `yaml:"admin_password_hash" env:"ADMIN_PASSWORD_HASH"`
}

// JWTToken структура для работы с jwt-токеном административного API.
type JWTToken struct {
	JWTSecretKey string        `yaml:"jwt_secret_key" env:"JWT_SECRET_KEY"`
	TokenTTL     time.Duration `yaml:"token_ttl" env-default:"1h"`
}

// MustLoad загружает конфиг из файла, указанного в CONFIG_PATH.
// Останавливает процесс, если файл отсутствует или не читается.
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("file: %s - does not exist", configPath)
	}
	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return &cfg
}
