// Package config предоставляет структуры и функцию для парсинга и загрузки конфига
package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config общая структура для хранения настроек
type Config struct {
	Env                     string `yaml:"env" env-default:"local"`
	StorageConnectionString string `yaml:"storage_connection_string"`
	PlatformBaseURL         string `yaml:"platform_base_url"`
	RabbitMQURL             string `yaml:"rabbitmq_url"`
	RedisConnection         `yaml:"redis_connection"`
	HTTPServer              `yaml:"http_server"`
	JWTToken                `yaml:"jwttoken"`
	PaymentGateway          `yaml:"payment_gateway"`
	Reconciler              `yaml:"reconciler"`
}

// HTTPServer структура для настройки сервера
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env-default:":8080"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env-default:"10s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// RedisConnection структура для настройки подключения к redis
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis"`
	Password     string        `yaml:"password"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries" env-default:"3"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env-default:"5s"`
	TimeoutRedis time.Duration `yaml:"timeoutredis" env-default:"5s"`
}

// JWTToken структура для работы с административным jwt-токеном
type JWTToken struct {
	JWTSecretKey string        `yaml:"jwt_secret_key"`
	TokenTTL     time.Duration `yaml:"token_ttl" env-default:"24h"`
}

// PaymentGateway структура для настройки клиента платёжного шлюза
type PaymentGateway struct {
	ShopID           string        `yaml:"shop_id"`
	SecretKey        string        `yaml:"secret_key"`
	APIURL           string        `yaml:"api_url" env-default:"https://api.gateway.example/v1"`
	WebhookSecret    string        `yaml:"webhook_secret"`
	CallTimeout      time.Duration `yaml:"call_timeout" env-default:"10s"`
	DefaultReturnURL string        `yaml:"default_return_url"`
}

// Reconciler структура для настройки фоновой сверки планов
type Reconciler struct {
	Interval       time.Duration `yaml:"interval" env-default:"1h"`
	PendingTTL     time.Duration `yaml:"pending_ttl" env-default:"120h"`
	ExpiringWindow time.Duration `yaml:"expiring_window" env-default:"24h"`
	GracePeriod    time.Duration `yaml:"grace_period" env-default:"72h"`
}

// MustLoad функция для загрузки конфига, завершает процесс при любой ошибке.
// Путь к файлу берётся из переменной окружения CONFIG_PATH.
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

	// В продовой конфигурации проверка подписи вебхуков обязательна:
	// пустой секрет означает молчаливый пропуск проверки и недопустим.
	if cfg.Env == "prod" && cfg.WebhookSecret == "" {
		log.Fatal("payment_gateway.webhook_secret must be set when env is prod")
	}

	return &cfg
}
