package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type DBConfig struct {
	Driver          string `envconfig:"DB_DRIVER" default:"postgres"`
	Host            string `envconfig:"DB_HOST" default:"postgres"`
	Port            int    `envconfig:"DB_PORT" default:"5432"`
	User            string `envconfig:"DB_USER" default:"booking"`
	Password        string `envconfig:"DB_PASSWORD" default:"booking"`
	Name            string `envconfig:"DB_NAME" default:"booking_db"`
	SSLMode         string `envconfig:"DB_SSLMODE" default:"disable"`
	TimeZone        string `envconfig:"DB_TIMEZONE" default:"UTC"`
	SQLitePath      string `envconfig:"DB_SQLITE_PATH" default:"booking.db"`
	MaxOpenConns    int    `envconfig:"DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int    `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifeTime int    `envconfig:"DB_CONN_MAX_LIFETIME_MIN" default:"30"` // минут
}

// BookingConfig — политика бронирования и скидок.
type BookingConfig struct {
	BusinessTimezone string `envconfig:"BUSINESS_TIMEZONE" default:"Europe/Moscow"`
	AutoConfirm      bool   `envconfig:"BOOKING_AUTO_CONFIRM" default:"false"`
	LeadTimeMin      int    `envconfig:"BOOKING_LEAD_TIME_MIN" default:"60"`
	MarkRescheduled  bool   `envconfig:"BOOKING_MARK_RESCHEDULED" default:"false"`

	DiscountEnabled bool   `envconfig:"DISCOUNT_ENABLED" default:"false"`
	DiscountType    string `envconfig:"DISCOUNT_TYPE" default:"percent"`
	DiscountValue   string `envconfig:"DISCOUNT_VALUE" default:"0"`
}

func (c BookingConfig) LeadTime() time.Duration {
	return time.Duration(c.LeadTimeMin) * time.Minute
}

type RedisConfig struct {
	Addr     string `envconfig:"REDIS_ADDR"` // пусто — кэш выключен
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
	TTLSec   int    `envconfig:"AVAILABILITY_CACHE_TTL_SEC" default:"60"`
}

func (c RedisConfig) TTL() time.Duration { return time.Duration(c.TTLSec) * time.Second }

type NotifyConfig struct {
	RabbitURL       string `envconfig:"RABBIT_URL"` // пусто — только лог
	BookingExchange string `envconfig:"BOOKING_EXCHANGE" default:"booking.exchange"`
	TimeoutMs       int    `envconfig:"NOTIFY_TIMEOUT_MS" default:"2000"`
}

func (c NotifyConfig) Timeout() time.Duration { return time.Duration(c.TimeoutMs) * time.Millisecond }

type Config struct {
	Env      string `envconfig:"APP_ENV" default:"development"`
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`
	GRPCAddr string `envconfig:"GRPC_ADDR" default:":50051"`

	CompletionCron  string `envconfig:"COMPLETION_CRON" default:"*/5 * * * *"`
	RateLimitPerMin int    `envconfig:"RATE_LIMIT_PER_MIN" default:"120"`
	OTLPEndpoint    string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	DB      DBConfig
	Booking BookingConfig
	Redis   RedisConfig
	Notify  NotifyConfig
}

func (c *Config) IsProduction() bool { return c.Env == "production" }

// Load читает .env (если есть) и переменные окружения.
func Load() (*Config, error) {
	// .env необязателен
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate — минимальная валидация. Таймзона проверяется отдельно при старте.
func (c *Config) Validate() error {
	switch c.DB.Driver {
	case "postgres":
		if c.DB.Host == "" || c.DB.User == "" || c.DB.Name == "" {
			return fmt.Errorf("invalid DB config: host/user/name must not be empty")
		}
	case "sqlite":
		if c.DB.SQLitePath == "" {
			return fmt.Errorf("invalid DB config: DB_SQLITE_PATH must not be empty")
		}
	default:
		return fmt.Errorf("invalid DB config: unsupported driver %q", c.DB.Driver)
	}

	switch c.Booking.DiscountType {
	case "percent", "fixed":
	default:
		return fmt.Errorf("invalid DISCOUNT_TYPE %q: want percent or fixed", c.Booking.DiscountType)
	}

	if c.Booking.LeadTimeMin < 0 {
		return fmt.Errorf("invalid BOOKING_LEAD_TIME_MIN %d: must be >= 0", c.Booking.LeadTimeMin)
	}
	if c.RateLimitPerMin < 0 {
		return fmt.Errorf("invalid RATE_LIMIT_PER_MIN %d: must be >= 0", c.RateLimitPerMin)
	}
	return nil
}
