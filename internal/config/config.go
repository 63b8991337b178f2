package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBDSN       string
	Environment string
	HTTPAddr    string

	TelegramToken string

	RedisAddr     string
	RedisPassword string

	CronAPIKey    string
	WebhookSecret string

	StoreTimeout  time.Duration
	SweepInterval time.Duration
	SweepTimeout  time.Duration
	SweepWorkers  int
	LockTTL       time.Duration

	RestrictedRedirect string
}

func Load() (*Config, error) {
	// Пытаемся загрузить .env файл (игнорируем ошибку, если файла нет)
	if err := godotenv.Load(".env"); err != nil {
		log.Println("⚠️  No .env file found, using environment variables")
	} else {
		log.Println("✅ Loaded configuration from .env file")
	}

	return FromEnv()
}

// FromEnv читает конфиг из переменных окружения без .env
func FromEnv() (*Config, error) {
	cfg := &Config{
		DBDSN:              os.Getenv("DB_DSN"),
		Environment:        getenv("ENV", "development"),
		HTTPAddr:           getenv("HTTP_ADDR", ":8080"),
		TelegramToken:      os.Getenv("TELEGRAM_TOKEN"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		CronAPIKey:         os.Getenv("CRON_API_KEY"),
		WebhookSecret:      os.Getenv("WEBHOOK_SECRET"),
		StoreTimeout:       getenvDuration("STORE_TIMEOUT", 5*time.Second),
		SweepInterval:      getenvDuration("SWEEP_INTERVAL", time.Hour),
		SweepTimeout:       getenvDuration("SWEEP_TIMEOUT", 5*time.Minute),
		SweepWorkers:       getenvInt("SWEEP_WORKERS", 4),
		LockTTL:            getenvDuration("LOCK_TTL", 30*time.Second),
		RestrictedRedirect: getenv("RESTRICTED_REDIRECT", "/restricted-access"),
	}

	// Проверяем обязательные поля
	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("DB_DSN is required but not set")
	}

	if cfg.SweepWorkers < 1 {
		return nil, fmt.Errorf("SWEEP_WORKERS must be positive, got %d", cfg.SweepWorkers)
	}

	// Нулевой интервал роняет time.NewTicker, нулевой таймаут убивает каждый прогон
	for _, d := range []struct {
		key   string
		value time.Duration
	}{
		{"STORE_TIMEOUT", cfg.StoreTimeout},
		{"SWEEP_INTERVAL", cfg.SweepInterval},
		{"SWEEP_TIMEOUT", cfg.SweepTimeout},
		{"LOCK_TTL", cfg.LockTTL},
	} {
		if d.value <= 0 {
			return nil, fmt.Errorf("%s must be positive, got %s", d.key, d.value)
		}
	}

	return cfg, nil
}

func (c *Config) GetDBDSN() string {
	return c.DBDSN
}

// RedisEnabled сообщает, нужна ли распределённая блокировка
func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

// BotEnabled сообщает, запускать ли Telegram бота
func (c *Config) BotEnabled() bool {
	return c.TelegramToken != ""
}

func getenv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("⚠️  Invalid %s=%q, using %s", key, value, fallback)
		return fallback
	}
	return parsed
}

func getenvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("⚠️  Invalid %s=%q, using %d", key, value, fallback)
		return fallback
	}
	return parsed
}
