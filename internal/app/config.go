package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ecom/internal/service/pricing"
)

// Config описывает настройки запуска сервиса. Все значения читаются из
// окружения с префиксом ECOM_; пустой PostgresDSN переключает хранилища
// на in-memory реализации для локальной разработки.
type Config struct {
	HTTPAddr    string
	MetricsAddr string

	PostgresDSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	KafkaBrokers []string
	KafkaTopic   string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int

	Pricing pricing.Policy
}

// DefaultConfig возвращает конфигурацию по умолчанию.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:           ":8080",
		MetricsAddr:        ":9090",
		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		Pricing:            pricing.DefaultPolicy(),
	}
}

// LoadConfig читает конфигурацию из окружения, подхватывая .env, если он есть.
func LoadConfig() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Debug("no .env file loaded")
	}

	cfg := DefaultConfig()
	cfg.HTTPAddr = getenv("ECOM_HTTP_ADDR", cfg.HTTPAddr)
	cfg.MetricsAddr = getenv("ECOM_METRICS_ADDR", cfg.MetricsAddr)
	cfg.PostgresDSN = os.Getenv("ECOM_POSTGRES_DSN")
	cfg.RedisAddr = os.Getenv("ECOM_REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("ECOM_REDIS_PASSWORD")
	cfg.RedisDB = getenvInt("ECOM_REDIS_DB", 0)
	cfg.KafkaBrokers = splitCSV(os.Getenv("ECOM_KAFKA_BROKERS"))
	cfg.KafkaTopic = os.Getenv("ECOM_KAFKA_TOPIC")
	cfg.OutboxPollInterval = getenvDuration("ECOM_OUTBOX_POLL_INTERVAL", cfg.OutboxPollInterval)
	cfg.OutboxBatchSize = getenvInt("ECOM_OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize)

	cfg.Pricing.TaxRateBP = getenvInt64("ECOM_TAX_RATE_BP", cfg.Pricing.TaxRateBP)
	cfg.Pricing.FlatShippingMinor = getenvInt64("ECOM_FLAT_SHIPPING_MINOR", cfg.Pricing.FlatShippingMinor)
	cfg.Pricing.FreeShippingThresholdMinor = getenvInt64("ECOM_FREE_SHIPPING_THRESHOLD_MINOR", cfg.Pricing.FreeShippingThresholdMinor)
	cfg.Pricing.CODSurchargeMinor = getenvInt64("ECOM_COD_SURCHARGE_MINOR", cfg.Pricing.CODSurchargeMinor)
	cfg.Pricing.CardFeeBP = getenvInt64("ECOM_CARD_FEE_BP", cfg.Pricing.CardFeeBP)

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		log.WithField("key", key).WithError(err).Warn("invalid integer in env, using default")
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.WithField("key", key).WithError(err).Warn("invalid integer in env, using default")
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		log.WithField("key", key).WithError(err).Warn("invalid duration in env, using default")
		return def
	}
	return parsed
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
