package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"checkout-saga/internal/database"

	"go.uber.org/zap"
)

type Config struct {
	Env      string
	HTTPPort string
	DB       DB
	Redis    Redis
	Kafka    Kafka
	Saga     Saga
	Payment  Payment
}

type DB struct {
	database.Config
}

type Redis struct {
	Addr     string
	Password string
	DB       int
}

type Kafka struct {
	Brokers            []string
	TopicOrderCreated  string
	TopicPaymentResult string
	TopicOrderUpdated  string
	GroupOrder         string
	GroupPayment       string
}

type Saga struct {
	// TTL — сколько заказ может висеть в PENDING до отмены таймаут-сканером
	TTL          time.Duration
	ScanInterval time.Duration
	// IdempotencyTTL — время жизни ключей идемпотентности и дедупликации
	IdempotencyTTL time.Duration
}

type Payment struct {
	Provider        string
	MaxAttempts     uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
	FailRate        float64
	DeclineRate     float64
	Seed            int64
}

func Load(log *zap.Logger) *Config {
	return &Config{
		Env:      os.Getenv("ENV"),
		HTTPPort: getEnv("APP_PORT", log),
		DB: DB{
			Config: database.Config{
				Host:     getEnv("DB_HOST", log),
				Port:     getEnv("DB_PORT", log),
				User:     getEnv("DB_USER", log),
				Password: getEnv("DB_PASSWORD", log),
				Name:     getEnv("DB_NAME", log),
				SSLMode:  getEnv("DB_SSLMODE", log),
			},
		},
		Redis: Redis{
			Addr:     getEnv("REDIS_ADDR", log),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       atoiDefault(os.Getenv("REDIS_DB"), 0),
		},
		Kafka: Kafka{
			Brokers:            splitAndTrim(getEnv("KAFKA_BROKERS", log)),
			TopicOrderCreated:  envDefault("KAFKA_TOPIC_ORDER_CREATED", "orders.created"),
			TopicPaymentResult: envDefault("KAFKA_TOPIC_PAYMENT_RESULT", "payments.result"),
			TopicOrderUpdated:  envDefault("KAFKA_TOPIC_ORDER_UPDATED", "orders.updated"),
			GroupOrder:         envDefault("KAFKA_GROUP_ORDER", "order-service"),
			GroupPayment:       envDefault("KAFKA_GROUP_PAYMENT", "payment-service"),
		},
		Saga: Saga{
			TTL:            durationDefault("SAGA_TTL_SECONDS", 15*time.Minute),
			ScanInterval:   durationDefault("SAGA_SCAN_INTERVAL_SECONDS", time.Minute),
			IdempotencyTTL: durationDefault("IDEMPOTENCY_TTL_SECONDS", 24*time.Hour),
		},
		Payment: Payment{
			Provider:        envDefault("PAYMENT_PROVIDER", "simulated"),
			MaxAttempts:     uint64(atoiDefault(os.Getenv("PAYMENT_MAX_ATTEMPTS"), 3)),
			InitialInterval: millisDefault("PAYMENT_BACKOFF_INITIAL_MS", 500*time.Millisecond),
			MaxInterval:     millisDefault("PAYMENT_BACKOFF_MAX_MS", 10*time.Second),
			FailRate:        floatDefault("PAYMENT_FAIL_RATE", 0.1),
			DeclineRate:     floatDefault("PAYMENT_DECLINE_RATE", 0.1),
			Seed:            int64(atoiDefault(os.Getenv("PAYMENT_SEED"), 0)),
		},
	}
}

func getEnv(key string, log *zap.Logger) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	log.Error("Обязательная переменная окружения не установлена", zap.String("key", key))
	panic("missing required environment variable: " + key)
}

func envDefault(key, def string) string {
	if val, exists := os.LookupEnv(key); exists && val != "" {
		return val
	}
	return def
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func floatDefault(key string, def float64) float64 {
	f, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return def
	}
	return f
}

func durationDefault(key string, def time.Duration) time.Duration {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return time.Duration(n) * time.Second
}

func millisDefault(key string, def time.Duration) time.Duration {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return time.Duration(n) * time.Millisecond
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	parts := []string{}
	for _, p := range strings.Split(s, ",") {
		pt := strings.TrimSpace(p)
		if pt != "" {
			parts = append(parts, pt)
		}
	}
	return parts
}
