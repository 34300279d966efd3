package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"checkout-saga/config"
	"checkout-saga/internal/cache"
	"checkout-saga/internal/consumer"
	"checkout-saga/internal/database"
	"checkout-saga/internal/gateway"
	"checkout-saga/internal/idempotency"
	"checkout-saga/internal/logger"
	"checkout-saga/internal/producer"
	"checkout-saga/internal/repository"
	"checkout-saga/internal/service"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	isDev := os.Getenv("ENV") == "development"
	if err := logger.Init(isDev); err != nil {
		panic(err)
	}
	defer logger.Sync()

	log := logger.L()

	cfg := config.Load(log)
	db := database.ConnectDB(&cfg.DB.Config, log)
	defer database.CloseDB(db, log)

	rdb, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	repos := repository.New(db)
	idem := idempotency.NewRedisStore(rdb, "payment")

	gw, err := gateway.New(gateway.Config{
		Provider:    cfg.Payment.Provider,
		FailRate:    cfg.Payment.FailRate,
		DeclineRate: cfg.Payment.DeclineRate,
		Seed:        cfg.Payment.Seed,
	})
	if err != nil {
		log.Fatal("failed to build payment gateway", zap.Error(err))
	}
	log.Info("payment gateway selected", zap.String("provider", gw.Name()))

	events := producer.NewEventProducer(cfg.Kafka.Brokers, producer.Topics{
		OrderCreated:  cfg.Kafka.TopicOrderCreated,
		PaymentResult: cfg.Kafka.TopicPaymentResult,
		OrderUpdated:  cfg.Kafka.TopicOrderUpdated,
	})
	defer events.Close()

	payments := service.NewPaymentService(repos, gw, events, idem, cfg.Saga.IdempotencyTTL,
		service.PaymentRetryConfig{
			MaxAttempts:     cfg.Payment.MaxAttempts,
			InitialInterval: cfg.Payment.InitialInterval,
			MaxInterval:     cfg.Payment.MaxInterval,
		}, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	created := consumer.NewOrderCreatedConsumer(
		cfg.Kafka.Brokers, cfg.Kafka.GroupPayment, cfg.Kafka.TopicOrderCreated, payments, log)
	defer created.Close()
	go func() {
		if err := created.Run(ctx); err != nil {
			log.Error("OrderCreated consumer stopped", zap.Error(err))
		}
	}()

	log.Info("Payment service started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down Payment service...")
	cancel()
	log.Info("Payment service stopped gracefully")
}
