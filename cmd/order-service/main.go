package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"checkout-saga/config"
	"checkout-saga/internal/cache"
	"checkout-saga/internal/consumer"
	"checkout-saga/internal/database"
	"checkout-saga/internal/idempotency"
	"checkout-saga/internal/logger"
	"checkout-saga/internal/producer"
	"checkout-saga/internal/repository"
	"checkout-saga/internal/scheduler"
	"checkout-saga/internal/service"
	transport "checkout-saga/internal/transport/http"

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
	idem := idempotency.NewRedisStore(rdb, "order")

	events := producer.NewEventProducer(cfg.Kafka.Brokers, producer.Topics{
		OrderCreated:  cfg.Kafka.TopicOrderCreated,
		PaymentResult: cfg.Kafka.TopicPaymentResult,
		OrderUpdated:  cfg.Kafka.TopicOrderUpdated,
	})
	defer events.Close()

	ledger := service.NewInventoryService(repos, cfg.Saga.TTL, log)
	pricing := service.NewCatalogPricing(repos.Products)
	orders := service.NewOrderService(repos, ledger, pricing, events, idem, cfg.Saga.IdempotencyTTL, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results := consumer.NewPaymentResultConsumer(
		cfg.Kafka.Brokers, cfg.Kafka.GroupOrder, cfg.Kafka.TopicPaymentResult, orders, log)
	defer results.Close()
	go func() {
		if err := results.Run(ctx); err != nil {
			log.Error("PaymentResult consumer stopped", zap.Error(err))
		}
	}()

	sched := scheduler.New(orders, repos.Reservations, cfg.Saga.TTL, cfg.Saga.ScanInterval, log)
	sched.Start(ctx)
	defer sched.Stop()

	srv := &http.Server{
		Addr:    cfg.HTTPPort,
		Handler: transport.Router(orders, log),
	}

	go func() {
		log.Info("Starting Order HTTP server", zap.String("addr", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down Order service...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP shutdown failed", zap.Error(err))
	}
	log.Info("Order service stopped gracefully")
}
