package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"checkout-saga/internal/service"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

func newReader(brokers []string, groupID, topic string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:           brokers,
		GroupID:           groupID,
		Topic:             topic,
		MinBytes:          10e3,
		MaxBytes:          10e6,
		CommitInterval:    time.Second,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
	})
}

// OrderCreatedConsumer читает orders.created и отдаёт события платёжному
// процессору. Шина даёт at-least-once — дедупликацию делает обработчик.
type OrderCreatedConsumer struct {
	reader   *kafka.Reader
	payments service.PaymentProcessor
	log      *zap.Logger
}

func NewOrderCreatedConsumer(brokers []string, groupID, topic string, payments service.PaymentProcessor, log *zap.Logger) *OrderCreatedConsumer {
	return &OrderCreatedConsumer{
		reader:   newReader(brokers, groupID, topic),
		payments: payments,
		log:      log,
	}
}

func (c *OrderCreatedConsumer) Run(ctx context.Context) error {
	c.log.Info("OrderCreated consumer started")
	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			c.log.Error("read message", zap.Error(err))
			continue
		}
		var e service.OrderCreatedEvent
		if err := json.Unmarshal(m.Value, &e); err != nil {
			c.log.Error("unmarshal OrderCreated", zap.ByteString("value", m.Value), zap.Error(err))
			continue
		}
		if err := c.payments.HandleOrderCreated(ctx, e); err != nil {
			c.log.Error("handle OrderCreated",
				zap.String("order_id", e.OrderID.String()), zap.Error(err))
			continue
		}
	}
}

func (c *OrderCreatedConsumer) Close() error { return c.reader.Close() }

// PaymentResultConsumer читает payments.result на стороне координатора.
type PaymentResultConsumer struct {
	reader *kafka.Reader
	orders service.OrderService
	log    *zap.Logger
}

func NewPaymentResultConsumer(brokers []string, groupID, topic string, orders service.OrderService, log *zap.Logger) *PaymentResultConsumer {
	return &PaymentResultConsumer{
		reader: newReader(brokers, groupID, topic),
		orders: orders,
		log:    log,
	}
}

func (c *PaymentResultConsumer) Run(ctx context.Context) error {
	c.log.Info("PaymentResult consumer started")
	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			c.log.Error("read message", zap.Error(err))
			continue
		}
		var e service.PaymentResultEvent
		if err := json.Unmarshal(m.Value, &e); err != nil {
			c.log.Error("unmarshal PaymentResult", zap.ByteString("value", m.Value), zap.Error(err))
			continue
		}
		if err := c.orders.HandlePaymentResult(ctx, e); err != nil {
			c.log.Error("handle PaymentResult",
				zap.String("order_id", e.OrderID.String()), zap.Error(err))
			continue
		}
	}
}

func (c *PaymentResultConsumer) Close() error { return c.reader.Close() }
