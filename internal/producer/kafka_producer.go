package producer

import (
	"context"
	"encoding/json"
	"time"

	"checkout-saga/internal/service"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

const publishTimeout = 5 * time.Second

type Topics struct {
	OrderCreated  string
	PaymentResult string
	OrderUpdated  string
}

// EventProducer реализует service.EventBus поверх Kafka.
// Ключ сообщения — order id, чтобы события одного заказа шли в одну партицию.
type EventProducer struct {
	orderCreated  *kafka.Writer
	paymentResult *kafka.Writer
	orderUpdated  *kafka.Writer
}

func newWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
	}
}

func NewEventProducer(brokers []string, topics Topics) *EventProducer {
	return &EventProducer{
		orderCreated:  newWriter(brokers, topics.OrderCreated),
		paymentResult: newWriter(brokers, topics.PaymentResult),
		orderUpdated:  newWriter(brokers, topics.OrderUpdated),
	}
}

func (p *EventProducer) publish(ctx context.Context, w *kafka.Writer, key string, payload any) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	value, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
	})
}

func (p *EventProducer) PublishOrderCreated(ctx context.Context, e service.OrderCreatedEvent) error {
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	return p.publish(ctx, p.orderCreated, e.OrderID.String(), e)
}

func (p *EventProducer) PublishPaymentResult(ctx context.Context, e service.PaymentResultEvent) error {
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	return p.publish(ctx, p.paymentResult, e.OrderID.String(), e)
}

func (p *EventProducer) PublishOrderUpdated(ctx context.Context, e service.OrderUpdatedEvent) error {
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	return p.publish(ctx, p.orderUpdated, e.OrderID.String(), e)
}

func (p *EventProducer) Close() error {
	for _, w := range []*kafka.Writer{p.orderCreated, p.paymentResult, p.orderUpdated} {
		if err := w.Close(); err != nil {
			return err
		}
	}
	return nil
}
