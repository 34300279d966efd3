package service

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type OrderItemEvent struct {
	ProductID  uuid.UUID `json:"product_id"`
	Quantity   uint32    `json:"quantity"`
	PriceCents int64     `json:"price_cents"`
	Currency   string    `json:"currency"`
	LineTotal  int64     `json:"line_total_cents"`
}

// OrderCreatedEvent публикуется ровно один раз на успешно созданный заказ.
type OrderCreatedEvent struct {
	EventID    string           `json:"event_id"`
	OrderID    uuid.UUID        `json:"order_id"`
	UserID     uuid.UUID        `json:"user_id"`
	Items      []OrderItemEvent `json:"items"`
	TotalCents int64            `json:"total_cents"`
	Currency   string           `json:"currency"`
	CreatedAt  time.Time        `json:"created_at"`
}

// PaymentResultEvent публикуется ровно один раз на терминальный исход платежа.
type PaymentResultEvent struct {
	EventID     string    `json:"event_id"`
	OrderID     uuid.UUID `json:"order_id"`
	PaymentID   uuid.UUID `json:"payment_id"`
	Status      string    `json:"status"` // SUCCESS | FAILED
	AmountCents int64     `json:"amount_cents"`
	Currency    string    `json:"currency"`
	Reason      string    `json:"reason,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

const (
	PaymentResultSuccess = "SUCCESS"
	PaymentResultFailed  = "FAILED"
)

// OrderUpdatedEvent публикуется на каждый терминальный переход саги —
// для downstream-потребителей (уведомления и т.п.).
type OrderUpdatedEvent struct {
	EventID   string    `json:"event_id"`
	OrderID   uuid.UUID `json:"order_id"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

type EventBus interface {
	PublishOrderCreated(ctx context.Context, e OrderCreatedEvent) error
	PublishPaymentResult(ctx context.Context, e PaymentResultEvent) error
	PublishOrderUpdated(ctx context.Context, e OrderUpdatedEvent) error
}
