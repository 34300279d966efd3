package service

import (
	"context"
	"time"

	"checkout-saga/internal/models"

	"github.com/google/uuid"
)

type CreateOrderItem struct {
	ProductID uuid.UUID
	Quantity  uint32
}

type CreateOrderInput struct {
	Items          []CreateOrderItem
	IdempotencyKey string
}

type ListFilter struct {
	UserID *uuid.UUID
	Status *models.OrderStatus
	Limit  int
	Offset int
}

// OrderService — координатор саги заказа. Владеет машиной состояний
// PENDING → {CONFIRMED, FAILED, CANCELLED}; терминальные статусы неизменяемы.
type OrderService interface {
	CreateOrder(ctx context.Context, in CreateOrderInput) (*models.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListOrders(ctx context.Context, f ListFilter) ([]models.Order, int64, error)
	CancelOrder(ctx context.Context, id uuid.UUID, reason *string) (*models.Order, error)

	// HandlePaymentResult — асинхронная точка входа от шины событий.
	HandlePaymentResult(ctx context.Context, e PaymentResultEvent) error

	// CancelExpired переводит зависшие PENDING-заказы старше cutoff в
	// CANCELLED; безопасно для конкурентных/избыточных запусков.
	CancelExpired(ctx context.Context, cutoff time.Time) (int, error)
}
