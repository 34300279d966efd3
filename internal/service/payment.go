package service

import (
	"context"

	"checkout-saga/internal/models"

	"github.com/google/uuid"
)

// PaymentProcessor исполняет списание через внешний шлюз и публикует ровно
// один PaymentResult на терминальный исход платежа заказа.
type PaymentProcessor interface {
	// Process идемпотентен по orderID: существующая запись платежа
	// возвращается без повторного списания.
	Process(ctx context.Context, orderID uuid.UUID, amountCents int64, currency string) (*models.Payment, error)

	// HandleOrderCreated — асинхронная точка входа; дедупликация по event id
	// выполняется до Process.
	HandleOrderCreated(ctx context.Context, e OrderCreatedEvent) error
}
