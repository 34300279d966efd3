package service

import (
	"context"

	"checkout-saga/internal/models"

	"github.com/google/uuid"
)

const currencyRUB = "RUB"

type ReserveItem struct {
	ProductID uuid.UUID
	Quantity  uint32
}

// InventoryLedger — авторитетный учёт остатков с суб-леджером резерваций.
// Координатор зовёт Reserve синхронно; Release/Confirm идемпотентны и
// безопасны при повторных вызовах и для неизвестных заказов.
type InventoryLedger interface {
	Reserve(ctx context.Context, orderID uuid.UUID, items []ReserveItem) error
	Release(ctx context.Context, orderID uuid.UUID) (int64, error)
	Confirm(ctx context.Context, orderID uuid.UUID) (int64, error)

	// stock (административные операции)
	GetStock(ctx context.Context, productID uuid.UUID) (*models.Inventory, error)
	SetStock(ctx context.Context, productID uuid.UUID, available int32) (*models.Inventory, error)
	AdjustStock(ctx context.Context, productID uuid.UUID, delta int32) (*models.Inventory, error)
}
