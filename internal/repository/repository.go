package repository

import "gorm.io/gorm"

type Repository struct {
	DB           *gorm.DB
	Orders       OrderRepo
	Items        OrderItemRepo
	Products     ProductRepo
	Inventories  InventoryRepo
	Reservations ReservationRepo
	Payments     PaymentRepo
}

func buildRepository(db *gorm.DB) *Repository {
	return &Repository{
		DB:           db,
		Orders:       NewOrderRepo(db),
		Items:        NewOrderItemRepo(db),
		Products:     NewProductRepo(db),
		Inventories:  NewInventoryRepo(db),
		Reservations: NewReservationRepo(db),
		Payments:     NewPaymentRepo(db),
	}
}

func New(db *gorm.DB) *Repository { return buildRepository(db) }

// WithTx — глобальная транзакция на весь набор репо. Репозитории-фейки в
// тестах собирают Repository без DB — тогда fn выполняется без транзакции,
// поэтому бизнес-логика не должна полагаться на rollback для компенсаций.
func (r *Repository) WithTx(fn func(tx *Repository) error) error {
	if r.DB == nil {
		return fn(r)
	}
	return r.DB.Transaction(func(tx *gorm.DB) error {
		return fn(buildRepository(tx))
	})
}
