package repository

import (
	"context"
	"errors"
	"time"

	"checkout-saga/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ReservationRepo interface {
	// Upsert «ожидаемой» записи (для идемпотентности повторного reserve)
	UpsertPending(ctx context.Context, orderID, productID uuid.UUID, qty int32, expiresAt time.Time) error
	MarkReserved(ctx context.Context, orderID, productID uuid.UUID) (bool, error)

	// Массовые операции по order_id
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Reservation, error)
	MarkStatusByOrder(ctx context.Context, orderID uuid.UUID, from, to models.ReservationStatus) (int64, error)
	DeleteByOrder(ctx context.Context, orderID uuid.UUID) (int64, error)

	// Уборка завершённых строк (RELEASED/CONFIRMED старше cutoff)
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type reservationRepo struct{ db *gorm.DB }

func NewReservationRepo(db *gorm.DB) ReservationRepo { return &reservationRepo{db: db} }

func (r *reservationRepo) UpsertPending(ctx context.Context, orderID, productID uuid.UUID, qty int32, expiresAt time.Time) error {
	rec := models.Reservation{
		OrderID:   orderID,
		ProductID: productID,
		Quantity:  qty,
		Status:    models.ReservationPending,
		ExpiresAt: expiresAt,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}, {Name: "product_id"}},
			DoUpdates: clause.Assignments(map[string]any{"quantity": qty, "status": models.ReservationPending, "expires_at": expiresAt}),
		}).
		Create(&rec).Error
}

func (r *reservationRepo) MarkReserved(ctx context.Context, orderID, productID uuid.UUID) (bool, error) {
	tx := r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("order_id = ? AND product_id = ?", orderID, productID).
		Update("status", models.ReservationReserved)
	return tx.RowsAffected > 0, tx.Error
}

func (r *reservationRepo) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Reservation, error) {
	var list []models.Reservation
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&list).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return list, err
}

func (r *reservationRepo) MarkStatusByOrder(ctx context.Context, orderID uuid.UUID, from, to models.ReservationStatus) (int64, error) {
	tx := r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("order_id = ? AND status = ?", orderID, from).
		Update("status", to)
	return tx.RowsAffected, tx.Error
}

func (r *reservationRepo) DeleteByOrder(ctx context.Context, orderID uuid.UUID) (int64, error) {
	tx := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Delete(&models.Reservation{})
	return tx.RowsAffected, tx.Error
}

func (r *reservationRepo) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tx := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?",
			[]models.ReservationStatus{models.ReservationReleased, models.ReservationConfirmed}, cutoff).
		Delete(&models.Reservation{})
	return tx.RowsAffected, tx.Error
}
