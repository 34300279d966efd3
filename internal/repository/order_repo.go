package repository

import (
	"context"
	"errors"
	"time"

	"checkout-saga/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type OrderListFilter struct {
	UserID *uuid.UUID
	Status *models.OrderStatus
	Limit  int
	Offset int
}

type OrderRepo interface {
	Create(ctx context.Context, o *models.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetByIDForUser(ctx context.Context, id, userID uuid.UUID) (*models.Order, error)
	List(ctx context.Context, f OrderListFilter) ([]*models.Order, int64, error)

	// CAS-переходы из PENDING: терминальный статус выставляется ровно один раз,
	// проигравший вызов получает false.
	ConfirmIfPending(ctx context.Context, id uuid.UUID, paymentRef string) (bool, error)
	FinishIfPending(ctx context.Context, id uuid.UUID, to models.OrderStatus, reason *string) (bool, error)

	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.Order, error)
}

type orderRepo struct{ db *gorm.DB }

func NewOrderRepo(db *gorm.DB) OrderRepo { return &orderRepo{db: db} }

func (r *orderRepo) Create(ctx context.Context, o *models.Order) error {
	return r.db.WithContext(ctx).Create(o).Error
}

func (r *orderRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var o models.Order
	err := r.db.WithContext(ctx).Preload("Items").First(&o, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &o, err
}

func (r *orderRepo) GetByIDForUser(ctx context.Context, id, userID uuid.UUID) (*models.Order, error) {
	var o models.Order
	err := r.db.WithContext(ctx).Preload("Items").First(&o, "id = ? AND user_id = ?", id, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &o, err
}

func (r *orderRepo) List(ctx context.Context, f OrderListFilter) ([]*models.Order, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Order{})
	if f.UserID != nil {
		q = q.Where("user_id = ?", *f.UserID)
	}
	if f.Status != nil {
		q = q.Where("status = ?", *f.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var list []*models.Order
	err := q.Preload("Items").
		Order("created_at DESC").
		Limit(f.Limit).
		Offset(f.Offset).
		Find(&list).Error
	return list, total, err
}

func (r *orderRepo) ConfirmIfPending(ctx context.Context, id uuid.UUID, paymentRef string) (bool, error) {
	tx := r.db.WithContext(ctx).Exec(`
UPDATE orders
SET status = @to,
    payment_ref = @ref,
    version = version + 1,
    updated_at = now()
WHERE id = @id
  AND status = @from
`, map[string]any{
		"id":   id,
		"to":   models.OrderStatusConfirmed,
		"from": models.OrderStatusPending,
		"ref":  paymentRef,
	})
	return tx.RowsAffected > 0, tx.Error
}

func (r *orderRepo) FinishIfPending(ctx context.Context, id uuid.UUID, to models.OrderStatus, reason *string) (bool, error) {
	tx := r.db.WithContext(ctx).Exec(`
UPDATE orders
SET status = @to,
    cancel_reason = @reason,
    version = version + 1,
    updated_at = now()
WHERE id = @id
  AND status = @from
`, map[string]any{
		"id":     id,
		"to":     to,
		"from":   models.OrderStatusPending,
		"reason": reason,
	})
	return tx.RowsAffected > 0, tx.Error
}

func (r *orderRepo) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.Order, error) {
	var list []*models.Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.OrderStatusPending, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&list).Error
	return list, err
}
