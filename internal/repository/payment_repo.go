package repository

import (
	"context"
	"errors"

	"checkout-saga/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PaymentRepo interface {
	// CreateIfAbsent создаёт запись платежа для заказа; при конфликте по
	// order_id возвращает false — платёж уже существует.
	CreateIfAbsent(ctx context.Context, p *models.Payment) (bool, error)
	GetByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payment, error)
	MarkRetrying(ctx context.Context, id uuid.UUID, attempts int32, lastErr string) error
	Finalize(ctx context.Context, id uuid.UUID, status models.PaymentStatus, attempts int32, providerRef, lastErr *string) (bool, error)
}

type paymentRepo struct{ db *gorm.DB }

func NewPaymentRepo(db *gorm.DB) PaymentRepo { return &paymentRepo{db: db} }

func (r *paymentRepo) CreateIfAbsent(ctx context.Context, p *models.Payment) (bool, error) {
	tx := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}},
			DoNothing: true,
		}).
		Create(p)
	return tx.RowsAffected > 0, tx.Error
}

func (r *paymentRepo) GetByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	var p models.Payment
	err := r.db.WithContext(ctx).First(&p, "order_id = ?", orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &p, err
}

func (r *paymentRepo) MarkRetrying(ctx context.Context, id uuid.UUID, attempts int32, lastErr string) error {
	return r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     models.PaymentStatusRetrying,
			"attempts":   attempts,
			"last_error": lastErr,
		}).Error
}

// Finalize переводит платёж в терминальный статус; уже финализированная
// запись не перезаписывается.
func (r *paymentRepo) Finalize(ctx context.Context, id uuid.UUID, status models.PaymentStatus, attempts int32, providerRef, lastErr *string) (bool, error) {
	tx := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status NOT IN ?", id,
			[]models.PaymentStatus{models.PaymentStatusSuccess, models.PaymentStatusFailed}).
		Updates(map[string]any{
			"status":       status,
			"attempts":     attempts,
			"provider_ref": providerRef,
			"last_error":   lastErr,
		})
	return tx.RowsAffected > 0, tx.Error
}
