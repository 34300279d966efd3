package service

import (
	"context"
	"sort"
	"time"

	"checkout-saga/internal/models"
	"checkout-saga/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type inventoryService struct {
	repo       *repository.Repository
	reserveTTL time.Duration
	log        *zap.Logger
	now        func() time.Time
}

func NewInventoryService(repo *repository.Repository, reserveTTL time.Duration, log *zap.Logger) InventoryLedger {
	return &inventoryService{
		repo:       repo,
		reserveTTL: reserveTTL,
		log:        log,
		now:        time.Now,
	}
}

// Reserve резервирует все позиции заказа целиком или не резервирует ничего.
// Повторный вызов для заказа с уже существующей резервацией — no-op: исходный
// успех возвращается без повторного захвата остатков. Неудачная попытка не
// оставляет следов, поэтому retry после освобождения стока может преуспеть.
func (s *inventoryService) Reserve(ctx context.Context, orderID uuid.UUID, items []ReserveItem) error {
	if len(items) == 0 {
		return ErrEmptyItems
	}
	for _, it := range items {
		if it.Quantity == 0 {
			return ErrQuantityInvalid
		}
	}

	existing, err := s.repo.Reservations.ListByOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		// резервация уже создана этим же заказом — идемпотентный повтор
		return nil
	}

	// стабильный порядок захвата по product id против дедлоков
	// при конкурентных мульти-позиционных заказах
	sorted := make([]ReserveItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ProductID.String() < sorted[j].ProductID.String()
	})

	expiresAt := s.now().Add(s.reserveTTL)

	return s.repo.WithTx(func(tx *repository.Repository) error {
		type taken struct {
			productID uuid.UUID
			qty       int32
		}
		var done []taken

		// компенсация выполняется явно: при запуске без транзакции (фейки,
		// будущий вынос леджера в отдельный сервис) rollback недоступен
		undo := func() {
			for i := len(done) - 1; i >= 0; i-- {
				if _, err := tx.Inventories.Release(ctx, done[i].productID, done[i].qty); err != nil {
					s.log.Error("release after failed reserve",
						zap.String("order_id", orderID.String()),
						zap.String("product_id", done[i].productID.String()),
						zap.Error(err))
				}
			}
			if _, err := tx.Reservations.DeleteByOrder(ctx, orderID); err != nil {
				s.log.Error("delete reservations after failed reserve",
					zap.String("order_id", orderID.String()), zap.Error(err))
			}
		}

		for _, it := range sorted {
			p, err := tx.Products.GetByID(ctx, it.ProductID)
			if err != nil {
				undo()
				return err
			}
			if p == nil || !p.IsActive {
				undo()
				return ErrProductNotFound
			}
			if p.CurrencyCode != currencyRUB {
				undo()
				return ErrCurrencyMismatch
			}

			qty := int32(it.Quantity)
			if err := tx.Reservations.UpsertPending(ctx, orderID, it.ProductID, qty, expiresAt); err != nil {
				undo()
				return err
			}

			ok, err := tx.Inventories.TryReserve(ctx, it.ProductID, qty)
			if err != nil {
				undo()
				return err
			}
			if !ok {
				undo()
				return ErrOutOfStock
			}
			done = append(done, taken{productID: it.ProductID, qty: qty})

			if _, err := tx.Reservations.MarkReserved(ctx, orderID, it.ProductID); err != nil {
				undo()
				return err
			}
		}
		return nil
	})
}

// Release возвращает зарезервированные количества в сток. Идемпотентно:
// неизвестный или уже освобождённый заказ — no-op.
func (s *inventoryService) Release(ctx context.Context, orderID uuid.UUID) (int64, error) {
	var releasedTotal int64

	err := s.repo.WithTx(func(tx *repository.Repository) error {
		rows, err := tx.Reservations.ListByOrder(ctx, orderID)
		if err != nil {
			return err
		}
		for _, r := range rows {
			if r.Status != models.ReservationReserved {
				continue
			}
			ok, err := tx.Inventories.Release(ctx, r.ProductID, r.Quantity)
			if err != nil {
				return err
			}
			if ok {
				releasedTotal++
			}
		}
		if _, err := tx.Reservations.MarkStatusByOrder(ctx, orderID, models.ReservationReserved, models.ReservationReleased); err != nil {
			return err
		}
		return nil
	})
	return releasedTotal, err
}

// Confirm окончательно списывает резерв заказа. Идемпотентно.
func (s *inventoryService) Confirm(ctx context.Context, orderID uuid.UUID) (int64, error) {
	var confirmedTotal int64

	err := s.repo.WithTx(func(tx *repository.Repository) error {
		rows, err := tx.Reservations.ListByOrder(ctx, orderID)
		if err != nil {
			return err
		}
		for _, r := range rows {
			if r.Status != models.ReservationReserved {
				continue
			}
			ok, err := tx.Inventories.Confirm(ctx, r.ProductID, r.Quantity)
			if err != nil {
				return err
			}
			if ok {
				confirmedTotal++
			}
		}
		if _, err := tx.Reservations.MarkStatusByOrder(ctx, orderID, models.ReservationReserved, models.ReservationConfirmed); err != nil {
			return err
		}
		return nil
	})
	return confirmedTotal, err
}

func (s *inventoryService) GetStock(ctx context.Context, productID uuid.UUID) (*models.Inventory, error) {
	inv, err := s.repo.Inventories.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, ErrProductNotFound
	}
	return inv, nil
}

func (s *inventoryService) SetStock(ctx context.Context, productID uuid.UUID, available int32) (*models.Inventory, error) {
	if err := s.repo.Inventories.SetAvailable(ctx, productID, available); err != nil {
		return nil, err
	}
	return s.GetStock(ctx, productID)
}

func (s *inventoryService) AdjustStock(ctx context.Context, productID uuid.UUID, delta int32) (*models.Inventory, error) {
	if _, err := s.repo.Inventories.AdjustAvailable(ctx, productID, delta); err != nil {
		return nil, err
	}
	return s.GetStock(ctx, productID)
}
