package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"checkout-saga/internal/idempotency"
	"checkout-saga/internal/models"
	"checkout-saga/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	timeoutCancelReason = "payment timeout"
	scanBatchSize       = 100
)

type orderService struct {
	repo    *repository.Repository
	ledger  InventoryLedger
	pricing PricingProvider
	events  EventBus
	idem    idempotency.Store
	idemTTL time.Duration
	log     *zap.Logger
	now     func() time.Time
}

func NewOrderService(
	repo *repository.Repository,
	ledger InventoryLedger,
	pricing PricingProvider,
	events EventBus,
	idem idempotency.Store,
	idemTTL time.Duration,
	log *zap.Logger,
) OrderService {
	return &orderService{
		repo:    repo,
		ledger:  ledger,
		pricing: pricing,
		events:  events,
		idem:    idem,
		idemTTL: idemTTL,
		log:     log,
		now:     time.Now,
	}
}

func requireAuth(ctx context.Context) (uuid.UUID, Role, error) {
	uid, ok := UserIDFromContext(ctx)
	if !ok {
		return uuid.Nil, "", ErrUnauthorized
	}
	role, _ := RoleFromContext(ctx) // если нет — считаем customer по умолчанию
	return uid, role, nil
}

// CreateOrder — первый шаг саги: резерв → заказ в PENDING → OrderCreated.
// При одном и том же Idempotency-Key возвращается один и тот же заказ.
// Если заказ не удалось сохранить после успешного резерва, резерв
// освобождается до возврата ошибки.
func (s *orderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*models.Order, error) {
	userID, _, err := requireAuth(ctx)
	if err != nil {
		return nil, err
	}
	if len(in.Items) == 0 {
		return nil, ErrEmptyItems
	}
	for _, it := range in.Items {
		if it.Quantity == 0 {
			return nil, ErrQuantityInvalid
		}
	}

	fingerprint := requestFingerprint(in.Items)
	if in.IdempotencyKey != "" {
		if v, ok, err := s.idem.Get(ctx, "order:"+in.IdempotencyKey); err != nil {
			return nil, err
		} else if ok {
			return s.loadPriorOrder(ctx, v, fingerprint)
		}
	}

	now := s.now()

	productIDs := make([]uuid.UUID, 0, len(in.Items))
	for _, it := range in.Items {
		productIDs = append(productIDs, it.ProductID)
	}
	prices, err := s.pricing.GetPrices(ctx, productIDs)
	if err != nil {
		return nil, err
	}

	var (
		itemsDB      []models.OrderItem
		reserveItems []ReserveItem
		total        int64
	)
	for _, it := range in.Items {
		price, ok := prices[it.ProductID]
		if !ok {
			return nil, ErrProductNotFound
		}
		if price.CurrencyCode != currencyRUB {
			return nil, ErrCurrencyMismatch
		}
		line := int64(it.Quantity) * price.UnitPriceCents
		total += line
		itemsDB = append(itemsDB, models.OrderItem{
			ProductID:      it.ProductID,
			Quantity:       it.Quantity,
			UnitPriceCents: price.UnitPriceCents,
			LineTotalCents: line,
			CurrencyCode:   currencyRUB,
			CreatedAt:      now,
		})
		reserveItems = append(reserveItems, ReserveItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	orderID := uuid.New()

	// синхронный резерв; при отказе заказ не создаётся вовсе
	if err := s.ledger.Reserve(ctx, orderID, reserveItems); err != nil {
		return nil, err
	}

	order := &models.Order{
		ID:              orderID,
		UserID:          userID,
		Status:          models.OrderStatusPending,
		TotalPriceCents: total,
		CurrencyCode:    currencyRUB,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = s.repo.WithTx(func(tx *repository.Repository) error {
		if err := tx.Orders.Create(ctx, order); err != nil {
			return err
		}
		for i := range itemsDB {
			itemsDB[i].OrderID = orderID
		}
		return tx.Items.BulkCreate(ctx, itemsDB)
	})
	if err != nil {
		// компенсация: заказ не сохранился — резерв не должен остаться
		if _, relErr := s.ledger.Release(ctx, orderID); relErr != nil {
			s.log.Error("compensating release failed",
				zap.String("order_id", orderID.String()), zap.Error(relErr))
		}
		return nil, fmt.Errorf("persist order: %w", err)
	}

	if in.IdempotencyKey != "" {
		existing, stored, err := s.idem.PutIfAbsent(ctx, "order:"+in.IdempotencyKey, idemValue(orderID, fingerprint), s.idemTTL)
		if err != nil || !stored {
			// ключ занял конкурентный дубликат (или стор недоступен) —
			// наш заказ лишний, отменяем и снимаем резерв
			s.abortDuplicate(ctx, orderID)
			if err != nil {
				return nil, err
			}
			return s.loadPriorOrder(ctx, existing, fingerprint)
		}
	}

	order.Items = itemsDB

	ev := OrderCreatedEvent{
		OrderID:    orderID,
		UserID:     userID,
		TotalCents: total,
		Currency:   currencyRUB,
		CreatedAt:  now,
	}
	for _, it := range itemsDB {
		ev.Items = append(ev.Items, OrderItemEvent{
			ProductID:  it.ProductID,
			Quantity:   it.Quantity,
			PriceCents: it.UnitPriceCents,
			Currency:   it.CurrencyCode,
			LineTotal:  it.LineTotalCents,
		})
	}
	// потеря публикации не рушит запрос: таймаут-сканер доведёт сагу
	// до терминального состояния
	if err := s.events.PublishOrderCreated(ctx, ev); err != nil {
		s.log.Error("publish OrderCreated", zap.String("order_id", orderID.String()), zap.Error(err))
	}

	s.log.Info("order created",
		zap.String("order_id", orderID.String()),
		zap.String("user_id", userID.String()),
		zap.Int64("total_cents", total))
	return order, nil
}

// requestFingerprint — канонический отпечаток состава заказа. Позволяет
// отличить честный повтор по ключу идемпотентности от того же ключа
// с другим payload.
func requestFingerprint(items []CreateOrderItem) string {
	sorted := make([]CreateOrderItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ProductID.String() < sorted[j].ProductID.String()
	})
	h := sha256.New()
	for _, it := range sorted {
		fmt.Fprintf(h, "%s:%d;", it.ProductID, it.Quantity)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func idemValue(orderID uuid.UUID, fingerprint string) string {
	return orderID.String() + "|" + fingerprint
}

// loadPriorOrder возвращает заказ, записанный под ключом идемпотентности.
// Тот же ключ с другим составом — конфликт, а не тихий повтор.
func (s *orderService) loadPriorOrder(ctx context.Context, raw, fingerprint string) (*models.Order, error) {
	rawID, storedFP, _ := strings.Cut(raw, "|")
	if storedFP != "" && storedFP != fingerprint {
		return nil, ErrIdempotencyConflict
	}
	priorID, err := uuid.Parse(rawID)
	if err != nil {
		return nil, ErrIdempotencyConflict
	}
	prior, err := s.repo.Orders.GetByID(ctx, priorID)
	if err != nil {
		return nil, err
	}
	if prior == nil {
		return nil, ErrIdempotencyConflict
	}
	return prior, nil
}

func (s *orderService) abortDuplicate(ctx context.Context, orderID uuid.UUID) {
	reason := "duplicate request"
	if _, err := s.repo.Orders.FinishIfPending(ctx, orderID, models.OrderStatusCancelled, &reason); err != nil {
		s.log.Error("cancel duplicate order", zap.String("order_id", orderID.String()), zap.Error(err))
	}
	if _, err := s.ledger.Release(ctx, orderID); err != nil {
		s.log.Error("release duplicate order", zap.String("order_id", orderID.String()), zap.Error(err))
	}
}

func (s *orderService) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	userID, role, err := requireAuth(ctx)
	if err != nil {
		return nil, err
	}

	var ord *models.Order
	if role == RoleAdmin {
		ord, err = s.repo.Orders.GetByID(ctx, id)
	} else {
		ord, err = s.repo.Orders.GetByIDForUser(ctx, id, userID)
	}
	if err != nil {
		return nil, err
	}
	if ord == nil {
		return nil, ErrOrderNotFound
	}
	return ord, nil
}

func (s *orderService) ListOrders(ctx context.Context, f ListFilter) ([]models.Order, int64, error) {
	userID, role, err := requireAuth(ctx)
	if err != nil {
		return nil, 0, err
	}
	if role != RoleAdmin {
		f.UserID = &userID
	}
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	ordersPtr, total, err := s.repo.Orders.List(ctx, repository.OrderListFilter{
		UserID: f.UserID,
		Status: f.Status,
		Limit:  f.Limit,
		Offset: f.Offset,
	})
	if err != nil {
		return nil, 0, err
	}

	orders := make([]models.Order, len(ordersPtr))
	for i, o := range ordersPtr {
		orders[i] = *o
	}
	return orders, total, nil
}

// HandlePaymentResult применяет таблицу переходов саги. Event id
// отмечается увиденным только после успешного перехода: упавшая обработка
// остаётся незакоммиченной для redelivery, а повторное применение и так
// no-op, потому что CAS из PENDING проигрывает.
func (s *orderService) HandlePaymentResult(ctx context.Context, e PaymentResultEvent) error {
	if e.EventID != "" {
		if _, ok, err := s.idem.Get(ctx, "evt:"+e.EventID); err != nil {
			return err
		} else if ok {
			s.log.Debug("duplicate payment result skipped", zap.String("event_id", e.EventID))
			return nil
		}
	}

	var err error
	switch e.Status {
	case PaymentResultSuccess:
		err = s.confirmOrder(ctx, e)
	case PaymentResultFailed:
		err = s.failOrder(ctx, e)
	default:
		s.log.Warn("unknown payment result status",
			zap.String("order_id", e.OrderID.String()), zap.String("status", e.Status))
		return nil
	}
	if err != nil {
		return err
	}

	if e.EventID != "" {
		if _, err := s.idem.Seen(ctx, "evt:"+e.EventID, s.idemTTL); err != nil {
			// переход применён; потерянная отметка лишь приведёт к
			// повторному no-op применению
			s.log.Error("mark payment result seen", zap.String("event_id", e.EventID), zap.Error(err))
		}
	}
	return nil
}

// confirmOrder: сначала CAS статуса, затем идемпотентное списание резерва.
// Порядок принципиален: если конкурентная отмена (таймаут-сканер) выигрывает
// переход, резерв ещё цел и её Release возвращает сток. Если же CAS выигран,
// а списание оборвалось, redelivery находит CONFIRMED-заказ и дожимает его.
func (s *orderService) confirmOrder(ctx context.Context, e PaymentResultEvent) error {
	won, err := s.repo.Orders.ConfirmIfPending(ctx, e.OrderID, e.PaymentID.String())
	if err != nil {
		return err
	}
	if !won {
		ord, err := s.repo.Orders.GetByID(ctx, e.OrderID)
		if err != nil {
			return err
		}
		if ord == nil || ord.Status != models.OrderStatusConfirmed {
			s.log.Debug("order already terminal, confirm skipped", zap.String("order_id", e.OrderID.String()))
			return nil
		}
		if _, err := s.ledger.Confirm(ctx, e.OrderID); err != nil {
			return fmt.Errorf("confirm reservation: %w", err)
		}
		return nil
	}

	if _, err := s.ledger.Confirm(ctx, e.OrderID); err != nil {
		return fmt.Errorf("confirm reservation: %w", err)
	}

	s.publishUpdated(ctx, e.OrderID, models.OrderStatusConfirmed, "")
	s.log.Info("order confirmed",
		zap.String("order_id", e.OrderID.String()),
		zap.String("payment_id", e.PaymentID.String()))
	return nil
}

func (s *orderService) failOrder(ctx context.Context, e PaymentResultEvent) error {
	reason := e.Reason
	if reason == "" {
		reason = "payment failed"
	}

	won, err := s.repo.Orders.FinishIfPending(ctx, e.OrderID, models.OrderStatusFailed, &reason)
	if err != nil {
		return err
	}
	if !won {
		s.log.Debug("order already terminal, fail skipped", zap.String("order_id", e.OrderID.String()))
		return nil
	}

	if _, err := s.ledger.Release(ctx, e.OrderID); err != nil {
		return fmt.Errorf("release reservation: %w", err)
	}

	s.publishUpdated(ctx, e.OrderID, models.OrderStatusFailed, reason)
	s.log.Info("order failed",
		zap.String("order_id", e.OrderID.String()), zap.String("reason", reason))
	return nil
}

// CancelOrder отклоняется с конфликтом для подтверждённого заказа; отмена
// и таймаут проходят через один и тот же guarded-переход, выигрывает один.
func (s *orderService) CancelOrder(ctx context.Context, id uuid.UUID, reason *string) (*models.Order, error) {
	userID, role, err := requireAuth(ctx)
	if err != nil {
		return nil, err
	}

	ord, err := s.repo.Orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ord == nil {
		return nil, ErrOrderNotFound
	}
	if role != RoleAdmin && ord.UserID != userID {
		return nil, ErrForbidden
	}
	switch ord.Status {
	case models.OrderStatusConfirmed:
		return ord, ErrAlreadyConfirmed
	case models.OrderStatusCancelled:
		return ord, ErrAlreadyCancelled
	}

	won, err := s.repo.Orders.FinishIfPending(ctx, id, models.OrderStatusCancelled, s.sanitizeReason(reason))
	if err != nil {
		return nil, err
	}
	if won {
		if _, err := s.ledger.Release(ctx, id); err != nil {
			return nil, fmt.Errorf("release reservation: %w", err)
		}
		s.publishUpdated(ctx, id, models.OrderStatusCancelled, strVal(reason))
		s.log.Info("order cancelled", zap.String("order_id", id.String()))
	}

	return s.repo.Orders.GetByID(ctx, id)
}

// CancelExpired — периодический скан зависших саг. Переход защищён CAS,
// поэтому два конкурирующих сканера освободят резерв не более одного раза.
func (s *orderService) CancelExpired(ctx context.Context, cutoff time.Time) (int, error) {
	stale, err := s.repo.Orders.ListPendingBefore(ctx, cutoff, scanBatchSize)
	if err != nil {
		return 0, err
	}

	cancelled := 0
	reason := timeoutCancelReason
	for _, ord := range stale {
		won, err := s.repo.Orders.FinishIfPending(ctx, ord.ID, models.OrderStatusCancelled, &reason)
		if err != nil {
			return cancelled, err
		}
		if !won {
			continue
		}
		if _, err := s.ledger.Release(ctx, ord.ID); err != nil {
			return cancelled, fmt.Errorf("release reservation: %w", err)
		}
		s.publishUpdated(ctx, ord.ID, models.OrderStatusCancelled, reason)
		s.log.Info("order cancelled by timeout", zap.String("order_id", ord.ID.String()))
		cancelled++
	}
	return cancelled, nil
}

func (s *orderService) publishUpdated(ctx context.Context, orderID uuid.UUID, status models.OrderStatus, reason string) {
	err := s.events.PublishOrderUpdated(ctx, OrderUpdatedEvent{
		OrderID:   orderID,
		Status:    string(status),
		Reason:    reason,
		UpdatedAt: s.now(),
	})
	if err != nil {
		s.log.Error("publish OrderUpdated", zap.String("order_id", orderID.String()), zap.Error(err))
	}
}

func (s *orderService) sanitizeReason(reason *string) *string {
	if reason == nil {
		return nil
	}
	r := *reason
	if len(r) > 500 {
		r = r[:500]
	}
	return &r
}

func strVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
