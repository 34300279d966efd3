package service_test

import (
	"context"
	"sync"
	"time"

	"checkout-saga/internal/gateway"
	"checkout-saga/internal/models"
	"checkout-saga/internal/repository"
	"checkout-saga/internal/service"

	"github.com/google/uuid"
)

// In-memory фейки репозиториев. Мьютексы повторяют атомарность условных
// UPDATE'ов настоящих реализаций, поэтому конкурентные тесты честные.

type memInventoryRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*models.Inventory
}

func newMemInventoryRepo() *memInventoryRepo {
	return &memInventoryRepo{rows: make(map[uuid.UUID]*models.Inventory)}
}

func (r *memInventoryRepo) Get(_ context.Context, productID uuid.UUID) (*models.Inventory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.rows[productID]
	if !ok {
		return nil, nil
	}
	cp := *inv
	return &cp, nil
}

func (r *memInventoryRepo) SetAvailable(_ context.Context, productID uuid.UUID, available int32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.rows[productID]
	if !ok {
		inv = &models.Inventory{ProductID: productID}
		r.rows[productID] = inv
	}
	inv.Available = available
	return nil
}

func (r *memInventoryRepo) AdjustAvailable(_ context.Context, productID uuid.UUID, delta int32) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.rows[productID]
	if !ok || inv.Available+delta < 0 {
		return false, nil
	}
	inv.Available += delta
	return true, nil
}

func (r *memInventoryRepo) TryReserve(_ context.Context, productID uuid.UUID, qty int32) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.rows[productID]
	if !ok || inv.Available < qty {
		return false, nil
	}
	inv.Available -= qty
	inv.Reserved += qty
	return true, nil
}

func (r *memInventoryRepo) Release(_ context.Context, productID uuid.UUID, qty int32) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.rows[productID]
	if !ok || inv.Reserved < qty {
		return false, nil
	}
	inv.Reserved -= qty
	inv.Available += qty
	return true, nil
}

func (r *memInventoryRepo) Confirm(_ context.Context, productID uuid.UUID, qty int32) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.rows[productID]
	if !ok || inv.Reserved < qty {
		return false, nil
	}
	inv.Reserved -= qty
	return true, nil
}

type memReservationRepo struct {
	mu   sync.Mutex
	rows []*models.Reservation
}

func newMemReservationRepo() *memReservationRepo { return &memReservationRepo{} }

func (r *memReservationRepo) find(orderID, productID uuid.UUID) *models.Reservation {
	for _, row := range r.rows {
		if row.OrderID == orderID && row.ProductID == productID {
			return row
		}
	}
	return nil
}

func (r *memReservationRepo) UpsertPending(_ context.Context, orderID, productID uuid.UUID, qty int32, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row := r.find(orderID, productID); row != nil {
		row.Quantity = qty
		row.Status = models.ReservationPending
		row.ExpiresAt = expiresAt
		return nil
	}
	r.rows = append(r.rows, &models.Reservation{
		ID:        uuid.New(),
		OrderID:   orderID,
		ProductID: productID,
		Quantity:  qty,
		Status:    models.ReservationPending,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	})
	return nil
}

func (r *memReservationRepo) MarkReserved(_ context.Context, orderID, productID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row := r.find(orderID, productID)
	if row == nil {
		return false, nil
	}
	row.Status = models.ReservationReserved
	return true, nil
}

func (r *memReservationRepo) ListByOrder(_ context.Context, orderID uuid.UUID) ([]models.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Reservation
	for _, row := range r.rows {
		if row.OrderID == orderID {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (r *memReservationRepo) MarkStatusByOrder(_ context.Context, orderID uuid.UUID, from, to models.ReservationStatus) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, row := range r.rows {
		if row.OrderID == orderID && row.Status == from {
			row.Status = to
			row.UpdatedAt = time.Now()
			n++
		}
	}
	return n, nil
}

func (r *memReservationRepo) DeleteByOrder(_ context.Context, orderID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kept []*models.Reservation
	var n int64
	for _, row := range r.rows {
		if row.OrderID == orderID {
			n++
			continue
		}
		kept = append(kept, row)
	}
	r.rows = kept
	return n, nil
}

func (r *memReservationRepo) DeleteFinishedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kept []*models.Reservation
	var n int64
	for _, row := range r.rows {
		finished := row.Status == models.ReservationReleased || row.Status == models.ReservationConfirmed
		if finished && row.UpdatedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, row)
	}
	r.rows = kept
	return n, nil
}

type memProductRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*models.Product
	inv  *memInventoryRepo
}

func newMemProductRepo(inv *memInventoryRepo) *memProductRepo {
	return &memProductRepo{rows: make(map[uuid.UUID]*models.Product), inv: inv}
}

func (r *memProductRepo) Create(_ context.Context, p *models.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	cp := *p
	r.rows[p.ID] = &cp
	return nil
}

func (r *memProductRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *memProductRepo) BatchGetByIDs(_ context.Context, ids []uuid.UUID) ([]models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Product
	for _, id := range ids {
		if p, ok := r.rows[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *memProductRepo) EnsureInventoryRow(ctx context.Context, productID uuid.UUID) error {
	if inv, _ := r.inv.Get(ctx, productID); inv == nil {
		return r.inv.SetAvailable(ctx, productID, 0)
	}
	return nil
}

type memOrderRepo struct {
	mu         sync.Mutex
	rows       map[uuid.UUID]*models.Order
	failCreate bool
}

func newMemOrderRepo() *memOrderRepo { return &memOrderRepo{rows: make(map[uuid.UUID]*models.Order)} }

func (r *memOrderRepo) Create(_ context.Context, o *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCreate {
		return errPersist
	}
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	cp := *o
	r.rows[o.ID] = &cp
	return nil
}

func (r *memOrderRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (r *memOrderRepo) GetByIDForUser(_ context.Context, id, userID uuid.UUID) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.rows[id]
	if !ok || o.UserID != userID {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (r *memOrderRepo) List(_ context.Context, f repository.OrderListFilter) ([]*models.Order, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Order
	for _, o := range r.rows {
		if f.UserID != nil && o.UserID != *f.UserID {
			continue
		}
		if f.Status != nil && o.Status != *f.Status {
			continue
		}
		cp := *o
		out = append(out, &cp)
	}
	return out, int64(len(out)), nil
}

func (r *memOrderRepo) ConfirmIfPending(_ context.Context, id uuid.UUID, paymentRef string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.rows[id]
	if !ok || o.Status != models.OrderStatusPending {
		return false, nil
	}
	o.Status = models.OrderStatusConfirmed
	o.PaymentRef = &paymentRef
	o.Version++
	return true, nil
}

func (r *memOrderRepo) FinishIfPending(_ context.Context, id uuid.UUID, to models.OrderStatus, reason *string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.rows[id]
	if !ok || o.Status != models.OrderStatusPending {
		return false, nil
	}
	o.Status = to
	o.CancelReason = reason
	o.Version++
	return true, nil
}

func (r *memOrderRepo) ListPendingBefore(_ context.Context, cutoff time.Time, limit int) ([]*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Order
	for _, o := range r.rows {
		if o.Status == models.OrderStatusPending && o.CreatedAt.Before(cutoff) {
			cp := *o
			out = append(out, &cp)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

type memOrderItemRepo struct {
	mu   sync.Mutex
	rows []models.OrderItem
}

func newMemOrderItemRepo() *memOrderItemRepo { return &memOrderItemRepo{} }

func (r *memOrderItemRepo) BulkCreate(_ context.Context, items []models.OrderItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, items...)
	return nil
}

func (r *memOrderItemRepo) ListByOrder(_ context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.OrderItem
	for _, it := range r.rows {
		if it.OrderID == orderID {
			out = append(out, it)
		}
	}
	return out, nil
}

type memPaymentRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*models.Payment // key: order id
}

func newMemPaymentRepo() *memPaymentRepo { return &memPaymentRepo{rows: make(map[uuid.UUID]*models.Payment)} }

func (r *memPaymentRepo) CreateIfAbsent(_ context.Context, p *models.Payment) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[p.OrderID]; ok {
		return false, nil
	}
	cp := *p
	r.rows[p.OrderID] = &cp
	return true, nil
}

func (r *memPaymentRepo) GetByOrder(_ context.Context, orderID uuid.UUID) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[orderID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *memPaymentRepo) MarkRetrying(_ context.Context, id uuid.UUID, attempts int32, lastErr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.rows {
		if p.ID == id {
			p.Status = models.PaymentStatusRetrying
			p.Attempts = attempts
			p.LastError = &lastErr
		}
	}
	return nil
}

func (r *memPaymentRepo) Finalize(_ context.Context, id uuid.UUID, status models.PaymentStatus, attempts int32, providerRef, lastErr *string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.rows {
		if p.ID == id {
			if p.Status.IsFinal() {
				return false, nil
			}
			p.Status = status
			p.Attempts = attempts
			p.ProviderRef = providerRef
			p.LastError = lastErr
			return true, nil
		}
	}
	return false, nil
}

// busRecorder собирает опубликованные события.
type busRecorder struct {
	mu      sync.Mutex
	created []service.OrderCreatedEvent
	results []service.PaymentResultEvent
	updated []service.OrderUpdatedEvent
}

func (b *busRecorder) PublishOrderCreated(_ context.Context, e service.OrderCreatedEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.created = append(b.created, e)
	return nil
}

func (b *busRecorder) PublishPaymentResult(_ context.Context, e service.PaymentResultEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.results = append(b.results, e)
	return nil
}

func (b *busRecorder) PublishOrderUpdated(_ context.Context, e service.OrderUpdatedEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.updated = append(b.updated, e)
	return nil
}

func (b *busRecorder) updatedFor(orderID uuid.UUID) []service.OrderUpdatedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []service.OrderUpdatedEvent
	for _, e := range b.updated {
		if e.OrderID == orderID {
			out = append(out, e)
		}
	}
	return out
}

// fakeGateway — шлюз со сценарием из func-поля (как моки в тестах auth).
type fakeGateway struct {
	ChargeFunc func(ctx context.Context, reference string, amountCents int64, currency string) (gateway.Outcome, error)
}

func (g *fakeGateway) Name() string { return "fake" }

func (g *fakeGateway) Charge(ctx context.Context, reference string, amountCents int64, currency string) (gateway.Outcome, error) {
	if g.ChargeFunc != nil {
		return g.ChargeFunc(ctx, reference, amountCents, currency)
	}
	return gateway.Outcome{Authorized: true, ProviderRef: "fake-" + reference}, nil
}
