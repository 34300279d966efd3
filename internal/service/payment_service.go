package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"checkout-saga/internal/gateway"
	"checkout-saga/internal/idempotency"
	"checkout-saga/internal/models"
	"checkout-saga/internal/repository"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type PaymentRetryConfig struct {
	MaxAttempts     uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

type paymentService struct {
	repo    *repository.Repository
	gw      gateway.Gateway
	events  EventBus
	idem    idempotency.Store
	idemTTL time.Duration
	retry   PaymentRetryConfig
	log     *zap.Logger
	now     func() time.Time
}

func NewPaymentService(
	repo *repository.Repository,
	gw gateway.Gateway,
	events EventBus,
	idem idempotency.Store,
	idemTTL time.Duration,
	retry PaymentRetryConfig,
	log *zap.Logger,
) PaymentProcessor {
	if retry.MaxAttempts == 0 {
		retry.MaxAttempts = 3
	}
	return &paymentService{
		repo:    repo,
		gw:      gw,
		events:  events,
		idem:    idem,
		idemTTL: idemTTL,
		retry:   retry,
		log:     log,
		now:     time.Now,
	}
}

func (s *paymentService) HandleOrderCreated(ctx context.Context, e OrderCreatedEvent) error {
	if e.EventID != "" {
		first, err := s.idem.Seen(ctx, "evt:"+e.EventID, s.idemTTL)
		if err != nil {
			return err
		}
		if !first {
			s.log.Debug("duplicate OrderCreated skipped", zap.String("event_id", e.EventID))
			return nil
		}
	}
	_, err := s.Process(ctx, e.OrderID, e.TotalCents, e.Currency)
	return err
}

// Process создаёт единственную запись платежа заказа и исполняет списание.
// Транзиентные сбои шлюза ретраятся ограниченным экспоненциальным бэкоффом;
// после исчерпания бюджета платёж помечается FAILED, и результат всё равно
// публикуется.
func (s *paymentService) Process(ctx context.Context, orderID uuid.UUID, amountCents int64, currency string) (*models.Payment, error) {
	existing, err := s.repo.Payments.GetByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Status.IsFinal() {
		return existing, nil
	}

	p := existing
	if p == nil {
		p = &models.Payment{
			ID:           uuid.New(),
			OrderID:      orderID,
			AmountCents:  amountCents,
			CurrencyCode: currency,
			Status:       models.PaymentStatusPending,
		}
		created, err := s.repo.Payments.CreateIfAbsent(ctx, p)
		if err != nil {
			return nil, err
		}
		if !created {
			// конкурент успел раньше — возвращаем его запись
			winner, err := s.repo.Payments.GetByOrder(ctx, orderID)
			if err != nil {
				return nil, err
			}
			if winner == nil {
				return nil, fmt.Errorf("payment for order %s disappeared after conflict", orderID)
			}
			if winner.Status.IsFinal() {
				return winner, nil
			}
			p = winner
		}
	}

	outcome, attempts, chargeErr := s.charge(ctx, p)

	var (
		status      models.PaymentStatus
		providerRef *string
		lastErr     *string
		reason      string
	)
	switch {
	case chargeErr != nil:
		status = models.PaymentStatusFailed
		msg := chargeErr.Error()
		lastErr = &msg
		reason = "provider unavailable"
	case !outcome.Authorized:
		status = models.PaymentStatusFailed
		reason = outcome.Reason
		lastErr = &reason
	default:
		status = models.PaymentStatusSuccess
		providerRef = &outcome.ProviderRef
	}

	finalized, err := s.repo.Payments.Finalize(ctx, p.ID, status, attempts, providerRef, lastErr)
	if err != nil {
		return nil, err
	}
	if !finalized {
		// кто-то финализировал параллельно; его результат уже опубликован
		return s.repo.Payments.GetByOrder(ctx, orderID)
	}

	p.Status = status
	p.Attempts = attempts
	p.ProviderRef = providerRef
	p.LastError = lastErr

	ev := PaymentResultEvent{
		OrderID:     orderID,
		PaymentID:   p.ID,
		AmountCents: amountCents,
		Currency:    currency,
		OccurredAt:  s.now(),
	}
	if status == models.PaymentStatusSuccess {
		ev.Status = PaymentResultSuccess
	} else {
		ev.Status = PaymentResultFailed
		ev.Reason = reason
	}
	if err := s.events.PublishPaymentResult(ctx, ev); err != nil {
		// результат сохранён, публикацию добьёт повторная доставка
		// OrderCreated или таймаут-сканер на стороне заказа
		s.log.Error("publish PaymentResult", zap.String("order_id", orderID.String()), zap.Error(err))
	}

	s.log.Info("payment finalized",
		zap.String("order_id", orderID.String()),
		zap.String("payment_id", p.ID.String()),
		zap.String("status", string(status)),
		zap.Int32("attempts", attempts))
	return p, nil
}

// charge крутит попытки списания. Отказ провайдера — permanent, сетевые и
// инфраструктурные ошибки — транзиентные.
func (s *paymentService) charge(ctx context.Context, p *models.Payment) (gateway.Outcome, int32, error) {
	var (
		outcome  gateway.Outcome
		attempts int32
	)

	bo := backoff.NewExponentialBackOff()
	if s.retry.InitialInterval > 0 {
		bo.InitialInterval = s.retry.InitialInterval
	}
	if s.retry.MaxInterval > 0 {
		bo.MaxInterval = s.retry.MaxInterval
	}
	bo.MaxElapsedTime = 0 // бюджет ограничен числом попыток, не временем

	operation := func() error {
		attempts++
		out, err := s.gw.Charge(ctx, p.ID.String(), p.AmountCents, p.CurrencyCode)
		if err != nil {
			s.log.Warn("charge attempt failed",
				zap.String("payment_id", p.ID.String()),
				zap.Int32("attempt", attempts),
				zap.Error(err))
			if mrkErr := s.repo.Payments.MarkRetrying(ctx, p.ID, attempts, err.Error()); mrkErr != nil {
				s.log.Error("mark retrying", zap.Error(mrkErr))
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return backoff.Permanent(err)
			}
			return fmt.Errorf("charge: %w", err)
		}
		if !out.Authorized {
			outcome = out
			return backoff.Permanent(errDeclined)
		}
		outcome = out
		return nil
	}

	err := backoff.Retry(operation,
		backoff.WithContext(backoff.WithMaxRetries(bo, s.retry.MaxAttempts-1), ctx))
	if errors.Is(err, errDeclined) {
		return outcome, attempts, nil
	}
	return outcome, attempts, err
}

var errDeclined = errors.New("declined")
