// Package scheduler периодически доводит зависшие саги до терминального
// состояния и подчищает завершённые строки резерваций.
package scheduler

import (
	"context"
	"time"

	"checkout-saga/internal/repository"
	"checkout-saga/internal/service"

	"go.uber.org/zap"
)

type Scheduler struct {
	orders       service.OrderService
	reservations repository.ReservationRepo
	sagaTTL      time.Duration
	scanInterval time.Duration
	log          *zap.Logger
	stopCh       chan struct{}
	now          func() time.Time
}

func New(orders service.OrderService, reservations repository.ReservationRepo, sagaTTL, scanInterval time.Duration, log *zap.Logger) *Scheduler {
	return &Scheduler{
		orders:       orders,
		reservations: reservations,
		sagaTTL:      sagaTTL,
		scanInterval: scanInterval,
		log:          log,
		stopCh:       make(chan struct{}),
		now:          time.Now,
	}
}

// Start запускает фоновые задачи планировщика.
func (s *Scheduler) Start(ctx context.Context) {
	s.log.Info("starting saga timeout scheduler",
		zap.Duration("ttl", s.sagaTTL),
		zap.Duration("interval", s.scanInterval))
	go s.runTimeoutScan(ctx)
	go s.runReservationCleanup(ctx)
}

func (s *Scheduler) Stop() {
	s.log.Info("stopping saga timeout scheduler")
	close(s.stopCh)
}

// runTimeoutScan отменяет PENDING-заказы старше TTL каждые scanInterval.
func (s *Scheduler) runTimeoutScan(ctx context.Context) {
	ticker := time.NewTicker(s.scanInterval)
	defer ticker.Stop()

	// выполняем сразу при старте
	s.scanOnce(ctx)

	for {
		select {
		case <-ticker.C:
			s.scanOnce(ctx)
		case <-s.stopCh:
			s.log.Info("timeout scan stopped")
			return
		case <-ctx.Done():
			s.log.Info("timeout scan cancelled")
			return
		}
	}
}

func (s *Scheduler) scanOnce(ctx context.Context) {
	cutoff := s.now().Add(-s.sagaTTL)
	n, err := s.orders.CancelExpired(ctx, cutoff)
	if err != nil {
		s.log.Error("timeout scan failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.log.Info("expired orders cancelled", zap.Int("count", n))
	}
}

// runReservationCleanup удаляет завершённые резервации раз в час.
func (s *Scheduler) runReservationCleanup(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := s.now().Add(-24 * time.Hour)
			n, err := s.reservations.DeleteFinishedBefore(ctx, cutoff)
			if err != nil {
				s.log.Error("reservation cleanup failed", zap.Error(err))
				continue
			}
			if n > 0 {
				s.log.Info("cleaned up finished reservations", zap.Int64("count", n))
			}
		case <-s.stopCh:
			s.log.Info("reservation cleanup stopped")
			return
		case <-ctx.Done():
			s.log.Info("reservation cleanup cancelled")
			return
		}
	}
}
