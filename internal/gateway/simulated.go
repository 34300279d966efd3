package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
)

// Simulated — симулятор провайдера с настраиваемыми долями транзиентных
// сбоев и отказов. Детерминирован при фиксированном seed.
type Simulated struct {
	failRate    float64
	declineRate float64

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewSimulated(failRate, declineRate float64, seed int64) *Simulated {
	return &Simulated{
		failRate:    failRate,
		declineRate: declineRate,
		rnd:         rand.New(rand.NewSource(seed)),
	}
}

func (s *Simulated) Name() string { return "simulated" }

func (s *Simulated) Charge(ctx context.Context, reference string, amountCents int64, currency string) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	s.mu.Lock()
	roll := s.rnd.Float64()
	s.mu.Unlock()

	if roll < s.failRate {
		return Outcome{}, ErrUnavailable
	}
	if roll < s.failRate+s.declineRate {
		return Outcome{Authorized: false, Reason: "card declined"}, nil
	}
	return Outcome{
		Authorized:  true,
		ProviderRef: fmt.Sprintf("sim-%s", reference),
	}, nil
}

// Sandbox авторизует любой платёж — для локальной разработки.
type Sandbox struct{}

func (Sandbox) Name() string { return "sandbox" }

func (Sandbox) Charge(_ context.Context, reference string, _ int64, _ string) (Outcome, error) {
	return Outcome{Authorized: true, ProviderRef: "sandbox-" + reference}, nil
}
