// Package gateway абстрагирует внешнего платёжного провайдера.
// Провайдер выбирается конфигурацией, а не типом во время выполнения.
package gateway

import (
	"context"
	"errors"
	"fmt"
)

// Outcome — результат попытки списания.
// Authorized=false с nil-ошибкой означает отказ провайдера (не ретраится);
// ошибка означает транзиентный сбой сети/провайдера (ретраится).
type Outcome struct {
	Authorized  bool
	ProviderRef string
	Reason      string
}

type Gateway interface {
	Name() string
	Charge(ctx context.Context, reference string, amountCents int64, currency string) (Outcome, error)
}

// ErrUnavailable — транзиентный сбой провайдера.
var ErrUnavailable = errors.New("payment provider unavailable")

type Config struct {
	Provider    string
	FailRate    float64 // доля транзиентных сбоев у simulated-провайдера
	DeclineRate float64 // доля отказов у simulated-провайдера
	Seed        int64
}

func New(cfg Config) (Gateway, error) {
	switch cfg.Provider {
	case "simulated", "":
		return NewSimulated(cfg.FailRate, cfg.DeclineRate, cfg.Seed), nil
	case "sandbox":
		return Sandbox{}, nil
	default:
		return nil, fmt.Errorf("unknown payment provider: %q", cfg.Provider)
	}
}
