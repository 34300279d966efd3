package gateway

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestSimulatedAlwaysAuthorizes(t *testing.T) {
	gw := NewSimulated(0, 0, 1)
	for i := 0; i < 10; i++ {
		out, err := gw.Charge(context.Background(), "pay-1", 1000, "RUB")
		if err != nil {
			t.Fatalf("charge: %v", err)
		}
		if !out.Authorized || !strings.HasPrefix(out.ProviderRef, "sim-") {
			t.Fatalf("bad outcome: %+v", out)
		}
	}
}

func TestSimulatedAlwaysUnavailable(t *testing.T) {
	gw := NewSimulated(1, 0, 1)
	if _, err := gw.Charge(context.Background(), "pay-1", 1000, "RUB"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("want ErrUnavailable, got %v", err)
	}
}

func TestSimulatedAlwaysDeclines(t *testing.T) {
	gw := NewSimulated(0, 1, 1)
	out, err := gw.Charge(context.Background(), "pay-1", 1000, "RUB")
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	if out.Authorized || out.Reason == "" {
		t.Fatalf("decline expected, got %+v", out)
	}
}

func TestSimulatedRespectsContext(t *testing.T) {
	gw := NewSimulated(0, 0, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := gw.Charge(ctx, "pay-1", 1000, "RUB"); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func TestNewSelectsProvider(t *testing.T) {
	gw, err := New(Config{Provider: ""})
	if err != nil || gw.Name() != "simulated" {
		t.Fatalf("default provider: %v %v", gw, err)
	}
	gw, err = New(Config{Provider: "sandbox"})
	if err != nil || gw.Name() != "sandbox" {
		t.Fatalf("sandbox provider: %v %v", gw, err)
	}
	if _, err := New(Config{Provider: "paypal"}); err == nil {
		t.Fatalf("unknown provider must error")
	}
}
