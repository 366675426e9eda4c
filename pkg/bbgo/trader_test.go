package bbgo

import (
	"context"
	"errors"
	"testing"

	"github.com/betbot/perpmaker/internal/exchange/paper"
	"github.com/betbot/perpmaker/internal/risk"
	"github.com/betbot/perpmaker/internal/services"
	"github.com/betbot/perpmaker/internal/strategies/ports"
)

type lifecycleStrategy struct {
	TradingService ports.MakerTradingService

	defaultsCalled   bool
	validateCalled   bool
	initializeCalled bool
}

func (s *lifecycleStrategy) ID() string { return "lifecycle-test" }

func (s *lifecycleStrategy) Defaults() error {
	s.defaultsCalled = true
	return nil
}

func (s *lifecycleStrategy) Validate() error {
	if !s.defaultsCalled {
		return errors.New("Defaults must run before Validate")
	}
	s.validateCalled = true
	return nil
}

func (s *lifecycleStrategy) Initialize() error {
	if !s.validateCalled {
		return errors.New("Validate must run before Initialize")
	}
	s.initializeCalled = true
	return nil
}

func newTestEnvironment() *Environment {
	environ := NewEnvironment()
	ts := services.NewTradingService(paper.New(), risk.NewCircuitBreaker(risk.CircuitBreakerConfig{}))
	environ.SetTradingService(ts)
	return environ
}

func TestTrader_InitializeOrder(t *testing.T) {
	trader := NewTrader(newTestEnvironment())
	s := &lifecycleStrategy{}
	trader.AddStrategy(s)

	if err := trader.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if !s.defaultsCalled || !s.validateCalled || !s.initializeCalled {
		t.Fatalf("lifecycle hooks missed: %+v", s)
	}
}

func TestTrader_InjectTradingService(t *testing.T) {
	environ := newTestEnvironment()
	trader := NewTrader(environ)
	s := &lifecycleStrategy{}
	trader.AddStrategy(s)

	if err := trader.InjectServices(context.Background()); err != nil {
		t.Fatalf("InjectServices: %v", err)
	}
	if s.TradingService == nil {
		t.Fatalf("TradingService field must be injected by name")
	}
	// 注入的是接口实现匹配
	if s.TradingService != environ.TradingService {
		t.Fatalf("injected value mismatch")
	}
}

func TestInjectField_Errors(t *testing.T) {
	trader := NewTrader(newTestEnvironment())

	type noField struct{ Other int }
	if err := trader.injectField(&noField{}, "TradingService", 1); err == nil {
		t.Fatalf("missing field must error")
	}

	type badType struct{ TradingService int }
	if err := trader.injectField(&badType{}, "TradingService", "str"); err == nil {
		t.Fatalf("type mismatch must error")
	}
}

func TestRegisterStrategy_DuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("duplicate registration must panic")
		}
	}()
	RegisterStrategy("dup-test", &lifecycleStrategy{})
	RegisterStrategy("dup-test", &lifecycleStrategy{})
}

func TestGetRegisteredStrategy_Unknown(t *testing.T) {
	if _, err := GetRegisteredStrategy("no-such-strategy"); err == nil {
		t.Fatalf("unknown strategy must error")
	}
}
