package perpmm

import (
	"context"
	"testing"
	"time"

	"github.com/betbot/perpmaker/internal/domain"
)

func TestTick_WarmupDelaysFirstQuote(t *testing.T) {
	svc := newFakeService()
	svc.bid = d("99")
	svc.ask = d("101")
	s := newTestStrategy(t, svc, func(c *Config) {
		c.WarmupTime.Duration = 10 * time.Second
	})

	now := time.Now()
	s.tick(context.Background(), now)

	if len(svc.placed) != 0 {
		t.Fatalf("warmup tick must not place orders, got %d", len(svc.placed))
	}
	if !s.createTimestamp.Equal(now.Add(10 * time.Second)) {
		t.Fatalf("createTimestamp got=%v want now+10s", s.createTimestamp)
	}

	// 预热期内继续空转
	s.tick(context.Background(), now.Add(5*time.Second))
	if len(svc.placed) != 0 {
		t.Fatalf("tick inside warmup must not place orders")
	}

	// 预热结束后正常报价：2 档 × 双边 = 4 张
	s.tick(context.Background(), now.Add(11*time.Second))
	if len(svc.placed) != 4 {
		t.Fatalf("expected 4 quotes after warmup, got %d", len(svc.placed))
	}
	if s.state != stateQuoting {
		t.Fatalf("state got=%s want QUOTING", s.state)
	}
}

func TestTick_NotReadySkips(t *testing.T) {
	svc := newFakeService()
	svc.ready = false
	s := newTestStrategy(t, svc, nil)

	s.tick(context.Background(), time.Now())
	if len(svc.placed) != 0 || s.warmupScheduled {
		t.Fatalf("not-ready tick must be a no-op")
	}
}

func TestTick_SkipsQuotingWhileOrdersResting(t *testing.T) {
	svc := newFakeService()
	svc.bid = d("99")
	svc.ask = d("101")
	s := newTestStrategy(t, svc, nil)
	s.warmupScheduled = true

	now := time.Now()
	// 已有挂单且撤单时间未到 → 本 tick 不得重复下单
	svc.active = []*domain.Order{restingOrder("a", domain.SideBuy, "99", "0.01")}
	s.cancelTimestamp = now.Add(20 * time.Second)

	s.tick(context.Background(), now)
	if len(svc.placed) != 0 {
		t.Fatalf("must not quote while orders are resting, placed=%d", len(svc.placed))
	}
}

func TestTick_FlatAfterExitingReturnsToQuoting(t *testing.T) {
	svc := newFakeService()
	svc.bid = d("99")
	svc.ask = d("101")
	s := newTestStrategy(t, svc, nil)
	s.warmupScheduled = true

	now := time.Now()

	// 持仓 tick 进入退出态
	svc.positions = []*domain.Position{longPosition("100", "0.01")}
	s.tick(context.Background(), now)
	if s.state != stateExiting {
		t.Fatalf("with open position state=%v, want exiting", s.state)
	}

	// 仓位清零后状态必须随之回到报价态
	svc.positions = nil
	s.tick(context.Background(), now.Add(time.Second))
	if s.state != stateQuoting {
		t.Fatalf("after flat tick state=%v, want quoting", s.state)
	}
}

func TestTick_IdempotentWithinTolerance(t *testing.T) {
	svc := newFakeService()
	svc.bid = d("99")
	svc.ask = d("101")
	s := newTestStrategy(t, svc, func(c *Config) {
		c.OrderRefreshTolerancePct = floatPtr(0.005)
	})
	s.warmupScheduled = true

	now := time.Now()
	s.tick(context.Background(), now)
	placed := len(svc.placed)
	if placed == 0 {
		t.Fatalf("first tick must quote")
	}

	// 第一轮报价全部成为挂单，盘口不变
	svc.active = append(svc.active, svc.placed...)

	// 撤单时间已到，但新旧报价一致 → 推迟撤单，也不重复下单
	next := now.Add(s.OrderRefreshTime.Duration + time.Second)
	s.tick(context.Background(), next)

	if len(svc.canceled) != 0 {
		t.Fatalf("within tolerance must defer cancellation, canceled=%v", svc.canceled)
	}
	if len(svc.placed) != placed {
		t.Fatalf("second tick must not re-place, placed %d -> %d", placed, len(svc.placed))
	}
}

func TestTick_FlatResetsExitStateAndPeaks(t *testing.T) {
	svc := newFakeService()
	svc.bid = d("99")
	svc.ask = d("101")
	s := newTestStrategy(t, svc, nil)
	s.ExitOrders["pm-exit-stale"] = true
	s.TSPeakAsk = d("150")
	s.TSPeakBid = d("90")

	s.tick(context.Background(), time.Now())

	if len(s.ExitOrders) != 0 {
		t.Fatalf("flat tick must clear exit order set")
	}
	// 峰谷以当前盘口为下一个周期的基线
	if !s.TSPeakBid.Equal(d("99")) || !s.TSPeakAsk.Equal(d("101")) {
		t.Fatalf("peaks got bid=%s ask=%s want 99/101", s.TSPeakBid, s.TSPeakAsk)
	}
}

func TestTick_PositionSwitchesToExiting(t *testing.T) {
	svc := newFakeService()
	svc.bid = d("100.4")
	svc.ask = d("100.5")
	svc.positions = []*domain.Position{longPosition("100", "0.5")}
	s := newTestStrategy(t, svc, nil)

	s.tick(context.Background(), time.Now())

	if s.state != stateExiting {
		t.Fatalf("state got=%s want EXITING", s.state)
	}
	// 止盈目标单已下，且被登记为退出单
	if len(svc.placed) != 1 {
		t.Fatalf("expected 1 exit order, got %d", len(svc.placed))
	}
	placed := svc.placed[0]
	if placed.PositionAction != domain.PositionActionClose {
		t.Fatalf("exit order must be a close, got %s", placed.PositionAction)
	}
	if !s.isExitOrder(placed.ClientOrderID) {
		t.Fatalf("exit order %s must be tracked", placed.ClientOrderID)
	}
}

func TestExecuteExitDelta_MarketCloseArmsCooldown(t *testing.T) {
	svc := newFakeService()
	s := newTestStrategy(t, svc, func(c *Config) {
		c.ClosePositionOrderType = string(domain.OrderTypeMarket)
	})

	now := time.Now()
	delta := exitDelta{closes: []exitOrderRequest{{
		side:         domain.SideSell,
		price:        d("94"),
		size:         d("0.5"),
		positionSide: domain.PositionSideBoth,
		reason:       exitReasonStopLoss,
	}}}
	s.executeExitDelta(context.Background(), now, delta)

	if !s.marketCloseTimestamp.Equal(now.Add(marketCloseCooldown)) {
		t.Fatalf("market close must arm the cooldown, got %v", s.marketCloseTimestamp)
	}
	if len(svc.placed) != 1 || svc.placed[0].Type != domain.OrderTypeMarket {
		t.Fatalf("expected one MARKET close, got %+v", svc.placed)
	}
}

func TestExecuteExitDelta_DedupesCancels(t *testing.T) {
	svc := newFakeService()
	s := newTestStrategy(t, svc, nil)

	o := restingOrder("dup", domain.SideSell, "101", "0.5")
	delta := exitDelta{cancels: []*domain.Order{o, o}}
	s.executeExitDelta(context.Background(), time.Now(), delta)

	if len(svc.canceled) != 1 {
		t.Fatalf("duplicate cancels must collapse, got %v", svc.canceled)
	}
}

func TestOnOrderUpdate_FilledDelaysNextQuote(t *testing.T) {
	svc := newFakeService()
	s := newTestStrategy(t, svc, func(c *Config) {
		c.FilledOrderDelay.Duration = 60 * time.Second
	})

	before := time.Now()
	err := s.OnOrderUpdate(context.Background(), &domain.Order{
		ClientOrderID: "pm-1",
		Symbol:        "BTCUSDT",
		Status:        domain.OrderStatusFilled,
		AvgFillPrice:  d("99.5"),
		ExecutedQty:   d("0.01"),
		Side:          domain.SideBuy,
	})
	if err != nil {
		t.Fatalf("OnOrderUpdate: %v", err)
	}

	if !s.lastOwnTradePrice.Equal(d("99.5")) {
		t.Fatalf("lastOwnTradePrice got=%s", s.lastOwnTradePrice)
	}
	if s.createTimestamp.Before(before.Add(59 * time.Second)) {
		t.Fatalf("fill must delay the next quote, createTimestamp=%v", s.createTimestamp)
	}
}

func TestOnOrderUpdate_CanceledRemovesExitTracking(t *testing.T) {
	svc := newFakeService()
	s := newTestStrategy(t, svc, nil)
	s.ExitOrders["pm-exit-1"] = true

	_ = s.OnOrderUpdate(context.Background(), &domain.Order{
		ClientOrderID: "pm-exit-1",
		Symbol:        "BTCUSDT",
		Status:        domain.OrderStatusCanceled,
	})
	if s.isExitOrder("pm-exit-1") {
		t.Fatalf("canceled exit order must be forgotten")
	}
}

func TestOnOrderUpdate_IgnoresOtherSymbols(t *testing.T) {
	svc := newFakeService()
	s := newTestStrategy(t, svc, nil)
	s.ExitOrders["pm-exit-1"] = true

	_ = s.OnOrderUpdate(context.Background(), &domain.Order{
		ClientOrderID: "pm-exit-1",
		Symbol:        "ETHUSDT",
		Status:        domain.OrderStatusCanceled,
	})
	if !s.isExitOrder("pm-exit-1") {
		t.Fatalf("updates for other symbols must be ignored")
	}
}
