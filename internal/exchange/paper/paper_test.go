package paper

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/betbot/perpmaker/internal/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestLimitOrder_RestsUntilCrossed(t *testing.T) {
	c := New()
	c.PushPrice(d("100"), d("100.1"))

	var updates []*domain.Order
	c.OnOrderUpdate(func(o *domain.Order, _ *domain.Trade) {
		updates = append(updates, o)
	})

	placed, err := c.PlaceOrder(context.Background(), &domain.Order{
		ClientOrderID: "t1",
		Symbol:        "BTCUSDT",
		Side:          domain.SideBuy,
		Type:          domain.OrderTypeLimit,
		Price:         d("99"),
		Quantity:      d("0.01"),
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if placed.Status != domain.OrderStatusOpen {
		t.Fatalf("status got=%s want open", placed.Status)
	}
	if len(c.OpenOrders()) != 1 {
		t.Fatalf("order must rest in the book")
	}

	// 卖一跌到 99 → 买单成交
	c.PushPrice(d("98.9"), d("99"))
	if len(c.OpenOrders()) != 0 {
		t.Fatalf("crossed order must be removed from the book")
	}
	if len(updates) == 0 || updates[len(updates)-1].Status != domain.OrderStatusFilled {
		t.Fatalf("expected a filled update, got %+v", updates)
	}

	positions, _ := c.FetchPositions(context.Background(), "BTCUSDT")
	if len(positions) != 1 || !positions[0].IsLong() {
		t.Fatalf("fill must open a long position, got %+v", positions)
	}
	if !positions[0].Amount.Equal(d("0.01")) {
		t.Fatalf("position size got=%s", positions[0].Amount)
	}
}

func TestMarketOrder_FillsAtOppositeTop(t *testing.T) {
	c := New()
	c.PushPrice(d("100"), d("100.1"))

	filled, err := c.PlaceOrder(context.Background(), &domain.Order{
		ClientOrderID: "m1",
		Symbol:        "BTCUSDT",
		Side:          domain.SideBuy,
		Type:          domain.OrderTypeMarket,
		Quantity:      d("0.01"),
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if filled.Status != domain.OrderStatusFilled {
		t.Fatalf("market order must fill immediately, got %s", filled.Status)
	}
	if !filled.AvgFillPrice.Equal(d("100.1")) {
		t.Fatalf("fill price got=%s want best ask 100.1", filled.AvgFillPrice)
	}
}

func TestCancelOrder_RemovesFromBook(t *testing.T) {
	c := New()
	c.PushPrice(d("100"), d("100.1"))

	_, _ = c.PlaceOrder(context.Background(), &domain.Order{
		ClientOrderID: "c1",
		Symbol:        "BTCUSDT",
		Side:          domain.SideBuy,
		Type:          domain.OrderTypeLimit,
		Price:         d("99"),
		Quantity:      d("0.01"),
	})

	var last *domain.Order
	c.OnOrderUpdate(func(o *domain.Order, _ *domain.Trade) { last = o })

	if err := c.CancelOrder(context.Background(), "BTCUSDT", "c1"); err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	if len(c.OpenOrders()) != 0 {
		t.Fatalf("canceled order must leave the book")
	}
	if last == nil || last.Status != domain.OrderStatusCanceled {
		t.Fatalf("expected canceled update, got %+v", last)
	}

	// 再撤一次视为幂等
	if err := c.CancelOrder(context.Background(), "BTCUSDT", "c1"); err != nil {
		t.Fatalf("second cancel must be a no-op, got %v", err)
	}
}

func TestRoundTrip_RealizesPnl(t *testing.T) {
	c := New(WithFees(decimal.Zero, decimal.Zero))
	ctx := context.Background()

	balances, _ := c.FetchBalances(ctx)
	start := balances["USDT"]

	// 100 买入，110 卖出，0.1 BTC → 实现盈亏 +1 USDT
	c.PushPrice(d("99.9"), d("100"))
	_, _ = c.PlaceOrder(ctx, &domain.Order{
		ClientOrderID: "open", Symbol: "BTCUSDT",
		Side: domain.SideBuy, Type: domain.OrderTypeMarket, Quantity: d("0.1"),
	})

	c.PushPrice(d("110"), d("110.1"))
	_, _ = c.PlaceOrder(ctx, &domain.Order{
		ClientOrderID: "close", Symbol: "BTCUSDT",
		Side: domain.SideSell, Type: domain.OrderTypeMarket, Quantity: d("0.1"),
	})

	positions, _ := c.FetchPositions(ctx, "BTCUSDT")
	if len(positions) != 0 {
		t.Fatalf("position must be flat after the round trip, got %+v", positions)
	}

	balances, _ = c.FetchBalances(ctx)
	pnl := balances["USDT"].Sub(start)
	if !pnl.Equal(d("1")) {
		t.Fatalf("realized pnl got=%s want=1", pnl)
	}
}

func TestPartialReduce_BooksRealizedPnl(t *testing.T) {
	c := New(WithFees(decimal.Zero, decimal.Zero))
	ctx := context.Background()

	balances, _ := c.FetchBalances(ctx)
	start := balances["USDT"]

	// 100 买入 0.1，110 卖出 0.04 → 仅对平掉部分入账 +0.4 USDT
	c.PushPrice(d("99.9"), d("100"))
	_, _ = c.PlaceOrder(ctx, &domain.Order{
		ClientOrderID: "open", Symbol: "BTCUSDT",
		Side: domain.SideBuy, Type: domain.OrderTypeMarket, Quantity: d("0.1"),
	})

	c.PushPrice(d("110"), d("110.1"))
	_, _ = c.PlaceOrder(ctx, &domain.Order{
		ClientOrderID: "reduce", Symbol: "BTCUSDT",
		Side: domain.SideSell, Type: domain.OrderTypeMarket, Quantity: d("0.04"),
	})

	positions, _ := c.FetchPositions(ctx, "BTCUSDT")
	if len(positions) != 1 {
		t.Fatalf("position must survive a partial reduce, got %+v", positions)
	}
	// 减仓不动均价
	if !positions[0].Amount.Equal(d("0.06")) || !positions[0].EntryPrice.Equal(d("100")) {
		t.Fatalf("after reduce got %s@%s, want 0.06@100",
			positions[0].Amount, positions[0].EntryPrice)
	}

	balances, _ = c.FetchBalances(ctx)
	pnl := balances["USDT"].Sub(start)
	if !pnl.Equal(d("0.4")) {
		t.Fatalf("partial-reduce pnl got=%s want=0.4", pnl)
	}
}

func TestFetchMarket_UnknownSymbol(t *testing.T) {
	c := New()
	if _, err := c.FetchMarket(context.Background(), "ETHUSDT"); err == nil {
		t.Fatalf("unknown symbol must error")
	}
	m, err := c.FetchMarket(context.Background(), "BTCUSDT")
	if err != nil || m.QuoteAsset != "USDT" {
		t.Fatalf("default market fetch failed: %v %+v", err, m)
	}
}
