package services

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/betbot/perpmaker/internal/domain"
	"github.com/betbot/perpmaker/internal/exchange"
	"github.com/betbot/perpmaker/internal/exchange/paper"
	"github.com/betbot/perpmaker/internal/risk"
)

func newSnapshotService() *TradingService {
	s := NewTradingService(paper.New(), risk.NewCircuitBreaker(risk.CircuitBreakerConfig{}))
	s.bestBid = d("99")
	s.bestAsk = d("101")
	s.makerFee = d("0.0002")
	s.takerFee = d("0.0005")
	return s
}

func TestGetPrice_Sides(t *testing.T) {
	s := newSnapshotService()
	if !s.GetPrice("BTCUSDT", true).Equal(d("101")) {
		t.Fatalf("isBuy must return best ask")
	}
	if !s.GetPrice("BTCUSDT", false).Equal(d("99")) {
		t.Fatalf("!isBuy must return best bid")
	}
	if !s.MidPrice("BTCUSDT").Equal(d("100")) {
		t.Fatalf("mid got=%s", s.MidPrice("BTCUSDT"))
	}
}

func TestGetPriceForVolume_WalksBook(t *testing.T) {
	s := newSnapshotService()
	s.book = &exchange.OrderBook{
		Asks: []exchange.PriceLevel{
			{Price: d("101"), Quantity: d("1")},
			{Price: d("102"), Quantity: d("1")},
		},
		Bids: []exchange.PriceLevel{
			{Price: d("99"), Quantity: d("1")},
			{Price: d("98"), Quantity: d("1")},
		},
	}

	// 买 1.5：1×101 + 0.5×102 = 152 / 1.5 ≈ 101.3333
	got := s.GetPriceForVolume("BTCUSDT", true, d("1.5"))
	want := d("152").Div(d("1.5"))
	if !got.Equal(want) {
		t.Fatalf("vwap got=%s want=%s", got, want)
	}

	// 卖 2：全部两档吃完 → (99+98)/2
	got = s.GetPriceForVolume("BTCUSDT", false, d("2"))
	if !got.Equal(d("98.5")) {
		t.Fatalf("sell vwap got=%s want=98.5", got)
	}
}

func TestGetPriceForVolume_NoBookFallsBack(t *testing.T) {
	s := newSnapshotService()
	if !s.GetPriceForVolume("BTCUSDT", true, d("1")).Equal(d("101")) {
		t.Fatalf("missing book must fall back to top of book")
	}
}

func TestPlaceOrder_BlockedWhenHalted(t *testing.T) {
	conn := paper.New()
	conn.PushPrice(d("100"), d("100.1"))
	breaker := risk.NewCircuitBreaker(risk.CircuitBreakerConfig{})
	s := NewTradingService(conn, breaker)

	breaker.Halt()
	_, err := s.PlaceOrder(context.Background(), &domain.Order{
		Symbol: "BTCUSDT", Side: domain.SideBuy,
		Type: domain.OrderTypeLimit, Price: d("99"), Quantity: d("0.01"),
	})
	if err == nil {
		t.Fatalf("halted breaker must block new orders")
	}

	breaker.Resume()
	placed, err := s.PlaceOrder(context.Background(), &domain.Order{
		Symbol: "BTCUSDT", Side: domain.SideBuy,
		Type: domain.OrderTypeLimit, Price: d("99"), Quantity: d("0.01"),
	})
	if err != nil {
		t.Fatalf("PlaceOrder after resume: %v", err)
	}
	if placed.ClientOrderID == "" {
		t.Fatalf("a client order id must be assigned")
	}
	if len(s.ActiveOrders("BTCUSDT")) != 1 {
		t.Fatalf("open order must be tracked")
	}

	// 熔断状态下撤单仍然放行
	breaker.Halt()
	if err := s.CancelOrder(context.Background(), "BTCUSDT", placed.ClientOrderID); err != nil {
		t.Fatalf("cancel must be allowed while halted: %v", err)
	}
}

func TestGetFee_ByOrderType(t *testing.T) {
	s := newSnapshotService()
	maker := s.GetFee("BTCUSDT", domain.OrderTypeLimit, domain.SideBuy, decimal.Zero, decimal.Zero)
	taker := s.GetFee("BTCUSDT", domain.OrderTypeMarket, domain.SideBuy, decimal.Zero, decimal.Zero)
	if !maker.Equal(d("0.0002")) || !taker.Equal(d("0.0005")) {
		t.Fatalf("fees got maker=%s taker=%s", maker, taker)
	}
}
