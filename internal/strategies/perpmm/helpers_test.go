package perpmm

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/perpmaker/internal/domain"
	"github.com/betbot/perpmaker/internal/strategies/ports"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// fakeService 可编程的交易服务桩：快照字段直接赋值，
// 下单/撤单只记录，不产生副作用。
type fakeService struct {
	market  *domain.Market
	bid     decimal.Decimal
	ask     decimal.Decimal
	last    decimal.Decimal
	fee     decimal.Decimal
	funding decimal.Decimal
	balance decimal.Decimal

	// GetPriceForVolume 的覆盖值；零值时退化为 GetPrice
	volumePrice decimal.Decimal

	active    []*domain.Order
	positions []*domain.Position

	placed   []*domain.Order
	canceled []string

	ready        bool
	connectivity ports.ConnectivityStatus
}

func newFakeService() *fakeService {
	return &fakeService{
		market: &domain.Market{
			Symbol:      "BTCUSDT",
			BaseAsset:   "BTC",
			QuoteAsset:  "USDT",
			TickSize:    d("0.01"),
			StepSize:    d("0.001"),
			MinNotional: d("5"),
		},
		balance:      d("1000000"),
		ready:        true,
		connectivity: ports.ConnectivityConnected,
	}
}

func (f *fakeService) Ready() bool                             { return f.ready }
func (f *fakeService) Connectivity() ports.ConnectivityStatus  { return f.connectivity }
func (f *fakeService) Market(string) (*domain.Market, error)   { return f.market, nil }
func (f *fakeService) LastTradePrice(string) decimal.Decimal   { return f.last }
func (f *fakeService) GetFundingRate(string) decimal.Decimal   { return f.funding }
func (f *fakeService) GetAvailableBalance(string) decimal.Decimal {
	return f.balance
}

func (f *fakeService) GetPrice(_ string, isBuy bool) decimal.Decimal {
	if isBuy {
		return f.ask
	}
	return f.bid
}

func (f *fakeService) GetPriceForVolume(symbol string, isBuy bool, _ decimal.Decimal) decimal.Decimal {
	if f.volumePrice.IsPositive() {
		return f.volumePrice
	}
	return f.GetPrice(symbol, isBuy)
}

func (f *fakeService) MidPrice(string) decimal.Decimal {
	if !f.bid.IsPositive() || !f.ask.IsPositive() {
		return decimal.Zero
	}
	return f.bid.Add(f.ask).Div(d("2"))
}

func (f *fakeService) GetFee(string, domain.OrderType, domain.Side, decimal.Decimal, decimal.Decimal) decimal.Decimal {
	return f.fee
}

func (f *fakeService) SetLeverage(context.Context, string, int) error            { return nil }
func (f *fakeService) SetPositionMode(context.Context, domain.PositionMode) error { return nil }

func (f *fakeService) PlaceOrder(_ context.Context, order *domain.Order) (*domain.Order, error) {
	cp := *order
	cp.Status = domain.OrderStatusOpen
	f.placed = append(f.placed, &cp)
	return &cp, nil
}

func (f *fakeService) CancelOrder(_ context.Context, _ string, clientOrderID string) error {
	f.canceled = append(f.canceled, clientOrderID)
	return nil
}

func (f *fakeService) ActiveOrders(string) []*domain.Order       { return f.active }
func (f *fakeService) OpenPositions(string) []*domain.Position   { return f.positions }
func (f *fakeService) OnOrderUpdate(ports.OrderUpdateHandler)    {}

// newTestStrategy 默认配置 + fakeService 的策略实例
func newTestStrategy(t interface{ Fatalf(string, ...interface{}) }, svc *fakeService, mutate func(*Config)) *Strategy {
	s := &Strategy{TradingService: svc}
	s.Config = Config{
		Symbol:           "BTCUSDT",
		BidSpread:        0.01,
		AskSpread:        0.01,
		OrderAmount:      0.01,
		OrderLevels:      2,
		OrderLevelSpread: 0.005,
		OrderLevelAmount: 0.01,
	}
	if mutate != nil {
		mutate(&s.Config)
	}
	if err := s.Config.Defaults(); err != nil {
		t.Fatalf("Defaults: %v", err)
	}
	if err := s.Config.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := s.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	s.market = svc.market
	s.tickNow = time.Now()
	return s
}

func longPosition(entry string, amount string) *domain.Position {
	return &domain.Position{
		Symbol:     "BTCUSDT",
		Side:       domain.PositionSideBoth,
		EntryPrice: d(entry),
		Amount:     d(amount),
	}
}

func shortPosition(entry string, amount string) *domain.Position {
	return &domain.Position{
		Symbol:     "BTCUSDT",
		Side:       domain.PositionSideBoth,
		EntryPrice: d(entry),
		Amount:     d(amount).Neg(),
	}
}

func restingOrder(id string, side domain.Side, price, qty string) *domain.Order {
	return &domain.Order{
		ClientOrderID: id,
		Symbol:        "BTCUSDT",
		Side:          side,
		Type:          domain.OrderTypeLimit,
		Price:         d(price),
		Quantity:      d(qty),
		Status:        domain.OrderStatusOpen,
	}
}
