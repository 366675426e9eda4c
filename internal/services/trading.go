package services

import (
	"context"
	"sync"
	"time"

	"github.com/betbot/perpmaker/internal/domain"
	"github.com/betbot/perpmaker/internal/events"
	"github.com/betbot/perpmaker/internal/exchange"
	"github.com/betbot/perpmaker/internal/metrics"
	"github.com/betbot/perpmaker/internal/risk"
	"github.com/betbot/perpmaker/internal/strategies/ports"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("service", "trading")

// TradingService 把交易所连接器包装成策略可依赖的同步快照服务。
// 行情/账户数据由流回调与定期刷新维护；策略在 tick 里只读快照。
// 订单更新经 dispatcher 转发，保证策略回调只在 tick 之间执行。
type TradingService struct {
	connector exchange.Connector
	tracker   *OrderTracker
	breaker   *risk.CircuitBreaker
	recorder  *Recorder // 可选

	symbol string

	mu        sync.RWMutex
	market    *domain.Market
	bestBid   decimal.Decimal
	bestAsk   decimal.Decimal
	lastTrade decimal.Decimal
	book      *exchange.OrderBook
	balances  map[string]decimal.Decimal
	positions []*domain.Position
	makerFee  decimal.Decimal
	takerFee  decimal.Decimal
	funding   decimal.Decimal
	ready     bool

	handlersMu sync.RWMutex
	handlers   []ports.OrderUpdateHandler

	// dispatcher 把回调排入策略主循环的 jobs 队列；未设置时同步执行
	dispatcher func(job func())
}

func NewTradingService(connector exchange.Connector, breaker *risk.CircuitBreaker) *TradingService {
	return &TradingService{
		connector: connector,
		tracker:   NewOrderTracker(),
		breaker:   breaker,
		balances:  make(map[string]decimal.Decimal),
	}
}

// SetRecorder 挂接成交记录器
func (s *TradingService) SetRecorder(r *Recorder) { s.recorder = r }

// SetDispatcher 设置回调分发函数（由 tick 调度器提供）
func (s *TradingService) SetDispatcher(d func(job func())) { s.dispatcher = d }

// Tracker 暴露给状态服务展示
func (s *TradingService) Tracker() *OrderTracker { return s.tracker }

// Init 拉取市场元数据与初始快照，并订阅流回调。
func (s *TradingService) Init(ctx context.Context, symbol string) error {
	s.symbol = symbol

	market, err := s.connector.FetchMarket(ctx, symbol)
	if err != nil {
		return errors.Wrap(err, "fetch market")
	}

	maker, taker, err := s.connector.FetchCommissionRates(ctx, symbol)
	if err != nil {
		return errors.Wrap(err, "fetch commission rates")
	}

	bid, ask, err := s.connector.FetchBookTicker(ctx, symbol)
	if err != nil {
		return errors.Wrap(err, "fetch book ticker")
	}

	s.mu.Lock()
	s.market = market
	s.makerFee = maker
	s.takerFee = taker
	s.bestBid = bid
	s.bestAsk = ask
	s.mu.Unlock()

	if err := s.RefreshAccount(ctx); err != nil {
		return err
	}

	s.connector.OnPriceChanged(func(e events.PriceChangedEvent) {
		s.mu.Lock()
		s.bestBid = e.BestBid
		s.bestAsk = e.BestAsk
		s.ready = true
		s.mu.Unlock()
	})
	s.connector.OnTrade(func(_ string, price decimal.Decimal) {
		s.mu.Lock()
		s.lastTrade = price
		s.mu.Unlock()
	})
	s.connector.OnOrderUpdate(s.handleOrderUpdate)

	s.mu.Lock()
	s.ready = !bid.IsZero() && !ask.IsZero()
	s.mu.Unlock()

	log.Infof("✅ trading service initialized: %s tick=%s step=%s makerFee=%s takerFee=%s",
		symbol, market.TickSize, market.StepSize, maker, taker)
	return nil
}

// RefreshAccount 刷新余额、仓位、资金费率与深度快照。
// 由 tick 调度器在每个 tick 前调用，与策略逻辑串行。
func (s *TradingService) RefreshAccount(ctx context.Context) error {
	balances, err := s.connector.FetchBalances(ctx)
	if err != nil {
		return errors.Wrap(err, "fetch balances")
	}
	positions, err := s.connector.FetchPositions(ctx, s.symbol)
	if err != nil {
		return errors.Wrap(err, "fetch positions")
	}
	funding, err := s.connector.FetchFundingRate(ctx, s.symbol)
	if err != nil {
		// 资金费率非关键路径，保留上次快照
		log.Warnf("⚠️ fetch funding rate: %v", err)
		funding = s.GetFundingRate(s.symbol)
	}
	book, err := s.connector.FetchOrderBook(ctx, s.symbol, 20)
	if err != nil {
		log.Warnf("⚠️ fetch order book: %v", err)
		book = nil
	}

	s.mu.Lock()
	s.balances = balances
	s.positions = positions
	s.funding = funding
	if book != nil {
		s.book = book
	}
	quote := s.market.QuoteAsset
	s.mu.Unlock()

	if bal, ok := balances[quote]; ok {
		f, _ := bal.Float64()
		metrics.AvailableBalance.Set(f)
	}
	return nil
}

func (s *TradingService) handleOrderUpdate(order *domain.Order, trade *domain.Trade) {
	updated, tracked := s.tracker.Update(order)
	if !tracked {
		return
	}
	metrics.ActiveOrders.Set(float64(s.tracker.Count()))

	if s.recorder != nil {
		if trade != nil {
			if err := s.recorder.RecordTrade(trade); err != nil {
				log.Warnf("⚠️ record trade: %v", err)
			}
		}
		if updated.IsFinalStatus() {
			if err := s.recorder.RecordOrder(updated); err != nil {
				log.Warnf("⚠️ record order: %v", err)
			}
		}
	}

	job := func() {
		s.handlersMu.RLock()
		handlers := s.handlers
		s.handlersMu.RUnlock()
		for _, h := range handlers {
			if err := h.OnOrderUpdate(context.Background(), updated); err != nil {
				log.Warnf("⚠️ order update handler: %v", err)
			}
		}
	}
	if s.dispatcher != nil {
		s.dispatcher(job)
	} else {
		job()
	}
}

// --- ports.ReadinessReporter ---

func (s *TradingService) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready && s.market != nil
}

func (s *TradingService) Connectivity() ports.ConnectivityStatus {
	if s.connector.Connected() {
		return ports.ConnectivityConnected
	}
	return ports.ConnectivityDisconnected
}

// --- ports.MarketGetter ---

func (s *TradingService) Market(symbol string) (*domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.market == nil || s.market.Symbol != symbol {
		return nil, errors.Errorf("market %s not loaded", symbol)
	}
	m := *s.market
	return &m, nil
}

// --- ports.PriceGetter ---

func (s *TradingService) GetPrice(_ string, isBuy bool) decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if isBuy {
		return s.bestAsk
	}
	return s.bestBid
}

// GetPriceForVolume 按深度快照估算吃掉 volume 后的加权成交价
func (s *TradingService) GetPriceForVolume(symbol string, isBuy bool, volume decimal.Decimal) decimal.Decimal {
	s.mu.RLock()
	book := s.book
	s.mu.RUnlock()

	if book == nil || volume.Sign() <= 0 {
		return s.GetPrice(symbol, isBuy)
	}
	levels := book.Asks
	if !isBuy {
		levels = book.Bids
	}
	remaining := volume
	notional := decimal.Zero
	for _, lvl := range levels {
		take := decimal.Min(remaining, lvl.Quantity)
		notional = notional.Add(lvl.Price.Mul(take))
		remaining = remaining.Sub(take)
		if remaining.Sign() <= 0 {
			break
		}
	}
	filled := volume.Sub(remaining)
	if filled.Sign() <= 0 {
		return s.GetPrice(symbol, isBuy)
	}
	return notional.Div(filled)
}

func (s *TradingService) MidPrice(_ string) decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.bestBid.IsZero() || s.bestAsk.IsZero() {
		return decimal.Zero
	}
	return s.bestBid.Add(s.bestAsk).Div(decimal.NewFromInt(2))
}

func (s *TradingService) LastTradePrice(_ string) decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastTrade
}

// --- ports.FeeGetter ---

func (s *TradingService) GetFee(_ string, orderType domain.OrderType, _ domain.Side, _, _ decimal.Decimal) decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if orderType == domain.OrderTypeMarket {
		return s.takerFee
	}
	return s.makerFee
}

// --- ports.FundingRateGetter ---

func (s *TradingService) GetFundingRate(_ string) decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.funding
}

// --- ports.BalanceGetter ---

func (s *TradingService) GetAvailableBalance(asset string) decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[asset]
}

// --- ports.MarginControl ---

func (s *TradingService) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	return s.connector.SetLeverage(ctx, symbol, leverage)
}

func (s *TradingService) SetPositionMode(ctx context.Context, mode domain.PositionMode) error {
	return s.connector.SetPositionMode(ctx, mode)
}

// --- ports.OrderPlacer ---

func (s *TradingService) PlaceOrder(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	if err := s.breaker.AllowTrading(); err != nil {
		return nil, err
	}
	if order.ClientOrderID == "" {
		order.ClientOrderID = "pm-" + uuid.NewString()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}

	placed, err := s.connector.PlaceOrder(ctx, order)
	if err != nil {
		s.breaker.RecordError()
		return nil, err
	}
	s.breaker.RecordSuccess()

	if !placed.IsFinalStatus() {
		s.tracker.Add(placed)
	}
	metrics.Orders.WithLabelValues(
		string(placed.Side), string(placed.PositionAction)).Inc()
	metrics.ActiveOrders.Set(float64(s.tracker.Count()))
	return placed, nil
}

// --- ports.OrderCanceler ---

func (s *TradingService) CancelOrder(ctx context.Context, symbol, clientOrderID string) error {
	// 撤单在熔断时也允许：撤单只减少风险
	err := s.connector.CancelOrder(ctx, symbol, clientOrderID)
	if err != nil {
		s.breaker.RecordError()
		return err
	}
	s.breaker.RecordSuccess()
	metrics.OrdersCanceled.Inc()
	return nil
}

// --- ports.ActiveOrdersGetter ---

func (s *TradingService) ActiveOrders(symbol string) []*domain.Order {
	return s.tracker.BySymbol(symbol)
}

// --- ports.OpenPositionsGetter ---

func (s *TradingService) OpenPositions(symbol string) []*domain.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Position, 0, len(s.positions))
	for _, p := range s.positions {
		if p.Symbol == symbol && p.IsOpen() {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out
}

// --- ports.OrderUpdateSubscriber ---

func (s *TradingService) OnOrderUpdate(handler ports.OrderUpdateHandler) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.handlers = append(s.handlers, handler)
}
