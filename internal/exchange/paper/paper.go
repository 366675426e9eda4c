package paper

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/betbot/perpmaker/internal/domain"
	"github.com/betbot/perpmaker/internal/events"
	"github.com/betbot/perpmaker/internal/exchange"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "paper")

// Connector 纸面撮合连接器：内存里模拟余额、仓位与订单撮合。
// 用于 dry-run 与测试。行情由 PushPrice 注入，限价单在价格穿越时成交。
type Connector struct {
	mu sync.Mutex

	market    *domain.Market
	makerFee  decimal.Decimal
	takerFee  decimal.Decimal
	funding   decimal.Decimal
	balances  map[string]decimal.Decimal
	positions map[domain.PositionSide]*domain.Position
	mode      domain.PositionMode
	leverage  int

	bestBid decimal.Decimal
	bestAsk decimal.Decimal
	book    *exchange.OrderBook

	orders map[string]*domain.Order // clientOrderID -> resting order

	priceHandlers []exchange.PriceChangedHandler
	tradeHandlers []exchange.TradeHandler
	orderHandlers []exchange.OrderUpdateHandler

	connected bool
	nextID    int64
}

// Option 纸面连接器的初始状态配置
type Option func(*Connector)

func WithMarket(m *domain.Market) Option {
	return func(c *Connector) { c.market = m }
}

func WithBalance(asset string, amount decimal.Decimal) Option {
	return func(c *Connector) { c.balances[asset] = amount }
}

func WithFees(maker, taker decimal.Decimal) Option {
	return func(c *Connector) {
		c.makerFee = maker
		c.takerFee = taker
	}
}

func WithFundingRate(rate decimal.Decimal) Option {
	return func(c *Connector) { c.funding = rate }
}

func New(opts ...Option) *Connector {
	c := &Connector{
		market: &domain.Market{
			Symbol:      "BTCUSDT",
			BaseAsset:   "BTC",
			QuoteAsset:  "USDT",
			TickSize:    decimal.RequireFromString("0.1"),
			StepSize:    decimal.RequireFromString("0.001"),
			MinNotional: decimal.RequireFromString("5"),
		},
		makerFee:  decimal.RequireFromString("0.0002"),
		takerFee:  decimal.RequireFromString("0.0005"),
		balances:  map[string]decimal.Decimal{"USDT": decimal.NewFromInt(10000)},
		positions: make(map[domain.PositionSide]*domain.Position),
		orders:    make(map[string]*domain.Order),
		mode:      domain.PositionModeOneway,
		leverage:  1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Connector) Name() string { return "paper" }

func (c *Connector) FetchMarket(_ context.Context, symbol string) (*domain.Market, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if symbol != c.market.Symbol {
		return nil, errors.Errorf("unknown symbol %s", symbol)
	}
	m := *c.market
	return &m, nil
}

func (c *Connector) FetchBookTicker(_ context.Context, _ string) (decimal.Decimal, decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bestBid, c.bestAsk, nil
}

func (c *Connector) FetchOrderBook(_ context.Context, _ string, _ int) (*exchange.OrderBook, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.book != nil {
		return c.book, nil
	}
	// 没有注入深度时用盘口合成一档
	return &exchange.OrderBook{
		Bids: []exchange.PriceLevel{{Price: c.bestBid, Quantity: decimal.NewFromInt(1000)}},
		Asks: []exchange.PriceLevel{{Price: c.bestAsk, Quantity: decimal.NewFromInt(1000)}},
	}, nil
}

func (c *Connector) FetchFundingRate(_ context.Context, _ string) (decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.funding, nil
}

func (c *Connector) FetchCommissionRates(_ context.Context, _ string) (decimal.Decimal, decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.makerFee, c.takerFee, nil
}

func (c *Connector) FetchBalances(_ context.Context) (map[string]decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]decimal.Decimal, len(c.balances))
	for k, v := range c.balances {
		out[k] = v
	}
	return out, nil
}

func (c *Connector) FetchPositions(_ context.Context, symbol string) ([]*domain.Position, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*domain.Position
	for _, p := range c.positions {
		if p.Symbol == symbol && p.IsOpen() {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (c *Connector) SetLeverage(_ context.Context, _ string, leverage int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.leverage = leverage
	return nil
}

func (c *Connector) SetPositionMode(_ context.Context, mode domain.PositionMode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = mode
	return nil
}

func (c *Connector) PlaceOrder(_ context.Context, order *domain.Order) (*domain.Order, error) {
	c.mu.Lock()

	c.nextID++
	placed := *order
	placed.ExchangeOrderID = strconv.FormatInt(c.nextID, 10)
	placed.Status = domain.OrderStatusOpen
	placed.CreatedAt = time.Now()
	placed.UpdatedAt = placed.CreatedAt

	if placed.Type == domain.OrderTypeMarket {
		// 市价单立即按对手价全额成交
		price := c.bestAsk
		if placed.Side == domain.SideSell {
			price = c.bestBid
		}
		fill := c.fillLocked(&placed, price, placed.Quantity, false)
		c.mu.Unlock()
		c.fireOrderUpdate(fill.order, fill.trade)
		return fill.order, nil
	}

	c.orders[placed.ClientOrderID] = &placed
	c.mu.Unlock()

	// 挂单后立即检查是否已穿越盘口
	c.matchOrders()
	c.mu.Lock()
	snapshot := placed
	if cur, ok := c.orders[placed.ClientOrderID]; ok {
		snapshot = *cur
	}
	c.mu.Unlock()
	return &snapshot, nil
}

func (c *Connector) CancelOrder(_ context.Context, _ string, clientOrderID string) error {
	c.mu.Lock()
	order, ok := c.orders[clientOrderID]
	if !ok {
		c.mu.Unlock()
		return nil // 视为已撤
	}
	delete(c.orders, clientOrderID)
	canceled := *order
	canceled.Status = domain.OrderStatusCanceled
	canceled.UpdatedAt = time.Now()
	c.mu.Unlock()

	c.fireOrderUpdate(&canceled, nil)
	return nil
}

func (c *Connector) Connect(_ context.Context, _ string) error {
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	return nil
}

func (c *Connector) Close() error {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	return nil
}

func (c *Connector) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Connector) OnPriceChanged(h exchange.PriceChangedHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.priceHandlers = append(c.priceHandlers, h)
}

func (c *Connector) OnTrade(h exchange.TradeHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tradeHandlers = append(c.tradeHandlers, h)
}

func (c *Connector) OnOrderUpdate(h exchange.OrderUpdateHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orderHandlers = append(c.orderHandlers, h)
}

// PushPrice 注入新盘口并触发撮合与回调
func (c *Connector) PushPrice(bid, ask decimal.Decimal) {
	c.mu.Lock()
	c.bestBid = bid
	c.bestAsk = ask
	symbol := c.market.Symbol
	handlers := c.priceHandlers
	c.mu.Unlock()

	c.matchOrders()

	e := events.PriceChangedEvent{
		Symbol:    symbol,
		BestBid:   bid,
		BestAsk:   ask,
		Timestamp: time.Now(),
	}
	for _, h := range handlers {
		h(e)
	}
}

// PushBook 注入深度快照（价格量加权估算用）
func (c *Connector) PushBook(book *exchange.OrderBook) {
	c.mu.Lock()
	c.book = book
	c.mu.Unlock()
}

// OpenOrders 测试辅助：当前挂单快照
func (c *Connector) OpenOrders() []*domain.Order {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*domain.Order, 0, len(c.orders))
	for _, o := range c.orders {
		cp := *o
		out = append(out, &cp)
	}
	return out
}

type fillResult struct {
	order *domain.Order
	trade *domain.Trade
}

// matchOrders 价格穿越即成交：买单价 >= bestAsk，卖单价 <= bestBid 视为 taker 成交，
// 否则对手价触及限价时按 maker 成交（保守地只在穿越时触发）
func (c *Connector) matchOrders() {
	c.mu.Lock()
	var fills []fillResult
	for id, o := range c.orders {
		crossed := (o.Side == domain.SideBuy && !c.bestAsk.IsZero() && o.Price.GreaterThanOrEqual(c.bestAsk)) ||
			(o.Side == domain.SideSell && !c.bestBid.IsZero() && o.Price.LessThanOrEqual(c.bestBid))
		if !crossed {
			continue
		}
		delete(c.orders, id)
		fills = append(fills, c.fillLocked(o, o.Price, o.RemainingQty(), true))
	}
	c.mu.Unlock()

	for _, f := range fills {
		c.fireOrderUpdate(f.order, f.trade)
	}
}

// fillLocked 记账一笔成交：更新仓位与余额，返回终态订单与成交
func (c *Connector) fillLocked(o *domain.Order, price, qty decimal.Decimal, maker bool) fillResult {
	fee := c.takerFee
	if maker {
		fee = c.makerFee
	}
	notional := price.Mul(qty)
	feeAmount := notional.Mul(fee)
	c.balances[c.market.QuoteAsset] = c.balances[c.market.QuoteAsset].Sub(feeAmount)

	c.applyToPosition(o, price, qty)

	c.nextID++
	filled := *o
	filled.ExecutedQty = o.Quantity
	filled.AvgFillPrice = price
	filled.Status = domain.OrderStatusFilled
	filled.UpdatedAt = time.Now()

	trade := &domain.Trade{
		TradeID:       strconv.FormatInt(c.nextID, 10),
		ClientOrderID: o.ClientOrderID,
		Symbol:        o.Symbol,
		Side:          o.Side,
		Price:         price,
		Quantity:      qty,
		Fee:           feeAmount,
		FeeAsset:      c.market.QuoteAsset,
		IsMaker:       maker,
		Timestamp:     filled.UpdatedAt,
	}
	return fillResult{order: &filled, trade: trade}
}

func (c *Connector) applyToPosition(o *domain.Order, price, qty decimal.Decimal) {
	side := o.PositionSide
	if side == "" || c.mode == domain.PositionModeOneway {
		side = domain.PositionSideBoth
	}

	pos, ok := c.positions[side]
	if !ok {
		pos = &domain.Position{Symbol: o.Symbol, Side: side, Leverage: c.leverage}
		c.positions[side] = pos
	}

	delta := qty
	if o.Side == domain.SideSell {
		delta = qty.Neg()
	}
	newAmount := pos.Amount.Add(delta)

	switch {
	case pos.Amount.IsZero():
		pos.EntryPrice = price
	case pos.Amount.Sign() == delta.Sign():
		// 加仓：数量加权均价
		total := pos.Amount.Abs().Add(qty)
		pos.EntryPrice = pos.EntryPrice.Mul(pos.Amount.Abs()).Add(price.Mul(qty)).Div(total)
	default:
		// 减仓、平仓或反手：按实际平掉的数量入账已实现盈亏
		closed := decimal.Min(pos.Amount.Abs(), qty)
		pnl := price.Sub(pos.EntryPrice).Mul(closed)
		if pos.IsShort() {
			pnl = pnl.Neg()
		}
		c.balances[c.market.QuoteAsset] = c.balances[c.market.QuoteAsset].Add(pnl)
		if newAmount.Sign() != 0 && newAmount.Sign() != pos.Amount.Sign() {
			pos.EntryPrice = price
		}
	}
	pos.Amount = newAmount

	if pos.Amount.IsZero() {
		delete(c.positions, side)
	} else {
		log.Debugf("position %s %s @ %s", side, pos.Amount, pos.EntryPrice)
	}
}

func (c *Connector) fireOrderUpdate(order *domain.Order, trade *domain.Trade) {
	c.mu.Lock()
	handlers := c.orderHandlers
	c.mu.Unlock()
	for _, h := range handlers {
		h(order, trade)
	}
}
