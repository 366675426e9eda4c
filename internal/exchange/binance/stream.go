package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/betbot/perpmaker/internal/domain"
	"github.com/betbot/perpmaker/internal/events"
	"github.com/betbot/perpmaker/internal/exchange"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	listenKeyKeepAlive = 30 * time.Minute
	reconnectDelay     = 3 * time.Second
	readDeadline       = 3 * time.Minute
)

// streamManager 管理行情流与用户数据流两条 WebSocket 连接。
// 回调在各自的读协程上触发；上层（TradingService）负责串行化。
type streamManager struct {
	parent *Connector

	mu            sync.RWMutex
	priceHandlers []exchange.PriceChangedHandler
	tradeHandlers []exchange.TradeHandler
	orderHandlers []exchange.OrderUpdateHandler

	connected atomic.Bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func newStreamManager(parent *Connector) *streamManager {
	return &streamManager{parent: parent}
}

// Connect 建立行情流 + 用户数据流，并启动自动重连
func (c *Connector) Connect(ctx context.Context, symbol string) error {
	ctx, cancel := context.WithCancel(ctx)
	c.stream.cancel = cancel

	// 先验证一次 listenKey 可用，带凭证的配置问题在启动时暴露
	if c.cfg.APIKey != "" {
		if _, err := c.createListenKey(ctx); err != nil {
			cancel()
			return errors.Wrap(err, "create listen key")
		}
	}

	c.stream.wg.Add(1)
	go c.stream.runMarketStream(ctx, symbol)

	if c.cfg.APIKey != "" {
		c.stream.wg.Add(1)
		go c.stream.runUserStream(ctx)
	}
	return nil
}

func (c *Connector) Close() error {
	if c.stream.cancel != nil {
		c.stream.cancel()
	}
	c.stream.wg.Wait()
	return nil
}

func (c *Connector) Connected() bool { return c.stream.connected.Load() }

func (c *Connector) OnPriceChanged(h exchange.PriceChangedHandler) {
	c.stream.mu.Lock()
	defer c.stream.mu.Unlock()
	c.stream.priceHandlers = append(c.stream.priceHandlers, h)
}

func (c *Connector) OnTrade(h exchange.TradeHandler) {
	c.stream.mu.Lock()
	defer c.stream.mu.Unlock()
	c.stream.tradeHandlers = append(c.stream.tradeHandlers, h)
}

func (c *Connector) OnOrderUpdate(h exchange.OrderUpdateHandler) {
	c.stream.mu.Lock()
	defer c.stream.mu.Unlock()
	c.stream.orderHandlers = append(c.stream.orderHandlers, h)
}

// runMarketStream bookTicker + aggTrade 组合流，断线自动重连
func (s *streamManager) runMarketStream(ctx context.Context, symbol string) {
	defer s.wg.Done()

	lower := strings.ToLower(symbol)
	streamURL := fmt.Sprintf("%s/stream?streams=%s@bookTicker/%s@aggTrade",
		s.parent.cfg.StreamHost, lower, lower)

	for {
		if ctx.Err() != nil {
			return
		}
		if err := s.readMarketStream(ctx, streamURL); err != nil && ctx.Err() == nil {
			log.Warnf("⚠️ market stream disconnected: %v, reconnecting in %v", err, reconnectDelay)
		}
		s.connected.Store(false)
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (s *streamManager) readMarketStream(ctx context.Context, streamURL string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, streamURL, nil)
	if err != nil {
		return errors.Wrap(err, "dial market stream")
	}
	defer conn.Close()

	log.Info("✅ market stream connected")
	s.connected.Store(true)

	conn.SetPingHandler(func(appData string) error {
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	type combinedMessage struct {
		Stream string          `json:"stream"`
		Data   json.RawMessage `json:"data"`
	}

	for {
		conn.SetReadDeadline(time.Now().Add(readDeadline))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var msg combinedMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}

		switch {
		case strings.HasSuffix(msg.Stream, "@bookTicker"):
			var bt wsBookTicker
			if err := json.Unmarshal(msg.Data, &bt); err != nil {
				continue
			}
			s.firePriceChanged(events.PriceChangedEvent{
				Symbol:    bt.Symbol,
				BestBid:   mustDecimal(bt.BidPrice),
				BestAsk:   mustDecimal(bt.AskPrice),
				Timestamp: time.UnixMilli(bt.Time),
			})
		case strings.HasSuffix(msg.Stream, "@aggTrade"):
			var at wsAggTrade
			if err := json.Unmarshal(msg.Data, &at); err != nil {
				continue
			}
			s.fireTrade(at.Symbol, mustDecimal(at.Price))
		}
	}
}

// runUserStream 用户数据流：订单状态、成交回报。listenKey 每 30 分钟续期。
func (s *streamManager) runUserStream(ctx context.Context) {
	defer s.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}
		if err := s.readUserStream(ctx); err != nil && ctx.Err() == nil {
			log.Warnf("⚠️ user stream disconnected: %v, reconnecting in %v", err, reconnectDelay)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (s *streamManager) readUserStream(ctx context.Context) error {
	listenKey, err := s.parent.createListenKey(ctx)
	if err != nil {
		return errors.Wrap(err, "create listen key")
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.parent.cfg.StreamHost+"/ws/"+listenKey, nil)
	if err != nil {
		return errors.Wrap(err, "dial user stream")
	}
	defer conn.Close()

	log.Info("✅ user data stream connected")

	conn.SetPingHandler(func(appData string) error {
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})

	keepAliveCtx, cancelKeepAlive := context.WithCancel(ctx)
	defer cancelKeepAlive()
	go func() {
		ticker := time.NewTicker(listenKeyKeepAlive)
		defer ticker.Stop()
		for {
			select {
			case <-keepAliveCtx.Done():
				return
			case <-ticker.C:
				if err := s.parent.keepAliveListenKey(keepAliveCtx); err != nil {
					log.Warnf("⚠️ listen key keepalive failed: %v", err)
				}
			}
		}
	}()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(readDeadline))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var ev wsUserEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			continue
		}

		switch ev.EventType {
		case "ORDER_TRADE_UPDATE":
			if ev.Order != nil {
				order, trade := convertOrderUpdate(ev.Order)
				s.fireOrderUpdate(order, trade)
			}
		case "listenKeyExpired":
			return errors.New("listen key expired")
		}
	}
}

// convertOrderUpdate 把订单推送转换为 domain 模型；成交事件同时产出 Trade
func convertOrderUpdate(o *wsOrderData) (*domain.Order, *domain.Trade) {
	order := &domain.Order{
		ClientOrderID:   o.ClientOrderID,
		ExchangeOrderID: strconv.FormatInt(o.OrderID, 10),
		Symbol:          o.Symbol,
		Side:            domain.Side(o.Side),
		Type:            domain.OrderType(o.OrderType),
		Price:           mustDecimal(o.Price),
		Quantity:        mustDecimal(o.Quantity),
		ExecutedQty:     mustDecimal(o.CumFillQty),
		AvgFillPrice:    mustDecimal(o.AvgPrice),
		PositionSide:    domain.PositionSide(o.PositionSide),
		Status:          convertOrderStatus(o.Status),
		UpdatedAt:       time.UnixMilli(o.TradeTime),
	}

	var trade *domain.Trade
	if o.ExecType == "TRADE" {
		trade = &domain.Trade{
			TradeID:       strconv.FormatInt(o.TradeID, 10),
			ClientOrderID: o.ClientOrderID,
			Symbol:        o.Symbol,
			Side:          domain.Side(o.Side),
			Price:         mustDecimal(o.LastFillPrice),
			Quantity:      mustDecimal(o.LastFillQty),
			Fee:           mustDecimal(o.Commission),
			FeeAsset:      o.CommissionAsset,
			IsMaker:       o.IsMaker,
			Timestamp:     time.UnixMilli(o.TradeTime),
		}
	}
	return order, trade
}

func convertOrderStatus(s string) domain.OrderStatus {
	switch s {
	case "NEW":
		return domain.OrderStatusOpen
	case "PARTIALLY_FILLED":
		return domain.OrderStatusPartiallyFilled
	case "FILLED":
		return domain.OrderStatusFilled
	case "CANCELED", "EXPIRED":
		return domain.OrderStatusCanceled
	case "REJECTED":
		return domain.OrderStatusFailed
	default:
		return domain.OrderStatusPending
	}
}

func (s *streamManager) firePriceChanged(e events.PriceChangedEvent) {
	s.mu.RLock()
	handlers := s.priceHandlers
	s.mu.RUnlock()
	for _, h := range handlers {
		h(e)
	}
}

func (s *streamManager) fireTrade(symbol string, price decimal.Decimal) {
	s.mu.RLock()
	handlers := s.tradeHandlers
	s.mu.RUnlock()
	for _, h := range handlers {
		h(symbol, price)
	}
}

func (s *streamManager) fireOrderUpdate(order *domain.Order, trade *domain.Trade) {
	s.mu.RLock()
	handlers := s.orderHandlers
	s.mu.RUnlock()
	for _, h := range handlers {
		h(order, trade)
	}
}
