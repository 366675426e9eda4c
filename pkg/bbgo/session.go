package bbgo

import (
	"context"
	"sync"

	"github.com/betbot/perpmaker/internal/exchange"
	"github.com/sirupsen/logrus"
)

var sessionLog = logrus.WithField("component", "session")

// Subscription 订阅信息
type Subscription struct {
	Channel string
	Symbol  string
	Options map[string]interface{}
}

// ExchangeSession 交易所会话，封装连接器与 tick 调度器。
// 策略在 Subscribe 阶段声明需要的频道，Connect 时统一建立连接。
type ExchangeSession struct {
	Name   string
	Symbol string

	connector exchange.Connector
	scheduler *TickScheduler

	subscriptions   []Subscription
	subscriptionsMu sync.RWMutex
}

func NewExchangeSession(name, symbol string, connector exchange.Connector, scheduler *TickScheduler) *ExchangeSession {
	return &ExchangeSession{
		Name:      name,
		Symbol:    symbol,
		connector: connector,
		scheduler: scheduler,
	}
}

// Subscribe 登记一个订阅（在 Connect 之前调用）
func (s *ExchangeSession) Subscribe(channel, symbol string, options map[string]interface{}) {
	s.subscriptionsMu.Lock()
	defer s.subscriptionsMu.Unlock()
	s.subscriptions = append(s.subscriptions, Subscription{
		Channel: channel,
		Symbol:  symbol,
		Options: options,
	})
	sessionLog.Debugf("subscription added: %s %s", channel, symbol)
}

// Subscriptions 当前登记的订阅快照
func (s *ExchangeSession) Subscriptions() []Subscription {
	s.subscriptionsMu.RLock()
	defer s.subscriptionsMu.RUnlock()
	out := make([]Subscription, len(s.subscriptions))
	copy(out, s.subscriptions)
	return out
}

// Connector 底层连接器
func (s *ExchangeSession) Connector() exchange.Connector { return s.connector }

// Scheduler 会话关联的 tick 调度器
func (s *ExchangeSession) Scheduler() *TickScheduler { return s.scheduler }

// Connect 建立行情与用户数据流
func (s *ExchangeSession) Connect(ctx context.Context) error {
	sessionLog.Infof("🔄 connecting session %s (%s)", s.Name, s.Symbol)
	if err := s.connector.Connect(ctx, s.Symbol); err != nil {
		return err
	}
	sessionLog.Infof("✅ session %s connected", s.Name)
	return nil
}

// Close 断开连接
func (s *ExchangeSession) Close() error {
	return s.connector.Close()
}
