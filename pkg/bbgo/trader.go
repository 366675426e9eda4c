package bbgo

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/betbot/perpmaker/pkg/persistence"
	"github.com/betbot/perpmaker/pkg/shutdown"
)

var traderLog = logrus.WithField("component", "trader")

// StrategyID 策略ID接口（BBGO风格）
// 所有策略必须实现此接口
type StrategyID interface {
	ID() string
}

// SingleExchangeStrategy 单交易所策略接口（BBGO风格）
// Run 在连接建立后调用，策略在这里向调度器注册 tick 回调
type SingleExchangeStrategy interface {
	StrategyID
	Run(ctx context.Context, orderExecutor OrderExecutor, session *ExchangeSession) error
}

// StrategyInitializer 策略初始化接口（可选）
// 在 Subscribe 之前调用
type StrategyInitializer interface {
	Initialize() error
}

// StrategyDefaulter 策略默认值接口（可选）
// 在 Validate 之前调用
type StrategyDefaulter interface {
	Defaults() error
}

// StrategyValidator 策略验证接口（可选）
type StrategyValidator interface {
	Validate() error
}

// StrategyShutdown 策略关闭接口（可选）
type StrategyShutdown interface {
	Shutdown(ctx context.Context, wg *sync.WaitGroup)
}

// ExchangeSessionSubscriber 会话订阅接口（可选）
// Subscribe 在连接建立前被调用，用于登记订阅
type ExchangeSessionSubscriber interface {
	Subscribe(session *ExchangeSession)
}

// Trader 策略管理器，管理策略生命周期
type Trader struct {
	environment *Environment

	strategies   []interface{}
	strategiesMu sync.RWMutex

	shutdownManager *shutdown.Manager
}

func NewTrader(environ *Environment) *Trader {
	return &Trader{
		environment:     environ,
		strategies:      make([]interface{}, 0),
		shutdownManager: environ.ShutdownManager(),
	}
}

// AddStrategy 添加策略
func (t *Trader) AddStrategy(strategy interface{}) {
	t.strategiesMu.Lock()
	defer t.strategiesMu.Unlock()
	t.strategies = append(t.strategies, strategy)
}

// Strategies 获取所有策略
func (t *Trader) Strategies() []interface{} {
	t.strategiesMu.RLock()
	defer t.strategiesMu.RUnlock()

	result := make([]interface{}, len(t.strategies))
	copy(result, t.strategies)
	return result
}

func strategyID(s interface{}) string {
	if sid, ok := s.(StrategyID); ok {
		return sid.ID()
	}
	return "unknown"
}

// Initialize 初始化所有策略：Defaults -> Validate -> Initialize
func (t *Trader) Initialize(ctx context.Context) error {
	for _, s := range t.Strategies() {
		id := strategyID(s)

		if defaulter, ok := s.(StrategyDefaulter); ok {
			if err := defaulter.Defaults(); err != nil {
				return fmt.Errorf("strategy %s defaults error: %w", id, err)
			}
		}
		if validator, ok := s.(StrategyValidator); ok {
			if err := validator.Validate(); err != nil {
				return fmt.Errorf("strategy %s validation error: %w", id, err)
			}
		}
		if initializer, ok := s.(StrategyInitializer); ok {
			if err := initializer.Initialize(); err != nil {
				return fmt.Errorf("strategy %s initialization error: %w", id, err)
			}
		}
	}
	return nil
}

// InjectServices 注入服务到策略
func (t *Trader) InjectServices(ctx context.Context) error {
	for _, s := range t.Strategies() {
		if err := t.injectServicesIntoStrategy(ctx, s); err != nil {
			return fmt.Errorf("failed to inject services into strategy %s: %w", strategyID(s), err)
		}
	}
	return nil
}

func (t *Trader) injectServicesIntoStrategy(_ context.Context, strategy interface{}) error {
	strategyValue := reflect.ValueOf(strategy)
	if strategyValue.Kind() == reflect.Ptr {
		strategyValue = strategyValue.Elem()
	}
	if strategyValue.Kind() != reflect.Struct {
		return fmt.Errorf("strategy must be a struct or pointer to struct")
	}

	id := strategyID(strategy)

	if t.environment.TradingService != nil {
		if err := t.injectField(strategy, "TradingService", t.environment.TradingService); err != nil {
			traderLog.Debugf("failed to inject TradingService into %s: %v", id, err)
		}
	}
	return nil
}

// injectField 按字段名注入；接口字段做实现匹配
func (t *Trader) injectField(obj interface{}, fieldName string, value interface{}) error {
	objValue := reflect.ValueOf(obj)
	if objValue.Kind() == reflect.Ptr {
		objValue = objValue.Elem()
	}

	field := objValue.FieldByName(fieldName)
	if !field.IsValid() {
		return fmt.Errorf("field %s not found", fieldName)
	}
	if !field.CanSet() {
		return fmt.Errorf("field %s cannot be set", fieldName)
	}

	valueValue := reflect.ValueOf(value)
	if field.Type() != valueValue.Type() {
		if field.Kind() == reflect.Interface && valueValue.Type().Implements(field.Type()) {
			field.Set(valueValue)
			return nil
		}
		return fmt.Errorf("type mismatch: field %s is %s, value is %s", fieldName, field.Type(), valueValue.Type())
	}

	field.Set(valueValue)
	return nil
}

// Subscribe 让策略订阅会话事件
func (t *Trader) Subscribe(ctx context.Context, session *ExchangeSession) error {
	for _, s := range t.Strategies() {
		subscriber, ok := s.(ExchangeSessionSubscriber)
		if !ok {
			traderLog.Warnf("⚠️ strategy %s does not implement ExchangeSessionSubscriber", strategyID(s))
			continue
		}
		subscriber.Subscribe(session)
		traderLog.Infof("✅ strategy %s subscribed to session %s", strategyID(s), session.Name)
	}
	return nil
}

// Run 运行所有策略
func (t *Trader) Run(ctx context.Context) error {
	var orderExecutor OrderExecutor
	if t.environment.TradingService != nil {
		orderExecutor = NewTradingServiceOrderExecutor(t.environment.TradingService)
	}

	var session *ExchangeSession
	for _, s := range t.environment.Sessions() {
		session = s
		break
	}

	for _, s := range t.Strategies() {
		if sd, ok := s.(StrategyShutdown); ok {
			t.shutdownManager.OnShutdown(func(ctx context.Context, wg *sync.WaitGroup) {
				sd.Shutdown(ctx, wg)
			})
		}

		singleStrategy, ok := s.(SingleExchangeStrategy)
		if !ok {
			continue
		}
		if session == nil {
			traderLog.Warnf("strategy %s needs a session but none is available", singleStrategy.ID())
			continue
		}
		if orderExecutor == nil {
			traderLog.Warnf("strategy %s needs an order executor but no trading service is set", singleStrategy.ID())
			continue
		}
		if err := singleStrategy.Run(ctx, orderExecutor, session); err != nil {
			return fmt.Errorf("strategy %s run failed: %w", singleStrategy.ID(), err)
		}
		traderLog.Infof("✅ strategy %s started", singleStrategy.ID())
	}

	return nil
}

// LoadState 从持久化服务恢复策略状态
func (t *Trader) LoadState(ctx context.Context) error {
	if t.environment.PersistenceService == nil {
		return nil
	}

	for _, s := range t.Strategies() {
		id := strategyID(s)
		if err := persistence.LoadFields(s, id, t.environment.PersistenceService); err != nil {
			traderLog.Warnf("⚠️ load strategy %s state: %v", id, err)
		}
	}
	return nil
}

// SaveState 保存策略状态
func (t *Trader) SaveState(ctx context.Context) error {
	if t.environment.PersistenceService == nil {
		return nil
	}

	for _, s := range t.Strategies() {
		id := strategyID(s)
		if err := persistence.SaveFields(s, id, t.environment.PersistenceService); err != nil {
			traderLog.Warnf("⚠️ save strategy %s state: %v", id, err)
		}
	}
	return nil
}

// Shutdown 优雅关闭
func (t *Trader) Shutdown(ctx context.Context) {
	if t.shutdownManager != nil {
		t.shutdownManager.Shutdown(ctx)
	}
}
