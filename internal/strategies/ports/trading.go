package ports

import (
	"context"
	"time"

	"github.com/betbot/perpmaker/internal/domain"
	"github.com/shopspring/decimal"
)

// Shared, small interfaces for strategies to depend on (avoid per-strategy duplication).
// Strategies read market data and account state as synchronous snapshots; order
// placement/cancellation is fire-and-forget from the strategy's point of view.

// ConnectivityStatus 连接状态
type ConnectivityStatus int

const (
	ConnectivityUnknown ConnectivityStatus = iota
	ConnectivityConnected
	ConnectivityDisconnected
)

type ReadinessReporter interface {
	// Ready 市场元数据与初始快照是否就绪
	Ready() bool
	// Connectivity 当前行情/交易链路状态
	Connectivity() ConnectivityStatus
}

type MarketGetter interface {
	Market(symbol string) (*domain.Market, error)
}

type PriceGetter interface {
	// GetPrice 返回买一/卖一价。isBuy=true 表示“以买方视角成交”的价格（best ask），
	// isBuy=false 表示 best bid。未知时返回零值。
	GetPrice(symbol string, isBuy bool) decimal.Decimal
	// GetPriceForVolume 按给定成交量穿透盘口后的预计成交价；没有深度数据时退化为 GetPrice。
	GetPriceForVolume(symbol string, isBuy bool, volume decimal.Decimal) decimal.Decimal
	// MidPrice (bid+ask)/2；单边缺失时返回零值
	MidPrice(symbol string) decimal.Decimal
	// LastTradePrice 最近一笔市场成交价
	LastTradePrice(symbol string) decimal.Decimal
}

type FeeGetter interface {
	// GetFee 返回手续费率（小数，0.0004 = 4bp）
	GetFee(symbol string, orderType domain.OrderType, side domain.Side, size, price decimal.Decimal) decimal.Decimal
}

type FundingRateGetter interface {
	GetFundingRate(symbol string) decimal.Decimal
}

type BalanceGetter interface {
	// GetAvailableBalance 可用余额快照（保证金资产）
	GetAvailableBalance(asset string) decimal.Decimal
}

type MarginControl interface {
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	SetPositionMode(ctx context.Context, mode domain.PositionMode) error
}

type OrderPlacer interface {
	PlaceOrder(ctx context.Context, order *domain.Order) (*domain.Order, error)
}

type OrderCanceler interface {
	CancelOrder(ctx context.Context, symbol, clientOrderID string) error
}

type ActiveOrdersGetter interface {
	// ActiveOrders 本策略在该市场上的全部挂单（按 clientOrderID 跟踪）
	ActiveOrders(symbol string) []*domain.Order
}

type OpenPositionsGetter interface {
	OpenPositions(symbol string) []*domain.Position
}

// OrderUpdateHandler 订单状态更新回调。由事件分发层在 tick 之间调用，
// 回调内只允许调整调度状态（时间戳等），不允许直接下单。
type OrderUpdateHandler interface {
	OnOrderUpdate(ctx context.Context, order *domain.Order) error
}

type OrderUpdateSubscriber interface {
	OnOrderUpdate(handler OrderUpdateHandler)
}

// PriceType 参考价类型
type PriceType string

const (
	PriceTypeMid          PriceType = "mid"
	PriceTypeBestBid      PriceType = "bestBid"
	PriceTypeBestAsk      PriceType = "bestAsk"
	PriceTypeLastTrade    PriceType = "lastTrade"
	PriceTypeLastOwnTrade PriceType = "lastOwnTrade"
	PriceTypeCustom       PriceType = "custom"
)

func (t PriceType) Valid() bool {
	switch t {
	case PriceTypeMid, PriceTypeBestBid, PriceTypeBestAsk, PriceTypeLastTrade, PriceTypeLastOwnTrade, PriceTypeCustom:
		return true
	}
	return false
}

// PriceDelegate 外部参考价源（可选）。Ready 为 false 或返回零值时，
// 调用方应回退到交易所 mid price。
type PriceDelegate interface {
	GetPriceByType(t PriceType) decimal.Decimal
	MidPrice() decimal.Decimal
	Ready() bool
}

// Notifier 面向操作者的单向通知（不参与核心决策）
type Notifier interface {
	Notify(format string, args ...interface{})
}

// Clock 便于测试注入时间
type Clock interface {
	Now() time.Time
}

// Composite convenience interfaces.

// MakerTradingService 做市策略依赖的完整交易服务能力
type MakerTradingService interface {
	ReadinessReporter
	MarketGetter
	PriceGetter
	FeeGetter
	FundingRateGetter
	BalanceGetter
	MarginControl
	OrderPlacer
	OrderCanceler
	ActiveOrdersGetter
	OpenPositionsGetter
	OrderUpdateSubscriber
}
