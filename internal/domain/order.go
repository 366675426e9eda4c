package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side 订单方向
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite 返回反方向
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType 订单类型
type OrderType string

const (
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"
)

// PositionAction 仓位动作：开仓挂单还是平仓挂单
// 在 HEDGE 模式下交易所需要该字段路由到 LONG/SHORT 仓位
type PositionAction string

const (
	PositionActionOpen  PositionAction = "OPEN"
	PositionActionClose PositionAction = "CLOSE"
)

// OrderStatus 订单状态
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "pending"
	OrderStatusOpen            OrderStatus = "open"
	OrderStatusPartiallyFilled OrderStatus = "partial"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCanceled        OrderStatus = "canceled"
	OrderStatusFailed          OrderStatus = "failed"
)

// Order 订单领域模型
type Order struct {
	ClientOrderID   string          // 本策略生成的幂等 ID（uuid）
	ExchangeOrderID string          // 交易所订单 ID（下单成功后回填）
	Symbol          string          // 所属市场
	Side            Side            // 方向
	Type            OrderType       // 类型（LIMIT/MARKET）
	Price           decimal.Decimal // 限价（MARKET 单为参考价）
	Quantity        decimal.Decimal // 原始数量
	ExecutedQty     decimal.Decimal // 已成交数量
	AvgFillPrice    decimal.Decimal // 平均成交价格
	PositionAction  PositionAction  // OPEN/CLOSE
	PositionSide    PositionSide    // HEDGE 模式下的仓位方向（ONEWAY 为 BOTH）
	Status          OrderStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (o *Order) IsBuy() bool { return o != nil && o.Side == SideBuy }

func (o *Order) IsOpen() bool {
	return o != nil && (o.Status == OrderStatusOpen || o.Status == OrderStatusPartiallyFilled)
}

// IsFinalStatus 最终状态不应被中间状态覆盖
func (o *Order) IsFinalStatus() bool {
	if o == nil {
		return false
	}
	return o.Status == OrderStatusFilled || o.Status == OrderStatusCanceled || o.Status == OrderStatusFailed
}

// RemainingQty 剩余未成交数量
func (o *Order) RemainingQty() decimal.Decimal {
	if o == nil {
		return decimal.Zero
	}
	r := o.Quantity.Sub(o.ExecutedQty)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}
