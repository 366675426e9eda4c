package domain

import (
	"github.com/shopspring/decimal"
)

// PositionMode 仓位模式
// ONEWAY：同一交易对最多一个净仓位；HEDGE：多空仓位可以同时存在
type PositionMode string

const (
	PositionModeOneway PositionMode = "ONEWAY"
	PositionModeHedge  PositionMode = "HEDGE"
)

func (m PositionMode) Valid() bool {
	return m == PositionModeOneway || m == PositionModeHedge
}

// PositionSide 仓位方向
type PositionSide string

const (
	PositionSideLong  PositionSide = "LONG"
	PositionSideShort PositionSide = "SHORT"
	PositionSideBoth  PositionSide = "BOTH" // ONEWAY 模式下交易所返回 BOTH
)

// Position 仓位快照（外部所有，策略只读）
// Amount 带符号：>0 多头，<0 空头。平仓通过下单请求完成，
// 交易所异步应用仓位变化，策略不直接修改该结构。
type Position struct {
	Symbol        string
	Side          PositionSide
	EntryPrice    decimal.Decimal
	Amount        decimal.Decimal // signed
	Leverage      int
	UnrealizedPnL decimal.Decimal
}

func (p *Position) IsLong() bool  { return p != nil && p.Amount.IsPositive() }
func (p *Position) IsShort() bool { return p != nil && p.Amount.IsNegative() }

// IsOpen 数量为零的仓位视为已平
func (p *Position) IsOpen() bool { return p != nil && !p.Amount.IsZero() }

// AbsAmount 仓位绝对数量
func (p *Position) AbsAmount() decimal.Decimal {
	if p == nil {
		return decimal.Zero
	}
	return p.Amount.Abs()
}

// CloseSide 平掉该仓位所需的订单方向
func (p *Position) CloseSide() Side {
	if p.IsLong() {
		return SideSell
	}
	return SideBuy
}
