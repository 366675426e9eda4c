package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade 成交记录（来自 user data stream 或 REST 对账）
type Trade struct {
	TradeID       string
	ClientOrderID string
	Symbol        string
	Side          Side
	Price         decimal.Decimal
	Quantity      decimal.Decimal
	Fee           decimal.Decimal // 手续费（计价资产）
	FeeAsset      string
	IsMaker       bool
	Timestamp     time.Time
}

// Notional 成交名义价值
func (t *Trade) Notional() decimal.Decimal {
	if t == nil {
		return decimal.Zero
	}
	return t.Price.Mul(t.Quantity)
}
