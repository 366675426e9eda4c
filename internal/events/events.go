package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceChangedEvent 盘口价格变化事件（来自行情流）
type PriceChangedEvent struct {
	Symbol    string
	BestBid   decimal.Decimal
	BestAsk   decimal.Decimal
	Timestamp time.Time
}
