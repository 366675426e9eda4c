package perpmm

import (
	"github.com/betbot/perpmaker/internal/strategies/ports"
	"github.com/shopspring/decimal"
)

// referencePrice 解析报价阶梯的参考价。
// custom 类型走外部 delegate；其余从交易服务快照取。
// 主源不可用（零值）时回退到 mid price；mid 也不可用则本 tick 放弃报价。
func (s *Strategy) referencePrice() (decimal.Decimal, bool) {
	priceType := ports.PriceType(s.PriceType)

	var price decimal.Decimal
	switch priceType {
	case ports.PriceTypeCustom:
		if s.PriceDelegate == nil || !s.PriceDelegate.Ready() {
			break
		}
		price = s.PriceDelegate.GetPriceByType(priceType)
		if price.Sign() <= 0 {
			price = s.PriceDelegate.MidPrice()
		}
	case ports.PriceTypeBestBid:
		price = s.TradingService.GetPrice(s.Symbol, false)
	case ports.PriceTypeBestAsk:
		price = s.TradingService.GetPrice(s.Symbol, true)
	case ports.PriceTypeLastTrade:
		price = s.TradingService.LastTradePrice(s.Symbol)
	case ports.PriceTypeLastOwnTrade:
		price = s.lastOwnTradePrice
	default:
		price = s.TradingService.MidPrice(s.Symbol)
	}

	if price.Sign() <= 0 {
		price = s.TradingService.MidPrice(s.Symbol)
	}
	if price.Sign() <= 0 {
		return decimal.Zero, false
	}
	return price, true
}
