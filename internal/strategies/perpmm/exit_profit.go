package perpmm

import (
	"github.com/betbot/perpmaker/internal/domain"
	"github.com/shopspring/decimal"
)

// profitTaking 止盈：价格越过入场价后在 entry × (1 ± profitSpread)
// 挂全仓平仓单。价格或数量已经过期的旧退出单先撤掉。
func (s *Strategy) profitTaking(positions []*domain.Position, active []*domain.Order) exitDelta {
	var delta exitDelta
	positions = s.onewayGuard(positions, active, &delta)

	topAsk := s.TradingService.GetPrice(s.Symbol, true)
	topBid := s.TradingService.GetPrice(s.Symbol, false)

	for _, p := range positions {
		if !p.IsOpen() {
			continue
		}

		// 只有对手价已经向有利方向越过入场价才布置止盈
		favorable := (p.IsLong() && topAsk.GreaterThan(p.EntryPrice)) ||
			(p.IsShort() && topBid.LessThan(p.EntryPrice))
		if !favorable {
			continue
		}

		var target decimal.Decimal
		if p.IsLong() {
			target = p.EntryPrice.Mul(one.Add(s.p.longProfitSpread))
		} else {
			target = p.EntryPrice.Mul(one.Sub(s.p.shortProfitSpread))
		}
		target = s.market.QuantizePrice(target)
		size := s.market.QuantizeAmount(p.AbsAmount())
		if !target.IsPositive() || !size.IsPositive() {
			continue
		}

		// 旧退出单价格/数量不符的先撤
		targetExists := false
		for _, o := range active {
			if o.Price.Equal(target) {
				targetExists = true
			}
			if !s.isExitOrder(o.ClientOrderID) {
				continue
			}
			closingSide := (p.IsLong() && !o.IsBuy()) || (p.IsShort() && o.IsBuy())
			if closingSide && (!o.Price.Equal(target) || !o.Quantity.Equal(size)) {
				delta.cancels = append(delta.cancels, o)
			}
		}
		if targetExists {
			continue
		}

		req := exitOrderRequest{
			side:         p.CloseSide(),
			price:        target,
			size:         size,
			positionSide: s.closePositionSide(p),
			reason:       exitReasonTakeProfit,
		}
		log.Infof("🎯 take profit armed: %s %s@%s (entry %s)", req.side, size, target, p.EntryPrice)
		delta.closes = append(delta.closes, req)
	}
	return delta
}
