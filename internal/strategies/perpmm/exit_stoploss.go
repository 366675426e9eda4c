package perpmm

import (
	"github.com/betbot/perpmaker/internal/domain"
)

// stopLoss 止损：无条件运行，不依赖移动止损是否激活。
// 多头在卖一价跌破 entry × (1 − stopLossSpread) 时按当前卖一价全仓平掉，
// 空头对称。比止损价更优的旧退出单（等不到成交的止盈单）先撤。
func (s *Strategy) stopLoss(positions []*domain.Position, active []*domain.Order) exitDelta {
	var delta exitDelta

	for _, p := range positions {
		if !p.IsOpen() {
			continue
		}

		size := s.market.QuantizeAmount(p.AbsAmount())
		if !size.IsPositive() {
			continue
		}

		if p.IsLong() {
			topAsk := s.TradingService.GetPrice(s.Symbol, true)
			stopPrice := p.EntryPrice.Mul(one.Sub(s.p.stopLossSpread))
			if !topAsk.IsPositive() || topAsk.GreaterThan(stopPrice) {
				continue
			}
			price := s.market.QuantizePrice(topAsk)

			// 挂得比止损价更高的退出单不会成交了，先撤掉
			for _, o := range active {
				if s.isExitOrder(o.ClientOrderID) && !o.IsBuy() && o.Price.GreaterThan(price) {
					delta.cancels = append(delta.cancels, o)
				}
			}
			if s.exitOrderExistsAt(active, price) || s.closeCooldownActive() {
				continue
			}
			log.Warnf("🛑 stop loss (long): entry %s, ask %s <= stop %s, closing %s@%s",
				p.EntryPrice, topAsk, stopPrice, size, price)
			delta.closes = append(delta.closes, exitOrderRequest{
				side:         p.CloseSide(),
				price:        price,
				size:         size,
				positionSide: s.closePositionSide(p),
				reason:       exitReasonStopLoss,
			})
		} else {
			topBid := s.TradingService.GetPrice(s.Symbol, false)
			stopPrice := p.EntryPrice.Mul(one.Add(s.p.stopLossSpread))
			if !topBid.IsPositive() || topBid.LessThan(stopPrice) {
				continue
			}
			price := s.market.QuantizePrice(topBid)

			for _, o := range active {
				if s.isExitOrder(o.ClientOrderID) && o.IsBuy() && o.Price.LessThan(price) {
					delta.cancels = append(delta.cancels, o)
				}
			}
			if s.exitOrderExistsAt(active, price) || s.closeCooldownActive() {
				continue
			}
			log.Warnf("🛑 stop loss (short): entry %s, bid %s >= stop %s, closing %s@%s",
				p.EntryPrice, topBid, stopPrice, size, price)
			delta.closes = append(delta.closes, exitOrderRequest{
				side:         p.CloseSide(),
				price:        price,
				size:         size,
				positionSide: s.closePositionSide(p),
				reason:       exitReasonStopLoss,
			})
		}
	}
	return delta
}
