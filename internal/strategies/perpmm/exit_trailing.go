package perpmm

import (
	"github.com/betbot/perpmaker/internal/domain"
	"github.com/shopspring/decimal"
)

// trailingStop 移动止损。
//
// 每侧维护一个自开仓以来的最优价极值：多头跟踪卖一价的峰值，
// 空头对称地跟踪买一价的谷值。只有价格先向有利方向走出
// activationSpread 才算激活；激活后价格从极值回撤 callbackRate
// 时按当前可成交价全仓平掉。估算出的离场价必须仍优于入场价，
// 否则视为无效不触发。
func (s *Strategy) trailingStop(positions []*domain.Position, active []*domain.Order) exitDelta {
	var delta exitDelta
	positions = s.onewayGuard(positions, active, &delta)

	for _, p := range positions {
		if !p.IsOpen() {
			continue
		}
		if p.IsLong() {
			s.trailLong(p, active, &delta)
		} else {
			s.trailShort(p, active, &delta)
		}
	}
	return delta
}

func (s *Strategy) trailLong(p *domain.Position, active []*domain.Order, delta *exitDelta) {
	topAsk := s.TradingService.GetPrice(s.Symbol, true)
	if !topAsk.IsPositive() {
		return
	}

	activation := p.EntryPrice.Mul(one.Add(s.p.tsActivation))
	if decimal.Max(activation, s.TSPeakAsk).LessThanOrEqual(topAsk) {
		// 新高：推进峰值
		if !s.TSPeakAsk.Equal(topAsk) {
			log.Debugf("📈 trailing peak ask %s -> %s", s.TSPeakAsk, topAsk)
		}
		s.TSPeakAsk = topAsk
		return
	}
	if !s.TSPeakAsk.IsPositive() {
		return
	}

	estimatedExit := s.TSPeakAsk.Mul(one.Sub(s.p.tsCallback))
	if estimatedExit.LessThanOrEqual(p.EntryPrice) {
		// 回撤价已不优于入场价，放弃本轮触发
		return
	}
	if topAsk.GreaterThan(estimatedExit) {
		return
	}

	size := s.market.QuantizeAmount(p.AbsAmount())
	price := s.market.QuantizePrice(
		s.TradingService.GetPriceForVolume(s.Symbol, false, size))
	if !price.IsPositive() || !size.IsPositive() {
		return
	}
	if s.exitOrderExistsAt(active, price) || s.closeCooldownActive() {
		return
	}

	log.Infof("📉 trailing stop fired (long): peak %s, retraced to %s, closing %s@%s",
		s.TSPeakAsk, topAsk, size, price)
	delta.closes = append(delta.closes, exitOrderRequest{
		side:         p.CloseSide(),
		price:        price,
		size:         size,
		positionSide: s.closePositionSide(p),
		reason:       exitReasonTrailingStop,
	})
}

func (s *Strategy) trailShort(p *domain.Position, active []*domain.Order, delta *exitDelta) {
	topBid := s.TradingService.GetPrice(s.Symbol, false)
	if !topBid.IsPositive() {
		return
	}

	activation := p.EntryPrice.Mul(one.Sub(s.p.tsActivation))
	if s.TSPeakBid.IsPositive() && decimal.Min(activation, s.TSPeakBid).GreaterThanOrEqual(topBid) {
		// 新低：推进谷值
		if !s.TSPeakBid.Equal(topBid) {
			log.Debugf("📉 trailing trough bid %s -> %s", s.TSPeakBid, topBid)
		}
		s.TSPeakBid = topBid
		return
	}
	if !s.TSPeakBid.IsPositive() {
		return
	}

	estimatedExit := s.TSPeakBid.Mul(one.Add(s.p.tsCallback))
	if estimatedExit.GreaterThanOrEqual(p.EntryPrice) {
		return
	}
	if topBid.LessThan(estimatedExit) {
		return
	}

	size := s.market.QuantizeAmount(p.AbsAmount())
	price := s.market.QuantizePrice(
		s.TradingService.GetPriceForVolume(s.Symbol, true, size))
	if !price.IsPositive() || !size.IsPositive() {
		return
	}
	if s.exitOrderExistsAt(active, price) || s.closeCooldownActive() {
		return
	}

	log.Infof("📈 trailing stop fired (short): trough %s, retraced to %s, closing %s@%s",
		s.TSPeakBid, topBid, size, price)
	delta.closes = append(delta.closes, exitOrderRequest{
		side:         p.CloseSide(),
		price:        price,
		size:         size,
		positionSide: s.closePositionSide(p),
		reason:       exitReasonTrailingStop,
	})
}

func (s *Strategy) exitOrderExistsAt(active []*domain.Order, price decimal.Decimal) bool {
	for _, o := range active {
		if o.Price.Equal(price) {
			return true
		}
	}
	return false
}
