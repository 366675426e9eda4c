package perpmm

import (
	"github.com/betbot/perpmaker/internal/domain"
	"github.com/betbot/perpmaker/internal/metrics"
	"github.com/shopspring/decimal"
)

// applyBudgetConstraint 资金准入控制。
//
// 每张单的保证金占用 = 名义价值/杠杆 + 名义价值×费率 + 资金费预留
// （资金费只在费率方向对该侧不利时预留）。买卖两侧按阶梯顺序
// 从同一个报价资产余额累加器里扣减：USDⓈ 本位合约多空都占用
// 报价资产保证金，不存在按基础资产单独记的额度。
// 单向贪心，不做盈利性重排：准入顺序即阶梯档位顺序。
func (s *Strategy) applyBudgetConstraint(proposal *Proposal) {
	available := s.TradingService.GetAvailableBalance(s.market.QuoteAsset)
	funding := s.TradingService.GetFundingRate(s.Symbol)

	reserved := decimal.Zero
	reserved = s.admitSide(proposal.Buys, domain.SideBuy, available, reserved, funding)
	s.admitSide(proposal.Sells, domain.SideSell, available, reserved, funding)

	proposal.Prune()
}

func (s *Strategy) admitSide(entries []PriceSize, side domain.Side,
	available, reserved, funding decimal.Decimal) decimal.Decimal {

	for i := range entries {
		e := &entries[i]
		required := s.orderReservation(e.Price, e.Size, side, funding)
		if reserved.Add(required).GreaterThan(available) {
			log.Infof("💰 budget rejected %s %s@%s: need %s, reserved %s, available %s",
				side, e.Size, e.Price, required, reserved, available)
			metrics.BudgetRejections.WithLabelValues(string(side)).Inc()
			e.Size = decimal.Zero
			continue
		}
		reserved = reserved.Add(required)
	}
	return reserved
}

// orderReservation 单张订单的报价资产占用
func (s *Strategy) orderReservation(price, size decimal.Decimal, side domain.Side, funding decimal.Decimal) decimal.Decimal {
	notional := price.Mul(size)
	margin := notional.Div(s.p.leverage)

	fee := s.TradingService.GetFee(s.Symbol, domain.OrderTypeLimit, side, size, price)
	feeCost := notional.Mul(fee)

	// 资金费率为正：多头支付；为负：空头支付
	fundingCost := decimal.Zero
	if (side == domain.SideBuy && funding.IsPositive()) ||
		(side == domain.SideSell && funding.IsNegative()) {
		fundingCost = notional.Mul(funding.Abs())
	}

	return margin.Add(feeCost).Add(fundingCost)
}
