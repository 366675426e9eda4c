package perpmm

import (
	"github.com/betbot/perpmaker/internal/domain"
	"github.com/betbot/perpmaker/internal/metrics"
	"github.com/shopspring/decimal"
)

// applyPipeline 按固定顺序执行全部变换阶段。
// 每个阶段原地收窄同一个 Proposal。
func (s *Strategy) applyPipeline(ref decimal.Decimal, proposal *Proposal) {
	s.applyPriceBand(ref, proposal)
	metrics.ProposalOrders.WithLabelValues("price_band").
		Add(float64(len(proposal.Buys) + len(proposal.Sells)))

	s.applyTransactionCosts(proposal)
	metrics.ProposalOrders.WithLabelValues("transaction_cost").
		Add(float64(len(proposal.Buys) + len(proposal.Sells)))

	s.applyBudgetConstraint(proposal)
	metrics.ProposalOrders.WithLabelValues("budget").
		Add(float64(len(proposal.Buys) + len(proposal.Sells)))

	if !s.TakeIfCrossed {
		s.filterTakerOrders(proposal)
	}
	metrics.ProposalOrders.WithLabelValues("taker_filter").
		Add(float64(len(proposal.Buys) + len(proposal.Sells)))
}

// applyPriceBand 价格带裁剪：
// 参考价触到天花板时撤掉全部买单（不追高建多），跌破地板时撤掉全部卖单。
func (s *Strategy) applyPriceBand(ref decimal.Decimal, proposal *Proposal) {
	if s.p.priceCeiling.IsPositive() && ref.GreaterThanOrEqual(s.p.priceCeiling) {
		proposal.Buys = nil
	}
	if s.p.priceFloor.IsPositive() && ref.LessThanOrEqual(s.p.priceFloor) {
		proposal.Sells = nil
	}
}

// applyTransactionCosts 费率转嫁：买价下移、卖价上移各自的挂单费率，再重新量化
func (s *Strategy) applyTransactionCosts(proposal *Proposal) {
	if s.AddTransactionCosts == nil || !*s.AddTransactionCosts {
		return
	}
	for i := range proposal.Buys {
		e := &proposal.Buys[i]
		fee := s.TradingService.GetFee(s.Symbol, domain.OrderTypeLimit, domain.SideBuy, e.Size, e.Price)
		e.Price = s.market.QuantizePrice(e.Price.Mul(one.Sub(fee)))
	}
	for i := range proposal.Sells {
		e := &proposal.Sells[i]
		fee := s.TradingService.GetFee(s.Symbol, domain.OrderTypeLimit, domain.SideSell, e.Size, e.Price)
		e.Price = s.market.QuantizePrice(e.Price.Mul(one.Add(fee)))
	}
	proposal.Prune()
}

// filterTakerOrders 吃单过滤：买价 >= 对手卖一或卖价 <= 对手买一的挂单会立即成交，丢弃
func (s *Strategy) filterTakerOrders(proposal *Proposal) {
	topAsk := s.TradingService.GetPrice(s.Symbol, true)
	topBid := s.TradingService.GetPrice(s.Symbol, false)

	if topAsk.IsPositive() {
		kept := proposal.Buys[:0]
		for _, e := range proposal.Buys {
			if e.Price.LessThan(topAsk) {
				kept = append(kept, e)
			}
		}
		proposal.Buys = kept
	}
	if topBid.IsPositive() {
		kept := proposal.Sells[:0]
		for _, e := range proposal.Sells {
			if e.Price.GreaterThan(topBid) {
				kept = append(kept, e)
			}
		}
		proposal.Sells = kept
	}
}
