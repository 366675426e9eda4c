package perpmm

import (
	"strings"

	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

// buildProposal 构造初始候选挂单。
// 有 orderOverride 时按表构造，否则按点差阶梯展开：
//
//	buy[i]  = ref × (1 − bidSpread − i × levelSpread)
//	sell[i] = ref × (1 + askSpread + i × levelSpread)
//	size[i] = orderAmount + i × levelAmount
func (s *Strategy) buildProposal(ref decimal.Decimal) *Proposal {
	if len(s.OrderOverride) > 0 {
		return s.buildOverrideProposal(ref)
	}

	proposal := &Proposal{}
	for i := 0; i < s.OrderLevels; i++ {
		level := decimal.NewFromInt(int64(i))
		size := s.market.QuantizeAmount(s.p.orderAmount.Add(level.Mul(s.p.levelAmount)))
		if !size.IsPositive() {
			continue
		}

		buyPrice := s.market.QuantizePrice(
			ref.Mul(one.Sub(s.p.bidSpread).Sub(level.Mul(s.p.levelSpread))))
		if buyPrice.IsPositive() {
			proposal.Buys = append(proposal.Buys, PriceSize{Price: buyPrice, Size: size})
		}

		sellPrice := s.market.QuantizePrice(
			ref.Mul(one.Add(s.p.askSpread).Add(level.Mul(s.p.levelSpread))))
		if sellPrice.IsPositive() {
			proposal.Sells = append(proposal.Sells, PriceSize{Price: sellPrice, Size: size})
		}
	}
	return proposal
}

// buildOverrideProposal 按显式挂单表构造。
// 条目给了绝对价格用绝对价格；否则按 spreadPct 相对参考价偏移。
func (s *Strategy) buildOverrideProposal(ref decimal.Decimal) *Proposal {
	proposal := &Proposal{}
	for _, entry := range s.OrderOverride {
		isBuy := strings.EqualFold(strings.TrimSpace(entry.Side), "buy")

		var price decimal.Decimal
		if entry.Price > 0 {
			price = decimal.NewFromFloat(entry.Price)
		} else {
			offset := decimal.NewFromFloat(entry.SpreadPct)
			if isBuy {
				price = ref.Mul(one.Sub(offset))
			} else {
				price = ref.Mul(one.Add(offset))
			}
		}
		price = s.market.QuantizePrice(price)
		size := s.market.QuantizeAmount(decimal.NewFromFloat(entry.Amount))
		if !price.IsPositive() || !size.IsPositive() {
			continue
		}

		if isBuy {
			proposal.Buys = append(proposal.Buys, PriceSize{Price: price, Size: size})
		} else {
			proposal.Sells = append(proposal.Sells, PriceSize{Price: price, Size: size})
		}
	}
	return proposal
}
