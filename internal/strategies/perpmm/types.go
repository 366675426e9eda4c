package perpmm

import (
	"sort"

	"github.com/shopspring/decimal"
)

// PriceSize 一条候选挂单（价格 + 数量）。
// 管线阶段允许改写价格或把数量清零（标记删除），其余场景视为不可变。
type PriceSize struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// Proposal 一个 tick 内的候选挂单集合，买卖各一个有序列表。
// 归 tick 所有，从不跨 tick 共享。
type Proposal struct {
	Buys  []PriceSize
	Sells []PriceSize
}

func (p *Proposal) IsEmpty() bool {
	return p == nil || (len(p.Buys) == 0 && len(p.Sells) == 0)
}

// Prune 移除数量或价格非正的条目（预算阶段之后的集合不变式）
func (p *Proposal) Prune() {
	if p == nil {
		return
	}
	p.Buys = pruneEntries(p.Buys)
	p.Sells = pruneEntries(p.Sells)
}

func pruneEntries(entries []PriceSize) []PriceSize {
	out := entries[:0]
	for _, e := range entries {
		if e.Size.IsPositive() && e.Price.IsPositive() {
			out = append(out, e)
		}
	}
	return out
}

// BuyPrices 买单价格升序副本（容差比较用）
func (p *Proposal) BuyPrices() []decimal.Decimal {
	return sortedPrices(p.Buys)
}

// SellPrices 卖单价格升序副本
func (p *Proposal) SellPrices() []decimal.Decimal {
	return sortedPrices(p.Sells)
}

func sortedPrices(entries []PriceSize) []decimal.Decimal {
	prices := make([]decimal.Decimal, 0, len(entries))
	for _, e := range entries {
		prices = append(prices, e.Price)
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i].LessThan(prices[j]) })
	return prices
}
