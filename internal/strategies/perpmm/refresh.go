package perpmm

import (
	"context"
	"sort"
	"time"

	"github.com/betbot/perpmaker/internal/domain"
	"github.com/shopspring/decimal"
)

// refreshOrders 每 tick 最多执行一次的撤单决策。
// cancelTimestamp 未到不动作；容差开启且新旧报价足够接近时推迟撤单，
// 否则撤掉本市场全部普通挂单（退出单不在此处理）。
// 返回是否推迟了撤单（推迟时只需要重整定时器）。
func (s *Strategy) refreshOrders(ctx context.Context, now time.Time, proposal *Proposal) bool {
	if now.Before(s.cancelTimestamp) {
		return false
	}

	active := s.activeNonExitOrders()
	if len(active) == 0 {
		return false
	}

	if proposal != nil && s.p.refreshTolerance.Sign() >= 0 && s.withinTolerance(proposal, active) {
		log.Debugf("🔄 orders within tolerance %s, deferring cancellation", s.p.refreshTolerance)
		return true
	}

	for _, order := range active {
		if err := s.TradingService.CancelOrder(ctx, s.Symbol, order.ClientOrderID); err != nil {
			log.Warnf("⚠️ cancel %s: %v", order.ClientOrderID, err)
		}
	}
	return false
}

// withinTolerance 两侧同时满足才成立：数量一致，且排序后逐对
// 相对价差都不超过容差。
func (s *Strategy) withinTolerance(proposal *Proposal, active []*domain.Order) bool {
	var restingBuys, restingSells []decimal.Decimal
	for _, o := range active {
		if o.IsBuy() {
			restingBuys = append(restingBuys, o.Price)
		} else {
			restingSells = append(restingSells, o.Price)
		}
	}
	sortPrices(restingBuys)
	sortPrices(restingSells)

	return pairwiseWithin(restingBuys, proposal.BuyPrices(), s.p.refreshTolerance) &&
		pairwiseWithin(restingSells, proposal.SellPrices(), s.p.refreshTolerance)
}

func pairwiseWithin(current, proposed []decimal.Decimal, tolerance decimal.Decimal) bool {
	if len(current) != len(proposed) {
		return false
	}
	for i := range current {
		if current[i].Sign() <= 0 {
			return false
		}
		deviation := proposed[i].Sub(current[i]).Abs().Div(current[i])
		if deviation.GreaterThan(tolerance) {
			return false
		}
	}
	return true
}

func sortPrices(prices []decimal.Decimal) {
	sort.Slice(prices, func(i, j int) bool { return prices[i].LessThan(prices[j]) })
}

// armTimers 重整下一周期定时器：
// 创建时间已到则推到 now+refresh；撤单时间已到则推到
// min(新创建时间, now+refresh)，保证撤单永远不晚于下次挂单。
func (s *Strategy) armTimers(now time.Time) {
	next := now.Add(s.OrderRefreshTime.Duration)
	if !s.createTimestamp.After(now) {
		s.createTimestamp = next
	}
	if !s.cancelTimestamp.After(now) {
		s.cancelTimestamp = minTime(s.createTimestamp, next)
	}
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
