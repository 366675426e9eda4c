package perpmm

import (
	"github.com/betbot/perpmaker/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	exitReasonTakeProfit   = "take_profit"
	exitReasonTrailingStop = "trailing_stop"
	exitReasonStopLoss     = "stop_loss"
)

// exitOrderRequest 一张待下的平仓单
type exitOrderRequest struct {
	side         domain.Side
	price        decimal.Decimal
	size         decimal.Decimal
	positionSide domain.PositionSide
	reason       string
}

// exitDelta 退出算法的输出：要撤的单 + 要下的平仓单。
// 算法只读快照、返回增量，不直接改挂单集合。
type exitDelta struct {
	cancels []*domain.Order
	closes  []exitOrderRequest
}

func (d *exitDelta) empty() bool {
	return len(d.cancels) == 0 && len(d.closes) == 0
}

// onewayGuard ONEWAY 模式防护：
// 多于一个仓位是交易所侧不变式被破坏，报错并只处理第一个；
// 同时撤掉会提前平掉该仓位的普通挂单（多头的卖单、空头的买单）。
func (s *Strategy) onewayGuard(positions []*domain.Position, active []*domain.Order, delta *exitDelta) []*domain.Position {
	if domain.PositionMode(s.PositionMode) != domain.PositionModeOneway {
		return positions
	}
	if len(positions) > 1 {
		log.Errorf("❌ ONEWAY mode violated: %d open positions on %s, managing only the first", len(positions), s.Symbol)
		positions = positions[:1]
	}
	if len(positions) == 0 {
		return positions
	}

	p := positions[0]
	for _, o := range active {
		if s.isExitOrder(o.ClientOrderID) {
			continue
		}
		if (p.IsLong() && !o.IsBuy()) || (p.IsShort() && o.IsBuy()) {
			delta.cancels = append(delta.cancels, o)
		}
	}
	return positions
}

// closePositionSide 平仓单在 HEDGE 模式下要路由到对应的仓位方向
func (s *Strategy) closePositionSide(p *domain.Position) domain.PositionSide {
	if domain.PositionMode(s.PositionMode) == domain.PositionModeHedge {
		if p.IsLong() {
			return domain.PositionSideLong
		}
		return domain.PositionSideShort
	}
	return domain.PositionSideBoth
}

func (s *Strategy) isExitOrder(clientOrderID string) bool {
	_, ok := s.ExitOrders[clientOrderID]
	return ok
}

// closeCooldownActive 市价平仓冷却：仅对 MARKET 平仓单生效
func (s *Strategy) closeCooldownActive() bool {
	if domain.OrderType(s.ClosePositionOrderType) != domain.OrderTypeMarket {
		return false
	}
	return s.now().Before(s.marketCloseTimestamp)
}
