package services

import (
	"sync"

	"github.com/betbot/perpmaker/internal/domain"
)

// OrderTracker 以 clientOrderID 为键跟踪本策略的挂单。
// 交易所推送乱序时以最终态为准：终态订单不会被中间态覆盖。
type OrderTracker struct {
	mu     sync.RWMutex
	orders map[string]*domain.Order
}

func NewOrderTracker() *OrderTracker {
	return &OrderTracker{orders: make(map[string]*domain.Order)}
}

// Add 登记一张新挂单
func (t *OrderTracker) Add(order *domain.Order) {
	if order == nil || order.ClientOrderID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	cp := *order
	t.orders[order.ClientOrderID] = &cp
}

// Update 应用一次订单更新；返回更新后的快照与是否命中。
// 终态（filled/canceled/failed）会把订单从活跃集合移除。
func (t *OrderTracker) Update(update *domain.Order) (*domain.Order, bool) {
	if update == nil || update.ClientOrderID == "" {
		return nil, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	existing, ok := t.orders[update.ClientOrderID]
	if !ok {
		// 不是本策略跟踪的订单（可能来自手工操作）
		return nil, false
	}
	if existing.IsFinalStatus() {
		cp := *existing
		return &cp, true
	}

	existing.Status = update.Status
	existing.ExecutedQty = update.ExecutedQty
	existing.AvgFillPrice = update.AvgFillPrice
	existing.UpdatedAt = update.UpdatedAt
	if existing.ExchangeOrderID == "" {
		existing.ExchangeOrderID = update.ExchangeOrderID
	}

	cp := *existing
	if existing.IsFinalStatus() {
		delete(t.orders, existing.ClientOrderID)
	}
	return &cp, true
}

// Remove 主动移除（撤单确认前的本地清理）
func (t *OrderTracker) Remove(clientOrderID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.orders, clientOrderID)
}

// Get 按 clientOrderID 查询
func (t *OrderTracker) Get(clientOrderID string) (*domain.Order, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	o, ok := t.orders[clientOrderID]
	if !ok {
		return nil, false
	}
	cp := *o
	return &cp, true
}

// BySymbol 某市场的全部活跃挂单快照
func (t *OrderTracker) BySymbol(symbol string) []*domain.Order {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*domain.Order, 0, len(t.orders))
	for _, o := range t.orders {
		if symbol == "" || o.Symbol == symbol {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out
}

func (t *OrderTracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.orders)
}
