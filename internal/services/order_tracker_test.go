package services

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/betbot/perpmaker/internal/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newOrder(id string, status domain.OrderStatus) *domain.Order {
	return &domain.Order{
		ClientOrderID: id,
		Symbol:        "BTCUSDT",
		Side:          domain.SideBuy,
		Price:         d("100"),
		Quantity:      d("0.01"),
		Status:        status,
	}
}

func TestTracker_AddGet(t *testing.T) {
	tr := NewOrderTracker()
	tr.Add(newOrder("a", domain.OrderStatusOpen))

	got, ok := tr.Get("a")
	if !ok || got.ClientOrderID != "a" {
		t.Fatalf("Get failed: %+v %v", got, ok)
	}
	if tr.Count() != 1 {
		t.Fatalf("Count got=%d", tr.Count())
	}

	// 返回的是副本，改它不影响内部状态
	got.Status = domain.OrderStatusFilled
	again, _ := tr.Get("a")
	if again.Status != domain.OrderStatusOpen {
		t.Fatalf("Get must return a copy")
	}
}

func TestTracker_UpdateUnknownOrder(t *testing.T) {
	tr := NewOrderTracker()
	if _, tracked := tr.Update(newOrder("ghost", domain.OrderStatusFilled)); tracked {
		t.Fatalf("untracked order must not match")
	}
}

func TestTracker_FinalStatusRemoves(t *testing.T) {
	tr := NewOrderTracker()
	tr.Add(newOrder("a", domain.OrderStatusOpen))

	snap, tracked := tr.Update(newOrder("a", domain.OrderStatusFilled))
	if !tracked || snap.Status != domain.OrderStatusFilled {
		t.Fatalf("update failed: %+v %v", snap, tracked)
	}
	if tr.Count() != 0 {
		t.Fatalf("final order must leave the active set")
	}
}

func TestTracker_FinalStatusNotOverwritten(t *testing.T) {
	tr := NewOrderTracker()
	o := newOrder("a", domain.OrderStatusOpen)
	tr.Add(o)
	tr.Update(newOrder("a", domain.OrderStatusFilled))

	// 乱序到达的中间态：订单已终态移除，不再命中
	if _, tracked := tr.Update(newOrder("a", domain.OrderStatusPartiallyFilled)); tracked {
		t.Fatalf("late intermediate update must not resurrect a final order")
	}
}

func TestTracker_BySymbol(t *testing.T) {
	tr := NewOrderTracker()
	tr.Add(newOrder("a", domain.OrderStatusOpen))
	b := newOrder("b", domain.OrderStatusOpen)
	b.Symbol = "ETHUSDT"
	tr.Add(b)

	if got := tr.BySymbol("BTCUSDT"); len(got) != 1 || got[0].ClientOrderID != "a" {
		t.Fatalf("BySymbol filter failed: %+v", got)
	}
	if got := tr.BySymbol(""); len(got) != 2 {
		t.Fatalf("empty symbol must return all orders, got %d", len(got))
	}
}

func TestTracker_Remove(t *testing.T) {
	tr := NewOrderTracker()
	tr.Add(newOrder("a", domain.OrderStatusOpen))
	tr.Remove("a")
	if tr.Count() != 0 {
		t.Fatalf("Remove failed")
	}
}
