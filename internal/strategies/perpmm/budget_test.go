package perpmm

import (
	"testing"
	"testing/quick"

	"github.com/shopspring/decimal"
)

func TestBudget_RejectsWhenExceeded(t *testing.T) {
	svc := newFakeService()
	svc.balance = d("150") // 够第一张 100，不够第二张
	s := newTestStrategy(t, svc, func(c *Config) { c.Leverage = 1 })

	p := &Proposal{
		Buys: []PriceSize{
			{Price: d("100"), Size: d("1")},
			{Price: d("100"), Size: d("1")},
		},
	}
	s.applyBudgetConstraint(p)

	if len(p.Buys) != 1 {
		t.Fatalf("expected 1 admitted buy, got %d", len(p.Buys))
	}
}

func TestBudget_LeverageReducesMargin(t *testing.T) {
	svc := newFakeService()
	svc.balance = d("150")
	s := newTestStrategy(t, svc, func(c *Config) { c.Leverage = 2 })

	// 2 倍杠杆下每张只占 50，都能进
	p := &Proposal{
		Buys: []PriceSize{
			{Price: d("100"), Size: d("1")},
			{Price: d("100"), Size: d("1")},
		},
	}
	s.applyBudgetConstraint(p)
	if len(p.Buys) != 2 {
		t.Fatalf("expected 2 admitted buys at 2x leverage, got %d", len(p.Buys))
	}
}

func TestBudget_FundingReservedOnlyWhenUnfavorable(t *testing.T) {
	svc := newFakeService()
	s := newTestStrategy(t, svc, func(c *Config) { c.Leverage = 1 })

	// 资金费率 +1%：多头支付 → 买单多预留，卖单不受影响
	svc.funding = d("0.01")
	buyRes := s.orderReservation(d("100"), d("1"), "BUY", svc.funding)
	sellRes := s.orderReservation(d("100"), d("1"), "SELL", svc.funding)

	if !buyRes.Equal(d("101")) {
		t.Fatalf("buy reservation got=%s want=101", buyRes)
	}
	if !sellRes.Equal(d("100")) {
		t.Fatalf("sell reservation got=%s want=100", sellRes)
	}

	// 费率转负：对称交换
	svc.funding = d("-0.01")
	buyRes = s.orderReservation(d("100"), d("1"), "BUY", svc.funding)
	sellRes = s.orderReservation(d("100"), d("1"), "SELL", svc.funding)
	if !buyRes.Equal(d("100")) || !sellRes.Equal(d("101")) {
		t.Fatalf("negative funding: buy=%s sell=%s want 100/101", buyRes, sellRes)
	}
}

func TestBudget_SharedAccumulatorAcrossSides(t *testing.T) {
	svc := newFakeService()
	svc.balance = d("150")
	s := newTestStrategy(t, svc, func(c *Config) { c.Leverage = 1 })

	// 买单先占掉 100，卖单 100 超出剩余 50 → 被拒
	p := &Proposal{
		Buys:  []PriceSize{{Price: d("100"), Size: d("1")}},
		Sells: []PriceSize{{Price: d("100"), Size: d("1")}},
	}
	s.applyBudgetConstraint(p)

	if len(p.Buys) != 1 || len(p.Sells) != 0 {
		t.Fatalf("expected buy admitted, sell rejected; got %d+%d", len(p.Buys), len(p.Sells))
	}
}

// 属性：任意余额与阶梯组合下，被准入订单的占用总和不超过可用余额
func TestBudget_Property_AdmittedNeverExceedsBalance(t *testing.T) {
	property := func(balanceCents uint32, sizes []uint8) bool {
		svc := newFakeService()
		svc.balance = decimal.NewFromInt(int64(balanceCents % 100000)).Div(d("100"))
		s := newTestStrategy(t, svc, func(c *Config) { c.Leverage = 1 })

		p := &Proposal{}
		for _, raw := range sizes {
			size := decimal.NewFromInt(int64(raw%50) + 1).Div(d("1000"))
			p.Buys = append(p.Buys, PriceSize{Price: d("100"), Size: size})
		}
		s.applyBudgetConstraint(p)

		total := decimal.Zero
		for _, e := range p.Buys {
			total = total.Add(s.orderReservation(e.Price, e.Size, "BUY", decimal.Zero))
		}
		return !total.GreaterThan(svc.balance)
	}
	if err := quick.Check(property, &quick.Config{MaxCount: 200}); err != nil {
		t.Fatalf("property violated: %v", err)
	}
}

// 属性：余额增加时（等额阶梯）准入数量单调不减
func TestBudget_Property_AdmissionMonotoneInBalance(t *testing.T) {
	property := func(balanceCents uint16, extraCents uint16, rawLevels uint8) bool {
		svc := newFakeService()
		s := newTestStrategy(t, svc, func(c *Config) { c.Leverage = 1 })

		admitted := func(balance decimal.Decimal, levels int) int {
			svc.balance = balance
			p := &Proposal{}
			for i := 0; i < levels; i++ {
				p.Buys = append(p.Buys, PriceSize{Price: d("100"), Size: d("0.01")})
			}
			s.applyBudgetConstraint(p)
			return len(p.Buys)
		}

		levels := int(rawLevels%10) + 1
		lo := decimal.NewFromInt(int64(balanceCents)).Div(d("100"))
		hi := lo.Add(decimal.NewFromInt(int64(extraCents)).Div(d("100")))

		return admitted(hi, levels) >= admitted(lo, levels)
	}
	if err := quick.Check(property, &quick.Config{MaxCount: 200}); err != nil {
		t.Fatalf("property violated: %v", err)
	}
}
