package perpmm

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/perpmaker/internal/domain"
	"github.com/betbot/perpmaker/internal/metrics"
	"github.com/betbot/perpmaker/internal/strategies/ports"
	"github.com/betbot/perpmaker/pkg/bbgo"
)

const ID = "perpmm"

// 市价平仓后的冷却时长（两次市价平仓之间的最短间隔）
const marketCloseCooldown = 10 * time.Second

var log = logrus.WithField("strategy", ID)

func init() { bbgo.RegisterStrategy(ID, &Strategy{}) }

// tickState tick 状态机
type tickState int

const (
	stateWarmup tickState = iota
	stateQuoting
	stateExiting
)

func (st tickState) String() string {
	switch st {
	case stateWarmup:
		return "WARMUP"
	case stateQuoting:
		return "QUOTING"
	case stateExiting:
		return "EXITING"
	}
	return "UNKNOWN"
}

// Strategy 永续合约做市策略。
//
// 每个 tick 单线程跑完整个决策流程：无持仓时维护双边报价阶梯
// （报价管线 + 刷新容差），有持仓时运行退出算法（止盈/移动止损
// 二选一，止损永远追加运行）。订单回调在 tick 之间由调度器串行
// 投递，所以内部状态不加锁。
type Strategy struct {
	TradingService ports.MakerTradingService
	PriceDelegate  ports.PriceDelegate // 可选外部参考价
	Notifier       ports.Notifier      // 可选操作者通知

	Config `yaml:",inline" json:",inline"`

	p      params
	market *domain.Market
	state  tickState

	// 调度状态（只允许 tick 协程与 tick 间回调触碰）
	createTimestamp      time.Time
	cancelTimestamp      time.Time
	marketCloseTimestamp time.Time
	warmupScheduled      bool
	tickNow              time.Time

	// 跨 tick 历史状态（重启后从持久化恢复）
	TSPeakBid  decimal.Decimal `yaml:"-" json:"-" persistence:"ts_peak_bid_price"`
	TSPeakAsk  decimal.Decimal `yaml:"-" json:"-" persistence:"ts_peak_ask_price"`
	ExitOrders map[string]bool `yaml:"-" json:"-" persistence:"exit_orders"`

	lastOwnTradePrice decimal.Decimal

	notReadyWarnedAt time.Time
}

func (s *Strategy) ID() string   { return ID }
func (s *Strategy) Name() string { return ID }

func (s *Strategy) Initialize() error {
	s.p = s.Config.compile()
	if s.ExitOrders == nil {
		s.ExitOrders = make(map[string]bool)
	}
	s.state = stateWarmup
	return nil
}

func (s *Strategy) Subscribe(session *bbgo.ExchangeSession) {
	session.Subscribe("bookTicker", s.Symbol, nil)
	session.Subscribe("aggTrade", s.Symbol, nil)
	session.Subscribe("userData", s.Symbol, nil)
	s.TradingService.OnOrderUpdate(s)
	log.Infof("✅ subscribed to %s market + user data (session=%s)", s.Symbol, session.Name)
}

func (s *Strategy) Run(ctx context.Context, _ bbgo.OrderExecutor, session *bbgo.ExchangeSession) error {
	market, err := s.TradingService.Market(s.Symbol)
	if err != nil {
		return err
	}
	s.market = market

	if err := s.TradingService.SetLeverage(ctx, s.Symbol, s.Leverage); err != nil {
		return err
	}
	if err := s.TradingService.SetPositionMode(ctx, domain.PositionMode(s.PositionMode)); err != nil {
		return err
	}
	log.Infof("✅ %s running: leverage=%dx mode=%s levels=%d spreads=%.4f/%.4f management=%s",
		s.Symbol, s.Leverage, s.PositionMode, s.OrderLevels, s.BidSpread, s.AskSpread, s.PositionManagement)

	session.Scheduler().OnTick(s.tick)
	return nil
}

// Shutdown 退出前撤掉本策略的全部挂单
func (s *Strategy) Shutdown(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	for _, o := range s.TradingService.ActiveOrders(s.Symbol) {
		if err := s.TradingService.CancelOrder(ctx, s.Symbol, o.ClientOrderID); err != nil {
			log.Warnf("⚠️ shutdown cancel %s: %v", o.ClientOrderID, err)
		}
	}
	log.Info("✅ strategy shut down, resting orders canceled")
}

func (s *Strategy) now() time.Time {
	if s.tickNow.IsZero() {
		return time.Now()
	}
	return s.tickNow
}

// tick 每周期入口。调度器保证串行调用。
func (s *Strategy) tick(ctx context.Context, now time.Time) {
	s.tickNow = now

	if !s.TradingService.Ready() || s.TradingService.Connectivity() != ports.ConnectivityConnected {
		s.warnNotReady(now)
		metrics.Ticks.WithLabelValues("skipped").Inc()
		return
	}

	positions := s.TradingService.OpenPositions(s.Symbol)
	if len(positions) == 0 {
		// 仓位清零：丢弃退出单集合，允许下一个仓位开启新的移动止损周期
		if len(s.ExitOrders) > 0 {
			s.ExitOrders = make(map[string]bool)
		}
		s.quoteTick(ctx, now)
		// 当前盘口作为下一个移动止损周期的基线
		s.TSPeakBid = s.TradingService.GetPrice(s.Symbol, false)
		s.TSPeakAsk = s.TradingService.GetPrice(s.Symbol, true)
		metrics.Ticks.WithLabelValues("quoting").Inc()
	} else {
		s.setState(stateExiting)
		s.exitTick(ctx, now, positions)
		metrics.Ticks.WithLabelValues("exiting").Inc()
	}
}

// quoteTick 无持仓分支：构建报价 -> 管线 -> 刷新 -> 执行 -> 重整定时器
func (s *Strategy) quoteTick(ctx context.Context, now time.Time) {
	if !s.warmupScheduled {
		s.createTimestamp = now.Add(s.WarmupTime.Duration)
		s.warmupScheduled = true
		log.Infof("🔄 warming up, first quote at %s", s.createTimestamp.Format(time.RFC3339))
		return
	}
	// 状态每 tick 由仓位数重判：预热期满进入报价态，平仓完成也回到报价态
	if s.state == stateExiting || (s.state == stateWarmup && !now.Before(s.createTimestamp)) {
		s.setState(stateQuoting)
	}

	var proposal *Proposal
	if !now.Before(s.createTimestamp) {
		ref, ok := s.referencePrice()
		if !ok {
			s.warnNotReady(now)
			return
		}
		proposal = s.buildProposal(ref)
		s.applyPipeline(ref, proposal)
	}

	s.refreshOrders(ctx, now, proposal)

	if proposal != nil && !proposal.IsEmpty() &&
		!now.Before(s.createTimestamp) && len(s.activeNonExitOrders()) == 0 {
		s.executeProposal(ctx, proposal)
	}

	s.armTimers(now)
}

// exitTick 有持仓分支：主退出算法（配置二选一）+ 无条件止损。
// 平仓单绕过刷新容差机制立即执行。
func (s *Strategy) exitTick(ctx context.Context, now time.Time, positions []*domain.Position) {
	active := s.TradingService.ActiveOrders(s.Symbol)

	var primary exitDelta
	switch PositionManagement(s.PositionManagement) {
	case ManagementTrailingStop:
		primary = s.trailingStop(positions, active)
	default:
		primary = s.profitTaking(positions, active)
	}
	s.executeExitDelta(ctx, now, primary)

	stopLoss := s.stopLoss(positions, s.TradingService.ActiveOrders(s.Symbol))
	s.executeExitDelta(ctx, now, stopLoss)
}

func (s *Strategy) executeProposal(ctx context.Context, proposal *Proposal) {
	for _, e := range proposal.Buys {
		s.placeQuoteOrder(ctx, domain.SideBuy, e)
	}
	for _, e := range proposal.Sells {
		s.placeQuoteOrder(ctx, domain.SideSell, e)
	}
}

func (s *Strategy) placeQuoteOrder(ctx context.Context, side domain.Side, e PriceSize) {
	order := &domain.Order{
		Symbol:         s.Symbol,
		Side:           side,
		Type:           domain.OrderTypeLimit,
		Price:          e.Price,
		Quantity:       e.Size,
		PositionAction: domain.PositionActionOpen,
		PositionSide:   s.openPositionSide(side),
	}
	if _, err := s.TradingService.PlaceOrder(ctx, order); err != nil {
		log.Warnf("⚠️ place %s %s@%s: %v", side, e.Size, e.Price, err)
		return
	}
	log.Infof("📝 quote %s %s@%s", side, e.Size, e.Price)
}

func (s *Strategy) openPositionSide(side domain.Side) domain.PositionSide {
	if domain.PositionMode(s.PositionMode) != domain.PositionModeHedge {
		return domain.PositionSideBoth
	}
	if side == domain.SideBuy {
		return domain.PositionSideLong
	}
	return domain.PositionSideShort
}

func (s *Strategy) executeExitDelta(ctx context.Context, now time.Time, delta exitDelta) {
	if delta.empty() {
		return
	}

	seen := make(map[string]bool, len(delta.cancels))
	for _, o := range delta.cancels {
		if seen[o.ClientOrderID] {
			continue
		}
		seen[o.ClientOrderID] = true
		if err := s.TradingService.CancelOrder(ctx, s.Symbol, o.ClientOrderID); err != nil {
			log.Warnf("⚠️ cancel %s: %v", o.ClientOrderID, err)
		}
	}

	orderType := domain.OrderType(s.ClosePositionOrderType)
	for _, req := range delta.closes {
		clientID := "pm-exit-" + uuid.NewString()
		order := &domain.Order{
			ClientOrderID:  clientID,
			Symbol:         s.Symbol,
			Side:           req.side,
			Type:           orderType,
			Price:          req.price,
			Quantity:       req.size,
			PositionAction: domain.PositionActionClose,
			PositionSide:   req.positionSide,
		}
		s.ExitOrders[clientID] = true
		if _, err := s.TradingService.PlaceOrder(ctx, order); err != nil {
			delete(s.ExitOrders, clientID)
			log.Warnf("⚠️ place exit %s %s@%s: %v", req.side, req.size, req.price, err)
			continue
		}
		metrics.Exits.WithLabelValues(req.reason, string(req.side)).Inc()
		s.notify("%s: closing %s %s %s @ %s (%s)", ID, s.Symbol, req.side, req.size, req.price, req.reason)
		if orderType == domain.OrderTypeMarket {
			s.marketCloseTimestamp = now.Add(marketCloseCooldown)
		}
	}
}

// activeNonExitOrders 本市场的普通（报价）挂单
func (s *Strategy) activeNonExitOrders() []*domain.Order {
	all := s.TradingService.ActiveOrders(s.Symbol)
	out := make([]*domain.Order, 0, len(all))
	for _, o := range all {
		if !s.isExitOrder(o.ClientOrderID) {
			out = append(out, o)
		}
	}
	return out
}

// OnOrderUpdate tick 间回调：只允许调整调度时间戳，不得直接下单
func (s *Strategy) OnOrderUpdate(_ context.Context, order *domain.Order) error {
	if order == nil || order.Symbol != s.Symbol {
		return nil
	}
	switch order.Status {
	case domain.OrderStatusFilled:
		if order.AvgFillPrice.IsPositive() {
			s.lastOwnTradePrice = order.AvgFillPrice
		}
		s.scheduleAfterFill(time.Now())
		log.Infof("✅ filled %s %s %s@%s", order.Side, order.ExecutedQty, order.Symbol, order.AvgFillPrice)
	case domain.OrderStatusCanceled, domain.OrderStatusFailed:
		delete(s.ExitOrders, order.ClientOrderID)
	}
	return nil
}

// scheduleAfterFill 成交后把下一次挂单推迟 filledOrderDelay，
// 并保证撤单时间不晚于新的挂单时间
func (s *Strategy) scheduleAfterFill(now time.Time) {
	s.createTimestamp = now.Add(s.FilledOrderDelay.Duration)
	s.cancelTimestamp = minTime(s.cancelTimestamp, s.createTimestamp)
}

func (s *Strategy) setState(next tickState) {
	if s.state == next {
		return
	}
	log.Infof("🔄 state %s -> %s", s.state, next)
	s.state = next
}

// warnNotReady 节流告警：行情未就绪/断连时每个报告周期最多一条
func (s *Strategy) warnNotReady(now time.Time) {
	if now.Sub(s.notReadyWarnedAt) < time.Minute {
		return
	}
	s.notReadyWarnedAt = now
	log.Warnf("⚠️ market not ready or disconnected, skipping tick (state=%s)", s.state)
}

func (s *Strategy) notify(format string, args ...interface{}) {
	if s.Notifier != nil {
		s.Notifier.Notify(format, args...)
	}
}

// Status 状态接口快照
func (s *Strategy) Status() map[string]interface{} {
	return map[string]interface{}{
		"strategy":        ID,
		"symbol":          s.Symbol,
		"state":           s.state.String(),
		"createTimestamp": s.createTimestamp,
		"cancelTimestamp": s.cancelTimestamp,
		"tsPeakBid":       s.TSPeakBid,
		"tsPeakAsk":       s.TSPeakAsk,
		"exitOrders":      len(s.ExitOrders),
		"lastOwnTrade":    s.lastOwnTradePrice,
	}
}
