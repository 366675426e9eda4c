package bbgo

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var schedulerLog = logrus.WithField("component", "tick_scheduler")

// TickFunc 策略主循环回调
type TickFunc func(ctx context.Context, now time.Time)

// TickScheduler 单协程时钟调度器。
// 策略 OnTick 与事件回调（订单更新等）在同一个协程上交替执行：
// 事件回调经 Enqueue 排队，只会在两个 tick 之间被取出运行，
// 因此策略内部状态不需要加锁。
type TickScheduler struct {
	interval time.Duration

	mu        sync.Mutex
	tickFns   []TickFunc
	beforeFns []func(ctx context.Context)

	jobs chan func()

	started bool
	done    chan struct{}
}

func NewTickScheduler(interval time.Duration) *TickScheduler {
	if interval <= 0 {
		interval = time.Second
	}
	return &TickScheduler{
		interval: interval,
		jobs:     make(chan func(), 256),
		done:     make(chan struct{}),
	}
}

// OnTick 注册 tick 回调（启动前调用）
func (s *TickScheduler) OnTick(fn TickFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickFns = append(s.tickFns, fn)
}

// BeforeTick 注册 tick 前置钩子（账户快照刷新等）
func (s *TickScheduler) BeforeTick(fn func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beforeFns = append(s.beforeFns, fn)
}

// Enqueue 把事件回调排入主循环。满时阻塞而不是丢弃：
// 订单更新丢失比行情线程短暂背压更危险。
func (s *TickScheduler) Enqueue(job func()) {
	select {
	case s.jobs <- job:
	case <-s.done:
	}
}

// Start 启动主循环（阻塞直到 ctx 结束）
func (s *TickScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	schedulerLog.Infof("✅ tick scheduler started, interval=%v", s.interval)

	for {
		select {
		case <-ctx.Done():
			schedulerLog.Info("tick scheduler stopped")
			return
		case job := <-s.jobs:
			s.runJob(job)
		case now := <-ticker.C:
			s.drainJobs()
			s.runTick(ctx, now)
		}
	}
}

// drainJobs tick 开始前先清空已排队的事件，保证策略看到最新的订单状态
func (s *TickScheduler) drainJobs() {
	for {
		select {
		case job := <-s.jobs:
			s.runJob(job)
		default:
			return
		}
	}
}

func (s *TickScheduler) runJob(job func()) {
	defer func() {
		if r := recover(); r != nil {
			schedulerLog.Errorf("❌ event job panic: %v", r)
		}
	}()
	job()
}

func (s *TickScheduler) runTick(ctx context.Context, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			schedulerLog.Errorf("❌ tick panic: %v", r)
		}
	}()

	s.mu.Lock()
	before := s.beforeFns
	ticks := s.tickFns
	s.mu.Unlock()

	for _, fn := range before {
		fn(ctx)
	}
	for _, fn := range ticks {
		fn(ctx, now)
	}
}
