package risk

import (
	"fmt"
	"sync/atomic"
	"time"
)

// ErrCircuitBreakerOpen 表示断路器已打开，禁止继续交易。
var ErrCircuitBreakerOpen = fmt.Errorf("circuit breaker open")

// CircuitBreakerConfig 断路器配置。
// 约定：阈值 <= 0 表示关闭对应限制。
type CircuitBreakerConfig struct {
	// MaxConsecutiveErrors 连续错误上限（下单失败/撤单失败等）。
	MaxConsecutiveErrors int64

	// CoolOff 熔断后自动恢复的冷却时长；0 表示必须手动 Resume。
	CoolOff time.Duration
}

// CircuitBreaker 高频快路径使用原子变量，低频配置更新同样走原子字段。
type CircuitBreaker struct {
	halted   atomic.Bool
	haltedAt atomic.Int64 // unix nano

	consecutiveErrors atomic.Int64

	maxConsecutiveErrors atomic.Int64
	coolOffNanos         atomic.Int64
}

func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	cb := &CircuitBreaker{}
	cb.SetConfig(cfg)
	return cb
}

func (cb *CircuitBreaker) SetConfig(cfg CircuitBreakerConfig) {
	if cb == nil {
		return
	}
	cb.maxConsecutiveErrors.Store(cfg.MaxConsecutiveErrors)
	cb.coolOffNanos.Store(int64(cfg.CoolOff))
}

// Halt 手动熔断（如人工介入或检测到严重异常）。
func (cb *CircuitBreaker) Halt() {
	if cb == nil {
		return
	}
	cb.halted.Store(true)
	cb.haltedAt.Store(time.Now().UnixNano())
}

// Resume 手动恢复（会同时清空连续错误计数）。
func (cb *CircuitBreaker) Resume() {
	if cb == nil {
		return
	}
	cb.halted.Store(false)
	cb.consecutiveErrors.Store(0)
}

// AllowTrading 快路径检查是否允许交易。
func (cb *CircuitBreaker) AllowTrading() error {
	if cb == nil {
		return nil
	}

	if cb.halted.Load() {
		// 冷却期后自动恢复
		coolOff := cb.coolOffNanos.Load()
		if coolOff > 0 && time.Now().UnixNano()-cb.haltedAt.Load() >= coolOff {
			cb.Resume()
			return nil
		}
		return ErrCircuitBreakerOpen
	}

	maxErr := cb.maxConsecutiveErrors.Load()
	if maxErr > 0 && cb.consecutiveErrors.Load() >= maxErr {
		cb.Halt()
		return ErrCircuitBreakerOpen
	}
	return nil
}

// RecordError 记录一次交易操作失败。
func (cb *CircuitBreaker) RecordError() {
	if cb == nil {
		return
	}
	cb.consecutiveErrors.Add(1)
}

// RecordSuccess 记录一次成功，清空连续错误计数。
func (cb *CircuitBreaker) RecordSuccess() {
	if cb == nil {
		return
	}
	cb.consecutiveErrors.Store(0)
}

// Halted 当前是否处于熔断状态。
func (cb *CircuitBreaker) Halted() bool {
	return cb != nil && cb.halted.Load()
}
