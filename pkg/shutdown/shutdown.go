package shutdown

import (
	"context"
	"sync"

	"github.com/betbot/perpmaker/pkg/logger"
)

// Handler 关闭回调。回调必须调用 wg.Done()，否则 Shutdown 只能等到超时。
type Handler func(ctx context.Context, wg *sync.WaitGroup)

// Manager 收集关闭回调，在进程退出前并发执行并等待。
type Manager struct {
	mu        sync.Mutex
	callbacks []Handler
}

func NewManager() *Manager {
	return &Manager{}
}

func (m *Manager) OnShutdown(handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, handler)
}

// Shutdown 并发执行全部回调，阻塞到全部完成或 ctx 超时。
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	callbacks := make([]Handler, len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.mu.Unlock()

	if len(callbacks) == 0 {
		return
	}

	logger.Infof("🛑 优雅关闭：等待 %d 个回调", len(callbacks))

	var wg sync.WaitGroup
	wg.Add(len(callbacks))
	for _, cb := range callbacks {
		go cb(ctx, &wg)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("✅ 关闭回调全部完成")
	case <-ctx.Done():
		logger.Warnf("⚠️ 关闭超时: %v", ctx.Err())
	}
}
