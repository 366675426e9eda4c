package bbgo

import (
	"context"
	"sync"

	"github.com/betbot/perpmaker/internal/services"
	"github.com/betbot/perpmaker/pkg/persistence"
	"github.com/betbot/perpmaker/pkg/shutdown"
)

// Environment 环境管理器，管理交易所会话和服务
type Environment struct {
	TradingService     *services.TradingService
	PersistenceService persistence.Service

	sessions   map[string]*ExchangeSession
	sessionsMu sync.RWMutex

	shutdownManager *shutdown.Manager
}

func NewEnvironment() *Environment {
	return &Environment{
		sessions:        make(map[string]*ExchangeSession),
		shutdownManager: shutdown.NewManager(),
	}
}

func (e *Environment) SetTradingService(ts *services.TradingService) {
	e.TradingService = ts
}

func (e *Environment) SetPersistenceService(ps persistence.Service) {
	e.PersistenceService = ps
}

// AddSession 添加交易所会话
func (e *Environment) AddSession(name string, session *ExchangeSession) {
	e.sessionsMu.Lock()
	defer e.sessionsMu.Unlock()
	e.sessions[name] = session
}

// Session 获取交易所会话
func (e *Environment) Session(name string) (*ExchangeSession, bool) {
	e.sessionsMu.RLock()
	defer e.sessionsMu.RUnlock()
	session, ok := e.sessions[name]
	return session, ok
}

// Sessions 获取所有会话
func (e *Environment) Sessions() map[string]*ExchangeSession {
	e.sessionsMu.RLock()
	defer e.sessionsMu.RUnlock()

	result := make(map[string]*ExchangeSession, len(e.sessions))
	for k, v := range e.sessions {
		result[k] = v
	}
	return result
}

// ShutdownManager 获取关闭管理器
func (e *Environment) ShutdownManager() *shutdown.Manager {
	return e.shutdownManager
}

// Connect 连接所有会话
func (e *Environment) Connect(ctx context.Context) error {
	e.sessionsMu.RLock()
	defer e.sessionsMu.RUnlock()

	for _, session := range e.sessions {
		if err := session.Connect(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close 关闭所有会话
func (e *Environment) Close() error {
	e.sessionsMu.RLock()
	defer e.sessionsMu.RUnlock()

	var firstErr error
	for _, session := range e.sessions {
		if err := session.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
