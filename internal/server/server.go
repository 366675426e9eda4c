package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/betbot/perpmaker/internal/risk"
	"github.com/betbot/perpmaker/internal/services"
)

// StatusProvider 由策略实现，返回当前运行状态快照。
type StatusProvider interface {
	Status() map[string]interface{}
}

type Config struct {
	Listen string
}

// Server 提供机器人的只读状态查询和熔断控制入口。
type Server struct {
	cfg     Config
	trading *services.TradingService
	breaker *risk.CircuitBreaker

	strategies map[string]StatusProvider

	httpSrv *http.Server
	started time.Time
}

func New(cfg Config, trading *services.TradingService, breaker *risk.CircuitBreaker) *Server {
	if cfg.Listen == "" {
		cfg.Listen = ":8080"
	}
	return &Server{
		cfg:        cfg,
		trading:    trading,
		breaker:    breaker,
		strategies: map[string]StatusProvider{},
		started:    time.Now(),
	}
}

// AddStrategy 注册一个策略的状态来源；并发启动前调用。
func (s *Server) AddStrategy(id string, p StatusProvider) {
	s.strategies[id] = p
}

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.handleHealthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.GET("/status", s.handleStatus)
	api.GET("/orders", s.handleOrders)
	api.GET("/positions", s.handlePositions)
	api.POST("/pause", s.handlePause)
	api.POST("/resume", s.handleResume)

	return r
}

func (s *Server) Start() {
	s.httpSrv = &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Infof("📡 状态服务器启动: %s", s.cfg.Listen)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("状态服务器异常退出")
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealthz(c *gin.Context) {
	if s.trading != nil && !s.trading.Ready() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	out := gin.H{
		"uptime": time.Since(s.started).Round(time.Second).String(),
		"halted": s.breaker.Halted(),
	}
	if s.trading != nil {
		conn := s.trading.Connectivity()
		out["connectivity"] = conn
		out["ready"] = s.trading.Ready()
		out["trackedOrders"] = s.trading.Tracker().Count()
	}
	strategies := gin.H{}
	for id, p := range s.strategies {
		strategies[id] = p.Status()
	}
	out["strategies"] = strategies
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleOrders(c *gin.Context) {
	symbol := c.Query("symbol")
	if s.trading == nil {
		c.JSON(http.StatusOK, []interface{}{})
		return
	}
	c.JSON(http.StatusOK, s.trading.ActiveOrders(symbol))
}

func (s *Server) handlePositions(c *gin.Context) {
	symbol := c.Query("symbol")
	if s.trading == nil {
		c.JSON(http.StatusOK, []interface{}{})
		return
	}
	c.JSON(http.StatusOK, s.trading.OpenPositions(symbol))
}

// handlePause 手动熔断：停止新开仓，撤单和平仓不受影响。
func (s *Server) handlePause(c *gin.Context) {
	s.breaker.Halt()
	log.Warn("⚠️ 已通过 API 手动暂停交易")
	c.JSON(http.StatusOK, gin.H{"halted": true})
}

func (s *Server) handleResume(c *gin.Context) {
	s.breaker.Resume()
	log.Info("✅ 已通过 API 恢复交易")
	c.JSON(http.StatusOK, gin.H{"halted": false})
}
