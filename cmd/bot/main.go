package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"reflect"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/perpmaker/internal/exchange"
	"github.com/betbot/perpmaker/internal/exchange/binance"
	"github.com/betbot/perpmaker/internal/exchange/paper"
	"github.com/betbot/perpmaker/internal/risk"
	"github.com/betbot/perpmaker/internal/server"
	"github.com/betbot/perpmaker/internal/services"
	"github.com/betbot/perpmaker/internal/strategies/common"
	"github.com/betbot/perpmaker/pkg/bbgo"
	"github.com/betbot/perpmaker/pkg/config"
	"github.com/betbot/perpmaker/pkg/logger"
	"github.com/betbot/perpmaker/pkg/persistence"

	// 导入策略集合以触发 init() 注册（bbgo 风格）
	_ "github.com/betbot/perpmaker/internal/strategies/all"
)

const (
	testnetRESTHost   = "https://testnet.binancefuture.com"
	testnetStreamHost = "wss://stream.binancefuture.com"
)

// strategyHeader 从策略配置块里提取调度需要的公共字段
type strategyHeader struct {
	Symbol       string          `json:"symbol"`
	TickInterval common.Duration `json:"tickInterval"`
}

// buildStrategy 从注册表取原型并把配置块反序列化到新实例上
func buildStrategy(id string, conf map[string]any) (interface{}, strategyHeader, error) {
	var header strategyHeader

	proto, err := bbgo.GetRegisteredStrategy(id)
	if err != nil {
		return nil, header, err
	}

	raw, err := json.Marshal(conf)
	if err != nil {
		return nil, header, fmt.Errorf("序列化策略配置 %s: %w", id, err)
	}

	instance := reflect.New(reflect.TypeOf(proto).Elem()).Interface()
	if err := json.Unmarshal(raw, instance); err != nil {
		return nil, header, fmt.Errorf("解析策略配置 %s: %w", id, err)
	}
	if err := json.Unmarshal(raw, &header); err != nil {
		return nil, header, fmt.Errorf("解析策略配置 %s: %w", id, err)
	}
	return instance, header, nil
}

func buildConnector(cfg *config.Config) exchange.Connector {
	if cfg.DryRun || cfg.Exchange.Name == "paper" {
		logrus.Info("🧪 dry-run 模式：使用纸面撮合连接器")
		return paper.New()
	}

	restHost := cfg.Exchange.RESTHost
	streamHost := cfg.Exchange.StreamHost
	if cfg.Exchange.Testnet {
		if restHost == "" {
			restHost = testnetRESTHost
		}
		if streamHost == "" {
			streamHost = testnetStreamHost
		}
	}
	return binance.New(binance.Config{
		APIKey:     cfg.Exchange.APIKey,
		APISecret:  cfg.Exchange.APISecret,
		RESTHost:   restHost,
		StreamHost: streamHost,
	})
}

// runPaperFeed 给纸面连接器灌随机游走行情，tick 间隔 500ms。
func runPaperFeed(ctx context.Context, conn *paper.Connector, start float64) {
	mid := decimal.NewFromFloat(start)
	halfSpread := mid.Mul(decimal.RequireFromString("0.0002"))
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			drift := decimal.NewFromFloat((rand.Float64() - 0.5) * 0.001)
			mid = mid.Mul(decimal.NewFromInt(1).Add(drift))
			conn.PushPrice(mid.Sub(halfSpread), mid.Add(halfSpread))
		}
	}
}

func main() {
	configPath := flag.String("config", "config.yaml", "配置文件路径")
	dotenvPath := flag.String("dotenv", ".env", "环境变量文件（不存在则忽略）")
	paperPrice := flag.Float64("paper-price", 50000, "dry-run 起始中间价")
	flag.Parse()

	// .env 仅用于本地开发，缺失不算错误
	if err := godotenv.Load(*dotenvPath); err != nil && !os.IsNotExist(err) {
		logrus.Warnf("加载 %s 失败: %v", *dotenvPath, err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("加载配置失败: %v", err)
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		OutputFile: cfg.Log.File,
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAgeDays,
		Compress:   true,
	}); err != nil {
		logrus.Fatalf("初始化日志失败: %v", err)
	}
	logrus.Infof("🚀 perpmaker 启动 config=%s exchange=%s dryRun=%v", *configPath, cfg.Exchange.Name, cfg.DryRun)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	breaker := risk.NewCircuitBreaker(risk.CircuitBreakerConfig{
		MaxConsecutiveErrors: cfg.Risk.MaxConsecutiveErrors,
		CoolOff:              time.Duration(cfg.Risk.CoolOffSeconds) * time.Second,
	})

	connector := buildConnector(cfg)
	trading := services.NewTradingService(connector, breaker)

	if cfg.RecorderDB != "" {
		recorder, err := services.NewRecorder(cfg.RecorderDB)
		if err != nil {
			logrus.Fatalf("打开成交记录库失败: %v", err)
		}
		defer recorder.Close()
		trading.SetRecorder(recorder)
	}

	// 实例化策略
	var strategies []interface{}
	symbol := ""
	tickInterval := time.Second
	for id, conf := range cfg.Strategies {
		instance, header, err := buildStrategy(id, conf)
		if err != nil {
			logrus.Fatalf("构建策略 %s 失败: %v", id, err)
		}
		if symbol == "" {
			symbol = header.Symbol
		} else if header.Symbol != symbol {
			logrus.Fatalf("多策略必须共享同一交易对: %s vs %s", symbol, header.Symbol)
		}
		if header.TickInterval.Duration > 0 && header.TickInterval.Duration < tickInterval {
			tickInterval = header.TickInterval.Duration
		}
		strategies = append(strategies, instance)
		logrus.Infof("✅ 策略已加载: %s symbol=%s", id, header.Symbol)
	}
	if symbol == "" {
		logrus.Fatal("策略配置缺少 symbol")
	}

	scheduler := bbgo.NewTickScheduler(tickInterval)
	trading.SetDispatcher(scheduler.Enqueue)
	scheduler.BeforeTick(func(ctx context.Context) {
		if err := trading.RefreshAccount(ctx); err != nil {
			logrus.WithError(err).Warn("刷新账户快照失败")
		}
	})

	// 持久化后端
	var persistenceService persistence.Service
	switch cfg.Persistence.Backend {
	case "badger":
		badgerSvc, err := persistence.OpenBadger(cfg.Persistence.Path)
		if err != nil {
			logrus.Fatalf("打开 badger 持久化失败: %v", err)
		}
		defer badgerSvc.Close()
		persistenceService = badgerSvc
	default:
		persistenceService = persistence.NewJSONFileService(cfg.Persistence.Path)
	}

	environ := bbgo.NewEnvironment()
	environ.SetTradingService(trading)
	environ.SetPersistenceService(persistenceService)

	session := bbgo.NewExchangeSession(cfg.Exchange.Name, symbol, connector, scheduler)
	environ.AddSession(cfg.Exchange.Name, session)

	trader := bbgo.NewTrader(environ)
	for _, s := range strategies {
		trader.AddStrategy(s)
	}

	if err := trader.Initialize(ctx); err != nil {
		logrus.Fatalf("策略初始化失败: %v", err)
	}
	if err := trader.InjectServices(ctx); err != nil {
		logrus.Fatalf("注入服务失败: %v", err)
	}
	if err := trader.LoadState(ctx); err != nil {
		logrus.Warnf("恢复策略状态失败（继续以空状态启动）: %v", err)
	}
	if err := trader.Subscribe(ctx, session); err != nil {
		logrus.Fatalf("订阅行情失败: %v", err)
	}

	if paperConn, ok := connector.(*paper.Connector); ok {
		go runPaperFeed(ctx, paperConn, *paperPrice)
	}

	if err := trading.Init(ctx, symbol); err != nil {
		logrus.Fatalf("初始化交易服务失败: %v", err)
	}
	if err := environ.Connect(ctx); err != nil {
		logrus.Fatalf("连接交易所失败: %v", err)
	}

	if err := trader.Run(ctx); err != nil {
		logrus.Fatalf("启动策略失败: %v", err)
	}

	var srv *server.Server
	if cfg.Server.Enabled != nil && *cfg.Server.Enabled {
		srv = server.New(server.Config{Listen: cfg.Server.Listen}, trading, breaker)
		for _, s := range strategies {
			provider, ok := s.(server.StatusProvider)
			if !ok {
				continue
			}
			if sid, ok := s.(bbgo.StrategyID); ok {
				srv.AddStrategy(sid.ID(), provider)
			}
		}
		srv.Start()
	}

	// 主循环：阻塞到 ctx 取消
	scheduler.Start(ctx)

	logrus.Info("🛑 收到退出信号，开始优雅关闭")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := trader.SaveState(shutdownCtx); err != nil {
		logrus.WithError(err).Error("保存策略状态失败")
	}
	trader.Shutdown(shutdownCtx)
	if srv != nil {
		_ = srv.Shutdown(shutdownCtx)
	}
	if err := environ.Close(); err != nil {
		logrus.WithError(err).Warn("关闭会话失败")
	}
	logrus.Info("✅ 已退出")
}
