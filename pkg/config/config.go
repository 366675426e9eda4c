package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ExchangeConfig 交易所接入配置。
// 凭证优先从环境变量读取（BINANCE_API_KEY/BINANCE_API_SECRET），
// 避免写进配置文件。
type ExchangeConfig struct {
	Name       string `yaml:"name" json:"name"` // binance | paper
	APIKey     string `yaml:"apiKey" json:"apiKey"`
	APISecret  string `yaml:"apiSecret" json:"apiSecret"`
	RESTHost   string `yaml:"restHost" json:"restHost"`     // 可选，testnet 覆盖
	StreamHost string `yaml:"streamHost" json:"streamHost"` // 可选
	Testnet    bool   `yaml:"testnet" json:"testnet"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level" json:"level"`
	File       string `yaml:"file" json:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMb" json:"maxSizeMb"`
	MaxBackups int    `yaml:"maxBackups" json:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays" json:"maxAgeDays"`
}

// PersistenceConfig 策略状态持久化
type PersistenceConfig struct {
	Backend string `yaml:"backend" json:"backend"` // json | badger
	Path    string `yaml:"path" json:"path"`
}

// RiskConfig 熔断配置
type RiskConfig struct {
	MaxConsecutiveErrors int64 `yaml:"maxConsecutiveErrors" json:"maxConsecutiveErrors"`
	CoolOffSeconds       int   `yaml:"coolOffSeconds" json:"coolOffSeconds"`
}

// ServerConfig 状态/控制 HTTP 服务
type ServerConfig struct {
	Enabled *bool  `yaml:"enabled" json:"enabled"`
	Listen  string `yaml:"listen" json:"listen"`
}

// Config 应用配置。strategies 段按策略 ID 存放原始配置块，
// 由策略加载时再反序列化到各自的 Config 结构上。
type Config struct {
	Exchange    ExchangeConfig            `yaml:"exchange" json:"exchange"`
	Log         LogConfig                 `yaml:"log" json:"log"`
	Persistence PersistenceConfig         `yaml:"persistence" json:"persistence"`
	Risk        RiskConfig                `yaml:"risk" json:"risk"`
	Server      ServerConfig              `yaml:"server" json:"server"`
	RecorderDB  string                    `yaml:"recorderDb" json:"recorderDb"`
	DryRun      bool                      `yaml:"dryRun" json:"dryRun"`
	Strategies  map[string]map[string]any `yaml:"strategies" json:"strategies"`
}

var (
	globalMu     sync.RWMutex
	globalConfig *Config
)

func boolPtr(b bool) *bool { return &b }

// Load 从 YAML 文件加载配置并套用环境变量覆盖
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	globalMu.Lock()
	globalConfig = cfg
	globalMu.Unlock()
	return cfg, nil
}

// Get 获取全局配置（未加载时返回 nil）
func Get() *Config {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalConfig
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Exchange.Name) == "" {
		c.Exchange.Name = "binance"
	}
	if strings.TrimSpace(c.Log.Level) == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSizeMB <= 0 {
		c.Log.MaxSizeMB = 100
	}
	if c.Log.MaxBackups <= 0 {
		c.Log.MaxBackups = 7
	}
	if c.Log.MaxAgeDays <= 0 {
		c.Log.MaxAgeDays = 14
	}
	if strings.TrimSpace(c.Persistence.Backend) == "" {
		c.Persistence.Backend = "json"
	}
	if strings.TrimSpace(c.Persistence.Path) == "" {
		c.Persistence.Path = "data/state"
	}
	if c.Risk.MaxConsecutiveErrors <= 0 {
		c.Risk.MaxConsecutiveErrors = 10
	}
	if c.Risk.CoolOffSeconds <= 0 {
		c.Risk.CoolOffSeconds = 60
	}
	if c.Server.Enabled == nil {
		c.Server.Enabled = boolPtr(true)
	}
	if strings.TrimSpace(c.Server.Listen) == "" {
		c.Server.Listen = ":8080"
	}
	if strings.TrimSpace(c.RecorderDB) == "" {
		c.RecorderDB = "data/trades.db"
	}
}

// applyEnvOverrides 环境变量优先级高于配置文件
func (c *Config) applyEnvOverrides() {
	overrideString(&c.Exchange.APIKey, "BINANCE_API_KEY")
	overrideString(&c.Exchange.APISecret, "BINANCE_API_SECRET")
	overrideString(&c.Exchange.RESTHost, "BINANCE_REST_HOST")
	overrideString(&c.Exchange.StreamHost, "BINANCE_STREAM_HOST")
	overrideString(&c.Log.Level, "LOG_LEVEL")
	overrideString(&c.Server.Listen, "SERVER_LISTEN")
	overrideBool(&c.DryRun, "DRY_RUN")
}

func overrideString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func overrideBool(dst *bool, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func (c *Config) Validate() error {
	switch c.Exchange.Name {
	case "binance", "paper":
	default:
		return fmt.Errorf("无效 exchange.name: %q（应为 binance 或 paper）", c.Exchange.Name)
	}
	if c.Exchange.Name == "binance" && !c.DryRun {
		if c.Exchange.APIKey == "" || c.Exchange.APISecret == "" {
			return fmt.Errorf("实盘模式缺少 API 凭证（BINANCE_API_KEY / BINANCE_API_SECRET）")
		}
	}
	switch c.Persistence.Backend {
	case "json", "badger":
	default:
		return fmt.Errorf("无效 persistence.backend: %q（应为 json 或 badger）", c.Persistence.Backend)
	}
	if len(c.Strategies) == 0 {
		return fmt.Errorf("strategies 段不能为空")
	}
	return nil
}
