package perpmm

import (
	"fmt"
	"strings"
	"time"

	"github.com/betbot/perpmaker/internal/domain"
	"github.com/betbot/perpmaker/internal/strategies/common"
	"github.com/betbot/perpmaker/internal/strategies/ports"
	"github.com/shopspring/decimal"
)

// PositionManagement 持仓管理变体：止盈与移动止损二选一（止损总是额外运行）
type PositionManagement string

const (
	ManagementProfitTaking PositionManagement = "Profit_taking"
	ManagementTrailingStop PositionManagement = "Trailing_stop"
)

// OverrideEntry 显式挂单表条目。Price 与 SpreadPct 二选一：
// Price 是绝对价格；SpreadPct 是相对参考价的偏移（买单向下、卖单向上）。
type OverrideEntry struct {
	Side      string  `yaml:"side" json:"side"` // buy | sell
	Price     float64 `yaml:"price" json:"price"`
	SpreadPct float64 `yaml:"spreadPct" json:"spreadPct"`
	Amount    float64 `yaml:"amount" json:"amount"`
}

// Config 永续做市策略配置。
//
// 点差、费率、止损参数全部用小数表示（0.01 = 1%）。
// 默认值偏保守：单档、1 倍杠杆、30 秒刷新。
type Config struct {
	Symbol string `yaml:"symbol" json:"symbol"`

	// ====== 保证金 ======
	Leverage     int    `yaml:"leverage" json:"leverage"`
	PositionMode string `yaml:"positionMode" json:"positionMode"` // ONEWAY | HEDGE

	// ====== 报价阶梯 ======
	BidSpread        float64 `yaml:"bidSpread" json:"bidSpread"`
	AskSpread        float64 `yaml:"askSpread" json:"askSpread"`
	OrderAmount      float64 `yaml:"orderAmount" json:"orderAmount"`
	OrderLevels      int     `yaml:"orderLevels" json:"orderLevels"`
	OrderLevelSpread float64 `yaml:"orderLevelSpread" json:"orderLevelSpread"`
	OrderLevelAmount float64 `yaml:"orderLevelAmount" json:"orderLevelAmount"`

	// OrderOverride 非空时跳过阶梯构造，直接按表挂单
	OrderOverride []OverrideEntry `yaml:"orderOverride" json:"orderOverride"`

	// ====== 刷新与容差 ======
	TickInterval     common.Duration `yaml:"tickInterval" json:"tickInterval"`
	WarmupTime       common.Duration `yaml:"warmupTime" json:"warmupTime"`
	OrderRefreshTime common.Duration `yaml:"orderRefreshTime" json:"orderRefreshTime"`
	FilledOrderDelay common.Duration `yaml:"filledOrderDelay" json:"filledOrderDelay"`
	// OrderRefreshTolerancePct 负数禁用容差推迟（每周期必撤重挂）
	OrderRefreshTolerancePct *float64 `yaml:"orderRefreshTolerancePct" json:"orderRefreshTolerancePct"`

	// ====== 价格带与成本 ======
	// PriceCeiling/PriceFloor 负数禁用
	PriceCeiling        float64 `yaml:"priceCeiling" json:"priceCeiling"`
	PriceFloor          float64 `yaml:"priceFloor" json:"priceFloor"`
	AddTransactionCosts *bool   `yaml:"addTransactionCosts" json:"addTransactionCosts"`
	TakeIfCrossed       bool    `yaml:"takeIfCrossed" json:"takeIfCrossed"`

	// ====== 参考价 ======
	PriceType string `yaml:"priceType" json:"priceType"` // mid | bestBid | bestAsk | lastTrade | lastOwnTrade | custom

	// ====== 退出 ======
	PositionManagement      string  `yaml:"positionManagement" json:"positionManagement"`
	LongProfitTakingSpread  float64 `yaml:"longProfitTakingSpread" json:"longProfitTakingSpread"`
	ShortProfitTakingSpread float64 `yaml:"shortProfitTakingSpread" json:"shortProfitTakingSpread"`
	TSActivationSpread      float64 `yaml:"tsActivationSpread" json:"tsActivationSpread"`
	TSCallbackRate          float64 `yaml:"tsCallbackRate" json:"tsCallbackRate"`
	StopLossSpread          float64 `yaml:"stopLossSpread" json:"stopLossSpread"`
	ClosePositionOrderType  string  `yaml:"closePositionOrderType" json:"closePositionOrderType"` // LIMIT | MARKET
}

func floatPtr(f float64) *float64 { return &f }
func boolPtr(b bool) *bool        { return &b }

// Defaults 填充默认值（在 Validate 之前调用）
func (c *Config) Defaults() error {
	if c.Leverage <= 0 {
		c.Leverage = 1
	}
	if strings.TrimSpace(c.PositionMode) == "" {
		c.PositionMode = string(domain.PositionModeOneway)
	}
	if c.OrderLevels <= 0 {
		c.OrderLevels = 1
	}
	if c.TickInterval.Duration <= 0 {
		c.TickInterval.Duration = time.Second
	}
	if c.WarmupTime.Duration <= 0 {
		c.WarmupTime.Duration = 10 * time.Second
	}
	if c.OrderRefreshTime.Duration <= 0 {
		c.OrderRefreshTime.Duration = 30 * time.Second
	}
	if c.FilledOrderDelay.Duration <= 0 {
		c.FilledOrderDelay.Duration = 60 * time.Second
	}
	if c.OrderRefreshTolerancePct == nil {
		// 默认禁用：每个刷新周期撤单重挂
		c.OrderRefreshTolerancePct = floatPtr(-1)
	}
	if c.PriceCeiling == 0 {
		c.PriceCeiling = -1
	}
	if c.PriceFloor == 0 {
		c.PriceFloor = -1
	}
	if c.AddTransactionCosts == nil {
		c.AddTransactionCosts = boolPtr(false)
	}
	if strings.TrimSpace(c.PriceType) == "" {
		c.PriceType = string(ports.PriceTypeMid)
	}
	if strings.TrimSpace(c.PositionManagement) == "" {
		c.PositionManagement = string(ManagementProfitTaking)
	}
	if c.LongProfitTakingSpread <= 0 {
		c.LongProfitTakingSpread = 0.01
	}
	if c.ShortProfitTakingSpread <= 0 {
		c.ShortProfitTakingSpread = 0.01
	}
	if c.TSActivationSpread <= 0 {
		c.TSActivationSpread = 0.02
	}
	if c.TSCallbackRate <= 0 {
		c.TSCallbackRate = 0.01
	}
	if c.StopLossSpread <= 0 {
		c.StopLossSpread = 0.10
	}
	if strings.TrimSpace(c.ClosePositionOrderType) == "" {
		c.ClosePositionOrderType = string(domain.OrderTypeLimit)
	}
	return nil
}

// Validate 配置错误直接拒绝启动，不做静默兜底
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config 不能为空")
	}
	if strings.TrimSpace(c.Symbol) == "" {
		return fmt.Errorf("symbol 不能为空")
	}
	if !domain.PositionMode(c.PositionMode).Valid() {
		return fmt.Errorf("无效 positionMode: %q（应为 ONEWAY 或 HEDGE）", c.PositionMode)
	}
	if c.BidSpread < 0 || c.AskSpread < 0 {
		return fmt.Errorf("bidSpread/askSpread 不能为负")
	}
	if c.OrderAmount <= 0 {
		return fmt.Errorf("orderAmount 必须 > 0")
	}
	if c.OrderLevels > 1 && c.OrderLevelSpread <= 0 {
		return fmt.Errorf("多档模式下 orderLevelSpread 必须 > 0")
	}
	if c.PriceCeiling > 0 && c.PriceFloor > 0 && c.PriceCeiling < c.PriceFloor {
		return fmt.Errorf("priceCeiling (%v) 不能小于 priceFloor (%v)", c.PriceCeiling, c.PriceFloor)
	}
	if !ports.PriceType(c.PriceType).Valid() {
		return fmt.Errorf("无效 priceType: %q", c.PriceType)
	}
	switch PositionManagement(c.PositionManagement) {
	case ManagementProfitTaking, ManagementTrailingStop:
	default:
		return fmt.Errorf("无效 positionManagement: %q（应为 %s 或 %s）",
			c.PositionManagement, ManagementProfitTaking, ManagementTrailingStop)
	}
	switch domain.OrderType(c.ClosePositionOrderType) {
	case domain.OrderTypeLimit, domain.OrderTypeMarket:
	default:
		return fmt.Errorf("无效 closePositionOrderType: %q", c.ClosePositionOrderType)
	}
	for i, o := range c.OrderOverride {
		side := strings.ToLower(strings.TrimSpace(o.Side))
		if side != "buy" && side != "sell" {
			return fmt.Errorf("orderOverride[%d]: 无效 side %q", i, o.Side)
		}
		if o.Price <= 0 && o.SpreadPct <= 0 {
			return fmt.Errorf("orderOverride[%d]: price 与 spreadPct 至少一个 > 0", i)
		}
		if o.Amount <= 0 {
			return fmt.Errorf("orderOverride[%d]: amount 必须 > 0", i)
		}
	}
	return nil
}

// params 把 float 配置编译成 tick 路径使用的 decimal 参数
type params struct {
	bidSpread         decimal.Decimal
	askSpread         decimal.Decimal
	orderAmount       decimal.Decimal
	levelSpread       decimal.Decimal
	levelAmount       decimal.Decimal
	refreshTolerance  decimal.Decimal // 负值 = 禁用
	priceCeiling      decimal.Decimal // 负值 = 禁用
	priceFloor        decimal.Decimal
	longProfitSpread  decimal.Decimal
	shortProfitSpread decimal.Decimal
	tsActivation      decimal.Decimal
	tsCallback        decimal.Decimal
	stopLossSpread    decimal.Decimal
	leverage          decimal.Decimal
}

func (c *Config) compile() params {
	return params{
		bidSpread:         decimal.NewFromFloat(c.BidSpread),
		askSpread:         decimal.NewFromFloat(c.AskSpread),
		orderAmount:       decimal.NewFromFloat(c.OrderAmount),
		levelSpread:       decimal.NewFromFloat(c.OrderLevelSpread),
		levelAmount:       decimal.NewFromFloat(c.OrderLevelAmount),
		refreshTolerance:  decimal.NewFromFloat(*c.OrderRefreshTolerancePct),
		priceCeiling:      decimal.NewFromFloat(c.PriceCeiling),
		priceFloor:        decimal.NewFromFloat(c.PriceFloor),
		longProfitSpread:  decimal.NewFromFloat(c.LongProfitTakingSpread),
		shortProfitSpread: decimal.NewFromFloat(c.ShortProfitTakingSpread),
		tsActivation:      decimal.NewFromFloat(c.TSActivationSpread),
		tsCallback:        decimal.NewFromFloat(c.TSCallbackRate),
		stopLossSpread:    decimal.NewFromFloat(c.StopLossSpread),
		leverage:          decimal.NewFromInt(int64(c.Leverage)),
	}
}
