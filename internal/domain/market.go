package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Market 永续合约市场（USDⓈ-M）领域模型
// 携带撮合精度信息，报价/下单前必须经过 Quantize* 归一化
type Market struct {
	Symbol     string // 交易对符号（BTCUSDT）
	BaseAsset  string // 基础资产（BTC）
	QuoteAsset string // 计价资产（USDT，同时也是保证金资产）

	TickSize    decimal.Decimal // 价格最小跳动
	StepSize    decimal.Decimal // 数量最小跳动
	MinNotional decimal.Decimal // 最小名义价值（可选，0 表示无限制）
}

// QuantizePrice 将价格按 TickSize 向下归一化（交易所只接受 tick 整数倍）
func (m *Market) QuantizePrice(price decimal.Decimal) decimal.Decimal {
	if m == nil || m.TickSize.IsZero() {
		return price
	}
	return price.Div(m.TickSize).Floor().Mul(m.TickSize)
}

// QuantizeAmount 将数量按 StepSize 向下归一化
func (m *Market) QuantizeAmount(amount decimal.Decimal) decimal.Decimal {
	if m == nil || m.StepSize.IsZero() {
		return amount
	}
	return amount.Div(m.StepSize).Floor().Mul(m.StepSize)
}

// SplitSymbol 从 "BTCUSDT" 形式推断 base/quote（仅用于兜底，优先使用交易所元数据）
func SplitSymbol(symbol string) (base, quote string) {
	for _, q := range []string{"USDT", "USDC", "BUSD"} {
		if strings.HasSuffix(symbol, q) {
			return strings.TrimSuffix(symbol, q), q
		}
	}
	return symbol, ""
}
