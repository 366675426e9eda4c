package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestPosition_CloseSide(t *testing.T) {
	long := &Position{Amount: decimal.NewFromFloat(0.5)}
	if long.CloseSide() != SideSell {
		t.Fatalf("long position closes with SELL, got %s", long.CloseSide())
	}

	short := &Position{Amount: decimal.NewFromFloat(-0.5)}
	if short.CloseSide() != SideBuy {
		t.Fatalf("short position closes with BUY, got %s", short.CloseSide())
	}
}

func TestSplitSymbol(t *testing.T) {
	cases := []struct {
		symbol, base, quote string
	}{
		{"BTCUSDT", "BTC", "USDT"},
		{"ETHUSDC", "ETH", "USDC"},
		{"BNBBUSD", "BNB", "BUSD"},
		{"WEIRD", "WEIRD", ""}, // 未知计价资产：整体当 base
	}
	for _, c := range cases {
		base, quote := SplitSymbol(c.symbol)
		if base != c.base || quote != c.quote {
			t.Fatalf("SplitSymbol(%s) = %s/%s, want %s/%s", c.symbol, base, quote, c.base, c.quote)
		}
	}
}
