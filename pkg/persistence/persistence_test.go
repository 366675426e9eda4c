package persistence

import (
	"testing"

	"github.com/shopspring/decimal"
)

type strategyState struct {
	PeakPrice  decimal.Decimal `persistence:"peak_price"`
	ExitOrders map[string]bool `persistence:"exit_orders"`
	ignored    int             // 无标签字段不参与持久化
}

func TestSaveLoadFields_JSON(t *testing.T) {
	svc := NewJSONFileService(t.TempDir())

	src := &strategyState{
		PeakPrice:  decimal.RequireFromString("103.5"),
		ExitOrders: map[string]bool{"pm-exit-1": true},
		ignored:    42,
	}
	if err := SaveFields(src, "perpmm:BTCUSDT", svc); err != nil {
		t.Fatalf("SaveFields: %v", err)
	}

	dst := &strategyState{}
	if err := LoadFields(dst, "perpmm:BTCUSDT", svc); err != nil {
		t.Fatalf("LoadFields: %v", err)
	}
	if !dst.PeakPrice.Equal(decimal.RequireFromString("103.5")) {
		t.Fatalf("PeakPrice got=%s", dst.PeakPrice)
	}
	if !dst.ExitOrders["pm-exit-1"] {
		t.Fatalf("ExitOrders not restored: %+v", dst.ExitOrders)
	}
	if dst.ignored != 0 {
		t.Fatalf("untagged field must not round-trip")
	}
}

func TestLoadFields_MissingStateIsNotFatal(t *testing.T) {
	svc := NewJSONFileService(t.TempDir())
	dst := &strategyState{}
	if err := LoadFields(dst, "perpmm:NEVER", svc); err != nil {
		t.Fatalf("first run without state must not error, got %v", err)
	}
}

func TestJSONFileStore_Isolation(t *testing.T) {
	svc := NewJSONFileService(t.TempDir())

	a := &strategyState{PeakPrice: decimal.RequireFromString("1")}
	b := &strategyState{PeakPrice: decimal.RequireFromString("2")}
	if err := SaveFields(a, "id-a", svc); err != nil {
		t.Fatalf("save a: %v", err)
	}
	if err := SaveFields(b, "id-b", svc); err != nil {
		t.Fatalf("save b: %v", err)
	}

	got := &strategyState{}
	if err := LoadFields(got, "id-a", svc); err != nil {
		t.Fatalf("load a: %v", err)
	}
	if !got.PeakPrice.Equal(decimal.RequireFromString("1")) {
		t.Fatalf("states must not bleed across ids, got %s", got.PeakPrice)
	}
}
