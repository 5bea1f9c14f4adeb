package router

import (
	"testing"

	"signal-core/internal/engine"
	"signal-core/pkg/config"
)

func TestEngineForRouting(t *testing.T) {
	binance := &engine.Engine{}
	kucoin := &engine.Engine{}
	r := New(
		map[string]*engine.Engine{"binance": binance, "kucoin": kucoin},
		config.TraderMap{"@johnny": "kucoin", "@eliz": "binance", "@mapped-to-nowhere": "bitmex"},
		"binance",
	)

	if got := r.EngineFor("@Johnny"); got != kucoin {
		t.Error("exact match should route @Johnny to kucoin")
	}
	if got := r.EngineFor("johnny"); got != kucoin {
		t.Error("partial match should route johnny to kucoin")
	}
	if got := r.EngineFor("@stranger"); got != binance {
		t.Error("unknown trader should fall back to default venue")
	}
	if got := r.EngineFor("@mapped-to-nowhere"); got != binance {
		t.Error("missing engine for mapped venue should fall back to default")
	}
}

func TestEngineForVenue(t *testing.T) {
	binance := &engine.Engine{}
	r := New(map[string]*engine.Engine{"binance": binance}, nil, "binance")
	if got := r.EngineForVenue("BINANCE"); got != binance {
		t.Error("venue lookup should be case-insensitive")
	}
	if got := r.EngineForVenue("kucoin"); got != nil {
		t.Error("unknown venue should return nil")
	}
}
