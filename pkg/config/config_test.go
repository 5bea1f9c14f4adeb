package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TradeAmount != 100.0 {
		t.Errorf("TradeAmount = %v, want 100", cfg.TradeAmount)
	}
	if cfg.DefaultExchange != "binance" {
		t.Errorf("DefaultExchange = %q, want binance", cfg.DefaultExchange)
	}
	if cfg.DefaultProtectPct != 0.05 {
		t.Errorf("DefaultProtectPct = %v, want 0.05", cfg.DefaultProtectPct)
	}
	if cfg.MatchConfidence != 0.6 {
		t.Errorf("MatchConfidence = %v, want 0.6", cfg.MatchConfidence)
	}
}

func TestLoadRejectsBadExchange(t *testing.T) {
	t.Setenv("DEFAULT_EXCHANGE", "bitmex")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unsupported DEFAULT_EXCHANGE")
	}
}

func TestLoadTraderMap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traders.yaml")
	data := "traders:\n  \"@Johnny\": kucoin\n  \"@Eliz\": binance\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := LoadTraderMap(path)
	if err != nil {
		t.Fatalf("LoadTraderMap: %v", err)
	}
	if m["@johnny"] != "kucoin" {
		t.Errorf("@johnny routed to %q, want kucoin", m["@johnny"])
	}
	if m["@eliz"] != "binance" {
		t.Errorf("@eliz routed to %q, want binance", m["@eliz"])
	}
}

func TestLoadTraderMapMissingFile(t *testing.T) {
	m, err := LoadTraderMap(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadTraderMap: %v", err)
	}
	if len(m) != 0 {
		t.Errorf("expected empty map, got %v", m)
	}
}
