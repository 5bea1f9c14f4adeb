package cache

import (
	"testing"
	"time"
)

func TestSetGet(t *testing.T) {
	c := New(0)
	key := Key("binance", "BTCUSDT")

	if _, ok := c.Get(key); ok {
		t.Fatal("empty cache should miss")
	}
	c.Set(key, 86100)
	price, ok := c.Get(key)
	if !ok || price != 86100 {
		t.Fatalf("Get = %v, %v", price, ok)
	}
}

func TestTTLExpiry(t *testing.T) {
	c := New(10 * time.Millisecond)
	key := Key("kucoin", "XBTUSDTM")
	c.Set(key, 86100)

	if _, ok := c.Get(key); !ok {
		t.Fatal("fresh entry should hit")
	}
	time.Sleep(20 * time.Millisecond)
	if _, ok := c.Get(key); ok {
		t.Error("stale entry should miss through Get")
	}
	if _, _, ok := c.GetWithAge(key); !ok {
		t.Error("GetWithAge should still see the stale entry")
	}
}

func TestCleanup(t *testing.T) {
	c := New(0)
	c.Set(Key("binance", "BTCUSDT"), 1)
	c.Set(Key("binance", "ETHUSDT"), 2)

	time.Sleep(5 * time.Millisecond)
	c.Set(Key("binance", "SOLUSDT"), 3)

	removed := c.Cleanup(3 * time.Millisecond)
	if removed != 2 {
		t.Errorf("Cleanup removed %d, want 2", removed)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
}

func TestVenueIsolation(t *testing.T) {
	c := New(0)
	c.Set(Key("binance", "BTCUSDT"), 86100)
	c.Set(Key("kucoin", "XBTUSDTM"), 86110)

	if p, _ := c.Get(Key("binance", "BTCUSDT")); p != 86100 {
		t.Errorf("binance price = %v", p)
	}
	if p, _ := c.Get(Key("kucoin", "XBTUSDTM")); p != 86110 {
		t.Errorf("kucoin price = %v", p)
	}
}
