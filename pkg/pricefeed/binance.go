// Package pricefeed streams mark prices from Binance futures public
// websockets into the shared price cache, so the engine's range checks avoid
// a REST round trip per signal.
package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"signal-core/pkg/cache"
	"signal-core/pkg/exchanges/common"
)

// Feed keeps one websocket subscription for the full mark-price stream and
// reconnects with backoff until its context ends.
type Feed struct {
	streamURL string
	venue     string
	cache     *cache.PriceCache
	dialer    *websocket.Dialer
}

// NewBinanceFeed builds the mark-price feed; testnet toggles the host.
func NewBinanceFeed(prices *cache.PriceCache, testnet bool) *Feed {
	host := "fstream.binance.com"
	if testnet {
		host = "stream.binancefuture.com"
	}
	return &Feed{
		streamURL: (&url.URL{Scheme: "wss", Host: host, Path: "/ws/!markPrice@arr@1s"}).String(),
		venue:     string(common.VenueBinance),
		cache:     prices,
		dialer:    websocket.DefaultDialer,
	}
}

// Start runs the read loop in a goroutine until ctx is cancelled.
func (f *Feed) Start(ctx context.Context) {
	go func() {
		backoff := time.Second
		for {
			if err := f.run(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("⚠️ price feed disconnected, retrying in %s: %v", backoff, err)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
		}
	}()
}

type markPriceEvent struct {
	Symbol    string `json:"s"`
	MarkPrice string `json:"p"`
}

func (f *Feed) run(ctx context.Context) error {
	conn, _, err := f.dialer.DialContext(ctx, f.streamURL, nil)
	if err != nil {
		return fmt.Errorf("dial mark price stream: %w", err)
	}
	defer conn.Close()

	log.Printf("✅ mark price stream connected: %s", f.streamURL)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil ||
				websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
				strings.Contains(err.Error(), "use of closed network connection") {
				return nil
			}
			return fmt.Errorf("read mark price stream: %w", err)
		}

		var events []markPriceEvent
		if err := json.Unmarshal(msg, &events); err != nil {
			log.Printf("⚠️ price feed parse error: %v", err)
			continue
		}
		for _, e := range events {
			price, perr := strconv.ParseFloat(e.MarkPrice, 64)
			if perr != nil || price <= 0 {
				continue
			}
			f.cache.Set(cache.Key(f.venue, e.Symbol), price)
		}
	}
}
