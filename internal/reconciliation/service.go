// Package reconciliation closes local trades whose upstream "active futures"
// entry has stopped, matching free-text records to trades by a weighted
// score.
package reconciliation

import (
	"context"
	"log"
	"sync"
	"time"

	"signal-core/internal/events"
	"signal-core/internal/locks"
	"signal-core/internal/router"
	"signal-core/internal/signal"
	"signal-core/pkg/db"
	"signal-core/pkg/exchanges/common"
)

// Weights tunes the match scorer. Trader equality is a hard requirement and
// its weight is granted to every surviving candidate.
type Weights struct {
	Trader    float64 // granted when traders match (non-match excludes)
	Coin      float64 // coin extracted from content equals trade coin
	Sim       float64 // multiplied by Jaccard similarity above SimFloor
	SimFloor  float64
	Proximity float64 // granted inside MaxHours
	MaxHours  int
}

// DefaultWeights mirror the calibrated defaults.
func DefaultWeights() Weights {
	return Weights{Trader: 0.4, Coin: 0.4, Sim: 0.2, SimFloor: 0.2, Proximity: 0.1, MaxHours: 24}
}

// Match pairs one closed futures entry with a candidate trade.
type Match struct {
	Trade      *db.Trade
	Confidence float64
	Reasons    []string
}

// Service runs the periodic reconcile pass.
type Service struct {
	DB        *db.Database
	Router    *router.Router
	Locks     *locks.Registry
	Bus       *events.Bus
	Traders   []string
	Interval  time.Duration
	Lookback  time.Duration // cold-start window
	Threshold float64
	Weights   Weights

	mu        sync.Mutex
	watermark time.Time
}

// NewService wires the reconciler with defaults for zero-value knobs.
func NewService(database *db.Database, r *router.Router, reg *locks.Registry, bus *events.Bus, traders []string, interval time.Duration) *Service {
	return &Service{
		DB: database, Router: r, Locks: reg, Bus: bus,
		Traders:   traders,
		Interval:  interval,
		Lookback:  24 * time.Hour,
		Threshold: 0.6,
		Weights:   DefaultWeights(),
	}
}

// Start begins the periodic loop until ctx ends.
func (s *Service) Start(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.Run(ctx); err != nil {
					log.Printf("❌ reconcile pass failed: %v", err)
				}
			}
		}
	}()
}

// Run executes one pass: fetch stopped entries past the watermark, match
// each to an open trade, close the winners. The whole pass holds the
// service mutex; concurrent invocations serialize.
func (s *Service) Run(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	watermark := s.watermark
	if watermark.IsZero() {
		watermark = time.Now().UTC().Add(-s.Lookback)
	}
	entries, err := s.DB.ClosedFuturesSince(ctx, watermark, s.Traders)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	log.Printf("📊 reconcile: %d closed futures entries since %s", len(entries), watermark.Format(time.RFC3339))

	latest := watermark
	advance := true
	for i := range entries {
		entry := &entries[i]
		if err := s.processEntry(ctx, entry); err != nil {
			log.Printf("❌ reconcile entry %d (%s): %v", entry.ID, entry.Trader, err)
			// Hold the watermark here so the entry is refetched next pass.
			advance = false
			continue
		}
		if advance && entry.StoppedAt != nil && entry.StoppedAt.After(latest) {
			latest = *entry.StoppedAt
		}
	}

	// The watermark covers only the clean prefix of the batch; entries at or
	// past the first failure come back in the next fetch.
	s.watermark = latest
	return nil
}

func (s *Service) processEntry(ctx context.Context, entry *db.ActiveFutures) error {
	open, err := s.DB.OpenTrades(ctx)
	if err != nil {
		return err
	}
	match := s.BestMatch(entry, open)
	if match == nil {
		log.Printf("📊 reconcile: no trade above %.2f for futures %d", s.Threshold, entry.ID)
		return nil
	}
	trade := match.Trade
	log.Printf("✅ reconcile: futures %d matched trade %d (%.2f: %v)", entry.ID, trade.ID, match.Confidence, match.Reasons)

	eng := s.Router.EngineForVenue(trade.Exchange)
	if eng == nil {
		return errNoEngine(trade.Exchange)
	}

	unlock := s.Locks.Lock(trade.ID)
	defer unlock()

	trade, err = s.DB.GetTrade(ctx, trade.ID)
	if err != nil {
		return err
	}
	if trade.Status != db.TradeOpen && trade.Status != db.TradePartiallyFilled {
		return nil
	}

	pair, _, err := eng.Resolver.Resolve(ctx, trade.Coin)
	if err != nil {
		return err
	}
	liveOpen, err := eng.Pos.IsPositionOpen(ctx, pair, positionSide(trade.Side))
	if err != nil {
		return err
	}
	if liveOpen {
		if _, err := eng.Pos.CloseAtMarket(ctx, trade, "active_futures_closed", 100); err != nil {
			return err
		}
	} else {
		// Venue already flat; record the close locally.
		if err := s.DB.CloseTrade(ctx, trade.ID, db.TradeClosed, nil); err != nil {
			return err
		}
	}

	s.drainAlerts(ctx, trade)

	if s.Bus != nil {
		s.Bus.Publish(events.EventReconcileMatched, events.ReconcileEvent{
			TradeID: trade.ID, FuturesID: entry.ID, Trader: trade.Trader,
			Coin: trade.Coin, Confidence: match.Confidence, Timestamp: time.Now().UTC(),
		})
	}
	return nil
}

// BestMatch scores every candidate and returns the highest at or above the
// threshold, nil when none qualifies.
func (s *Service) BestMatch(entry *db.ActiveFutures, candidates []db.Trade) *Match {
	var best *Match
	for i := range candidates {
		m := s.score(entry, &candidates[i])
		if m == nil || m.Confidence < s.Threshold {
			continue
		}
		if best == nil || m.Confidence > best.Confidence {
			best = m
		}
	}
	return best
}

func (s *Service) score(entry *db.ActiveFutures, t *db.Trade) *Match {
	if entry.Trader != t.Trader {
		return nil
	}
	m := &Match{Trade: t, Confidence: s.Weights.Trader, Reasons: []string{"trader"}}

	if coin := signal.ExtractCoin(entry.Content); coin != "" && coin == t.Coin {
		m.Confidence += s.Weights.Coin
		m.Reasons = append(m.Reasons, "coin")
	}
	if sim := signal.Jaccard(entry.Content, t.Content); sim > s.Weights.SimFloor {
		m.Confidence += sim * s.Weights.Sim
		m.Reasons = append(m.Reasons, "content")
	}
	ref := entry.CreatedAt
	if entry.StoppedAt != nil {
		ref = *entry.StoppedAt
	}
	if d := ref.Sub(t.CreatedAt); d >= 0 && d <= time.Duration(s.Weights.MaxHours)*time.Hour {
		m.Confidence += s.Weights.Proximity
		m.Reasons = append(m.Reasons, "time")
	}
	return m
}

// drainAlerts processes the closed trade's pending alerts in arrival order.
// With the position gone they need no venue action; they are acknowledged.
func (s *Service) drainAlerts(ctx context.Context, t *db.Trade) {
	alerts, err := s.DB.PendingAlertsForTrade(ctx, t.SourceMessageID)
	if err != nil {
		log.Printf("⚠️ reconcile: list alerts for trade %d: %v", t.ID, err)
		return
	}
	for _, a := range alerts {
		if err := s.DB.SetAlertStatus(ctx, a.ID, db.AlertProcessed); err != nil {
			log.Printf("⚠️ reconcile: alert %d: %v", a.ID, err)
		}
	}
}

func positionSide(side string) common.PositionSide {
	if side == string(common.PositionShort) {
		return common.PositionShort
	}
	return common.PositionLong
}

type errNoEngine string

func (e errNoEngine) Error() string { return "reconcile: no engine for venue " + string(e) }
