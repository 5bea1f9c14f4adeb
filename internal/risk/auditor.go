package risk

import (
	"context"
	"log"
	"time"

	"signal-core/internal/events"
	"signal-core/pkg/exchanges/common"
)

// Finding classifies one live position after an audit pass.
type Finding struct {
	Pair      string
	Side      common.PositionSide
	Size      float64
	Entry     float64
	Compliant bool
	MissingSL bool
	MissingTP bool
	HighRisk  bool
	LossPct   float64
}

// Report is the result of one sweep over an exchange's positions.
type Report struct {
	Exchange  common.Venue
	Findings  []Finding
	Timestamp time.Time
}

// PositionAuditor inspects live positions read-only and, when started with
// managers attached, remediates missing brackets on its interval.
type PositionAuditor struct {
	Ex  common.Exchange
	SL  *StopLossManager
	TP  *TakeProfitManager
	Bus *events.Bus

	// HighRiskLossPct marks a position high-risk once its unrealized loss
	// exceeds this fraction of entry notional.
	HighRiskLossPct float64
}

// NewPositionAuditor wires an auditor; lossPct ≤ 0 defaults to 10%.
func NewPositionAuditor(ex common.Exchange, sl *StopLossManager, tp *TakeProfitManager, bus *events.Bus, lossPct float64) *PositionAuditor {
	if lossPct <= 0 {
		lossPct = 0.10
	}
	return &PositionAuditor{Ex: ex, SL: sl, TP: tp, Bus: bus, HighRiskLossPct: lossPct}
}

// Audit classifies every open position. Read-only.
func (a *PositionAuditor) Audit(ctx context.Context) (*Report, error) {
	positions, err := a.Ex.GetPositions(ctx, "")
	if err != nil {
		return nil, err
	}
	report := &Report{Exchange: a.Ex.Name(), Timestamp: time.Now().UTC()}
	for _, pos := range positions {
		if !pos.IsOpen() {
			continue
		}
		open, err := a.Ex.GetOpenOrders(ctx, pos.Pair)
		if err != nil {
			return nil, err
		}
		f := Finding{
			Pair:  pos.Pair,
			Side:  pos.Direction(),
			Size:  abs(pos.PositionAmt),
			Entry: pos.EntryPrice,
		}
		closeSide := f.Side.CloseSide()
		f.MissingSL = !hasBracket(open, closeSide, common.OrderTypeStopMarket)
		f.MissingTP = !hasBracket(open, closeSide, common.OrderTypeTakeProfitMarket)

		if notional := f.Size * pos.EntryPrice; notional > 0 && pos.UnrealizedProfit < 0 {
			f.LossPct = -pos.UnrealizedProfit / notional
			f.HighRisk = f.LossPct >= a.HighRiskLossPct
		}
		f.Compliant = !f.MissingSL && !f.MissingTP && !f.HighRisk
		report.Findings = append(report.Findings, f)
	}
	return report, nil
}

func hasBracket(open []common.OrderInfo, side common.Side, t common.OrderType) bool {
	for _, o := range open {
		if o.Side == side && o.Type == t {
			return true
		}
	}
	return false
}

// Remediate re-creates missing brackets found by an audit. Default-distance
// prices apply since the original signal targets are not recoverable from
// the venue.
func (a *PositionAuditor) Remediate(ctx context.Context, report *Report) {
	for _, f := range report.Findings {
		if f.MissingSL && a.SL != nil {
			if _, err := a.SL.EnsureStopLoss(ctx, f.Pair, f.Side, f.Size, f.Entry, 0); err != nil {
				log.Printf("❌ audit: restore stop loss %s: %v", f.Pair, err)
			} else {
				log.Printf("🔄 audit: restored stop loss for %s", f.Pair)
			}
		}
		if f.MissingTP && a.TP != nil {
			if _, err := a.TP.EnsureTakeProfits(ctx, f.Pair, f.Side, f.Size, f.Entry, nil); err != nil {
				log.Printf("❌ audit: restore take profit %s: %v", f.Pair, err)
			} else {
				log.Printf("🔄 audit: restored take profit for %s", f.Pair)
			}
		}
		if f.HighRisk {
			log.Printf("⚠️ audit: %s %s running %.1f%% under water", f.Pair, f.Side, f.LossPct*100)
		}
	}
}

// Start runs audit+remediate on the interval until ctx ends.
func (a *PositionAuditor) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				report, err := a.Audit(ctx)
				if err != nil {
					log.Printf("❌ position audit failed: %v", err)
					continue
				}
				a.Remediate(ctx, report)
				a.publish(report)
			}
		}
	}()
}

func (a *PositionAuditor) publish(report *Report) {
	if a.Bus == nil {
		return
	}
	ev := events.AuditEvent{Exchange: string(report.Exchange), Timestamp: report.Timestamp}
	for _, f := range report.Findings {
		switch {
		case f.Compliant:
			ev.Compliant++
		default:
			if f.MissingSL {
				ev.MissingSL++
			}
			if f.MissingTP {
				ev.MissingTP++
			}
			if f.HighRisk {
				ev.HighRisk++
			}
		}
	}
	a.Bus.Publish(events.EventAuditReport, ev)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
