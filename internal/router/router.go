// Package router picks the venue engine for each trader and fans inbound
// signals out to it.
package router

import (
	"context"
	"log"
	"strings"

	"signal-core/internal/engine"
	"signal-core/internal/signal"
	"signal-core/pkg/config"
	"signal-core/pkg/db"
)

// Router maps traders onto venue engines via a static map with a default.
type Router struct {
	engines      map[string]*engine.Engine // keyed by venue name
	traderMap    config.TraderMap
	defaultVenue string
}

// New builds a router. defaultVenue must name a registered engine.
func New(engines map[string]*engine.Engine, traders config.TraderMap, defaultVenue string) *Router {
	return &Router{engines: engines, traderMap: traders, defaultVenue: defaultVenue}
}

// EngineFor returns the engine serving a trader. Exact map hits win, then a
// partial handle match, then the default venue with a warning.
func (r *Router) EngineFor(trader string) *engine.Engine {
	key := strings.ToLower(strings.TrimSpace(trader))
	if venue, ok := r.traderMap[key]; ok {
		if eng, ok := r.engines[venue]; ok {
			return eng
		}
		log.Printf("⚠️ trader %s mapped to unknown venue %q, using default", trader, venue)
		return r.engines[r.defaultVenue]
	}
	for mapped, venue := range r.traderMap {
		if key == "" || mapped == "" {
			continue
		}
		if strings.Contains(key, mapped) || strings.Contains(mapped, key) {
			if eng, ok := r.engines[venue]; ok {
				log.Printf("📊 trader %s partially matched map entry %s -> %s", trader, mapped, venue)
				return eng
			}
		}
	}
	log.Printf("⚠️ trader %s not in routing map, defaulting to %s", trader, r.defaultVenue)
	return r.engines[r.defaultVenue]
}

// EngineForVenue returns the engine registered for a venue name, nil when
// absent.
func (r *Router) EngineForVenue(venue string) *engine.Engine {
	return r.engines[strings.ToLower(venue)]
}

// HandleSignal routes and executes one entry signal.
func (r *Router) HandleSignal(ctx context.Context, sig *signal.Signal) (*db.Trade, error) {
	eng := r.EngineFor(sig.Trader)
	if eng == nil {
		log.Printf("❌ no engine available for trader %s", sig.Trader)
		return nil, errNoEngine
	}
	return eng.HandleSignal(ctx, sig)
}

type routerError string

func (e routerError) Error() string { return string(e) }

const errNoEngine = routerError("router: no engine registered for default venue")
