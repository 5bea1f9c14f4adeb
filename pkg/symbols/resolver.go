// Package symbols resolves canonical coin symbols to venue-native perpetual
// pairs and owns the TTL cache of per-pair precision filters.
package symbols

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"signal-core/pkg/exchanges/common"
)

// CatalogSource is the slice of the exchange capability the resolver needs.
type CatalogSource interface {
	Name() common.Venue
	FetchSymbols(ctx context.Context) ([]common.SymbolInfo, error)
}

// DefaultTTL is how long a fetched catalog stays fresh.
const DefaultTTL = 10 * time.Minute

type entry struct {
	pair    string
	filters common.Filters
}

// Resolver caches one venue's symbol catalog. Concurrent readers are
// permitted; the refresh path is single-writer. A failed refresh falls back
// to the stale catalog when one exists.
type Resolver struct {
	source CatalogSource
	ttl    time.Duration

	mu        sync.RWMutex
	byCoin    map[string]entry
	byPair    map[string]common.Filters
	fetchedAt time.Time

	fetchMu sync.Mutex
}

// NewResolver builds a resolver; ttl <= 0 uses DefaultTTL.
func NewResolver(source CatalogSource, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Resolver{
		source: source,
		ttl:    ttl,
		byCoin: make(map[string]entry),
		byPair: make(map[string]common.Filters),
	}
}

// Resolve maps a canonical coin (e.g. "BTC") to the venue pair and filters.
func (r *Resolver) Resolve(ctx context.Context, coin string) (string, common.Filters, error) {
	coin = strings.ToUpper(strings.TrimSpace(coin))
	if coin == "" {
		return "", common.Filters{}, common.E(common.CodeValidation, "empty coin symbol")
	}

	if err := r.ensureFresh(ctx); err != nil {
		return "", common.Filters{}, err
	}

	r.mu.RLock()
	e, ok := r.byCoin[coin]
	r.mu.RUnlock()
	if !ok {
		return "", common.Filters{}, common.E(common.CodeUnsupportedSymbol,
			"%s has no tradeable perpetual on %s", coin, r.source.Name())
	}
	return e.pair, e.filters, nil
}

// FiltersFor looks up filters by venue-native pair. Used as the validator's
// FiltersFunc.
func (r *Resolver) FiltersFor(ctx context.Context, pair string) (common.Filters, error) {
	if err := r.ensureFresh(ctx); err != nil {
		return common.Filters{}, err
	}

	r.mu.RLock()
	f, ok := r.byPair[pair]
	r.mu.RUnlock()
	if !ok {
		return common.Filters{}, common.E(common.CodeUnsupportedSymbol,
			"pair %s not in the %s catalog", pair, r.source.Name())
	}
	return f, nil
}

// ClearCache drops the catalog so the next call refetches.
func (r *Resolver) ClearCache() {
	r.mu.Lock()
	r.byCoin = make(map[string]entry)
	r.byPair = make(map[string]common.Filters)
	r.fetchedAt = time.Time{}
	r.mu.Unlock()
}

// Age returns how old the current catalog is.
func (r *Resolver) Age() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.fetchedAt.IsZero() {
		return 0
	}
	return time.Since(r.fetchedAt)
}

func (r *Resolver) ensureFresh(ctx context.Context) error {
	r.mu.RLock()
	fresh := !r.fetchedAt.IsZero() && time.Since(r.fetchedAt) < r.ttl
	r.mu.RUnlock()
	if fresh {
		return nil
	}

	r.fetchMu.Lock()
	defer r.fetchMu.Unlock()

	// Another caller may have refreshed while we waited.
	r.mu.RLock()
	fresh = !r.fetchedAt.IsZero() && time.Since(r.fetchedAt) < r.ttl
	stale := !r.fetchedAt.IsZero()
	r.mu.RUnlock()
	if fresh {
		return nil
	}

	infos, err := r.source.FetchSymbols(ctx)
	if err != nil {
		if stale {
			log.Printf("⚠️ %s symbol refresh failed, serving stale catalog: %v", r.source.Name(), err)
			return nil
		}
		return common.Wrap(common.CodeSymbolFetchFailed, err,
			"no %s symbol catalog available", r.source.Name())
	}

	byCoin := make(map[string]entry, len(infos))
	byPair := make(map[string]common.Filters, len(infos))
	for _, info := range infos {
		if !info.Tradeable {
			continue
		}
		f, perr := common.ParseFilters(info)
		if perr != nil {
			log.Printf("⚠️ skipping %s: %v", info.Pair, perr)
			continue
		}
		byPair[info.Pair] = f
		// First tradeable perpetual per base coin wins.
		if _, exists := byCoin[info.BaseAsset]; !exists {
			byCoin[info.BaseAsset] = entry{pair: info.Pair, filters: f}
		}
	}

	r.mu.Lock()
	r.byCoin = byCoin
	r.byPair = byPair
	r.fetchedAt = time.Now()
	r.mu.Unlock()

	log.Printf("✅ %s symbol catalog refreshed: %d tradeable pairs", r.source.Name(), len(byPair))
	return nil
}
