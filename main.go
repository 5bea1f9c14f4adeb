package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"signal-core/internal/api"
	"signal-core/internal/engine"
	"signal-core/internal/events"
	"signal-core/internal/followup"
	"signal-core/internal/locks"
	"signal-core/internal/order"
	"signal-core/internal/position"
	"signal-core/internal/reconciliation"
	"signal-core/internal/risk"
	"signal-core/internal/router"
	"signal-core/pkg/cache"
	"signal-core/pkg/config"
	"signal-core/pkg/db"
	"signal-core/pkg/exchanges/binance"
	"signal-core/pkg/exchanges/common"
	"signal-core/pkg/exchanges/kucoin"
	"signal-core/pkg/pricefeed"
	"signal-core/pkg/symbols"
)

const version = "1.0.0"

// venueStack is everything the router needs per exchange.
type venueStack struct {
	engine  *engine.Engine
	auditor *risk.PositionAuditor
}

func buildVenue(ex common.Exchange, cfg *config.Config, database *db.Database,
	bus *events.Bus, reg *locks.Registry, prices *cache.PriceCache) *venueStack {

	resolver := symbols.NewResolver(ex, time.Duration(cfg.SymbolCacheTTLMin)*time.Minute)
	validated := common.NewValidator(ex, resolver.FiltersFor, cfg.MakerTickOffset)

	creator := order.NewCreator(validated, resolver.FiltersFor, cfg.DefaultProtectPct)
	sl := risk.NewStopLossManager(validated, creator)
	tp := risk.NewTakeProfitManager(validated, creator)

	pos := position.NewManager(validated, database, resolver.Resolve, bus, cfg.FixedFeeRate)

	eng := engine.New(validated, resolver, creator, sl, tp, pos, database, bus, reg, prices,
		engine.Params{
			TradeAmount: cfg.TradeAmount,
			Leverage:    cfg.Leverage,
			Cooldown:    time.Duration(cfg.TradeCooldown) * time.Second,
			DryRun:      cfg.DryRun,
		})

	auditor := risk.NewPositionAuditor(validated, sl, tp, bus, 0.10)
	return &venueStack{engine: eng, auditor: auditor}
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ config: %v", err)
	}
	traderMap, err := config.LoadTraderMap(cfg.TraderMapFile)
	if err != nil {
		log.Fatalf("❌ trader map: %v", err)
	}

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("❌ open database: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf("❌ migrate database: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus()
	reg := locks.NewRegistry()
	prices := cache.New(30 * time.Second)

	binanceClient := binance.NewClient(binance.Config{
		APIKey:    cfg.BinanceAPIKey,
		APISecret: cfg.BinanceAPISecret,
		Testnet:   cfg.BinanceTestnet,
	})
	binanceClient.StartTimeSync(ctx)

	kucoinClient := kucoin.NewClient(kucoin.Config{
		APIKey:     cfg.KuCoinAPIKey,
		APISecret:  cfg.KuCoinAPISecret,
		Passphrase: cfg.KuCoinPassphrase,
		Leverage:   cfg.Leverage,
	})
	kucoinClient.StartTimeSync(ctx)

	stacks := map[string]*venueStack{
		string(common.VenueBinance): buildVenue(binanceClient, cfg, database, bus, reg, prices),
		string(common.VenueKuCoin):  buildVenue(kucoinClient, cfg, database, bus, reg, prices),
	}
	engines := make(map[string]*engine.Engine, len(stacks))
	venues := make([]string, 0, len(stacks))
	for name, st := range stacks {
		engines[name] = st.engine
		venues = append(venues, name)
	}

	r := router.New(engines, traderMap, cfg.DefaultExchange)
	fp := followup.NewProcessor(database, r, reg,
		time.Duration(cfg.TimestampToleranceMin)*time.Minute)

	reconciler := reconciliation.NewService(database, r, reg, bus,
		cfg.TargetTraders, time.Duration(cfg.ReconcileIntervalSec)*time.Second)
	reconciler.Lookback = time.Duration(cfg.ReconcileLookbackH) * time.Hour
	reconciler.Threshold = cfg.MatchConfidence
	reconciler.Start(ctx)

	for _, st := range stacks {
		st.auditor.Start(ctx, time.Duration(cfg.AuditIntervalSec)*time.Second)
	}

	pricefeed.NewBinanceFeed(prices, cfg.BinanceTestnet).Start(ctx)

	hash, err := api.HashAccessKey(cfg.APIAccessKey)
	if err != nil {
		log.Fatalf("❌ hash access key: %v", err)
	}
	api.AccessKeyHash = hash

	server := api.NewServer(r, fp, bus, database, cfg.JWTSecret, api.SystemMeta{
		DryRun:  cfg.DryRun,
		Venues:  venues,
		Version: version,
	})

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Println("🔄 shutdown signal received")
		cancel()
		os.Exit(0)
	}()

	if cfg.DryRun {
		log.Println("⚠️ dry-run mode: signals are validated and persisted but never sent to a venue")
	}
	log.Printf("✅ signal core %s listening on %s (default venue %s, %d traders mapped)",
		version, cfg.APIAddr, cfg.DefaultExchange, len(traderMap))
	if err := server.Start(cfg.APIAddr); err != nil {
		log.Fatalf("❌ http server: %v", err)
	}
}
