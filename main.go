package main

import (
	"context"
	"log"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trading-engine/internal/engine"
	"trading-engine/internal/events"
	"trading-engine/internal/order"
	"trading-engine/internal/position"
	"trading-engine/internal/reconcile"
	"trading-engine/internal/risk"
	"trading-engine/internal/state"
	"trading-engine/internal/strategy"
	"trading-engine/pkg/cache"
	"trading-engine/pkg/config"
	"trading-engine/pkg/db"
	"trading-engine/pkg/exchanges/binance/futures"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf("db migrations: %v", err)
	}
	log.Printf("main: journal at %s", cfg.DBPath)

	client := futures.NewClient(futures.Config{
		APIKey:    cfg.BinanceAPIKey,
		APISecret: cfg.BinanceAPISecret,
		Testnet:   cfg.BinanceTestnet,
	})
	client.StartTimeSync(ctx)

	bus := events.NewBus()
	halt := state.NewHaltLatch()
	ledger := position.NewLedger()
	store := position.NewStore(cfg.PendingOrderTTL)
	riskMgr := risk.NewManager(risk.Config{
		MaxOrderNotional: cfg.MaxOrderNotional,
		MinOrderNotional: cfg.MinOrderNotional,
		MaxDailyTrades:   cfg.MaxDailyTrades,
		MaxDailyLoss:     cfg.MaxDailyLoss,
		MaxOpenPositions: cfg.MaxOpenPositions,
	})

	restorePositions(ctx, database, ledger, store)

	pipeline := order.NewPipeline(client, ledger, store, halt, bus, database)
	manager := engine.NewManager(pipeline, ledger, riskMgr, halt, bus, cfg.SignalQueueSize)

	writer := db.NewBatchWriter(database.DB, 64, time.Second)
	defer writer.Close()
	recon := reconcile.NewService(client, ledger, bus, writer, position.ExchangeBinance, cfg.ReconcileInterval)
	recon.Start(ctx)

	startStrategies(ctx, cfg, client, manager, store)

	go manager.Run(ctx)
	log.Printf("main: engine running (testnet=%v)", cfg.BinanceTestnet)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case s := <-sigChan:
		log.Printf("main: received %v, shutting down", s)
		cancel()
	case <-halt.Done():
		log.Printf("main: trading halted: %s", halt.Reason())
		cancel()
		_ = writer.Close()
		_ = database.Close()
		os.Exit(1)
	}
}

// restorePositions seeds the in-memory ledger and the optimistic store
// from the journal so a restart picks up where the last run left off.
// Both views must see the restored slot or the open-admission gate
// would let a duplicate position through.
func restorePositions(ctx context.Context, database *db.Database, ledger *position.Ledger, store *position.Store) {
	rows, err := database.ListPositions(ctx)
	if err != nil {
		log.Printf("main: restore positions: %v", err)
		return
	}
	for _, row := range rows {
		qty := math.Abs(row.Qty)
		if qty == 0 {
			continue
		}
		key := position.Key{
			Exchange: position.Exchange(row.Exchange),
			Symbol:   row.Symbol,
			Strategy: row.Strategy,
			Side:     position.Side(row.Side),
		}
		if err := ledger.OpenOrAdd(key, qty, row.EntryPrice); err != nil {
			log.Printf("main: restore %s: %v", key, err)
			continue
		}
		signed := qty
		if key.Side == position.SideShort {
			signed = -qty
		}
		store.SetPosition(key, signed, row.EntryPrice)
	}
	if len(rows) > 0 {
		log.Printf("main: restored %d position slots", len(rows))
	}
}

// startStrategies loads the YAML slots and runs a momentum producer per
// enabled slot. With execution disabled the engine still runs, consuming
// nothing, which is the safe default for first-time setups.
func startStrategies(ctx context.Context, cfg *config.Config, client *futures.Client, manager *engine.Manager, store *position.Store) {
	if !cfg.ExecutionEnabled {
		log.Printf("main: execution disabled, no strategies started")
		return
	}
	slots, err := strategy.LoadConfig(cfg.StrategyConfigPath)
	if err != nil {
		log.Printf("main: strategy config: %v", err)
		return
	}
	price := strategy.CachedPrice(cache.NewPriceCache(), client.MarkPrice, time.Second)
	var strategies []strategy.Strategy
	for _, slot := range slots {
		if !slot.Enabled {
			continue
		}
		m := strategy.NewMomentum(slot, price)
		m.Admit = store.CanOpen
		strategies = append(strategies, m)
	}
	if len(strategies) == 0 {
		log.Printf("main: no enabled strategies in %s", cfg.StrategyConfigPath)
		return
	}
	strategy.NewRunner(manager, strategies...).Start(ctx)
	log.Printf("main: started %d strategies", len(strategies))
}
