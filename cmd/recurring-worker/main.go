package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"finapp/internal/amqp"
	"finapp/internal/cache"
	"finapp/internal/config"
	"finapp/internal/core"
	"finapp/internal/log"
	"finapp/internal/services"
	"finapp/internal/storage"
	"finapp/internal/storage/memory"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	cfg := config.Load()

	logConfig := log.DefaultConfig()
	logConfig.Level = log.ParseLevel(cfg.LogLevel)
	logger := log.New(logConfig)
	log.SetDefault(logger)

	logger.Info("Starting recurring-worker")

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	loc, err := cfg.Location()
	if err != nil {
		logger.Error("Invalid timezone", "error", err, "timezone", cfg.Timezone)
		os.Exit(1)
	}

	store, err := openStore(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize store", "error", err, "backend", cfg.StoreBackend)
		os.Exit(1)
	}
	defer store.Close()

	// Events reach the ledger-worker through AMQP; without it the ledger
	// still works and nothing is exported.
	var publisher services.EventPublisher
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without events", "error", err)
		} else {
			defer amqpClient.Close()
			publisher = amqpClient
			logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange)
		}
	} else {
		logger.Info("AMQP disabled - ledger events will not be published")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	accounts := cache.NewLRU[int64, core.Account](cfg.AccountCacheSize, cfg.AccountCacheTTL)
	caches := cache.NewManager(logger)
	caches.Register(accounts)
	if cfg.AccountCacheTTL > 0 {
		caches.Start(ctx, cfg.AccountCacheTTL)
	}

	clock := core.SystemClock(loc)
	ledgerService := services.NewLedgerService(store, publisher, accounts, clock, logger)
	processor := services.NewRecurringProcessor(ledgerService, cfg.RecurringWorkers, logger)

	logger.Info("Recurring processor configured",
		"interval", cfg.RecurringInterval,
		"workers", cfg.RecurringWorkers,
		"timezone", loc.String())

	run := 0
	process := func(ctx context.Context) {
		run++
		today := clock.Today()
		runLogger := logger.With("run", run, "today", today.String())
		ctx = log.NewContext(ctx, runLogger)
		count, err := processor.MaterializeDue(ctx, today)
		if err != nil {
			runLogger.Error("Recurring processing failed", "error", err, "created", count)
			return
		}
		runLogger.Info("Recurring processing complete", "created", count)
	}

	ticker := time.NewTicker(cfg.RecurringInterval)
	defer ticker.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		process(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				process(ctx)
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Shutdown signal received", "signal", sig.String())

	cancel()
	select {
	case <-done:
		caches.Wait()
		logger.Info("Recurring-worker shutdown complete")
	case <-time.After(30 * time.Second):
		logger.Warn("Shutdown timeout reached")
	}
}

func openStore(cfg *config.Config, logger *log.Logger) (storage.Store, error) {
	if cfg.StoreBackend == "memory" {
		logger.Warn("Using in-memory store - data is lost on exit")
		return memory.New(), nil
	}
	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath, logger)
	if err != nil {
		return nil, err
	}
	if version, dirty, err := storage.SchemaVersion(cfg.SQLiteDBPath); err != nil {
		logger.Warn("Could not read schema version", "error", err)
	} else {
		logger.Info("SQLite store ready", "path", cfg.SQLiteDBPath, "schema_version", version, "dirty", dirty)
	}
	return repo, nil
}
