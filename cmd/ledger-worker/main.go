package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"finapp/internal/amqp"
	"finapp/internal/cache"
	"finapp/internal/config"
	"finapp/internal/export"
	gexport "finapp/internal/export/google"
	"finapp/internal/export/memory"
	"finapp/internal/log"
	"finapp/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	cfg := config.Load()

	logConfig := log.DefaultConfig()
	logConfig.Level = log.ParseLevel(cfg.LogLevel)
	logger := log.New(logConfig)
	log.SetDefault(logger)

	logger.Info("Starting ledger-worker")

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	if cfg.ExportBackend == "none" {
		logger.Error("Nothing to do: set EXPORT_BACKEND to memory or sheets")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	caches := cache.NewManager(logger)
	exporter, err := newExporter(ctx, cfg, caches, logger)
	if err != nil {
		logger.Error("Failed to initialize exporter", "error", err, "backend", cfg.ExportBackend)
		os.Exit(1)
	}
	caches.Start(ctx, time.Hour)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	exportWorker := worker.NewExportWorker(exporter, logger)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := amqpClient.ConsumeLedgerEvents(ctx, exportWorker.HandleLedgerEvent); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", "error", err)
		}
		cancel()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	logger.Info("Shutting down worker...")
	cancel()

	select {
	case <-done:
		caches.Wait()
		exported, failed := exportWorker.Stats()
		logger.Info("Worker shutdown complete", "exported", exported, "failed", failed)
	case <-time.After(30 * time.Second):
		logger.Warn("Shutdown timeout reached")
	}
}

func newExporter(ctx context.Context, cfg *config.Config, caches *cache.Manager, logger *log.Logger) (export.Exporter, error) {
	if cfg.ExportBackend == "memory" {
		logger.Info("Exporting to memory - rows are kept only for this process")
		return memory.New(), nil
	}

	client, err := gexport.New(ctx, gexport.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
		Endpoint:        cfg.GoogleSheetsEndpoint,
	}, logger)
	if err != nil {
		return nil, err
	}
	caches.Register(client.Seen())
	logger.Info("Google Sheets exporter initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	return client, nil
}
