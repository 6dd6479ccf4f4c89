// Package worker drives side effects of committed ledger events.
package worker

import (
	"context"
	"fmt"
	"sync/atomic"

	"finapp/internal/amqp"
	"finapp/internal/export"
	"finapp/internal/log"
)

// ExportWorker mirrors every ledger event it receives into an exporter.
type ExportWorker struct {
	exporter export.Exporter
	logger   *log.Logger

	exported atomic.Int64
	failed   atomic.Int64
}

func NewExportWorker(exporter export.Exporter, logger *log.Logger) *ExportWorker {
	if logger == nil {
		logger = log.Default()
	}
	return &ExportWorker{exporter: exporter, logger: logger.WithComponent(log.ComponentWorker)}
}

// HandleLedgerEvent exports ev. A returned error makes the consumer requeue
// the message; exporters drop redeliveries by event id. The consumer stores a
// per-delivery logger in ctx; it takes precedence over the worker's own.
func (w *ExportWorker) HandleLedgerEvent(ctx context.Context, ev *amqp.LedgerEvent) error {
	fallback := w.logger.WithFields(log.NewFields().WithEvent(ev.ID, string(ev.Kind)))
	logger := log.FromContext(ctx, fallback).WithComponent(log.ComponentWorker)
	fields := log.NewFields().WithOperation(log.OpExport)
	if ev.AccountID != 0 {
		fields[log.FieldAccountID] = ev.AccountID
	}

	ref, err := w.exporter.Export(ctx, export.RowFromEvent(ev))
	if err != nil {
		w.failed.Add(1)
		logger.ErrorContext(ctx, "Failed to export ledger event", fields.WithError(err).ToSlice()...)
		return fmt.Errorf("export event %s: %w", ev.ID, err)
	}
	w.exported.Add(1)

	logger.InfoContext(ctx, "Exported ledger event", append(fields.ToSlice(), "ref", ref)...)
	return nil
}

// Stats returns how many events were exported and how many attempts failed.
func (w *ExportWorker) Stats() (exported, failed int64) {
	return w.exported.Load(), w.failed.Load()
}
