package services

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"finapp/internal/amqp"
	"finapp/internal/core"
	"finapp/internal/ledger"
	"finapp/internal/log"
	"finapp/internal/recurrence"
	"finapp/internal/storage"
)

// RecurringProcessor materializes the instances recurring templates imply
// and posts each of them exactly once.
type RecurringProcessor struct {
	ledger  *LedgerService
	workers int
	logger  *log.Logger
}

// NewRecurringProcessor creates a processor that handles up to workers
// accounts in parallel.
func NewRecurringProcessor(ledger *LedgerService, workers int, logger *log.Logger) *RecurringProcessor {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = log.Default()
	}
	return &RecurringProcessor{
		ledger:  ledger,
		workers: workers,
		logger:  logger.WithComponent(log.ComponentRecurring),
	}
}

// MaterializeDue creates and posts every instance dated on or before today
// that does not exist yet. Later instances are left to later runs; Preview
// lists them. The template itself stands for the
// instance on its own date. Templates sharing an account are processed in
// date order on one goroutine; different accounts run in parallel. Each
// template is one unit of work, and a failing template does not stop the
// others: their errors are joined into the returned error.
func (p *RecurringProcessor) MaterializeDue(ctx context.Context, today core.Date) (int, error) {
	if p.ledger == nil {
		return 0, errors.New("processor not properly initialized")
	}

	var templates []core.Transaction
	err := p.ledger.run(ctx, "list recurring templates", func(ctx context.Context, tx storage.Tx, _ *work) error {
		var err error
		templates, err = tx.ListRecurringTemplates(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}

	byAccount := make(map[int64][]core.Transaction)
	for _, tpl := range templates {
		byAccount[tpl.AccountID] = append(byAccount[tpl.AccountID], tpl)
	}
	accountIDs := make([]int64, 0, len(byAccount))
	for id := range byAccount {
		accountIDs = append(accountIDs, id)
	}
	slices.Sort(accountIDs)

	logger := log.FromContext(ctx, p.logger).WithComponent(log.ComponentRecurring)
	logger.InfoContext(ctx, "Processing recurring templates",
		"total_active", len(templates),
		"accounts", len(accountIDs),
		"today", today.String())

	var (
		created atomic.Int64
		mu      sync.Mutex
		errs    []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for _, accountID := range accountIDs {
		tpls := byAccount[accountID]
		slices.SortFunc(tpls, func(a, b core.Transaction) int {
			return cmp.Or(a.Date.Compare(b.Date), cmp.Compare(a.ID.Int64(), b.ID.Int64()))
		})
		g.Go(func() error {
			for _, tpl := range tpls {
				if err := gctx.Err(); err != nil {
					return err
				}
				n, err := p.materialize(gctx, tpl.ID.Int64(), today)
				created.Add(int64(n))
				if err != nil {
					logger.ErrorContext(gctx, "Failed to materialize recurring template",
						log.NewFields().
							WithOperation(log.OpMaterialize).
							WithError(err).
							WithErrorType(errorType(err)).
							ToSlice()...,
					)
					mu.Lock()
					errs = append(errs, fmt.Errorf("template %d: %w", tpl.ID.Int64(), err))
					mu.Unlock()
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(created.Load()), err
	}

	total := int(created.Load())
	logger.InfoContext(ctx, "Recurring processing complete",
		"processed", total,
		"failed_templates", len(errs),
		"total_checked", len(templates))
	return total, errors.Join(errs...)
}

// materialize posts the missing instances of one template in a single unit
// of work.
func (p *RecurringProcessor) materialize(ctx context.Context, templateID int64, today core.Date) (int, error) {
	count := 0
	err := p.ledger.run(ctx, "materialize template", func(ctx context.Context, tx storage.Tx, w *work) error {
		count = 0
		tpl, err := tx.GetTransaction(ctx, templateID)
		if err != nil {
			return err
		}
		if !tpl.IsTemplate() {
			return nil
		}
		due, err := recurrence.Until(tpl, today)
		if err != nil {
			return err
		}
		done, err := tx.MaterializedDates(ctx, templateID)
		if err != nil {
			return err
		}
		seen := make(map[core.Date]bool, len(done)+1)
		seen[tpl.Date] = true
		for _, d := range done {
			seen[d] = true
		}

		acct, err := tx.GetAccount(ctx, tpl.AccountID)
		if err != nil {
			return err
		}
		for _, inst := range due {
			if seen[inst.Date] {
				continue
			}
			var posted core.Transaction
			if acct, posted, err = ledger.Post(acct, inst.Transaction); err != nil {
				return fmt.Errorf("instance %s: %w", inst.Date, err)
			}
			created, err := tx.CreateTransaction(ctx, posted)
			if err != nil {
				return fmt.Errorf("instance %s: %w", inst.Date, err)
			}
			w.emit(amqp.TransactionEvent(amqp.EventTransactionPosted, created, created.Posting.Delta, acct))
			count++
		}
		if count == 0 {
			return nil
		}
		_, err = saveAccount(ctx, tx, w, acct)
		return err
	})
	if err != nil {
		return 0, err
	}
	if count > 0 {
		log.FromContext(ctx, p.logger).WithComponent(log.ComponentRecurring).InfoContext(ctx, "Materialized recurring instances",
			log.FieldOperation, log.OpMaterialize,
			log.FieldTemplateID, templateID,
			log.FieldCount, count)
	}
	return count, nil
}

// Preview returns the next n instances of a template dated after today,
// without storing anything.
func (p *RecurringProcessor) Preview(ctx context.Context, templateID int64, today core.Date, n int) ([]recurrence.Instance, error) {
	var tpl core.Transaction
	err := p.ledger.run(ctx, "preview template", func(ctx context.Context, tx storage.Tx, _ *work) error {
		var err error
		tpl, err = tx.GetTransaction(ctx, templateID)
		return err
	})
	if err != nil {
		return nil, err
	}
	seq, err := recurrence.Expand(tpl)
	if err != nil {
		return nil, err
	}

	var out []recurrence.Instance
	if n <= 0 {
		return out, nil
	}
	index := 0
	for date, inst := range seq {
		if date.After(today) {
			out = append(out, recurrence.Instance{Index: index, Date: date, Transaction: inst})
			if len(out) == n {
				break
			}
		}
		index++
	}
	return out, nil
}
