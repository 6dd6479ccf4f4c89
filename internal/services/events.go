package services

import (
	"context"
	"fmt"
	"sync"

	"finapp/internal/amqp"
	"finapp/internal/cache"
	"finapp/internal/core"
	"finapp/internal/log"
	"finapp/internal/storage"
)

// EventPublisher publishes committed ledger mutations. *amqp.Client
// implements it.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, ev *amqp.LedgerEvent) error
}

// work collects the side effects of a unit of work. They are applied only
// after the unit committed.
type work struct {
	events  []*amqp.LedgerEvent
	touched []int64
}

func (w *work) emit(ev *amqp.LedgerEvent) { w.events = append(w.events, ev) }

func (w *work) touch(accountIDs ...int64) { w.touched = append(w.touched, accountIDs...) }

// unit runs fn inside one storage transaction. On commit it drops the
// touched accounts from cache and publishes the collected events.
type unit struct {
	store     storage.Store
	publisher EventPublisher
	accounts  *accountCache
	logger    *log.Logger
}

func (u *unit) run(ctx context.Context, op string, fn func(ctx context.Context, tx storage.Tx, w *work) error) error {
	var w work
	err := u.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		w = work{}
		return fn(ctx, tx, &w)
	})
	if err != nil {
		log.FromContext(ctx, u.logger).DebugContext(ctx, "Unit of work rolled back", "unit", op, log.FieldError, err)
		return fmt.Errorf("%s: %w", op, err)
	}

	u.accounts.invalidate(w.touched...)
	for _, ev := range w.events {
		u.publish(ctx, ev)
	}
	return nil
}

// publish never fails the caller: the mutation already committed.
func (u *unit) publish(ctx context.Context, ev *amqp.LedgerEvent) {
	if u.publisher == nil {
		u.logger.DebugContext(ctx, "Event publisher not available, skipping ledger event", log.FieldEventKind, string(ev.Kind))
		return
	}
	if err := u.publisher.PublishLedgerEvent(ctx, ev); err != nil {
		log.FromContext(ctx, u.logger).ErrorContext(ctx, "Failed to publish ledger event",
			log.NewFields().WithOperation(log.OpPublish).WithEvent(ev.ID, string(ev.Kind)).WithError(err).ToSlice()...)
	}
}

func saveAccount(ctx context.Context, tx storage.Tx, w *work, acct core.Account) (core.Account, error) {
	updated, err := tx.UpdateAccount(ctx, acct)
	if err != nil {
		return acct, err
	}
	w.touch(updated.ID.Int64())
	return updated, nil
}

// errorType classifies err for the error_type log field.
func errorType(err error) string {
	switch {
	case core.IsValidation(err):
		return log.ErrorTypeValidation
	case core.IsConsistency(err):
		return log.ErrorTypeConsistency
	case core.IsNotFound(err):
		return log.ErrorTypeNotFound
	default:
		return log.ErrorTypeDatabase
	}
}

// accountCache guards fills against invalidations that happen while the
// value is being read. A fill is dropped when any invalidation ran after
// its read started. A nil *accountCache caches nothing.
type accountCache struct {
	mu    sync.Mutex
	cache cache.Cache[int64, core.Account]
	gen   uint64
}

func newAccountCache(c cache.Cache[int64, core.Account]) *accountCache {
	if c == nil {
		return nil
	}
	return &accountCache{cache: c}
}

// get returns the cached account, or the generation a later fill must
// present.
func (c *accountCache) get(id int64) (core.Account, uint64, bool) {
	if c == nil {
		return core.Account{}, 0, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	acct, ok := c.cache.Get(id)
	return acct, c.gen, ok
}

func (c *accountCache) fill(id int64, acct core.Account, gen uint64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen == gen {
		c.cache.Set(id, acct)
	}
}

func (c *accountCache) invalidate(ids ...int64) {
	if c == nil || len(ids) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		c.cache.Delete(id)
	}
	c.gen++
}
