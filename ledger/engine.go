/*
engine.go - Store-backed ledger: queries and the single write gate

PURPOSE:
  Ledger ties the pure projections (asof.go, position.go) to a TxStore.
  Reads take a snapshot of the SKU's events, project, and return. Writes
  go through Commit, the only path that mutates the store.

CACHING:
  There is no "current stock" anywhere. An optional ProjectionCache may
  memoize CalculateAsOf keyed by (sku, asof); Commit invalidates it after
  every successful write, before returning to the caller.

  Commit also bumps a generation counter. A reader that raced a commit
  (its replay may predate the write) never leaves its result in the cache.

ERRORS:
  Queries fail with UnknownSKUError when the SKU has no master record.
  Cache failures are logged and ignored; the ledger is always the answer.
*/
package ledger

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// ProjectionCache memoizes stock projections. Implementations live in the
// cache package.
type ProjectionCache interface {
	GetStock(ctx context.Context, sku string, asOf Date) (Stock, bool, error)
	SetStock(ctx context.Context, stock Stock) error
	InvalidateAll(ctx context.Context) error
}

type Ledger struct {
	store TxStore
	cache ProjectionCache
	log   zerolog.Logger

	// generation counts successful commits.
	generation atomic.Uint64
}

type Option func(*Ledger)

func WithCache(c ProjectionCache) Option {
	return func(l *Ledger) { l.cache = c }
}

func WithLogger(log zerolog.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

func New(store TxStore, opts ...Option) *Ledger {
	l := &Ledger{store: store, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Store exposes the underlying store for read-only collaborators.
func (l *Ledger) Store() Store { return l.store }

// =============================================================================
// WRITE GATE
// =============================================================================

// Commit runs fn in a store transaction and drops every cached projection
// once it committed.
func (l *Ledger) Commit(ctx context.Context, fn func(Store) error) error {
	if err := l.store.WithTx(ctx, fn); err != nil {
		return err
	}
	l.generation.Add(1)
	if l.cache != nil {
		if err := l.cache.InvalidateAll(ctx); err != nil {
			l.log.Warn().Err(err).Msg("projection cache invalidation failed")
		}
	}
	return nil
}

// =============================================================================
// QUERIES
// =============================================================================

// CalculateAsOf derives stock for sku from events dated before asOf.
func (l *Ledger) CalculateAsOf(ctx context.Context, sku string, asOf Date) (Stock, error) {
	if err := l.checkQuery(ctx, sku, asOf); err != nil {
		return Stock{}, err
	}

	if l.cache != nil {
		stock, ok, err := l.cache.GetStock(ctx, sku, asOf)
		if err != nil {
			l.log.Warn().Err(err).Str("sku", sku).Msg("projection cache read failed")
		} else if ok {
			return stock, nil
		}
	}

	gen := l.generation.Load()
	events, err := l.store.ReadEvents(ctx, EventFilter{SKU: sku, Before: asOf})
	if err != nil {
		return Stock{}, fmt.Errorf("read events for %s: %w", sku, err)
	}
	stock := CalculateAsOf(sku, asOf, events)

	if l.cache != nil {
		l.cacheStock(ctx, gen, stock)
	}
	return stock, nil
}

// cacheStock stores a projection computed at generation gen. A commit that
// lands in between either bumps the generation before we look (we skip) or
// after our write (its own invalidation drops the entry). When the bump
// falls between our write and the recheck, we invalidate ourselves.
func (l *Ledger) cacheStock(ctx context.Context, gen uint64, stock Stock) {
	if l.generation.Load() != gen {
		return
	}
	if err := l.cache.SetStock(ctx, stock); err != nil {
		l.log.Warn().Err(err).Str("sku", stock.SKU).Msg("projection cache write failed")
		return
	}
	if l.generation.Load() != gen {
		if err := l.cache.InvalidateAll(ctx); err != nil {
			l.log.Warn().Err(err).Msg("projection cache invalidation failed")
		}
	}
}

// CalculateAllAsOf derives stock for every registered SKU from one read.
func (l *Ledger) CalculateAllAsOf(ctx context.Context, asOf Date) (map[string]Stock, error) {
	if asOf.IsZero() {
		return nil, &ValidationError{Field: "asof", Message: "must be set"}
	}
	skus, err := l.store.ListSKUs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list skus: %w", err)
	}
	events, err := l.store.ReadEvents(ctx, EventFilter{Before: asOf})
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}

	bySKU := make(map[string][]Event, len(skus))
	for _, e := range events {
		bySKU[e.SKU] = append(bySKU[e.SKU], e)
	}

	out := make(map[string]Stock, len(skus))
	for _, s := range skus {
		out[s.Code] = CalculateAsOf(s.Code, asOf, bySKU[s.Code])
	}
	return out, nil
}

// OnOrderByDate buckets outstanding orders of sku by receipt date.
func (l *Ledger) OnOrderByDate(ctx context.Context, sku string, asOf *Date) (map[Date]int, error) {
	if _, err := l.store.ReadSKU(ctx, sku); err != nil {
		return nil, err
	}
	events, err := l.store.ReadEvents(ctx, EventFilter{SKU: sku, Kinds: []Kind{KindOrder, KindReceipt}})
	if err != nil {
		return nil, fmt.Errorf("read events for %s: %w", sku, err)
	}
	return OnOrderByDate(sku, events, asOf), nil
}

// InventoryPosition computes the receipt-date aware position of sku.
func (l *Ledger) InventoryPosition(ctx context.Context, sku string, asOf Date) (Position, error) {
	if err := l.checkQuery(ctx, sku, asOf); err != nil {
		return Position{}, err
	}
	events, err := l.store.ReadEvents(ctx, EventFilter{SKU: sku})
	if err != nil {
		return Position{}, fmt.Errorf("read events for %s: %w", sku, err)
	}
	return PositionBreakdown(sku, asOf, events), nil
}

// Events returns the events of sku in replay order.
func (l *Ledger) Events(ctx context.Context, sku string) ([]Event, error) {
	if _, err := l.store.ReadSKU(ctx, sku); err != nil {
		return nil, err
	}
	events, err := l.store.ReadEvents(ctx, EventFilter{SKU: sku})
	if err != nil {
		return nil, err
	}
	return SortEvents(events), nil
}

func (l *Ledger) checkQuery(ctx context.Context, sku string, asOf Date) error {
	if sku == "" {
		return &ValidationError{Field: "sku", Message: "must not be empty"}
	}
	if asOf.IsZero() {
		return &ValidationError{Field: "asof", Message: "must be set"}
	}
	_, err := l.store.ReadSKU(ctx, sku)
	return err
}
