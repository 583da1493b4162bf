package ledger_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stock-ledger/ledger"
	"github.com/warp/stock-ledger/ledger/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestLedger(t *testing.T, opts ...ledger.Option) *ledger.Ledger {
	t.Helper()
	l := ledger.New(store.NewMemory(), opts...)
	require.NoError(t, l.Commit(context.Background(), func(tx ledger.Store) error {
		for _, code := range []string{"A", "B"} {
			if err := tx.SaveSKU(context.Background(), ledger.SKU{Code: code, InAssortment: true}); err != nil {
				return err
			}
		}
		return nil
	}))
	return l
}

func appendAll(t *testing.T, l *ledger.Ledger, events ...ledger.Event) {
	t.Helper()
	require.NoError(t, l.Commit(context.Background(), func(tx ledger.Store) error {
		_, err := tx.AppendEvents(context.Background(), events)
		return err
	}))
}

// countingCache is a map-backed ProjectionCache that records traffic.
type countingCache struct {
	entries     map[string]ledger.Stock
	hits        int
	invalidated int
}

func newCountingCache() *countingCache {
	return &countingCache{entries: map[string]ledger.Stock{}}
}

func (c *countingCache) GetStock(_ context.Context, sku string, asOf ledger.Date) (ledger.Stock, bool, error) {
	s, ok := c.entries[sku+"@"+asOf.String()]
	if ok {
		c.hits++
	}
	return s, ok, nil
}

func (c *countingCache) SetStock(_ context.Context, s ledger.Stock) error {
	c.entries[s.SKU+"@"+s.AsOf.String()] = s
	return nil
}

func (c *countingCache) InvalidateAll(context.Context) error {
	c.entries = map[string]ledger.Stock{}
	c.invalidated++
	return nil
}

// =============================================================================
// QUERIES
// =============================================================================

func TestLedger_UnknownSKU(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	_, err := l.CalculateAsOf(ctx, "ZZ", d("2024-01-01"))
	assert.ErrorIs(t, err, ledger.ErrUnknownSKU)
	_, err = l.InventoryPosition(ctx, "ZZ", d("2024-01-01"))
	assert.ErrorIs(t, err, ledger.ErrUnknownSKU)
	_, err = l.OnOrderByDate(ctx, "ZZ", nil)
	assert.ErrorIs(t, err, ledger.ErrUnknownSKU)
	_, err = l.Events(ctx, "ZZ")
	assert.ErrorIs(t, err, ledger.ErrUnknownSKU)

	_, err = l.CalculateAsOf(ctx, "A", ledger.Date{})
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestLedger_QueriesMatchPureProjections(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	events := append(dualLane(), ev("2024-02-03", "B", ledger.KindSnapshot, 7))
	appendAll(t, l, events...)

	stock, err := l.CalculateAsOf(ctx, "A", d("2024-02-10"))
	require.NoError(t, err)
	assert.Equal(t, ledger.CalculateAsOf("A", d("2024-02-10"), events), stock)

	pos, err := l.InventoryPosition(ctx, "A", d("2024-02-12"))
	require.NoError(t, err)
	assert.Equal(t, 130, pos.IP)

	all, err := l.CalculateAllAsOf(ctx, d("2024-02-10"))
	require.NoError(t, err)
	assert.Equal(t, 50, all["A"].OnHand)
	assert.Equal(t, 80, all["A"].OnOrder)
	assert.Equal(t, 7, all["B"].OnHand)

	buckets, err := l.OnOrderByDate(ctx, "A", nil)
	require.NoError(t, err)
	assert.Len(t, buckets, 2)

	replay, err := l.Events(ctx, "A")
	require.NoError(t, err)
	require.Len(t, replay, 3)
	assert.Equal(t, ledger.KindSnapshot, replay[0].Kind)
	for _, e := range replay {
		assert.NotEmpty(t, e.ID)
		assert.NotZero(t, e.Seq)
	}
}

// =============================================================================
// WRITE GATE
// =============================================================================

func TestLedger_CommitIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	boom := errors.New("boom")

	// WHEN: A commit appends an event then fails
	err := l.Commit(ctx, func(tx ledger.Store) error {
		if _, err := tx.AppendEvents(ctx, []ledger.Event{ev("2024-01-01", "A", ledger.KindSnapshot, 5)}); err != nil {
			return err
		}
		return boom
	})

	// THEN: Nothing was written
	assert.ErrorIs(t, err, boom)
	count, err := l.Store().CountEvents(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestLedger_AppendRejectsUnknownSKUAtomically(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	err := l.Commit(ctx, func(tx ledger.Store) error {
		_, err := tx.AppendEvents(ctx, []ledger.Event{
			ev("2024-01-01", "A", ledger.KindSnapshot, 5),
			ev("2024-01-01", "NOPE", ledger.KindSnapshot, 5),
		})
		return err
	})

	var unknown *ledger.UnknownSKUError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "NOPE", unknown.SKU)
	count, _ := l.Store().CountEvents(ctx)
	assert.Zero(t, count)
}

func TestLedger_CacheIsInvalidatedOnCommit(t *testing.T) {
	ctx := context.Background()
	cache := newCountingCache()
	l := newTestLedger(t, ledger.WithCache(cache))
	appendAll(t, l, ev("2024-01-01", "A", ledger.KindSnapshot, 10))

	// GIVEN: A cached projection
	_, err := l.CalculateAsOf(ctx, "A", d("2024-01-05"))
	require.NoError(t, err)
	_, err = l.CalculateAsOf(ctx, "A", d("2024-01-05"))
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)

	// WHEN: A back-dated sale is committed
	appendAll(t, l, ev("2024-01-02", "A", ledger.KindSale, 4))

	// THEN: The next read sees it
	stock, err := l.CalculateAsOf(ctx, "A", d("2024-01-05"))
	require.NoError(t, err)
	assert.Equal(t, 6, stock.OnHand)
	assert.Equal(t, 3, cache.invalidated) // SKU setup, snapshot, sale
}

// commitDuringRead runs hook once, right after the first ReadEvents returns.
type commitDuringRead struct {
	*store.Memory
	hook func()
}

func (s *commitDuringRead) ReadEvents(ctx context.Context, f ledger.EventFilter) ([]ledger.Event, error) {
	events, err := s.Memory.ReadEvents(ctx, f)
	if s.hook != nil {
		hook := s.hook
		s.hook = nil
		hook()
	}
	return events, err
}

func TestLedger_ReadRacingCommitIsNotCached(t *testing.T) {
	ctx := context.Background()
	cache := newCountingCache()
	st := &commitDuringRead{Memory: store.NewMemory()}
	l := ledger.New(st, ledger.WithCache(cache))
	require.NoError(t, l.Commit(ctx, func(tx ledger.Store) error {
		return tx.SaveSKU(ctx, ledger.SKU{Code: "A", InAssortment: true})
	}))
	appendAll(t, l, ev("2024-01-01", "A", ledger.KindSnapshot, 10))

	// GIVEN: A waste lands while a reader is replaying
	st.hook = func() {
		appendAll(t, l, ev("2024-01-02", "A", ledger.KindWaste, 4))
	}

	// WHEN: The racing read returns its pre-commit view
	stock, err := l.CalculateAsOf(ctx, "A", d("2024-01-05"))
	require.NoError(t, err)
	assert.Equal(t, 10, stock.OnHand)

	// THEN: The next read replays instead of serving the stale result
	stock, err = l.CalculateAsOf(ctx, "A", d("2024-01-05"))
	require.NoError(t, err)
	assert.Equal(t, 6, stock.OnHand)
	assert.Zero(t, cache.hits)
}
