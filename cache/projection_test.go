package cache

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stock-ledger/config"
	"github.com/warp/stock-ledger/ledger"
	"github.com/warp/stock-ledger/ledger/store"
	"github.com/warp/stock-ledger/metrics"
)

func d(s string) ledger.Date { return ledger.MustParseDate(s) }

func TestMemory_GetSetInvalidate(t *testing.T) {
	ctx := context.Background()
	m := metrics.NewRegistry()
	c := NewMemory(m)

	_, ok, err := c.GetStock(ctx, "A1", d("2024-03-01"))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.SetStock(ctx, ledger.Stock{SKU: "A1", AsOf: d("2024-03-01"), OnHand: 7}))
	got, ok, err := c.GetStock(ctx, "A1", d("2024-03-01"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 7, got.OnHand)

	require.NoError(t, c.InvalidateAll(ctx))
	assert.Equal(t, 0, c.Len())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMisses))
}

func TestMemory_LedgerCommitInvalidates(t *testing.T) {
	// GIVEN: A ledger with a cached projection
	ctx := context.Background()
	c := NewMemory(nil)
	l := ledger.New(store.NewMemory(), ledger.WithCache(c))

	require.NoError(t, l.Commit(ctx, func(s ledger.Store) error {
		if err := s.SaveSKU(ctx, ledger.SKU{Code: "A1", InAssortment: true}); err != nil {
			return err
		}
		_, err := s.AppendEvents(ctx, []ledger.Event{{Date: d("2024-03-01"), SKU: "A1", Kind: ledger.KindSnapshot, Qty: 10}})
		return err
	}))

	before, err := l.CalculateAsOf(ctx, "A1", d("2024-03-05"))
	require.NoError(t, err)
	assert.Equal(t, 10, before.OnHand)
	assert.Equal(t, 1, c.Len())

	// WHEN: Another event is committed
	require.NoError(t, l.Commit(ctx, func(s ledger.Store) error {
		_, err := s.AppendEvents(ctx, []ledger.Event{{Date: d("2024-03-02"), SKU: "A1", Kind: ledger.KindSale, Qty: 3}})
		return err
	}))

	// THEN: The stale entry is gone and the next read replays
	assert.Equal(t, 0, c.Len())
	after, err := l.CalculateAsOf(ctx, "A1", d("2024-03-05"))
	require.NoError(t, err)
	assert.Equal(t, 7, after.OnHand)
}

func TestBuildStockKey(t *testing.T) {
	assert.Equal(t, "ledger:stock:2024-02-10:SKU_1", buildStockKey("SKU_1", d("2024-02-10")))
}

func TestBuildRedisOptions(t *testing.T) {
	opts, err := buildRedisOptions(config.CacheConfig{RedisHost: "cache", RedisPort: "6380", RedisDB: 2})
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)

	opts, err = buildRedisOptions(config.CacheConfig{RedisURL: "redis://:secret@localhost:6379/3"})
	require.NoError(t, err)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 3, opts.DB)

	_, err = buildRedisOptions(config.CacheConfig{RedisURL: "http://nope"})
	assert.Error(t, err)
}

func TestNew_PicksBackend(t *testing.T) {
	log := zerolog.Nop()
	assert.IsType(t, Noop{}, New(config.CacheConfig{Enabled: false}, nil, log))
	assert.IsType(t, &Memory{}, New(config.CacheConfig{Enabled: true}, nil, log))
}
