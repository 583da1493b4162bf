/*
Package cache memoizes AsOf stock projections.

KEYING:
  One entry per (sku, asof). A projection depends on every event of the SKU
  dated before asof, so any append may change any entry of that SKU, and
  a revert may change entries of any date after it.

INVALIDATION:
  ledger.Ledger.Commit calls InvalidateAll after every successful write. No
  entry survives a commit, so a hit is always the replay of the current
  ledger.

BACKENDS:
  Memory: process-local map (single node default)
  Redis:  shared across server and CLI processes; entries also expire after
          CACHE_TTL_SECONDS
  Noop:   caching disabled
*/
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/warp/stock-ledger/config"
	"github.com/warp/stock-ledger/ledger"
	"github.com/warp/stock-ledger/metrics"
)

const (
	stockKeyPrefix    = "ledger:stock:"
	stockScanBatch    = 100
	stockKeySeparator = ":"
)

// New picks a backend from configuration. A Redis backend that cannot be
// reached falls back to the in-process cache.
func New(cfg config.CacheConfig, m *metrics.Registry, log zerolog.Logger) ledger.ProjectionCache {
	if !cfg.Enabled {
		return Noop{}
	}
	if cfg.RedisURL == "" && cfg.RedisHost == "" {
		return NewMemory(m)
	}

	client, ttl, err := newRedisClient(cfg)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, using in-process projection cache")
		return NewMemory(m)
	}
	return NewRedis(client, ttl, m)
}

// =============================================================================
// MEMORY
// =============================================================================

type memoryKey struct {
	sku  string
	asOf ledger.Date
}

type Memory struct {
	mu      sync.RWMutex
	entries map[memoryKey]ledger.Stock
	metrics *metrics.Registry
}

func NewMemory(m *metrics.Registry) *Memory {
	return &Memory{entries: make(map[memoryKey]ledger.Stock), metrics: m}
}

func (c *Memory) GetStock(_ context.Context, sku string, asOf ledger.Date) (ledger.Stock, bool, error) {
	c.mu.RLock()
	stock, ok := c.entries[memoryKey{sku: sku, asOf: asOf}]
	c.mu.RUnlock()
	observe(c.metrics, ok)
	return stock, ok, nil
}

func (c *Memory) SetStock(_ context.Context, stock ledger.Stock) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[memoryKey{sku: stock.SKU, asOf: stock.AsOf}] = stock
	return nil
}

func (c *Memory) InvalidateAll(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[memoryKey]ledger.Stock)
	return nil
}

// Len reports the number of cached projections.
func (c *Memory) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// =============================================================================
// REDIS
// =============================================================================

type Redis struct {
	client  *redis.Client
	ttl     time.Duration
	metrics *metrics.Registry
}

func NewRedis(client *redis.Client, ttl time.Duration, m *metrics.Registry) *Redis {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Redis{client: client, ttl: ttl, metrics: m}
}

// stockPayload is the cached JSON form.
type stockPayload struct {
	SKU         string      `json:"sku"`
	AsOf        ledger.Date `json:"asof"`
	OnHand      int         `json:"on_hand"`
	OnOrder     int         `json:"on_order"`
	Unfulfilled int         `json:"unfulfilled"`
}

func (c *Redis) GetStock(ctx context.Context, sku string, asOf ledger.Date) (ledger.Stock, bool, error) {
	payload, err := c.client.Get(ctx, buildStockKey(sku, asOf)).Bytes()
	if err == redis.Nil {
		observe(c.metrics, false)
		return ledger.Stock{}, false, nil
	}
	if err != nil {
		return ledger.Stock{}, false, fmt.Errorf("redis get failed: %w", err)
	}

	var p stockPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return ledger.Stock{}, false, fmt.Errorf("decode stock cache: %w", err)
	}
	observe(c.metrics, true)
	return ledger.Stock{SKU: p.SKU, AsOf: p.AsOf, OnHand: p.OnHand, OnOrder: p.OnOrder, Unfulfilled: p.Unfulfilled}, true, nil
}

func (c *Redis) SetStock(ctx context.Context, stock ledger.Stock) error {
	payload, err := json.Marshal(stockPayload{
		SKU:         stock.SKU,
		AsOf:        stock.AsOf,
		OnHand:      stock.OnHand,
		OnOrder:     stock.OnOrder,
		Unfulfilled: stock.Unfulfilled,
	})
	if err != nil {
		return fmt.Errorf("encode stock cache: %w", err)
	}
	if err := c.client.Set(ctx, buildStockKey(stock.SKU, stock.AsOf), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *Redis) InvalidateAll(ctx context.Context) error {
	return deleteKeysWithPrefix(ctx, c.client, stockKeyPrefix, stockScanBatch)
}

func (c *Redis) Close() error { return c.client.Close() }

func buildStockKey(sku string, asOf ledger.Date) string {
	return stockKeyPrefix + asOf.String() + stockKeySeparator + sku
}

// =============================================================================
// NOOP
// =============================================================================

type Noop struct{}

func (Noop) GetStock(context.Context, string, ledger.Date) (ledger.Stock, bool, error) {
	return ledger.Stock{}, false, nil
}
func (Noop) SetStock(context.Context, ledger.Stock) error { return nil }
func (Noop) InvalidateAll(context.Context) error          { return nil }

var (
	_ ledger.ProjectionCache = (*Memory)(nil)
	_ ledger.ProjectionCache = (*Redis)(nil)
	_ ledger.ProjectionCache = Noop{}
)

func observe(m *metrics.Registry, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHits.Inc()
	} else {
		m.CacheMisses.Inc()
	}
}
