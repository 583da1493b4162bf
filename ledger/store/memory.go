// Package store provides an in-memory ledger.TxStore.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/warp/stock-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory is a ledger.TxStore backed by maps. All public methods lock; the
// transactional view shares the unlocked state.
type Memory struct {
	mu    sync.RWMutex
	state *memState
}

var (
	_ ledger.TxStore = (*Memory)(nil)
	_ ledger.Store   = (*memState)(nil)
)

func NewMemory() *Memory {
	return &Memory{state: newMemState()}
}

type salesKey struct {
	Date ledger.Date
	SKU  string
}

type memState struct {
	events   []ledger.Event
	nextSeq  int64
	skus     map[string]ledger.SKU
	sales    map[salesKey]ledger.SalesRecord
	receipts map[string]ledger.ReceivingLog
	orders   map[string]ledger.OrderLog
}

func newMemState() *memState {
	return &memState{
		nextSeq:  1,
		skus:     make(map[string]ledger.SKU),
		sales:    make(map[salesKey]ledger.SalesRecord),
		receipts: make(map[string]ledger.ReceivingLog),
		orders:   make(map[string]ledger.OrderLog),
	}
}

// clone copies everything a rollback must restore.
func (s *memState) clone() *memState {
	c := &memState{
		events:   append([]ledger.Event(nil), s.events...),
		nextSeq:  s.nextSeq,
		skus:     make(map[string]ledger.SKU, len(s.skus)),
		sales:    make(map[salesKey]ledger.SalesRecord, len(s.sales)),
		receipts: make(map[string]ledger.ReceivingLog, len(s.receipts)),
		orders:   make(map[string]ledger.OrderLog, len(s.orders)),
	}
	for k, v := range s.skus {
		c.skus[k] = v
	}
	for k, v := range s.sales {
		c.sales[k] = v
	}
	for k, v := range s.receipts {
		c.receipts[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	return c
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	if err := fn(m.state); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

// =============================================================================
// LOCKED ENTRY POINTS
// =============================================================================

func (m *Memory) AppendEvents(ctx context.Context, events []ledger.Event) ([]ledger.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.AppendEvents(ctx, events)
}

func (m *Memory) ReadEvents(ctx context.Context, filter ledger.EventFilter) ([]ledger.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.ReadEvents(ctx, filter)
}

func (m *Memory) CountEvents(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.CountEvents(ctx)
}

func (m *Memory) RemoveExceptionEvents(ctx context.Context, key ledger.ExceptionKey) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.RemoveExceptionEvents(ctx, key)
}

func (m *Memory) SaveSKU(ctx context.Context, sku ledger.SKU) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.SaveSKU(ctx, sku)
}

func (m *Memory) ReadSKU(ctx context.Context, code string) (ledger.SKU, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.ReadSKU(ctx, code)
}

func (m *Memory) ListSKUs(ctx context.Context) ([]ledger.SKU, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.ListSKUs(ctx)
}

func (m *Memory) UpsertSales(ctx context.Context, records []ledger.SalesRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.UpsertSales(ctx, records)
}

func (m *Memory) ReadSales(ctx context.Context, sku string, from, before ledger.Date) ([]ledger.SalesRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.ReadSales(ctx, sku, from, before)
}

func (m *Memory) FindReceivingLog(ctx context.Context, key ledger.ReceiptKey) (ledger.ReceivingLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.FindReceivingLog(ctx, key)
}

func (m *Memory) SaveReceivingLog(ctx context.Context, entry ledger.ReceivingLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.SaveReceivingLog(ctx, entry)
}

func (m *Memory) FindOrderLog(ctx context.Context, id ledger.OrderID) (ledger.OrderLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.FindOrderLog(ctx, id)
}

func (m *Memory) SaveOrderLog(ctx context.Context, entry ledger.OrderLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.SaveOrderLog(ctx, entry)
}

func (m *Memory) ListOrderLogs(ctx context.Context, sku string) ([]ledger.OrderLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.ListOrderLogs(ctx, sku)
}

// =============================================================================
// UNLOCKED STATE (also the transactional view)
// =============================================================================

func (s *memState) AppendEvents(_ context.Context, events []ledger.Event) ([]ledger.Event, error) {
	// Validate the whole batch before touching state (atomic check).
	for _, e := range events {
		if err := e.Validate(); err != nil {
			return nil, err
		}
		if _, ok := s.skus[e.SKU]; !ok {
			return nil, &ledger.UnknownSKUError{SKU: e.SKU}
		}
	}

	out := make([]ledger.Event, len(events))
	for i, e := range events {
		if e.ID == "" {
			e.ID = ledger.EventID(uuid.NewString())
		}
		e.Seq = s.nextSeq
		s.nextSeq++
		s.events = append(s.events, e)
		out[i] = e
	}
	return out, nil
}

func (s *memState) ReadEvents(_ context.Context, filter ledger.EventFilter) ([]ledger.Event, error) {
	var out []ledger.Event
	for _, e := range s.events {
		if filter.Match(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memState) CountEvents(_ context.Context) (int, error) {
	return len(s.events), nil
}

func (s *memState) RemoveExceptionEvents(_ context.Context, key ledger.ExceptionKey) (int, error) {
	kept := s.events[:0:0]
	removed := 0
	for _, e := range s.events {
		if key.Matches(e) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.events = kept
	return removed, nil
}

func (s *memState) SaveSKU(_ context.Context, sku ledger.SKU) error {
	if sku.Code == "" {
		return &ledger.ValidationError{Field: "sku", Message: "must not be empty"}
	}
	s.skus[sku.Code] = sku
	return nil
}

func (s *memState) ReadSKU(_ context.Context, code string) (ledger.SKU, error) {
	sku, ok := s.skus[code]
	if !ok {
		return ledger.SKU{}, &ledger.UnknownSKUError{SKU: code}
	}
	return sku, nil
}

func (s *memState) ListSKUs(_ context.Context) ([]ledger.SKU, error) {
	out := make([]ledger.SKU, 0, len(s.skus))
	for _, sku := range s.skus {
		out = append(out, sku)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *memState) UpsertSales(_ context.Context, records []ledger.SalesRecord) error {
	for _, r := range records {
		if _, ok := s.skus[r.SKU]; !ok {
			return &ledger.UnknownSKUError{SKU: r.SKU}
		}
	}
	for _, r := range records {
		s.sales[salesKey{Date: r.Date, SKU: r.SKU}] = r
	}
	return nil
}

func (s *memState) ReadSales(_ context.Context, sku string, from, before ledger.Date) ([]ledger.SalesRecord, error) {
	var out []ledger.SalesRecord
	for _, r := range s.sales {
		if sku != "" && r.SKU != sku {
			continue
		}
		if !from.IsZero() && r.Date.Before(from) {
			continue
		}
		if !before.IsZero() && !r.Date.Before(before) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Date.Compare(out[j].Date); c != 0 {
			return c < 0
		}
		return out[i].SKU < out[j].SKU
	})
	return out, nil
}

func (s *memState) FindReceivingLog(_ context.Context, key ledger.ReceiptKey) (ledger.ReceivingLog, error) {
	entry, ok := s.receipts[key.String()]
	if !ok {
		return ledger.ReceivingLog{}, ledger.ErrNotFound
	}
	return entry, nil
}

func (s *memState) SaveReceivingLog(_ context.Context, entry ledger.ReceivingLog) error {
	if _, ok := s.receipts[entry.Key.String()]; ok {
		return ledger.ErrDuplicateIdempotencyKey
	}
	s.receipts[entry.Key.String()] = entry
	return nil
}

func (s *memState) FindOrderLog(_ context.Context, id ledger.OrderID) (ledger.OrderLog, error) {
	entry, ok := s.orders[id.String()]
	if !ok {
		return ledger.OrderLog{}, ledger.ErrNotFound
	}
	return entry, nil
}

func (s *memState) SaveOrderLog(_ context.Context, entry ledger.OrderLog) error {
	if _, ok := s.orders[entry.OrderID.String()]; ok {
		return ledger.ErrDuplicateIdempotencyKey
	}
	s.orders[entry.OrderID.String()] = entry
	return nil
}

func (s *memState) ListOrderLogs(_ context.Context, sku string) ([]ledger.OrderLog, error) {
	var out []ledger.OrderLog
	for _, o := range s.orders {
		if sku == "" || o.SKU == sku {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID.String() < out[j].OrderID.String() })
	return out, nil
}
