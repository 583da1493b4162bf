/*
store.go - Persistence contract for events, master data and audit logs

PURPOSE:
  Defines the interface between the ledger engine and a database. Stores
  persist; they never compute stock. Different implementations can use
  SQLite or memory.

KEY INTERFACES:
  EventStore:   append-only event log (plus the one scoped removal)
  CatalogStore: SKU master data
  SalesStore:   daily sales aggregates
  LogStore:     OrderLog / ReceivingLog for idempotency lookups
  Store:        all of the above
  TxStore:      Store + WithTx for all-or-nothing workflow commits

APPEND-ONLY CONTRACT:
  - AppendEvents(): atomic multi-event write, assigns Seq
  - NO Update() or Delete() for events
  - RemoveExceptionEvents() is the single exception: it drops events that
    match one ExceptionKey exactly and exists only for the revert path

ATOMIC COMMITS:
  A workflow writes its events and its log entry inside WithTx. Either
  both land or neither does, so the idempotency guard and the ledger never
  disagree.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite (production)
  - ledger/store/memory.go: in-memory (tests, dev)
*/
package ledger

import "context"

// EventFilter narrows ReadEvents. Zero fields match everything. Bounds are
// inclusive on From and exclusive on Before.
type EventFilter struct {
	SKU    string
	From   Date
	Before Date
	Kinds  []Kind
}

// Match reports whether e passes the filter.
func (f EventFilter) Match(e Event) bool {
	if f.SKU != "" && e.SKU != f.SKU {
		return false
	}
	if !f.From.IsZero() && e.Date.Before(f.From) {
		return false
	}
	if !f.Before.IsZero() && !e.Date.Before(f.Before) {
		return false
	}
	if len(f.Kinds) > 0 {
		for _, k := range f.Kinds {
			if e.Kind == k {
				return true
			}
		}
		return false
	}
	return true
}

// EventStore is the append-only event log.
type EventStore interface {
	// AppendEvents persists a batch atomically. Every event must reference a
	// known SKU (UnknownSKUError otherwise) and pass Event.Validate.
	AppendEvents(ctx context.Context, events []Event) ([]Event, error)

	// ReadEvents returns matching events in insertion order. Callers that
	// need replay order sort themselves.
	ReadEvents(ctx context.Context, filter EventFilter) ([]Event, error)

	// CountEvents returns the total number of events in the ledger.
	CountEvents(ctx context.Context) (int, error)

	// RemoveExceptionEvents deletes every event matching key exactly and
	// returns how many were removed. Only the revert path calls this.
	RemoveExceptionEvents(ctx context.Context, key ExceptionKey) (int, error)
}

// CatalogStore holds SKU master data.
type CatalogStore interface {
	SaveSKU(ctx context.Context, sku SKU) error
	// ReadSKU returns UnknownSKUError when the code is not registered.
	ReadSKU(ctx context.Context, code string) (SKU, error)
	ListSKUs(ctx context.Context) ([]SKU, error)
}

// SalesStore holds daily sales aggregates.
type SalesStore interface {
	UpsertSales(ctx context.Context, records []SalesRecord) error
	// ReadSales returns records for sku (all SKUs when empty) with
	// from <= date < before, ordered by date.
	ReadSales(ctx context.Context, sku string, from, before Date) ([]SalesRecord, error)
}

// LogStore holds the audit projections used as idempotency guards.
type LogStore interface {
	// FindReceivingLog returns ErrNotFound when the key was never closed.
	FindReceivingLog(ctx context.Context, key ReceiptKey) (ReceivingLog, error)
	// SaveReceivingLog returns ErrDuplicateIdempotencyKey on a repeated key.
	SaveReceivingLog(ctx context.Context, entry ReceivingLog) error

	FindOrderLog(ctx context.Context, id OrderID) (OrderLog, error)
	SaveOrderLog(ctx context.Context, entry OrderLog) error
	ListOrderLogs(ctx context.Context, sku string) ([]OrderLog, error)
}

// Store is the full persistence contract.
type Store interface {
	EventStore
	CatalogStore
	SalesStore
	LogStore
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, every write made through the given Store is
	// rolled back. If fn returns nil, the writes are committed together.
	WithTx(ctx context.Context, fn func(Store) error) error
}
