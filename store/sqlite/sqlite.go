/*
Package sqlite provides a SQLite-backed implementation of ledger.TxStore.

PURPOSE:
  Persists the event ledger, SKU master data, daily sales and the
  order/receiving audit logs in one SQLite file.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE statements on the events table
  - The only DELETE on events is RemoveExceptionEvents, scoped to an exact
    (date, sku, kind) match

KEY TABLES:
  events:         Immutable ledger; seq is the insertion order
  skus:           Master data (mutable configuration)
  sales:          Daily sales, unique per (date, sku)
  order_logs:     One row per confirmed order id
  receiving_logs: One row per closed receipt key

PERSISTED FORMATS:
  Dates are TEXT "YYYY-MM-DD"; a missing receipt date is NULL. Kinds are the
  upper-case kind strings. Keys are stored as rendered by the ledger key types.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety and a single connection, so a write
  transaction and its own reads share one connection. Opened in WAL mode.

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  l := ledger.New(store)
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/warp/stock-ledger/ledger"
)

// Store implements ledger.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ ledger.TxStore = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: ":memory:" databases are per-connection, and the
	// ledger is single-writer anyway.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS skus (
		code TEXT PRIMARY KEY,
		description TEXT NOT NULL DEFAULT '',
		ean TEXT NOT NULL DEFAULT '',
		ean_status TEXT NOT NULL DEFAULT 'empty',
		lead_time_days INTEGER NOT NULL DEFAULT 0,
		safety_stock INTEGER NOT NULL DEFAULT 0,
		min_shelf_life_days INTEGER NOT NULL DEFAULT 0,
		moq INTEGER NOT NULL DEFAULT 0,
		demand_variability TEXT NOT NULL DEFAULT 'STABLE',
		in_assortment INTEGER NOT NULL DEFAULT 1,
		updated_at TEXT NOT NULL
	);

	-- Events (append-only ledger)
	CREATE TABLE IF NOT EXISTS events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		date TEXT NOT NULL,
		sku TEXT NOT NULL REFERENCES skus(code),
		kind TEXT NOT NULL,
		qty INTEGER NOT NULL,
		receipt_date TEXT,
		note TEXT NOT NULL DEFAULT '',
		ref TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	-- Replay hot path
	CREATE INDEX IF NOT EXISTS idx_events_sku_date
		ON events(sku, date);

	-- Exception revert scope
	CREATE INDEX IF NOT EXISTS idx_events_exception
		ON events(date, sku, kind);

	CREATE TABLE IF NOT EXISTS sales (
		date TEXT NOT NULL,
		sku TEXT NOT NULL REFERENCES skus(code),
		qty_sold INTEGER NOT NULL,
		PRIMARY KEY (date, sku)
	);

	CREATE INDEX IF NOT EXISTS idx_sales_sku_date
		ON sales(sku, date);

	CREATE TABLE IF NOT EXISTS order_logs (
		order_id TEXT PRIMARY KEY,
		date TEXT NOT NULL,
		sku TEXT NOT NULL,
		qty INTEGER NOT NULL,
		receipt_date TEXT,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_order_logs_sku
		ON order_logs(sku);

	CREATE TABLE IF NOT EXISTS receiving_logs (
		receipt_key TEXT PRIMARY KEY,
		receipt_date TEXT NOT NULL,
		origin TEXT NOT NULL DEFAULT '',
		lines_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ops implements ledger.Store over a querier without locking. The Store
// methods lock and delegate; WithTx hands an ops bound to the sql.Tx.
type ops struct {
	q querier
}

var _ ledger.Store = ops{}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.withTxLocked(ctx, fn)
}

func (s *Store) withTxLocked(ctx context.Context, fn func(ledger.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(ops{q: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// =============================================================================
// LOCKED ENTRY POINTS
// =============================================================================

// AppendEvents adds a batch of events atomically.
func (s *Store) AppendEvents(ctx context.Context, events []ledger.Event) ([]ledger.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []ledger.Event
	err := s.withTxLocked(ctx, func(tx ledger.Store) error {
		var err error
		out, err = tx.AppendEvents(ctx, events)
		return err
	})
	return out, err
}

func (s *Store) ReadEvents(ctx context.Context, filter ledger.EventFilter) ([]ledger.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ops{q: s.db}.ReadEvents(ctx, filter)
}

func (s *Store) CountEvents(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ops{q: s.db}.CountEvents(ctx)
}

func (s *Store) RemoveExceptionEvents(ctx context.Context, key ledger.ExceptionKey) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ops{q: s.db}.RemoveExceptionEvents(ctx, key)
}

func (s *Store) SaveSKU(ctx context.Context, sku ledger.SKU) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ops{q: s.db}.SaveSKU(ctx, sku)
}

func (s *Store) ReadSKU(ctx context.Context, code string) (ledger.SKU, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ops{q: s.db}.ReadSKU(ctx, code)
}

func (s *Store) ListSKUs(ctx context.Context) ([]ledger.SKU, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ops{q: s.db}.ListSKUs(ctx)
}

func (s *Store) UpsertSales(ctx context.Context, records []ledger.SalesRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.withTxLocked(ctx, func(tx ledger.Store) error {
		return tx.UpsertSales(ctx, records)
	})
}

func (s *Store) ReadSales(ctx context.Context, sku string, from, before ledger.Date) ([]ledger.SalesRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ops{q: s.db}.ReadSales(ctx, sku, from, before)
}

func (s *Store) FindReceivingLog(ctx context.Context, key ledger.ReceiptKey) (ledger.ReceivingLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ops{q: s.db}.FindReceivingLog(ctx, key)
}

func (s *Store) SaveReceivingLog(ctx context.Context, entry ledger.ReceivingLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ops{q: s.db}.SaveReceivingLog(ctx, entry)
}

func (s *Store) FindOrderLog(ctx context.Context, id ledger.OrderID) (ledger.OrderLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ops{q: s.db}.FindOrderLog(ctx, id)
}

func (s *Store) SaveOrderLog(ctx context.Context, entry ledger.OrderLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ops{q: s.db}.SaveOrderLog(ctx, entry)
}

func (s *Store) ListOrderLogs(ctx context.Context, sku string) ([]ledger.OrderLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ops{q: s.db}.ListOrderLogs(ctx, sku)
}

// Reset clears every table. Development only.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"events", "sales", "order_logs", "receiving_logs", "skus"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}
	return nil
}

// =============================================================================
// EVENTS
// =============================================================================

func (o ops) AppendEvents(ctx context.Context, events []ledger.Event) ([]ledger.Event, error) {
	out := make([]ledger.Event, 0, len(events))
	now := time.Now().UTC().Format(time.RFC3339)

	for _, e := range events {
		if err := e.Validate(); err != nil {
			return nil, err
		}
		if _, err := o.ReadSKU(ctx, e.SKU); err != nil {
			return nil, err
		}
		if e.ID == "" {
			e.ID = ledger.EventID(uuid.NewString())
		}

		res, err := o.q.ExecContext(ctx, `
			INSERT INTO events (id, date, sku, kind, qty, receipt_date, note, ref, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, e.ID, e.Date, e.SKU, e.Kind, e.Qty, e.ReceiptDate, e.Note, e.Ref, now)
		if err != nil {
			if isUniqueConstraintError(err) {
				return nil, ledger.ErrDuplicateIdempotencyKey
			}
			return nil, fmt.Errorf("failed to append event: %w", err)
		}
		seq, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("failed to read event seq: %w", err)
		}
		e.Seq = seq
		out = append(out, e)
	}
	return out, nil
}

func (o ops) ReadEvents(ctx context.Context, filter ledger.EventFilter) ([]ledger.Event, error) {
	var (
		where []string
		args  []any
	)
	if filter.SKU != "" {
		where = append(where, "sku = ?")
		args = append(args, filter.SKU)
	}
	if !filter.From.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, filter.From)
	}
	if !filter.Before.IsZero() {
		where = append(where, "date < ?")
		args = append(args, filter.Before)
	}
	if len(filter.Kinds) > 0 {
		marks := make([]string, len(filter.Kinds))
		for i, k := range filter.Kinds {
			marks[i] = "?"
			args = append(args, string(k))
		}
		where = append(where, "kind IN ("+strings.Join(marks, ", ")+")")
	}

	query := `SELECT seq, id, date, sku, kind, qty, receipt_date, note, ref FROM events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq ASC"

	rows, err := o.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []ledger.Event
	for rows.Next() {
		var (
			e    ledger.Event
			kind string
		)
		if err := rows.Scan(&e.Seq, &e.ID, &e.Date, &e.SKU, &kind, &e.Qty, &e.ReceiptDate, &e.Note, &e.Ref); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if e.Kind, err = ledger.ParseKind(kind); err != nil {
			return nil, fmt.Errorf("event %s: %w", e.ID, err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (o ops) CountEvents(ctx context.Context) (int, error) {
	var count int
	err := o.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&count)
	return count, err
}

func (o ops) RemoveExceptionEvents(ctx context.Context, key ledger.ExceptionKey) (int, error) {
	res, err := o.q.ExecContext(ctx,
		"DELETE FROM events WHERE date = ? AND sku = ? AND kind = ?",
		key.Date, key.SKU, string(key.Kind),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to revert %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// =============================================================================
// SKUS
// =============================================================================

func (o ops) SaveSKU(ctx context.Context, sku ledger.SKU) error {
	if sku.Code == "" {
		return &ledger.ValidationError{Field: "sku", Message: "must not be empty"}
	}
	query := `
		INSERT INTO skus (code, description, ean, ean_status, lead_time_days, safety_stock,
		                  min_shelf_life_days, moq, demand_variability, in_assortment, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			description = excluded.description,
			ean = excluded.ean,
			ean_status = excluded.ean_status,
			lead_time_days = excluded.lead_time_days,
			safety_stock = excluded.safety_stock,
			min_shelf_life_days = excluded.min_shelf_life_days,
			moq = excluded.moq,
			demand_variability = excluded.demand_variability,
			in_assortment = excluded.in_assortment,
			updated_at = excluded.updated_at
	`
	category := sku.DemandVariability
	if category == "" {
		category = ledger.DefaultDemandCategory
	}
	status := sku.EANStatus
	if status == "" {
		status = ledger.EANEmpty
	}
	_, err := o.q.ExecContext(ctx, query,
		sku.Code, sku.Description, sku.EAN, string(status), sku.LeadTimeDays, sku.SafetyStock,
		sku.MinShelfLifeDays, sku.MOQ, string(category), sku.InAssortment,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save sku %s: %w", sku.Code, err)
	}
	return nil
}

const skuColumns = `code, description, ean, ean_status, lead_time_days, safety_stock,
	min_shelf_life_days, moq, demand_variability, in_assortment`

func (o ops) ReadSKU(ctx context.Context, code string) (ledger.SKU, error) {
	row := o.q.QueryRowContext(ctx, "SELECT "+skuColumns+" FROM skus WHERE code = ?", code)
	sku, err := scanSKU(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.SKU{}, &ledger.UnknownSKUError{SKU: code}
	}
	return sku, err
}

func (o ops) ListSKUs(ctx context.Context) ([]ledger.SKU, error) {
	rows, err := o.q.QueryContext(ctx, "SELECT "+skuColumns+" FROM skus ORDER BY code")
	if err != nil {
		return nil, fmt.Errorf("failed to list skus: %w", err)
	}
	defer rows.Close()

	var skus []ledger.SKU
	for rows.Next() {
		sku, err := scanSKU(rows)
		if err != nil {
			return nil, err
		}
		skus = append(skus, sku)
	}
	return skus, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSKU(row rowScanner) (ledger.SKU, error) {
	var (
		sku      ledger.SKU
		status   string
		category string
	)
	err := row.Scan(&sku.Code, &sku.Description, &sku.EAN, &status, &sku.LeadTimeDays, &sku.SafetyStock,
		&sku.MinShelfLifeDays, &sku.MOQ, &category, &sku.InAssortment)
	if err != nil {
		return ledger.SKU{}, err
	}
	sku.EANStatus = ledger.EANStatus(status)
	if sku.DemandVariability, err = ledger.ParseDemandCategory(category); err != nil {
		return ledger.SKU{}, err
	}
	return sku, nil
}

// =============================================================================
// SALES
// =============================================================================

func (o ops) UpsertSales(ctx context.Context, records []ledger.SalesRecord) error {
	for _, r := range records {
		if _, err := o.ReadSKU(ctx, r.SKU); err != nil {
			return err
		}
		_, err := o.q.ExecContext(ctx, `
			INSERT INTO sales (date, sku, qty_sold) VALUES (?, ?, ?)
			ON CONFLICT(date, sku) DO UPDATE SET qty_sold = excluded.qty_sold
		`, r.Date, r.SKU, r.QtySold)
		if err != nil {
			return fmt.Errorf("failed to upsert sales %s/%s: %w", r.Date, r.SKU, err)
		}
	}
	return nil
}

func (o ops) ReadSales(ctx context.Context, sku string, from, before ledger.Date) ([]ledger.SalesRecord, error) {
	var (
		where []string
		args  []any
	)
	if sku != "" {
		where = append(where, "sku = ?")
		args = append(args, sku)
	}
	if !from.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, from)
	}
	if !before.IsZero() {
		where = append(where, "date < ?")
		args = append(args, before)
	}
	query := "SELECT date, sku, qty_sold FROM sales"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date ASC, sku ASC"

	rows, err := o.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sales: %w", err)
	}
	defer rows.Close()

	var out []ledger.SalesRecord
	for rows.Next() {
		var r ledger.SalesRecord
		if err := rows.Scan(&r.Date, &r.SKU, &r.QtySold); err != nil {
			return nil, fmt.Errorf("failed to scan sales: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// =============================================================================
// AUDIT LOGS
// =============================================================================

func (o ops) FindReceivingLog(ctx context.Context, key ledger.ReceiptKey) (ledger.ReceivingLog, error) {
	var (
		entry     ledger.ReceivingLog
		rawKey    string
		linesJSON string
		createdAt string
	)
	err := o.q.QueryRowContext(ctx,
		"SELECT receipt_key, receipt_date, origin, lines_json, created_at FROM receiving_logs WHERE receipt_key = ?",
		key.String(),
	).Scan(&rawKey, &entry.ReceiptDate, &entry.Origin, &linesJSON, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.ReceivingLog{}, ledger.ErrNotFound
	}
	if err != nil {
		return ledger.ReceivingLog{}, fmt.Errorf("failed to read receiving log: %w", err)
	}
	entry.Key = key
	if err := json.Unmarshal([]byte(linesJSON), &entry.Lines); err != nil {
		return ledger.ReceivingLog{}, fmt.Errorf("decode receipt lines: %w", err)
	}
	entry.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return entry, nil
}

func (o ops) SaveReceivingLog(ctx context.Context, entry ledger.ReceivingLog) error {
	linesJSON, err := json.Marshal(entry.Lines)
	if err != nil {
		return fmt.Errorf("encode receipt lines: %w", err)
	}
	_, err = o.q.ExecContext(ctx, `
		INSERT INTO receiving_logs (receipt_key, receipt_date, origin, lines_json, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, entry.Key.String(), entry.ReceiptDate, entry.Origin, string(linesJSON), entry.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to save receiving log: %w", err)
	}
	return nil
}

const orderColumns = "order_id, date, sku, qty, receipt_date, status, created_at"

func (o ops) FindOrderLog(ctx context.Context, id ledger.OrderID) (ledger.OrderLog, error) {
	row := o.q.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM order_logs WHERE order_id = ?", id.String())
	entry, err := scanOrderLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.OrderLog{}, ledger.ErrNotFound
	}
	return entry, err
}

func (o ops) SaveOrderLog(ctx context.Context, entry ledger.OrderLog) error {
	_, err := o.q.ExecContext(ctx, `
		INSERT INTO order_logs (order_id, date, sku, qty, receipt_date, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, entry.OrderID.String(), entry.Date, entry.SKU, entry.Qty, entry.ReceiptDate,
		string(entry.Status), entry.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to save order log: %w", err)
	}
	return nil
}

func (o ops) ListOrderLogs(ctx context.Context, sku string) ([]ledger.OrderLog, error) {
	query := "SELECT " + orderColumns + " FROM order_logs"
	var args []any
	if sku != "" {
		query += " WHERE sku = ?"
		args = append(args, sku)
	}
	query += " ORDER BY order_id"

	rows, err := o.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list order logs: %w", err)
	}
	defer rows.Close()

	var out []ledger.OrderLog
	for rows.Next() {
		entry, err := scanOrderLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func scanOrderLog(row rowScanner) (ledger.OrderLog, error) {
	var (
		entry     ledger.OrderLog
		id        string
		status    string
		createdAt string
	)
	if err := row.Scan(&id, &entry.Date, &entry.SKU, &entry.Qty, &entry.ReceiptDate, &status, &createdAt); err != nil {
		return ledger.OrderLog{}, err
	}
	var err error
	if entry.OrderID, err = ledger.OrderIDFromString(id); err != nil {
		return ledger.OrderLog{}, err
	}
	entry.Status = ledger.OrderStatus(status)
	entry.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return entry, nil
}

// Helper functions

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
