/*
Package storetest holds the behavioral contract every ledger.TxStore must
satisfy. Backends call Run from their own tests so memory and SQLite are
held to the same rules:

  - append assigns ids and increasing Seq, and rejects unknown SKUs
    without writing any part of the batch
  - reads preserve insertion order and honor EventFilter bounds
  - RemoveExceptionEvents touches only exact key matches
  - log keys are write-once (ErrDuplicateIdempotencyKey)
  - WithTx rolls back every write on error
  - receipt dates survive a round trip, including the absent one
*/
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stock-ledger/ledger"
)

// Factory opens an empty store for one subtest.
type Factory func(t *testing.T) ledger.TxStore

// Run executes the contract against stores produced by open.
func Run(t *testing.T, open Factory) {
	t.Run("AppendAssignsIdentity", func(t *testing.T) { testAppendAssignsIdentity(t, open(t)) })
	t.Run("AppendIsAtomic", func(t *testing.T) { testAppendIsAtomic(t, open(t)) })
	t.Run("ReadFilters", func(t *testing.T) { testReadFilters(t, open(t)) })
	t.Run("RemoveExceptionEvents", func(t *testing.T) { testRemoveExceptionEvents(t, open(t)) })
	t.Run("Catalog", func(t *testing.T) { testCatalog(t, open(t)) })
	t.Run("Sales", func(t *testing.T) { testSales(t, open(t)) })
	t.Run("Logs", func(t *testing.T) { testLogs(t, open(t)) })
	t.Run("RollBack", func(t *testing.T) { testRollBack(t, open(t)) })
}

// =============================================================================
// HELPERS
// =============================================================================

func date(s string) ledger.Date { return ledger.MustParseDate(s) }

func seed(t *testing.T, s ledger.TxStore, codes ...string) {
	t.Helper()
	for _, code := range codes {
		require.NoError(t, s.SaveSKU(context.Background(), ledger.SKU{
			Code:              code,
			DemandVariability: ledger.DefaultDemandCategory,
			EANStatus:         ledger.EANEmpty,
			InAssortment:      true,
		}))
	}
}

func event(day, sku string, kind ledger.Kind, qty int) ledger.Event {
	return ledger.Event{Date: date(day), SKU: sku, Kind: kind, Qty: qty}
}

// =============================================================================
// EVENTS
// =============================================================================

func testAppendAssignsIdentity(t *testing.T, s ledger.TxStore) {
	ctx := context.Background()
	seed(t, s, "A")

	withReceipt := event("2024-01-02", "A", ledger.KindOrder, 5)
	withReceipt.ReceiptDate = date("2024-01-09")
	withReceipt.Note = "lane 1"
	withReceipt.Ref = "2024-01-02_A_001"

	out, err := s.AppendEvents(ctx, []ledger.Event{
		event("2024-01-01", "A", ledger.KindSnapshot, 10),
		withReceipt,
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.NotEmpty(t, out[0].ID)
	assert.NotEqual(t, out[0].ID, out[1].ID)
	assert.Less(t, out[0].Seq, out[1].Seq)

	read, err := s.ReadEvents(ctx, ledger.EventFilter{SKU: "A"})
	require.NoError(t, err)
	require.Len(t, read, 2)
	assert.Equal(t, out, read)
	assert.True(t, read[0].ReceiptDate.IsZero())
	assert.Equal(t, "2024-01-09", read[1].ReceiptDate.String())

	count, err := s.CountEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func testAppendIsAtomic(t *testing.T, s ledger.TxStore) {
	ctx := context.Background()
	seed(t, s, "A")

	_, err := s.AppendEvents(ctx, []ledger.Event{
		event("2024-01-01", "A", ledger.KindSnapshot, 10),
		event("2024-01-01", "MISSING", ledger.KindSale, 1),
	})
	assert.ErrorIs(t, err, ledger.ErrUnknownSKU)

	_, err = s.AppendEvents(ctx, []ledger.Event{event("2024-01-01", "A", ledger.Kind("BOGUS"), 1)})
	assert.ErrorIs(t, err, ledger.ErrUnknownKind)

	count, err := s.CountEvents(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func testReadFilters(t *testing.T, s ledger.TxStore) {
	ctx := context.Background()
	seed(t, s, "A", "B")
	_, err := s.AppendEvents(ctx, []ledger.Event{
		event("2024-01-01", "A", ledger.KindSnapshot, 10),
		event("2024-01-02", "B", ledger.KindSnapshot, 3),
		event("2024-01-03", "A", ledger.KindSale, 1),
		event("2024-01-04", "A", ledger.KindWaste, 1),
	})
	require.NoError(t, err)

	read := func(f ledger.EventFilter) int {
		events, err := s.ReadEvents(ctx, f)
		require.NoError(t, err)
		return len(events)
	}

	assert.Equal(t, 4, read(ledger.EventFilter{}))
	assert.Equal(t, 3, read(ledger.EventFilter{SKU: "A"}))
	assert.Equal(t, 2, read(ledger.EventFilter{SKU: "A", Before: date("2024-01-04")}))
	assert.Equal(t, 2, read(ledger.EventFilter{From: date("2024-01-03")}))
	assert.Equal(t, 2, read(ledger.EventFilter{Kinds: []ledger.Kind{ledger.KindSale, ledger.KindWaste}}))
	assert.Equal(t, 0, read(ledger.EventFilter{SKU: "B", Before: date("2024-01-02")}))
}

func testRemoveExceptionEvents(t *testing.T, s ledger.TxStore) {
	ctx := context.Background()
	seed(t, s, "A", "B")
	_, err := s.AppendEvents(ctx, []ledger.Event{
		event("2024-01-05", "A", ledger.KindWaste, 2),
		event("2024-01-05", "A", ledger.KindWaste, 3),
		event("2024-01-05", "A", ledger.KindAdjust, 1),
		event("2024-01-05", "B", ledger.KindWaste, 4),
		event("2024-01-06", "A", ledger.KindWaste, 5),
	})
	require.NoError(t, err)

	key, err := ledger.NewExceptionKey(date("2024-01-05"), "A", ledger.KindWaste)
	require.NoError(t, err)
	removed, err := s.RemoveExceptionEvents(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	left, err := s.ReadEvents(ctx, ledger.EventFilter{})
	require.NoError(t, err)
	assert.Len(t, left, 3)
	for _, e := range left {
		assert.False(t, key.Matches(e))
	}

	removed, err = s.RemoveExceptionEvents(ctx, key)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

// =============================================================================
// MASTER DATA AND SALES
// =============================================================================

func testCatalog(t *testing.T, s ledger.TxStore) {
	ctx := context.Background()
	sku := ledger.SKU{
		Code:              "C1",
		Description:       "Latte 1L",
		EAN:               "8001234567890",
		EANStatus:         ledger.EANInvalid,
		LeadTimeDays:      2,
		SafetyStock:       12,
		MinShelfLifeDays:  5,
		MOQ:               6,
		DemandVariability: ledger.DemandSeasonal,
		InAssortment:      false,
	}
	require.NoError(t, s.SaveSKU(ctx, sku))

	got, err := s.ReadSKU(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, sku, got)

	sku.SafetyStock = 20
	require.NoError(t, s.SaveSKU(ctx, sku))
	got, _ = s.ReadSKU(ctx, "C1")
	assert.Equal(t, 20, got.SafetyStock)

	seed(t, s, "A")
	all, err := s.ListSKUs(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "A", all[0].Code)

	_, err = s.ReadSKU(ctx, "nope")
	var unknown *ledger.UnknownSKUError
	assert.True(t, errors.As(err, &unknown))
}

func testSales(t *testing.T, s ledger.TxStore) {
	ctx := context.Background()
	seed(t, s, "A", "B")

	require.NoError(t, s.UpsertSales(ctx, []ledger.SalesRecord{
		{Date: date("2024-01-02"), SKU: "A", QtySold: 4},
		{Date: date("2024-01-01"), SKU: "A", QtySold: 3},
		{Date: date("2024-01-01"), SKU: "B", QtySold: 9},
	}))
	require.NoError(t, s.UpsertSales(ctx, []ledger.SalesRecord{
		{Date: date("2024-01-02"), SKU: "A", QtySold: 6},
	}))

	a, err := s.ReadSales(ctx, "A", ledger.Date{}, ledger.Date{})
	require.NoError(t, err)
	require.Len(t, a, 2)
	assert.Equal(t, 3, a[0].QtySold)
	assert.Equal(t, 6, a[1].QtySold)

	window, err := s.ReadSales(ctx, "", date("2024-01-01"), date("2024-01-02"))
	require.NoError(t, err)
	assert.Len(t, window, 2)

	err = s.UpsertSales(ctx, []ledger.SalesRecord{{Date: date("2024-01-01"), SKU: "Z", QtySold: 1}})
	assert.ErrorIs(t, err, ledger.ErrUnknownSKU)
}

// =============================================================================
// IDEMPOTENCY LOGS
// =============================================================================

func testLogs(t *testing.T, s ledger.TxStore) {
	ctx := context.Background()
	seed(t, s, "A")

	key, err := ledger.CompositeReceiptKey(date("2024-01-10"), "DC", "A")
	require.NoError(t, err)
	_, err = s.FindReceivingLog(ctx, key)
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	entry := ledger.ReceivingLog{
		Key:         key,
		ReceiptDate: date("2024-01-10"),
		Origin:      "DC",
		Lines:       []ledger.ReceiptLine{{SKU: "A", Qty: 12}},
	}
	require.NoError(t, s.SaveReceivingLog(ctx, entry))
	assert.ErrorIs(t, s.SaveReceivingLog(ctx, entry), ledger.ErrDuplicateIdempotencyKey)

	got, err := s.FindReceivingLog(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, entry.Lines, got.Lines)
	assert.Equal(t, "DC", got.Origin)

	id, err := ledger.NewOrderID(date("2024-01-08"), "A", 1)
	require.NoError(t, err)
	order := ledger.OrderLog{OrderID: id, Date: date("2024-01-08"), SKU: "A", Qty: 30, Status: ledger.OrderPending}
	require.NoError(t, s.SaveOrderLog(ctx, order))
	assert.ErrorIs(t, s.SaveOrderLog(ctx, order), ledger.ErrDuplicateIdempotencyKey)

	found, err := s.FindOrderLog(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 30, found.Qty)
	assert.True(t, found.ReceiptDate.IsZero())

	logs, err := s.ListOrderLogs(ctx, "A")
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func testRollBack(t *testing.T, s ledger.TxStore) {
	ctx := context.Background()
	seed(t, s, "A")
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx ledger.Store) error {
		if _, err := tx.AppendEvents(ctx, []ledger.Event{event("2024-01-01", "A", ledger.KindSnapshot, 1)}); err != nil {
			return err
		}
		id, _ := ledger.NewOrderID(date("2024-01-01"), "A", 1)
		if err := tx.SaveOrderLog(ctx, ledger.OrderLog{OrderID: id, Date: date("2024-01-01"), SKU: "A", Qty: 1, Status: ledger.OrderPending}); err != nil {
			return err
		}
		if err := tx.SaveSKU(ctx, ledger.SKU{Code: "B"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	count, err := s.CountEvents(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
	logs, err := s.ListOrderLogs(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, logs)
	_, err = s.ReadSKU(ctx, "B")
	assert.ErrorIs(t, err, ledger.ErrUnknownSKU)

	// A successful transaction sees its own writes.
	err = s.WithTx(ctx, func(tx ledger.Store) error {
		if _, err := tx.AppendEvents(ctx, []ledger.Event{event("2024-01-01", "A", ledger.KindSnapshot, 1)}); err != nil {
			return err
		}
		n, err := tx.CountEvents(ctx)
		if err != nil {
			return err
		}
		if n != 1 {
			return errors.New("write not visible inside transaction")
		}
		return nil
	})
	require.NoError(t, err)
}
