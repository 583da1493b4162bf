/*
asof_test.go - Replay and position behavior

ORGANIZATION:
  1. AsOf exclusivity and per-kind effects
  2. Same-day ordering
  3. Receipt-date buckets and inventory position
  4. Visitor dispatch

Every scenario is a pure function of (sku, asof, events); no store needed.
*/
package ledger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stock-ledger/ledger"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func d(s string) ledger.Date { return ledger.MustParseDate(s) }

func ev(date, sku string, kind ledger.Kind, qty int) ledger.Event {
	return ledger.Event{Date: d(date), SKU: sku, Kind: kind, Qty: qty}
}

func order(date, sku string, qty int, receipt string) ledger.Event {
	e := ev(date, sku, ledger.KindOrder, qty)
	e.ReceiptDate = d(receipt)
	return e
}

func receipt(date, sku string, qty int, receiptDate string) ledger.Event {
	e := ev(date, sku, ledger.KindReceipt, qty)
	e.ReceiptDate = d(receiptDate)
	return e
}

// =============================================================================
// 1. ASOF EXCLUSIVITY AND EFFECTS
// =============================================================================

func TestCalculateAsOf_ExcludesEventsOnTheCutoffDay(t *testing.T) {
	// GIVEN: A snapshot and a sale on consecutive days
	events := []ledger.Event{
		ev("2024-01-01", "A", ledger.KindSnapshot, 10),
		ev("2024-01-02", "A", ledger.KindSale, 3),
	}

	// THEN: The sale counts only from the following day
	assert.Equal(t, 0, ledger.CalculateAsOf("A", d("2024-01-01"), events).OnHand)
	assert.Equal(t, 10, ledger.CalculateAsOf("A", d("2024-01-02"), events).OnHand)
	assert.Equal(t, 7, ledger.CalculateAsOf("A", d("2024-01-03"), events).OnHand)
}

func TestCalculateAsOf_KindEffects(t *testing.T) {
	events := []ledger.Event{
		ev("2024-01-01", "A", ledger.KindSnapshot, 100),
		ev("2024-01-02", "A", ledger.KindOrder, 40),
		ev("2024-01-03", "A", ledger.KindReceipt, 25),
		ev("2024-01-04", "A", ledger.KindSale, 10),
		ev("2024-01-04", "A", ledger.KindWaste, 2),
		ev("2024-01-05", "A", ledger.KindAdjust, -3),
		ev("2024-01-05", "A", ledger.KindUnfulfilled, 4),
		ev("2024-01-05", "A", ledger.KindSKUEdit, 999),
		ev("2024-01-05", "B", ledger.KindSale, 50),
	}

	stock := ledger.CalculateAsOf("A", d("2024-01-06"), events)

	assert.Equal(t, 100+25-10-2-3, stock.OnHand)
	assert.Equal(t, 40-25, stock.OnOrder)
	assert.Equal(t, 4, stock.Unfulfilled)
	assert.Empty(t, stock.Anomalies())
}

func TestCalculateAsOf_SnapshotResetsHistory(t *testing.T) {
	events := []ledger.Event{
		ev("2024-01-01", "A", ledger.KindSnapshot, 10),
		ev("2024-01-02", "A", ledger.KindSale, 30),
		ev("2024-01-03", "A", ledger.KindSnapshot, 5),
	}

	assert.Equal(t, -20, ledger.CalculateAsOf("A", d("2024-01-03"), events).OnHand)
	assert.Equal(t, []string{"negative on_hand"}, ledger.CalculateAsOf("A", d("2024-01-03"), events).Anomalies())
	assert.Equal(t, 5, ledger.CalculateAsOf("A", d("2024-01-04"), events).OnHand)
}

func TestCalculateAsOf_IsDeterministic(t *testing.T) {
	events := []ledger.Event{
		ev("2024-01-02", "A", ledger.KindSale, 1),
		ev("2024-01-01", "A", ledger.KindSnapshot, 10),
		ev("2024-01-02", "A", ledger.KindAdjust, 4),
	}
	first := ledger.CalculateAsOf("A", d("2024-01-10"), events)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ledger.CalculateAsOf("A", d("2024-01-10"), events))
	}
	assert.Equal(t, "2024-01-02", events[0].Date.String(), "input must not be reordered")
}

// =============================================================================
// 2. SAME-DAY ORDERING
// =============================================================================

func TestCalculateAsOf_SameDaySnapshotBeforeReceipt(t *testing.T) {
	// GIVEN: A snapshot of 10 and a receipt of 5 on the same day
	snapshot := ev("2024-01-05", "A", ledger.KindSnapshot, 10)
	rec := ev("2024-01-05", "A", ledger.KindReceipt, 5)
	snapshot.Seq, rec.Seq = 2, 1

	// WHEN: They are replayed in either insertion order
	a := ledger.CalculateAsOf("A", d("2024-01-06"), []ledger.Event{snapshot, rec})
	b := ledger.CalculateAsOf("A", d("2024-01-06"), []ledger.Event{rec, snapshot})

	// THEN: The snapshot always runs first
	assert.Equal(t, 15, a.OnHand)
	assert.Equal(t, 15, b.OnHand)
}

func TestSortEvents_PriorityThenSeq(t *testing.T) {
	unfulfilled := ev("2024-01-01", "A", ledger.KindUnfulfilled, 1)
	sale := ev("2024-01-01", "A", ledger.KindSale, 1)
	adjust := ev("2024-01-01", "A", ledger.KindAdjust, 1)
	snapshot := ev("2024-01-01", "A", ledger.KindSnapshot, 1)
	earlier := ev("2023-12-31", "A", ledger.KindExportLog, 0)
	unfulfilled.Seq, sale.Seq, adjust.Seq, snapshot.Seq, earlier.Seq = 1, 5, 3, 4, 9

	sorted := ledger.SortEvents([]ledger.Event{unfulfilled, sale, adjust, snapshot, earlier})

	var kinds []ledger.Kind
	for _, e := range sorted {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []ledger.Kind{
		ledger.KindExportLog,
		ledger.KindSnapshot,
		ledger.KindAdjust, // seq 3
		ledger.KindSale,   // seq 5
		ledger.KindUnfulfilled,
	}, kinds)
}

// =============================================================================
// 3. RECEIPT-DATE BUCKETS
// =============================================================================

func dualLane() []ledger.Event {
	return []ledger.Event{
		ev("2024-02-01", "A", ledger.KindSnapshot, 50),
		order("2024-02-09", "A", 30, "2024-02-10"),
		order("2024-02-09", "A", 50, "2024-02-12"),
	}
}

func TestInventoryPosition_DualLane(t *testing.T) {
	events := dualLane()

	assert.Equal(t, 50, ledger.InventoryPosition("A", d("2024-02-09"), events))
	assert.Equal(t, 80, ledger.InventoryPosition("A", d("2024-02-10"), events))
	assert.Equal(t, 80, ledger.InventoryPosition("A", d("2024-02-11"), events))
	assert.Equal(t, 130, ledger.InventoryPosition("A", d("2024-02-12"), events))
}

func TestOnOrderByDate_ReceiptsNetTheirBucket(t *testing.T) {
	events := append(dualLane(),
		receipt("2024-02-10", "A", 30, "2024-02-10"),
		receipt("2024-02-12", "A", 20, "2024-02-12"),
		receipt("2024-02-12", "A", 7, "2024-03-01"), // no matching bucket
	)

	buckets := ledger.OnOrderByDate("A", events, nil)
	assert.Equal(t, map[ledger.Date]int{d("2024-02-12"): 30}, buckets)

	// Before the receipts were booked both lanes were open
	cutoff := d("2024-02-10")
	buckets = ledger.OnOrderByDate("A", events, &cutoff)
	assert.Equal(t, map[ledger.Date]int{d("2024-02-10"): 30, d("2024-02-12"): 50}, buckets)
}

func TestOnOrderByDate_IgnoresOrdersWithoutReceiptDate(t *testing.T) {
	events := []ledger.Event{ev("2024-02-01", "A", ledger.KindOrder, 12)}

	assert.Empty(t, ledger.OnOrderByDate("A", events, nil))
	assert.Equal(t, 12, ledger.CalculateAsOf("A", d("2024-02-02"), events).OnOrder)
}

func TestPositionBreakdown_SubtractsUnfulfilled(t *testing.T) {
	events := append(dualLane(), ev("2024-02-05", "A", ledger.KindUnfulfilled, 8))

	pos := ledger.PositionBreakdown("A", d("2024-02-10"), events)

	assert.Equal(t, 50, pos.OnHand)
	assert.Equal(t, 8, pos.Unfulfilled)
	assert.Equal(t, 30, pos.Arriving)
	assert.Equal(t, 72, pos.IP)
	require.Len(t, pos.Buckets, 2)
	assert.True(t, pos.Buckets[0].ReceiptDate.Equal(d("2024-02-10")))
	assert.Equal(t, 50, pos.Buckets[1].Qty)
}

// =============================================================================
// 4. VISITOR DISPATCH
// =============================================================================

type kindCounter map[string]int

func (c kindCounter) VisitSnapshot(ledger.Event)       { c["snapshot"]++ }
func (c kindCounter) VisitOrder(ledger.Event)          { c["order"]++ }
func (c kindCounter) VisitReceipt(ledger.Event)        { c["receipt"]++ }
func (c kindCounter) VisitSale(ledger.Event)           { c["sale"]++ }
func (c kindCounter) VisitWaste(ledger.Event)          { c["waste"]++ }
func (c kindCounter) VisitAdjust(ledger.Event)         { c["adjust"]++ }
func (c kindCounter) VisitUnfulfilled(ledger.Event)    { c["unfulfilled"]++ }
func (c kindCounter) VisitAdministrative(ledger.Event) { c["admin"]++ }

func TestAccept_RoutesEveryKind(t *testing.T) {
	c := kindCounter{}
	for _, k := range ledger.Kinds {
		require.NoError(t, ev("2024-01-01", "A", k, 1).Accept(c))
	}

	assert.Equal(t, 4, c["admin"])
	assert.Equal(t, 1, c["snapshot"])
	assert.Equal(t, 1, c["unfulfilled"])

	err := ev("2024-01-01", "A", ledger.Kind("TRANSFER"), 1).Accept(c)
	assert.ErrorIs(t, err, ledger.ErrUnknownKind)
}

func TestParseKind(t *testing.T) {
	k, err := ledger.ParseKind("WASTE")
	require.NoError(t, err)
	assert.True(t, k.IsException())
	assert.False(t, ledger.KindSale.IsException())
	assert.True(t, ledger.KindExportLog.IsAdministrative())

	_, err = ledger.ParseKind("waste")
	assert.ErrorIs(t, err, ledger.ErrUnknownKind)
}
