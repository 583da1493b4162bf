/*
asof.go - AsOf stock calculator (the replay)

PURPOSE:
  Derives Stock for one SKU by replaying its events dated strictly before
  a cutoff. This is the only place event kinds turn into quantities.

EVENT EFFECTS:
  SNAPSHOT     on_hand := qty          (absolute reset)
  ORDER        on_order += qty
  RECEIPT      on_order -= qty; on_hand += qty
  SALE         on_hand -= qty
  WASTE        on_hand -= qty
  ADJUST       on_hand += qty          (qty may be negative)
  UNFULFILLED  unfulfilled += qty      (no stock effect)
  admin kinds  nothing

ORDERING:
  1. date ascending
  2. kind priority: SNAPSHOT < ORDER,RECEIPT < SALE,WASTE,ADJUST < UNFULFILLED
  3. insertion order (Seq, then position in the input slice)

  A same-day SNAPSHOT therefore resets stock before that day's RECEIPT is
  added, regardless of which was appended first.

DETERMINISM:
  No clock, no I/O. Same (sku, asof, events) always yields the same Stock.
  Negative results are reported as-is; see Stock.Anomalies.

SEE ALSO:
  - position.go: receipt-date buckets built on the same ordering
  - engine.go:   store-backed wrapper with SKU check and cache
*/
package ledger

import "sort"

// =============================================================================
// ORDERING
// =============================================================================

// SortEvents returns a copy of events in replay order. The input is not
// modified.
func SortEvents(events []Event) []Event {
	sorted := make([]Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return replayLess(sorted[i], sorted[j])
	})
	return sorted
}

func replayLess(a, b Event) bool {
	if c := a.Date.Compare(b.Date); c != 0 {
		return c < 0
	}
	if pa, pb := a.Kind.Priority(), b.Kind.Priority(); pa != pb {
		return pa < pb
	}
	// Unappended events (Seq 0) keep slice order via the stable sort.
	return a.Seq < b.Seq
}

// =============================================================================
// REPLAY
// =============================================================================

// stockReplay accumulates stock while visiting events in order.
type stockReplay struct {
	stock Stock
}

func (r *stockReplay) VisitSnapshot(e Event) { r.stock.OnHand = e.Qty }
func (r *stockReplay) VisitOrder(e Event)    { r.stock.OnOrder += e.Qty }
func (r *stockReplay) VisitReceipt(e Event) {
	r.stock.OnOrder -= e.Qty
	r.stock.OnHand += e.Qty
}
func (r *stockReplay) VisitSale(e Event)           { r.stock.OnHand -= e.Qty }
func (r *stockReplay) VisitWaste(e Event)          { r.stock.OnHand -= e.Qty }
func (r *stockReplay) VisitAdjust(e Event)         { r.stock.OnHand += e.Qty }
func (r *stockReplay) VisitUnfulfilled(e Event)    { r.stock.Unfulfilled += e.Qty }
func (r *stockReplay) VisitAdministrative(_ Event) {}

var _ EventVisitor = (*stockReplay)(nil)

// CalculateAsOf replays the events of sku dated before asOf. Events for
// other SKUs are ignored, so callers may pass an unfiltered snapshot. Events
// of unknown kind are skipped; they cannot enter a store (Event.Validate).
func CalculateAsOf(sku string, asOf Date, events []Event) Stock {
	r := &stockReplay{stock: Stock{SKU: sku, AsOf: asOf}}
	for _, e := range SortEvents(filterBefore(sku, asOf, events)) {
		_ = e.Accept(r)
	}
	return r.stock
}

// filterBefore keeps the events of sku strictly before asOf. A zero asOf
// keeps everything.
func filterBefore(sku string, asOf Date, events []Event) []Event {
	out := make([]Event, 0, len(events))
	for _, e := range events {
		if e.SKU != sku {
			continue
		}
		if !asOf.IsZero() && !e.Date.Before(asOf) {
			continue
		}
		out = append(out, e)
	}
	return out
}
