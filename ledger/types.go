/*
Package ledger provides the event-sourced stock engine.

PURPOSE:
  Every stock fact is an immutable, dated Event. Stock is never stored: it
  is derived by replaying the events of a SKU strictly before a cutoff date.
  This package owns the event model, the replay (AsOf calculator), the
  receipt-date aware inventory position, the idempotency key types and the
  persistence contract the workflow layer writes through.

KEY CONCEPTS IN THIS FILE (types.go):
  - Kind:         closed set of event kinds, persisted as upper-case strings
  - EventVisitor: one method per kind; the replay implements it, so adding
                  a kind breaks compilation of every visitor
  - Event:        a ledger entry (immutable once appended)
  - SKU:          master record and planning parameters (configuration)
  - SalesRecord:  daily sales aggregate, external input
  - Stock:        derived on-hand / on-order / unfulfilled

DESIGN PRINCIPLES:
  1. Immutability: events are appended, never edited
  2. Derivation: Stock is a pure function of (sku, asof, events)
  3. Determinism: no clock reads, no I/O in projections
  4. Auditability: every event carries the key of the operation that wrote it

SEE ALSO:
  - asof.go:     the replay
  - position.go: receipt-date buckets and inventory position
  - keys.go:     idempotency key value types
  - store.go:    persistence contract
*/
package ledger

import "time"

// =============================================================================
// KIND - Closed set of event kinds
// =============================================================================

type Kind string

const (
	KindSnapshot    Kind = "SNAPSHOT"
	KindOrder       Kind = "ORDER"
	KindReceipt     Kind = "RECEIPT"
	KindSale        Kind = "SALE"
	KindWaste       Kind = "WASTE"
	KindAdjust      Kind = "ADJUST"
	KindUnfulfilled Kind = "UNFULFILLED"

	// Administrative kinds, no stock effect.
	KindSKUEdit       Kind = "SKU_EDIT"
	KindExportLog     Kind = "EXPORT_LOG"
	KindAssortmentIn  Kind = "ASSORTMENT_IN"
	KindAssortmentOut Kind = "ASSORTMENT_OUT"
)

// Kinds lists every known kind in replay priority order.
var Kinds = []Kind{
	KindSnapshot,
	KindOrder, KindReceipt,
	KindSale, KindWaste, KindAdjust,
	KindUnfulfilled,
	KindSKUEdit, KindExportLog, KindAssortmentIn, KindAssortmentOut,
}

// Same-day replay priority. Lower runs first.
var kindPriority = map[Kind]int{
	KindSnapshot:      0,
	KindOrder:         1,
	KindReceipt:       1,
	KindSale:          2,
	KindWaste:         2,
	KindAdjust:        2,
	KindUnfulfilled:   3,
	KindSKUEdit:       4,
	KindExportLog:     4,
	KindAssortmentIn:  4,
	KindAssortmentOut: 4,
}

// ParseKind validates a persisted kind string.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.IsValid() {
		return "", &UnknownKindError{Kind: s}
	}
	return k, nil
}

func (k Kind) IsValid() bool {
	_, ok := kindPriority[k]
	return ok
}

// Priority is the same-day ordering rank of the kind.
func (k Kind) Priority() int {
	if p, ok := kindPriority[k]; ok {
		return p
	}
	return len(kindPriority)
}

// IsException reports whether the kind may be recorded (and reverted) as a
// daily exception.
func (k Kind) IsException() bool {
	return k == KindWaste || k == KindAdjust || k == KindUnfulfilled
}

// IsAdministrative reports whether the kind carries no stock effect at all.
func (k Kind) IsAdministrative() bool {
	return k.Priority() == 4
}

func (k Kind) String() string { return string(k) }

// =============================================================================
// EVENT VISITOR - Exhaustive per-kind dispatch
// =============================================================================

// EventVisitor receives one call per event, routed by kind. Every consumer
// that interprets events implements the whole interface.
type EventVisitor interface {
	VisitSnapshot(e Event)
	VisitOrder(e Event)
	VisitReceipt(e Event)
	VisitSale(e Event)
	VisitWaste(e Event)
	VisitAdjust(e Event)
	VisitUnfulfilled(e Event)
	VisitAdministrative(e Event)
}

// Accept routes the event to the visitor method for its kind.
func (e Event) Accept(v EventVisitor) error {
	switch e.Kind {
	case KindSnapshot:
		v.VisitSnapshot(e)
	case KindOrder:
		v.VisitOrder(e)
	case KindReceipt:
		v.VisitReceipt(e)
	case KindSale:
		v.VisitSale(e)
	case KindWaste:
		v.VisitWaste(e)
	case KindAdjust:
		v.VisitAdjust(e)
	case KindUnfulfilled:
		v.VisitUnfulfilled(e)
	case KindSKUEdit, KindExportLog, KindAssortmentIn, KindAssortmentOut:
		v.VisitAdministrative(e)
	default:
		return &UnknownKindError{Kind: string(e.Kind)}
	}
	return nil
}

// =============================================================================
// EVENT - Immutable ledger entry
// =============================================================================

type EventID string

type Event struct {
	ID   EventID
	Seq  int64 // Store-assigned insertion order. Zero until appended.
	Date Date
	SKU  string
	Kind Kind
	Qty  int

	// ReceiptDate is the expected (ORDER) or actual (RECEIPT) arrival day.
	// Zero means not set.
	ReceiptDate Date

	Note string
	Ref  string // Idempotency key of the operation that wrote the event
}

// HasReceiptDate reports whether the event carries a receipt date that the
// position pipeline should bucket on.
func (e Event) HasReceiptDate() bool {
	return !e.ReceiptDate.IsZero() && (e.Kind == KindOrder || e.Kind == KindReceipt)
}

// Validate checks the shape of an event before it is appended.
func (e Event) Validate() error {
	if e.SKU == "" {
		return &ValidationError{Field: "sku", Message: "must not be empty"}
	}
	if e.Date.IsZero() {
		return &ValidationError{Field: "date", Message: "must be set"}
	}
	if !e.Kind.IsValid() {
		return &UnknownKindError{Kind: string(e.Kind)}
	}
	return nil
}

// =============================================================================
// SKU - Master data (configuration, not derived state)
// =============================================================================

// DemandCategory is the demand-variability class of a SKU.
type DemandCategory string

const (
	DemandStable   DemandCategory = "STABLE"
	DemandLow      DemandCategory = "LOW"
	DemandHigh     DemandCategory = "HIGH"
	DemandSeasonal DemandCategory = "SEASONAL"
)

// DefaultDemandCategory doubles as the "never classified" marker.
const DefaultDemandCategory = DemandStable

func ParseDemandCategory(s string) (DemandCategory, error) {
	switch c := DemandCategory(s); c {
	case DemandStable, DemandLow, DemandHigh, DemandSeasonal:
		return c, nil
	case "":
		return DefaultDemandCategory, nil
	default:
		return "", &ValidationError{Field: "demand_variability", Message: "unknown category " + s}
	}
}

// EANStatus is the displayable outcome of barcode validation. An invalid EAN
// never blocks an operation.
type EANStatus string

const (
	EANValid   EANStatus = "valid"
	EANInvalid EANStatus = "invalid"
	EANEmpty   EANStatus = "empty"
)

type SKU struct {
	Code        string
	Description string
	EAN         string
	EANStatus   EANStatus

	// Planning parameters
	LeadTimeDays      int
	SafetyStock       int
	MinShelfLifeDays  int
	MOQ               int
	DemandVariability DemandCategory

	InAssortment bool
}

// =============================================================================
// SALES - Daily aggregate (external input)
// =============================================================================

type SalesRecord struct {
	Date    Date
	SKU     string
	QtySold int
}

// =============================================================================
// STOCK - Derived, never persisted
// =============================================================================

type Stock struct {
	SKU         string
	AsOf        Date
	OnHand      int
	OnOrder     int
	Unfulfilled int
}

// Anomalies lists the expected invariants a well-formed ledger should hold
// but the replay does not enforce. Callers decide what to do with them.
func (s Stock) Anomalies() []string {
	var out []string
	if s.OnHand < 0 {
		out = append(out, "negative on_hand")
	}
	if s.OnOrder < 0 {
		out = append(out, "negative on_order")
	}
	return out
}

// =============================================================================
// AUDIT LOGS - Idempotency lookups and reporting
// =============================================================================

type OrderStatus string

const (
	OrderPending  OrderStatus = "PENDING"
	OrderReceived OrderStatus = "RECEIVED"
)

type OrderLog struct {
	OrderID     OrderID
	Date        Date
	SKU         string
	Qty         int
	ReceiptDate Date
	Status      OrderStatus
	CreatedAt   time.Time
}

type ReceiptLine struct {
	SKU string
	Qty int
}

type ReceivingLog struct {
	Key         ReceiptKey
	ReceiptDate Date
	Origin      string
	Lines       []ReceiptLine
	CreatedAt   time.Time
}
