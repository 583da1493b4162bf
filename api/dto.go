/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the ledger model from the external API contract.

NAMING CONVENTION:
  - *DTO:      Response types returned to clients
  - *Request:  Request body types from clients (workflow commands that
               already carry json tags are decoded directly)

TYPES:
  Catalog:   SKUDTO, SKUResultDTO, AssortmentRequest, ExportRequest
  Queries:   StockDTO, PositionDTO, BucketDTO, EventDTO
  Workflows: OrderResultDTO, ReceiptResultDTO, ExceptionResultDTO,
             RevertRequest, RevertResultDTO, SalesRequest, SalesResultDTO
  Batch:     ClassifyRequest, ClassificationDTO, ClassifyResponse,
             MigrateRequest, MigrationDTO

DATES:
  Every date is YYYY-MM-DD. An absent receipt date is null.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"github.com/warp/stock-ledger/demand"
	"github.com/warp/stock-ledger/inventory"
	"github.com/warp/stock-ledger/ledger"
)

// =============================================================================
// CATALOG
// =============================================================================

type SKUDTO struct {
	SKU               string `json:"sku"`
	Description       string `json:"description"`
	EAN               string `json:"ean"`
	EANStatus         string `json:"ean_status"`
	LeadTimeDays      int    `json:"lead_time_days"`
	SafetyStock       int    `json:"safety_stock"`
	MinShelfLifeDays  int    `json:"min_shelf_life_days"`
	MOQ               int    `json:"moq"`
	DemandVariability string `json:"demand_variability"`
	InAssortment      bool   `json:"in_assortment"`
}

type SKUResultDTO struct {
	SKU      SKUDTO   `json:"sku"`
	Warnings []string `json:"warnings,omitempty"`
}

type AssortmentRequest struct {
	InAssortment bool `json:"in_assortment"`
}

type ExportRequest struct {
	Note string `json:"note"`
}

// =============================================================================
// QUERIES
// =============================================================================

type StockDTO struct {
	SKU         string      `json:"sku"`
	AsOf        ledger.Date `json:"asof"`
	OnHand      int         `json:"on_hand"`
	OnOrder     int         `json:"on_order"`
	Unfulfilled int         `json:"unfulfilled"`
	Anomalies   []string    `json:"anomalies,omitempty"`
}

type BucketDTO struct {
	ReceiptDate ledger.Date `json:"receipt_date"`
	Qty         int         `json:"qty"`
}

type PositionDTO struct {
	SKU         string      `json:"sku"`
	AsOf        ledger.Date `json:"asof"`
	OnHand      int         `json:"on_hand"`
	Unfulfilled int         `json:"unfulfilled"`
	Arriving    int         `json:"arriving"`
	IP          int         `json:"inventory_position"`
	Buckets     []BucketDTO `json:"buckets"`
}

type EventDTO struct {
	ID          string      `json:"id"`
	Seq         int64       `json:"seq"`
	Date        ledger.Date `json:"date"`
	SKU         string      `json:"sku"`
	Kind        string      `json:"kind"`
	Qty         int         `json:"qty"`
	ReceiptDate ledger.Date `json:"receipt_date"`
	Note        string      `json:"note,omitempty"`
	Ref         string      `json:"ref,omitempty"`
}

// =============================================================================
// WORKFLOWS
// =============================================================================

type OrderResultDTO struct {
	OrderID string    `json:"order_id"`
	Outcome string    `json:"outcome"`
	Event   *EventDTO `json:"event,omitempty"`
}

type KeyOutcomeDTO struct {
	Key     string `json:"key"`
	Outcome string `json:"outcome"`
}

type ReceiptResultDTO struct {
	Outcome string          `json:"outcome"`
	Keys    []KeyOutcomeDTO `json:"keys"`
	Events  []EventDTO      `json:"events"`
}

type ExceptionResultDTO struct {
	Key     string    `json:"key"`
	Outcome string    `json:"outcome"`
	Event   *EventDTO `json:"event,omitempty"`
}

type RevertRequest struct {
	Date ledger.Date `json:"date"`
	SKU  string      `json:"sku"`
	Kind string      `json:"kind"`
}

type RevertResultDTO struct {
	Key     string `json:"key"`
	Removed int    `json:"removed"`
}

type SalesRequest struct {
	Date ledger.Date `json:"date"`
	SKU  string      `json:"sku"`
	Qty  int         `json:"qty"`
}

type SalesResultDTO struct {
	Outcome string      `json:"outcome"`
	Date    ledger.Date `json:"date"`
	SKU     string      `json:"sku"`
	QtySold int         `json:"qty_sold"`
	Delta   int         `json:"delta"`
}

// =============================================================================
// BATCH OPERATIONS
// =============================================================================

// ClassifyRequest overrides the configured classifier settings. Zero fields
// keep the configured value.
type ClassifyRequest struct {
	AsOf                 ledger.Date `json:"asof"`
	MinObservations      int         `json:"min_observations"`
	SeasonalityThreshold float64     `json:"seasonality_threshold"`
	WindowDays           int         `json:"window_days"`
}

type ClassificationDTO struct {
	SKU      string          `json:"sku"`
	Previous string          `json:"previous"`
	Category string          `json:"category"`
	Applied  bool            `json:"applied"`
	Metrics  demand.AuditRow `json:"metrics"`
}

type ClassifyResponse struct {
	Q1                 float64             `json:"q1"`
	Q3                 float64             `json:"q3"`
	ThresholdsFallback bool                `json:"thresholds_fallback"`
	Sufficient         int                 `json:"sufficient"`
	Results            []ClassificationDTO `json:"results"`
}

type MigrateRequest struct {
	RefDate ledger.Date              `json:"ref_date"`
	Records []inventory.LegacyRecord `json:"records"`
}

type MismatchDTO struct {
	SKU      string `json:"sku"`
	Expected int    `json:"expected"`
	Got      int    `json:"got"`
}

type MigrationDTO struct {
	Skipped     bool          `json:"skipped"`
	Reason      string        `json:"reason,omitempty"`
	RefDate     ledger.Date   `json:"ref_date"`
	Migrated    int           `json:"migrated"`
	CreatedSKUs []string      `json:"created_skus"`
	Verified    bool          `json:"verified"`
	Mismatches  []MismatchDTO `json:"mismatches"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toSKUDTO(s ledger.SKU) SKUDTO {
	return SKUDTO{
		SKU:               s.Code,
		Description:       s.Description,
		EAN:               s.EAN,
		EANStatus:         string(s.EANStatus),
		LeadTimeDays:      s.LeadTimeDays,
		SafetyStock:       s.SafetyStock,
		MinShelfLifeDays:  s.MinShelfLifeDays,
		MOQ:               s.MOQ,
		DemandVariability: string(s.DemandVariability),
		InAssortment:      s.InAssortment,
	}
}

func toStockDTO(s ledger.Stock) StockDTO {
	return StockDTO{
		SKU:         s.SKU,
		AsOf:        s.AsOf,
		OnHand:      s.OnHand,
		OnOrder:     s.OnOrder,
		Unfulfilled: s.Unfulfilled,
		Anomalies:   s.Anomalies(),
	}
}

func toPositionDTO(p ledger.Position) PositionDTO {
	buckets := make([]BucketDTO, len(p.Buckets))
	for i, b := range p.Buckets {
		buckets[i] = BucketDTO{ReceiptDate: b.ReceiptDate, Qty: b.Qty}
	}
	return PositionDTO{
		SKU:         p.SKU,
		AsOf:        p.AsOf,
		OnHand:      p.OnHand,
		Unfulfilled: p.Unfulfilled,
		Arriving:    p.Arriving,
		IP:          p.IP,
		Buckets:     buckets,
	}
}

func toEventDTO(e ledger.Event) EventDTO {
	return EventDTO{
		ID:          string(e.ID),
		Seq:         e.Seq,
		Date:        e.Date,
		SKU:         e.SKU,
		Kind:        string(e.Kind),
		Qty:         e.Qty,
		ReceiptDate: e.ReceiptDate,
		Note:        e.Note,
		Ref:         e.Ref,
	}
}

func toEventDTOs(events []ledger.Event) []EventDTO {
	out := make([]EventDTO, len(events))
	for i, e := range events {
		out[i] = toEventDTO(e)
	}
	return out
}

// optionalEvent returns nil for the zero event of an already processed call.
func optionalEvent(e ledger.Event) *EventDTO {
	if e.ID == "" {
		return nil
	}
	dto := toEventDTO(e)
	return &dto
}

func toOrderResultDTO(r inventory.OrderResult) OrderResultDTO {
	return OrderResultDTO{
		OrderID: r.OrderID.String(),
		Outcome: string(r.Outcome),
		Event:   optionalEvent(r.Event),
	}
}

func toMigrationDTO(r inventory.MigrationResult) MigrationDTO {
	mismatches := make([]MismatchDTO, len(r.Mismatches))
	for i, m := range r.Mismatches {
		mismatches[i] = MismatchDTO{SKU: m.SKU, Expected: m.Expected, Got: m.Got}
	}
	created := r.CreatedSKUs
	if created == nil {
		created = []string{}
	}
	return MigrationDTO{
		Skipped:     r.Skipped,
		Reason:      r.Reason,
		RefDate:     r.RefDate,
		Migrated:    r.Migrated,
		CreatedSKUs: created,
		Verified:    r.Verified(),
		Mismatches:  mismatches,
	}
}

func toClassifyResponse(res demand.RunResult) ClassifyResponse {
	out := ClassifyResponse{
		Q1:                 res.Report.Q1,
		Q3:                 res.Report.Q3,
		ThresholdsFallback: res.Report.ThresholdsFallback,
		Sufficient:         res.Report.Sufficient,
		Results:            make([]ClassificationDTO, len(res.Results)),
	}
	for i, c := range res.Results {
		out.Results[i] = ClassificationDTO{
			SKU:      c.SKU,
			Previous: string(c.Previous),
			Category: string(c.Category),
			Applied:  c.Applied,
			Metrics:  c.Metrics.Audit(4),
		}
	}
	return out
}
