/*
handlers.go - HTTP API handlers for the stock ledger

PURPOSE:
  Exposes the ledger queries and the inventory workflows via REST API.
  Handles HTTP request/response, JSON serialization, and delegates to the
  inventory service, the ledger engine and the demand runner.

ENDPOINTS:
  Catalog:
    GET    /api/skus                      List SKUs
    POST   /api/skus                      Create SKU
    GET    /api/skus/{sku}                Get SKU
    PUT    /api/skus/{sku}                Update SKU (appends SKU_EDIT)
    POST   /api/skus/{sku}/assortment     Toggle assortment
    POST   /api/skus/{sku}/export         Append EXPORT_LOG

  Queries (asof defaults to today, exclusive):
    GET    /api/stock?asof=               Stock of every SKU
    GET    /api/skus/{sku}/stock          Stock of one SKU
    GET    /api/skus/{sku}/position       Receipt-date aware position
    GET    /api/skus/{sku}/on-order       Outstanding lanes by receipt date
    GET    /api/skus/{sku}/events         Events in replay order

  Workflows:
    POST   /api/orders                    Confirm one order line
    POST   /api/orders/lanes              Confirm a multi-lane order
    GET    /api/orders?sku=               Order log
    POST   /api/receipts                  Close a receipt
    POST   /api/exceptions                Record WASTE/ADJUST/UNFULFILLED
    POST   /api/exceptions/revert         Revert one (date, sku, kind)
    POST   /api/sales                     Record a daily sales figure

  Admin:
    POST   /api/admin/classify            Batch demand classification
    POST   /api/admin/migrate             Seed from a legacy export

  Scenarios (development only, see scenarios.go):
    GET    /api/scenarios                 List demo scenarios
    POST   /api/scenarios/load            Reset and load a demo scenario

RESPONSE CODES FOR GUARDED WRITES:
  201 when the call changed the ledger, 200 when it was already processed.
  A repeated call is never an error.

ERROR HANDLING:
  - 400: validation errors, unknown kinds, malformed bodies
  - 404: unknown SKU
  - 409: duplicate idempotency key (only reachable through races)
  - 500: everything else

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/warp/stock-ledger/demand"
	"github.com/warp/stock-ledger/inventory"
	"github.com/warp/stock-ledger/ledger"
	"github.com/warp/stock-ledger/metrics"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	svc        *inventory.Service
	ledger     *ledger.Ledger
	runner     *demand.Runner
	classifier demand.Settings
	metrics    *metrics.Registry
	log        zerolog.Logger
	clock      func() time.Time

	// Scenario support (development only)
	resetter        Resetter
	mu              sync.Mutex
	currentScenario string
}

// NewHandler wires the handlers. classifier holds the configured defaults
// for /api/admin/classify.
func NewHandler(svc *inventory.Service, runner *demand.Runner, classifier demand.Settings, m *metrics.Registry, log zerolog.Logger) *Handler {
	if m == nil {
		m = metrics.NewRegistry()
	}
	return &Handler{
		svc:        svc,
		ledger:     svc.Ledger(),
		runner:     runner,
		classifier: classifier,
		metrics:    m,
		log:        log,
		clock:      time.Now,
	}
}

// WithClock replaces the clock used for the default asof.
func (h *Handler) WithClock(clock func() time.Time) *Handler {
	h.clock = clock
	return h
}

// =============================================================================
// CATALOG HANDLERS
// =============================================================================

// ListSKUs returns every SKU.
func (h *Handler) ListSKUs(w http.ResponseWriter, r *http.Request) {
	skus, err := h.ledger.Store().ListSKUs(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list skus", err)
		return
	}
	dtos := make([]SKUDTO, len(skus))
	for i, s := range skus {
		dtos[i] = toSKUDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetSKU returns one SKU.
func (h *Handler) GetSKU(w http.ResponseWriter, r *http.Request) {
	sku, err := h.ledger.Store().ReadSKU(r.Context(), chi.URLParam(r, "sku"))
	if err != nil {
		h.fail(w, r, "Failed to get sku", err)
		return
	}
	writeJSON(w, http.StatusOK, toSKUDTO(sku))
}

// CreateSKU registers a SKU. An invalid EAN is reported as a warning.
func (h *Handler) CreateSKU(w http.ResponseWriter, r *http.Request) {
	var req inventory.SKUInput
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.CreateSKU(r.Context(), req)
	if err != nil {
		h.fail(w, r, "Failed to create sku", err)
		return
	}
	writeJSON(w, http.StatusCreated, SKUResultDTO{SKU: toSKUDTO(res.SKU), Warnings: res.Warnings})
}

// UpdateSKU replaces the master data of a SKU.
// PUT /api/skus/{sku}
func (h *Handler) UpdateSKU(w http.ResponseWriter, r *http.Request) {
	var req inventory.SKUInput
	if !decode(w, r, &req) {
		return
	}
	req.Code = chi.URLParam(r, "sku")
	res, err := h.svc.UpdateSKU(r.Context(), req)
	if err != nil {
		h.fail(w, r, "Failed to update sku", err)
		return
	}
	writeJSON(w, http.StatusOK, SKUResultDTO{SKU: toSKUDTO(res.SKU), Warnings: res.Warnings})
}

// SetAssortment toggles whether the SKU is in assortment.
func (h *Handler) SetAssortment(w http.ResponseWriter, r *http.Request) {
	var req AssortmentRequest
	if !decode(w, r, &req) {
		return
	}
	sku, err := h.svc.SetAssortment(r.Context(), chi.URLParam(r, "sku"), req.InAssortment)
	if err != nil {
		h.fail(w, r, "Failed to set assortment", err)
		return
	}
	writeJSON(w, http.StatusOK, toSKUDTO(sku))
}

// LogExport records that the SKU was exported.
func (h *Handler) LogExport(w http.ResponseWriter, r *http.Request) {
	var req ExportRequest
	if !decode(w, r, &req) {
		return
	}
	e, err := h.svc.LogExport(r.Context(), chi.URLParam(r, "sku"), req.Note)
	if err != nil {
		h.fail(w, r, "Failed to log export", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEventDTO(e))
}

// =============================================================================
// QUERY HANDLERS
// =============================================================================

// GetAllStock returns the stock of every SKU.
// GET /api/stock?asof=YYYY-MM-DD
func (h *Handler) GetAllStock(w http.ResponseWriter, r *http.Request) {
	asOf, ok := h.asOf(w, r)
	if !ok {
		return
	}
	all, err := h.ledger.CalculateAllAsOf(r.Context(), asOf)
	if err != nil {
		h.fail(w, r, "Failed to calculate stock", err)
		return
	}
	skus, err := h.ledger.Store().ListSKUs(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list skus", err)
		return
	}
	dtos := make([]StockDTO, 0, len(skus))
	for _, s := range skus {
		dtos = append(dtos, toStockDTO(all[s.Code]))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetStock returns the stock of one SKU.
// GET /api/skus/{sku}/stock?asof=YYYY-MM-DD
func (h *Handler) GetStock(w http.ResponseWriter, r *http.Request) {
	asOf, ok := h.asOf(w, r)
	if !ok {
		return
	}
	stock, err := h.ledger.CalculateAsOf(r.Context(), chi.URLParam(r, "sku"), asOf)
	if err != nil {
		h.fail(w, r, "Failed to calculate stock", err)
		return
	}
	writeJSON(w, http.StatusOK, toStockDTO(stock))
}

// GetPosition returns the inventory position with its breakdown.
func (h *Handler) GetPosition(w http.ResponseWriter, r *http.Request) {
	asOf, ok := h.asOf(w, r)
	if !ok {
		return
	}
	pos, err := h.ledger.InventoryPosition(r.Context(), chi.URLParam(r, "sku"), asOf)
	if err != nil {
		h.fail(w, r, "Failed to calculate position", err)
		return
	}
	writeJSON(w, http.StatusOK, toPositionDTO(pos))
}

// GetOnOrder returns outstanding order quantity by receipt date. Without
// asof every event is scanned.
func (h *Handler) GetOnOrder(w http.ResponseWriter, r *http.Request) {
	var cutoff *ledger.Date
	if raw := r.URL.Query().Get("asof"); raw != "" {
		d, err := ledger.ParseDate(raw)
		if err != nil {
			h.fail(w, r, "Invalid asof", err)
			return
		}
		cutoff = &d
	}
	buckets, err := h.ledger.OnOrderByDate(r.Context(), chi.URLParam(r, "sku"), cutoff)
	if err != nil {
		h.fail(w, r, "Failed to calculate on-order", err)
		return
	}
	sorted := ledger.SortedBuckets(buckets)
	dtos := make([]BucketDTO, len(sorted))
	for i, b := range sorted {
		dtos[i] = BucketDTO{ReceiptDate: b.ReceiptDate, Qty: b.Qty}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetEvents returns the events of a SKU in replay order.
func (h *Handler) GetEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.ledger.Events(r.Context(), chi.URLParam(r, "sku"))
	if err != nil {
		h.fail(w, r, "Failed to read events", err)
		return
	}
	writeJSON(w, http.StatusOK, toEventDTOs(events))
}

// =============================================================================
// WORKFLOW HANDLERS
// =============================================================================

// ConfirmOrder confirms one order line.
func (h *Handler) ConfirmOrder(w http.ResponseWriter, r *http.Request) {
	var req inventory.ConfirmOrderCommand
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.ConfirmOrder(r.Context(), req)
	if err != nil {
		h.fail(w, r, "Failed to confirm order", err)
		return
	}
	writeJSON(w, outcomeStatus(res.Outcome), toOrderResultDTO(res))
}

// ConfirmOrderLanes confirms several receipt-date lanes in one transaction.
func (h *Handler) ConfirmOrderLanes(w http.ResponseWriter, r *http.Request) {
	var req inventory.ConfirmOrdersCommand
	if !decode(w, r, &req) {
		return
	}
	results, err := h.svc.ConfirmOrders(r.Context(), req)
	if err != nil {
		h.fail(w, r, "Failed to confirm order lanes", err)
		return
	}
	status := http.StatusOK
	dtos := make([]OrderResultDTO, len(results))
	for i, res := range results {
		dtos[i] = toOrderResultDTO(res)
		if res.Outcome == inventory.OutcomeApplied {
			status = http.StatusCreated
		}
	}
	writeJSON(w, status, dtos)
}

// ListOrders returns the order log, optionally for one SKU.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	logs, err := h.ledger.Store().ListOrderLogs(r.Context(), r.URL.Query().Get("sku"))
	if err != nil {
		h.fail(w, r, "Failed to list orders", err)
		return
	}
	type orderLogDTO struct {
		OrderID     string      `json:"order_id"`
		Date        ledger.Date `json:"date"`
		SKU         string      `json:"sku"`
		Qty         int         `json:"qty"`
		ReceiptDate ledger.Date `json:"receipt_date"`
		Status      string      `json:"status"`
	}
	dtos := make([]orderLogDTO, len(logs))
	for i, o := range logs {
		dtos[i] = orderLogDTO{
			OrderID:     o.OrderID.String(),
			Date:        o.Date,
			SKU:         o.SKU,
			Qty:         o.Qty,
			ReceiptDate: o.ReceiptDate,
			Status:      string(o.Status),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CloseReceipt closes a receiving document.
func (h *Handler) CloseReceipt(w http.ResponseWriter, r *http.Request) {
	var req inventory.CloseReceiptCommand
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.CloseReceipt(r.Context(), req)
	if err != nil {
		h.fail(w, r, "Failed to close receipt", err)
		return
	}
	keys := make([]KeyOutcomeDTO, len(res.Keys))
	for i, k := range res.Keys {
		keys[i] = KeyOutcomeDTO{Key: k.Key.String(), Outcome: string(k.Outcome)}
	}
	writeJSON(w, outcomeStatus(res.Outcome), ReceiptResultDTO{
		Outcome: string(res.Outcome),
		Keys:    keys,
		Events:  toEventDTOs(res.Events),
	})
}

// RecordException records a daily exception.
func (h *Handler) RecordException(w http.ResponseWriter, r *http.Request) {
	var req inventory.ExceptionCommand
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.RecordException(r.Context(), req)
	if err != nil {
		h.fail(w, r, "Failed to record exception", err)
		return
	}
	writeJSON(w, outcomeStatus(res.Outcome), ExceptionResultDTO{
		Key:     res.Key.String(),
		Outcome: string(res.Outcome),
		Event:   optionalEvent(res.Event),
	})
}

// RevertException removes every event under one exception key.
func (h *Handler) RevertException(w http.ResponseWriter, r *http.Request) {
	var req RevertRequest
	if !decode(w, r, &req) {
		return
	}
	kind, err := ledger.ParseKind(strings.ToUpper(req.Kind))
	if err != nil {
		h.fail(w, r, "Invalid kind", err)
		return
	}
	res, err := h.svc.RevertExceptionDay(r.Context(), req.Date, req.SKU, kind)
	if err != nil {
		h.fail(w, r, "Failed to revert exceptions", err)
		return
	}
	writeJSON(w, http.StatusOK, RevertResultDTO{Key: res.Key.String(), Removed: res.Removed})
}

// RecordSales records the daily sales figure of a SKU.
func (h *Handler) RecordSales(w http.ResponseWriter, r *http.Request) {
	var req SalesRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.RecordDailySales(r.Context(), req.Date, req.SKU, req.Qty)
	if err != nil {
		h.fail(w, r, "Failed to record sales", err)
		return
	}
	writeJSON(w, outcomeStatus(res.Outcome), SalesResultDTO{
		Outcome: string(res.Outcome),
		Date:    res.Record.Date,
		SKU:     res.Record.SKU,
		QtySold: res.Record.QtySold,
		Delta:   res.Delta,
	})
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// Classify runs the batch demand classification.
// POST /api/admin/classify
func (h *Handler) Classify(w http.ResponseWriter, r *http.Request) {
	var req ClassifyRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	settings := h.classifier
	settings.AsOf = req.AsOf
	if req.MinObservations > 0 {
		settings.MinObservations = req.MinObservations
	}
	if req.SeasonalityThreshold > 0 {
		settings.SeasonalityThreshold = req.SeasonalityThreshold
	}
	if req.WindowDays > 0 {
		settings.WindowDays = req.WindowDays
	}

	res, err := h.runner.ClassifyAllSKUs(r.Context(), settings)
	if err != nil {
		h.fail(w, r, "Failed to classify", err)
		return
	}
	writeJSON(w, http.StatusOK, toClassifyResponse(res))
}

// Migrate seeds the ledger from a legacy export. A second run is a no-op.
// POST /api/admin/migrate
func (h *Handler) Migrate(w http.ResponseWriter, r *http.Request) {
	var req MigrateRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.MigrateLegacy(r.Context(), req.Records, req.RefDate)
	if err != nil {
		h.fail(w, r, "Failed to migrate", err)
		return
	}
	status := http.StatusCreated
	if res.Skipped {
		status = http.StatusOK
	}
	writeJSON(w, status, toMigrationDTO(res))
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

// asOf reads the asof query parameter, defaulting to today.
func (h *Handler) asOf(w http.ResponseWriter, r *http.Request) (ledger.Date, bool) {
	raw := r.URL.Query().Get("asof")
	if raw == "" {
		return ledger.DateOf(h.clock()), true
	}
	d, err := ledger.ParseDate(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid asof (use YYYY-MM-DD)", err)
		return ledger.Date{}, false
	}
	return d, true
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// fail maps err to a status and logs server-side failures.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg(message)
	}
	writeError(w, status, message, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrValidation), errors.Is(err, ledger.ErrUnknownKind):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrUnknownSKU), errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrDuplicateIdempotencyKey):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func outcomeStatus(o inventory.Outcome) int {
	if o == inventory.OutcomeApplied {
		return http.StatusCreated
	}
	return http.StatusOK
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
		var ve *ledger.ValidationError
		if errors.As(err, &ve) {
			resp.Field = ve.Field
		}
	}
	writeJSON(w, status, resp)
}
