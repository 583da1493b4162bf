/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the ledger with realistic
	data for demos. Each scenario goes through the inventory workflows, so
	every event it writes is one a real operator could have written.

AVAILABLE SCENARIOS:

	dual-lane:       50 on hand, one order split over two receipt dates
	receiving-day:   orders received on a single closure, one late line
	exceptions:      waste, adjust and unfulfilled on the same day
	demand-mix:      ten weeks of sales across stable, spiky and weekly SKUs

HOW SCENARIOS WORK:
 1. Reset the store (clear all data)
 2. Seed opening stock with MigrateLegacy
 3. Replay workflow calls (orders, receipts, exceptions, sales)

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "dual-lane"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.
	A store without Reset (the in-memory one) cannot load scenarios.

SEE ALSO:
  - handlers.go: workflow endpoints the loaders mirror
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/warp/stock-ledger/inventory"
	"github.com/warp/stock-ledger/ledger"
)

// Resetter is implemented by stores that can be wiped.
type Resetter interface {
	Reset(ctx context.Context) error
}

// WithResetter enables scenario loading against r.
func (h *Handler) WithResetter(r Resetter) *Handler {
	h.resetter = r
	return h
}

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

var scenarios = []ScenarioDTO{
	{
		ID:          "dual-lane",
		Name:        "Dual Lane",
		Description: "One order day, two receipt dates: position 80 on the first, 130 on the second",
	},
	{
		ID:          "receiving-day",
		Name:        "Receiving Day",
		Description: "Two SKUs received on one document, one line arriving after its expected date",
	},
	{
		ID:          "exceptions",
		Name:        "Daily Exceptions",
		Description: "Waste, adjustment and unfulfilled demand recorded, then the waste reverted",
	},
	{
		ID:          "demand-mix",
		Name:        "Demand Mix",
		Description: "Ten weeks of sales for stable, low, high and weekly-seasonal SKUs",
	},
}

var scenarioLoaders = map[string]func(*Handler, context.Context) error{
	"dual-lane":     (*Handler).loadDualLaneScenario,
	"receiving-day": (*Handler).loadReceivingDayScenario,
	"exceptions":    (*Handler).loadExceptionsScenario,
	"demand-mix":    (*Handler).loadDemandMixScenario,
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the store and loads a scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decode(w, r, &req) {
		return
	}
	load, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}
	if err := h.resetStore(r.Context()); err != nil {
		h.fail(w, r, "Failed to reset database", err)
		return
	}
	if err := load(h, r.Context()); err != nil {
		h.fail(w, r, "Failed to load scenario", err)
		return
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()
	h.log.Info().Str("scenario", req.ScenarioID).Msg("scenario loaded")

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data.
// POST /api/scenarios/reset
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.resetStore(r.Context()); err != nil {
		h.fail(w, r, "Failed to reset database", err)
		return
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

var errResetUnsupported = errors.New("store does not support reset")

func (h *Handler) resetStore(ctx context.Context) error {
	if h.resetter == nil {
		return errResetUnsupported
	}
	if err := h.resetter.Reset(ctx); err != nil {
		return err
	}
	// Empty commit: drops cached projections of the wiped ledger.
	return h.ledger.Commit(ctx, func(ledger.Store) error { return nil })
}

// =============================================================================
// LOADERS
// =============================================================================

func date(s string) ledger.Date { return ledger.MustParseDate(s) }

func (h *Handler) seed(ctx context.Context, refDate string, onHand map[string]int) error {
	records := make([]inventory.LegacyRecord, 0, len(onHand))
	for sku, qty := range onHand {
		records = append(records, inventory.LegacyRecord{SKU: sku, OnHand: strconv.Itoa(qty)})
	}
	res, err := h.svc.MigrateLegacy(ctx, records, date(refDate))
	if err != nil {
		return err
	}
	if !res.Verified() {
		return fmt.Errorf("seed did not verify: %+v", res.Mismatches)
	}
	return nil
}

func (h *Handler) loadDualLaneScenario(ctx context.Context) error {
	if err := h.seed(ctx, "2024-02-01", map[string]int{"MILK-1L": 50}); err != nil {
		return err
	}
	_, err := h.svc.ConfirmOrders(ctx, inventory.ConfirmOrdersCommand{
		Date: date("2024-02-09"),
		SKU:  "MILK-1L",
		Lanes: []inventory.Lane{
			{Qty: 30, ReceiptDate: date("2024-02-10")},
			{Qty: 50, ReceiptDate: date("2024-02-12")},
		},
		Note: "weekend split",
	})
	return err
}

func (h *Handler) loadReceivingDayScenario(ctx context.Context) error {
	if err := h.seed(ctx, "2024-03-01", map[string]int{"MILK-1L": 10, "YOGURT-4": 4}); err != nil {
		return err
	}
	for _, o := range []inventory.ConfirmOrderCommand{
		{Date: date("2024-03-02"), SKU: "MILK-1L", Qty: 24, ReceiptDate: date("2024-03-04")},
		{Date: date("2024-03-02"), SKU: "YOGURT-4", Qty: 12, ReceiptDate: date("2024-03-04")},
	} {
		if _, err := h.svc.ConfirmOrder(ctx, o); err != nil {
			return err
		}
	}
	_, err := h.svc.CloseReceipt(ctx, inventory.CloseReceiptCommand{
		ReceiptID:   "DDT-2024-0305",
		ReceiptDate: date("2024-03-05"),
		Origin:      "DC-North",
		Lines: []inventory.ReceiptLineInput{
			{SKU: "MILK-1L", Qty: 24, ExpectedDate: date("2024-03-04")},
			{SKU: "YOGURT-4", Qty: 12, ExpectedDate: date("2024-03-04")},
		},
		Note: "one day late",
	})
	return err
}

func (h *Handler) loadExceptionsScenario(ctx context.Context) error {
	if err := h.seed(ctx, "2024-03-01", map[string]int{"BREAD-500": 40}); err != nil {
		return err
	}
	for _, cmd := range []inventory.ExceptionCommand{
		{Date: date("2024-03-02"), SKU: "BREAD-500", Kind: ledger.KindWaste, Qty: 6, Note: "expired"},
		{Date: date("2024-03-02"), SKU: "BREAD-500", Kind: ledger.KindAdjust, Qty: -2, Note: "count"},
		{Date: date("2024-03-02"), SKU: "BREAD-500", Kind: ledger.KindUnfulfilled, Qty: 5},
	} {
		if _, err := h.svc.RecordException(ctx, cmd); err != nil {
			return err
		}
	}
	_, err := h.svc.RevertExceptionDay(ctx, date("2024-03-02"), "BREAD-500", ledger.KindWaste)
	return err
}

func (h *Handler) loadDemandMixScenario(ctx context.Context) error {
	patterns := map[string][]int{
		"FLAT":   {10},
		"SWING":  {6, 14},
		"SPIKY":  {0, 0, 30},
		"WEEKLY": {40, 5, 5, 5, 5, 5, 5},
	}
	onHand := make(map[string]int, len(patterns))
	for sku := range patterns {
		onHand[sku] = 1000
	}
	if err := h.seed(ctx, "2024-01-01", onHand); err != nil {
		return err
	}
	start := date("2024-01-01")
	for sku, p := range patterns {
		for i := 0; i < 70; i++ {
			if _, err := h.svc.RecordDailySales(ctx, start.AddDays(i), sku, p[i%len(p)]); err != nil {
				return err
			}
		}
	}
	return nil
}
