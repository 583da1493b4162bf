/*
scenarios_test.go - Tests for demo scenarios

PURPOSE:
	Tests that each scenario leaves the ledger in the state its description
	promises. The scenarios double as end-to-end checks of the workflows.
*/
package api

import (
	"net/http"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stock-ledger/demand"
	"github.com/warp/stock-ledger/inventory"
	"github.com/warp/stock-ledger/ledger"
	"github.com/warp/stock-ledger/store/sqlite"
)

func newScenarioRouter(t *testing.T) *chi.Mux {
	t.Helper()
	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	l := ledger.New(st)
	svc := inventory.NewService(l, inventory.WithClock(fixedClock))
	runner := demand.NewRunner(l, zerolog.Nop(), nil).WithClock(fixedClock)
	h := NewHandler(svc, runner, demand.DefaultSettings(), nil, zerolog.Nop()).
		WithClock(fixedClock).
		WithResetter(st)
	return NewRouter(h, []string{"*"})
}

func loadScenario(t *testing.T, router http.Handler, id string) {
	t.Helper()
	rec := do(t, router, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: id})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestScenarios_ListAndCurrent(t *testing.T) {
	router := newScenarioRouter(t)

	list := decodeBody[[]ScenarioDTO](t, do(t, router, http.MethodGet, "/api/scenarios", nil))
	assert.Len(t, list, len(scenarioLoaders))

	rec := do(t, router, http.MethodGet, "/api/scenarios/current", nil)
	assert.Equal(t, "null", strings.TrimSpace(rec.Body.String()))

	loadScenario(t, router, "dual-lane")
	current := decodeBody[ScenarioDTO](t, do(t, router, http.MethodGet, "/api/scenarios/current", nil))
	assert.Equal(t, "dual-lane", current.ID)

	rec = do(t, router, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestScenario_DualLane(t *testing.T) {
	// GIVEN: The dual-lane scenario
	// WHEN: Querying the position on each receipt date
	// THEN: Each date sees only the lanes due by then
	router := newScenarioRouter(t)
	loadScenario(t, router, "dual-lane")

	pos := decodeBody[PositionDTO](t, do(t, router, http.MethodGet, "/api/skus/MILK-1L/position?asof=2024-02-10", nil))
	assert.Equal(t, 80, pos.IP)
	pos = decodeBody[PositionDTO](t, do(t, router, http.MethodGet, "/api/skus/MILK-1L/position?asof=2024-02-12", nil))
	assert.Equal(t, 130, pos.IP)
}

func TestScenario_ReceivingDay(t *testing.T) {
	router := newScenarioRouter(t)
	loadScenario(t, router, "receiving-day")

	stock := decodeBody[StockDTO](t, do(t, router, http.MethodGet, "/api/skus/MILK-1L/stock?asof=2024-03-06", nil))
	assert.Equal(t, 34, stock.OnHand)
	assert.Equal(t, 0, stock.OnOrder)

	// Receipt date is exclusive
	stock = decodeBody[StockDTO](t, do(t, router, http.MethodGet, "/api/skus/YOGURT-4/stock?asof=2024-03-05", nil))
	assert.Equal(t, 4, stock.OnHand)
	assert.Equal(t, 12, stock.OnOrder)
}

func TestScenario_Exceptions(t *testing.T) {
	router := newScenarioRouter(t)
	loadScenario(t, router, "exceptions")

	stock := decodeBody[StockDTO](t, do(t, router, http.MethodGet, "/api/skus/BREAD-500/stock?asof=2024-03-03", nil))
	assert.Equal(t, 38, stock.OnHand, "waste reverted, adjust kept")
	assert.Equal(t, 5, stock.Unfulfilled)
}

func TestScenario_LoadTwiceResets(t *testing.T) {
	// GIVEN: A scenario loaded twice
	// THEN: The second load starts from an empty store
	router := newScenarioRouter(t)
	loadScenario(t, router, "exceptions")
	loadScenario(t, router, "exceptions")

	stock := decodeBody[StockDTO](t, do(t, router, http.MethodGet, "/api/skus/BREAD-500/stock?asof=2024-03-03", nil))
	assert.Equal(t, 38, stock.OnHand)

	rec := do(t, router, http.MethodPost, "/api/scenarios/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, router, http.MethodGet, "/api/skus/BREAD-500/stock", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestScenario_DemandMixClassifies(t *testing.T) {
	router := newScenarioRouter(t)
	loadScenario(t, router, "demand-mix")

	rec := do(t, router, http.MethodPost, "/api/admin/classify", ClassifyRequest{AsOf: ledger.MustParseDate("2024-03-11"), WindowDays: 70})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeBody[ClassifyResponse](t, rec)

	got := map[string]string{}
	for _, c := range res.Results {
		got[c.SKU] = c.Category
	}
	assert.Equal(t, "STABLE", got["FLAT"])
	assert.Equal(t, "HIGH", got["SPIKY"])
	assert.Equal(t, "SEASONAL", got["WEEKLY"])
}

func TestScenario_WithoutResetter(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "dual-lane"})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
