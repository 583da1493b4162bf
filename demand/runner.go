package demand

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/stock-ledger/config"
	"github.com/warp/stock-ledger/ledger"
	"github.com/warp/stock-ledger/metrics"
)

// =============================================================================
// BATCH RUNNER
// =============================================================================
//
// PERSISTENCE RULE:
//   A result is written only when the SKU's current category is the default
//   (STABLE), the implicit "not classified yet" marker. Any other category
//   is a manual override and is never touched by a batch run.

// SettingsFrom maps the classifier configuration onto run settings.
func SettingsFrom(cfg config.ClassifierConfig) Settings {
	s := DefaultSettings()
	s.MinObservations = cfg.MinObservations
	s.SeasonalityThreshold = cfg.SeasonalityThreshold
	s.WindowDays = cfg.WindowDays
	return s.withDefaults()
}

// Classification is the outcome of one SKU in a run.
type Classification struct {
	SKU      string
	Previous ledger.DemandCategory
	Category ledger.DemandCategory
	Metrics  Metrics
	// Applied is true when the computed category is now in effect (the SKU
	// was unclassified).
	Applied bool
}

type RunResult struct {
	Report  Report
	Results []Classification // Sorted by SKU
}

type Runner struct {
	ledger  *ledger.Ledger
	clock   func() time.Time
	log     zerolog.Logger
	metrics *metrics.Registry
}

func NewRunner(l *ledger.Ledger, log zerolog.Logger, m *metrics.Registry) *Runner {
	if m == nil {
		m = metrics.NewRegistry()
	}
	return &Runner{ledger: l, clock: time.Now, log: log, metrics: m}
}

// WithClock replaces the clock used when Settings.AsOf is zero.
func (r *Runner) WithClock(clock func() time.Time) *Runner {
	r.clock = clock
	return r
}

// ClassifyAllSKUs classifies every registered SKU from its sales in the
// window and persists the results that the persistence rule allows. Running
// it again is harmless.
func (r *Runner) ClassifyAllSKUs(ctx context.Context, settings Settings) (RunResult, error) {
	settings = settings.withDefaults()
	if settings.AsOf.IsZero() {
		settings.AsOf = ledger.DateOf(r.clock())
	}

	st := r.ledger.Store()
	skus, err := st.ListSKUs(ctx)
	if err != nil {
		return RunResult{}, fmt.Errorf("list skus: %w", err)
	}
	sales, err := st.ReadSales(ctx, "", settings.WindowStart(), settings.AsOf)
	if err != nil {
		return RunResult{}, fmt.Errorf("read sales: %w", err)
	}

	series := make(map[string][]ledger.SalesRecord, len(skus))
	for _, s := range skus {
		series[s.Code] = nil
	}
	for _, rec := range sales {
		if _, ok := series[rec.SKU]; ok {
			series[rec.SKU] = append(series[rec.SKU], rec)
		}
	}
	report := Classify(series, settings)

	results := make([]Classification, 0, len(skus))
	candidates := map[string]ledger.DemandCategory{}
	for _, s := range skus {
		m, _ := report.Get(s.Code)
		current := categoryOf(s)
		c := Classification{SKU: s.Code, Previous: current, Category: m.Category, Metrics: m}
		if current == ledger.DefaultDemandCategory {
			c.Applied = true
			if m.Category != current {
				candidates[s.Code] = m.Category
			}
		}
		results = append(results, c)
	}

	// The list above was read outside the transaction. Each candidate is
	// re-read here and written only if it is still unclassified, touching
	// nothing but its category.
	updated := 0
	if len(candidates) > 0 {
		overridden := map[string]ledger.DemandCategory{}
		err := r.ledger.Commit(ctx, func(tx ledger.Store) error {
			for i := range results {
				category, ok := candidates[results[i].SKU]
				if !ok {
					continue
				}
				fresh, err := tx.ReadSKU(ctx, results[i].SKU)
				if err != nil {
					return err
				}
				if current := categoryOf(fresh); current != ledger.DefaultDemandCategory {
					overridden[fresh.Code] = current
					continue
				}
				fresh.DemandVariability = category
				if err := tx.SaveSKU(ctx, fresh); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return RunResult{}, fmt.Errorf("persist classification: %w", err)
		}
		for i := range results {
			if current, ok := overridden[results[i].SKU]; ok {
				results[i].Previous = current
				results[i].Applied = false
			}
		}
		updated = len(candidates) - len(overridden)
	}

	r.metrics.ClassificationRuns.Inc()
	r.metrics.ClassifiedApplied.Add(float64(updated))
	r.log.Info().
		Str("asof", settings.AsOf.String()).
		Int("skus", len(skus)).
		Int("sufficient", report.Sufficient).
		Bool("fallback_thresholds", report.ThresholdsFallback).
		Float64("q1", report.Q1).
		Float64("q3", report.Q3).
		Int("updated", updated).
		Msg("demand classification complete")

	return RunResult{Report: report, Results: results}, nil
}

func categoryOf(s ledger.SKU) ledger.DemandCategory {
	if s.DemandVariability == "" {
		return ledger.DefaultDemandCategory
	}
	return s.DemandVariability
}
