/*
Package demand classifies SKUs by demand variability from their daily sales.

ALGORITHM (three passes over one batch):

  Pass 1 - per-SKU metrics
    series       daily quantities over the window, missing days as zero
    CV           population σ / μ of the series
    autocorr     lag-7 autocorrelation of the series (weekly periodicity)
    observations number of sales records in the window
    A SKU with fewer than MinObservations records, or a zero mean, is
    insufficient and gets FallbackCategory.

  Pass 2 - adaptive thresholds
    Q1, Q3 = 25th / 75th percentile (linear interpolation) of CV over the
    sufficient SKUs. With fewer than 4 of them the fixed (0.3, 0.7) apply.

  Pass 3 - decision, first match wins
    insufficient                   -> FallbackCategory
    autocorr > SeasonalityThreshold -> SEASONAL
    CV <= Q1                       -> STABLE
    CV >= Q3                       -> HIGH
    otherwise                      -> LOW

Classify is pure. Runner.ClassifyAllSKUs reads the store and applies the
persistence rule (see runner.go).
*/
package demand

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/warp/stock-ledger/ledger"
)

const (
	DefaultMinObservations      = 30
	DefaultSeasonalityThreshold = 0.3
	DefaultWindowDays           = 90

	FallbackQ1 = 0.3
	FallbackQ3 = 0.7

	// minPopulation is the smallest number of sufficient SKUs for which
	// percentiles are computed.
	minPopulation = 4

	seasonalLag = 7
)

type Settings struct {
	MinObservations      int
	SeasonalityThreshold float64
	FallbackCategory     ledger.DemandCategory

	// Window: [AsOf - WindowDays, AsOf). A zero AsOf makes Classify span each
	// SKU's first to last record instead.
	AsOf       ledger.Date
	WindowDays int
}

func DefaultSettings() Settings {
	return Settings{
		MinObservations:      DefaultMinObservations,
		SeasonalityThreshold: DefaultSeasonalityThreshold,
		FallbackCategory:     ledger.DefaultDemandCategory,
		WindowDays:           DefaultWindowDays,
	}
}

func (s Settings) withDefaults() Settings {
	if s.MinObservations <= 0 {
		s.MinObservations = DefaultMinObservations
	}
	if s.SeasonalityThreshold <= 0 {
		s.SeasonalityThreshold = DefaultSeasonalityThreshold
	}
	if s.FallbackCategory == "" {
		s.FallbackCategory = ledger.DefaultDemandCategory
	}
	if s.WindowDays <= 0 {
		s.WindowDays = DefaultWindowDays
	}
	return s
}

// WindowStart is the first day of the classification window.
func (s Settings) WindowStart() ledger.Date {
	return s.AsOf.AddDays(-s.withDefaults().WindowDays)
}

type Metrics struct {
	SKU          string
	Observations int
	Mean         float64
	StdDev       float64
	CV           float64
	Autocorr     float64
	Sufficient   bool
	Category     ledger.DemandCategory
}

type Report struct {
	Q1, Q3 float64
	// ThresholdsFallback is true when too few SKUs had sufficient data and
	// the fixed thresholds were used.
	ThresholdsFallback bool
	Sufficient         int
	SKUs               []Metrics // Sorted by SKU
}

// Get returns the metrics for one SKU.
func (r Report) Get(sku string) (Metrics, bool) {
	i := sort.Search(len(r.SKUs), func(i int) bool { return r.SKUs[i].SKU >= sku })
	if i < len(r.SKUs) && r.SKUs[i].SKU == sku {
		return r.SKUs[i], true
	}
	return Metrics{}, false
}

// Classify runs the three passes over series (sales records per SKU). SKUs
// present with no records are classified as insufficient.
func Classify(series map[string][]ledger.SalesRecord, settings Settings) Report {
	settings = settings.withDefaults()

	// Pass 1
	metrics := make([]Metrics, 0, len(series))
	var cvs []float64
	for sku, records := range series {
		m := measure(sku, records, settings)
		if m.Sufficient {
			cvs = append(cvs, m.CV)
		}
		metrics = append(metrics, m)
	}
	sort.Slice(metrics, func(i, j int) bool { return metrics[i].SKU < metrics[j].SKU })

	// Pass 2
	report := Report{Q1: FallbackQ1, Q3: FallbackQ3, ThresholdsFallback: true, Sufficient: len(cvs)}
	if len(cvs) >= minPopulation {
		sort.Float64s(cvs)
		report.Q1 = percentile(cvs, 0.25)
		report.Q3 = percentile(cvs, 0.75)
		report.ThresholdsFallback = false
	}

	// Pass 3
	for i := range metrics {
		metrics[i].Category = decide(metrics[i], report.Q1, report.Q3, settings)
	}
	report.SKUs = metrics
	return report
}

func decide(m Metrics, q1, q3 float64, settings Settings) ledger.DemandCategory {
	switch {
	case !m.Sufficient:
		return settings.FallbackCategory
	case m.Autocorr > settings.SeasonalityThreshold:
		return ledger.DemandSeasonal
	case m.CV <= q1:
		return ledger.DemandStable
	case m.CV >= q3:
		return ledger.DemandHigh
	default:
		return ledger.DemandLow
	}
}

func measure(sku string, records []ledger.SalesRecord, settings Settings) Metrics {
	m := Metrics{SKU: sku, Observations: len(records)}
	if len(records) < settings.MinObservations {
		return m
	}
	values := dailySeries(records, settings)
	m.Mean, m.StdDev = meanStdDev(values)
	if m.Mean == 0 {
		return m
	}
	m.CV = m.StdDev / m.Mean
	m.Autocorr = autocorrelation(values, seasonalLag)
	m.Sufficient = true
	return m
}

// dailySeries lays records on a contiguous day grid with zeros for days
// without sales. Same-day records are summed.
func dailySeries(records []ledger.SalesRecord, settings Settings) []float64 {
	var start, end ledger.Date // end is exclusive
	if !settings.AsOf.IsZero() {
		start, end = settings.WindowStart(), settings.AsOf
	} else {
		for _, r := range records {
			if start.IsZero() || r.Date.Before(start) {
				start = r.Date
			}
			if end.IsZero() || !r.Date.Before(end) {
				end = r.Date.AddDays(1)
			}
		}
	}

	n := ledger.DaysBetween(start, end)
	if n <= 0 {
		return nil
	}
	values := make([]float64, n)
	for _, r := range records {
		i := ledger.DaysBetween(start, r.Date)
		if i >= 0 && i < n {
			values[i] += float64(r.QtySold)
		}
	}
	return values
}

func meanStdDev(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	var ss float64
	for _, v := range values {
		ss += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(ss / float64(len(values)))
}

// autocorrelation is the lag-k sample autocorrelation. Series shorter than
// the lag or without variance have none.
func autocorrelation(values []float64, lag int) float64 {
	n := len(values)
	if n <= lag {
		return 0
	}
	mean, _ := meanStdDev(values)
	var num, den float64
	for i, v := range values {
		den += (v - mean) * (v - mean)
		if i+lag < n {
			num += (v - mean) * (values[i+lag] - mean)
		}
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// percentile uses linear interpolation between closest ranks. sorted must
// be ascending and non-empty.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := p * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// SafetyStockFactor scales safety stock by demand category.
func SafetyStockFactor(c ledger.DemandCategory) float64 {
	switch c {
	case ledger.DemandLow:
		return 1.25
	case ledger.DemandHigh:
		return 1.6
	case ledger.DemandSeasonal:
		return 1.4
	default:
		return 1.0
	}
}

// AuditRow is Metrics rounded for display.
type AuditRow struct {
	SKU          string          `json:"sku"`
	Observations int             `json:"observations"`
	Mean         decimal.Decimal `json:"mean"`
	CV           decimal.Decimal `json:"cv"`
	Autocorr     decimal.Decimal `json:"autocorr"`
	Sufficient   bool            `json:"sufficient"`
	Category     string          `json:"category"`
}

func (m Metrics) Audit(places int32) AuditRow {
	return AuditRow{
		SKU:          m.SKU,
		Observations: m.Observations,
		Mean:         decimal.NewFromFloat(m.Mean).Round(places),
		CV:           decimal.NewFromFloat(m.CV).Round(places),
		Autocorr:     decimal.NewFromFloat(m.Autocorr).Round(places),
		Sufficient:   m.Sufficient,
		Category:     string(m.Category),
	}
}
