// Package metrics holds the Prometheus counters for ledger writes, guard
// outcomes, the projection cache and classification runs.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg *prometheus.Registry

	EventsAppended     *prometheus.CounterVec // label: kind
	ReceiptsApplied    prometheus.Counter
	ReceiptsDuplicate  prometheus.Counter
	OrdersConfirmed    prometheus.Counter
	OrdersDuplicate    prometheus.Counter
	ExceptionsRecorded *prometheus.CounterVec // label: kind
	ExceptionsReverted prometheus.Counter
	CacheHits          prometheus.Counter
	CacheMisses        prometheus.Counter
	ClassificationRuns prometheus.Counter
	ClassifiedApplied  prometheus.Counter
	MigrationRuns      *prometheus.CounterVec // label: outcome
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()

	eventsAppended := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ledger_events_appended_total"}, []string{"kind"})
	receiptsApplied := prometheus.NewCounter(prometheus.CounterOpts{Name: "ledger_receipts_applied_total"})
	receiptsDuplicate := prometheus.NewCounter(prometheus.CounterOpts{Name: "ledger_receipts_duplicate_total"})
	ordersConfirmed := prometheus.NewCounter(prometheus.CounterOpts{Name: "ledger_orders_confirmed_total"})
	ordersDuplicate := prometheus.NewCounter(prometheus.CounterOpts{Name: "ledger_orders_duplicate_total"})
	exceptionsRecorded := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ledger_exceptions_recorded_total"}, []string{"kind"})
	exceptionsReverted := prometheus.NewCounter(prometheus.CounterOpts{Name: "ledger_exceptions_reverted_total"})
	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{Name: "ledger_projection_cache_hits_total"})
	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{Name: "ledger_projection_cache_misses_total"})
	classificationRuns := prometheus.NewCounter(prometheus.CounterOpts{Name: "demand_classification_runs_total"})
	classifiedApplied := prometheus.NewCounter(prometheus.CounterOpts{Name: "demand_classification_applied_total"})
	migrationRuns := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ledger_migration_runs_total"}, []string{"outcome"})

	r.MustRegister(eventsAppended, receiptsApplied, receiptsDuplicate, ordersConfirmed, ordersDuplicate,
		exceptionsRecorded, exceptionsReverted, cacheHits, cacheMisses, classificationRuns, classifiedApplied, migrationRuns)

	return &Registry{
		reg:                r,
		EventsAppended:     eventsAppended,
		ReceiptsApplied:    receiptsApplied,
		ReceiptsDuplicate:  receiptsDuplicate,
		OrdersConfirmed:    ordersConfirmed,
		OrdersDuplicate:    ordersDuplicate,
		ExceptionsRecorded: exceptionsRecorded,
		ExceptionsReverted: exceptionsReverted,
		CacheHits:          cacheHits,
		CacheMisses:        cacheMisses,
		ClassificationRuns: classificationRuns,
		ClassifiedApplied:  classifiedApplied,
		MigrationRuns:      migrationRuns,
	}
}

// ObserveAppended counts a committed batch by kind.
func (r *Registry) ObserveAppended(kinds ...string) {
	for _, k := range kinds {
		r.EventsAppended.WithLabelValues(k).Inc()
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }

// Gatherer exposes the underlying registry for tests.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }
