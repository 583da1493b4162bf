/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     One zerolog line per request
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for frontends

ROUTE GROUPS:
  /api/skus/*      Catalog and per-SKU queries
  /api/stock       Stock of every SKU
  /api/orders/*    Order confirmation
  /api/receipts    Receiving closure
  /api/exceptions  Daily exceptions and revert
  /api/sales       Daily sales figures
  /api/admin/*     Classification and legacy migration
  /api/scenarios/* Demo scenarios (development only)
  /metrics         Prometheus exposition
  /healthz         Liveness

SECURITY NOTE:
  No authentication middleware. The ledger is a single-node tool.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", h.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		// Catalog and per-SKU queries
		r.Route("/skus", func(r chi.Router) {
			r.Get("/", h.ListSKUs)
			r.Post("/", h.CreateSKU)
			r.Get("/{sku}", h.GetSKU)
			r.Put("/{sku}", h.UpdateSKU)
			r.Post("/{sku}/assortment", h.SetAssortment)
			r.Post("/{sku}/export", h.LogExport)
			r.Get("/{sku}/stock", h.GetStock)
			r.Get("/{sku}/position", h.GetPosition)
			r.Get("/{sku}/on-order", h.GetOnOrder)
			r.Get("/{sku}/events", h.GetEvents)
		})

		r.Get("/stock", h.GetAllStock)

		// Workflows
		r.Route("/orders", func(r chi.Router) {
			r.Get("/", h.ListOrders)
			r.Post("/", h.ConfirmOrder)
			r.Post("/lanes", h.ConfirmOrderLanes)
		})
		r.Post("/receipts", h.CloseReceipt)
		r.Route("/exceptions", func(r chi.Router) {
			r.Post("/", h.RecordException)
			r.Post("/revert", h.RevertException)
		})
		r.Post("/sales", h.RecordSales)

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/classify", h.Classify)
			r.Post("/migrate", h.Migrate)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}

// requestLogger writes one structured line per request.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Info().
					Str("request_id", middleware.GetReqID(r.Context())).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Dur("duration", time.Since(start)).
					Msg("http request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
