/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/configuration    Rule snapshot
  /api/purchase-orders  Document intake
  /api/goods-receipts   Document intake
  /api/invoices         Document intake (auto-match)
  /api/matchings/*      Matching, approval, audit
  /api/analytics        Summary statistics
  /api/scenarios/*      Demo scenarios

SECURITY NOTE:
  Identity comes from request headers (see handlers.go). Deploy behind a
  gateway that authenticates callers and sets them.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// DefaultAllowedOrigins is used when NewRouter is given none.
var DefaultAllowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	if len(allowedOrigins) == 0 {
		allowedOrigins = DefaultAllowedOrigins
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", HeaderActorID, HeaderActorCapabilities},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/configuration", h.GetConfiguration)
		r.Put("/configuration", h.UpdateConfiguration)

		r.Post("/purchase-orders", h.SubmitPurchaseOrder)
		r.Post("/goods-receipts", h.SubmitGoodsReceipt)
		r.Post("/invoices", h.SubmitInvoice)

		r.Route("/matchings", func(r chi.Router) {
			r.Get("/", h.ListMatchings)
			r.Post("/", h.CreateMatching)
			r.Get("/{id}", h.GetMatching)
			r.Get("/{id}/audit", h.GetAuditTrail)
			r.Post("/{id}/approve", h.ApproveVariance)
			r.Post("/{id}/reject", h.RejectVariance)
		})

		r.Get("/analytics", h.GetAnalytics)

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}
