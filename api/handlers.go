/*
handlers.go - HTTP API handlers for the three-way match engine

PURPOSE:
  Exposes the matching service via REST API. Handles HTTP request/response,
  JSON serialization, caller identity, and delegates to matching.Service.

ENDPOINTS:
  Configuration:
    GET    /api/configuration             Current rule snapshot
    PUT    /api/configuration             Replace snapshot (manage_rules)

  Documents:
    POST   /api/purchase-orders           Store a purchase order
    POST   /api/goods-receipts            Store a goods receipt
    POST   /api/invoices                  Store an invoice, auto-match if enabled

  Matchings:
    POST   /api/matchings                 Match inline documents or a stored invoice
    GET    /api/matchings                 List (?status=&approval_state=&purchase_order=&from=&to=)
    GET    /api/matchings/{id}            Get one
    GET    /api/matchings/{id}/audit      Audit trail
    POST   /api/matchings/{id}/approve    Approve variance (approve_variances)
    POST   /api/matchings/{id}/reject     Reject variance (approve_variances)

  Analytics:
    GET    /api/analytics                 Summary over the same filters as list

IDENTITY:
  The caller is named by X-Actor-ID and granted capabilities by
  X-Actor-Capabilities (comma separated). A gateway in front of the service
  is expected to set both.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 403: Missing capability
  - 404: Matching or document not found
  - 409: Approval state conflict
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/threeway-match/factory"
	"github.com/warp/threeway-match/matching"
	"github.com/warp/threeway-match/store/sqlite"
)

const (
	HeaderActorID           = "X-Actor-ID"
	HeaderActorCapabilities = "X-Actor-Capabilities"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *matching.Service
	Store   *sqlite.Store
	Logger  *slog.Logger

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler creates a new handler.
func NewHandler(svc *matching.Service, store *sqlite.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Service: svc, Store: store, Logger: logger}
}

// actorFromRequest reads the caller identity headers.
func actorFromRequest(r *http.Request) matching.Actor {
	actor := matching.Actor{ID: strings.TrimSpace(r.Header.Get(HeaderActorID))}
	if actor.ID == "" {
		actor.ID = "anonymous"
	}
	for _, c := range strings.Split(r.Header.Get(HeaderActorCapabilities), ",") {
		if c = strings.TrimSpace(c); c != "" {
			actor.Capabilities = append(actor.Capabilities, matching.Capability(c))
		}
	}
	return actor
}

// =============================================================================
// CONFIGURATION
// =============================================================================

func (h *Handler) GetConfiguration(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, factory.FromConfiguration(h.Service.Configuration()))
}

func (h *Handler) UpdateConfiguration(w http.ResponseWriter, r *http.Request) {
	var req ConfigurationDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	cfg, err := req.ToConfiguration()
	if err != nil {
		h.writeDomainError(w, r, "Invalid configuration", err)
		return
	}
	if err := h.Service.UpdateConfiguration(r.Context(), actorFromRequest(r), cfg); err != nil {
		h.writeDomainError(w, r, "Failed to update configuration", err)
		return
	}
	writeJSON(w, http.StatusOK, factory.FromConfiguration(h.Service.Configuration()))
}

// =============================================================================
// DOCUMENT INTAKE
// =============================================================================

func (h *Handler) SubmitPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	var req PurchaseOrderDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	po, err := req.toDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid purchase order", err)
		return
	}
	if err := h.Service.SubmitPurchaseOrder(r.Context(), po); err != nil {
		h.writeDomainError(w, r, "Failed to store purchase order", err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (h *Handler) SubmitGoodsReceipt(w http.ResponseWriter, r *http.Request) {
	var req GoodsReceiptDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	gr, err := req.toDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid goods receipt", err)
		return
	}
	if err := h.Service.SubmitGoodsReceipt(r.Context(), gr); err != nil {
		h.writeDomainError(w, r, "Failed to store goods receipt", err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (h *Handler) SubmitInvoice(w http.ResponseWriter, r *http.Request) {
	var req InvoiceDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	inv, err := req.toDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid invoice", err)
		return
	}
	if inv.ID == "" {
		inv.ID = matching.InvoiceID(h.Service.NewID())
	}
	m, err := h.Service.SubmitInvoice(r.Context(), actorFromRequest(r), inv)
	if err != nil {
		h.writeDomainError(w, r, "Failed to store invoice", err)
		return
	}

	resp := SubmitInvoiceResponse{InvoiceID: string(inv.ID), Matched: m != nil}
	if m != nil {
		dto := toMatchingDTO(*m)
		resp.Matching = &dto
	}
	writeJSON(w, http.StatusCreated, resp)
}

// =============================================================================
// MATCHINGS
// =============================================================================

// CreateMatching runs a match. With invoice_id set the stored documents are
// used; otherwise all three documents must be inline.
func (h *Handler) CreateMatching(w http.ResponseWriter, r *http.Request) {
	var req MatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	actor := actorFromRequest(r)

	if req.InvoiceID != "" {
		m, err := h.Service.MatchInvoice(r.Context(), actor, matching.InvoiceID(req.InvoiceID))
		if err != nil {
			h.writeDomainError(w, r, "Failed to match invoice", err)
			return
		}
		writeJSON(w, http.StatusCreated, toMatchingDTO(m))
		return
	}

	if req.PurchaseOrder == nil || req.GoodsReceipt == nil || req.Invoice == nil {
		writeError(w, http.StatusBadRequest, "purchase_order, goods_receipt and invoice are required", nil)
		return
	}
	po, err := req.PurchaseOrder.toDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid purchase order", err)
		return
	}
	gr, err := req.GoodsReceipt.toDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid goods receipt", err)
		return
	}
	inv, err := req.Invoice.toDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid invoice", err)
		return
	}

	m, err := h.Service.Match(r.Context(), actor, po, gr, inv)
	if err != nil {
		h.writeDomainError(w, r, "Failed to match documents", err)
		return
	}
	writeJSON(w, http.StatusCreated, toMatchingDTO(m))
}

func (h *Handler) ListMatchings(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid filter", err)
		return
	}
	ms, err := h.Service.List(r.Context(), filter)
	if err != nil {
		h.writeDomainError(w, r, "Failed to list matchings", err)
		return
	}
	dtos := make([]MatchingDTO, len(ms))
	for i, m := range ms {
		dtos[i] = toMatchingDTO(m)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetMatching(w http.ResponseWriter, r *http.Request) {
	id := matching.MatchingID(chi.URLParam(r, "id"))
	m, err := h.Service.Get(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, "Failed to get matching", err)
		return
	}
	writeJSON(w, http.StatusOK, toMatchingDTO(m))
}

func (h *Handler) GetAuditTrail(w http.ResponseWriter, r *http.Request) {
	id := matching.MatchingID(chi.URLParam(r, "id"))
	entries, err := h.Service.AuditTrail(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, "Failed to get audit trail", err)
		return
	}
	dtos := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toAuditEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// APPROVAL WORKFLOW
// =============================================================================

func (h *Handler) ApproveVariance(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.Service.ApproveVariance)
}

func (h *Handler) RejectVariance(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.Service.RejectVariance)
}

type decideFunc func(ctx context.Context, actor matching.Actor, id matching.MatchingID, reason string) (matching.ThreeWayMatching, error)

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, fn decideFunc) {
	id := matching.MatchingID(chi.URLParam(r, "id"))

	var req DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	m, err := fn(r.Context(), actorFromRequest(r), id, req.Reason)
	if err != nil {
		h.writeDomainError(w, r, "Failed to record decision", err)
		return
	}
	writeJSON(w, http.StatusOK, toMatchingDTO(m))
}

// =============================================================================
// ANALYTICS
// =============================================================================

func (h *Handler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid filter", err)
		return
	}
	summary, err := h.Service.Analytics(r.Context(), filter)
	if err != nil {
		h.writeDomainError(w, r, "Failed to compute analytics", err)
		return
	}
	writeJSON(w, http.StatusOK, toAnalyticsDTO(summary))
}

// =============================================================================
// HELPERS
// =============================================================================

func filterFromQuery(r *http.Request) (matching.MatchingFilter, error) {
	q := r.URL.Query()
	filter := matching.MatchingFilter{
		PurchaseOrderNumber: q.Get("purchase_order"),
		InvoiceID:           matching.InvoiceID(q.Get("invoice_id")),
	}
	if s := q.Get("status"); s != "" {
		filter.Status = matching.MatchStatus(strings.ToUpper(s))
		if !filter.Status.Valid() {
			return filter, fmt.Errorf("unknown status %q", s)
		}
	}
	if s := q.Get("approval_state"); s != "" {
		filter.ApprovalState = matching.ApprovalState(strings.ToUpper(s))
	}
	for _, p := range []struct {
		key string
		dst **time.Time
	}{{"from", &filter.From}, {"to", &filter.To}} {
		if s := q.Get(p.key); s != "" {
			t, err := parseDate(p.key, s)
			if err != nil {
				return filter, err
			}
			*p.dst = &t
		}
	}
	return filter, nil
}

// writeDomainError maps service errors onto HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, message string, err error) {
	switch {
	case matching.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	case matching.IsForbidden(err):
		writeError(w, http.StatusForbidden, message, err)
	case matching.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case matching.IsConflict(err):
		writeError(w, http.StatusConflict, message, err)
	default:
		h.Logger.ErrorContext(r.Context(), message, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, message, err)
	}
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
	}
	writeJSON(w, status, resp)
}
