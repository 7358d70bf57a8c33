/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	purchase orders, goods receipts and invoices. Each scenario demonstrates
	one behavior of the matching engine.

AVAILABLE SCENARIOS:

	perfect-match:      Invoice agrees with PO and GR, no approval needed
	price-variance:     Invoice price 11% above PO, payment blocked
	approved-variance:  price-variance, then approved by an AP manager
	within-tolerance:   Small quantity overrun inside the 5% rule
	awaiting-receipt:   Invoice stored before its goods receipt, matched later
	month-end:          One clean match and one price variance (analytics demo)

HOW SCENARIOS WORK:
 1. Reset database (clear matchings, documents, audit)
 2. Restore the default rule configuration
 3. Submit documents through the service, as a client would

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "price-variance"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx)
 3. Add case to LoadScenario handler

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Document intake endpoints
  - factory/presets.go: Default rules
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/threeway-match/factory"
	"github.com/warp/threeway-match/matching"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "perfect-match",
		Name:        "Perfect Match",
		Description: "100 units at 125.00 ordered, received and invoiced",
		Category:    "matching",
	},
	{
		ID:          "price-variance",
		Name:        "Price Variance",
		Description: "Invoice at 350.00 against a PO price of 315.00, blocked pending approval",
		Category:    "matching",
	},
	{
		ID:          "approved-variance",
		Name:        "Approved Variance",
		Description: "Price variance approved by an AP manager",
		Category:    "approval",
	},
	{
		ID:          "within-tolerance",
		Name:        "Within Tolerance",
		Description: "102 units invoiced against 100 ordered, inside the 5% quantity rule",
		Category:    "matching",
	},
	{
		ID:          "awaiting-receipt",
		Name:        "Awaiting Goods Receipt",
		Description: "Invoice arrives before the goods receipt and is matched once it lands",
		Category:    "intake",
	},
	{
		ID:          "month-end",
		Name:        "Month-End Review",
		Description: "One clean match and one variance, for the analytics view",
		Category:    "analytics",
	},
}

// scenarioActor loads demo data. It holds every capability.
var scenarioActor = matching.Actor{
	ID:           "scenario-loader",
	Capabilities: []matching.Capability{matching.CapabilityApproveVariances, matching.CapabilityManageRules},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{
		ID:          h.currentScenario,
		Name:        h.currentScenario,
		Description: "Currently loaded scenario",
	})
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var loader func(context.Context) error
	switch req.ScenarioID {
	case "perfect-match":
		loader = h.loadPerfectMatchScenario
	case "price-variance":
		loader = h.loadPriceVarianceScenario
	case "approved-variance":
		loader = h.loadApprovedVarianceScenario
	case "within-tolerance":
		loader = h.loadWithinToleranceScenario
	case "awaiting-receipt":
		loader = h.loadAwaitingReceiptScenario
	case "month-end":
		loader = h.loadMonthEndScenario
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	ctx := r.Context()
	if err := h.resetForScenario(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	if err := loader(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.currentScenario = req.ScenarioID
	h.Logger.InfoContext(ctx, "scenario loaded", "scenario", req.ScenarioID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all matchings and documents.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *Handler) resetForScenario(ctx context.Context) error {
	if err := h.Store.Reset(ctx); err != nil {
		return err
	}
	h.currentScenario = ""
	return h.Service.UpdateConfiguration(ctx, scenarioActor, factory.DefaultConfiguration())
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadPerfectMatchScenario(ctx context.Context) error {
	_, err := h.submitTriple(ctx, "1001", 100, "125.00", 100, 100, "125.00")
	return err
}

func (h *Handler) loadPriceVarianceScenario(ctx context.Context) error {
	_, err := h.submitTriple(ctx, "1002", 25, "315.00", 25, 25, "350.00")
	return err
}

func (h *Handler) loadApprovedVarianceScenario(ctx context.Context) error {
	m, err := h.submitTriple(ctx, "1002", 25, "315.00", 25, 25, "350.00")
	if err != nil {
		return err
	}
	approver := matching.Actor{
		ID:           "ap-manager",
		Capabilities: []matching.Capability{matching.CapabilityApproveVariances},
	}
	_, err = h.Service.ApproveVariance(ctx, approver, m.ID, "Supplier price increase confirmed by procurement")
	return err
}

func (h *Handler) loadWithinToleranceScenario(ctx context.Context) error {
	_, err := h.submitTriple(ctx, "1003", 100, "10.00", 102, 102, "10.00")
	return err
}

// loadAwaitingReceiptScenario stores the invoice first so it waits, then
// the goods receipt, then runs the auto-match sweep.
func (h *Handler) loadAwaitingReceiptScenario(ctx context.Context) error {
	po, gr, inv := demoDocuments("1004", 40, "52.50", 40, 40, "52.50")
	if err := h.Service.SubmitPurchaseOrder(ctx, po); err != nil {
		return err
	}
	m, err := h.Service.SubmitInvoice(ctx, scenarioActor, inv)
	if err != nil {
		return err
	}
	if m != nil {
		return fmt.Errorf("invoice %s matched before its goods receipt", inv.Number)
	}
	if err := h.Service.SubmitGoodsReceipt(ctx, gr); err != nil {
		return err
	}
	_, err = h.Service.AutoMatchPending(ctx)
	return err
}

func (h *Handler) loadMonthEndScenario(ctx context.Context) error {
	if err := h.loadPerfectMatchScenario(ctx); err != nil {
		return err
	}
	return h.loadPriceVarianceScenario(ctx)
}

// =============================================================================
// HELPERS
// =============================================================================

// submitTriple stores a one-line PO, GR and invoice and returns the
// matching created on invoice arrival.
func (h *Handler) submitTriple(ctx context.Context, seq string, poQty int64, poPrice string, grQty, invQty int64, invPrice string) (matching.ThreeWayMatching, error) {
	po, gr, inv := demoDocuments(seq, poQty, poPrice, grQty, invQty, invPrice)
	if err := h.Service.SubmitPurchaseOrder(ctx, po); err != nil {
		return matching.ThreeWayMatching{}, err
	}
	if err := h.Service.SubmitGoodsReceipt(ctx, gr); err != nil {
		return matching.ThreeWayMatching{}, err
	}
	m, err := h.Service.SubmitInvoice(ctx, scenarioActor, inv)
	if err != nil {
		return matching.ThreeWayMatching{}, err
	}
	if m == nil {
		return matching.ThreeWayMatching{}, fmt.Errorf("invoice %s was not matched", inv.Number)
	}
	return *m, nil
}

func demoDocuments(seq string, poQty int64, poPrice string, grQty, invQty int64, invPrice string) (matching.PurchaseOrder, matching.GoodsReceipt, matching.Invoice) {
	ordered := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	delivery := ordered.AddDate(0, 0, 14)

	po := matching.PurchaseOrder{
		Number:               "PO-" + seq,
		VendorID:             "VEND-ACME",
		OrderDate:            ordered,
		ExpectedDeliveryDate: delivery,
		Lines: []matching.DocumentLine{{
			LineNumber: 1, SKU: "SKU-" + seq, Description: "Industrial fasteners",
			Quantity: decimal.NewFromInt(poQty), UnitPrice: decimal.RequireFromString(poPrice),
		}},
	}
	gr := matching.GoodsReceipt{
		Number:              "GR-" + seq,
		PurchaseOrderNumber: po.Number,
		ReceiptDate:         delivery.AddDate(0, 0, 1),
		Lines: []matching.DocumentLine{{
			LineNumber: 1, SKU: "SKU-" + seq,
			Quantity: decimal.NewFromInt(grQty), UnitPrice: decimal.RequireFromString(poPrice),
		}},
	}
	inv := matching.Invoice{
		ID:                  matching.InvoiceID("INV-" + seq),
		Number:              "INV-" + seq,
		PurchaseOrderNumber: po.Number,
		GoodsReceiptNumber:  gr.Number,
		VendorID:            po.VendorID,
		InvoiceDate:         delivery.AddDate(0, 0, 3),
		Lines: []matching.DocumentLine{{
			LineNumber: 1, SKU: "SKU-" + seq,
			Quantity: decimal.NewFromInt(invQty), UnitPrice: decimal.RequireFromString(invPrice),
		}},
	}
	return po, gr, inv
}
