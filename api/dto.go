/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific parsing (dates, decimals)
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients (some double as request bodies)
  - *Request: Request body types from clients

MONEY:
  Quantities, prices and variances are decimal.Decimal, serialized as JSON
  strings ("875.00") so no precision is lost in transit. Requests accept
  either strings or numbers.

DATES:
  Dates are "YYYY-MM-DD" or RFC3339. Empty means unknown.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/configuration.go: ConfigurationJSON
*/
package api

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/threeway-match/factory"
	"github.com/warp/threeway-match/matching"
)

// =============================================================================
// DOCUMENTS
// =============================================================================

type DocumentLineDTO struct {
	LineNumber  int             `json:"line_number"`
	SKU         string          `json:"sku,omitempty"`
	Description string          `json:"description,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

type PurchaseOrderDTO struct {
	Number               string            `json:"number"`
	VendorID             string            `json:"vendor_id,omitempty"`
	OrderDate            string            `json:"order_date,omitempty"`
	ExpectedDeliveryDate string            `json:"expected_delivery_date,omitempty"`
	Lines                []DocumentLineDTO `json:"lines"`
}

type GoodsReceiptDTO struct {
	Number              string            `json:"number"`
	PurchaseOrderNumber string            `json:"purchase_order_number"`
	ReceiptDate         string            `json:"receipt_date,omitempty"`
	Lines               []DocumentLineDTO `json:"lines"`
}

type InvoiceDTO struct {
	ID                  string            `json:"id,omitempty"`
	Number              string            `json:"number"`
	PurchaseOrderNumber string            `json:"purchase_order_number"`
	GoodsReceiptNumber  string            `json:"goods_receipt_number,omitempty"`
	VendorID            string            `json:"vendor_id,omitempty"`
	InvoiceDate         string            `json:"invoice_date,omitempty"`
	Lines               []DocumentLineDTO `json:"lines"`
}

// MatchRequest either carries the three documents inline or names a
// stored invoice to match against its stored PO and GR.
type MatchRequest struct {
	PurchaseOrder *PurchaseOrderDTO `json:"purchase_order,omitempty"`
	GoodsReceipt  *GoodsReceiptDTO  `json:"goods_receipt,omitempty"`
	Invoice       *InvoiceDTO       `json:"invoice,omitempty"`
	InvoiceID     string            `json:"invoice_id,omitempty"`
}

// SubmitInvoiceResponse reports whether the invoice was matched on arrival.
type SubmitInvoiceResponse struct {
	InvoiceID string       `json:"invoice_id"`
	Matched   bool         `json:"matched"`
	Matching  *MatchingDTO `json:"matching,omitempty"`
}

// =============================================================================
// MATCHINGS
// =============================================================================

type BreachDTO struct {
	RuleID             string          `json:"rule_id"`
	RuleType           string          `json:"rule_type"`
	Unit               string          `json:"unit"`
	NormalizedVariance decimal.Decimal `json:"normalized_variance"`
	Tolerance          decimal.Decimal `json:"tolerance"`
}

type LineResultDTO struct {
	LineNumber        int             `json:"line_number"`
	POQuantity        decimal.Decimal `json:"po_quantity"`
	GRQuantity        decimal.Decimal `json:"gr_quantity"`
	InvoiceQuantity   decimal.Decimal `json:"invoice_quantity"`
	POPrice           decimal.Decimal `json:"po_price"`
	InvoicePrice      decimal.Decimal `json:"invoice_price"`
	QuantityVariance  decimal.Decimal `json:"quantity_variance"`
	PriceVariance     decimal.Decimal `json:"price_variance"`
	TotalVariance     decimal.Decimal `json:"total_variance"`
	DateVarianceDays  int             `json:"date_variance_days"`
	Status            string          `json:"status"`
	ToleranceExceeded bool            `json:"tolerance_exceeded"`
	Reason            string          `json:"reason,omitempty"`
	Breaches          []BreachDTO     `json:"breaches,omitempty"`
}

type MatchingDTO struct {
	ID                  string          `json:"id"`
	InvoiceID           string          `json:"invoice_id"`
	PurchaseOrderNumber string          `json:"purchase_order_number"`
	GoodsReceiptNumber  string          `json:"goods_receipt_number"`
	LineResults         []LineResultDTO `json:"line_results"`
	OverallStatus       string          `json:"overall_status"`
	ToleranceExceeded   bool            `json:"tolerance_exceeded"`
	RequiresApproval    bool            `json:"requires_approval"`
	PaymentBlocked      bool            `json:"payment_blocked"`
	QuantityVariance    decimal.Decimal `json:"quantity_variance"`
	PriceVariance       decimal.Decimal `json:"price_variance"`
	TotalVariance       decimal.Decimal `json:"total_variance"`
	MatchingDate        string          `json:"matching_date"`
	MatchedBy           string          `json:"matched_by"`
	ApprovalState       string          `json:"approval_state"`
	DecidedBy           string          `json:"decided_by,omitempty"`
	DecidedAt           string          `json:"decided_at,omitempty"`
	DecisionReason      string          `json:"decision_reason,omitempty"`
	Version             int             `json:"version"`
}

// DecisionRequest is the body of approve/reject.
type DecisionRequest struct {
	Reason string `json:"reason"`
}

type AuditEntryDTO struct {
	ID         string         `json:"id"`
	Timestamp  string         `json:"timestamp"`
	ActorID    string         `json:"actor_id"`
	Action     string         `json:"action"`
	MatchingID string         `json:"matching_id,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type AnalyticsDTO struct {
	Total                int             `json:"total"`
	MatchedCount         int             `json:"matched_count"`
	WithinToleranceCount int             `json:"within_tolerance_count"`
	ExceededCount        int             `json:"exceeded_count"`
	MatchedRate          decimal.Decimal `json:"matched_rate"`
	VarianceRate         decimal.Decimal `json:"variance_rate"`
	PendingApprovals     int             `json:"pending_approvals"`
	TotalVarianceAmount  decimal.Decimal `json:"total_variance_amount"`
	AverageVariance      decimal.Decimal `json:"average_variance"`
}

// ConfigurationDTO is the configuration in its factory JSON shape.
type ConfigurationDTO = factory.ConfigurationJSON

// =============================================================================
// SCENARIOS / ERRORS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func parseDate(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: expected YYYY-MM-DD or RFC3339, got %q", field, s)
	}
	return t, nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

func toLines(dtos []DocumentLineDTO) []matching.DocumentLine {
	lines := make([]matching.DocumentLine, len(dtos))
	for i, d := range dtos {
		lines[i] = matching.DocumentLine{
			LineNumber:  d.LineNumber,
			SKU:         d.SKU,
			Description: d.Description,
			Quantity:    d.Quantity,
			UnitPrice:   d.UnitPrice,
		}
	}
	return lines
}

func (d PurchaseOrderDTO) toDomain() (matching.PurchaseOrder, error) {
	orderDate, err := parseDate("order_date", d.OrderDate)
	if err != nil {
		return matching.PurchaseOrder{}, err
	}
	delivery, err := parseDate("expected_delivery_date", d.ExpectedDeliveryDate)
	if err != nil {
		return matching.PurchaseOrder{}, err
	}
	return matching.PurchaseOrder{
		Number:               d.Number,
		VendorID:             d.VendorID,
		OrderDate:            orderDate,
		ExpectedDeliveryDate: delivery,
		Lines:                toLines(d.Lines),
	}, nil
}

func (d GoodsReceiptDTO) toDomain() (matching.GoodsReceipt, error) {
	received, err := parseDate("receipt_date", d.ReceiptDate)
	if err != nil {
		return matching.GoodsReceipt{}, err
	}
	return matching.GoodsReceipt{
		Number:              d.Number,
		PurchaseOrderNumber: d.PurchaseOrderNumber,
		ReceiptDate:         received,
		Lines:               toLines(d.Lines),
	}, nil
}

func (d InvoiceDTO) toDomain() (matching.Invoice, error) {
	invDate, err := parseDate("invoice_date", d.InvoiceDate)
	if err != nil {
		return matching.Invoice{}, err
	}
	return matching.Invoice{
		ID:                  matching.InvoiceID(d.ID),
		Number:              d.Number,
		PurchaseOrderNumber: d.PurchaseOrderNumber,
		GoodsReceiptNumber:  d.GoodsReceiptNumber,
		VendorID:            d.VendorID,
		InvoiceDate:         invDate,
		Lines:               toLines(d.Lines),
	}, nil
}

func toMatchingDTO(m matching.ThreeWayMatching) MatchingDTO {
	dto := MatchingDTO{
		ID:                  string(m.ID),
		InvoiceID:           string(m.InvoiceID),
		PurchaseOrderNumber: m.PurchaseOrderNumber,
		GoodsReceiptNumber:  m.GoodsReceiptNumber,
		LineResults:         make([]LineResultDTO, len(m.LineResults)),
		OverallStatus:       string(m.OverallStatus),
		ToleranceExceeded:   m.ToleranceExceeded,
		RequiresApproval:    m.RequiresApproval,
		PaymentBlocked:      m.PaymentBlocked,
		QuantityVariance:    m.QuantityVariance,
		PriceVariance:       m.PriceVariance,
		TotalVariance:       m.TotalVariance,
		MatchingDate:        m.MatchingDate.Format(time.RFC3339),
		MatchedBy:           m.MatchedBy,
		ApprovalState:       string(m.ApprovalState),
		DecidedBy:           m.DecidedBy,
		DecisionReason:      m.DecisionReason,
		Version:             m.Version,
	}
	if m.DecidedAt != nil {
		dto.DecidedAt = m.DecidedAt.Format(time.RFC3339)
	}
	for i, lr := range m.LineResults {
		l := LineResultDTO{
			LineNumber:        lr.LineNumber,
			POQuantity:        lr.POQuantity,
			GRQuantity:        lr.GRQuantity,
			InvoiceQuantity:   lr.InvoiceQuantity,
			POPrice:           lr.POPrice,
			InvoicePrice:      lr.InvoicePrice,
			QuantityVariance:  lr.QuantityVariance,
			PriceVariance:     lr.PriceVariance,
			TotalVariance:     lr.TotalVariance,
			DateVarianceDays:  lr.DateVarianceDays,
			Status:            string(lr.Status),
			ToleranceExceeded: lr.ToleranceExceeded,
			Reason:            string(lr.Reason),
		}
		for _, b := range lr.Breaches {
			l.Breaches = append(l.Breaches, BreachDTO{
				RuleID:             b.RuleID,
				RuleType:           string(b.RuleType),
				Unit:               string(b.Unit),
				NormalizedVariance: b.NormalizedVariance.Round(4),
				Tolerance:          b.Tolerance,
			})
		}
		dto.LineResults[i] = l
	}
	return dto
}

func toAuditEntryDTO(e matching.AuditEntry) AuditEntryDTO {
	return AuditEntryDTO{
		ID:         e.ID,
		Timestamp:  e.Timestamp.Format(time.RFC3339),
		ActorID:    e.ActorID,
		Action:     string(e.Action),
		MatchingID: string(e.MatchingID),
		Reason:     e.Reason,
		Payload:    e.Payload,
	}
}

func toAnalyticsDTO(s matching.AnalyticsSummary) AnalyticsDTO {
	return AnalyticsDTO{
		Total:                s.Total,
		MatchedCount:         s.MatchedCount,
		WithinToleranceCount: s.WithinToleranceCount,
		ExceededCount:        s.ExceededCount,
		MatchedRate:          s.MatchedRate.Round(2),
		VarianceRate:         s.VarianceRate.Round(2),
		PendingApprovals:     s.PendingApprovals,
		TotalVarianceAmount:  s.TotalVarianceAmount.Round(2),
		AverageVariance:      s.AverageVariance.Round(2),
	}
}
