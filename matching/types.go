/*
Package matching provides the three-way match engine.

PURPOSE:
  Reconciles a Purchase Order, a Goods Receipt and a Supplier Invoice that
  reference the same commercial transaction. The engine decides whether the
  line items agree closely enough to release payment and, when they don't,
  routes the discrepancy into an approval workflow.

KEY CONCEPTS IN THIS FILE (types.go):
  - Documents: PurchaseOrder, GoodsReceipt, Invoice and their DocumentLines
  - LineMatchResult: Variances and status for one correlated line
  - ThreeWayMatching: The aggregate record for one PO/GR/Invoice triple
  - ApprovalState: Workflow state attached to a matching

DESIGN PRINCIPLES:
  1. Precision: Quantities and money use decimal.Decimal, never float64
  2. Purity: Matching is a function of its inputs plus a rule snapshot
  3. Data over errors: Tolerance breaches and unmatched lines are recorded
     on the result; only malformed input and workflow misuse are errors
  4. Auditability: Every workflow transition leaves an AuditEntry

USAGE:
  cfg := factory.DefaultConfiguration()
  m, err := matching.Match(po, gr, inv, cfg, actor, time.Now())
  if err != nil {
      // *ValidationError, nothing was produced
  }

SEE ALSO:
  - rules.go: MatchingRule, RuleSet and the RuleStore snapshot holder
  - line.go: Per-line variance evaluation
  - document.go: Aggregation into a ThreeWayMatching
  - approval.go: Approval state machine
  - analytics.go: Batch statistics
*/
package matching

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type MatchingID string
type InvoiceID string

// =============================================================================
// DOCUMENTS - Supplied by the host system, already captured and structured
// =============================================================================

// DocumentLine is one line item on a PO, GR or Invoice.
// Lines are correlated across documents by LineNumber.
type DocumentLine struct {
	LineNumber  int
	SKU         string
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
}

// Total returns quantity * unit price.
func (l DocumentLine) Total() decimal.Decimal {
	return l.Quantity.Mul(l.UnitPrice)
}

type PurchaseOrder struct {
	Number               string
	VendorID             string
	OrderDate            time.Time
	ExpectedDeliveryDate time.Time // zero when unknown
	Lines                []DocumentLine
}

// GoodsReceipt records what was physically received.
// UnitPrice on GR lines is optional and never used for variances.
type GoodsReceipt struct {
	Number              string
	PurchaseOrderNumber string
	ReceiptDate         time.Time // zero when unknown
	Lines               []DocumentLine
}

type Invoice struct {
	ID                  InvoiceID
	Number              string
	PurchaseOrderNumber string
	GoodsReceiptNumber  string
	VendorID            string
	InvoiceDate         time.Time
	Lines               []DocumentLine
}

// =============================================================================
// STATUS
// =============================================================================

type MatchStatus string

const (
	StatusMatched                  MatchStatus = "MATCHED"
	StatusVarianceWithinTolerance  MatchStatus = "VARIANCE_WITHIN_TOLERANCE"
	StatusVarianceExceedsTolerance MatchStatus = "VARIANCE_EXCEEDS_TOLERANCE"
)

func (s MatchStatus) Valid() bool {
	switch s {
	case StatusMatched, StatusVarianceWithinTolerance, StatusVarianceExceedsTolerance:
		return true
	}
	return false
}

// LineReason explains why a line is in its status.
// Distinguishes unmatched lines from numeric tolerance breaches.
type LineReason string

const (
	ReasonNone                     LineReason = ""
	ReasonToleranceExceeded        LineReason = "tolerance_exceeded"
	ReasonMissingGoodsReceipt      LineReason = "missing_goods_receipt"
	ReasonMissingInvoiceLine       LineReason = "missing_invoice_line"
	ReasonMissingPurchaseOrderLine LineReason = "missing_purchase_order_line"
)

// IsUnmatched reports whether the reason denotes a line missing from a document.
func (r LineReason) IsUnmatched() bool {
	return r == ReasonMissingGoodsReceipt ||
		r == ReasonMissingInvoiceLine ||
		r == ReasonMissingPurchaseOrderLine
}

// =============================================================================
// LINE RESULT
// =============================================================================

// RuleBreach records one rule that reported an excess on a line.
type RuleBreach struct {
	RuleID             string
	RuleType           RuleType
	Unit               ToleranceUnit
	NormalizedVariance decimal.Decimal
	Tolerance          decimal.Decimal
}

// LineMatchResult is derived entirely from the three lines and a rule snapshot.
type LineMatchResult struct {
	LineNumber       int
	POQuantity       decimal.Decimal
	GRQuantity       decimal.Decimal
	InvoiceQuantity  decimal.Decimal
	POPrice          decimal.Decimal
	InvoicePrice     decimal.Decimal
	QuantityVariance decimal.Decimal
	PriceVariance    decimal.Decimal
	TotalVariance    decimal.Decimal
	DateVarianceDays int

	Status            MatchStatus
	ToleranceExceeded bool
	Reason            LineReason
	Breaches          []RuleBreach
}

// =============================================================================
// THREE-WAY MATCHING
// =============================================================================

type ApprovalState string

const (
	ApprovalNone     ApprovalState = "NONE"
	ApprovalPending  ApprovalState = "PENDING"
	ApprovalApproved ApprovalState = "APPROVED"
	ApprovalRejected ApprovalState = "REJECTED"
)

// IsTerminal reports whether no further transition is permitted.
func (s ApprovalState) IsTerminal() bool {
	return s != ApprovalPending
}

// ThreeWayMatching is created by Match and afterwards only mutated by the
// approval workflow (approval fields and Version).
type ThreeWayMatching struct {
	ID                  MatchingID
	InvoiceID           InvoiceID
	PurchaseOrderNumber string
	GoodsReceiptNumber  string
	LineResults         []LineMatchResult

	OverallStatus     MatchStatus
	ToleranceExceeded bool
	RequiresApproval  bool
	PaymentBlocked    bool

	QuantityVariance decimal.Decimal
	PriceVariance    decimal.Decimal
	TotalVariance    decimal.Decimal

	MatchingDate time.Time
	MatchedBy    string

	ApprovalState  ApprovalState
	DecidedBy      string
	DecidedAt      *time.Time
	DecisionReason string

	// Version is bumped on every persisted workflow transition.
	Version int
}

// StatusCounts returns how many lines are in each status.
func (m ThreeWayMatching) StatusCounts() map[MatchStatus]int {
	counts := make(map[MatchStatus]int, 3)
	for _, lr := range m.LineResults {
		counts[lr.Status]++
	}
	return counts
}

// UnmatchedLines returns line results for lines missing from some document.
func (m ThreeWayMatching) UnmatchedLines() []LineMatchResult {
	var out []LineMatchResult
	for _, lr := range m.LineResults {
		if lr.Reason.IsUnmatched() {
			out = append(out, lr)
		}
	}
	return out
}

// =============================================================================
// ACTORS
// =============================================================================

type Capability string

const (
	CapabilityApproveVariances Capability = "approve_variances"
	CapabilityManageRules      Capability = "manage_rules"
)

// Actor is the caller's identity as supplied by the host system.
type Actor struct {
	ID           string
	Capabilities []Capability
}

// SystemActor is used for automatic matching runs.
var SystemActor = Actor{ID: "system"}

func (a Actor) Can(c Capability) bool {
	for _, have := range a.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}
