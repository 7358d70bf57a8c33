/*
document.go - Document Matcher

PURPOSE:
  Correlates the lines of a PO, GR and Invoice by line number, evaluates
  each correlated triple with the Line Matcher, and aggregates the results
  into one ThreeWayMatching record.

FLOW:
  ┌──────────┐   ┌────────────┐   ┌─────────────┐   ┌──────────────────┐
  │ Validate │──▶│ Correlate  │──▶│ EvaluateLine│──▶│ Aggregate status │
  └──────────┘   │ by line no │   │ per triple  │   │ and variances    │
       │         └────────────┘   └─────────────┘   └──────────────────┘
       ▼
  *ValidationError (nothing produced)

UNMATCHED LINES:
  A line number missing from one of the documents is never dropped. It is
  reported with status VARIANCE_EXCEEDS_TOLERANCE and a reason code:

    PO + Invoice, no GR    evaluated normally, forced to exceed
                           (missing_goods_receipt)
    PO, no Invoice         invoice side counted as zero quantity
                           (missing_invoice_line)
    Invoice/GR, no PO      PO side counted as zero quantity
                           (missing_purchase_order_line)

  Price variance is zero on lines with one side missing; there is no price
  to compare against.

AGGREGATION:
  Variances are signed sums over lines. Under- and over-invoicing on
  different lines may offset each other.

SEE ALSO:
  - line.go: EvaluateLine
  - service.go: Persists the result and emits events
*/
package matching

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Match reconciles the three documents under cfg. It is a pure function:
// the returned record has no ID and Version 0; the caller assigns identity
// when persisting it.
func Match(po PurchaseOrder, gr GoodsReceipt, inv Invoice, cfg MatchingConfiguration, actor Actor, now time.Time) (ThreeWayMatching, error) {
	if err := ValidateDocuments(po, gr, inv); err != nil {
		return ThreeWayMatching{}, err
	}
	if err := cfg.Validate(); err != nil {
		return ThreeWayMatching{}, err
	}

	rules := cfg.Rules.Active()
	dates := DateContext{ExpectedDelivery: po.ExpectedDeliveryDate, Received: gr.ReceiptDate}

	poLines := indexLines(po.Lines)
	grLines := indexLines(gr.Lines)
	invLines := indexLines(inv.Lines)

	m := ThreeWayMatching{
		InvoiceID:           inv.ID,
		PurchaseOrderNumber: po.Number,
		GoodsReceiptNumber:  gr.Number,
		QuantityVariance:    decimal.Zero,
		PriceVariance:       decimal.Zero,
		TotalVariance:       decimal.Zero,
		MatchingDate:        now,
		MatchedBy:           actor.ID,
	}
	if m.InvoiceID == "" {
		m.InvoiceID = InvoiceID(inv.Number)
	}

	for _, n := range lineNumbers(poLines, grLines, invLines) {
		p, hasPO := poLines[n]
		g, hasGR := grLines[n]
		i, hasInv := invLines[n]

		var lr LineMatchResult
		switch {
		case hasPO && hasInv:
			lr = EvaluateLine(p, g, i, rules, dates)
			if !hasGR {
				lr.GRQuantity = decimal.Zero
				markUnmatched(&lr, ReasonMissingGoodsReceipt)
			}
		case hasPO:
			lr = oneSided(n, p, g, DocumentLine{}, ReasonMissingInvoiceLine)
		default:
			lr = oneSided(n, DocumentLine{}, g, i, ReasonMissingPurchaseOrderLine)
		}

		m.LineResults = append(m.LineResults, lr)
		m.QuantityVariance = m.QuantityVariance.Add(lr.QuantityVariance)
		m.PriceVariance = m.PriceVariance.Add(lr.PriceVariance)
		m.TotalVariance = m.TotalVariance.Add(lr.TotalVariance)
	}

	m.OverallStatus = overallStatus(m.LineResults)
	m.ToleranceExceeded = m.OverallStatus == StatusVarianceExceedsTolerance
	m.RequiresApproval = m.ToleranceExceeded && cfg.RequireApprovalForVariances
	m.PaymentBlocked = m.ToleranceExceeded && cfg.BlockInvoicesExceedingTolerance
	if m.RequiresApproval {
		m.ApprovalState = ApprovalPending
	} else {
		m.ApprovalState = ApprovalNone
	}
	return m, nil
}

// oneSided builds the result for a line missing from the PO or the invoice.
// The absent side contributes zero quantity.
func oneSided(n int, po, gr, inv DocumentLine, reason LineReason) LineMatchResult {
	lr := LineMatchResult{
		LineNumber:       n,
		POQuantity:       po.Quantity,
		GRQuantity:       gr.Quantity,
		InvoiceQuantity:  inv.Quantity,
		POPrice:          po.UnitPrice,
		InvoicePrice:     inv.UnitPrice,
		QuantityVariance: inv.Quantity.Sub(po.Quantity),
		PriceVariance:    decimal.Zero,
		TotalVariance:    inv.Total().Sub(po.Total()),
	}
	markUnmatched(&lr, reason)
	return lr
}

func markUnmatched(lr *LineMatchResult, reason LineReason) {
	lr.Status = StatusVarianceExceedsTolerance
	lr.ToleranceExceeded = true
	lr.Reason = reason
}

func overallStatus(lines []LineMatchResult) MatchStatus {
	status := StatusMatched
	for _, lr := range lines {
		switch lr.Status {
		case StatusVarianceExceedsTolerance:
			return StatusVarianceExceedsTolerance
		case StatusVarianceWithinTolerance:
			status = StatusVarianceWithinTolerance
		}
	}
	return status
}

func indexLines(lines []DocumentLine) map[int]DocumentLine {
	idx := make(map[int]DocumentLine, len(lines))
	for _, l := range lines {
		idx[l.LineNumber] = l
	}
	return idx
}

// lineNumbers returns the union of line numbers, ascending.
func lineNumbers(docs ...map[int]DocumentLine) []int {
	seen := make(map[int]bool)
	var out []int
	for _, d := range docs {
		for n := range d {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	sort.Ints(out)
	return out
}
