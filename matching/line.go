/*
line.go - Line Matcher

PURPOSE:
  Evaluates one correlated PO / GR / Invoice line triple against the active
  rules and produces a LineMatchResult.

VARIANCES (all signed, invoice minus PO):
  quantity = inv.Quantity - po.Quantity
  price    = inv.UnitPrice - po.UnitPrice
  total    = inv.Quantity*inv.UnitPrice - po.Quantity*po.UnitPrice
  date     = GR receipt date - PO expected delivery date, in days

NORMALIZATION (per rule unit):
  PERCENTAGE  |variance| / reference * 100
              reference = PO quantity, PO price or PO line total.
              A zero reference makes any nonzero variance an excess.
  ABSOLUTE    |variance|
  DAYS        |date variance|

  A rule is exceeded when normalized > tolerance. Equality is NOT an excess.

STATUS:
  VARIANCE_EXCEEDS_TOLERANCE  any rule exceeded
  MATCHED                     quantity, price and total variance all zero
  VARIANCE_WITHIN_TOLERANCE   otherwise

SEE ALSO:
  - document.go: Correlates lines and calls EvaluateLine
  - rules.go: Rule definitions
*/
package matching

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// DateContext carries the document-level dates used by DATE rules.
// Either field may be zero, in which case DATE rules are skipped.
type DateContext struct {
	ExpectedDelivery time.Time
	Received         time.Time
}

// Known reports whether both dates are set.
func (d DateContext) Known() bool {
	return !d.ExpectedDelivery.IsZero() && !d.Received.IsZero()
}

// VarianceDays returns received minus expected, in whole calendar days.
func (d DateContext) VarianceDays() int {
	if !d.Known() {
		return 0
	}
	return int(civilDay(d.Received) - civilDay(d.ExpectedDelivery))
}

// civilDay numbers UTC calendar days from the Unix epoch.
// Avoids time.Duration, which saturates past ~292 years.
func civilDay(t time.Time) int64 {
	return truncateDay(t).Unix() / secondsPerDay
}

const secondsPerDay = 24 * 60 * 60

func truncateDay(t time.Time) time.Time {
	y, m, day := t.UTC().Date()
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

// EvaluateLine computes variances and status for one line triple.
// Pure: depends only on its arguments.
func EvaluateLine(po, gr, inv DocumentLine, rules []MatchingRule, dates DateContext) LineMatchResult {
	result := LineMatchResult{
		LineNumber:       po.LineNumber,
		POQuantity:       po.Quantity,
		GRQuantity:       gr.Quantity,
		InvoiceQuantity:  inv.Quantity,
		POPrice:          po.UnitPrice,
		InvoicePrice:     inv.UnitPrice,
		QuantityVariance: inv.Quantity.Sub(po.Quantity),
		PriceVariance:    inv.UnitPrice.Sub(po.UnitPrice),
		TotalVariance:    inv.Total().Sub(po.Total()),
		DateVarianceDays: dates.VarianceDays(),
	}

	for _, rule := range rules {
		if !rule.Active {
			continue
		}
		variance, reference, ok := dimension(rule.Type, result, po, dates)
		if !ok {
			continue
		}
		normalized, exceeded := exceeds(rule, variance, reference)
		if exceeded {
			result.Breaches = append(result.Breaches, RuleBreach{
				RuleID:             rule.ID,
				RuleType:           rule.Type,
				Unit:               rule.Unit,
				NormalizedVariance: normalized,
				Tolerance:          rule.Tolerance,
			})
		}
	}

	switch {
	case len(result.Breaches) > 0:
		result.Status = StatusVarianceExceedsTolerance
		result.ToleranceExceeded = true
		result.Reason = ReasonToleranceExceeded
	case result.QuantityVariance.IsZero() && result.PriceVariance.IsZero() && result.TotalVariance.IsZero():
		result.Status = StatusMatched
	default:
		result.Status = StatusVarianceWithinTolerance
	}
	return result
}

// dimension picks the variance and PERCENTAGE reference a rule type applies to.
func dimension(t RuleType, r LineMatchResult, po DocumentLine, dates DateContext) (variance, reference decimal.Decimal, ok bool) {
	switch t {
	case RuleQuantity:
		return r.QuantityVariance, po.Quantity, true
	case RulePrice:
		return r.PriceVariance, po.UnitPrice, true
	case RuleTotal:
		return r.TotalVariance, po.Total(), true
	case RuleDate:
		if !dates.Known() {
			return decimal.Zero, decimal.Zero, false
		}
		return decimal.NewFromInt(int64(r.DateVarianceDays)), decimal.Zero, true
	}
	return decimal.Zero, decimal.Zero, false
}

// exceeds normalizes variance to the rule's unit and compares with tolerance.
func exceeds(rule MatchingRule, variance, reference decimal.Decimal) (decimal.Decimal, bool) {
	abs := variance.Abs()
	switch rule.Unit {
	case UnitPercentage:
		if reference.IsZero() {
			// No base to express a percentage against.
			return abs, !abs.IsZero()
		}
		normalized := abs.Div(reference.Abs()).Mul(hundred)
		return normalized, normalized.GreaterThan(rule.Tolerance)
	case UnitAbsolute, UnitDays:
		return abs, abs.GreaterThan(rule.Tolerance)
	}
	return abs, false
}
