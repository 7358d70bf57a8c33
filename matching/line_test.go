package matching_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/threeway-match/matching"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func docLine(n int, qty, price string) matching.DocumentLine {
	return matching.DocumentLine{LineNumber: n, Quantity: dec(qty), UnitPrice: dec(price)}
}

func rule(id string, t matching.RuleType, tolerance string, unit matching.ToleranceUnit) matching.MatchingRule {
	return matching.MatchingRule{
		ID:        id,
		Name:      id,
		Type:      t,
		Tolerance: dec(tolerance),
		Unit:      unit,
		Active:    true,
		Priority:  matching.PriorityMedium,
	}
}

func priceRule(tolerance string) matching.MatchingRule {
	return rule("price", matching.RulePrice, tolerance, matching.UnitPercentage)
}

func noDates() matching.DateContext { return matching.DateContext{} }

// =============================================================================
// LINE MATCHER
// =============================================================================

func TestEvaluateLine_IdenticalLines_Matched(t *testing.T) {
	// GIVEN: PO, GR and invoice agree on quantity and price
	// WHEN: Evaluating under the usual rules
	// THEN: MATCHED with zero variances and no breaches

	l := docLine(1, "100", "125.00")
	rules := []matching.MatchingRule{
		rule("qty", matching.RuleQuantity, "5", matching.UnitPercentage),
		priceRule("3"),
		rule("total", matching.RuleTotal, "100", matching.UnitAbsolute),
	}

	result := matching.EvaluateLine(l, l, l, rules, noDates())

	assert.Equal(t, matching.StatusMatched, result.Status)
	assert.False(t, result.ToleranceExceeded)
	assert.True(t, result.QuantityVariance.IsZero())
	assert.True(t, result.PriceVariance.IsZero())
	assert.True(t, result.TotalVariance.IsZero())
	assert.Empty(t, result.Breaches)
	assert.Equal(t, matching.ReasonNone, result.Reason)
}

func TestEvaluateLine_PriceAboveTolerance_Exceeds(t *testing.T) {
	// GIVEN: Invoice at 350.00 against a PO price of 315.00, PRICE rule at 3%
	// WHEN: Evaluating
	// THEN: 35/315*100 ≈ 11.1% > 3%, line exceeds, total variance 875

	po := docLine(1, "25", "315.00")
	gr := docLine(1, "25", "0")
	inv := docLine(1, "25", "350.00")

	result := matching.EvaluateLine(po, gr, inv, []matching.MatchingRule{priceRule("3")}, noDates())

	assert.Equal(t, matching.StatusVarianceExceedsTolerance, result.Status)
	assert.True(t, result.ToleranceExceeded)
	assert.Equal(t, matching.ReasonToleranceExceeded, result.Reason)
	assert.True(t, result.PriceVariance.Equal(dec("35")), "price variance: %s", result.PriceVariance)
	assert.True(t, result.TotalVariance.Equal(dec("875")), "total variance: %s", result.TotalVariance)

	require.Len(t, result.Breaches, 1)
	b := result.Breaches[0]
	assert.Equal(t, "price", b.RuleID)
	assert.Equal(t, "11.11", b.NormalizedVariance.StringFixed(2))
}

func TestEvaluateLine_ToleranceRaised_WithinTolerance(t *testing.T) {
	// GIVEN: The same 11.1% price variance
	// WHEN: The PRICE rule allows 15%
	// THEN: The line is within tolerance

	po := docLine(1, "25", "315.00")
	inv := docLine(1, "25", "350.00")

	result := matching.EvaluateLine(po, po, inv, []matching.MatchingRule{priceRule("15")}, noDates())

	assert.Equal(t, matching.StatusVarianceWithinTolerance, result.Status)
	assert.False(t, result.ToleranceExceeded)
	assert.Empty(t, result.Breaches)
}

func TestEvaluateLine_VarianceEqualToTolerance_NotExceeded(t *testing.T) {
	// GIVEN: Invoice quantity exactly 5% over the PO, QUANTITY rule at 5%
	// WHEN: Evaluating
	// THEN: Equality is not an excess

	po := docLine(1, "100", "1.00")
	inv := docLine(1, "105", "1.00")
	rules := []matching.MatchingRule{rule("qty", matching.RuleQuantity, "5", matching.UnitPercentage)}

	result := matching.EvaluateLine(po, po, inv, rules, noDates())

	assert.Equal(t, matching.StatusVarianceWithinTolerance, result.Status)
	assert.True(t, result.QuantityVariance.Equal(dec("5")))
}

func TestEvaluateLine_ShortInvoice_UsesAbsoluteVariance(t *testing.T) {
	// GIVEN: Invoice 10% under the PO quantity, QUANTITY rule at 5%
	// WHEN: Evaluating
	// THEN: Negative variances are compared by magnitude

	po := docLine(1, "100", "1.00")
	inv := docLine(1, "90", "1.00")
	rules := []matching.MatchingRule{rule("qty", matching.RuleQuantity, "5", matching.UnitPercentage)}

	result := matching.EvaluateLine(po, po, inv, rules, noDates())

	assert.Equal(t, matching.StatusVarianceExceedsTolerance, result.Status)
	assert.True(t, result.QuantityVariance.Equal(dec("-10")))
	assert.True(t, result.TotalVariance.Equal(dec("-10")))
}

func TestEvaluateLine_ZeroReference_AnyVarianceExceeds(t *testing.T) {
	// GIVEN: A PO line priced at zero and an invoice at 0.01
	// WHEN: A PERCENTAGE price rule with a generous tolerance applies
	// THEN: There is no base for a percentage, so the line exceeds

	po := docLine(1, "10", "0")
	inv := docLine(1, "10", "0.01")

	result := matching.EvaluateLine(po, po, inv, []matching.MatchingRule{priceRule("50")}, noDates())

	assert.Equal(t, matching.StatusVarianceExceedsTolerance, result.Status)
}

func TestEvaluateLine_InactiveRule_Ignored(t *testing.T) {
	// GIVEN: An 11% price variance and an inactive 3% price rule
	// WHEN: Evaluating
	// THEN: The inactive rule is not applied

	po := docLine(1, "25", "315.00")
	inv := docLine(1, "25", "350.00")
	r := priceRule("3")
	r.Active = false

	result := matching.EvaluateLine(po, po, inv, []matching.MatchingRule{r}, noDates())

	assert.Equal(t, matching.StatusVarianceWithinTolerance, result.Status)
}

func TestEvaluateLine_AbsoluteTotalRule(t *testing.T) {
	// GIVEN: A TOTAL rule of 100.00 ABSOLUTE
	po := docLine(1, "10", "50.00")
	rules := []matching.MatchingRule{rule("total", matching.RuleTotal, "100", matching.UnitAbsolute)}

	// WHEN: The invoice total differs by exactly 100.00
	within := matching.EvaluateLine(po, po, docLine(1, "12", "50.00"), rules, noDates())
	// AND: by 100.50
	over := matching.EvaluateLine(po, po, docLine(1, "10", "60.05"), rules, noDates())

	// THEN: Only the second exceeds
	assert.Equal(t, matching.StatusVarianceWithinTolerance, within.Status)
	assert.Equal(t, matching.StatusVarianceExceedsTolerance, over.Status)
	assert.True(t, over.TotalVariance.Equal(dec("100.50")))
}

func TestEvaluateLine_DateRule(t *testing.T) {
	expected := time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC)
	l := docLine(1, "10", "10.00")
	dateRule := rule("late", matching.RuleDate, "7", matching.UnitDays)

	t.Run("late delivery exceeds", func(t *testing.T) {
		// GIVEN: Goods received 10 days after the expected date, 7 day rule
		dates := matching.DateContext{ExpectedDelivery: expected, Received: expected.AddDate(0, 0, 10)}

		result := matching.EvaluateLine(l, l, l, []matching.MatchingRule{dateRule}, dates)

		// THEN: The line exceeds even though amounts agree
		assert.Equal(t, 10, result.DateVarianceDays)
		assert.Equal(t, matching.StatusVarianceExceedsTolerance, result.Status)
	})

	t.Run("early delivery compared by magnitude", func(t *testing.T) {
		dates := matching.DateContext{ExpectedDelivery: expected, Received: expected.AddDate(0, 0, -3)}

		result := matching.EvaluateLine(l, l, l, []matching.MatchingRule{dateRule}, dates)

		assert.Equal(t, -3, result.DateVarianceDays)
		assert.Equal(t, matching.StatusMatched, result.Status)
	})

	t.Run("unknown dates skip the rule", func(t *testing.T) {
		dates := matching.DateContext{Received: expected.AddDate(0, 0, 30)}

		result := matching.EvaluateLine(l, l, l, []matching.MatchingRule{dateRule}, dates)

		assert.Equal(t, 0, result.DateVarianceDays)
		assert.Equal(t, matching.StatusMatched, result.Status)
	})
}

func TestDateContext_VarianceDays_DistantDates(t *testing.T) {
	// GIVEN: Dates five centuries apart, beyond what a time.Duration holds
	from := time.Date(1700, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2200, 1, 1, 0, 0, 0, 0, time.UTC)

	// THEN: The exact calendar day count is returned in both directions
	assert.Equal(t, 182621, matching.DateContext{ExpectedDelivery: from, Received: to}.VarianceDays())
	assert.Equal(t, -182621, matching.DateContext{ExpectedDelivery: to, Received: from}.VarianceDays())

	// AND: Time of day and zone do not shift the count
	late := time.Date(2025, 3, 18, 23, 59, 0, 0, time.UTC)
	early := time.Date(2025, 3, 17, 0, 1, 0, 0, time.UTC)
	assert.Equal(t, 1, matching.DateContext{ExpectedDelivery: early, Received: late}.VarianceDays())
}

func TestEvaluateLine_Monotonicity(t *testing.T) {
	// GIVEN: Fixed documents with a price variance
	// WHEN: The PRICE tolerance increases step by step
	// THEN: Once a line stops exceeding, it never exceeds again

	po := docLine(1, "25", "315.00")
	inv := docLine(1, "25", "350.00")

	wasExceeded := true
	for tol := 0; tol <= 30; tol++ {
		r := priceRule(decimal.NewFromInt(int64(tol)).String())
		result := matching.EvaluateLine(po, po, inv, []matching.MatchingRule{r}, noDates())

		if !wasExceeded {
			assert.False(t, result.ToleranceExceeded, "tolerance %d%% re-entered EXCEEDS", tol)
		}
		wasExceeded = result.ToleranceExceeded
	}
	assert.False(t, wasExceeded, "30%% tolerance should accept an 11.1%% variance")
}
