package matching

import "github.com/shopspring/decimal"

// =============================================================================
// ANALYTICS - Read-only statistics over a batch of matchings
// =============================================================================

// AnalyticsSummary aggregates a batch of matchings.
// MatchedCount + WithinToleranceCount + ExceededCount == Total always holds;
// MatchedRate + VarianceRate need not sum to 100.
type AnalyticsSummary struct {
	Total                int
	MatchedCount         int
	WithinToleranceCount int
	ExceededCount        int

	MatchedRate  decimal.Decimal // percent
	VarianceRate decimal.Decimal // percent of records with tolerance exceeded

	PendingApprovals int

	TotalVarianceAmount decimal.Decimal // sum of |TotalVariance|
	AverageVariance     decimal.Decimal
}

// ComputeAnalytics never mutates its input.
func ComputeAnalytics(matchings []ThreeWayMatching) AnalyticsSummary {
	s := AnalyticsSummary{
		Total:               len(matchings),
		MatchedRate:         decimal.Zero,
		VarianceRate:        decimal.Zero,
		TotalVarianceAmount: decimal.Zero,
		AverageVariance:     decimal.Zero,
	}

	exceeded := 0
	for _, m := range matchings {
		switch m.OverallStatus {
		case StatusMatched:
			s.MatchedCount++
		case StatusVarianceWithinTolerance:
			s.WithinToleranceCount++
		case StatusVarianceExceedsTolerance:
			s.ExceededCount++
		}
		if m.ToleranceExceeded {
			exceeded++
		}
		if m.ApprovalState == ApprovalPending {
			s.PendingApprovals++
		}
		s.TotalVarianceAmount = s.TotalVarianceAmount.Add(m.TotalVariance.Abs())
	}

	if s.Total == 0 {
		return s
	}
	total := decimal.NewFromInt(int64(s.Total))
	s.MatchedRate = decimal.NewFromInt(int64(s.MatchedCount)).Div(total).Mul(hundred)
	s.VarianceRate = decimal.NewFromInt(int64(exceeded)).Div(total).Mul(hundred)
	s.AverageVariance = s.TotalVarianceAmount.Div(total)
	return s
}
