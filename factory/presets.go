package factory

import (
	"github.com/shopspring/decimal"

	"github.com/warp/threeway-match/matching"
)

// =============================================================================
// PRESETS
// =============================================================================

// DefaultRules are the tolerances a new installation starts with.
func DefaultRules() []matching.MatchingRule {
	return []matching.MatchingRule{
		{
			ID:          "quantity-tolerance",
			Name:        "Quantity Tolerance",
			Description: "Invoiced quantity may deviate up to 5% from the ordered quantity",
			Type:        matching.RuleQuantity,
			Tolerance:   decimal.NewFromInt(5),
			Unit:        matching.UnitPercentage,
			Active:      true,
			Priority:    matching.PriorityHigh,
		},
		{
			ID:          "price-tolerance",
			Name:        "Price Tolerance",
			Description: "Unit price may deviate up to 3% from the PO price",
			Type:        matching.RulePrice,
			Tolerance:   decimal.NewFromInt(3),
			Unit:        matching.UnitPercentage,
			Active:      true,
			Priority:    matching.PriorityHigh,
		},
		{
			ID:          "total-tolerance",
			Name:        "Total Amount Tolerance",
			Description: "Line total may deviate up to 100.00 in invoice currency",
			Type:        matching.RuleTotal,
			Tolerance:   decimal.NewFromInt(100),
			Unit:        matching.UnitAbsolute,
			Active:      true,
			Priority:    matching.PriorityMedium,
		},
		{
			ID:          "delivery-date-tolerance",
			Name:        "Delivery Date Tolerance",
			Description: "Goods may arrive up to 7 days from the expected delivery date",
			Type:        matching.RuleDate,
			Tolerance:   decimal.NewFromInt(7),
			Unit:        matching.UnitDays,
			Active:      false,
			Priority:    matching.PriorityLow,
		},
	}
}

// DefaultConfiguration auto-matches, routes excess variances to approval,
// blocks payment on excess and sends notifications.
func DefaultConfiguration() matching.MatchingConfiguration {
	return matching.MatchingConfiguration{
		AutoMatch:                       true,
		RequireApprovalForVariances:     true,
		BlockInvoicesExceedingTolerance: true,
		SendNotifications:               true,
		Rules:                           matching.NewRuleSet(DefaultRules()...),
	}
}

// DefaultConfigurationJSON returns DefaultConfiguration in its JSON form.
func DefaultConfigurationJSON() string {
	s, _ := ToJSON(DefaultConfiguration())
	return s
}
