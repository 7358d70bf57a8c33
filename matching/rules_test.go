package matching_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/threeway-match/matching"
)

// =============================================================================
// RULE SET
// =============================================================================

func TestNewRuleSet_ActiveOrderedByPriorityThenID(t *testing.T) {
	low := rule("z-low", matching.RuleDate, "7", matching.UnitDays)
	low.Priority = matching.PriorityLow
	highB := rule("b-high", matching.RulePrice, "3", matching.UnitPercentage)
	highB.Priority = matching.PriorityHigh
	highA := rule("a-high", matching.RuleQuantity, "5", matching.UnitPercentage)
	highA.Priority = matching.PriorityHigh
	inactive := rule("inactive", matching.RuleTotal, "1", matching.UnitAbsolute)
	inactive.Active = false
	medium := rule("m-medium", matching.RuleTotal, "100", matching.UnitAbsolute)

	rs := matching.NewRuleSet(low, highB, inactive, medium, highA)

	ids := func(rules []matching.MatchingRule) []string {
		out := make([]string, len(rules))
		for i, r := range rules {
			out[i] = r.ID
		}
		return out
	}
	assert.Equal(t, []string{"a-high", "b-high", "m-medium", "z-low"}, ids(rs.Active()))
	assert.Equal(t, []string{"z-low", "b-high", "inactive", "m-medium", "a-high"}, ids(rs.All()))
	assert.Equal(t, 5, rs.Len())
}

func TestRuleSet_IsImmutable(t *testing.T) {
	// GIVEN: A rule set built from a slice
	rules := []matching.MatchingRule{priceRule("3")}
	rs := matching.NewRuleSet(rules...)

	// WHEN: The caller mutates the source slice and a returned copy
	rules[0].Tolerance = dec("99")
	all := rs.All()
	all[0].Tolerance = dec("42")

	// THEN: The rule set is unaffected
	assert.True(t, rs.All()[0].Tolerance.Equal(dec("3")))
	assert.True(t, rs.Active()[0].Tolerance.Equal(dec("3")))
}

func TestRuleValidate(t *testing.T) {
	tests := []struct {
		name  string
		rule  matching.MatchingRule
		valid bool
	}{
		{"percentage price", priceRule("3"), true},
		{"zero tolerance", priceRule("0"), true},
		{"negative tolerance", priceRule("-0.5"), false},
		{"absolute total", rule("t", matching.RuleTotal, "100", matching.UnitAbsolute), true},
		{"days on date", rule("d", matching.RuleDate, "7", matching.UnitDays), true},
		{"absolute on date", rule("d", matching.RuleDate, "7", matching.UnitAbsolute), true},
		{"percentage on date", rule("d", matching.RuleDate, "7", matching.UnitPercentage), false},
		{"days on price", rule("p", matching.RulePrice, "7", matching.UnitDays), false},
		{"unknown type", rule("x", matching.RuleType("WEIGHT"), "1", matching.UnitAbsolute), false},
		{"unknown unit", rule("x", matching.RulePrice, "1", matching.ToleranceUnit("PERMILLE")), false},
		{"missing id", rule("", matching.RulePrice, "1", matching.UnitAbsolute), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, matching.ErrValidation)
			}
		})
	}
}

func TestRuleSetValidate_DuplicateIDs(t *testing.T) {
	rs := matching.NewRuleSet(priceRule("3"), priceRule("5"))

	err := rs.Validate()

	var verr *matching.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "rules[1].id", verr.Problems[0].Field)
}

// =============================================================================
// RULE STORE
// =============================================================================

func TestRuleStore_ReplaceIsAtomic(t *testing.T) {
	// GIVEN: A store holding a 3% rule
	rs, err := matching.NewRuleStore(config(priceRule("3")))
	require.NoError(t, err)

	// WHEN: Readers snapshot while a writer swaps between 3% and 15%
	// THEN: Every snapshot is one of the two complete configurations
	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := rs.Snapshot()
				active := snap.Rules.Active()
				if assert.Len(t, active, 1) {
					tol := active[0].Tolerance.String()
					assert.Contains(t, []string{"3", "15"}, tol)
				}
			}
		}()
	}
	for i := 0; i < 200; i++ {
		tol := "3"
		if i%2 == 0 {
			tol = "15"
		}
		require.NoError(t, rs.Replace(config(priceRule(tol))))
	}
	close(stop)
	wg.Wait()
}

func TestRuleStore_InvalidReplaceRejected(t *testing.T) {
	rs, err := matching.NewRuleStore(config(priceRule("3")))
	require.NoError(t, err)

	err = rs.Replace(config(priceRule("-1")))

	assert.ErrorIs(t, err, matching.ErrValidation)
	assert.True(t, rs.ActiveRules()[0].Tolerance.Equal(dec("3")))
}

func TestNewRuleStore_InvalidConfiguration(t *testing.T) {
	_, err := matching.NewRuleStore(config(priceRule("-1")))

	assert.ErrorIs(t, err, matching.ErrValidation)
}
