/*
rules.go - Tolerance rules and the Rule Store

PURPOSE:
  Defines MatchingRule and MatchingConfiguration, and the RuleStore that
  publishes the active configuration to the matcher.

SNAPSHOT SEMANTICS:
  A MatchingConfiguration is never mutated after construction. The RuleStore
  holds a pointer to the current one and swaps the whole pointer on update:

    ┌──────────┐  Replace(cfg)   ┌──────────────┐
    │ RuleStore│ ──────────────▶ │ new snapshot │
    └──────────┘                 └──────────────┘
         │ Snapshot()
         ▼
    evaluation uses one snapshot from start to finish

  In-flight evaluations keep the snapshot they started with, so no match
  ever sees a half-updated rule set.

ORDERING:
  ActiveRules() returns only active rules, ordered by priority
  (HIGH, MEDIUM, LOW) then by ID.

SEE ALSO:
  - line.go: Applies rules to variances
  - factory/configuration.go: Builds configurations from JSON/YAML
*/
package matching

import (
	"sort"
	"strconv"
	"sync/atomic"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RULE
// =============================================================================

type RuleType string

const (
	RuleQuantity RuleType = "QUANTITY"
	RulePrice    RuleType = "PRICE"
	RuleTotal    RuleType = "TOTAL"
	RuleDate     RuleType = "DATE"
)

type ToleranceUnit string

const (
	UnitPercentage ToleranceUnit = "PERCENTAGE"
	UnitAbsolute   ToleranceUnit = "ABSOLUTE"
	UnitDays       ToleranceUnit = "DAYS"
)

type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

// rank orders priorities, lower first.
func (p Priority) rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	}
	return 3
}

// MatchingRule is a configured tolerance for one variance dimension.
type MatchingRule struct {
	ID          string
	Name        string
	Description string
	Type        RuleType
	Tolerance   decimal.Decimal
	Unit        ToleranceUnit
	Active      bool
	Priority    Priority
}

// Validate checks the rule's own invariants.
func (r MatchingRule) Validate() error {
	verr := &ValidationError{}
	r.validateInto(verr, "rule["+r.ID+"]")
	return verr.orNil()
}

func (r MatchingRule) validateInto(verr *ValidationError, field string) {
	if r.ID == "" {
		verr.add(field+".id", "is required")
	}
	switch r.Type {
	case RuleQuantity, RulePrice, RuleTotal, RuleDate:
	default:
		verr.add(field+".type", "unknown rule type %q", r.Type)
	}
	switch r.Unit {
	case UnitPercentage, UnitAbsolute:
		if r.Type == RuleDate && r.Unit == UnitPercentage {
			verr.add(field+".unit", "DATE rules cannot use PERCENTAGE")
		}
	case UnitDays:
		if r.Type != RuleDate {
			verr.add(field+".unit", "DAYS is only valid for DATE rules")
		}
	default:
		verr.add(field+".unit", "unknown unit %q", r.Unit)
	}
	if r.Priority.rank() > 2 {
		verr.add(field+".priority", "unknown priority %q", r.Priority)
	}
	if r.Tolerance.IsNegative() {
		verr.add(field+".tolerance", "must be >= 0, got %s", r.Tolerance)
	}
}

// =============================================================================
// RULE SET - Immutable, ordered snapshot
// =============================================================================

// RuleSet is an immutable collection of rules. Construct with NewRuleSet.
type RuleSet struct {
	rules  []MatchingRule
	active []MatchingRule
}

// NewRuleSet copies the given rules and precomputes the active ordering.
func NewRuleSet(rules ...MatchingRule) RuleSet {
	all := make([]MatchingRule, len(rules))
	copy(all, rules)

	var active []MatchingRule
	for _, r := range all {
		if r.Active {
			active = append(active, r)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		pi, pj := active[i].Priority.rank(), active[j].Priority.rank()
		if pi != pj {
			return pi < pj
		}
		return active[i].ID < active[j].ID
	})
	return RuleSet{rules: all, active: active}
}

// All returns a copy of every rule, active or not, in configured order.
func (rs RuleSet) All() []MatchingRule {
	out := make([]MatchingRule, len(rs.rules))
	copy(out, rs.rules)
	return out
}

// Active returns a copy of the active rules ordered by priority then ID.
func (rs RuleSet) Active() []MatchingRule {
	out := make([]MatchingRule, len(rs.active))
	copy(out, rs.active)
	return out
}

func (rs RuleSet) Len() int { return len(rs.rules) }

// Validate checks each rule and that IDs are unique.
func (rs RuleSet) Validate() error {
	verr := &ValidationError{}
	seen := make(map[string]bool, len(rs.rules))
	for i, r := range rs.rules {
		field := "rules[" + strconv.Itoa(i) + "]"
		r.validateInto(verr, field)
		if r.ID != "" && seen[r.ID] {
			verr.add(field+".id", "duplicate rule id %q", r.ID)
		}
		seen[r.ID] = true
	}
	return verr.orNil()
}

// =============================================================================
// CONFIGURATION
// =============================================================================

// MatchingConfiguration is the complete, immutable matching setup.
type MatchingConfiguration struct {
	AutoMatch                       bool
	RequireApprovalForVariances     bool
	BlockInvoicesExceedingTolerance bool
	SendNotifications               bool
	Rules                           RuleSet
}

func (c MatchingConfiguration) Validate() error {
	return c.Rules.Validate()
}

// =============================================================================
// RULE STORE
// =============================================================================

// RuleStore publishes the current configuration. Safe for concurrent use.
type RuleStore struct {
	current atomic.Pointer[MatchingConfiguration]
}

// NewRuleStore creates a store holding cfg.
func NewRuleStore(cfg MatchingConfiguration) (*RuleStore, error) {
	rs := &RuleStore{}
	if err := rs.Replace(cfg); err != nil {
		return nil, err
	}
	return rs, nil
}

// Snapshot returns the configuration current at the time of the call.
func (s *RuleStore) Snapshot() MatchingConfiguration {
	return *s.current.Load()
}

// ActiveRules returns the active rules of the current snapshot.
func (s *RuleStore) ActiveRules() []MatchingRule {
	return s.current.Load().Rules.Active()
}

// Replace validates cfg and atomically publishes it.
// Subsequent evaluations see cfg; in-flight ones keep their snapshot.
func (s *RuleStore) Replace(cfg MatchingConfiguration) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	snap := cfg
	s.current.Store(&snap)
	return nil
}
