/*
Package factory provides JSON/YAML to Go matching-configuration conversion.

PURPOSE:
  Converts configuration documents into matching.MatchingConfiguration
  snapshots. Finance teams edit tolerances in a file or through the API;
  the factory validates the document and builds the immutable snapshot.

JSON SCHEMA:
  {
    "auto_match": true,
    "require_approval_for_variances": true,
    "block_invoices_exceeding_tolerance": true,
    "send_notifications": true,
    "rules": [
      {
        "id": "price-tolerance",
        "name": "Price Tolerance",
        "description": "Unit price may deviate up to 3% from the PO",
        "type": "PRICE",
        "tolerance": 3,
        "unit": "PERCENTAGE",
        "active": true,
        "priority": "HIGH"
      }
    ]
  }

  YAML files use the same keys. Enum values are case-insensitive.

KEY FEATURES:
  - Validates every rule (tolerance >= 0, unit/type compatibility)
  - Tolerances are parsed as decimals; "2.5" and 2.5 are both accepted
  - Round-trips: ToJSON(ParseConfiguration(x)) keeps all fields

USAGE:
  cfg, err := factory.LoadConfigurationFile("rules.yaml")
  rules, err := matching.NewRuleStore(cfg)

SEE ALSO:
  - matching/rules.go: Snapshot types
  - presets.go: DefaultConfiguration
*/
package factory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/warp/threeway-match/matching"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// ConfigurationJSON is the JSON representation of a matching configuration.
type ConfigurationJSON struct {
	AutoMatch                       bool       `json:"auto_match"`
	RequireApprovalForVariances     bool       `json:"require_approval_for_variances"`
	BlockInvoicesExceedingTolerance bool       `json:"block_invoices_exceeding_tolerance"`
	SendNotifications               bool       `json:"send_notifications"`
	Rules                           []RuleJSON `json:"rules"`
}

// RuleJSON is the JSON representation of a single tolerance rule.
type RuleJSON struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Type        string          `json:"type"`
	Tolerance   decimal.Decimal `json:"tolerance"`
	Unit        string          `json:"unit"`
	Active      bool            `json:"active"`
	Priority    string          `json:"priority,omitempty"`
}

// =============================================================================
// PARSING
// =============================================================================

// ParseConfiguration parses and validates a JSON configuration.
func ParseConfiguration(data []byte) (matching.MatchingConfiguration, error) {
	var cj ConfigurationJSON
	if err := json.Unmarshal(data, &cj); err != nil {
		return matching.MatchingConfiguration{}, fmt.Errorf("invalid configuration JSON: %w", err)
	}
	return cj.ToConfiguration()
}

// ParseConfigurationYAML parses a YAML configuration. The document is
// normalized through JSON so both formats share one schema.
func ParseConfigurationYAML(data []byte) (matching.MatchingConfiguration, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return matching.MatchingConfiguration{}, fmt.Errorf("invalid configuration YAML: %w", err)
	}
	asJSON, err := json.Marshal(raw)
	if err != nil {
		return matching.MatchingConfiguration{}, fmt.Errorf("invalid configuration YAML: %w", err)
	}
	return ParseConfiguration(asJSON)
}

// LoadConfigurationFile reads a .json, .yaml or .yml configuration file.
func LoadConfigurationFile(path string) (matching.MatchingConfiguration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return matching.MatchingConfiguration{}, fmt.Errorf("failed to read configuration: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseConfigurationYAML(data)
	default:
		return ParseConfiguration(data)
	}
}

// ToConfiguration converts and validates.
func (cj ConfigurationJSON) ToConfiguration() (matching.MatchingConfiguration, error) {
	rules := make([]matching.MatchingRule, len(cj.Rules))
	for i, r := range cj.Rules {
		rules[i] = r.ToRule()
	}
	cfg := matching.MatchingConfiguration{
		AutoMatch:                       cj.AutoMatch,
		RequireApprovalForVariances:     cj.RequireApprovalForVariances,
		BlockInvoicesExceedingTolerance: cj.BlockInvoicesExceedingTolerance,
		SendNotifications:               cj.SendNotifications,
		Rules:                           matching.NewRuleSet(rules...),
	}
	if err := cfg.Validate(); err != nil {
		return matching.MatchingConfiguration{}, err
	}
	return cfg, nil
}

// ToRule converts a rule, normalizing enum casing. Priority defaults to MEDIUM.
func (r RuleJSON) ToRule() matching.MatchingRule {
	priority := strings.ToUpper(strings.TrimSpace(r.Priority))
	if priority == "" {
		priority = string(matching.PriorityMedium)
	}
	return matching.MatchingRule{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Type:        matching.RuleType(strings.ToUpper(strings.TrimSpace(r.Type))),
		Tolerance:   r.Tolerance,
		Unit:        matching.ToleranceUnit(strings.ToUpper(strings.TrimSpace(r.Unit))),
		Active:      r.Active,
		Priority:    matching.Priority(priority),
	}
}

// =============================================================================
// SERIALIZATION
// =============================================================================

// FromConfiguration converts a snapshot back to its JSON shape.
func FromConfiguration(cfg matching.MatchingConfiguration) ConfigurationJSON {
	all := cfg.Rules.All()
	rules := make([]RuleJSON, len(all))
	for i, r := range all {
		rules[i] = RuleJSON{
			ID:          r.ID,
			Name:        r.Name,
			Description: r.Description,
			Type:        string(r.Type),
			Tolerance:   r.Tolerance,
			Unit:        string(r.Unit),
			Active:      r.Active,
			Priority:    string(r.Priority),
		}
	}
	return ConfigurationJSON{
		AutoMatch:                       cfg.AutoMatch,
		RequireApprovalForVariances:     cfg.RequireApprovalForVariances,
		BlockInvoicesExceedingTolerance: cfg.BlockInvoicesExceedingTolerance,
		SendNotifications:               cfg.SendNotifications,
		Rules:                           rules,
	}
}

// ToJSON serializes a snapshot.
func ToJSON(cfg matching.MatchingConfiguration) (string, error) {
	data, err := json.Marshal(FromConfiguration(cfg))
	if err != nil {
		return "", err
	}
	return string(data), nil
}
