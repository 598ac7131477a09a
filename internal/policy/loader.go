package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/procurehub/procurement-orchestrator/internal/models"
)

// fileSchema is the on-disk shape of a policy document.
type fileSchema struct {
	Version              string             `yaml:"version"`
	ApprovedVendors      []string           `yaml:"approved_vendors"`
	RestrictedCategories []string           `yaml:"restricted_categories"`
	RoleCeilings         map[string]float64 `yaml:"role_ceilings"`
	DefaultCeiling       float64            `yaml:"default_ceiling"`
	EscalationFactor     float64            `yaml:"escalation_factor"`
	Ranking              RankingConfig      `yaml:"ranking"`
	Retry                RetryConfig        `yaml:"retry"`
}

// Load reads, validates and compiles the policy document at path. Rule
// order is fixed: approved vendor, restricted category, budget ceiling
// (hard band), budget ceiling (soft). A load failure is a
// PolicyUnavailableError: the caller must not run compliance without it.
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &models.PolicyUnavailableError{Err: err}
	}
	return Parse(data)
}

// Parse compiles a policy document from raw YAML.
func Parse(data []byte) (*Policy, error) {
	var schema fileSchema
	if err := yaml.Unmarshal(data, &schema); err != nil {
		return nil, &models.PolicyUnavailableError{Err: fmt.Errorf("failed to parse policy: %w", err)}
	}
	if err := validate(&schema); err != nil {
		return nil, &models.PolicyUnavailableError{Err: err}
	}
	applyDefaults(&schema)

	vendors := make(map[string]bool, len(schema.ApprovedVendors))
	for _, v := range schema.ApprovedVendors {
		vendors[normalize(v)] = true
	}
	categories := make(map[string]bool, len(schema.RestrictedCategories))
	for _, c := range schema.RestrictedCategories {
		categories[normalize(c)] = true
	}
	ceilings := make(map[string]float64, len(schema.RoleCeilings))
	for role, c := range schema.RoleCeilings {
		ceilings[normalize(role)] = c
	}

	return &Policy{
		Version: schema.Version,
		Rules: []Rule{
			&approvedVendorRule{vendors: vendors},
			&restrictedCategoryRule{categories: categories},
			&budgetCeilingRule{
				ceilings:         ceilings,
				defaultCeiling:   schema.DefaultCeiling,
				escalationFactor: schema.EscalationFactor,
				hard:             true,
			},
			&budgetCeilingRule{
				ceilings:         ceilings,
				defaultCeiling:   schema.DefaultCeiling,
				escalationFactor: schema.EscalationFactor,
			},
		},
		Ranking: schema.Ranking,
		Retry:   schema.Retry,
	}, nil
}

func validate(schema *fileSchema) error {
	if schema.Version == "" {
		return fmt.Errorf("policy version is required")
	}
	if len(schema.ApprovedVendors) == 0 {
		return fmt.Errorf("policy must list at least one approved vendor")
	}
	if schema.EscalationFactor != 0 && schema.EscalationFactor < 1 {
		return fmt.Errorf("escalation_factor must be >= 1, got %v", schema.EscalationFactor)
	}
	return nil
}

func applyDefaults(schema *fileSchema) {
	if schema.DefaultCeiling == 0 {
		schema.DefaultCeiling = 25000
	}
	if schema.EscalationFactor == 0 {
		schema.EscalationFactor = 1.5
	}
	r := &schema.Ranking
	if r.PriceWeight == 0 && r.SpecWeight == 0 && r.VendorWeight == 0 {
		r.PriceWeight, r.SpecWeight, r.VendorWeight = 0.5, 0.3, 0.2
	}
	if r.BudgetTolerance == 0 {
		r.BudgetTolerance = 1.5
	}
	if r.ShortlistSize == 0 {
		r.ShortlistSize = 5
	}
	if r.MaxCandidates == 0 {
		r.MaxCandidates = 200
	}
	rt := &schema.Retry
	if rt.IntentAttempts == 0 {
		rt.IntentAttempts = 3
	}
	if rt.ResearchAttempts == 0 {
		rt.ResearchAttempts = 3
	}
	if rt.BackoffBaseMillis == 0 {
		rt.BackoffBaseMillis = 500
	}
	if rt.BackoffCapMillis == 0 {
		rt.BackoffCapMillis = 5000
	}
	if rt.ClarificationRounds == 0 {
		rt.ClarificationRounds = 3
	}
}

// IsVendorApproved reports whether a vendor is on the approved list.
func (p *Policy) IsVendorApproved(vendor string) bool {
	for _, r := range p.Rules {
		if av, ok := r.(*approvedVendorRule); ok {
			return av.vendors[normalize(vendor)]
		}
	}
	return false
}
