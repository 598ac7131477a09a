package policy

import (
	"fmt"
	"strings"

	"github.com/procurehub/procurement-orchestrator/internal/models"
)

// Rule is one compliance check. Rules are independent and side-effect
// free: evaluating the same (item, requester) pair against the same rule
// always yields the same result.
type Rule interface {
	ID() string
	Severity() models.RuleSeverity
	Evaluate(item models.CandidateItem, requester models.Requester) models.RuleResult
}

// Policy is the active rule set plus the tunables the ranking and
// orchestration stages read. Loaded once at startup and treated as
// read-only afterwards; Version is snapshotted into every verdict.
type Policy struct {
	Version string
	Rules   []Rule
	Ranking RankingConfig
	Retry   RetryConfig
}

// RankingConfig holds the policy-configurable ranking parameters.
type RankingConfig struct {
	PriceWeight     float64 `yaml:"price_weight"`
	SpecWeight      float64 `yaml:"spec_weight"`
	VendorWeight    float64 `yaml:"vendor_weight"`
	BudgetTolerance float64 `yaml:"budget_tolerance"`
	ShortlistSize   int     `yaml:"shortlist_size"`
	MaxCandidates   int     `yaml:"max_candidates"`
}

// RetryConfig bounds the retryable stages of the pipeline.
type RetryConfig struct {
	IntentAttempts      int `yaml:"intent_attempts"`
	ResearchAttempts    int `yaml:"research_attempts"`
	BackoffBaseMillis   int `yaml:"backoff_base_ms"`
	BackoffCapMillis    int `yaml:"backoff_cap_ms"`
	ClarificationRounds int `yaml:"clarification_rounds"`
}

// approvedVendorRule fails hard when the item's vendor is not on the
// approved list.
type approvedVendorRule struct {
	vendors map[string]bool
}

func (r *approvedVendorRule) ID() string                    { return "approved-vendor" }
func (r *approvedVendorRule) Severity() models.RuleSeverity { return models.SeverityHard }

func (r *approvedVendorRule) Evaluate(item models.CandidateItem, _ models.Requester) models.RuleResult {
	res := models.RuleResult{RuleID: r.ID(), Severity: r.Severity()}
	if r.vendors[normalize(item.Vendor)] {
		res.Pass = true
		res.Explanation = fmt.Sprintf("vendor %q is on the approved list", item.Vendor)
		return res
	}
	res.Explanation = fmt.Sprintf("vendor %q not on approved list", item.Vendor)
	return res
}

// restrictedCategoryRule fails hard when the item's category is on the
// restricted list.
type restrictedCategoryRule struct {
	categories map[string]bool
}

func (r *restrictedCategoryRule) ID() string                    { return "restricted-category" }
func (r *restrictedCategoryRule) Severity() models.RuleSeverity { return models.SeverityHard }

func (r *restrictedCategoryRule) Evaluate(item models.CandidateItem, _ models.Requester) models.RuleResult {
	res := models.RuleResult{RuleID: r.ID(), Severity: r.Severity()}
	cat := normalize(item.Category)
	if r.categories[cat] {
		res.Explanation = fmt.Sprintf("category %q is restricted by procurement policy", cat)
		return res
	}
	res.Pass = true
	res.Explanation = "category not restricted"
	return res
}

// budgetCeilingRule checks the item's unit price against the requester's
// role ceiling. Within the escalation band over the ceiling it fails soft
// (manager approval); beyond the band it fails hard.
type budgetCeilingRule struct {
	ceilings         map[string]float64
	defaultCeiling   float64
	escalationFactor float64
	hard             bool
}

func (r *budgetCeilingRule) ID() string {
	if r.hard {
		return "budget-ceiling-hard"
	}
	return "budget-ceiling"
}

func (r *budgetCeilingRule) Severity() models.RuleSeverity {
	if r.hard {
		return models.SeverityHard
	}
	return models.SeveritySoft
}

func (r *budgetCeilingRule) ceiling(requester models.Requester) float64 {
	if c, ok := r.ceilings[normalize(requester.Role)]; ok {
		return c
	}
	return r.defaultCeiling
}

func (r *budgetCeilingRule) Evaluate(item models.CandidateItem, requester models.Requester) models.RuleResult {
	res := models.RuleResult{RuleID: r.ID(), Severity: r.Severity()}
	ceiling := r.ceiling(requester)
	limit := ceiling
	if r.hard {
		limit = ceiling * r.escalationFactor
	}
	if item.Price <= limit {
		res.Pass = true
		if r.hard {
			res.Explanation = fmt.Sprintf("price %.2f within escalation band (limit %.2f)", item.Price, limit)
		} else {
			res.Explanation = fmt.Sprintf("price %.2f within %s ceiling %.2f", item.Price, requester.Role, ceiling)
		}
		return res
	}
	if r.hard {
		res.Explanation = fmt.Sprintf("price %.2f exceeds escalation limit %.2f for role %s", item.Price, limit, requester.Role)
	} else {
		res.Explanation = fmt.Sprintf("price %.2f over %s ceiling %.2f, manager approval required", item.Price, requester.Role, ceiling)
	}
	return res
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
