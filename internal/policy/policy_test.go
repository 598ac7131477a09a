package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procurehub/procurement-orchestrator/internal/models"
)

func testPolicy(t *testing.T) *Policy {
	t.Helper()
	pol, err := Parse([]byte(validPolicy))
	require.NoError(t, err)
	return pol
}

func findRule(t *testing.T, pol *Policy, id string) Rule {
	t.Helper()
	for _, r := range pol.Rules {
		if r.ID() == id {
			return r
		}
	}
	t.Fatalf("rule %s not found", id)
	return nil
}

func TestApprovedVendorRule(t *testing.T) {
	rule := findRule(t, testPolicy(t), "approved-vendor")
	requester := models.Requester{Role: "junior"}

	t.Run("approved vendor passes", func(t *testing.T) {
		res := rule.Evaluate(models.CandidateItem{Vendor: "Amazon"}, requester)
		assert.True(t, res.Pass)
		assert.Equal(t, models.SeverityHard, res.Severity)
	})

	t.Run("vendor match is case insensitive", func(t *testing.T) {
		res := rule.Evaluate(models.CandidateItem{Vendor: "  aMaZoN "}, requester)
		assert.True(t, res.Pass)
	})

	t.Run("unknown vendor fails hard", func(t *testing.T) {
		res := rule.Evaluate(models.CandidateItem{Vendor: "ShadyVendor"}, requester)
		assert.False(t, res.Pass)
		assert.Contains(t, res.Explanation, "not on approved list")
	})
}

func TestRestrictedCategoryRule(t *testing.T) {
	rule := findRule(t, testPolicy(t), "restricted-category")
	requester := models.Requester{Role: "junior"}

	t.Run("restricted category fails hard", func(t *testing.T) {
		res := rule.Evaluate(models.CandidateItem{Category: "Alcohol"}, requester)
		assert.False(t, res.Pass)
		assert.Equal(t, models.SeverityHard, res.Severity)
	})

	t.Run("other categories pass", func(t *testing.T) {
		res := rule.Evaluate(models.CandidateItem{Category: "keyboard"}, requester)
		assert.True(t, res.Pass)
	})
}

func TestBudgetCeilingRules(t *testing.T) {
	pol := testPolicy(t)
	hard := findRule(t, pol, "budget-ceiling-hard")
	soft := findRule(t, pol, "budget-ceiling")

	junior := models.Requester{Role: "junior"}   // ceiling 500, band to 750
	manager := models.Requester{Role: "manager"} // ceiling 10000

	tests := []struct {
		name      string
		price     float64
		requester models.Requester
		hardPass  bool
		softPass  bool
	}{
		{"well under ceiling", 100, junior, true, true},
		{"exactly at ceiling", 500, junior, true, true},
		{"inside escalation band", 600, junior, true, false},
		{"beyond escalation band", 800, junior, false, false},
		{"manager ceiling applies", 600, manager, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := models.CandidateItem{Price: tt.price}
			assert.Equal(t, tt.hardPass, hard.Evaluate(item, tt.requester).Pass, "hard rule")
			assert.Equal(t, tt.softPass, soft.Evaluate(item, tt.requester).Pass, "soft rule")
		})
	}

	t.Run("unknown role falls back to default ceiling", func(t *testing.T) {
		res := soft.Evaluate(models.CandidateItem{Price: 600}, models.Requester{Role: "contractor"})
		assert.False(t, res.Pass)
	})
}
