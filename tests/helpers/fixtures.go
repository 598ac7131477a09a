package helpers

import (
	"time"

	"github.com/procurehub/procurement-orchestrator/internal/models"
)

// TestUser represents a test account fixture
type TestUser struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// Default test fixtures
var (
	DefaultTestUser = TestUser{
		Email:    "buyer@example.com",
		Password: "test-password-123",
		Role:     "junior",
	}

	DefaultTestManager = TestUser{
		Email:    "manager@example.com",
		Password: "test-password-456",
		Role:     "manager",
	}
)

// TestPolicyYAML is a complete policy document usable across tests.
const TestPolicyYAML = `
version: "test-1"
approved_vendors:
  - Amazon
  - Dell
restricted_categories:
  - alcohol
role_ceilings:
  junior: 500
  senior: 2000
  manager: 10000
default_ceiling: 500
escalation_factor: 1.5
ranking:
  price_weight: 0.5
  spec_weight: 0.3
  vendor_weight: 0.2
  budget_tolerance: 1.5
  shortlist_size: 5
  max_candidates: 200
retry:
  intent_attempts: 2
  research_attempts: 2
  backoff_base_ms: 1
  backoff_cap_ms: 5
  clarification_rounds: 3
`

// Candidate builds a listing fixture with sensible defaults.
func Candidate(source, nativeID, title string, price float64, vendor string) models.CandidateItem {
	return models.CandidateItem{
		Source:      source,
		NativeID:    nativeID,
		Title:       title,
		Category:    "keyboard",
		Price:       price,
		Currency:    "USD",
		Vendor:      vendor,
		RawSpecText: title,
		RetrievedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

// KeyboardConstraints is the canonical structured request used by
// pipeline tests.
func KeyboardConstraints() models.Constraints {
	return models.Constraints{
		Category:      "keyboard",
		Quantity:      1,
		BudgetCeiling: 150,
		Currency:      "USD",
		RequiredSpecs: []string{"mechanical", "usb-c"},
	}
}
