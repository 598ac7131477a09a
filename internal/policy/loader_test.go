package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procurehub/procurement-orchestrator/internal/models"
)

const validPolicy = `
version: "test-1"
approved_vendors:
  - Amazon
  - Dell
restricted_categories:
  - alcohol
role_ceilings:
  junior: 500
  manager: 10000
default_ceiling: 500
escalation_factor: 1.5
ranking:
  shortlist_size: 3
retry:
  intent_attempts: 2
`

func TestParse(t *testing.T) {
	t.Run("valid document compiles", func(t *testing.T) {
		pol, err := Parse([]byte(validPolicy))
		require.NoError(t, err)

		assert.Equal(t, "test-1", pol.Version)
		assert.Len(t, pol.Rules, 4)
		assert.Equal(t, 3, pol.Ranking.ShortlistSize)
		assert.Equal(t, 2, pol.Retry.IntentAttempts)
	})

	t.Run("defaults fill unset tunables", func(t *testing.T) {
		pol, err := Parse([]byte(validPolicy))
		require.NoError(t, err)

		assert.Equal(t, 0.5, pol.Ranking.PriceWeight)
		assert.Equal(t, 0.3, pol.Ranking.SpecWeight)
		assert.Equal(t, 0.2, pol.Ranking.VendorWeight)
		assert.Equal(t, 1.5, pol.Ranking.BudgetTolerance)
		assert.Equal(t, 200, pol.Ranking.MaxCandidates)
		assert.Equal(t, 3, pol.Retry.ResearchAttempts)
		assert.Equal(t, 500, pol.Retry.BackoffBaseMillis)
		assert.Equal(t, 3, pol.Retry.ClarificationRounds)
	})

	t.Run("missing version rejected", func(t *testing.T) {
		_, err := Parse([]byte("approved_vendors: [Amazon]"))
		require.Error(t, err)
		var polErr *models.PolicyUnavailableError
		assert.ErrorAs(t, err, &polErr)
	})

	t.Run("no approved vendors rejected", func(t *testing.T) {
		_, err := Parse([]byte(`version: "v1"`))
		assert.Error(t, err)
	})

	t.Run("escalation factor below one rejected", func(t *testing.T) {
		_, err := Parse([]byte("version: \"v1\"\napproved_vendors: [Amazon]\nescalation_factor: 0.5"))
		assert.Error(t, err)
	})

	t.Run("malformed yaml rejected", func(t *testing.T) {
		_, err := Parse([]byte("version: [unclosed"))
		var polErr *models.PolicyUnavailableError
		assert.ErrorAs(t, err, &polErr)
	})
}

func TestLoad(t *testing.T) {
	t.Run("reads policy from disk", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "policy.yaml")
		require.NoError(t, os.WriteFile(path, []byte(validPolicy), 0o644))

		pol, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "test-1", pol.Version)
	})

	t.Run("missing file is a policy-unavailable error", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		var polErr *models.PolicyUnavailableError
		assert.ErrorAs(t, err, &polErr)
	})
}

func TestIsVendorApproved(t *testing.T) {
	pol, err := Parse([]byte(validPolicy))
	require.NoError(t, err)

	assert.True(t, pol.IsVendorApproved("Amazon"))
	assert.True(t, pol.IsVendorApproved("  DELL "))
	assert.False(t, pol.IsVendorApproved("ShadyVendor"))
}
