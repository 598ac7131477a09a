package po

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procurehub/procurement-orchestrator/internal/models"
)

func approvedVerdict() *models.ComplianceVerdict {
	return &models.ComplianceVerdict{Status: models.VerdictApproved, PolicyVersion: "test-1", EvaluatedAt: time.Now().UTC()}
}

func escalatedVerdict() *models.ComplianceVerdict {
	return &models.ComplianceVerdict{Status: models.VerdictNeedsManagerApproval, PolicyVersion: "test-1", EvaluatedAt: time.Now().UTC()}
}

func TestBuild(t *testing.T) {
	item := models.CandidateItem{
		Source:   "shopping_search",
		NativeID: "p1",
		Title:    "Mechanical Keyboard",
		Category: "keyboard",
		Price:    129.99,
		Currency: "USD",
		Vendor:   "Dell",
	}
	requester := models.Requester{ID: "u-1", Name: "Jo", Email: "jo@example.com", Role: "junior"}

	order, err := NewBuilder().Build("req-1", item, requester, 3, approvedVerdict(), nil)
	require.NoError(t, err)

	assert.Equal(t, "req-1", order.RequestID)
	assert.Equal(t, item, order.Item)
	assert.Equal(t, requester, order.Requester)
	assert.Equal(t, 3, order.Quantity)
	assert.Equal(t, 129.99, order.UnitPrice)
	assert.Equal(t, 389.97, order.TotalCost, "total is rounded to cents")
	assert.Equal(t, "USD", order.Currency)
	assert.Equal(t, "u-1", order.ApprovedBy)
	assert.WithinDuration(t, time.Now().UTC(), order.CreatedAt, time.Minute)

	_, err = uuid.Parse(order.ID)
	assert.NoError(t, err)
}

func TestBuild_InvalidQuantity(t *testing.T) {
	item := models.CandidateItem{Price: 100, Currency: "USD"}

	for _, qty := range []int{0, -2} {
		_, err := NewBuilder().Build("req-1", item, models.Requester{}, qty, approvedVerdict(), nil)

		var qtyErr *models.InvalidQuantityError
		require.ErrorAs(t, err, &qtyErr)
		assert.Equal(t, qty, qtyErr.Quantity)
	}
}

func TestBuild_ManagerApproval(t *testing.T) {
	item := models.CandidateItem{Price: 600, Currency: "USD"}
	requester := models.Requester{ID: "u-1", Role: "junior"}
	decision := &models.ManagerDecision{ManagerID: "mgr-7", Approved: true, DecidedAt: time.Now().UTC()}

	order, err := NewBuilder().Build("req-2", item, requester, 1, escalatedVerdict(), decision)
	require.NoError(t, err)
	assert.Equal(t, "mgr-7", order.ApprovedBy)
}

func TestBuild_RefusesUnclearedVerdicts(t *testing.T) {
	item := models.CandidateItem{Price: 100, Currency: "USD"}
	requester := models.Requester{ID: "u-1", Role: "junior"}
	denied := &models.ManagerDecision{ManagerID: "mgr-7", Approved: false, Reason: "too expensive", DecidedAt: time.Now().UTC()}

	cases := map[string]struct {
		verdict  *models.ComplianceVerdict
		decision *models.ManagerDecision
	}{
		"missing verdict":            {verdict: nil},
		"rejected verdict":           {verdict: &models.ComplianceVerdict{Status: models.VerdictRejected}},
		"escalated without decision": {verdict: escalatedVerdict()},
		"escalated with denial":      {verdict: escalatedVerdict(), decision: denied},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			order, err := NewBuilder().Build("req-3", item, requester, 1, tc.verdict, tc.decision)
			require.Error(t, err)
			assert.Nil(t, order)
		})
	}
}
