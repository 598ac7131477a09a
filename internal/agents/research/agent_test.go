package research

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procurehub/procurement-orchestrator/internal/models"
)

type fakeSource struct {
	name  string
	items []models.CandidateItem
	err   error
	delay time.Duration
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Search(ctx context.Context, req *models.ProcurementRequest) ([]models.CandidateItem, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.items, nil
}

func testRequest() *models.ProcurementRequest {
	return &models.ProcurementRequest{
		ID: "req-1",
		Constraints: models.Constraints{
			Category:      "keyboard",
			Quantity:      2,
			BudgetCeiling: 150,
			Currency:      "USD",
		},
	}
}

func item(source, nativeID string, price float64) models.CandidateItem {
	return models.CandidateItem{
		Source:      source,
		NativeID:    nativeID,
		Title:       fmt.Sprintf("%s item %s", source, nativeID),
		Category:    "keyboard",
		Price:       price,
		Currency:    "USD",
		Vendor:      "Dell",
		RetrievedAt: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestResearch_CollectsFromAllSources(t *testing.T) {
	agent := NewAgent([]Source{
		&fakeSource{name: "alpha", items: []models.CandidateItem{item("alpha", "a1", 100), item("alpha", "a2", 120)}},
		&fakeSource{name: "beta", items: []models.CandidateItem{item("beta", "b1", 90)}},
	}, time.Second, 200)

	store, err := agent.Research(context.Background(), testRequest(), 1)
	require.NoError(t, err)

	assert.Equal(t, 1, store.Version)
	assert.Equal(t, 3, store.Len())
	assert.Empty(t, store.Errors)
}

func TestResearch_DeterministicSourceOrder(t *testing.T) {
	// The slower first source must still contribute its rows before the
	// faster second one.
	agent := NewAgent([]Source{
		&fakeSource{name: "slow", delay: 50 * time.Millisecond, items: []models.CandidateItem{item("slow", "s1", 100)}},
		&fakeSource{name: "fast", items: []models.CandidateItem{item("fast", "f1", 90)}},
	}, time.Second, 200)

	store, err := agent.Research(context.Background(), testRequest(), 1)
	require.NoError(t, err)
	require.Equal(t, 2, store.Len())
	assert.Equal(t, "slow", store.Items[0].Source)
	assert.Equal(t, "fast", store.Items[1].Source)
}

func TestResearch_DeduplicatesByKey(t *testing.T) {
	agent := NewAgent([]Source{
		&fakeSource{name: "alpha", items: []models.CandidateItem{
			item("alpha", "a1", 100),
			item("alpha", "a1", 105),
		}},
	}, time.Second, 200)

	store, err := agent.Research(context.Background(), testRequest(), 1)
	require.NoError(t, err)
	require.Equal(t, 1, store.Len())
	assert.Equal(t, 100.0, store.Items[0].Price, "first occurrence wins")
}

func TestResearch_PartialFailureStillSucceeds(t *testing.T) {
	agent := NewAgent([]Source{
		&fakeSource{name: "alpha", err: errors.New("rate limited")},
		&fakeSource{name: "beta", items: []models.CandidateItem{item("beta", "b1", 90)}},
	}, time.Second, 200)

	store, err := agent.Research(context.Background(), testRequest(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())
	require.Len(t, store.Errors, 1)
	assert.Equal(t, "alpha", store.Errors[0].Source)
	assert.Contains(t, store.Errors[0].Reason, "rate limited")
}

func TestResearch_AllSourcesFailed(t *testing.T) {
	agent := NewAgent([]Source{
		&fakeSource{name: "alpha", err: errors.New("down")},
		&fakeSource{name: "beta", err: errors.New("also down")},
	}, time.Second, 200)

	_, err := agent.Research(context.Background(), testRequest(), 1)
	require.Error(t, err)

	var allFailed *models.AllSourcesFailedError
	require.ErrorAs(t, err, &allFailed)
	assert.Len(t, allFailed.Errors, 2)
}

func TestResearch_SlowSourceTimesOut(t *testing.T) {
	agent := NewAgent([]Source{
		&fakeSource{name: "hung", delay: time.Second, items: []models.CandidateItem{item("hung", "h1", 80)}},
		&fakeSource{name: "beta", items: []models.CandidateItem{item("beta", "b1", 90)}},
	}, 20*time.Millisecond, 200)

	store, err := agent.Research(context.Background(), testRequest(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())
	require.Len(t, store.Errors, 1)
	assert.Equal(t, "hung", store.Errors[0].Source)
}

func TestResearch_DropsUnpricedAndTagsCategory(t *testing.T) {
	unpriced := item("alpha", "a1", 0)
	untagged := item("alpha", "a2", 100)
	untagged.Category = ""

	agent := NewAgent([]Source{
		&fakeSource{name: "alpha", items: []models.CandidateItem{unpriced, untagged}},
	}, time.Second, 200)

	store, err := agent.Research(context.Background(), testRequest(), 1)
	require.NoError(t, err)
	require.Equal(t, 1, store.Len())
	assert.Equal(t, "keyboard", store.Items[0].Category, "empty category inherits the request category")
}

func TestResearch_TruncatesAtCap(t *testing.T) {
	items := make([]models.CandidateItem, 10)
	for i := range items {
		items[i] = item("alpha", fmt.Sprintf("a%d", i), 100+float64(i))
	}
	agent := NewAgent([]Source{&fakeSource{name: "alpha", items: items}}, time.Second, 4)

	store, err := agent.Research(context.Background(), testRequest(), 2)
	require.NoError(t, err)
	require.Equal(t, 4, store.Len())
	assert.Equal(t, "a0", store.Items[0].NativeID)
	assert.Equal(t, "a3", store.Items[3].NativeID)
}
