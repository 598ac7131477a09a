package ranking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procurehub/procurement-orchestrator/internal/models"
	"github.com/procurehub/procurement-orchestrator/internal/policy"
)

func testConfig() policy.RankingConfig {
	return policy.RankingConfig{
		PriceWeight:     0.5,
		SpecWeight:      0.3,
		VendorWeight:    0.2,
		BudgetTolerance: 1.5,
		ShortlistSize:   5,
		MaxCandidates:   200,
	}
}

func keyboardConstraints() models.Constraints {
	return models.Constraints{
		Category:      "keyboard",
		Quantity:      2,
		BudgetCeiling: 150,
		Currency:      "USD",
		RequiredSpecs: []string{"mechanical", "usb-c"},
	}
}

func candidate(nativeID, title string, price float64, vendor string) models.CandidateItem {
	return models.CandidateItem{
		Source:      "shopping_search",
		NativeID:    nativeID,
		Title:       title,
		Category:    "keyboard",
		Price:       price,
		Currency:    "USD",
		Vendor:      vendor,
		RetrievedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func storeOf(items ...models.CandidateItem) *models.CandidateStore {
	store := models.NewCandidateStore(1)
	for _, it := range items {
		store.Add(it)
	}
	return store
}

func TestRank_OrdersByScore(t *testing.T) {
	store := storeOf(
		candidate("a", "Generic Keyboard", 140, "Dell"),
		candidate("b", "Mechanical usb-c Keyboard", 100, "Dell"),
		candidate("c", "Mechanical Keyboard", 120, "Dell"),
	)

	ranked := NewAgent(testConfig()).Rank(store, keyboardConstraints())
	require.Len(t, ranked, 3)

	assert.Equal(t, "b", ranked[0].Item.NativeID, "cheapest full spec match wins")
	assert.Equal(t, "c", ranked[1].Item.NativeID)
	assert.Equal(t, "a", ranked[2].Item.NativeID)

	for i, r := range ranked {
		assert.Equal(t, i+1, r.Rank)
		assert.Equal(t, 1, r.StoreVersion)
		assert.NotEmpty(t, r.Justification)
	}
	assert.Greater(t, ranked[0].Score, ranked[1].Score)
}

func TestRank_Deterministic(t *testing.T) {
	store := storeOf(
		candidate("a", "Mechanical Keyboard", 110, "Dell"),
		candidate("b", "usb-c Keyboard", 110, "CDW"),
		candidate("c", "Mechanical usb-c Keyboard", 95, "Newegg"),
	)
	agent := NewAgent(testConfig())
	constraints := keyboardConstraints()

	first := agent.Rank(store, constraints)
	second := agent.Rank(store, constraints)
	assert.Equal(t, first, second)
}

func TestRank_TieBreaks(t *testing.T) {
	earlier := candidate("late-insert", "Mechanical usb-c Keyboard", 100, "Dell")
	earlier.RetrievedAt = time.Date(2026, 8, 1, 8, 0, 0, 0, time.UTC)
	later := candidate("early-insert", "Mechanical usb-c Keyboard", 100, "Dell")
	later.RetrievedAt = time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	// Equal scores: earlier retrieval wins regardless of insertion order.
	ranked := NewAgent(testConfig()).Rank(storeOf(later, earlier), keyboardConstraints())
	require.Len(t, ranked, 2)
	assert.Equal(t, "late-insert", ranked[0].Item.NativeID)

	// Equal scores and timestamps: insertion order decides.
	twinA := candidate("first", "Mechanical usb-c Keyboard", 100, "Dell")
	twinB := candidate("second", "Mechanical usb-c Keyboard", 100, "Dell")
	ranked = NewAgent(testConfig()).Rank(storeOf(twinA, twinB), keyboardConstraints())
	require.Len(t, ranked, 2)
	assert.Equal(t, "first", ranked[0].Item.NativeID)
}

func TestRank_FiltersIneligible(t *testing.T) {
	wrongCategory := candidate("cat", "Mechanical Keyboard", 100, "Dell")
	wrongCategory.Category = "mouse"
	unpriced := candidate("free", "Mechanical Keyboard", 0, "Dell")
	overTolerance := candidate("gold", "Mechanical Keyboard", 300, "Dell") // tolerance bound is 225
	keeper := candidate("ok", "Mechanical Keyboard", 120, "Dell")

	ranked := NewAgent(testConfig()).Rank(storeOf(wrongCategory, unpriced, overTolerance, keeper), keyboardConstraints())
	require.Len(t, ranked, 1)
	assert.Equal(t, "ok", ranked[0].Item.NativeID)
}

func TestRank_OverBudgetWithinTolerance(t *testing.T) {
	over := candidate("over", "Mechanical usb-c Keyboard", 200, "Dell")

	ranked := NewAgent(testConfig()).Rank(storeOf(over), keyboardConstraints())
	require.Len(t, ranked, 1)
	assert.Contains(t, ranked[0].Justification, "over budget")
	assert.Contains(t, ranked[0].Justification, "within tolerance")
}

func TestRank_EmptyResult(t *testing.T) {
	ranked := NewAgent(testConfig()).Rank(models.NewCandidateStore(1), keyboardConstraints())
	assert.Empty(t, ranked)
}

func TestRank_ShortlistSizeLimit(t *testing.T) {
	cfg := testConfig()
	cfg.ShortlistSize = 2

	store := storeOf(
		candidate("a", "Mechanical usb-c Keyboard", 90, "Dell"),
		candidate("b", "Mechanical usb-c Keyboard", 100, "Dell"),
		candidate("c", "Mechanical usb-c Keyboard", 110, "Dell"),
	)
	ranked := NewAgent(cfg).Rank(store, keyboardConstraints())
	require.Len(t, ranked, 2)
	assert.Equal(t, "a", ranked[0].Item.NativeID)
	assert.Equal(t, "b", ranked[1].Item.NativeID)
}

func TestShortlist(t *testing.T) {
	ranked := NewAgent(testConfig()).Rank(storeOf(
		candidate("a", "Mechanical usb-c Keyboard", 90, "Dell"),
	), keyboardConstraints())

	entries := Shortlist(ranked)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].Rank)
	assert.Equal(t, "Mechanical usb-c Keyboard", entries[0].ItemSummary)
	assert.Equal(t, 90.0, entries[0].Price)
	assert.Equal(t, "USD", entries[0].Currency)
	assert.Equal(t, "Dell", entries[0].Vendor)
	assert.NotEmpty(t, entries[0].Justification)
}

func TestSpecMatchRatio(t *testing.T) {
	item := candidate("a", "Mechanical Keyboard", 100, "Dell")
	item.RawSpecText = "USB-C connector, RGB"

	assert.Equal(t, 1.0, specMatchRatio(item, nil))
	assert.Equal(t, 1.0, specMatchRatio(item, []string{"mechanical", "usb-c"}))
	assert.Equal(t, 0.5, specMatchRatio(item, []string{"mechanical", "wireless"}))
	assert.Equal(t, 0.0, specMatchRatio(item, []string{"wireless", "ergonomic"}))
}
