// Package ranking scores researched candidates against the request
// constraints and produces the shortlist presented to the requester.
// Ranking is pure: the same store and constraints always produce the
// same ordering.
package ranking

import (
	"fmt"
	"sort"
	"strings"

	"github.com/procurehub/procurement-orchestrator/internal/models"
	"github.com/procurehub/procurement-orchestrator/internal/policy"
)

// Agent ranks candidates using the weights configured in policy.
type Agent struct {
	cfg policy.RankingConfig
}

func NewAgent(cfg policy.RankingConfig) *Agent {
	return &Agent{cfg: cfg}
}

// Rank filters, scores and orders the store's candidates, returning at
// most the configured shortlist size. An empty result is not an error;
// the caller decides whether to re-run research or fail the request.
func (a *Agent) Rank(store *models.CandidateStore, constraints models.Constraints) []models.RankedItem {
	type scored struct {
		item  models.CandidateItem
		score float64
		order int
		parts []string
	}

	ceiling := constraints.BudgetCeiling
	tolerance := ceiling * a.cfg.BudgetTolerance

	eligible := make([]scored, 0, len(store.Items))
	for i, item := range store.Items {
		if !a.eligible(item, constraints, tolerance) {
			continue
		}
		score, parts := a.score(item, constraints)
		eligible = append(eligible, scored{item: item, score: score, order: i, parts: parts})
	}

	// Score descending, then earliest retrieval, then store insertion
	// order. The last key makes the ordering total.
	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].score != eligible[j].score {
			return eligible[i].score > eligible[j].score
		}
		if !eligible[i].item.RetrievedAt.Equal(eligible[j].item.RetrievedAt) {
			return eligible[i].item.RetrievedAt.Before(eligible[j].item.RetrievedAt)
		}
		return eligible[i].order < eligible[j].order
	})

	limit := a.cfg.ShortlistSize
	if limit <= 0 {
		limit = 5
	}
	if len(eligible) > limit {
		eligible = eligible[:limit]
	}

	ranked := make([]models.RankedItem, 0, len(eligible))
	for i, s := range eligible {
		ranked = append(ranked, models.RankedItem{
			Item:          s.item,
			Score:         s.score,
			Rank:          i + 1,
			Justification: strings.Join(s.parts, "; "),
			StoreVersion:  store.Version,
		})
	}
	return ranked
}

// eligible drops candidates that can never be purchased: wrong
// category, no usable price, or priced beyond the budget tolerance.
func (a *Agent) eligible(item models.CandidateItem, constraints models.Constraints, tolerance float64) bool {
	if item.Price <= 0 {
		return false
	}
	if constraints.Category != "" && item.Category != "" &&
		!strings.EqualFold(item.Category, constraints.Category) {
		return false
	}
	if constraints.BudgetCeiling > 0 && item.Price > tolerance {
		return false
	}
	return true
}

func (a *Agent) score(item models.CandidateItem, constraints models.Constraints) (float64, []string) {
	parts := make([]string, 0, 3)

	// Price fit: 1.0 at free, linear down to 0 at the tolerance bound.
	priceFit := 1.0
	if constraints.BudgetCeiling > 0 {
		bound := constraints.BudgetCeiling * a.cfg.BudgetTolerance
		priceFit = 1.0 - item.Price/bound
		if priceFit < 0 {
			priceFit = 0
		}
		if item.Price <= constraints.BudgetCeiling {
			parts = append(parts, fmt.Sprintf("within budget at %.2f %s", item.Price, item.Currency))
		} else {
			parts = append(parts, fmt.Sprintf("over budget at %.2f %s but within tolerance", item.Price, item.Currency))
		}
	} else {
		parts = append(parts, fmt.Sprintf("priced at %.2f %s", item.Price, item.Currency))
	}

	specMatch := specMatchRatio(item, constraints.RequiredSpecs)
	if len(constraints.RequiredSpecs) > 0 {
		parts = append(parts, fmt.Sprintf("matches %d of %d required specs",
			int(specMatch*float64(len(constraints.RequiredSpecs))+0.5), len(constraints.RequiredSpecs)))
	}

	vendorKnown := 0.0
	if item.Vendor != "" {
		vendorKnown = 1.0
		parts = append(parts, "sold by "+item.Vendor)
	}

	score := a.cfg.PriceWeight*priceFit + a.cfg.SpecWeight*specMatch + a.cfg.VendorWeight*vendorKnown
	return score, parts
}

// specMatchRatio is the fraction of required specs that appear as
// substrings of the listing text. 1.0 when nothing is required.
func specMatchRatio(item models.CandidateItem, required []string) float64 {
	if len(required) == 0 {
		return 1.0
	}
	haystack := strings.ToLower(item.Title + " " + item.RawSpecText)
	matched := 0
	for _, spec := range required {
		if strings.Contains(haystack, strings.ToLower(strings.TrimSpace(spec))) {
			matched++
		}
	}
	return float64(matched) / float64(len(required))
}

// Shortlist converts ranked items into the summary rows shown to the
// requester.
func Shortlist(ranked []models.RankedItem) []models.ShortlistEntry {
	entries := make([]models.ShortlistEntry, 0, len(ranked))
	for _, r := range ranked {
		entries = append(entries, models.ShortlistEntry{
			Rank:          r.Rank,
			ItemSummary:   r.Item.Title,
			Price:         r.Item.Price,
			Currency:      r.Item.Currency,
			Vendor:        r.Item.Vendor,
			Justification: r.Justification,
		})
	}
	return entries
}
