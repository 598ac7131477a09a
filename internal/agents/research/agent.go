// Package research fans a procurement request out to the configured
// listing sources and collects the results into a candidate store.
package research

import (
	"context"
	"log"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/procurehub/procurement-orchestrator/internal/models"
)

// Source fetches raw candidate listings for a structured request. A
// source failure never aborts the research pass; it is recorded as a
// source error instead.
type Source interface {
	Name() string
	Search(ctx context.Context, req *models.ProcurementRequest) ([]models.CandidateItem, error)
}

// Agent dispatches one fetch per configured source. Sources run
// independently; the pass succeeds, possibly degraded, as long as at
// least one source returns results.
type Agent struct {
	sources       []Source
	perSourceWait time.Duration
	maxCandidates int
	tracer        trace.Tracer
}

// NewAgent creates a research agent over the given sources. maxCandidates
// bounds the store so downstream ranking stays tractable.
func NewAgent(sources []Source, perSourceTimeout time.Duration, maxCandidates int) *Agent {
	if perSourceTimeout <= 0 {
		perSourceTimeout = 15 * time.Second
	}
	return &Agent{
		sources:       sources,
		perSourceWait: perSourceTimeout,
		maxCandidates: maxCandidates,
		tracer:        otel.Tracer("research-agent"),
	}
}

type sourceResult struct {
	source string
	order  int
	items  []models.CandidateItem
	err    error
}

// Research runs one research pass and returns the candidate store at the
// given snapshot version. Returns AllSourcesFailedError only when every
// source failed; partial failure is recorded on the store and the pass
// still succeeds.
func (a *Agent) Research(ctx context.Context, req *models.ProcurementRequest, version int) (*models.CandidateStore, error) {
	ctx, span := a.tracer.Start(ctx, "research.pass")
	defer span.End()

	span.SetAttributes(
		attribute.String("request.id", req.ID),
		attribute.Int("sources.configured", len(a.sources)),
		attribute.Int("store.version", version),
	)

	results := make(chan sourceResult, len(a.sources))
	for i, src := range a.sources {
		go func(order int, src Source) {
			srcCtx, cancel := context.WithTimeout(ctx, a.perSourceWait)
			defer cancel()

			items, err := src.Search(srcCtx, req)
			results <- sourceResult{source: src.Name(), order: order, items: items, err: err}
		}(i, src)
	}

	// The pass completes when all sources have returned or timed out;
	// timed-out sources surface as context errors, not retries.
	collected := make([]sourceResult, 0, len(a.sources))
	for range a.sources {
		collected = append(collected, <-results)
	}
	sort.Slice(collected, func(i, j int) bool { return collected[i].order < collected[j].order })

	store := models.NewCandidateStore(version)
	succeeded := 0
	for _, res := range collected {
		if res.err != nil {
			log.Printf(`{"level":"warn","message":"Research source failed","source":"%s","request_id":"%s","error":"%v"}`,
				res.source, req.ID, res.err)
			store.RecordError(res.source, res.err.Error())
			continue
		}
		succeeded++
		for _, item := range res.items {
			// Listings without a price are useless to ranking; drop them
			// here rather than treating them as an error.
			if item.Price <= 0 {
				continue
			}
			if item.Category == "" {
				item.Category = req.Constraints.Category
			}
			store.Add(item)
		}
	}
	store.Truncate(a.maxCandidates)

	span.SetAttributes(
		attribute.Int("sources.succeeded", succeeded),
		attribute.Int("candidates.count", store.Len()),
	)

	if succeeded == 0 {
		return nil, &models.AllSourcesFailedError{Errors: store.Errors}
	}
	return store, nil
}
