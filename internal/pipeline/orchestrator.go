// Package pipeline drives procurement requests through the staged state
// machine, persisting state before every suspension point so a request
// survives restarts and resumes exactly where it stopped.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/procurehub/procurement-orchestrator/internal/agents/compliance"
	"github.com/procurehub/procurement-orchestrator/internal/agents/intent"
	"github.com/procurehub/procurement-orchestrator/internal/agents/ranking"
	"github.com/procurehub/procurement-orchestrator/internal/agents/research"
	"github.com/procurehub/procurement-orchestrator/internal/metrics"
	"github.com/procurehub/procurement-orchestrator/internal/models"
	"github.com/procurehub/procurement-orchestrator/internal/po"
	"github.com/procurehub/procurement-orchestrator/internal/policy"
)

// EventPublisher receives checkpoint events for delivery to connected
// clients. Implementations must not block the pipeline.
type EventPublisher interface {
	Publish(event models.PipelineEvent)
}

// Orchestrator owns pipeline state for procurement requests. User inputs
// for one request are serialized on a per-request mutex; cancellation
// bypasses that lock and wins races through the store's version check,
// so results computed after a cancel are discarded rather than applied.
type Orchestrator struct {
	store      StateStore
	intent     intent.Agent
	research   *research.Agent
	ranking    *ranking.Agent
	compliance *compliance.Agent
	builder    *po.Builder
	pol        *policy.Policy
	publisher  EventPublisher
	metrics    *metrics.PipelineMetrics
	tracer     trace.Tracer

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewOrchestrator(
	store StateStore,
	intentAgent intent.Agent,
	researchAgent *research.Agent,
	rankingAgent *ranking.Agent,
	complianceAgent *compliance.Agent,
	builder *po.Builder,
	pol *policy.Policy,
	publisher EventPublisher,
	pipelineMetrics *metrics.PipelineMetrics,
) *Orchestrator {
	return &Orchestrator{
		store:      store,
		intent:     intentAgent,
		research:   researchAgent,
		ranking:    rankingAgent,
		compliance: complianceAgent,
		builder:    builder,
		pol:        pol,
		publisher:  publisher,
		metrics:    pipelineMetrics,
		tracer:     otel.Tracer("pipeline-orchestrator"),
		locks:      make(map[string]*sync.Mutex),
	}
}

// lockFor returns the serialization mutex for one request.
func (o *Orchestrator) lockFor(requestID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()

	lock, ok := o.locks[requestID]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[requestID] = lock
	}
	return lock
}

// StartRequest creates a pipeline for a free-text request and drives it
// to its first suspension point or terminal stage before returning.
func (o *Orchestrator) StartRequest(ctx context.Context, requester models.Requester, rawText string) (*models.PipelineState, error) {
	ctx, span := o.tracer.Start(ctx, "pipeline.start")
	defer span.End()

	if strings.TrimSpace(rawText) == "" {
		return nil, fmt.Errorf("request text must not be empty")
	}

	now := time.Now().UTC()
	requestID := uuid.New().String()
	span.SetAttributes(attribute.String("request.id", requestID))

	state := &models.PipelineState{
		RequestID: requestID,
		Stage:     models.StageIntake,
		Request: &models.ProcurementRequest{
			ID:        requestID,
			Requester: requester,
			RawText:   rawText,
			CreatedAt: now,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := o.store.Create(ctx, state); err != nil {
		return nil, err
	}
	o.metrics.RecordRequestCreated(ctx, requester.Role)
	log.Printf(`{"level":"info","message":"Pipeline started","request_id":"%s","requester":"%s"}`,
		requestID, requester.ID)

	lock := o.lockFor(requestID)
	lock.Lock()
	defer lock.Unlock()

	return o.drive(ctx, state)
}

// Get returns the current pipeline state for a request.
func (o *Orchestrator) Get(ctx context.Context, requestID string) (*models.PipelineState, error) {
	return o.store.Get(ctx, requestID)
}

// GetPurchaseOrder returns the generated purchase order for a completed
// request.
func (o *Orchestrator) GetPurchaseOrder(ctx context.Context, requestID string) (*models.PurchaseOrder, error) {
	return o.store.GetPO(ctx, requestID)
}

// SubmitMessage answers the pending clarification question and resumes
// the pipeline.
func (o *Orchestrator) SubmitMessage(ctx context.Context, requestID, answer string) (*models.PipelineState, error) {
	ctx, span := o.tracer.Start(ctx, "pipeline.submit_message")
	defer span.End()
	span.SetAttributes(attribute.String("request.id", requestID))

	lock := o.lockFor(requestID)
	lock.Lock()
	defer lock.Unlock()

	state, err := o.store.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if state.Stage != models.StageClarifying {
		return nil, &models.InvalidTransitionError{From: state.Stage, To: models.StageClarifying}
	}

	state.Request.AppendTurn(state.PendingQuestion, answer, time.Now().UTC())
	state.PendingQuestion = ""

	// Persist the answer before re-interpreting so a crash never loses
	// user input.
	if err := o.saveTransition(ctx, state, models.StageClarifying); err != nil {
		return o.resolveStale(ctx, state, err)
	}
	return o.drive(ctx, state)
}

// SubmitSelection records the user's shortlist pick and resumes into
// compliance checking. An out-of-range rank is rejected without touching
// state; the pipeline stays suspended and the user can select again.
func (o *Orchestrator) SubmitSelection(ctx context.Context, requestID string, rank, quantity int) (*models.PipelineState, error) {
	ctx, span := o.tracer.Start(ctx, "pipeline.submit_selection")
	defer span.End()
	span.SetAttributes(
		attribute.String("request.id", requestID),
		attribute.Int("selection.rank", rank),
	)

	lock := o.lockFor(requestID)
	lock.Lock()
	defer lock.Unlock()

	state, err := o.store.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if state.Stage != models.StageAwaitingSelection {
		return nil, &models.InvalidTransitionError{From: state.Stage, To: models.StageCheckingCompliance}
	}

	if rank < 1 || rank > len(state.Shortlist) {
		return nil, &models.InvalidSelectionError{Rank: rank, Shortlist: len(state.Shortlist)}
	}
	if quantity <= 0 {
		quantity = state.Request.Constraints.Quantity
	}
	if quantity <= 0 {
		return nil, &models.InvalidQuantityError{Quantity: quantity}
	}

	selected := state.Shortlist[rank-1]
	state.Selected = &selected
	state.Quantity = quantity

	if err := o.saveTransition(ctx, state, models.StageCheckingCompliance); err != nil {
		return o.resolveStale(ctx, state, err)
	}
	return o.drive(ctx, state)
}

// SubmitManagerDecision records a manager's verdict on an escalated
// request. Approval resumes into purchase-order generation; rejection
// terminates the request.
func (o *Orchestrator) SubmitManagerDecision(ctx context.Context, requestID, managerID string, approved bool, reason string) (*models.PipelineState, error) {
	ctx, span := o.tracer.Start(ctx, "pipeline.manager_decision")
	defer span.End()
	span.SetAttributes(
		attribute.String("request.id", requestID),
		attribute.Bool("decision.approved", approved),
	)

	lock := o.lockFor(requestID)
	lock.Lock()
	defer lock.Unlock()

	state, err := o.store.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if state.Stage != models.StageAwaitingManagerApproval {
		return nil, &models.InvalidTransitionError{From: state.Stage, To: models.StageGeneratingPO}
	}

	state.Decision = &models.ManagerDecision{
		ManagerID: managerID,
		Approved:  approved,
		Reason:    reason,
		DecidedAt: time.Now().UTC(),
	}

	if !approved {
		failure := "rejected by manager"
		if reason != "" {
			failure = "rejected by manager: " + reason
		}
		return o.fail(ctx, state, failure)
	}

	if err := o.saveTransition(ctx, state, models.StageGeneratingPO); err != nil {
		return o.resolveStale(ctx, state, err)
	}
	return o.drive(ctx, state)
}

// Cancel terminates a non-terminal request. It deliberately does not take
// the per-request lock: it wins against in-flight stage work through the
// store's version check, and the stage result computed after the cancel
// is discarded when its save comes back stale.
func (o *Orchestrator) Cancel(ctx context.Context, requestID string) (*models.PipelineState, error) {
	ctx, span := o.tracer.Start(ctx, "pipeline.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("request.id", requestID))

	for attempt := 0; attempt < 5; attempt++ {
		state, err := o.store.Get(ctx, requestID)
		if err != nil {
			return nil, err
		}
		if state.Stage.IsTerminal() {
			return nil, &models.InvalidTransitionError{From: state.Stage, To: models.StageCancelled}
		}

		state.Stage = models.StageCancelled
		state.UpdatedAt = time.Now().UTC()
		err = o.store.Save(ctx, state)
		if err == nil {
			o.metrics.RecordRequestFinished(ctx, models.StageCancelled)
			o.publish(state, models.EventCancelled, nil)
			log.Printf(`{"level":"info","message":"Pipeline cancelled","request_id":"%s"}`, requestID)
			return state, nil
		}

		var stale *models.StaleStateError
		if !errors.As(err, &stale) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("failed to cancel request %s: too many concurrent writers", requestID)
}

// drive advances the pipeline until it suspends on human input or
// reaches a terminal stage. Must be called with the request lock held.
func (o *Orchestrator) drive(ctx context.Context, state *models.PipelineState) (*models.PipelineState, error) {
	for {
		var (
			next      *models.PipelineState
			suspended bool
			err       error
		)

		started := time.Now()
		stage := state.Stage
		switch stage {
		case models.StageIntake, models.StageClarifying:
			next, suspended, err = o.runInterpretation(ctx, state)
		case models.StageResearching:
			next, suspended, err = o.runResearch(ctx, state)
		case models.StageRanking:
			next, suspended, err = o.runRanking(ctx, state)
		case models.StageCheckingCompliance:
			next, suspended, err = o.runCompliance(ctx, state)
		case models.StageGeneratingPO:
			next, suspended, err = o.runPOGeneration(ctx, state)
		default:
			return state, nil
		}
		o.metrics.RecordStageDuration(ctx, stage, time.Since(started))

		if err != nil {
			return nil, err
		}
		state = next
		if suspended || state.Stage.IsTerminal() {
			return state, nil
		}
	}
}

// runInterpretation calls the intent agent with bounded retries. It
// either freezes the constraints and moves to researching, or suspends
// with a clarifying question.
func (o *Orchestrator) runInterpretation(ctx context.Context, state *models.PipelineState) (*models.PipelineState, bool, error) {
	var result *intent.Result
	var lastErr error

	for attempt := 1; attempt <= o.pol.Retry.IntentAttempts; attempt++ {
		result, lastErr = o.intent.Interpret(ctx, state.Request.RawText, state.Request.Clarification)
		if lastErr == nil {
			break
		}
		log.Printf(`{"level":"warn","message":"Interpretation attempt failed","request_id":"%s","attempt":%d,"error":"%v"}`,
			state.RequestID, attempt, lastErr)
		state.BumpRetry(models.StageIntake)
		if attempt < o.pol.Retry.IntentAttempts {
			if err := o.backoff(ctx, attempt); err != nil {
				return nil, false, err
			}
		}
	}
	if lastErr != nil {
		failed, err := o.fail(ctx, state, fmt.Sprintf("interpretation failed after %d attempts: %v", o.pol.Retry.IntentAttempts, lastErr))
		return failed, false, err
	}

	if result.NeedsClarification {
		if state.Request.ClarificationRounds() >= o.pol.Retry.ClarificationRounds {
			failed, err := o.fail(ctx, state, fmt.Sprintf("constraints still incomplete after %d clarification rounds", state.Request.ClarificationRounds()))
			return failed, false, err
		}

		state.PendingQuestion = result.ClarifyingQuestion
		if err := o.saveTransition(ctx, state, models.StageClarifying); err != nil {
			resolved, rerr := o.resolveStale(ctx, state, err)
			return resolved, true, rerr
		}
		o.publish(state, models.EventClarificationNeeded, map[string]interface{}{
			"question": result.ClarifyingQuestion,
			"round":    state.Request.ClarificationRounds() + 1,
		})
		return state, true, nil
	}

	state.Request.Constraints = result.Constraints
	state.Request.Frozen = true
	state.PendingQuestion = ""
	if err := o.saveTransition(ctx, state, models.StageResearching); err != nil {
		resolved, rerr := o.resolveStale(ctx, state, err)
		return resolved, true, rerr
	}
	return state, false, nil
}

// runResearch fans out to the listing sources with bounded retries. Only
// total source failure is retried; partial failure proceeds degraded.
func (o *Orchestrator) runResearch(ctx context.Context, state *models.PipelineState) (*models.PipelineState, bool, error) {
	version := 1
	if state.Candidates != nil {
		version = state.Candidates.Version + 1
	}

	var store *models.CandidateStore
	var lastErr error
	for attempt := 1; attempt <= o.pol.Retry.ResearchAttempts; attempt++ {
		store, lastErr = o.research.Research(ctx, state.Request, version)
		if lastErr == nil {
			break
		}
		log.Printf(`{"level":"warn","message":"Research attempt failed","request_id":"%s","attempt":%d,"error":"%v"}`,
			state.RequestID, attempt, lastErr)
		state.BumpRetry(models.StageResearching)
		if attempt < o.pol.Retry.ResearchAttempts {
			if err := o.backoff(ctx, attempt); err != nil {
				return nil, false, err
			}
		}
	}
	if lastErr != nil {
		failed, err := o.fail(ctx, state, fmt.Sprintf("research failed after %d attempts: %v", o.pol.Retry.ResearchAttempts, lastErr))
		return failed, false, err
	}

	state.Candidates = store
	if err := o.saveTransition(ctx, state, models.StageRanking); err != nil {
		resolved, rerr := o.resolveStale(ctx, state, err)
		return resolved, true, rerr
	}
	return state, false, nil
}

// runRanking scores the candidate store and suspends on the shortlist.
func (o *Orchestrator) runRanking(ctx context.Context, state *models.PipelineState) (*models.PipelineState, bool, error) {
	ranked := o.ranking.Rank(state.Candidates, state.Request.Constraints)
	if len(ranked) == 0 {
		failed, err := o.fail(ctx, state, "no matching items for the request constraints")
		return failed, false, err
	}

	state.Shortlist = ranked
	if err := o.saveTransition(ctx, state, models.StageAwaitingSelection); err != nil {
		resolved, rerr := o.resolveStale(ctx, state, err)
		return resolved, true, rerr
	}
	o.publish(state, models.EventShortlistReady, map[string]interface{}{
		"shortlist": ranking.Shortlist(ranked),
	})
	return state, true, nil
}

// runCompliance evaluates the selection against policy and either
// proceeds, escalates, or terminates the request.
func (o *Orchestrator) runCompliance(ctx context.Context, state *models.PipelineState) (*models.PipelineState, bool, error) {
	verdict := o.compliance.Check(state.Selected.Item, state.Request.Requester)
	state.Verdict = &verdict

	switch verdict.Status {
	case models.VerdictRejected:
		failed, err := o.fail(ctx, state, "selection rejected by policy: "+strings.Join(verdict.Reasons(), "; "))
		return failed, false, err

	case models.VerdictNeedsManagerApproval:
		if err := o.saveTransition(ctx, state, models.StageAwaitingManagerApproval); err != nil {
			resolved, rerr := o.resolveStale(ctx, state, err)
			return resolved, true, rerr
		}
		o.publish(state, models.EventApprovalNeeded, map[string]interface{}{
			"item":     state.Selected.Item.Title,
			"price":    state.Selected.Item.Price,
			"quantity": state.Quantity,
			"reasons":  verdict.Reasons(),
		})
		return state, true, nil

	default:
		if err := o.saveTransition(ctx, state, models.StageGeneratingPO); err != nil {
			resolved, rerr := o.resolveStale(ctx, state, err)
			return resolved, true, rerr
		}
		return state, false, nil
	}
}

// runPOGeneration builds and stores the purchase order and completes the
// pipeline.
func (o *Orchestrator) runPOGeneration(ctx context.Context, state *models.PipelineState) (*models.PipelineState, bool, error) {
	order, err := o.builder.Build(state.RequestID, state.Selected.Item, state.Request.Requester, state.Quantity, state.Verdict, state.Decision)
	if err != nil {
		failed, ferr := o.fail(ctx, state, "purchase order generation failed: "+err.Error())
		return failed, false, ferr
	}
	if err := o.store.SavePO(ctx, order); err != nil {
		failed, ferr := o.fail(ctx, state, "purchase order persistence failed: "+err.Error())
		return failed, false, ferr
	}

	state.POID = order.ID
	if err := o.saveTransition(ctx, state, models.StageCompleted); err != nil {
		resolved, rerr := o.resolveStale(ctx, state, err)
		return resolved, true, rerr
	}
	o.metrics.RecordRequestFinished(ctx, models.StageCompleted)
	o.publish(state, models.EventCompleted, map[string]interface{}{
		"po_id":      order.ID,
		"total_cost": order.TotalCost,
		"currency":   order.Currency,
	})
	log.Printf(`{"level":"info","message":"Pipeline completed","request_id":"%s","po_id":"%s"}`,
		state.RequestID, order.ID)
	return state, false, nil
}

// fail moves the pipeline into the failed terminal stage with a reason.
func (o *Orchestrator) fail(ctx context.Context, state *models.PipelineState, reason string) (*models.PipelineState, error) {
	state.FailureReason = reason
	if err := o.saveTransition(ctx, state, models.StageFailed); err != nil {
		return o.resolveStale(ctx, state, err)
	}
	o.metrics.RecordRequestFinished(ctx, models.StageFailed)
	o.publish(state, models.EventFailed, map[string]interface{}{
		"reason": reason,
	})
	log.Printf(`{"level":"warn","message":"Pipeline failed","request_id":"%s","reason":"%s"}`,
		state.RequestID, reason)
	return state, nil
}

// saveTransition validates the stage change against the transition graph
// and persists the state under the optimistic version check.
func (o *Orchestrator) saveTransition(ctx context.Context, state *models.PipelineState, next models.Stage) error {
	if state.Stage != next && !state.Stage.CanTransition(next) {
		return &models.InvalidTransitionError{From: state.Stage, To: next}
	}
	state.Stage = next
	state.UpdatedAt = time.Now().UTC()
	return o.store.Save(ctx, state)
}

// resolveStale handles a save that lost a race. If a cancel won, the
// computed result is discarded and the cancelled state returned; any
// other conflict propagates.
func (o *Orchestrator) resolveStale(ctx context.Context, state *models.PipelineState, saveErr error) (*models.PipelineState, error) {
	var stale *models.StaleStateError
	if !errors.As(saveErr, &stale) {
		return nil, saveErr
	}

	current, err := o.store.Get(ctx, state.RequestID)
	if err != nil {
		return nil, err
	}
	if current.Stage == models.StageCancelled {
		log.Printf(`{"level":"info","message":"Discarding stage result after cancellation","request_id":"%s"}`,
			state.RequestID)
		return current, nil
	}
	return nil, saveErr
}

// backoff sleeps for an exponentially growing interval, bounded by the
// policy cap, unless the context ends first.
func (o *Orchestrator) backoff(ctx context.Context, attempt int) error {
	base := time.Duration(o.pol.Retry.BackoffBaseMillis) * time.Millisecond
	limit := time.Duration(o.pol.Retry.BackoffCapMillis) * time.Millisecond

	delay := base << (attempt - 1)
	if delay > limit || delay <= 0 {
		delay = limit
	}

	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) publish(state *models.PipelineState, eventType string, payload map[string]interface{}) {
	if o.publisher == nil {
		return
	}
	o.publisher.Publish(models.PipelineEvent{
		RequestID: state.RequestID,
		EventType: eventType,
		Stage:     state.Stage,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	})
}
