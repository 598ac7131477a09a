package gateway

import (
	"log"
	"sync"
	"time"

	"github.com/procurehub/procurement-orchestrator/internal/models"
)

const (
	// events buffered per subscriber before the hub starts dropping
	subscriberBuffer = 16
	// checkpoint events retained per request for late subscribers
	replayDepth = 8
	// how long terminal history stays replayable before it is dropped
	historyRetention = time.Minute
)

// EventHub fans pipeline checkpoint events out to websocket subscribers.
// Publishing never blocks the pipeline: a slow subscriber loses events
// rather than stalling orchestration. Recent events are replayed to new
// subscribers so a client connecting after a suspension still sees the
// pending question or shortlist.
type EventHub struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan models.PipelineEvent]struct{}
	history     map[string][]models.PipelineEvent
	retention   time.Duration
}

func NewEventHub() *EventHub {
	return &EventHub{
		subscribers: make(map[string]map[chan models.PipelineEvent]struct{}),
		history:     make(map[string][]models.PipelineEvent),
		retention:   historyRetention,
	}
}

// Publish delivers an event to every subscriber of its request.
func (h *EventHub) Publish(event models.PipelineEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	events := append(h.history[event.RequestID], event)
	if len(events) > replayDepth {
		events = events[len(events)-replayDepth:]
	}
	h.history[event.RequestID] = events

	for ch := range h.subscribers[event.RequestID] {
		select {
		case ch <- event:
		default:
			log.Printf(`{"level":"warn","message":"Dropping event for slow subscriber","request_id":"%s","event_type":"%s"}`,
				event.RequestID, event.EventType)
		}
	}

	// Terminal events end the request's history: keep it briefly so a
	// late subscriber still sees the outcome, then drop it.
	if event.Stage.IsTerminal() {
		time.AfterFunc(h.retention, func() { h.Forget(event.RequestID) })
	}
}

// Subscribe registers for a request's events, replaying retained history
// first. The returned cancel function must be called when the subscriber
// disconnects.
func (h *EventHub) Subscribe(requestID string) (<-chan models.PipelineEvent, func()) {
	ch := make(chan models.PipelineEvent, subscriberBuffer)

	h.mu.Lock()
	for _, event := range h.history[requestID] {
		ch <- event
	}
	subs, ok := h.subscribers[requestID]
	if !ok {
		subs = make(map[chan models.PipelineEvent]struct{})
		h.subscribers[requestID] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if subs, ok := h.subscribers[requestID]; ok {
			delete(subs, ch)
			if len(subs) == 0 {
				delete(h.subscribers, requestID)
			}
		}
	}
	return ch, cancel
}

// Forget drops retained history for a request, called once a request is
// terminal and its last event has had time to drain.
func (h *EventHub) Forget(requestID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.history, requestID)
}
