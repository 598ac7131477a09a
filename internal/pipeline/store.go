package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/procurehub/procurement-orchestrator/internal/models"
)

// ErrNotFound is returned when no pipeline state exists for a request id.
var ErrNotFound = errors.New("pipeline state not found")

// ErrPONotFound is returned when a request has no purchase order yet.
var ErrPONotFound = errors.New("purchase order not found")

// StateStore persists pipeline state between suspension points. Save uses
// the state's version for compare-and-swap: a concurrent writer since the
// load surfaces as StaleStateError and the caller must reload.
type StateStore interface {
	Create(ctx context.Context, state *models.PipelineState) error
	Get(ctx context.Context, requestID string) (*models.PipelineState, error)
	Save(ctx context.Context, state *models.PipelineState) error
	SavePO(ctx context.Context, order *models.PurchaseOrder) error
	GetPO(ctx context.Context, requestID string) (*models.PurchaseOrder, error)
}

// MemoryStore is an in-process StateStore used by tests and single-node
// deployments without Postgres. States are stored as JSON snapshots so
// callers never share memory with the store.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string][]byte
	orders map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states: make(map[string][]byte),
		orders: make(map[string][]byte),
	}
}

func (m *MemoryStore) Create(ctx context.Context, state *models.PipelineState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.states[state.RequestID]; exists {
		return errors.New("pipeline state already exists")
	}
	state.Version = 1
	blob, err := json.Marshal(state)
	if err != nil {
		return err
	}
	m.states[state.RequestID] = blob
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, requestID string) (*models.PipelineState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	blob, ok := m.states[requestID]
	if !ok {
		return nil, ErrNotFound
	}
	var state models.PipelineState
	if err := json.Unmarshal(blob, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (m *MemoryStore) Save(ctx context.Context, state *models.PipelineState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	blob, ok := m.states[state.RequestID]
	if !ok {
		return ErrNotFound
	}
	var current models.PipelineState
	if err := json.Unmarshal(blob, &current); err != nil {
		return err
	}
	if current.Version != state.Version {
		return &models.StaleStateError{RequestID: state.RequestID, Version: state.Version}
	}

	state.Version++
	next, err := json.Marshal(state)
	if err != nil {
		state.Version--
		return err
	}
	m.states[state.RequestID] = next
	return nil
}

func (m *MemoryStore) SavePO(ctx context.Context, order *models.PurchaseOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	blob, err := json.Marshal(order)
	if err != nil {
		return err
	}
	m.orders[order.RequestID] = blob
	return nil
}

func (m *MemoryStore) GetPO(ctx context.Context, requestID string) (*models.PurchaseOrder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	blob, ok := m.orders[requestID]
	if !ok {
		return nil, ErrPONotFound
	}
	var order models.PurchaseOrder
	if err := json.Unmarshal(blob, &order); err != nil {
		return nil, err
	}
	return &order, nil
}
