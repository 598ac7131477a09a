package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/procurehub/procurement-orchestrator/internal/models"
)

// PostgresStore persists pipeline state as a JSONB snapshot per request.
// The version column carries the optimistic lock: Save only succeeds when
// the stored version still matches the one the state was loaded at.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Create(ctx context.Context, state *models.PipelineState) error {
	state.Version = 1
	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode pipeline state: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO pipeline_states (request_id, stage, version, state, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, NOW(), NOW())`,
		state.RequestID, string(state.Stage), state.Version, blob,
	)
	if err != nil {
		return fmt.Errorf("failed to create pipeline state: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, requestID string) (*models.PipelineState, error) {
	var blob []byte
	var version int

	err := s.pool.QueryRow(ctx,
		`SELECT state, version FROM pipeline_states WHERE request_id = $1`,
		requestID,
	).Scan(&blob, &version)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load pipeline state: %w", err)
	}

	var state models.PipelineState
	if err := json.Unmarshal(blob, &state); err != nil {
		return nil, fmt.Errorf("failed to decode pipeline state: %w", err)
	}
	// The column is authoritative; the blob may predate the last bump.
	state.Version = version
	return &state, nil
}

func (s *PostgresStore) Save(ctx context.Context, state *models.PipelineState) error {
	loadedVersion := state.Version
	state.Version = loadedVersion + 1
	blob, err := json.Marshal(state)
	if err != nil {
		state.Version = loadedVersion
		return fmt.Errorf("failed to encode pipeline state: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE pipeline_states
		 SET stage = $1, version = $2, state = $3, updated_at = NOW()
		 WHERE request_id = $4 AND version = $5`,
		string(state.Stage), state.Version, blob, state.RequestID, loadedVersion,
	)
	if err != nil {
		state.Version = loadedVersion
		return fmt.Errorf("failed to save pipeline state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		state.Version = loadedVersion

		var exists bool
		checkErr := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM pipeline_states WHERE request_id = $1)`,
			state.RequestID,
		).Scan(&exists)
		if checkErr == nil && !exists {
			return ErrNotFound
		}
		return &models.StaleStateError{RequestID: state.RequestID, Version: loadedVersion}
	}
	return nil
}

func (s *PostgresStore) SavePO(ctx context.Context, order *models.PurchaseOrder) error {
	blob, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("failed to encode purchase order: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO purchase_orders (id, request_id, total_cost, currency, document, created_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())
		 ON CONFLICT (request_id) DO NOTHING`,
		order.ID, order.RequestID, order.TotalCost, order.Currency, blob,
	)
	if err != nil {
		return fmt.Errorf("failed to save purchase order: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPO(ctx context.Context, requestID string) (*models.PurchaseOrder, error) {
	var blob []byte

	err := s.pool.QueryRow(ctx,
		`SELECT document FROM purchase_orders WHERE request_id = $1`,
		requestID,
	).Scan(&blob)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPONotFound
		}
		return nil, fmt.Errorf("failed to load purchase order: %w", err)
	}

	var order models.PurchaseOrder
	if err := json.Unmarshal(blob, &order); err != nil {
		return nil, fmt.Errorf("failed to decode purchase order: %w", err)
	}
	return &order, nil
}
