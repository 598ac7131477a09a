package helpers

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

// GetTestDatabasePool creates a database connection pool for testing
func GetTestDatabasePool(ctx context.Context) (*pgxpool.Pool, error) {
	databaseURL := buildDatabaseURL()

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test the connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// buildDatabaseURL constructs the database URL from environment variables
func buildDatabaseURL() string {
	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		host = "localhost"
	}

	port := os.Getenv("POSTGRES_PORT")
	if port == "" {
		port = "5432"
	}

	user := os.Getenv("POSTGRES_USER")
	if user == "" {
		user = "postgres"
	}

	password := os.Getenv("POSTGRES_PASSWORD")
	if password == "" {
		password = "postgres"
	}

	dbname := os.Getenv("POSTGRES_DB")
	if dbname == "" {
		dbname = "procurement"
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=prefer",
		user, password, host, port, dbname)
}

// TestDatabase provides database utilities for testing
type TestDatabase struct {
	Pool *pgxpool.Pool
	ctx  context.Context
}

// NewTestDatabase creates a new test database instance. Tests that need
// Postgres should skip when the pool cannot be created.
func NewTestDatabase(t *testing.T) *TestDatabase {
	ctx := context.Background()

	pool, err := GetTestDatabasePool(ctx)
	if err != nil {
		t.Skipf("Postgres unavailable, skipping: %v", err)
	}

	return &TestDatabase{
		Pool: pool,
		ctx:  ctx,
	}
}

// Close closes the database connection
func (db *TestDatabase) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// CleanupRequest removes one request's rows, keeping test data isolated
// without truncating shared tables.
func (db *TestDatabase) CleanupRequest(t *testing.T, requestID string) {
	if _, err := db.Pool.Exec(db.ctx, `DELETE FROM purchase_orders WHERE request_id = $1`, requestID); err != nil {
		t.Logf("Warning: failed to cleanup purchase order: %v", err)
	}
	if _, err := db.Pool.Exec(db.ctx, `DELETE FROM pipeline_states WHERE request_id = $1`, requestID); err != nil {
		t.Logf("Warning: failed to cleanup pipeline state: %v", err)
	}
}

// CreateTestUser creates a user with the given role and returns the user ID
func (db *TestDatabase) CreateTestUser(t *testing.T, email, password, role string) string {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("Failed to hash test password: %v", err)
	}

	userID := uuid.New().String()
	err = db.Pool.QueryRow(db.ctx, `
		INSERT INTO users (id, name, email, role, hashed_password, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING id
	`, userID, "Test User", email, role, string(hashed)).Scan(&userID)

	if err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	return userID
}

// DeleteTestUser removes a user created by CreateTestUser
func (db *TestDatabase) DeleteTestUser(t *testing.T, userID string) {
	if _, err := db.Pool.Exec(db.ctx, `DELETE FROM users WHERE id = $1`, userID); err != nil {
		t.Logf("Warning: failed to delete test user: %v", err)
	}
}
