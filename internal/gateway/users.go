package gateway

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/procurehub/procurement-orchestrator/internal/models"
)

// UserDirectory resolves accounts for login and requester identity.
type UserDirectory interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// ErrUserNotFound is returned when no account matches the lookup.
var ErrUserNotFound = fmt.Errorf("user not found")

// PostgresUsers is the users-table backed directory.
type PostgresUsers struct {
	pool *pgxpool.Pool
}

func NewPostgresUsers(pool *pgxpool.Pool) *PostgresUsers {
	return &PostgresUsers{pool: pool}
}

func (u *PostgresUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return u.get(ctx, `SELECT id, name, email, role, hashed_password FROM users WHERE email = $1`, email)
}

func (u *PostgresUsers) GetByID(ctx context.Context, id string) (*models.User, error) {
	return u.get(ctx, `SELECT id, name, email, role, hashed_password FROM users WHERE id = $1`, id)
}

func (u *PostgresUsers) get(ctx context.Context, query, arg string) (*models.User, error) {
	var user models.User
	err := u.pool.QueryRow(ctx, query, arg).Scan(
		&user.ID, &user.Name, &user.Email, &user.Role, &user.HashedPassword,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &user, nil
}
