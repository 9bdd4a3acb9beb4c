package principal

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound means no principal exists with the given identifier.
var ErrNotFound = errors.New("principal not found")

// Store is the persistence boundary for seeded principal rows.
type Store interface {
	FindByUsername(ctx context.Context, username string) (Principal, error)
	FindByID(ctx context.Context, id uuid.UUID) (Principal, error)
	List(ctx context.Context) ([]Principal, error)
}

// PostgresStore is the pgx-backed Store implementation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore returns a Store backed by pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) scan(row pgx.Row) (Principal, error) {
	var p Principal
	err := row.Scan(&p.ID, &p.Username, &p.PasswordHash, &p.Role, &p.Enabled, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Principal{}, ErrNotFound
	}
	return p, err
}

func (s *PostgresStore) FindByUsername(ctx context.Context, username string) (Principal, error) {
	return s.scan(s.pool.QueryRow(ctx, `
		SELECT id, username, password_hash, role, enabled, created_at
		FROM principals WHERE username = $1
	`, username))
}

func (s *PostgresStore) FindByID(ctx context.Context, id uuid.UUID) (Principal, error) {
	return s.scan(s.pool.QueryRow(ctx, `
		SELECT id, username, password_hash, role, enabled, created_at
		FROM principals WHERE id = $1
	`, id))
}

func (s *PostgresStore) List(ctx context.Context) ([]Principal, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, username, password_hash, role, enabled, created_at
		FROM principals ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Principal{}
	for rows.Next() {
		var p Principal
		if err := rows.Scan(&p.ID, &p.Username, &p.PasswordHash, &p.Role, &p.Enabled, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
