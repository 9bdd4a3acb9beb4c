package token

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the pgx-backed RefreshStore implementation. It issues
// raw SQL directly against the pool rather than through generated query
// code, since the teacher's sqlc-generated db package was not part of the
// retrieved reference material.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore returns a RefreshStore backed by pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Insert(ctx context.Context, principalID uuid.UUID, ttl time.Duration) (RefreshRecord, error) {
	tok := NewRefreshToken()
	now := time.Now()
	expiresAt := now.Add(ttl)

	_, err := s.pool.Exec(ctx, `
		INSERT INTO refresh_tokens (token, principal_id, created_at, expires_at, revoked)
		VALUES ($1, $2, $3, $4, false)
	`, tok, principalID, now, expiresAt)
	if err != nil {
		return RefreshRecord{}, err
	}

	return RefreshRecord{
		Token:       tok,
		PrincipalID: principalID,
		CreatedAt:   now,
		ExpiresAt:   expiresAt,
	}, nil
}

func (s *PostgresStore) Get(ctx context.Context, tok string) (RefreshRecord, error) {
	var r RefreshRecord
	err := s.pool.QueryRow(ctx, `
		SELECT token, principal_id, created_at, expires_at, last_used_at, revoked
		FROM refresh_tokens WHERE token = $1
	`, tok).Scan(&r.Token, &r.PrincipalID, &r.CreatedAt, &r.ExpiresAt, &r.LastUsedAt, &r.Revoked)
	if errors.Is(err, pgx.ErrNoRows) {
		return RefreshRecord{}, ErrRefreshNotFound
	}
	if err != nil {
		return RefreshRecord{}, err
	}
	return r, nil
}

func (s *PostgresStore) Revoke(ctx context.Context, tok string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE refresh_tokens SET revoked = true WHERE token = $1`, tok)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRefreshNotFound
	}
	return nil
}

func (s *PostgresStore) RevokeAllForPrincipal(ctx context.Context, principalID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE refresh_tokens SET revoked = true WHERE principal_id = $1 AND revoked = false
	`, principalID)
	return err
}

func (s *PostgresStore) Touch(ctx context.Context, tok string) error {
	_, err := s.pool.Exec(ctx, `UPDATE refresh_tokens SET last_used_at = $1 WHERE token = $2`, time.Now(), tok)
	return err
}

func (s *PostgresStore) DeleteInactive(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM refresh_tokens WHERE revoked = true OR expires_at < now()
	`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
