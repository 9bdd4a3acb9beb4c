package deck

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the pgx-backed Store implementation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore returns a Store backed by pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (Deck, error) {
	var d Deck
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, owner, created_at, updated_at FROM decks WHERE id = $1
	`, id).Scan(&d.ID, &d.Name, &d.Owner, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Deck{}, ErrDeckNotFound
	}
	if err != nil {
		return Deck{}, err
	}

	cards, err := s.cardNames(ctx, id)
	if err != nil {
		return Deck{}, err
	}
	d.Cards = cards
	return d, nil
}

func (s *PostgresStore) cardNames(ctx context.Context, id uuid.UUID) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.name FROM deck_cards dc
		JOIN cards c ON c.id = dc.card_id
		WHERE dc.deck_id = $1
		ORDER BY dc.position ASC
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func (s *PostgresStore) Insert(ctx context.Context, d Deck) (Deck, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO decks (name, owner) VALUES ($1, $2)
		RETURNING id, created_at, updated_at
	`, d.Name, d.Owner)
	if err := row.Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return Deck{}, err
	}
	d.Cards = []string{}
	return d, nil
}

func (s *PostgresStore) Update(ctx context.Context, d Deck) (Deck, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE decks SET name = $1, updated_at = now() WHERE id = $2
	`, d.Name, d.ID)
	if err != nil {
		return Deck{}, err
	}
	if tag.RowsAffected() == 0 {
		return Deck{}, ErrDeckNotFound
	}
	return s.Get(ctx, d.ID)
}

func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM decks WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDeckNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, page, size int) ([]Deck, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, owner, created_at, updated_at FROM decks
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, size, page*size)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Deck{}
	var ids []uuid.UUID
	for rows.Next() {
		var d Deck
		if err := rows.Scan(&d.ID, &d.Name, &d.Owner, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
		ids = append(ids, d.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		cards, err := s.cardNames(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Cards = cards
	}
	return out, nil
}

// AddCard appends cardName to the deck inside a single transaction,
// re-validating both invariants against the committed row count rather
// than trusting the service-layer pre-check (§4.10, §8 property 1).
func (s *PostgresStore) AddCard(ctx context.Context, id uuid.UUID, cardName string) (Deck, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Deck{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var cardID int64
	err = tx.QueryRow(ctx, `SELECT id FROM cards WHERE name = $1`, cardName).Scan(&cardID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Deck{}, ErrCardNotFound
	}
	if err != nil {
		return Deck{}, err
	}

	// Lock the deck row for the rest of the transaction so concurrent
	// AddCard calls on the same deck serialize here: at Postgres's default
	// Read Committed isolation, two transactions reading the same
	// deck_cards count without this lock can both observe size=59 and both
	// insert, overshooting MaxSize (§8 property 1 — the invariant must
	// hold under arbitrary interleavings, independent of the deck:<id>
	// coordination-store lock's fail-open behavior, §5).
	var lockedID uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM decks WHERE id = $1 FOR UPDATE`, id).Scan(&lockedID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Deck{}, ErrDeckNotFound
	}
	if err != nil {
		return Deck{}, err
	}

	var size, copies int
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM deck_cards WHERE deck_id = $1`, id).Scan(&size); err != nil {
		return Deck{}, err
	}
	if size >= MaxSize {
		return Deck{}, ErrDeckFull
	}
	if err := tx.QueryRow(ctx, `
		SELECT count(*) FROM deck_cards WHERE deck_id = $1 AND card_id = $2
	`, id, cardID).Scan(&copies); err != nil {
		return Deck{}, err
	}
	if copies >= MaxCopies {
		return Deck{}, ErrCopiesExceeded
	}

	var nextPosition int
	if err := tx.QueryRow(ctx, `
		SELECT coalesce(max(position), -1) + 1 FROM deck_cards WHERE deck_id = $1
	`, id).Scan(&nextPosition); err != nil {
		return Deck{}, err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO deck_cards (deck_id, card_id, position) VALUES ($1, $2, $3)
	`, id, cardID, nextPosition); err != nil {
		return Deck{}, err
	}
	if _, err := tx.Exec(ctx, `UPDATE decks SET updated_at = now() WHERE id = $1`, id); err != nil {
		return Deck{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Deck{}, err
	}
	return s.Get(ctx, id)
}

// RemoveCard deletes one occurrence (lowest position) of cardName, a no-op
// if absent.
func (s *PostgresStore) RemoveCard(ctx context.Context, id uuid.UUID, cardName string) (Deck, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Deck{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Same row lock as AddCard: serializes concurrent AddCard/RemoveCard on
	// this deck at the DB level, independent of the coordination-store
	// lock's fail-open behavior.
	var lockedID uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM decks WHERE id = $1 FOR UPDATE`, id).Scan(&lockedID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Deck{}, ErrDeckNotFound
	}
	if err != nil {
		return Deck{}, err
	}

	_, err = tx.Exec(ctx, `
		DELETE FROM deck_cards WHERE (deck_id, position) = (
			SELECT dc.deck_id, dc.position FROM deck_cards dc
			JOIN cards c ON c.id = dc.card_id
			WHERE dc.deck_id = $1 AND c.name = $2
			ORDER BY dc.position ASC
			LIMIT 1
		)
	`, id, cardName)
	if err != nil {
		return Deck{}, err
	}
	if _, err := tx.Exec(ctx, `UPDATE decks SET updated_at = now() WHERE id = $1`, id); err != nil {
		return Deck{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Deck{}, err
	}
	return s.Get(ctx, id)
}
