package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the pgx-backed Store implementation. Raw SQL, not
// generated query code, per the same rationale as internal/token.PostgresStore.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore returns a Store backed by pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const cardSelectColumns = `
	c.id, c.name, c.type, c.description, c.race, c.attribute,
	c.archetype_id, a.id, a.name, c.created_at, c.updated_at
`

func (s *PostgresStore) scanCard(row pgx.Row) (Card, error) {
	var c Card
	var archetypeID *int64
	var aID *int64
	var aName *string

	err := row.Scan(&c.ID, &c.Name, &c.Type, &c.Description, &c.Race, &c.Attribute,
		&archetypeID, &aID, &aName, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Card{}, err
	}
	if aID != nil {
		c.Archetype = &Archetype{ID: *aID, Name: *aName}
	}
	return c, nil
}

func (s *PostgresStore) FindByName(ctx context.Context, name string) (Card, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+cardSelectColumns+`
		FROM cards c LEFT JOIN archetypes a ON a.id = c.archetype_id
		WHERE c.name = $1
	`, name)
	c, err := s.scanCard(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Card{}, ErrCardNotFound
	}
	return c, err
}

func (s *PostgresStore) FindAllSorted(ctx context.Context, page, size int) ([]Card, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+cardSelectColumns+`
		FROM cards c LEFT JOIN archetypes a ON a.id = c.archetype_id
		ORDER BY LOWER(c.name) ASC, c.id ASC
		LIMIT $1 OFFSET $2
	`, size, page*size)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCards(rows)
}

func (s *PostgresStore) Search(ctx context.Context, query string, page, size int) ([]Card, error) {
	like := "%" + query + "%"
	rows, err := s.pool.Query(ctx, `
		SELECT `+cardSelectColumns+`
		FROM cards c LEFT JOIN archetypes a ON a.id = c.archetype_id
		WHERE LOWER(c.name) LIKE $1 OR LOWER(a.name) LIKE $1
		ORDER BY LOWER(c.name) ASC, c.id ASC
		LIMIT $2 OFFSET $3
	`, like, size, page*size)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCards(rows)
}

func collectCards(rows pgx.Rows) ([]Card, error) {
	out := []Card{}
	for rows.Next() {
		var c Card
		var archetypeID *int64
		var aID *int64
		var aName *string
		if err := rows.Scan(&c.ID, &c.Name, &c.Type, &c.Description, &c.Race, &c.Attribute,
			&archetypeID, &aID, &aName, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		if aID != nil {
			c.Archetype = &Archetype{ID: *aID, Name: *aName}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM cards`).Scan(&n)
	return n, err
}

func (s *PostgresStore) Save(ctx context.Context, c Card) (Card, error) {
	var archetypeID *int64
	if c.Archetype != nil {
		archetypeID = &c.Archetype.ID
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO cards (name, type, description, race, attribute, archetype_id, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (name) DO UPDATE SET
			type = EXCLUDED.type,
			description = EXCLUDED.description,
			race = EXCLUDED.race,
			attribute = EXCLUDED.attribute,
			archetype_id = EXCLUDED.archetype_id,
			updated_at = now()
		RETURNING id, created_at, updated_at
	`, c.Name, c.Type, c.Description, c.Race, c.Attribute, archetypeID)

	if err := row.Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return Card{}, err
	}
	return c, nil
}

func (s *PostgresStore) Delete(ctx context.Context, name string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM cards WHERE name = $1`, name)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCardNotFound
	}
	return nil
}

func (s *PostgresStore) ExistsInAnyDeck(ctx context.Context, cardID int64) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM deck_cards WHERE card_id = $1)
	`, cardID).Scan(&exists)
	return exists, err
}

func (s *PostgresStore) FindArchetypeByNameIn(ctx context.Context, names []string) (map[string]Archetype, error) {
	out := map[string]Archetype{}
	if len(names) == 0 {
		return out, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT id, name FROM archetypes WHERE name = ANY($1)`, names)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var a Archetype
		if err := rows.Scan(&a.ID, &a.Name); err != nil {
			return nil, err
		}
		out[a.Name] = a
	}
	return out, rows.Err()
}

func (s *PostgresStore) FindArchetypeByName(ctx context.Context, name string) (Archetype, error) {
	var a Archetype
	err := s.pool.QueryRow(ctx, `SELECT id, name FROM archetypes WHERE name = $1`, name).Scan(&a.ID, &a.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return Archetype{}, fmt.Errorf("archetype %q: %w", name, ErrCardNotFound)
	}
	return a, err
}

// InsertArchetypesBulk inserts all names in one statement. A concurrent
// uniqueness conflict on any row aborts the whole insert (§4.9.4: the
// caller re-queries and retries one-by-one on conflict).
func (s *PostgresStore) InsertArchetypesBulk(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}

	values := make([]string, len(names))
	args := make([]any, len(names))
	for i, n := range names {
		values[i] = fmt.Sprintf("($%d)", i+1)
		args[i] = n
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO archetypes (name) VALUES `+strings.Join(values, ", ")+`
	`, args...)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return err
	}
	return err
}

func (s *PostgresStore) CountCardsByArchetype(ctx context.Context, archetypeID int64) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM cards WHERE archetype_id = $1`, archetypeID).Scan(&n)
	return n, err
}

func (s *PostgresStore) DeleteArchetype(ctx context.Context, archetypeID int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM archetypes WHERE id = $1`, archetypeID)
	return err
}

func (s *PostgresStore) GetArchetype(ctx context.Context, id int64) (Archetype, error) {
	var a Archetype
	err := s.pool.QueryRow(ctx, `SELECT id, name FROM archetypes WHERE id = $1`, id).Scan(&a.ID, &a.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return Archetype{}, ErrCardNotFound
	}
	return a, err
}

func (s *PostgresStore) ListArchetypes(ctx context.Context) ([]Archetype, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name FROM archetypes ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Archetype{}
	for rows.Next() {
		var a Archetype
		if err := rows.Scan(&a.ID, &a.Name); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
