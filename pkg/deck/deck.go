// Package deck implements the deck service (C10): transactional deck
// mutations guarded by the distributed lock (C3) and the two domain
// invariants (size <= 60, per-card copies <= 3), enforced inside the
// database transaction regardless of the lock outcome.
package deck

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cardforge/cardforge/internal/lock"
	"github.com/cardforge/cardforge/internal/sanitize"
	"github.com/cardforge/cardforge/pkg/authz"
	"github.com/cardforge/cardforge/pkg/principal"
)

// MaxSize and MaxCopies are the deck invariants (§4.10), enforced inside a
// DB transaction regardless of whether the coarse lock was acquired.
const (
	MaxSize   = 60
	MaxCopies = 3
)

// Deck is a named, owned, ordered multiset of card references (§3).
type Deck struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Owner     string    `json:"owner"`
	Cards     []string  `json:"cards"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Size returns the number of card copies currently in the deck.
func (d Deck) Size() int { return len(d.Cards) }

// Copies returns the count of cardName within the deck.
func (d Deck) Copies(cardName string) int {
	n := 0
	for _, c := range d.Cards {
		if c == cardName {
			n++
		}
	}
	return n
}

var (
	// ErrDeckNotFound means no deck exists with the given id.
	ErrDeckNotFound = errors.New("deck not found")
	// ErrCardNotFound means the referenced card does not exist in the catalog.
	ErrCardNotFound = errors.New("card not found")
	// ErrForbidden means the principal may not mutate this deck.
	ErrForbidden = errors.New("not authorized to modify this deck")
	// ErrLockDenied means the per-resource lock could not be acquired;
	// callers surface this as a 409 with a retry hint (§7).
	ErrLockDenied = errors.New("operation already in progress, try again")
	// ErrDeckFull means the deck already holds MaxSize cards.
	ErrDeckFull = errors.New("deck already has the maximum number of cards")
	// ErrCopiesExceeded means cardName already appears MaxCopies times.
	ErrCopiesExceeded = errors.New("deck already has the maximum of 3 copies of this card")
)

// CardExistenceChecker confirms a card name is a known catalog entry,
// without pulling in the whole catalog service as a dependency.
type CardExistenceChecker interface {
	Exists(ctx context.Context, cardName string) (bool, error)
}

// Store is the transactional persistence boundary for decks. Every method
// that mutates state is expected to run inside a single DB transaction.
type Store interface {
	Get(ctx context.Context, id uuid.UUID) (Deck, error)
	Insert(ctx context.Context, d Deck) (Deck, error)
	Update(ctx context.Context, d Deck) (Deck, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, page, size int) ([]Deck, error)
	AddCard(ctx context.Context, id uuid.UUID, cardName string) (Deck, error)
	RemoveCard(ctx context.Context, id uuid.UUID, cardName string) (Deck, error)
}

// Service composes Store with the distributed lock and authorization
// checks that spec.md §4.10 prescribes.
type Service struct {
	store  Store
	locker *lock.Locker
	cards  CardExistenceChecker
}

// NewService returns a deck Service.
func NewService(store Store, locker *lock.Locker, cards CardExistenceChecker) *Service {
	return &Service{store: store, locker: locker, cards: cards}
}

func createLockKey(username string) string {
	return fmt.Sprintf("user:%s:create_deck", username)
}

func deckLockKey(id uuid.UUID) string {
	return fmt.Sprintf("deck:%s", id)
}

// Create acquires a per-principal lock to serialize rapid double-submits,
// then persists a new deck owned by p (§4.10).
func (s *Service) Create(ctx context.Context, name string, p principal.Principal) (Deck, error) {
	d := Deck{Name: sanitize.Text(name), Owner: p.Username}

	var out Deck
	acquired, err := s.locker.WithLock(ctx, createLockKey(p.Username), 10*time.Second, func(ctx context.Context) error {
		saved, err := s.store.Insert(ctx, d)
		if err != nil {
			return err
		}
		out = saved
		return nil
	})
	if err != nil {
		return Deck{}, err
	}
	if !acquired {
		return Deck{}, ErrLockDenied
	}
	return out, nil
}

// Update authorizes, locks, and persists an allowed-field patch (name).
// Owner is preserved regardless of patch content.
func (s *Service) Update(ctx context.Context, id uuid.UUID, newName string, p principal.Principal) (Deck, error) {
	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return Deck{}, err
	}
	if !authz.CanModify(existing.Owner, p) {
		return Deck{}, ErrForbidden
	}

	var out Deck
	acquired, err := s.locker.WithLock(ctx, deckLockKey(id), 5*time.Second, func(ctx context.Context) error {
		existing.Name = sanitize.Text(newName)
		saved, err := s.store.Update(ctx, existing)
		if err != nil {
			return err
		}
		out = saved
		return nil
	})
	if err != nil {
		return Deck{}, err
	}
	if !acquired {
		return Deck{}, ErrLockDenied
	}
	return out, nil
}

// Delete authorizes, locks, and removes a deck.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, p principal.Principal) error {
	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !authz.CanModify(existing.Owner, p) {
		return ErrForbidden
	}

	acquired, err := s.locker.WithLock(ctx, deckLockKey(id), 5*time.Second, func(ctx context.Context) error {
		return s.store.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	if !acquired {
		return ErrLockDenied
	}
	return nil
}

// Get returns a single deck by id, no authorization required (read).
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Deck, error) {
	return s.store.Get(ctx, id)
}

// List returns a page of decks.
func (s *Service) List(ctx context.Context, page, size int) ([]Deck, error) {
	return s.store.List(ctx, page, size)
}

// AddCard appends a card copy to the deck, enforcing both invariants inside
// the store's transaction (§4.10, §8 property 1).
func (s *Service) AddCard(ctx context.Context, id uuid.UUID, cardName string, p principal.Principal) (Deck, error) {
	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return Deck{}, err
	}
	if !authz.CanModify(existing.Owner, p) {
		return Deck{}, ErrForbidden
	}

	exists, err := s.cards.Exists(ctx, cardName)
	if err != nil {
		return Deck{}, err
	}
	if !exists {
		return Deck{}, ErrCardNotFound
	}

	if existing.Size() >= MaxSize {
		return Deck{}, ErrDeckFull
	}
	if existing.Copies(cardName) >= MaxCopies {
		return Deck{}, ErrCopiesExceeded
	}

	var out Deck
	acquired, err := s.locker.WithLock(ctx, deckLockKey(id), 5*time.Second, func(ctx context.Context) error {
		// Re-validate under lock: the pre-check above is advisory, this is
		// the authoritative check the store performs inside its transaction.
		saved, err := s.store.AddCard(ctx, id, cardName)
		if err != nil {
			return err
		}
		out = saved
		return nil
	})
	if err != nil {
		return Deck{}, err
	}
	if !acquired {
		return Deck{}, ErrLockDenied
	}
	return out, nil
}

// RemoveCard removes one occurrence of cardName if present; a no-op
// otherwise (§4.10, symmetric with AddCard).
func (s *Service) RemoveCard(ctx context.Context, id uuid.UUID, cardName string, p principal.Principal) (Deck, error) {
	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return Deck{}, err
	}
	if !authz.CanModify(existing.Owner, p) {
		return Deck{}, ErrForbidden
	}

	var out Deck
	acquired, err := s.locker.WithLock(ctx, deckLockKey(id), 5*time.Second, func(ctx context.Context) error {
		saved, err := s.store.RemoveCard(ctx, id, cardName)
		if err != nil {
			return err
		}
		out = saved
		return nil
	})
	if err != nil {
		return Deck{}, err
	}
	if !acquired {
		return Deck{}, ErrLockDenied
	}
	return out, nil
}
