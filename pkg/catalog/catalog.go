// Package catalog implements the catalog service (C9): read-through cached
// access to cards and archetypes, with archetype upsert and orphan cleanup
// on write.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cardforge/cardforge/internal/cache"
	"github.com/cardforge/cardforge/internal/queue"
)

// Pagination defaults and limits (§6): 0-based page, default size 20, max 200.
const (
	DefaultPageSize = 20
	MaxPageSize     = 200
)

// Archetype is a named card grouping, created lazily and garbage-collected
// when its last referencing card is deleted (§3).
type Archetype struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Card is a catalog entry (§3). Name is the unique identifier and is
// immutable after creation.
type Card struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Type        string     `json:"humanReadableCardType"`
	Description string     `json:"description"`
	Race        string     `json:"race"`
	Attribute   string     `json:"attribute"`
	Archetype   *Archetype `json:"archetype,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

var (
	// ErrCardNotFound means no card exists with the given name.
	ErrCardNotFound = errors.New("card not found")
	// ErrCardExists means a card with that name already exists (create path).
	ErrCardExists = errors.New("card already exists")
	// ErrCardReferenced means a card cannot be deleted because a deck still
	// references it.
	ErrCardReferenced = errors.New("card is referenced by a deck")
)

// Store is the persistence boundary the service composes over. Sort order
// for paginated and searched results is case-insensitive ascending by name.
type Store interface {
	FindByName(ctx context.Context, name string) (Card, error)
	FindAllSorted(ctx context.Context, page, size int) ([]Card, error)
	Search(ctx context.Context, query string, page, size int) ([]Card, error)
	Count(ctx context.Context) (int, error)
	Save(ctx context.Context, c Card) (Card, error)
	Delete(ctx context.Context, name string) error
	ExistsInAnyDeck(ctx context.Context, cardID int64) (bool, error)
	FindArchetypeByNameIn(ctx context.Context, names []string) (map[string]Archetype, error)
	FindArchetypeByName(ctx context.Context, name string) (Archetype, error)
	InsertArchetypesBulk(ctx context.Context, names []string) error
	CountCardsByArchetype(ctx context.Context, archetypeID int64) (int, error)
	DeleteArchetype(ctx context.Context, archetypeID int64) error
	GetArchetype(ctx context.Context, id int64) (Archetype, error)
	ListArchetypes(ctx context.Context) ([]Archetype, error)
}

// Service composes C2 over Store (§4.9).
type Service struct {
	store   Store
	cache   *cache.Namespace
	queue   *queue.Queue // card-operations
	notify  *queue.Queue // notifications
	minSize int
	logger  *slog.Logger
}

// NewService returns a catalog Service.
func NewService(store Store, cacheNS *cache.Namespace, cardOps, notifications *queue.Queue, minHealthyCardCount int, logger *slog.Logger) *Service {
	return &Service{store: store, cache: cacheNS, queue: cardOps, notify: notifications, minSize: minHealthyCardCount, logger: logger}
}

const countKey = "count"

func nameKey(n string) string { return "name:" + n }
func pageKey(p, s int) string { return fmt.Sprintf("page:%d:size:%d", p, s) }

// GetByName returns the card with the given name, read-through cached.
func (s *Service) GetByName(ctx context.Context, name string) (Card, error) {
	var out Card
	err := s.cache.GetOrCompute(ctx, nameKey(name), &out, func(ctx context.Context) (any, error) {
		return s.store.FindByName(ctx, name)
	})
	return out, err
}

// Exists reports whether a card with the given name is a known catalog
// entry. Used by pkg/deck to validate card references without depending on
// the full catalog service surface.
func (s *Service) Exists(ctx context.Context, name string) (bool, error) {
	_, err := s.GetByName(ctx, name)
	if errors.Is(err, ErrCardNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListPage returns a sorted page of cards, clamped per §6 pagination rules.
func (s *Service) ListPage(ctx context.Context, page, size int) ([]Card, error) {
	size = clampSize(size)
	var out []Card
	err := s.cache.GetOrCompute(ctx, pageKey(page, size), &out, func(ctx context.Context) (any, error) {
		return s.store.FindAllSorted(ctx, page, size)
	})
	return out, err
}

// SearchPage queries the store directly (not cached, per §4.9.1: result
// space too large to cache usefully).
func (s *Service) SearchPage(ctx context.Context, query string, page, size int) ([]Card, error) {
	size = clampSize(size)
	return s.store.Search(ctx, strings.ToLower(query), page, size)
}

// Count returns the total number of cards, read-through cached.
func (s *Service) Count(ctx context.Context) (int, error) {
	var out int
	err := s.cache.GetOrCompute(ctx, countKey, &out, func(ctx context.Context) (any, error) {
		return s.store.Count(ctx)
	})
	return out, err
}

func clampSize(size int) int {
	if size < 1 {
		return DefaultPageSize
	}
	if size > MaxPageSize {
		return MaxPageSize
	}
	return size
}

// Save creates or updates a card, keyed by name (§4.9.2).
func (s *Service) Save(ctx context.Context, c Card, isCreate bool) (Card, error) {
	if c.Archetype != nil && c.Archetype.Name != "" {
		resolved, err := s.ensureArchetypes(ctx, []string{c.Archetype.Name})
		if err != nil {
			return Card{}, err
		}
		a := resolved[c.Archetype.Name]
		c.Archetype = &a
	}

	saved, err := s.store.Save(ctx, c)
	if err != nil {
		return Card{}, err
	}

	if err := s.cache.EvictAll(ctx); err != nil {
		s.logger.Error("catalog: cache eviction failed after save", "card", saved.Name, "error", err)
	}

	msgType := "CARD_UPDATED"
	if isCreate {
		msgType = "CARD_CREATED"
	}
	_ = s.queue.Enqueue(ctx, queue.Message{Type: msgType, Payload: map[string]any{"name": saved.Name}})
	_ = s.notify.Enqueue(ctx, queue.Message{Type: "SYSTEM", Payload: map[string]any{"event": msgType, "card": saved.Name}})

	return saved, nil
}

// Delete removes a card by name (§4.9.2), garbage-collecting its archetype
// if it becomes orphaned.
func (s *Service) Delete(ctx context.Context, name string) error {
	card, err := s.store.FindByName(ctx, name)
	if err != nil {
		return err
	}

	referenced, err := s.store.ExistsInAnyDeck(ctx, card.ID)
	if err != nil {
		return err
	}
	if referenced {
		return ErrCardReferenced
	}

	var archetypeID int64
	hasArchetype := card.Archetype != nil
	if hasArchetype {
		archetypeID = card.Archetype.ID
	}

	if err := s.store.Delete(ctx, name); err != nil {
		return err
	}

	if err := s.cache.EvictAll(ctx); err != nil {
		s.logger.Error("catalog: cache eviction failed after delete", "card", name, "error", err)
	}

	if hasArchetype {
		s.gcOrphanArchetype(ctx, archetypeID)
	}

	_ = s.queue.Enqueue(ctx, queue.Message{Type: "CARD_DELETED", Payload: map[string]any{"name": name}})

	return nil
}

// gcOrphanArchetype deletes archetypeID if it no longer has any referencing
// cards. Best-effort: does not fail the delete request, but logs on error
// per §4.9.2 step 5.
func (s *Service) gcOrphanArchetype(ctx context.Context, archetypeID int64) {
	count, err := s.store.CountCardsByArchetype(ctx, archetypeID)
	if err != nil {
		s.logger.Error("catalog: counting cards for archetype GC failed", "archetypeID", archetypeID, "error", err)
		return
	}
	if count > 0 {
		return
	}
	if err := s.store.DeleteArchetype(ctx, archetypeID); err != nil {
		s.logger.Error("catalog: deleting orphaned archetype failed", "archetypeID", archetypeID, "error", err)
	}
}

// Warmup pre-populates the hot set after a namespace eviction (§4.9.3).
// Admin-triggered and intended to run asynchronously; idempotent.
func (s *Service) Warmup(ctx context.Context) error {
	if _, err := s.Count(ctx); err != nil {
		return err
	}
	for p := 0; p < 5; p++ {
		if _, err := s.ListPage(ctx, p, DefaultPageSize); err != nil {
			return err
		}
	}
	return nil
}

// Statistics is a lightweight admin snapshot of catalog size (§6 admin/ops).
type Statistics struct {
	TotalCards      int `json:"totalCards"`
	TotalArchetypes int `json:"totalArchetypes"`
}

// Statistics reports aggregate catalog counts.
func (s *Service) Statistics(ctx context.Context) (Statistics, error) {
	total, err := s.Count(ctx)
	if err != nil {
		return Statistics{}, err
	}
	archetypes, err := s.store.ListArchetypes(ctx)
	if err != nil {
		return Statistics{}, err
	}
	return Statistics{TotalCards: total, TotalArchetypes: len(archetypes)}, nil
}

// PublishEvent enqueues an arbitrary SYSTEM notification (§6 admin/ops
// publish-event), the same channel Save/Delete publish their own events on.
func (s *Service) PublishEvent(ctx context.Context, event string, payload map[string]any) error {
	if payload == nil {
		payload = map[string]any{}
	}
	payload["event"] = event
	return s.notify.Enqueue(ctx, queue.Message{Type: "SYSTEM", Payload: payload})
}

// ErrUnknownQueue means an admin/ops queue request named a queue this
// service does not hold a reference to.
var ErrUnknownQueue = errors.New("unknown queue")

// queueByName resolves the admin-facing queue name to the underlying
// internal/queue.Queue. Only the two queues the catalog service owns are
// reachable here; the cache-operations queue lives in the composition root.
func (s *Service) queueByName(name string) (*queue.Queue, error) {
	switch name {
	case "card-operations":
		return s.queue, nil
	case "notifications":
		return s.notify, nil
	default:
		return nil, ErrUnknownQueue
	}
}

// QueueSend enqueues msg onto the named queue (§6 admin/ops queue send).
func (s *Service) QueueSend(ctx context.Context, queueName string, msg queue.Message) error {
	q, err := s.queueByName(queueName)
	if err != nil {
		return err
	}
	return q.Enqueue(ctx, msg)
}

// QueuePeek returns the pending messages on the named queue without
// removing them.
func (s *Service) QueuePeek(ctx context.Context, queueName string) ([]queue.Message, error) {
	q, err := s.queueByName(queueName)
	if err != nil {
		return nil, err
	}
	return q.Peek(ctx)
}

// QueueSize returns the pending message count on the named queue.
func (s *Service) QueueSize(ctx context.Context, queueName string) (int64, error) {
	q, err := s.queueByName(queueName)
	if err != nil {
		return 0, err
	}
	return q.Size(ctx)
}

// QueueClear empties the named queue.
func (s *Service) QueueClear(ctx context.Context, queueName string) error {
	q, err := s.queueByName(queueName)
	if err != nil {
		return err
	}
	return q.Clear(ctx)
}

// GetArchetype returns a single archetype by id.
func (s *Service) GetArchetype(ctx context.Context, id int64) (Archetype, error) {
	return s.store.GetArchetype(ctx, id)
}

// ListArchetypes returns every known archetype.
func (s *Service) ListArchetypes(ctx context.Context) ([]Archetype, error) {
	return s.store.ListArchetypes(ctx)
}

// ensureArchetypes resolves every name in names to its archetype row,
// creating rows lazily and tolerating concurrent creators (§4.9.4).
func (s *Service) ensureArchetypes(ctx context.Context, names []string) (map[string]Archetype, error) {
	existing, err := s.store.FindArchetypeByNameIn(ctx, names)
	if err != nil {
		return nil, err
	}

	var missing []string
	for _, n := range names {
		if _, ok := existing[n]; !ok {
			missing = append(missing, n)
		}
	}
	if len(missing) == 0 {
		return existing, nil
	}

	if err := s.store.InsertArchetypesBulk(ctx, missing); err != nil {
		// Concurrent writer raced us on a uniqueness constraint: re-query,
		// then retry the remaining names one by one (§4.9.4).
		resolved, rerr := s.store.FindArchetypeByNameIn(ctx, missing)
		if rerr != nil {
			return nil, rerr
		}
		for n, a := range resolved {
			existing[n] = a
		}
		for _, n := range missing {
			if _, ok := existing[n]; ok {
				continue
			}
			if ierr := s.store.InsertArchetypesBulk(ctx, []string{n}); ierr != nil {
				winner, werr := s.store.FindArchetypeByName(ctx, n)
				if werr != nil {
					return nil, werr
				}
				existing[n] = winner
				continue
			}
			resolvedOne, rerr := s.store.FindArchetypeByNameIn(ctx, []string{n})
			if rerr != nil {
				return nil, rerr
			}
			for k, v := range resolvedOne {
				existing[k] = v
			}
		}
		return existing, nil
	}

	resolved, err := s.store.FindArchetypeByNameIn(ctx, missing)
	if err != nil {
		return nil, err
	}
	for n, a := range resolved {
		existing[n] = a
	}
	return existing, nil
}
