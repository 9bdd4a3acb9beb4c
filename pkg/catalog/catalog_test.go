package catalog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/cardforge/cardforge/internal/cache"
	"github.com/cardforge/cardforge/internal/coordination"
	"github.com/cardforge/cardforge/internal/queue"
)

// fakeStore is an in-memory Store used to test Service logic in isolation
// from Postgres.
type fakeStore struct {
	mu         sync.Mutex
	cards      map[string]Card
	nextCardID int64

	archetypes   map[string]Archetype
	nextArchID   int64
	insertFailOn map[string]bool // names that fail the next bulk insert once

	decksReferencing map[int64]bool
	gcCountErr       error // forces CountCardsByArchetype to fail once, for GC error-path tests
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		cards:            map[string]Card{},
		archetypes:       map[string]Archetype{},
		insertFailOn:     map[string]bool{},
		decksReferencing: map[int64]bool{},
	}
}

func (f *fakeStore) FindByName(_ context.Context, name string) (Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cards[name]
	if !ok {
		return Card{}, ErrCardNotFound
	}
	return c, nil
}

func (f *fakeStore) FindAllSorted(_ context.Context, page, size int) ([]Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := make([]Card, 0, len(f.cards))
	for _, c := range f.cards {
		all = append(all, c)
	}
	sort.Slice(all, func(i, j int) bool { return strings.ToLower(all[i].Name) < strings.ToLower(all[j].Name) })
	return paginate(all, page, size), nil
}

func (f *fakeStore) Search(_ context.Context, query string, page, size int) ([]Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []Card
	for _, c := range f.cards {
		if strings.Contains(strings.ToLower(c.Name), query) {
			matched = append(matched, c)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return strings.ToLower(matched[i].Name) < strings.ToLower(matched[j].Name) })
	return paginate(matched, page, size), nil
}

func paginate(all []Card, page, size int) []Card {
	start := page * size
	if start >= len(all) {
		return []Card{}
	}
	end := start + size
	if end > len(all) {
		end = len(all)
	}
	return all[start:end]
}

func (f *fakeStore) Count(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cards), nil
}

func (f *fakeStore) Save(_ context.Context, c Card) (Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.cards[c.Name]; ok {
		c.ID = existing.ID
	} else {
		f.nextCardID++
		c.ID = f.nextCardID
	}
	f.cards[c.Name] = c
	return c, nil
}

func (f *fakeStore) Delete(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.cards[name]; !ok {
		return ErrCardNotFound
	}
	delete(f.cards, name)
	return nil
}

func (f *fakeStore) ExistsInAnyDeck(_ context.Context, cardID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.decksReferencing[cardID], nil
}

func (f *fakeStore) FindArchetypeByNameIn(_ context.Context, names []string) (map[string]Archetype, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]Archetype{}
	for _, n := range names {
		if a, ok := f.archetypes[n]; ok {
			out[n] = a
		}
	}
	return out, nil
}

func (f *fakeStore) FindArchetypeByName(_ context.Context, name string) (Archetype, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.archetypes[name]
	if !ok {
		return Archetype{}, ErrCardNotFound
	}
	return a, nil
}

func (f *fakeStore) InsertArchetypesBulk(_ context.Context, names []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range names {
		if f.insertFailOn[n] {
			delete(f.insertFailOn, n)
			return errUniqueConflict
		}
	}
	for _, n := range names {
		if _, ok := f.archetypes[n]; ok {
			continue
		}
		f.nextArchID++
		f.archetypes[n] = Archetype{ID: f.nextArchID, Name: n}
	}
	return nil
}

func (f *fakeStore) CountCardsByArchetype(_ context.Context, archetypeID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gcCountErr != nil {
		err := f.gcCountErr
		f.gcCountErr = nil
		return 0, err
	}
	n := 0
	for _, c := range f.cards {
		if c.Archetype != nil && c.Archetype.ID == archetypeID {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) DeleteArchetype(_ context.Context, archetypeID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for name, a := range f.archetypes {
		if a.ID == archetypeID {
			delete(f.archetypes, name)
		}
	}
	return nil
}

func (f *fakeStore) GetArchetype(_ context.Context, id int64) (Archetype, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.archetypes {
		if a.ID == id {
			return a, nil
		}
	}
	return Archetype{}, ErrCardNotFound
}

func (f *fakeStore) ListArchetypes(_ context.Context) ([]Archetype, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Archetype, 0, len(f.archetypes))
	for _, a := range f.archetypes {
		out = append(out, a)
	}
	return out, nil
}

var errUniqueConflict = &conflictError{"unique_violation"}

type conflictError struct{ s string }

func (e *conflictError) Error() string { return e.s }

func newTestService(t *testing.T) (*Service, *fakeStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	c := coordination.New(rdb)

	store := newFakeStore()
	ns := cache.New(c, "cards", 0)
	cardOps := queue.New(c, "card-operations")
	notifications := queue.New(c, "notifications")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(store, ns, cardOps, notifications, 0, logger), store
}

func TestSaveEvictsCacheAndEnqueuesEvent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Count(ctx); err != nil {
		t.Fatalf("count: %v", err)
	}

	saved, err := svc.Save(ctx, Card{Name: "Dark Magician", Type: "Effect Monster"}, true)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.ID == 0 {
		t.Fatal("expected an assigned id")
	}

	count, err := svc.Count(ctx)
	if err != nil {
		t.Fatalf("count after save: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected cache to reflect fresh count after eviction, got %d", count)
	}

	msgs, err := svc.queue.Peek(ctx)
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Type != "CARD_CREATED" {
		t.Fatalf("expected one CARD_CREATED event, got %+v", msgs)
	}
}

func TestSaveResolvesArchetypeByName(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	saved, err := svc.Save(ctx, Card{Name: "Blue-Eyes White Dragon", Archetype: &Archetype{Name: "Blue-Eyes"}}, true)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.Archetype == nil || saved.Archetype.ID == 0 {
		t.Fatalf("expected resolved archetype, got %+v", saved.Archetype)
	}

	again, err := svc.Save(ctx, Card{Name: "Blue-Eyes Alternative Dragon", Archetype: &Archetype{Name: "Blue-Eyes"}}, true)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if again.Archetype.ID != saved.Archetype.ID {
		t.Fatalf("expected same archetype row to be reused, got %d vs %d", again.Archetype.ID, saved.Archetype.ID)
	}
}

func TestDeleteFailsWhenReferencedByDeck(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	saved, err := svc.Save(ctx, Card{Name: "Exodia"}, true)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	store.decksReferencing[saved.ID] = true

	if err := svc.Delete(ctx, "Exodia"); err != ErrCardReferenced {
		t.Fatalf("expected ErrCardReferenced, got %v", err)
	}
}

func TestDeleteGarbageCollectsOrphanedArchetype(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	saved, err := svc.Save(ctx, Card{Name: "Red-Eyes Black Dragon", Archetype: &Archetype{Name: "Red-Eyes"}}, true)
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := svc.Delete(ctx, saved.Name); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, ok := store.archetypes["Red-Eyes"]; ok {
		t.Fatal("expected orphaned archetype to be garbage collected")
	}
}

func TestDeleteSucceedsWhenArchetypeGCFails(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	saved, err := svc.Save(ctx, Card{Name: "Blue-Eyes White Dragon", Archetype: &Archetype{Name: "Blue-Eyes"}}, true)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	store.gcCountErr = errors.New("boom")

	if err := svc.Delete(ctx, saved.Name); err != nil {
		t.Fatalf("delete: expected archetype GC failure to be best-effort, got %v", err)
	}
	if _, ok := store.archetypes["Blue-Eyes"]; !ok {
		t.Fatal("expected archetype to survive a failed GC count lookup")
	}
}

func TestListPageClampsSize(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		name := strings.Repeat("Card", i+1)
		if _, err := svc.Save(ctx, Card{Name: name}, true); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	page, err := svc.ListPage(ctx, 0, 1000)
	if err != nil {
		t.Fatalf("listPage: %v", err)
	}
	if len(page) > MaxPageSize {
		t.Fatalf("expected page size clamped to <=%d, got %d", MaxPageSize, len(page))
	}
}
