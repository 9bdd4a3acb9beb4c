package queue

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/cardforge/cardforge/internal/coordination"
)

func newTestQueue(t *testing.T, name string) *Queue {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(coordination.New(rdb), name)
}

func TestEnqueueDequeueFIFOOrder(t *testing.T) {
	q := newTestQueue(t, "card-operations")
	ctx := context.Background()

	for i, typ := range []string{"created", "updated", "deleted"} {
		if err := q.Enqueue(ctx, Message{Type: typ, Payload: map[string]any{"seq": float64(i)}}); err != nil {
			t.Fatalf("enqueue %s: %v", typ, err)
		}
	}

	for _, wantType := range []string{"created", "updated", "deleted"} {
		msg, ok, err := q.Dequeue(ctx, false)
		if err != nil || !ok {
			t.Fatalf("dequeue: ok=%v err=%v", ok, err)
		}
		if msg.Type != wantType {
			t.Fatalf("FIFO order broken: got %q, want %q", msg.Type, wantType)
		}
	}

	_, ok, err := q.Dequeue(ctx, false)
	if err != nil {
		t.Fatalf("dequeue on empty: %v", err)
	}
	if ok {
		t.Fatal("expected empty queue")
	}
}

func TestPeekDoesNotRemoveMessages(t *testing.T) {
	q := newTestQueue(t, "notifications")
	ctx := context.Background()

	if err := q.Enqueue(ctx, Message{Type: "email", Payload: map[string]any{"to": "a@example.com"}}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	snapshot, err := q.Peek(ctx)
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	if len(snapshot) != 1 || snapshot[0].Type != "email" {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}

	size, err := q.Size(ctx)
	if err != nil {
		t.Fatalf("size: %v", err)
	}
	if size != 1 {
		t.Fatalf("expected peek to leave message in place, size=%d", size)
	}
}

func TestClearEmptiesQueue(t *testing.T) {
	q := newTestQueue(t, "cache-operations")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := q.Enqueue(ctx, Message{Type: "evict"}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	if err := q.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}

	size, err := q.Size(ctx)
	if err != nil {
		t.Fatalf("size: %v", err)
	}
	if size != 0 {
		t.Fatalf("expected queue to be empty after clear, got size=%d", size)
	}
}
