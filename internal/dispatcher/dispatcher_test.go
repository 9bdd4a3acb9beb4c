package dispatcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/cardforge/cardforge/internal/coordination"
	"github.com/cardforge/cardforge/internal/queue"
)

func newTestQueues(t *testing.T, names ...string) []*queue.Queue {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	c := coordination.New(rdb)

	queues := make([]*queue.Queue, len(names))
	for i, n := range names {
		queues[i] = queue.New(c, n)
	}
	return queues
}

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTickRoutesMessageToRegisteredHandler(t *testing.T) {
	queues := newTestQueues(t, "card-operations")
	ctx := context.Background()

	var received queue.Message
	d := New(silentLogger(), queues...)
	d.Register("card-operations", "created", func(ctx context.Context, msg queue.Message) error {
		received = msg
		return nil
	})

	if err := queues[0].Enqueue(ctx, queue.Message{Type: "created", Payload: map[string]any{"id": "1"}}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	d.tick(ctx)

	if received.Type != "created" {
		t.Fatalf("handler was not invoked, got %+v", received)
	}
}

func TestTickAbortsQueueOnHandlerErrorButRunsOtherQueues(t *testing.T) {
	queues := newTestQueues(t, "card-operations", "notifications")
	ctx := context.Background()

	d := New(silentLogger(), queues...)

	var secondCardMsgSeen bool
	d.Register("card-operations", "created", func(ctx context.Context, msg queue.Message) error {
		return errors.New("boom")
	})
	var notificationSeen bool
	d.Register("notifications", "email", func(ctx context.Context, msg queue.Message) error {
		notificationSeen = true
		return nil
	})

	if err := queues[0].Enqueue(ctx, queue.Message{Type: "created"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := queues[0].Enqueue(ctx, queue.Message{Type: "created"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := queues[1].Enqueue(ctx, queue.Message{Type: "email"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	d.tick(ctx)

	if notificationSeen == false {
		t.Fatal("expected notifications queue to still be drained after card-operations handler failure")
	}

	size, err := queues[0].Size(ctx)
	if err != nil {
		t.Fatalf("size: %v", err)
	}
	if size != 1 {
		t.Fatalf("expected the second card-operations message to remain queued after abort, size=%d", size)
	}
	_ = secondCardMsgSeen
}

func TestRunStopsOnContextCancellation(t *testing.T) {
	queues := newTestQueues(t, "card-operations")
	d := New(silentLogger(), queues...)
	d.interval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}
