// Package queue implements the named FIFO work queue (C5): enqueue pushes
// onto the head of a coordination-store list, dequeue pops from the tail.
// Messages are opaque structured envelopes serialized as JSON so maps and
// primitive types survive the producer/consumer boundary.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cardforge/cardforge/internal/coordination"
	"github.com/cardforge/cardforge/internal/telemetry"
)

// BlockingTimeout is the default wait for a blocking dequeue (§4.5: 10s).
const BlockingTimeout = 10 * time.Second

// Message is an opaque, typed envelope carried through a queue.
type Message struct {
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
}

// Queue operates on a single named FIFO list.
type Queue struct {
	name string
	c    *coordination.Client
}

// New returns a Queue named name, backed by c.
func New(c *coordination.Client, name string) *Queue {
	return &Queue{name: name, c: c}
}

// Name reports the queue's name.
func (q *Queue) Name() string {
	return q.name
}

// Enqueue serializes msg and pushes it onto the head of the list, stamping
// it with the current time if no Timestamp is set.
func (q *Queue) Enqueue(ctx context.Context, msg Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	encoded, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := q.c.ListPushLeft(ctx, q.name, string(encoded)); err != nil {
		return err
	}
	q.reportDepth(ctx)
	return nil
}

// Dequeue pops from the tail. If blocking, it waits up to BlockingTimeout
// and returns (msg, false, nil) on timeout.
func (q *Queue) Dequeue(ctx context.Context, blocking bool) (Message, bool, error) {
	var (
		raw string
		ok  bool
		err error
	)
	if blocking {
		raw, ok, err = q.c.ListPopRightBlocking(ctx, q.name, BlockingTimeout)
	} else {
		raw, ok, err = q.c.ListPopRightNonblocking(ctx, q.name)
	}
	if err != nil || !ok {
		return Message{}, false, err
	}

	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return Message{}, false, err
	}
	q.reportDepth(ctx)
	return msg, true, nil
}

// Peek returns a read-only snapshot of every message currently queued,
// oldest (next to be dequeued) first.
func (q *Queue) Peek(ctx context.Context) ([]Message, error) {
	raw, err := q.c.ListRange(ctx, q.name, 0, -1)
	if err != nil {
		return nil, err
	}

	// ListRange reads head-to-tail (push order); the queue pops from the
	// tail, so reverse to present dequeue order.
	msgs := make([]Message, len(raw))
	for i, r := range raw {
		var msg Message
		if err := json.Unmarshal([]byte(r), &msg); err != nil {
			return nil, err
		}
		msgs[len(raw)-1-i] = msg
	}
	return msgs, nil
}

// Size returns the current queue depth.
func (q *Queue) Size(ctx context.Context) (int64, error) {
	return q.c.ListLen(ctx, q.name)
}

// Clear removes the queue entirely.
func (q *Queue) Clear(ctx context.Context) error {
	if err := q.c.ListClear(ctx, q.name); err != nil {
		return err
	}
	telemetry.QueueDepth.WithLabelValues(q.name).Set(0)
	return nil
}

func (q *Queue) reportDepth(ctx context.Context) {
	n, err := q.c.ListLen(ctx, q.name)
	if err != nil {
		return
	}
	telemetry.QueueDepth.WithLabelValues(q.name).Set(float64(n))
}
