// Package dispatcher implements the background dispatcher (C6): a recurrent
// task that drains the three known work queues and routes each message to a
// typed handler. Grounded on the teacher's escalation engine loop shape
// (ticker + tick), generalized from a single DB poll to a registry of
// per-queue, per-message-type handlers.
package dispatcher

import (
	"context"
	"log/slog"
	"time"

	"github.com/cardforge/cardforge/internal/queue"
	"github.com/cardforge/cardforge/internal/telemetry"
)

// Interval is the fixed tick period (§4.6: every 5 seconds).
const Interval = 5 * time.Second

// BatchSize is the maximum messages drained per queue per cycle (§4.6: 10).
const BatchSize = 10

// Handler processes one message from a queue. An error is logged and
// aborts the remaining drain for that queue this cycle.
type Handler func(ctx context.Context, msg queue.Message) error

// Dispatcher drains a fixed set of named queues on a ticker, routing each
// message to a handler registered for its type.
type Dispatcher struct {
	queues   []*queue.Queue
	handlers map[string]map[string]Handler // queue name -> message type -> handler
	logger   *slog.Logger
	interval time.Duration
	batch    int
}

// New returns a Dispatcher draining queues, logging through logger.
func New(logger *slog.Logger, queues ...*queue.Queue) *Dispatcher {
	return &Dispatcher{
		queues:   queues,
		handlers: make(map[string]map[string]Handler),
		logger:   logger,
		interval: Interval,
		batch:    BatchSize,
	}
}

// Register binds handler to messages of type msgType arriving on queueName.
func (d *Dispatcher) Register(queueName, msgType string, handler Handler) {
	m, ok := d.handlers[queueName]
	if !ok {
		m = make(map[string]Handler)
		d.handlers[queueName] = m
	}
	m[msgType] = handler
}

// Run blocks, ticking every d.interval until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("dispatcher started", "interval", d.interval, "batch_size", d.batch)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopped")
			return nil
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

// tick drains up to d.batch messages from every registered queue. A handler
// failure aborts the remaining drain for that queue this cycle only; other
// queues still run.
func (d *Dispatcher) tick(ctx context.Context) {
	for _, q := range d.queues {
		d.drainQueue(ctx, q)
	}
}

func (d *Dispatcher) drainQueue(ctx context.Context, q *queue.Queue) {
	for i := 0; i < d.batch; i++ {
		msg, ok, err := q.Dequeue(ctx, false)
		if err != nil {
			d.logger.Error("dispatcher dequeue failed", "queue", q.Name(), "error", err)
			return
		}
		if !ok {
			return
		}

		handler, found := d.handlers[q.Name()][msg.Type]
		if !found {
			d.logger.Warn("no handler registered", "queue", q.Name(), "type", msg.Type)
			continue
		}

		if err := handler(ctx, msg); err != nil {
			d.logger.Error("dispatcher handler failed",
				"queue", q.Name(), "type", msg.Type, "error", err)
			telemetry.DispatchFailuresTotal.WithLabelValues(q.Name(), msg.Type).Inc()
			return
		}
		telemetry.DispatchedTotal.WithLabelValues(q.Name(), msg.Type).Inc()
	}
}
