// Package notifier implements the fire-and-forget notification sink the
// dispatcher (C6) drains EMAIL and SYSTEM messages into. Grounded on the
// teacher's pkg/slack.Notifier shape (a thin logger-backed sink consulted
// by dispatch handlers rather than a full delivery pipeline).
package notifier

import (
	"context"
	"log/slog"

	"github.com/cardforge/cardforge/internal/queue"
)

// Sink records EMAIL and SYSTEM notifications. No outbound mail transport
// is wired in this pack, so delivery is structured-log only; the dispatcher
// contract (message consumed, handler returns nil) is unaffected by that.
type Sink struct {
	logger *slog.Logger
}

// New returns a Sink.
func New(logger *slog.Logger) *Sink {
	return &Sink{logger: logger}
}

// HandleEmail logs an EMAIL notification message (§4.6).
func (s *Sink) HandleEmail(_ context.Context, msg queue.Message) error {
	s.logger.Info("notification: email", "payload", msg.Payload)
	return nil
}

// HandleSystem logs a SYSTEM notification message (§4.6), the channel the
// catalog service uses to announce card create/update events (card deletes
// publish no SYSTEM message).
func (s *Sink) HandleSystem(_ context.Context, msg queue.Message) error {
	s.logger.Info("notification: system", "payload", msg.Payload)
	return nil
}
