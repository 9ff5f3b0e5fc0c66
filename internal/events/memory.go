package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/keygate/keygate/internal/observability/logger"
)

// MemoryLogger is the built-in plugin: it keeps the most recent envelopes in
// a bounded ring and mirrors each one to the structured log. It backs the
// "memory" backend and test assertions.
type MemoryLogger struct {
	capacity int

	mu      sync.Mutex
	entries []Envelope
}

// NewMemoryLogger creates a ring holding at most capacity envelopes.
func NewMemoryLogger(capacity int) *MemoryLogger {
	if capacity <= 0 {
		capacity = 100
	}
	return &MemoryLogger{capacity: capacity}
}

// Emit records the envelope, evicting the oldest entry once full.
func (l *MemoryLogger) Emit(ctx context.Context, envelope *Envelope) error {
	l.mu.Lock()
	l.entries = append(l.entries, *envelope)
	if len(l.entries) > l.capacity {
		l.entries = l.entries[len(l.entries)-l.capacity:]
	}
	l.mu.Unlock()

	slog.DebugContext(ctx, "auth event",
		logger.Component("events"),
		"event_type", envelope.Event.Type,
		"event_id", envelope.Event.ID,
		"severity", envelope.Event.Severity,
		logger.UserID(envelope.Event.UserID),
		logger.ClientID(envelope.Event.ClientID))
	return nil
}

// Name identifies the plugin.
func (l *MemoryLogger) Name() string { return "memory" }

// Health always reports true.
func (l *MemoryLogger) Health(context.Context) bool { return true }

// Events returns a copy of the retained envelopes, oldest first.
func (l *MemoryLogger) Events() []Envelope {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Envelope, len(l.entries))
	copy(out, l.entries)
	return out
}
