package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/keygate/keygate/internal/observability/logger"
)

const defaultMaxIdempotencyEntries = 100_000

// IdempotencyStore deduplicates ingested envelopes by their effective key.
// It is an in-memory, TTL-evicted, bounded map: when the cap is reached the
// whole map is cleared with a warning rather than rejecting writes. A
// persistent inbox replaces this once eventing grows a durability phase.
type IdempotencyStore struct {
	ttl        time.Duration
	maxEntries int

	mu      sync.Mutex
	entries map[string]time.Time
}

// NewIdempotencyStore creates a store that forgets keys after ttl.
func NewIdempotencyStore(ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{
		ttl:        ttl,
		maxEntries: defaultMaxIdempotencyEntries,
		entries:    make(map[string]time.Time),
	}
}

// WithMaxEntries overrides the entry cap.
func (s *IdempotencyStore) WithMaxEntries(n int) *IdempotencyStore {
	s.maxEntries = n
	return s
}

// IsDuplicateAndRecord reports whether the key was already seen within the
// TTL; a first-seen key is recorded before returning.
func (s *IdempotencyStore) IsDuplicateAndRecord(key string) bool {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Opportunistic prune keeps the map honest without a sweeper goroutine.
	for k, ts := range s.entries {
		if now.Sub(ts) > s.ttl {
			delete(s.entries, k)
		}
	}

	if _, ok := s.entries[key]; ok {
		return true
	}

	if len(s.entries) >= s.maxEntries {
		slog.Warn("idempotency cache full; clearing (best-effort)",
			logger.Component("events"),
			"max_entries", s.maxEntries)
		s.entries = make(map[string]time.Time)
	}

	s.entries[key] = now
	return false
}
