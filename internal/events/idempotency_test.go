package events

import (
	"fmt"
	"testing"
	"time"
)

// TestPurpose: Validates first-seen acceptance and duplicate rejection within the TTL window.
// Scope: Unit Test
// Security: At-most-once ingestion of externally produced events
// Expected: The first sighting of a key records it; every repeat within the TTL is a duplicate.
// Test Case ID: IDM-01
func TestIdempotencyStore_DuplicateDetection(t *testing.T) {
	store := NewIdempotencyStore(time.Hour)

	if store.IsDuplicateAndRecord("key-1") {
		t.Error("first sighting must not be a duplicate")
	}
	if !store.IsDuplicateAndRecord("key-1") {
		t.Error("second sighting must be a duplicate")
	}
	if store.IsDuplicateAndRecord("key-2") {
		t.Error("distinct keys must not collide")
	}
}

// TestPurpose: Validates that keys are forgotten after the TTL elapses.
// Scope: Unit Test
// Security: Bounded deduplication memory
// Expected: A key older than the TTL is accepted again as first-seen.
// Test Case ID: IDM-02
func TestIdempotencyStore_TTLExpiry(t *testing.T) {
	store := NewIdempotencyStore(20 * time.Millisecond)

	if store.IsDuplicateAndRecord("key-1") {
		t.Fatal("first sighting must not be a duplicate")
	}

	time.Sleep(40 * time.Millisecond)

	if store.IsDuplicateAndRecord("key-1") {
		t.Error("key past its TTL must be treated as new")
	}
}

// TestPurpose: Validates the entry cap: a full store clears itself rather than rejecting writes.
// Scope: Unit Test
// Security: Memory exhaustion resistance under key flooding
// Expected: After the cap is hit the store keeps accepting keys; previously seen keys may be forgotten.
// Test Case ID: IDM-03
func TestIdempotencyStore_CapClears(t *testing.T) {
	const maxEntries = 10
	store := NewIdempotencyStore(time.Hour).WithMaxEntries(maxEntries)

	for i := 0; i < maxEntries; i++ {
		if store.IsDuplicateAndRecord(fmt.Sprintf("key-%d", i)) {
			t.Fatalf("key-%d falsely reported duplicate", i)
		}
	}

	// The cap is reached; the next new key clears the map and is recorded.
	if store.IsDuplicateAndRecord("overflow") {
		t.Error("overflow key must be accepted")
	}
	if !store.IsDuplicateAndRecord("overflow") {
		t.Error("overflow key must be remembered after the clear")
	}
}

// TestPurpose: Validates concurrent recording never double-accepts one key.
// Scope: Unit Test
// Security: Race-free deduplication
// Expected: Of N concurrent sightings of the same key exactly one is first-seen.
// Test Case ID: IDM-04
func TestIdempotencyStore_ConcurrentSameKey(t *testing.T) {
	store := NewIdempotencyStore(time.Hour)

	const workers = 16
	accepted := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		go func() {
			accepted <- !store.IsDuplicateAndRecord("contested")
		}()
	}

	firstSeen := 0
	for i := 0; i < workers; i++ {
		if <-accepted {
			firstSeen++
		}
	}
	if firstSeen != 1 {
		t.Errorf("%d workers saw the key as new, want exactly 1", firstSeen)
	}
}
