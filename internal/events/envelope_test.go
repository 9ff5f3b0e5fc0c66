package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

// TestPurpose: Validates envelope construction captures producer identity, correlation, and timestamps.
// Scope: Unit Test
// Security: Event provenance for downstream consumers
// Expected: Every envelope carries a correlation ID, producer name, and a UTC production time.
// Test Case ID: ENV-01
func TestEnvelope_New(t *testing.T) {
	ev := New(TypeTokenCreated, SeverityInfo).WithClient("client_1").WithUser("user_1")

	env := NewEnvelope(context.Background(), *ev, DefaultProducer)

	if env.Event.ID != ev.ID {
		t.Errorf("envelope event ID %s, want %s", env.Event.ID, ev.ID)
	}
	if env.CorrelationID == "" {
		t.Error("correlation ID missing")
	}
	if env.Producer != DefaultProducer {
		t.Errorf("producer %s, want %s", env.Producer, DefaultProducer)
	}
	if env.ProducedAt.IsZero() || env.ProducedAt.Location() != time.UTC {
		t.Errorf("produced_at must be a UTC timestamp, got %v", env.ProducedAt)
	}
	if env.IdempotencyKey != "" {
		t.Error("implicit envelopes carry no explicit idempotency key")
	}
}

// TestPurpose: Validates the idempotency key resolution order: explicit envelope key, then event ID.
// Scope: Unit Test
// Security: Deterministic deduplication across producers
// Expected: A blank or whitespace key falls back to the event ID; a set key wins.
// Test Case ID: ENV-02
func TestEnvelope_EffectiveIdempotencyKey(t *testing.T) {
	ev := New(TypeTokenCreated, SeverityInfo)
	env := NewEnvelope(context.Background(), *ev, DefaultProducer)

	if got := env.EffectiveIdempotencyKey(); got != ev.ID {
		t.Errorf("fallback key %s, want event ID %s", got, ev.ID)
	}

	withKey := env.WithIdempotencyKey("explicit-key")
	if got := withKey.EffectiveIdempotencyKey(); got != "explicit-key" {
		t.Errorf("explicit key %s, want explicit-key", got)
	}

	blank := env.WithIdempotencyKey("   ")
	if got := blank.EffectiveIdempotencyKey(); got != ev.ID {
		t.Errorf("whitespace key must fall back to event ID, got %s", got)
	}

	// WithIdempotencyKey is value-receiver: the original is untouched.
	if env.IdempotencyKey != "" {
		t.Error("WithIdempotencyKey mutated the original envelope")
	}
}

// TestPurpose: Validates attribute attachment does not share state between derived envelopes.
// Scope: Unit Test
// Security: Envelope immutability under fan-out
// Expected: WithAttribute copies the map; siblings never see each other's attributes.
// Test Case ID: ENV-03
func TestEnvelope_WithAttribute(t *testing.T) {
	base := NewEnvelope(context.Background(), *New(TypeTokenCreated, SeverityInfo), DefaultProducer)

	a := base.WithAttribute("region", "eu")
	b := base.WithAttribute("region", "us")

	if a.Attributes["region"] != "eu" || b.Attributes["region"] != "us" {
		t.Errorf("attributes crossed: a=%v b=%v", a.Attributes, b.Attributes)
	}
	if base.Attributes != nil {
		t.Error("WithAttribute mutated the base envelope")
	}

	c := a.WithAttribute("tier", "gold")
	if _, ok := a.Attributes["tier"]; ok {
		t.Error("derived envelope leaked into its parent")
	}
	if c.Attributes["region"] != "eu" {
		t.Error("derivation dropped inherited attributes")
	}
}

// TestPurpose: Validates the wire format field names consumers depend on.
// Scope: Unit Test
// Security: Wire compatibility for external consumers
// Expected: JSON uses event, idempotency_key, correlation_id, producer, produced_at.
// Test Case ID: ENV-04
func TestEnvelope_WireFormat(t *testing.T) {
	ev := New(TypeClientRegistered, SeverityInfo).WithClient("client_1")
	env := NewEnvelope(context.Background(), *ev, DefaultProducer).
		WithIdempotencyKey("key-1").
		WithAttribute("origin", "test")

	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var wire map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wire); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	for _, field := range []string{"event", "idempotency_key", "correlation_id", "producer", "produced_at", "attributes"} {
		if _, ok := wire[field]; !ok {
			t.Errorf("wire envelope missing field %q", field)
		}
	}

	var event struct {
		Type     string `json:"event_type"`
		ClientID string `json:"client_id"`
	}
	if err := json.Unmarshal(wire["event"], &event); err != nil {
		t.Fatalf("event unmarshal failed: %v", err)
	}
	if event.Type != string(TypeClientRegistered) || event.ClientID != "client_1" {
		t.Errorf("unexpected event payload: %+v", event)
	}
}
