package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisPlugin(t *testing.T, stream string, maxLen int64) (*RedisStreamPlugin, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStreamPluginFromClient(client, stream, maxLen), mr, client
}

// TestPurpose: Validates that an emitted envelope lands on the stream with its flat fields and full payload.
// Scope: Unit Test
// Security: Durable event egress format
// Expected: XADD writes idempotency_key, event_type, event_id, producer, and a JSON payload that decodes back to the envelope.
// Test Case ID: RED-01
func TestRedisStreamPlugin_Emit(t *testing.T) {
	plugin, _, client := newRedisPlugin(t, "test_stream", 0)
	ctx := context.Background()

	ev := New(TypeTokenRevoked, SeverityWarning).WithClient("client_1").WithUser("user_1")
	env := NewEnvelope(ctx, *ev, DefaultProducer).WithIdempotencyKey("rk-1")

	if err := plugin.Emit(ctx, &env); err != nil {
		t.Fatalf("emit failed: %v", err)
	}

	msgs, err := client.XRange(ctx, "test_stream", "-", "+").Result()
	if err != nil {
		t.Fatalf("XRANGE failed: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("stream holds %d entries, want 1", len(msgs))
	}

	values := msgs[0].Values
	if values["idempotency_key"] != "rk-1" {
		t.Errorf("idempotency_key %v, want rk-1", values["idempotency_key"])
	}
	if values["event_type"] != string(TypeTokenRevoked) {
		t.Errorf("event_type %v, want %s", values["event_type"], TypeTokenRevoked)
	}
	if values["event_id"] != ev.ID {
		t.Errorf("event_id %v, want %s", values["event_id"], ev.ID)
	}
	if values["producer"] != DefaultProducer {
		t.Errorf("producer %v, want %s", values["producer"], DefaultProducer)
	}

	payload, ok := values["payload"].(string)
	if !ok {
		t.Fatalf("payload is %T, want string", values["payload"])
	}
	var decoded Envelope
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		t.Fatalf("payload does not decode: %v", err)
	}
	if decoded.Event.ID != ev.ID || decoded.Event.ClientID != "client_1" {
		t.Errorf("decoded envelope mismatch: %+v", decoded.Event)
	}
}

// TestPurpose: Validates the default stream name and plugin identity.
// Scope: Unit Test
// Security: Predictable consumer wiring
// Expected: An empty stream name falls back to keygate_events; the plugin reports redis_streams.
// Test Case ID: RED-02
func TestRedisStreamPlugin_Defaults(t *testing.T) {
	plugin, _, client := newRedisPlugin(t, "", 0)
	ctx := context.Background()

	if plugin.Name() != "redis_streams" {
		t.Errorf("name %s, want redis_streams", plugin.Name())
	}

	env := NewEnvelope(ctx, *New(TypeTokenCreated, SeverityInfo), DefaultProducer)
	if err := plugin.Emit(ctx, &env); err != nil {
		t.Fatalf("emit failed: %v", err)
	}

	n, err := client.XLen(ctx, DefaultRedisStream).Result()
	if err != nil {
		t.Fatalf("XLEN failed: %v", err)
	}
	if n != 1 {
		t.Errorf("default stream holds %d entries, want 1", n)
	}
}

// TestPurpose: Validates health reporting against a reachable and an unreachable server.
// Scope: Unit Test
// Security: Accurate delivery health for the events health endpoint
// Expected: Health is true while the server lives and false once it is stopped.
// Test Case ID: RED-03
func TestRedisStreamPlugin_Health(t *testing.T) {
	plugin, mr, _ := newRedisPlugin(t, "", 0)
	ctx := context.Background()

	if !plugin.Health(ctx) {
		t.Error("plugin must be healthy while the server is up")
	}

	mr.Close()

	if plugin.Health(ctx) {
		t.Error("plugin must be unhealthy after the server stops")
	}
}
