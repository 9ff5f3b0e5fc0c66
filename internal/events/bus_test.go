package events

import (
	"context"
	"errors"
	"testing"
	"time"
)

// failingPlugin rejects every envelope.
type failingPlugin struct {
	calls int
}

func (p *failingPlugin) Emit(context.Context, *Envelope) error {
	p.calls++
	return errors.New("sink unavailable")
}

func (p *failingPlugin) Name() string { return "failing" }

func (p *failingPlugin) Health(context.Context) bool { return false }

func publishEvent(t *testing.T, bus *Bus, eventType Type) {
	t.Helper()
	env := NewEnvelope(context.Background(), *New(eventType, SeverityInfo), DefaultProducer)
	if err := bus.Publish(context.Background(), env); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
}

// TestPurpose: Validates that one published envelope reaches every attached plugin.
// Scope: Unit Test
// Security: Event fan-out completeness
// Expected: Both plugins hold the envelope after the bus drains on Close.
// Test Case ID: BUS-01
func TestBus_FanOut(t *testing.T) {
	first := NewMemoryLogger(10)
	second := NewMemoryLogger(10)
	bus := NewBus(AllowAll(), first, second)

	publishEvent(t, bus, TypeTokenCreated)

	if err := bus.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	for name, plugin := range map[string]*MemoryLogger{"first": first, "second": second} {
		evs := plugin.Events()
		if len(evs) != 1 {
			t.Fatalf("%s plugin holds %d envelopes, want 1", name, len(evs))
		}
		if evs[0].Event.Type != TypeTokenCreated {
			t.Errorf("%s plugin got type %s", name, evs[0].Event.Type)
		}
	}
}

// TestPurpose: Validates that the type filter drops unlisted events before they reach plugins.
// Scope: Unit Test
// Security: Event egress control
// Expected: Only the allowed type is delivered; the rest are silently discarded.
// Test Case ID: BUS-02
func TestBus_Filter(t *testing.T) {
	mem := NewMemoryLogger(10)
	bus := NewBus(AllowTypes(TypeTokenRevoked), mem)

	publishEvent(t, bus, TypeTokenCreated)
	publishEvent(t, bus, TypeTokenRevoked)
	publishEvent(t, bus, TypeClientRegistered)

	if err := bus.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	evs := mem.Events()
	if len(evs) != 1 {
		t.Fatalf("filter passed %d envelopes, want 1", len(evs))
	}
	if evs[0].Event.Type != TypeTokenRevoked {
		t.Errorf("filter passed type %s, want %s", evs[0].Event.Type, TypeTokenRevoked)
	}
}

// TestPurpose: Validates shutdown semantics: Close drains the queue, then Publish reports the closed bus.
// Scope: Unit Test
// Security: No event loss on orderly shutdown
// Expected: Everything queued before Close is delivered; publishing afterwards returns ErrBusClosed.
// Test Case ID: BUS-03
func TestBus_CloseDrainsThenRejects(t *testing.T) {
	mem := NewMemoryLogger(100)
	bus := NewBus(AllowAll(), mem)

	const queued = 20
	for i := 0; i < queued; i++ {
		publishEvent(t, bus, TypeTokenValidated)
	}

	if err := bus.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if got := len(mem.Events()); got != queued {
		t.Errorf("drained %d envelopes, want %d", got, queued)
	}

	env := NewEnvelope(context.Background(), *New(TypeTokenValidated, SeverityInfo), DefaultProducer)
	if err := bus.Publish(context.Background(), env); !errors.Is(err, ErrBusClosed) {
		t.Errorf("publish after close returned %v, want ErrBusClosed", err)
	}

	// Close is idempotent.
	if err := bus.Close(); err != nil {
		t.Errorf("second close returned %v", err)
	}
}

// TestPurpose: Validates that one failing plugin does not block delivery to the others.
// Scope: Unit Test
// Security: Fault isolation between event sinks
// Expected: The healthy plugin receives the envelope even though its sibling errors.
// Test Case ID: BUS-04
func TestBus_FailingPluginDoesNotBlockOthers(t *testing.T) {
	failing := &failingPlugin{}
	mem := NewMemoryLogger(10)
	bus := NewBus(AllowAll(), failing, mem)

	publishEvent(t, bus, TypeTokenCreated)

	if err := bus.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	if failing.calls != 1 {
		t.Errorf("failing plugin was called %d times, want 1", failing.calls)
	}
	if got := len(mem.Events()); got != 1 {
		t.Errorf("healthy plugin holds %d envelopes, want 1", got)
	}
}

// TestPurpose: Validates the producer entry point: Emit wraps the event and delivers it asynchronously.
// Scope: Unit Test
// Security: Producer flow never blocks on event delivery
// Expected: The envelope arrives with the default producer; a nil event is ignored.
// Test Case ID: BUS-05
func TestBus_Emit(t *testing.T) {
	mem := NewMemoryLogger(10)
	bus := NewBus(AllowAll(), mem)
	defer bus.Close()

	bus.Emit(context.Background(), nil)
	bus.Emit(context.Background(), New(TypeTokenCreated, SeverityInfo).WithClient("client_1"))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(mem.Events()) >= 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	evs := mem.Events()
	if len(evs) != 1 {
		t.Fatalf("delivered %d envelopes, want 1", len(evs))
	}
	if evs[0].Producer != DefaultProducer {
		t.Errorf("producer %s, want %s", evs[0].Producer, DefaultProducer)
	}
	if evs[0].Event.ClientID != "client_1" {
		t.Errorf("client %s, want client_1", evs[0].Event.ClientID)
	}
}

// TestPurpose: Validates the aggregated plugin health snapshot.
// Scope: Unit Test
// Security: Operational visibility of event delivery
// Expected: Each plugin is reported by name with its own health state.
// Test Case ID: BUS-06
func TestBus_Health(t *testing.T) {
	mem := NewMemoryLogger(10)
	failing := &failingPlugin{}
	bus := NewBus(AllowAll(), mem, failing)
	defer bus.Close()

	statuses := bus.Health(context.Background())
	if len(statuses) != 2 {
		t.Fatalf("got %d statuses, want 2", len(statuses))
	}

	byName := make(map[string]bool, len(statuses))
	for _, s := range statuses {
		byName[s.Name] = s.Healthy
	}
	if !byName["memory"] {
		t.Error("memory plugin must report healthy")
	}
	if healthy, ok := byName["failing"]; !ok || healthy {
		t.Error("failing plugin must report unhealthy")
	}
}
