// Copyright 2026 The Keygate Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package events

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// DefaultProducer names envelopes produced by this process.
const DefaultProducer = "keygate"

// Envelope wraps an event for transport. It carries W3C trace context as
// explicit string fields so correlation survives async boundaries and
// process hops; ambient context does not travel with queued work.
type Envelope struct {
	Event AuthEvent `json:"event"`

	// IdempotencyKey deduplicates retries. External producers should send
	// one; when absent the event ID serves as the key.
	IdempotencyKey string `json:"idempotency_key,omitempty"`

	Traceparent string `json:"traceparent,omitempty"`
	Tracestate  string `json:"tracestate,omitempty"`

	// CorrelationID identifies the producing request or job.
	CorrelationID string `json:"correlation_id"`

	// Producer is the logical service or subsystem that created the envelope.
	Producer string `json:"producer"`

	ProducedAt time.Time `json:"produced_at"`

	// Attributes is extension metadata for future backends.
	Attributes map[string]string `json:"attributes,omitempty"`
}

// NewEnvelope wraps an event, capturing the caller's trace context into the
// traceparent/tracestate fields via the installed propagator.
func NewEnvelope(ctx context.Context, event AuthEvent, producer string) Envelope {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	return Envelope{
		Event:         event,
		Traceparent:   carrier.Get("traceparent"),
		Tracestate:    carrier.Get("tracestate"),
		CorrelationID: uuid.NewString(),
		Producer:      producer,
		ProducedAt:    time.Now().UTC(),
	}
}

// WithIdempotencyKey sets an explicit deduplication key.
func (e Envelope) WithIdempotencyKey(key string) Envelope {
	e.IdempotencyKey = key
	return e
}

// WithAttribute attaches extension metadata.
func (e Envelope) WithAttribute(key, value string) Envelope {
	attrs := make(map[string]string, len(e.Attributes)+1)
	for k, v := range e.Attributes {
		attrs[k] = v
	}
	attrs[key] = value
	e.Attributes = attrs
	return e
}

// EffectiveIdempotencyKey resolves the deduplication key: the explicit
// envelope key when non-blank, else the event ID.
func (e *Envelope) EffectiveIdempotencyKey() string {
	if k := strings.TrimSpace(e.IdempotencyKey); k != "" {
		return k
	}
	return e.Event.ID
}
