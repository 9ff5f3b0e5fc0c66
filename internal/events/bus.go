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
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/keygate/keygate/internal/observability/logger"
)

// ErrBusClosed is returned by Publish after Close.
var ErrBusClosed = errors.New("event bus is closed")

var publishFailures metric.Int64Counter

func init() {
	meter := otel.Meter("github.com/keygate/keygate/internal/events")
	publishFailures, _ = meter.Int64Counter("keygate.events.publish_failures",
		metric.WithDescription("Envelope deliveries that a plugin rejected"))
}

const (
	defaultQueueDepth     = 1024
	defaultPublishTimeout = 2 * time.Second
)

// Bus fans envelopes out to plugins from a single dispatch goroutine.
// Publication is best-effort: plugin failures are logged, never returned to
// the producing flow, and one plugin's failure does not block the others.
type Bus struct {
	plugins  []Plugin
	filter   Filter
	producer string

	ch        chan Envelope
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewBus starts the dispatch loop over the given plugins.
func NewBus(filter Filter, plugins ...Plugin) *Bus {
	b := &Bus{
		plugins:  plugins,
		filter:   filter,
		producer: DefaultProducer,
		ch:       make(chan Envelope, defaultQueueDepth),
		done:     make(chan struct{}),
	}
	b.wg.Add(1)
	go b.loop()
	return b
}

// Publish enqueues an envelope for dispatch, blocking while the queue is
// full. Most callers want PublishBestEffort instead.
func (b *Bus) Publish(ctx context.Context, envelope Envelope) error {
	select {
	case b.ch <- envelope:
		return nil
	case <-b.done:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishBestEffort hands the envelope to a detached goroutine and returns
// immediately. Failures are logged after an internal timeout; the caller
// never observes them.
func (b *Bus) PublishBestEffort(ctx context.Context, envelope Envelope) {
	// Detach from request cancellation but keep context values so trace
	// correlation survives in the failure log line.
	ctx = context.WithoutCancel(ctx)
	go func() {
		pctx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
		defer cancel()
		if err := b.Publish(pctx, envelope); err != nil {
			slog.WarnContext(pctx, "event publish failed (best-effort)",
				logger.Component("events"),
				logger.Error(err),
				"event_type", envelope.Event.Type)
		}
	}()
}

// Emit wraps a domain event in an envelope carrying the caller's trace
// context and publishes it best-effort. This is the producer entry point for
// the grant engine.
func (b *Bus) Emit(ctx context.Context, ev *AuthEvent) {
	if ev == nil {
		return
	}
	b.PublishBestEffort(ctx, NewEnvelope(ctx, *ev, b.producer))
}

// Health snapshots every plugin's delivery health.
func (b *Bus) Health(ctx context.Context) []PluginHealth {
	statuses := make([]PluginHealth, 0, len(b.plugins))
	for _, p := range b.plugins {
		statuses = append(statuses, PluginHealth{Name: p.Name(), Healthy: p.Health(ctx)})
	}
	return statuses
}

// Close stops accepting envelopes, drains what is already queued, and closes
// plugins that hold connections.
func (b *Bus) Close() error {
	b.closeOnce.Do(func() { close(b.done) })
	b.wg.Wait()

	var errs []error
	for _, p := range b.plugins {
		if closer, ok := p.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (b *Bus) loop() {
	defer b.wg.Done()
	for {
		select {
		case envelope := <-b.ch:
			b.dispatch(envelope)
		case <-b.done:
			for {
				select {
				case envelope := <-b.ch:
					b.dispatch(envelope)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) dispatch(envelope Envelope) {
	if !b.filter.Allows(envelope.Event.Type) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultPublishTimeout)
	defer cancel()

	for _, p := range b.plugins {
		if err := p.Emit(ctx, &envelope); err != nil {
			publishFailures.Add(ctx, 1, metric.WithAttributes(
				attribute.String("plugin", p.Name()),
				attribute.String("event_type", string(envelope.Event.Type))))
			slog.Warn("event plugin emit failed",
				logger.Component("events"),
				logger.Error(err),
				"plugin", p.Name(),
				"event_type", envelope.Event.Type,
				"event_id", envelope.Event.ID)
		}
	}
}
