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

// Package tracing wires the process-global OpenTelemetry trace pipeline.
// Export goes over OTLP/HTTP; the endpoint and headers come from the
// standard OTEL_EXPORTER_OTLP_* environment variables.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// Config holds tracing configuration.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	SamplingRate   float64
}

// Tracer owns the installed tracer provider. The zero value is a working
// no-op tracer, so callers can always defer Shutdown regardless of how New
// returned.
type Tracer struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
}

// New installs the global trace pipeline. When disabled, or when the
// exporter cannot be built, it returns a no-op Tracer; the error in the
// latter case tells the caller the pipeline is dark, but the returned value
// is still safe to use.
func New(ctx context.Context, cfg Config) (*Tracer, error) {
	noop := &Tracer{tracer: otel.Tracer(cfg.ServiceName)}
	if !cfg.Enabled {
		return noop, nil
	}

	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return noop, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	))
	if err != nil {
		return noop, fmt.Errorf("failed to build resource: %w", err)
	}

	// Child spans follow their parent's decision; the ratio only applies to
	// new roots, so one request never produces a partially sampled trace.
	sampler := sdktrace.ParentBased(sdktrace.TraceIDRatioBased(clampRate(cfg.SamplingRate)))

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Tracer{
		tracer:   provider.Tracer(cfg.ServiceName),
		provider: provider,
	}, nil
}

func clampRate(rate float64) float64 {
	if rate <= 0 || rate > 1 {
		return 1.0
	}
	return rate
}

// Start opens a span under the caller's context.
func (t *Tracer) Start(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, spanName, opts...)
}

// Shutdown flushes buffered spans. No-op tracers have nothing to flush.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}
