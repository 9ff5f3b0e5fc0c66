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

// Package metrics wires the process-global OpenTelemetry metric pipeline
// and owns the domain instruments. Export goes over OTLP/HTTP configured by
// the standard OTEL_EXPORTER_OTLP_* environment variables.
package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// Config holds metrics configuration.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
}

// Meter owns the installed meter provider. The zero value registers
// instruments against the global provider, which is a no-op unless something
// else installed one, so callers can always defer Shutdown.
type Meter struct {
	meter    metric.Meter
	provider *sdkmetric.MeterProvider
}

// New installs the global metric pipeline. When disabled, or when the
// exporter cannot be built, it returns a Meter whose instruments are no-ops;
// the error in the latter case tells the caller the pipeline is dark, but
// the returned value is still safe to use.
func New(ctx context.Context, cfg Config) (*Meter, error) {
	noop := &Meter{meter: otel.Meter(cfg.ServiceName)}
	if !cfg.Enabled {
		return noop, nil
	}

	exporter, err := otlpmetrichttp.New(ctx)
	if err != nil {
		return noop, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	))
	if err != nil {
		return noop, fmt.Errorf("failed to build resource: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(provider)

	return &Meter{
		meter:    provider.Meter(cfg.ServiceName),
		provider: provider,
	}, nil
}

// Shutdown flushes and stops the periodic reader. No-op meters have nothing
// to flush.
func (m *Meter) Shutdown(ctx context.Context) error {
	if m == nil || m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}

// CreateCounter registers a monotonic counter on the meter.
func (m *Meter) CreateCounter(name, description string) (metric.Int64Counter, error) {
	counter, err := m.meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		return nil, fmt.Errorf("failed to create counter %s: %w", name, err)
	}
	return counter, nil
}

// CreateHistogram registers a histogram on the meter.
func (m *Meter) CreateHistogram(name, description, unit string) (metric.Float64Histogram, error) {
	histogram, err := m.meter.Float64Histogram(name,
		metric.WithDescription(description),
		metric.WithUnit(unit))
	if err != nil {
		return nil, fmt.Errorf("failed to create histogram %s: %w", name, err)
	}
	return histogram, nil
}
