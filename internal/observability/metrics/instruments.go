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

package metrics

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Instruments bundles the domain metrics the HTTP layer records. All of
// them degrade to noops when metrics are disabled, so handlers never
// branch on configuration.
type Instruments struct {
	TokensIssued     metric.Int64Counter
	GrantFailures    metric.Int64Counter
	CodesIssued      metric.Int64Counter
	IngestAccepted   metric.Int64Counter
	IngestDuplicates metric.Int64Counter
	RequestDuration  metric.Float64Histogram
}

// NewInstruments registers the domain instruments on the meter.
func NewInstruments(m *Meter) (*Instruments, error) {
	tokensIssued, err := m.CreateCounter("keygate.oauth.tokens_issued",
		"Access tokens minted across all grants")
	if err != nil {
		return nil, fmt.Errorf("failed to create instruments: %w", err)
	}
	grantFailures, err := m.CreateCounter("keygate.oauth.grant_failures",
		"Token requests rejected with a protocol error")
	if err != nil {
		return nil, fmt.Errorf("failed to create instruments: %w", err)
	}
	codesIssued, err := m.CreateCounter("keygate.oauth.codes_issued",
		"Authorization codes minted")
	if err != nil {
		return nil, fmt.Errorf("failed to create instruments: %w", err)
	}
	ingestAccepted, err := m.CreateCounter("keygate.events.ingest_accepted",
		"Externally ingested events accepted for dispatch")
	if err != nil {
		return nil, fmt.Errorf("failed to create instruments: %w", err)
	}
	ingestDuplicates, err := m.CreateCounter("keygate.events.ingest_duplicates",
		"Externally ingested events dropped as idempotency replays")
	if err != nil {
		return nil, fmt.Errorf("failed to create instruments: %w", err)
	}
	requestDuration, err := m.CreateHistogram("keygate.http.request_duration",
		"End-to-end HTTP request latency", "ms")
	if err != nil {
		return nil, fmt.Errorf("failed to create instruments: %w", err)
	}

	return &Instruments{
		TokensIssued:     tokensIssued,
		GrantFailures:    grantFailures,
		CodesIssued:      codesIssued,
		IngestAccepted:   ingestAccepted,
		IngestDuplicates: ingestDuplicates,
		RequestDuration:  requestDuration,
	}, nil
}

// NoopInstruments registers the instruments against the globally installed
// meter provider, which is a no-op unless the process configured one. Used
// when metrics are disabled and in tests.
func NoopInstruments() *Instruments {
	ins, _ := NewInstruments(&Meter{meter: otel.Meter("noop")})
	return ins
}
