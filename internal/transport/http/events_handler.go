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

package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/keygate/keygate/internal/events"
)

// IngestResponse acknowledges an ingested envelope.
type IngestResponse struct {
	Status         string `json:"status"`
	IdempotencyKey string `json:"idempotency_key"`
	EventID        string `json:"event_id"`
}

// IngestEvent accepts an externally produced event envelope
// @Summary Ingest Event
// @Description Accepts an event envelope from an external producer. Deduplicated by idempotency key before dispatch; callers should set the Idempotency-Key header.
// @Tags Events
// @Accept json
// @Produce json
// @Param Idempotency-Key header string false "Deduplication key; wins over the body key and the event id"
// @Param envelope body events.Envelope true "Event envelope"
// @Success 202 {object} IngestResponse
// @Failure 400 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /events/ingest [post]
func (h *Handler) IngestEvent(w http.ResponseWriter, r *http.Request) {
	if !h.eventsEnabled {
		respondError(w, http.StatusServiceUnavailable, "eventing_disabled")
		return
	}

	var envelope events.Envelope
	if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if envelope.Event.ID == "" || envelope.Event.Type == "" {
		respondError(w, http.StatusBadRequest, "event id and event_type are required")
		return
	}

	if key := strings.TrimSpace(r.Header.Get("Idempotency-Key")); key != "" {
		envelope = envelope.WithIdempotencyKey(key)
	}

	effectiveKey := envelope.EffectiveIdempotencyKey()

	if h.idempotency.IsDuplicateAndRecord(effectiveKey) {
		h.instruments.IngestDuplicates.Add(r.Context(), 1)
		respondJSON(w, http.StatusAccepted, IngestResponse{
			Status:         "duplicate",
			IdempotencyKey: effectiveKey,
			EventID:        envelope.Event.ID,
		})
		return
	}

	h.bus.PublishBestEffort(r.Context(), envelope)
	h.instruments.IngestAccepted.Add(r.Context(), 1)

	respondJSON(w, http.StatusAccepted, IngestResponse{
		Status:         "accepted",
		IdempotencyKey: effectiveKey,
		EventID:        envelope.Event.ID,
	})
}

// EventsHealthResponse reports the fabric state and per-plugin health.
type EventsHealthResponse struct {
	Enabled bool                  `json:"enabled"`
	Plugins []events.PluginHealth `json:"plugins"`
}

// EventsHealth reports event fabric health
// @Summary Events Health
// @Description Reports whether eventing is enabled and each plugin's delivery health
// @Tags Events
// @Produce json
// @Success 200 {object} EventsHealthResponse
// @Router /events/health [get]
func (h *Handler) EventsHealth(w http.ResponseWriter, r *http.Request) {
	if !h.eventsEnabled {
		respondJSON(w, http.StatusOK, EventsHealthResponse{
			Enabled: false,
			Plugins: []events.PluginHealth{},
		})
		return
	}

	respondJSON(w, http.StatusOK, EventsHealthResponse{
		Enabled: true,
		Plugins: h.bus.Health(r.Context()),
	})
}
