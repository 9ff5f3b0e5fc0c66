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

// Package events is the best-effort event fabric: domain events are wrapped
// in transport envelopes and fanned out to zero or more plugins. Publication
// never blocks or fails the producing OAuth flow.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Type identifies a domain event on the wire.
type Type string

// Event types
const (
	TypeAuthorizationCodeCreated   Type = "authorization_code_created"
	TypeAuthorizationCodeValidated Type = "authorization_code_validated"
	TypeAuthorizationCodeExpired   Type = "authorization_code_expired"
	TypeTokenCreated               Type = "token_created"
	TypeTokenValidated             Type = "token_validated"
	TypeTokenExpired               Type = "token_expired"
	TypeTokenRevoked               Type = "token_revoked"
	TypeClientRegistered           Type = "client_registered"
	TypeClientValidated            Type = "client_validated"
)

// Severity classifies an event for downstream consumers.
type Severity string

// Severity levels
const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// AuthEvent is a single auth-domain occurrence. The ID is assigned at
// creation and doubles as the idempotency fallback when no explicit key
// travels with the envelope.
type AuthEvent struct {
	ID        string            `json:"id"`
	Type      Type              `json:"event_type"`
	Severity  Severity          `json:"severity"`
	UserID    string            `json:"user_id,omitempty"`
	ClientID  string            `json:"client_id,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// New creates an event with a fresh ID and the current timestamp.
func New(t Type, severity Severity) *AuthEvent {
	return &AuthEvent{
		ID:        uuid.NewString(),
		Type:      t,
		Severity:  severity,
		Timestamp: time.Now().UTC(),
	}
}

// WithUser binds the event to a resource owner.
func (e *AuthEvent) WithUser(userID string) *AuthEvent {
	e.UserID = userID
	return e
}

// WithClient binds the event to an OAuth client.
func (e *AuthEvent) WithClient(clientID string) *AuthEvent {
	e.ClientID = clientID
	return e
}

// WithMetadata attaches a free-form key/value pair.
func (e *AuthEvent) WithMetadata(key, value string) *AuthEvent {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}
