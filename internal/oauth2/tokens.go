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

package oauth2

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/keygate/keygate/internal/audit"
	"github.com/keygate/keygate/internal/events"
)

// IntrospectionResponse is the RFC 7662 Section 2.2 introspection result.
// Inactive tokens carry only active=false; nothing else leaks.
type IntrospectionResponse struct {
	Active    bool   `json:"active"`
	Scope     string `json:"scope,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	Exp       int64  `json:"exp,omitempty"`
	Iat       int64  `json:"iat,omitempty"`
	Sub       string `json:"sub,omitempty"`
	Aud       string `json:"aud,omitempty"`
}

// createToken signs and persists an access token (and optionally a refresh
// token) for the subject. userID is nil for client_credentials issuance.
func (s *Service) createToken(ctx context.Context, userID *string, clientID, scope string, includeRefresh bool) (*Token, error) {
	subject := clientID
	if userID != nil && *userID != "" {
		subject = *userID
	}

	accessToken, err := s.signer.Sign(subject, clientID, scope, s.accessTokenLifetime)
	if err != nil {
		return nil, NewError(ErrServerError, "failed to issue access token")
	}

	var refreshToken *string
	if includeRefresh {
		rt, err := s.signer.Sign(subject, clientID, scope, s.refreshTokenLifetime)
		if err != nil {
			return nil, NewError(ErrServerError, "failed to issue refresh token")
		}
		refreshToken = &rt
	}

	now := time.Now()
	token := &Token{
		ID:           newID(),
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.accessTokenLifetime.Seconds()),
		Scope:        scope,
		ClientID:     clientID,
		UserID:       userID,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.accessTokenLifetime),
		Revoked:      false,
	}

	if err := s.store.SaveToken(ctx, token); err != nil {
		return nil, storeError(err, "failed to persist token")
	}

	ev := events.New(events.TypeTokenCreated, events.SeverityInfo).
		WithClient(clientID).
		WithMetadata("scope", scope).
		WithMetadata("has_refresh_token", strconv.FormatBool(includeRefresh))
	if userID != nil {
		ev = ev.WithUser(*userID)
	}
	s.events.Emit(ctx, ev)

	return token, nil
}

// ValidateToken resolves a raw bearer credential to its active token record.
// Input is normalized first: surrounding whitespace and an optional
// "Bearer " prefix are stripped.
func (s *Service) ValidateToken(ctx context.Context, raw string) (*Token, error) {
	normalized := normalizeBearer(raw)

	token, err := s.store.GetTokenByAccessToken(ctx, normalized)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return nil, NewError(ErrInvalidGrant, "Token not found")
		}
		return nil, storeError(err, "failed to load token")
	}

	if !token.IsValid() {
		ev := events.New(events.TypeTokenExpired, events.SeverityWarning).WithClient(token.ClientID)
		if token.UserID != nil {
			ev = ev.WithUser(*token.UserID)
		}
		s.events.Emit(ctx, ev)
		return nil, NewError(ErrInvalidGrant, "Token is expired or revoked")
	}

	ev := events.New(events.TypeTokenValidated, events.SeverityInfo).WithClient(token.ClientID)
	if token.UserID != nil {
		ev = ev.WithUser(*token.UserID)
	}
	s.events.Emit(ctx, ev)

	return token, nil
}

// RevokeToken revokes by access-token or refresh-token match. Idempotent:
// revoking an unknown or already-revoked credential succeeds quietly
// (RFC 7009 Section 2.2).
func (s *Service) RevokeToken(ctx context.Context, raw string) error {
	normalized := normalizeBearer(raw)

	// Fetch first so the revocation event can name the principal. The
	// lookup only matches access tokens; revocation by refresh token still
	// proceeds below, just without an event.
	existing, err := s.store.GetTokenByAccessToken(ctx, normalized)
	if err != nil && !errors.Is(err, ErrTokenNotFound) {
		return storeError(err, "failed to load token")
	}

	if err := s.store.RevokeToken(ctx, normalized); err != nil {
		return storeError(err, "failed to revoke token")
	}

	if existing != nil {
		ev := events.New(events.TypeTokenRevoked, events.SeverityInfo).WithClient(existing.ClientID)
		if existing.UserID != nil {
			ev = ev.WithUser(*existing.UserID)
		}
		s.events.Emit(ctx, ev)

		s.audit.Log(ctx, audit.Event{
			Type:     audit.TypeTokenRevoked,
			ActorID:  existing.Subject(),
			Resource: "token",
			Metadata: map[string]any{"client_id": existing.ClientID},
		})
	}

	return nil
}

// Introspect implements RFC 7662: any failure collapses to active=false.
func (s *Service) Introspect(ctx context.Context, raw string) *IntrospectionResponse {
	token, err := s.ValidateToken(ctx, raw)
	if err != nil {
		return &IntrospectionResponse{Active: false}
	}

	return &IntrospectionResponse{
		Active:    true,
		Scope:     token.Scope,
		ClientID:  token.ClientID,
		TokenType: token.TokenType,
		Exp:       token.ExpiresAt.Unix(),
		Iat:       token.CreatedAt.Unix(),
		Sub:       token.Subject(),
		Aud:       token.ClientID,
	}
}

func normalizeBearer(raw string) string {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(trimmed, "Bearer ")
	return strings.TrimSpace(trimmed)
}
