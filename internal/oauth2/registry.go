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
	"crypto/subtle"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/keygate/keygate/internal/audit"
	"github.com/keygate/keygate/internal/events"
)

// ClientRegistration carries the caller-supplied fields of a client
// registration request. Identifiers and the secret are server-generated.
type ClientRegistration struct {
	RedirectURIs []string `json:"redirect_uris"`
	GrantTypes   []string `json:"grant_types"`
	Scope        string   `json:"scope"`
	Name         string   `json:"name"`
}

// RegisterClient validates a registration, generates credentials, and
// persists the client. The returned Client carries the plaintext secret;
// this is the only time it is ever handed out.
func (s *Service) RegisterClient(ctx context.Context, reg *ClientRegistration) (*Client, error) {
	if len(reg.RedirectURIs) == 0 {
		return nil, NewError(ErrInvalidRequest, "redirect_uris must not be empty")
	}
	for _, uri := range reg.RedirectURIs {
		if err := validateRedirectURI(uri); err != nil {
			return nil, err
		}
	}

	if len(reg.GrantTypes) == 0 {
		return nil, NewError(ErrInvalidRequest, "grant_types must not be empty")
	}
	for _, gt := range reg.GrantTypes {
		supported := false
		for _, known := range SupportedGrantTypes {
			if gt == known {
				supported = true
				break
			}
		}
		if !supported {
			return nil, NewError(ErrInvalidRequest, "unsupported grant_type: "+gt)
		}
	}

	if strings.TrimSpace(reg.Scope) == "" {
		return nil, NewError(ErrInvalidRequest, "scope must not be empty")
	}

	now := time.Now()
	client := &Client{
		ID:           newID(),
		ClientID:     "client_" + newID(),
		ClientSecret: randomAlphanumeric(32),
		RedirectURIs: reg.RedirectURIs,
		GrantTypes:   reg.GrantTypes,
		Scope:        reg.Scope,
		Name:         reg.Name,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.SaveClient(ctx, client); err != nil {
		return nil, storeError(err, "failed to save client")
	}

	s.events.Emit(ctx, events.New(events.TypeClientRegistered, events.SeverityInfo).
		WithClient(client.ClientID).
		WithMetadata("client_name", client.Name).
		WithMetadata("scope", client.Scope))

	s.audit.Log(ctx, audit.Event{
		Type:     audit.TypeClientRegistered,
		ActorID:  client.ClientID,
		Resource: "client",
		Metadata: map[string]any{"name": client.Name, "scope": client.Scope},
	})

	return client, nil
}

// ValidateClient reports whether the presented secret matches the registered
// one. The comparison is constant-time; the submitted secret is never logged
// or attached to the emitted event.
func (s *Service) ValidateClient(ctx context.Context, clientID, clientSecret string) (bool, error) {
	client, err := s.getClient(ctx, clientID)
	if err != nil {
		return false, err
	}

	ok := subtle.ConstantTimeCompare([]byte(client.ClientSecret), []byte(clientSecret)) == 1

	s.events.Emit(ctx, events.New(events.TypeClientValidated, events.SeverityInfo).
		WithClient(clientID).
		WithMetadata("success", strconv.FormatBool(ok)))

	return ok, nil
}

// authenticateClient enforces the secret check inside the grant flows.
func (s *Service) authenticateClient(ctx context.Context, client *Client, clientSecret string) error {
	ok := subtle.ConstantTimeCompare([]byte(client.ClientSecret), []byte(clientSecret)) == 1

	s.events.Emit(ctx, events.New(events.TypeClientValidated, events.SeverityInfo).
		WithClient(client.ClientID).
		WithMetadata("success", strconv.FormatBool(ok)))

	if !ok {
		return NewError(ErrInvalidClient, "Invalid client_secret")
	}
	return nil
}

func (s *Service) getClient(ctx context.Context, clientID string) (*Client, error) {
	client, err := s.store.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, ErrClientNotFound) {
			return nil, NewError(ErrInvalidClient, "Client not found")
		}
		return nil, storeError(err, "failed to load client")
	}
	return client, nil
}

// validateRedirectURI rejects registration-time redirect URIs that could be
// abused at authorization time: relative URLs, fragments, header-injection
// characters, and script-bearing schemes.
func validateRedirectURI(uri string) error {
	if strings.ContainsAny(uri, "\r\n") {
		return NewError(ErrInvalidRequest, "redirect_uri must not contain control characters")
	}

	parsed, err := url.Parse(uri)
	if err != nil || !parsed.IsAbs() {
		return NewError(ErrInvalidRequest, "redirect_uri must be an absolute URL")
	}

	switch strings.ToLower(parsed.Scheme) {
	case "javascript", "data":
		return NewError(ErrInvalidRequest, "redirect_uri scheme is not allowed")
	}

	if parsed.Host == "" {
		return NewError(ErrInvalidRequest, "redirect_uri must be an absolute URL")
	}
	if parsed.Fragment != "" {
		return NewError(ErrInvalidRequest, "redirect_uri must not contain a fragment")
	}

	return nil
}
