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
	"errors"
	"strings"
	"time"
)

// Domain errors (internal). Handlers translate these into protocol errors.
var (
	ErrClientNotFound = errors.New("client not found")
	ErrUserNotFound   = errors.New("user not found")
	ErrCodeNotFound   = errors.New("authorization code not found")
	ErrTokenNotFound  = errors.New("token not found")

	// ErrDuplicateKey is returned by storage backends when an insert
	// violates a uniqueness constraint. Every backend maps its native
	// violation error onto this sentinel so callers see one shape.
	ErrDuplicateKey = errors.New("duplicate key")
)

// Grant types supported by the server. password and refresh_token are
// recognized on the wire but deliberately disabled.
const (
	GrantAuthorizationCode = "authorization_code"
	GrantClientCredentials = "client_credentials"
)

// SupportedGrantTypes lists every grant a client may register for.
var SupportedGrantTypes = []string{GrantAuthorizationCode, GrantClientCredentials}

// PKCE challenge methods (RFC 7636 Section 4.2).
const (
	PKCEMethodS256  = "S256"
	PKCEMethodPlain = "plain"
)

// Client represents a registered OAuth2 client application.
type Client struct {
	ID           string    `json:"id"`
	ClientID     string    `json:"client_id"`
	ClientSecret string    `json:"-"`
	RedirectURIs []string  `json:"redirect_uris"`
	GrantTypes   []string  `json:"grant_types"`
	Scope        string    `json:"scope"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SupportsGrantType checks if the client is registered for a grant type
func (c *Client) SupportsGrantType(grantType string) bool {
	for _, gt := range c.GrantTypes {
		if gt == grantType {
			return true
		}
	}
	return false
}

// ValidateRedirectURI checks if the redirect URI is allowed for this client.
// Exact string match only (RFC 6749 Section 3.1.2.3).
func (c *Client) ValidateRedirectURI(redirectURI string) bool {
	for _, uri := range c.RedirectURIs {
		if uri == redirectURI {
			return true
		}
	}
	return false
}

// ValidateScope checks if every requested scope is within the client's
// registered scope set. Both sides split on whitespace.
func (c *Client) ValidateScope(requestedScope string) bool {
	allowed := make(map[string]struct{})
	for _, s := range strings.Fields(c.Scope) {
		allowed[s] = struct{}{}
	}

	for _, s := range strings.Fields(requestedScope) {
		if _, ok := allowed[s]; !ok {
			return false
		}
	}
	return true
}

// User represents a resource owner
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Email        string    `json:"email"`
	Enabled      bool      `json:"enabled"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// AuthorizationCode represents a short-lived, single-use authorization code
type AuthorizationCode struct {
	ID                  string    `json:"id"`
	Code                string    `json:"code"`
	ClientID            string    `json:"client_id"`
	UserID              string    `json:"user_id"`
	RedirectURI         string    `json:"redirect_uri"`
	Scope               string    `json:"scope"`
	CreatedAt           time.Time `json:"created_at"`
	ExpiresAt           time.Time `json:"expires_at"`
	Used                bool      `json:"used"`
	CodeChallenge       string    `json:"code_challenge,omitempty"`
	CodeChallengeMethod string    `json:"code_challenge_method,omitempty"`
}

// IsExpired checks if the authorization code has expired
func (a *AuthorizationCode) IsExpired() bool {
	return time.Now().After(a.ExpiresAt)
}

// Token represents an issued access token and its optional refresh token.
// UserID is nil for tokens issued through the client_credentials grant.
type Token struct {
	ID           string    `json:"id"`
	AccessToken  string    `json:"access_token"`
	RefreshToken *string   `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int       `json:"expires_in"`
	Scope        string    `json:"scope"`
	ClientID     string    `json:"client_id"`
	UserID       *string   `json:"user_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	Revoked      bool      `json:"revoked"`
}

// IsExpired checks if the access token has expired
func (t *Token) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

// IsValid reports whether the token is neither revoked nor expired.
func (t *Token) IsValid() bool {
	return !t.Revoked && !t.IsExpired()
}

// Subject returns the principal the token was issued to: the user when
// present, otherwise the client itself.
func (t *Token) Subject() string {
	if t.UserID != nil && *t.UserID != "" {
		return *t.UserID
	}
	return t.ClientID
}
