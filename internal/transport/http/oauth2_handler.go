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
	"log/slog"
	"net/http"
	"net/url"

	"github.com/keygate/keygate/internal/oauth2"
	"github.com/keygate/keygate/internal/observability/logger"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Authorize starts the authorization-code flow
// @Summary OAuth2 Authorize Endpoint
// @Description Starts the authorization code flow (RFC 6749 Section 4.1.1). PKCE S256 is mandatory.
// @Tags OAuth2
// @Produce json
// @Param response_type query string true "Response Type (must be 'code')"
// @Param client_id query string true "Client ID"
// @Param redirect_uri query string true "Redirect URI"
// @Param scope query string false "Scopes (space separated)"
// @Param state query string false "Opaque client state"
// @Param code_challenge query string true "PKCE Challenge"
// @Param code_challenge_method query string true "PKCE Method (must be 'S256')"
// @Success 302 {string} string "Redirects to the registered callback with code and state"
// @Failure 400 {object} oauth2.Error
// @Failure 401 {object} oauth2.Error
// @Router /oauth/authorize [get]
func (h *Handler) Authorize(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if hasDuplicateParams(query) {
		h.respondOAuthError(w, oauth2.NewError(oauth2.ErrInvalidRequest, "Duplicate query parameters are not allowed"))
		return
	}

	req := &oauth2.AuthorizeRequest{
		ClientID:            query.Get("client_id"),
		RedirectURI:         query.Get("redirect_uri"),
		ResponseType:        query.Get("response_type"),
		Scope:               query.Get("scope"),
		State:               query.Get("state"),
		CodeChallenge:       query.Get("code_challenge"),
		CodeChallengeMethod: query.Get("code_challenge_method"),
	}

	// Failures answer the caller directly. Redirecting protocol errors to an
	// unvalidated redirect_uri would turn this endpoint into an open redirect.
	code, err := h.oauth2Service.Authorize(r.Context(), req)
	if err != nil {
		slog.WarnContext(r.Context(), "authorize request rejected",
			logger.Error(err),
			logger.ClientID(req.ClientID),
			logger.RedirectURI(req.RedirectURI),
		)
		h.respondOAuthError(w, err)
		return
	}

	h.instruments.CodesIssued.Add(r.Context(), 1)

	redirect, err := buildCodeRedirect(req.RedirectURI, code.Code, req.State)
	if err != nil {
		h.respondOAuthError(w, err)
		return
	}

	setAuthResponseHeaders(w)
	http.Redirect(w, r, redirect, http.StatusFound)
}

// Token issues tokens for the supported grants
// @Summary OAuth2 Token Endpoint
// @Description Exchange an authorization code or client credentials for an access token (RFC 6749)
// @Tags OAuth2
// @Accept x-www-form-urlencoded
// @Produce json
// @Param grant_type formData string true "Grant Type (authorization_code or client_credentials)"
// @Param code formData string false "Authorization Code (authorization_code grant)"
// @Param redirect_uri formData string false "Redirect URI bound to the code"
// @Param client_id formData string false "Client ID (if not Basic Auth)"
// @Param client_secret formData string false "Client Secret (if not Basic Auth)"
// @Param code_verifier formData string false "PKCE Verifier"
// @Param scope formData string false "Scope (client_credentials grant)"
// @Success 200 {object} oauth2.TokenResponse
// @Failure 400 {object} oauth2.Error
// @Failure 401 {object} oauth2.Error
// @Router /oauth/token [post]
func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	if hasDuplicateParams(r.URL.Query()) {
		h.respondOAuthError(w, oauth2.NewError(oauth2.ErrInvalidRequest, "Duplicate query parameters are not allowed"))
		return
	}
	if err := r.ParseForm(); err != nil {
		h.respondOAuthError(w, oauth2.NewError(oauth2.ErrInvalidRequest, "Malformed form body"))
		return
	}
	if hasDuplicateParams(r.PostForm) {
		h.respondOAuthError(w, oauth2.NewError(oauth2.ErrInvalidRequest, "Duplicate form parameters are not allowed"))
		return
	}

	form := r.PostForm
	if vals, ok := form["redirect_uri"]; ok && len(vals) > 0 && vals[0] == "" {
		h.respondOAuthError(w, oauth2.NewError(oauth2.ErrInvalidRequest, "redirect_uri must not be empty"))
		return
	}

	clientID := form.Get("client_id")
	clientSecret := form.Get("client_secret")

	// Support Basic Auth (RFC 6749 Section 2.3.1)
	if clientID == "" {
		if username, password, ok := r.BasicAuth(); ok {
			clientID = username
			clientSecret = password
		}
	}

	req := &oauth2.TokenRequest{
		GrantType:    form.Get("grant_type"),
		Code:         form.Get("code"),
		RedirectURI:  form.Get("redirect_uri"),
		ClientID:     clientID,
		ClientSecret: clientSecret,
		CodeVerifier: form.Get("code_verifier"), // RFC 7636 Section 4.5
		Scope:        form.Get("scope"),
	}

	resp, err := h.oauth2Service.Token(r.Context(), req)
	if err != nil {
		h.instruments.GrantFailures.Add(r.Context(), 1, metric.WithAttributes(
			attribute.String("grant_type", req.GrantType),
		))
		slog.WarnContext(r.Context(), "token request failed",
			logger.Error(err),
			logger.GrantType(req.GrantType),
			logger.ClientID(req.ClientID),
		)
		h.respondOAuthError(w, err)
		return
	}

	h.instruments.TokensIssued.Add(r.Context(), 1, metric.WithAttributes(
		attribute.String("grant_type", req.GrantType),
	))

	// Prevent caching (RFC 6749 Section 5.1)
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")

	respondJSON(w, http.StatusOK, resp)
}

// Introspect reports the state of a token
// @Summary Introspect Token
// @Description Returns the active state and metadata of a token (RFC 7662)
// @Tags OAuth2
// @Accept x-www-form-urlencoded
// @Produce json
// @Param token formData string true "Token to introspect"
// @Success 200 {object} oauth2.IntrospectionResponse
// @Failure 400 {object} oauth2.Error
// @Router /oauth/introspect [post]
func (h *Handler) Introspect(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.respondOAuthError(w, oauth2.NewError(oauth2.ErrInvalidRequest, "Malformed form body"))
		return
	}

	token := r.PostForm.Get("token")
	if token == "" {
		h.respondOAuthError(w, oauth2.NewError(oauth2.ErrInvalidRequest, "Missing token"))
		return
	}

	// RFC 7662 Section 2.2: anything but a live token collapses to
	// {"active": false} with no further detail.
	resp := h.oauth2Service.Introspect(r.Context(), token)

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")

	respondJSON(w, http.StatusOK, resp)
}

// Revoke invalidates a token
// @Summary Revoke Token
// @Description Revokes an access or refresh token (RFC 7009). Idempotent.
// @Tags OAuth2
// @Accept x-www-form-urlencoded
// @Produce json
// @Param token formData string true "Token to revoke"
// @Success 200 {string} string "OK"
// @Failure 400 {object} oauth2.Error
// @Router /oauth/revoke [post]
func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.respondOAuthError(w, oauth2.NewError(oauth2.ErrInvalidRequest, "Malformed form body"))
		return
	}

	token := r.PostForm.Get("token")
	if token == "" {
		h.respondOAuthError(w, oauth2.NewError(oauth2.ErrInvalidRequest, "Missing token"))
		return
	}

	if err := h.oauth2Service.RevokeToken(r.Context(), token); err != nil {
		slog.ErrorContext(r.Context(), "revocation failed", logger.Error(err), logger.TokenPrefix(token))
		h.respondOAuthError(w, err)
		return
	}

	// RFC 7009 Section 2.2: 200 whether or not the token was known.
	w.WriteHeader(http.StatusOK)
}

// hasDuplicateParams reports whether any parameter name appears more than
// once in the parsed set. Duplicate parameters make request parsing
// ambiguous and are rejected outright.
func hasDuplicateParams(values url.Values) bool {
	for _, vals := range values {
		if len(vals) > 1 {
			return true
		}
	}
	return false
}

// buildCodeRedirect appends code and state to the validated redirect URI
// with proper URL encoding, preserving any query the client registered.
func buildCodeRedirect(redirectURI, code, state string) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil || !u.IsAbs() {
		return "", oauth2.NewError(oauth2.ErrInvalidRequest, "Invalid redirect_uri")
	}
	if u.Fragment != "" {
		return "", oauth2.NewError(oauth2.ErrInvalidRequest, "redirect_uri must not contain a fragment")
	}

	q := u.Query()
	q.Set("code", code)
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// setAuthResponseHeaders applies the no-store and anti-framing headers the
// authorization response must carry (OAuth 2.0 Security BCP).
func setAuthResponseHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "frame-ancestors 'none'")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}

// respondOAuthError serializes a protocol error onto the wire. Untyped
// errors are sanitized first so backend detail never reaches a client.
func (h *Handler) respondOAuthError(w http.ResponseWriter, err error) {
	oe := oauth2.AsError(err)

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")

	respondJSON(w, oe.HTTPStatus(), oe)
}
