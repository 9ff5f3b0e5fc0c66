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
	"fmt"
	"net/http"
)

// Error represents a protocol-level OAuth2 error (RFC 6749 Section 5.2).
type Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	URI         string `json:"error_uri,omitempty"`
	State       string `json:"state,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("oauth2 error: %s (%s)", e.Code, e.Description)
}

// OAuth2 Standard Error Codes
const (
	ErrInvalidRequest       = "invalid_request"
	ErrInvalidClient        = "invalid_client"
	ErrInvalidGrant         = "invalid_grant"
	ErrUnauthorizedClient   = "unauthorized_client"
	ErrAccessDenied         = "access_denied"
	ErrUnsupportedGrantType = "unsupported_grant_type"
	ErrInvalidScope         = "invalid_scope"
	ErrServerError          = "server_error"
)

// NewError creates a new protocol error
func NewError(code, description string) *Error {
	return &Error{
		Code:        code,
		Description: description,
	}
}

// WithState attaches a state parameter to the error
func (e *Error) WithState(state string) *Error {
	e.State = state
	return e
}

// HTTPStatus maps the error code onto the wire status. invalid_client
// authenticates the caller and is the only 401; access_denied is the only
// 403; everything else, server_error included, is a plain 400.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case ErrInvalidClient:
		return http.StatusUnauthorized
	case ErrAccessDenied:
		return http.StatusForbidden
	default:
		return http.StatusBadRequest
	}
}

// AsError coerces any error into a protocol error. Typed protocol errors
// pass through, storage uniqueness violations become the canonical
// invalid_request, and everything else is sanitized into a server_error so
// raw backend messages never reach a client.
func AsError(err error) *Error {
	var oe *Error
	if errors.As(err, &oe) {
		return oe
	}
	if errors.Is(err, ErrDuplicateKey) {
		return NewError(ErrInvalidRequest, "duplicate key")
	}
	return NewError(ErrServerError, "internal error")
}
