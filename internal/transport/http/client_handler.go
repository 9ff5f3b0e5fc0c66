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

	"github.com/keygate/keygate/internal/oauth2"
)

// ClientCredentials is the one-time registration response. The secret is
// never retrievable again; the stored client only keeps it for comparison.
type ClientCredentials struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// RegisterClient handles OAuth2 client registration
// @Summary Register Client
// @Description Register a new OAuth2 client. The client_secret is returned exactly once.
// @Tags Client Management
// @Accept json
// @Produce json
// @Param registration body oauth2.ClientRegistration true "Client registration"
// @Success 201 {object} ClientCredentials
// @Failure 400 {object} oauth2.Error
// @Router /clients [post]
func (h *Handler) RegisterClient(w http.ResponseWriter, r *http.Request) {
	var reg oauth2.ClientRegistration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
		h.respondOAuthError(w, oauth2.NewError(oauth2.ErrInvalidRequest, "Invalid request body"))
		return
	}

	client, err := h.oauth2Service.RegisterClient(r.Context(), &reg)
	if err != nil {
		h.respondOAuthError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, ClientCredentials{
		ClientID:     client.ClientID,
		ClientSecret: client.ClientSecret,
	})
}
