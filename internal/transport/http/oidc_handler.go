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
	"net/http"
)

// Discovery returns the server metadata document
// @Summary Discovery
// @Description Returns the authorization server metadata (OIDC Discovery Section 4). Advertises only the supported flows; no jwks_uri is published for HMAC-signed tokens.
// @Tags OIDC
// @Produce json
// @Success 200 {object} oidc.DiscoveryMetadata
// @Router /.well-known/openid-configuration [get]
func (h *Handler) Discovery(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.oidcService.GetDiscoveryMetadata())
}
