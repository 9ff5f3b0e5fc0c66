// Package oidc builds the OpenID Connect discovery document. Only the
// discovery surface is implemented: tokens are HMAC-signed, so there is no
// key set to publish and no id_token issuance.
package oidc

import (
	"fmt"
	"strings"
)

// Service renders provider metadata for a fixed issuer.
type Service struct {
	issuer string
	scopes []string
}

// DiscoveryMetadata represents the provider configuration
// (OIDC Discovery Section 3, RFC 8414). jwks_uri is deliberately absent.
type DiscoveryMetadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	IntrospectionEndpoint             string   `json:"introspection_endpoint"`
	RevocationEndpoint                string   `json:"revocation_endpoint"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
	ScopesSupported                   []string `json:"scopes_supported"`
}

// NewService creates a new discovery service. The issuer is used verbatim
// as the endpoint prefix; a trailing slash is trimmed so the document never
// advertises double-slash paths. Nil scopes fall back to the read/write
// pair the demo clients register with.
func NewService(issuer string, scopes []string) *Service {
	if len(scopes) == 0 {
		scopes = []string{"read", "write"}
	}
	return &Service{
		issuer: strings.TrimSuffix(issuer, "/"),
		scopes: scopes,
	}
}

// GetDiscoveryMetadata returns the provider configuration. The grant and
// response type lists advertise exactly what the token and authorize
// endpoints accept: no implicit flow, no refresh_token grant, S256 only.
func (s *Service) GetDiscoveryMetadata() DiscoveryMetadata {
	return DiscoveryMetadata{
		Issuer:                            s.issuer,
		AuthorizationEndpoint:             fmt.Sprintf("%s/oauth/authorize", s.issuer),
		TokenEndpoint:                     fmt.Sprintf("%s/oauth/token", s.issuer),
		IntrospectionEndpoint:             fmt.Sprintf("%s/oauth/introspect", s.issuer),
		RevocationEndpoint:                fmt.Sprintf("%s/oauth/revoke", s.issuer),
		ResponseTypesSupported:            []string{"code"},
		GrantTypesSupported:               []string{"authorization_code", "client_credentials"},
		TokenEndpointAuthMethodsSupported: []string{"client_secret_post"},
		CodeChallengeMethodsSupported:     []string{"S256"},
		ScopesSupported:                   s.scopes,
	}
}
