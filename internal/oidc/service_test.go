package oidc

import (
	"encoding/json"
	"strings"
	"testing"
)

// TestPurpose: Validates the discovery document against what the endpoints actually accept.
// Scope: Unit Test
// Security: Metadata accuracy prevents clients from attempting disabled flows
// Expected: Endpoints derive from the issuer; only the code response type, the two enabled grants, S256, and client_secret_post are advertised.
// Test Case ID: OIDC-01
func TestOIDC_DiscoveryMetadata(t *testing.T) {
	s := NewService("https://auth.example.com", nil)
	meta := s.GetDiscoveryMetadata()

	if meta.Issuer != "https://auth.example.com" {
		t.Errorf("unexpected issuer %q", meta.Issuer)
	}
	if meta.AuthorizationEndpoint != "https://auth.example.com/oauth/authorize" {
		t.Errorf("unexpected authorization endpoint %q", meta.AuthorizationEndpoint)
	}
	if meta.TokenEndpoint != "https://auth.example.com/oauth/token" {
		t.Errorf("unexpected token endpoint %q", meta.TokenEndpoint)
	}
	if meta.IntrospectionEndpoint != "https://auth.example.com/oauth/introspect" {
		t.Errorf("unexpected introspection endpoint %q", meta.IntrospectionEndpoint)
	}
	if meta.RevocationEndpoint != "https://auth.example.com/oauth/revoke" {
		t.Errorf("unexpected revocation endpoint %q", meta.RevocationEndpoint)
	}

	if len(meta.ResponseTypesSupported) != 1 || meta.ResponseTypesSupported[0] != "code" {
		t.Errorf("response types must be exactly [code], got %v", meta.ResponseTypesSupported)
	}
	if len(meta.CodeChallengeMethodsSupported) != 1 || meta.CodeChallengeMethodsSupported[0] != "S256" {
		t.Errorf("code challenge methods must be exactly [S256], got %v", meta.CodeChallengeMethodsSupported)
	}
	if len(meta.TokenEndpointAuthMethodsSupported) != 1 || meta.TokenEndpointAuthMethodsSupported[0] != "client_secret_post" {
		t.Errorf("auth methods must be exactly [client_secret_post], got %v", meta.TokenEndpointAuthMethodsSupported)
	}

	for _, grant := range meta.GrantTypesSupported {
		if grant == "refresh_token" || grant == "password" || grant == "implicit" {
			t.Errorf("disabled grant %q must not be advertised", grant)
		}
	}
	if len(meta.GrantTypesSupported) != 2 {
		t.Errorf("expected authorization_code and client_credentials, got %v", meta.GrantTypesSupported)
	}
}

// TestPurpose: Validates that the serialized document never advertises a key set.
// Scope: Unit Test
// Security: A jwks_uri pointing nowhere would break RS256-assuming clients; HMAC tokens have no public key.
// Expected: The JSON document contains no jwks_uri key and no double-slash endpoint paths.
// Test Case ID: OIDC-02
func TestOIDC_DiscoveryOmitsJWKS(t *testing.T) {
	s := NewService("https://auth.example.com/", nil)

	raw, err := json.Marshal(s.GetDiscoveryMetadata())
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if _, ok := doc["jwks_uri"]; ok {
		t.Error("jwks_uri must not be present")
	}
	if _, ok := doc["id_token_signing_alg_values_supported"]; ok {
		t.Error("id_token_signing_alg_values_supported must not be present")
	}

	endpoint, _ := doc["token_endpoint"].(string)
	if strings.Contains(strings.TrimPrefix(endpoint, "https://"), "//") {
		t.Errorf("trailing slash on issuer leaked into endpoint %q", endpoint)
	}
}
