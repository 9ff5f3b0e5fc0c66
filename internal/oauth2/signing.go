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
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultInsecureSigningKey is the fallback signing key used when none is
// configured. Production startup refuses it (see config.Validate).
const DefaultInsecureSigningKey = "insecure-default-for-testing-only-change-in-production"

// Claims is the claim set carried by every issued access and refresh token.
type Claims struct {
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// Signer mints HMAC-signed tokens with the process-wide signing key. The key
// is loaded once at startup and read-only afterwards, so Signer is safe for
// concurrent use.
type Signer struct {
	key []byte
}

// NewSigner creates a signer from the configured key
func NewSigner(key string) *Signer {
	return &Signer{key: []byte(key)}
}

// Sign mints a token for the subject, bound to the client as audience,
// expiring after ttl.
func (s *Signer) Sign(subject, clientID, scope string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Audience:  jwt.ClaimStrings{clientID},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies a signed token and returns its claims. Protocol-level
// validity (revocation, expiry) is decided by the store lookup, not by the
// signature alone.
func (s *Signer) Parse(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	return claims, nil
}
