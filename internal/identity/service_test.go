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

package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/keygate/keygate/internal/audit"
	"github.com/keygate/keygate/internal/oauth2"
	"github.com/keygate/keygate/internal/store/storetest"
)

func newTestService() *Service {
	hasher := NewPasswordHasher(65536, 3, 4, 16, 32)
	return NewService(storetest.NewMemoryStorage(), hasher, audit.NewSlogLogger())
}

// TestPurpose: Validates the credential verification flow, including success, wrong password, and unknown username.
// Scope: Unit Test
// Security: Authentication mechanisms and username enumeration resistance
// Expected: Successful login for correct credentials; ErrInvalidCredentials for both a wrong password and an unknown username, so the two are indistinguishable to a caller.
// Test Case ID: IDN-01
func TestIdentity_Service_Authenticate(t *testing.T) {
	s := newTestService()

	ctx := context.Background()
	username := "alice"
	password := "SecurePassword123"

	// 1. Create user
	user, err := s.CreateUser(ctx, username, "alice@example.com", password)
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	// 2. Success authentication
	got, err := s.Authenticate(ctx, username, password)
	if err != nil {
		t.Fatalf("expected success, got err: %v", err)
	}
	if got.ID != user.ID {
		t.Errorf("expected user ID %s, got %s", user.ID, got.ID)
	}

	// 3. Failed authentication (wrong password)
	_, err = s.Authenticate(ctx, username, "WrongPassword")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}

	// 4. Unknown username must fail the same way
	_, err = s.Authenticate(ctx, "nobody", password)
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

// TestPurpose: Validates that creating a user fails when the username is already registered.
// Scope: Unit Test
// Security: Data Integrity and Unique Constraint Enforcement
// Expected: ErrUserAlreadyExists on the second create with the same username.
// Test Case ID: IDN-02
func TestIdentity_Service_CreateUser_Conflict(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	if _, err := s.CreateUser(ctx, "bob", "bob@example.com", "SecurePassword123"); err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	_, err := s.CreateUser(ctx, "bob", "bob2@example.com", "OtherPassword456")
	if !errors.Is(err, ErrUserAlreadyExists) {
		t.Errorf("expected ErrUserAlreadyExists, got %v", err)
	}
}

// TestPurpose: Validates input validation on account creation.
// Scope: Unit Test
// Security: Input Validation
// Expected: Empty username, malformed email, and short password are each rejected with their domain error before anything is persisted.
// Test Case ID: IDN-03
func TestIdentity_Service_CreateUser_Validation(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	cases := []struct {
		name     string
		username string
		email    string
		password string
		want     error
	}{
		{"empty username", "  ", "a@example.com", "SecurePassword123", ErrInvalidUsername},
		{"email without at sign", "carol", "not-an-email", "SecurePassword123", ErrInvalidEmail},
		{"short password", "carol", "carol@example.com", "short", ErrWeakPassword},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.CreateUser(ctx, tc.username, tc.email, tc.password)
			if !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

// TestPurpose: Validates that a disabled account cannot authenticate even with the correct password.
// Scope: Unit Test
// Security: Account lifecycle enforcement
// Expected: ErrInvalidCredentials for a disabled user, indistinguishable from a bad password.
// Test Case ID: IDN-04
func TestIdentity_Service_Authenticate_DisabledUser(t *testing.T) {
	store := storetest.NewMemoryStorage()
	hasher := NewPasswordHasher(65536, 3, 4, 16, 32)
	s := NewService(store, hasher, audit.NewSlogLogger())

	ctx := context.Background()
	password := "SecurePassword123"

	hash, err := hasher.Hash(password)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	err = store.SaveUser(ctx, &oauth2.User{
		ID:           "user-disabled",
		Username:     "dave",
		PasswordHash: hash,
		Email:        "dave@example.com",
		Enabled:      false,
	})
	if err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}

	_, err = s.Authenticate(ctx, "dave", password)
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for disabled user, got %v", err)
	}
}

// TestPurpose: Validates that Verify reads Argon2id parameters from the stored hash rather than the hasher.
// Scope: Unit Test
// Security: Credential storage compatibility across parameter upgrades
// Expected: A hash produced under old parameters still verifies under a hasher configured with new ones.
// Test Case ID: IDN-05
func TestIdentity_PasswordHasher_VerifyAcrossParameterUpgrade(t *testing.T) {
	old := NewPasswordHasher(32*1024, 2, 2, 16, 32)
	upgraded := NewPasswordHasher(65536, 3, 4, 16, 32)
	password := "SecurePassword123"

	hash, err := old.Hash(password)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}

	valid, err := upgraded.Verify(password, hash)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if !valid {
		t.Error("expected hash from old parameters to verify")
	}

	valid, err = upgraded.Verify("WrongPassword", hash)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if valid {
		t.Error("expected wrong password to fail verification")
	}
}

// TestPurpose: Validates rejection of malformed password hashes.
// Scope: Unit Test
// Security: Credential storage integrity
// Expected: Verify returns an error, never a silent false-positive, for hashes that do not parse.
// Test Case ID: IDN-06
func TestIdentity_PasswordHasher_RejectsMalformedHash(t *testing.T) {
	hasher := NewPasswordHasher(65536, 3, 4, 16, 32)

	malformed := []string{
		"",
		"plaintext",
		"$argon2i$v=19$m=65536,t=3,p=4$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=65536,t=3,p=4$c2FsdA",
		"$argon2id$v=18$m=65536,t=3,p=4$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=65536,t=3,p=4$!!!$aGFzaA",
	}

	for _, h := range malformed {
		if _, err := hasher.Verify("password", h); err == nil {
			t.Errorf("expected error for malformed hash %q", h)
		}
	}
}

// TestPurpose: Validates that bootstrap seeds the stub resource owner exactly once, under the subject ID the grant engine binds codes to.
// Scope: Unit Test
// Security: Deployment bootstrap idempotency
// Expected: First run creates the user with the fixed subject ID; repeat runs are no-ops; a configured password authenticates.
// Test Case ID: IDN-07
func TestIdentity_Bootstrap_SeedsStubUserOnce(t *testing.T) {
	store := storetest.NewMemoryStorage()
	s := NewService(store, NewPasswordHasher(65536, 3, 4, 16, 32), audit.NewSlogLogger())
	b := NewBootstrapService(s, audit.NewSlogLogger())

	ctx := context.Background()
	stub := StubUser{Password: "BootstrapPassword1"}

	// 1. First run seeds the user, username defaulting to the subject ID
	if err := b.Bootstrap(ctx, stub); err != nil {
		t.Fatalf("bootstrap failed: %v", err)
	}

	user, err := store.GetUserByUsername(ctx, oauth2.DefaultStubSubject)
	if err != nil {
		t.Fatalf("stub user not seeded: %v", err)
	}
	if user.ID != oauth2.DefaultStubSubject {
		t.Errorf("expected stub user ID %q, got %q", oauth2.DefaultStubSubject, user.ID)
	}

	// 2. Second run is a no-op
	if err := b.Bootstrap(ctx, stub); err != nil {
		t.Fatalf("repeat bootstrap failed: %v", err)
	}

	// 3. The configured password works
	if _, err := s.Authenticate(ctx, oauth2.DefaultStubSubject, "BootstrapPassword1"); err != nil {
		t.Errorf("expected stub credentials to authenticate, got %v", err)
	}
}
