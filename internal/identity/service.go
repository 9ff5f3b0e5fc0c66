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

// Package identity manages resource-owner accounts: Argon2id password
// hashing, account creation, and credential verification against the
// storage port.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/argon2"

	"github.com/keygate/keygate/internal/audit"
	"github.com/keygate/keygate/internal/oauth2"
)

// Domain errors
var (
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidUsername    = errors.New("username must not be empty")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = errors.New("password does not meet security requirements")
)

// PasswordHasher handles password hashing using Argon2id
type PasswordHasher struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
	saltLength  uint32
	keyLength   uint32
}

// NewPasswordHasher creates a new password hasher with Argon2id
func NewPasswordHasher(memory, iterations uint32, parallelism uint8, saltLength, keyLength uint32) *PasswordHasher {
	return &PasswordHasher{
		memory:      memory,
		iterations:  iterations,
		parallelism: parallelism,
		saltLength:  saltLength,
		keyLength:   keyLength,
	}
}

// DefaultPasswordHasher returns a hasher with the RFC 9106 second
// recommended parameter set (64 MiB, 3 iterations).
func DefaultPasswordHasher() *PasswordHasher {
	return NewPasswordHasher(64*1024, 3, 4, 16, 32)
}

// Hash hashes a password using Argon2id
func (h *PasswordHasher) Hash(password string) (string, error) {
	// Generate random salt
	salt := make([]byte, h.saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	// Hash password
	hash := argon2.IDKey(
		[]byte(password),
		salt,
		h.iterations,
		h.memory,
		h.parallelism,
		h.keyLength,
	)

	// Encode as: $argon2id$v=19$m=memory,t=iterations,p=parallelism$salt$hash
	encoded := fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.memory,
		h.iterations,
		h.parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	)

	return encoded, nil
}

// Verify verifies a password against a hash. Parameters come from the
// stored hash, not the hasher, so parameter upgrades never lock out
// existing accounts.
func (h *PasswordHasher) Verify(password, encodedHash string) (bool, error) {
	// Format: $argon2id$v=19$m=65536,t=3,p=4$salt$hash
	sections := strings.Split(encodedHash, "$")
	if len(sections) != 6 || sections[0] != "" || sections[1] != "argon2id" {
		return false, fmt.Errorf("invalid hash format")
	}

	var version int
	if _, err := fmt.Sscanf(sections[2], "v=%d", &version); err != nil {
		return false, fmt.Errorf("invalid version: %w", err)
	}
	if version != argon2.Version {
		return false, fmt.Errorf("unsupported argon2 version %d", version)
	}

	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(sections[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return false, fmt.Errorf("invalid parameters: %w", err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(sections[4])
	if err != nil {
		return false, fmt.Errorf("failed to decode salt: %w", err)
	}

	expectedHash, err := base64.RawStdEncoding.DecodeString(sections[5])
	if err != nil {
		return false, fmt.Errorf("failed to decode hash: %w", err)
	}

	actualHash := argon2.IDKey(
		[]byte(password),
		salt,
		iterations,
		memory,
		parallelism,
		uint32(len(expectedHash)),
	)

	// Compare hashes using constant-time comparison
	if len(actualHash) != len(expectedHash) {
		return false, nil
	}

	var diff byte
	for i := range actualHash {
		diff |= actualHash[i] ^ expectedHash[i]
	}

	return diff == 0, nil
}

// Service provides identity-related business logic
type Service struct {
	store  oauth2.Storage
	hasher *PasswordHasher
	audit  audit.Logger
}

// NewService creates a new identity service
func NewService(store oauth2.Storage, hasher *PasswordHasher, auditLogger audit.Logger) *Service {
	if hasher == nil {
		hasher = DefaultPasswordHasher()
	}
	if auditLogger == nil {
		auditLogger = audit.NewSlogLogger()
	}
	return &Service{
		store:  store,
		hasher: hasher,
		audit:  auditLogger,
	}
}

// CreateUser validates, hashes, and persists a new account.
func (s *Service) CreateUser(ctx context.Context, username, email, password string) (*oauth2.User, error) {
	if strings.TrimSpace(username) == "" {
		return nil, ErrInvalidUsername
	}
	if !isValidEmail(email) {
		return nil, ErrInvalidEmail
	}
	if !isStrongPassword(password) {
		return nil, ErrWeakPassword
	}

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	user := &oauth2.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
		Email:        email,
		Enabled:      true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.SaveUser(ctx, user); err != nil {
		if errors.Is(err, oauth2.ErrDuplicateKey) {
			return nil, ErrUserAlreadyExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.audit.Log(ctx, audit.Event{
		Type:     audit.TypeUserCreated,
		ActorID:  user.ID,
		Resource: "user",
		Metadata: map[string]any{"username": username},
	})

	return user, nil
}

// Authenticate verifies a username/password pair. Every failure collapses
// to ErrInvalidCredentials so callers cannot probe which part was wrong;
// the audit trail keeps the distinction.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*oauth2.User, error) {
	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, oauth2.ErrUserNotFound) {
			s.audit.Log(ctx, audit.Event{
				Type:     audit.TypeLoginFailed,
				Resource: "login",
				Metadata: map[string]any{"reason": "user_not_found"},
			})
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if !user.Enabled {
		s.audit.Log(ctx, audit.Event{
			Type:     audit.TypeLoginFailed,
			ActorID:  user.ID,
			Resource: "login",
			Metadata: map[string]any{"reason": "user_disabled"},
		})
		return nil, ErrInvalidCredentials
	}

	valid, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil || !valid {
		s.audit.Log(ctx, audit.Event{
			Type:     audit.TypeLoginFailed,
			ActorID:  user.ID,
			Resource: "login",
			Metadata: map[string]any{"reason": "invalid_password"},
		})
		return nil, ErrInvalidCredentials
	}

	s.audit.Log(ctx, audit.Event{
		Type:     audit.TypeLoginSuccess,
		ActorID:  user.ID,
		Resource: "login",
	})

	return user, nil
}

// Helper functions
func isValidEmail(email string) bool {
	// Basic shape check; full RFC 5322 validation buys nothing here
	return len(email) > 3 && len(email) < 255 && strings.Contains(email, "@")
}

func isStrongPassword(password string) bool {
	// Password must be at least 8 characters
	return len(password) >= 8
}
