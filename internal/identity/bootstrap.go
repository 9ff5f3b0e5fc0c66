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
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/keygate/keygate/internal/audit"
	"github.com/keygate/keygate/internal/oauth2"
)

// DefaultStubEmail is the seeded resource owner's placeholder address.
// The authorize endpoint binds codes to a configured subject instead of a
// real login session, and that subject must exist as a user row so
// credential checks and referential integrity hold.
const DefaultStubEmail = "dev@localhost"

// StubUser describes the resource owner seeded at startup. SubjectID
// defaults to the engine's stub subject and Username to the SubjectID;
// an empty Password means a random one is generated and discarded,
// leaving an account nobody can log into.
type StubUser struct {
	SubjectID string
	Username  string
	Email     string
	Password  string
}

// BootstrapService seeds the storage backend on first start
type BootstrapService struct {
	service     *Service
	auditLogger audit.Logger
}

// NewBootstrapService creates a new bootstrap service
func NewBootstrapService(service *Service, auditLogger audit.Logger) *BootstrapService {
	if auditLogger == nil {
		auditLogger = audit.NewSlogLogger()
	}
	return &BootstrapService{
		service:     service,
		auditLogger: auditLogger,
	}
}

// Bootstrap ensures the stub resource owner exists. It is safe to run on
// every start and from multiple replicas at once: an existing user, or a
// duplicate rejection from a racing replica, both mean the work is done.
func (s *BootstrapService) Bootstrap(ctx context.Context, stub StubUser) error {
	if stub.SubjectID == "" {
		stub.SubjectID = oauth2.DefaultStubSubject
	}
	if stub.Username == "" {
		stub.Username = stub.SubjectID
	}
	if stub.Email == "" {
		stub.Email = DefaultStubEmail
	}

	if _, err := s.service.store.GetUserByUsername(ctx, stub.Username); err == nil {
		return nil
	} else if !errors.Is(err, oauth2.ErrUserNotFound) {
		return fmt.Errorf("failed to check for stub user: %w", err)
	}

	generated := false
	if stub.Password == "" {
		random, err := randomPassword()
		if err != nil {
			return fmt.Errorf("failed to generate stub password: %w", err)
		}
		stub.Password = random
		generated = true
	}

	passwordHash, err := s.service.hasher.Hash(stub.Password)
	if err != nil {
		return fmt.Errorf("failed to hash stub password: %w", err)
	}

	now := time.Now()
	user := &oauth2.User{
		ID:           stub.SubjectID,
		Username:     stub.Username,
		PasswordHash: passwordHash,
		Email:        stub.Email,
		Enabled:      true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.service.store.SaveUser(ctx, user); err != nil {
		if errors.Is(err, oauth2.ErrDuplicateKey) {
			// Another replica seeded it first
			return nil
		}
		return fmt.Errorf("failed to seed stub user: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeUserCreated,
		ActorID:  user.ID,
		Resource: "user",
		Metadata: map[string]any{
			"username":  user.Username,
			"bootstrap": true,
		},
	})

	slog.InfoContext(ctx, "seeded stub resource owner",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username),
		slog.Bool("generated_password", generated),
	)

	return nil
}

// randomPassword returns 32 bytes of entropy as URL-safe base64. The value
// is never logged or stored in the clear.
func randomPassword() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
