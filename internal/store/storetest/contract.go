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

// Package storetest holds the storage contract suite. Every backend runs
// the same suite, so semantics cannot drift between engines: sqlite runs it
// in-memory on every test run, postgres and mongo run it behind the
// integration build tag.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keygate/keygate/internal/oauth2"
)

// Factory opens a fresh, empty storage backend for one subtest. The suite
// calls Init itself and closes the store when the subtest finishes.
type Factory func(t *testing.T) oauth2.Storage

// timeTolerance absorbs backend timestamp granularity. MongoDB stores
// milliseconds; the SQL backends keep more.
const timeTolerance = time.Second

// Run exercises the full storage contract against the backend produced by
// open. Data is randomized per subtest, so backends with shared state
// (a real postgres database) stay usable across runs.
func Run(t *testing.T, open Factory) {
	t.Run("SavesAndRetrievesClients", func(t *testing.T) {
		s := setup(t, open)
		want := newClient()

		require.NoError(t, s.SaveClient(ctx(), want))

		got, err := s.GetClient(ctx(), want.ClientID)
		require.NoError(t, err)
		assert.Equal(t, want.ID, got.ID)
		assert.Equal(t, want.ClientID, got.ClientID)
		assert.Equal(t, want.ClientSecret, got.ClientSecret)
		assert.Equal(t, want.RedirectURIs, got.RedirectURIs)
		assert.Equal(t, want.GrantTypes, got.GrantTypes)
		assert.Equal(t, want.Scope, got.Scope)
		assert.Equal(t, want.Name, got.Name)
		assert.WithinDuration(t, want.CreatedAt, got.CreatedAt, timeTolerance)
	})

	t.Run("MissingClientReturnsSentinel", func(t *testing.T) {
		s := setup(t, open)

		_, err := s.GetClient(ctx(), "no-such-client")
		assert.ErrorIs(t, err, oauth2.ErrClientNotFound)
	})

	t.Run("DuplicateClientIDIsRejected", func(t *testing.T) {
		s := setup(t, open)
		first := newClient()
		require.NoError(t, s.SaveClient(ctx(), first))

		second := newClient()
		second.ClientID = first.ClientID
		err := s.SaveClient(ctx(), second)
		assert.ErrorIs(t, err, oauth2.ErrDuplicateKey)
	})

	t.Run("SavesAndRetrievesUsers", func(t *testing.T) {
		s := setup(t, open)
		want := newUser()

		require.NoError(t, s.SaveUser(ctx(), want))

		got, err := s.GetUserByUsername(ctx(), want.Username)
		require.NoError(t, err)
		assert.Equal(t, want.ID, got.ID)
		assert.Equal(t, want.Username, got.Username)
		assert.Equal(t, want.PasswordHash, got.PasswordHash)
		assert.Equal(t, want.Email, got.Email)
		assert.True(t, got.Enabled)
	})

	t.Run("MissingUserReturnsSentinel", func(t *testing.T) {
		s := setup(t, open)

		_, err := s.GetUserByUsername(ctx(), "no-such-user")
		assert.ErrorIs(t, err, oauth2.ErrUserNotFound)
	})

	t.Run("DuplicateUsernameIsRejected", func(t *testing.T) {
		s := setup(t, open)
		first := newUser()
		require.NoError(t, s.SaveUser(ctx(), first))

		second := newUser()
		second.Username = first.Username
		err := s.SaveUser(ctx(), second)
		assert.ErrorIs(t, err, oauth2.ErrDuplicateKey)
	})

	t.Run("SavesAndRetrievesUserTokens", func(t *testing.T) {
		s := setup(t, open)
		want := newUserToken()

		require.NoError(t, s.SaveToken(ctx(), want))

		got, err := s.GetTokenByAccessToken(ctx(), want.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, want.ID, got.ID)
		assert.Equal(t, want.AccessToken, got.AccessToken)
		require.NotNil(t, got.RefreshToken)
		assert.Equal(t, *want.RefreshToken, *got.RefreshToken)
		require.NotNil(t, got.UserID)
		assert.Equal(t, *want.UserID, *got.UserID)
		assert.Equal(t, want.Scope, got.Scope)
		assert.Equal(t, want.ClientID, got.ClientID)
		assert.False(t, got.Revoked)
		assert.WithinDuration(t, want.ExpiresAt, got.ExpiresAt, timeTolerance)
	})

	t.Run("SavesAndRetrievesClientCredentialsTokens", func(t *testing.T) {
		s := setup(t, open)
		want := newClientToken()

		require.NoError(t, s.SaveToken(ctx(), want))

		got, err := s.GetTokenByAccessToken(ctx(), want.AccessToken)
		require.NoError(t, err)
		assert.Nil(t, got.RefreshToken)
		assert.Nil(t, got.UserID)
	})

	t.Run("MissingTokenReturnsSentinel", func(t *testing.T) {
		s := setup(t, open)

		_, err := s.GetTokenByAccessToken(ctx(), "no-such-token")
		assert.ErrorIs(t, err, oauth2.ErrTokenNotFound)
	})

	t.Run("DuplicateAccessTokenIsRejected", func(t *testing.T) {
		s := setup(t, open)
		first := newUserToken()
		require.NoError(t, s.SaveToken(ctx(), first))

		second := newUserToken()
		second.AccessToken = first.AccessToken
		err := s.SaveToken(ctx(), second)
		assert.ErrorIs(t, err, oauth2.ErrDuplicateKey)
	})

	t.Run("DuplicateRefreshTokenIsRejected", func(t *testing.T) {
		s := setup(t, open)
		first := newUserToken()
		require.NoError(t, s.SaveToken(ctx(), first))

		second := newUserToken()
		second.RefreshToken = first.RefreshToken
		err := s.SaveToken(ctx(), second)
		assert.ErrorIs(t, err, oauth2.ErrDuplicateKey)
	})

	t.Run("AbsentRefreshTokensDoNotCollide", func(t *testing.T) {
		s := setup(t, open)

		// The refresh_token constraint is sparse: any number of tokens
		// without one must coexist.
		require.NoError(t, s.SaveToken(ctx(), newClientToken()))
		require.NoError(t, s.SaveToken(ctx(), newClientToken()))
		require.NoError(t, s.SaveToken(ctx(), newClientToken()))
	})

	t.Run("RevokesByAccessToken", func(t *testing.T) {
		s := setup(t, open)
		token := newUserToken()
		require.NoError(t, s.SaveToken(ctx(), token))

		require.NoError(t, s.RevokeToken(ctx(), token.AccessToken))

		got, err := s.GetTokenByAccessToken(ctx(), token.AccessToken)
		require.NoError(t, err)
		assert.True(t, got.Revoked)
	})

	t.Run("RevokesByRefreshToken", func(t *testing.T) {
		s := setup(t, open)
		token := newUserToken()
		require.NoError(t, s.SaveToken(ctx(), token))

		require.NoError(t, s.RevokeToken(ctx(), *token.RefreshToken))

		got, err := s.GetTokenByAccessToken(ctx(), token.AccessToken)
		require.NoError(t, err)
		assert.True(t, got.Revoked)
	})

	t.Run("RevokingUnknownTokenIsNoOp", func(t *testing.T) {
		s := setup(t, open)

		assert.NoError(t, s.RevokeToken(ctx(), "never-issued"))
	})

	t.Run("RevokeIsIdempotent", func(t *testing.T) {
		s := setup(t, open)
		token := newUserToken()
		require.NoError(t, s.SaveToken(ctx(), token))

		require.NoError(t, s.RevokeToken(ctx(), token.AccessToken))
		require.NoError(t, s.RevokeToken(ctx(), token.AccessToken))

		got, err := s.GetTokenByAccessToken(ctx(), token.AccessToken)
		require.NoError(t, err)
		assert.True(t, got.Revoked)
	})

	t.Run("SavesAndRetrievesAuthorizationCodes", func(t *testing.T) {
		s := setup(t, open)
		want := newCode()

		require.NoError(t, s.SaveAuthorizationCode(ctx(), want))

		got, err := s.GetAuthorizationCode(ctx(), want.Code)
		require.NoError(t, err)
		assert.Equal(t, want.ID, got.ID)
		assert.Equal(t, want.Code, got.Code)
		assert.Equal(t, want.ClientID, got.ClientID)
		assert.Equal(t, want.UserID, got.UserID)
		assert.Equal(t, want.RedirectURI, got.RedirectURI)
		assert.Equal(t, want.Scope, got.Scope)
		assert.Equal(t, want.CodeChallenge, got.CodeChallenge)
		assert.Equal(t, want.CodeChallengeMethod, got.CodeChallengeMethod)
		assert.False(t, got.Used)
		assert.WithinDuration(t, want.ExpiresAt, got.ExpiresAt, timeTolerance)
	})

	t.Run("MissingCodeReturnsSentinel", func(t *testing.T) {
		s := setup(t, open)

		_, err := s.GetAuthorizationCode(ctx(), "no-such-code")
		assert.ErrorIs(t, err, oauth2.ErrCodeNotFound)
	})

	t.Run("DuplicateCodeIsRejected", func(t *testing.T) {
		s := setup(t, open)
		first := newCode()
		require.NoError(t, s.SaveAuthorizationCode(ctx(), first))

		second := newCode()
		second.Code = first.Code
		err := s.SaveAuthorizationCode(ctx(), second)
		assert.ErrorIs(t, err, oauth2.ErrDuplicateKey)
	})

	t.Run("OnlyOneBurnWinsTheCode", func(t *testing.T) {
		s := setup(t, open)
		code := newCode()
		require.NoError(t, s.SaveAuthorizationCode(ctx(), code))

		burned, err := s.MarkAuthorizationCodeUsed(ctx(), code.Code)
		require.NoError(t, err)
		assert.True(t, burned, "first burn must win")

		burned, err = s.MarkAuthorizationCodeUsed(ctx(), code.Code)
		require.NoError(t, err)
		assert.False(t, burned, "second burn must lose without failing")

		got, err := s.GetAuthorizationCode(ctx(), code.Code)
		require.NoError(t, err)
		assert.True(t, got.Used)
	})

	t.Run("BurningUnknownCodeLosesQuietly", func(t *testing.T) {
		s := setup(t, open)

		burned, err := s.MarkAuthorizationCodeUsed(ctx(), "never-issued")
		require.NoError(t, err)
		assert.False(t, burned)
	})

	t.Run("DeletesOnlyExpiredAuthorizationCodes", func(t *testing.T) {
		s := setup(t, open)
		live := newCode()
		expired := newCode()
		expired.ExpiresAt = time.Now().Add(-time.Hour)
		require.NoError(t, s.SaveAuthorizationCode(ctx(), live))
		require.NoError(t, s.SaveAuthorizationCode(ctx(), expired))

		deleted, err := s.DeleteExpiredAuthorizationCodes(ctx())
		require.NoError(t, err)
		assert.GreaterOrEqual(t, deleted, int64(1))

		_, err = s.GetAuthorizationCode(ctx(), expired.Code)
		assert.ErrorIs(t, err, oauth2.ErrCodeNotFound)

		_, err = s.GetAuthorizationCode(ctx(), live.Code)
		assert.NoError(t, err)
	})

	t.Run("DeletesExpiredTokensButKeepsRevokedLiveOnes", func(t *testing.T) {
		s := setup(t, open)
		live := newUserToken()
		expired := newUserToken()
		expired.ExpiresAt = time.Now().Add(-time.Hour)
		revoked := newUserToken()
		require.NoError(t, s.SaveToken(ctx(), live))
		require.NoError(t, s.SaveToken(ctx(), expired))
		require.NoError(t, s.SaveToken(ctx(), revoked))
		require.NoError(t, s.RevokeToken(ctx(), revoked.AccessToken))

		deleted, err := s.DeleteExpiredTokens(ctx())
		require.NoError(t, err)
		assert.GreaterOrEqual(t, deleted, int64(1))

		_, err = s.GetTokenByAccessToken(ctx(), expired.AccessToken)
		assert.ErrorIs(t, err, oauth2.ErrTokenNotFound)

		_, err = s.GetTokenByAccessToken(ctx(), live.AccessToken)
		assert.NoError(t, err)

		// Revoked but unexpired rows survive the sweep for auditing.
		got, err := s.GetTokenByAccessToken(ctx(), revoked.AccessToken)
		require.NoError(t, err)
		assert.True(t, got.Revoked)
	})

	t.Run("HealthcheckSucceedsOnLiveBackend", func(t *testing.T) {
		s := setup(t, open)

		assert.NoError(t, s.Healthcheck(ctx()))
	})
}

func setup(t *testing.T, open Factory) oauth2.Storage {
	t.Helper()
	s := open(t)
	require.NoError(t, s.Init(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func ctx() context.Context {
	return context.Background()
}

func newClient() *oauth2.Client {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &oauth2.Client{
		ID:           uuid.NewString(),
		ClientID:     "client-" + uuid.NewString(),
		ClientSecret: "secret-" + uuid.NewString(),
		RedirectURIs: []string{"https://app.example.com/callback"},
		GrantTypes:   []string{oauth2.GrantAuthorizationCode, oauth2.GrantClientCredentials},
		Scope:        "read write",
		Name:         "Contract Suite Client",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func newUser() *oauth2.User {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &oauth2.User{
		ID:           uuid.NewString(),
		Username:     "user-" + uuid.NewString(),
		PasswordHash: "$argon2id$v=19$m=65536,t=3,p=2$c2FsdHNhbHQ$aGFzaGhhc2g",
		Email:        "user@example.com",
		Enabled:      true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func newUserToken() *oauth2.Token {
	now := time.Now().UTC().Truncate(time.Millisecond)
	refresh := "refresh-" + uuid.NewString()
	userID := uuid.NewString()
	return &oauth2.Token{
		ID:           uuid.NewString(),
		AccessToken:  "access-" + uuid.NewString(),
		RefreshToken: &refresh,
		TokenType:    "Bearer",
		ExpiresIn:    3600,
		Scope:        "read",
		ClientID:     "client-" + uuid.NewString(),
		UserID:       &userID,
		CreatedAt:    now,
		ExpiresAt:    now.Add(time.Hour),
		Revoked:      false,
	}
}

func newClientToken() *oauth2.Token {
	token := newUserToken()
	token.RefreshToken = nil
	token.UserID = nil
	return token
}

func newCode() *oauth2.AuthorizationCode {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &oauth2.AuthorizationCode{
		ID:                  uuid.NewString(),
		Code:                "code-" + uuid.NewString(),
		ClientID:            "client-" + uuid.NewString(),
		UserID:              uuid.NewString(),
		RedirectURI:         "https://app.example.com/callback",
		Scope:               "read",
		CreatedAt:           now,
		ExpiresAt:           now.Add(10 * time.Minute),
		Used:                false,
		CodeChallenge:       "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
		CodeChallengeMethod: oauth2.PKCEMethodS256,
	}
}
