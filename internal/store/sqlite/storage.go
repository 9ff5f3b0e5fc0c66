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

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sqlite3 "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/keygate/keygate/internal/oauth2"
)

// timeLayout is RFC 3339 with a fixed-width fractional second so stored
// timestamps sort correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse stored timestamp: %w", err)
	}
	return t, nil
}

// isUniqueViolation checks for a SQLite UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE ||
			sqliteErr.Code() == sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

// SaveClient inserts a client registration
func (s *Storage) SaveClient(ctx context.Context, client *oauth2.Client) error {
	redirectURIs, err := json.Marshal(client.RedirectURIs)
	if err != nil {
		return fmt.Errorf("failed to marshal redirect URIs: %w", err)
	}

	grantTypes, err := json.Marshal(client.GrantTypes)
	if err != nil {
		return fmt.Errorf("failed to marshal grant types: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO clients (id, client_id, client_secret, redirect_uris, grant_types, scope, name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		client.ID, client.ClientID, client.ClientSecret, string(redirectURIs), string(grantTypes),
		client.Scope, client.Name, formatTime(client.CreatedAt), formatTime(client.UpdatedAt),
	)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("client: %w", oauth2.ErrDuplicateKey)
		}
		return fmt.Errorf("failed to save client: %w", err)
	}

	return nil
}

// GetClient retrieves a client by client_id
func (s *Storage) GetClient(ctx context.Context, clientID string) (*oauth2.Client, error) {
	var client oauth2.Client
	var redirectURIsJSON, grantTypesJSON []byte
	var createdAt, updatedAt string

	err := s.db.QueryRowContext(ctx, `
		SELECT id, client_id, client_secret, redirect_uris, grant_types, scope, name, created_at, updated_at
		FROM clients
		WHERE client_id = ?
	`, clientID).Scan(
		&client.ID, &client.ClientID, &client.ClientSecret, &redirectURIsJSON, &grantTypesJSON,
		&client.Scope, &client.Name, &createdAt, &updatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, oauth2.ErrClientNotFound
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}

	if err := json.Unmarshal(redirectURIsJSON, &client.RedirectURIs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal redirect URIs: %w", err)
	}
	if err := json.Unmarshal(grantTypesJSON, &client.GrantTypes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal grant types: %w", err)
	}
	if client.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if client.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	return &client, nil
}

// SaveUser inserts a user record
func (s *Storage) SaveUser(ctx context.Context, user *oauth2.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, email, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		user.ID, user.Username, user.PasswordHash, user.Email, user.Enabled,
		formatTime(user.CreatedAt), formatTime(user.UpdatedAt),
	)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user: %w", oauth2.ErrDuplicateKey)
		}
		return fmt.Errorf("failed to save user: %w", err)
	}

	return nil
}

// GetUserByUsername retrieves a user by username
func (s *Storage) GetUserByUsername(ctx context.Context, username string) (*oauth2.User, error) {
	var user oauth2.User
	var createdAt, updatedAt string

	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, email, enabled, created_at, updated_at
		FROM users
		WHERE username = ?
	`, username).Scan(
		&user.ID, &user.Username, &user.PasswordHash, &user.Email, &user.Enabled,
		&createdAt, &updatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, oauth2.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if user.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if user.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	return &user, nil
}

// SaveToken inserts a token record
func (s *Storage) SaveToken(ctx context.Context, token *oauth2.Token) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tokens (id, access_token, refresh_token, token_type, expires_in, scope, client_id, user_id, created_at, expires_at, revoked)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		token.ID, token.AccessToken, token.RefreshToken, token.TokenType, token.ExpiresIn,
		token.Scope, token.ClientID, token.UserID, formatTime(token.CreatedAt),
		formatTime(token.ExpiresAt), token.Revoked,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("token: %w", oauth2.ErrDuplicateKey)
		}
		return fmt.Errorf("failed to save token: %w", err)
	}

	return nil
}

// GetTokenByAccessToken retrieves a token by its access token value
func (s *Storage) GetTokenByAccessToken(ctx context.Context, accessToken string) (*oauth2.Token, error) {
	var token oauth2.Token
	var createdAt, expiresAt string

	err := s.db.QueryRowContext(ctx, `
		SELECT id, access_token, refresh_token, token_type, expires_in, scope, client_id, user_id, created_at, expires_at, revoked
		FROM tokens
		WHERE access_token = ?
	`, accessToken).Scan(
		&token.ID, &token.AccessToken, &token.RefreshToken, &token.TokenType, &token.ExpiresIn,
		&token.Scope, &token.ClientID, &token.UserID, &createdAt, &expiresAt, &token.Revoked,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, oauth2.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	if token.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if token.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return nil, err
	}

	return &token, nil
}

// RevokeToken revokes by access-token or refresh-token match. Revoking an
// unknown token is a no-op.
func (s *Storage) RevokeToken(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tokens SET revoked = 1
		WHERE access_token = ? OR refresh_token = ?
	`, token, token)

	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}

	return nil
}

// SaveAuthorizationCode inserts an authorization code record
func (s *Storage) SaveAuthorizationCode(ctx context.Context, code *oauth2.AuthorizationCode) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO authorization_codes (id, code, client_id, user_id, redirect_uri, scope, created_at, expires_at, used, code_challenge, code_challenge_method)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		code.ID, code.Code, code.ClientID, code.UserID, code.RedirectURI, code.Scope,
		formatTime(code.CreatedAt), formatTime(code.ExpiresAt), code.Used,
		code.CodeChallenge, code.CodeChallengeMethod,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("authorization code: %w", oauth2.ErrDuplicateKey)
		}
		return fmt.Errorf("failed to save authorization code: %w", err)
	}

	return nil
}

// GetAuthorizationCode retrieves an authorization code by its code value
func (s *Storage) GetAuthorizationCode(ctx context.Context, rawCode string) (*oauth2.AuthorizationCode, error) {
	var code oauth2.AuthorizationCode
	var createdAt, expiresAt string

	err := s.db.QueryRowContext(ctx, `
		SELECT id, code, client_id, user_id, redirect_uri, scope, created_at, expires_at, used, code_challenge, code_challenge_method
		FROM authorization_codes
		WHERE code = ?
	`, rawCode).Scan(
		&code.ID, &code.Code, &code.ClientID, &code.UserID, &code.RedirectURI, &code.Scope,
		&createdAt, &expiresAt, &code.Used, &code.CodeChallenge, &code.CodeChallengeMethod,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, oauth2.ErrCodeNotFound
		}
		return nil, fmt.Errorf("failed to get authorization code: %w", err)
	}

	if code.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if code.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return nil, err
	}

	return &code, nil
}

// MarkAuthorizationCodeUsed burns the code with a conditional update and
// reports whether this call flipped the flag.
func (s *Storage) MarkAuthorizationCodeUsed(ctx context.Context, code string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE authorization_codes SET used = 1
		WHERE code = ? AND used = 0
	`, code)

	if err != nil {
		return false, fmt.Errorf("failed to mark authorization code used: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return affected > 0, nil
}

// DeleteExpiredAuthorizationCodes purges codes past their expiry
func (s *Storage) DeleteExpiredAuthorizationCodes(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM authorization_codes WHERE expires_at < ?
	`, formatTime(time.Now()))

	if err != nil {
		return 0, fmt.Errorf("failed to delete expired authorization codes: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return affected, nil
}

// DeleteExpiredTokens purges tokens past their expiry. Revoked tokens that
// have not yet expired are kept.
func (s *Storage) DeleteExpiredTokens(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM tokens WHERE expires_at < ?
	`, formatTime(time.Now()))

	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tokens: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return affected, nil
}
