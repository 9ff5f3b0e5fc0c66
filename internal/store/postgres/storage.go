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

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/keygate/keygate/internal/oauth2"
)

// isUniqueViolation checks for SQLSTATE 23505 (unique_violation).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
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

	_, err = s.pool.Exec(ctx, `
		INSERT INTO clients (id, client_id, client_secret, redirect_uris, grant_types, scope, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		client.ID, client.ClientID, client.ClientSecret, redirectURIs, grantTypes,
		client.Scope, client.Name, client.CreatedAt, client.UpdatedAt,
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

	err := s.pool.QueryRow(ctx, `
		SELECT id, client_id, client_secret, redirect_uris, grant_types, scope, name, created_at, updated_at
		FROM clients
		WHERE client_id = $1
	`, clientID).Scan(
		&client.ID, &client.ClientID, &client.ClientSecret, &redirectURIsJSON, &grantTypesJSON,
		&client.Scope, &client.Name, &client.CreatedAt, &client.UpdatedAt,
	)

	if err != nil {
		if err == pgx.ErrNoRows {
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

	return &client, nil
}

// SaveUser inserts a user record
func (s *Storage) SaveUser(ctx context.Context, user *oauth2.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, username, password_hash, email, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		user.ID, user.Username, user.PasswordHash, user.Email, user.Enabled,
		user.CreatedAt, user.UpdatedAt,
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

	err := s.pool.QueryRow(ctx, `
		SELECT id, username, password_hash, email, enabled, created_at, updated_at
		FROM users
		WHERE username = $1
	`, username).Scan(
		&user.ID, &user.Username, &user.PasswordHash, &user.Email, &user.Enabled,
		&user.CreatedAt, &user.UpdatedAt,
	)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, oauth2.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

// SaveToken inserts a token record
func (s *Storage) SaveToken(ctx context.Context, token *oauth2.Token) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tokens (id, access_token, refresh_token, token_type, expires_in, scope, client_id, user_id, created_at, expires_at, revoked)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		token.ID, token.AccessToken, token.RefreshToken, token.TokenType, token.ExpiresIn,
		token.Scope, token.ClientID, token.UserID, token.CreatedAt, token.ExpiresAt, token.Revoked,
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

	err := s.pool.QueryRow(ctx, `
		SELECT id, access_token, refresh_token, token_type, expires_in, scope, client_id, user_id, created_at, expires_at, revoked
		FROM tokens
		WHERE access_token = $1
	`, accessToken).Scan(
		&token.ID, &token.AccessToken, &token.RefreshToken, &token.TokenType, &token.ExpiresIn,
		&token.Scope, &token.ClientID, &token.UserID, &token.CreatedAt, &token.ExpiresAt, &token.Revoked,
	)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, oauth2.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	return &token, nil
}

// RevokeToken revokes by access-token or refresh-token match. Revoking an
// unknown token is a no-op.
func (s *Storage) RevokeToken(ctx context.Context, token string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE tokens SET revoked = TRUE
		WHERE access_token = $1 OR refresh_token = $1
	`, token)

	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}

	return nil
}

// SaveAuthorizationCode inserts an authorization code record
func (s *Storage) SaveAuthorizationCode(ctx context.Context, code *oauth2.AuthorizationCode) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO authorization_codes (id, code, client_id, user_id, redirect_uri, scope, created_at, expires_at, used, code_challenge, code_challenge_method)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		code.ID, code.Code, code.ClientID, code.UserID, code.RedirectURI, code.Scope,
		code.CreatedAt, code.ExpiresAt, code.Used, code.CodeChallenge, code.CodeChallengeMethod,
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

	err := s.pool.QueryRow(ctx, `
		SELECT id, code, client_id, user_id, redirect_uri, scope, created_at, expires_at, used, code_challenge, code_challenge_method
		FROM authorization_codes
		WHERE code = $1
	`, rawCode).Scan(
		&code.ID, &code.Code, &code.ClientID, &code.UserID, &code.RedirectURI, &code.Scope,
		&code.CreatedAt, &code.ExpiresAt, &code.Used, &code.CodeChallenge, &code.CodeChallengeMethod,
	)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, oauth2.ErrCodeNotFound
		}
		return nil, fmt.Errorf("failed to get authorization code: %w", err)
	}

	return &code, nil
}

// MarkAuthorizationCodeUsed burns the code with a conditional update and
// reports whether this call flipped the flag.
func (s *Storage) MarkAuthorizationCodeUsed(ctx context.Context, code string) (bool, error) {
	result, err := s.pool.Exec(ctx, `
		UPDATE authorization_codes SET used = TRUE
		WHERE code = $1 AND used = FALSE
	`, code)

	if err != nil {
		return false, fmt.Errorf("failed to mark authorization code used: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

// DeleteExpiredAuthorizationCodes purges codes past their expiry
func (s *Storage) DeleteExpiredAuthorizationCodes(ctx context.Context) (int64, error) {
	result, err := s.pool.Exec(ctx, `
		DELETE FROM authorization_codes WHERE expires_at < $1
	`, time.Now())

	if err != nil {
		return 0, fmt.Errorf("failed to delete expired authorization codes: %w", err)
	}

	return result.RowsAffected(), nil
}

// DeleteExpiredTokens purges tokens past their expiry. Revoked tokens that
// have not yet expired are kept.
func (s *Storage) DeleteExpiredTokens(ctx context.Context) (int64, error) {
	result, err := s.pool.Exec(ctx, `
		DELETE FROM tokens WHERE expires_at < $1
	`, time.Now())

	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tokens: %w", err)
	}

	return result.RowsAffected(), nil
}
