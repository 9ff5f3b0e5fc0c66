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

package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/keygate/keygate/internal/oauth2"
)

// SaveClient inserts a client registration
func (s *Storage) SaveClient(ctx context.Context, client *oauth2.Client) error {
	if _, err := s.clients.InsertOne(ctx, newClientDoc(client)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("client: %w", oauth2.ErrDuplicateKey)
		}
		return fmt.Errorf("failed to save client: %w", err)
	}
	return nil
}

// GetClient retrieves a client by client_id
func (s *Storage) GetClient(ctx context.Context, clientID string) (*oauth2.Client, error) {
	var doc clientDoc
	err := s.clients.FindOne(ctx, bson.M{"client_id": clientID}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, oauth2.ErrClientNotFound
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return doc.model(), nil
}

// SaveUser inserts a user record
func (s *Storage) SaveUser(ctx context.Context, user *oauth2.User) error {
	if _, err := s.users.InsertOne(ctx, newUserDoc(user)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("user: %w", oauth2.ErrDuplicateKey)
		}
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// GetUserByUsername retrieves a user by username
func (s *Storage) GetUserByUsername(ctx context.Context, username string) (*oauth2.User, error) {
	var doc userDoc
	err := s.users.FindOne(ctx, bson.M{"username": username}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, oauth2.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return doc.model(), nil
}

// SaveToken inserts a token record
func (s *Storage) SaveToken(ctx context.Context, token *oauth2.Token) error {
	if _, err := s.tokens.InsertOne(ctx, newTokenDoc(token)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("token: %w", oauth2.ErrDuplicateKey)
		}
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// GetTokenByAccessToken retrieves a token by its access token value
func (s *Storage) GetTokenByAccessToken(ctx context.Context, accessToken string) (*oauth2.Token, error) {
	var doc tokenDoc
	err := s.tokens.FindOne(ctx, bson.M{"access_token": accessToken}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, oauth2.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	return doc.model(), nil
}

// RevokeToken revokes by access-token or refresh-token match. Revoking an
// unknown token is a no-op.
func (s *Storage) RevokeToken(ctx context.Context, token string) error {
	_, err := s.tokens.UpdateMany(ctx,
		bson.M{"$or": bson.A{
			bson.M{"access_token": token},
			bson.M{"refresh_token": token},
		}},
		bson.M{"$set": bson.M{"revoked": true}},
	)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// SaveAuthorizationCode inserts an authorization code record
func (s *Storage) SaveAuthorizationCode(ctx context.Context, code *oauth2.AuthorizationCode) error {
	if _, err := s.codes.InsertOne(ctx, newAuthorizationCodeDoc(code)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("authorization code: %w", oauth2.ErrDuplicateKey)
		}
		return fmt.Errorf("failed to save authorization code: %w", err)
	}
	return nil
}

// GetAuthorizationCode retrieves an authorization code by its code value
func (s *Storage) GetAuthorizationCode(ctx context.Context, rawCode string) (*oauth2.AuthorizationCode, error) {
	var doc authorizationCodeDoc
	err := s.codes.FindOne(ctx, bson.M{"code": rawCode}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, oauth2.ErrCodeNotFound
		}
		return nil, fmt.Errorf("failed to get authorization code: %w", err)
	}
	return doc.model(), nil
}

// MarkAuthorizationCodeUsed burns the code with a conditional update and
// reports whether this call flipped the flag.
func (s *Storage) MarkAuthorizationCodeUsed(ctx context.Context, code string) (bool, error) {
	result, err := s.codes.UpdateOne(ctx,
		bson.M{"code": code, "used": false},
		bson.M{"$set": bson.M{"used": true}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark authorization code used: %w", err)
	}
	return result.ModifiedCount > 0, nil
}

// DeleteExpiredAuthorizationCodes purges codes past their expiry
func (s *Storage) DeleteExpiredAuthorizationCodes(ctx context.Context) (int64, error) {
	result, err := s.codes.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lt": time.Now()}})
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired authorization codes: %w", err)
	}
	return result.DeletedCount, nil
}

// DeleteExpiredTokens purges tokens past their expiry. Revoked tokens that
// have not yet expired are kept.
func (s *Storage) DeleteExpiredTokens(ctx context.Context) (int64, error) {
	result, err := s.tokens.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lt": time.Now()}})
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tokens: %w", err)
	}
	return result.DeletedCount, nil
}
