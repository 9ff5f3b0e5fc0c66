package mongo

import (
	"time"

	"github.com/keygate/keygate/internal/oauth2"
)

// Document types mirror the core models with bson field names; the core
// models carry json tags only, which the driver does not read. The
// refresh_token field must be omitted when nil so the sparse unique index
// never sees two nulls.

type clientDoc struct {
	ID           string    `bson:"id"`
	ClientID     string    `bson:"client_id"`
	ClientSecret string    `bson:"client_secret"`
	RedirectURIs []string  `bson:"redirect_uris"`
	GrantTypes   []string  `bson:"grant_types"`
	Scope        string    `bson:"scope"`
	Name         string    `bson:"name"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

func newClientDoc(c *oauth2.Client) clientDoc {
	return clientDoc{
		ID:           c.ID,
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURIs: c.RedirectURIs,
		GrantTypes:   c.GrantTypes,
		Scope:        c.Scope,
		Name:         c.Name,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

func (d clientDoc) model() *oauth2.Client {
	return &oauth2.Client{
		ID:           d.ID,
		ClientID:     d.ClientID,
		ClientSecret: d.ClientSecret,
		RedirectURIs: d.RedirectURIs,
		GrantTypes:   d.GrantTypes,
		Scope:        d.Scope,
		Name:         d.Name,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

type userDoc struct {
	ID           string    `bson:"id"`
	Username     string    `bson:"username"`
	PasswordHash string    `bson:"password_hash"`
	Email        string    `bson:"email"`
	Enabled      bool      `bson:"enabled"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

func newUserDoc(u *oauth2.User) userDoc {
	return userDoc{
		ID:           u.ID,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		Email:        u.Email,
		Enabled:      u.Enabled,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func (d userDoc) model() *oauth2.User {
	return &oauth2.User{
		ID:           d.ID,
		Username:     d.Username,
		PasswordHash: d.PasswordHash,
		Email:        d.Email,
		Enabled:      d.Enabled,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

type tokenDoc struct {
	ID           string    `bson:"id"`
	AccessToken  string    `bson:"access_token"`
	RefreshToken *string   `bson:"refresh_token,omitempty"`
	TokenType    string    `bson:"token_type"`
	ExpiresIn    int       `bson:"expires_in"`
	Scope        string    `bson:"scope"`
	ClientID     string    `bson:"client_id"`
	UserID       *string   `bson:"user_id,omitempty"`
	CreatedAt    time.Time `bson:"created_at"`
	ExpiresAt    time.Time `bson:"expires_at"`
	Revoked      bool      `bson:"revoked"`
}

func newTokenDoc(t *oauth2.Token) tokenDoc {
	return tokenDoc{
		ID:           t.ID,
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		ExpiresIn:    t.ExpiresIn,
		Scope:        t.Scope,
		ClientID:     t.ClientID,
		UserID:       t.UserID,
		CreatedAt:    t.CreatedAt,
		ExpiresAt:    t.ExpiresAt,
		Revoked:      t.Revoked,
	}
}

func (d tokenDoc) model() *oauth2.Token {
	return &oauth2.Token{
		ID:           d.ID,
		AccessToken:  d.AccessToken,
		RefreshToken: d.RefreshToken,
		TokenType:    d.TokenType,
		ExpiresIn:    d.ExpiresIn,
		Scope:        d.Scope,
		ClientID:     d.ClientID,
		UserID:       d.UserID,
		CreatedAt:    d.CreatedAt,
		ExpiresAt:    d.ExpiresAt,
		Revoked:      d.Revoked,
	}
}

type authorizationCodeDoc struct {
	ID                  string    `bson:"id"`
	Code                string    `bson:"code"`
	ClientID            string    `bson:"client_id"`
	UserID              string    `bson:"user_id"`
	RedirectURI         string    `bson:"redirect_uri"`
	Scope               string    `bson:"scope"`
	CreatedAt           time.Time `bson:"created_at"`
	ExpiresAt           time.Time `bson:"expires_at"`
	Used                bool      `bson:"used"`
	CodeChallenge       string    `bson:"code_challenge,omitempty"`
	CodeChallengeMethod string    `bson:"code_challenge_method,omitempty"`
}

func newAuthorizationCodeDoc(c *oauth2.AuthorizationCode) authorizationCodeDoc {
	return authorizationCodeDoc{
		ID:                  c.ID,
		Code:                c.Code,
		ClientID:            c.ClientID,
		UserID:              c.UserID,
		RedirectURI:         c.RedirectURI,
		Scope:               c.Scope,
		CreatedAt:           c.CreatedAt,
		ExpiresAt:           c.ExpiresAt,
		Used:                c.Used,
		CodeChallenge:       c.CodeChallenge,
		CodeChallengeMethod: c.CodeChallengeMethod,
	}
}

func (d authorizationCodeDoc) model() *oauth2.AuthorizationCode {
	return &oauth2.AuthorizationCode{
		ID:                  d.ID,
		Code:                d.Code,
		ClientID:            d.ClientID,
		UserID:              d.UserID,
		RedirectURI:         d.RedirectURI,
		Scope:               d.Scope,
		CreatedAt:           d.CreatedAt,
		ExpiresAt:           d.ExpiresAt,
		Used:                d.Used,
		CodeChallenge:       d.CodeChallenge,
		CodeChallengeMethod: d.CodeChallengeMethod,
	}
}
