package oauth2

import "context"

// Storage is the persistence port shared by every backend (Postgres, SQLite,
// MongoDB). Implementations live under internal/store. The contract every
// backend must satisfy, beyond the method signatures:
//
//   - Lookups return the package sentinels (ErrClientNotFound and friends)
//     when the row is absent, never a bare driver error.
//   - Inserting a duplicate client_id, access_token, code, or non-null
//     refresh_token fails with an error wrapping ErrDuplicateKey. The
//     refresh_token constraint is sparse: any number of null values coexist.
//   - MarkAuthorizationCodeUsed and RevokeToken are idempotent.
type Storage interface {
	// Init prepares the backend: creates tables or collections and their
	// unique indexes. Safe to call repeatedly.
	Init(ctx context.Context) error

	// Healthcheck verifies the backend is reachable. Cheap enough for a
	// readiness probe.
	Healthcheck(ctx context.Context) error

	SaveClient(ctx context.Context, client *Client) error
	GetClient(ctx context.Context, clientID string) (*Client, error)

	SaveUser(ctx context.Context, user *User) error
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	SaveToken(ctx context.Context, token *Token) error
	GetTokenByAccessToken(ctx context.Context, accessToken string) (*Token, error)

	// RevokeToken revokes the row whose access token OR refresh token
	// matches the given value.
	RevokeToken(ctx context.Context, token string) error

	SaveAuthorizationCode(ctx context.Context, code *AuthorizationCode) error
	GetAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error)

	// MarkAuthorizationCodeUsed burns the code with a conditional update
	// (used=false precondition) and reports whether this call won the burn.
	// false with a nil error means another exchange got there first, or the
	// code is gone. Never fails on an already-used code.
	MarkAuthorizationCodeUsed(ctx context.Context, code string) (bool, error)

	// DeleteExpiredAuthorizationCodes and DeleteExpiredTokens purge rows
	// past their expiry, returning how many were removed. Used by the
	// cleanup binary; revoked-but-unexpired tokens are kept for auditing.
	DeleteExpiredAuthorizationCodes(ctx context.Context) (int64, error)
	DeleteExpiredTokens(ctx context.Context) (int64, error)

	Close() error
}
