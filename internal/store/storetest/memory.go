package storetest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/keygate/keygate/internal/oauth2"
)

// MemoryStorage is an in-memory reference implementation of the storage
// contract, for unit tests that need realistic semantics (sentinels,
// duplicate rejection, conditional burning) without a database. It runs the
// same contract suite as the real backends.
type MemoryStorage struct {
	mu      sync.Mutex
	clients map[string]*oauth2.Client            // by client_id
	users   map[string]*oauth2.User              // by username
	tokens  map[string]*oauth2.Token             // by access_token
	refresh map[string]string                    // refresh_token -> access_token
	codes   map[string]*oauth2.AuthorizationCode // by code
}

// NewMemoryStorage returns an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		clients: make(map[string]*oauth2.Client),
		users:   make(map[string]*oauth2.User),
		tokens:  make(map[string]*oauth2.Token),
		refresh: make(map[string]string),
		codes:   make(map[string]*oauth2.AuthorizationCode),
	}
}

func (m *MemoryStorage) Init(ctx context.Context) error        { return nil }
func (m *MemoryStorage) Healthcheck(ctx context.Context) error { return nil }
func (m *MemoryStorage) Close() error                          { return nil }

func (m *MemoryStorage) SaveClient(ctx context.Context, client *oauth2.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.clients[client.ClientID]; exists {
		return fmt.Errorf("client: %w", oauth2.ErrDuplicateKey)
	}
	m.clients[client.ClientID] = copyClient(client)
	return nil
}

func (m *MemoryStorage) GetClient(ctx context.Context, clientID string) (*oauth2.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	client, ok := m.clients[clientID]
	if !ok {
		return nil, oauth2.ErrClientNotFound
	}
	return copyClient(client), nil
}

func (m *MemoryStorage) SaveUser(ctx context.Context, user *oauth2.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.users[user.Username]; exists {
		return fmt.Errorf("user: %w", oauth2.ErrDuplicateKey)
	}
	u := *user
	m.users[user.Username] = &u
	return nil
}

func (m *MemoryStorage) GetUserByUsername(ctx context.Context, username string) (*oauth2.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[username]
	if !ok {
		return nil, oauth2.ErrUserNotFound
	}
	u := *user
	return &u, nil
}

func (m *MemoryStorage) SaveToken(ctx context.Context, token *oauth2.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tokens[token.AccessToken]; exists {
		return fmt.Errorf("token: %w", oauth2.ErrDuplicateKey)
	}
	if token.RefreshToken != nil {
		if _, exists := m.refresh[*token.RefreshToken]; exists {
			return fmt.Errorf("token: %w", oauth2.ErrDuplicateKey)
		}
		m.refresh[*token.RefreshToken] = token.AccessToken
	}
	m.tokens[token.AccessToken] = copyToken(token)
	return nil
}

func (m *MemoryStorage) GetTokenByAccessToken(ctx context.Context, accessToken string) (*oauth2.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, ok := m.tokens[accessToken]
	if !ok {
		return nil, oauth2.ErrTokenNotFound
	}
	return copyToken(token), nil
}

func (m *MemoryStorage) RevokeToken(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if stored, ok := m.tokens[token]; ok {
		stored.Revoked = true
		return nil
	}
	if access, ok := m.refresh[token]; ok {
		if stored, ok := m.tokens[access]; ok {
			stored.Revoked = true
		}
	}
	return nil
}

func (m *MemoryStorage) SaveAuthorizationCode(ctx context.Context, code *oauth2.AuthorizationCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.codes[code.Code]; exists {
		return fmt.Errorf("authorization code: %w", oauth2.ErrDuplicateKey)
	}
	c := *code
	m.codes[code.Code] = &c
	return nil
}

func (m *MemoryStorage) GetAuthorizationCode(ctx context.Context, code string) (*oauth2.AuthorizationCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.codes[code]
	if !ok {
		return nil, oauth2.ErrCodeNotFound
	}
	c := *stored
	return &c, nil
}

func (m *MemoryStorage) MarkAuthorizationCodeUsed(ctx context.Context, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.codes[code]
	if !ok || stored.Used {
		return false, nil
	}
	stored.Used = true
	return true, nil
}

func (m *MemoryStorage) DeleteExpiredAuthorizationCodes(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var deleted int64
	for code, stored := range m.codes {
		if stored.ExpiresAt.Before(now) {
			delete(m.codes, code)
			deleted++
		}
	}
	return deleted, nil
}

func (m *MemoryStorage) DeleteExpiredTokens(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var deleted int64
	for access, stored := range m.tokens {
		if stored.ExpiresAt.Before(now) {
			if stored.RefreshToken != nil {
				delete(m.refresh, *stored.RefreshToken)
			}
			delete(m.tokens, access)
			deleted++
		}
	}
	return deleted, nil
}

func copyClient(c *oauth2.Client) *oauth2.Client {
	out := *c
	out.RedirectURIs = append([]string(nil), c.RedirectURIs...)
	out.GrantTypes = append([]string(nil), c.GrantTypes...)
	return &out
}

func copyToken(t *oauth2.Token) *oauth2.Token {
	out := *t
	if t.RefreshToken != nil {
		v := *t.RefreshToken
		out.RefreshToken = &v
	}
	if t.UserID != nil {
		v := *t.UserID
		out.UserID = &v
	}
	return &out
}
