package oauth2

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/keygate/keygate/internal/audit"
	"github.com/keygate/keygate/internal/events"
)

// DefaultStubSubject is the user bound to authorization codes when no real
// consent collaborator is wired in. Deployments override it via
// OAUTH2_STUB_USER or by injecting their own SubjectResolver.
const DefaultStubSubject = "user_123"

// EventSink receives domain events from the engine. The event fabric's bus
// satisfies it; a discard sink stands in when eventing is disabled.
type EventSink interface {
	Emit(ctx context.Context, ev *events.AuthEvent)
}

type discardSink struct{}

func (discardSink) Emit(context.Context, *events.AuthEvent) {}

// SubjectResolver supplies the authenticated resource owner for an
// authorization request. The server ships without a login UI, so the
// default resolver binds every request to a configured stub subject.
type SubjectResolver interface {
	ResolveSubject(ctx context.Context, req *AuthorizeRequest) (string, error)
}

// StaticSubject resolves every authorization request to a fixed user ID.
type StaticSubject string

// ResolveSubject returns the fixed subject.
func (s StaticSubject) ResolveSubject(context.Context, *AuthorizeRequest) (string, error) {
	return string(s), nil
}

// Options tunes the engine. Zero values fall back to the defaults below.
type Options struct {
	AuthCodeLifetime     time.Duration // default 10m
	AccessTokenLifetime  time.Duration // default 1h
	RefreshTokenLifetime time.Duration // default 720h
	DefaultScope         string        // default "read"

	// AllowPublicClients permits a secretless authorization_code exchange
	// when the code carries a PKCE challenge. Off by default: the hardened
	// variant of this server requires client_secret on every grant.
	AllowPublicClients bool
}

// Service implements the grant engine: the authorize and token state
// machines plus client, code, and token lifecycle operations.
type Service struct {
	store    Storage
	signer   *Signer
	events   EventSink
	audit    audit.Logger
	subjects SubjectResolver

	authCodeLifetime     time.Duration
	accessTokenLifetime  time.Duration
	refreshTokenLifetime time.Duration
	defaultScope         string
	allowPublicClients   bool
}

// NewService creates the grant engine
func NewService(store Storage, signer *Signer, sink EventSink, auditLogger audit.Logger, subjects SubjectResolver, opts Options) *Service {
	if sink == nil {
		sink = discardSink{}
	}
	if auditLogger == nil {
		auditLogger = audit.NewSlogLogger()
	}
	if subjects == nil {
		subjects = StaticSubject(DefaultStubSubject)
	}
	if opts.AuthCodeLifetime <= 0 {
		opts.AuthCodeLifetime = 10 * time.Minute
	}
	if opts.AccessTokenLifetime <= 0 {
		opts.AccessTokenLifetime = 1 * time.Hour
	}
	if opts.RefreshTokenLifetime <= 0 {
		opts.RefreshTokenLifetime = 30 * 24 * time.Hour
	}
	if opts.DefaultScope == "" {
		opts.DefaultScope = "read"
	}

	return &Service{
		store:                store,
		signer:               signer,
		events:               sink,
		audit:                auditLogger,
		subjects:             subjects,
		authCodeLifetime:     opts.AuthCodeLifetime,
		accessTokenLifetime:  opts.AccessTokenLifetime,
		refreshTokenLifetime: opts.RefreshTokenLifetime,
		defaultScope:         opts.DefaultScope,
		allowPublicClients:   opts.AllowPublicClients,
	}
}

// AuthorizeRequest represents an OAuth2 authorization request (RFC 6749 Section 4.1.1)
type AuthorizeRequest struct {
	ClientID            string
	RedirectURI         string
	ResponseType        string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// TokenRequest represents an OAuth2 token request (RFC 6749 Section 4.1.3)
type TokenRequest struct {
	GrantType    string
	Code         string
	RedirectURI  string
	ClientID     string
	ClientSecret string
	CodeVerifier string
	Scope        string
}

// TokenResponse represents an OAuth2 token response (RFC 6749 Section 5.1)
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// Authorize runs the authorization-code state machine and, on success,
// returns the freshly minted code bound to the resolved subject. Every check
// short-circuits with a specific protocol error; the handler decides how to
// present it.
func (s *Service) Authorize(ctx context.Context, req *AuthorizeRequest) (*AuthorizationCode, error) {
	if req.ResponseType != "code" {
		return nil, NewError(ErrInvalidRequest, "Unsupported response_type")
	}

	client, err := s.getClient(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}

	if !client.SupportsGrantType(GrantAuthorizationCode) {
		return nil, NewError(ErrUnauthorizedClient, "Client is not authorized for the authorization_code grant")
	}

	if !client.ValidateRedirectURI(req.RedirectURI) {
		return nil, NewError(ErrInvalidRequest, "Invalid redirect_uri")
	}

	// PKCE is mandatory, and only S256 survives an interception attack
	// (RFC 7636 Section 7.2). plain is honored at exchange time solely for
	// codes that were stored with it.
	if req.CodeChallenge == "" {
		return nil, NewError(ErrInvalidRequest, "Missing code_challenge")
	}
	if req.CodeChallengeMethod != PKCEMethodS256 {
		return nil, NewError(ErrInvalidRequest, "code_challenge_method must be S256")
	}

	scope := req.Scope
	if scope == "" {
		scope = s.defaultScope
	}
	if err := s.checkScope(client, scope); err != nil {
		return nil, err
	}

	userID, err := s.subjects.ResolveSubject(ctx, req)
	if err != nil {
		return nil, NewError(ErrAccessDenied, "Authorization denied")
	}

	code, err := s.createAuthorizationCode(ctx, client.ClientID, userID, req.RedirectURI, scope, req.CodeChallenge, req.CodeChallengeMethod)
	if err != nil {
		return nil, err
	}

	s.audit.Log(ctx, audit.Event{
		Type:     audit.TypeCodeIssued,
		ActorID:  userID,
		Resource: "authorization_code",
		Metadata: map[string]any{"client_id": client.ClientID, "scope": scope},
	})

	return code, nil
}

// Token dispatches a token request to its grant handler (RFC 6749 Section 3.2)
func (s *Service) Token(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	if req.GrantType == "" {
		return nil, NewError(ErrInvalidRequest, "Missing grant_type")
	}
	if req.ClientID == "" {
		return nil, NewError(ErrInvalidRequest, "Missing client_id")
	}

	switch req.GrantType {
	case GrantAuthorizationCode:
		return s.exchangeAuthorizationCode(ctx, req)
	case GrantClientCredentials:
		return s.clientCredentials(ctx, req)
	case "password", "refresh_token":
		return nil, NewError(ErrUnsupportedGrantType, "Grant type disabled")
	default:
		return nil, NewError(ErrUnsupportedGrantType, fmt.Sprintf("Grant type '%s' not supported", req.GrantType))
	}
}

// exchangeAuthorizationCode implements the authorization_code grant.
// The ordering is load-bearing: the code is validated first, the client
// authenticated second, and only then is the code burned. A bad-secret
// attempt must never consume a valid code.
func (s *Service) exchangeAuthorizationCode(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	if req.Code == "" {
		return nil, NewError(ErrInvalidRequest, "Missing code")
	}

	code, err := s.validateAuthorizationCode(ctx, req.Code, req.ClientID, req.RedirectURI, req.CodeVerifier)
	if err != nil {
		return nil, err
	}

	client, err := s.getClient(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}
	if !client.SupportsGrantType(GrantAuthorizationCode) {
		return nil, NewError(ErrUnauthorizedClient, "Client is not authorized for the authorization_code grant")
	}

	if req.ClientSecret == "" {
		// The public-client variant skips the secret only when explicitly
		// enabled and the code is PKCE-bound.
		if !s.allowPublicClients || code.CodeChallenge == "" {
			return nil, NewError(ErrInvalidClient, "Missing client_secret")
		}
	} else if err := s.authenticateClient(ctx, client, req.ClientSecret); err != nil {
		return nil, err
	}

	if err := s.markAuthorizationCodeUsed(ctx, code); err != nil {
		return nil, err
	}

	token, err := s.createToken(ctx, &code.UserID, client.ClientID, code.Scope, false)
	if err != nil {
		return nil, err
	}

	s.audit.Log(ctx, audit.Event{
		Type:     audit.TypeTokenIssued,
		ActorID:  code.UserID,
		Resource: "token",
		Metadata: map[string]any{
			"client_id":  client.ClientID,
			"grant_type": GrantAuthorizationCode,
			"scope":      code.Scope,
		},
	})

	return tokenResponse(token), nil
}

// clientCredentials implements the client_credentials grant (RFC 6749 Section 4.4)
func (s *Service) clientCredentials(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	client, err := s.getClient(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}
	if !client.SupportsGrantType(GrantClientCredentials) {
		return nil, NewError(ErrUnauthorizedClient, "Client is not authorized for the client_credentials grant")
	}

	if req.ClientSecret == "" {
		return nil, NewError(ErrInvalidClient, "Missing client_secret")
	}
	if err := s.authenticateClient(ctx, client, req.ClientSecret); err != nil {
		return nil, err
	}

	scope := req.Scope
	if scope == "" {
		scope = s.defaultScope
	}
	if err := s.checkScope(client, scope); err != nil {
		return nil, err
	}

	token, err := s.createToken(ctx, nil, client.ClientID, scope, false)
	if err != nil {
		return nil, err
	}

	s.audit.Log(ctx, audit.Event{
		Type:     audit.TypeTokenIssued,
		ActorID:  client.ClientID,
		Resource: "token",
		Metadata: map[string]any{
			"client_id":  client.ClientID,
			"grant_type": GrantClientCredentials,
			"scope":      scope,
		},
	})

	return tokenResponse(token), nil
}

func (s *Service) checkScope(client *Client, scope string) error {
	if len(strings.Fields(scope)) == 0 {
		return NewError(ErrInvalidScope, "scope must not be empty")
	}
	if !client.ValidateScope(scope) {
		return NewError(ErrInvalidScope, "requested scope exceeds client permissions")
	}
	return nil
}

func tokenResponse(token *Token) *TokenResponse {
	resp := &TokenResponse{
		AccessToken: token.AccessToken,
		TokenType:   token.TokenType,
		ExpiresIn:   token.ExpiresIn,
		Scope:       token.Scope,
	}
	if token.RefreshToken != nil {
		resp.RefreshToken = *token.RefreshToken
	}
	return resp
}

// storeError keeps backend failures out of client-visible output: duplicate
// keys map to the canonical invalid_request and everything else collapses
// into a server_error carrying only the fallback text.
func storeError(err error, fallback string) *Error {
	oe := AsError(err)
	if oe.Code != ErrServerError {
		return oe
	}
	return NewError(ErrServerError, fallback)
}

// Generators

const alphanumerics = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// randomAlphanumeric draws n characters uniformly from [A-Za-z0-9] using
// rejection sampling, so no byte value biases the output.
func randomAlphanumeric(n int) string {
	out := make([]byte, 0, n)
	buf := make([]byte, n)
	// 248 is the largest multiple of 62 below 256
	const cutoff = 248
	for len(out) < n {
		rand.Read(buf)
		for _, b := range buf {
			if b >= cutoff {
				continue
			}
			out = append(out, alphanumerics[b%62])
			if len(out) == n {
				break
			}
		}
	}
	return string(out)
}

func newID() string {
	return uuid.NewString()
}
