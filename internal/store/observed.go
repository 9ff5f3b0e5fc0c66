package store

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/keygate/keygate/internal/oauth2"
)

var tracer trace.Tracer

func init() {
	tracer = otel.Tracer("github.com/keygate/keygate/internal/store")
}

// Observed wraps a Storage backend with a span per operation.
type Observed struct {
	next   oauth2.Storage
	system attribute.KeyValue
}

// Observe decorates next with tracing. The system name ends up in the
// db.system attribute of every span.
func Observe(next oauth2.Storage, system string) *Observed {
	return &Observed{next: next, system: attribute.String("db.system", system)}
}

// recordIfReal records err on the span unless it is one of the domain
// sentinels. Expected misses and duplicate rejections are normal control
// flow, not failures.
func recordIfReal(span trace.Span, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, oauth2.ErrClientNotFound),
		errors.Is(err, oauth2.ErrUserNotFound),
		errors.Is(err, oauth2.ErrCodeNotFound),
		errors.Is(err, oauth2.ErrTokenNotFound),
		errors.Is(err, oauth2.ErrDuplicateKey):
		return
	}
	span.RecordError(err)
}

func (o *Observed) start(ctx context.Context, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, op, trace.WithAttributes(o.system))
}

func (o *Observed) Init(ctx context.Context) error {
	ctx, span := o.start(ctx, "store.Init")
	defer span.End()

	err := o.next.Init(ctx)
	recordIfReal(span, err)
	return err
}

func (o *Observed) Healthcheck(ctx context.Context) error {
	ctx, span := o.start(ctx, "store.Healthcheck")
	defer span.End()

	err := o.next.Healthcheck(ctx)
	recordIfReal(span, err)
	return err
}

func (o *Observed) SaveClient(ctx context.Context, client *oauth2.Client) error {
	ctx, span := o.start(ctx, "store.SaveClient")
	defer span.End()

	err := o.next.SaveClient(ctx, client)
	recordIfReal(span, err)
	return err
}

func (o *Observed) GetClient(ctx context.Context, clientID string) (*oauth2.Client, error) {
	ctx, span := o.start(ctx, "store.GetClient")
	defer span.End()

	client, err := o.next.GetClient(ctx, clientID)
	recordIfReal(span, err)
	return client, err
}

func (o *Observed) SaveUser(ctx context.Context, user *oauth2.User) error {
	ctx, span := o.start(ctx, "store.SaveUser")
	defer span.End()

	err := o.next.SaveUser(ctx, user)
	recordIfReal(span, err)
	return err
}

func (o *Observed) GetUserByUsername(ctx context.Context, username string) (*oauth2.User, error) {
	ctx, span := o.start(ctx, "store.GetUserByUsername")
	defer span.End()

	user, err := o.next.GetUserByUsername(ctx, username)
	recordIfReal(span, err)
	return user, err
}

func (o *Observed) SaveToken(ctx context.Context, token *oauth2.Token) error {
	ctx, span := o.start(ctx, "store.SaveToken")
	defer span.End()

	err := o.next.SaveToken(ctx, token)
	recordIfReal(span, err)
	return err
}

func (o *Observed) GetTokenByAccessToken(ctx context.Context, accessToken string) (*oauth2.Token, error) {
	ctx, span := o.start(ctx, "store.GetTokenByAccessToken")
	defer span.End()

	token, err := o.next.GetTokenByAccessToken(ctx, accessToken)
	recordIfReal(span, err)
	return token, err
}

func (o *Observed) RevokeToken(ctx context.Context, token string) error {
	ctx, span := o.start(ctx, "store.RevokeToken")
	defer span.End()

	err := o.next.RevokeToken(ctx, token)
	recordIfReal(span, err)
	return err
}

func (o *Observed) SaveAuthorizationCode(ctx context.Context, code *oauth2.AuthorizationCode) error {
	ctx, span := o.start(ctx, "store.SaveAuthorizationCode")
	defer span.End()

	err := o.next.SaveAuthorizationCode(ctx, code)
	recordIfReal(span, err)
	return err
}

func (o *Observed) GetAuthorizationCode(ctx context.Context, code string) (*oauth2.AuthorizationCode, error) {
	ctx, span := o.start(ctx, "store.GetAuthorizationCode")
	defer span.End()

	authCode, err := o.next.GetAuthorizationCode(ctx, code)
	recordIfReal(span, err)
	return authCode, err
}

func (o *Observed) MarkAuthorizationCodeUsed(ctx context.Context, code string) (bool, error) {
	ctx, span := o.start(ctx, "store.MarkAuthorizationCodeUsed")
	defer span.End()

	burned, err := o.next.MarkAuthorizationCodeUsed(ctx, code)
	recordIfReal(span, err)
	return burned, err
}

func (o *Observed) DeleteExpiredAuthorizationCodes(ctx context.Context) (int64, error) {
	ctx, span := o.start(ctx, "store.DeleteExpiredAuthorizationCodes")
	defer span.End()

	n, err := o.next.DeleteExpiredAuthorizationCodes(ctx)
	recordIfReal(span, err)
	return n, err
}

func (o *Observed) DeleteExpiredTokens(ctx context.Context) (int64, error) {
	ctx, span := o.start(ctx, "store.DeleteExpiredTokens")
	defer span.End()

	n, err := o.next.DeleteExpiredTokens(ctx)
	recordIfReal(span, err)
	return n, err
}

func (o *Observed) Close() error {
	return o.next.Close()
}
