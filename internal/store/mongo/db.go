package mongo

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	appName = "keygate"

	// defaultDatabase is used when the connection URI names no database.
	defaultDatabase = "keygate"

	disconnectTimeout = 5 * time.Second
)

// Storage is the MongoDB backend. Uniqueness lives in unique indexes on
// the same fields the SQL backends constrain, created by Init.
type Storage struct {
	client  *mongo.Client
	clients *mongo.Collection
	users   *mongo.Collection
	tokens  *mongo.Collection
	codes   *mongo.Collection
}

// New connects to the MongoDB URI and verifies the connection.
func New(ctx context.Context, uri string) (*Storage, error) {
	clientOpts := options.Client().ApplyURI(uri)
	if clientOpts.AppName == nil {
		clientOpts.SetAppName(appName)
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	db := client.Database(databaseName(uri))

	return &Storage{
		client:  client,
		clients: db.Collection("clients"),
		users:   db.Collection("users"),
		tokens:  db.Collection("tokens"),
		codes:   db.Collection("authorization_codes"),
	}, nil
}

// databaseName extracts the database from the URI path, falling back to
// defaultDatabase when the URI names none.
func databaseName(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return defaultDatabase
	}
	if name := strings.TrimPrefix(u.Path, "/"); name != "" {
		return name
	}
	return defaultDatabase
}

// Init creates the indexes backing the uniqueness contract. Index creation
// is idempotent, so repeated startups are safe.
func (s *Storage) Init(ctx context.Context) error {
	_, err := s.clients.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "client_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create client indexes: %w", err)
	}

	_, err = s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "email", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create user indexes: %w", err)
	}

	_, err = s.tokens.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "access_token", Value: 1}}, Options: options.Index().SetUnique(true)},
		// Sparse: documents without a refresh token stay out of the index.
		{Keys: bson.D{{Key: "refresh_token", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
		{Keys: bson.D{{Key: "expires_at", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create token indexes: %w", err)
	}

	_, err = s.codes.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "code", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "expires_at", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create authorization code indexes: %w", err)
	}

	return nil
}

// Healthcheck verifies the database is reachable.
func (s *Storage) Healthcheck(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("failed to ping mongodb: %w", err)
	}
	return nil
}

// Close disconnects from the server.
func (s *Storage) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()

	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from mongodb: %w", err)
	}
	return nil
}
