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

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/keygate/keygate/internal/audit"
	"github.com/keygate/keygate/internal/config"
	"github.com/keygate/keygate/internal/events"
	"github.com/keygate/keygate/internal/identity"
	"github.com/keygate/keygate/internal/oauth2"
	"github.com/keygate/keygate/internal/observability/logger"
	"github.com/keygate/keygate/internal/observability/metrics"
	"github.com/keygate/keygate/internal/observability/tracing"
	"github.com/keygate/keygate/internal/oidc"
	"github.com/keygate/keygate/internal/store"
	transportHTTP "github.com/keygate/keygate/internal/transport/http"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
		OTELEnabled: cfg.Observability.OTELEnabled,
	})
	slog.Info("starting keygate authorization server")
	slog.Info("configuration loaded", "config", cfg.Sanitized())

	ctx := context.Background()

	// Initialize tracer
	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		SamplingRate:   1.0,
	})
	if err != nil {
		slog.Error("failed to initialize tracer", logger.Error(err))
	}
	defer tracer.Shutdown(ctx)

	// Initialize meter and the domain instruments
	meter, err := metrics.New(ctx, metrics.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
	})
	if err != nil {
		slog.Error("failed to initialize meter", logger.Error(err))
	}
	defer meter.Shutdown(ctx)
	instruments, err := metrics.NewInstruments(meter)
	if err != nil {
		slog.Error("failed to register instruments", logger.Error(err))
		instruments = metrics.NoopInstruments()
	}

	// Open the storage backend named by DATABASE_URL
	storage, err := store.Open(ctx, cfg.Database.URL)
	if err != nil {
		slog.Error("failed to open storage backend", logger.Error(err))
		os.Exit(1)
	}
	defer storage.Close()

	if err := storage.Init(ctx); err != nil {
		slog.Error("failed to initialize storage schema", logger.Error(err))
		os.Exit(1)
	}
	slog.Info("storage ready")

	// Event fabric
	bus, idempotency, err := buildEventFabric(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize event fabric", logger.Error(err))
		os.Exit(1)
	}
	if bus == nil {
		slog.Info("eventing disabled")
	}

	// Initialize helpers
	auditLogger := audit.NewSlogLogger()
	signer := oauth2.NewSigner(cfg.OAuth2.JWTSecret)
	passwordHasher := identity.NewPasswordHasher(
		cfg.Security.Argon2Memory,
		cfg.Security.Argon2Iterations,
		cfg.Security.Argon2Parallelism,
		cfg.Security.Argon2SaltLength,
		cfg.Security.Argon2KeyLength,
	)

	// Initialize services. An interface holding a nil *Bus is not nil, so
	// the sink is only assigned when eventing is on.
	var sink oauth2.EventSink
	if bus != nil {
		sink = bus
	}
	oauth2Service := oauth2.NewService(
		storage,
		signer,
		sink,
		auditLogger,
		oauth2.StaticSubject(cfg.OAuth2.StubUser),
		oauth2.Options{
			AuthCodeLifetime:     cfg.OAuth2.AuthCodeTTL,
			AccessTokenLifetime:  cfg.OAuth2.AccessTokenTTL,
			RefreshTokenLifetime: cfg.OAuth2.RefreshTokenTTL,
			DefaultScope:         cfg.OAuth2.DefaultScope,
			AllowPublicClients:   cfg.OAuth2.AllowPublicClients,
		},
	)
	oidcService := oidc.NewService(cfg.OAuth2.IssuerURL, nil)
	identityService := identity.NewService(storage, passwordHasher, auditLogger)

	// Seed the stub resource owner so issued codes reference a real user row
	bootstrapService := identity.NewBootstrapService(identityService, auditLogger)
	if err := bootstrapService.Bootstrap(ctx, identity.StubUser{SubjectID: cfg.OAuth2.StubUser}); err != nil {
		slog.Error("bootstrap failed", logger.Error(err))
	}

	// Rate Limiter
	rateLimiter := transportHTTP.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)

	// Initialize HTTP handler
	handler := transportHTTP.NewHandler(
		oauth2Service,
		oidcService,
		bus,
		idempotency,
		storage,
		instruments,
	)

	// Create router
	router := transportHTTP.NewRouter(handler, rateLimiter)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start expiry sweep goroutine
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			purgeExpired(ctx, storage)
		}
	}()

	// Start server
	go func() {
		slog.Info("starting http server", logger.Component("server"), logger.Operation("listen"))
		slog.Info(fmt.Sprintf("listening on %s", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", logger.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")

	// Graceful shutdown: stop accepting requests, then flush the fabric
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", logger.Error(err))
	}

	if bus != nil {
		if err := bus.Close(); err != nil {
			slog.Error("event fabric shutdown error", logger.Error(err))
		}
	}

	slog.Info("server stopped")
}

// buildEventFabric assembles the bus from the configured backends. A
// disabled fabric returns all nils; a misconfigured backend fails startup
// rather than silently dropping events later.
func buildEventFabric(ctx context.Context, cfg *config.Config) (*events.Bus, *events.IdempotencyStore, error) {
	if !cfg.Events.Enabled {
		return nil, nil, nil
	}

	filter := events.AllowAll()
	if cfg.Events.FilterMode == "filtered" {
		types := make([]events.Type, 0, len(cfg.Events.EventTypes))
		for _, t := range cfg.Events.EventTypes {
			types = append(types, events.Type(t))
		}
		filter = events.AllowTypes(types...)
	}

	var plugins []events.Plugin
	for _, backend := range cfg.Events.Backends {
		switch backend {
		case "memory":
			plugins = append(plugins, events.NewMemoryLogger(100))

		case "redis":
			p, err := events.NewRedisStreamPlugin(ctx, cfg.Events.Redis.URL, cfg.Events.Redis.Stream, cfg.Events.Redis.MaxLen)
			if err != nil {
				return nil, nil, fmt.Errorf("redis backend: %w", err)
			}
			plugins = append(plugins, p)

		case "kafka":
			plugins = append(plugins, events.NewKafkaPlugin(cfg.Events.Kafka.Brokers, cfg.Events.Kafka.Topic, cfg.Events.Kafka.ClientID))

		case "rabbitmq":
			p, err := events.NewRabbitPlugin(cfg.Events.Rabbit.URL, cfg.Events.Rabbit.Exchange, cfg.Events.Rabbit.RoutingKey)
			if err != nil {
				return nil, nil, fmt.Errorf("rabbitmq backend: %w", err)
			}
			plugins = append(plugins, p)

		case "nats":
			p, err := events.NewNATSPlugin(cfg.Events.NATS.URL, cfg.Events.NATS.Subject)
			if err != nil {
				return nil, nil, fmt.Errorf("nats backend: %w", err)
			}
			plugins = append(plugins, p)

		default:
			return nil, nil, fmt.Errorf("unknown events backend %q", backend)
		}
		slog.Info("event backend attached", "backend", backend)
	}

	bus := events.NewBus(filter, plugins...)
	idem := events.NewIdempotencyStore(cfg.Events.Idempotency.TTL).
		WithMaxEntries(cfg.Events.Idempotency.MaxEntries)
	return bus, idem, nil
}

// purgeExpired sweeps codes and tokens past their expiry. Revoked but
// unexpired tokens stay for auditing.
func purgeExpired(ctx context.Context, storage oauth2.Storage) {
	codes, err := storage.DeleteExpiredAuthorizationCodes(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to purge expired authorization codes", logger.Error(err))
	} else if codes > 0 {
		slog.InfoContext(ctx, "purged expired authorization codes", "count", codes)
	}

	tokens, err := storage.DeleteExpiredTokens(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to purge expired tokens", logger.Error(err))
	} else if tokens > 0 {
		slog.InfoContext(ctx, "purged expired tokens", "count", tokens)
	}
}
