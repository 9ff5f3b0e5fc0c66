// @title Keygate API
// @version 1.0.0
// @description OAuth 2.0 authorization server with mandatory PKCE and a pluggable event fabric
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.url http://www.swagger.io/support
// @contact.email support@swagger.io

// @license.name Apache 2.0
// @license.url https://www.apache.org/licenses/LICENSE-2.0.html

// @host localhost:8080
// @BasePath /

package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/keygate/keygate/internal/events"
	"github.com/keygate/keygate/internal/oauth2"
	"github.com/keygate/keygate/internal/observability/logger"
	"github.com/keygate/keygate/internal/observability/metrics"
	"github.com/keygate/keygate/internal/oidc"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Handler holds HTTP handlers and dependencies
type Handler struct {
	oauth2Service *oauth2.Service
	oidcService   *oidc.Service
	bus           *events.Bus
	idempotency   *events.IdempotencyStore
	storage       oauth2.Storage
	instruments   *metrics.Instruments
	eventsEnabled bool
}

// NewHandler creates a new HTTP handler. bus may be nil when eventing is
// disabled; the ingest endpoint then answers 503. A nil instruments falls
// back to no-op counters so handlers never branch on configuration.
func NewHandler(
	oauth2Service *oauth2.Service,
	oidcService *oidc.Service,
	bus *events.Bus,
	idempotency *events.IdempotencyStore,
	storage oauth2.Storage,
	instruments *metrics.Instruments,
) *Handler {
	if instruments == nil {
		instruments = metrics.NoopInstruments()
	}
	return &Handler{
		oauth2Service: oauth2Service,
		oidcService:   oidcService,
		bus:           bus,
		idempotency:   idempotency,
		storage:       storage,
		instruments:   instruments,
		eventsEnabled: bus != nil,
	}
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, rateLimiter *RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RateLimitMiddleware(rateLimiter))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware(h.instruments))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Liveness and readiness
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadinessCheck)

	// Discovery (OIDC Discovery Section 4)
	r.Get("/.well-known/openid-configuration", h.Discovery)

	// OAuth2 protocol surface
	r.Route("/oauth", func(r chi.Router) {
		// RFC 6749 Section 4.1.1
		r.Get("/authorize", h.Authorize)

		// RFC 6749 Section 4.1.3
		r.Post("/token", h.Token)

		// RFC 7662
		r.Post("/introspect", h.Introspect)

		// RFC 7009
		r.Post("/revoke", h.Revoke)
	})

	// Client registration
	r.Post("/clients", h.RegisterClient)

	// Event fabric
	r.Route("/events", func(r chi.Router) {
		r.Post("/ingest", h.IngestEvent)
		r.Get("/health", h.EventsHealth)
	})

	return r
}

// HealthCheck returns the health status
// @Summary Health Check
// @Description Checks if the service is up and running
// @Tags System
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "keygate",
	})
}

// ReadinessCheck reports whether the storage backend is reachable
// @Summary Readiness Check
// @Description Checks if the storage backend is reachable
// @Tags System
// @Produce json
// @Success 200 {object} map[string]any
// @Failure 503 {object} map[string]any
// @Router /ready [get]
func (h *Handler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.storage.Healthcheck(r.Context()); err != nil {
		slog.ErrorContext(r.Context(), "readiness check failed", logger.Error(err))
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unavailable",
			"checks": map[string]string{"database": "failed"},
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
		"checks": map[string]string{"database": "ok"},
	})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

func getIPAddress(r *http.Request) string {
	// Check X-Forwarded-For header first
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
