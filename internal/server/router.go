package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/sshwatch/sshwatch/internal/auth"
	"github.com/sshwatch/sshwatch/internal/handlers"
	"github.com/sshwatch/sshwatch/internal/middleware"
)

// NewRouter constructs the HTTP surface. Read endpoints and the live stream
// are gated behind session auth. The ingestion endpoint is trusted/internal
// and stays unauthenticated; restrict it at the network layer.
func NewRouter(
	events *handlers.EventsHandler,
	stream *handlers.StreamHandler,
	authHandler *handlers.AuthHandler,
	health *handlers.HealthHandler,
	authMW *auth.Middleware,
	corsOrigins []string,
) http.Handler {
	mux := http.NewServeMux()

	// Event pipeline endpoints
	mux.HandleFunc("/api/log-events", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			events.Ingest(w, r)
		case http.MethodGet:
			authMW.RequireAuth(events.List)(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/log-events/stats", authMW.RequireAuth(events.Stats))
	mux.HandleFunc("/api/log-events/search", authMW.RequireAuth(events.Search))
	mux.HandleFunc("/api/log-events/stream", authMW.RequireAuth(stream.Stream))

	// Session endpoints
	mux.HandleFunc("/api/auth/login", authHandler.Login)
	mux.HandleFunc("/api/auth/change-password", authMW.RequireAuth(authHandler.ChangePassword))
	mux.HandleFunc("/api/auth/me", authMW.RequireAuth(authHandler.Me))

	// Health endpoints
	mux.HandleFunc("/healthz", health.Health)
	mux.HandleFunc("/readyz", health.Ready)

	// Prometheus metrics
	mux.Handle("/metrics", promhttp.Handler())

	c := cors.New(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
	})

	return middleware.RequestID(c.Handler(mux))
}
