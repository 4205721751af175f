// Package httptransport is the thin HTTP layer. Handlers decode, delegate to
// domain services and encode; no business logic lives here.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mandate/pkg/requestcontext"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Negotiation  *NegotiationHandler
	Verification *VerificationHandler
	Credentials  *CredentialsHandler
	Mates        *MatesHandler
}

// NewRouter wires all endpoints under /api/v1 plus the operational surface.
func NewRouter(h Handlers, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		h.Negotiation.Register(api)
		h.Verification.Register(api)
		h.Credentials.Register(api)
		h.Mates.Register(api)
	})

	logger.Info("router wired")
	return r
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(requestcontext.WithRequestID(r.Context(), id)))
	})
}

// bearerToken extracts the opaque token from an Authorization header carrying
// either the GNAP or the Bearer scheme.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	for _, scheme := range []string{"GNAP ", "Bearer "} {
		if len(header) > len(scheme) && header[:len(scheme)] == scheme {
			return header[len(scheme):]
		}
	}
	return ""
}
