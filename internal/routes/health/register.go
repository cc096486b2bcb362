package health

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Check reports whether the cutover service can read its database pointer.
type Check func(ctx context.Context) error

// RegisterPublic wires unauthenticated liveness checks (e.g., GET /health).
func RegisterPublic(router chi.Router) {
	router.Get("/health", handleHealth)
}

// RegisterProtected wires the authenticated readiness check under /api. It
// fails with 503 while the pointer cannot be read.
func RegisterProtected(router chi.Router, check Check) {
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r.Context()); err != nil {
				writeStatus(w, http.StatusServiceUnavailable, `{"status":"unavailable"}`)
				return
			}
		}
		handleHealth(w, r)
	})
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, http.StatusOK, `{"status":"ok"}`)
}

func writeStatus(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
