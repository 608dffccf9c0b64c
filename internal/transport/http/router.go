// Package httptransport assembles the public router. Handlers own their route
// groups and middleware; this file only mounts them next to the operational
// endpoints.
package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	compliancehandler "github.com/Mawilis/legal-doc-system-sub010/internal/compliance/handler"
	"github.com/Mawilis/legal-doc-system-sub010/internal/platform/metrics"
)

// NewRouter wires the compliance API, health check, and metrics endpoint.
func NewRouter(compliance *compliancehandler.Handler) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	compliance.Register(r)
	return r
}
