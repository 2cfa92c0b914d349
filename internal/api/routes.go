package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"stealthcompany.com/fhirgraph/internal/graph"
	"stealthcompany.com/fhirgraph/internal/metrics"
)

// SetupRoutes configures and returns the HTTP router
func SetupRoutes(reader graph.Reader, version string) *mux.Router {
	h := NewHandlers(reader, version)

	r := mux.NewRouter()
	r.Use(metrics.MetricsMiddleware)
	r.Use(corsMiddleware)

	r.HandleFunc("/", h.Root).Methods(http.MethodGet)
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	r.HandleFunc("/patients", h.ListPatients).Methods(http.MethodGet)
	r.HandleFunc("/patients/{mrn}", h.GetPatient).Methods(http.MethodGet)
	r.HandleFunc("/patients/{mrn}/encounters", h.GetPatientEncounters).Methods(http.MethodGet)

	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	return r
}

// corsMiddleware allows read-only cross-origin access
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		next.ServeHTTP(w, r)
	})
}
