package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"stealthcompany.com/fhirgraph/internal/graph"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// Handlers serves the read-only patient projections from a graph.Reader
type Handlers struct {
	reader  graph.Reader
	version string
}

// NewHandlers creates handlers backed by reader
func NewHandlers(reader graph.Reader, version string) *Handlers {
	return &Handlers{reader: reader, version: version}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// Root returns service information
func (h *Handlers) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "FHIR Patient Data API",
		"version": h.version,
		"endpoints": map[string]string{
			"patients":           "/patients",
			"patient_details":    "/patients/{mrn}",
			"patient_encounters": "/patients/{mrn}/encounters",
			"metrics":            "/metrics",
		},
	})
}

// Health reports 200 when the graph store answers, 503 otherwise
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.reader.Ping(r.Context()); err != nil {
		log.Warn().Err(err).Msg("Health check failed")
		writeDetail(w, http.StatusServiceUnavailable, "Database connection unhealthy")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "healthy",
		"database": "connected",
	})
}

// parseIntParam reads an optional integer query parameter within [min, max]
func parseIntParam(r *http.Request, name string, def, min, max int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	if v < min || (max > 0 && v > max) {
		if max > 0 {
			return 0, fmt.Errorf("%s must be between %d and %d", name, min, max)
		}
		return 0, fmt.Errorf("%s must be at least %d", name, min)
	}
	return v, nil
}

// ListPatients handles GET /patients?limit=&skip=
func (h *Handlers) ListPatients(w http.ResponseWriter, r *http.Request) {
	limit, err := parseIntParam(r, "limit", defaultLimit, 1, maxLimit)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	skip, err := parseIntParam(r, "skip", 0, 0, 0)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	patients, err := h.reader.ListPatients(r.Context(), skip, limit)
	if err != nil {
		log.Error().Err(err).Msg("Error retrieving patients")
		writeDetail(w, http.StatusInternalServerError, "Failed to retrieve patients: "+err.Error())
		return
	}

	log.Info().Int("count", len(patients)).Int("limit", limit).Int("skip", skip).Msg("Retrieved patients")
	writeJSON(w, http.StatusOK, patients)
}

// GetPatient handles GET /patients/{mrn}
func (h *Handlers) GetPatient(w http.ResponseWriter, r *http.Request) {
	mrn := mux.Vars(r)["mrn"]

	patient, found, err := h.reader.GetPatient(r.Context(), mrn)
	if err != nil {
		log.Error().Err(err).Str("mrn", mrn).Msg("Error retrieving patient")
		writeDetail(w, http.StatusInternalServerError, "Failed to retrieve patient details: "+err.Error())
		return
	}
	if !found {
		writeDetail(w, http.StatusNotFound, "Patient not found with MRN: "+mrn)
		return
	}

	log.Info().Str("mrn", mrn).Msg("Retrieved patient details")
	writeJSON(w, http.StatusOK, patient)
}

// GetPatientEncounters handles GET /patients/{mrn}/encounters
func (h *Handlers) GetPatientEncounters(w http.ResponseWriter, r *http.Request) {
	mrn := mux.Vars(r)["mrn"]

	view, found, err := h.reader.PatientEncounters(r.Context(), mrn)
	if err != nil {
		log.Error().Err(err).Str("mrn", mrn).Msg("Error retrieving encounters")
		writeDetail(w, http.StatusInternalServerError, "Failed to retrieve patient encounters: "+err.Error())
		return
	}
	if !found {
		writeDetail(w, http.StatusNotFound, "Patient not found with MRN: "+mrn)
		return
	}

	log.Info().Str("mrn", mrn).Int("encounters", view.TotalEncounters).Msg("Retrieved patient encounters")
	writeJSON(w, http.StatusOK, view)
}
