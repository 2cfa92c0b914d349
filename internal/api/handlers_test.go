package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"stealthcompany.com/fhirgraph/internal/graph"
	"stealthcompany.com/fhirgraph/internal/metrics"
)

// failingReader fails every call with err
type failingReader struct {
	*graph.MemoryStore
	err error
}

func (f failingReader) Ping(context.Context) error { return f.err }

func (f failingReader) ListPatients(context.Context, int, int) ([]graph.PatientSummary, error) {
	return nil, f.err
}

func (f failingReader) GetPatient(context.Context, string) (graph.PatientDetails, bool, error) {
	return graph.PatientDetails{}, false, f.err
}

func seededStore(t *testing.T) *graph.MemoryStore {
	t.Helper()
	ctx := context.Background()
	store := graph.NewMemoryStore()

	nodes := []graph.Node{
		{Label: graph.LabelPatient, ID: "p1", Attrs: map[string]any{"fname": "Ann", "lname": "Zed", "gender": "female"}},
		{Label: graph.LabelPatient, ID: "p2", Attrs: map[string]any{"fname": "Bob", "lname": "Adams"}},
		{Label: graph.LabelPatient, ID: "p3", Attrs: map[string]any{"fname": "Cy", "lname": "Moss"}},
		{Label: graph.LabelEncounter, ID: "e1", Attrs: map[string]any{"status": "finished", "encstart": "2020-01-01T10:00:00Z"}},
		{Label: graph.LabelEncounter, ID: "e2", Attrs: map[string]any{"status": "finished", "encstart": "2021-06-01T10:00:00Z"}},
	}
	if err := store.UpsertNodes(ctx, nodes); err != nil {
		t.Fatalf("Failed to seed nodes: %v", err)
	}

	rel, _ := graph.RelationshipFor(graph.EdgeHasEncounter)
	refs := []graph.Reference{
		{Type: graph.EdgeHasEncounter, FromID: "p1", ToID: "e1"},
		{Type: graph.EdgeHasEncounter, FromID: "p1", ToID: "e2"},
	}
	if _, err := store.LinkReferences(ctx, rel, refs); err != nil {
		t.Fatalf("Failed to seed edges: %v", err)
	}
	return store
}

func serve(reader graph.Reader, method, path string) *httptest.ResponseRecorder {
	router := SetupRoutes(reader, "test")
	req := httptest.NewRequest(method, path, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestRootAndHealth(t *testing.T) {
	store := seededStore(t)

	rr := serve(store, http.MethodGet, "/")
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "/patients/{mrn}/encounters") {
		t.Errorf("Expected endpoint listing, got %s", rr.Body.String())
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Expected CORS header")
	}

	rr = serve(store, http.MethodGet, "/health")
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}

	down := failingReader{MemoryStore: store, err: fmt.Errorf("%w: refused", graph.ErrUnavailable)}
	rr = serve(down, http.MethodGet, "/health")
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", rr.Code)
	}
}

func TestListPatients(t *testing.T) {
	store := seededStore(t)

	tests := []struct {
		name           string
		query          string
		expectedStatus int
		expectedIDs    []string
	}{
		{"defaults", "", http.StatusOK, []string{"p2", "p3", "p1"}},
		{"limit", "?limit=2", http.StatusOK, []string{"p2", "p3"}},
		{"skip", "?skip=1&limit=1", http.StatusOK, []string{"p3"}},
		{"skip past end", "?skip=10", http.StatusOK, []string{}},
		{"limit zero", "?limit=0", http.StatusBadRequest, nil},
		{"limit too large", "?limit=1001", http.StatusBadRequest, nil},
		{"negative skip", "?skip=-1", http.StatusBadRequest, nil},
		{"not a number", "?limit=ten", http.StatusBadRequest, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(store, http.MethodGet, "/patients"+tt.query)
			if rr.Code != tt.expectedStatus {
				t.Fatalf("Expected status %d, got %d: %s", tt.expectedStatus, rr.Code, rr.Body.String())
			}
			if tt.expectedIDs == nil {
				var body map[string]string
				if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil || body["detail"] == "" {
					t.Errorf("Expected detail message, got %s", rr.Body.String())
				}
				return
			}

			var patients []graph.PatientSummary
			if err := json.Unmarshal(rr.Body.Bytes(), &patients); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if len(patients) != len(tt.expectedIDs) {
				t.Fatalf("Expected %d patients, got %d", len(tt.expectedIDs), len(patients))
			}
			for i, id := range tt.expectedIDs {
				if patients[i].ID != id {
					t.Errorf("Expected patient %d to be %s, got %s", i, id, patients[i].ID)
				}
			}
		})
	}
}

func TestListPatientsEmptyArray(t *testing.T) {
	rr := serve(graph.NewMemoryStore(), http.MethodGet, "/patients")
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Errorf("Expected empty JSON array, got %s", rr.Body.String())
	}
}

func TestGetPatient(t *testing.T) {
	store := seededStore(t)

	rr := serve(store, http.MethodGet, "/patients/p1")
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	var patient graph.PatientDetails
	if err := json.Unmarshal(rr.Body.Bytes(), &patient); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if patient.ID != "p1" || patient.FName == nil || *patient.FName != "Ann" {
		t.Errorf("Expected Ann (p1), got %+v", patient)
	}
	if patient.Race != nil {
		t.Errorf("Expected null race, got %v", *patient.Race)
	}

	rr = serve(store, http.MethodGet, "/patients/nope")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("Expected status 404, got %d", rr.Code)
	}
	var body map[string]string
	json.Unmarshal(rr.Body.Bytes(), &body)
	if body["detail"] != "Patient not found with MRN: nope" {
		t.Errorf("Expected not found detail, got %q", body["detail"])
	}

	broken := failingReader{MemoryStore: store, err: errors.New("boom")}
	rr = serve(broken, http.MethodGet, "/patients/p1")
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", rr.Code)
	}
}

func TestGetPatientEncounters(t *testing.T) {
	store := seededStore(t)

	rr := serve(store, http.MethodGet, "/patients/p1/encounters")
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	var view graph.PatientEncounters
	if err := json.Unmarshal(rr.Body.Bytes(), &view); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if view.PatientName != "Ann Zed" {
		t.Errorf("Expected patient name Ann Zed, got %q", view.PatientName)
	}
	if view.TotalEncounters != 2 || len(view.Encounters) != 2 {
		t.Fatalf("Expected 2 encounters, got %d", view.TotalEncounters)
	}
	if view.Encounters[0].ID != "e2" {
		t.Errorf("Expected newest encounter first, got %s", view.Encounters[0].ID)
	}

	rr = serve(store, http.MethodGet, "/patients/p2/encounters")
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"encounters":[]`) {
		t.Errorf("Expected empty encounters array, got %s", rr.Body.String())
	}

	rr = serve(store, http.MethodGet, "/patients/nope/encounters")
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rr.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	rr := serve(graph.NewMemoryStore(), http.MethodPost, "/patients")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	metrics.Configure(metrics.Options{Business: true})
	defer metrics.Configure(metrics.Options{})

	store := seededStore(t)
	serve(store, http.MethodGet, "/patients/p1")

	rr := serve(store, http.MethodGet, "/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `endpoint="/patients/{mrn}"`) {
		t.Errorf("Expected route template label in metrics output")
	}
}

type readyAfter struct {
	calls int
	after int
	err   error
}

func (r *readyAfter) IsIngestionReady(context.Context) (bool, error) {
	r.calls++
	if r.err != nil {
		return false, r.err
	}
	return r.calls > r.after, nil
}

func TestWaitForIngestion(t *testing.T) {
	t.Run("ready immediately", func(t *testing.T) {
		checker := &readyAfter{}
		if err := WaitForIngestion(context.Background(), checker, time.Millisecond); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if checker.calls != 1 {
			t.Errorf("Expected 1 check, got %d", checker.calls)
		}
	})

	t.Run("ready after polling", func(t *testing.T) {
		checker := &readyAfter{after: 2}
		if err := WaitForIngestion(context.Background(), checker, time.Millisecond); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if checker.calls != 3 {
			t.Errorf("Expected 3 checks, got %d", checker.calls)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		checker := &readyAfter{err: errors.New("couchbase down")}
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		err := WaitForIngestion(ctx, checker, time.Millisecond)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Expected deadline exceeded, got %v", err)
		}
	})
}
