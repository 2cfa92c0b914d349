package graphdb

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"stealthcompany.com/fhirgraph/internal/graph"
)

// ListPatients pages through patients ordered by last then first name
func (s *Store) ListPatients(ctx context.Context, skip, limit int) ([]graph.PatientSummary, error) {
	res, err := s.read(ctx, "list_patients", func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, listPatientsQuery, map[string]any{
			"skip":  int64(skip),
			"limit": int64(limit),
		})
		if err != nil {
			return nil, err
		}

		patients := []graph.PatientSummary{}
		for result.Next(ctx) {
			record := result.Record()
			patients = append(patients, graph.PatientSummaryFromProps(
				getStringFromRecord(record, "id"),
				getMapFromRecord(record, "props"),
			))
		}
		return patients, result.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}
	return res.([]graph.PatientSummary), nil
}

// GetPatient returns one patient's demographics
func (s *Store) GetPatient(ctx context.Context, id string) (graph.PatientDetails, bool, error) {
	res, err := s.read(ctx, "get_patient", func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, getPatientQuery, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		if !result.Next(ctx) {
			return nil, result.Err()
		}
		return getMapFromRecord(result.Record(), "props"), nil
	})
	if err != nil {
		return graph.PatientDetails{}, false, fmt.Errorf("failed to get patient %s: %w", id, err)
	}

	props, _ := res.(map[string]any)
	if props == nil {
		return graph.PatientDetails{}, false, nil
	}
	return graph.PatientDetailsFromProps(id, props), true, nil
}

// PatientEncounters returns a patient's encounters, newest first
func (s *Store) PatientEncounters(ctx context.Context, id string) (graph.PatientEncounters, bool, error) {
	type row struct {
		patient map[string]any
		id      string
		props   map[string]any
	}

	res, err := s.read(ctx, "patient_encounters", func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, patientEncountersQuery, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		var rows []row
		for result.Next(ctx) {
			record := result.Record()
			rows = append(rows, row{
				patient: getMapFromRecord(record, "patient"),
				id:      getStringFromRecord(record, "id"),
				props:   getMapFromRecord(record, "props"),
			})
		}
		return rows, result.Err()
	})
	if err != nil {
		return graph.PatientEncounters{}, false, fmt.Errorf("failed to get encounters for %s: %w", id, err)
	}

	rows, _ := res.([]row)
	if len(rows) == 0 {
		return graph.PatientEncounters{}, false, nil
	}

	view := graph.PatientEncounters{
		PatientID:   id,
		PatientName: graph.PatientDetailsFromProps(id, rows[0].patient).DisplayName(),
		Encounters:  []graph.EncounterSummary{},
	}
	for _, r := range rows {
		// OPTIONAL MATCH yields one null row for a patient without encounters
		if r.id == "" {
			continue
		}
		view.Encounters = append(view.Encounters, graph.EncounterFromProps(r.id, r.props))
	}
	view.TotalEncounters = len(view.Encounters)
	return view, true, nil
}
