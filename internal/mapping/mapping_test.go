package mapping

import (
	"encoding/json"
	"errors"
	"testing"

	"stealthcompany.com/fhirgraph/internal/fhir"
	"stealthcompany.com/fhirgraph/internal/graph"
)

func record(t *testing.T, raw string) fhir.Record {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		t.Fatalf("bad fixture: %v", err)
	}
	rec, err := fhir.NewRecord(v)
	if err != nil {
		t.Fatalf("NewRecord: %v", err)
	}
	return rec
}

func mapRecord(t *testing.T, raw string) Result {
	t.Helper()
	rec := record(t, raw)
	res, err := Map(fhir.ParseResourceType(rec.String("/resourceType")), rec)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	return res
}

func findRef(refs []graph.Reference, t graph.EdgeType) (graph.Reference, bool) {
	for _, r := range refs {
		if r.Type == t {
			return r, true
		}
	}
	return graph.Reference{}, false
}

func TestTableCoversEveryResourceType(t *testing.T) {
	for _, rt := range fhir.SupportedResourceTypes() {
		if _, ok := For(rt); !ok {
			t.Errorf("no mapper for %s", rt)
		}
	}
	if _, ok := For(fhir.Unsupported); ok {
		t.Error("Unsupported should have no mapper")
	}
}

func TestMapRejectsMissingID(t *testing.T) {
	for _, rt := range fhir.SupportedResourceTypes() {
		rec := record(t, `{"resourceType": "`+rt.String()+`", "id": "  "}`)
		if _, err := Map(rt, rec); !errors.Is(err, ErrMissingID) {
			t.Errorf("%s: expected ErrMissingID, got %v", rt, err)
		}
	}
}

func TestMapUnsupported(t *testing.T) {
	if _, err := Map(fhir.Unsupported, fhir.Record{"id": "x"}); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Expected ErrUnsupported, got %v", err)
	}
}

func TestMapRecoversPanics(t *testing.T) {
	Table[fhir.Unsupported] = func(fhir.Record) (Result, error) { panic("boom") }
	defer delete(Table, fhir.Unsupported)

	if _, err := Map(fhir.Unsupported, fhir.Record{}); err == nil {
		t.Error("Expected an error from a panicking mapper")
	}
}

func TestMapPatient(t *testing.T) {
	res := mapRecord(t, `{
		"resourceType": "Patient",
		"id": "p1",
		"name": [
			{"use": "nickname", "given": ["Annie"]},
			{"use": "official", "family": "Smith", "given": ["Ann", "Marie"], "prefix": ["Mrs."]}
		],
		"gender": "female",
		"birthDate": "1970-02-03",
		"maritalStatus": {"coding": [{"display": "Married"}]},
		"address": [{"line": ["1 Main St", "Apt 2"], "city": "Boston", "state": "MA", "postalCode": "02115", "country": "US"}],
		"extension": [
			{"url": "http://hl7.org/fhir/us/core/StructureDefinition/us-core-race",
			 "extension": [{"url": "ombCategory", "valueCoding": {"display": "White"}}, {"url": "text", "valueString": "White"}]},
			{"url": "http://hl7.org/fhir/us/core/StructureDefinition/us-core-ethnicity",
			 "extension": [{"url": "ombCategory", "valueCoding": {"display": "Not Hispanic or Latino"}}]}
		]
	}`)

	if res.Node.Label != graph.LabelPatient || res.Node.ID != "p1" {
		t.Fatalf("unexpected node %+v", res.Node)
	}

	expected := map[string]any{
		"fname":         "Ann Marie",
		"lname":         "Smith",
		"prefix":        "Mrs.",
		"gender":        "female",
		"birthDate":     "1970-02-03",
		"maritalStatus": "Married",
		"race":          "White",
		"ethnicity":     "Not Hispanic or Latino",
		"addressLine":   "1 Main St, Apt 2",
		"city":          "Boston",
		"state":         "MA",
		"postalCode":    "02115",
		"country":       "US",
	}
	for k, v := range expected {
		if res.Node.Attrs[k] != v {
			t.Errorf("%s: expected %v, got %v", k, v, res.Node.Attrs[k])
		}
	}
	if v, ok := res.Node.Attrs["deceasedDateTime"]; !ok || v != nil {
		t.Errorf("absent fields should be present as nil, got %v %v", v, ok)
	}
	if len(res.References) != 0 {
		t.Errorf("patients reference nothing, got %v", res.References)
	}
}

func TestMapEncounter(t *testing.T) {
	res := mapRecord(t, `{
		"resourceType": "Encounter",
		"id": "e1",
		"status": "finished",
		"class": {"code": "AMB"},
		"type": [{"coding": [{"display": "Checkup"}]}],
		"subject": {"reference": "urn:uuid:p1"},
		"participant": [{"individual": {"reference": "Practitioner/dr1"}}],
		"serviceProvider": {"reference": "Organization/o1"},
		"period": {"start": "2020-01-01T10:00:00Z", "end": "2020-01-01T11:00:00Z"}
	}`)

	if res.Node.Attrs["class"] != "AMB" || res.Node.Attrs["type"] != "Checkup" {
		t.Errorf("unexpected attrs %v", res.Node.Attrs)
	}

	tests := []struct {
		edge graph.EdgeType
		from string
		to   string
	}{
		{graph.EdgeHasEncounter, "p1", "e1"},
		{graph.EdgeHasProvider, "e1", "dr1"},
		{graph.EdgeHasOrganization, "e1", "o1"},
	}
	for _, tt := range tests {
		ref, ok := findRef(res.References, tt.edge)
		if !ok || ref.FromID != tt.from || ref.ToID != tt.to {
			t.Errorf("%s: expected %s->%s, got %+v", tt.edge, tt.from, tt.to, ref)
		}
	}
}

func TestMapCondition(t *testing.T) {
	tests := []struct {
		name          string
		raw           string
		expectedOnset any
		expectDate    bool
	}{
		{
			name:          "onsetDateTime",
			raw:           `{"resourceType": "Condition", "id": "c1", "subject": {"reference": "urn:uuid:p1"}, "encounter": {"reference": "urn:uuid:e1"}, "onsetDateTime": "2020-01-01"}`,
			expectedOnset: "2020-01-01",
			expectDate:    true,
		},
		{
			name:          "onsetPeriod fallback",
			raw:           `{"resourceType": "Condition", "id": "c1", "subject": {"reference": "Patient/p1"}, "onsetPeriod": {"start": "2019-06-15"}}`,
			expectedOnset: "2019-06-15",
			expectDate:    true,
		},
		{
			name:          "empty onset kept as empty",
			raw:           `{"resourceType": "Condition", "id": "c1", "subject": {"reference": "Patient/p1"}, "onsetDateTime": ""}`,
			expectedOnset: "",
		},
		{
			name:          "absent onset is null",
			raw:           `{"resourceType": "Condition", "id": "c1", "subject": {"reference": "Patient/p1"}}`,
			expectedOnset: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := mapRecord(t, tt.raw)
			if got := res.Node.Attrs[graph.AttrOnset]; got != tt.expectedOnset {
				t.Errorf("Expected onset %v, got %v", tt.expectedOnset, got)
			}
			ref, ok := findRef(res.References, graph.EdgeHasCondition)
			if !ok || ref.FromID != "p1" || ref.ToID != "c1" {
				t.Fatalf("missing HASCONDITION reference: %+v", res.References)
			}
			_, hasDate := ref.Attrs[graph.AttrDate]
			if hasDate != tt.expectDate {
				t.Errorf("Expected date attribute=%v, got %v", tt.expectDate, ref.Attrs)
			}
		})
	}
}

func TestMapObservationValuePrecedence(t *testing.T) {
	tests := []struct {
		name         string
		value        string
		expectedType any
		expectedVal  any
		expectedNum  any
		expectedUnit any
	}{
		{
			name:         "quantity wins",
			value:        `"valueQuantity": {"value": 7.25, "unit": "mmol/L"}, "valueString": "ignored"`,
			expectedType: ValueQuantity,
			expectedVal:  "7.25",
			expectedNum:  7.25,
			expectedUnit: "mmol/L",
		},
		{
			name:         "string over codeable",
			value:        `"valueString": "positive", "valueCodeableConcept": {"text": "ignored"}`,
			expectedType: ValueString,
			expectedVal:  "positive",
		},
		{
			name:         "codeable",
			value:        `"valueCodeableConcept": {"coding": [{"display": "Never smoker"}]}`,
			expectedType: ValueCodeable,
			expectedVal:  "Never smoker",
		},
		{
			name: "no value",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := `{"resourceType": "Observation", "id": "o1", "encounter": {"reference": "urn:uuid:e1"}`
			if tt.value != "" {
				raw += ", " + tt.value
			}
			raw += "}"
			attrs := mapRecord(t, raw).Node.Attrs

			if attrs["valueType"] != tt.expectedType {
				t.Errorf("valueType: expected %v, got %v", tt.expectedType, attrs["valueType"])
			}
			if attrs["value"] != tt.expectedVal {
				t.Errorf("value: expected %v, got %v", tt.expectedVal, attrs["value"])
			}
			if attrs["valueNumeric"] != tt.expectedNum {
				t.Errorf("valueNumeric: expected %v, got %v", tt.expectedNum, attrs["valueNumeric"])
			}
			if attrs["unit"] != tt.expectedUnit {
				t.Errorf("unit: expected %v, got %v", tt.expectedUnit, attrs["unit"])
			}
		})
	}
}

func TestMapMedicationRequestReason(t *testing.T) {
	tests := []struct {
		name        string
		reason      string
		expectEdge  bool
		expectedRef string
	}{
		{"urn reference", "urn:uuid:c1", true, "c1"},
		{"typed condition reference", "Condition/c1", true, "c1"},
		{"non-condition reason dropped", "Observation/o1", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := mapRecord(t, `{
				"resourceType": "MedicationRequest",
				"id": "m1",
				"subject": {"reference": "urn:uuid:p1"},
				"authoredOn": "2020-02-01",
				"medicationCodeableConcept": {"coding": [{"code": "123", "display": "Metformin"}]},
				"reasonReference": [{"reference": "`+tt.reason+`"}]
			}`)

			ref, ok := findRef(res.References, graph.EdgeTreatmentFor)
			if ok != tt.expectEdge {
				t.Fatalf("Expected TREATMENTFOR=%v, got %+v", tt.expectEdge, res.References)
			}
			if ok && (ref.FromID != "m1" || ref.ToID != tt.expectedRef) {
				t.Errorf("unexpected reference %+v", ref)
			}

			med, _ := findRef(res.References, graph.EdgeHasMedication)
			if med.Attrs[graph.AttrDate] != "2020-02-01" {
				t.Errorf("HASMEDICATION should carry authoredOn, got %v", med.Attrs)
			}
			if res.Node.Attrs["medicationDisplay"] != "Metformin" {
				t.Errorf("unexpected display %v", res.Node.Attrs["medicationDisplay"])
			}
		})
	}
}

func TestMapProcedure(t *testing.T) {
	res := mapRecord(t, `{
		"resourceType": "Procedure",
		"id": "pr1",
		"subject": {"reference": "urn:uuid:p1"},
		"encounter": {"reference": "urn:uuid:e1"},
		"performedDateTime": "2021-03-04T05:06:07Z",
		"reasonReference": [{"reference": "urn:uuid:c1"}]
	}`)

	if res.Node.Attrs["performedStart"] != "2021-03-04T05:06:07Z" {
		t.Errorf("performedDateTime should fill performedStart, got %v", res.Node.Attrs["performedStart"])
	}

	tests := []struct {
		edge graph.EdgeType
		from string
		to   string
	}{
		{graph.EdgeHasProcedure, "p1", "pr1"},
		{graph.EdgeIncludedProcedure, "e1", "pr1"},
		{graph.EdgeProcedureForTreatment, "pr1", "c1"},
	}
	for _, tt := range tests {
		ref, ok := findRef(res.References, tt.edge)
		if !ok || ref.FromID != tt.from || ref.ToID != tt.to {
			t.Errorf("%s: expected %s->%s, got %+v", tt.edge, tt.from, tt.to, ref)
		}
	}
}

func TestMapOrganizationAndPractitioner(t *testing.T) {
	org := mapRecord(t, `{
		"resourceType": "Organization",
		"id": "o1",
		"name": "General Hospital",
		"type": [{"coding": [{"display": "Healthcare Provider"}]}],
		"address": [{"line": ["1 Way", "Suite 9"], "city": "Salem", "state": "MA"}],
		"telecom": [{"system": "fax", "value": "1"}, {"system": "phone", "value": "555-0100"}]
	}`).Node.Attrs

	if org["addressLine"] != "1 Way, Suite 9" || org["phone"] != "555-0100" || org["orgtype"] != "Healthcare Provider" {
		t.Errorf("unexpected organization attrs %v", org)
	}

	dr := mapRecord(t, `{
		"resourceType": "Practitioner",
		"id": "dr1",
		"gender": "male",
		"name": [{"family": "House", "given": ["Gregory"], "prefix": ["Dr."]}]
	}`).Node.Attrs

	if dr["name"] != "Dr. Gregory House" || dr["fname"] != "Gregory" || dr["lname"] != "House" {
		t.Errorf("unexpected practitioner attrs %v", dr)
	}
}
