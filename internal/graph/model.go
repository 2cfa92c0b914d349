package graph

// Label is a node label in the graph
type Label string

const (
	LabelPatient           Label = "Patient"
	LabelPractitioner      Label = "Practitioner"
	LabelOrganization      Label = "Organization"
	LabelEncounter         Label = "Encounter"
	LabelCondition         Label = "Condition"
	LabelObservation       Label = "Observation"
	LabelMedicationRequest Label = "MedicationRequest"
	LabelProcedure         Label = "Procedure"
)

// Labels lists every label the ingester writes
var Labels = []Label{
	LabelPatient,
	LabelPractitioner,
	LabelOrganization,
	LabelEncounter,
	LabelCondition,
	LabelObservation,
	LabelMedicationRequest,
	LabelProcedure,
}

// Valid reports whether l is one of Labels. Labels are interpolated into
// queries, so stores reject anything else.
func (l Label) Valid() bool {
	for _, known := range Labels {
		if l == known {
			return true
		}
	}
	return false
}

// EdgeType is a relationship type in the graph
type EdgeType string

const (
	EdgeHasEncounter          EdgeType = "HASENCOUNTER"
	EdgeHasCondition          EdgeType = "HASCONDITION"
	EdgeHasMedication         EdgeType = "HASMEDICATION"
	EdgeHasProcedure          EdgeType = "HASPROCEDURE"
	EdgeHasObservation        EdgeType = "HASOBSERVATION"
	EdgeRevealedCondition     EdgeType = "REVEALEDCONDITION"
	EdgeIncludedProcedure     EdgeType = "INCLUDEDPROCEDURE"
	EdgeTreatmentFor          EdgeType = "TREATMENTFOR"
	EdgeProcedureForTreatment EdgeType = "PROCEDUREFORTREATMENT"
	EdgeHasProvider           EdgeType = "HASPROVIDER"
	EdgeHasOrganization       EdgeType = "HASORGANIZATION"

	EdgeFirstCondition  EdgeType = "FIRSTCONDITION"
	EdgeLatestCondition EdgeType = "LATESTCONDITION"
	EdgeNextCondition   EdgeType = "NEXTCONDITION"
)

// Relationship ties an edge type to the labels of its endpoints
type Relationship struct {
	Type EdgeType
	From Label
	To   Label
}

// Structural relationships are derived from references inside resources.
// They are linked in this order.
var Structural = []Relationship{
	{EdgeHasEncounter, LabelPatient, LabelEncounter},
	{EdgeHasCondition, LabelPatient, LabelCondition},
	{EdgeHasMedication, LabelPatient, LabelMedicationRequest},
	{EdgeHasProcedure, LabelPatient, LabelProcedure},
	{EdgeHasObservation, LabelEncounter, LabelObservation},
	{EdgeRevealedCondition, LabelEncounter, LabelCondition},
	{EdgeIncludedProcedure, LabelEncounter, LabelProcedure},
	{EdgeTreatmentFor, LabelMedicationRequest, LabelCondition},
	{EdgeProcedureForTreatment, LabelProcedure, LabelCondition},
	{EdgeHasProvider, LabelEncounter, LabelPractitioner},
	{EdgeHasOrganization, LabelEncounter, LabelOrganization},
}

// Temporal relationships order each patient's conditions by onset
var Temporal = []Relationship{
	{EdgeFirstCondition, LabelPatient, LabelCondition},
	{EdgeLatestCondition, LabelPatient, LabelCondition},
	{EdgeNextCondition, LabelCondition, LabelCondition},
}

// RelationshipFor looks up the endpoint labels of an edge type
func RelationshipFor(t EdgeType) (Relationship, bool) {
	for _, rel := range Structural {
		if rel.Type == t {
			return rel, true
		}
	}
	for _, rel := range Temporal {
		if rel.Type == t {
			return rel, true
		}
	}
	return Relationship{}, false
}

// Node attribute and edge property names shared between the mappers, the
// temporal chain builder and the stores.
const (
	AttrID        = "id"
	AttrOnset     = "onsetDateTime"
	AttrIngestSeq = "ingestSeq"
	AttrDate      = "date"
)

// Node is one resource projected into the graph. Attrs values are strings,
// numbers, booleans or nil; nil removes the property on upsert.
type Node struct {
	Label Label
	ID    string
	Attrs map[string]any
}

// Reference is a candidate edge found inside a resource. It becomes an edge
// only when both endpoints exist with the labels its type requires.
type Reference struct {
	Type   EdgeType
	FromID string
	ToID   string
	Attrs  map[string]any
}

// ConditionLink is one Patient-HASCONDITION->Condition pair as read back for
// temporal chaining
type ConditionLink struct {
	PatientID   string
	ConditionID string
	Onset       string
	Seq         int64
}
