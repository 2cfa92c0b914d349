package mapping

import (
	"errors"
	"fmt"
	"strings"

	"stealthcompany.com/fhirgraph/internal/fhir"
	"stealthcompany.com/fhirgraph/internal/graph"
)

// ErrMissingID is returned for a resource without a usable id
var ErrMissingID = errors.New("resource has no id")

// ErrUnsupported is returned by Map for a resource type with no mapper
var ErrUnsupported = errors.New("unsupported resource type")

// Result is a mapped resource: its node and the edges it asks for
type Result struct {
	Node       graph.Node
	References []graph.Reference
}

// Mapper turns one FHIR resource into a graph node plus reference candidates
type Mapper func(fhir.Record) (Result, error)

// Table maps every supported resource type to its mapper
var Table = map[fhir.ResourceType]Mapper{
	fhir.Patient:           mapPatient,
	fhir.Practitioner:      mapPractitioner,
	fhir.Organization:      mapOrganization,
	fhir.Encounter:         mapEncounter,
	fhir.Condition:         mapCondition,
	fhir.Observation:       mapObservation,
	fhir.MedicationRequest: mapMedicationRequest,
	fhir.Procedure:         mapProcedure,
}

// For returns the mapper for rt
func For(rt fhir.ResourceType) (Mapper, bool) {
	m, ok := Table[rt]
	return m, ok
}

// Map runs the mapper for rt. A panicking mapper is turned into an error so
// one bad record cannot take the bundle down with it.
func Map(rt fhir.ResourceType, rec fhir.Record) (result Result, err error) {
	mapper, ok := For(rt)
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnsupported, rt.String())
	}

	defer func() {
		if r := recover(); r != nil {
			result = Result{}
			err = fmt.Errorf("mapping %s panicked: %v", rt, r)
		}
	}()

	return mapper(rec)
}

// builder accumulates a node and its references
type builder struct {
	node graph.Node
	refs []graph.Reference
}

func newBuilder(label graph.Label, rec fhir.Record) (*builder, error) {
	id := strings.TrimSpace(rec.String("/id"))
	if id == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingID, label)
	}
	return &builder{
		node: graph.Node{Label: label, ID: id, Attrs: make(map[string]any)},
	}, nil
}

// set stores a string attribute; "" is stored as null
func (b *builder) set(key, value string) {
	if value == "" {
		b.node.Attrs[key] = nil
		return
	}
	b.node.Attrs[key] = value
}

// setLookup keeps present-but-empty values as "" and absent ones as null
func (b *builder) setLookup(key string, value string, found bool) {
	if !found {
		b.node.Attrs[key] = nil
		return
	}
	b.node.Attrs[key] = value
}

// refFrom adds an edge from this node to target
func (b *builder) refFrom(t graph.EdgeType, targetID string, date string) {
	b.ref(t, b.node.ID, targetID, date)
}

// refTo adds an edge from source to this node
func (b *builder) refTo(t graph.EdgeType, sourceID string, date string) {
	b.ref(t, sourceID, b.node.ID, date)
}

func (b *builder) ref(t graph.EdgeType, from, to, date string) {
	if from == "" || to == "" {
		return
	}
	var attrs map[string]any
	if date != "" {
		attrs = map[string]any{graph.AttrDate: date}
	}
	b.refs = append(b.refs, graph.Reference{Type: t, FromID: from, ToID: to, Attrs: attrs})
}

func (b *builder) result() (Result, error) {
	return Result{Node: b.node, References: b.refs}, nil
}

// codeableText returns CodeableConcept.text or the first coding's display
func codeableText(rec fhir.Record, base string) string {
	return rec.FirstString(base+"/text", base+"/coding/0/display")
}

func firstRecord(recs []fhir.Record) fhir.Record {
	if len(recs) == 0 {
		return nil
	}
	return recs[0]
}

// officialName prefers the name with use "official"
func officialName(rec fhir.Record) fhir.Record {
	names := rec.Records("/name")
	for _, n := range names {
		if n.String("/use") == "official" {
			return n
		}
	}
	return firstRecord(names)
}

// firstReason resolves reasonReference[0], dropping it when it names a
// resource type other than Condition
func firstReason(rec fhir.Record) string {
	return fhir.ResolveTyped(rec.String("/reasonReference/0/reference"), fhir.Condition)
}
