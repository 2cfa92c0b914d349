package mapping

import (
	"strconv"

	"stealthcompany.com/fhirgraph/internal/fhir"
	"stealthcompany.com/fhirgraph/internal/graph"
)

// Observation value kinds, in precedence order
const (
	ValueQuantity = "quantity"
	ValueString   = "string"
	ValueCodeable = "codeable"
)

func subjectOf(rec fhir.Record) string {
	return fhir.ResolveTyped(rec.String("/subject/reference"), fhir.Patient)
}

func encounterOf(rec fhir.Record) string {
	return fhir.ResolveTyped(rec.String("/encounter/reference"), fhir.Encounter)
}

func mapEncounter(rec fhir.Record) (Result, error) {
	b, err := newBuilder(graph.LabelEncounter, rec)
	if err != nil {
		return Result{}, err
	}

	patientID := subjectOf(rec)

	var providerID string
	for _, p := range rec.Records("/participant") {
		if id := fhir.ResolveTyped(p.String("/individual/reference"), fhir.Practitioner); id != "" {
			providerID = id
			break
		}
	}
	orgID := fhir.ResolveTyped(rec.String("/serviceProvider/reference"), fhir.Organization)

	b.set("status", rec.String("/status"))
	b.set("class", rec.FirstString("/class/code", "/class/display"))
	b.set("type", codeableText(rec, "/type/0"))
	b.set("encstart", rec.String("/period/start"))
	b.set("encend", rec.String("/period/end"))
	b.set("reasonDisplay", codeableText(rec, "/reasonCode/0"))
	b.set("patientId", patientID)
	b.set("providerId", providerID)
	b.set("orgId", orgID)

	b.refTo(graph.EdgeHasEncounter, patientID, "")
	b.refFrom(graph.EdgeHasProvider, providerID, "")
	b.refFrom(graph.EdgeHasOrganization, orgID, "")

	return b.result()
}

// conditionOnset reads onsetDateTime, falling back to onsetPeriod.start.
// found is false only when neither is present.
func conditionOnset(rec fhir.Record) (string, bool) {
	if onset, ok := rec.Lookup("/onsetDateTime"); ok {
		return onset, true
	}
	return rec.Lookup("/onsetPeriod/start")
}

func mapCondition(rec fhir.Record) (Result, error) {
	b, err := newBuilder(graph.LabelCondition, rec)
	if err != nil {
		return Result{}, err
	}

	patientID := subjectOf(rec)
	encounterID := encounterOf(rec)
	onset, found := conditionOnset(rec)

	b.set("clinicalStatus", rec.String("/clinicalStatus/coding/0/code"))
	b.set("verificationStatus", rec.String("/verificationStatus/coding/0/code"))
	b.set("code", rec.String("/code/coding/0/code"))
	b.set("display", codeableText(rec, "/code"))
	b.setLookup(graph.AttrOnset, onset, found)
	b.set("abatementDateTime", rec.String("/abatementDateTime"))
	b.set("recordedDate", rec.String("/recordedDate"))
	b.set("patientId", patientID)
	b.set("encounterId", encounterID)

	b.refTo(graph.EdgeHasCondition, patientID, onset)
	b.refTo(graph.EdgeRevealedCondition, encounterID, "")

	return b.result()
}

func mapObservation(rec fhir.Record) (Result, error) {
	b, err := newBuilder(graph.LabelObservation, rec)
	if err != nil {
		return Result{}, err
	}

	encounterID := encounterOf(rec)

	b.set("status", rec.String("/status"))
	b.set("category", codeableText(rec, "/category/0"))
	b.set("code", rec.String("/code/coding/0/code"))
	b.set("display", codeableText(rec, "/code"))
	b.set("effectiveDateTime", rec.FirstString("/effectiveDateTime", "/effectivePeriod/start"))
	b.set("issued", rec.String("/issued"))
	b.set("patientId", subjectOf(rec))
	b.set("encounterId", encounterID)

	b.node.Attrs["valueNumeric"] = nil
	b.node.Attrs["unit"] = nil
	switch {
	case rec.Has("/valueQuantity"):
		b.set("valueType", ValueQuantity)
		if f, ok := rec.Float("/valueQuantity/value"); ok {
			b.node.Attrs["valueNumeric"] = f
			b.set("value", strconv.FormatFloat(f, 'f', -1, 64))
		} else {
			b.set("value", "")
		}
		b.set("unit", rec.FirstString("/valueQuantity/unit", "/valueQuantity/code"))
	case rec.Has("/valueString"):
		b.set("valueType", ValueString)
		b.set("value", rec.String("/valueString"))
	case rec.Has("/valueCodeableConcept"):
		b.set("valueType", ValueCodeable)
		b.set("value", codeableText(rec, "/valueCodeableConcept"))
	default:
		b.set("valueType", "")
		b.set("value", "")
	}

	b.refTo(graph.EdgeHasObservation, encounterID, "")

	return b.result()
}

func mapMedicationRequest(rec fhir.Record) (Result, error) {
	b, err := newBuilder(graph.LabelMedicationRequest, rec)
	if err != nil {
		return Result{}, err
	}

	patientID := subjectOf(rec)
	authoredOn := rec.String("/authoredOn")
	reasonID := firstReason(rec)

	b.set("status", rec.String("/status"))
	b.set("intent", rec.String("/intent"))
	b.set("medicationCode", rec.String("/medicationCodeableConcept/coding/0/code"))
	b.set("medicationDisplay", rec.FirstString(
		"/medicationCodeableConcept/text",
		"/medicationCodeableConcept/coding/0/display",
		"/medicationReference/display",
	))
	b.set("authoredOn", authoredOn)
	b.set("patientId", patientID)
	b.set("encounterId", encounterOf(rec))
	b.set("requesterId", fhir.ResolveReference(rec.String("/requester/reference")))
	b.set("reasonId", reasonID)

	b.refTo(graph.EdgeHasMedication, patientID, authoredOn)
	b.refFrom(graph.EdgeTreatmentFor, reasonID, "")

	return b.result()
}

func mapProcedure(rec fhir.Record) (Result, error) {
	b, err := newBuilder(graph.LabelProcedure, rec)
	if err != nil {
		return Result{}, err
	}

	patientID := subjectOf(rec)
	encounterID := encounterOf(rec)
	reasonID := firstReason(rec)
	start := rec.FirstString("/performedPeriod/start", "/performedDateTime")

	b.set("status", rec.String("/status"))
	b.set("code", rec.String("/code/coding/0/code"))
	b.set("display", codeableText(rec, "/code"))
	b.set("performedStart", start)
	b.set("performedEnd", rec.String("/performedPeriod/end"))
	b.set("patientId", patientID)
	b.set("encounterId", encounterID)
	b.set("reasonId", reasonID)

	b.refTo(graph.EdgeHasProcedure, patientID, start)
	b.refTo(graph.EdgeIncludedProcedure, encounterID, "")
	b.refFrom(graph.EdgeProcedureForTreatment, reasonID, "")

	return b.result()
}
