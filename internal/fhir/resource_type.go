package fhir

// ResourceType is one of the resource kinds mapped into the graph
type ResourceType int

const (
	Unsupported ResourceType = iota
	Patient
	Practitioner
	Organization
	Encounter
	Condition
	Observation
	MedicationRequest
	Procedure
)

var resourceTypeNames = [...]string{
	Unsupported:       "",
	Patient:           "Patient",
	Practitioner:      "Practitioner",
	Organization:      "Organization",
	Encounter:         "Encounter",
	Condition:         "Condition",
	Observation:       "Observation",
	MedicationRequest: "MedicationRequest",
	Procedure:         "Procedure",
}

var resourceTypesByName = func() map[string]ResourceType {
	m := make(map[string]ResourceType, len(resourceTypeNames))
	for rt, name := range resourceTypeNames {
		if name != "" {
			m[name] = ResourceType(rt)
		}
	}
	return m
}()

// ParseResourceType maps a resourceType tag to its kind. Tags are matched
// exactly, as FHIR defines them.
func ParseResourceType(tag string) ResourceType {
	if rt, ok := resourceTypesByName[tag]; ok {
		return rt
	}
	return Unsupported
}

func (rt ResourceType) String() string {
	if rt < 0 || int(rt) >= len(resourceTypeNames) {
		return ""
	}
	return resourceTypeNames[rt]
}

// SupportedResourceTypes lists every kind except Unsupported
func SupportedResourceTypes() []ResourceType {
	return []ResourceType{
		Patient, Practitioner, Organization, Encounter,
		Condition, Observation, MedicationRequest, Procedure,
	}
}
