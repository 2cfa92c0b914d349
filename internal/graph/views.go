package graph

import "fmt"

// PatientSummary is one row of the patient listing
type PatientSummary struct {
	ID        string  `json:"id"`
	FName     *string `json:"fname"`
	LName     *string `json:"lname"`
	Gender    *string `json:"gender"`
	BirthDate *string `json:"birthDate"`
}

// PatientDetails is the full patient view
type PatientDetails struct {
	ID               string  `json:"id"`
	Prefix           *string `json:"prefix"`
	FName            *string `json:"fname"`
	LName            *string `json:"lname"`
	Gender           *string `json:"gender"`
	BirthDate        *string `json:"birthDate"`
	DeceasedDateTime *string `json:"deceasedDateTime"`
	MaritalStatus    *string `json:"maritalStatus"`
	Race             *string `json:"race"`
	Ethnicity        *string `json:"ethnicity"`
	AddressLine      *string `json:"addressLine"`
	City             *string `json:"city"`
	State            *string `json:"state"`
	PostalCode       *string `json:"postalCode"`
	Country          *string `json:"country"`
}

// EncounterSummary is one encounter in a patient's timeline
type EncounterSummary struct {
	ID       string  `json:"id"`
	Status   *string `json:"status"`
	Class    *string `json:"class"`
	Type     *string `json:"type"`
	Start    *string `json:"encstart"`
	End      *string `json:"encend"`
	Provider *string `json:"providerId"`
	Reason   *string `json:"reasonDisplay"`
}

// PatientEncounters is a patient's encounters, most recent first
type PatientEncounters struct {
	PatientID       string             `json:"patient_id"`
	PatientName     string             `json:"patient_name"`
	TotalEncounters int                `json:"total_encounters"`
	Encounters      []EncounterSummary `json:"encounters"`
}

// PatientSummaryFromProps builds a listing row from stored node properties
func PatientSummaryFromProps(id string, props map[string]any) PatientSummary {
	return PatientSummary{
		ID:        id,
		FName:     stringProp(props, "fname"),
		LName:     stringProp(props, "lname"),
		Gender:    stringProp(props, "gender"),
		BirthDate: stringProp(props, "birthDate"),
	}
}

// PatientDetailsFromProps builds the detail view from stored node properties
func PatientDetailsFromProps(id string, props map[string]any) PatientDetails {
	return PatientDetails{
		ID:               id,
		Prefix:           stringProp(props, "prefix"),
		FName:            stringProp(props, "fname"),
		LName:            stringProp(props, "lname"),
		Gender:           stringProp(props, "gender"),
		BirthDate:        stringProp(props, "birthDate"),
		DeceasedDateTime: stringProp(props, "deceasedDateTime"),
		MaritalStatus:    stringProp(props, "maritalStatus"),
		Race:             stringProp(props, "race"),
		Ethnicity:        stringProp(props, "ethnicity"),
		AddressLine:      stringProp(props, "addressLine"),
		City:             stringProp(props, "city"),
		State:            stringProp(props, "state"),
		PostalCode:       stringProp(props, "postalCode"),
		Country:          stringProp(props, "country"),
	}
}

// EncounterFromProps builds an encounter row from stored node properties
func EncounterFromProps(id string, props map[string]any) EncounterSummary {
	return EncounterSummary{
		ID:       id,
		Status:   stringProp(props, "status"),
		Class:    stringProp(props, "class"),
		Type:     stringProp(props, "type"),
		Start:    stringProp(props, "encstart"),
		End:      stringProp(props, "encend"),
		Provider: stringProp(props, "providerId"),
		Reason:   stringProp(props, "reasonDisplay"),
	}
}

// DisplayName joins first and last name, skipping empty parts
func (p PatientDetails) DisplayName() string {
	first, last := deref(p.FName), deref(p.LName)
	switch {
	case first == "":
		return last
	case last == "":
		return first
	default:
		return first + " " + last
	}
}

func stringProp(props map[string]any, key string) *string {
	v, ok := props[key]
	if !ok || v == nil {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		s = fmt.Sprint(v)
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
