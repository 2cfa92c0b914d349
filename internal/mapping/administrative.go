package mapping

import (
	"strings"

	"stealthcompany.com/fhirgraph/internal/fhir"
	"stealthcompany.com/fhirgraph/internal/graph"
)

const (
	raceExtension      = "us-core-race"
	ethnicityExtension = "us-core-ethnicity"
)

func mapPatient(rec fhir.Record) (Result, error) {
	b, err := newBuilder(graph.LabelPatient, rec)
	if err != nil {
		return Result{}, err
	}

	name := officialName(rec)
	b.set("fname", strings.Join(name.Strings("/given"), " "))
	b.set("lname", name.String("/family"))
	b.set("prefix", name.String("/prefix/0"))
	b.set("gender", rec.String("/gender"))
	b.set("birthDate", rec.String("/birthDate"))
	b.set("deceasedDateTime", rec.String("/deceasedDateTime"))
	b.set("maritalStatus", codeableText(rec, "/maritalStatus"))
	b.set("race", usCoreExtension(rec, raceExtension))
	b.set("ethnicity", usCoreExtension(rec, ethnicityExtension))

	addr := firstRecord(rec.Records("/address"))
	b.set("addressLine", strings.Join(addr.Strings("/line"), ", "))
	b.set("city", addr.String("/city"))
	b.set("state", addr.String("/state"))
	b.set("postalCode", addr.String("/postalCode"))
	b.set("country", addr.String("/country"))

	return b.result()
}

// usCoreExtension reads the text sub-extension of a US Core race or
// ethnicity extension, falling back to the first coded display
func usCoreExtension(rec fhir.Record, marker string) string {
	for _, ext := range rec.Records("/extension") {
		if !strings.HasSuffix(ext.String("/url"), marker) {
			continue
		}
		var coded string
		for _, sub := range ext.Records("/extension") {
			switch sub.String("/url") {
			case "text":
				if s := sub.String("/valueString"); s != "" {
					return s
				}
			case "ombCategory", "detailed":
				if coded == "" {
					coded = sub.String("/valueCoding/display")
				}
			}
		}
		return coded
	}
	return ""
}

func mapPractitioner(rec fhir.Record) (Result, error) {
	b, err := newBuilder(graph.LabelPractitioner, rec)
	if err != nil {
		return Result{}, err
	}

	name := officialName(rec)
	given := strings.Join(name.Strings("/given"), " ")
	family := name.String("/family")

	full := name.String("/text")
	if full == "" {
		full = strings.Join(strings.Fields(name.String("/prefix/0")+" "+given+" "+family), " ")
	}

	b.set("fname", given)
	b.set("lname", family)
	b.set("name", full)
	b.set("prefix", name.String("/prefix/0"))
	b.set("gender", rec.String("/gender"))

	return b.result()
}

func mapOrganization(rec fhir.Record) (Result, error) {
	b, err := newBuilder(graph.LabelOrganization, rec)
	if err != nil {
		return Result{}, err
	}

	b.set("name", rec.String("/name"))
	b.set("orgtype", rec.FirstString("/type/0/coding/0/display", "/type/0/text"))

	addr := firstRecord(rec.Records("/address"))
	b.set("addressLine", strings.Join(addr.Strings("/line"), ", "))
	b.set("addressCity", addr.String("/city"))
	b.set("addressState", addr.String("/state"))

	var phone string
	for _, tc := range rec.Records("/telecom") {
		if tc.String("/system") == "phone" {
			phone = tc.String("/value")
			break
		}
	}
	b.set("phone", phone)

	return b.result()
}
