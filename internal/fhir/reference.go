package fhir

import "strings"

var opaquePrefixes = []string{"urn:uuid:", "urn:oid:"}

// Reference is a parsed FHIR reference. Type is only known for the
// type-qualified form ("Condition/abc" or a URL ending in Type/id).
type Reference struct {
	Type string
	ID   string
}

// ParseReference splits a reference string into its declared type and bare id.
//
//	"urn:uuid:abc"                    -> {"", "abc"}
//	"Condition/abc"                   -> {"Condition", "abc"}
//	"https://x/fhir/Patient/abc"      -> {"Patient", "abc"}
//	"Patient/abc/_history/2"          -> {"Patient", "abc"}
//
// Anything that matches neither form is returned unchanged as the id.
func ParseReference(ref string) Reference {
	if ref == "" {
		return Reference{}
	}

	for _, prefix := range opaquePrefixes {
		if strings.HasPrefix(ref, prefix) {
			if id := ref[len(prefix):]; id != "" {
				return Reference{ID: id}
			}
			return Reference{ID: ref}
		}
	}

	path := ref
	if i := strings.Index(path, "/_history/"); i > 0 {
		path = path[:i]
	}

	i := strings.LastIndex(path, "/")
	if i <= 0 || i == len(path)-1 {
		return Reference{ID: ref}
	}

	head := path[:i]
	return Reference{
		Type: head[strings.LastIndex(head, "/")+1:],
		ID:   path[i+1:],
	}
}

// ResolveReference returns the bare id a reference points at, or "" for an
// empty reference
func ResolveReference(ref string) string {
	return ParseReference(ref).ID
}

// ResolveTyped resolves ref and checks it may point at want. References
// without a declared type (urn:uuid) are accepted; the graph match on the
// target label decides whether they resolve.
func ResolveTyped(ref string, want ResourceType) string {
	parsed := ParseReference(ref)
	if parsed.Type != "" && parsed.Type != want.String() {
		return ""
	}
	return parsed.ID
}
