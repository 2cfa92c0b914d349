package fhir

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMalformedBundle marks input that is not a JSON object at all
	ErrMalformedBundle = errors.New("malformed bundle")
	// ErrNotBundle marks a JSON object whose resourceType is not "Bundle"
	ErrNotBundle = errors.New("not a FHIR bundle")
)

// Bundle is a parsed FHIR bundle
type Bundle struct {
	ID      string
	Type    string
	Entries []BundleEntry
	// Next is the searchset paging link, empty on the last page
	Next string
}

// BundleEntry represents an entry in a FHIR bundle. Resource is nil when the
// entry carries no resource object.
type BundleEntry struct {
	Index    int
	FullURL  string
	Resource Record
}

// ParseBundle decodes one bundle file
func ParseBundle(data []byte) (*Bundle, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedBundle, err)
	}

	rec, err := NewRecord(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedBundle, err)
	}

	if rt := rec.String("/resourceType"); rt != "Bundle" {
		return nil, fmt.Errorf("%w: resourceType is %q", ErrNotBundle, rt)
	}

	bundle := &Bundle{
		ID:   rec.String("/id"),
		Type: rec.String("/type"),
	}

	for _, link := range rec.Records("/link") {
		if link.String("/relation") == "next" {
			bundle.Next = link.String("/url")
			break
		}
	}

	raw, _ := rec.Get("/entry")
	items, _ := raw.([]any)
	bundle.Entries = make([]BundleEntry, 0, len(items))
	for i, item := range items {
		entry := BundleEntry{Index: i}
		if er, err := NewRecord(item); err == nil {
			entry.FullURL = er.String("/fullUrl")
			entry.Resource = er.Child("/resource")
		}
		bundle.Entries = append(bundle.Entries, entry)
	}

	return bundle, nil
}
