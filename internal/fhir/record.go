package fhir

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-openapi/jsonpointer"
)

// ErrNotRecord is returned when a value that should be a JSON object is not one
var ErrNotRecord = errors.New("value is not a JSON object")

// Record is one decoded FHIR resource (or any nested JSON object).
//
// Lookups take JSON Pointer paths such as "/name/0/given/0". A missing key,
// a wrong-shaped intermediate value or an out-of-range index all read as
// "absent"; none of the accessors fail.
type Record map[string]any

// NewRecord wraps a decoded JSON value, failing only if it is not an object
func NewRecord(v any) (Record, error) {
	switch m := v.(type) {
	case Record:
		return m, nil
	case map[string]any:
		return Record(m), nil
	default:
		return nil, fmt.Errorf("%w: got %T", ErrNotRecord, v)
	}
}

// Get returns the value at path. JSON null is reported as absent.
func (r Record) Get(path string) (value any, found bool) {
	if r == nil {
		return nil, false
	}

	ptr, err := jsonpointer.New(path)
	if err != nil {
		return nil, false
	}

	// jsonpointer can panic when a token walks through a JSON null
	defer func() {
		if recover() != nil {
			value, found = nil, false
		}
	}()

	v, _, err := ptr.Get(map[string]any(r))
	if err != nil || v == nil {
		return nil, false
	}
	return v, true
}

// Has reports whether a non-null value exists at path
func (r Record) Has(path string) bool {
	_, ok := r.Get(path)
	return ok
}

// Lookup returns the string at path and whether it was present.
// ("", true) means the field exists but is empty; ("", false) means it is
// absent or not a string.
func (r Record) Lookup(path string) (string, bool) {
	v, ok := r.Get(path)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// String returns the string at path or "" when absent
func (r Record) String(path string) string {
	s, _ := r.Lookup(path)
	return s
}

// FirstString returns the first non-empty string found among paths
func (r Record) FirstString(paths ...string) string {
	for _, p := range paths {
		if s := r.String(p); s != "" {
			return s
		}
	}
	return ""
}

// Float returns the number at path
func (r Record) Float(path string) (float64, bool) {
	v, ok := r.Get(path)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// Strings returns the string elements of the array at path. A bare string
// is treated as a one-element array; non-string elements are skipped.
func (r Record) Strings(path string) []string {
	v, ok := r.Get(path)
	if !ok {
		return nil
	}
	switch vv := v.(type) {
	case string:
		return []string{vv}
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return vv
	default:
		return nil
	}
}

// Records returns the object elements of the array at path
func (r Record) Records(path string) []Record {
	v, ok := r.Get(path)
	if !ok {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		if rec, err := NewRecord(v); err == nil {
			return []Record{rec}
		}
		return nil
	}
	out := make([]Record, 0, len(items))
	for _, item := range items {
		if rec, err := NewRecord(item); err == nil {
			out = append(out, rec)
		}
	}
	return out
}

// Child returns the object at path, or nil
func (r Record) Child(path string) Record {
	v, ok := r.Get(path)
	if !ok {
		return nil
	}
	rec, err := NewRecord(v)
	if err != nil {
		return nil
	}
	return rec
}
