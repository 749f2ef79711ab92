package persistence

import (
	json "github.com/goccy/go-json"
)

// Stores serialize trigger payloads, execution logs, and error details as
// JSON: payloads arrive from JSON-shaped triggers and must round-trip as
// map[string]any without type registration.
//
// The indirection makes it possible to swap the JSON implementation without
// touching the store code.

// EncodeJSON serializes v. A nil value encodes to nil, not "null", so
// nullable columns stay NULL.
func EncodeJSON(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// DecodeJSON deserializes data into a value of type T. Empty input yields
// the zero value.
func DecodeJSON[T any](data []byte) (T, error) {
	var out T
	if len(data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, err
	}
	return out, nil
}
