package models

import "encoding/json"

// toJSON serializes v for a jsonb column. Nil and empty values become the
// given empty literal so the column is never NULL.
func toJSON(v any, empty string) string {
	if v == nil {
		return empty
	}
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" {
		return empty
	}
	return string(b)
}

// fromJSON decodes a jsonb column, leaving dst untouched on empty input
func fromJSON(raw string, dst any) {
	if raw == "" || raw == "null" {
		return
	}
	_ = json.Unmarshal([]byte(raw), dst)
}
