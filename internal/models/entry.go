package models

import (
	"encoding/json"
	"maps"
)

// Entry is a user-owned record with arbitrary client-defined fields.
// It serializes as a flat JSON object carrying "id" and "user" next to its fields.
type Entry struct {
	ID     string
	User   string
	Fields map[string]any
}

// MarshalJSON flattens the entry into a single object.
func (e Entry) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Fields)+2)
	maps.Copy(out, e.Fields)
	out["id"] = e.ID
	out["user"] = e.User
	return json.Marshal(out)
}

// UnmarshalJSON splits "id" and "user" out of the flat object.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if id, ok := raw["id"].(string); ok {
		e.ID = id
	}
	if user, ok := raw["user"].(string); ok {
		e.User = user
	}
	delete(raw, "id")
	delete(raw, "user")
	e.Fields = raw
	return nil
}

// Clone returns a copy whose field map can be mutated independently.
func (e Entry) Clone() Entry {
	e.Fields = maps.Clone(e.Fields)
	return e
}
