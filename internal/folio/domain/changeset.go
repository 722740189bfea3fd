package domain

import (
	"bytes"
	"encoding/json"
)

// Fields is a flat view of a resource used to compute audit diffs. Values
// may be nested maps or slices.
type Fields map[string]any

// Value is one side of a changed field. Absent marks a key that exists on
// the other side only, which is distinct from a present null.
type Value struct {
	Absent bool
	V      any
}

var absentJSON = []byte(`{"$absent":true}`)

func (v Value) MarshalJSON() ([]byte, error) {
	if v.Absent {
		return absentJSON, nil
	}
	return json.Marshal(v.V)
}

func (v *Value) UnmarshalJSON(b []byte) error {
	var probe struct {
		Absent *bool `json:"$absent"`
	}
	if bytes.HasPrefix(bytes.TrimSpace(b), []byte("{")) {
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(b, &raw); err == nil && len(raw) == 1 {
			if err := json.Unmarshal(b, &probe); err == nil && probe.Absent != nil && *probe.Absent {
				*v = Value{Absent: true}
				return nil
			}
		}
	}
	var x any
	if err := json.Unmarshal(b, &x); err != nil {
		return err
	}
	*v = Value{V: x}
	return nil
}

// ChangeSet is the structural diff of a resource. Before is nil for
// creations and After is nil for deletions.
type ChangeSet struct {
	Before map[string]Value `json:"before,omitempty"`
	After  map[string]Value `json:"after,omitempty"`
}
