// Package models defines the canonical answer value types for FormFlow runs.
package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// AnswerValue holds one canonical field value: either a scalar string or a
// list of strings. Checkbox and imageUpload fields store lists, everything
// else stores scalars (booleans and numbers as their string form).
type AnswerValue struct {
	scalar string
	list   []string
	isList bool
}

// ScalarValue creates a scalar answer value.
func ScalarValue(s string) AnswerValue {
	return AnswerValue{scalar: s}
}

// ListValue creates a list answer value.
func ListValue(items ...string) AnswerValue {
	list := make([]string, len(items))
	copy(list, items)
	return AnswerValue{list: list, isList: true}
}

// BoolValue creates a scalar answer value holding the literal "true"/"false".
func BoolValue(b bool) AnswerValue {
	if b {
		return ScalarValue("true")
	}
	return ScalarValue("false")
}

// IsList reports whether the value is list-shaped.
func (v AnswerValue) IsList() bool { return v.isList }

// Scalar returns the scalar form of the value. Empty for list values.
func (v AnswerValue) Scalar() string {
	if v.isList {
		return ""
	}
	return v.scalar
}

// List returns a copy of the list form of the value. Nil for scalar values.
func (v AnswerValue) List() []string {
	if !v.isList {
		return nil
	}
	out := make([]string, len(v.list))
	copy(out, v.list)
	return out
}

// Len returns the number of list items, or 0 for scalars.
func (v AnswerValue) Len() int {
	if !v.isList {
		return 0
	}
	return len(v.list)
}

// IsEmpty reports whether the value is an empty string or an empty list.
func (v AnswerValue) IsEmpty() bool {
	if v.isList {
		return len(v.list) == 0
	}
	return v.scalar == ""
}

// ContainsItem reports whether a list value contains the given item.
func (v AnswerValue) ContainsItem(item string) bool {
	for _, it := range v.list {
		if it == item {
			return true
		}
	}
	return false
}

// String renders the value for logs and template fallback: scalars verbatim,
// lists joined with ", ".
func (v AnswerValue) String() string {
	if v.isList {
		return strings.Join(v.list, ", ")
	}
	return v.scalar
}

// MarshalJSON encodes scalars as JSON strings and lists as JSON arrays,
// matching the wire shape the authoring tools produce.
func (v AnswerValue) MarshalJSON() ([]byte, error) {
	if v.isList {
		if v.list == nil {
			return json.Marshal([]string{})
		}
		return json.Marshal(v.list)
	}
	return json.Marshal(v.scalar)
}

// UnmarshalJSON decodes either a JSON string or a JSON string array.
func (v *AnswerValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = ScalarValue(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*v = AnswerValue{list: list, isList: true}
		return nil
	}
	return fmt.Errorf("answer value must be a string or an array of strings")
}

// Answer is one canonical per-field record: the value plus an optional "other"
// free-text entry that coexists with choice selections.
type Answer struct {
	Value AnswerValue `json:"value"`
	Other string      `json:"otherValue,omitempty"`
}

// IsEmpty reports whether the answer carries no value and no other text.
func (a Answer) IsEmpty() bool {
	return a.Value.IsEmpty() && a.Other == ""
}

// Answers maps Field.Name to the canonical answer record. Entries are only
// ever overwritten, never removed; a reset replaces the whole map.
type Answers map[string]Answer

// Clone returns a shallow copy of the answers map. AnswerValue contents are
// immutable through the exported API, so sharing them is safe.
func (a Answers) Clone() Answers {
	out := make(Answers, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// FieldError is a single field-keyed validation error.
type FieldError struct {
	Element string `json:"element"`
	Error   string `json:"error"`
}
