// Package flow implements the FormFlow runtime execution engine: answer
// canonicalization, conditional visibility, validation, prompt templating,
// and the phase state machine that drives a session through an app.
package flow

import (
	"github.com/BTreeMap/FormFlow/internal/models"
)

// SetAnswer canonicalizes one raw field input into the answers map, returning
// a new map with that single key replaced. The input map is never mutated.
// This stage only normalizes shape; validation happens separately.
func SetAnswer(answers models.Answers, name string, value models.AnswerValue, other string, fieldType models.FieldType) models.Answers {
	out := answers.Clone()
	prev := out[name]

	switch fieldType {
	case models.FieldTypeRadio, models.FieldTypeDropdown:
		// Value and otherValue are independent: a free-text "other" entry can
		// coexist with the selected choice. Empty inputs leave the previous
		// entry in place.
		next := prev
		if !value.IsList() && value.Scalar() != "" {
			next.Value = value
		}
		if other != "" {
			next.Other = other
		}
		out[name] = next

	case models.FieldTypeCheckbox:
		next := prev
		next.Value = canonicalizeCheckbox(prev.Value, value)
		if other != "" {
			next.Other = other
		}
		out[name] = next

	case models.FieldTypeImageUpload:
		// Upload values are always array-shaped; scalars are wrapped.
		next := prev
		if value.IsList() {
			next.Value = models.ListValue(value.List()...)
		} else if value.Scalar() != "" {
			next.Value = models.ListValue(value.Scalar())
		} else {
			next.Value = models.ListValue()
		}
		out[name] = next

	default:
		// text, textarea, slider, boolean, chat, and unrecognized types store
		// the value verbatim.
		out[name] = models.Answer{Value: value, Other: prev.Other}
	}

	return out
}

// canonicalizeCheckbox applies the "none" exclusivity rule to a checkbox
// selection. Selecting the sentinel clears everything else; selecting any
// other choice while the sentinel is present removes the sentinel first.
func canonicalizeCheckbox(prev, value models.AnswerValue) models.AnswerValue {
	var incoming []string
	if value.IsList() {
		incoming = value.List()
	} else if value.Scalar() != "" {
		incoming = []string{value.Scalar()}
	}

	hasNone := false
	for _, item := range incoming {
		if item == models.ChoiceNone {
			hasNone = true
			break
		}
	}

	if hasNone {
		// The sentinel wins only when it was just selected; otherwise the new
		// non-sentinel selections displace it.
		if !prev.ContainsItem(models.ChoiceNone) {
			return models.ListValue(models.ChoiceNone)
		}
		kept := make([]string, 0, len(incoming))
		for _, item := range incoming {
			if item != models.ChoiceNone {
				kept = append(kept, item)
			}
		}
		if len(kept) == 0 {
			return models.ListValue(models.ChoiceNone)
		}
		return models.ListValue(kept...)
	}

	return models.ListValue(incoming...)
}
