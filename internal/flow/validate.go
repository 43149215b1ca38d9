package flow

import (
	"fmt"
	"unicode/utf8"

	"github.com/BTreeMap/FormFlow/internal/models"
)

// Validation error messages surfaced per field.
const (
	// ErrMsgRequired is the error raised for an empty required field.
	ErrMsgRequired = "required"
)

// Validate checks required and length constraints over the given fields,
// returning one error per offending field. Only fields that are currently
// visible and accept input are considered. The whole list is produced in a
// single pass so the UI can mark every offending field at once; within a
// field the first failing rule wins.
func Validate(app *models.App, fields []models.Field, answers models.Answers) []models.FieldError {
	var errs []models.FieldError

	for i := range fields {
		field := &fields[i]
		if field.Type.IsDisplayOnly() || field.ReadOnly {
			continue
		}
		if !IsVisible(app, field.Logic, answers) {
			continue
		}

		if msg := validateField(field, answers[field.Name]); msg != "" {
			errs = append(errs, models.FieldError{Element: field.Name, Error: msg})
		}
	}

	return errs
}

// validateField applies the per-field rules in order and returns the first
// failing rule's message, or "" when the field passes.
func validateField(field *models.Field, answer models.Answer) string {
	value := answer.Value

	if field.Required && value.IsEmpty() && field.DefaultValue == "" {
		return ErrMsgRequired
	}

	switch field.Type {
	case models.FieldTypeText, models.FieldTypeTextarea:
		// Length bounds apply to entered text only; an optional field left
		// empty is not a length violation.
		text := value.Scalar()
		if text == "" {
			break
		}
		// Character limits count runes, not bytes.
		length := utf8.RuneCountInString(text)
		if field.MinChars > 0 && length < field.MinChars {
			return fmt.Sprintf("must be at least %d characters", field.MinChars)
		}
		if field.MaxChars > 0 && length > field.MaxChars {
			return fmt.Sprintf("must be at most %d characters", field.MaxChars)
		}
	}

	return ""
}
