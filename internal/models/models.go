// Package models defines the core data structures for FormFlow.
//
// It includes the app/phase/field definition types, conditional logic rules,
// and prompt types that are shared across modules.
package models

import (
	"errors"
	"fmt"
)

// FieldType identifies the kind of input control a field renders as.
type FieldType string

const (
	// FieldTypeText is a single-line text input.
	FieldTypeText FieldType = "text"
	// FieldTypeTextarea is a multi-line text input.
	FieldTypeTextarea FieldType = "textarea"
	// FieldTypeRadio is a single-select choice list.
	FieldTypeRadio FieldType = "radiogroup"
	// FieldTypeCheckbox is a multi-select choice list.
	FieldTypeCheckbox FieldType = "checkbox"
	// FieldTypeDropdown is a single-select dropdown.
	FieldTypeDropdown FieldType = "dropdown"
	// FieldTypeSlider is a numeric slider.
	FieldTypeSlider FieldType = "slider"
	// FieldTypeBoolean is a yes/no toggle.
	FieldTypeBoolean FieldType = "boolean"
	// FieldTypeRichText is display-only authored content; it takes no input.
	FieldTypeRichText FieldType = "richText"
	// FieldTypeImageUpload accepts one or more uploaded files.
	FieldTypeImageUpload FieldType = "imageUpload"
	// FieldTypeChat is a free-form chat transcript field.
	FieldTypeChat FieldType = "chat"
)

// IsValidFieldType checks if the given field type is supported.
func IsValidFieldType(ft FieldType) bool {
	switch ft {
	case FieldTypeText, FieldTypeTextarea, FieldTypeRadio, FieldTypeCheckbox,
		FieldTypeDropdown, FieldTypeSlider, FieldTypeBoolean, FieldTypeRichText,
		FieldTypeImageUpload, FieldTypeChat:
		return true
	default:
		return false
	}
}

// IsListValued reports whether answers for this field type are stored as
// string arrays rather than scalar strings.
func (ft FieldType) IsListValued() bool {
	return ft == FieldTypeCheckbox || ft == FieldTypeImageUpload
}

// IsDisplayOnly reports whether the field renders content without accepting input.
func (ft FieldType) IsDisplayOnly() bool {
	return ft == FieldTypeRichText
}

// HasChoices reports whether the field type carries an author-defined choice list.
func (ft FieldType) HasChoices() bool {
	switch ft {
	case FieldTypeRadio, FieldTypeCheckbox, FieldTypeDropdown:
		return true
	default:
		return false
	}
}

// Operator identifies a conditional logic comparison.
type Operator string

const (
	OperatorEquals             Operator = "equals"
	OperatorNotEquals          Operator = "not_equals"
	OperatorContains           Operator = "contains"
	OperatorNotContains        Operator = "not_contains"
	OperatorIsEmpty            Operator = "is_empty"
	OperatorIsNotEmpty         Operator = "is_not_empty"
	OperatorGreaterThan        Operator = "greater_than"
	OperatorLessThan           Operator = "less_than"
	OperatorGreaterThanOrEqual Operator = "greater_than_or_equal"
	OperatorLessThanOrEqual    Operator = "less_than_or_equal"
)

// NeedsValue reports whether the operator requires a comparison value.
func (op Operator) NeedsValue() bool {
	switch op {
	case OperatorIsEmpty, OperatorIsNotEmpty:
		return false
	default:
		return true
	}
}

// IsOrdering reports whether the operator compares numerically.
func (op Operator) IsOrdering() bool {
	switch op {
	case OperatorGreaterThan, OperatorLessThan, OperatorGreaterThanOrEqual, OperatorLessThanOrEqual:
		return true
	default:
		return false
	}
}

// operatorSupport maps each field type to the operators that may be applied
// when a field of that type is the source of a conditional rule. Combinations
// absent from this table are rejected at app construction time rather than
// silently evaluated.
var operatorSupport = map[FieldType]map[Operator]bool{
	FieldTypeText: {
		OperatorEquals: true, OperatorNotEquals: true,
		OperatorContains: true, OperatorNotContains: true,
		OperatorIsEmpty: true, OperatorIsNotEmpty: true,
	},
	FieldTypeTextarea: {
		OperatorEquals: true, OperatorNotEquals: true,
		OperatorContains: true, OperatorNotContains: true,
		OperatorIsEmpty: true, OperatorIsNotEmpty: true,
	},
	FieldTypeRadio: {
		OperatorEquals: true, OperatorNotEquals: true,
		OperatorContains: true, OperatorNotContains: true,
		OperatorIsEmpty: true, OperatorIsNotEmpty: true,
	},
	FieldTypeDropdown: {
		OperatorEquals: true, OperatorNotEquals: true,
		OperatorContains: true, OperatorNotContains: true,
		OperatorIsEmpty: true, OperatorIsNotEmpty: true,
	},
	FieldTypeCheckbox: {
		OperatorContains: true, OperatorNotContains: true,
		OperatorIsEmpty: true, OperatorIsNotEmpty: true,
	},
	FieldTypeBoolean: {
		OperatorEquals: true, OperatorNotEquals: true,
	},
	FieldTypeSlider: {
		OperatorEquals: true, OperatorNotEquals: true,
		OperatorGreaterThan: true, OperatorLessThan: true,
		OperatorGreaterThanOrEqual: true, OperatorLessThanOrEqual: true,
	},
}

// OperatorSupported reports whether op may be used against a source field of
// the given type.
func OperatorSupported(ft FieldType, op Operator) bool {
	return operatorSupport[ft][op]
}

// ConditionalLogic controls the visibility of a field or prompt based on the
// current answer of another field.
type ConditionalLogic struct {
	SourceFieldID string   `json:"sourceFieldId"`
	Operator      Operator `json:"operator"`
	Value         string   `json:"value,omitempty"`
}

// Choice is a selectable option for radio/checkbox/dropdown fields.
type Choice struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// ChoiceNone is the sentinel checkbox choice that excludes all other selections.
const ChoiceNone = "none"

// Field is a single author-defined input control within a phase. The Name is
// the stable key used in the answers map and in prompt templates.
type Field struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Label    string    `json:"label,omitempty"`
	Type     FieldType `json:"type"`
	Required bool      `json:"isRequired,omitempty"`
	ReadOnly bool      `json:"readOnly,omitempty"`

	// Text constraints
	MinChars int `json:"minChars,omitempty"`
	MaxChars int `json:"maxChars,omitempty"`

	// Slider constraints
	MinValue float64 `json:"minValue,omitempty"`
	MaxValue float64 `json:"maxValue,omitempty"`
	Step     float64 `json:"step,omitempty"`

	// Choice constraints
	Choices       []Choice `json:"choices,omitempty"`
	ShowOtherItem bool     `json:"showOtherItem,omitempty"`

	// Upload constraints
	MaxFiles         int      `json:"maxFiles,omitempty"`
	MaxFileSize      int64    `json:"maxFileSize,omitempty"`
	AllowedFileTypes []string `json:"allowedFileTypes,omitempty"`

	// Chat constraints
	MaxMessages int `json:"maxMessages,omitempty"`

	// Display content for richText fields
	Content string `json:"content,omitempty"`

	DefaultValue string            `json:"defaultValue,omitempty"`
	Logic        *ConditionalLogic `json:"conditionalLogic,omitempty"`
}

// ChoiceLabel resolves a stored choice value to its author-facing label.
// Unknown values are returned unchanged so templates still read sensibly.
func (f *Field) ChoiceLabel(value string) string {
	for _, c := range f.Choices {
		if c.Value == value {
			return c.Label
		}
	}
	return value
}

// PromptKind defines how a phase prompt is used.
type PromptKind string

const (
	// PromptKindPrompt is author text forwarded to the AI run as the user-facing prompt.
	PromptKindPrompt PromptKind = "prompt"
	// PromptKindAIInstructions is system-level guidance for the AI run.
	PromptKindAIInstructions PromptKind = "aiInstructions"
	// PromptKindFixedResponse is displayed verbatim after template expansion.
	PromptKindFixedResponse PromptKind = "fixedResponse"
)

// IsValidPromptKind checks if the given prompt kind is supported.
func IsValidPromptKind(pk PromptKind) bool {
	switch pk {
	case PromptKindPrompt, PromptKindAIInstructions, PromptKindFixedResponse:
		return true
	default:
		return false
	}
}

// Prompt is author-authored text attached to a phase. Text may contain
// {field_name} placeholders referencing fields from any phase of the app.
type Prompt struct {
	ID    string            `json:"id"`
	Name  string            `json:"name,omitempty"`
	Kind  PromptKind        `json:"type"`
	Text  string            `json:"text"`
	Logic *ConditionalLogic `json:"conditionalLogic,omitempty"`
}

// Phase is one ordered step of a guided app. Phases are sequenced by array
// position and addressed by ID.
type Phase struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Elements    []Field  `json:"elements"`
	Prompts     []Prompt `json:"prompts,omitempty"`
	SkipAllowed bool     `json:"skipPhase,omitempty"`
	Scored      bool     `json:"scoredPhase,omitempty"`
	Rubric      string   `json:"rubric,omitempty"`
	MinScore    float64  `json:"minScore,omitempty"`
}

// PromptsOfKind returns the phase's prompts of the given kind, in author order.
func (p *Phase) PromptsOfKind(kind PromptKind) []Prompt {
	var out []Prompt
	for _, pr := range p.Prompts {
		if pr.Kind == kind {
			out = append(out, pr)
		}
	}
	return out
}

// App is a complete author-defined micro-app: an ordered list of phases.
type App struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Phases []Phase `json:"phases"`
}

// Validation constants for app definitions.
const (
	// MaxPromptTextLength defines the maximum allowed length for prompt text.
	MaxPromptTextLength = 8192
	// MaxRubricLength defines the maximum allowed length for scoring rubrics.
	MaxRubricLength = 4096
	// MaxFieldNameLength defines the maximum allowed length for field names.
	MaxFieldNameLength = 128
)

// Error variables for app definition validation.
var (
	ErrNoPhases             = errors.New("app must define at least one phase")
	ErrEmptyFieldName       = errors.New("field name cannot be empty")
	ErrFieldNameTooLong     = errors.New("field name exceeds maximum length")
	ErrDuplicateFieldName   = errors.New("field name is not unique within the app")
	ErrInvalidFieldType     = errors.New("invalid field type")
	ErrMissingChoices       = errors.New("choice field requires at least one choice")
	ErrInvalidPromptKind    = errors.New("invalid prompt type")
	ErrPromptTextTooLong    = errors.New("prompt text exceeds maximum length")
	ErrMissingRubric        = errors.New("scored phase requires a rubric")
	ErrRubricTooLong        = errors.New("rubric exceeds maximum length")
	ErrUnknownLogicSource   = errors.New("conditional logic references an unknown source field")
	ErrUnsupportedOperator  = errors.New("operator is not supported for the source field type")
	ErrMissingOperatorValue = errors.New("operator requires a comparison value")
)

// Validate performs comprehensive validation on an app definition. The
// runtime engine assumes definitions are well-formed, so every structural
// problem must be caught here.
func (a *App) Validate() error {
	if len(a.Phases) == 0 {
		return ErrNoPhases
	}

	// Field names must be unique across the whole app: answers, conditional
	// sources, and template placeholders all resolve app-wide.
	seenNames := make(map[string]bool)
	for pi := range a.Phases {
		phase := &a.Phases[pi]
		for fi := range phase.Elements {
			field := &phase.Elements[fi]
			if err := field.validate(); err != nil {
				return fmt.Errorf("phase %d field %q: %w", pi, field.Name, err)
			}
			if seenNames[field.Name] {
				return fmt.Errorf("phase %d field %q: %w", pi, field.Name, ErrDuplicateFieldName)
			}
			seenNames[field.Name] = true
		}
	}

	for pi := range a.Phases {
		phase := &a.Phases[pi]
		if phase.Scored {
			if phase.Rubric == "" {
				return fmt.Errorf("phase %d: %w", pi, ErrMissingRubric)
			}
			if len(phase.Rubric) > MaxRubricLength {
				return fmt.Errorf("phase %d: %w", pi, ErrRubricTooLong)
			}
		}
		for _, pr := range phase.Prompts {
			if !IsValidPromptKind(pr.Kind) {
				return fmt.Errorf("phase %d prompt %q: %w", pi, pr.ID, ErrInvalidPromptKind)
			}
			if len(pr.Text) > MaxPromptTextLength {
				return fmt.Errorf("phase %d prompt %q: %w", pi, pr.ID, ErrPromptTextTooLong)
			}
			if err := a.validateLogic(pr.Logic); err != nil {
				return fmt.Errorf("phase %d prompt %q: %w", pi, pr.ID, err)
			}
		}
		for fi := range phase.Elements {
			field := &phase.Elements[fi]
			if err := a.validateLogic(field.Logic); err != nil {
				return fmt.Errorf("phase %d field %q: %w", pi, field.Name, err)
			}
		}
	}

	return nil
}

// validate checks a single field definition.
func (f *Field) validate() error {
	if f.Name == "" {
		return ErrEmptyFieldName
	}
	if len(f.Name) > MaxFieldNameLength {
		return ErrFieldNameTooLong
	}
	if !IsValidFieldType(f.Type) {
		return ErrInvalidFieldType
	}
	if f.Type.HasChoices() && len(f.Choices) == 0 {
		return ErrMissingChoices
	}
	return nil
}

// validateLogic checks a conditional rule against the app's field set. The
// operator/type table makes unsupported combinations (including equality or
// ordering against list-valued sources) a construction-time error.
func (a *App) validateLogic(logic *ConditionalLogic) error {
	if logic == nil || logic.SourceFieldID == "" {
		return nil
	}
	source := a.FieldBySourceID(logic.SourceFieldID)
	if source == nil {
		return ErrUnknownLogicSource
	}
	if !OperatorSupported(source.Type, logic.Operator) {
		return fmt.Errorf("%w: %s on %s", ErrUnsupportedOperator, logic.Operator, source.Type)
	}
	if logic.Operator.NeedsValue() && logic.Value == "" {
		return ErrMissingOperatorValue
	}
	return nil
}

// FieldByName returns the field with the given name, searching all phases.
func (a *App) FieldByName(name string) *Field {
	for pi := range a.Phases {
		for fi := range a.Phases[pi].Elements {
			if a.Phases[pi].Elements[fi].Name == name {
				return &a.Phases[pi].Elements[fi]
			}
		}
	}
	return nil
}

// FieldByRef resolves a field reference by name first, then by id, across all
// phases. This is the resolution order used by the templating engine.
func (a *App) FieldByRef(ref string) *Field {
	if f := a.FieldByName(ref); f != nil {
		return f
	}
	for pi := range a.Phases {
		for fi := range a.Phases[pi].Elements {
			if a.Phases[pi].Elements[fi].ID == ref {
				return &a.Phases[pi].Elements[fi]
			}
		}
	}
	return nil
}

// FieldBySourceID resolves a conditional logic source reference. Rules are
// authored against field ids, but older definitions reference names, so ids
// win and names are accepted as a fallback.
func (a *App) FieldBySourceID(ref string) *Field {
	for pi := range a.Phases {
		for fi := range a.Phases[pi].Elements {
			if a.Phases[pi].Elements[fi].ID == ref {
				return &a.Phases[pi].Elements[fi]
			}
		}
	}
	return a.FieldByName(ref)
}
