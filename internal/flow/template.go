package flow

import (
	"regexp"
	"strings"

	"github.com/BTreeMap/FormFlow/internal/models"
)

// placeholderPattern matches {identifier} tokens inside prompt text.
// Identifiers follow field name rules: word characters and dashes.
var placeholderPattern = regexp.MustCompile(`\{([A-Za-z0-9_][A-Za-z0-9_-]*)\}`)

// Inject expands {field_name} placeholders in text using the current answers.
// Identifiers resolve against all fields of the app, by name first and then
// by id. Choice-type fields render their choice labels rather than raw
// values so the text reads naturally. Tokens that match no field pass
// through unchanged; this is never an error.
func Inject(text string, app *models.App, answers models.Answers) string {
	return placeholderPattern.ReplaceAllStringFunc(text, func(token string) string {
		ident := token[1 : len(token)-1]
		field := app.FieldByRef(ident)
		if field == nil {
			return token
		}
		return renderAnswer(field, answers[field.Name])
	})
}

// renderAnswer produces the human-readable form of a field's current answer.
func renderAnswer(field *models.Field, answer models.Answer) string {
	var parts []string

	if field.Type.HasChoices() {
		if answer.Value.IsList() {
			for _, v := range answer.Value.List() {
				parts = append(parts, field.ChoiceLabel(v))
			}
		} else if answer.Value.Scalar() != "" {
			parts = append(parts, field.ChoiceLabel(answer.Value.Scalar()))
		}
		// The free-text "other" entry reads as an extra selection.
		if answer.Other != "" {
			parts = append(parts, answer.Other)
		}
		return strings.Join(parts, ", ")
	}

	return answer.Value.String()
}

// ReferencedFields returns the identifiers of all placeholders in text that
// resolve against the app's field set, in order of first appearance.
func ReferencedFields(text string, app *models.App) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range placeholderPattern.FindAllStringSubmatch(text, -1) {
		ident := m[1]
		if seen[ident] || app.FieldByRef(ident) == nil {
			continue
		}
		seen[ident] = true
		out = append(out, ident)
	}
	return out
}

// CombinePrompts concatenates the text of the given prompts with newline
// separators, in author order. Substitution happens after concatenation.
func CombinePrompts(prompts []models.Prompt) string {
	texts := make([]string, 0, len(prompts))
	for _, p := range prompts {
		texts = append(texts, p.Text)
	}
	return strings.Join(texts, "\n")
}

// RenderPrompts combines a phase's visible prompts of one kind and expands
// their placeholders against the current answers.
func RenderPrompts(app *models.App, phase *models.Phase, kind models.PromptKind, answers models.Answers) string {
	var visible []models.Prompt
	for _, p := range phase.PromptsOfKind(kind) {
		if IsVisible(app, p.Logic, answers) {
			visible = append(visible, p)
		}
	}
	if len(visible) == 0 {
		return ""
	}
	return Inject(CombinePrompts(visible), app, answers)
}

// SegmentKind distinguishes literal text from placeholder tags in the
// editing representation of prompt text.
type SegmentKind int

const (
	// SegmentText is a literal text run.
	SegmentText SegmentKind = iota
	// SegmentTag is a field placeholder; Value holds the bare identifier.
	SegmentTag
)

// Segment is one run of the display form of prompt text. Editing surfaces
// render SegmentTag entries as interactive tags; the segmentation is the
// whole contract, the visual encoding is up to the caller.
type Segment struct {
	Kind  SegmentKind
	Value string
}

// ToDisplay splits canonical prompt text into literal and tag segments.
// Whitespace is preserved exactly; ToCanonical(ToDisplay(x)) == x for any x
// whose placeholders are well-formed.
func ToDisplay(text string) []Segment {
	var segments []Segment
	last := 0
	for _, loc := range placeholderPattern.FindAllStringSubmatchIndex(text, -1) {
		if loc[0] > last {
			segments = append(segments, Segment{Kind: SegmentText, Value: text[last:loc[0]]})
		}
		segments = append(segments, Segment{Kind: SegmentTag, Value: text[loc[2]:loc[3]]})
		last = loc[1]
	}
	if last < len(text) {
		segments = append(segments, Segment{Kind: SegmentText, Value: text[last:]})
	}
	return segments
}

// ToCanonical reassembles display segments into canonical placeholder text.
func ToCanonical(segments []Segment) string {
	var sb strings.Builder
	for _, seg := range segments {
		if seg.Kind == SegmentTag {
			sb.WriteString("{")
			sb.WriteString(seg.Value)
			sb.WriteString("}")
			continue
		}
		sb.WriteString(seg.Value)
	}
	return sb.String()
}
