package flow

import (
	"strconv"
	"strings"

	"github.com/BTreeMap/FormFlow/internal/models"
)

// IsVisible evaluates a conditional visibility rule against the current
// answer set. Fields and prompts without a rule (or with no source field)
// are visible unconditionally. Evaluation is pure: it never mutates answers
// and always returns the same result for the same inputs.
func IsVisible(app *models.App, logic *models.ConditionalLogic, answers models.Answers) bool {
	if logic == nil || logic.SourceFieldID == "" {
		return true
	}

	source := app.FieldBySourceID(logic.SourceFieldID)
	if source == nil {
		// Unknown sources are rejected at app load; an orphaned rule at
		// runtime degrades to unconditional visibility.
		return true
	}

	current := answers[source.Name].Value

	switch logic.Operator {
	case models.OperatorIsEmpty:
		return current.IsEmpty()
	case models.OperatorIsNotEmpty:
		return !current.IsEmpty()

	case models.OperatorEquals, models.OperatorNotEquals:
		if current.IsList() {
			// Equality against list-valued sources is rejected at app load;
			// a rule that slips through never matches.
			return false
		}
		match := current.Scalar() == logic.Value
		if logic.Operator == models.OperatorNotEquals {
			return !match
		}
		return match

	case models.OperatorContains, models.OperatorNotContains:
		var match bool
		if current.IsList() {
			match = current.ContainsItem(logic.Value)
		} else {
			match = strings.Contains(current.Scalar(), logic.Value)
		}
		if logic.Operator == models.OperatorNotContains {
			return !match
		}
		return match

	case models.OperatorGreaterThan, models.OperatorLessThan,
		models.OperatorGreaterThanOrEqual, models.OperatorLessThanOrEqual:
		return compareNumeric(current, logic.Value, logic.Operator)

	default:
		return false
	}
}

// compareNumeric parses both sides as numbers and applies the ordering
// operator. Non-numeric sides never match; author-side validation keeps
// ordering operators on slider sources.
func compareNumeric(current models.AnswerValue, target string, op models.Operator) bool {
	if current.IsList() {
		return false
	}
	lhs, err := strconv.ParseFloat(current.Scalar(), 64)
	if err != nil {
		return false
	}
	rhs, err := strconv.ParseFloat(target, 64)
	if err != nil {
		return false
	}
	switch op {
	case models.OperatorGreaterThan:
		return lhs > rhs
	case models.OperatorLessThan:
		return lhs < rhs
	case models.OperatorGreaterThanOrEqual:
		return lhs >= rhs
	case models.OperatorLessThanOrEqual:
		return lhs <= rhs
	default:
		return false
	}
}
