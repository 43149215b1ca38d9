package flow

import (
	"testing"

	"github.com/BTreeMap/FormFlow/internal/models"
)

func visibilityApp() *models.App {
	return &models.App{
		ID: "app-1", Name: "Visibility",
		Phases: []models.Phase{
			{
				ID: "p1", Title: "Phase",
				Elements: []models.Field{
					{ID: "f1", Name: "mood", Type: models.FieldTypeRadio, Choices: []models.Choice{
						{Value: "good", Label: "Good"}, {Value: "bad", Label: "Bad"},
					}},
					{ID: "f2", Name: "symptoms", Type: models.FieldTypeCheckbox, Choices: []models.Choice{
						{Value: "cough", Label: "Cough"}, {Value: "none", Label: "None"},
					}},
					{ID: "f3", Name: "severity", Type: models.FieldTypeSlider},
					{ID: "f4", Name: "notes", Type: models.FieldTypeTextarea},
				},
			},
		},
	}
}

func TestIsVisible_NoLogicIsUnconditional(t *testing.T) {
	app := visibilityApp()
	if !IsVisible(app, nil, models.Answers{}) {
		t.Error("nil logic must be visible")
	}
	if !IsVisible(app, &models.ConditionalLogic{}, models.Answers{}) {
		t.Error("empty source must be visible")
	}
}

func TestIsVisible_UnknownSourceDegradesToVisible(t *testing.T) {
	app := visibilityApp()
	logic := &models.ConditionalLogic{SourceFieldID: "vanished", Operator: models.OperatorEquals, Value: "x"}
	if !IsVisible(app, logic, models.Answers{}) {
		t.Error("orphaned rule must degrade to visible")
	}
}

func TestIsVisible_Equals(t *testing.T) {
	app := visibilityApp()
	logic := &models.ConditionalLogic{SourceFieldID: "f1", Operator: models.OperatorEquals, Value: "good"}

	if IsVisible(app, logic, models.Answers{}) {
		t.Error("unanswered source must not equal a value")
	}
	answers := models.Answers{"mood": {Value: models.ScalarValue("good")}}
	if !IsVisible(app, logic, answers) {
		t.Error("expected visible when equal")
	}

	notLogic := &models.ConditionalLogic{SourceFieldID: "f1", Operator: models.OperatorNotEquals, Value: "good"}
	if IsVisible(app, notLogic, answers) {
		t.Error("not_equals must hide on match")
	}
}

func TestIsVisible_EqualsOnListSourceNeverMatches(t *testing.T) {
	app := visibilityApp()
	logic := &models.ConditionalLogic{SourceFieldID: "f2", Operator: models.OperatorEquals, Value: "cough"}
	answers := models.Answers{"symptoms": {Value: models.ListValue("cough")}}
	if IsVisible(app, logic, answers) {
		t.Error("equality against a list source must never match")
	}
}

func TestIsVisible_ContainsOnList(t *testing.T) {
	app := visibilityApp()
	logic := &models.ConditionalLogic{SourceFieldID: "f2", Operator: models.OperatorContains, Value: "cough"}
	answers := models.Answers{"symptoms": {Value: models.ListValue("cough", "fever")}}
	if !IsVisible(app, logic, answers) {
		t.Error("expected membership match")
	}
	answers = models.Answers{"symptoms": {Value: models.ListValue("fever")}}
	if IsVisible(app, logic, answers) {
		t.Error("expected no membership match")
	}
}

func TestIsVisible_ContainsOnScalarIsSubstring(t *testing.T) {
	app := visibilityApp()
	logic := &models.ConditionalLogic{SourceFieldID: "f4", Operator: models.OperatorContains, Value: "head"}
	answers := models.Answers{"notes": {Value: models.ScalarValue("bad headache today")}}
	if !IsVisible(app, logic, answers) {
		t.Error("expected substring match on scalar source")
	}
}

func TestIsVisible_EmptyOperators(t *testing.T) {
	app := visibilityApp()
	isEmpty := &models.ConditionalLogic{SourceFieldID: "f4", Operator: models.OperatorIsEmpty}
	isNotEmpty := &models.ConditionalLogic{SourceFieldID: "f4", Operator: models.OperatorIsNotEmpty}

	if !IsVisible(app, isEmpty, models.Answers{}) {
		t.Error("missing answer is empty")
	}
	answers := models.Answers{"notes": {Value: models.ScalarValue("x")}}
	if IsVisible(app, isEmpty, answers) || !IsVisible(app, isNotEmpty, answers) {
		t.Error("emptiness operators inverted")
	}
}

func TestIsVisible_Ordering(t *testing.T) {
	app := visibilityApp()
	answers := models.Answers{"severity": {Value: models.ScalarValue("7")}}

	cases := []struct {
		op    models.Operator
		value string
		want  bool
	}{
		{models.OperatorGreaterThan, "5", true},
		{models.OperatorGreaterThan, "7", false},
		{models.OperatorGreaterThanOrEqual, "7", true},
		{models.OperatorLessThan, "10", true},
		{models.OperatorLessThanOrEqual, "6.5", false},
	}
	for _, c := range cases {
		logic := &models.ConditionalLogic{SourceFieldID: "f3", Operator: c.op, Value: c.value}
		if got := IsVisible(app, logic, answers); got != c.want {
			t.Errorf("%s %s: got %v, want %v", c.op, c.value, got, c.want)
		}
	}
}

func TestIsVisible_OrderingNonNumericNeverMatches(t *testing.T) {
	app := visibilityApp()
	logic := &models.ConditionalLogic{SourceFieldID: "f3", Operator: models.OperatorGreaterThan, Value: "5"}
	answers := models.Answers{"severity": {Value: models.ScalarValue("many")}}
	if IsVisible(app, logic, answers) {
		t.Error("non-numeric side must never match")
	}
}

func TestIsVisible_Idempotent(t *testing.T) {
	app := visibilityApp()
	logic := &models.ConditionalLogic{SourceFieldID: "f1", Operator: models.OperatorEquals, Value: "good"}
	answers := models.Answers{"mood": {Value: models.ScalarValue("good")}}
	first := IsVisible(app, logic, answers)
	for i := 0; i < 5; i++ {
		if IsVisible(app, logic, answers) != first {
			t.Fatal("evaluation must be stable for identical inputs")
		}
	}
}
