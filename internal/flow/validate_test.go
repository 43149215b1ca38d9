package flow

import (
	"testing"

	"github.com/BTreeMap/FormFlow/internal/models"
)

func validateApp() *models.App {
	return &models.App{
		ID: "app-1", Name: "Validation",
		Phases: []models.Phase{
			{
				ID: "p1", Title: "Phase",
				Elements: []models.Field{
					{ID: "f1", Name: "name", Type: models.FieldTypeText, Required: true},
					{ID: "f2", Name: "bio", Type: models.FieldTypeTextarea, MinChars: 10, MaxChars: 100},
					{ID: "f3", Name: "intro", Type: models.FieldTypeRichText, Content: "welcome"},
					{ID: "f4", Name: "age_group", Type: models.FieldTypeDropdown, Required: true, Choices: []models.Choice{
						{Value: "18-30", Label: "18-30"},
					}},
				},
			},
		},
	}
}

func TestValidate_AllErrorsInOnePass(t *testing.T) {
	app := validateApp()
	answers := models.Answers{"bio": {Value: models.ScalarValue("short")}}

	errs := Validate(app, app.Phases[0].Elements, answers)
	if len(errs) != 3 {
		t.Fatalf("expected 3 errors (name, bio, age_group), got %d: %+v", len(errs), errs)
	}
	byField := make(map[string]string)
	for _, e := range errs {
		byField[e.Element] = e.Error
	}
	if byField["name"] != ErrMsgRequired {
		t.Errorf("expected required error for name, got %q", byField["name"])
	}
	if byField["bio"] != "must be at least 10 characters" {
		t.Errorf("expected min-length error for bio, got %q", byField["bio"])
	}
	if byField["age_group"] != ErrMsgRequired {
		t.Errorf("expected required error for age_group, got %q", byField["age_group"])
	}
}

func TestValidate_CleanPhase(t *testing.T) {
	app := validateApp()
	answers := models.Answers{
		"name":      {Value: models.ScalarValue("Ada")},
		"bio":       {Value: models.ScalarValue("a bio long enough to pass")},
		"age_group": {Value: models.ScalarValue("18-30")},
	}
	if errs := Validate(app, app.Phases[0].Elements, answers); len(errs) != 0 {
		t.Errorf("expected no errors, got %+v", errs)
	}
}

func TestValidate_MaxLength(t *testing.T) {
	app := validateApp()
	long := make([]byte, 101)
	for i := range long {
		long[i] = 'x'
	}
	answers := models.Answers{
		"name":      {Value: models.ScalarValue("Ada")},
		"bio":       {Value: models.ScalarValue(string(long))},
		"age_group": {Value: models.ScalarValue("18-30")},
	}
	errs := Validate(app, app.Phases[0].Elements, answers)
	if len(errs) != 1 || errs[0].Error != "must be at most 100 characters" {
		t.Errorf("expected max-length error, got %+v", errs)
	}
}

func TestValidate_LengthCountsRunesNotBytes(t *testing.T) {
	app := validateApp()
	app.Phases[0].Elements[1].MinChars = 0
	app.Phases[0].Elements[1].MaxChars = 6
	answers := models.Answers{
		"name":      {Value: models.ScalarValue("Ada")},
		"bio":       {Value: models.ScalarValue("résumé")}, // 6 runes, 8 bytes
		"age_group": {Value: models.ScalarValue("18-30")},
	}
	if errs := Validate(app, app.Phases[0].Elements, answers); len(errs) != 0 {
		t.Errorf("6-rune value must satisfy a 6-character limit, got %+v", errs)
	}

	app.Phases[0].Elements[1].MinChars = 7
	app.Phases[0].Elements[1].MaxChars = 0
	errs := Validate(app, app.Phases[0].Elements, answers)
	if len(errs) != 1 || errs[0].Error != "must be at least 7 characters" {
		t.Errorf("expected min-length error for 6-rune value, got %+v", errs)
	}
}

func TestValidate_OptionalEmptyTextSkipsLengthCheck(t *testing.T) {
	app := validateApp()
	answers := models.Answers{
		"name":      {Value: models.ScalarValue("Ada")},
		"age_group": {Value: models.ScalarValue("18-30")},
	}
	if errs := Validate(app, app.Phases[0].Elements, answers); len(errs) != 0 {
		t.Errorf("optional empty field must not fail length bounds, got %+v", errs)
	}
}

func TestValidate_RequiredSatisfiedByDefault(t *testing.T) {
	app := validateApp()
	app.Phases[0].Elements[0].DefaultValue = "Anonymous"
	answers := models.Answers{"age_group": {Value: models.ScalarValue("18-30")}}
	errs := Validate(app, app.Phases[0].Elements, answers)
	for _, e := range errs {
		if e.Element == "name" {
			t.Errorf("required must be satisfied by a default value, got %+v", e)
		}
	}
}

func TestValidate_HiddenFieldExcluded(t *testing.T) {
	app := validateApp()
	// age_group only applies when name is answered.
	app.Phases[0].Elements[3].Logic = &models.ConditionalLogic{
		SourceFieldID: "f1", Operator: models.OperatorIsNotEmpty,
	}
	errs := Validate(app, app.Phases[0].Elements, models.Answers{})
	for _, e := range errs {
		if e.Element == "age_group" {
			t.Errorf("hidden field must never produce an error, got %+v", errs)
		}
	}
}

func TestValidate_ReadOnlyAndDisplayOnlySkipped(t *testing.T) {
	app := validateApp()
	app.Phases[0].Elements[0].ReadOnly = true
	answers := models.Answers{"age_group": {Value: models.ScalarValue("18-30")}}
	for _, e := range Validate(app, app.Phases[0].Elements, answers) {
		if e.Element == "name" || e.Element == "intro" {
			t.Errorf("read-only and display-only fields must be skipped, got %+v", e)
		}
	}
}
