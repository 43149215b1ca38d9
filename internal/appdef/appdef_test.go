package appdef

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/BTreeMap/FormFlow/internal/models"
)

const jsonDef = `{
	"name": "Check-in",
	"phases": [
		{
			"title": "Mood",
			"elements": [
				{"name": "mood", "type": "radiogroup", "choices": [
					{"value": "good", "label": "Good"},
					{"value": "bad", "label": "Bad"}
				]}
			],
			"prompts": [
				{"type": "prompt", "text": "The user feels {mood}."}
			]
		}
	]
}`

const yamlDef = `name: Check-in
phases:
  - title: Mood
    elements:
      - name: mood
        type: radiogroup
        choices:
          - value: good
            label: Good
          - value: bad
            label: Bad
    prompts:
      - type: prompt
        text: "The user feels {mood}."
`

func TestParse_JSON(t *testing.T) {
	app, err := Parse([]byte(jsonDef))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if app.Name != "Check-in" || len(app.Phases) != 1 {
		t.Errorf("unexpected app %+v", app)
	}
	if app.ID == "" || app.Phases[0].ID == "" || app.Phases[0].Elements[0].ID == "" || app.Phases[0].Prompts[0].ID == "" {
		t.Error("missing identifiers must be assigned")
	}
	if app.Phases[0].Elements[0].Type != models.FieldTypeRadio {
		t.Errorf("unexpected field type %s", app.Phases[0].Elements[0].Type)
	}
}

func TestParse_YAML(t *testing.T) {
	app, err := Parse([]byte(yamlDef))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if app.Name != "Check-in" {
		t.Errorf("unexpected app name %s", app.Name)
	}
	if got := app.Phases[0].Prompts[0].Kind; got != models.PromptKindPrompt {
		t.Errorf("unexpected prompt kind %s", got)
	}
}

func TestParse_ExplicitIDsKept(t *testing.T) {
	def := `{"id": "my-app", "name": "N", "phases": [{"id": "ph", "title": "T", "elements": [{"id": "el", "name": "x", "type": "text"}]}]}`
	app, err := Parse([]byte(def))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if app.ID != "my-app" || app.Phases[0].ID != "ph" || app.Phases[0].Elements[0].ID != "el" {
		t.Errorf("explicit ids must survive, got %+v", app)
	}
}

func TestParse_InvalidDefinitionRejected(t *testing.T) {
	// Choice field without choices fails app validation.
	def := `{"name": "Bad", "phases": [{"title": "T", "elements": [{"name": "x", "type": "dropdown"}]}]}`
	if _, err := Parse([]byte(def)); err == nil {
		t.Error("expected validation error")
	}
}

func TestParse_MalformedInput(t *testing.T) {
	if _, err := Parse([]byte(`{"name": `)); err == nil {
		t.Error("expected JSON decode error")
	}
	if _, err := Parse([]byte("\t- not: [valid")); err == nil {
		t.Error("expected YAML decode error")
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.json"), []byte(jsonDef), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "b.yaml"), []byte(yamlDef), 0644); err != nil {
		t.Fatal(err)
	}
	// Broken and irrelevant files are skipped.
	if err := os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip me"), 0644); err != nil {
		t.Fatal(err)
	}

	apps, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}
	if len(apps) != 2 {
		t.Errorf("expected 2 apps, got %d", len(apps))
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
