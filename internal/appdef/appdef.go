// Package appdef loads guided-form app definitions from JSON or YAML files.
package appdef

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BTreeMap/FormFlow/internal/models"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Parse decodes an app definition from JSON or YAML, fills in missing
// identifiers, and validates the result.
func Parse(data []byte) (*models.App, error) {
	var app models.App
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
		if err := json.Unmarshal(data, &app); err != nil {
			return nil, fmt.Errorf("failed to decode app definition: %w", err)
		}
	} else {
		// Round-trip through JSON so the models' json tags apply to YAML input.
		var raw interface{}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to decode app definition: %w", err)
		}
		encoded, err := json.Marshal(normalizeYAML(raw))
		if err != nil {
			return nil, fmt.Errorf("failed to normalize app definition: %w", err)
		}
		if err := json.Unmarshal(encoded, &app); err != nil {
			return nil, fmt.Errorf("failed to decode app definition: %w", err)
		}
	}

	assignIDs(&app)
	if err := app.Validate(); err != nil {
		return nil, fmt.Errorf("invalid app definition: %w", err)
	}
	return &app, nil
}

// normalizeYAML converts yaml map keys to strings so the value can be
// re-encoded as JSON.
func normalizeYAML(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = normalizeYAML(item)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[fmt.Sprintf("%v", k)] = normalizeYAML(item)
		}
		return out
	case []interface{}:
		for i, item := range val {
			val[i] = normalizeYAML(item)
		}
		return val
	default:
		return v
	}
}

// assignIDs fills in identifiers the definition file omitted.
func assignIDs(app *models.App) {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	for pi := range app.Phases {
		phase := &app.Phases[pi]
		if phase.ID == "" {
			phase.ID = uuid.NewString()
		}
		for fi := range phase.Elements {
			if phase.Elements[fi].ID == "" {
				phase.Elements[fi].ID = uuid.NewString()
			}
		}
		for pri := range phase.Prompts {
			if phase.Prompts[pri].ID == "" {
				phase.Prompts[pri].ID = uuid.NewString()
			}
		}
	}
}

// LoadFile parses the app definition at path.
func LoadFile(path string) (*models.App, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read app definition %s: %w", path, err)
	}
	app, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return app, nil
}

// LoadDir parses every .json, .yaml, and .yml file directly under dir.
// Files that fail to parse are logged and skipped.
func LoadDir(dir string) ([]*models.App, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read app directory %s: %w", dir, err)
	}

	var apps []*models.App
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".json" && ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		app, err := LoadFile(path)
		if err != nil {
			slog.Warn("LoadDir: skipping invalid app definition", "path", path, "error", err)
			continue
		}
		slog.Info("LoadDir: loaded app definition", "path", path, "appID", app.ID, "name", app.Name)
		apps = append(apps, app)
	}
	return apps, nil
}
