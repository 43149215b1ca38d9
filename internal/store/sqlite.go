// Package store provides storage backends for FormFlow.
//
// This file implements an SQLite-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/BTreeMap/FormFlow/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore is a file-backed Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store. The DSN is a file path to the
// database file; the containing directory is created if needed.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run SQLite migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// SaveApp inserts or replaces an app definition.
func (s *SQLiteStore) SaveApp(app models.App) error {
	definition, err := json.Marshal(app)
	if err != nil {
		return fmt.Errorf("failed to encode app %s: %w", app.ID, err)
	}
	_, err = s.db.Exec(`INSERT INTO apps (id, name, definition, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, definition = excluded.definition, updated_at = CURRENT_TIMESTAMP`,
		app.ID, app.Name, string(definition))
	if err != nil {
		slog.Error("SQLiteStore SaveApp failed", "error", err, "appID", app.ID)
		return fmt.Errorf("failed to save app %s: %w", app.ID, err)
	}
	slog.Debug("SQLiteStore SaveApp succeeded", "appID", app.ID)
	return nil
}

// GetApp retrieves an app definition, or nil if not found.
func (s *SQLiteStore) GetApp(id string) (*models.App, error) {
	var definition string
	err := s.db.QueryRow(`SELECT definition FROM apps WHERE id = ?`, id).Scan(&definition)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetApp failed", "error", err, "appID", id)
		return nil, fmt.Errorf("failed to query app %s: %w", id, err)
	}
	var app models.App
	if err := json.Unmarshal([]byte(definition), &app); err != nil {
		return nil, fmt.Errorf("failed to decode app %s: %w", id, err)
	}
	return &app, nil
}

// ListApps returns all stored app definitions.
func (s *SQLiteStore) ListApps() ([]models.App, error) {
	rows, err := s.db.Query(`SELECT definition FROM apps ORDER BY id`)
	if err != nil {
		slog.Error("SQLiteStore ListApps query failed", "error", err)
		return nil, fmt.Errorf("failed to query apps: %w", err)
	}
	defer rows.Close()

	var apps []models.App
	for rows.Next() {
		var definition string
		if err := rows.Scan(&definition); err != nil {
			return nil, fmt.Errorf("failed to scan app row: %w", err)
		}
		var app models.App
		if err := json.Unmarshal([]byte(definition), &app); err != nil {
			return nil, fmt.Errorf("failed to decode app definition: %w", err)
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate app rows: %w", err)
	}
	slog.Debug("SQLiteStore ListApps succeeded", "count", len(apps))
	return apps, nil
}

// SaveSessionState inserts or replaces a session snapshot.
func (s *SQLiteStore) SaveSessionState(st models.SessionState) error {
	completed, err := marshalJSON(st.Completed)
	if err != nil {
		return fmt.Errorf("failed to encode completed phases for %s: %w", st.SessionID, err)
	}
	answers, err := marshalJSON(st.Answers)
	if err != nil {
		return fmt.Errorf("failed to encode answers for %s: %w", st.SessionID, err)
	}
	_, err = s.db.Exec(`INSERT INTO session_states (session_id, app_id, user_id, phase_index, completed, finished, answers, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			app_id = excluded.app_id, user_id = excluded.user_id,
			phase_index = excluded.phase_index, completed = excluded.completed,
			finished = excluded.finished, answers = excluded.answers,
			updated_at = excluded.updated_at`,
		st.SessionID, st.AppID, nilIfEmpty(st.UserID), st.PhaseIndex,
		completed, st.Finished, answers, st.CreatedAt, st.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveSessionState failed", "error", err, "sessionID", st.SessionID)
		return fmt.Errorf("failed to save session state %s: %w", st.SessionID, err)
	}
	slog.Debug("SQLiteStore SaveSessionState succeeded", "sessionID", st.SessionID, "phaseIndex", st.PhaseIndex)
	return nil
}

// GetSessionState retrieves a session snapshot, or nil if not found.
func (s *SQLiteStore) GetSessionState(sessionID string) (*models.SessionState, error) {
	row := s.db.QueryRow(`SELECT session_id, app_id, user_id, phase_index, completed, finished, answers, created_at, updated_at
		FROM session_states WHERE session_id = ?`, sessionID)
	st, err := scanSessionState(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetSessionState failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to query session state %s: %w", sessionID, err)
	}
	return &st, nil
}

// ListSessionStates returns all stored session snapshots.
func (s *SQLiteStore) ListSessionStates() ([]models.SessionState, error) {
	rows, err := s.db.Query(`SELECT session_id, app_id, user_id, phase_index, completed, finished, answers, created_at, updated_at
		FROM session_states ORDER BY session_id`)
	if err != nil {
		slog.Error("SQLiteStore ListSessionStates query failed", "error", err)
		return nil, fmt.Errorf("failed to query session states: %w", err)
	}
	defer rows.Close()

	var states []models.SessionState
	for rows.Next() {
		st, err := scanSessionState(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session state row: %w", err)
		}
		states = append(states, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session state rows: %w", err)
	}
	return states, nil
}

// DeleteSessionState removes a session snapshot.
func (s *SQLiteStore) DeleteSessionState(sessionID string) error {
	_, err := s.db.Exec(`DELETE FROM session_states WHERE session_id = ?`, sessionID)
	if err != nil {
		slog.Error("SQLiteStore DeleteSessionState failed", "error", err, "sessionID", sessionID)
		return fmt.Errorf("failed to delete session state %s: %w", sessionID, err)
	}
	return nil
}

// AddRun appends a run to the history.
func (s *SQLiteStore) AddRun(run models.Run) error {
	messages, err := marshalJSON(run.Messages)
	if err != nil {
		return fmt.Errorf("failed to encode messages for run %s: %w", run.ID, err)
	}
	_, err = s.db.Exec(`INSERT INTO runs (id, session_id, app_id, user_id, phase_index, status, messages, passed, score, request_skip, no_submit, satisfaction, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.SessionID, run.AppID, nilIfEmpty(run.UserID), run.PhaseIndex, run.Status,
		messages, nullableBool(run.Passed), nilIfEmpty(run.Score), run.RequestSkip, run.NoSubmit,
		run.Satisfaction, run.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore AddRun failed", "error", err, "runID", run.ID)
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}
	slog.Debug("SQLiteStore AddRun succeeded", "runID", run.ID, "sessionID", run.SessionID)
	return nil
}

// GetRun retrieves a single run, or nil if not found.
func (s *SQLiteStore) GetRun(id string) (*models.Run, error) {
	row := s.db.QueryRow(`SELECT id, session_id, app_id, user_id, phase_index, status, messages, passed, score, request_skip, no_submit, satisfaction, created_at
		FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetRun failed", "error", err, "runID", id)
		return nil, fmt.Errorf("failed to query run %s: %w", id, err)
	}
	return &run, nil
}

// GetRuns returns a session's run history in creation order.
func (s *SQLiteStore) GetRuns(sessionID string) ([]models.Run, error) {
	rows, err := s.db.Query(`SELECT id, session_id, app_id, user_id, phase_index, status, messages, passed, score, request_skip, no_submit, satisfaction, created_at
		FROM runs WHERE session_id = ? ORDER BY created_at, id`, sessionID)
	if err != nil {
		slog.Error("SQLiteStore GetRuns query failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to query runs for %s: %w", sessionID, err)
	}
	defer rows.Close()

	var runs []models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate run rows: %w", err)
	}
	return runs, nil
}

// SetRunSatisfaction records feedback on a past run.
func (s *SQLiteStore) SetRunSatisfaction(runID string, satisfaction int) error {
	if err := models.ValidateSatisfaction(satisfaction); err != nil {
		return err
	}
	res, err := s.db.Exec(`UPDATE runs SET satisfaction = ? WHERE id = ?`, satisfaction, runID)
	if err != nil {
		slog.Error("SQLiteStore SetRunSatisfaction failed", "error", err, "runID", runID)
		return fmt.Errorf("failed to update run %s: %w", runID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result for run %s: %w", runID, err)
	}
	if affected == 0 {
		return fmt.Errorf("run not found: %s", runID)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
