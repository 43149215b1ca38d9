// Package store provides storage backends for FormFlow.
//
// This file implements a PostgreSQL-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	_ "embed"

	"github.com/BTreeMap/FormFlow/internal/models"
	_ "github.com/lib/pq"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore is a PostgreSQL-backed Store.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store using the DSN from options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open PostgreSQL connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("PostgreSQL ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run PostgreSQL migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgreSQL migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

// SaveApp inserts or replaces an app definition.
func (s *PostgresStore) SaveApp(app models.App) error {
	definition, err := json.Marshal(app)
	if err != nil {
		return fmt.Errorf("failed to encode app %s: %w", app.ID, err)
	}
	_, err = s.db.Exec(`INSERT INTO apps (id, name, definition, updated_at) VALUES ($1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, definition = EXCLUDED.definition, updated_at = NOW()`,
		app.ID, app.Name, string(definition))
	if err != nil {
		slog.Error("PostgresStore SaveApp failed", "error", err, "appID", app.ID)
		return fmt.Errorf("failed to save app %s: %w", app.ID, err)
	}
	return nil
}

// GetApp retrieves an app definition, or nil if not found.
func (s *PostgresStore) GetApp(id string) (*models.App, error) {
	var definition string
	err := s.db.QueryRow(`SELECT definition FROM apps WHERE id = $1`, id).Scan(&definition)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetApp failed", "error", err, "appID", id)
		return nil, fmt.Errorf("failed to query app %s: %w", id, err)
	}
	var app models.App
	if err := json.Unmarshal([]byte(definition), &app); err != nil {
		return nil, fmt.Errorf("failed to decode app %s: %w", id, err)
	}
	return &app, nil
}

// ListApps returns all stored app definitions.
func (s *PostgresStore) ListApps() ([]models.App, error) {
	rows, err := s.db.Query(`SELECT definition FROM apps ORDER BY id`)
	if err != nil {
		slog.Error("PostgresStore ListApps query failed", "error", err)
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
	return apps, nil
}

// SaveSessionState inserts or replaces a session snapshot.
func (s *PostgresStore) SaveSessionState(st models.SessionState) error {
	completed, err := marshalJSON(st.Completed)
	if err != nil {
		return fmt.Errorf("failed to encode completed phases for %s: %w", st.SessionID, err)
	}
	answers, err := marshalJSON(st.Answers)
	if err != nil {
		return fmt.Errorf("failed to encode answers for %s: %w", st.SessionID, err)
	}
	_, err = s.db.Exec(`INSERT INTO session_states (session_id, app_id, user_id, phase_index, completed, finished, answers, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (session_id) DO UPDATE SET
			app_id = EXCLUDED.app_id, user_id = EXCLUDED.user_id,
			phase_index = EXCLUDED.phase_index, completed = EXCLUDED.completed,
			finished = EXCLUDED.finished, answers = EXCLUDED.answers,
			updated_at = EXCLUDED.updated_at`,
		st.SessionID, st.AppID, nilIfEmpty(st.UserID), st.PhaseIndex,
		completed, st.Finished, answers, st.CreatedAt, st.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveSessionState failed", "error", err, "sessionID", st.SessionID)
		return fmt.Errorf("failed to save session state %s: %w", st.SessionID, err)
	}
	return nil
}

// GetSessionState retrieves a session snapshot, or nil if not found.
func (s *PostgresStore) GetSessionState(sessionID string) (*models.SessionState, error) {
	row := s.db.QueryRow(`SELECT session_id, app_id, user_id, phase_index, completed, finished, answers, created_at, updated_at
		FROM session_states WHERE session_id = $1`, sessionID)
	st, err := scanSessionState(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetSessionState failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to query session state %s: %w", sessionID, err)
	}
	return &st, nil
}

// ListSessionStates returns all stored session snapshots.
func (s *PostgresStore) ListSessionStates() ([]models.SessionState, error) {
	rows, err := s.db.Query(`SELECT session_id, app_id, user_id, phase_index, completed, finished, answers, created_at, updated_at
		FROM session_states ORDER BY session_id`)
	if err != nil {
		slog.Error("PostgresStore ListSessionStates query failed", "error", err)
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
func (s *PostgresStore) DeleteSessionState(sessionID string) error {
	_, err := s.db.Exec(`DELETE FROM session_states WHERE session_id = $1`, sessionID)
	if err != nil {
		slog.Error("PostgresStore DeleteSessionState failed", "error", err, "sessionID", sessionID)
		return fmt.Errorf("failed to delete session state %s: %w", sessionID, err)
	}
	return nil
}

// AddRun appends a run to the history.
func (s *PostgresStore) AddRun(run models.Run) error {
	messages, err := marshalJSON(run.Messages)
	if err != nil {
		return fmt.Errorf("failed to encode messages for run %s: %w", run.ID, err)
	}
	_, err = s.db.Exec(`INSERT INTO runs (id, session_id, app_id, user_id, phase_index, status, messages, passed, score, request_skip, no_submit, satisfaction, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		run.ID, run.SessionID, run.AppID, nilIfEmpty(run.UserID), run.PhaseIndex, run.Status,
		messages, nullableBool(run.Passed), nilIfEmpty(run.Score), run.RequestSkip, run.NoSubmit,
		run.Satisfaction, run.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore AddRun failed", "error", err, "runID", run.ID)
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}
	return nil
}

// GetRun retrieves a single run, or nil if not found.
func (s *PostgresStore) GetRun(id string) (*models.Run, error) {
	row := s.db.QueryRow(`SELECT id, session_id, app_id, user_id, phase_index, status, messages, passed, score, request_skip, no_submit, satisfaction, created_at
		FROM runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetRun failed", "error", err, "runID", id)
		return nil, fmt.Errorf("failed to query run %s: %w", id, err)
	}
	return &run, nil
}

// GetRuns returns a session's run history in creation order.
func (s *PostgresStore) GetRuns(sessionID string) ([]models.Run, error) {
	rows, err := s.db.Query(`SELECT id, session_id, app_id, user_id, phase_index, status, messages, passed, score, request_skip, no_submit, satisfaction, created_at
		FROM runs WHERE session_id = $1 ORDER BY created_at, id`, sessionID)
	if err != nil {
		slog.Error("PostgresStore GetRuns query failed", "error", err, "sessionID", sessionID)
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
func (s *PostgresStore) SetRunSatisfaction(runID string, satisfaction int) error {
	if err := models.ValidateSatisfaction(satisfaction); err != nil {
		return err
	}
	res, err := s.db.Exec(`UPDATE runs SET satisfaction = $1 WHERE id = $2`, satisfaction, runID)
	if err != nil {
		slog.Error("PostgresStore SetRunSatisfaction failed", "error", err, "runID", runID)
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
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
