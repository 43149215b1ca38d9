// Package store provides storage backends for FormFlow.
//
// It includes an in-memory store for tests and development, plus SQLite and
// PostgreSQL backends for persistent deployments. Stores hold three kinds of
// records: app definitions, session state snapshots, and the append-once run
// history.
package store

import (
	"fmt"
	"sort"
	"sync"

	"github.com/BTreeMap/FormFlow/internal/models"
)

// Store defines the persistence surface shared by all backends.
type Store interface {
	// SaveApp inserts or replaces an app definition.
	SaveApp(app models.App) error

	// GetApp retrieves an app definition, or nil if not found.
	GetApp(id string) (*models.App, error)

	// ListApps returns all stored app definitions.
	ListApps() ([]models.App, error)

	// SaveSessionState inserts or replaces a session snapshot.
	SaveSessionState(st models.SessionState) error

	// GetSessionState retrieves a session snapshot, or nil if not found.
	GetSessionState(sessionID string) (*models.SessionState, error)

	// ListSessionStates returns all stored session snapshots.
	ListSessionStates() ([]models.SessionState, error)

	// DeleteSessionState removes a session snapshot.
	DeleteSessionState(sessionID string) error

	// AddRun appends a run to the history. Runs are never rewritten.
	AddRun(run models.Run) error

	// GetRun retrieves a single run, or nil if not found.
	GetRun(id string) (*models.Run, error)

	// GetRuns returns a session's run history in creation order.
	GetRuns(sessionID string) ([]models.Run, error)

	// SetRunSatisfaction records feedback on a past run; the only permitted
	// mutation of run history.
	SetRunSatisfaction(runID string, satisfaction int) error

	// Close releases backend resources.
	Close() error
}

// Opts holds configuration for store backends.
type Opts struct {
	// DSN is the backend connection string: a file path for SQLite, a
	// connection URL for PostgreSQL.
	DSN string
}

// Option configures store construction.
type Option func(*Opts)

// WithDSN sets the backend DSN.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// InMemoryStore is a map-backed Store used in tests and single-process
// development runs.
type InMemoryStore struct {
	mu       sync.RWMutex
	apps     map[string]models.App
	sessions map[string]models.SessionState
	runs     map[string]models.Run
	runOrder []string
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		apps:     make(map[string]models.App),
		sessions: make(map[string]models.SessionState),
		runs:     make(map[string]models.Run),
	}
}

// SaveApp inserts or replaces an app definition.
func (s *InMemoryStore) SaveApp(app models.App) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apps[app.ID] = app
	return nil
}

// GetApp retrieves an app definition, or nil if not found.
func (s *InMemoryStore) GetApp(id string) (*models.App, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	app, ok := s.apps[id]
	if !ok {
		return nil, nil
	}
	return &app, nil
}

// ListApps returns all stored app definitions sorted by id.
func (s *InMemoryStore) ListApps() ([]models.App, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.App, 0, len(s.apps))
	for _, app := range s.apps {
		out = append(out, app)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SaveSessionState inserts or replaces a session snapshot.
func (s *InMemoryStore) SaveSessionState(st models.SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[st.SessionID] = st
	return nil
}

// GetSessionState retrieves a session snapshot, or nil if not found.
func (s *InMemoryStore) GetSessionState(sessionID string) (*models.SessionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

// ListSessionStates returns all stored session snapshots.
func (s *InMemoryStore) ListSessionStates() ([]models.SessionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.SessionState, 0, len(s.sessions))
	for _, st := range s.sessions {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out, nil
}

// DeleteSessionState removes a session snapshot.
func (s *InMemoryStore) DeleteSessionState(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// AddRun appends a run to the history.
func (s *InMemoryStore) AddRun(run models.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; !exists {
		s.runOrder = append(s.runOrder, run.ID)
	}
	s.runs[run.ID] = run
	return nil
}

// GetRun retrieves a single run, or nil if not found.
func (s *InMemoryStore) GetRun(id string) (*models.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, nil
	}
	return &run, nil
}

// GetRuns returns a session's run history in append order.
func (s *InMemoryStore) GetRuns(sessionID string) ([]models.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Run
	for _, id := range s.runOrder {
		if run := s.runs[id]; run.SessionID == sessionID {
			out = append(out, run)
		}
	}
	return out, nil
}

// SetRunSatisfaction records feedback on a past run.
func (s *InMemoryStore) SetRunSatisfaction(runID string, satisfaction int) error {
	if err := models.ValidateSatisfaction(satisfaction); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("run not found: %s", runID)
	}
	run.Satisfaction = satisfaction
	s.runs[runID] = run
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
