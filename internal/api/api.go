// Package api provides HTTP handlers and the main API server logic for FormFlow.
//
// It exposes RESTful endpoints for managing app definitions, driving guided
// form sessions through their phases, and inspecting run history. The API
// integrates the flow, genai, store, and scheduler modules.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/FormFlow/internal/appdef"
	"github.com/BTreeMap/FormFlow/internal/flow"
	"github.com/BTreeMap/FormFlow/internal/genai"
	"github.com/BTreeMap/FormFlow/internal/scheduler"
	"github.com/BTreeMap/FormFlow/internal/store"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = ":8080"

// DefaultSessionTTL is how long an idle in-memory session survives before the
// sweep job evicts it. Evicted sessions are flushed to the store first and can
// be rehydrated on the next request.
const DefaultSessionTTL = 24 * time.Hour

// DefaultRunTimeout bounds one run invocation triggered by a phase transition.
const DefaultRunTimeout = 2 * time.Minute

// sweepCronExpr runs the idle-session sweep every 10 minutes.
const sweepCronExpr = "*/10 * * * *"

// Opts holds configuration options for the API server.
type Opts struct {
	Addr             string
	AppDir           string
	AutosaveDebounce time.Duration
	SessionTTL       time.Duration
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithAppDir sets a directory of app definition files loaded at startup.
func WithAppDir(dir string) Option {
	return func(o *Opts) { o.AppDir = dir }
}

// WithAutosaveDebounce sets the delay between a session mutation and its
// persistence write.
func WithAutosaveDebounce(d time.Duration) Option {
	return func(o *Opts) { o.AutosaveDebounce = d }
}

// WithSessionTTL sets how long idle sessions stay resident in memory.
func WithSessionTTL(ttl time.Duration) Option {
	return func(o *Opts) { o.SessionTTL = ttl }
}

// Server holds dependencies for the API server.
type Server struct {
	st       store.Store
	runner   flow.Runner
	timer    flow.Timer
	autosave *flow.Autosave
	sched    *scheduler.Scheduler
	opts     Opts

	mu       sync.RWMutex
	sessions map[string]*flow.Session
	lastSeen map[string]time.Time

	httpServer *http.Server
}

// NewServer creates an API server around the given store and runner.
func NewServer(st store.Store, runner flow.Runner, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}

	timer := flow.NewSimpleTimer()
	return &Server{
		st:       st,
		runner:   runner,
		timer:    timer,
		autosave: flow.NewAutosave(st, timer, cfg.AutosaveDebounce),
		opts:     cfg,
		sessions: make(map[string]*flow.Session),
		lastSeen: make(map[string]time.Time),
	}
}

// Run assembles the full service from options and blocks serving HTTP.
// The storage backend is selected by DSN: empty uses the in-memory store,
// a postgres:// DSN uses PostgreSQL, anything else is treated as a SQLite
// file path.
func Run(storeOpts []store.Option, genaiOpts []genai.Option, apiOpts []Option) error {
	var storeCfg store.Opts
	for _, opt := range storeOpts {
		opt(&storeCfg)
	}

	var st store.Store
	var err error
	switch {
	case storeCfg.DSN == "":
		slog.Info("api.Run: using in-memory store")
		st = store.NewInMemoryStore()
	case strings.HasPrefix(storeCfg.DSN, "postgres://") || strings.HasPrefix(storeCfg.DSN, "postgresql://"):
		slog.Info("api.Run: using PostgreSQL store")
		st, err = store.NewPostgresStore(storeOpts...)
	default:
		slog.Info("api.Run: using SQLite store", "path", storeCfg.DSN)
		st, err = store.NewSQLiteStore(storeOpts...)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}

	gaClient, err := genai.NewClient(genaiOpts...)
	if err != nil {
		st.Close()
		return fmt.Errorf("failed to initialize GenAI client: %w", err)
	}

	srv := NewServer(st, flow.NewGenAIRunner(gaClient, st), apiOpts...)
	defer srv.Close()
	return srv.Start()
}

// Start loads app definitions, starts the sweep scheduler, and serves HTTP.
// It blocks until the server stops.
func (s *Server) Start() error {
	if s.opts.AppDir != "" {
		if err := s.loadAppDir(); err != nil {
			return err
		}
	}

	s.sched = scheduler.NewScheduler()
	if _, err := s.sched.AddJob(sweepCronExpr, s.sweepIdleSessions); err != nil {
		return fmt.Errorf("failed to schedule session sweep: %w", err)
	}

	s.httpServer = &http.Server{Addr: s.opts.Addr, Handler: s.handler()}
	slog.Info("FormFlow API running", "addr", s.opts.Addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// handler builds the route table.
func (s *Server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/apps", s.appsHandler)
	mux.HandleFunc("/apps/", s.appHandler)
	mux.HandleFunc("/sessions", s.sessionsHandler)
	mux.HandleFunc("/sessions/", s.sessionHandler)
	mux.HandleFunc("/runs/", s.runHandler)
	mux.HandleFunc("/health", s.healthHandler)
	return mux
}

// Shutdown gracefully stops the HTTP server and flushes pending state.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	s.Close()
	return err
}

// Close flushes pending autosaves and stops background machinery. Safe to call
// after Shutdown.
func (s *Server) Close() {
	if s.sched != nil {
		s.sched.Stop()
		s.sched = nil
	}
	s.autosave.Flush()
}

// loadAppDir seeds the store with definitions from the configured directory.
func (s *Server) loadAppDir() error {
	apps, err := appdef.LoadDir(s.opts.AppDir)
	if err != nil {
		return fmt.Errorf("failed to load app directory: %w", err)
	}
	for _, app := range apps {
		if err := s.st.SaveApp(*app); err != nil {
			return fmt.Errorf("failed to seed app %s: %w", app.ID, err)
		}
	}
	slog.Info("Server.loadAppDir: app definitions seeded", "dir", s.opts.AppDir, "count", len(apps))
	return nil
}

// getSession returns the resident session for id, rehydrating it from the
// store if needed. Returns nil when the session is unknown.
func (s *Server) getSession(id string) (*flow.Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		s.touchSession(id)
		return sess, nil
	}

	st, err := s.st.GetSessionState(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load session state: %w", err)
	}
	if st == nil {
		return nil, nil
	}
	app, err := s.st.GetApp(st.AppID)
	if err != nil {
		return nil, fmt.Errorf("failed to load app for session: %w", err)
	}
	if app == nil {
		return nil, fmt.Errorf("app %s referenced by session %s no longer exists", st.AppID, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Another request may have rehydrated it while we were reading the store.
	if sess, ok := s.sessions[id]; ok {
		s.lastSeen[id] = time.Now()
		return sess, nil
	}
	sess = flow.NewSession(app, s.runner,
		flow.WithRestoredState(*st),
		flow.WithSubscriber(s.autosave),
	)
	s.sessions[id] = sess
	s.lastSeen[id] = time.Now()
	slog.Info("Server.getSession: session rehydrated", "sessionID", id, "appID", app.ID, "phaseIndex", st.PhaseIndex)
	return sess, nil
}

// registerSession makes a freshly created session resident.
func (s *Server) registerSession(sess *flow.Session) {
	id := sess.ID()
	s.mu.Lock()
	s.sessions[id] = sess
	s.lastSeen[id] = time.Now()
	s.mu.Unlock()
}

// touchSession refreshes the idle clock for a resident session.
func (s *Server) touchSession(id string) {
	s.mu.Lock()
	s.lastSeen[id] = time.Now()
	s.mu.Unlock()
}

// dropSession evicts a session from memory without touching stored state.
func (s *Server) dropSession(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	delete(s.lastSeen, id)
	s.mu.Unlock()
}

// sweepIdleSessions evicts sessions idle for longer than the TTL. Their state
// is flushed first so a later request can rehydrate them from the store.
func (s *Server) sweepIdleSessions() {
	cutoff := time.Now().Add(-s.opts.SessionTTL)

	s.mu.Lock()
	var evict []string
	for id, seen := range s.lastSeen {
		if seen.Before(cutoff) {
			if sess, ok := s.sessions[id]; ok && sess.Busy() {
				continue
			}
			evict = append(evict, id)
		}
	}
	for _, id := range evict {
		delete(s.sessions, id)
		delete(s.lastSeen, id)
	}
	s.mu.Unlock()

	if len(evict) > 0 {
		s.autosave.Flush()
		slog.Info("Server.sweepIdleSessions: idle sessions evicted", "count", len(evict))
	}
}
