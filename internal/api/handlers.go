// Package api provides HTTP handlers for FormFlow endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BTreeMap/FormFlow/internal/appdef"
	"github.com/BTreeMap/FormFlow/internal/flow"
	"github.com/BTreeMap/FormFlow/internal/models"
)

// MaxAppDefinitionBytes caps uploaded app definition payloads.
const MaxAppDefinitionBytes = 1 << 20

// appsHandler handles the app collection (GET/POST /apps).
func (s *Server) appsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.appsHandler: processing request", "method", r.Method, "path", r.URL.Path)

	switch r.Method {
	case http.MethodGet:
		apps, err := s.st.ListApps()
		if err != nil {
			slog.Error("Server.appsHandler: failed to list apps", "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch apps"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(apps))

	case http.MethodPost:
		data, err := io.ReadAll(io.LimitReader(r.Body, MaxAppDefinitionBytes))
		if err != nil {
			slog.Warn("Server.appsHandler: failed to read body", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Failed to read request body"))
			return
		}
		app, err := appdef.Parse(data)
		if err != nil {
			slog.Warn("Server.appsHandler: invalid app definition", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
		if err := s.st.SaveApp(*app); err != nil {
			slog.Error("Server.appsHandler: failed to save app", "error", err, "appID", app.ID)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save app"))
			return
		}
		slog.Info("Server.appsHandler: app saved", "appID", app.ID, "name", app.Name)
		writeJSONResponse(w, http.StatusCreated, models.SuccessWithMessage("App saved successfully", app))

	default:
		w.Header().Set("Allow", "GET, POST")
		slog.Warn("Server.appsHandler: method not allowed", "method", r.Method)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
	}
}

// appHandler handles a single app (GET /apps/{id}).
func (s *Server) appHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.appHandler: processing request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/apps/")
	if id == "" || strings.Contains(id, "/") {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown app endpoint"))
		return
	}
	app, err := s.st.GetApp(id)
	if err != nil {
		slog.Error("Server.appHandler: failed to fetch app", "error", err, "appID", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch app"))
		return
	}
	if app == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("App not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(app))
}

// sessionsHandler handles the session collection (GET/POST /sessions).
func (s *Server) sessionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.sessionsHandler: processing request", "method", r.Method, "path", r.URL.Path)

	switch r.Method {
	case http.MethodGet:
		states, err := s.st.ListSessionStates()
		if err != nil {
			slog.Error("Server.sessionsHandler: failed to list sessions", "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch sessions"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(states))

	case http.MethodPost:
		var req models.CreateSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			slog.Warn("Server.sessionsHandler: failed to decode JSON", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
		if err := req.Validate(); err != nil {
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
		app, err := s.st.GetApp(req.AppID)
		if err != nil {
			slog.Error("Server.sessionsHandler: failed to fetch app", "error", err, "appID", req.AppID)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch app"))
			return
		}
		if app == nil {
			writeJSONResponse(w, http.StatusNotFound, models.Error("App not found"))
			return
		}

		sess := flow.NewSession(app, s.runner,
			flow.WithUserID(req.UserID),
			flow.WithSubscriber(s.autosave),
		)
		snap := sess.Snapshot()
		// Persist the initial snapshot synchronously so the session survives a
		// crash inside the debounce window.
		if err := s.st.SaveSessionState(snap); err != nil {
			slog.Error("Server.sessionsHandler: failed to persist new session", "error", err, "sessionID", snap.SessionID)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to persist session"))
			return
		}
		s.registerSession(sess)

		slog.Info("Server.sessionsHandler: session created", "sessionID", snap.SessionID, "appID", app.ID, "userID", req.UserID)
		writeJSONResponse(w, http.StatusCreated, models.SuccessWithMessage("Session created successfully", snap))

	default:
		w.Header().Set("Allow", "GET, POST")
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
	}
}

// sessionHandler dispatches /sessions/{id} and its sub-resources.
func (s *Server) sessionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.sessionHandler: processing request", "method", r.Method, "path", r.URL.Path)

	path := strings.TrimPrefix(r.URL.Path, "/sessions/")
	segments := strings.Split(strings.TrimSuffix(path, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown session endpoint"))
		return
	}
	sessionID := segments[0]

	sess, err := s.getSession(sessionID)
	if err != nil {
		slog.Error("Server.sessionHandler: failed to load session", "error", err, "sessionID", sessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load session"))
		return
	}
	if sess == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
		return
	}

	if len(segments) == 1 {
		switch r.Method {
		case http.MethodGet:
			s.getSessionHandler(w, sess)
		case http.MethodDelete:
			s.deleteSessionHandler(w, sessionID)
		default:
			w.Header().Set("Allow", "GET, DELETE")
			writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		}
		return
	}

	if len(segments) == 2 {
		switch segments[1] {
		case "answers":
			s.answerHandler(w, r, sess)
		case "submit":
			s.transitionHandler(w, r, sess, sess.Submit)
		case "skip":
			s.transitionHandler(w, r, sess, sess.Skip)
		case "advance":
			s.transitionHandler(w, r, sess, sess.NoSubmit)
		case "reset":
			s.resetHandler(w, r, sess)
		case "validate":
			s.validateHandler(w, r, sess)
		case "runs":
			s.sessionRunsHandler(w, r, sessionID)
		default:
			writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown session endpoint"))
		}
		return
	}

	writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown session endpoint"))
}

// sessionView is the composite state returned by GET /sessions/{id}.
type sessionView struct {
	State         models.SessionState `json:"state"`
	Phase         *models.Phase       `json:"phase,omitempty"`
	VisibleFields []models.Field      `json:"visible_fields,omitempty"`
	Busy          bool                `json:"busy"`
}

func (s *Server) getSessionHandler(w http.ResponseWriter, sess *flow.Session) {
	view := sessionView{
		State:         sess.Snapshot(),
		Phase:         sess.CurrentPhase(),
		VisibleFields: sess.VisibleFields(),
		Busy:          sess.Busy(),
	}
	writeJSONResponse(w, http.StatusOK, models.Success(view))
}

func (s *Server) deleteSessionHandler(w http.ResponseWriter, sessionID string) {
	s.dropSession(sessionID)
	if err := s.st.DeleteSessionState(sessionID); err != nil {
		slog.Error("Server.deleteSessionHandler: failed to delete session state", "error", err, "sessionID", sessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to delete session"))
		return
	}
	slog.Info("Server.deleteSessionHandler: session deleted", "sessionID", sessionID)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Session deleted successfully", nil))
}

// answerHandler records one field answer (POST /sessions/{id}/answers).
func (s *Server) answerHandler(w http.ResponseWriter, r *http.Request, sess *flow.Session) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	var req models.AnswerUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.answerHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	if err := sess.SetAnswer(req.Name, req.Value, req.Other); err != nil {
		switch {
		case errors.Is(err, flow.ErrSessionFinished):
			writeJSONResponse(w, http.StatusConflict, models.Error(err.Error()))
		case errors.Is(err, flow.ErrUnknownField):
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		default:
			slog.Error("Server.answerHandler: failed to record answer", "error", err, "field", req.Name)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to record answer"))
		}
		return
	}
	writeJSONResponse(w, http.StatusOK, models.RecordedWithMessage("Answer recorded successfully"))
}

// transitionHandler drives a submit/skip/advance action and translates the
// outcome into an HTTP response.
func (s *Server) transitionHandler(w http.ResponseWriter, r *http.Request, sess *flow.Session, action func(context.Context) (*flow.TransitionResult, error)) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), DefaultRunTimeout)
	defer cancel()

	result, err := action(ctx)
	if err != nil {
		switch {
		case errors.Is(err, flow.ErrTransitionInFlight), errors.Is(err, flow.ErrSessionFinished):
			writeJSONResponse(w, http.StatusConflict, models.Error(err.Error()))
		case errors.Is(err, flow.ErrSkipNotAllowed), errors.Is(err, flow.ErrNoSubmitWithPrompts):
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		default:
			slog.Error("Server.transitionHandler: run invocation failed", "error", err, "sessionID", sess.ID())
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to complete phase transition"))
		}
		return
	}

	switch {
	case len(result.Errors) > 0:
		writeJSONResponse(w, http.StatusBadRequest, models.NewAPIResponseBuilder().
			WithStatus(models.APIStatusError).
			WithMessage("Validation failed").
			WithResult(result).
			Build())
	case result.ScoreFailed:
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage(flow.ScoreRetryMessage, result))
	default:
		writeJSONResponse(w, http.StatusOK, models.Success(result))
	}
}

// resetHandler clears session progress (POST /sessions/{id}/reset).
func (s *Server) resetHandler(w http.ResponseWriter, r *http.Request, sess *flow.Session) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	var req models.ResetRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			slog.Warn("Server.resetHandler: failed to decode JSON", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
	}

	var err error
	if req.Soft {
		err = sess.SoftReset()
	} else {
		err = sess.Reset()
	}
	if err != nil {
		if errors.Is(err, flow.ErrTransitionInFlight) {
			writeJSONResponse(w, http.StatusConflict, models.Error(err.Error()))
			return
		}
		slog.Error("Server.resetHandler: failed to reset session", "error", err, "sessionID", sess.ID())
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to reset session"))
		return
	}
	slog.Info("Server.resetHandler: session reset", "sessionID", sess.ID(), "soft", req.Soft)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Session reset successfully", sess.Snapshot()))
}

// validateHandler reports current-phase validation without a transition
// (GET /sessions/{id}/validate).
func (s *Server) validateHandler(w http.ResponseWriter, r *http.Request, sess *flow.Session) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	errs := sess.ValidateCurrent()
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"valid":  len(errs) == 0,
		"errors": errs,
	}))
}

// sessionRunsHandler returns a session's run history (GET /sessions/{id}/runs).
func (s *Server) sessionRunsHandler(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	runs, err := s.st.GetRuns(sessionID)
	if err != nil {
		slog.Error("Server.sessionRunsHandler: failed to fetch runs", "error", err, "sessionID", sessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch runs"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(runs))
}

// runHandler dispatches /runs/{id} and /runs/{id}/satisfaction.
func (s *Server) runHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.runHandler: processing request", "method", r.Method, "path", r.URL.Path)

	path := strings.TrimPrefix(r.URL.Path, "/runs/")
	segments := strings.Split(strings.TrimSuffix(path, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown run endpoint"))
		return
	}
	runID := segments[0]

	if len(segments) == 1 {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
			return
		}
		run, err := s.st.GetRun(runID)
		if err != nil {
			slog.Error("Server.runHandler: failed to fetch run", "error", err, "runID", runID)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch run"))
			return
		}
		if run == nil {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Run not found"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(run))
		return
	}

	if len(segments) == 2 && segments[1] == "satisfaction" {
		s.satisfactionHandler(w, r, runID)
		return
	}

	writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown run endpoint"))
}

// satisfactionHandler records feedback on a run (POST /runs/{id}/satisfaction).
func (s *Server) satisfactionHandler(w http.ResponseWriter, r *http.Request, runID string) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	var req models.SatisfactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.satisfactionHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	if err := s.st.SetRunSatisfaction(runID, req.Satisfaction); err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Run not found"))
			return
		}
		slog.Error("Server.satisfactionHandler: failed to record satisfaction", "error", err, "runID", runID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to record satisfaction"))
		return
	}
	slog.Info("Server.satisfactionHandler: satisfaction recorded", "runID", runID, "satisfaction", req.Satisfaction)
	writeJSONResponse(w, http.StatusCreated, models.RecordedWithMessage("Satisfaction recorded successfully"))
}

// healthHandler provides a health check endpoint for monitoring.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	s.mu.RLock()
	resident := len(s.sessions)
	s.mu.RUnlock()

	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"status":            "healthy",
		"timestamp":         time.Now().UTC().Format(time.RFC3339),
		"resident_sessions": resident,
	})
}
