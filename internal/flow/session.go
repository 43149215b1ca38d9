package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/FormFlow/internal/models"
	"github.com/BTreeMap/FormFlow/internal/util"
)

// Error variables for session transitions.
var (
	ErrTransitionInFlight  = errors.New("a phase transition is already in progress")
	ErrSessionFinished     = errors.New("session is already finished")
	ErrSkipNotAllowed      = errors.New("phase does not allow skipping")
	ErrNoSubmitWithPrompts = errors.New("phase has prompts and must be submitted")
	ErrUnknownField        = errors.New("unknown field name")
)

// ScoreRetryMessage is the user-facing message for a scored phase that did
// not reach its minimum score. Not an error: a valid outcome that blocks
// advancement so the user can retry.
const ScoreRetryMessage = "did not pass the minimum score, try again"

// sessionAction is a user-triggered phase transition.
type sessionAction string

const (
	actionSubmit   sessionAction = "submit"
	actionSkip     sessionAction = "skip"
	actionNoSubmit sessionAction = "noSubmit"
)

// TransitionResult describes the outcome of one submit/skip/noSubmit action.
// Exactly one of Errors, ScoreFailed, or Advanced describes why (or whether)
// the machine moved.
// FixedResponse carries the completed phase's fixed-response text, with
// placeholders substituted, when the phase commits.
type TransitionResult struct {
	Errors        []models.FieldError `json:"errors,omitempty"`
	Run           *models.Run         `json:"run,omitempty"`
	Advanced      bool                `json:"advanced"`
	ScoreFailed   bool                `json:"score_failed,omitempty"`
	Finished      bool                `json:"finished,omitempty"`
	PhaseIndex    int                 `json:"phase_index"`
	FixedResponse string              `json:"fixed_response,omitempty"`
}

// Session is the phase state machine for one run-through of an app. It owns
// the answers map, phase index, and completed-phase set exclusively; all
// mutation goes through its methods. Transitions are strictly sequential:
// while a run invocation is outstanding the session is busy and further
// transitions are rejected, though answer edits are still merged in.
type Session struct {
	mu     sync.Mutex
	app    *models.App
	runner Runner
	subs   []Subscriber
	state  models.SessionState
	busy   bool

	// restored is set when the session was rehydrated from a snapshot and
	// must not re-seed defaults. Construction-time only.
	restored bool
}

// SessionOption configures a Session at construction time.
type SessionOption func(*Session)

// WithSessionID sets an explicit session id instead of a generated one.
func WithSessionID(id string) SessionOption {
	return func(s *Session) { s.state.SessionID = id }
}

// WithUserID binds the session to a user.
func WithUserID(userID string) SessionOption {
	return func(s *Session) { s.state.UserID = userID }
}

// WithSubscriber registers a committed-state observer.
func WithSubscriber(sub Subscriber) SessionOption {
	return func(s *Session) { s.subs = append(s.subs, sub) }
}

// WithRestoredState rehydrates the session from a persisted snapshot instead
// of starting fresh. Default values are not re-seeded.
func WithRestoredState(st models.SessionState) SessionOption {
	return func(s *Session) {
		if st.Answers == nil {
			st.Answers = models.Answers{}
		}
		s.state = st
		s.restored = true
	}
}

// NewSession creates a session at phase 0 with an empty answers map, seeded
// from field default values.
func NewSession(app *models.App, runner Runner, opts ...SessionOption) *Session {
	now := time.Now()
	s := &Session{
		app:    app,
		runner: runner,
		state: models.SessionState{
			SessionID: util.GenerateSessionID(),
			AppID:     app.ID,
			Answers:   models.Answers{},
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if !s.restored {
		s.seedDefaults()
	}
	slog.Debug("Session created", "sessionID", s.state.SessionID, "appID", app.ID, "phases", len(app.Phases), "restored", s.restored)
	return s
}

// seedDefaults canonicalizes field default values into the answers map.
func (s *Session) seedDefaults() {
	for pi := range s.app.Phases {
		for fi := range s.app.Phases[pi].Elements {
			field := &s.app.Phases[pi].Elements[fi]
			if field.DefaultValue == "" || field.Type.IsDisplayOnly() {
				continue
			}
			s.state.Answers = SetAnswer(s.state.Answers, field.Name, models.ScalarValue(field.DefaultValue), "", field.Type)
		}
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.SessionID
}

// App returns the immutable app definition the session runs.
func (s *Session) App() *models.App {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.app
}

// Busy reports whether a run invocation is outstanding. Callers must honor
// this before offering another transition trigger.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Snapshot returns a copy of the committed session state.
func (s *Session) Snapshot() models.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() models.SessionState {
	st := s.state
	st.Answers = s.state.Answers.Clone()
	st.Completed = append([]int(nil), s.state.Completed...)
	return st
}

// CurrentPhase returns the phase the session is on, or nil once finished.
func (s *Session) CurrentPhase() *models.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Finished {
		return nil
	}
	return &s.app.Phases[s.state.PhaseIndex]
}

// SetAnswer canonicalizes one field input into the session's answers map.
// Permitted while a transition is in flight; edits merge last-write-wins per
// field name.
func (s *Session) SetAnswer(name string, value models.AnswerValue, other string) error {
	s.mu.Lock()
	if s.state.Finished {
		s.mu.Unlock()
		return ErrSessionFinished
	}
	field := s.app.FieldByName(name)
	if field == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownField, name)
	}
	s.state.Answers = SetAnswer(s.state.Answers, name, value, other, field.Type)
	s.state.UpdatedAt = time.Now()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	slog.Debug("Session.SetAnswer: answer recorded", "sessionID", snap.SessionID, "field", name)
	s.notify(snap)
	return nil
}

// VisibleFields returns the current phase's fields that are visible under the
// current answers, as read-only data for rendering surfaces.
func (s *Session) VisibleFields() []models.Field {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Finished {
		return nil
	}
	phase := &s.app.Phases[s.state.PhaseIndex]
	var out []models.Field
	for _, f := range phase.Elements {
		if IsVisible(s.app, f.Logic, s.state.Answers) {
			out = append(out, f)
		}
	}
	return out
}

// ValidateCurrent runs the validation engine over the current phase without
// triggering a transition.
func (s *Session) ValidateCurrent() []models.FieldError {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Finished {
		return nil
	}
	phase := &s.app.Phases[s.state.PhaseIndex]
	return Validate(s.app, phase.Elements, s.state.Answers)
}

// Submit validates the current phase and, if clean, forwards its templated
// prompts to the run collaborator. Validation errors abort the transition
// before any external call.
func (s *Session) Submit(ctx context.Context) (*TransitionResult, error) {
	return s.transition(ctx, actionSubmit)
}

// Skip bypasses validation and submits a skip signal. Only permitted when
// the phase's skip flag is set.
func (s *Session) Skip(ctx context.Context) (*TransitionResult, error) {
	return s.transition(ctx, actionSkip)
}

// NoSubmit advances a purely informational phase (no prompts) without
// invoking the AI path. A run is still recorded for history.
func (s *Session) NoSubmit(ctx context.Context) (*TransitionResult, error) {
	return s.transition(ctx, actionNoSubmit)
}

func (s *Session) transition(ctx context.Context, action sessionAction) (*TransitionResult, error) {
	s.mu.Lock()
	if s.state.Finished {
		s.mu.Unlock()
		return nil, ErrSessionFinished
	}
	if s.busy {
		s.mu.Unlock()
		return nil, ErrTransitionInFlight
	}

	idx := s.state.PhaseIndex
	phase := &s.app.Phases[idx]
	req := models.RunRequest{
		Answers:    s.state.Answers.Clone(),
		AppID:      s.state.AppID,
		SessionID:  s.state.SessionID,
		UserID:     s.state.UserID,
		PhaseIndex: idx,
	}

	switch action {
	case actionSubmit:
		errs := Validate(s.app, phase.Elements, s.state.Answers)
		if len(errs) > 0 {
			s.mu.Unlock()
			slog.Debug("Session.Submit: validation failed", "sessionID", req.SessionID, "phaseIndex", idx, "errors", len(errs))
			return &TransitionResult{Errors: errs, PhaseIndex: idx}, nil
		}
		req.Prompts = s.expandedPromptsLocked(phase)
		req.Instructions = RenderPrompts(s.app, phase, models.PromptKindAIInstructions, s.state.Answers)
		req.Scored = phase.Scored
		req.Rubric = phase.Rubric
		req.MinScore = phase.MinScore

	case actionSkip:
		if !phase.SkipAllowed {
			s.mu.Unlock()
			return nil, ErrSkipNotAllowed
		}
		req.RequestSkip = true

	case actionNoSubmit:
		if len(phase.PromptsOfKind(models.PromptKindPrompt)) > 0 {
			s.mu.Unlock()
			return nil, ErrNoSubmitWithPrompts
		}
		req.NoSubmit = true
	}

	s.busy = true
	s.mu.Unlock()

	slog.Debug("Session.transition: invoking run", "sessionID", req.SessionID, "action", string(action), "phaseIndex", idx)
	run, err := s.runner.Invoke(ctx, req)

	s.mu.Lock()
	s.busy = false
	if err != nil {
		// Cancellation and collaborator failures leave the session exactly as
		// it was before the call started.
		s.mu.Unlock()
		slog.Warn("Session.transition: run invocation failed", "error", err, "sessionID", req.SessionID, "phaseIndex", idx)
		return nil, fmt.Errorf("run invocation failed: %w", err)
	}
	if run != nil && run.Passed != nil && !*run.Passed {
		s.mu.Unlock()
		slog.Info("Session.transition: scored phase did not pass", "sessionID", req.SessionID, "phaseIndex", idx, "score", run.Score)
		return &TransitionResult{Run: run, ScoreFailed: true, PhaseIndex: idx}, nil
	}

	s.appendCompletedLocked(idx)
	if idx >= len(s.app.Phases)-1 {
		s.state.Finished = true
	} else {
		s.state.PhaseIndex = idx + 1
	}
	s.state.UpdatedAt = time.Now()
	fixed := RenderPrompts(s.app, phase, models.PromptKindFixedResponse, s.state.Answers)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	slog.Info("Session.transition: phase completed", "sessionID", snap.SessionID, "action", string(action), "completedIndex", idx, "phaseIndex", snap.PhaseIndex, "finished", snap.Finished)
	s.notify(snap)
	return &TransitionResult{Run: run, Advanced: true, Finished: snap.Finished, PhaseIndex: snap.PhaseIndex, FixedResponse: fixed}, nil
}

// expandedPromptsLocked templates the phase's visible prompt-kind prompts for
// the run request. Caller holds the lock.
func (s *Session) expandedPromptsLocked(phase *models.Phase) []models.Prompt {
	var out []models.Prompt
	for _, p := range phase.PromptsOfKind(models.PromptKindPrompt) {
		if !IsVisible(s.app, p.Logic, s.state.Answers) {
			continue
		}
		expanded := p
		expanded.Text = Inject(p.Text, s.app, s.state.Answers)
		out = append(out, expanded)
	}
	return out
}

// appendCompletedLocked records idx in the completed set. Replaying an
// already-completed index must not create duplicates.
func (s *Session) appendCompletedLocked(idx int) {
	for _, done := range s.state.Completed {
		if done == idx {
			return
		}
	}
	s.state.Completed = append(s.state.Completed, idx)
}

// Reset clears all answers and progress, returning the session to phase 0.
// Field defaults are re-seeded. Rejected while a transition is in flight;
// cancel the pending call first.
func (s *Session) Reset() error {
	return s.reset(false)
}

// SoftReset rewinds progress to phase 0 for a re-entrant pass over the same
// app while keeping the answers already entered.
func (s *Session) SoftReset() error {
	return s.reset(true)
}

func (s *Session) reset(soft bool) error {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return ErrTransitionInFlight
	}
	if !soft {
		s.state.Answers = models.Answers{}
	}
	s.state.Completed = nil
	s.state.PhaseIndex = 0
	s.state.Finished = false
	s.state.UpdatedAt = time.Now()
	if !soft {
		s.seedDefaults()
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	slog.Info("Session.reset: session state cleared", "sessionID", snap.SessionID, "soft", soft)
	s.notify(snap)
	return nil
}

// ReplaceApp loads a different app into the session. The previous run's
// answers and progress do not survive an app identity change.
func (s *Session) ReplaceApp(app *models.App) error {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return ErrTransitionInFlight
	}
	s.app = app
	s.state.AppID = app.ID
	s.state.Answers = models.Answers{}
	s.state.Completed = nil
	s.state.PhaseIndex = 0
	s.state.Finished = false
	s.state.UpdatedAt = time.Now()
	s.seedDefaults()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	slog.Info("Session.ReplaceApp: app swapped", "sessionID", snap.SessionID, "appID", app.ID)
	s.notify(snap)
	return nil
}

// notify delivers a committed snapshot to all subscribers, outside the lock.
func (s *Session) notify(snap models.SessionState) {
	for _, sub := range s.subs {
		sub.StateCommitted(snap)
	}
}
