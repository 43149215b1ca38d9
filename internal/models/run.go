// Package models defines run history and session state structures for FormFlow.
package models

import (
	"errors"
	"time"
)

// RunStatus represents the outcome of a single AI run invocation.
type RunStatus string

const (
	// RunStatusCompleted indicates the run finished normally.
	RunStatusCompleted RunStatus = "completed"
	// RunStatusSkipped indicates the phase was skipped, no AI path invoked.
	RunStatusSkipped RunStatus = "skipped"
	// RunStatusNoSubmit indicates an informational phase advanced without prompts.
	RunStatusNoSubmit RunStatus = "no_submit"
	// RunStatusFailed indicates the AI invocation itself failed.
	RunStatusFailed RunStatus = "failed"
)

// RunMessage is one message recorded during an AI run.
type RunMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Run is one AI-invocation record for a given phase. Runs are append-once:
// after creation only the satisfaction field may change.
type Run struct {
	ID           string       `json:"id"`
	SessionID    string       `json:"session_id"`
	AppID        string       `json:"app_id"`
	UserID       string       `json:"user_id,omitempty"`
	PhaseIndex   int          `json:"phase_index"`
	Status       RunStatus    `json:"status"`
	Messages     []RunMessage `json:"messages,omitempty"`
	Passed       *bool        `json:"run_passed,omitempty"`
	Score        string       `json:"run_score,omitempty"`
	RequestSkip  bool         `json:"request_skip,omitempty"`
	NoSubmit     bool         `json:"no_submit,omitempty"`
	Satisfaction int          `json:"satisfaction,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// RunRequest is the input handed to the AI-run collaborator for one phase
// transition. Prompts are already template-expanded. Rubric and MinScore are
// forwarded opaquely; the engine only interprets the pass/fail result.
type RunRequest struct {
	Prompts      []Prompt `json:"prompts,omitempty"`
	Instructions string   `json:"instructions,omitempty"`
	Answers      Answers  `json:"answers"`
	AppID        string   `json:"app_id"`
	SessionID    string   `json:"session_id"`
	UserID       string   `json:"user_id,omitempty"`
	PhaseIndex   int      `json:"phase_index"`
	RequestSkip  bool     `json:"request_skip,omitempty"`
	NoSubmit     bool     `json:"no_submit,omitempty"`
	Scored       bool     `json:"scored,omitempty"`
	Rubric       string   `json:"rubric,omitempty"`
	MinScore     float64  `json:"min_score,omitempty"`
}

// Satisfaction bounds for run feedback.
const (
	MinSatisfaction = 1
	MaxSatisfaction = 5
)

// ErrInvalidSatisfaction indicates a satisfaction rating outside the allowed range.
var ErrInvalidSatisfaction = errors.New("satisfaction must be between 1 and 5")

// ValidateSatisfaction checks a satisfaction rating against the allowed range.
func ValidateSatisfaction(rating int) error {
	if rating < MinSatisfaction || rating > MaxSatisfaction {
		return ErrInvalidSatisfaction
	}
	return nil
}

// SessionState is the persisted snapshot of one run-through of an app:
// answers, progress, and terminal status. It is the only shared mutable
// state; the phase state machine owns all writes.
type SessionState struct {
	SessionID  string    `json:"session_id"`
	AppID      string    `json:"app_id"`
	UserID     string    `json:"user_id,omitempty"`
	PhaseIndex int       `json:"phase_index"`
	Completed  []int     `json:"completed_phases"`
	Finished   bool      `json:"finished"`
	Answers    Answers   `json:"answers"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CompletedCount returns the number of distinct completed phases. The
// underlying collection is list-shaped, so readers must de-duplicate before
// treating its length as a completion count.
func (s *SessionState) CompletedCount() int {
	seen := make(map[int]bool, len(s.Completed))
	for _, idx := range s.Completed {
		seen[idx] = true
	}
	return len(seen)
}
