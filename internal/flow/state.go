// Package flow defines the collaborator interfaces the phase state machine
// depends on.
package flow

import (
	"context"
	"time"

	"github.com/BTreeMap/FormFlow/internal/models"
)

// Runner is the AI-run collaborator: an opaque asynchronous call with exactly
// one success/failure outcome per invocation. The engine only interprets the
// run's pass/fail result; rubric content and scoring are the collaborator's
// business.
type Runner interface {
	Invoke(ctx context.Context, req models.RunRequest) (*models.Run, error)
}

// StateSaver persists committed session snapshots. The store satisfies this.
type StateSaver interface {
	SaveSessionState(st models.SessionState) error
}

// Subscriber observes committed session state. Subscribers run downstream of
// the mutation path: they receive a snapshot after the state machine has
// finished a mutation and must not write session state back through the
// session.
type Subscriber interface {
	StateCommitted(st models.SessionState)
}

// Timer defines the interface for scheduling delayed actions.
type Timer interface {
	// ScheduleAfter schedules a function to run after a delay and returns a
	// cancellation id.
	ScheduleAfter(delay time.Duration, fn func()) (string, error)

	// Cancel cancels a scheduled function by id.
	Cancel(id string) error
}
