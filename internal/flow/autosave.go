package flow

import (
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/FormFlow/internal/models"
)

// DefaultAutosaveDebounce is the default delay between a committed mutation
// and the persistence write it triggers.
const DefaultAutosaveDebounce = 2 * time.Second

// Autosave is a persistence subscriber: it observes committed session state
// and writes it to a StateSaver after a debounce window, coalescing bursts of
// edits into a single write per session. It lives entirely downstream of the
// state machine and never blocks the mutating path.
type Autosave struct {
	saver    StateSaver
	timer    Timer
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]models.SessionState
	timerID string
}

// NewAutosave creates a debounced persistence subscriber.
func NewAutosave(saver StateSaver, timer Timer, debounce time.Duration) *Autosave {
	if debounce <= 0 {
		debounce = DefaultAutosaveDebounce
	}
	return &Autosave{
		saver:    saver,
		timer:    timer,
		debounce: debounce,
		pending:  make(map[string]models.SessionState),
	}
}

// StateCommitted records the latest snapshot for the session and (re)arms the
// flush timer. Later snapshots for the same session replace earlier ones.
func (a *Autosave) StateCommitted(st models.SessionState) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.pending[st.SessionID] = st
	if a.timerID != "" {
		if err := a.timer.Cancel(a.timerID); err != nil {
			slog.Warn("Autosave.StateCommitted: cancel previous timer failed", "error", err, "timerID", a.timerID)
		}
	}
	id, err := a.timer.ScheduleAfter(a.debounce, a.Flush)
	if err != nil {
		// Fall back to a synchronous write rather than losing the snapshot.
		slog.Error("Autosave.StateCommitted: schedule failed, flushing inline", "error", err, "sessionID", st.SessionID)
		a.flushLocked()
		return
	}
	a.timerID = id
}

// Flush writes all pending snapshots immediately.
func (a *Autosave) Flush() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.flushLocked()
}

func (a *Autosave) flushLocked() {
	for id, st := range a.pending {
		if err := a.saver.SaveSessionState(st); err != nil {
			slog.Error("Autosave.Flush: save failed", "error", err, "sessionID", id)
			continue
		}
		slog.Debug("Autosave.Flush: saved session state", "sessionID", id, "phaseIndex", st.PhaseIndex)
		delete(a.pending, id)
	}
	a.timerID = ""
}

// Cancel stops the pending flush and drops unsaved snapshots. Used when a
// session is discarded before its debounce window elapses.
func (a *Autosave) Cancel() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.timerID != "" {
		if err := a.timer.Cancel(a.timerID); err != nil {
			slog.Warn("Autosave.Cancel: cancel timer failed", "error", err, "timerID", a.timerID)
		}
		a.timerID = ""
	}
	a.pending = make(map[string]models.SessionState)
	slog.Debug("Autosave.Cancel: pending snapshots dropped")
}
