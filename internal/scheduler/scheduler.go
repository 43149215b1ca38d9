// Package scheduler wraps robfig/cron for recurring background jobs.
package scheduler

import (
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler runs cron-style recurring jobs.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates a scheduler using standard 5-field cron expressions.
func NewScheduler() *Scheduler {
	c := cron.New(
		cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow)),
		cron.WithChain(cron.Recover(cron.DefaultLogger)),
	)
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob registers task to run on the given cron expression.
func (s *Scheduler) AddJob(expr string, task func()) (cron.EntryID, error) {
	id, err := s.cron.AddFunc(expr, task)
	if err != nil {
		slog.Error("Scheduler.AddJob failed", "expr", expr, "error", err)
		return 0, fmt.Errorf("failed to schedule job %q: %w", expr, err)
	}
	slog.Debug("Scheduler.AddJob registered", "expr", expr, "entryID", id)
	return id, nil
}

// Remove unregisters a previously added job.
func (s *Scheduler) Remove(id cron.EntryID) {
	s.cron.Remove(id)
}

// Stop stops the scheduler and waits for running jobs to complete.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	slog.Debug("Scheduler stopped")
}
