package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/FormFlow/internal/models"
	"github.com/BTreeMap/FormFlow/internal/util"
)

// Evaluator is the GenAI surface the runner needs: free-form completion for
// prompt phases and rubric scoring for scored phases.
type Evaluator interface {
	GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	ScoreRubric(ctx context.Context, rubric, transcript string) (float64, string, error)
}

// RunRecorder appends runs to the persisted history. Runs are write-once;
// only the satisfaction field ever changes afterwards.
type RunRecorder interface {
	AddRun(run models.Run) error
}

// GenAIRunner is the production Runner: it forwards templated prompts to the
// GenAI evaluator, scores scored phases against their rubric, and records
// every run (including skips and no-submit advances) for history.
type GenAIRunner struct {
	evaluator Evaluator
	recorder  RunRecorder
}

// NewGenAIRunner creates a runner backed by the given evaluator and recorder.
func NewGenAIRunner(evaluator Evaluator, recorder RunRecorder) *GenAIRunner {
	slog.Debug("Creating GenAIRunner")
	return &GenAIRunner{evaluator: evaluator, recorder: recorder}
}

// Invoke executes one run for a phase transition. The returned run carries
// run_passed only for scored phases; the caller interprets nothing else.
func (r *GenAIRunner) Invoke(ctx context.Context, req models.RunRequest) (*models.Run, error) {
	run := models.Run{
		ID:          util.GenerateRunID(),
		SessionID:   req.SessionID,
		AppID:       req.AppID,
		UserID:      req.UserID,
		PhaseIndex:  req.PhaseIndex,
		RequestSkip: req.RequestSkip,
		NoSubmit:    req.NoSubmit,
		CreatedAt:   time.Now(),
	}

	switch {
	case req.RequestSkip:
		run.Status = models.RunStatusSkipped

	case req.NoSubmit:
		run.Status = models.RunStatusNoSubmit

	default:
		if err := r.runPrompts(ctx, req, &run); err != nil {
			run.Status = models.RunStatusFailed
			r.record(run)
			return nil, err
		}
		run.Status = models.RunStatusCompleted
	}

	r.record(run)
	slog.Info("GenAIRunner.Invoke: run recorded", "runID", run.ID, "sessionID", run.SessionID, "phaseIndex", run.PhaseIndex, "status", run.Status)
	return &run, nil
}

// runPrompts drives the AI path: completion over the phase prompts, then
// rubric scoring when the phase is scored.
func (r *GenAIRunner) runPrompts(ctx context.Context, req models.RunRequest, run *models.Run) error {
	userText := CombinePrompts(req.Prompts)

	if req.Instructions != "" {
		run.Messages = append(run.Messages, models.RunMessage{Role: "system", Content: req.Instructions})
	}
	if userText != "" {
		run.Messages = append(run.Messages, models.RunMessage{Role: "user", Content: userText})

		assistant, err := r.evaluator.GeneratePrompt(ctx, req.Instructions, userText)
		if err != nil {
			slog.Error("GenAIRunner.runPrompts: completion failed", "error", err, "sessionID", req.SessionID, "phaseIndex", req.PhaseIndex)
			return fmt.Errorf("completion failed: %w", err)
		}
		run.Messages = append(run.Messages, models.RunMessage{Role: "assistant", Content: assistant})
	}

	if req.Scored {
		transcript := buildTranscript(run.Messages, req.Answers)
		score, reasoning, err := r.evaluator.ScoreRubric(ctx, req.Rubric, transcript)
		if err != nil {
			slog.Error("GenAIRunner.runPrompts: scoring failed", "error", err, "sessionID", req.SessionID, "phaseIndex", req.PhaseIndex)
			return fmt.Errorf("scoring failed: %w", err)
		}
		passed := score >= req.MinScore
		run.Passed = &passed
		run.Score = strconv.FormatFloat(score, 'f', -1, 64)
		if reasoning != "" {
			run.Messages = append(run.Messages, models.RunMessage{Role: "scorer", Content: reasoning})
		}
		slog.Debug("GenAIRunner.runPrompts: phase scored", "sessionID", req.SessionID, "phaseIndex", req.PhaseIndex, "score", run.Score, "passed", passed)
	}

	return nil
}

// buildTranscript renders the run messages plus the answer set into the text
// handed to the scorer.
func buildTranscript(messages []models.RunMessage, answers models.Answers) string {
	var sb strings.Builder
	for _, m := range messages {
		sb.WriteString(m.Role)
		sb.WriteString(": ")
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	if len(answers) > 0 {
		sb.WriteString("\nAnswers:\n")
		for name, ans := range answers {
			sb.WriteString(name)
			sb.WriteString(": ")
			sb.WriteString(ans.Value.String())
			if ans.Other != "" {
				sb.WriteString(" (other: ")
				sb.WriteString(ans.Other)
				sb.WriteString(")")
			}
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// record appends the run to history. History failures are logged rather than
// failing the transition; the run outcome already happened.
func (r *GenAIRunner) record(run models.Run) {
	if r.recorder == nil {
		return
	}
	if err := r.recorder.AddRun(run); err != nil {
		slog.Error("GenAIRunner.record: failed to append run history", "error", err, "runID", run.ID)
	}
}
