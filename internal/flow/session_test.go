package flow

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/BTreeMap/FormFlow/internal/models"
)

// mockRunner implements Runner for testing.
type mockRunner struct {
	mu       sync.Mutex
	requests []models.RunRequest
	run      *models.Run
	err      error

	// block, when non-nil, is closed by the test to release a pending Invoke.
	block   chan struct{}
	started chan struct{}
}

func (m *mockRunner) Invoke(ctx context.Context, req models.RunRequest) (*models.Run, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	block := m.block
	started := m.started
	m.mu.Unlock()

	if started != nil {
		close(started)
	}
	if block != nil {
		<-block
	}
	if m.err != nil {
		return nil, m.err
	}
	if m.run != nil {
		run := *m.run
		return &run, nil
	}
	return &models.Run{ID: "run-test", Status: models.RunStatusCompleted}, nil
}

func (m *mockRunner) lastRequest() models.RunRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[len(m.requests)-1]
}

// recordingSubscriber captures committed snapshots.
type recordingSubscriber struct {
	mu    sync.Mutex
	snaps []models.SessionState
}

func (r *recordingSubscriber) StateCommitted(st models.SessionState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, st)
}

func (r *recordingSubscriber) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func sessionApp() *models.App {
	return &models.App{
		ID: "app-1", Name: "Session",
		Phases: []models.Phase{
			{
				ID: "p1", Title: "First",
				Elements: []models.Field{
					{ID: "f1", Name: "name", Type: models.FieldTypeText, Required: true},
					{ID: "f2", Name: "mood", Type: models.FieldTypeRadio, DefaultValue: "good", Choices: []models.Choice{
						{Value: "good", Label: "Good"}, {Value: "bad", Label: "Bad"},
					}},
				},
				Prompts: []models.Prompt{
					{ID: "pr1", Kind: models.PromptKindPrompt, Text: "User {name} feels {mood}."},
					{ID: "pr2", Kind: models.PromptKindAIInstructions, Text: "Be kind."},
				},
			},
			{
				ID: "p2", Title: "Second", SkipAllowed: true,
				Elements: []models.Field{
					{ID: "f3", Name: "story", Type: models.FieldTypeTextarea},
				},
				Prompts: []models.Prompt{
					{ID: "pr3", Kind: models.PromptKindPrompt, Text: "Review {story}."},
				},
			},
			{
				ID: "p3", Title: "Outro",
				Elements: []models.Field{
					{ID: "f4", Name: "farewell", Type: models.FieldTypeRichText, Content: "bye"},
				},
			},
		},
	}
}

func TestNewSession_SeedsDefaults(t *testing.T) {
	sess := NewSession(sessionApp(), &mockRunner{})
	snap := sess.Snapshot()
	if snap.Answers["mood"].Value.Scalar() != "good" {
		t.Errorf("expected default seeded, got %+v", snap.Answers["mood"])
	}
	if snap.PhaseIndex != 0 || snap.Finished {
		t.Errorf("expected fresh session at phase 0, got %+v", snap)
	}
}

func TestNewSession_RestoredStateNotReseeded(t *testing.T) {
	st := models.SessionState{
		SessionID:  "s_restored",
		AppID:      "app-1",
		PhaseIndex: 1,
		Completed:  []int{0},
		Answers:    models.Answers{"name": {Value: models.ScalarValue("Ada")}},
	}
	sess := NewSession(sessionApp(), &mockRunner{}, WithRestoredState(st))
	snap := sess.Snapshot()
	if snap.SessionID != "s_restored" || snap.PhaseIndex != 1 {
		t.Errorf("expected restored identity, got %+v", snap)
	}
	if _, ok := snap.Answers["mood"]; ok {
		t.Error("defaults must not be re-seeded into a restored session")
	}
}

func TestSetAnswer_UnknownField(t *testing.T) {
	sess := NewSession(sessionApp(), &mockRunner{})
	err := sess.SetAnswer("ghost", models.ScalarValue("x"), "")
	if !errors.Is(err, ErrUnknownField) {
		t.Errorf("expected ErrUnknownField, got %v", err)
	}
}

func TestSubmit_ValidationErrorsBlockTransition(t *testing.T) {
	runner := &mockRunner{}
	sess := NewSession(sessionApp(), runner)

	result, err := sess.Submit(context.Background())
	if err != nil {
		t.Fatalf("validation failure is not a Go error, got %v", err)
	}
	if len(result.Errors) == 0 || result.Advanced {
		t.Errorf("expected validation errors and no advance, got %+v", result)
	}
	runner.mu.Lock()
	calls := len(runner.requests)
	runner.mu.Unlock()
	if calls != 0 {
		t.Error("runner must not be invoked when validation fails")
	}
}

func TestSubmit_AdvancesAndTemplatesPrompts(t *testing.T) {
	runner := &mockRunner{}
	sess := NewSession(sessionApp(), runner)
	if err := sess.SetAnswer("name", models.ScalarValue("Ada"), ""); err != nil {
		t.Fatal(err)
	}

	result, err := sess.Submit(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Advanced || result.PhaseIndex != 1 || result.Finished {
		t.Errorf("expected advance to phase 1, got %+v", result)
	}

	req := runner.lastRequest()
	if len(req.Prompts) != 1 || req.Prompts[0].Text != "User Ada feels Good." {
		t.Errorf("expected templated prompt, got %+v", req.Prompts)
	}
	if req.Instructions != "Be kind." {
		t.Errorf("expected instructions forwarded, got %q", req.Instructions)
	}

	snap := sess.Snapshot()
	if snap.PhaseIndex != 1 || len(snap.Completed) != 1 || snap.Completed[0] != 0 {
		t.Errorf("expected committed progress, got %+v", snap)
	}
}

func TestSubmit_RendersFixedResponse(t *testing.T) {
	runner := &mockRunner{}
	app := sessionApp()
	app.Phases[0].Prompts = append(app.Phases[0].Prompts, models.Prompt{
		ID: "pr4", Kind: models.PromptKindFixedResponse, Text: "Thanks {name}, noted.",
	})
	sess := NewSession(app, runner)
	if err := sess.SetAnswer("name", models.ScalarValue("Ada"), ""); err != nil {
		t.Fatal(err)
	}

	result, err := sess.Submit(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.FixedResponse != "Thanks Ada, noted." {
		t.Errorf("expected substituted fixed response, got %q", result.FixedResponse)
	}

	// A phase without fixed-response prompts yields none.
	result, err = sess.Skip(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.FixedResponse != "" {
		t.Errorf("expected empty fixed response, got %q", result.FixedResponse)
	}
}

func TestSubmit_LastPhaseFinishes(t *testing.T) {
	runner := &mockRunner{}
	sess := NewSession(sessionApp(), runner)
	ctx := context.Background()

	if err := sess.SetAnswer("name", models.ScalarValue("Ada"), ""); err != nil {
		t.Fatal(err)
	}
	if _, err := sess.Submit(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := sess.Submit(ctx); err != nil {
		t.Fatal(err)
	}
	// Final phase has no prompts; advance without submitting.
	result, err := sess.NoSubmit(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Finished {
		t.Errorf("expected finished session, got %+v", result)
	}
	if sess.CurrentPhase() != nil {
		t.Error("finished session has no current phase")
	}

	// Terminal state rejects everything.
	if _, err := sess.Submit(ctx); !errors.Is(err, ErrSessionFinished) {
		t.Errorf("expected ErrSessionFinished, got %v", err)
	}
	if err := sess.SetAnswer("name", models.ScalarValue("x"), ""); !errors.Is(err, ErrSessionFinished) {
		t.Errorf("expected ErrSessionFinished on answer, got %v", err)
	}
}

func TestSkip_RequiresSkipFlag(t *testing.T) {
	runner := &mockRunner{}
	sess := NewSession(sessionApp(), runner)

	if _, err := sess.Skip(context.Background()); !errors.Is(err, ErrSkipNotAllowed) {
		t.Errorf("expected ErrSkipNotAllowed on phase 0, got %v", err)
	}

	// Advance to the skippable phase.
	if err := sess.SetAnswer("name", models.ScalarValue("Ada"), ""); err != nil {
		t.Fatal(err)
	}
	if _, err := sess.Submit(context.Background()); err != nil {
		t.Fatal(err)
	}
	result, err := sess.Skip(context.Background())
	if err != nil {
		t.Fatalf("expected skip to succeed, got %v", err)
	}
	if !result.Advanced {
		t.Errorf("expected advance via skip, got %+v", result)
	}
	if req := runner.lastRequest(); !req.RequestSkip {
		t.Error("skip must set the request flag")
	}
}

func TestNoSubmit_RejectedWhenPhaseHasPrompts(t *testing.T) {
	sess := NewSession(sessionApp(), &mockRunner{})
	if _, err := sess.NoSubmit(context.Background()); !errors.Is(err, ErrNoSubmitWithPrompts) {
		t.Errorf("expected ErrNoSubmitWithPrompts, got %v", err)
	}
}

func TestSubmit_ScoreFailedDoesNotAdvance(t *testing.T) {
	failed := false
	runner := &mockRunner{run: &models.Run{
		ID: "run-1", Status: models.RunStatusCompleted, Passed: &failed, Score: "2",
	}}
	app := sessionApp()
	app.Phases[0].Scored = true
	app.Phases[0].Rubric = "be thorough"
	app.Phases[0].MinScore = 3

	sess := NewSession(app, runner)
	if err := sess.SetAnswer("name", models.ScalarValue("Ada"), ""); err != nil {
		t.Fatal(err)
	}
	result, err := sess.Submit(context.Background())
	if err != nil {
		t.Fatalf("score failure is not a Go error, got %v", err)
	}
	if !result.ScoreFailed || result.Advanced {
		t.Errorf("expected score-failed result, got %+v", result)
	}
	snap := sess.Snapshot()
	if snap.PhaseIndex != 0 || len(snap.Completed) != 0 {
		t.Errorf("failed score must leave state unchanged, got %+v", snap)
	}

	req := runner.lastRequest()
	if !req.Scored || req.Rubric != "be thorough" || req.MinScore != 3 {
		t.Errorf("expected scoring config forwarded, got %+v", req)
	}
}

func TestSubmit_RunnerErrorLeavesStateUntouched(t *testing.T) {
	runner := &mockRunner{err: errors.New("upstream down")}
	sess := NewSession(sessionApp(), runner)
	if err := sess.SetAnswer("name", models.ScalarValue("Ada"), ""); err != nil {
		t.Fatal(err)
	}
	before := sess.Snapshot()

	_, err := sess.Submit(context.Background())
	if err == nil {
		t.Fatal("expected error from runner")
	}
	after := sess.Snapshot()
	if after.PhaseIndex != before.PhaseIndex || len(after.Completed) != len(before.Completed) {
		t.Errorf("state changed across a failed run: %+v vs %+v", before, after)
	}
	if sess.Busy() {
		t.Error("busy flag must clear after a failed run")
	}
}

func TestTransition_BusyRejectsConcurrentTriggers(t *testing.T) {
	runner := &mockRunner{block: make(chan struct{}), started: make(chan struct{})}
	sess := NewSession(sessionApp(), runner)
	if err := sess.SetAnswer("name", models.ScalarValue("Ada"), ""); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := sess.Submit(context.Background()); err != nil {
			t.Errorf("first submit failed: %v", err)
		}
	}()
	<-runner.started

	if !sess.Busy() {
		t.Error("expected busy while run is outstanding")
	}
	if _, err := sess.Submit(context.Background()); !errors.Is(err, ErrTransitionInFlight) {
		t.Errorf("expected ErrTransitionInFlight, got %v", err)
	}
	if err := sess.Reset(); !errors.Is(err, ErrTransitionInFlight) {
		t.Errorf("expected reset rejected while busy, got %v", err)
	}
	// Answer edits are still allowed while busy.
	if err := sess.SetAnswer("name", models.ScalarValue("Grace"), ""); err != nil {
		t.Errorf("answer edit must be permitted while busy, got %v", err)
	}

	close(runner.block)
	<-done
	if sess.Busy() {
		t.Error("busy must clear after the run completes")
	}
}

func TestReset_ClearsAndReseeds(t *testing.T) {
	sess := NewSession(sessionApp(), &mockRunner{})
	if err := sess.SetAnswer("name", models.ScalarValue("Ada"), ""); err != nil {
		t.Fatal(err)
	}
	if _, err := sess.Submit(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := sess.Reset(); err != nil {
		t.Fatal(err)
	}
	snap := sess.Snapshot()
	if snap.PhaseIndex != 0 || snap.Finished || len(snap.Completed) != 0 {
		t.Errorf("expected cleared progress, got %+v", snap)
	}
	if _, ok := snap.Answers["name"]; ok {
		t.Error("answers must be cleared on reset")
	}
	if snap.Answers["mood"].Value.Scalar() != "good" {
		t.Error("defaults must be re-seeded on reset")
	}
}

func TestSoftReset_RewindsButKeepsAnswers(t *testing.T) {
	sess := NewSession(sessionApp(), &mockRunner{})
	if err := sess.SetAnswer("name", models.ScalarValue("Ada"), ""); err != nil {
		t.Fatal(err)
	}
	if _, err := sess.Submit(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := sess.SoftReset(); err != nil {
		t.Fatal(err)
	}
	snap := sess.Snapshot()
	if snap.PhaseIndex != 0 || snap.Finished || len(snap.Completed) != 0 {
		t.Errorf("expected rewound progress, got %+v", snap)
	}
	if snap.Answers["name"].Value.Scalar() != "Ada" {
		t.Error("answers must survive a soft reset")
	}
}

func TestSubscriber_NotifiedOnCommits(t *testing.T) {
	sub := &recordingSubscriber{}
	sess := NewSession(sessionApp(), &mockRunner{}, WithSubscriber(sub))

	if err := sess.SetAnswer("name", models.ScalarValue("Ada"), ""); err != nil {
		t.Fatal(err)
	}
	if _, err := sess.Submit(context.Background()); err != nil {
		t.Fatal(err)
	}
	if sub.count() != 2 {
		t.Errorf("expected 2 notifications (answer + transition), got %d", sub.count())
	}
}

func TestReplaceApp_ClearsState(t *testing.T) {
	sess := NewSession(sessionApp(), &mockRunner{}, WithUserID("u1"))
	if err := sess.SetAnswer("name", models.ScalarValue("Ada"), ""); err != nil {
		t.Fatal(err)
	}

	next := sessionApp()
	next.ID = "app-2"
	if err := sess.ReplaceApp(next); err != nil {
		t.Fatal(err)
	}
	snap := sess.Snapshot()
	if snap.AppID != "app-2" || snap.PhaseIndex != 0 {
		t.Errorf("expected rebound session, got %+v", snap)
	}
	if _, ok := snap.Answers["name"]; ok {
		t.Error("answers must not survive an app identity change")
	}
	if snap.UserID != "u1" {
		t.Error("user binding must survive an app swap")
	}
}
