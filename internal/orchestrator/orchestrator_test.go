package orchestrator

import (
	"context"
	"testing"
	"time"

	"researchrun/internal/model"
	"researchrun/internal/retry"
	"researchrun/internal/runagent"
	"researchrun/internal/store"
	"researchrun/internal/toolsurface"
)

// newFixtureRun lays out a minimal, schema-valid run root under t.TempDir():
// one wave-1 perspective whose prompt contract only requires a "## Findings"
// heading, a scope with a non-empty objective, and no_web sensitivity so
// the citations tick never needs a live Ladder or offline fixture data
// (the wave-1 output below carries no URLs and no digits, so Gate C and
// Gate E both clear with zero warnings).
func newFixtureRun(t *testing.T) (Paths, *model.Manifest) {
	t.Helper()
	runRoot := t.TempDir()

	artifacts := model.Artifacts{
		Root: runRoot,
		Paths: model.ArtifactPaths{
			Manifest:     "manifest.json",
			Gates:        "gates.json",
			Perspectives: "perspectives.json",
			Scope:        "operator/scope.json",
			Pivot:        "pivot/pivot.json",
			Wave1Dir:     "wave-1",
			Wave2Dir:     "wave-2",
			CitationsDir: "citations",
			SummariesDir: "summaries",
			SynthesisDir: "synthesis",
			ReviewDir:    "review",
			RetryDir:     "retry",
			LogsDir:      "logs",
		},
	}
	paths := NewPaths(runRoot, artifacts)

	now := time.Now().UTC()
	m := &model.Manifest{
		SchemaVersion: "manifest.v1",
		RunID:         "run_test_fixture",
		CreatedAt:     now,
		Artifacts:     artifacts,
		Revision:      1,
		UpdatedAt:     now,
		Mode:          model.ModeQuick,
		Status:        model.StatusRunning,
		Query: model.Query{
			Text:        "what changed in the widget market this quarter",
			Sensitivity: model.SensitivityNoWeb,
		},
		Stage: model.StageBlock{
			Current:   model.StageInit,
			StartedAt: now,
			History:   []model.StageHistoryEntry{},
		},
		Limits: model.Limits{
			MaxWave1Agents:      5,
			MaxWave2Agents:      5,
			MaxSummaryKB:        500,
			MaxTotalSummaryKB:   2000,
			MaxReviewIterations: 3,
		},
		Metrics:  model.Metrics{},
		Failures: nil,
	}
	if err := store.WriteJSONAtomic(paths.Manifest, m); err != nil {
		t.Fatalf("write manifest fixture: %v", err)
	}

	gatesDoc := model.NewGatesDocument(m.RunID)
	if err := store.WriteJSONAtomic(paths.Gates, gatesDoc); err != nil {
		t.Fatalf("write gates fixture: %v", err)
	}

	scope := model.ScopeDocument{
		Objective:   "Understand recent widget market shifts",
		Constraints: []string{"stay within publicly available sources"},
	}
	if err := store.WriteJSONAtomic(paths.Scope, &scope); err != nil {
		t.Fatalf("write scope fixture: %v", err)
	}

	perspectives := model.PerspectivesDocument{
		Perspectives: []model.Perspective{{
			ID:        "p1",
			Title:     "Primary perspective",
			Track:     model.TrackStandard,
			AgentType: "researcher",
			PromptContract: model.PromptContract{
				MustIncludeSections: []string{"## Findings"},
			},
		}},
	}
	if err := store.WriteJSONAtomic(paths.Perspectives, &perspectives); err != nil {
		t.Fatalf("write perspectives fixture: %v", err)
	}

	return paths, m
}

// wave1Fixtures maps the one perspective in newFixtureRun to clean markdown:
// a "## Findings" section with no numeric tokens and no "## Gaps" section,
// so the pivot tick's gap parse comes back empty and Decide lands on
// Wave2Skip.NoGaps without needing any gap fixtures at all.
func wave1Fixtures() map[string]string {
	return map[string]string{
		"p1": "## Findings\n\nThe sources reviewed agree on a stable outlook with no contested claims.\n",
	}
}

func TestRunPrePivotAdvancesToPivot(t *testing.T) {
	paths, _ := newFixtureRun(t)
	driver := runagent.NewFixtureDriver(wave1Fixtures())
	p := &PrePivot{Paths: paths, Driver: driver, Retries: retry.NewTracker(0)}

	outcomes, err := RunPrePivot(context.Background(), p)
	if err != nil {
		t.Fatalf("RunPrePivot: %v", err)
	}
	if len(outcomes) == 0 {
		t.Fatalf("expected at least one tick outcome")
	}

	var m model.Manifest
	if err := store.ReadJSON(paths.Manifest, &m); err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	if m.Stage.Current != model.StagePivot {
		t.Fatalf("expected stage pivot, got %s", m.Stage.Current)
	}
	if !store.Exists(paths.Wave1Dir + "/p1.md") {
		t.Fatalf("expected wave-1 output for p1 to be written")
	}
}

func TestRunPostPivotSkipsWave2AndReachesSummaries(t *testing.T) {
	paths, _ := newFixtureRun(t)
	driver := runagent.NewFixtureDriver(wave1Fixtures())
	pre := &PrePivot{Paths: paths, Driver: driver, Retries: retry.NewTracker(0)}
	if _, err := RunPrePivot(context.Background(), pre); err != nil {
		t.Fatalf("RunPrePivot: %v", err)
	}

	post := &PostPivot{Paths: paths, Driver: driver}
	outcomes, err := RunPostPivot(context.Background(), post)
	if err != nil {
		t.Fatalf("RunPostPivot: %v", err)
	}
	if len(outcomes) == 0 {
		t.Fatalf("expected at least one tick outcome")
	}

	var m model.Manifest
	if err := store.ReadJSON(paths.Manifest, &m); err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	if m.Stage.Current != model.StageSummaries {
		t.Fatalf("expected stage summaries, got %s", m.Stage.Current)
	}
	if store.Exists(paths.Wave2Dir + "/wave2-plan.json") {
		t.Fatalf("expected no wave-2 plan since no gaps were parsed")
	}
	if !store.Exists(paths.CitationsDir + "/citations.jsonl") {
		t.Fatalf("expected citations.jsonl to exist even with zero records")
	}
}

func TestFullRunReachesFinalizeAndCompleted(t *testing.T) {
	paths, _ := newFixtureRun(t)
	driver := runagent.NewFixtureDriver(wave1Fixtures())
	ctx := context.Background()

	if _, err := RunPrePivot(ctx, &PrePivot{Paths: paths, Driver: driver, Retries: retry.NewTracker(0)}); err != nil {
		t.Fatalf("RunPrePivot: %v", err)
	}
	if _, err := RunPostPivot(ctx, &PostPivot{Paths: paths, Driver: driver}); err != nil {
		t.Fatalf("RunPostPivot: %v", err)
	}
	if _, err := RunPostSummaries(ctx, &PostSummaries{Paths: paths}); err != nil {
		t.Fatalf("RunPostSummaries: %v", err)
	}

	var m model.Manifest
	if err := store.ReadJSON(paths.Manifest, &m); err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	if m.Stage.Current != model.StageFinalize {
		t.Fatalf("expected stage finalize, got %s", m.Stage.Current)
	}
	if m.Status != model.StatusCompleted {
		t.Fatalf("expected status completed, got %s", m.Status)
	}

	synthesisMD, err := readRawFile(paths.SynthesisDir + "/final-synthesis.md")
	if err != nil {
		t.Fatalf("read final synthesis: %v", err)
	}
	for _, heading := range []string{"## Findings", "## Citations", "## Open Questions"} {
		if !containsHeading(synthesisMD, heading) {
			t.Errorf("final synthesis missing heading %s", heading)
		}
	}
}

func TestWatchdogCheckExceedsBudget(t *testing.T) {
	started := time.Now().UTC().Add(-StageTimeouts[model.StageWave1] - time.Minute)
	err := watchdogCheck(model.StageWave1, started, time.Now().UTC())
	if err == nil {
		t.Fatalf("expected a watchdog timeout error")
	}
	toolErr, ok := err.(*toolsurface.ToolError)
	if !ok {
		t.Fatalf("expected *toolsurface.ToolError, got %T", err)
	}
	if toolErr.Code != toolsurface.CodeWatchdogTimeout {
		t.Fatalf("expected code %s, got %s", toolsurface.CodeWatchdogTimeout, toolErr.Code)
	}
}

func TestWatchdogCheckWithinBudget(t *testing.T) {
	started := time.Now().UTC()
	if err := watchdogCheck(model.StageWave1, started, started.Add(time.Second)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestWatchdogCheckUnknownStageIsNoop(t *testing.T) {
	if err := watchdogCheck(model.Stage("not_a_real_stage"), time.Now().UTC().Add(-24*time.Hour), time.Now().UTC()); err != nil {
		t.Fatalf("expected no error for an unbudgeted stage, got %v", err)
	}
}

func TestCheckPauseCancel(t *testing.T) {
	cases := []struct {
		status   model.RunStatus
		wantCode string
	}{
		{model.StatusPaused, toolsurface.CodePaused},
		{model.StatusCancelled, toolsurface.CodeCancelled},
		{model.StatusRunning, ""},
		{model.StatusCreated, ""},
	}
	for _, c := range cases {
		err := checkPauseCancel(&model.Manifest{Status: c.status})
		if c.wantCode == "" {
			if err != nil {
				t.Errorf("status %s: expected no error, got %v", c.status, err)
			}
			continue
		}
		toolErr, ok := err.(*toolsurface.ToolError)
		if !ok {
			t.Fatalf("status %s: expected *toolsurface.ToolError, got %T", c.status, err)
		}
		if toolErr.Code != c.wantCode {
			t.Errorf("status %s: expected code %s, got %s", c.status, c.wantCode, toolErr.Code)
		}
	}
}

func TestCallRunAgentRetriesTransportErrors(t *testing.T) {
	attempts := 0
	driver := &flakyDriver{
		failTimes: 2,
		attempts:  &attempts,
		result:    &runagent.Result{Markdown: "## Findings\n\nok\n"},
	}

	res, err := callRunAgent(context.Background(), driver, runagent.Request{PerspectiveID: "p1"})
	if err != nil {
		t.Fatalf("callRunAgent: %v", err)
	}
	if !res.Succeeded() {
		t.Fatalf("expected a successful result after retrying")
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts (2 failures + 1 success), got %d", attempts)
	}
}

func TestCallRunAgentDoesNotRetryAgentSideFailure(t *testing.T) {
	driver := runagent.NewFixtureDriver(map[string]string{})
	res, err := callRunAgent(context.Background(), driver, runagent.Request{PerspectiveID: "missing"})
	if err != nil {
		t.Fatalf("callRunAgent: %v", err)
	}
	if res.Succeeded() {
		t.Fatalf("expected an agent-side failure result")
	}
	if res.Error == nil || res.Error.Code != "RUN_AGENT_FAILED" {
		t.Fatalf("expected a RUN_AGENT_FAILED result, got %+v", res.Error)
	}
}

// flakyDriver fails with a transport-level error the first failTimes calls,
// then succeeds, exercising callRunAgent's backoff retry loop.
type flakyDriver struct {
	failTimes int
	attempts  *int
	result    *runagent.Result
}

func (d *flakyDriver) RunAgent(ctx context.Context, req runagent.Request) (*runagent.Result, error) {
	*d.attempts++
	if *d.attempts <= d.failTimes {
		return nil, context.DeadlineExceeded
	}
	return d.result, nil
}
