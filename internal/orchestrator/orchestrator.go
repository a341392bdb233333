// Package orchestrator implements the three-phase tick driver (C12):
// pre-pivot, post-pivot, and post-summaries, each sequencing the
// already-built subsystems (manifest/gates mutators, gate evaluators,
// pivot decider, citation ladder, summary/synthesis/review, stage engine)
// across one tick, with the run-lock/watchdog/tick-cap/pause-cancel
// discipline of spec.md §4.9. No progress heartbeat is written between work
// units (see touchProgress). Grounded on
// codenerd/internal/campaign's Orchestrator/OrchestratorConfig/
// OrchestratorEvent shape (heartbeat/autosave/timeout knobs); this package
// keeps no in-process event channel, and the durable tick ledger is its
// only per-tick record. Retry pacing between
// runAgent attempts uses github.com/cenkalti/backoff/v4 the way the donor
// paces task retries with RetryBackoffBase/RetryBackoffMax.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"researchrun/internal/audit"
	"researchrun/internal/gatesdoc"
	"researchrun/internal/manifest"
	"researchrun/internal/metrics"
	"researchrun/internal/model"
	"researchrun/internal/runagent"
	"researchrun/internal/runlock"
	"researchrun/internal/store"
	"researchrun/internal/toolsurface"
)

// runAgentMaxAttempts bounds transport-level retry of a single runAgent
// call (connection refused, context deadline on the collaborator's side),
// independent of the wave_output_validate retry loop in internal/retry —
// that loop retries a whole perspective with a revised prompt, this one
// retries the same request after a dropped connection.
const runAgentMaxAttempts = 3

// callRunAgent invokes driver.RunAgent with a short exponential backoff
// between transport-level failures, paced the way
// codenerd/internal/campaign paces task retries with
// RetryBackoffBase/RetryBackoffMax.
func callRunAgent(ctx context.Context, driver runagent.Driver, req runagent.Request) (*runagent.Result, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	bounded := backoff.WithMaxRetries(backoff.WithContext(b, ctx), runAgentMaxAttempts-1)

	var result *runagent.Result
	err := backoff.Retry(func() error {
		res, err := driver.RunAgent(ctx, req)
		if err != nil {
			return err
		}
		result = res
		return nil
	}, bounded)
	return result, err
}

// StageTimeouts is spec.md §4.9's per-stage budget table, in seconds.
var StageTimeouts = map[model.Stage]time.Duration{
	model.StageInit:       120 * time.Second,
	model.StageWave1:      600 * time.Second,
	model.StagePivot:      120 * time.Second,
	model.StageWave2:      600 * time.Second,
	model.StageCitations:  600 * time.Second,
	model.StageSummaries:  600 * time.Second,
	model.StageSynthesis:  600 * time.Second,
	model.StageReview:     300 * time.Second,
	model.StageFinalize:   120 * time.Second,
}

// DefaultTickCaps bounds how many ticks an outer orchestrator_run_* loop
// will drive before giving up, per phase (spec.md §4.9: "default 5-10
// depending on phase").
var DefaultTickCaps = map[string]int{
	"pre_pivot":      10,
	"post_pivot":     8,
	"post_summaries": 6,
}

// Paths locates the JSON documents and log streams a tick reads/writes,
// relative to a run root.
type Paths struct {
	RunRoot      string
	Manifest     string
	Gates        string
	Perspectives string
	Scope        string
	Pivot        string
	Wave1Dir     string
	Wave2Dir     string
	CitationsDir string
	SummariesDir string
	SynthesisDir string
	ReviewDir    string
	RetryDir     string
	AuditLog     string
	TelemetryLog string
	TelemetryIdx string
	TickLog      string
}

// NewPaths derives Paths from a loaded manifest's artifact block.
func NewPaths(runRoot string, artifacts model.Artifacts) Paths {
	join := func(rel string) string {
		if rel == "" {
			return ""
		}
		return runRoot + "/" + rel
	}
	return Paths{
		RunRoot:      runRoot,
		Manifest:     join(artifacts.Paths.Manifest),
		Gates:        join(artifacts.Paths.Gates),
		Perspectives: join(artifacts.Paths.Perspectives),
		Scope:        join(artifacts.Paths.Scope),
		Pivot:        join(artifacts.Paths.Pivot),
		Wave1Dir:     join(artifacts.Paths.Wave1Dir),
		Wave2Dir:     join(artifacts.Paths.Wave2Dir),
		CitationsDir: join(artifacts.Paths.CitationsDir),
		SummariesDir: join(artifacts.Paths.SummariesDir),
		SynthesisDir: join(artifacts.Paths.SynthesisDir),
		ReviewDir:    join(artifacts.Paths.ReviewDir),
		RetryDir:     join(artifacts.Paths.RetryDir),
		AuditLog:     join(artifacts.Paths.LogsDir) + "/audit.jsonl",
		TelemetryLog: join(artifacts.Paths.LogsDir) + "/telemetry.jsonl",
		TelemetryIdx: join(artifacts.Paths.LogsDir) + "/telemetry.index.json",
		TickLog:      join(artifacts.Paths.LogsDir) + "/ticks.jsonl",
	}
}

// TickOutcome is one tick's terminal result, logged to tick_ledger.v1.
type TickOutcome struct {
	Phase        string
	StageBefore  model.Stage
	StageAfter   model.Stage
	StatusBefore model.RunStatus
	StatusAfter  model.RunStatus
	Result       string // "blocked", "noop", "watchdog_timeout", "paused", "cancelled", "lock_failed"; empty on success (recordTick logs empty as "ok", or "error" when Err is set)
	InputsDigest string
	Artifacts    []string
	Err          error
}

// watchdogCheck enforces the per-stage timeout table: a stage whose
// started_at is older than its budget fails with WATCHDOG_TIMEOUT.
func watchdogCheck(stage model.Stage, startedAt time.Time, now time.Time) error {
	budget, ok := StageTimeouts[stage]
	if !ok {
		return nil
	}
	if now.Sub(startedAt) > budget {
		return toolsurface.NewError(toolsurface.CodeWatchdogTimeout,
			fmt.Sprintf("stage %s exceeded its %s budget", stage, budget), map[string]interface{}{
				"stage":      stage,
				"started_at": startedAt,
				"budget_sec": budget.Seconds(),
			})
	}
	return nil
}

// checkPauseCancel short-circuits a tick entry per spec.md §4.9: a
// manifest already paused or cancelled is not advanced further.
func checkPauseCancel(m *model.Manifest) error {
	switch m.Status {
	case model.StatusPaused:
		return toolsurface.NewError(toolsurface.CodePaused, "run is paused", nil)
	case model.StatusCancelled:
		return toolsurface.NewError(toolsurface.CodeCancelled, "run is cancelled", nil)
	}
	return nil
}

// recordTick appends a tick_ledger.v1 record and a metrics observation.
// Ledger append failures are swallowed (best-effort, like the audit log);
// the tick's own result is what the caller propagates.
func recordTick(paths Paths, index int, outcome TickOutcome, started time.Time) {
	result := outcome.Result
	if result == "" {
		if outcome.Err != nil {
			result = "error"
		} else {
			result = "ok"
		}
	}
	_ = audit.AppendTickLedger(paths.TickLog, model.TickLedgerRecord{
		Index:        index,
		Phase:        outcome.Phase,
		StageBefore:  outcome.StageBefore,
		StageAfter:   outcome.StageAfter,
		StatusBefore: outcome.StatusBefore,
		StatusAfter:  outcome.StatusAfter,
		Result:       result,
		InputsDigest: outcome.InputsDigest,
		Artifacts:    outcome.Artifacts,
		TS:           time.Now().UTC(),
	})
	metrics.RecordTick(outcome.Phase, result, time.Since(started))
}

// runWithLockAndWatchdog wraps one tick function with the cross-phase
// discipline shared by all three phases: acquire the run lock (with
// heartbeat), check pause/cancel, check the stage watchdog both before and
// after the tick body runs, then release the lock.
func runWithLockAndWatchdog(ctx context.Context, paths Paths, phase string, leaseSeconds int, body func(ctx context.Context) (TickOutcome, error)) (TickOutcome, error) {
	lock, err := runlock.Acquire(paths.RunRoot, leaseSeconds, phase+"_tick")
	if err != nil {
		return TickOutcome{Phase: phase, Result: "lock_failed"}, err
	}
	defer lock.Release()

	metrics.ActiveRuns.Inc()
	defer metrics.ActiveRuns.Dec()

	manifest, err := loadManifest(paths)
	if err != nil {
		return TickOutcome{Phase: phase}, err
	}
	if err := checkPauseCancel(manifest); err != nil {
		return TickOutcome{Phase: phase, StageBefore: manifest.Stage.Current, StatusBefore: manifest.Status, Result: pauseCancelResult(err)}, err
	}
	if err := watchdogCheck(manifest.Stage.Current, manifest.Stage.StartedAt, time.Now().UTC()); err != nil {
		return TickOutcome{Phase: phase, StageBefore: manifest.Stage.Current, StatusBefore: manifest.Status, Result: "watchdog_timeout"}, err
	}

	outcome, err := body(ctx)
	outcome.Phase = phase
	// A stage entered during this tick has just started, so only a stage the
	// tick did not leave is re-checked against its original started_at.
	if err == nil && outcome.StageAfter == manifest.Stage.Current {
		if watchErr := watchdogCheck(outcome.StageAfter, manifest.Stage.StartedAt, time.Now().UTC()); watchErr != nil {
			outcome.Result = "watchdog_timeout"
			return outcome, watchErr
		}
	}
	return outcome, err
}

func pauseCancelResult(err error) string {
	var toolErr *toolsurface.ToolError
	if asToolError(err, &toolErr) {
		switch toolErr.Code {
		case toolsurface.CodePaused:
			return "paused"
		case toolsurface.CodeCancelled:
			return "cancelled"
		}
	}
	return "blocked"
}

func asToolError(err error, target **toolsurface.ToolError) bool {
	te, ok := err.(*toolsurface.ToolError)
	if !ok {
		return false
	}
	*target = te
	return true
}

func loadManifest(paths Paths) (*model.Manifest, error) {
	var m model.Manifest
	if err := store.ReadJSON(paths.Manifest, &m); err != nil {
		return nil, toolsurface.NewError(toolsurface.CodeNotFound, "manifest not found: "+err.Error(), nil)
	}
	return &m, nil
}

// touchProgress bumps manifest.stage.last_progress_at via a revisioned
// patch. No tick phase calls it, so last_progress_at is not updated between
// work units.
func touchProgress(paths Paths, expectedRevision int, auditLog *store.AppendLogger) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	patch := map[string]interface{}{
		"stage": map[string]interface{}{
			"last_progress_at": now,
		},
	}
	_, err := writeManifestPatch(paths, patch, expectedRevision, "progress_heartbeat", auditLog)
	return err
}

// openAuditLogger opens paths.AuditLog for append, or returns nil if that
// fails — audit writes are best-effort per spec.md §4.10.
func openAuditLogger(paths Paths) *store.AppendLogger {
	logger, err := store.NewAppendLogger(paths.AuditLog)
	if err != nil {
		return nil
	}
	return logger
}

func writeManifestPatch(paths Paths, patch map[string]interface{}, expectedRevision int, reason string, auditLog *store.AppendLogger) (*model.Manifest, error) {
	rev := expectedRevision
	return manifest.Write(paths.Manifest, patch, &rev, reason, auditLog)
}

func writeGateUpdates(paths Paths, updates []gatesdoc.Update, inputsDigest string, expectedRevision int, reason string, auditLog *store.AppendLogger) (*model.GatesDocument, error) {
	return gatesdoc.Write(paths.Gates, updates, inputsDigest, expectedRevision, reason, auditLog)
}
