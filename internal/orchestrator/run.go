package orchestrator

import (
	"context"
	"time"

	"researchrun/internal/toolsurface"
)

// leaseSeconds is the run-lock hold time for a single tick. It is kept
// short relative to every stage budget in StageTimeouts so a crashed
// holder's lease expires well before a watchdog would otherwise fire.
const leaseSeconds = 30

// RunPrePivot drives PrePivot.Tick in a loop bounded by
// DefaultTickCaps["pre_pivot"], stopping as soon as a tick leaves the
// pre-pivot stage range (wave1/init) or reports a non-ok result.
func RunPrePivot(ctx context.Context, p *PrePivot) ([]TickOutcome, error) {
	tickCap := DefaultTickCaps["pre_pivot"]
	var outcomes []TickOutcome
	for i := 0; i < tickCap; i++ {
		started := time.Now()
		outcome, err := runWithLockAndWatchdog(ctx, p.Paths, "pre_pivot", leaseSeconds, func(ctx context.Context) (TickOutcome, error) {
			return p.Tick(ctx)
		})
		recordTick(p.Paths, i, outcome, started)
		outcomes = append(outcomes, outcome)
		if err != nil {
			return outcomes, err
		}
		if !stageInPrePivot(outcome.StageAfter) || outcome.Result == "blocked" {
			return outcomes, nil
		}
	}
	return outcomes, toolsurface.NewError(toolsurface.CodeTickCapExceeded,
		"pre_pivot exceeded its tick cap without completing", map[string]interface{}{"cap": tickCap})
}

// RunPostPivot mirrors RunPrePivot for the pivot/wave2/citations phase.
func RunPostPivot(ctx context.Context, p *PostPivot) ([]TickOutcome, error) {
	tickCap := DefaultTickCaps["post_pivot"]
	var outcomes []TickOutcome
	for i := 0; i < tickCap; i++ {
		started := time.Now()
		outcome, err := runWithLockAndWatchdog(ctx, p.Paths, "post_pivot", leaseSeconds, func(ctx context.Context) (TickOutcome, error) {
			return p.Tick(ctx)
		})
		recordTick(p.Paths, i, outcome, started)
		outcomes = append(outcomes, outcome)
		if err != nil {
			return outcomes, err
		}
		if !stageInPostPivot(outcome.StageAfter) || outcome.Result == "blocked" {
			return outcomes, nil
		}
	}
	return outcomes, toolsurface.NewError(toolsurface.CodeTickCapExceeded,
		"post_pivot exceeded its tick cap without completing", map[string]interface{}{"cap": tickCap})
}

// RunPostSummaries mirrors RunPrePivot for the summaries/synthesis/review
// phase. The review stage can legitimately loop back to synthesis several
// times (the revision-control loop), so staying within post-summaries for
// the whole cap is expected, not a sign of a stuck run.
func RunPostSummaries(ctx context.Context, p *PostSummaries) ([]TickOutcome, error) {
	tickCap := DefaultTickCaps["post_summaries"]
	var outcomes []TickOutcome
	for i := 0; i < tickCap; i++ {
		started := time.Now()
		outcome, err := runWithLockAndWatchdog(ctx, p.Paths, "post_summaries", leaseSeconds, func(ctx context.Context) (TickOutcome, error) {
			return p.Tick()
		})
		recordTick(p.Paths, i, outcome, started)
		outcomes = append(outcomes, outcome)
		if err != nil {
			return outcomes, err
		}
		if !stageInPostSummaries(outcome.StageAfter) || outcome.Result == "blocked" {
			return outcomes, nil
		}
	}
	return outcomes, toolsurface.NewError(toolsurface.CodeTickCapExceeded,
		"post_summaries exceeded its tick cap without completing", map[string]interface{}{"cap": tickCap})
}
