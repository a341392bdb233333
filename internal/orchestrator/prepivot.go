package orchestrator

import (
	"context"
	"fmt"
	"time"

	"researchrun/internal/codec"
	"researchrun/internal/gates"
	"researchrun/internal/gatesdoc"
	"researchrun/internal/model"
	"researchrun/internal/retry"
	"researchrun/internal/runagent"
	"researchrun/internal/stage"
	"researchrun/internal/store"
)

// PrePivot drives the init -> wave1 -> pivot phase.
type PrePivot struct {
	Paths   Paths
	Driver  runagent.Driver
	Retries *retry.Tracker
}

// buildWave1Plan derives a wave-1 plan directly from perspectives, capped
// by limits.max_wave1_agents: one entry per perspective, each prompt
// carrying the scope-contract marker Gate A requires.
func buildWave1Plan(paths Paths, scope *model.ScopeDocument, perspectives *model.PerspectivesDocument, maxWave1Agents int) (model.WavePlan, map[string]string) {
	entries := perspectives.Perspectives
	if maxWave1Agents > 0 && len(entries) > maxWave1Agents {
		entries = entries[:maxWave1Agents]
	}

	plan := model.WavePlan{Entries: make([]model.WavePlanEntry, 0, len(entries))}
	prompts := make(map[string]string, len(entries))

	for _, p := range entries {
		prompt := fmt.Sprintf("%s\n\nObjective: %s\n\nPerspective: %s (%s)\n",
			gates.ScopeContractMarker, scope.Objective, p.Title, p.Track)
		outputPath := paths.Wave1Dir + "/" + p.ID + ".md"
		plan.Entries = append(plan.Entries, model.WavePlanEntry{
			PerspectiveID: p.ID,
			OutputMD:      outputPath,
			PromptMD:      prompt,
		})
		prompts[p.ID] = prompt
	}
	return plan, prompts
}

// Tick runs one unit of pre-pivot work: if the manifest is at init, it
// plans and evaluates Gate A then advances to wave1; if at wave1, it runs
// every plan entry through runAgent (including entries whose output already
// exists), ingests/validates each, records a Gate B retry directive for each
// retryable failure, then evaluates Gate B and advances to pivot on a pass.
// A retry that would exceed Gate B's cap ends the tick with
// RETRY_CAP_EXHAUSTED before Gate B is evaluated.
func (o *PrePivot) Tick(ctx context.Context) (TickOutcome, error) {
	auditLog := openAuditLogger(o.Paths)
	if auditLog != nil {
		defer auditLog.Close()
	}

	m, err := loadManifest(o.Paths)
	if err != nil {
		return TickOutcome{}, err
	}

	switch m.Stage.Current {
	case model.StageInit:
		return o.tickInit(m, auditLog)
	case model.StageWave1:
		return o.tickWave1(ctx, m, auditLog)
	default:
		return TickOutcome{StageBefore: m.Stage.Current, StageAfter: m.Stage.Current, Result: "noop"}, nil
	}
}

func (o *PrePivot) tickInit(m *model.Manifest, auditLog *store.AppendLogger) (TickOutcome, error) {
	var scope model.ScopeDocument
	if err := store.ReadJSON(o.Paths.Scope, &scope); err != nil {
		return TickOutcome{}, err
	}
	var perspectives model.PerspectivesDocument
	if err := store.ReadJSON(o.Paths.Perspectives, &perspectives); err != nil {
		return TickOutcome{}, err
	}

	plan, prompts := buildWave1Plan(o.Paths, &scope, &perspectives, m.Limits.MaxWave1Agents)
	if err := store.EnsureDir(o.Paths.Wave1Dir); err != nil {
		return TickOutcome{}, err
	}
	planPath := o.Paths.Wave1Dir + "/wave1-plan.json"
	if err := store.WriteJSONAtomic(planPath, plan); err != nil {
		return TickOutcome{}, err
	}

	result := gates.EvaluateA(&scope, &perspectives, &plan, prompts, m.Limits.MaxWave1Agents)
	gatesDoc, err := writeGateUpdates(o.Paths, []gatesdoc.Update{{
		ID: model.GateA, Status: result.Status, Metrics: result.Metrics,
		Artifacts: result.Artifacts, Warnings: result.Warnings, Notes: result.Notes,
	}}, result.InputsDigest, mustGatesRevision(o.Paths), "gate_a_evaluate", auditLog)
	if err != nil {
		return TickOutcome{}, err
	}

	if result.Status != model.GatePass {
		return TickOutcome{StageBefore: model.StageInit, StageAfter: model.StageInit, Result: "blocked"}, nil
	}

	decision, err := stage.Advance(stage.Request{Manifest: m, Gates: gatesDoc, Reason: "gate_a_pass"})
	if err != nil {
		return TickOutcome{}, err
	}
	patch := stage.ApplyPatch(m, decision, "gate_a_pass", time.Now().UTC())
	patch["status"] = decision.NewStatus
	if _, err := writeManifestPatch(o.Paths, patch, m.Revision, "stage_advance:init->wave1", auditLog); err != nil {
		return TickOutcome{}, err
	}

	return TickOutcome{
		StageBefore: model.StageInit, StageAfter: decision.To,
		StatusBefore: m.Status, StatusAfter: decision.NewStatus,
		InputsDigest: decision.InputsDigest, Artifacts: []string{planPath},
	}, nil
}

func (o *PrePivot) tickWave1(ctx context.Context, m *model.Manifest, auditLog *store.AppendLogger) (TickOutcome, error) {
	var plan model.WavePlan
	planPath := o.Paths.Wave1Dir + "/wave1-plan.json"
	if err := store.ReadJSON(planPath, &plan); err != nil {
		return TickOutcome{}, err
	}
	var perspectives model.PerspectivesDocument
	if err := store.ReadJSON(o.Paths.Perspectives, &perspectives); err != nil {
		return TickOutcome{}, err
	}
	byID := make(map[string]model.Perspective, len(perspectives.Perspectives))
	for _, p := range perspectives.Perspectives {
		byID[p.ID] = p
	}

	var sidecars []model.WaveOutputSidecar
	var directives []model.RetryDirective
	var artifactPaths []string

	for _, entry := range plan.Entries {
		p, ok := byID[entry.PerspectiveID]
		if !ok {
			continue
		}

		res, err := callRunAgent(ctx, o.Driver, runagent.Request{
			RunID: m.RunID, Stage: string(model.StageWave1), RunRoot: o.Paths.RunRoot,
			PerspectiveID: p.ID, AgentType: p.AgentType, PromptMD: entry.PromptMD, OutputMD: entry.OutputMD,
		})
		if err != nil {
			return TickOutcome{}, err
		}
		if !res.Succeeded() {
			sidecars = append(sidecars, model.WaveOutputSidecar{PerspectiveID: p.ID, AgentType: p.AgentType, MissingSections: []string{"runAgent failed"}})
			continue
		}

		if err := store.WriteTextAtomic(entry.OutputMD, res.Markdown); err != nil {
			return TickOutcome{}, err
		}
		artifactPaths = append(artifactPaths, entry.OutputMD)

		promptDigest := codec.DigestBytes([]byte(entry.PromptMD))
		sidecar, code := validateWaveOutput(p, res.Markdown, promptDigest)
		if code != "" && retryableWaveOutputCodes[code] {
			attempt, err := o.Retries.Record(model.GateB)
			if err != nil {
				return TickOutcome{}, err
			}
			sidecar.RetryCount = attempt
			directives = append(directives, model.RetryDirective{
				PerspectiveID: p.ID, GateID: model.GateB, ChangeNote: changeNoteFor(code, attempt), Attempt: attempt,
			})
		}
		sidecars = append(sidecars, sidecar)
	}

	if len(directives) > 0 {
		retryDocPath := o.Paths.RetryDir + "/retry-directives.json"
		if err := store.EnsureDir(o.Paths.RetryDir); err != nil {
			return TickOutcome{}, err
		}
		if err := store.WriteJSONAtomic(retryDocPath, model.RetryDirectivesDocument{Directives: directives}); err != nil {
			return TickOutcome{}, err
		}
	}

	result := gates.EvaluateB(sidecars, &model.RetryDirectivesDocument{Directives: directives})
	gatesDoc, err := writeGateUpdates(o.Paths, []gatesdoc.Update{{
		ID: model.GateB, Status: result.Status, Metrics: result.Metrics,
		Artifacts: result.Artifacts, Warnings: result.Warnings, Notes: result.Notes,
	}}, result.InputsDigest, mustGatesRevision(o.Paths), "gate_b_evaluate", auditLog)
	if err != nil {
		return TickOutcome{}, err
	}

	if result.Status != model.GatePass {
		return TickOutcome{StageBefore: model.StageWave1, StageAfter: model.StageWave1, Artifacts: artifactPaths, Result: "blocked"}, nil
	}

	decision, err := stage.Advance(stage.Request{Manifest: m, Gates: gatesDoc, Reason: "gate_b_pass"})
	if err != nil {
		return TickOutcome{}, err
	}
	patch := stage.ApplyPatch(m, decision, "gate_b_pass", time.Now().UTC())
	patch["status"] = decision.NewStatus
	if _, err := writeManifestPatch(o.Paths, patch, m.Revision, "stage_advance:wave1->pivot", auditLog); err != nil {
		return TickOutcome{}, err
	}

	return TickOutcome{
		StageBefore: model.StageWave1, StageAfter: decision.To,
		StatusBefore: m.Status, StatusAfter: decision.NewStatus,
		InputsDigest: decision.InputsDigest, Artifacts: artifactPaths,
	}, nil
}

func mustGatesRevision(paths Paths) int {
	var g model.GatesDocument
	if err := store.ReadJSON(paths.Gates, &g); err != nil {
		return 0
	}
	return g.Revision
}
