package orchestrator

import (
	"context"
	"fmt"
	"time"

	"researchrun/internal/citations"
	"researchrun/internal/gates"
	"researchrun/internal/gatesdoc"
	"researchrun/internal/model"
	"researchrun/internal/pivot"
	"researchrun/internal/runagent"
	"researchrun/internal/stage"
	"researchrun/internal/store"
)

// PostPivot drives the pivot -> wave2? -> citations -> Gate C phase.
type PostPivot struct {
	Paths     Paths
	Driver    runagent.Driver
	Ladder    *citations.Ladder
	Fixtures  citations.OfflineFixtures
	MaxWave2  int
}

// Tick runs one unit of post-pivot work for the manifest's current stage.
func (o *PostPivot) Tick(ctx context.Context) (TickOutcome, error) {
	auditLog := openAuditLogger(o.Paths)
	if auditLog != nil {
		defer auditLog.Close()
	}

	m, err := loadManifest(o.Paths)
	if err != nil {
		return TickOutcome{}, err
	}

	switch m.Stage.Current {
	case model.StagePivot:
		return o.tickPivot(m, auditLog)
	case model.StageWave2:
		return o.tickWave2(ctx, m, auditLog)
	case model.StageCitations:
		return o.tickCitations(ctx, m, auditLog)
	default:
		return TickOutcome{StageBefore: m.Stage.Current, StageAfter: m.Stage.Current, Result: "noop"}, nil
	}
}

func (o *PostPivot) tickPivot(m *model.Manifest, auditLog *store.AppendLogger) (TickOutcome, error) {
	if store.Exists(o.Paths.Pivot) {
		return o.advancePastPivot(m, auditLog)
	}

	var plan model.WavePlan
	if err := store.ReadJSON(o.Paths.Wave1Dir+"/wave1-plan.json", &plan); err != nil {
		return TickOutcome{}, err
	}

	var allGaps []model.Gap
	var wave1Outputs []model.Wave1Output
	for _, entry := range plan.Entries {
		text, err := readRawFile(entry.OutputMD)
		if err != nil {
			continue
		}
		wave1Outputs = append(wave1Outputs, model.Wave1Output{PerspectiveID: entry.PerspectiveID, OutputMD: text})
		gaps, err := pivot.ParseGapsSection(entry.PerspectiveID, text)
		if err == nil {
			allGaps = append(allGaps, gaps...)
		}
	}

	decision, err := pivot.Decide(allGaps)
	if err != nil {
		return TickOutcome{}, err
	}

	doc := model.PivotDocument{Gaps: pivot.SortGaps(allGaps), Decision: decision}
	doc.Wave1.Outputs = wave1Outputs
	if err := store.WriteJSONAtomic(o.Paths.Pivot, doc); err != nil {
		return TickOutcome{}, err
	}

	sr := stage.Request{Manifest: m, Gates: mustGates(o.Paths), PivotDecision: &decision, Artifacts: stage.Artifacts{PivotFile: true}, Reason: "pivot_decide"}
	d, err := stage.Advance(sr)
	if err != nil {
		return TickOutcome{}, err
	}
	patch := stage.ApplyPatch(m, d, "pivot_decide", time.Now().UTC())
	patch["status"] = d.NewStatus
	if _, err := writeManifestPatch(o.Paths, patch, m.Revision, "stage_advance:pivot", auditLog); err != nil {
		return TickOutcome{}, err
	}

	return TickOutcome{
		StageBefore: model.StagePivot, StageAfter: d.To,
		StatusBefore: m.Status, StatusAfter: d.NewStatus,
		InputsDigest: d.InputsDigest, Artifacts: []string{o.Paths.Pivot},
	}, nil
}

// advancePastPivot handles a tick that finds pivot.json already present
// (e.g. resumed after a crash) by re-reading its decision and advancing.
func (o *PostPivot) advancePastPivot(m *model.Manifest, auditLog *store.AppendLogger) (TickOutcome, error) {
	var doc model.PivotDocument
	if err := store.ReadJSON(o.Paths.Pivot, &doc); err != nil {
		return TickOutcome{}, err
	}
	sr := stage.Request{Manifest: m, Gates: mustGates(o.Paths), PivotDecision: &doc.Decision, Artifacts: stage.Artifacts{PivotFile: true}, Reason: "pivot_resume"}
	d, err := stage.Advance(sr)
	if err != nil {
		return TickOutcome{}, err
	}
	patch := stage.ApplyPatch(m, d, "pivot_resume", time.Now().UTC())
	patch["status"] = d.NewStatus
	if _, err := writeManifestPatch(o.Paths, patch, m.Revision, "stage_advance:pivot_resume", auditLog); err != nil {
		return TickOutcome{}, err
	}
	return TickOutcome{StageBefore: model.StagePivot, StageAfter: d.To, StatusBefore: m.Status, StatusAfter: d.NewStatus, InputsDigest: d.InputsDigest}, nil
}

func (o *PostPivot) tickWave2(ctx context.Context, m *model.Manifest, auditLog *store.AppendLogger) (TickOutcome, error) {
	var doc model.PivotDocument
	if err := store.ReadJSON(o.Paths.Pivot, &doc); err != nil {
		return TickOutcome{}, err
	}

	gapIDs := doc.Decision.Wave2GapIDs
	if o.MaxWave2 > 0 && len(gapIDs) > o.MaxWave2 {
		gapIDs = gapIDs[:o.MaxWave2]
	}
	gapsByID := make(map[string]model.Gap, len(doc.Gaps))
	for _, g := range doc.Gaps {
		gapsByID[g.GapID] = g
	}

	if err := store.EnsureDir(o.Paths.Wave2Dir); err != nil {
		return TickOutcome{}, err
	}

	plan := model.WavePlan{Entries: make([]model.WavePlanEntry, 0, len(gapIDs))}
	var perspectives []model.Perspective
	var artifactPaths []string

	for _, gapID := range gapIDs {
		gap := gapsByID[gapID]
		perspectiveID := "wave2-" + gapID
		p := model.Perspective{
			ID: perspectiveID, Title: "Gap follow-up: " + gap.Text, Track: model.TrackIndependent,
			AgentType: "gap_follow_up",
			PromptContract: model.PromptContract{MustIncludeSections: []string{"## Findings"}},
		}
		perspectives = append(perspectives, p)

		prompt := fmt.Sprintf("%s\n\nFollow up on gap %s (%s): %s\n", gates.ScopeContractMarker, gap.GapID, gap.Priority, gap.Text)
		outputPath := o.Paths.Wave2Dir + "/" + perspectiveID + ".md"
		plan.Entries = append(plan.Entries, model.WavePlanEntry{PerspectiveID: perspectiveID, GapID: gapID, OutputMD: outputPath, PromptMD: prompt})

		res, err := callRunAgent(ctx, o.Driver, runagent.Request{
			RunID: m.RunID, Stage: string(model.StageWave2), RunRoot: o.Paths.RunRoot,
			PerspectiveID: perspectiveID, AgentType: p.AgentType, PromptMD: prompt, OutputMD: outputPath,
		})
		if err != nil {
			return TickOutcome{}, err
		}
		if res.Succeeded() {
			if err := store.WriteTextAtomic(outputPath, res.Markdown); err != nil {
				return TickOutcome{}, err
			}
			artifactPaths = append(artifactPaths, outputPath)
		}
	}

	if err := store.WriteJSONAtomic(o.Paths.Wave2Dir+"/wave2-plan.json", plan); err != nil {
		return TickOutcome{}, err
	}
	if len(perspectives) > 0 {
		if err := store.WriteJSONAtomic(o.Paths.Wave2Dir+"/wave2-perspectives.json", model.PerspectivesDocument{Perspectives: perspectives}); err != nil {
			return TickOutcome{}, err
		}
	}

	sr := stage.Request{Manifest: m, Gates: mustGates(o.Paths), Reason: "wave2_complete"}
	d, err := stage.Advance(sr)
	if err != nil {
		return TickOutcome{}, err
	}
	patch := stage.ApplyPatch(m, d, "wave2_complete", time.Now().UTC())
	patch["status"] = d.NewStatus
	if _, err := writeManifestPatch(o.Paths, patch, m.Revision, "stage_advance:wave2->citations", auditLog); err != nil {
		return TickOutcome{}, err
	}

	return TickOutcome{
		StageBefore: model.StageWave2, StageAfter: d.To,
		StatusBefore: m.Status, StatusAfter: d.NewStatus,
		InputsDigest: d.InputsDigest, Artifacts: artifactPaths,
	}, nil
}

func (o *PostPivot) tickCitations(ctx context.Context, m *model.Manifest, auditLog *store.AppendLogger) (TickOutcome, error) {
	urls := map[string]string{} // normalized -> original
	for _, dir := range []string{o.Paths.Wave1Dir, o.Paths.Wave2Dir} {
		for _, md := range readAllMarkdown(dir) {
			for _, raw := range citations.ExtractURLs(md) {
				normalized, err := citations.Normalize(raw)
				if err != nil {
					continue
				}
				urls[normalized] = raw
			}
		}
	}

	var records []model.Citation
	if m.Query.Sensitivity == model.SensitivityNoWeb {
		for normalized, original := range urls {
			records = append(records, citations.ValidateOffline(o.Fixtures, original, normalized))
		}
	} else {
		results, err := o.Ladder.ValidateBatch(ctx, urls, 8)
		if err != nil {
			return TickOutcome{}, err
		}
		for _, c := range results {
			records = append(records, c)
		}
	}

	if err := store.EnsureDir(o.Paths.CitationsDir); err != nil {
		return TickOutcome{}, err
	}
	citationsLog, err := store.NewAppendLogger(o.Paths.CitationsDir + "/citations.jsonl")
	if err != nil {
		return TickOutcome{}, err
	}
	defer citationsLog.Close()

	var urlMap model.URLMapDocument
	for _, c := range records {
		if err := citationsLog.AppendCanonical(c); err != nil {
			return TickOutcome{}, err
		}
		urlMap.Items = append(urlMap.Items, model.URLMapItem{URLOriginal: c.URLOriginal, NormalizedURL: c.NormalizedURL, CID: c.CID})
	}
	if err := store.WriteJSONAtomic(o.Paths.CitationsDir+"/url-map.json", urlMap); err != nil {
		return TickOutcome{}, err
	}
	if err := store.WriteTextAtomic(o.Paths.CitationsDir+"/citations.md", citations.RenderMarkdown(records)); err != nil {
		return TickOutcome{}, err
	}

	result := gates.EvaluateC(records)
	gatesDoc, err := writeGateUpdates(o.Paths, []gatesdoc.Update{{
		ID: model.GateC, Status: result.Status, Metrics: result.Metrics,
		Artifacts: result.Artifacts, Warnings: result.Warnings, Notes: result.Notes,
	}}, result.InputsDigest, mustGates(o.Paths).Revision, "gate_c_evaluate", auditLog)
	if err != nil {
		return TickOutcome{}, err
	}

	if result.Status != model.GatePass {
		return TickOutcome{StageBefore: model.StageCitations, StageAfter: model.StageCitations, Result: "blocked"}, nil
	}

	sr := stage.Request{Manifest: m, Gates: gatesDoc, Reason: "gate_c_pass"}
	d, err := stage.Advance(sr)
	if err != nil {
		return TickOutcome{}, err
	}
	patch := stage.ApplyPatch(m, d, "gate_c_pass", time.Now().UTC())
	patch["status"] = d.NewStatus
	if _, err := writeManifestPatch(o.Paths, patch, m.Revision, "stage_advance:citations->summaries", auditLog); err != nil {
		return TickOutcome{}, err
	}

	return TickOutcome{
		StageBefore: model.StageCitations, StageAfter: d.To,
		StatusBefore: m.Status, StatusAfter: d.NewStatus,
		InputsDigest: d.InputsDigest,
	}, nil
}

func mustGates(paths Paths) *model.GatesDocument {
	var g model.GatesDocument
	_ = store.ReadJSON(paths.Gates, &g)
	return &g
}
