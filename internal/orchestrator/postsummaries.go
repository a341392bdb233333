package orchestrator

import (
	"encoding/json"
	"strings"
	"time"

	"researchrun/internal/gates"
	"researchrun/internal/gatesdoc"
	"researchrun/internal/model"
	"researchrun/internal/stage"
	"researchrun/internal/store"
	"researchrun/internal/summary"
)

// PostSummaries drives the summaries -> synthesis -> review -> {synthesis |
// finalize} phase.
type PostSummaries struct {
	Paths Paths
}

// Tick runs one unit of post-summaries work for the manifest's current stage.
func (o *PostSummaries) Tick() (TickOutcome, error) {
	auditLog := openAuditLogger(o.Paths)
	if auditLog != nil {
		defer auditLog.Close()
	}

	m, err := loadManifest(o.Paths)
	if err != nil {
		return TickOutcome{}, err
	}

	switch m.Stage.Current {
	case model.StageSummaries:
		return o.tickSummaries(m, auditLog)
	case model.StageSynthesis:
		return o.tickSynthesis(m, auditLog)
	case model.StageReview:
		return o.tickReview(m, auditLog)
	default:
		return TickOutcome{StageBefore: m.Stage.Current, StageAfter: m.Stage.Current, Result: "noop"}, nil
	}
}

func (o *PostSummaries) tickSummaries(m *model.Manifest, auditLog *store.AppendLogger) (TickOutcome, error) {
	var perspectives model.PerspectivesDocument
	if err := store.ReadJSON(o.Paths.Perspectives, &perspectives); err != nil {
		return TickOutcome{}, err
	}
	var wave2Perspectives model.PerspectivesDocument
	_ = store.ReadJSON(o.Paths.Wave2Dir+"/wave2-perspectives.json", &wave2Perspectives)

	perspectiveIDs := make([]string, 0, len(perspectives.Perspectives)+len(wave2Perspectives.Perspectives))
	summaries := make(map[string]string, len(perspectiveIDs))

	for _, p := range perspectives.Perspectives {
		perspectiveIDs = append(perspectiveIDs, p.ID)
		if text, err := readRawFile(o.Paths.Wave1Dir + "/" + p.ID + ".md"); err == nil {
			summaries[p.ID] = text
		}
	}
	for _, p := range wave2Perspectives.Perspectives {
		perspectiveIDs = append(perspectiveIDs, p.ID)
		if text, err := readRawFile(o.Paths.Wave2Dir + "/" + p.ID + ".md"); err == nil {
			summaries[p.ID] = text
		}
	}

	pack, err := summary.BuildPack(perspectiveIDs, summaries, m.Limits)
	if err != nil {
		return TickOutcome{}, err
	}

	if err := store.EnsureDir(o.Paths.SummariesDir); err != nil {
		return TickOutcome{}, err
	}
	packPath := o.Paths.SummariesDir + "/summary-pack.json"
	if err := store.WriteJSONAtomic(packPath, pack); err != nil {
		return TickOutcome{}, err
	}

	result := gates.EvaluateD(pack, m.Limits)
	gatesDoc, err := writeGateUpdates(o.Paths, []gatesdoc.Update{{
		ID: model.GateD, Status: result.Status, Metrics: result.Metrics,
		Artifacts: result.Artifacts, Warnings: result.Warnings, Notes: result.Notes,
	}}, result.InputsDigest, mustGates(o.Paths).Revision, "gate_d_evaluate", auditLog)
	if err != nil {
		return TickOutcome{}, err
	}

	if result.Status != model.GatePass {
		return TickOutcome{StageBefore: model.StageSummaries, StageAfter: model.StageSummaries, Artifacts: []string{packPath}, Result: "blocked"}, nil
	}

	d, err := stage.Advance(stage.Request{Manifest: m, Gates: gatesDoc, Artifacts: stage.Artifacts{SummaryPackFile: true}, Reason: "gate_d_pass"})
	if err != nil {
		return TickOutcome{}, err
	}
	patch := stage.ApplyPatch(m, d, "gate_d_pass", time.Now().UTC())
	patch["status"] = d.NewStatus
	if _, err := writeManifestPatch(o.Paths, patch, m.Revision, "stage_advance:summaries->synthesis", auditLog); err != nil {
		return TickOutcome{}, err
	}

	return TickOutcome{
		StageBefore: model.StageSummaries, StageAfter: d.To,
		StatusBefore: m.Status, StatusAfter: d.NewStatus,
		InputsDigest: d.InputsDigest, Artifacts: []string{packPath},
	}, nil
}

func (o *PostSummaries) tickSynthesis(m *model.Manifest, auditLog *store.AppendLogger) (TickOutcome, error) {
	var pack model.SummaryPack
	if err := store.ReadJSON(o.Paths.SummariesDir+"/summary-pack.json", &pack); err != nil {
		return TickOutcome{}, err
	}
	var citationRecords []model.Citation
	_ = store.ReadJSONLines(o.Paths.CitationsDir+"/citations.jsonl", func(line []byte) error {
		var c model.Citation
		if err := json.Unmarshal(line, &c); err != nil {
			return err
		}
		citationRecords = append(citationRecords, c)
		return nil
	})

	synthesisMD := summary.WriteSynthesis(&pack, citationRecords)

	if err := store.EnsureDir(o.Paths.SynthesisDir); err != nil {
		return TickOutcome{}, err
	}
	draftPath := o.Paths.SynthesisDir + "/draft-synthesis.md"
	finalPath := o.Paths.SynthesisDir + "/final-synthesis.md"
	if err := store.WriteTextAtomic(draftPath, synthesisMD); err != nil {
		return TickOutcome{}, err
	}
	if err := store.WriteTextAtomic(finalPath, synthesisMD); err != nil {
		return TickOutcome{}, err
	}

	d, err := stage.Advance(stage.Request{Manifest: m, Gates: mustGates(o.Paths), Artifacts: stage.Artifacts{SynthesisFile: true}, Reason: "synthesis_written"})
	if err != nil {
		return TickOutcome{}, err
	}
	patch := stage.ApplyPatch(m, d, "synthesis_written", time.Now().UTC())
	patch["status"] = d.NewStatus
	if _, err := writeManifestPatch(o.Paths, patch, m.Revision, "stage_advance:synthesis->review", auditLog); err != nil {
		return TickOutcome{}, err
	}

	return TickOutcome{
		StageBefore: model.StageSynthesis, StageAfter: d.To,
		StatusBefore: m.Status, StatusAfter: d.NewStatus,
		InputsDigest: d.InputsDigest, Artifacts: []string{draftPath, finalPath},
	}, nil
}

func (o *PostSummaries) tickReview(m *model.Manifest, auditLog *store.AppendLogger) (TickOutcome, error) {
	synthesisMD, err := readRawFile(o.Paths.SynthesisDir + "/final-synthesis.md")
	if err != nil {
		return TickOutcome{}, err
	}
	var citationRecords []model.Citation
	_ = store.ReadJSONLines(o.Paths.CitationsDir+"/citations.jsonl", func(line []byte) error {
		var c model.Citation
		if err := json.Unmarshal(line, &c); err != nil {
			return err
		}
		citationRecords = append(citationRecords, c)
		return nil
	})

	uncited := summary.UncitedNumericClaims(synthesisMD)
	utilization := summary.CitationUtilization(synthesisMD, citationRecords)
	duplicateRate := summary.DuplicateCitationRate(synthesisMD)

	var missingHeadings []string
	for _, h := range gates.RequiredSynthesisHeadings {
		if !containsHeading(synthesisMD, h) {
			missingHeadings = append(missingHeadings, h)
		}
	}

	gateE := gates.EvaluateE(synthesisMD, uncited, utilization, duplicateRate)
	gatesDoc, err := writeGateUpdates(o.Paths, []gatesdoc.Update{{
		ID: model.GateE, Status: gateE.Status, Metrics: gateE.Metrics,
		Artifacts: gateE.Artifacts, Warnings: gateE.Warnings, Notes: gateE.Notes,
	}}, gateE.InputsDigest, mustGates(o.Paths).Revision, "gate_e_evaluate", auditLog)
	if err != nil {
		return TickOutcome{}, err
	}

	currentIteration := summary.CurrentIteration(m.Stage.History)
	bundle := summary.RunReview(gateE.Status, uncited, missingHeadings, currentIteration)

	if err := store.EnsureDir(o.Paths.ReviewDir); err != nil {
		return TickOutcome{}, err
	}
	bundlePath := o.Paths.ReviewDir + "/review-bundle.json"
	if err := store.WriteJSONAtomic(bundlePath, bundle); err != nil {
		return TickOutcome{}, err
	}

	directives := summary.DecideRevision(bundle, gateE.Status, m.Limits.MaxReviewIterations)
	directivesPath := o.Paths.ReviewDir + "/revision-directives.json"
	if err := store.WriteJSONAtomic(directivesPath, directives); err != nil {
		return TickOutcome{}, err
	}

	if directives.Action == model.RevisionEscalate {
		return TickOutcome{
			StageBefore: model.StageReview, StageAfter: model.StageReview,
			Artifacts: []string{bundlePath, directivesPath}, Result: "blocked",
		}, nil
	}

	d, err := stage.Advance(stage.Request{Manifest: m, Gates: gatesDoc, RequestedNext: directives.Next, ReviewBundle: bundle, Reason: "review_" + string(directives.Action)})
	if err != nil {
		return TickOutcome{}, err
	}
	patch := stage.ApplyPatch(m, d, "review_"+string(directives.Action), time.Now().UTC())
	patch["status"] = d.NewStatus
	if _, err := writeManifestPatch(o.Paths, patch, m.Revision, "stage_advance:review->"+string(d.To), auditLog); err != nil {
		return TickOutcome{}, err
	}

	return TickOutcome{
		StageBefore: model.StageReview, StageAfter: d.To,
		StatusBefore: m.Status, StatusAfter: d.NewStatus,
		InputsDigest: d.InputsDigest, Artifacts: []string{bundlePath, directivesPath},
	}, nil
}

func containsHeading(markdown, heading string) bool {
	return strings.Contains(markdown, heading)
}
