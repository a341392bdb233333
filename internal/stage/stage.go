// Package stage implements stage_advance, the run's single state-transition
// operation (spec.md §4.8). Its decision-record shape — evaluate
// prerequisites, compose a digest over the decision inputs, then either
// reject with a typed error or return a transition to apply — is grounded
// on codenerd/internal/campaign's Phase/Checkpoint pattern of gating a
// lifecycle step behind a pure check before mutating state.
package stage

import (
	"time"

	"researchrun/internal/codec"
	"researchrun/internal/model"
	"researchrun/internal/toolsurface"
)

// allowedNext lists every stage each stage may transition to. Stages with
// more than one entry are ambiguous and require either requested_next or
// a disambiguating artifact.
var allowedNext = map[model.Stage][]model.Stage{
	model.StageInit:       {model.StageWave1},
	model.StageWave1:      {model.StagePivot},
	model.StagePivot:      {model.StageWave2, model.StageCitations},
	model.StageWave2:      {model.StageCitations},
	model.StageCitations:  {model.StageSummaries},
	model.StageSummaries:  {model.StageSynthesis},
	model.StageSynthesis:  {model.StageReview},
	model.StageReview:     {model.StageSynthesis, model.StageFinalize},
}

// Artifacts names the artifact-presence flags stage_advance checks,
// supplied by the caller (the orchestrator knows the run root; this
// package stays filesystem-free).
type Artifacts struct {
	PivotFile       bool
	Wave2PlanFile   bool
	SummaryPackFile bool
	SynthesisFile   bool
}

// Request carries everything stage_advance needs to decide a transition.
type Request struct {
	Manifest       *model.Manifest
	Gates          *model.GatesDocument
	RequestedNext  model.Stage // empty if the caller leaves disambiguation to artifacts
	PivotDecision  *model.PivotDecisionOutcome
	ReviewBundle   *model.ReviewBundle
	Artifacts      Artifacts
	Reason         string
}

// Decision is the successful result of stage_advance: the transition to
// apply, ready to hand to the manifest package as a patch.
type Decision struct {
	From         model.Stage
	To           model.Stage
	InputsDigest string
	NewStatus    model.RunStatus
	GatesRevision int
}

// Advance evaluates the five-step stage_advance algorithm and returns the
// transition to apply, or a *toolsurface.ToolError on failure:
// GATE_BLOCKED or MISSING_ARTIFACT for an unmet prerequisite or a missing
// disambiguating artifact, REQUESTED_NEXT_NOT_ALLOWED for a requested_next
// outside the allowed set, and INVALID_STATE for a stage with no allowed
// next stage.
func Advance(req Request) (*Decision, error) {
	from := req.Manifest.Stage.Current
	candidates, known := allowedNext[from]
	if !known || len(candidates) == 0 {
		return nil, toolsurface.NewError(toolsurface.CodeInvalidState, "stage "+string(from)+" has no allowed next stage", nil)
	}

	to, err := resolveNext(from, candidates, req)
	if err != nil {
		return nil, err
	}

	if err := checkPrerequisites(from, to, req); err != nil {
		return nil, err
	}

	digestInput := map[string]interface{}{
		"from":           from,
		"to":             to,
		"requested_next": req.RequestedNext,
		"manifest_revision": req.Manifest.Revision,
		"gates_revision":    req.Gates.Revision,
		"gate_statuses":     gateStatusSnapshot(req.Gates),
	}
	digest, err := codec.Digest(digestInput)
	if err != nil {
		return nil, toolsurface.NewError(toolsurface.CodeInvalidState, "digest stage transition: "+err.Error(), nil)
	}

	status := model.StatusRunning
	if to == model.StageFinalize {
		status = model.StatusCompleted
	}

	return &Decision{From: from, To: to, InputsDigest: digest, NewStatus: status, GatesRevision: req.Gates.Revision}, nil
}

func resolveNext(from model.Stage, candidates []model.Stage, req Request) (model.Stage, error) {
	if req.RequestedNext != "" {
		for _, c := range candidates {
			if c == req.RequestedNext {
				return c, nil
			}
		}
		return "", toolsurface.NewError(toolsurface.CodeRequestedNextNotAllow,
			"requested_next "+string(req.RequestedNext)+" is not allowed from "+string(from), map[string]interface{}{
				"from":      from,
				"allowed":   candidates,
				"requested": req.RequestedNext,
			})
	}

	if len(candidates) == 1 {
		return candidates[0], nil
	}

	switch from {
	case model.StagePivot:
		if req.PivotDecision == nil {
			return "", toolsurface.NewError(toolsurface.CodeMissingArtifact, "pivot decision required to disambiguate pivot's next stage", nil)
		}
		if req.PivotDecision.Wave2Required {
			return model.StageWave2, nil
		}
		return model.StageCitations, nil
	case model.StageReview:
		if req.ReviewBundle == nil {
			return "", toolsurface.NewError(toolsurface.CodeMissingArtifact, "review bundle required to disambiguate review's next stage", nil)
		}
		if req.ReviewBundle.Decision == model.ReviewPass {
			return model.StageFinalize, nil
		}
		return model.StageSynthesis, nil
	default:
		return "", toolsurface.NewError(toolsurface.CodeInvalidState, "stage "+string(from)+" is ambiguous with no disambiguation rule", nil)
	}
}

func checkPrerequisites(from, to model.Stage, req Request) error {
	switch {
	case from == model.StageInit && to == model.StageWave1:
		return requireGate(req.Gates, model.GateA)
	case from == model.StageWave1 && to == model.StagePivot:
		return requireGate(req.Gates, model.GateB)
	case from == model.StagePivot && to == model.StageWave2:
		return requireArtifact(req.Artifacts.PivotFile, "pivot.json")
	case from == model.StagePivot && to == model.StageCitations:
		return requireArtifact(req.Artifacts.PivotFile, "pivot.json")
	case from == model.StageWave2 && to == model.StageCitations:
		return requireArtifact(req.Artifacts.Wave2PlanFile, "wave2-plan.json")
	case from == model.StageCitations && to == model.StageSummaries:
		return requireGate(req.Gates, model.GateC)
	case from == model.StageSummaries && to == model.StageSynthesis:
		if err := requireGate(req.Gates, model.GateD); err != nil {
			return err
		}
		return requireArtifact(req.Artifacts.SummaryPackFile, "summary_pack_file")
	case from == model.StageSynthesis && to == model.StageReview:
		return requireArtifact(req.Artifacts.SynthesisFile, "draft-synthesis.md")
	case from == model.StageReview && to == model.StageFinalize:
		return requireGate(req.Gates, model.GateE)
	default:
		return nil
	}
}

func requireGate(gates *model.GatesDocument, id model.GateID) error {
	gate, ok := gates.Gates[id]
	if !ok || gate.Status != model.GatePass {
		status := model.GateNotRun
		if ok {
			status = gate.Status
		}
		return toolsurface.NewError(toolsurface.CodeGateBlocked, "gate "+string(id)+" has not passed", map[string]interface{}{
			"gate_id": id,
			"status":  status,
		})
	}
	return nil
}

func requireArtifact(present bool, name string) error {
	if !present {
		return toolsurface.NewError(toolsurface.CodeMissingArtifact, name+" is required for this transition", map[string]interface{}{
			"artifact": name,
		})
	}
	return nil
}

func gateStatusSnapshot(gates *model.GatesDocument) map[model.GateID]model.GateStatus {
	snapshot := make(map[model.GateID]model.GateStatus, len(gates.Gates))
	for id, g := range gates.Gates {
		snapshot[id] = g.Status
	}
	return snapshot
}

// ApplyPatch builds the manifest merge-patch for a Decision. RFC 7396
// replaces arrays wholesale rather than appending, so the new
// stage.history array is built here from the manifest's current history
// plus the new entry (spec.md §4.8 step 5).
func ApplyPatch(manifest *model.Manifest, d *Decision, reason string, now time.Time) map[string]interface{} {
	history := append(append([]model.StageHistoryEntry{}, manifest.Stage.History...), model.StageHistoryEntry{
		From:          d.From,
		To:            d.To,
		TS:            now,
		Reason:        reason,
		InputsDigest:  d.InputsDigest,
		GatesRevision: d.GatesRevision,
	})

	return map[string]interface{}{
		"status": d.NewStatus,
		"stage": map[string]interface{}{
			"current":    d.To,
			"started_at": now,
			"history":    history,
		},
	}
}
