package summary

import (
	"fmt"

	"researchrun/internal/model"
)

// RunReview aggregates the gate-E evaluation and the synthesis's own
// content checks into a ReviewBundle. Findings are hard reasons a
// CHANGES_REQUIRED decision was reached; an empty Findings slice with
// gateEStatus=pass always yields PASS.
func RunReview(gateEStatus model.GateStatus, uncitedClaims int, missingHeadings []string, currentIteration int) *model.ReviewBundle {
	var findings []string
	if uncitedClaims > 0 {
		findings = append(findings, fmt.Sprintf("%d numeric claim(s) lack a citation reference", uncitedClaims))
	}
	for _, h := range missingHeadings {
		findings = append(findings, "missing required heading: "+h)
	}
	if gateEStatus == model.GateFail {
		findings = append(findings, "gate E failed")
	}

	decision := model.ReviewPass
	if len(findings) > 0 {
		decision = model.ReviewChangesRequired
	}

	return &model.ReviewBundle{
		Decision:         decision,
		Findings:         findings,
		CurrentIteration: currentIteration,
	}
}

// CurrentIteration counts review→synthesis transitions already recorded
// in stage.history, the review loop's iteration counter (spec.md §4.8).
func CurrentIteration(history []model.StageHistoryEntry) int {
	count := 0
	for _, h := range history {
		if h.From == model.StageReview && h.To == model.StageSynthesis {
			count++
		}
	}
	return count
}

// DecideRevision applies the three-branch revision-control decision: a
// passing review with Gate E passing advances to finalize; exhausting the
// review iteration cap escalates without leaving review; otherwise the
// run revises by looping back to synthesis (spec.md §4.8, §6.6).
func DecideRevision(bundle *model.ReviewBundle, gateEStatus model.GateStatus, maxReviewIterations int) *model.RevisionDirectives {
	if bundle.Decision == model.ReviewPass && gateEStatus == model.GatePass {
		return &model.RevisionDirectives{
			Action:           model.RevisionAdvance,
			Next:             model.StageFinalize,
			Reason:           "review passed and gate E passed",
			CurrentIteration: bundle.CurrentIteration,
		}
	}
	if bundle.CurrentIteration >= maxReviewIterations {
		return &model.RevisionDirectives{
			Action:           model.RevisionEscalate,
			Next:             model.StageReview,
			Reason:           "max_review_iterations reached without a passing review",
			CurrentIteration: bundle.CurrentIteration,
		}
	}
	return &model.RevisionDirectives{
		Action:           model.RevisionRevise,
		Next:             model.StageSynthesis,
		Reason:           "review requested changes",
		CurrentIteration: bundle.CurrentIteration,
	}
}
