// Package gates implements the six deterministic gate evaluators (A-F),
// each a pure function of artifact content returning {status, metrics,
// artifacts, warnings, notes} plus an inputs_digest, per spec.md §4.5. The
// pure-dispatch-by-enum shape is grounded on campaign.CheckpointRunner.Run;
// the staged sequential checks within each evaluator follow
// legator/internal/engine.Engine.Evaluate.
package gates

import (
	"researchrun/internal/codec"
	"researchrun/internal/model"
)

// Result is one gate evaluation's outcome, ready to become a gatesdoc.Update.
type Result struct {
	Status       model.GateStatus
	Metrics      map[string]interface{}
	Artifacts    []string
	Warnings     []string
	Notes        string
	InputsDigest string
}

func digestOf(v interface{}) string {
	d, err := codec.Digest(v)
	if err != nil {
		return ""
	}
	return d
}

func passUnlessWarnings(warnings []string) model.GateStatus {
	if len(warnings) > 0 {
		return model.GateFail
	}
	return model.GatePass
}
