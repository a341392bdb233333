package gates

import (
	"researchrun/internal/model"
)

// EvaluateB checks wave-1 output contracts: the review report is clean (no
// sidecar carries missing_sections) and no pending retry directives target
// gate B (spec.md §4.5).
func EvaluateB(sidecars []model.WaveOutputSidecar, retryDirectives *model.RetryDirectivesDocument) Result {
	var warnings []string

	for _, s := range sidecars {
		if len(s.MissingSections) > 0 {
			warnings = append(warnings, "perspective "+s.PerspectiveID+" is missing sections: "+joinStrings(s.MissingSections))
		}
	}

	if retryDirectives != nil {
		for _, d := range retryDirectives.Directives {
			if d.GateID == model.GateB {
				warnings = append(warnings, "pending retry directive for perspective "+d.PerspectiveID+": "+d.ChangeNote)
			}
		}
	}

	metrics := map[string]interface{}{
		"wave1_output_count": len(sidecars),
	}

	return Result{
		Status:       passUnlessWarnings(warnings),
		Metrics:      metrics,
		Artifacts:    []string{"wave-1"},
		Warnings:     warnings,
		InputsDigest: digestOf(map[string]interface{}{"sidecars": sidecars, "retry_directives": retryDirectives}),
	}
}

func joinStrings(ss []string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += ", "
		}
		out += s
	}
	return out
}
