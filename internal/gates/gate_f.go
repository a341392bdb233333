package gates

import "researchrun/internal/model"

// EvaluateF is the final bundle/fallback hygiene gate. Per the Open
// Questions decision recorded for this system, spec.md leaves no concrete
// rule set for F: it stays not_run unless a final bundle artifact exists
// and fallback_used is recorded, in which case it checks only
// bundle-presence hygiene (non-empty synthesis file, non-empty citations
// stream).
func EvaluateF(finalBundlePresent, fallbackUsed bool, synthesisNonEmpty, citationsStreamNonEmpty bool) Result {
	if !finalBundlePresent || !fallbackUsed {
		return Result{
			Status:       model.GateNotRun,
			Metrics:      map[string]interface{}{},
			Artifacts:    []string{},
			Warnings:     []string{},
			InputsDigest: digestOf(map[string]interface{}{"final_bundle_present": finalBundlePresent, "fallback_used": fallbackUsed}),
		}
	}

	var warnings []string
	if !synthesisNonEmpty {
		warnings = append(warnings, "final synthesis file is empty")
	}
	if !citationsStreamNonEmpty {
		warnings = append(warnings, "citations stream is empty")
	}

	return Result{
		Status:    passUnlessWarnings(warnings),
		Metrics:   map[string]interface{}{"fallback_used": fallbackUsed},
		Artifacts: []string{"synthesis/final-synthesis.md", "citations/citations.jsonl"},
		Warnings:  warnings,
		InputsDigest: digestOf(map[string]interface{}{
			"final_bundle_present": finalBundlePresent,
			"fallback_used":        fallbackUsed,
		}),
	}
}
