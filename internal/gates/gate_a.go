package gates

import (
	"fmt"
	"strings"

	"researchrun/internal/model"
)

// ScopeContractMarker is the heading every wave-1 prompt must carry so a
// perspective's agent is forced to acknowledge the operator's scope.
const ScopeContractMarker = "## Scope Contract"

// EvaluateA checks scope.v1 + perspectives.v1 + wave1-plan alignment: every
// perspective has a wave-1 plan entry, every plan entry's prompt carries the
// scope-contract marker, and the perspective count respects
// limits.max_wave1_agents (spec.md §4.5).
func EvaluateA(scope *model.ScopeDocument, perspectives *model.PerspectivesDocument, plan *model.WavePlan, prompts map[string]string, maxWave1Agents int) Result {
	var warnings []string

	if scope == nil || strings.TrimSpace(scope.Objective) == "" {
		warnings = append(warnings, "scope.objective must not be empty")
	}

	if len(perspectives.Perspectives) == 0 {
		warnings = append(warnings, "perspectives must not be empty")
	}
	if maxWave1Agents > 0 && len(perspectives.Perspectives) > maxWave1Agents {
		warnings = append(warnings, fmt.Sprintf("perspective count %d exceeds limits.max_wave1_agents %d", len(perspectives.Perspectives), maxWave1Agents))
	}

	planned := map[string]bool{}
	for _, e := range plan.Entries {
		planned[e.PerspectiveID] = true
	}
	for _, p := range perspectives.Perspectives {
		if !planned[p.ID] {
			warnings = append(warnings, "perspective "+p.ID+" has no wave-1 plan entry")
			continue
		}
		prompt, ok := prompts[p.ID]
		if !ok || !strings.Contains(prompt, ScopeContractMarker) {
			warnings = append(warnings, "perspective "+p.ID+"'s prompt is missing "+ScopeContractMarker)
		}
	}

	metrics := map[string]interface{}{
		"perspective_count": len(perspectives.Perspectives),
		"plan_entry_count":  len(plan.Entries),
	}
	digested := map[string]interface{}{"scope": scope, "perspectives": perspectives, "plan": plan}

	return Result{
		Status:       passUnlessWarnings(warnings),
		Metrics:      metrics,
		Artifacts:    []string{"operator/scope.json", "perspectives.json", "wave-1/wave1-plan.json"},
		Warnings:     warnings,
		InputsDigest: digestOf(digested),
	}
}
