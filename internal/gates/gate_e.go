package gates

import (
	"fmt"
	"strings"

	"researchrun/internal/model"
)

// RequiredSynthesisHeadings are the markdown headings the final synthesis
// must contain (spec.md §4.5).
var RequiredSynthesisHeadings = []string{"## Findings", "## Citations", "## Open Questions"}

// EvaluateE checks the synthesis markdown contract and citation
// utilization: uncited_numeric_claims=0 and all required headings are hard
// failures; LOW_CITATION_UTILIZATION and HIGH_DUPLICATE_CITATION_RATE are
// soft, producing warnings without failing the gate (spec.md §4.5).
func EvaluateE(synthesisMD string, uncitedNumericClaims int, citationUtilization, duplicateCitationRate float64) Result {
	var hardIssues, softWarnings []string

	if uncitedNumericClaims > 0 {
		hardIssues = append(hardIssues, fmt.Sprintf("%d numeric claims have no citation", uncitedNumericClaims))
	}
	for _, heading := range RequiredSynthesisHeadings {
		if !strings.Contains(synthesisMD, heading) {
			hardIssues = append(hardIssues, "synthesis is missing heading "+heading)
		}
	}

	if citationUtilization < 0.6 {
		softWarnings = append(softWarnings, fmt.Sprintf("LOW_CITATION_UTILIZATION: %.2f", citationUtilization))
	}
	if duplicateCitationRate > 0.2 {
		softWarnings = append(softWarnings, fmt.Sprintf("HIGH_DUPLICATE_CITATION_RATE: %.2f", duplicateCitationRate))
	}

	status := model.GatePass
	switch {
	case len(hardIssues) > 0:
		status = model.GateFail
	case len(softWarnings) > 0:
		status = model.GateWarn
	}

	metrics := map[string]interface{}{
		"uncited_numeric_claims": uncitedNumericClaims,
		"citation_utilization":   citationUtilization,
		"duplicate_citation_rate": duplicateCitationRate,
	}

	return Result{
		Status:       status,
		Metrics:      metrics,
		Artifacts:    []string{"synthesis/final-synthesis.md"},
		Warnings:     append(hardIssues, softWarnings...),
		InputsDigest: digestOf(map[string]interface{}{"synthesis_md": synthesisMD, "uncited_numeric_claims": uncitedNumericClaims}),
	}
}
