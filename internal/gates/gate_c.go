package gates

import (
	"fmt"

	"researchrun/internal/model"
)

// EvaluateC checks URL extraction vs. validated citations: validated_url_rate
// >= 0.9, invalid_url_rate <= 0.1, and zero uncategorized URLs (spec.md
// §4.5).
func EvaluateC(citations []model.Citation) Result {
	var warnings []string
	total := len(citations)

	var valid, invalid, uncategorized int
	for _, c := range citations {
		switch c.Status {
		case model.CitationValid:
			valid++
		case model.CitationInvalid:
			invalid++
		case model.CitationPaywalled, model.CitationBlocked, model.CitationMismatch:
			// categorized, neither valid nor invalid for rate purposes
		default:
			uncategorized++
		}
	}

	validRate := rate(valid, total)
	invalidRate := 0.0
	if total > 0 {
		invalidRate = rate(invalid, total)
	}

	if validRate < 0.9 {
		warnings = append(warnings, fmt.Sprintf("validated_url_rate %.2f is below 0.9", validRate))
	}
	if invalidRate > 0.1 {
		warnings = append(warnings, fmt.Sprintf("invalid_url_rate %.2f exceeds 0.1", invalidRate))
	}
	if uncategorized > 0 {
		warnings = append(warnings, fmt.Sprintf("%d citations are uncategorized", uncategorized))
	}

	metrics := map[string]interface{}{
		"total_citations":      total,
		"validated_url_rate":   validRate,
		"invalid_url_rate":     invalidRate,
		"uncategorized_count":  uncategorized,
	}

	return Result{
		Status:       passUnlessWarnings(warnings),
		Metrics:      metrics,
		Artifacts:    []string{"citations/citations.jsonl", "citations/url-map.json"},
		Warnings:     warnings,
		InputsDigest: digestOf(citations),
	}
}

func rate(n, total int) float64 {
	if total == 0 {
		return 1
	}
	return float64(n) / float64(total)
}
