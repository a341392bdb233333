package gates

import (
	"fmt"

	"researchrun/internal/model"
)

// EvaluateD checks summary pack completeness and boundedness:
// summary_count_ratio >= 0.9, per-entry and total size within limits, and no
// missing summaries (spec.md §4.5).
func EvaluateD(pack *model.SummaryPack, limits model.Limits) Result {
	var warnings []string

	ratio := rate(len(pack.Entries), pack.ExpectedCount)
	if ratio < 0.9 {
		warnings = append(warnings, fmt.Sprintf("summary_count_ratio %.2f is below 0.9", ratio))
	}
	if len(pack.Entries) < pack.ExpectedCount {
		warnings = append(warnings, fmt.Sprintf("%d summaries are missing", pack.ExpectedCount-len(pack.Entries)))
	}
	for _, e := range pack.Entries {
		if limits.MaxSummaryKB > 0 && e.SizeKB > float64(limits.MaxSummaryKB) {
			warnings = append(warnings, fmt.Sprintf("perspective %s summary size_kb %.1f exceeds max_summary_kb %d", e.PerspectiveID, e.SizeKB, limits.MaxSummaryKB))
		}
	}
	if limits.MaxTotalSummaryKB > 0 && pack.TotalSizeKB > float64(limits.MaxTotalSummaryKB) {
		warnings = append(warnings, fmt.Sprintf("total_summary_pack_kb %.1f exceeds max_total_summary_kb %d", pack.TotalSizeKB, limits.MaxTotalSummaryKB))
	}

	metrics := map[string]interface{}{
		"summary_count_ratio":   ratio,
		"total_summary_pack_kb": pack.TotalSizeKB,
		"entry_count":           len(pack.Entries),
		"expected_count":        pack.ExpectedCount,
	}

	return Result{
		Status:       passUnlessWarnings(warnings),
		Metrics:      metrics,
		Artifacts:    []string{"summaries/summary-pack.json"},
		Warnings:     warnings,
		InputsDigest: digestOf(pack),
	}
}
