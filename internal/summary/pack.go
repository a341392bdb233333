// Package summary assembles bounded per-perspective summaries into a
// summary pack, writes the cited synthesis draft, and aggregates reviewer
// findings into a review bundle. The quota-then-recalculate-total
// boundedness check is grounded on
// marcus-qen-legator/internal/state/manager.go's Set (check size limits
// before admitting an entry, then recompute the aggregate).
package summary

import (
	"sort"

	"researchrun/internal/codec"
	"researchrun/internal/model"
	"researchrun/internal/toolsurface"
)

const bytesPerKB = 1024.0

// BuildPack assembles a SummaryPack from one summary markdown per
// perspective. A perspective with an empty summaryMD is counted as
// missing rather than rejected outright, matching Gate D's
// summary_count_ratio check (spec.md §4.6).
func BuildPack(perspectiveIDs []string, summaries map[string]string, limits model.Limits) (*model.SummaryPack, error) {
	sorted := make([]string, len(perspectiveIDs))
	copy(sorted, perspectiveIDs)
	sort.Strings(sorted)

	pack := &model.SummaryPack{
		ExpectedCount: len(sorted),
	}

	for _, id := range sorted {
		md := summaries[id]
		if md == "" {
			continue
		}
		sizeKB := float64(len(md)) / bytesPerKB
		if limits.MaxSummaryKB > 0 && sizeKB > float64(limits.MaxSummaryKB) {
			return nil, toolsurface.NewError(toolsurface.CodeInvalidArgs,
				"summary for "+id+" exceeds max_summary_kb", map[string]interface{}{
					"perspective_id": id,
					"size_kb":        sizeKB,
					"max_summary_kb": limits.MaxSummaryKB,
				})
		}
		pack.Entries = append(pack.Entries, model.SummaryEntry{
			PerspectiveID: id,
			SummaryMD:     md,
			SizeKB:        sizeKB,
		})
		pack.TotalSizeKB += sizeKB
	}

	if limits.MaxTotalSummaryKB > 0 && pack.TotalSizeKB > float64(limits.MaxTotalSummaryKB) {
		return nil, toolsurface.NewError(toolsurface.CodeInvalidArgs,
			"summary pack exceeds max_total_summary_kb", map[string]interface{}{
				"total_size_kb":       pack.TotalSizeKB,
				"max_total_summary_kb": limits.MaxTotalSummaryKB,
			})
	}

	digest, err := codec.Digest(pack.Entries)
	if err != nil {
		return nil, toolsurface.NewError(toolsurface.CodeInvalidState, "digest summary entries: "+err.Error(), nil)
	}
	pack.InputsDigest = digest
	return pack, nil
}

// CountRatio returns the fraction of expected summaries actually present,
// used by Gate D's summary_count_ratio check.
func CountRatio(pack *model.SummaryPack) float64 {
	if pack.ExpectedCount == 0 {
		return 1
	}
	return float64(len(pack.Entries)) / float64(pack.ExpectedCount)
}

// MissingPerspectives returns the perspective IDs that were expected but
// never contributed a summary entry.
func MissingPerspectives(perspectiveIDs []string, pack *model.SummaryPack) []string {
	present := make(map[string]bool, len(pack.Entries))
	for _, e := range pack.Entries {
		present[e.PerspectiveID] = true
	}
	var missing []string
	for _, id := range perspectiveIDs {
		if !present[id] {
			missing = append(missing, id)
		}
	}
	sort.Strings(missing)
	return missing
}
