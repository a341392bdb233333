// Package pivot implements the pivot decider (C8): gap parsing from wave-1
// "Gaps" sections and the ordered rule-matching engine that decides whether
// a second research wave is required (spec.md §4.6). Gap facts are
// asserted into a small embedded Mangle program (gap/3, by_priority/2),
// grounded on the AddFact/Query shape in the pack's Mangle Go-integration
// boilerplate — the first-match-wins rule selection itself runs in Go,
// since ordered alternation isn't naturally expressed in plain Datalog.
package pivot

import (
	"sort"

	"researchrun/internal/model"
)

// SortGaps orders gaps by (priority_rank, gap_id), the canonical order
// spec.md §4.6 requires before rule evaluation.
func SortGaps(gaps []model.Gap) []model.Gap {
	sorted := make([]model.Gap, len(gaps))
	copy(sorted, gaps)
	sort.Slice(sorted, func(i, j int) bool {
		ri, rj := model.PriorityRank(sorted[i].Priority), model.PriorityRank(sorted[j].Priority)
		if ri != rj {
			return ri < rj
		}
		return sorted[i].GapID < sorted[j].GapID
	})
	return sorted
}

// Decide applies the ordered pivot rules to gaps (already deduplicated by
// the caller across explicit + parsed sources) and returns the decision.
func Decide(gaps []model.Gap) (model.PivotDecisionOutcome, error) {
	sorted := SortGaps(gaps)

	eng, err := newGapFactsEngine()
	if err != nil {
		return model.PivotDecisionOutcome{}, err
	}
	for _, g := range sorted {
		if err := eng.assertGap(g.GapID, string(g.Priority), g.Tags); err != nil {
			return model.PivotDecisionOutcome{}, err
		}
	}

	p0IDs, err := eng.gapIDsWithPriority("P0")
	if err != nil {
		return model.PivotDecisionOutcome{}, err
	}
	p1IDs, err := eng.gapIDsWithPriority("P1")
	if err != nil {
		return model.PivotDecisionOutcome{}, err
	}
	p2IDs, err := eng.gapIDsWithPriority("P2")
	if err != nil {
		return model.PivotDecisionOutcome{}, err
	}

	p0Count, p1Count, p2Count := len(p0IDs), len(p1IDs), len(p2IDs)
	totalGaps := len(sorted)

	metrics := map[string]interface{}{
		"p0_count":   p0Count,
		"p1_count":   p1Count,
		"p2_count":   p2Count,
		"total_gaps": totalGaps,
	}

	var outcome model.PivotDecisionOutcome
	switch {
	case p0Count >= 1:
		outcome = model.PivotDecisionOutcome{Wave2Required: true, RuleHit: "Wave2Required.P0",
			Explanation: "at least one P0 gap was identified"}
	case p1Count >= 2:
		outcome = model.PivotDecisionOutcome{Wave2Required: true, RuleHit: "Wave2Required.P1",
			Explanation: "two or more P1 gaps were identified"}
	case totalGaps >= 4 && (p1Count+p2Count) >= 3:
		outcome = model.PivotDecisionOutcome{Wave2Required: true, RuleHit: "Wave2Required.Volume",
			Explanation: "four or more total gaps with at least three P1/P2 gaps"}
	default:
		outcome = model.PivotDecisionOutcome{Wave2Required: false, RuleHit: "Wave2Skip.NoGaps",
			Explanation: "no gap threshold was met"}
	}
	outcome.Metrics = metrics

	if outcome.Wave2Required {
		outcome.Wave2GapIDs = wave2GapIDs(sorted, p0IDs, p1IDs)
	}

	return outcome, nil
}

// wave2GapIDs is the sorted union of P0 and P1 gap_ids, falling back to the
// first three sorted gaps if that union is empty (spec.md §4.6).
func wave2GapIDs(sorted []model.Gap, p0IDs, p1IDs []string) []string {
	set := map[string]bool{}
	for _, id := range p0IDs {
		set[id] = true
	}
	for _, id := range p1IDs {
		set[id] = true
	}

	var ids []string
	for _, g := range sorted {
		if set[g.GapID] {
			ids = append(ids, g.GapID)
		}
	}
	if len(ids) > 0 {
		return ids
	}

	limit := 3
	if len(sorted) < limit {
		limit = len(sorted)
	}
	for _, g := range sorted[:limit] {
		ids = append(ids, g.GapID)
	}
	return ids
}
