package pivot_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"researchrun/internal/model"
	"researchrun/internal/pivot"
)

const sampleOutput = `# Findings

Some findings here.

## Gaps

- (P0) Missing data on #pricing for enterprise tier
- (P2) Unclear rollout timeline
- not a gap line
`

func TestParseGapsSectionExtractsShapedLines(t *testing.T) {
	gaps, err := pivot.ParseGapsSection("p1", sampleOutput)
	require.NoError(t, err)
	require.Len(t, gaps, 2)
	require.Equal(t, "gap_p1_1", gaps[0].GapID)
	require.Equal(t, model.P0, gaps[0].Priority)
	require.Equal(t, []string{"pricing"}, gaps[0].Tags)
	require.Equal(t, "gap_p1_2", gaps[1].GapID)
	require.Equal(t, model.P2, gaps[1].Priority)
}

func TestParseGapsSectionMissingReturnsError(t *testing.T) {
	_, err := pivot.ParseGapsSection("p1", "# Findings\nNo gaps heading here.")
	require.Error(t, err)
}

func TestSortGapsOrdersByPriorityThenID(t *testing.T) {
	gaps := []model.Gap{
		{GapID: "gap_p1_2", Priority: model.P1},
		{GapID: "gap_p1_1", Priority: model.P0},
		{GapID: "gap_p1_3", Priority: model.P0},
	}
	sorted := pivot.SortGaps(gaps)
	require.Equal(t, []string{"gap_p1_1", "gap_p1_3", "gap_p1_2"}, []string{sorted[0].GapID, sorted[1].GapID, sorted[2].GapID})
}

func TestDecideP0TriggersWave2(t *testing.T) {
	gaps := []model.Gap{{GapID: "gap_1", Priority: model.P0}}
	decision, err := pivot.Decide(gaps)
	require.NoError(t, err)
	require.True(t, decision.Wave2Required)
	require.Equal(t, "Wave2Required.P0", decision.RuleHit)
	require.Equal(t, []string{"gap_1"}, decision.Wave2GapIDs)
}

func TestDecideTwoP1TriggersWave2(t *testing.T) {
	gaps := []model.Gap{
		{GapID: "gap_1", Priority: model.P1},
		{GapID: "gap_2", Priority: model.P1},
	}
	decision, err := pivot.Decide(gaps)
	require.NoError(t, err)
	require.True(t, decision.Wave2Required)
	require.Equal(t, "Wave2Required.P1", decision.RuleHit)
}

func TestDecideVolumeRule(t *testing.T) {
	gaps := []model.Gap{
		{GapID: "gap_1", Priority: model.P1},
		{GapID: "gap_2", Priority: model.P2},
		{GapID: "gap_3", Priority: model.P2},
		{GapID: "gap_4", Priority: model.P3},
	}
	decision, err := pivot.Decide(gaps)
	require.NoError(t, err)
	require.True(t, decision.Wave2Required)
	require.Equal(t, "Wave2Required.Volume", decision.RuleHit)
}

func TestDecideNoGapsSkipsWave2(t *testing.T) {
	gaps := []model.Gap{{GapID: "gap_1", Priority: model.P3}}
	decision, err := pivot.Decide(gaps)
	require.NoError(t, err)
	require.False(t, decision.Wave2Required)
	require.Equal(t, "Wave2Skip.NoGaps", decision.RuleHit)
	require.Empty(t, decision.Wave2GapIDs)
}
