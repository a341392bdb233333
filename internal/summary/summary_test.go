package summary

import (
	"testing"

	"github.com/stretchr/testify/require"

	"researchrun/internal/model"
)

func TestBuildPackComputesSizesAndTotal(t *testing.T) {
	pack, err := BuildPack(
		[]string{"p1", "p2"},
		map[string]string{"p1": "hello", "p2": "world"},
		model.Limits{MaxSummaryKB: 10, MaxTotalSummaryKB: 10},
	)
	require.NoError(t, err)
	require.Len(t, pack.Entries, 2)
	require.Equal(t, 2, pack.ExpectedCount)
	require.Greater(t, pack.TotalSizeKB, 0.0)
	require.NotEmpty(t, pack.InputsDigest)
}

func TestBuildPackSkipsMissingSummariesWithoutFailing(t *testing.T) {
	pack, err := BuildPack(
		[]string{"p1", "p2"},
		map[string]string{"p1": "hello"},
		model.Limits{},
	)
	require.NoError(t, err)
	require.Len(t, pack.Entries, 1)
	require.Equal(t, 2, pack.ExpectedCount)
}

func TestBuildPackRejectsOversizeEntry(t *testing.T) {
	big := make([]byte, 2048)
	for i := range big {
		big[i] = 'a'
	}
	_, err := BuildPack([]string{"p1"}, map[string]string{"p1": string(big)}, model.Limits{MaxSummaryKB: 1})
	require.Error(t, err)
}

func TestCountRatioAndMissingPerspectives(t *testing.T) {
	pack := &model.SummaryPack{
		ExpectedCount: 4,
		Entries: []model.SummaryEntry{
			{PerspectiveID: "p1"},
			{PerspectiveID: "p3"},
		},
	}
	require.Equal(t, 0.5, CountRatio(pack))
	require.Equal(t, []string{"p2", "p4"}, MissingPerspectives([]string{"p1", "p2", "p3", "p4"}, pack))
}

func TestWriteSynthesisIncludesAllRequiredHeadings(t *testing.T) {
	pack := &model.SummaryPack{Entries: []model.SummaryEntry{{PerspectiveID: "p1", SummaryMD: "Found X at 10%."}}}
	citations := []model.Citation{{CID: "cid_aaa", URL: "https://example.com", Status: model.CitationValid}}
	out := WriteSynthesis(pack, citations)
	for _, heading := range RequiredSynthesisHeadings {
		require.Contains(t, out, heading)
	}
	require.Contains(t, out, "cid_aaa")
}

func TestUncitedNumericClaimsDetectsMissingReference(t *testing.T) {
	synthesis := "## Findings\n\nRevenue grew 10% last year.\n\n## Citations\n\n## Open Questions\n"
	require.Equal(t, 1, UncitedNumericClaims(synthesis))
}

func TestUncitedNumericClaimsAllowsCitedLine(t *testing.T) {
	synthesis := "## Findings\n\nRevenue grew 10% last year [cid_abc12345].\n\n## Citations\n\n## Open Questions\n"
	require.Equal(t, 0, UncitedNumericClaims(synthesis))
}

func TestCitationUtilizationComputesReferencedFraction(t *testing.T) {
	citations := []model.Citation{{CID: "cid_a"}, {CID: "cid_b"}}
	synthesis := "text referencing [cid_a] only"
	require.Equal(t, 0.5, CitationUtilization(synthesis, citations))
}

func TestDuplicateCitationRateCountsRepeats(t *testing.T) {
	synthesis := "[cid_a12345678] then again [cid_a12345678] then [cid_b12345678]"
	rate := DuplicateCitationRate(synthesis)
	require.InDelta(t, 1.0/3.0, rate, 0.001)
}

func TestRunReviewPassesWithNoFindings(t *testing.T) {
	bundle := RunReview(model.GatePass, 0, nil, 0)
	require.Equal(t, model.ReviewPass, bundle.Decision)
	require.Empty(t, bundle.Findings)
}

func TestRunReviewFlagsUncitedClaimsAndMissingHeadings(t *testing.T) {
	bundle := RunReview(model.GateFail, 2, []string{"## Open Questions"}, 1)
	require.Equal(t, model.ReviewChangesRequired, bundle.Decision)
	require.Len(t, bundle.Findings, 3)
}

func TestCurrentIterationCountsReviewToSynthesisTransitions(t *testing.T) {
	history := []model.StageHistoryEntry{
		{From: model.StageSynthesis, To: model.StageReview},
		{From: model.StageReview, To: model.StageSynthesis},
		{From: model.StageSynthesis, To: model.StageReview},
		{From: model.StageReview, To: model.StageSynthesis},
	}
	require.Equal(t, 2, CurrentIteration(history))
}

func TestDecideRevisionAdvancesOnPassingReviewAndGate(t *testing.T) {
	bundle := &model.ReviewBundle{Decision: model.ReviewPass, CurrentIteration: 0}
	directives := DecideRevision(bundle, model.GatePass, 2)
	require.Equal(t, model.RevisionAdvance, directives.Action)
	require.Equal(t, model.StageFinalize, directives.Next)
}

func TestDecideRevisionEscalatesAtIterationCap(t *testing.T) {
	bundle := &model.ReviewBundle{Decision: model.ReviewChangesRequired, CurrentIteration: 2}
	directives := DecideRevision(bundle, model.GateFail, 2)
	require.Equal(t, model.RevisionEscalate, directives.Action)
	require.Equal(t, model.StageReview, directives.Next)
}

func TestDecideRevisionRevisesBeforeIterationCap(t *testing.T) {
	bundle := &model.ReviewBundle{Decision: model.ReviewChangesRequired, CurrentIteration: 0}
	directives := DecideRevision(bundle, model.GateFail, 2)
	require.Equal(t, model.RevisionRevise, directives.Action)
	require.Equal(t, model.StageSynthesis, directives.Next)
}
