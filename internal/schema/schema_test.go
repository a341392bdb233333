package schema_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"researchrun/internal/model"
	"researchrun/internal/schema"
)

func validManifest() *model.Manifest {
	return &model.Manifest{
		SchemaVersion: "manifest.v1",
		RunID:         "run_abc",
		CreatedAt:     time.Now(),
		Revision:      1,
		UpdatedAt:     time.Now(),
		Mode:          model.ModeStandard,
		Status:        model.StatusRunning,
		Query:         model.Query{Text: "example query", Sensitivity: model.SensitivityNormal},
		Stage:         model.StageBlock{Current: model.StageInit, StartedAt: time.Now()},
		Metrics:       model.Metrics{},
	}
}

func TestValidateManifestAcceptsWellFormed(t *testing.T) {
	require.NoError(t, schema.ValidateManifest(validManifest()))
}

func TestValidateManifestRejectsUnknownStage(t *testing.T) {
	m := validManifest()
	m.Stage.Current = model.Stage("bogus")
	err := schema.ValidateManifest(m)
	require.Error(t, err)
}

func TestValidateManifestRejectsEmptyQuery(t *testing.T) {
	m := validManifest()
	m.Query.Text = ""
	require.Error(t, schema.ValidateManifest(m))
}

func TestValidateGatesDocumentRequiresCheckedAtOnceRun(t *testing.T) {
	g := model.NewGatesDocument("run_abc")
	g.Gates[model.GateA].Status = model.GatePass
	err := schema.ValidateGatesDocument(g)
	require.Error(t, err)

	now := time.Now()
	g.Gates[model.GateA].CheckedAt = &now
	require.NoError(t, schema.ValidateGatesDocument(g))
}

func TestValidateGatesDocumentRejectsHardWarn(t *testing.T) {
	g := model.NewGatesDocument("run_abc")
	now := time.Now()
	g.Gates[model.GateA].Status = model.GateWarn
	g.Gates[model.GateA].CheckedAt = &now
	err := schema.ValidateGatesDocument(g)
	require.Error(t, err)
}

func TestValidatePerspectivesDocumentRejectsDuplicateIDs(t *testing.T) {
	doc := &model.PerspectivesDocument{Perspectives: []model.Perspective{
		{ID: "p1", Track: model.TrackStandard, AgentType: "researcher"},
		{ID: "p1", Track: model.TrackContrarian, AgentType: "researcher"},
	}}
	require.Error(t, schema.ValidatePerspectivesDocument(doc))
}

func TestValidatePivotDocumentRejectsDuplicateGapIDs(t *testing.T) {
	doc := &model.PivotDocument{Gaps: []model.Gap{
		{GapID: "gap_1", Priority: model.P0, Source: model.GapSourceExplicit},
		{GapID: "gap_1", Priority: model.P1, Source: model.GapSourceParsedWave1},
	}}
	require.Error(t, schema.ValidatePivotDocument(doc))
}

func TestValidateURLMapDocumentRequiresCidPrefix(t *testing.T) {
	doc := &model.URLMapDocument{Items: []model.URLMapItem{
		{NormalizedURL: "https://example.com/", CID: "not-a-cid"},
	}}
	require.Error(t, schema.ValidateURLMapDocument(doc))
}

func TestValidateSummaryPackRejectsOversizedEntry(t *testing.T) {
	pack := &model.SummaryPack{
		ExpectedCount: 1,
		Entries:       []model.SummaryEntry{{PerspectiveID: "p1", SizeKB: 50}},
		TotalSizeKB:   50,
	}
	limits := model.Limits{MaxSummaryKB: 10, MaxTotalSummaryKB: 100}
	require.Error(t, schema.ValidateSummaryPack(pack, limits))
}

func TestValidateReviewBundleRequiresFindingsOnChangesRequired(t *testing.T) {
	b := &model.ReviewBundle{Decision: model.ReviewChangesRequired}
	require.Error(t, schema.ValidateReviewBundle(b))
	b.Findings = []string{"needs more sources"}
	require.NoError(t, schema.ValidateReviewBundle(b))
}
