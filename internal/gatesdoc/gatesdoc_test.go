package gatesdoc_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"researchrun/internal/gatesdoc"
	"researchrun/internal/model"
	"researchrun/internal/store"
	"researchrun/internal/toolsurface"
)

func seedGates(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "gates.json")
	require.NoError(t, store.WriteJSONAtomic(path, model.NewGatesDocument("run_abc")))
	return path
}

func TestWriteUpdatesGateAndBumpsRevision(t *testing.T) {
	dir := t.TempDir()
	path := seedGates(t, dir)

	updates := []gatesdoc.Update{{
		ID:        model.GateA,
		Status:    model.GatePass,
		Metrics:   map[string]interface{}{"perspective_count": 5},
		Artifacts: []string{"perspectives.json"},
	}}
	doc, err := gatesdoc.Write(path, updates, "sha256:abc", 1, "gate a evaluated", nil)
	require.NoError(t, err)
	require.Equal(t, 2, doc.Revision)
	require.Equal(t, model.GatePass, doc.Gates[model.GateA].Status)
	require.NotNil(t, doc.Gates[model.GateA].CheckedAt)
	require.Equal(t, "sha256:abc", doc.InputsDigest)
}

func TestWriteRejectsRevisionMismatch(t *testing.T) {
	dir := t.TempDir()
	path := seedGates(t, dir)

	_, err := gatesdoc.Write(path, nil, "sha256:abc", 99, "stale", nil)
	require.Error(t, err)
	require.Equal(t, toolsurface.CodeRevisionMismatch, toolsurface.AsToolError(err).Code)
}

func TestWriteRejectsUnknownGateID(t *testing.T) {
	dir := t.TempDir()
	path := seedGates(t, dir)

	updates := []gatesdoc.Update{{ID: model.GateID("Z"), Status: model.GatePass}}
	_, err := gatesdoc.Write(path, updates, "sha256:abc", 1, "bogus", nil)
	require.Error(t, err)
	require.Equal(t, toolsurface.CodeInvalidArgs, toolsurface.AsToolError(err).Code)
}
