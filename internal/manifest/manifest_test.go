package manifest_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"researchrun/internal/manifest"
	"researchrun/internal/model"
	"researchrun/internal/store"
	"researchrun/internal/toolsurface"
)

func seedManifest(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "manifest.json")
	m := &model.Manifest{
		SchemaVersion: "manifest.v1",
		RunID:         "run_abc",
		CreatedAt:     time.Now(),
		Artifacts:     model.Artifacts{Root: dir},
		Revision:      1,
		UpdatedAt:     time.Now(),
		Mode:          model.ModeStandard,
		Status:        model.StatusCreated,
		Query:         model.Query{Text: "example query", Sensitivity: model.SensitivityNormal},
		Stage:         model.StageBlock{Current: model.StageInit, StartedAt: time.Now()},
		Metrics:       model.Metrics{},
	}
	require.NoError(t, store.WriteJSONAtomic(path, m))
	return path
}

func TestWriteBumpsRevisionAndAppliesPatch(t *testing.T) {
	dir := t.TempDir()
	path := seedManifest(t, dir)

	next, err := manifest.Write(path, map[string]interface{}{"status": "running"}, nil, "start run", nil)
	require.NoError(t, err)
	require.Equal(t, 2, next.Revision)
	require.Equal(t, model.StatusRunning, next.Status)

	reloaded, err := manifest.Load(path)
	require.NoError(t, err)
	require.Equal(t, 2, reloaded.Revision)
}

func TestWriteRejectsImmutableFieldPatch(t *testing.T) {
	dir := t.TempDir()
	path := seedManifest(t, dir)

	_, err := manifest.Write(path, map[string]interface{}{"run_id": "run_other"}, nil, "tamper", nil)
	require.Error(t, err)
	require.Equal(t, toolsurface.CodeImmutableField, toolsurface.AsToolError(err).Code)
}

func TestWriteRejectsRevisionMismatch(t *testing.T) {
	dir := t.TempDir()
	path := seedManifest(t, dir)

	bad := 99
	_, err := manifest.Write(path, map[string]interface{}{"status": "running"}, &bad, "stale caller", nil)
	require.Error(t, err)
	require.Equal(t, toolsurface.CodeRevisionMismatch, toolsurface.AsToolError(err).Code)
}

func TestWriteAppendsAuditRecord(t *testing.T) {
	dir := t.TempDir()
	path := seedManifest(t, dir)

	auditPath := filepath.Join(dir, "audit.jsonl")
	logger, err := store.NewAppendLogger(auditPath)
	require.NoError(t, err)
	defer logger.Close()

	_, err = manifest.Write(path, map[string]interface{}{"status": "running"}, nil, "start run", logger)
	require.NoError(t, err)

	var count int
	require.NoError(t, store.ReadJSONLines(auditPath, func(line []byte) error {
		count++
		return nil
	}))
	require.Equal(t, 1, count)
}
