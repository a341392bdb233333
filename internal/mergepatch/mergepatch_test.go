package mergepatch_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"researchrun/internal/mergepatch"
)

func TestApplyReplacesScalar(t *testing.T) {
	target := map[string]interface{}{"status": "running", "revision": 1.0}
	patch := map[string]interface{}{"status": "paused"}
	out := mergepatch.Apply(target, patch).(map[string]interface{})
	require.Equal(t, "paused", out["status"])
	require.Equal(t, 1.0, out["revision"])
}

func TestApplyNullDeletesKey(t *testing.T) {
	target := map[string]interface{}{"notes": "hello", "status": "running"}
	patch := map[string]interface{}{"notes": nil}
	out := mergepatch.Apply(target, patch).(map[string]interface{})
	_, exists := out["notes"]
	require.False(t, exists)
	require.Equal(t, "running", out["status"])
}

func TestApplyRecursesIntoObjects(t *testing.T) {
	target := map[string]interface{}{
		"stage": map[string]interface{}{"current": "wave1", "started_at": "t0"},
	}
	patch := map[string]interface{}{
		"stage": map[string]interface{}{"current": "pivot"},
	}
	out := mergepatch.Apply(target, patch).(map[string]interface{})
	stage := out["stage"].(map[string]interface{})
	require.Equal(t, "pivot", stage["current"])
	require.Equal(t, "t0", stage["started_at"])
}

func TestApplyReplacesArraysWholesale(t *testing.T) {
	target := map[string]interface{}{"tags": []interface{}{"a", "b"}}
	patch := map[string]interface{}{"tags": []interface{}{"c"}}
	out := mergepatch.Apply(target, patch).(map[string]interface{})
	require.Equal(t, []interface{}{"c"}, out["tags"])
}

func TestApplyDoesNotMutateInputs(t *testing.T) {
	target := map[string]interface{}{"status": "running"}
	patch := map[string]interface{}{"status": "paused"}
	_ = mergepatch.Apply(target, patch)
	require.Equal(t, "running", target["status"])
}

func TestTouchedPathsReportsNestedFields(t *testing.T) {
	patch := map[string]interface{}{
		"artifacts": map[string]interface{}{"root": "/elsewhere"},
		"status":    "paused",
	}
	paths := mergepatch.TouchedPaths(patch, "")
	require.Contains(t, paths, "artifacts")
	require.Contains(t, paths, "artifacts.root")
	require.Contains(t, paths, "status")
}
