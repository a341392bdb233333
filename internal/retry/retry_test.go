package retry_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"researchrun/internal/model"
	"researchrun/internal/retry"
	"researchrun/internal/toolsurface"
)

func TestRecordIncrementsUpToCap(t *testing.T) {
	tr := retry.NewTracker(0)
	_, err := tr.Record(model.GateB)
	require.NoError(t, err)
	_, err = tr.Record(model.GateB)
	require.NoError(t, err)
	require.Equal(t, 2, tr.Count(model.GateB))
}

func TestRecordExhaustsCap(t *testing.T) {
	tr := retry.NewTracker(0)
	_, err := tr.Record(model.GateA) // cap 0
	require.Error(t, err)
	require.Equal(t, toolsurface.CodeRetryCapExhausted, toolsurface.AsToolError(err).Code)
}

func TestRecordEnforcesCooldown(t *testing.T) {
	tr := retry.NewTracker(time.Hour)
	_, err := tr.Record(model.GateC)
	require.NoError(t, err)
	_, err = tr.Record(model.GateC)
	require.Error(t, err)
}

func TestSeedRestoresPriorCounts(t *testing.T) {
	tr := retry.NewTracker(0)
	tr.Seed(map[string]int{"E": 2})
	require.Equal(t, 2, tr.Count(model.GateE))
	require.Equal(t, 1, tr.Remaining(model.GateE))
}
