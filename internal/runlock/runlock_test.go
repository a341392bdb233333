package runlock_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"researchrun/internal/runlock"
	"researchrun/internal/toolsurface"
)

func TestAcquireThenReleaseAllowsReacquire(t *testing.T) {
	dir := t.TempDir()

	l, err := runlock.Acquire(dir, 30, "test")
	require.NoError(t, err)
	require.NotEmpty(t, l.HolderID())

	require.NoError(t, l.Release())

	l2, err := runlock.Acquire(dir, 30, "test-again")
	require.NoError(t, err)
	require.NoError(t, l2.Release())
}

func TestAcquireContendedReturnsRunLocked(t *testing.T) {
	dir := t.TempDir()

	l, err := runlock.Acquire(dir, 30, "first")
	require.NoError(t, err)
	defer l.Release()

	_, err = runlock.Acquire(dir, 30, "second")
	require.Error(t, err)
	te := toolsurface.AsToolError(err)
	require.Equal(t, toolsurface.CodeRunLocked, te.Code)
}

func TestStatusReportsUnlockedWhenNoFile(t *testing.T) {
	dir := t.TempDir()
	locked, holder, err := runlock.Status(dir)
	require.NoError(t, err)
	require.False(t, locked)
	require.Nil(t, holder)
}

func TestAcquireTakesOverExpiredLease(t *testing.T) {
	dir := t.TempDir()

	l, err := runlock.Acquire(dir, 1, "short-lease")
	require.NoError(t, err)
	require.NoError(t, l.Release())

	// Simulate a stale lock left behind by a crashed holder: write one
	// directly with an already-expired lease rather than sleeping.
	stalePath := dir + "/.run.lock"
	require.NoError(t, os.WriteFile(stalePath, []byte(`{
		"holder_id":"stale",
		"acquired_at":"2000-01-01T00:00:00Z",
		"lease_expires_at":"2000-01-01T00:00:01Z",
		"last_heartbeat_at":"2000-01-01T00:00:00Z",
		"reason":"crashed"
	}`), 0o644))

	l2, err := runlock.Acquire(dir, 30, "takeover")
	require.NoError(t, err)
	require.NoError(t, l2.Release())
}
