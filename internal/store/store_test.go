package store

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteJSONAtomicRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "manifest.json")

	type doc struct {
		B int `json:"b"`
		A int `json:"a"`
	}
	require.NoError(t, WriteJSONAtomic(path, doc{B: 2, A: 1}))
	require.True(t, Exists(path))

	var out doc
	require.NoError(t, ReadJSON(path, &out))
	require.Equal(t, doc{A: 1, B: 2}, out)
}

func TestWriteJSONAtomicNoPartialOnOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gates.json")

	require.NoError(t, WriteJSONAtomic(path, map[string]int{"revision": 1}))
	require.NoError(t, WriteJSONAtomic(path, map[string]int{"revision": 2}))

	var out map[string]int
	require.NoError(t, ReadJSON(path, &out))
	require.Equal(t, 2, out["revision"])
}

func TestAppendLoggerAppendsLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logs", "ticks.jsonl")

	l, err := NewAppendLogger(path)
	require.NoError(t, err)
	require.NoError(t, l.AppendCanonical(map[string]int{"seq": 1}))
	require.NoError(t, l.AppendCanonical(map[string]int{"seq": 2}))
	require.NoError(t, l.Close())

	var seqs []int
	require.NoError(t, ReadJSONLines(path, func(line []byte) error {
		var rec map[string]int
		if err := json.Unmarshal(line, &rec); err != nil {
			return err
		}
		seqs = append(seqs, rec["seq"])
		return nil
	}))
	require.Equal(t, []int{1, 2}, seqs)
}

func TestAppendLoggerRotate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")

	l, err := NewAppendLogger(path)
	require.NoError(t, err)
	require.NoError(t, l.AppendCanonical(map[string]int{"n": 1}))
	require.NoError(t, l.Rotate())
	require.NoError(t, l.AppendCanonical(map[string]int{"n": 2}))
	require.NoError(t, l.Close())

	require.True(t, Exists(path))

	var ns []int
	require.NoError(t, ReadJSONLines(path, func(line []byte) error {
		var rec map[string]int
		if err := json.Unmarshal(line, &rec); err != nil {
			return err
		}
		ns = append(ns, rec["n"])
		return nil
	}))
	require.Equal(t, []int{2}, ns)
}
