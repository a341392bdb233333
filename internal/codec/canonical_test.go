package codec

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestCanonicalSortsKeys(t *testing.T) {
	v := map[string]interface{}{
		"b": 1,
		"a": 2,
		"c": map[string]interface{}{"z": 1, "y": 2},
	}
	out, err := CanonicalString(v)
	require.NoError(t, err)
	require.Equal(t, `{"a":2,"b":1,"c":{"y":2,"z":1}}`, out)
}

func TestCanonicalPreservesArrayOrder(t *testing.T) {
	v := []interface{}{3, 1, 2}
	out, err := CanonicalString(v)
	require.NoError(t, err)
	require.Equal(t, `[3,1,2]`, out)
}

func TestCanonicalIsIdempotent(t *testing.T) {
	v := map[string]interface{}{"b": []interface{}{1, 2}, "a": "x"}
	once, err := CanonicalString(v)
	require.NoError(t, err)

	var reparsed interface{}
	require.NoError(t, json.Unmarshal([]byte(once), &reparsed))
	twice, err := CanonicalString(reparsed)
	require.NoError(t, err)

	require.Equal(t, once, twice)
}

func TestDigestStableUnderKeyReorder(t *testing.T) {
	a := map[string]interface{}{"x": 1, "y": 2}
	b := map[string]interface{}{"y": 2, "x": 1}

	da, err := Digest(a)
	require.NoError(t, err)
	db, err := Digest(b)
	require.NoError(t, err)

	require.Equal(t, da, db)
	require.Regexp(t, `^sha256:[0-9a-f]{64}$`, da)
}

func TestCanonicalStructVsMapEquivalent(t *testing.T) {
	type inner struct {
		Z int `json:"z"`
		Y int `json:"y"`
	}
	type outer struct {
		B inner `json:"b"`
		A string `json:"a"`
	}

	structOut, err := CanonicalString(outer{B: inner{Z: 1, Y: 2}, A: "x"})
	require.NoError(t, err)

	mapOut, err := CanonicalString(map[string]interface{}{
		"a": "x",
		"b": map[string]interface{}{"z": 1, "y": 2},
	})
	require.NoError(t, err)

	if diff := cmp.Diff(mapOut, structOut); diff != "" {
		t.Fatalf("canonical form mismatch (-map +struct):\n%s", diff)
	}
}
