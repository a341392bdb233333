// Package manifest implements manifest_write: RFC-7396 merge-patch
// mutation of manifest.json with immutable-field rejection, optimistic
// revision locking, and an audit-log append, per spec.md §4.4. The
// revisioning discipline is grounded on the donor's monotonic-field update
// idiom in internal/campaign's Campaign struct.
package manifest

import (
	"encoding/json"
	"fmt"
	"time"

	"researchrun/internal/codec"
	"researchrun/internal/mergepatch"
	"researchrun/internal/model"
	"researchrun/internal/schema"
	"researchrun/internal/store"
	"researchrun/internal/toolsurface"
)

// Load reads and schema-validates manifest.json at path.
func Load(path string) (*model.Manifest, error) {
	var m model.Manifest
	if err := store.ReadJSON(path, &m); err != nil {
		return nil, toolsurface.NewError(toolsurface.CodeNotFound, "manifest not found: "+err.Error(), nil)
	}
	if err := schema.ValidateManifest(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Write applies patch to the manifest at path under the merge-patch and
// revisioning rules in spec.md §4.4, and appends an audit record via
// auditLog (best-effort: an audit failure does not fail the write).
func Write(path string, patch map[string]interface{}, expectedRevision *int, reason string, auditLog *store.AppendLogger) (*model.Manifest, error) {
	current, err := Load(path)
	if err != nil {
		return nil, err
	}

	if expectedRevision != nil && *expectedRevision != current.Revision {
		return nil, toolsurface.NewError(toolsurface.CodeRevisionMismatch,
			fmt.Sprintf("expected revision %d, current is %d", *expectedRevision, current.Revision),
			map[string]interface{}{"expected": *expectedRevision, "current": current.Revision})
	}

	for _, touched := range mergepatch.TouchedPaths(patch, "") {
		for _, immutable := range model.ImmutableFields {
			if touched == immutable {
				return nil, toolsurface.NewError(toolsurface.CodeImmutableField,
					"patch touches immutable field "+touched, map[string]interface{}{"field": touched})
			}
		}
	}

	currentBytes, err := codec.Canonical(current)
	if err != nil {
		return nil, toolsurface.NewError(toolsurface.CodeInvalidState, err.Error(), nil)
	}
	var currentObj map[string]interface{}
	if err := json.Unmarshal(currentBytes, &currentObj); err != nil {
		return nil, toolsurface.NewError(toolsurface.CodeInvalidState, err.Error(), nil)
	}

	patched := mergepatch.Apply(currentObj, patch).(map[string]interface{})

	prevRevision := current.Revision
	patched["revision"] = float64(prevRevision + 1)
	now := time.Now().UTC()
	patched["updated_at"] = now.Format(time.RFC3339Nano)

	patchedBytes, err := codec.Canonical(patched)
	if err != nil {
		return nil, toolsurface.NewError(toolsurface.CodeInvalidState, err.Error(), nil)
	}
	var next model.Manifest
	if err := json.Unmarshal(patchedBytes, &next); err != nil {
		return nil, toolsurface.NewError(toolsurface.CodeInvalidJSON, err.Error(), nil)
	}

	if err := schema.ValidateManifest(&next); err != nil {
		return nil, err
	}

	if err := store.WriteJSONAtomic(path, &next); err != nil {
		return nil, toolsurface.NewError(toolsurface.CodeWriteFailed, err.Error(), nil)
	}

	if auditLog != nil {
		patchDigest, _ := codec.Digest(patch)
		_ = auditLog.AppendCanonical(model.AuditRecord{
			TS:   now,
			Kind: "manifest_write",
			RunID: next.RunID,
			Reason: reason,
			Extra: map[string]interface{}{
				"prev_revision": prevRevision,
				"new_revision":  next.Revision,
				"patch_digest":  patchDigest,
			},
		})
	}

	return &next, nil
}
