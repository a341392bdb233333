// Package gatesdoc implements gates_write: composing a new gates.json from
// per-gate update entries with the same revisioning and audit discipline as
// internal/manifest (spec.md §4.4).
package gatesdoc

import (
	"fmt"
	"time"

	"researchrun/internal/codec"
	"researchrun/internal/model"
	"researchrun/internal/schema"
	"researchrun/internal/store"
	"researchrun/internal/toolsurface"
)

// Load reads and schema-validates gates.json at path.
func Load(path string) (*model.GatesDocument, error) {
	var g model.GatesDocument
	if err := store.ReadJSON(path, &g); err != nil {
		return nil, toolsurface.NewError(toolsurface.CodeNotFound, "gates document not found: "+err.Error(), nil)
	}
	if err := schema.ValidateGatesDocument(&g); err != nil {
		return nil, err
	}
	return &g, nil
}

// Update is one gate's replacement entry for gates_write.
type Update struct {
	ID        model.GateID
	Status    model.GateStatus
	Metrics   map[string]interface{}
	Artifacts []string
	Warnings  []string
	Notes     string
}

// Write merges update entries into the gates document at path, bumps
// revision, sets inputs_digest, and appends an audit record.
func Write(path string, updates []Update, inputsDigest string, expectedRevision int, reason string, auditLog *store.AppendLogger) (*model.GatesDocument, error) {
	current, err := Load(path)
	if err != nil {
		return nil, err
	}

	if expectedRevision != current.Revision {
		return nil, toolsurface.NewError(toolsurface.CodeRevisionMismatch,
			fmt.Sprintf("expected revision %d, current is %d", expectedRevision, current.Revision),
			map[string]interface{}{"expected": expectedRevision, "current": current.Revision})
	}

	now := time.Now().UTC()
	for _, u := range updates {
		gate, ok := current.Gates[u.ID]
		if !ok || gate == nil {
			return nil, toolsurface.NewError(toolsurface.CodeInvalidArgs, "unknown gate id "+string(u.ID), nil)
		}
		gate.Status = u.Status
		if u.Status != model.GateNotRun {
			checkedAt := now
			gate.CheckedAt = &checkedAt
		}
		if u.Metrics != nil {
			gate.Metrics = u.Metrics
		}
		if u.Artifacts != nil {
			gate.Artifacts = u.Artifacts
		}
		if u.Warnings != nil {
			gate.Warnings = u.Warnings
		}
		gate.Notes = u.Notes
	}

	current.Revision++
	current.UpdatedAt = now
	current.InputsDigest = inputsDigest

	if err := schema.ValidateGatesDocument(current); err != nil {
		return nil, err
	}

	if err := store.WriteJSONAtomic(path, current); err != nil {
		return nil, toolsurface.NewError(toolsurface.CodeWriteFailed, err.Error(), nil)
	}

	if auditLog != nil {
		patchDigest, _ := codec.Digest(updates)
		_ = auditLog.AppendCanonical(model.AuditRecord{
			TS:     now,
			Kind:   "gates_write",
			RunID:  current.RunID,
			Reason: reason,
			InputsDigest: inputsDigest,
			Extra: map[string]interface{}{
				"new_revision": current.Revision,
				"patch_digest": patchDigest,
			},
		})
	}

	return current, nil
}
