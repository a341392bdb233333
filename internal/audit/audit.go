// Package audit implements the best-effort audit log and the strictly
// sequential telemetry stream described in spec.md §4.10, grounded on
// codenerd/internal/tactile.AuditFileLogger's append-only JSONL shape.
package audit

import (
	"time"

	"researchrun/internal/model"
	"researchrun/internal/schema"
	"researchrun/internal/store"
	"researchrun/internal/toolsurface"
)

// AppendAuditRecord appends one free-form audit record. Failures are
// intentionally swallowed by the caller (manifest/gatesdoc already do
// this for their own writes); this helper returns the error so a caller
// that wants to log-and-continue still can.
func AppendAuditRecord(logPath string, record model.AuditRecord) error {
	logger, err := store.NewAppendLogger(logPath)
	if err != nil {
		return err
	}
	defer logger.Close()
	return logger.AppendCanonical(record)
}

// Index tracks the telemetry stream's high-water mark, persisted
// alongside the JSONL file so a fresh process can resume seq allocation
// without rescanning the whole log.
type Index struct {
	path string
}

// OpenIndex loads (or initializes) the telemetry index at indexPath.
func OpenIndex(indexPath string) (*Index, error) {
	idx := &Index{path: indexPath}
	if !store.Exists(indexPath) {
		if err := store.WriteJSONAtomic(indexPath, model.TelemetryIndex{MaxSeq: 0}); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

// MaxSeq returns the current high-water mark.
func (idx *Index) MaxSeq() (int64, error) {
	var doc model.TelemetryIndex
	if err := store.ReadJSON(idx.path, &doc); err != nil {
		return 0, toolsurface.NewError(toolsurface.CodeInvalidState, "read telemetry index: "+err.Error(), nil)
	}
	return doc.MaxSeq, nil
}

func (idx *Index) setMaxSeq(seq int64) error {
	return store.WriteJSONAtomic(idx.path, model.TelemetryIndex{MaxSeq: seq})
}

// AppendTelemetry implements telemetry_append's four-step algorithm:
// open/create the index, allocate (or validate a caller-supplied) seq,
// validate the event, then append the canonical JSON line and advance
// the index. requestedSeq of 0 means "allocate the next seq".
func AppendTelemetry(logPath, indexPath string, event model.TelemetryEvent, requestedSeq int64) (*model.TelemetryEvent, error) {
	idx, err := OpenIndex(indexPath)
	if err != nil {
		return nil, err
	}
	maxSeq, err := idx.MaxSeq()
	if err != nil {
		return nil, err
	}

	if requestedSeq == 0 {
		event.Seq = maxSeq + 1
	} else {
		if requestedSeq <= maxSeq {
			return nil, toolsurface.NewError(toolsurface.CodeInvalidArgs,
				"telemetry seq must strictly exceed the current max_seq", map[string]interface{}{
					"requested_seq": requestedSeq,
					"max_seq":       maxSeq,
				})
		}
		event.Seq = requestedSeq
	}
	if event.TS.IsZero() {
		event.TS = time.Now().UTC()
	}

	if err := schema.ValidateTelemetryEvent(&event); err != nil {
		return nil, err
	}

	logger, err := store.NewAppendLogger(logPath)
	if err != nil {
		return nil, err
	}
	defer logger.Close()
	if err := logger.AppendCanonical(event); err != nil {
		return nil, toolsurface.NewError(toolsurface.CodeWriteFailed, "append telemetry event: "+err.Error(), nil)
	}

	if err := idx.setMaxSeq(event.Seq); err != nil {
		return nil, toolsurface.NewError(toolsurface.CodeWriteFailed, "update telemetry index: "+err.Error(), nil)
	}

	return &event, nil
}

// AppendTickLedger appends one tick_ledger.v1 record to logs/ticks.jsonl.
func AppendTickLedger(logPath string, record model.TickLedgerRecord) error {
	logger, err := store.NewAppendLogger(logPath)
	if err != nil {
		return err
	}
	defer logger.Close()
	return logger.AppendCanonical(record)
}
