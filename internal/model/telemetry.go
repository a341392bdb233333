package model

import "time"

// TelemetryEvent is one line of logs/telemetry.jsonl (telemetry.event.v1).
type TelemetryEvent struct {
	SchemaVersion string                 `json:"schema_version"`
	RunID         string                 `json:"run_id"`
	Seq           int64                  `json:"seq"`
	TS            time.Time              `json:"ts"`
	EventType     string                 `json:"event_type"`
	Data          map[string]interface{} `json:"data,omitempty"`
}

// TelemetryIndex is logs/telemetry.index.json.
type TelemetryIndex struct {
	MaxSeq int64 `json:"max_seq"`
}

// AuditRecord is one line of logs/audit.jsonl. Free-form beyond the
// required fields, per spec.md §4.10.
type AuditRecord struct {
	TS           time.Time              `json:"ts"`
	Kind         string                 `json:"kind"`
	RunID        string                 `json:"run_id"`
	Reason       string                 `json:"reason,omitempty"`
	InputsDigest string                 `json:"inputs_digest,omitempty"`
	Extra        map[string]interface{} `json:"extra,omitempty"`
}

// TickLedgerRecord is one line of logs/ticks.jsonl (tick_ledger.v1). Phase
// is canonical per spec.md §9's open question; stage_before/after are
// carried for readability only.
type TickLedgerRecord struct {
	Index         int                    `json:"index"`
	Phase         string                 `json:"phase"`
	StageBefore   Stage                  `json:"stage_before"`
	StageAfter    Stage                  `json:"stage_after"`
	StatusBefore  RunStatus              `json:"status_before"`
	StatusAfter   RunStatus              `json:"status_after"`
	Result        string                 `json:"result"`
	InputsDigest  string                 `json:"inputs_digest"`
	Artifacts     []string               `json:"artifacts"`
	TS            time.Time              `json:"ts"`
}

// RunLock is the contents of .run.lock.
type RunLock struct {
	HolderID        string    `json:"holder_id"`
	AcquiredAt      time.Time `json:"acquired_at"`
	LeaseExpiresAt  time.Time `json:"lease_expires_at"`
	LastHeartbeatAt time.Time `json:"last_heartbeat_at"`
	Reason          string    `json:"reason"`
}
