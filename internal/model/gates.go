package model

import "time"

// GateClass is hard (must pass to proceed) or soft (warnings only).
type GateClass string

const (
	ClassHard GateClass = "hard"
	ClassSoft GateClass = "soft"
)

// GateStatus is a gate's evaluation outcome.
type GateStatus string

const (
	GateNotRun GateStatus = "not_run"
	GatePass   GateStatus = "pass"
	GateFail   GateStatus = "fail"
	GateWarn   GateStatus = "warn"
)

// GateID names gates A-F.
type GateID string

const (
	GateA GateID = "A"
	GateB GateID = "B"
	GateC GateID = "C"
	GateD GateID = "D"
	GateE GateID = "E"
	GateF GateID = "F"
)

// GateRetryCaps is GATE_RETRY_CAPS_V1 (spec.md §4.5).
var GateRetryCaps = map[GateID]int{
	GateA: 0,
	GateB: 2,
	GateC: 1,
	GateD: 1,
	GateE: 3,
	GateF: 0,
}

// Gate is one entry in gates.json.
type Gate struct {
	ID        GateID                 `json:"id"`
	Name      string                 `json:"name"`
	Class     GateClass              `json:"class"`
	Status    GateStatus             `json:"status"`
	CheckedAt *time.Time             `json:"checked_at,omitempty"`
	Metrics   map[string]interface{} `json:"metrics"`
	Artifacts []string               `json:"artifacts"`
	Warnings  []string               `json:"warnings"`
	Notes     string                 `json:"notes,omitempty"`
}

// GatesDocument is gates.json (schema gates.v1).
type GatesDocument struct {
	RunID        string               `json:"run_id"`
	Revision     int                  `json:"revision"`
	UpdatedAt    time.Time            `json:"updated_at"`
	InputsDigest string               `json:"inputs_digest"`
	Gates        map[GateID]*Gate     `json:"gates"`
}

// NewGatesDocument builds the initial gates.json with all six gates
// not_run, per spec.md §3 "Gates are created with all six entries in
// not_run".
func NewGatesDocument(runID string) *GatesDocument {
	names := map[GateID]struct {
		Name  string
		Class GateClass
	}{
		GateA: {"scope_and_perspectives", ClassHard},
		GateB: {"wave1_contract", ClassHard},
		GateC: {"citation_validation", ClassHard},
		GateD: {"summary_completeness", ClassHard},
		GateE: {"synthesis_contract", ClassHard},
		GateF: {"final_bundle_hygiene", ClassHard},
	}
	gates := make(map[GateID]*Gate, len(names))
	for id, spec := range names {
		gates[id] = &Gate{
			ID:        id,
			Name:      spec.Name,
			Class:     spec.Class,
			Status:    GateNotRun,
			Metrics:   map[string]interface{}{},
			Artifacts: []string{},
			Warnings:  []string{},
		}
	}
	return &GatesDocument{
		RunID:    runID,
		Revision: 1,
		Gates:    gates,
	}
}
