// Package schema validates artifact documents before they are persisted
// with hand-written checks: required fields, cross-field invariants, enum
// membership, and the "checked_at required once a gate leaves not_run" rule
// from spec.md §4.4. The go-playground/validator instance built by
// validate() is not applied by any of these checks.
package schema

import (
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"

	"researchrun/internal/model"
	"researchrun/internal/toolsurface"
)

var (
	once sync.Once
	v    *validator.Validate
)

func validate() *validator.Validate {
	once.Do(func() { v = validator.New() })
	return v
}

// fail wraps one or more failed validation checks as SCHEMA_VALIDATION_FAILED.
func fail(schemaName string, issues []string) error {
	return toolsurface.NewError(toolsurface.CodeSchemaValidationFailed,
		fmt.Sprintf("%s failed validation", schemaName),
		map[string]interface{}{"issues": issues})
}

// ValidateManifest checks the manifest.v1 rules spec.md §3 states in prose
// (non-empty run_id, known mode/status/stage).
func ValidateManifest(m *model.Manifest) error {
	var issues []string
	if m.RunID == "" {
		issues = append(issues, "run_id must not be empty")
	}
	if m.SchemaVersion == "" {
		issues = append(issues, "schema_version must not be empty")
	}
	switch m.Mode {
	case model.ModeQuick, model.ModeStandard, model.ModeDeep:
	default:
		issues = append(issues, fmt.Sprintf("mode %q is not a known mode", m.Mode))
	}
	switch m.Status {
	case model.StatusCreated, model.StatusRunning, model.StatusPaused,
		model.StatusFailed, model.StatusCompleted, model.StatusCancelled:
	default:
		issues = append(issues, fmt.Sprintf("status %q is not a known status", m.Status))
	}
	if !validStage(m.Stage.Current) {
		issues = append(issues, fmt.Sprintf("stage %q is not a known stage", m.Stage.Current))
	}
	if m.Query.Text == "" {
		issues = append(issues, "query.text must not be empty")
	}
	if m.Revision < 1 {
		issues = append(issues, "revision must be >= 1")
	}
	if len(issues) > 0 {
		return fail("manifest.v1", issues)
	}
	return nil
}

func validStage(s model.Stage) bool {
	switch s {
	case model.StageInit, model.StageWave1, model.StagePivot, model.StageWave2,
		model.StageCitations, model.StageSummaries, model.StageSynthesis,
		model.StageReview, model.StageFinalize:
		return true
	}
	return false
}

// ValidateGatesDocument checks gates.v1's structural and checked_at
// invariants: every gate present, class/status from the known enums, and
// checked_at required once a gate has left not_run (spec.md §4.4).
func ValidateGatesDocument(g *model.GatesDocument) error {
	var issues []string
	if g.RunID == "" {
		issues = append(issues, "run_id must not be empty")
	}
	required := []model.GateID{model.GateA, model.GateB, model.GateC, model.GateD, model.GateE, model.GateF}
	for _, id := range required {
		gate, ok := g.Gates[id]
		if !ok || gate == nil {
			issues = append(issues, fmt.Sprintf("gate %s is missing", id))
			continue
		}
		if gate.Class != model.ClassHard && gate.Class != model.ClassSoft {
			issues = append(issues, fmt.Sprintf("gate %s has unknown class %q", id, gate.Class))
		}
		switch gate.Status {
		case model.GateNotRun, model.GatePass, model.GateFail, model.GateWarn:
		default:
			issues = append(issues, fmt.Sprintf("gate %s has unknown status %q", id, gate.Status))
		}
		if gate.Status != model.GateNotRun && gate.CheckedAt == nil {
			issues = append(issues, fmt.Sprintf("gate %s has status %s but no checked_at", id, gate.Status))
		}
		// Gate E is documented as "hard + soft" (spec.md §4.5): its hard
		// checks can fail the gate while its soft checks only warn, so a
		// hard-class gate carrying status=warn is only valid for E.
		if gate.Status == model.GateWarn && gate.Class == model.ClassHard && id != model.GateE {
			issues = append(issues, fmt.Sprintf("gate %s is hard class and cannot carry a soft warn status", id))
		}
	}
	if len(issues) > 0 {
		return fail("gates.v1", issues)
	}
	return nil
}

// ValidatePerspectivesDocument enforces perspectives.v1's uniqueness and
// non-empty-field rules.
func ValidatePerspectivesDocument(p *model.PerspectivesDocument) error {
	var issues []string
	seen := map[string]bool{}
	for i, persp := range p.Perspectives {
		if persp.ID == "" {
			issues = append(issues, fmt.Sprintf("perspectives[%d].id must not be empty", i))
		} else if seen[persp.ID] {
			issues = append(issues, fmt.Sprintf("perspectives[%d].id %q is a duplicate", i, persp.ID))
		}
		seen[persp.ID] = true
		switch persp.Track {
		case model.TrackStandard, model.TrackIndependent, model.TrackContrarian:
		default:
			issues = append(issues, fmt.Sprintf("perspectives[%d].track %q is not known", i, persp.Track))
		}
		if persp.AgentType == "" {
			issues = append(issues, fmt.Sprintf("perspectives[%d].agent_type must not be empty", i))
		}
	}
	if len(p.Perspectives) == 0 {
		issues = append(issues, "perspectives must not be empty")
	}
	if len(issues) > 0 {
		return fail("perspectives.v1", issues)
	}
	return nil
}

// ValidatePivotDocument enforces gap_id uniqueness and known priority/source
// enums (spec.md §4.7).
func ValidatePivotDocument(pd *model.PivotDocument) error {
	var issues []string
	seen := map[string]bool{}
	for i, g := range pd.Gaps {
		if g.GapID == "" {
			issues = append(issues, fmt.Sprintf("gaps[%d].gap_id must not be empty", i))
		} else if seen[g.GapID] {
			issues = append(issues, fmt.Sprintf("gaps[%d].gap_id %q is a duplicate", i, g.GapID))
		}
		seen[g.GapID] = true
		switch g.Priority {
		case model.P0, model.P1, model.P2, model.P3:
		default:
			issues = append(issues, fmt.Sprintf("gaps[%d].priority %q is not known", i, g.Priority))
		}
		switch g.Source {
		case model.GapSourceExplicit, model.GapSourceParsedWave1:
		default:
			issues = append(issues, fmt.Sprintf("gaps[%d].source %q is not known", i, g.Source))
		}
	}
	if len(issues) > 0 {
		return fail("pivot_decision.v1", issues)
	}
	return nil
}

// ValidateURLMapDocument enforces that every cid is a well-formed
// "cid_"-prefixed fingerprint and that normalized_url values are unique.
func ValidateURLMapDocument(u *model.URLMapDocument) error {
	var issues []string
	seenCID := map[string]bool{}
	seenURL := map[string]bool{}
	for i, item := range u.Items {
		if len(item.CID) < len("cid_")+1 || item.CID[:4] != "cid_" {
			issues = append(issues, fmt.Sprintf("items[%d].cid %q is not cid_-prefixed", i, item.CID))
		} else if seenCID[item.CID] {
			issues = append(issues, fmt.Sprintf("items[%d].cid %q is a duplicate", i, item.CID))
		}
		seenCID[item.CID] = true
		if item.NormalizedURL == "" {
			issues = append(issues, fmt.Sprintf("items[%d].normalized_url must not be empty", i))
		} else if seenURL[item.NormalizedURL] {
			issues = append(issues, fmt.Sprintf("items[%d].normalized_url %q is a duplicate", i, item.NormalizedURL))
		}
		seenURL[item.NormalizedURL] = true
	}
	if len(issues) > 0 {
		return fail("url_map.v1", issues)
	}
	return nil
}

// ValidateCitation enforces citation.v1's per-record status enum and a
// non-empty cid; http_status is not checked.
func ValidateCitation(c *model.Citation) error {
	var issues []string
	switch c.Status {
	case model.CitationValid, model.CitationPaywalled, model.CitationBlocked,
		model.CitationMismatch, model.CitationInvalid:
	default:
		issues = append(issues, fmt.Sprintf("status %q is not known", c.Status))
	}
	if c.CID == "" {
		issues = append(issues, "cid must not be empty")
	}
	if len(issues) > 0 {
		return fail("citation.v1", issues)
	}
	return nil
}

// ValidateSummaryPack enforces summary_pack.v1's size-cap and completeness
// invariants against the manifest limits passed in by the caller (spec.md
// §4.6). Gate D and the pack builder run their own checks and do not call
// it.
func ValidateSummaryPack(p *model.SummaryPack, limits model.Limits) error {
	var issues []string
	if len(p.Entries) != p.ExpectedCount {
		issues = append(issues, fmt.Sprintf("entries count %d does not match expected_count %d", len(p.Entries), p.ExpectedCount))
	}
	for i, e := range p.Entries {
		if e.PerspectiveID == "" {
			issues = append(issues, fmt.Sprintf("entries[%d].perspective_id must not be empty", i))
		}
		if limits.MaxSummaryKB > 0 && e.SizeKB > float64(limits.MaxSummaryKB) {
			issues = append(issues, fmt.Sprintf("entries[%d] size_kb %.1f exceeds max_summary_kb %d", i, e.SizeKB, limits.MaxSummaryKB))
		}
	}
	if limits.MaxTotalSummaryKB > 0 && p.TotalSizeKB > float64(limits.MaxTotalSummaryKB) {
		issues = append(issues, fmt.Sprintf("total_size_kb %.1f exceeds max_total_summary_kb %d", p.TotalSizeKB, limits.MaxTotalSummaryKB))
	}
	if len(issues) > 0 {
		return fail("summary_pack.v1", issues)
	}
	return nil
}

// ValidateReviewBundle enforces review_bundle.v1's decision enum and the
// findings-required-on-changes-requested rule.
func ValidateReviewBundle(r *model.ReviewBundle) error {
	var issues []string
	switch r.Decision {
	case model.ReviewPass, model.ReviewChangesRequired:
	default:
		issues = append(issues, fmt.Sprintf("decision %q is not known", r.Decision))
	}
	if r.Decision == model.ReviewChangesRequired && len(r.Findings) == 0 {
		issues = append(issues, "decision CHANGES_REQUIRED requires at least one finding")
	}
	if len(issues) > 0 {
		return fail("review_bundle.v1", issues)
	}
	return nil
}

// ValidateTelemetryEvent enforces telemetry.event.v1's required fields.
func ValidateTelemetryEvent(e *model.TelemetryEvent) error {
	var issues []string
	if e.RunID == "" {
		issues = append(issues, "run_id must not be empty")
	}
	if e.EventType == "" {
		issues = append(issues, "event_type must not be empty")
	}
	if e.Seq < 0 {
		issues = append(issues, "seq must be >= 0")
	}
	if len(issues) > 0 {
		return fail("telemetry.event.v1", issues)
	}
	return nil
}
