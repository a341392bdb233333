package model

// SummaryEntry is one perspective's bounded summary.
type SummaryEntry struct {
	PerspectiveID string `json:"perspective_id"`
	SummaryMD     string `json:"summary_md"`
	SizeKB        float64 `json:"size_kb"`
}

// SummaryPack is summaries/summary-pack.json (summary_pack.v1).
type SummaryPack struct {
	InputsDigest  string         `json:"inputs_digest"`
	Entries       []SummaryEntry `json:"entries"`
	TotalSizeKB   float64        `json:"total_size_kb"`
	ExpectedCount int            `json:"expected_count"`
}

// ReviewDecision is review-bundle.json's decision field.
type ReviewDecision string

const (
	ReviewPass             ReviewDecision = "PASS"
	ReviewChangesRequired  ReviewDecision = "CHANGES_REQUIRED"
)

// ReviewBundle is review/review-bundle.json (review_bundle.v1).
type ReviewBundle struct {
	Decision       ReviewDecision         `json:"decision"`
	Findings       []string               `json:"findings"`
	Metrics        map[string]interface{} `json:"metrics"`
	CurrentIteration int                  `json:"current_iteration"`
}

// RevisionAction is revision_control's computed next step.
type RevisionAction string

const (
	RevisionAdvance  RevisionAction = "advance"
	RevisionEscalate RevisionAction = "escalate"
	RevisionRevise   RevisionAction = "revise"
)

// RevisionDirectives is review/revision-directives.json (revision_directives.v1).
type RevisionDirectives struct {
	Action          RevisionAction `json:"action"`
	Next            Stage          `json:"next"`
	Reason          string         `json:"reason"`
	CurrentIteration int           `json:"current_iteration"`
}

// RetryDirective is retry/retry-directives.json's per-perspective entry.
type RetryDirective struct {
	PerspectiveID string `json:"perspective_id"`
	GateID        GateID `json:"gate_id"`
	ChangeNote    string `json:"change_note"`
	Attempt       int    `json:"attempt"`
}

// RetryDirectivesDocument is retry/retry-directives.json.
type RetryDirectivesDocument struct {
	Directives []RetryDirective `json:"directives"`
}
