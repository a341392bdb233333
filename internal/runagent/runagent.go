// Package runagent defines the runAgent collaborator boundary: the
// orchestrator calls a function, it never holds a model client itself
// (spec.md §6's "Agent driver (runAgent)" interface). It also provides
// an offline-fixture stub so wave-1/wave-2 ticks can run deterministically
// without a live LLM behind them, and a cooldown tracker generalizing
// legator/internal/engine.CooldownTracker's agent/action/target keying to
// perspective_id, which records invocation times and reports whether a
// perspective is still inside a window. The orchestrator does not consult
// it, so re-invocations of a retried perspective are not paced by it.
package runagent

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Request is the runAgent call's input tuple.
type Request struct {
	RunID         string
	Stage         string
	RunRoot       string
	PerspectiveID string
	AgentType     string
	PromptMD      string
	OutputMD      string
}

// Error mirrors the optional error object the driver may return instead
// of markdown.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Result is the runAgent call's output tuple. Any non-empty Markdown is
// success; an Error or empty Markdown is RUN_AGENT_FAILED (decided by the
// caller, not this package, since the failure code belongs to toolsurface).
type Result struct {
	Markdown   string     `json:"markdown"`
	AgentRunID string     `json:"agent_run_id,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      *Error     `json:"error,omitempty"`
}

// Succeeded reports whether r represents a successful agent run.
func (r *Result) Succeeded() bool {
	return r != nil && r.Error == nil && r.Markdown != ""
}

// Driver runs one perspective's agent and returns its markdown output.
type Driver interface {
	RunAgent(ctx context.Context, req Request) (*Result, error)
}

// FixtureLookup resolves a perspective to canned markdown, modeling an
// offline fixture seeder (spec.md §1's "fixture seeders" collaborator).
type FixtureLookup func(req Request) (markdown string, ok bool)

// FixtureDriver is a Driver backed entirely by a FixtureLookup, used by
// the CLI's tick command (--fixtures) and the orchestrator tests to exercise
// the pipeline without a live model behind it.
type FixtureDriver struct {
	Lookup FixtureLookup
}

// NewFixtureDriver builds a FixtureDriver over a static perspective_id ->
// markdown map.
func NewFixtureDriver(fixtures map[string]string) *FixtureDriver {
	return &FixtureDriver{
		Lookup: func(req Request) (string, bool) {
			md, ok := fixtures[req.PerspectiveID]
			return md, ok
		},
	}
}

// RunAgent returns the fixture markdown for req.PerspectiveID, or a
// RUN_AGENT_FAILED-shaped Error when no fixture exists.
func (d *FixtureDriver) RunAgent(ctx context.Context, req Request) (*Result, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	started := time.Now().UTC()
	md, ok := d.Lookup(req)
	finished := time.Now().UTC()
	if !ok || md == "" {
		return &Result{
			StartedAt:  &started,
			FinishedAt: &finished,
			Error: &Error{
				Code:    "RUN_AGENT_FAILED",
				Message: fmt.Sprintf("no fixture for perspective %q", req.PerspectiveID),
			},
		}, nil
	}

	return &Result{
		Markdown:   md,
		AgentRunID: req.RunID + "/" + req.PerspectiveID,
		StartedAt:  &started,
		FinishedAt: &finished,
	}, nil
}

// CooldownTracker records the last invocation time per perspective_id and
// reports whether a retry would fall inside the configured cooldown
// window, reducing thrash against the retry caps.
type CooldownTracker struct {
	mu      sync.Mutex
	records map[string]time.Time
}

// NewCooldownTracker returns an empty tracker.
func NewCooldownTracker() *CooldownTracker {
	return &CooldownTracker{records: make(map[string]time.Time)}
}

// Record marks perspectiveID as invoked at now.
func (t *CooldownTracker) Record(perspectiveID string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records[perspectiveID] = now
}

// Within reports whether perspectiveID was last recorded inside cooldown
// of now.
func (t *CooldownTracker) Within(perspectiveID string, now time.Time, cooldown time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	last, ok := t.records[perspectiveID]
	if !ok {
		return false
	}
	return now.Sub(last) < cooldown
}
