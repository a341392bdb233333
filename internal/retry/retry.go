// Package retry implements bounded per-gate retry accounting and cooldown
// pacing between retry attempts. The mutex-protected map-of-last-attempt
// shape is grounded on legator/internal/engine.CooldownTracker; the caps
// enforced are spec.md §4.5's GATE_RETRY_CAPS_V1.
package retry

import (
	"fmt"
	"sync"
	"time"

	"researchrun/internal/model"
	"researchrun/internal/toolsurface"
)

// Tracker paces retry attempts against GATE_RETRY_CAPS_V1 and a minimum
// cooldown between attempts for the same gate.
type Tracker struct {
	mu       sync.Mutex
	attempts map[model.GateID]int
	lastTry  map[model.GateID]time.Time
	cooldown time.Duration
}

// NewTracker builds a retry tracker with the given minimum pacing between
// attempts against the same gate (0 disables pacing).
func NewTracker(cooldown time.Duration) *Tracker {
	return &Tracker{
		attempts: map[model.GateID]int{},
		lastTry:  map[model.GateID]time.Time{},
		cooldown: cooldown,
	}
}

// Seed initializes the attempt counts from a manifest's metrics, so a
// tracker rebuilt on a later tick picks up where a prior process left off.
func (t *Tracker) Seed(retryCounts map[string]int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for gateID, count := range retryCounts {
		t.attempts[model.GateID(gateID)] = count
	}
}

// Record records one retry attempt against gateID, returning
// RETRY_CAP_EXHAUSTED if doing so would exceed GATE_RETRY_CAPS_V1, or
// INVALID_STATE if the gate is still within its cooldown window.
func (t *Tracker) Record(gateID model.GateID) (attempt int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	limit, ok := model.GateRetryCaps[gateID]
	if !ok {
		return 0, toolsurface.NewError(toolsurface.CodeInvalidArgs, "unknown gate id "+string(gateID), nil)
	}

	if last, ok := t.lastTry[gateID]; ok && t.cooldown > 0 && time.Since(last) < t.cooldown {
		return 0, toolsurface.NewError(toolsurface.CodeInvalidState,
			fmt.Sprintf("gate %s is within its retry cooldown", gateID), nil)
	}

	next := t.attempts[gateID] + 1
	if next > limit {
		return 0, toolsurface.NewError(toolsurface.CodeRetryCapExhausted,
			fmt.Sprintf("gate %s retry cap %d exhausted", gateID, limit),
			map[string]interface{}{"gate_id": gateID, "cap": limit})
	}

	t.attempts[gateID] = next
	t.lastTry[gateID] = time.Now()
	return next, nil
}

// Count returns the number of retries recorded so far against gateID.
func (t *Tracker) Count(gateID model.GateID) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempts[gateID]
}

// Remaining returns how many retries gateID has left before its cap.
func (t *Tracker) Remaining(gateID model.GateID) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return model.GateRetryCaps[gateID] - t.attempts[gateID]
}
