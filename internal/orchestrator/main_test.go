package orchestrator

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain verifies that no tick's heartbeat or watchdog goroutine outlives
// its test, since a leaked runlock heartbeat loop would otherwise keep
// renewing a lease file nothing is using anymore.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
