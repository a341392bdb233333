// Package logging provides a zap-backed structured logger for a research
// run. Every run gets one logger tagged with run_id; operators read this
// stream, but it is not the system of record — internal/audit's JSONL
// streams are.
package logging

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	baseMu  sync.RWMutex
	base    *zap.Logger
	debugOn bool
)

// Init configures the process-wide base logger. Safe to call more than
// once (e.g. in tests); the last call wins.
func Init(debug bool) error {
	baseMu.Lock()
	defer baseMu.Unlock()

	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	l, err := cfg.Build()
	if err != nil {
		return err
	}
	base = l
	debugOn = debug
	return nil
}

func logger() *zap.Logger {
	baseMu.RLock()
	defer baseMu.RUnlock()
	if base == nil {
		// Fall back to a bare, always-available logger rather than
		// panicking callers who forgot to call Init (e.g. table tests).
		l, _ := zap.NewDevelopment()
		if l == nil {
			l = zap.NewNop()
		}
		return l
	}
	return base
}

// ForRun returns a logger scoped to one run, carrying run_id on every
// entry it emits.
func ForRun(runID string) *zap.SugaredLogger {
	return logger().With(zap.String("run_id", runID)).Sugar()
}

// Category returns a logger scoped to a functional category within a run,
// e.g. Category(runID, "orchestrator").
func Category(runID, category string) *zap.SugaredLogger {
	return logger().With(zap.String("run_id", runID), zap.String("category", category)).Sugar()
}

// Sync flushes any buffered log entries; call before process exit.
func Sync() {
	baseMu.RLock()
	defer baseMu.RUnlock()
	if base != nil {
		_ = base.Sync()
	}
}

// DebugEnabled reports whether Init was last called with debug=true.
func DebugEnabled() bool {
	baseMu.RLock()
	defer baseMu.RUnlock()
	return debugOn
}

func init() {
	// A reasonable always-on default so packages that log before main()
	// calls Init (e.g. package-level test setup) don't silently drop
	// entries into a no-op logger.
	if os.Getenv("RESEARCHRUN_DEBUG") == "1" {
		_ = Init(true)
	} else {
		_ = Init(false)
	}
}
