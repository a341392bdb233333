// Package metrics defines Prometheus metrics for the orchestrator process,
// grounded on legator/internal/metrics's CounterVec/HistogramVec/GaugeVec
// layout and package-level Record* helpers. These are process-local
// operator-facing counters; the durable record of what happened is the
// JSONL telemetry stream in internal/audit, not this package.
//
// Metric naming follows Prometheus conventions:
//   - researchrun_ prefix for all custom metrics
//   - _total suffix for counters
//   - _seconds suffix for duration histograms
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// TicksTotal counts orchestrator ticks by phase and terminal result.
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "researchrun_ticks_total",
			Help: "Total orchestrator ticks by phase and result.",
		},
		[]string{"phase", "result"},
	)

	// TickDurationSeconds is a histogram of tick wall-clock duration by phase.
	TickDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "researchrun_tick_duration_seconds",
			Help:    "Duration of orchestrator ticks in seconds.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"phase"},
	)

	// GateEvaluationsTotal counts gate evaluator runs by gate and status.
	GateEvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "researchrun_gate_evaluations_total",
			Help: "Total gate evaluator runs by gate id and resulting status.",
		},
		[]string{"gate", "status"},
	)

	// RetryCapExhaustionsTotal counts RETRY_CAP_EXHAUSTED outcomes by gate.
	RetryCapExhaustionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "researchrun_retry_cap_exhaustions_total",
			Help: "Total retry cap exhaustions by gate id.",
		},
		[]string{"gate"},
	)

	// StageTransitionsTotal counts stage_advance calls by from/to stage.
	StageTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "researchrun_stage_transitions_total",
			Help: "Total stage transitions by origin and destination stage.",
		},
		[]string{"from", "to"},
	)

	// RunAgentInvocationsTotal counts runAgent calls by agent type and outcome.
	RunAgentInvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "researchrun_run_agent_invocations_total",
			Help: "Total runAgent invocations by agent type and outcome.",
		},
		[]string{"agent_type", "outcome"},
	)

	// CitationsValidatedTotal counts citation validations by tier and status.
	CitationsValidatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "researchrun_citations_validated_total",
			Help: "Total citation validations by tier and resulting status.",
		},
		[]string{"tier", "status"},
	)

	// ActiveRuns is the number of run roots currently under an active tick.
	ActiveRuns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "researchrun_active_runs",
			Help: "Number of run roots currently executing a tick.",
		},
	)
)

// Registry is the registry this package's metrics are bound to. A
// dedicated registry (rather than the global default) keeps repeated
// test-process registration from panicking on duplicate collectors.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		TicksTotal,
		TickDurationSeconds,
		GateEvaluationsTotal,
		RetryCapExhaustionsTotal,
		StageTransitionsTotal,
		RunAgentInvocationsTotal,
		CitationsValidatedTotal,
		ActiveRuns,
	)
}

// RecordTick records one completed tick's phase, result, and duration.
func RecordTick(phase, result string, duration time.Duration) {
	TicksTotal.WithLabelValues(phase, result).Inc()
	TickDurationSeconds.WithLabelValues(phase).Observe(duration.Seconds())
}

// RecordGateEvaluation records one gate evaluator outcome.
func RecordGateEvaluation(gate, status string) {
	GateEvaluationsTotal.WithLabelValues(gate, status).Inc()
}

// RecordRetryCapExhaustion records a RETRY_CAP_EXHAUSTED outcome for gate.
func RecordRetryCapExhaustion(gate string) {
	RetryCapExhaustionsTotal.WithLabelValues(gate).Inc()
}

// RecordStageTransition records one stage_advance call.
func RecordStageTransition(from, to string) {
	StageTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordRunAgentInvocation records one runAgent call's outcome.
func RecordRunAgentInvocation(agentType, outcome string) {
	RunAgentInvocationsTotal.WithLabelValues(agentType, outcome).Inc()
}

// RecordCitationValidation records one citation validation outcome.
func RecordCitationValidation(tier, status string) {
	CitationsValidatedTotal.WithLabelValues(tier, status).Inc()
}
