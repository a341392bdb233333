package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func getCounterValue(cv *prometheus.CounterVec, labels ...string) float64 {
	m := &dto.Metric{}
	if err := cv.WithLabelValues(labels...).Write(m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

func getGaugeValue(g prometheus.Gauge) float64 {
	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		return 0
	}
	return m.GetGauge().GetValue()
}

func getHistogramCount(hv *prometheus.HistogramVec, labels ...string) uint64 {
	m := &dto.Metric{}
	observer := hv.WithLabelValues(labels...)
	if c, ok := observer.(prometheus.Metric); ok {
		if err := c.Write(m); err != nil {
			return 0
		}
		return m.GetHistogram().GetSampleCount()
	}
	return 0
}

func TestRecordTick(t *testing.T) {
	RecordTick("pre_pivot", "ok", 2*time.Second)

	val := getCounterValue(TicksTotal, "pre_pivot", "ok")
	if val < 1 {
		t.Errorf("TicksTotal = %f, want >= 1", val)
	}

	count := getHistogramCount(TickDurationSeconds, "pre_pivot")
	if count < 1 {
		t.Errorf("TickDurationSeconds sample count = %d, want >= 1", count)
	}
}

func TestRecordGateEvaluation(t *testing.T) {
	RecordGateEvaluation("B", "pass")
	RecordGateEvaluation("B", "pass")

	val := getCounterValue(GateEvaluationsTotal, "B", "pass")
	if val < 2 {
		t.Errorf("GateEvaluationsTotal = %f, want >= 2", val)
	}
}

func TestRecordRetryCapExhaustion(t *testing.T) {
	RecordRetryCapExhaustion("B")

	val := getCounterValue(RetryCapExhaustionsTotal, "B")
	if val < 1 {
		t.Errorf("RetryCapExhaustionsTotal = %f, want >= 1", val)
	}
}

func TestRecordStageTransition(t *testing.T) {
	RecordStageTransition("pivot", "wave2")

	val := getCounterValue(StageTransitionsTotal, "pivot", "wave2")
	if val < 1 {
		t.Errorf("StageTransitionsTotal = %f, want >= 1", val)
	}
}

func TestRecordRunAgentInvocation(t *testing.T) {
	RecordRunAgentInvocation("researcher", "success")
	RecordRunAgentInvocation("researcher", "failed")

	success := getCounterValue(RunAgentInvocationsTotal, "researcher", "success")
	failed := getCounterValue(RunAgentInvocationsTotal, "researcher", "failed")
	if success < 1 {
		t.Errorf("success = %f, want >= 1", success)
	}
	if failed < 1 {
		t.Errorf("failed = %f, want >= 1", failed)
	}
}

func TestRecordCitationValidation(t *testing.T) {
	RecordCitationValidation("standard", "valid")

	val := getCounterValue(CitationsValidatedTotal, "standard", "valid")
	if val < 1 {
		t.Errorf("CitationsValidatedTotal = %f, want >= 1", val)
	}
}

func TestActiveRuns(t *testing.T) {
	ActiveRuns.Set(0)

	ActiveRuns.Inc()
	ActiveRuns.Inc()
	val := getGaugeValue(ActiveRuns)
	if val != 2 {
		t.Errorf("ActiveRuns = %f, want 2", val)
	}

	ActiveRuns.Dec()
	val = getGaugeValue(ActiveRuns)
	if val != 1 {
		t.Errorf("ActiveRuns after Dec = %f, want 1", val)
	}
}
