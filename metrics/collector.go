// Package metrics provides Prometheus collectors for research runs,
// sub-tasks, and LLM traffic. The collector plugs into the engine as a
// MetricsRecorder and into the LLM client as a CallRecorder; a nil
// collector disables recording everywhere it is accepted.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360studio/scout/llm"
)

// Collector holds the scout metric families.
type Collector struct {
	runsStarted  prometheus.Counter
	runsTotal    *prometheus.CounterVec
	runDuration  prometheus.Histogram
	subTaskTotal *prometheus.CounterVec
	subTaskTime  *prometheus.HistogramVec
	llmCalls     *prometheus.CounterVec
	llmRetries   prometheus.Counter
	llmTokens    *prometheus.CounterVec
}

// NewCollector creates and registers the scout metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scout_runs_started_total",
			Help: "Research runs started.",
		}),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scout_runs_total",
			Help: "Research runs completed, by synthesis path.",
		}, []string{"path"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scout_run_duration_seconds",
			Help:    "End-to-end research run duration.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		subTaskTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scout_subtasks_total",
			Help: "Sub-tasks completed, by kind and outcome.",
		}, []string{"kind", "status"}),
		subTaskTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scout_subtask_duration_seconds",
			Help:    "Sub-task duration, by kind and outcome.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 12),
		}, []string{"kind", "status"}),
		llmCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scout_llm_calls_total",
			Help: "LLM calls, by capability and outcome.",
		}, []string{"capability", "status"}),
		llmRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scout_llm_retries_total",
			Help: "LLM request retries across all endpoints.",
		}),
		llmTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scout_llm_tokens_total",
			Help: "LLM tokens consumed, by direction.",
		}, []string{"direction"}),
	}

	reg.MustRegister(
		c.runsStarted,
		c.runsTotal,
		c.runDuration,
		c.subTaskTotal,
		c.subTaskTime,
		c.llmCalls,
		c.llmRetries,
		c.llmTokens,
	)

	return c
}

// RunStarted counts a run launch.
func (c *Collector) RunStarted() {
	c.runsStarted.Inc()
}

// RunCompleted counts a finished run under its synthesis path.
func (c *Collector) RunCompleted(path string, duration time.Duration) {
	c.runsTotal.WithLabelValues(path).Inc()
	c.runDuration.Observe(duration.Seconds())
}

// SubTaskCompleted counts a finished sub-task.
func (c *Collector) SubTaskCompleted(kind string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}
	c.subTaskTotal.WithLabelValues(kind, status).Inc()
	c.subTaskTime.WithLabelValues(kind, status).Observe(duration.Seconds())
}

// Record implements llm.CallRecorder: it counts the call, its retries,
// and its token usage. It never fails.
func (c *Collector) Record(_ context.Context, record *llm.CallRecord) error {
	status := "success"
	if record.Error != "" {
		status = "error"
	}
	c.llmCalls.WithLabelValues(record.Capability, status).Inc()

	if record.Retries > 0 {
		c.llmRetries.Add(float64(record.Retries))
	}
	if record.PromptTokens > 0 {
		c.llmTokens.WithLabelValues("prompt").Add(float64(record.PromptTokens))
	}
	if record.CompletionTokens > 0 {
		c.llmTokens.WithLabelValues("completion").Add(float64(record.CompletionTokens))
	}

	return nil
}
