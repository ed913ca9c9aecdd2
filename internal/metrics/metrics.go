// Package metrics exposes Prometheus instrumentation for the offline
// pipeline and the realtime coaching path.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/framewise/shotcoach/internal/llm"
	"github.com/framewise/shotcoach/internal/model"
)

// Registry holds all shotcoach metrics.
type Registry struct {
	reg *prometheus.Registry

	StageDuration *prometheus.HistogramVec
	PipelineRuns  *prometheus.CounterVec

	AnalysisLatency prometheus.Histogram
	AdviceEmitted   *prometheus.CounterVec

	ActiveSessions prometheus.Gauge
	SessionsTotal  prometheus.Counter

	LLMCalls *prometheus.CounterVec
}

// NewRegistry creates and registers all shotcoach metrics on a private
// Prometheus registry.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shotcoach_stage_duration_seconds",
				Help:    "Duration of each offline pipeline stage in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
			},
			[]string{"stage"},
		),

		PipelineRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shotcoach_pipeline_runs_total",
				Help: "Total number of offline pipeline runs by outcome",
			},
			[]string{"status"},
		),

		AnalysisLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "shotcoach_analysis_latency_ms",
				Help:    "Realtime analysis cycle latency in milliseconds",
				Buckets: []float64{10, 25, 50, 100, 200, 350, 500, 750, 1000, 2000},
			},
		),

		AdviceEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shotcoach_advice_emitted_total",
				Help: "Total realtime advice payloads emitted by category and priority",
			},
			[]string{"category", "priority"},
		),

		ActiveSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "shotcoach_active_sessions",
				Help: "Number of live realtime sessions",
			},
		),

		SessionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "shotcoach_sessions_total",
				Help: "Total realtime sessions created",
			},
		),

		LLMCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shotcoach_llm_calls_total",
				Help: "Total language model completion calls by result",
			},
			[]string{"result"},
		),
	}

	r.reg.MustRegister(
		r.StageDuration,
		r.PipelineRuns,
		r.AnalysisLatency,
		r.AdviceEmitted,
		r.ActiveSessions,
		r.SessionsTotal,
		r.LLMCalls,
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry for tests.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// ObserveStage records one pipeline stage execution; wired to the
// orchestrator's stage observer.
func (r *Registry) ObserveStage(stage string, elapsed time.Duration) {
	r.StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// RecordPipelineRun counts a completed or failed pipeline run.
func (r *Registry) RecordPipelineRun(status string) {
	r.PipelineRuns.WithLabelValues(status).Inc()
}

// RecordAdvice counts one emitted advice payload.
func (r *Registry) RecordAdvice(payload model.AdvicePayload) {
	r.AdviceEmitted.WithLabelValues(string(payload.Category), string(payload.Priority)).Inc()
}

// RecordAnalysisLatency records one realtime analysis cycle.
func (r *Registry) RecordAnalysisLatency(latencyMS float64) {
	r.AnalysisLatency.Observe(latencyMS)
}

// instrumentedCompleter counts completion outcomes around a Completer.
type instrumentedCompleter struct {
	inner llm.Completer
	reg   *Registry
}

// InstrumentCompleter wraps a Completer so every call lands in the
// llm_calls counter, labeled ok or with the failure code.
func (r *Registry) InstrumentCompleter(inner llm.Completer) llm.Completer {
	return &instrumentedCompleter{inner: inner, reg: r}
}

func (c *instrumentedCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	out, err := c.inner.Complete(ctx, systemPrompt, userPrompt)
	c.reg.LLMCalls.WithLabelValues(llmResult(err)).Inc()
	return out, err
}

func llmResult(err error) string {
	if err == nil {
		return "ok"
	}
	var le *llm.Error
	if errors.As(err, &le) {
		return le.Code
	}
	return "error"
}
