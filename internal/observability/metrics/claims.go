package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/claim-assistant/internal/core/domain"
)

const namespace = "claims"

// PipelineMetrics observes per-file extraction outcomes.
type PipelineMetrics struct {
	service string

	filesTotal   *prometheus.CounterVec
	fileDuration *prometheus.HistogramVec
	inFlight     prometheus.Gauge
}

func NewPipelineMetrics(service string, registerer prometheus.Registerer) *PipelineMetrics {
	filesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extraction",
			Name:      "files_total",
			Help:      "Total extracted files by outcome.",
		},
		[]string{"service", "outcome"},
	)
	fileDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "extraction",
			Name:      "file_duration_seconds",
			Help:      "Per-file extraction duration in seconds by outcome.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 90},
		},
		[]string{"service", "outcome"},
	)
	inFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "extraction",
			Name:      "files_in_flight",
			Help:      "Number of files currently being extracted.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	registerer.MustRegister(filesTotal, fileDuration, inFlight)

	return &PipelineMetrics{
		service:      service,
		filesTotal:   filesTotal,
		fileDuration: fileDuration,
		inFlight:     inFlight,
	}
}

func (m *PipelineMetrics) StartFile() {
	m.inFlight.Inc()
}

func (m *PipelineMetrics) FinishFile(outcome string, duration time.Duration) {
	m.inFlight.Dec()
	if outcome == "" {
		outcome = "unknown"
	}
	m.filesTotal.WithLabelValues(m.service, outcome).Inc()
	m.fileDuration.WithLabelValues(m.service, outcome).Observe(duration.Seconds())
}

// RunMetrics observes assistant runs and tool dispatch.
type RunMetrics struct {
	service string

	runsTotal      *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
	pollsTotal     *prometheus.CounterVec
	toolCallsTotal *prometheus.CounterVec
}

func NewRunMetrics(service string, registerer prometheus.Registerer) *RunMetrics {
	runsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assistant",
			Name:      "runs_total",
			Help:      "Total settled assistant runs by terminal status.",
		},
		[]string{"service", "status"},
	)
	runDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "assistant",
			Name:      "run_duration_seconds",
			Help:      "Assistant run duration from first poll to settle.",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
		},
		[]string{"service", "status"},
	)
	pollsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assistant",
			Name:      "polls_total",
			Help:      "Total run status polls.",
		},
		[]string{"service"},
	)
	toolCallsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assistant",
			Name:      "tool_calls_total",
			Help:      "Total tool calls dispatched by tool and outcome.",
		},
		[]string{"service", "tool", "outcome"},
	)
	registerer.MustRegister(runsTotal, runDuration, pollsTotal, toolCallsTotal)

	return &RunMetrics{
		service:        service,
		runsTotal:      runsTotal,
		runDuration:    runDuration,
		pollsTotal:     pollsTotal,
		toolCallsTotal: toolCallsTotal,
	}
}

func (m *RunMetrics) RecordPoll() {
	m.pollsTotal.WithLabelValues(m.service).Inc()
}

func (m *RunMetrics) RecordToolCall(tool, outcome string) {
	if tool == "" {
		tool = "unknown"
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.toolCallsTotal.WithLabelValues(m.service, tool, outcome).Inc()
}

func (m *RunMetrics) RecordRunSettled(status domain.RunStatus, duration time.Duration) {
	label := string(status)
	if label == "" {
		label = "unknown"
	}
	m.runsTotal.WithLabelValues(m.service, label).Inc()
	m.runDuration.WithLabelValues(m.service, label).Observe(duration.Seconds())
}
