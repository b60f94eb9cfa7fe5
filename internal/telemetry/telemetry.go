// Package telemetry exposes the Prometheus instruments shared by the
// recording server and the apply phase. A nil *Metrics is valid and turns
// every observation into a no-op, which keeps tests and the stdio transport
// free of registry plumbing.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	toolCalls          *prometheus.CounterVec
	recordsAppended    *prometheus.CounterVec
	handlerResults     *prometheus.CounterVec
	stagedSuppressions prometheus.Counter
}

// New builds the instrument set and registers it with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_tool_calls_total",
			Help: "Tool invocations received by the recording server.",
		}, []string{"tool", "outcome"}),
		recordsAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_records_appended_total",
			Help: "Intent records appended to the record store.",
		}, []string{"type"}),
		handlerResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_handler_results_total",
			Help: "Apply-phase handler outcomes per output type.",
		}, []string{"type", "outcome"}),
		stagedSuppressions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "warden_staged_suppressions_total",
			Help: "Mutations suppressed because the run was staged.",
		}),
	}
	reg.MustRegister(m.toolCalls, m.recordsAppended, m.handlerResults, m.stagedSuppressions)
	return m
}

func (m *Metrics) ToolCall(tool, outcome string) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(tool, outcome).Inc()
}

func (m *Metrics) RecordAppended(outputType string) {
	if m == nil {
		return
	}
	m.recordsAppended.WithLabelValues(outputType).Inc()
}

func (m *Metrics) HandlerResult(outputType, outcome string) {
	if m == nil {
		return
	}
	m.handlerResults.WithLabelValues(outputType, outcome).Inc()
}

func (m *Metrics) StagedSuppression() {
	if m == nil {
		return
	}
	m.stagedSuppressions.Inc()
}
