// Package metrics exposes Prometheus collectors for tool and call activity.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the crewdesk collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	toolActions  *prometheus.CounterVec
	calls        *prometheus.CounterVec
	joinDuration prometheus.Histogram
	toolsEnabled prometheus.Gauge
}

// New registers the collectors with reg. Registration errors are returned
// rather than panicking so tests can use fresh registries freely.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		toolActions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "crewdesk",
				Name:      "tool_actions_total",
				Help:      "Tool menu actions applied to the working set.",
			},
			[]string{"kind"},
		),
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "crewdesk",
				Name:      "calls_total",
				Help:      "Incoming calls by outcome.",
			},
			[]string{"outcome"},
		),
		joinDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "crewdesk",
				Name:      "call_join_seconds",
				Help:      "Time spent joining accepted calls.",
				Buckets:   prometheus.DefBuckets,
			},
		),
		toolsEnabled: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "crewdesk",
				Name:      "tools_enabled",
				Help:      "Number of enabled tools, scripting included.",
			},
		),
	}

	for _, c := range []prometheus.Collector{m.toolActions, m.calls, m.joinDuration, m.toolsEnabled} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ToolAction counts one applied menu action.
func (m *Metrics) ToolAction(kind string) {
	if m == nil {
		return
	}
	m.toolActions.WithLabelValues(kind).Inc()
}

// CallOutcome counts a call reaching the given outcome.
func (m *Metrics) CallOutcome(outcome string) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(outcome).Inc()
}

// ObserveJoin records how long a join took.
func (m *Metrics) ObserveJoin(d time.Duration) {
	if m == nil {
		return
	}
	m.joinDuration.Observe(d.Seconds())
}

// SetToolsEnabled updates the enabled tool gauge.
func (m *Metrics) SetToolsEnabled(n int) {
	if m == nil {
		return
	}
	m.toolsEnabled.Set(float64(n))
}

// CallsCounter returns the call counter for outcome.
func (m *Metrics) CallsCounter(outcome string) prometheus.Counter {
	return m.calls.WithLabelValues(outcome)
}
