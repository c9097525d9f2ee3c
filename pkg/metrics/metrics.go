// Package metrics holds the Prometheus collectors of the workflow engine.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	NodeVisits   *prometheus.CounterVec
	ToolDuration *prometheus.HistogramVec
	ToolFailures *prometheus.CounterVec
	Suspensions  prometheus.Counter
	Resumes      prometheus.Counter
}

// New creates the collectors and registers them with reg when it is not nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		NodeVisits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "research_node_visits_total",
				Help: "Total number of workflow node visits",
			},
			[]string{"node"},
		),
		ToolDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "research_tool_duration_seconds",
				Help:    "Duration of tool executions",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"tool"},
		),
		ToolFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "research_tool_failures_total",
				Help: "Tool executions that aborted the turn",
			},
			[]string{"tool"},
		),
		Suspensions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "research_suspensions_total",
			Help: "Turns suspended for proposal review",
		}),
		Resumes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "research_resumes_total",
			Help: "Turns resumed with review feedback",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.NodeVisits, m.ToolDuration, m.ToolFailures, m.Suspensions, m.Resumes)
	}
	return m
}

func (m *Metrics) VisitNode(node string) {
	if m == nil {
		return
	}
	m.NodeVisits.WithLabelValues(node).Inc()
}

func (m *Metrics) ObserveTool(tool string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.ToolDuration.WithLabelValues(tool).Observe(d.Seconds())
	if err != nil {
		m.ToolFailures.WithLabelValues(tool).Inc()
	}
}

func (m *Metrics) Suspended() {
	if m == nil {
		return
	}
	m.Suspensions.Inc()
}

func (m *Metrics) Resumed() {
	if m == nil {
		return
	}
	m.Resumes.Inc()
}
