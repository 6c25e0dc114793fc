// Package metrics exposes prometheus instrumentation for the engine:
// plan saves, generation cascades, submissions, and approval decisions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds the engine's collectors. A nil Registry is a no-op, so
// tests can pass nil.
type Registry struct {
	saves       *prometheus.CounterVec
	generations prometheus.Counter
	submissions prometheus.Counter
	decisions   *prometheus.CounterVec
}

// New registers the collectors with the given registerer.
func New(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)
	return &Registry{
		saves: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskflow",
			Name:      "plan_saves_total",
			Help:      "Completed plan saves, partitioned by whether generation ran.",
		}, []string{"generate"}),
		generations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "taskflow",
			Name:      "generations_total",
			Help:      "Explicit generation cascades completed.",
		}),
		submissions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "taskflow",
			Name:      "task_submissions_total",
			Help:      "Task submissions accepted.",
		}),
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskflow",
			Name:      "approval_decisions_total",
			Help:      "Approval decisions recorded, partitioned by outcome.",
		}, []string{"outcome"}),
	}
}

// SaveCompleted counts one committed plan save.
func (r *Registry) SaveCompleted(generate bool) {
	if r == nil {
		return
	}
	label := "false"
	if generate {
		label = "true"
	}
	r.saves.WithLabelValues(label).Inc()
}

// GenerationCompleted counts one explicit generation run.
func (r *Registry) GenerationCompleted() {
	if r == nil {
		return
	}
	r.generations.Inc()
}

// TaskSubmitted counts one accepted submission.
func (r *Registry) TaskSubmitted() {
	if r == nil {
		return
	}
	r.submissions.Inc()
}

// ApprovalDecided counts one approve or reject decision.
func (r *Registry) ApprovalDecided(approved bool) {
	if r == nil {
		return
	}
	outcome := "rejected"
	if approved {
		outcome = "approved"
	}
	r.decisions.WithLabelValues(outcome).Inc()
}
