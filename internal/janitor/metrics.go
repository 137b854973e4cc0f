package janitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports janitor activity as prometheus collectors.
type Metrics struct {
	passes   *prometheus.CounterVec
	scanned  *prometheus.CounterVec
	modified *prometheus.CounterVec
	demoted  *prometheus.CounterVec
	deleted  *prometheus.CounterVec
	errors   *prometheus.CounterVec
	elapsed  *prometheus.HistogramVec
}

// NewMetrics creates and registers the collectors on reg. A nil registerer
// uses the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boswell_janitor_passes_total",
			Help: "Completed janitor passes.",
		}, []string{"janitor"}),
		scanned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boswell_janitor_scanned_total",
			Help: "Claims scanned by janitors.",
		}, []string{"janitor"}),
		modified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boswell_janitor_modified_total",
			Help: "Claims modified by janitors.",
		}, []string{"janitor"}),
		demoted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boswell_janitor_demoted_total",
			Help: "Claims demoted by janitors.",
		}, []string{"janitor"}),
		deleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boswell_janitor_deleted_total",
			Help: "Claims hard-deleted by GC.",
		}, []string{"janitor"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boswell_janitor_errors_total",
			Help: "Per-item janitor errors.",
		}, []string{"janitor"}),
		elapsed: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "boswell_janitor_pass_seconds",
			Help:    "Janitor pass duration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"janitor"}),
	}

	reg.MustRegister(m.passes, m.scanned, m.modified, m.demoted, m.deleted, m.errors, m.elapsed)
	return m
}

// Observe records one pass report.
func (m *Metrics) Observe(r *RunReport) {
	labels := prometheus.Labels{"janitor": r.Janitor}
	m.passes.With(labels).Inc()
	m.scanned.With(labels).Add(float64(r.Scanned))
	m.modified.With(labels).Add(float64(r.Modified))
	m.demoted.With(labels).Add(float64(r.Demoted))
	m.deleted.With(labels).Add(float64(r.Deleted))
	m.errors.With(labels).Add(float64(r.Errors))
	m.elapsed.With(labels).Observe(r.Elapsed.Seconds())
}
