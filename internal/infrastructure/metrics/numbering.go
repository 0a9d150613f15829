// Package metrics exposes numbering health signals to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"optiledger/internal/core/apperror"
	"optiledger/internal/domain/numbering"
)

const namespace = "numbering"

// Repair outcome labels.
const (
	RepairOutcomeOK         = "ok"
	RepairOutcomeInProgress = "in_progress"
	RepairOutcomeFailed     = "failed"
)

// Numbering implements numbering.Metrics with Prometheus counters.
type Numbering struct {
	previews     *prometheus.CounterVec
	commits      *prometheus.CounterVec
	casConflicts prometheus.Counter
	repairs      *prometheus.CounterVec
	drift        *prometheus.GaugeVec
}

var _ numbering.Metrics = (*Numbering)(nil)

// NewNumbering creates and registers the numbering collectors.
// A nil registerer uses prometheus.DefaultRegisterer.
func NewNumbering(registerer prometheus.Registerer) *Numbering {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Numbering{
		previews: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "preview_total",
			Help:      "Previews served, by source and degradation reason.",
		}, []string{"source", "degraded"}),
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commit_total",
			Help:      "Counter advances, by outcome.",
		}, []string{"outcome"}),
		casConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cas_conflicts_total",
			Help:      "Compare-and-swap attempts lost to a concurrent writer.",
		}),
		repairs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "repair_total",
			Help:      "Repair runs, by outcome.",
		}, []string{"outcome"}),
		drift: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "counter_drift",
			Help:      "Most recent document sequence minus the stored count, per counter.",
		}, []string{"tenant_id", "counter"}),
	}

	registerer.MustRegister(m.previews, m.commits, m.casConflicts, m.repairs, m.drift)
	return m
}

// PreviewServed implements numbering.Metrics.
func (m *Numbering) PreviewServed(source numbering.Source, degraded string) {
	if degraded == "" {
		degraded = "none"
	}
	m.previews.WithLabelValues(string(source), degraded).Inc()
}

// CommitFinished implements numbering.Metrics.
func (m *Numbering) CommitFinished(outcome numbering.Outcome) {
	m.commits.WithLabelValues(string(outcome)).Inc()
}

// ClaimConflict implements numbering.Metrics.
func (m *Numbering) ClaimConflict() {
	m.casConflicts.Inc()
}

// RepairFinished implements numbering.Metrics.
func (m *Numbering) RepairFinished(err error) {
	m.repairs.WithLabelValues(ClassifyRepair(err)).Inc()
}

// ClassifyRepair maps a repair error onto an outcome label.
func ClassifyRepair(err error) string {
	switch {
	case err == nil:
		return RepairOutcomeOK
	case apperror.HasCode(err, apperror.CodeRepairInProgress):
		return RepairOutcomeInProgress
	default:
		return RepairOutcomeFailed
	}
}

// ObserveDrift records the drift reported by numbering.Service.Diagnose.
func (m *Numbering) ObserveDrift(report *numbering.Report) {
	m.drift.WithLabelValues(report.Key.TenantID, report.Key.Name()).Set(float64(report.Drift))
}
