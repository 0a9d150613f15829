package numbering

// Metrics receives numbering events. The Prometheus implementation lives in
// infrastructure/metrics.
type Metrics interface {
	PreviewServed(source Source, degraded string)
	CommitFinished(outcome Outcome)
	ClaimConflict()
	RepairFinished(err error)
}

// NopMetrics discards all events.
type NopMetrics struct{}

func (NopMetrics) PreviewServed(Source, string) {}
func (NopMetrics) CommitFinished(Outcome)       {}
func (NopMetrics) ClaimConflict()               {}
func (NopMetrics) RepairFinished(error)         {}

var _ Metrics = NopMetrics{}
