package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sells-group/crm-dedupe/internal/model"
)

const namespace = "crm_dedupe"

// Metrics exports pipeline activity to Prometheus. Each instance owns its
// registry so servers and tests do not collide on the default one.
// Metrics satisfies pipeline.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	stageDuration *prometheus.HistogramVec
	records       *prometheus.CounterVec
	dropped       *prometheus.CounterVec
	clusters      *prometheus.CounterVec
	duplicates    *prometheus.CounterVec
	comparisons   *prometheus.CounterVec
	runs          *prometheus.CounterVec

	// Gauges set from the last health snapshot.
	windowFailRate    prometheus.Gauge
	windowDroppedRate prometheus.Gauge
	windowRuns        *prometheus.GaugeVec
}

// NewMetrics registers the dedupe collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		// Labels: kind (people, accounts), stage (normalize, cluster, merge)
		stageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each pipeline stage",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"kind", "stage"}),

		records: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "records_total",
			Help:      "Records resolved by kind",
		}, []string{"kind"}),

		dropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "dropped_total",
			Help:      "Input rows dropped before clustering",
		}, []string{"kind"}),

		// Labels: kind, match (exact, fuzzy, singleton)
		clusters: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "clusters_total",
			Help:      "Clusters produced by match phase",
		}, []string{"kind", "match"}),

		duplicates: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "duplicate_clusters_total",
			Help:      "Clusters with more than one member",
		}, []string{"kind"}),

		comparisons: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "comparisons_total",
			Help:      "Pairwise similarity comparisons",
		}, []string{"kind"}),

		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished runs by status",
		}, []string{"status"}),

		windowFailRate: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "run_failure_rate",
			Help:      "Failed share of finished runs in the lookback window",
		}),

		windowDroppedRate: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "account_dropped_rate",
			Help:      "Share of account rows dropped for missing name and domain in the lookback window",
		}),

		windowRuns: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "runs",
			Help:      "Runs in the lookback window by status",
		}, []string{"status"}),
	}
}

// ObserveStage records how long a stage took for one kind.
func (m *Metrics) ObserveStage(kind model.EntityKind, stage string, d time.Duration) {
	m.stageDuration.WithLabelValues(string(kind), stage).Observe(d.Seconds())
}

// ObserveKind adds a kind summary to the running totals. Skipped kinds
// are ignored.
func (m *Metrics) ObserveKind(kind model.EntityKind, s *model.KindSummary) {
	if s == nil || s.Skipped {
		return
	}
	k := string(kind)
	m.records.WithLabelValues(k).Add(float64(s.Records))
	m.dropped.WithLabelValues(k).Add(float64(s.Dropped))
	m.clusters.WithLabelValues(k, "exact").Add(float64(s.ExactClusters))
	m.clusters.WithLabelValues(k, "fuzzy").Add(float64(s.FuzzyClusters))
	m.clusters.WithLabelValues(k, "singleton").Add(float64(s.Clusters - s.ExactClusters - s.FuzzyClusters))
	m.duplicates.WithLabelValues(k).Add(float64(s.DuplicateClusters))
	m.comparisons.WithLabelValues(k).Add(float64(s.Comparisons))
}

// RunFinished counts a run by its final status.
func (m *Metrics) RunFinished(status model.RunStatus) {
	m.runs.WithLabelValues(string(status)).Inc()
}

// ObserveSnapshot publishes a health snapshot as gauges.
func (m *Metrics) ObserveSnapshot(snap *MetricsSnapshot) {
	if snap == nil {
		return
	}
	m.windowFailRate.Set(snap.RunFailRate)
	m.windowDroppedRate.Set(snap.DroppedRate)
	m.windowRuns.WithLabelValues(string(model.RunStatusComplete)).Set(float64(snap.RunsComplete))
	m.windowRuns.WithLabelValues(string(model.RunStatusFailed)).Set(float64(snap.RunsFailed))
	m.windowRuns.WithLabelValues(string(model.RunStatusRunning)).Set(float64(snap.RunsRunning))
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
