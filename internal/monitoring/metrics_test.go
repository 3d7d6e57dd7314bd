package monitoring

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crm-dedupe/internal/model"
)

func TestMetrics_ObserveKind(t *testing.T) {
	m := NewMetrics()

	m.ObserveKind(model.KindAccounts, &model.KindSummary{
		Records:           10,
		Dropped:           2,
		Clusters:          7,
		DuplicateClusters: 3,
		ExactClusters:     4,
		FuzzyClusters:     1,
		Comparisons:       12,
	})

	assert.InDelta(t, 10, testutil.ToFloat64(m.records.WithLabelValues("accounts")), 0.001)
	assert.InDelta(t, 2, testutil.ToFloat64(m.dropped.WithLabelValues("accounts")), 0.001)
	assert.InDelta(t, 4, testutil.ToFloat64(m.clusters.WithLabelValues("accounts", "exact")), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(m.clusters.WithLabelValues("accounts", "fuzzy")), 0.001)
	assert.InDelta(t, 2, testutil.ToFloat64(m.clusters.WithLabelValues("accounts", "singleton")), 0.001)
	assert.InDelta(t, 3, testutil.ToFloat64(m.duplicates.WithLabelValues("accounts")), 0.001)
	assert.InDelta(t, 12, testutil.ToFloat64(m.comparisons.WithLabelValues("accounts")), 0.001)
}

func TestMetrics_ObserveKindSkipped(t *testing.T) {
	m := NewMetrics()

	m.ObserveKind(model.KindPeople, &model.KindSummary{Skipped: true, Records: 5})
	m.ObserveKind(model.KindPeople, nil)

	assert.Equal(t, 0, testutil.CollectAndCount(m.records))
}

func TestMetrics_ObserveStage(t *testing.T) {
	m := NewMetrics()

	m.ObserveStage(model.KindPeople, "cluster", 250*time.Millisecond)
	m.ObserveStage(model.KindPeople, "merge", 10*time.Millisecond)

	assert.Equal(t, 2, testutil.CollectAndCount(m.stageDuration))
}

func TestMetrics_RunFinished(t *testing.T) {
	m := NewMetrics()

	m.RunFinished(model.RunStatusComplete)
	m.RunFinished(model.RunStatusComplete)
	m.RunFinished(model.RunStatusFailed)

	assert.InDelta(t, 2, testutil.ToFloat64(m.runs.WithLabelValues("complete")), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(m.runs.WithLabelValues("failed")), 0.001)
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.RunFinished(model.RunStatusComplete)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `crm_dedupe_runs_total{status="complete"} 1`)
}

func TestMetrics_Registries_Independent(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()

	a.RunFinished(model.RunStatusFailed)

	assert.Equal(t, 1, testutil.CollectAndCount(a.runs))
	assert.Equal(t, 0, testutil.CollectAndCount(b.runs))
	assert.NotSame(t, a.Registry(), b.Registry())
}

func TestMetrics_ObserveSnapshot(t *testing.T) {
	m := NewMetrics()
	m.ObserveSnapshot(nil)
	assert.InDelta(t, 0, testutil.ToFloat64(m.windowFailRate), 0.001)

	m.ObserveSnapshot(&MetricsSnapshot{RunsComplete: 8, RunsFailed: 2, RunsRunning: 1, RunFailRate: 0.2, DroppedRate: 0.05})
	assert.InDelta(t, 0.2, testutil.ToFloat64(m.windowFailRate), 0.001)
	assert.InDelta(t, 0.05, testutil.ToFloat64(m.windowDroppedRate), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(m.windowRuns.WithLabelValues("running")), 0.001)
}
