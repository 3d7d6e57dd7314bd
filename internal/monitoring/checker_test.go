package monitoring

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/crm-dedupe/internal/config"
	"github.com/sells-group/crm-dedupe/internal/model"
)

func TestChecker_RunStopsOnCancel(t *testing.T) {
	st := &mockStore{}
	collector := NewCollector(st)
	alerter := NewAlerter(config.MonitoringConfig{
		CheckIntervalSecs:    1,
		LookbackWindowHours:  24,
		FailureRateThreshold: 0.10,
	})
	checker := NewChecker(collector, alerter, config.MonitoringConfig{
		CheckIntervalSecs:   1,
		LookbackWindowHours: 24,
	})

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	// Let it tick once then cancel.
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
		// Run returned.
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestChecker_DefaultInterval(t *testing.T) {
	st := &mockStore{}
	collector := NewCollector(st)
	alerter := NewAlerter(config.MonitoringConfig{})

	// Zero interval should default to 5 minutes.
	checker := NewChecker(collector, alerter, config.MonitoringConfig{
		CheckIntervalSecs: 0,
	})
	assert.NotNil(t, checker)

	// Start and immediately cancel to verify it doesn't panic.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker.Run(ctx)
}

func TestChecker_CheckSendsAlerts(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	now := time.Now().UTC()
	var runs []model.Run
	for i := 0; i < 6; i++ {
		runs = append(runs, model.Run{ID: string(rune('a' + i)), Status: model.RunStatusFailed, CreatedAt: now})
	}

	cfg := config.MonitoringConfig{
		WebhookURL:           ts.URL,
		FailureRateThreshold: 0.10,
		LookbackWindowHours:  24,
	}
	checker := NewChecker(NewCollector(&mockStore{runs: runs}), NewAlerter(cfg), cfg)

	alerts := checker.check(context.Background(), zap.NewNop())
	assert.NotEmpty(t, alerts)
	assert.Equal(t, int32(1), received.Load())
}

func TestChecker_CheckPublishesSnapshot(t *testing.T) {
	now := time.Now().UTC()
	runs := []model.Run{
		{ID: "a", Status: model.RunStatusComplete, CreatedAt: now},
		{ID: "b", Status: model.RunStatusComplete, CreatedAt: now},
		{ID: "c", Status: model.RunStatusComplete, CreatedAt: now},
		{ID: "d", Status: model.RunStatusFailed, CreatedAt: now},
	}
	cfg := config.MonitoringConfig{LookbackWindowHours: 24, FailureRateThreshold: 0.5}
	m := NewMetrics()
	checker := NewChecker(NewCollector(&mockStore{runs: runs}), NewAlerter(cfg), cfg, WithSnapshotMetrics(m))

	assert.Nil(t, checker.Last())
	alerts := checker.check(context.Background(), zap.NewNop())
	assert.Empty(t, alerts)

	snap := checker.Last()
	require.NotNil(t, snap)
	assert.Equal(t, 4, snap.RunsTotal)
	assert.InDelta(t, 0.25, testutil.ToFloat64(m.windowFailRate), 0.001)
	assert.InDelta(t, 3, testutil.ToFloat64(m.windowRuns.WithLabelValues("complete")), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(m.windowRuns.WithLabelValues("failed")), 0.001)
}

func TestChecker_CheckCollectError(t *testing.T) {
	cfg := config.MonitoringConfig{LookbackWindowHours: 24}
	checker := NewChecker(NewCollector(&mockStore{listErr: errors.New("db down")}), NewAlerter(cfg), cfg)

	assert.Nil(t, checker.check(context.Background(), zap.NewNop()))
	assert.Nil(t, checker.Last())
}

func TestChecker_RunChecksAtStartup(t *testing.T) {
	cfg := config.MonitoringConfig{CheckIntervalSecs: 3600, LookbackWindowHours: 24}
	checker := NewChecker(NewCollector(&mockStore{}), NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return checker.Last() != nil }, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done
}
