package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crm-dedupe/internal/model"
	"github.com/sells-group/crm-dedupe/internal/store"
)

// collectLimit caps how many runs a single snapshot inspects.
const collectLimit = 10000

// MetricsSnapshot holds a point-in-time view of run health.
type MetricsSnapshot struct {
	// Run metrics (within lookback window).
	RunsTotal    int     `json:"runs_total"`
	RunsComplete int     `json:"runs_complete"`
	RunsFailed   int     `json:"runs_failed"`
	RunsRunning  int     `json:"runs_running"`
	RunFailRate  float64 `json:"run_fail_rate"`
	AvgTotalMs   int64   `json:"avg_total_ms"`

	// Resolution totals over completed runs.
	PeopleRecords     int     `json:"people_records"`
	PeopleDuplicates  int     `json:"people_duplicates"`
	AccountRecords    int     `json:"account_records"`
	AccountDuplicates int     `json:"account_duplicates"`
	AccountsDropped   int     `json:"accounts_dropped"`
	DroppedRate       float64 `json:"dropped_rate"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers metrics from the run store.
type Collector struct {
	store store.Store
	now   func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st, now: func() time.Time { return time.Now().UTC() }}
}

// Collect gathers a snapshot of run metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.store.ListRuns(ctx, store.RunFilter{Limit: collectLimit})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	var totalMs int64
	var timed int
	for _, r := range runs {
		if r.CreatedAt.Before(cutoff) {
			continue
		}
		snap.RunsTotal++

		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusFailed:
			snap.RunsFailed++
		case model.RunStatusRunning:
			snap.RunsRunning++
		}

		if r.Summary == nil {
			continue
		}
		if r.Summary.TotalMs > 0 {
			totalMs += r.Summary.TotalMs
			timed++
		}
		if p := r.Summary.People; p != nil && !p.Skipped {
			snap.PeopleRecords += p.Records
			snap.PeopleDuplicates += p.DuplicateClusters
		}
		if a := r.Summary.Accounts; a != nil && !a.Skipped {
			snap.AccountRecords += a.Records
			snap.AccountDuplicates += a.DuplicateClusters
			snap.AccountsDropped += a.Dropped
		}
	}

	if finished := snap.RunsComplete + snap.RunsFailed; finished > 0 {
		snap.RunFailRate = float64(snap.RunsFailed) / float64(finished)
	}
	if timed > 0 {
		snap.AvgTotalMs = totalMs / int64(timed)
	}
	if seen := snap.AccountRecords + snap.AccountsDropped; seen > 0 {
		snap.DroppedRate = float64(snap.AccountsDropped) / float64(seen)
	}

	return snap, nil
}
