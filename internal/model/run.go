package model

import "time"

// RunStatus represents the current state of a de-duplication run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one recorded pipeline execution.
type Run struct {
	ID        string    `json:"id"`
	Origin    string    `json:"origin"`
	Status    RunStatus `json:"status"`
	Summary   *Summary  `json:"summary,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Summary holds the counts and timings a reviewer sees after a run.
type Summary struct {
	People   *KindSummary `json:"people,omitempty"`
	Accounts *KindSummary `json:"accounts,omitempty"`

	LoadMs  int64 `json:"load_ms"`
	TotalMs int64 `json:"total_ms"`
}

// KindSummary describes the resolution of one entity kind.
type KindSummary struct {
	Records           int   `json:"records"`
	Dropped           int   `json:"dropped,omitempty"`
	Clusters          int   `json:"clusters"`
	DuplicateClusters int   `json:"duplicate_clusters"`
	ExactClusters     int   `json:"exact_clusters"`
	FuzzyClusters     int   `json:"fuzzy_clusters"`
	Comparisons       int   `json:"comparisons"`
	Blocks            int   `json:"blocks"`
	Skipped           bool  `json:"skipped,omitempty"`
	DurationMs        int64 `json:"duration_ms"`
}
