// Package store records the history of de-duplication runs. It holds run
// summaries only, never the entities themselves.
package store

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crm-dedupe/internal/model"
)

// ErrRunNotFound is returned when a run id does not exist.
var ErrRunNotFound = errors.New("store: run not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Origin string          `json:"origin,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// limit returns the effective page size.
func (f RunFilter) limit() int {
	if f.Limit <= 0 {
		return 100
	}
	return f.Limit
}

// Store persists run history.
type Store interface {
	CreateRun(ctx context.Context, origin string) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, summary *model.Summary) error
	FailRun(ctx context.Context, runID string, runErr error) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	Migrate(ctx context.Context) error
	Close() error
}

// errorText flattens a run error for storage.
func errorText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

// DefaultSQLitePath is used when the sqlite driver has no DSN.
const DefaultSQLitePath = "dedupe.db"

// Open connects the named driver ("sqlite", "postgres", "memory" or "none")
// and applies migrations. pool only applies to postgres and may be nil.
func Open(ctx context.Context, driver, dsn string, pool *PoolConfig) (Store, error) {
	var (
		st  Store
		err error
	)
	switch driver {
	case "sqlite":
		if dsn == "" {
			dsn = DefaultSQLitePath
		}
		st, err = NewSQLite(dsn)
	case "postgres":
		if dsn == "" {
			return nil, eris.New("store: postgres requires a database url")
		}
		st, err = NewPostgres(ctx, dsn, pool)
	case "memory", "none", "":
		st = NewMemory()
	default:
		return nil, eris.Errorf("store: unsupported driver %q", driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}
