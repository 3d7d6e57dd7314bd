package store

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/crm-dedupe/internal/model"
)

// MemoryStore keeps run history in process memory. It backs the "memory"
// driver and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]*model.Run
	now  func() time.Time
}

// NewMemory returns an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		runs: make(map[string]*model.Run),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) CreateRun(_ context.Context, origin string) (*model.Run, error) {
	now := s.now()
	r := &model.Run{
		ID:        uuid.New().String(),
		Origin:    origin,
		Status:    model.RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.runs[r.ID] = r
	s.mu.Unlock()

	out := *r
	return &out, nil
}

func (s *MemoryStore) CompleteRun(_ context.Context, runID string, summary *model.Summary) error {
	return s.update(runID, func(r *model.Run) {
		r.Status = model.RunStatusComplete
		r.Summary = summary
	})
}

func (s *MemoryStore) FailRun(_ context.Context, runID string, runErr error) error {
	return s.update(runID, func(r *model.Run) {
		r.Status = model.RunStatusFailed
		r.Error = errorText(runErr)
	})
}

func (s *MemoryStore) update(runID string, fn func(*model.Run)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return eris.Wrap(ErrRunNotFound, runID)
	}
	fn(r)
	r.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, runID string) (*model.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[runID]
	if !ok {
		return nil, eris.Wrap(ErrRunNotFound, "memory: get run")
	}
	out := *r
	return &out, nil
}

func (s *MemoryStore) ListRuns(_ context.Context, filter RunFilter) ([]model.Run, error) {
	s.mu.RLock()
	var runs []model.Run
	for _, r := range s.runs {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if filter.Origin != "" && r.Origin != filter.Origin {
			continue
		}
		runs = append(runs, *r)
	}
	s.mu.RUnlock()

	slices.SortFunc(runs, func(a, b model.Run) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})

	if filter.Offset >= len(runs) {
		return nil, nil
	}
	runs = runs[filter.Offset:]
	if n := filter.limit(); n < len(runs) {
		runs = runs[:n]
	}
	return runs, nil
}
