package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/company-intel/internal/cache"
	"github.com/sells-group/company-intel/internal/model"
)

// MemoryStore implements Store in process memory. Nothing survives a restart.
type MemoryStore struct {
	*cache.MemoryStore

	mu   sync.RWMutex
	runs map[string]*model.Run
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		MemoryStore: cache.NewMemoryStore(),
		runs:        make(map[string]*model.Run),
	}
}

func (s *MemoryStore) CreateRun(_ context.Context, names []string) (*model.Run, error) {
	now := time.Now().UTC()
	run := &model.Run{
		ID:        uuid.New().String(),
		Names:     slices.Clone(names),
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.mu.Lock()
	s.runs[run.ID] = run
	s.mu.Unlock()
	cp := *run
	return &cp, nil
}

func (s *MemoryStore) UpdateRunStatus(_ context.Context, runID string, status model.RunStatus) error {
	return s.update(runID, func(r *model.Run) { r.Status = status })
}

func (s *MemoryStore) CompleteRun(_ context.Context, runID string, report *model.Report) error {
	return s.update(runID, func(r *model.Run) {
		r.Status = model.RunStatusComplete
		r.Report = report
	})
}

func (s *MemoryStore) FailRun(_ context.Context, runID string, reason string) error {
	return s.update(runID, func(r *model.Run) {
		r.Status = model.RunStatusFailed
		r.Error = reason
	})
}

func (s *MemoryStore) GetRun(_ context.Context, runID string) (*model.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[runID]
	if !ok {
		return nil, eris.Wrap(ErrRunNotFound, runID)
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) ListRuns(_ context.Context, filter RunFilter) ([]model.Run, error) {
	s.mu.RLock()
	runs := make([]model.Run, 0, len(s.runs))
	for _, r := range s.runs {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		runs = append(runs, *r)
	}
	s.mu.RUnlock()

	slices.SortStableFunc(runs, func(a, b model.Run) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if filter.Offset >= len(runs) {
		return nil, nil
	}
	runs = runs[filter.Offset:]
	if limit := listLimit(filter); len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) update(runID string, fn func(*model.Run)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return eris.Wrap(ErrRunNotFound, runID)
	}
	fn(r)
	r.UpdatedAt = time.Now().UTC()
	return nil
}
