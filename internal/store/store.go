// Package store persists enrichment runs and the provider lookup cache.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/company-intel/internal/cache"
	"github.com/sells-group/company-intel/internal/model"
)

// ErrRunNotFound is returned when a run ID does not exist.
var ErrRunNotFound = eris.New("run not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for enrichment runs. Every Store
// doubles as a cache.Store.
type Store interface {
	cache.Store

	// Runs
	CreateRun(ctx context.Context, names []string) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	CompleteRun(ctx context.Context, runID string, report *model.Report) error
	FailRun(ctx context.Context, runID string, reason string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

func listLimit(filter RunFilter) int {
	if filter.Limit <= 0 {
		return defaultListLimit
	}
	return filter.Limit
}
