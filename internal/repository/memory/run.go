// Package memory holds an in-process run history used when Postgres is
// disabled. Runs are lost on restart.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/utafrali/catalogue-search/internal/domain"
	"github.com/utafrali/catalogue-search/internal/repository"
	apperrors "github.com/utafrali/catalogue-search/pkg/errors"
)

// MaxRuns caps the number of retained runs; the oldest are evicted first.
const MaxRuns = 500

type RunRepository struct {
	mu   sync.RWMutex
	runs []domain.ReindexResult
}

var _ repository.RunRepository = (*RunRepository)(nil)

func NewRunRepository() *RunRepository {
	return &RunRepository{}
}

func (r *RunRepository) Create(_ context.Context, run *domain.ReindexResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.runs {
		if r.runs[i].ID == run.ID {
			return apperrors.Conflict("reindex run " + run.ID + " already exists")
		}
	}

	r.runs = append(r.runs, *run)
	sort.SliceStable(r.runs, func(i, j int) bool {
		return r.runs[i].StartedAt.After(r.runs[j].StartedAt)
	})
	if len(r.runs) > MaxRuns {
		r.runs = r.runs[:MaxRuns]
	}
	return nil
}

func (r *RunRepository) GetByID(_ context.Context, id string) (*domain.ReindexResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := range r.runs {
		if r.runs[i].ID == id {
			run := r.runs[i]
			return &run, nil
		}
	}
	return nil, apperrors.NotFound("reindex run", id)
}

func (r *RunRepository) List(_ context.Context, limit int) ([]domain.ReindexResult, error) {
	if limit <= 0 {
		limit = repository.DefaultListLimit
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	n := min(limit, len(r.runs))
	out := make([]domain.ReindexResult, n)
	copy(out, r.runs[:n])
	return out, nil
}
