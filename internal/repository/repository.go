package repository

import (
	"context"

	"github.com/utafrali/catalogue-search/internal/domain"
)

// DefaultListLimit bounds List when the caller passes a non-positive limit.
const DefaultListLimit = 20

// RunRepository persists reindex run summaries.
type RunRepository interface {
	// Create stores a finished run. The run ID must be set.
	Create(ctx context.Context, run *domain.ReindexResult) error

	// GetByID returns apperrors.ErrNotFound when no run has the ID.
	GetByID(ctx context.Context, id string) (*domain.ReindexResult, error)

	// List returns the most recent runs first.
	List(ctx context.Context, limit int) ([]domain.ReindexResult, error)
}
