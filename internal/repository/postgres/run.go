package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/catalogue-search/internal/domain"
	"github.com/utafrali/catalogue-search/internal/repository"
	"github.com/utafrali/catalogue-search/pkg/database"
	apperrors "github.com/utafrali/catalogue-search/pkg/errors"
)

const runColumns = `id, tenant, language, index_name, success, total_count, execution_time_ms, message, failures, started_at, finished_at`

// RunRepository implements repository.RunRepository using PostgreSQL.
type RunRepository struct {
	pool database.DBTX
}

var _ repository.RunRepository = (*RunRepository)(nil)

// NewRunRepository creates a PostgreSQL-backed run repository.
func NewRunRepository(pool database.DBTX) *RunRepository {
	return &RunRepository{pool: pool}
}

// Create inserts a run record. Failures are stored as a JSONB array.
func (r *RunRepository) Create(ctx context.Context, run *domain.ReindexResult) (err error) {
	failures := run.Failures
	if failures == nil {
		failures = []domain.ReindexFailure{}
	}
	failuresJSON, err := json.Marshal(failures)
	if err != nil {
		return fmt.Errorf("marshal failures: %w", err)
	}

	query := `INSERT INTO reindex_runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	ctx, end := database.TraceQuery(ctx, "CreateReindexRun", query)
	defer func() { end(err) }()

	_, err = r.pool.Exec(ctx, query,
		run.ID,
		run.Tenant,
		run.Language,
		run.Index,
		run.Success,
		run.TotalCount,
		run.ExecutionTimeMs,
		run.Message,
		failuresJSON,
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert reindex run: %w", err)
	}
	return nil
}

// GetByID retrieves one run including its failure list.
func (r *RunRepository) GetByID(ctx context.Context, id string) (_ *domain.ReindexResult, err error) {
	query := `SELECT ` + runColumns + ` FROM reindex_runs WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "GetReindexRun", query)
	defer func() { end(err) }()

	run, err := scanRun(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("reindex run", id)
		}
		return nil, fmt.Errorf("get reindex run: %w", err)
	}
	return run, nil
}

// List returns up to limit runs, newest first.
func (r *RunRepository) List(ctx context.Context, limit int) (_ []domain.ReindexResult, err error) {
	if limit <= 0 {
		limit = repository.DefaultListLimit
	}
	query := `SELECT ` + runColumns + ` FROM reindex_runs ORDER BY started_at DESC LIMIT $1`

	ctx, end := database.TraceQuery(ctx, "ListReindexRuns", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list reindex runs: %w", err)
	}
	defer rows.Close()

	runs := []domain.ReindexResult{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reindex run row: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reindex run rows: %w", err)
	}
	return runs, nil
}

func scanRun(row pgx.Row) (*domain.ReindexResult, error) {
	var (
		run          domain.ReindexResult
		failuresJSON []byte
	)
	if err := row.Scan(
		&run.ID,
		&run.Tenant,
		&run.Language,
		&run.Index,
		&run.Success,
		&run.TotalCount,
		&run.ExecutionTimeMs,
		&run.Message,
		&failuresJSON,
		&run.StartedAt,
		&run.FinishedAt,
	); err != nil {
		return nil, err
	}

	if len(failuresJSON) > 0 {
		if err := json.Unmarshal(failuresJSON, &run.Failures); err != nil {
			return nil, fmt.Errorf("unmarshal failures: %w", err)
		}
	}
	if len(run.Failures) == 0 {
		run.Failures = nil
	}
	return &run, nil
}
