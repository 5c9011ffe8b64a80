package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"ratefeed/internal/domain"
)

// CycleRepository records one row per completed pipeline cycle.
type CycleRepository struct {
	pool *pgxpool.Pool
}

func (r *CycleRepository) Record(ctx context.Context, report domain.CycleReport) error {
	const q = `
        insert into cycle_history
            (exec_id, started_at, finished_at, sources_ok, sources_failed, used_cache, raw_count, canonical_count, exported)
        values ($1, $2, $3, $4, $5, $6, $7, $8, $9);
    `

	if _, err := r.pool.Exec(ctx, q,
		report.ExecID,
		report.StartedAt,
		report.FinishedAt,
		report.SourcesOK,
		report.SourcesFailed,
		report.UsedCache,
		report.RawCount,
		report.CanonicalCount,
		report.Exported,
	); err != nil {
		return fmt.Errorf("failed to insert cycle report %q: %w", report.ExecID, err)
	}
	return nil
}

func NewCycleRepository(pool *pgxpool.Pool) *CycleRepository {
	return &CycleRepository{pool: pool}
}
