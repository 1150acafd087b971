package repository

import (
	"context"
	"database/sql"
	"fmt"

	"sorare-coach/internal/domain"

	"github.com/rs/zerolog"
)

type IngestRunRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewIngestRunRepository(sqlDB *sql.DB, logger zerolog.Logger) *IngestRunRepository {
	return &IngestRunRepository{db: sqlDB, logger: logger}
}

func (r *IngestRunRepository) Create(ctx context.Context, run *domain.IngestRun) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO ingest_runs (id, user_slug, card_count, failed_count, status, error, started_at, finished_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.UserSlug,
		run.CardCount,
		run.FailedCount,
		run.Status,
		run.Error,
		run.StartedAt.UTC(),
		run.FinishedAt.UTC(),
	)
	if err != nil {
		r.logger.Error().Err(err).Str("run_id", run.ID).Msg("failed to record ingest run")
		return fmt.Errorf("failed to create ingest run %s: %w", run.ID, err)
	}
	return nil
}

// ListRecent returns the latest runs, newest first.
func (r *IngestRunRepository) ListRecent(ctx context.Context, limit int) ([]domain.IngestRun, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, user_slug, card_count, failed_count, status, error, started_at, finished_at
FROM ingest_runs
ORDER BY started_at DESC, id
LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query ingest runs: %w", err)
	}
	defer rows.Close()

	runs := []domain.IngestRun{}
	for rows.Next() {
		var run domain.IngestRun
		if err := rows.Scan(
			&run.ID,
			&run.UserSlug,
			&run.CardCount,
			&run.FailedCount,
			&run.Status,
			&run.Error,
			&run.StartedAt,
			&run.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ingest run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
