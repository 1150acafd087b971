package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"sorare-coach/internal/domain"

	"github.com/rs/zerolog"
)

type PerformanceRepository struct {
	db     *sql.DB
	logger zerolog.Logger
	now    func() time.Time
}

func NewPerformanceRepository(sqlDB *sql.DB, logger zerolog.Logger) *PerformanceRepository {
	return &PerformanceRepository{
		db:     sqlDB,
		logger: logger,
		now:    time.Now,
	}
}

const upsertPerformanceSQL = `
INSERT INTO player_performances
    (player_id, display_name, position, l5, l15, l40, dnp_percentage, games_played, total_games, last_updated)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(player_id) DO UPDATE SET
    display_name = excluded.display_name,
    position = excluded.position,
    l5 = excluded.l5,
    l15 = excluded.l15,
    l40 = excluded.l40,
    dnp_percentage = excluded.dnp_percentage,
    games_played = excluded.games_played,
    total_games = excluded.total_games,
    last_updated = excluded.last_updated`

const selectPerformanceColumns = `SELECT player_id, display_name, position, l5, l15, l40, dnp_percentage, games_played, total_games, last_updated FROM player_performances`

func (r *PerformanceRepository) Upsert(ctx context.Context, perf *domain.PlayerPerformance) error {
	if strings.TrimSpace(perf.PlayerID) == "" {
		return fmt.Errorf("player id is required: %w", domain.ErrInvalidArgument)
	}

	perf.LastUpdated = r.now().UTC()

	_, err := r.db.ExecContext(ctx, upsertPerformanceSQL,
		perf.PlayerID,
		perf.DisplayName,
		perf.Position,
		perf.L5,
		perf.L15,
		perf.L40,
		perf.DNPPercentage,
		perf.GamesPlayed,
		perf.TotalGames,
		perf.LastUpdated,
	)
	if err != nil {
		r.logger.Error().Err(err).Str("player_id", perf.PlayerID).Msg("failed to upsert player performance")
		return fmt.Errorf("failed to upsert performance %s: %w", perf.PlayerID, err)
	}
	return nil
}

func (r *PerformanceRepository) Get(ctx context.Context, playerID string) (*domain.PlayerPerformance, error) {
	row := r.db.QueryRowContext(ctx, selectPerformanceColumns+` WHERE player_id = ?`, playerID)
	perf, err := scanPerformance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("performance %s: %w", playerID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get performance %s: %w", playerID, err)
	}
	return perf, nil
}

func (r *PerformanceRepository) List(ctx context.Context) ([]domain.PlayerPerformance, error) {
	rows, err := r.db.QueryContext(ctx, selectPerformanceColumns+` ORDER BY last_updated DESC, player_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query performances: %w", err)
	}
	defer rows.Close()

	perfs := []domain.PlayerPerformance{}
	for rows.Next() {
		perf, err := scanPerformance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan performance: %w", err)
		}
		perfs = append(perfs, *perf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate performances: %w", err)
	}
	return perfs, nil
}

func (r *PerformanceRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM player_performances`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count performances: %w", err)
	}
	return n, nil
}

func scanPerformance(s scanner) (*domain.PlayerPerformance, error) {
	var p domain.PlayerPerformance
	if err := s.Scan(
		&p.PlayerID,
		&p.DisplayName,
		&p.Position,
		&p.L5,
		&p.L15,
		&p.L40,
		&p.DNPPercentage,
		&p.GamesPlayed,
		&p.TotalGames,
		&p.LastUpdated,
	); err != nil {
		return nil, err
	}
	return &p, nil
}
