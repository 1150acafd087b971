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

type CardRepository struct {
	db     *sql.DB
	logger zerolog.Logger
	now    func() time.Time
}

func NewCardRepository(sqlDB *sql.DB, logger zerolog.Logger) *CardRepository {
	return &CardRepository{
		db:     sqlDB,
		logger: logger,
		now:    time.Now,
	}
}

const upsertCardSQL = `
INSERT INTO cards (id, slug, player_id, display_name, position, rarity, xp, season, last_updated)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    slug = excluded.slug,
    player_id = excluded.player_id,
    display_name = excluded.display_name,
    position = excluded.position,
    rarity = excluded.rarity,
    xp = excluded.xp,
    season = excluded.season,
    last_updated = excluded.last_updated`

const selectCardColumns = `SELECT id, slug, player_id, display_name, position, rarity, xp, season, last_updated FROM cards`

// Upsert stores card keyed by its id, overwriting every column. The rarity is
// normalized and LastUpdated stamped on card itself, so the caller sees the
// stored values.
func (r *CardRepository) Upsert(ctx context.Context, card *domain.Card) error {
	if strings.TrimSpace(card.ID) == "" {
		return fmt.Errorf("card id is required: %w", domain.ErrInvalidArgument)
	}

	card.Rarity = domain.NormalizeRarity(card.Rarity)
	card.LastUpdated = r.now().UTC()

	_, err := r.db.ExecContext(ctx, upsertCardSQL,
		card.ID,
		card.Slug,
		card.PlayerID,
		card.DisplayName,
		card.Position,
		card.Rarity,
		card.XP,
		card.Season,
		card.LastUpdated,
	)
	if err != nil {
		r.logger.Error().Err(err).Str("card_id", card.ID).Msg("failed to upsert card")
		return fmt.Errorf("failed to upsert card %s: %w", card.ID, err)
	}
	return nil
}

func (r *CardRepository) Get(ctx context.Context, id string) (*domain.Card, error) {
	row := r.db.QueryRowContext(ctx, selectCardColumns+` WHERE id = ?`, id)
	card, err := scanCard(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("card %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get card %s: %w", id, err)
	}
	return card, nil
}

func (r *CardRepository) ListByPlayer(ctx context.Context, playerID string) ([]domain.Card, error) {
	return r.list(ctx, selectCardColumns+` WHERE player_id = ? ORDER BY last_updated DESC, id`, playerID)
}

// List returns every stored card, most recently updated first.
func (r *CardRepository) List(ctx context.Context) ([]domain.Card, error) {
	return r.list(ctx, selectCardColumns+` ORDER BY last_updated DESC, id`)
}

func (r *CardRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cards`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count cards: %w", err)
	}
	return n, nil
}

func (r *CardRepository) list(ctx context.Context, query string, args ...any) ([]domain.Card, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cards: %w", err)
	}
	defer rows.Close()

	cards := []domain.Card{}
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card: %w", err)
		}
		cards = append(cards, *card)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cards: %w", err)
	}
	return cards, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCard(s scanner) (*domain.Card, error) {
	var c domain.Card
	if err := s.Scan(
		&c.ID,
		&c.Slug,
		&c.PlayerID,
		&c.DisplayName,
		&c.Position,
		&c.Rarity,
		&c.XP,
		&c.Season,
		&c.LastUpdated,
	); err != nil {
		return nil, err
	}
	return &c, nil
}
