package service

import (
	"context"
	"errors"
	"fmt"

	"sorare-coach/internal/constants"
	"sorare-coach/internal/domain"
	"sorare-coach/internal/metrics"
	"sorare-coach/internal/repository"

	"github.com/rs/zerolog"
)

type PersistenceService struct {
	cards  *repository.CardRepository
	perfs  *repository.PerformanceRepository
	runs   *repository.IngestRunRepository
	logger zerolog.Logger
}

func NewPersistenceService(
	cards *repository.CardRepository,
	perfs *repository.PerformanceRepository,
	runs *repository.IngestRunRepository,
	logger zerolog.Logger,
) *PersistenceService {
	return &PersistenceService{
		cards:  cards,
		perfs:  perfs,
		runs:   runs,
		logger: logger.With().Str("component", "persistence").Logger(),
	}
}

func (s *PersistenceService) SaveCard(ctx context.Context, card *domain.Card) error {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()
	return s.cards.Upsert(ctx, card)
}

func (s *PersistenceService) SavePlayerPerformance(ctx context.Context, perf *domain.PlayerPerformance) error {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()
	return s.perfs.Upsert(ctx, perf)
}

func (s *PersistenceService) GetCard(ctx context.Context, id string) (*domain.Card, error) {
	return s.cards.Get(ctx, id)
}

func (s *PersistenceService) GetCardsByPlayer(ctx context.Context, playerID string) ([]domain.Card, error) {
	return s.cards.ListByPlayer(ctx, playerID)
}

func (s *PersistenceService) ListCards(ctx context.Context) ([]domain.Card, error) {
	return s.cards.List(ctx)
}

// GetPerformance returns nil without an error when the player has no
// stored performance.
func (s *PersistenceService) GetPerformance(ctx context.Context, playerID string) (*domain.PlayerPerformance, error) {
	perf, err := s.perfs.Get(ctx, playerID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return perf, err
}

func (s *PersistenceService) ListPerformances(ctx context.Context) ([]domain.PlayerPerformance, error) {
	return s.perfs.List(ctx)
}

func (s *PersistenceService) GetStats(ctx context.Context) (domain.Stats, error) {
	cards, err := s.cards.Count(ctx)
	if err != nil {
		return domain.Stats{}, err
	}
	perfs, err := s.perfs.Count(ctx)
	if err != nil {
		return domain.Stats{}, err
	}
	return domain.Stats{Cards: cards, Performances: perfs}, nil
}

// IngestCollection writes every card and performance as its own statement.
// A failed write is logged and reported, the remaining records are still
// written. Succeeded lists the ids of the cards that were stored.
func (s *PersistenceService) IngestCollection(ctx context.Context, cards []domain.Card, perfs []domain.PlayerPerformance) domain.IngestReport {
	report := domain.IngestReport{
		Succeeded: []string{},
		Failed:    []domain.IngestFailure{},
	}

	for i := range cards {
		if err := s.SaveCard(ctx, &cards[i]); err != nil {
			s.recordFailure(&report, "card", cards[i].ID, err)
			continue
		}
		report.Succeeded = append(report.Succeeded, cards[i].ID)
	}

	for i := range perfs {
		if err := s.SavePlayerPerformance(ctx, &perfs[i]); err != nil {
			s.recordFailure(&report, "performance", perfs[i].PlayerID, err)
		}
	}

	if report.Partial() {
		s.logger.Warn().
			Int("stored", len(report.Succeeded)).
			Int("failed", len(report.Failed)).
			Msg("collection persisted with failures")
	}
	return report
}

func (s *PersistenceService) recordFailure(report *domain.IngestReport, record, id string, err error) {
	s.logger.Warn().Err(err).Str("record", record).Str("id", id).Msg("failed to persist record")
	metrics.PersistenceFailures.WithLabelValues(record).Inc()
	report.Failed = append(report.Failed, domain.IngestFailure{ID: id, Record: record, Error: err.Error()})
}

func (s *PersistenceService) RecordIngestRun(ctx context.Context, run *domain.IngestRun) error {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()
	if err := s.runs.Create(ctx, run); err != nil {
		return fmt.Errorf("failed to record ingest run: %w", err)
	}
	return nil
}

func (s *PersistenceService) ListIngestRuns(ctx context.Context, limit int) ([]domain.IngestRun, error) {
	if limit <= 0 {
		limit = constants.IngestRunListLimit
	}
	return s.runs.ListRecent(ctx, limit)
}
