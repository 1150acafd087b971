package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"sorare-coach/internal/api"
	"sorare-coach/internal/cache"
	"sorare-coach/internal/constants"
	"sorare-coach/internal/domain"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const arenaDivision = "All"

type GameWeekService struct {
	executor GraphQLExecutor
	limiter  *rate.Limiter
	logger   zerolog.Logger
}

func NewGameWeekService(executor GraphQLExecutor, logger zerolog.Logger) *GameWeekService {
	return &GameWeekService{
		executor: executor,
		limiter:  rate.NewLimiter(rate.Limit(constants.GameWeekDetailsPerSec), 1),
		logger:   logger.With().Str("component", "gameweeks").Logger(),
	}
}

// ListGameWeeks returns the first limit fixtures in upstream order, without
// their leaderboards.
func (s *GameWeekService) ListGameWeeks(ctx context.Context, limit int) ([]domain.GameWeek, error) {
	if limit <= 0 {
		limit = constants.GameWeekListLimit
	}

	data, err := s.executor.Execute(ctx, cache.Request{Query: api.GameWeeksQuery})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch game weeks: %w", err)
	}

	var parsed api.GameWeeksData
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, &domain.UpstreamError{Kind: domain.ErrUnknownUpstream, Message: "malformed game weeks response", Err: err}
	}

	weeks := []domain.GameWeek{}
	if parsed.So5 == nil || parsed.So5.So5Fixtures == nil {
		return weeks, nil
	}
	for _, node := range parsed.So5.So5Fixtures.Nodes {
		if len(weeks) == limit {
			break
		}
		weeks = append(weeks, domain.GameWeek{Slug: node.Slug, State: node.AasmState, Leagues: []domain.League{}})
	}
	return weeks, nil
}

func (s *GameWeekService) GetGameWeek(ctx context.Context, slug string) (*domain.GameWeek, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, fmt.Errorf("game week slug is required: %w", domain.ErrInvalidArgument)
	}

	data, err := s.executor.Execute(ctx, cache.Request{
		Query:     api.GameWeekDetailQuery,
		Variables: map[string]any{"slug": slug},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch game week %s: %w", slug, err)
	}

	var parsed api.GameWeekDetailData
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, &domain.UpstreamError{Kind: domain.ErrUnknownUpstream, Message: "malformed game week response", Err: err}
	}
	if parsed.So5 == nil || parsed.So5.So5Fixture == nil {
		return nil, fmt.Errorf("game week %s: %w", slug, domain.ErrNotFound)
	}

	fixture := parsed.So5.So5Fixture
	leagues := make([]domain.League, 0, len(fixture.So5Leaderboards))
	for _, lb := range fixture.So5Leaderboards {
		leagues = append(leagues, domain.League{
			Name:     lb.So5League.DisplayName,
			Rarity:   lb.RarityType,
			Division: formatDivision(lb.Division),
		})
	}

	return &domain.GameWeek{
		Slug:    fixture.Slug,
		State:   fixture.AasmState,
		Leagues: CollapseArenaLeagues(leagues),
	}, nil
}

// ListGameWeeksWithDetails fetches the detail of each listed game week one
// at a time, paced by the limiter. Weeks whose detail fails are skipped.
func (s *GameWeekService) ListGameWeeksWithDetails(ctx context.Context, limit int) ([]domain.GameWeek, error) {
	weeks, err := s.ListGameWeeks(ctx, limit)
	if err != nil {
		return nil, err
	}

	detailed := make([]domain.GameWeek, 0, len(weeks))
	for _, week := range weeks {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		detail, err := s.GetGameWeek(ctx, week.Slug)
		if err != nil {
			s.logger.Warn().Err(err).Str("slug", week.Slug).Msg("skipping game week without detail")
			continue
		}
		detailed = append(detailed, *detail)
	}
	return detailed, nil
}

// CollapseArenaLeagues merges Arena leaderboards sharing a name and rarity
// into one entry with division "All". Arena entries come first, in order of
// first appearance, followed by the other leagues unchanged.
func CollapseArenaLeagues(leagues []domain.League) []domain.League {
	arena := []domain.League{}
	others := []domain.League{}
	seen := make(map[[2]string]bool)

	for _, l := range leagues {
		if !strings.Contains(l.Name, "Arena") {
			others = append(others, l)
			continue
		}
		key := [2]string{l.Name, l.Rarity}
		if seen[key] {
			continue
		}
		seen[key] = true
		arena = append(arena, domain.League{Name: l.Name, Rarity: l.Rarity, Division: arenaDivision})
	}
	return append(arena, others...)
}

func formatDivision(n api.Number) string {
	if !n.Valid {
		return ""
	}
	return strconv.FormatFloat(n.Value, 'f', -1, 64)
}
