package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sorare-coach/internal/api"
	"sorare-coach/internal/cache"
	"sorare-coach/internal/config"
	"sorare-coach/internal/constants"
	"sorare-coach/internal/domain"
	"sorare-coach/internal/metrics"
	"sorare-coach/internal/performance"

	"github.com/goccy/go-json"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// GraphQLExecutor runs one GraphQL request, normally through the request
// cache.
type GraphQLExecutor interface {
	Execute(ctx context.Context, req cache.Request) (json.RawMessage, error)
}

type CollectionService struct {
	executor     GraphQLExecutor
	persistence  *PersistenceService
	logger       zerolog.Logger
	query        string
	pageSize     int
	maxPages     int
	pageAttempts int
	now          func() time.Time
}

func NewCollectionService(executor GraphQLExecutor, persistence *PersistenceService, cfg *config.Config, logger zerolog.Logger) *CollectionService {
	return &CollectionService{
		executor:     executor,
		persistence:  persistence,
		logger:       logger.With().Str("component", "collection").Logger(),
		query:        api.UserCardsQuery(cfg.FetchScoreHistory),
		pageSize:     constants.CardsPageSize,
		maxPages:     constants.MaxCollectionPages,
		pageAttempts: cfg.UpstreamMaxAttempts,
		now:          time.Now,
	}
}

// FetchCollection walks every page of the user's owned cards, derives a
// performance for each player and persists the result. Any page failure
// aborts the lookup before anything is written. Persistence failures only
// show up in the returned report.
func (s *CollectionService) FetchCollection(ctx context.Context, slug string) (*domain.Collection, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, fmt.Errorf("user slug is required: %w", domain.ErrInvalidArgument)
	}

	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	run := domain.IngestRun{UserSlug: slug, StartedAt: s.now().UTC()}
	if id, err := gonanoid.New(); err == nil {
		run.ID = id
	} else {
		s.logger.Warn().Err(err).Msg("failed to generate ingest run id")
	}

	log := s.logger.With().Str("user", slug).Str("run_id", run.ID).Logger()
	log.Info().Msg("fetching card collection")

	user, nodes, pages, err := s.fetchAllPages(ctx, slug)
	metrics.CollectionPages.Observe(float64(pages))
	if err != nil {
		log.Error().Err(err).Int("pages", pages).Msg("collection fetch aborted")
		metrics.CollectionFetches.WithLabelValues("failed").Inc()
		run.Status = domain.IngestStatusFailed
		run.Error = err.Error()
		s.finishRun(ctx, &run)
		return nil, err
	}

	cards, perfs := buildCollection(nodes)

	flat := make([]domain.Card, len(cards))
	for i := range cards {
		flat[i] = cards[i].Card
	}
	// the fetched set is stored even if the caller goes away now
	report := s.persistence.IngestCollection(context.WithoutCancel(ctx), flat, perfs)

	// pick up the normalized rarity and timestamps written by the store
	byPlayer := make(map[string]*domain.PlayerPerformance, len(perfs))
	for i := range perfs {
		byPlayer[perfs[i].PlayerID] = &perfs[i]
	}
	for i := range cards {
		cards[i].Card = flat[i]
		if perf, ok := byPlayer[cards[i].PlayerID]; ok {
			cards[i].Performance = perf
		}
	}

	run.CardCount = len(cards)
	run.FailedCount = len(report.Failed)
	run.Status = domain.IngestStatusSucceeded
	if report.Partial() {
		run.Status = domain.IngestStatusPartial
	}
	metrics.CollectionFetches.WithLabelValues(run.Status).Inc()
	s.finishRun(ctx, &run)

	log.Info().
		Int("pages", pages).
		Int("cards", len(cards)).
		Int("performances", len(perfs)).
		Int("failed", len(report.Failed)).
		Msg("card collection fetched")

	return &domain.Collection{
		User:   user,
		Cards:  cards,
		Pages:  pages,
		Report: report,
		RunID:  run.ID,
	}, nil
}

func (s *CollectionService) fetchAllPages(ctx context.Context, slug string) (domain.User, []api.CardNode, int, error) {
	var (
		user   domain.User
		nodes  []api.CardNode
		cursor *string
	)

	for page := 1; ; page++ {
		if page > s.maxPages {
			return user, nil, page - 1, &domain.UpstreamError{
				Kind:    domain.ErrUnknownUpstream,
				Message: fmt.Sprintf("collection exceeds %d pages", s.maxPages),
			}
		}

		data, err := s.executor.Execute(ctx, cache.Request{
			Query:       s.query,
			Variables:   api.UserCardsVariables(slug, s.pageSize, cursor),
			MaxAttempts: s.pageAttempts,
		})
		if err != nil {
			return user, nil, page - 1, fmt.Errorf("failed to fetch cards page %d: %w", page, err)
		}

		var parsed api.UserCardsData
		if err := json.Unmarshal(data, &parsed); err != nil {
			return user, nil, page - 1, &domain.UpstreamError{
				Kind:    domain.ErrUnknownUpstream,
				Message: fmt.Sprintf("malformed cards page %d", page),
				Err:     err,
			}
		}
		if parsed.User == nil {
			return user, nil, page - 1, fmt.Errorf("user %q: %w", slug, domain.ErrNotFound)
		}

		if page == 1 {
			user = domain.User{ID: parsed.User.ID, Slug: parsed.User.Slug, Nickname: parsed.User.Nickname}
		}
		nodes = append(nodes, parsed.User.Cards.Nodes...)

		info := parsed.User.Cards.PageInfo
		s.logger.Debug().Str("user", slug).Int("page", page).Int("nodes", len(parsed.User.Cards.Nodes)).Bool("has_next", info.HasNextPage).Msg("fetched cards page")

		if !info.HasNextPage {
			return user, nodes, page, nil
		}
		if info.EndCursor == "" {
			return user, nil, page, &domain.UpstreamError{
				Kind:    domain.ErrUnknownUpstream,
				Message: fmt.Sprintf("page %d has a next page but no end cursor", page),
			}
		}
		next := info.EndCursor
		cursor = &next
	}
}

func (s *CollectionService) finishRun(ctx context.Context, run *domain.IngestRun) {
	run.FinishedAt = s.now().UTC()
	if run.ID == "" {
		return
	}
	// the lookup result stands even when its history row cannot be written
	if err := s.persistence.RecordIngestRun(context.WithoutCancel(ctx), run); err != nil {
		s.logger.Warn().Err(err).Str("run_id", run.ID).Msg("failed to record ingest run")
	}
}

// buildCollection maps upstream nodes to cards in upstream order and derives
// one performance per distinct player.
func buildCollection(nodes []api.CardNode) ([]domain.CollectionCard, []domain.PlayerPerformance) {
	cards := make([]domain.CollectionCard, 0, len(nodes))
	perfs := []domain.PlayerPerformance{}
	seen := make(map[string]bool)

	for _, node := range nodes {
		cards = append(cards, toCollectionCard(node))

		perf, ok := performance.Derive(node)
		if !ok || perf.PlayerID == "" || seen[perf.PlayerID] {
			continue
		}
		seen[perf.PlayerID] = true
		perfs = append(perfs, perf)
	}
	return cards, perfs
}

func toCollectionCard(node api.CardNode) domain.CollectionCard {
	card := domain.CollectionCard{
		Card: domain.Card{
			ID:     node.ID,
			Slug:   node.Slug,
			Rarity: domain.NormalizeRarity(node.Rarity),
			XP:     max(int(node.XP.Value), 0),
		},
	}
	if node.Season != nil {
		card.Season = node.Season.StartYear
	}

	p := node.Player
	if p == nil {
		return card
	}
	card.PlayerID = p.ID
	card.DisplayName = p.DisplayName
	card.Position = p.Position
	card.Age = int(p.Age.Value)
	if p.ActiveClub != nil {
		card.Club = p.ActiveClub.Name
		if p.ActiveClub.DomesticLeague != nil {
			card.League = p.ActiveClub.DomesticLeague.Name
		}
	}
	return card
}
