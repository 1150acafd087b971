package fx

import (
	"sorare-coach/internal/api"
	"sorare-coach/internal/cache"
	"sorare-coach/internal/config"
	"sorare-coach/internal/database"
	"sorare-coach/internal/logger"
	"sorare-coach/internal/repository"
	"sorare-coach/internal/server"
	"sorare-coach/internal/service"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func ProvideRequestCache(cfg *config.Config, client *api.SorareClient, logger zerolog.Logger) *cache.RequestCache {
	return cache.New(client,
		cache.WithTTL(cfg.CacheTTL),
		cache.WithRateLimitTTL(cfg.RateLimitTTL),
		cache.WithBackoff(cfg.RetryBackoff),
		cache.WithDefaultAttempts(cfg.UpstreamMaxAttempts),
		cache.WithCoalescing(cfg.CacheCoalesce),
		cache.WithLogger(logger.With().Str("component", "request_cache").Logger()),
	)
}

func ProvideExecutor(c *cache.RequestCache) service.GraphQLExecutor {
	return c
}

var Module = fx.Options(
	logger.Module,
	config.Module,
	fx.Provide(database.New),
	// repos
	fx.Provide(repository.NewCardRepository),
	fx.Provide(repository.NewPerformanceRepository),
	fx.Provide(repository.NewIngestRunRepository),
	// api clients
	fx.Provide(api.NewSorareClient),
	fx.Provide(api.NewOpenAIClient),
	fx.Provide(ProvideRequestCache),
	fx.Provide(ProvideExecutor),
	// svc
	fx.Provide(service.NewPersistenceService),
	fx.Provide(service.NewCollectionService),
	fx.Provide(service.NewGameWeekService),
	fx.Provide(service.NewCoachService),
	// server
	fx.Provide(server.NewHandler),
	fx.Provide(server.NewRouter),
)
