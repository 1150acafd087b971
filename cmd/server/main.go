package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"sorare-coach/internal/cache"
	"sorare-coach/internal/config"
	"sorare-coach/internal/constants"
	fxmodules "sorare-coach/internal/fx"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
	"golang.org/x/sync/errgroup"
)

func main() {
	fx.New(
		fxmodules.Module,
		fx.Invoke(runServer),
	).Run()
}

func runServer(
	lc fx.Lifecycle,
	handler http.Handler,
	requestCache *cache.RequestCache,
	cfg *config.Config,
	db *sql.DB,
	logger zerolog.Logger,
) {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: handler,
	}

	bgCtx, stopBackground := context.WithCancel(context.Background())
	g, gCtx := errgroup.WithContext(bgCtx)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			g.Go(func() error {
				return requestCache.SweepEvery(gCtx, constants.CacheSweepInterval)
			})
			go func() {
				logger.Info().Str("addr", srv.Addr).Msg("server starting")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Fatal().Err(err).Msg("server failed")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info().Msg("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("server shutdown failed")
				return err
			}

			stopBackground()
			if err := g.Wait(); err != nil {
				logger.Warn().Err(err).Msg("background worker stopped with error")
			}

			if err := db.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing database connection")
			}
			logger.Info().Msg("server stopped gracefully")
			return nil
		},
	})
}
