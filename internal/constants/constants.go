package constants

import "time"

const (
	UpstreamCacheTTL   = 1 * time.Minute
	RateLimitCacheTTL  = 10 * time.Minute
	UpstreamRetryDelay = 2 * time.Second
	CacheSweepInterval = 5 * time.Minute
)

const (
	ExternalAPITimeout = 10 * time.Second
	DatabaseTimeout    = 5 * time.Second
	RequestTimeout     = 60 * time.Second
	CoachTimeout       = 45 * time.Second
)

const (
	DBMaxOpenConns    = 1
	DBMaxIdleConns    = 1
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
)

const (
	ShutdownTimeout = 5 * time.Second
)

// Sorare charges query complexity per requested node, so pages stay small.
const (
	CardsPageSize      = 20
	MaxCollectionPages = 500
	ScoreHistoryLength = 40
)

const (
	PerformanceWindow = 15
)

const (
	GameWeekListLimit     = 10
	GameWeekDetailsPerSec = 1
	IngestRunListLimit    = 20
	CoachHistoryLimit     = 8
)
