package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"sorare-coach/internal/constants"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

type Config struct {
	ServerPort string
	DBPath     string
	LogLevel   string

	SorareAPIURL      string
	SorareAPIKey      string
	FetchScoreHistory bool

	CacheTTL            time.Duration
	RateLimitTTL        time.Duration
	RetryBackoff        time.Duration
	UpstreamMaxAttempts int
	CacheCoalesce       bool

	// requests per minute and per client IP on the proxy endpoints
	ProxyRateLimit int
	CORSOrigins    []string

	OpenAIAPIKey string
	OpenAIAPIURL string
	OpenAIModel  string
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	cfg := &Config{
		ServerPort: getEnv("SERVER_PORT", "3001"),
		DBPath:     getEnv("DB_PATH", "sorare-cards.db"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),

		SorareAPIURL:      getEnv("SORARE_API_URL", "https://api.sorare.com/graphql"),
		SorareAPIKey:      getEnv("SORARE_API_KEY", ""),
		FetchScoreHistory: getEnvBool("SORARE_FETCH_SCORE_HISTORY", false),

		CacheTTL:            getEnvDuration("CACHE_TTL", constants.UpstreamCacheTTL),
		RateLimitTTL:        getEnvDuration("RATE_LIMIT_TTL", constants.RateLimitCacheTTL),
		RetryBackoff:        getEnvDuration("RETRY_BACKOFF", constants.UpstreamRetryDelay),
		UpstreamMaxAttempts: getEnvInt("UPSTREAM_MAX_ATTEMPTS", 1),
		CacheCoalesce:       getEnvBool("CACHE_COALESCE", false),

		ProxyRateLimit: getEnvInt("PROXY_RATE_LIMIT", 60),
		CORSOrigins:    getEnvList("CORS_ORIGINS", []string{"*"}),

		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		OpenAIAPIURL: getEnv("OPENAI_API_URL", "https://api.openai.com/v1/chat/completions"),
		OpenAIModel:  getEnv("OPENAI_MODEL", "gpt-4o-mini"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.Info().
		Str("db_path", cfg.DBPath).
		Str("server_port", cfg.ServerPort).
		Str("log_level", cfg.LogLevel).
		Str("sorare_api_url", cfg.SorareAPIURL).
		Bool("score_history", cfg.FetchScoreHistory).
		Dur("cache_ttl", cfg.CacheTTL).
		Dur("rate_limit_ttl", cfg.RateLimitTTL).
		Int("upstream_max_attempts", cfg.UpstreamMaxAttempts).
		Bool("coach_enabled", cfg.OpenAIAPIKey != "").
		Msg("configuration loaded")

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.SorareAPIURL == "" {
		return fmt.Errorf("SORARE_API_URL is required")
	}
	if c.CacheTTL <= 0 || c.RateLimitTTL <= 0 {
		return fmt.Errorf("cache TTLs must be positive")
	}
	if c.UpstreamMaxAttempts < 1 {
		return fmt.Errorf("UPSTREAM_MAX_ATTEMPTS must be at least 1, got %d", c.UpstreamMaxAttempts)
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("RETRY_BACKOFF must not be negative")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

var Module = fx.Provide(Load)
