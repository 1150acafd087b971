package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"sorare-coach/internal/config"
	"sorare-coach/internal/constants"
	"sorare-coach/internal/domain"
	"sorare-coach/internal/metrics"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/valyala/fasthttp"
)

const breakerName = "sorare-api"

type SorareClient struct {
	url     string
	apiKey  string
	timeout time.Duration
	client  *fasthttp.Client
	cb      *gobreaker.CircuitBreaker[json.RawMessage]
	logger  zerolog.Logger

	rateLimitMu sync.RWMutex
	rateLimit   RateLimitInfo
}

type RateLimitInfo struct {
	Limit     int `json:"limit"`
	Remaining int `json:"remaining"`

	// seconds until reset
	Reset int `json:"reset"`

	RetryAfter time.Duration `json:"retry_after"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

type GraphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type GraphQLErrorItem struct {
	Message string `json:"message"`
	Path    []any  `json:"path,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage    `json:"data"`
	Errors []GraphQLErrorItem `json:"errors"`
}

func NewSorareClient(cfg *config.Config, logger zerolog.Logger) *SorareClient {
	c := &SorareClient{
		url:     cfg.SorareAPIURL,
		apiKey:  cfg.SorareAPIKey,
		timeout: constants.ExternalAPITimeout,
		client: &fasthttp.Client{
			MaxConnsPerHost:     16,
			ReadTimeout:         constants.ExternalAPITimeout,
			WriteTimeout:        constants.ExternalAPITimeout,
			MaxIdleConnDuration: 1 * time.Minute,
		},
		logger: logger.With().Str("component", "sorare_client").Logger(),
	}

	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)
	c.cb = gobreaker.NewCircuitBreaker[json.RawMessage](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Only outages count against the breaker. Rate limits and GraphQL
		// errors mean the upstream is alive and answering. A caller that gave
		// up is not an outage either.
		IsSuccessful: func(err error) bool {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return true
			}
			return err == nil || !errors.Is(err, domain.ErrUnavailable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	return c
}

func (c *SorareClient) GetRateLimitInfo() RateLimitInfo {
	c.rateLimitMu.RLock()
	defer c.rateLimitMu.RUnlock()
	return c.rateLimit
}

func (c *SorareClient) updateRateLimit(resp *fasthttp.Response) {
	c.rateLimitMu.Lock()
	defer c.rateLimitMu.Unlock()

	if limit := string(resp.Header.Peek("X-Ratelimit-Limit")); limit != "" {
		if val, err := strconv.Atoi(limit); err == nil {
			c.rateLimit.Limit = val
		}
	}
	if remaining := string(resp.Header.Peek("X-Ratelimit-Remaining")); remaining != "" {
		if val, err := strconv.Atoi(remaining); err == nil {
			c.rateLimit.Remaining = val
		}
	}
	if reset := string(resp.Header.Peek("X-Ratelimit-Reset")); reset != "" {
		if val, err := strconv.Atoi(reset); err == nil {
			c.rateLimit.Reset = val
		}
	}
	c.rateLimit.RetryAfter = parseRetryAfter(string(resp.Header.Peek("Retry-After")), time.Now())
	c.rateLimit.UpdatedAt = time.Now()
}

// Query performs one GraphQL call and returns the "data" member of the
// response. Failures are *domain.UpstreamError values.
func (c *SorareClient) Query(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	body, err := json.Marshal(GraphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("failed to encode graphql request: %w", err)
	}

	start := time.Now()
	data, err := c.cb.Execute(func() (json.RawMessage, error) {
		status, respBody, retryAfter, err := c.post(ctx, body)
		if err != nil {
			return nil, err
		}
		return classifyResponse(status, retryAfter, respBody)
	})
	metrics.UpstreamDuration.Observe(time.Since(start).Seconds())

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = &domain.UpstreamError{Kind: domain.ErrUnavailable, Message: "circuit breaker open", Err: err}
	}
	metrics.UpstreamRequests.WithLabelValues(outcomeLabel(err)).Inc()

	if err != nil {
		c.logger.Warn().Err(err).Dur("duration", time.Since(start)).Msg("sorare query failed")
		return nil, err
	}
	c.logger.Debug().Dur("duration", time.Since(start)).Int("bytes", len(data)).Msg("sorare query succeeded")
	return data, nil
}

// Forward sends a raw GraphQL body upstream and returns the upstream status
// and body untouched. Only transport failures are reported as errors.
func (c *SorareClient) Forward(ctx context.Context, body []byte) (int, []byte, error) {
	status, respBody, _, err := c.post(ctx, body)
	if err != nil {
		return 0, nil, err
	}
	return status, respBody, nil
}

func (c *SorareClient) post(ctx context.Context, body []byte) (int, []byte, string, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, "", &domain.UpstreamError{Kind: domain.ErrUnavailable, Message: "request cancelled", Err: err}
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("APIKEY", c.apiKey)
	}
	req.SetBody(body)

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.client.DoDeadline(req, resp, deadline); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return 0, nil, "", &domain.UpstreamError{Kind: domain.ErrUnavailable, Message: "request failed", Err: err}
	}

	c.updateRateLimit(resp)

	// resp is released on return, the body must be copied out
	respBody := append([]byte(nil), resp.Body()...)
	return resp.StatusCode(), respBody, string(resp.Header.Peek("Retry-After")), nil
}

// classifyResponse maps an upstream HTTP exchange to data or a classified
// error. A non-empty errors array fails the call even with a 2xx status.
func classifyResponse(status int, retryAfter string, body []byte) (json.RawMessage, error) {
	switch {
	case status == fasthttp.StatusTooManyRequests:
		return nil, domain.NewRateLimitedError(parseRetryAfter(retryAfter, time.Now()), firstErrorMessage(body))
	case status == fasthttp.StatusServiceUnavailable:
		return nil, &domain.UpstreamError{Kind: domain.ErrUnavailable, StatusCode: status, Message: abbreviate(body)}
	case status < 200 || status > 299:
		msg := firstErrorMessage(body)
		if msg == "" {
			msg = abbreviate(body)
		}
		return nil, &domain.UpstreamError{Kind: domain.ErrUnknownUpstream, StatusCode: status, Message: msg}
	}

	var parsed graphQLResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &domain.UpstreamError{Kind: domain.ErrUnknownUpstream, StatusCode: status, Message: "malformed response body", Err: err}
	}
	if len(parsed.Errors) > 0 {
		msg := parsed.Errors[0].Message
		if msg == "" {
			msg = "Sorare API error"
		}
		return nil, &domain.UpstreamError{Kind: domain.ErrGraphQL, Message: msg}
	}
	return parsed.Data, nil
}

func firstErrorMessage(body []byte) string {
	var parsed graphQLResponse
	if err := json.Unmarshal(body, &parsed); err != nil || len(parsed.Errors) == 0 {
		return ""
	}
	return parsed.Errors[0].Message
}

// parseRetryAfter accepts both forms of RFC 9110 Retry-After: delay seconds
// and an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now).Round(time.Second)
	}
	return 0
}

func abbreviate(body []byte) string {
	const limit = 256
	body = bytes.TrimSpace(body)
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrUnavailable):
		return "unavailable"
	case errors.Is(err, domain.ErrGraphQL):
		return "graphql_error"
	default:
		return "unknown"
	}
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
