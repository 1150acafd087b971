package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrRateLimited     = errors.New("rate limited")
	ErrUnavailable     = errors.New("upstream unavailable")
	ErrGraphQL         = errors.New("graphql error")
	ErrUnknownUpstream = errors.New("unknown upstream error")
)

// UpstreamError is a classified failure of a call to the Sorare API.
// Kind is one of the upstream sentinels above; errors.Is matches against it.
type UpstreamError struct {
	Kind       error
	StatusCode int
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *UpstreamError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%v (status %d): %s", e.Kind, e.StatusCode, msg)
	}
	if msg == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%v: %s", e.Kind, msg)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func (e *UpstreamError) Is(target error) bool {
	return target == e.Kind
}

func NewRateLimitedError(retryAfter time.Duration, msg string) *UpstreamError {
	return &UpstreamError{Kind: ErrRateLimited, StatusCode: 429, RetryAfter: retryAfter, Message: msg}
}

// RetryAfter returns the retry hint carried by err, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var ue *UpstreamError
	if errors.As(err, &ue) && ue.RetryAfter > 0 {
		return ue.RetryAfter, true
	}
	return 0, false
}

// IsRetryable reports whether another attempt may succeed. Rate limits are
// never retried here, they go through the cache cooldown instead.
func IsRetryable(err error) bool {
	return !errors.Is(err, ErrRateLimited) && !errors.Is(err, ErrInvalidArgument)
}
