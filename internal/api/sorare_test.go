package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"sorare-coach/internal/config"
	"sorare-coach/internal/domain"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

func newTestClient(url string) *SorareClient {
	return NewSorareClient(&config.Config{SorareAPIURL: url, SorareAPIKey: "secret"}, zerolog.Nop())
}

func TestClassifyResponse(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind error
		wantMsg  string
		wantData string
	}{
		{name: "success", status: 200, body: `{"data":{"x":1}}`, wantData: `{"x":1}`},
		{name: "errors win over 200", status: 200, body: `{"data":null,"errors":[{"message":"user not found"},{"message":"second"}]}`, wantKind: domain.ErrGraphQL, wantMsg: "user not found"},
		{name: "rate limited", status: 429, body: `{"errors":[{"message":"too many"}]}`, wantKind: domain.ErrRateLimited},
		{name: "service unavailable", status: 503, body: `maintenance`, wantKind: domain.ErrUnavailable},
		{name: "other non 2xx", status: 500, body: `oops`, wantKind: domain.ErrUnknownUpstream, wantMsg: "oops"},
		{name: "non 2xx with graphql errors", status: 400, body: `{"errors":[{"message":"bad query"}]}`, wantKind: domain.ErrUnknownUpstream, wantMsg: "bad query"},
		{name: "malformed 200", status: 200, body: `<html>`, wantKind: domain.ErrUnknownUpstream},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := classifyResponse(tt.status, "", []byte(tt.body))
			if tt.wantKind == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if string(data) != tt.wantData {
					t.Errorf("data = %s, want %s", data, tt.wantData)
				}
				return
			}
			if !errors.Is(err, tt.wantKind) {
				t.Fatalf("err = %v, want kind %v", err, tt.wantKind)
			}
			var ue *domain.UpstreamError
			if !errors.As(err, &ue) {
				t.Fatalf("err is %T, want *domain.UpstreamError", err)
			}
			if tt.wantMsg != "" && ue.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", ue.Message, tt.wantMsg)
			}
		})
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"30", 30 * time.Second},
		{" 5 ", 5 * time.Second},
		{"-1", 0},
		{"soon", 0},
		{now.Add(90 * time.Second).Format(http.TimeFormat), 90 * time.Second},
		{now.Add(-time.Minute).Format(http.TimeFormat), 0},
	}

	for _, tt := range tests {
		if got := parseRetryAfter(tt.in, now); got != tt.want {
			t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestQuerySendsDocumentAndReturnsData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if got := r.Header.Get("APIKEY"); got != "secret" {
			t.Errorf("APIKEY header = %q", got)
		}
		var req GraphQLRequest
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("request body: %v", err)
		}
		if !strings.Contains(req.Query, "UserCards") || req.Variables["slug"] != "alice" {
			t.Errorf("unexpected request %s", body)
		}

		w.Header().Set("X-Ratelimit-Limit", "600")
		w.Header().Set("X-Ratelimit-Remaining", "599")
		_, _ = w.Write([]byte(`{"data":{"user":{"id":"u1"}}}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	data, err := c.Query(context.Background(), UserCardsQuery(false), UserCardsVariables(" alice ", 20, nil))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if string(data) != `{"user":{"id":"u1"}}` {
		t.Errorf("data = %s", data)
	}

	info := c.GetRateLimitInfo()
	if info.Limit != 600 || info.Remaining != 599 {
		t.Errorf("rate limit info = %+v", info)
	}
}

func TestQueryRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"errors":[{"message":"Too many requests"}]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Query(context.Background(), "query { x }", nil)
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("err = %v, want rate limited", err)
	}
	if d, ok := domain.RetryAfter(err); !ok || d != 7*time.Second {
		t.Errorf("retry after = %v (ok=%v), want 7s", d, ok)
	}
}

func TestQueryUnavailableOnConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newTestClient(url).Query(context.Background(), "query { x }", nil)
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("err = %v, want unavailable", err)
	}
}

func TestBreakerOpensAfterRepeatedOutages(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	for i := 0; i < 5; i++ {
		if _, err := c.Query(context.Background(), "query { x }", nil); !errors.Is(err, domain.ErrUnavailable) {
			t.Fatalf("call %d: err = %v", i, err)
		}
	}

	_, err := c.Query(context.Background(), "query { x }", nil)
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("err = %v, want unavailable from open breaker", err)
	}
	if got := hits.Load(); got != 5 {
		t.Errorf("upstream hits = %d, want 5", got)
	}
}

func TestBreakerIgnoresGraphQLErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"errors":[{"message":"nope"}]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	for i := 0; i < 8; i++ {
		if _, err := c.Query(context.Background(), "query { x }", nil); !errors.Is(err, domain.ErrGraphQL) {
			t.Fatalf("call %d: err = %v", i, err)
		}
	}
	if got := hits.Load(); got != 8 {
		t.Errorf("upstream hits = %d, want 8", got)
	}
}

func TestForwardRelaysStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	status, body, err := newTestClient(srv.URL).Forward(context.Background(), []byte(`{"query":"q"}`))
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if status != http.StatusServiceUnavailable || string(body) != `{"query":"q"}` {
		t.Errorf("Forward = %d %s", status, body)
	}
}

func TestBreakerIgnoresCancelledCallers(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"data":{"ok":true}}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 8; i++ {
		_, err := c.Query(cancelled, "query { x }", nil)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("call %d: err = %v, want context canceled", i, err)
		}
	}

	expired, cancelExpired := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancelExpired()
	if _, err := c.Query(expired, "query { x }", nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}

	data, err := c.Query(context.Background(), "query { x }", nil)
	if err != nil {
		t.Fatalf("breaker tripped by cancelled callers: %v", err)
	}
	if string(data) != `{"ok":true}` {
		t.Errorf("data = %s", data)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("upstream hits = %d, want 1", got)
	}
}
