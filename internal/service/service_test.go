package service

import (
	"context"
	"database/sql"
	"testing"

	"sorare-coach/internal/cache"
	"sorare-coach/internal/database"
	"sorare-coach/internal/repository"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:", zerolog.Nop())
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestPersistence(t *testing.T) *PersistenceService {
	t.Helper()
	db := openTestDB(t)
	logger := zerolog.Nop()
	return NewPersistenceService(
		repository.NewCardRepository(db, logger),
		repository.NewPerformanceRepository(db, logger),
		repository.NewIngestRunRepository(db, logger),
		logger,
	)
}

// scriptedExecutor answers requests in order from responses and records
// every request it receives.
type scriptedExecutor struct {
	responses []scriptedResponse
	requests  []cache.Request
}

type scriptedResponse struct {
	data any
	err  error
}

func (e *scriptedExecutor) Execute(ctx context.Context, req cache.Request) (json.RawMessage, error) {
	e.requests = append(e.requests, req)
	i := len(e.requests) - 1
	if i >= len(e.responses) {
		panic("scriptedExecutor: no response left")
	}
	r := e.responses[i]
	if r.err != nil {
		return nil, r.err
	}
	if raw, ok := r.data.(string); ok {
		return json.RawMessage(raw), nil
	}
	data, err := json.Marshal(r.data)
	if err != nil {
		panic(err)
	}
	return data, nil
}
