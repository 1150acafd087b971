package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"sorare-coach/internal/database"
	"sorare-coach/internal/domain"

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

// steppingClock returns a clock that moves forward one second per call.
func steppingClock() func() time.Time {
	now := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}

func testCard(id, playerID string) domain.Card {
	return domain.Card{
		ID:          id,
		Slug:        id + "-slug",
		PlayerID:    playerID,
		DisplayName: "Player " + playerID,
		Position:    domain.PositionMidfielder,
		Rarity:      "Super Rare",
		XP:          250,
		Season:      2024,
	}
}

func TestCardUpsertIsIdempotent(t *testing.T) {
	repo := NewCardRepository(openTestDB(t), zerolog.Nop())
	repo.now = steppingClock()
	ctx := context.Background()

	first := testCard("c1", "p1")
	if err := repo.Upsert(ctx, &first); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	second := testCard("c1", "p1")
	if err := repo.Upsert(ctx, &second); err != nil {
		t.Fatalf("second Upsert: %v", err)
	}

	n, err := repo.Count(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Count = %d, %v; want 1", n, err)
	}

	got, err := repo.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.LastUpdated.After(first.LastUpdated) {
		t.Errorf("LastUpdated %v not advanced past %v", got.LastUpdated, first.LastUpdated)
	}
	got.LastUpdated = time.Time{}
	second.LastUpdated = time.Time{}
	if *got != second {
		t.Errorf("stored card = %+v, want %+v", *got, second)
	}
}

func TestCardUpsertOverwritesAllFields(t *testing.T) {
	repo := NewCardRepository(openTestDB(t), zerolog.Nop())
	ctx := context.Background()

	card := testCard("c1", "p1")
	if err := repo.Upsert(ctx, &card); err != nil {
		t.Fatal(err)
	}

	card.XP = 900
	card.Rarity = "LIMITED"
	card.PlayerID = "p2"
	if err := repo.Upsert(ctx, &card); err != nil {
		t.Fatal(err)
	}

	got, err := repo.Get(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if got.XP != 900 || got.Rarity != "limited" || got.PlayerID != "p2" {
		t.Errorf("card not overwritten: %+v", got)
	}
}

func TestCardRarityIsNormalized(t *testing.T) {
	repo := NewCardRepository(openTestDB(t), zerolog.Nop())
	card := testCard("c1", "p1")
	if err := repo.Upsert(context.Background(), &card); err != nil {
		t.Fatal(err)
	}
	if card.Rarity != "super_rare" {
		t.Errorf("caller copy rarity = %q", card.Rarity)
	}
	got, _ := repo.Get(context.Background(), "c1")
	if got.Rarity != "super_rare" {
		t.Errorf("stored rarity = %q, want super_rare", got.Rarity)
	}
}

func TestCardGetMissing(t *testing.T) {
	repo := NewCardRepository(openTestDB(t), zerolog.Nop())
	if _, err := repo.Get(context.Background(), "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestCardUpsertRejectsInvalid(t *testing.T) {
	repo := NewCardRepository(openTestDB(t), zerolog.Nop())
	ctx := context.Background()

	empty := testCard("  ", "p1")
	if err := repo.Upsert(ctx, &empty); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("empty id: err = %v", err)
	}

	negative := testCard("c1", "p1")
	negative.XP = -1
	if err := repo.Upsert(ctx, &negative); err == nil {
		t.Error("negative xp was accepted")
	}
}

func TestCardListOrdering(t *testing.T) {
	repo := NewCardRepository(openTestDB(t), zerolog.Nop())
	repo.now = steppingClock()
	ctx := context.Background()

	for _, c := range []domain.Card{testCard("a", "p1"), testCard("b", "p2"), testCard("c", "p1")} {
		c := c
		if err := repo.Upsert(ctx, &c); err != nil {
			t.Fatal(err)
		}
	}
	// touching "a" again makes it the most recent
	a := testCard("a", "p1")
	if err := repo.Upsert(ctx, &a); err != nil {
		t.Fatal(err)
	}

	cards, err := repo.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, c := range cards {
		ids = append(ids, c.ID)
	}
	if len(ids) != 3 || ids[0] != "a" || ids[1] != "c" || ids[2] != "b" {
		t.Errorf("List order = %v, want [a c b]", ids)
	}

	byPlayer, err := repo.ListByPlayer(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if len(byPlayer) != 2 || byPlayer[0].ID != "a" || byPlayer[1].ID != "c" {
		t.Errorf("ListByPlayer = %+v", byPlayer)
	}

	empty, err := repo.ListByPlayer(ctx, "nobody")
	if err != nil || empty == nil || len(empty) != 0 {
		t.Errorf("ListByPlayer(nobody) = %v, %v; want empty slice", empty, err)
	}
}

func TestPerformanceUpsertAndRead(t *testing.T) {
	repo := NewPerformanceRepository(openTestDB(t), zerolog.Nop())
	repo.now = steppingClock()
	ctx := context.Background()

	perf := domain.PlayerPerformance{
		PlayerID:      "p1",
		DisplayName:   "Player One",
		Position:      domain.PositionForward,
		L15:           61.5,
		DNPPercentage: 20,
		GamesPlayed:   12,
		TotalGames:    15,
	}
	if err := repo.Upsert(ctx, &perf); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	perf.L15 = 70
	if err := repo.Upsert(ctx, &perf); err != nil {
		t.Fatalf("second Upsert: %v", err)
	}

	got, err := repo.Get(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if got.L15 != 70 || got.GamesPlayed != 12 || !got.LastUpdated.Equal(perf.LastUpdated) {
		t.Errorf("stored performance = %+v", got)
	}

	n, err := repo.Count(ctx)
	if err != nil || n != 1 {
		t.Errorf("Count = %d, %v", n, err)
	}

	if _, err := repo.Get(ctx, "p2"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing performance err = %v", err)
	}

	bad := domain.PlayerPerformance{PlayerID: "p3", DNPPercentage: 140}
	if err := repo.Upsert(ctx, &bad); err == nil {
		t.Error("DNP above 100 was accepted")
	}
}

func TestIngestRunsNewestFirst(t *testing.T) {
	repo := NewIngestRunRepository(openTestDB(t), zerolog.Nop())
	ctx := context.Background()
	start := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"run-a", "run-b", "run-c"} {
		run := domain.IngestRun{
			ID:         id,
			UserSlug:   "alice",
			CardCount:  i * 10,
			Status:     domain.IngestStatusSucceeded,
			StartedAt:  start.Add(time.Duration(i) * time.Minute),
			FinishedAt: start.Add(time.Duration(i)*time.Minute + time.Second),
		}
		if err := repo.Create(ctx, &run); err != nil {
			t.Fatalf("Create %s: %v", id, err)
		}
	}

	runs, err := repo.ListRecent(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].ID != "run-c" || runs[1].ID != "run-b" {
		t.Fatalf("ListRecent = %+v", runs)
	}
	if runs[0].CardCount != 20 || !runs[0].StartedAt.Equal(start.Add(2*time.Minute)) {
		t.Errorf("run fields = %+v", runs[0])
	}
}
