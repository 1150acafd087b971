package domain

import (
	"math"
	"strings"
	"time"
)

const (
	PositionForward    = "Forward"
	PositionMidfielder = "Midfielder"
	PositionDefender   = "Defender"
	PositionGoalkeeper = "Goalkeeper"
)

type Card struct {
	ID          string    `json:"id"`
	Slug        string    `json:"slug"`
	PlayerID    string    `json:"playerId"`
	DisplayName string    `json:"displayName"`
	Position    string    `json:"position"`
	Rarity      string    `json:"rarity"`
	XP          int       `json:"xp"`
	Season      int       `json:"season"`
	LastUpdated time.Time `json:"lastUpdated"`
}

type PlayerPerformance struct {
	PlayerID      string    `json:"playerId"`
	DisplayName   string    `json:"displayName"`
	Position      string    `json:"position"`
	L5            float64   `json:"l5"`
	L15           float64   `json:"l15"`
	L40           float64   `json:"l40"`
	DNPPercentage float64   `json:"dnpPercentage"`
	GamesPlayed   int       `json:"gamesPlayed"`
	TotalGames    int       `json:"totalGames"`
	LastUpdated   time.Time `json:"lastUpdated"`
}

// ExpectedScore is L15 with a 10% bonus for players available in more than 80% of games.
func (p PlayerPerformance) ExpectedScore() float64 {
	multiplier := 1.0
	if (100-p.DNPPercentage)/100 > 0.8 {
		multiplier = 1.1
	}
	return math.Round(p.L15*multiplier*100) / 100
}

type User struct {
	ID       string `json:"id"`
	Slug     string `json:"slug"`
	Nickname string `json:"nickname"`
}

// CollectionCard is a card as returned by a collection lookup, with the
// denormalized player fields the UI filters on.
type CollectionCard struct {
	Card
	Age         int                `json:"age"`
	Club        string             `json:"club,omitempty"`
	League      string             `json:"league,omitempty"`
	Performance *PlayerPerformance `json:"performance,omitempty"`
}

type Collection struct {
	User   User             `json:"user"`
	Cards  []CollectionCard `json:"cards"`
	Pages  int              `json:"pages"`
	Report IngestReport     `json:"report"`
	RunID  string           `json:"runId,omitempty"`
}

type IngestFailure struct {
	ID     string `json:"id"`
	Record string `json:"record"` // "card" or "performance"
	Error  string `json:"error"`
}

type IngestReport struct {
	Succeeded []string        `json:"succeeded"`
	Failed    []IngestFailure `json:"failed"`
}

func (r IngestReport) Partial() bool {
	return len(r.Failed) > 0
}

const (
	IngestStatusSucceeded = "succeeded"
	IngestStatusPartial   = "partial"
	IngestStatusFailed    = "failed"
)

type IngestRun struct {
	ID          string    `json:"id"` // nanoid
	UserSlug    string    `json:"userSlug"`
	CardCount   int       `json:"cardCount"`
	FailedCount int       `json:"failedCount"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"startedAt"`
	FinishedAt  time.Time `json:"finishedAt"`
}

type Stats struct {
	Cards        int `json:"cards"`
	Performances int `json:"performances"`
}

type GameWeek struct {
	Slug    string   `json:"slug"`
	State   string   `json:"state"`
	Leagues []League `json:"leagues"`
}

type League struct {
	Name     string `json:"name"`
	Rarity   string `json:"rarity"`
	Division string `json:"division"`
}

// NormalizeRarity folds upstream spellings ("Super Rare", "super_rare", "RARE")
// into one lower-case form.
func NormalizeRarity(rarity string) string {
	r := strings.ToLower(strings.TrimSpace(rarity))
	return strings.ReplaceAll(r, " ", "_")
}
