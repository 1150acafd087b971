package performance

import (
	"math"
	"testing"

	"sorare-coach/internal/api"
	"sorare-coach/internal/domain"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 0.01
}

func TestDNPPercentage(t *testing.T) {
	tests := []struct {
		played, total int
		want          float64
	}{
		{10, 15, 33.33},
		{15, 15, 0},
		{0, 15, 100},
		{20, 15, 0},
		{-3, 15, 100},
		{5, 0, 0},
	}
	for _, tt := range tests {
		if got := DNPPercentage(tt.played, tt.total); !approx(got, tt.want) {
			t.Errorf("DNPPercentage(%d, %d) = %v, want %v", tt.played, tt.total, got, tt.want)
		}
	}
}

func TestDeriveWithoutPlayer(t *testing.T) {
	if _, ok := Derive(api.CardNode{ID: "c1"}); ok {
		t.Error("Derive reported a performance for a card without a player")
	}
}

func TestDerivePositionAverage(t *testing.T) {
	tests := []struct {
		name   string
		player api.PlayerNode
		want   float64
	}{
		{
			name:   "own position",
			player: api.PlayerNode{Position: domain.PositionDefender, AvgAsDef: api.NewNumber(55), AvgAsFwd: api.NewNumber(70)},
			want:   55,
		},
		{
			name:   "falls back to forward first",
			player: api.PlayerNode{Position: domain.PositionGoalkeeper, AvgAsFwd: api.NewNumber(41), AvgAsMid: api.NewNumber(60)},
			want:   41,
		},
		{
			name:   "then midfielder",
			player: api.PlayerNode{Position: domain.PositionForward, AvgAsMid: api.NewNumber(48), AvgAsDef: api.NewNumber(30)},
			want:   48,
		},
		{
			name:   "own position zero is still present",
			player: api.PlayerNode{Position: domain.PositionMidfielder, AvgAsMid: api.NewNumber(0), AvgAsFwd: api.NewNumber(80)},
			want:   0,
		},
		{
			name:   "nothing known",
			player: api.PlayerNode{Position: domain.PositionMidfielder},
			want:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.player
			p.ID = "p1"
			perf, ok := Derive(api.CardNode{Player: &p})
			if !ok {
				t.Fatal("Derive returned no performance")
			}
			if perf.L15 != tt.want {
				t.Errorf("L15 = %v, want %v", perf.L15, tt.want)
			}
			if perf.L5 != 0 || perf.L40 != 0 {
				t.Errorf("L5/L40 = %v/%v, want 0", perf.L5, perf.L40)
			}
		})
	}
}

func TestDeriveAppearances(t *testing.T) {
	tests := []struct {
		name       string
		appearance api.Number
		wantPlayed int
		wantDNP    float64
	}{
		{"ten of fifteen", api.NewNumber(10), 10, 33.33},
		{"every game", api.NewNumber(15), 15, 0},
		{"missing", api.Number{}, 0, 100},
		{"above window", api.NewNumber(18), 15, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			perf, _ := Derive(api.CardNode{Player: &api.PlayerNode{
				ID:                        "p1",
				DisplayName:               "Player One",
				Position:                  domain.PositionForward,
				LastFifteenSo5Appearances: tt.appearance,
			}})
			if perf.GamesPlayed != tt.wantPlayed || perf.TotalGames != 15 {
				t.Errorf("played %d/%d, want %d/15", perf.GamesPlayed, perf.TotalGames, tt.wantPlayed)
			}
			if !approx(perf.DNPPercentage, tt.wantDNP) {
				t.Errorf("DNP = %v, want %v", perf.DNPPercentage, tt.wantDNP)
			}
			if perf.PlayerID != "p1" || perf.DisplayName != "Player One" {
				t.Errorf("identity not copied: %+v", perf)
			}
		})
	}
}

func TestDeriveFromScoreHistory(t *testing.T) {
	scores := make([]api.Number, 0, 40)
	// newest first: 5 games at 80, 10 at 0 (did not play), 25 at 40
	for i := 0; i < 5; i++ {
		scores = append(scores, api.NewNumber(80))
	}
	for i := 0; i < 10; i++ {
		scores = append(scores, api.NewNumber(0))
	}
	for i := 0; i < 25; i++ {
		scores = append(scores, api.NewNumber(40))
	}

	perf, ok := Derive(api.CardNode{Player: &api.PlayerNode{
		ID:                        "p1",
		Position:                  domain.PositionForward,
		AvgAsFwd:                  api.NewNumber(99),
		LastFifteenSo5Appearances: api.NewNumber(15),
		RawPlayerGameScores:       scores,
	}})
	if !ok {
		t.Fatal("Derive returned no performance")
	}

	if perf.L5 != 80 {
		t.Errorf("L5 = %v, want 80", perf.L5)
	}
	if !approx(perf.L15, 26.67) {
		t.Errorf("L15 = %v, want 26.67", perf.L15)
	}
	if !approx(perf.L40, 35) {
		t.Errorf("L40 = %v, want 35", perf.L40)
	}
	if perf.GamesPlayed != 5 || !approx(perf.DNPPercentage, 66.67) {
		t.Errorf("played %d, DNP %v; want 5, 66.67", perf.GamesPlayed, perf.DNPPercentage)
	}
}

func TestDeriveShortHistory(t *testing.T) {
	perf, _ := Derive(api.CardNode{Player: &api.PlayerNode{
		ID:                  "p1",
		RawPlayerGameScores: []api.Number{api.NewNumber(60), api.NewNumber(30), {}},
	}})
	if perf.L5 != 30 || perf.L15 != 30 || perf.L40 != 30 {
		t.Errorf("averages = %v/%v/%v, want 30 each", perf.L5, perf.L15, perf.L40)
	}
	if perf.GamesPlayed != 2 {
		t.Errorf("played = %d, want 2", perf.GamesPlayed)
	}
}
