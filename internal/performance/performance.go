// Package performance derives PlayerPerformance summaries from the player
// fields embedded in a card, without any extra upstream call.
package performance

import (
	"sorare-coach/internal/api"
	"sorare-coach/internal/constants"
	"sorare-coach/internal/domain"
)

// Derive computes the performance summary for card's player. It reports
// false when the card carries no player. Missing or malformed numbers count
// as 0.
//
// When the player carries a per-game score history, L5/L15/L40 and the games
// played are computed from it. Otherwise L15 comes from the position average
// and L5/L40 stay 0.
func Derive(card api.CardNode) (domain.PlayerPerformance, bool) {
	p := card.Player
	if p == nil {
		return domain.PlayerPerformance{}, false
	}

	perf := domain.PlayerPerformance{
		PlayerID:    p.ID,
		DisplayName: p.DisplayName,
		Position:    p.Position,
		TotalGames:  constants.PerformanceWindow,
	}

	if len(p.RawPlayerGameScores) > 0 {
		scores := values(p.RawPlayerGameScores)
		perf.L5 = average(scores, 5)
		perf.L15 = average(scores, 15)
		perf.L40 = average(scores, 40)
		perf.GamesPlayed = countPlayed(scores, constants.PerformanceWindow)
	} else {
		perf.L15 = positionAverage(p)
		perf.GamesPlayed = int(p.LastFifteenSo5Appearances.Value)
	}

	perf.GamesPlayed = clamp(perf.GamesPlayed, 0, perf.TotalGames)
	perf.DNPPercentage = DNPPercentage(perf.GamesPlayed, perf.TotalGames)
	return perf, true
}

// DNPPercentage is the share of the window the player did not feature in.
func DNPPercentage(gamesPlayed, totalGames int) float64 {
	if totalGames <= 0 {
		return 0
	}
	gamesPlayed = clamp(gamesPlayed, 0, totalGames)
	return float64(totalGames-gamesPlayed) / float64(totalGames) * 100
}

// positionAverage picks the average matching the player's own position and
// falls back to the first non-null of forward, midfielder, defender,
// goalkeeper.
func positionAverage(p *api.PlayerNode) float64 {
	var own api.Number
	switch p.Position {
	case domain.PositionForward:
		own = p.AvgAsFwd
	case domain.PositionMidfielder:
		own = p.AvgAsMid
	case domain.PositionDefender:
		own = p.AvgAsDef
	case domain.PositionGoalkeeper:
		own = p.AvgAsGK
	}
	if own.Valid {
		return own.Value
	}

	for _, n := range []api.Number{p.AvgAsFwd, p.AvgAsMid, p.AvgAsDef, p.AvgAsGK} {
		if n.Valid {
			return n.Value
		}
	}
	return 0
}

func values(numbers []api.Number) []float64 {
	out := make([]float64, len(numbers))
	for i, n := range numbers {
		out[i] = n.Value
	}
	return out
}

// average is the mean of the first n scores, newest first. DNP games count as 0.
func average(scores []float64, n int) float64 {
	if len(scores) < n {
		n = len(scores)
	}
	if n == 0 {
		return 0
	}
	var sum float64
	for _, s := range scores[:n] {
		sum += s
	}
	return sum / float64(n)
}

func countPlayed(scores []float64, window int) int {
	if len(scores) < window {
		window = len(scores)
	}
	played := 0
	for _, s := range scores[:window] {
		if s > 0 {
			played++
		}
	}
	return played
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
