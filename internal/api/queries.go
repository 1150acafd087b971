package api

import (
	"fmt"
	"strings"

	"sorare-coach/internal/constants"
)

const userCardsQueryTemplate = `
  query UserCards($slug: String!, $first: Int!, $after: String) {
    user(slug: $slug) {
      id
      slug
      nickname
      cards(first: $first, after: $after, sport: FOOTBALL, owned: true) {
        pageInfo {
          hasNextPage
          endCursor
        }
        nodes {
          ... on Card {
            id
            slug
            rarity
            xp
            season { startYear }
            player {
              id
              slug
              displayName
              position
              age
              u23Eligible
              activeClub {
                name
                domesticLeague { name }
              }
              lastFifteenSo5Appearances
              avgAsDef
              avgAsMid
              avgAsFwd
              avgAsGK%s
            }
          }
        }
      }
    }
  }
`

// Score history multiplies the per-card query cost, so it is opt-in.
var scoreHistoryFragment = fmt.Sprintf("\n              rawPlayerGameScores(last: %d)", constants.ScoreHistoryLength)

// UserCardsQuery returns the owned-cards page query, optionally requesting
// each player's recent per-game scores.
func UserCardsQuery(withScoreHistory bool) string {
	if withScoreHistory {
		return fmt.Sprintf(userCardsQueryTemplate, scoreHistoryFragment)
	}
	return fmt.Sprintf(userCardsQueryTemplate, "")
}

// UserCardsVariables builds the variables for one page. A nil cursor asks for
// the first page.
func UserCardsVariables(slug string, first int, after *string) map[string]any {
	vars := map[string]any{
		"slug":  strings.TrimSpace(slug),
		"first": first,
	}
	if after != nil {
		vars["after"] = *after
	} else {
		vars["after"] = nil
	}
	return vars
}

const GameWeeksQuery = `
  query GameWeeks {
    so5 {
      so5Fixtures {
        nodes {
          aasmState
          slug
        }
      }
    }
  }
`

const GameWeekDetailQuery = `
  query GameWeekDetail($slug: String!) {
    so5 {
      so5Fixture(slug: $slug) {
        aasmState
        slug
        so5Leaderboards {
          so5League {
            displayName
          }
          rarityType
          division
        }
      }
    }
  }
`
