package api

import (
	"bytes"
	"strconv"

	"github.com/goccy/go-json"
)

// Number is a nullable numeric field. Sorare occasionally sends numbers as
// strings; anything that does not parse is treated as null.
type Number struct {
	Value float64
	Valid bool
}

func NewNumber(v float64) Number {
	return Number{Value: v, Valid: true}
}

func (n *Number) UnmarshalJSON(b []byte) error {
	*n = Number{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		*n = Number{Value: f, Valid: true}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			*n = Number{Value: f, Valid: true}
		}
	}
	return nil
}

func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

type UserCardsData struct {
	User *UserCardsPage `json:"user"`
}

type UserCardsPage struct {
	ID       string         `json:"id"`
	Slug     string         `json:"slug"`
	Nickname string         `json:"nickname"`
	Cards    CardConnection `json:"cards"`
}

type CardConnection struct {
	PageInfo PageInfo   `json:"pageInfo"`
	Nodes    []CardNode `json:"nodes"`
}

type PageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

type CardNode struct {
	ID     string      `json:"id"`
	Slug   string      `json:"slug"`
	Rarity string      `json:"rarity"`
	XP     Number      `json:"xp"`
	Season *Season     `json:"season"`
	Player *PlayerNode `json:"player"`
}

type Season struct {
	StartYear int `json:"startYear"`
}

type PlayerNode struct {
	ID                        string   `json:"id"`
	Slug                      string   `json:"slug"`
	DisplayName               string   `json:"displayName"`
	Position                  string   `json:"position"`
	Age                       Number   `json:"age"`
	U23Eligible               bool     `json:"u23Eligible"`
	ActiveClub                *Club    `json:"activeClub"`
	LastFifteenSo5Appearances Number   `json:"lastFifteenSo5Appearances"`
	AvgAsDef                  Number   `json:"avgAsDef"`
	AvgAsMid                  Number   `json:"avgAsMid"`
	AvgAsFwd                  Number   `json:"avgAsFwd"`
	AvgAsGK                   Number   `json:"avgAsGK"`
	RawPlayerGameScores       []Number `json:"rawPlayerGameScores,omitempty"`
}

type Club struct {
	Name           string          `json:"name"`
	DomesticLeague *DomesticLeague `json:"domesticLeague"`
}

type DomesticLeague struct {
	Name string `json:"name"`
}

type GameWeeksData struct {
	So5 *struct {
		So5Fixtures *struct {
			Nodes []FixtureNode `json:"nodes"`
		} `json:"so5Fixtures"`
	} `json:"so5"`
}

type FixtureNode struct {
	AasmState string `json:"aasmState"`
	Slug      string `json:"slug"`
}

type GameWeekDetailData struct {
	So5 *struct {
		So5Fixture *FixtureDetail `json:"so5Fixture"`
	} `json:"so5"`
}

type FixtureDetail struct {
	AasmState       string           `json:"aasmState"`
	Slug            string           `json:"slug"`
	So5Leaderboards []LeaderboardRef `json:"so5Leaderboards"`
}

type LeaderboardRef struct {
	So5League struct {
		DisplayName string `json:"displayName"`
	} `json:"so5League"`
	RarityType string `json:"rarityType"`
	Division   Number `json:"division"`
}
