package server

import (
	"context"
	"net/http"
	"strings"

	"sorare-coach/internal/api"
	"sorare-coach/internal/constants"
	"sorare-coach/internal/domain"
	"sorare-coach/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Forwarder relays a raw GraphQL document upstream.
type Forwarder interface {
	Forward(ctx context.Context, body []byte) (int, []byte, error)
	GetRateLimitInfo() api.RateLimitInfo
}

type Handler struct {
	persistence *service.PersistenceService
	collections *service.CollectionService
	gameweeks   *service.GameWeekService
	coach       *service.CoachService
	upstream    Forwarder
	logger      zerolog.Logger
}

func NewHandler(
	persistence *service.PersistenceService,
	collections *service.CollectionService,
	gameweeks *service.GameWeekService,
	coach *service.CoachService,
	sorare *api.SorareClient,
	logger zerolog.Logger,
) *Handler {
	return &Handler{
		persistence: persistence,
		collections: collections,
		gameweeks:   gameweeks,
		coach:       coach,
		upstream:    sorare,
		logger:      logger,
	}
}

type cardInput struct {
	ID          string `json:"id" validate:"required"`
	Slug        string `json:"slug"`
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
	Position    string `json:"position" validate:"omitempty,oneof=Forward Midfielder Defender Goalkeeper"`
	Rarity      string `json:"rarity"`
	XP          int    `json:"xp" validate:"min=0"`
	Season      int    `json:"season" validate:"min=0"`
}

type performanceInput struct {
	PlayerID      string  `json:"playerId" validate:"required"`
	DisplayName   string  `json:"displayName"`
	Position      string  `json:"position"`
	L5            float64 `json:"l5"`
	L15           float64 `json:"l15"`
	L40           float64 `json:"l40"`
	DNPPercentage float64 `json:"dnpPercentage" validate:"min=0,max=100"`
	GamesPlayed   int     `json:"gamesPlayed" validate:"min=0"`
	TotalGames    int     `json:"totalGames" validate:"min=0"`
}

type graphQLInput struct {
	Query     string         `json:"query" validate:"required"`
	Variables map[string]any `json:"variables"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type healthResponse struct {
	Status          string            `json:"status"`
	UpstreamLimits  api.RateLimitInfo `json:"upstreamLimits"`
	CoachConfigured bool              `json:"coachConfigured"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, healthResponse{
		Status:          "ok",
		UpstreamLimits:  h.upstream.GetRateLimitInfo(),
		CoachConfigured: h.coach.Enabled(),
	})
}

// SorareProxy forwards the request body verbatim and relays the upstream
// status and body.
func (h *Handler) SorareProxy(w http.ResponseWriter, r *http.Request) {
	var in graphQLInput
	body, err := decodeBody(r, &in)
	if err != nil {
		writeError(w, r, err)
		return
	}

	status, respBody, err := h.upstream.Forward(r.Context(), body)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("sorare proxy request failed")
		writeJSON(w, r, http.StatusServiceUnavailable, errorResponse{
			Error:   "Sorare API unreachable",
			Details: err.Error(),
			Code:    "UPSTREAM_UNAVAILABLE",
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(respBody); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("failed to write proxy response")
	}
}

func (h *Handler) SaveCard(w http.ResponseWriter, r *http.Request) {
	var in cardInput
	if _, err := decodeBody(r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	card := domain.Card{
		ID:          in.ID,
		Slug:        in.Slug,
		PlayerID:    in.PlayerID,
		DisplayName: in.DisplayName,
		Position:    in.Position,
		Rarity:      in.Rarity,
		XP:          in.XP,
		Season:      in.Season,
	}
	if err := h.persistence.SaveCard(r.Context(), &card); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, successResponse{Success: true})
}

func (h *Handler) ListCards(w http.ResponseWriter, r *http.Request) {
	cards, err := h.persistence.ListCards(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, cards)
}

func (h *Handler) GetCard(w http.ResponseWriter, r *http.Request) {
	card, err := h.persistence.GetCard(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, card)
}

func (h *Handler) ListPlayerCards(w http.ResponseWriter, r *http.Request) {
	cards, err := h.persistence.GetCardsByPlayer(r.Context(), chi.URLParam(r, "playerId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, cards)
}

func (h *Handler) SavePerformance(w http.ResponseWriter, r *http.Request) {
	var in performanceInput
	if _, err := decodeBody(r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	perf := domain.PlayerPerformance{
		PlayerID:      in.PlayerID,
		DisplayName:   in.DisplayName,
		Position:      in.Position,
		L5:            in.L5,
		L15:           in.L15,
		L40:           in.L40,
		DNPPercentage: in.DNPPercentage,
		GamesPlayed:   in.GamesPlayed,
		TotalGames:    in.TotalGames,
	}
	if err := h.persistence.SavePlayerPerformance(r.Context(), &perf); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, successResponse{Success: true})
}

func (h *Handler) ListPerformances(w http.ResponseWriter, r *http.Request) {
	perfs, err := h.persistence.ListPerformances(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, perfs)
}

// GetPerformance answers null rather than 404 for an unknown player.
func (h *Handler) GetPerformance(w http.ResponseWriter, r *http.Request) {
	perf, err := h.persistence.GetPerformance(r.Context(), chi.URLParam(r, "playerId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, perf)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.persistence.GetStats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, stats)
}

func (h *Handler) UserCollection(w http.ResponseWriter, r *http.Request) {
	collection, err := h.collections.FetchCollection(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, collection)
}

func (h *Handler) ListGameWeeks(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", constants.GameWeekListLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var weeks []domain.GameWeek
	if details := strings.ToLower(r.URL.Query().Get("details")); details == "true" || details == "1" {
		weeks, err = h.gameweeks.ListGameWeeksWithDetails(r.Context(), limit)
	} else {
		weeks, err = h.gameweeks.ListGameWeeks(r.Context(), limit)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, weeks)
}

func (h *Handler) GetGameWeek(w http.ResponseWriter, r *http.Request) {
	week, err := h.gameweeks.GetGameWeek(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, week)
}

func (h *Handler) ListIngestRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", constants.IngestRunListLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	runs, err := h.persistence.ListIngestRuns(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, runs)
}

func (h *Handler) Coach(w http.ResponseWriter, r *http.Request) {
	if !h.coach.Enabled() {
		writeError(w, r, api.ErrCoachDisabled)
		return
	}

	var in service.CoachRequest
	if _, err := decodeBody(r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	reply, err := h.coach.Ask(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, reply)
}
