package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jacl-coder/EyeSurvival-Server/internal/leaderboard"
	"github.com/jacl-coder/EyeSurvival-Server/internal/models"
)

// leaderboardResponse is one ranked page plus the caller's own position.
type leaderboardResponse struct {
	Period   models.LeaderboardPeriod  `json:"period"`
	Entries  []models.LeaderboardEntry `json:"entries"`
	Position int                       `json:"position"`
}

func (g *Gateway) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	period := models.LeaderboardPeriod(chi.URLParam(r, "period"))
	if !period.Valid() {
		g.writeError(w, r, badRequest("unknown leaderboard period %q", period))
		return
	}

	ctx := r.Context()
	entries, err := g.deps.Leaderboard.Top(ctx, period, leaderboard.DefaultLimit)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []models.LeaderboardEntry{}
	}

	position, err := g.deps.Leaderboard.Position(ctx, period, UserIDFrom(ctx))
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	writeOK(w, "Leaderboard", leaderboardResponse{
		Period:   period,
		Entries:  entries,
		Position: position,
	})
}
