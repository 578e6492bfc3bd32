package gateway

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jacl-coder/EyeSurvival-Server/internal/models"
	"github.com/jacl-coder/EyeSurvival-Server/internal/protocol"
)

const historyLimit = 100

type upcomingResponse struct {
	Games       []*models.Round `json:"games"`
	ClosestGame *models.Round   `json:"closestGame"`
	HasGames    bool            `json:"hasGames"`
}

// startOfDay is midnight UTC of t's date; catalogue queries are day-granular.
func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (g *Gateway) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	rounds, err := g.deps.Catalogue.ListStartingFrom(r.Context(), startOfDay(time.Now()))
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	resp := upcomingResponse{Games: rounds, HasGames: len(rounds) > 0}
	if resp.HasGames {
		resp.ClosestGame = rounds[0]
	} else {
		resp.Games = []*models.Round{}
	}
	writeOK(w, "Upcoming games", resp)
}

func (g *Gateway) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFrom(r.Context())
	rounds, err := g.deps.Catalogue.ListStartedBefore(r.Context(), startOfDay(time.Now()), historyLimit)
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	played := make([]*models.Round, 0, len(rounds))
	for _, round := range rounds {
		if round.InRoster(userID) {
			played = append(played, round)
		}
	}
	writeOK(w, "Past games", played)
}

func (g *Gateway) handleGetRound(w http.ResponseWriter, r *http.Request) {
	round, err := g.deps.Registry.Round(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeOK(w, "Game found", round)
}

type createRoundRequest struct {
	Title           string    `json:"title"`
	StartsAt        time.Time `json:"startsAt"`
	DurationMinutes int       `json:"durationInMinutes"`
	PrizePool       int64     `json:"price"`
	Roster          []string  `json:"players"`
}

func (g *Gateway) handleCreateRound(w http.ResponseWriter, r *http.Request) {
	var req createRoundRequest
	if err := readJSON(w, r, &req); err != nil {
		g.writeError(w, r, err)
		return
	}

	switch {
	case strings.TrimSpace(req.Title) == "":
		g.writeError(w, r, badRequest("title is required"))
		return
	case req.StartsAt.IsZero():
		g.writeError(w, r, badRequest("startsAt is required"))
		return
	case req.PrizePool < 0 || req.DurationMinutes < 0:
		g.writeError(w, r, badRequest("price and durationInMinutes must not be negative"))
		return
	}

	round := &models.Round{
		ID:              uuid.NewString(),
		Title:           strings.TrimSpace(req.Title),
		StartsAt:        req.StartsAt.UTC(),
		DurationMinutes: req.DurationMinutes,
		PrizePool:       req.PrizePool,
	}
	for _, id := range req.Roster {
		round.Enroll(id)
	}
	if err := g.deps.Rounds.Save(r.Context(), round); err != nil {
		g.writeError(w, r, err)
		return
	}
	g.cache.Purge("/api/games")

	writeJSON(w, http.StatusCreated, Response{Success: true, Message: "Game created", Data: round})
}

// lifecycleRequest is shared by the round lifecycle endpoints; each reads the
// fields it needs.
type lifecycleRequest struct {
	GameID     string `json:"gameId"`
	UserID     string `json:"userId"`
	EyesLost   int64  `json:"eyesLost"`
	Amount     int64  `json:"amount"`
	FinalScore int    `json:"finalScore"`
	Score      *int   `json:"score"`
	TimePlayed int64  `json:"timePlayed"`
}

type lifecycleResult struct {
	GameID         string `json:"gameId"`
	UserID         string `json:"userId,omitempty"`
	ConnectedUsers int    `json:"connectedUsers"`
	Survivors      int    `json:"survivors"`
	EyesLeft       *int64 `json:"eyesLeft,omitempty"`
}

func resultFor(round *models.Round, userID string) lifecycleResult {
	return lifecycleResult{
		GameID:         round.ID,
		UserID:         userID,
		ConnectedUsers: round.ConnectedCount,
		Survivors:      len(round.Survivors()),
	}
}

// readLifecycle decodes the body and resolves the acting participant. A
// missing userId means the caller; acting for someone else needs admin.
func (g *Gateway) readLifecycle(w http.ResponseWriter, r *http.Request, needUser bool) (lifecycleRequest, error) {
	var req lifecycleRequest
	if err := readJSON(w, r, &req); err != nil {
		return req, err
	}
	if req.GameID == "" {
		return req, badRequest("gameId is required")
	}
	if !needUser {
		return req, nil
	}

	claims := ClaimsFrom(r.Context())
	switch {
	case req.UserID == "":
		req.UserID = claims.Subject
	case req.UserID != claims.Subject && claims.Role != RoleAdmin:
		return req, errForbidden
	}
	return req, nil
}

func (g *Gateway) broadcast(roundID string, msg protocol.Outbound) {
	if g.deps.Broadcaster != nil {
		g.deps.Broadcaster.BroadcastToRound(roundID, msg)
	}
}

func (g *Gateway) handleJoin(w http.ResponseWriter, r *http.Request) {
	req, err := g.readLifecycle(w, r, true)
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	if _, err := g.deps.Registry.Enroll(r.Context(), req.GameID, req.UserID); err != nil {
		g.writeError(w, r, err)
		return
	}
	round, err := g.deps.Registry.MarkConnected(r.Context(), req.GameID, req.UserID)
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	g.broadcast(round.ID, protocol.NewPlayerJoined(round.ID, req.UserID, round.ConnectedCount))
	writeOK(w, "Joined game", resultFor(round, req.UserID))
}

func (g *Gateway) handleLeave(w http.ResponseWriter, r *http.Request) {
	req, err := g.readLifecycle(w, r, true)
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	round, err := g.deps.Registry.MarkLeft(r.Context(), req.GameID, req.UserID)
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	g.broadcast(round.ID, protocol.NewPlayerLeft(round.ID, req.UserID, "left", round.ConnectedCount))
	writeOK(w, "Left game", resultFor(round, req.UserID))
}

func (g *Gateway) handleLose(w http.ResponseWriter, r *http.Request) {
	req, err := g.readLifecycle(w, r, true)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	if req.EyesLost < 0 {
		g.writeError(w, r, badRequest("eyesLost must not be negative"))
		return
	}

	round, err := g.deps.Registry.MarkLost(r.Context(), req.GameID, req.UserID, req.EyesLost)
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	g.broadcast(round.ID, protocol.NewPlayerLeft(round.ID, req.UserID, "lost", round.ConnectedCount))
	res := resultFor(round, req.UserID)
	res.EyesLeft = g.eyesOf(r.Context(), req.UserID)
	writeOK(w, "Game lost", res)
}

func (g *Gateway) handleDebitEyes(w http.ResponseWriter, r *http.Request) {
	req, err := g.readLifecycle(w, r, true)
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	round, err := g.deps.Registry.Round(r.Context(), req.GameID)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	user, err := g.deps.Registry.DebitEyes(r.Context(), req.UserID, req.Amount)
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	res := resultFor(round, req.UserID)
	res.EyesLeft = &user.Eyes
	writeOK(w, "Eyes debited", res)
}

func (g *Gateway) handleEnd(w http.ResponseWriter, r *http.Request) {
	req, err := g.readLifecycle(w, r, false)
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	round, err := g.deps.Registry.Round(r.Context(), req.GameID)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	claims := ClaimsFrom(r.Context())
	if claims.Role != RoleAdmin && !round.InRoster(claims.Subject) {
		g.writeError(w, r, errForbidden)
		return
	}

	result, err := g.deps.Settlement.Settle(r.Context(), req.GameID, req.FinalScore)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	g.cache.Purge("/api/games")

	if !result.AlreadyDistributed {
		g.broadcast(req.GameID, protocol.NewGameEnded(req.GameID, result.TotalSurvivors, "Game over"))
	}

	message := "Prize distributed"
	if result.AlreadyDistributed {
		message = "Prize already distributed"
	}
	writeOK(w, message, result)
}

func (g *Gateway) eyesOf(ctx context.Context, userID string) *int64 {
	u, err := g.deps.Users.FindByID(ctx, userID)
	if err != nil {
		return nil
	}
	return &u.Eyes
}
