package gateway

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/jacl-coder/EyeSurvival-Server/internal/models"
	"github.com/jacl-coder/EyeSurvival-Server/internal/storage"
)

const maxAvatarBytes = 5 << 20

func (g *Gateway) handleProfile(w http.ResponseWriter, r *http.Request) {
	user, err := g.deps.Users.FindByID(r.Context(), UserIDFrom(r.Context()))
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeOK(w, "Profile", user)
}

type pushTokenRequest struct {
	Token string `json:"token"`
}

func (g *Gateway) handleRegisterPushToken(w http.ResponseWriter, r *http.Request) {
	var req pushTokenRequest
	if err := readJSON(w, r, &req); err != nil {
		g.writeError(w, r, err)
		return
	}
	req.Token = strings.TrimSpace(req.Token)
	if req.Token == "" {
		g.writeError(w, r, badRequest("token is required"))
		return
	}

	added := false
	_, err := g.deps.Users.Update(r.Context(), UserIDFrom(r.Context()), func(u *models.User) error {
		added = u.AddPushToken(req.Token)
		return nil
	})
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	message := "Push token registered"
	if !added {
		message = "Push token already registered"
	}
	writeOK(w, message, map[string]bool{"added": added})
}

func (g *Gateway) handleUploadAvatar(w http.ResponseWriter, r *http.Request) {
	if g.deps.Uploader == nil {
		writeJSON(w, http.StatusServiceUnavailable, Response{Message: "Avatar uploads are not configured"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAvatarBytes+1024)
	file, header, err := r.FormFile("avatar")
	if err != nil {
		g.writeError(w, r, badRequest("avatar file is required"))
		return
	}
	defer file.Close()

	ext, err := storage.ExtensionFor(header.Header.Get("Content-Type"))
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	userID := UserIDFrom(r.Context())
	if _, err := g.deps.Users.FindByID(r.Context(), userID); err != nil {
		g.writeError(w, r, err)
		return
	}

	uploaded, err := g.deps.Uploader.Upload(r.Context(), storage.AvatarKey(userID, ext), header.Header.Get("Content-Type"), file)
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	user, err := g.deps.Users.Update(r.Context(), userID, func(u *models.User) error {
		u.AvatarURL = uploaded.Location
		return nil
	})
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeOK(w, "Avatar updated", user)
}

type scoreResult struct {
	EyesLeft              int64 `json:"eyesLeft"`
	Score                 int   `json:"score"`
	DurationPlayed        int64 `json:"durationPlayed"`
	MonthlyDurationPlayed int64 `json:"monthlyDurationPlayed"`
	YearlyDurationPlayed  int64 `json:"yearlyDurationPlayed"`
}

func (g *Gateway) handleSubmitScore(w http.ResponseWriter, r *http.Request) {
	req, err := g.readLifecycle(w, r, true)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	switch {
	case req.Score == nil:
		g.writeError(w, r, badRequest("score is required"))
		return
	case req.TimePlayed < 0:
		g.writeError(w, r, badRequest("timePlayed must not be negative"))
		return
	}

	if _, err := g.deps.Registry.Round(r.Context(), req.GameID); err != nil {
		g.writeError(w, r, err)
		return
	}

	user, err := g.deps.Users.Update(r.Context(), req.UserID, func(u *models.User) error {
		u.ApplyScore(*req.Score, req.TimePlayed)
		return nil
	})
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	if err := g.deps.Leaderboard.Record(r.Context(), user); err != nil {
		g.logger.Warn("leaderboard not updated", slog.String("user_id", user.ID), slog.Any("error", err))
	}
	g.cache.Purge("/api/leaderboard/")

	writeOK(w, "Score submitted successfully", scoreResult{
		EyesLeft:              user.Eyes,
		Score:                 *req.Score,
		DurationPlayed:        req.TimePlayed,
		MonthlyDurationPlayed: user.MonthlySecondsPlayed,
		YearlyDurationPlayed:  user.YearlySecondsPlayed,
	})
}
