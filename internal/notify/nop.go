package notify

import (
	"context"
	"log/slog"

	"github.com/jacl-coder/EyeSurvival-Server/internal/models"
)

// Nop logs instead of sending. Used when no push credentials are configured.
type Nop struct {
	Logger *slog.Logger
}

func (n Nop) SendGameStart(_ context.Context, round *models.Round) {
	n.Logger.Debug("push disabled: game start", slog.String("round_id", round.ID))
}

func (n Nop) SendGameEnd(_ context.Context, round *models.Round) {
	n.Logger.Debug("push disabled: game end", slog.String("round_id", round.ID))
}

func (n Nop) SendReminder(_ context.Context, round *models.Round, minutes int) {
	n.Logger.Debug("push disabled: reminder", slog.String("round_id", round.ID), slog.Int("minutes", minutes))
}
