// Package leaderboard ranks players by time played and by eyes left.
package leaderboard

import (
	"context"

	"github.com/jacl-coder/EyeSurvival-Server/internal/models"
)

// DefaultLimit is the size of a served leaderboard page.
const DefaultLimit = 10

// Board is a ranked view over users. Positions start at 1; 0 means the user
// is not ranked.
type Board interface {
	Record(ctx context.Context, user *models.User) error
	Rebuild(ctx context.Context, users []*models.User) error
	Top(ctx context.Context, period models.LeaderboardPeriod, limit int) ([]models.LeaderboardEntry, error)
	Position(ctx context.Context, period models.LeaderboardPeriod, userID string) (int, error)
}

var periods = []models.LeaderboardPeriod{
	models.LeaderboardMonthly,
	models.LeaderboardYearly,
	models.LeaderboardEyes,
}

func displayName(u *models.User) string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}
