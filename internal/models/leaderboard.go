package models

// LeaderboardPeriod selects which counter a leaderboard ranks.
type LeaderboardPeriod string

const (
	LeaderboardMonthly LeaderboardPeriod = "monthly"
	LeaderboardYearly  LeaderboardPeriod = "yearly"
	LeaderboardEyes    LeaderboardPeriod = "eyes"
)

// Valid reports whether p is a known period.
func (p LeaderboardPeriod) Valid() bool {
	switch p {
	case LeaderboardMonthly, LeaderboardYearly, LeaderboardEyes:
		return true
	}
	return false
}

// LeaderboardEntry is one ranked row.
type LeaderboardEntry struct {
	UserID   string  `json:"id"`
	Name     string  `json:"name"`
	Score    float64 `json:"score"`
	Position int     `json:"position"`
}

// Value returns the counter u is ranked by for p.
func (p LeaderboardPeriod) Value(u *User) float64 {
	switch p {
	case LeaderboardYearly:
		return float64(u.YearlySecondsPlayed)
	case LeaderboardEyes:
		return float64(u.Eyes)
	default:
		return float64(u.MonthlySecondsPlayed)
	}
}
