package models

import (
	"slices"
	"time"
)

// ScoreCeiling is the score at which a submission costs no eyes.
const ScoreCeiling = 20

// User is a player account as seen by the game backend.
type User struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	Email                string    `json:"email"`
	AvatarURL            string    `json:"avatarUrl,omitempty"`
	Eyes                 int64     `json:"eyes"`
	PushTokens           []string  `json:"-"`
	EyePurchases         []string  `json:"-"`
	MonthlySecondsPlayed int64     `json:"monthlyDurationPlayed"`
	YearlySecondsPlayed  int64     `json:"yearlyDurationPlayed"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

// Clone returns a deep copy.
func (u *User) Clone() *User {
	c := *u
	c.PushTokens = slices.Clone(u.PushTokens)
	c.EyePurchases = slices.Clone(u.EyePurchases)
	return &c
}

// DebitEyes removes up to amount eyes, never going below zero, and returns
// how many were actually taken.
func (u *User) DebitEyes(amount int64) int64 {
	if amount <= 0 {
		return 0
	}
	taken := min(amount, u.Eyes)
	u.Eyes -= taken
	return taken
}

// ApplyScore charges ScoreCeiling-score eyes and adds secondsPlayed to the
// monthly and yearly counters. Scores above the ceiling charge nothing.
func (u *User) ApplyScore(score int, secondsPlayed int64) {
	u.DebitEyes(int64(ScoreCeiling - score))
	if secondsPlayed > 0 {
		u.MonthlySecondsPlayed += secondsPlayed
		u.YearlySecondsPlayed += secondsPlayed
	}
}

// AddPushToken returns false when the token is already registered.
func (u *User) AddPushToken(token string) bool {
	if token == "" || slices.Contains(u.PushTokens, token) {
		return false
	}
	u.PushTokens = append(u.PushTokens, token)
	return true
}

// CreditEyePurchase adds eyes bought under reference. A reference is only
// ever credited once.
func (u *User) CreditEyePurchase(reference string, eyes int64) bool {
	if reference == "" || eyes <= 0 || slices.Contains(u.EyePurchases, reference) {
		return false
	}
	u.Eyes += eyes
	u.EyePurchases = append(u.EyePurchases, reference)
	return true
}
