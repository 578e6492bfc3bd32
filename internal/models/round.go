package models

import (
	"slices"
	"time"
)

// ParticipantStatus is a participant's standing within one round.
type ParticipantStatus string

const (
	// StatusUnjoined participant has never connected to the round
	StatusUnjoined ParticipantStatus = "unjoined"
	// StatusActive participant joined and is still alive
	StatusActive ParticipantStatus = "active"
	// StatusLeft participant left on their own
	StatusLeft ParticipantStatus = "left"
	// StatusLost participant was eliminated
	StatusLost ParticipantStatus = "lost"
)

// Terminal reports whether the status bars the participant from rejoining.
func (s ParticipantStatus) Terminal() bool {
	return s == StatusLeft || s == StatusLost
}

// Round is one scheduled game session.
//
// ConnectedUsers is the authoritative survivor list. ConnectedCount and
// ReadyCount are denormalised copies kept equal to the set sizes by the
// mutators below; callers should not write the sets directly.
type Round struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	StartsAt        time.Time `json:"startsAt"`
	DurationMinutes int       `json:"durationInMinutes"`

	Roster         []string `json:"players"`
	ConnectedUsers []string `json:"connectedUsersList"`
	ConnectedCount int      `json:"connectedUsers"`
	ReadyUsers     []string `json:"readyUsersList"`
	ReadyCount     int      `json:"readyUsers"`
	LeftUsers      []string `json:"leftUsers"`
	LostUsers      []string `json:"lostUsers"`

	PrizePool        int64 `json:"price"`
	PrizeDistributed bool  `json:"prizeDistributed"`
	PerWinner        int64 `json:"perWinner"`
	FinalScore       int   `json:"finalScore"`

	ReminderSent  bool `json:"-"`
	StartNotified bool `json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone returns a deep copy so stores never share slices with callers.
func (r *Round) Clone() *Round {
	c := *r
	c.Roster = slices.Clone(r.Roster)
	c.ConnectedUsers = slices.Clone(r.ConnectedUsers)
	c.ReadyUsers = slices.Clone(r.ReadyUsers)
	c.LeftUsers = slices.Clone(r.LeftUsers)
	c.LostUsers = slices.Clone(r.LostUsers)
	return &c
}

// StatusOf derives the participant status from the persisted sets.
func (r *Round) StatusOf(userID string) ParticipantStatus {
	switch {
	case slices.Contains(r.LostUsers, userID):
		return StatusLost
	case slices.Contains(r.LeftUsers, userID):
		return StatusLeft
	case slices.Contains(r.ConnectedUsers, userID):
		return StatusActive
	default:
		return StatusUnjoined
	}
}

// InRoster reports whether userID may join.
func (r *Round) InRoster(userID string) bool {
	return slices.Contains(r.Roster, userID)
}

// Enroll adds userID to the roster. Returns false if already present.
func (r *Round) Enroll(userID string) bool {
	if r.InRoster(userID) {
		return false
	}
	r.Roster = append(r.Roster, userID)
	return true
}

// AddConnected returns false when userID was already connected.
func (r *Round) AddConnected(userID string) bool {
	var added bool
	r.ConnectedUsers, added = addMember(r.ConnectedUsers, userID)
	r.ConnectedCount = len(r.ConnectedUsers)
	return added
}

// RemoveConnected returns false when userID was not connected.
func (r *Round) RemoveConnected(userID string) bool {
	var removed bool
	r.ConnectedUsers, removed = removeMember(r.ConnectedUsers, userID)
	r.ConnectedCount = len(r.ConnectedUsers)
	return removed
}

// AddReady returns false when userID was already ready.
func (r *Round) AddReady(userID string) bool {
	var added bool
	r.ReadyUsers, added = addMember(r.ReadyUsers, userID)
	r.ReadyCount = len(r.ReadyUsers)
	return added
}

// RemoveReady returns false when userID was not ready.
func (r *Round) RemoveReady(userID string) bool {
	var removed bool
	r.ReadyUsers, removed = removeMember(r.ReadyUsers, userID)
	r.ReadyCount = len(r.ReadyUsers)
	return removed
}

// MarkTerminal records a left or lost participant.
func (r *Round) MarkTerminal(userID string, status ParticipantStatus) {
	switch status {
	case StatusLeft:
		r.LeftUsers, _ = addMember(r.LeftUsers, userID)
	case StatusLost:
		r.LostUsers, _ = addMember(r.LostUsers, userID)
	}
}

// Survivors returns a copy of the connected set.
func (r *Round) Survivors() []string {
	return slices.Clone(r.ConnectedUsers)
}

// Started reports whether the scheduled start has passed at now.
func (r *Round) Started(now time.Time) bool {
	return !now.Before(r.StartsAt)
}

func addMember(set []string, id string) ([]string, bool) {
	if slices.Contains(set, id) {
		return set, false
	}
	return append(set, id), true
}

func removeMember(set []string, id string) ([]string, bool) {
	i := slices.Index(set, id)
	if i < 0 {
		return set, false
	}
	return slices.Delete(set, i, i+1), true
}
