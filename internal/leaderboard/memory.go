package leaderboard

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/jacl-coder/EyeSurvival-Server/internal/models"
)

// MemoryBoard is a process-local Board used when Redis is unavailable.
type MemoryBoard struct {
	mu     sync.RWMutex
	scores map[models.LeaderboardPeriod]map[string]float64
	names  map[string]string
}

// NewMemoryBoard returns an empty board.
func NewMemoryBoard() *MemoryBoard {
	b := &MemoryBoard{}
	b.reset()
	return b
}

func (b *MemoryBoard) reset() {
	b.scores = make(map[models.LeaderboardPeriod]map[string]float64, len(periods))
	for _, p := range periods {
		b.scores[p] = make(map[string]float64)
	}
	b.names = make(map[string]string)
}

func (b *MemoryBoard) add(u *models.User) {
	for _, p := range periods {
		b.scores[p][u.ID] = p.Value(u)
	}
	b.names[u.ID] = displayName(u)
}

// Record implements Board.
func (b *MemoryBoard) Record(_ context.Context, user *models.User) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.add(user)
	return nil
}

// Rebuild implements Board.
func (b *MemoryBoard) Rebuild(_ context.Context, users []*models.User) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reset()
	for _, u := range users {
		b.add(u)
	}
	return nil
}

// ranked orders by score descending, ties by id. Caller holds mu.
func (b *MemoryBoard) ranked(period models.LeaderboardPeriod) []models.LeaderboardEntry {
	scores := b.scores[period]
	out := make([]models.LeaderboardEntry, 0, len(scores))
	for id, score := range scores {
		out = append(out, models.LeaderboardEntry{UserID: id, Name: b.names[id], Score: score})
	}
	slices.SortFunc(out, func(x, y models.LeaderboardEntry) int {
		if c := cmp.Compare(y.Score, x.Score); c != 0 {
			return c
		}
		return cmp.Compare(x.UserID, y.UserID)
	})
	for i := range out {
		out[i].Position = i + 1
	}
	return out
}

// Top implements Board.
func (b *MemoryBoard) Top(_ context.Context, period models.LeaderboardPeriod, limit int) ([]models.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	all := b.ranked(period)
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// Position implements Board.
func (b *MemoryBoard) Position(_ context.Context, period models.LeaderboardPeriod, userID string) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, e := range b.ranked(period) {
		if e.UserID == userID {
			return e.Position, nil
		}
	}
	return 0, nil
}
