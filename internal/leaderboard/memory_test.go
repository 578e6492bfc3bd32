package leaderboard

import (
	"context"
	"testing"

	"github.com/jacl-coder/EyeSurvival-Server/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func users() []*models.User {
	return []*models.User{
		{ID: "a", Name: "Ada", Eyes: 5, MonthlySecondsPlayed: 300, YearlySecondsPlayed: 900},
		{ID: "b", Email: "b@example.com", Eyes: 50, MonthlySecondsPlayed: 600, YearlySecondsPlayed: 600},
		{ID: "c", Name: "Cy", Eyes: 20, MonthlySecondsPlayed: 600, YearlySecondsPlayed: 100},
	}
}

func TestMemoryBoardRanksPerPeriod(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBoard()
	require.NoError(t, b.Rebuild(ctx, users()))

	monthly, err := b.Top(ctx, models.LeaderboardMonthly, 10)
	require.NoError(t, err)
	require.Len(t, monthly, 3)
	// b and c tie on score; ties fall back to id order.
	assert.Equal(t, []string{"b", "c", "a"}, []string{monthly[0].UserID, monthly[1].UserID, monthly[2].UserID})
	assert.Equal(t, "b@example.com", monthly[0].Name)
	assert.Equal(t, 3, monthly[2].Position)

	eyes, err := b.Top(ctx, models.LeaderboardEyes, 1)
	require.NoError(t, err)
	require.Len(t, eyes, 1)
	assert.Equal(t, "b", eyes[0].UserID)
	assert.Equal(t, float64(50), eyes[0].Score)

	pos, err := b.Position(ctx, models.LeaderboardYearly, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, pos)
}

func TestMemoryBoardRecordAndUnknownUser(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBoard()
	require.NoError(t, b.Rebuild(ctx, users()))

	require.NoError(t, b.Record(ctx, &models.User{ID: "d", Name: "Dee", Eyes: 99}))
	pos, err := b.Position(ctx, models.LeaderboardEyes, "d")
	require.NoError(t, err)
	assert.Equal(t, 1, pos)

	pos, err = b.Position(ctx, models.LeaderboardEyes, "nobody")
	require.NoError(t, err)
	assert.Zero(t, pos)
}

func TestMemoryBoardRebuildReplaces(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBoard()
	require.NoError(t, b.Rebuild(ctx, users()))
	require.NoError(t, b.Rebuild(ctx, users()[:1]))

	top, err := b.Top(ctx, models.LeaderboardMonthly, 0)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "a", top[0].UserID)
}
