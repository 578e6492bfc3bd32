package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jacl-coder/EyeSurvival-Server/internal/models"
	"github.com/jacl-coder/EyeSurvival-Server/internal/store"
	"github.com/jacl-coder/EyeSurvival-Server/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkConnectedIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.round(t, "r1", 0, "a")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		round, err := f.registry.MarkConnected(ctx, "r1", "a")
		require.NoError(t, err)
		assert.Equal(t, 1, round.ConnectedCount)
	}
}

func TestMarkConnectedRejectsOutsiders(t *testing.T) {
	f := newFixture(t)
	f.round(t, "r1", 0, "a")

	_, err := f.registry.MarkConnected(context.Background(), "r1", "stranger")
	assert.ErrorIs(t, err, ErrNotInRoster)

	_, err = f.registry.MarkConnected(context.Background(), "missing", "a")
	assert.ErrorIs(t, err, ErrRoundNotFound)
}

func TestRejoinDeniedAfterLeaveOrLoss(t *testing.T) {
	f := newFixture(t)
	f.round(t, "r1", 0, "a", "b")
	f.user(t, "b", 10)
	ctx := context.Background()

	_, err := f.registry.MarkConnected(ctx, "r1", "a")
	require.NoError(t, err)
	_, err = f.registry.MarkConnected(ctx, "r1", "b")
	require.NoError(t, err)

	_, err = f.registry.MarkLeft(ctx, "r1", "a")
	require.NoError(t, err)
	_, err = f.registry.MarkLost(ctx, "r1", "b", 0)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err = f.registry.MarkConnected(ctx, "r1", "a")
		assert.ErrorIs(t, err, ErrRejoinDenied)
		_, err = f.registry.MarkConnected(ctx, "r1", "b")
		assert.ErrorIs(t, err, ErrRejoinDenied)
		_, err = f.registry.Enroll(ctx, "r1", "a")
		assert.ErrorIs(t, err, ErrRejoinDenied)
	}

	round := f.load(t, "r1")
	assert.Empty(t, round.ConnectedUsers)
	assert.Equal(t, 0, round.ConnectedCount)
	assert.Equal(t, []string{"a"}, round.LeftUsers)
	assert.Equal(t, []string{"b"}, round.LostUsers)
}

func TestCountsMatchSetsAcrossEvents(t *testing.T) {
	f := newFixture(t)
	f.round(t, "r1", 0, "a", "b", "c", "d")
	ctx := context.Background()

	steps := []func() error{
		func() error { _, err := f.registry.MarkConnected(ctx, "r1", "a"); return err },
		func() error { _, err := f.registry.MarkConnected(ctx, "r1", "b"); return err },
		func() error { _, err := f.registry.MarkDisconnected(ctx, "r1", "a"); return err },
		func() error { _, err := f.registry.MarkConnected(ctx, "r1", "c"); return err },
		func() error { _, err := f.registry.MarkLeft(ctx, "r1", "c"); return err },
		func() error { _, err := f.registry.MarkLeft(ctx, "r1", "c"); return err },
		func() error { _, err := f.registry.MarkLost(ctx, "r1", "d", 0); return err },
		func() error { _, err := f.registry.MarkConnected(ctx, "r1", "a"); return err },
	}
	for i, step := range steps {
		require.NoError(t, step(), "step %d", i)
		round := f.load(t, "r1")
		assert.Equal(t, len(round.ConnectedUsers), round.ConnectedCount, "step %d", i)
		assert.Equal(t, len(round.ReadyUsers), round.ReadyCount, "step %d", i)
	}
	assert.ElementsMatch(t, []string{"a", "b"}, f.load(t, "r1").ConnectedUsers)
}

func TestDisconnectClearsReady(t *testing.T) {
	f := newFixture(t)
	f.round(t, "r1", 0, "a")
	ctx := context.Background()

	_, err := f.registry.MarkReady(ctx, "r1", "a")
	require.NoError(t, err)
	round, err := f.registry.MarkReady(ctx, "r1", "a")
	require.NoError(t, err)
	assert.Equal(t, 1, round.ReadyCount)

	round, err = f.registry.MarkDisconnected(ctx, "r1", "a")
	require.NoError(t, err)
	assert.Equal(t, 0, round.ReadyCount)

	// A dropped connection may come back.
	round, err = f.registry.MarkConnected(ctx, "r1", "a")
	require.NoError(t, err)
	assert.Equal(t, 1, round.ConnectedCount)
}

func TestConcurrentJoinsAreNotLost(t *testing.T) {
	const n = 64
	f := newFixture(t)
	roster := make([]string, n)
	for i := range roster {
		roster[i] = fmt.Sprintf("p%02d", i)
	}
	f.round(t, "r1", 0, roster...)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for _, id := range roster {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			<-start
			_, err := f.registry.MarkConnected(context.Background(), "r1", id)
			assert.NoError(t, err)
		}(id)
	}
	close(start)
	wg.Wait()

	round := f.load(t, "r1")
	assert.Equal(t, n, round.ConnectedCount)
	assert.ElementsMatch(t, roster, round.ConnectedUsers)
	assert.Zero(t, f.registry.locks.size())
}

func TestMarkLostDebitsEyesWithFloor(t *testing.T) {
	f := newFixture(t)
	f.round(t, "r1", 0, "a", "b")
	f.user(t, "a", 40)
	f.user(t, "b", 10)
	ctx := context.Background()

	_, err := f.registry.MarkLost(ctx, "r1", "a", 15)
	require.NoError(t, err)
	_, err = f.registry.MarkLost(ctx, "r1", "b", 15)
	require.NoError(t, err)

	a, _ := f.users.FindByID(ctx, "a")
	b, _ := f.users.FindByID(ctx, "b")
	assert.Equal(t, int64(25), a.Eyes)
	assert.Equal(t, int64(0), b.Eyes)
}

func TestMarkLostSurvivesMissingUser(t *testing.T) {
	f := newFixture(t)
	f.round(t, "r1", 0, "ghost")
	ctx := context.Background()
	_, err := f.registry.MarkConnected(ctx, "r1", "ghost")
	require.NoError(t, err)

	round, err := f.registry.MarkLost(ctx, "r1", "ghost", 5)
	require.NoError(t, err)
	assert.Empty(t, round.ConnectedUsers)
}

func TestDebitEyesValidatesAmount(t *testing.T) {
	f := newFixture(t)
	f.user(t, "a", 5)

	_, err := f.registry.DebitEyes(context.Background(), "a", 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = f.registry.DebitEyes(context.Background(), "nobody", 3)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

// flakyRounds fails the first n updates.
type flakyRounds struct {
	store.RoundStore
	mu    sync.Mutex
	fails int
	calls int
}

func (s *flakyRounds) Update(ctx context.Context, id string, fn func(*models.Round) error) (*models.Round, error) {
	s.mu.Lock()
	s.calls++
	fail := s.calls <= s.fails
	s.mu.Unlock()
	if fail {
		return nil, errors.New("connection reset")
	}
	return s.RoundStore.Update(ctx, id, fn)
}

func TestTransientUpdateFailureIsRetriedOnce(t *testing.T) {
	f := newFixture(t)
	f.round(t, "r1", 0, "a")
	rounds := &flakyRounds{RoundStore: f.rounds, fails: 1}
	registry := NewRegistry(rounds, f.users, time.Second, logger.Discard())

	round, err := registry.MarkConnected(context.Background(), "r1", "a")
	require.NoError(t, err)
	assert.Equal(t, 1, round.ConnectedCount)
	assert.Equal(t, 2, rounds.calls)

	rounds.calls, rounds.fails = 0, 5
	_, err = registry.MarkReady(context.Background(), "r1", "a")
	assert.ErrorContains(t, err, "connection reset")
	assert.Equal(t, storeAttempts, rounds.calls)
}

func TestDomainRefusalIsNotRetried(t *testing.T) {
	f := newFixture(t)
	f.round(t, "r1", 0, "a")
	rounds := &flakyRounds{RoundStore: f.rounds}
	registry := NewRegistry(rounds, f.users, time.Second, logger.Discard())

	_, err := registry.MarkConnected(context.Background(), "r1", "stranger")
	assert.ErrorIs(t, err, ErrNotInRoster)
	assert.Equal(t, 1, rounds.calls)
}
