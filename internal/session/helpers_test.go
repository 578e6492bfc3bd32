package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jacl-coder/EyeSurvival-Server/internal/models"
	"github.com/jacl-coder/EyeSurvival-Server/internal/protocol"
	"github.com/jacl-coder/EyeSurvival-Server/internal/store"
	"github.com/jacl-coder/EyeSurvival-Server/pkg/logger"
	"github.com/stretchr/testify/require"
)

type sent struct {
	Target string // "all", "round:<id>" or a connection id
	Msg    protocol.Outbound
}

type tag struct{ RoundID, UserID string }

// recorder is an in-memory Broadcaster.
type recorder struct {
	mu     sync.Mutex
	sent   []sent
	tags   map[string]tag
	closed map[string]bool
}

func newRecorder() *recorder {
	return &recorder{tags: make(map[string]tag), closed: make(map[string]bool)}
}

func (r *recorder) BroadcastAll(msg protocol.Outbound) {
	r.record("all", msg)
}

func (r *recorder) BroadcastToRound(roundID string, msg protocol.Outbound) {
	r.record("round:"+roundID, msg)
}

func (r *recorder) Send(connID string, msg protocol.Outbound) bool {
	r.record(connID, msg)
	return true
}

func (r *recorder) Tag(connID, roundID, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed[connID] {
		return false, ErrConnectionClosed
	}
	if roundID == "" {
		delete(r.tags, connID)
		return false, nil
	}
	current, ok := r.tags[connID]
	switch {
	case !ok:
		r.tags[connID] = tag{roundID, userID}
		return true, nil
	case current == tag{roundID, userID}:
		return false, nil
	}
	return false, ErrIdentityConflict
}

// close makes later tagging of connID fail, like a terminated socket.
func (r *recorder) close(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed[connID] = true
	delete(r.tags, connID)
}

func (r *recorder) record(target string, msg protocol.Outbound) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent{Target: target, Msg: msg})
}

func (r *recorder) to(target string) []protocol.OutboundType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []protocol.OutboundType
	for _, s := range r.sent {
		if s.Target == target {
			out = append(out, s.Msg.Type)
		}
	}
	return out
}

func (r *recorder) tagOf(connID string) (tag, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tags[connID]
	return t, ok
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}

type fixture struct {
	rounds   *store.MemoryRoundStore
	users    *store.MemoryUserStore
	wallets  *store.MemoryWalletStore
	registry *Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		rounds:  store.NewMemoryRoundStore(),
		users:   store.NewMemoryUserStore(),
		wallets: store.NewMemoryWalletStore(),
	}
	f.registry = NewRegistry(f.rounds, f.users, time.Second, logger.Discard())
	return f
}

func (f *fixture) round(t *testing.T, id string, pool int64, roster ...string) {
	t.Helper()
	require.NoError(t, f.rounds.Save(context.Background(), &models.Round{
		ID:        id,
		Title:     "Round " + id,
		StartsAt:  time.Now(),
		Roster:    roster,
		PrizePool: pool,
	}))
}

func (f *fixture) user(t *testing.T, id string, eyes int64) {
	t.Helper()
	require.NoError(t, f.users.Save(context.Background(), &models.User{ID: id, Email: id + "@example.com", Eyes: eyes}))
}

func (f *fixture) load(t *testing.T, id string) *models.Round {
	t.Helper()
	r, err := f.rounds.FindByID(context.Background(), id)
	require.NoError(t, err)
	return r
}
