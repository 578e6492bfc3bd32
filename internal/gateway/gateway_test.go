package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jacl-coder/EyeSurvival-Server/config"
	"github.com/jacl-coder/EyeSurvival-Server/internal/leaderboard"
	"github.com/jacl-coder/EyeSurvival-Server/internal/models"
	"github.com/jacl-coder/EyeSurvival-Server/internal/payment"
	"github.com/jacl-coder/EyeSurvival-Server/internal/protocol"
	"github.com/jacl-coder/EyeSurvival-Server/internal/session"
	"github.com/jacl-coder/EyeSurvival-Server/internal/store"
	"github.com/jacl-coder/EyeSurvival-Server/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundBroadcasts struct {
	mu   sync.Mutex
	msgs map[string][]protocol.OutboundType
}

func (b *roundBroadcasts) BroadcastAll(protocol.Outbound)           {}
func (b *roundBroadcasts) Send(string, protocol.Outbound) bool      { return true }
func (b *roundBroadcasts) Tag(string, string, string) (bool, error) { return true, nil }
func (b *roundBroadcasts) BroadcastToRound(roundID string, msg protocol.Outbound) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.msgs == nil {
		b.msgs = make(map[string][]protocol.OutboundType)
	}
	b.msgs[roundID] = append(b.msgs[roundID], msg.Type)
}

func (b *roundBroadcasts) of(roundID string) []protocol.OutboundType {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.msgs[roundID]
}

type fakeVerifier struct {
	payments map[string]*payment.Verification
}

func (f *fakeVerifier) Verify(_ context.Context, reference string) (*payment.Verification, error) {
	if reference == "" {
		return nil, payment.ErrReferenceRequired
	}
	v, ok := f.payments[reference]
	if !ok {
		return nil, payment.ErrUnknownReference
	}
	if v.Status != "success" {
		return v, payment.ErrNotSuccessful
	}
	return v, nil
}

type fixture struct {
	t        *testing.T
	gateway  *Gateway
	handler  http.Handler
	rounds   *store.MemoryRoundStore
	users    *store.MemoryUserStore
	wallets  *store.MemoryWalletStore
	board    *leaderboard.MemoryBoard
	payments *fakeVerifier
	payouts  *fakePayouts
	flaky    *flakyUsers
	out      *roundBroadcasts
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := &config.Config{
		Server: config.ServerConfig{AllowedOrigins: []string{"*"}},
		JWT:    config.JWTConfig{Secret: "test-secret", Issuer: "eyes-test"},
	}
	log := logger.Discard()

	f := &fixture{
		t:        t,
		rounds:   store.NewMemoryRoundStore(),
		users:    store.NewMemoryUserStore(),
		wallets:  store.NewMemoryWalletStore(),
		board:    leaderboard.NewMemoryBoard(),
		payments: &fakeVerifier{payments: make(map[string]*payment.Verification)},
		payouts:  newFakePayouts(),
		out:      &roundBroadcasts{},
	}
	f.flaky = &flakyUsers{UserStore: f.users}
	registry := session.NewRegistry(f.rounds, f.users, time.Second, log)

	f.gateway = NewGateway(cfg, Deps{
		Rounds:      f.rounds,
		Catalogue:   f.rounds,
		Users:       f.flaky,
		Wallets:     f.wallets,
		Registry:    registry,
		Settlement:  session.NewSettlement(registry, f.wallets, nil, log),
		Leaderboard: f.board,
		Payments:    f.payments,
		Payouts:     f.payouts,
		Broadcaster: f.out,
	}, log)
	t.Cleanup(f.gateway.Close)
	f.handler = f.gateway.Router()

	for _, id := range []string{"alice", "bob", "carol"} {
		f.addUser(id, 10)
	}
	return f
}

func (f *fixture) addUser(id string, eyes int64) {
	require.NoError(f.t, f.users.Save(context.Background(), &models.User{ID: id, Name: id, Eyes: eyes}))
}

func (f *fixture) addRound(id string, pool int64, startsAt time.Time) {
	require.NoError(f.t, f.rounds.Save(context.Background(), &models.Round{
		ID:        id,
		Title:     "Round " + id,
		StartsAt:  startsAt,
		PrizePool: pool,
	}))
}

func (f *fixture) token(userID, role string) string {
	tok, err := f.gateway.Authenticator().SignToken(userID, role, time.Hour)
	require.NoError(f.t, err)
	return tok
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (f *fixture) do(method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	f.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(f.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	var env envelope
	require.NoError(f.t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestHealthIsPublic(t *testing.T) {
	f := newFixture(t)

	rec, env := f.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestAPIRequiresValidToken(t *testing.T) {
	f := newFixture(t)

	rec, env := f.do(http.MethodGet, "/api/games", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, env.Success)

	rec, _ = f.do(http.MethodGet, "/api/games", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	other := NewAuthenticator(config.JWTConfig{Secret: "other", Issuer: "eyes-test"})
	forged, err := other.SignToken("alice", "", time.Hour)
	require.NoError(t, err)
	rec, _ = f.do(http.MethodGet, "/api/games", forged, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestQueryTokenAccepted(t *testing.T) {
	f := newFixture(t)

	rec, _ := f.do(http.MethodGet, "/api/users/me?token="+f.token("alice", ""), "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestJoinLeaveThenRejoinDenied(t *testing.T) {
	f := newFixture(t)
	f.addRound("r1", 100, time.Now().Add(time.Hour))
	alice := f.token("alice", "")

	rec, env := f.do(http.MethodPost, "/api/games/join", alice, map[string]any{"gameId": "r1"})
	require.Equal(t, http.StatusOK, rec.Code, env.Message)
	joined := decode[lifecycleResult](t, env.Data)
	assert.Equal(t, "alice", joined.UserID)
	assert.Equal(t, 1, joined.ConnectedUsers)
	assert.Equal(t, 1, joined.Survivors)

	rec, env = f.do(http.MethodPost, "/api/games/leave", alice, map[string]any{"gameId": "r1"})
	require.Equal(t, http.StatusOK, rec.Code, env.Message)
	assert.Equal(t, 0, decode[lifecycleResult](t, env.Data).ConnectedUsers)

	rec, env = f.do(http.MethodPost, "/api/games/join", alice, map[string]any{"gameId": "r1"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, env.Message, "cannot rejoin")

	round, err := f.rounds.FindByID(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusLeft, round.StatusOf("alice"))
	assert.Equal(t, []protocol.OutboundType{protocol.PlayerJoined, protocol.PlayerLeft}, f.out.of("r1"))
}

func TestJoinUnknownRound(t *testing.T) {
	f := newFixture(t)

	rec, env := f.do(http.MethodPost, "/api/games/join", f.token("alice", ""), map[string]any{"gameId": "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Game not found", env.Message)
}

func TestJoinRequiresGameID(t *testing.T) {
	f := newFixture(t)

	rec, env := f.do(http.MethodPost, "/api/games/join", f.token("alice", ""), map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "gameId is required", env.Message)
}

func TestActingForAnotherUserNeedsAdmin(t *testing.T) {
	f := newFixture(t)
	f.addRound("r1", 0, time.Now())

	body := map[string]any{"gameId": "r1", "userId": "bob"}
	rec, _ := f.do(http.MethodPost, "/api/games/join", f.token("alice", ""), body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, env := f.do(http.MethodPost, "/api/games/join", f.token("ops", RoleAdmin), body)
	require.Equal(t, http.StatusOK, rec.Code, env.Message)
	assert.Equal(t, "bob", decode[lifecycleResult](t, env.Data).UserID)
}

func TestLoseAppliesPenalty(t *testing.T) {
	f := newFixture(t)
	f.addRound("r1", 0, time.Now())
	alice := f.token("alice", "")

	rec, _ := f.do(http.MethodPost, "/api/games/join", alice, map[string]any{"gameId": "r1"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env := f.do(http.MethodPost, "/api/games/lose", alice, map[string]any{"gameId": "r1", "eyesLost": 3})
	require.Equal(t, http.StatusOK, rec.Code, env.Message)
	res := decode[lifecycleResult](t, env.Data)
	require.NotNil(t, res.EyesLeft)
	assert.Equal(t, int64(7), *res.EyesLeft)
	assert.Equal(t, 0, res.Survivors)

	rec, _ = f.do(http.MethodPost, "/api/games/lose", alice, map[string]any{"gameId": "r1", "eyesLost": -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDebitEyes(t *testing.T) {
	f := newFixture(t)
	f.addRound("r1", 0, time.Now())
	alice := f.token("alice", "")

	rec, env := f.do(http.MethodPost, "/api/games/debit-eyes", alice, map[string]any{"gameId": "r1", "amount": 25})
	require.Equal(t, http.StatusOK, rec.Code, env.Message)
	res := decode[lifecycleResult](t, env.Data)
	require.NotNil(t, res.EyesLeft)
	assert.Equal(t, int64(0), *res.EyesLeft)

	rec, env = f.do(http.MethodPost, "/api/games/debit-eyes", alice, map[string]any{"gameId": "r1", "amount": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Amount must be a positive number", env.Message)
}

func TestEndSettlesOnce(t *testing.T) {
	f := newFixture(t)
	f.addRound("r1", 1001, time.Now())

	for _, id := range []string{"alice", "bob"} {
		rec, env := f.do(http.MethodPost, "/api/games/join", f.token(id, ""), map[string]any{"gameId": "r1"})
		require.Equal(t, http.StatusOK, rec.Code, env.Message)
	}

	rec, _ := f.do(http.MethodPost, "/api/games/end", f.token("carol", ""), map[string]any{"gameId": "r1"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, env := f.do(http.MethodPost, "/api/games/end", f.token("alice", ""), map[string]any{"gameId": "r1", "finalScore": 12})
	require.Equal(t, http.StatusOK, rec.Code, env.Message)
	assert.Equal(t, "Prize distributed", env.Message)
	first := decode[session.SettlementResult](t, env.Data)
	assert.Equal(t, int64(500), first.PerWinner)
	assert.Equal(t, 2, first.DistributionCount)
	assert.False(t, first.AlreadyDistributed)

	rec, env = f.do(http.MethodPost, "/api/games/end", f.token("ops", RoleAdmin), map[string]any{"gameId": "r1"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Prize already distributed", env.Message)
	second := decode[session.SettlementResult](t, env.Data)
	assert.True(t, second.AlreadyDistributed)
	assert.Equal(t, int64(500), second.PerWinner)
	assert.Zero(t, second.DistributionCount)

	for _, id := range []string{"alice", "bob"} {
		w, err := f.wallets.FindByUser(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, int64(500), w.Balance, id)
	}

	ended := 0
	for _, typ := range f.out.of("r1") {
		if typ == protocol.GameEnded {
			ended++
		}
	}
	assert.Equal(t, 1, ended)
}

func TestCreateRoundIsAdminOnly(t *testing.T) {
	f := newFixture(t)
	body := map[string]any{
		"title":             "Friday night",
		"startsAt":          time.Now().Add(24 * time.Hour).Format(time.RFC3339),
		"durationInMinutes": 15,
		"price":             5000,
		"players":           []string{"alice"},
	}

	rec, _ := f.do(http.MethodPost, "/api/admin/games", f.token("alice", ""), body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, env := f.do(http.MethodPost, "/api/admin/games", f.token("ops", RoleAdmin), body)
	require.Equal(t, http.StatusCreated, rec.Code, env.Message)
	created := decode[models.Round](t, env.Data)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, []string{"alice"}, created.Roster)

	rec, env = f.do(http.MethodPost, "/api/admin/games", f.token("ops", RoleAdmin), map[string]any{"title": " "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "title is required", env.Message)
}

func TestUpcomingAndHistory(t *testing.T) {
	f := newFixture(t)
	now := time.Now().UTC()
	f.addRound("later", 0, now.Add(48*time.Hour))
	f.addRound("soon", 0, now.Add(24*time.Hour))
	f.addRound("old", 0, now.Add(-72*time.Hour))
	f.addRound("older", 0, now.Add(-96*time.Hour))
	_, err := f.rounds.Update(context.Background(), "old", func(r *models.Round) error {
		r.Enroll("alice")
		return nil
	})
	require.NoError(t, err)
	alice := f.token("alice", "")

	rec, env := f.do(http.MethodGet, "/api/games", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	upcoming := decode[upcomingResponse](t, env.Data)
	require.Len(t, upcoming.Games, 2)
	assert.True(t, upcoming.HasGames)
	assert.Equal(t, "soon", upcoming.ClosestGame.ID)

	rec, env = f.do(http.MethodGet, "/api/games/history", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	past := decode[[]*models.Round](t, env.Data)
	require.Len(t, past, 1)
	assert.Equal(t, "old", past[0].ID)

	rec, env = f.do(http.MethodGet, "/api/games/soon", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "soon", decode[models.Round](t, env.Data).ID)
}

func TestUpcomingIsCachedPerUser(t *testing.T) {
	f := newFixture(t)
	alice := f.token("alice", "")

	rec, _ := f.do(http.MethodGet, "/api/games", alice, nil)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))

	rec, _ = f.do(http.MethodGet, "/api/games", alice, nil)
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.NotEmpty(t, rec.Header().Get("ETag"))

	rec, _ = f.do(http.MethodGet, "/api/games", f.token("bob", ""), nil)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
}

func TestCreatingRoundPurgesCatalogueCache(t *testing.T) {
	f := newFixture(t)
	alice := f.token("alice", "")

	_, env := f.do(http.MethodGet, "/api/games", alice, nil)
	assert.False(t, decode[upcomingResponse](t, env.Data).HasGames)

	rec, _ := f.do(http.MethodPost, "/api/admin/games", f.token("ops", RoleAdmin), map[string]any{
		"title":    "Tomorrow",
		"startsAt": time.Now().Add(24 * time.Hour).Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, env = f.do(http.MethodGet, "/api/games", alice, nil)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.True(t, decode[upcomingResponse](t, env.Data).HasGames)
}
