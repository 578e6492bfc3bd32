package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/jacl-coder/EyeSurvival-Server/config"
	"github.com/jacl-coder/EyeSurvival-Server/internal/models"
	"github.com/jacl-coder/EyeSurvival-Server/internal/store"
	"github.com/jacl-coder/EyeSurvival-Server/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type expoStub struct {
	mu       sync.Mutex
	batches  [][]Message
	auth     string
	failWith int
}

func (s *expoStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.failWith != 0 {
		http.Error(w, "boom", s.failWith)
		return
	}
	var batch []Message
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.batches = append(s.batches, batch)
	s.auth = r.Header.Get("Authorization")
	s.mu.Unlock()

	tickets := make([]ticket, len(batch))
	for i := range tickets {
		tickets[i] = ticket{Status: "ok"}
	}
	json.NewEncoder(w).Encode(sendResponse{Data: tickets})
}

func newNotifier(t *testing.T, stub *expoStub) (*ExpoNotifier, *store.MemoryUserStore) {
	t.Helper()
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	users := store.NewMemoryUserStore()
	n := NewExpoNotifier(config.PushConfig{ExpoURL: srv.URL, AccessToken: "secret"}, users, srv.Client(), logger.Discard())
	return n, users
}

func TestIsExpoPushToken(t *testing.T) {
	assert.True(t, IsExpoPushToken("ExponentPushToken[abc]"))
	assert.True(t, IsExpoPushToken("ExpoPushToken[abc]"))
	assert.False(t, IsExpoPushToken("fcm:abc"))
	assert.False(t, IsExpoPushToken("ExponentPushToken[abc"))
}

func TestSendGameStartNotifiesRosterTokens(t *testing.T) {
	stub := &expoStub{}
	n, users := newNotifier(t, stub)
	ctx := context.Background()

	require.NoError(t, users.Save(ctx, &models.User{ID: "a", PushTokens: []string{"ExponentPushToken[a1]", "junk"}}))
	require.NoError(t, users.Save(ctx, &models.User{ID: "b", PushTokens: []string{"ExpoPushToken[b1]"}}))

	n.SendGameStart(ctx, &models.Round{ID: "r1", Title: "Friday Night", Roster: []string{"a", "b", "ghost"}})

	require.Len(t, stub.batches, 1)
	batch := stub.batches[0]
	require.Len(t, batch, 2)
	assert.Equal(t, "ExponentPushToken[a1]", batch[0].To)
	assert.Equal(t, "Friday Night has begun. Join now!", batch[0].Body)
	assert.Equal(t, "game_start", batch[0].Data["type"])
	assert.Equal(t, "r1", batch[1].Data["gameId"])
	assert.Equal(t, "Bearer secret", stub.auth)
}

func TestSendSkipsRoundWithoutTokens(t *testing.T) {
	stub := &expoStub{}
	n, _ := newNotifier(t, stub)

	n.SendReminder(context.Background(), &models.Round{ID: "r1", Roster: []string{"nobody"}}, 10)

	assert.Empty(t, stub.batches)
}

func TestSendChunksLargeBatches(t *testing.T) {
	stub := &expoStub{}
	n, _ := newNotifier(t, stub)

	msgs := make([]Message, 250)
	for i := range msgs {
		msgs[i] = Message{To: fmt.Sprintf("ExponentPushToken[%d]", i), Title: "t", Body: "b"}
	}

	sent, err := n.Send(context.Background(), msgs)
	require.NoError(t, err)
	assert.Equal(t, 250, sent)
	require.Len(t, stub.batches, 3)
	assert.Len(t, stub.batches[2], 50)
}

func TestSendReportsHTTPFailure(t *testing.T) {
	stub := &expoStub{failWith: http.StatusBadGateway}
	n, _ := newNotifier(t, stub)

	_, err := n.Send(context.Background(), []Message{{To: "ExponentPushToken[x]"}})
	assert.ErrorContains(t, err, "502")
}
