// Package notify sends round notifications through the Expo push service.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jacl-coder/EyeSurvival-Server/config"
	"github.com/jacl-coder/EyeSurvival-Server/internal/models"
	"github.com/jacl-coder/EyeSurvival-Server/internal/store"
)

const (
	// DefaultExpoURL is Expo's send endpoint.
	DefaultExpoURL = "https://exp.host/--/api/v2/push/send"

	// Expo accepts at most 100 messages per request.
	chunkSize = 100
)

// Message is one Expo push message.
type Message struct {
	To        string            `json:"to"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Data      map[string]string `json:"data,omitempty"`
	Sound     string            `json:"sound,omitempty"`
	Priority  string            `json:"priority,omitempty"`
	ChannelID string            `json:"channelId,omitempty"`
}

type ticket struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type sendResponse struct {
	Data []ticket `json:"data"`
}

// ExpoNotifier implements session.Notifier. Every roster member with a
// registered token is notified; failures are logged and dropped.
type ExpoNotifier struct {
	url         string
	accessToken string
	users       store.UserStore
	client      *http.Client
	logger      *slog.Logger
}

// NewExpoNotifier builds a notifier from cfg. client may be nil.
func NewExpoNotifier(cfg config.PushConfig, users store.UserStore, client *http.Client, logger *slog.Logger) *ExpoNotifier {
	url := cfg.ExpoURL
	if url == "" {
		url = DefaultExpoURL
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &ExpoNotifier{
		url:         url,
		accessToken: cfg.AccessToken,
		users:       users,
		client:      client,
		logger:      logger,
	}
}

// IsExpoPushToken reports whether token has Expo's push token shape.
func IsExpoPushToken(token string) bool {
	return (strings.HasPrefix(token, "ExponentPushToken[") || strings.HasPrefix(token, "ExpoPushToken[")) &&
		strings.HasSuffix(token, "]")
}

// SendGameStart tells the roster the round has begun.
func (n *ExpoNotifier) SendGameStart(ctx context.Context, round *models.Round) {
	n.notifyRoster(ctx, round, "Game Started!",
		fmt.Sprintf("%s has begun. Join now!", round.Title), "game_start")
}

// SendGameEnd tells the roster results are in.
func (n *ExpoNotifier) SendGameEnd(ctx context.Context, round *models.Round) {
	n.notifyRoster(ctx, round, "Game Ended!",
		fmt.Sprintf("%s has ended. Check your results!", round.Title), "game_end")
}

// SendReminder warns the roster the round starts soon.
func (n *ExpoNotifier) SendReminder(ctx context.Context, round *models.Round, minutesUntilStart int) {
	n.notifyRoster(ctx, round, "Game Starting Soon!",
		fmt.Sprintf("%s starts in %d minutes!", round.Title, minutesUntilStart), "game_reminder")
}

func (n *ExpoNotifier) notifyRoster(ctx context.Context, round *models.Round, title, body, kind string) {
	tokens := n.rosterTokens(ctx, round)
	if len(tokens) == 0 {
		n.logger.Debug("no push tokens for round", slog.String("round_id", round.ID), slog.String("kind", kind))
		return
	}

	messages := make([]Message, 0, len(tokens))
	for _, t := range tokens {
		messages = append(messages, Message{
			To:        t,
			Title:     title,
			Body:      body,
			Data:      map[string]string{"type": kind, "gameId": round.ID},
			Sound:     "default",
			Priority:  "high",
			ChannelID: "default",
		})
	}

	sent, err := n.Send(ctx, messages)
	if err != nil {
		n.logger.Warn("push delivery failed",
			slog.String("round_id", round.ID),
			slog.String("kind", kind),
			slog.Int("sent", sent),
			slog.Any("error", err))
		return
	}
	n.logger.Info("push delivered", slog.String("round_id", round.ID), slog.String("kind", kind), slog.Int("sent", sent))
}

func (n *ExpoNotifier) rosterTokens(ctx context.Context, round *models.Round) []string {
	var tokens []string
	for _, userID := range round.Roster {
		u, err := n.users.FindByID(ctx, userID)
		if err != nil {
			n.logger.Debug("skip push recipient", slog.String("user_id", userID), slog.Any("error", err))
			continue
		}
		for _, t := range u.PushTokens {
			if IsExpoPushToken(t) {
				tokens = append(tokens, t)
			}
		}
	}
	return tokens
}

// Send posts messages in chunks and returns how many Expo accepted.
func (n *ExpoNotifier) Send(ctx context.Context, messages []Message) (int, error) {
	accepted := 0
	for start := 0; start < len(messages); start += chunkSize {
		end := min(start+chunkSize, len(messages))
		ok, err := n.sendChunk(ctx, messages[start:end])
		accepted += ok
		if err != nil {
			return accepted, err
		}
	}
	return accepted, nil
}

func (n *ExpoNotifier) sendChunk(ctx context.Context, chunk []Message) (int, error) {
	body, err := json.Marshal(chunk)
	if err != nil {
		return 0, fmt.Errorf("encode push messages: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if n.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+n.accessToken)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("send push request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return 0, fmt.Errorf("expo returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode push response: %w", err)
	}

	ok := 0
	for i, t := range out.Data {
		if t.Status == "ok" {
			ok++
			continue
		}
		if i < len(chunk) {
			n.logger.Warn("push ticket rejected", slog.String("to", chunk[i].To), slog.String("message", t.Message))
		}
	}
	return ok, nil
}
