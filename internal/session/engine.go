package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jacl-coder/EyeSurvival-Server/internal/models"
	"github.com/jacl-coder/EyeSurvival-Server/internal/protocol"
	"github.com/jacl-coder/EyeSurvival-Server/internal/store"
)

// Broadcaster is the engine's view of the connection multiplexer.
type Broadcaster interface {
	// BroadcastAll sends to every open connection.
	BroadcastAll(msg protocol.Outbound)
	// BroadcastToRound sends to connections tagged with roundID.
	BroadcastToRound(roundID string, msg protocol.Outbound)
	// Send delivers to one connection. It reports false if the connection is gone.
	Send(connID string, msg protocol.Outbound) bool
	// Tag associates a connection with a round and participant and reports
	// whether the connection was untagged before. It fails with
	// ErrConnectionClosed once the connection is gone and with
	// ErrIdentityConflict when it already speaks for someone else. An empty
	// roundID clears the tag.
	Tag(connID, roundID, userID string) (bool, error)
}

type handlerFunc func(ctx context.Context, connID string, msg protocol.Inbound)

// Engine drives the per-participant state machine from inbound frames.
//
// Each frame is handled on its own; frames from one connection arrive in
// order, frames from different connections may run concurrently.
type Engine struct {
	registry *Registry
	out      Broadcaster
	logger   *slog.Logger
	now      func() time.Time
	handlers map[protocol.InboundType]handlerFunc
}

// NewEngine builds an engine that reports through out.
func NewEngine(registry *Registry, out Broadcaster, logger *slog.Logger) *Engine {
	e := &Engine{
		registry: registry,
		out:      out,
		logger:   logger,
		now:      time.Now,
	}
	e.handlers = map[protocol.InboundType]handlerFunc{
		protocol.PlayerReady: e.handleReady,
		protocol.StartGame:   e.handleStart,
		protocol.EndGame:     e.handleEnd,
		protocol.PlayerLost:  e.handleLost,
		protocol.ChatMessage: e.handleChat,
	}
	return e
}

// HandleMessage parses and dispatches one frame from connID. Parse and
// transition failures are answered with ERROR to connID only.
func (e *Engine) HandleMessage(ctx context.Context, connID string, data []byte) {
	msg, err := protocol.Parse(data)
	if err != nil {
		e.logger.Debug("rejected frame", slog.String("conn_id", connID), slog.Any("error", err))
		e.reject(connID, err)
		return
	}

	e.logger.Debug("frame",
		slog.String("conn_id", connID),
		slog.String("type", string(msg.Type)),
		slog.String("round_id", msg.GameID),
		slog.String("user_id", msg.UserID))

	e.handlers[msg.Type](ctx, connID, msg)
}

// HandleDisconnect runs when a tagged connection closes or is terminated.
func (e *Engine) HandleDisconnect(ctx context.Context, roundID, userID string) {
	if roundID == "" || userID == "" {
		return
	}

	round, err := e.registry.MarkDisconnected(ctx, roundID, userID)
	if err != nil {
		e.logger.Warn("disconnect cleanup failed",
			slog.String("round_id", roundID),
			slog.String("user_id", userID),
			slog.Any("error", err))
		return
	}

	e.out.BroadcastToRound(roundID, protocol.NewPlayerDisconnected(roundID, userID, round.ConnectedCount))
}

func (e *Engine) handleReady(ctx context.Context, connID string, msg protocol.Inbound) {
	release, ok := e.bind(connID, msg)
	if !ok {
		return
	}

	round, err := e.registry.MarkReady(ctx, msg.GameID, msg.UserID)
	if err != nil {
		release()
		e.reject(connID, err)
		return
	}

	e.out.Send(connID, protocol.NewReadyConfirmed(msg.GameID, round.ReadyCount))
	e.out.BroadcastAll(protocol.NewReadyNotice(msg.GameID, msg.UserID, round.ReadyCount))
}

func (e *Engine) handleStart(ctx context.Context, connID string, msg protocol.Inbound) {
	release, ok := e.bind(connID, msg)
	if !ok {
		return
	}

	round, err := e.registry.MarkConnected(ctx, msg.GameID, msg.UserID)
	if err != nil {
		release()
		e.reject(connID, err)
		return
	}

	e.out.Send(connID, protocol.NewGameStarted(msg.GameID, round.ConnectedCount))
	e.out.BroadcastToRound(msg.GameID, protocol.NewPlayerJoined(msg.GameID, msg.UserID, round.ConnectedCount))
}

// bind tags connID before the transition is written, so a connection that
// closes while the write is in flight still gets disconnect cleanup. release
// drops a tag this call created. A connection already speaking for another
// round or participant is refused.
func (e *Engine) bind(connID string, msg protocol.Inbound) (release func(), ok bool) {
	fresh, err := e.out.Tag(connID, msg.GameID, msg.UserID)
	switch {
	case errors.Is(err, ErrConnectionClosed):
		e.logger.Debug("frame from closed connection", slog.String("conn_id", connID))
		return nil, false
	case err != nil:
		e.reject(connID, err)
		return nil, false
	}

	return func() {
		if fresh {
			e.out.Tag(connID, "", "")
		}
	}, true
}

func (e *Engine) handleEnd(ctx context.Context, connID string, msg protocol.Inbound) {
	var (
		round *models.Round
		err   error
	)
	if msg.Completed() {
		// A finisher stays in the connected set and keeps their prize share.
		round, err = e.registry.Round(ctx, msg.GameID)
	} else {
		round, err = e.registry.MarkLeft(ctx, msg.GameID, msg.UserID)
	}
	if err != nil {
		e.reject(connID, err)
		return
	}

	reason := msg.Reason
	if reason == "" {
		reason = "left"
	}
	e.finish(connID, msg, round, reason, "Game ended")
}

func (e *Engine) handleLost(ctx context.Context, connID string, msg protocol.Inbound) {
	round, err := e.registry.MarkLost(ctx, msg.GameID, msg.UserID, msg.EyesLost)
	if err != nil {
		e.reject(connID, err)
		return
	}
	e.finish(connID, msg, round, "lost", "You lost this round")
}

// finish acknowledges a participant's last frame and untags the connection so
// closing it afterwards does not count as a disconnect.
func (e *Engine) finish(connID string, msg protocol.Inbound, round *models.Round, reason, ack string) {
	e.out.Send(connID, protocol.NewGameEnded(msg.GameID, round.ConnectedCount, ack))
	e.out.Tag(connID, "", "")
	e.out.BroadcastToRound(msg.GameID, protocol.NewPlayerLeft(msg.GameID, msg.UserID, reason, round.ConnectedCount))
}

func (e *Engine) handleChat(_ context.Context, _ string, msg protocol.Inbound) {
	e.out.BroadcastAll(protocol.NewChat(msg.Sender, msg.Content, e.now()))
}

func (e *Engine) reject(connID string, err error) {
	e.out.Send(connID, protocol.NewError(errorMessage(err)))
}

// errorMessage maps failures onto the texts clients display.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, protocol.ErrUnknownType):
		return "Unknown message type"
	case errors.Is(err, protocol.ErrMalformed):
		return "Invalid JSON message received."
	case errors.Is(err, protocol.ErrMissingIdentity):
		return "Game ID and User ID are required"
	case errors.Is(err, store.ErrRoundNotFound):
		return "Game not found"
	case errors.Is(err, ErrRejoinDenied):
		return "You have already left this game and cannot rejoin"
	case errors.Is(err, ErrNotInRoster):
		return "You are not a player in this game"
	case errors.Is(err, ErrIdentityConflict):
		return "This connection is already playing as another participant"
	default:
		return "Unable to process message"
	}
}
