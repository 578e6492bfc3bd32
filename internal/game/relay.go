package game

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/jacl-coder/EyeSurvival-Server/internal/protocol"
)

// Relay mirrors broadcasts between server instances over Redis pub/sub so a
// round's participants may be spread across processes.
type Relay struct {
	client  *redis.Client
	channel string
	origin  string
	logger  *slog.Logger
}

// NewRelay creates a relay with a fresh instance id.
func NewRelay(client *redis.Client, channel string, logger *slog.Logger) *Relay {
	return &Relay{
		client:  client,
		channel: channel,
		origin:  uuid.New().String(),
		logger:  logger,
	}
}

// Origin identifies this instance on the channel.
func (r *Relay) Origin() string {
	return r.origin
}

// Publish sends msg to every other instance.
func (r *Relay) Publish(ctx context.Context, roundID string, msg protocol.Outbound) error {
	data, err := protocol.EncodeRelay(protocol.RelayFrame{
		Origin:  r.origin,
		RoundID: roundID,
		Message: msg,
	})
	if err != nil {
		r.logger.Error("encode relay frame", slog.Any("error", err))
		return err
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		r.logger.Warn("relay publish failed", slog.Any("error", err))
		return fmt.Errorf("publish relay frame: %w", err)
	}
	return nil
}

// Run delivers frames from other instances to the local connections of s
// until ctx ends.
func (r *Relay) Run(ctx context.Context, s *GameServer) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.logger.Info("relay subscribed", slog.String("channel", r.channel), slog.String("origin", r.origin))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			r.deliver(s, []byte(m.Payload))
		}
	}
}

func (r *Relay) deliver(s *GameServer, raw []byte) {
	frame, err := protocol.DecodeRelay(raw)
	if err != nil {
		r.logger.Warn("dropping relay frame", slog.Any("error", err))
		return
	}
	if frame.Origin == r.origin {
		return
	}

	data, err := json.Marshal(frame.Message)
	if err != nil {
		r.logger.Warn("re-encode relay frame", slog.Any("error", err))
		return
	}
	s.deliverLocal(frame.RoundID, data)
}
