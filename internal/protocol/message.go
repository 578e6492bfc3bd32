// Package protocol defines the JSON frames exchanged over the live session
// channel.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformed frame is not valid JSON or a field has the wrong type
	ErrMalformed = errors.New("invalid JSON message received")
	// ErrUnknownType frame carries an unrecognised type tag
	ErrUnknownType = errors.New("unknown message type")
	// ErrMissingIdentity frame needs gameId and userId but lacks one
	ErrMissingIdentity = errors.New("game ID and user ID are required")
)

// InboundType enumerates client to server frames.
type InboundType string

const (
	PlayerReady InboundType = "PLAYER_READY"
	StartGame   InboundType = "START_GAME"
	EndGame     InboundType = "END_GAME"
	PlayerLost  InboundType = "PLAYER_LOST"
	ChatMessage InboundType = "CHAT_MESSAGE"
)

// ReasonCompleted marks an END_GAME sent by a participant who finished the round.
const ReasonCompleted = "completed"

func (t InboundType) known() bool {
	switch t {
	case PlayerReady, StartGame, EndGame, PlayerLost, ChatMessage:
		return true
	}
	return false
}

// needsIdentity reports whether the frame must name a round and participant.
func (t InboundType) needsIdentity() bool {
	return t != ChatMessage
}

// Inbound is a parsed client frame.
type Inbound struct {
	Type     InboundType
	GameID   string
	UserID   string
	Reason   string
	EyesLost int64
	Sender   string
	Content  string
}

// Completed reports an END_GAME with reason "completed".
func (m Inbound) Completed() bool {
	return m.Type == EndGame && strings.EqualFold(m.Reason, ReasonCompleted)
}

type inboundPayload struct {
	GameID   string `json:"gameId"`
	UserID   string `json:"userId"`
	Reason   string `json:"reason"`
	EyesLost int64  `json:"eyesLost"`
	Sender   string `json:"sender"`
	Content  string `json:"content"`
	Message  string `json:"message"`
}

// Older clients put the identity next to the type instead of in payload.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	inboundPayload
}

// Parse decodes one frame. Unknown tags and frames missing their identity are
// rejected here so handlers only ever see well-formed messages.
func Parse(data []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	t := InboundType(env.Type)
	if !t.known() {
		return Inbound{Type: t}, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}

	p := env.inboundPayload
	if len(env.Payload) > 0 && string(env.Payload) != "null" {
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return Inbound{Type: t}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		mergeIdentity(&p, env.inboundPayload)
	}

	msg := Inbound{
		Type:     t,
		GameID:   strings.TrimSpace(p.GameID),
		UserID:   strings.TrimSpace(p.UserID),
		Reason:   p.Reason,
		EyesLost: p.EyesLost,
		Sender:   p.Sender,
		Content:  p.Content,
	}
	if msg.Content == "" {
		msg.Content = p.Message
	}
	if t.needsIdentity() && (msg.GameID == "" || msg.UserID == "") {
		return msg, ErrMissingIdentity
	}
	if msg.EyesLost < 0 {
		return msg, fmt.Errorf("%w: eyesLost must not be negative", ErrMalformed)
	}
	return msg, nil
}

func mergeIdentity(p *inboundPayload, top inboundPayload) {
	if p.GameID == "" {
		p.GameID = top.GameID
	}
	if p.UserID == "" {
		p.UserID = top.UserID
	}
	if p.Reason == "" {
		p.Reason = top.Reason
	}
	if p.Sender == "" {
		p.Sender = top.Sender
	}
	if p.Content == "" {
		p.Content = top.Content
	}
	if p.Message == "" {
		p.Message = top.Message
	}
}
