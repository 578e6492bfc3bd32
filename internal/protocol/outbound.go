package protocol

import "time"

// OutboundType enumerates server to client frames.
type OutboundType string

const (
	Status               OutboundType = "STATUS"
	PlayerReadyConfirmed OutboundType = "PLAYER_READY_CONFIRMED"
	PlayerReadyNotice    OutboundType = "PLAYER_READY"
	GameStarted          OutboundType = "GAME_STARTED"
	PlayerJoined         OutboundType = "PLAYER_JOINED"
	GameEnded            OutboundType = "GAME_ENDED"
	PlayerLeft           OutboundType = "PLAYER_LEFT"
	PlayerDisconnected   OutboundType = "PLAYER_DISCONNECTED"
	Broadcast            OutboundType = "BROADCAST"
	Error                OutboundType = "ERROR"
)

const (
	defaultSender  = "Mobile App"
	defaultContent = "No message content"
)

// Outbound is a server frame. Payload is marshalled as JSON.
type Outbound struct {
	Type    OutboundType `json:"type"`
	Payload any          `json:"payload,omitempty"`
}

type statusPayload struct {
	ConnectionID string `json:"connectionId"`
	Message      string `json:"message"`
}

type roundPayload struct {
	GameID         string `json:"gameId"`
	UserID         string `json:"userId,omitempty"`
	Reason         string `json:"reason,omitempty"`
	ConnectedUsers int    `json:"connectedUsers"`
	Survivors      int    `json:"survivors"`
	Message        string `json:"message,omitempty"`
}

type readyPayload struct {
	GameID     string `json:"gameId"`
	UserID     string `json:"userId,omitempty"`
	ReadyUsers int    `json:"readyUsers"`
	Message    string `json:"message,omitempty"`
}

type chatPayload struct {
	Timestamp string `json:"timestamp"`
	Sender    string `json:"sender"`
	Content   string `json:"content"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// NewStatus greets a freshly opened connection.
func NewStatus(connID string) Outbound {
	return Outbound{Type: Status, Payload: statusPayload{ConnectionID: connID, Message: "Connected to game server"}}
}

// NewReadyConfirmed acknowledges PLAYER_READY to the sender.
func NewReadyConfirmed(gameID string, readyUsers int) Outbound {
	return Outbound{Type: PlayerReadyConfirmed, Payload: readyPayload{
		GameID: gameID, ReadyUsers: readyUsers, Message: "You are ready",
	}}
}

// NewReadyNotice tells everyone a participant is ready.
func NewReadyNotice(gameID, userID string, readyUsers int) Outbound {
	return Outbound{Type: PlayerReadyNotice, Payload: readyPayload{GameID: gameID, UserID: userID, ReadyUsers: readyUsers}}
}

// NewGameStarted acknowledges START_GAME to the sender.
func NewGameStarted(gameID string, connected int) Outbound {
	return Outbound{Type: GameStarted, Payload: roundPayload{
		GameID: gameID, ConnectedUsers: connected, Survivors: connected, Message: "Game started",
	}}
}

// NewPlayerJoined tells the round a participant connected.
func NewPlayerJoined(gameID, userID string, connected int) Outbound {
	return Outbound{Type: PlayerJoined, Payload: roundPayload{
		GameID: gameID, UserID: userID, ConnectedUsers: connected, Survivors: connected,
	}}
}

// NewGameEnded acknowledges END_GAME or PLAYER_LOST to the sender.
func NewGameEnded(gameID string, connected int, message string) Outbound {
	return Outbound{Type: GameEnded, Payload: roundPayload{
		GameID: gameID, ConnectedUsers: connected, Survivors: connected, Message: message,
	}}
}

// NewPlayerLeft tells the round a participant stopped playing.
func NewPlayerLeft(gameID, userID, reason string, connected int) Outbound {
	return Outbound{Type: PlayerLeft, Payload: roundPayload{
		GameID: gameID, UserID: userID, Reason: reason, ConnectedUsers: connected, Survivors: connected,
	}}
}

// NewPlayerDisconnected tells the round a participant's connection dropped.
func NewPlayerDisconnected(gameID, userID string, connected int) Outbound {
	return Outbound{Type: PlayerDisconnected, Payload: roundPayload{
		GameID: gameID, UserID: userID, ConnectedUsers: connected, Survivors: connected,
	}}
}

// NewChat relays a chat line, filling in defaults for empty fields.
func NewChat(sender, content string, at time.Time) Outbound {
	if sender == "" {
		sender = defaultSender
	}
	if content == "" {
		content = defaultContent
	}
	return Outbound{Type: Broadcast, Payload: chatPayload{
		Timestamp: at.UTC().Format(time.RFC3339), Sender: sender, Content: content,
	}}
}

// NewError reports a failure to one connection only.
func NewError(message string) Outbound {
	return Outbound{Type: Error, Payload: errorPayload{Message: message}}
}
