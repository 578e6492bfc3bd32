package game

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second

	maxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Mobile clients send no Origin header.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeWS upgrades the request and starts the connection pumps.
func (s *GameServer) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}

	pc := &PlayerConnection{
		ID:   uuid.New().String(),
		Send: make(chan []byte, s.config.SendBuffer),
		conn: conn,
	}
	s.register(pc)

	s.logger.Info("connection opened",
		slog.String("conn_id", pc.ID),
		slog.String("remote_addr", r.RemoteAddr))

	go s.writePump(pc)
	go s.readPump(pc)
}

// readWait bounds how long a silent connection survives between sweeps.
func (s *GameServer) readWait() time.Duration {
	return 2*s.config.HeartbeatInterval + writeWait
}

// readPump feeds inbound frames to the handler until the socket fails.
func (s *GameServer) readPump(pc *PlayerConnection) {
	defer s.closeConnection(pc)

	conn := pc.conn
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(s.readWait()))
	conn.SetPongHandler(func(string) error {
		pc.alive.Store(true)
		return conn.SetReadDeadline(time.Now().Add(s.readWait()))
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read error", slog.String("conn_id", pc.ID), slog.Any("error", err))
			}
			return
		}

		if s.handler != nil {
			s.handler.HandleMessage(s.ctx, pc.ID, message)
		}
	}
}

// writePump is the only writer of data frames on the socket. Each queued
// message goes out as its own text frame.
func (s *GameServer) writePump(pc *PlayerConnection) {
	conn := pc.conn
	defer conn.Close()

	for message := range pc.Send {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
