package game

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jacl-coder/EyeSurvival-Server/config"
	"github.com/jacl-coder/EyeSurvival-Server/internal/protocol"
	"github.com/jacl-coder/EyeSurvival-Server/internal/session"
)

// Handler consumes frames and disconnects from the server.
type Handler interface {
	HandleMessage(ctx context.Context, connID string, data []byte)
	HandleDisconnect(ctx context.Context, roundID, userID string)
}

// GameServer owns every live connection and fans messages out to them.
// It implements session.Broadcaster.
type GameServer struct {
	config      config.SessionConfig
	logger      *slog.Logger
	handler     Handler
	relay       *Relay
	connections map[string]*PlayerConnection
	connMutex   sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
}

// PlayerConnection is one websocket client.
type PlayerConnection struct {
	ID string

	mu      sync.RWMutex
	roundID string
	userID  string

	// Send is drained by writePump. Closed under connMutex when the
	// connection is removed.
	Send  chan []byte
	alive atomic.Bool
	conn  *websocket.Conn
}

// Tags returns the round and participant the connection speaks for.
func (p *PlayerConnection) Tags() (roundID, userID string) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.roundID, p.userID
}

// NewGameServer creates a server with no connections. SetHandler must be
// called before ServeWS accepts traffic.
func NewGameServer(cfg config.SessionConfig, logger *slog.Logger) *GameServer {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &GameServer{
		config:      cfg,
		logger:      logger,
		connections: make(map[string]*PlayerConnection),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// SetHandler installs the protocol engine.
func (s *GameServer) SetHandler(h Handler) {
	s.handler = h
}

// SetRelay mirrors every broadcast to other instances through r.
func (s *GameServer) SetRelay(r *Relay) {
	s.relay = r
}

// Run sweeps heartbeats until ctx ends, then closes every connection.
func (s *GameServer) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.config.HeartbeatInterval)
	defer ticker.Stop()

	s.logger.Info("heartbeat sweep started", slog.Duration("interval", s.config.HeartbeatInterval))
	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-ctx.Done():
			s.Close()
			return nil
		}
	}
}

// sweep terminates connections that did not answer the previous ping and
// pings the rest.
func (s *GameServer) sweep() {
	s.connMutex.RLock()
	conns := make([]*PlayerConnection, 0, len(s.connections))
	for _, pc := range s.connections {
		conns = append(conns, pc)
	}
	s.connMutex.RUnlock()

	deadline := time.Now().Add(writeWait)
	for _, pc := range conns {
		if !pc.alive.CompareAndSwap(true, false) {
			s.logger.Info("terminating unresponsive connection", slog.String("conn_id", pc.ID))
			go s.closeConnection(pc)
			continue
		}
		if err := pc.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
			go s.closeConnection(pc)
		}
	}
}

// Close drops every connection without running disconnect handling.
func (s *GameServer) Close() {
	s.cancel()

	s.connMutex.Lock()
	defer s.connMutex.Unlock()

	for id, pc := range s.connections {
		close(pc.Send)
		delete(s.connections, id)
	}
	s.logger.Info("game server closed")
}

// register adds a connection and greets it with STATUS.
func (s *GameServer) register(pc *PlayerConnection) {
	pc.alive.Store(true)

	s.connMutex.Lock()
	s.connections[pc.ID] = pc
	s.connMutex.Unlock()

	s.Send(pc.ID, protocol.NewStatus(pc.ID))
}

// closeConnection removes pc once and, if it was tagged, reports the
// disconnect to the handler.
func (s *GameServer) closeConnection(pc *PlayerConnection) {
	s.connMutex.Lock()
	if _, ok := s.connections[pc.ID]; !ok {
		s.connMutex.Unlock()
		return
	}
	delete(s.connections, pc.ID)
	close(pc.Send)
	s.connMutex.Unlock()

	pc.conn.Close()

	roundID, userID := pc.Tags()
	s.logger.Info("connection closed",
		slog.String("conn_id", pc.ID),
		slog.String("round_id", roundID),
		slog.String("user_id", userID))

	if roundID != "" && s.handler != nil {
		s.handler.HandleDisconnect(s.ctx, roundID, userID)
	}
}

// Tag implements session.Broadcaster. The tag is written under the
// connection map lock, so a concurrent closeConnection either sees it and
// reports the disconnect, or runs first and Tag fails.
func (s *GameServer) Tag(connID, roundID, userID string) (bool, error) {
	s.connMutex.RLock()
	defer s.connMutex.RUnlock()

	pc, ok := s.connections[connID]
	if !ok {
		return false, session.ErrConnectionClosed
	}

	pc.mu.Lock()
	defer pc.mu.Unlock()

	switch {
	case roundID == "":
		pc.roundID, pc.userID = "", ""
		return false, nil
	case pc.roundID == "":
		pc.roundID, pc.userID = roundID, userID
		return true, nil
	case pc.roundID == roundID && pc.userID == userID:
		return false, nil
	}
	return false, session.ErrIdentityConflict
}

// Send implements session.Broadcaster.
func (s *GameServer) Send(connID string, msg protocol.Outbound) bool {
	data, ok := s.encode(msg)
	if !ok {
		return false
	}

	s.connMutex.RLock()
	defer s.connMutex.RUnlock()

	pc, exists := s.connections[connID]
	if !exists {
		return false
	}
	return s.enqueue(pc, data)
}

// BroadcastAll implements session.Broadcaster.
func (s *GameServer) BroadcastAll(msg protocol.Outbound) {
	s.broadcast("", msg)
}

// BroadcastToRound implements session.Broadcaster.
func (s *GameServer) BroadcastToRound(roundID string, msg protocol.Outbound) {
	if roundID == "" {
		return
	}
	s.broadcast(roundID, msg)
}

func (s *GameServer) broadcast(roundID string, msg protocol.Outbound) {
	data, ok := s.encode(msg)
	if !ok {
		return
	}
	s.deliverLocal(roundID, data)

	if s.relay != nil {
		go s.relay.Publish(s.ctx, roundID, msg)
	}
}

// deliverLocal writes data to local connections, all of them when roundID
// is empty.
func (s *GameServer) deliverLocal(roundID string, data []byte) {
	s.connMutex.RLock()
	defer s.connMutex.RUnlock()

	for _, pc := range s.connections {
		if roundID != "" {
			if r, _ := pc.Tags(); r != roundID {
				continue
			}
		}
		s.enqueue(pc, data)
	}
}

// enqueue never blocks. A full buffer means the client is not keeping up and
// the connection is dropped. Caller holds connMutex.
func (s *GameServer) enqueue(pc *PlayerConnection, data []byte) bool {
	select {
	case pc.Send <- data:
		return true
	default:
		s.logger.Warn("send buffer full, dropping connection", slog.String("conn_id", pc.ID))
		go s.closeConnection(pc)
		return false
	}
}

func (s *GameServer) encode(msg protocol.Outbound) ([]byte, bool) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("encode outbound frame", slog.String("type", string(msg.Type)), slog.Any("error", err))
		return nil, false
	}
	return data, true
}

// ConnectionCount returns the number of open connections.
func (s *GameServer) ConnectionCount() int {
	s.connMutex.RLock()
	defer s.connMutex.RUnlock()
	return len(s.connections)
}

// RoundConnectionCount returns how many open connections are tagged with roundID.
func (s *GameServer) RoundConnectionCount(roundID string) int {
	s.connMutex.RLock()
	defer s.connMutex.RUnlock()

	n := 0
	for _, pc := range s.connections {
		if r, _ := pc.Tags(); r == roundID {
			n++
		}
	}
	return n
}
