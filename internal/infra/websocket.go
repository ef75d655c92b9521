package infra

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

const (
	wsSendBuffer   = 32
	wsWriteTimeout = 5 * time.Second
)

// WSHub manages WebSocket connections and room-based message delivery.
// Rooms are "raid:{id}" for raid streams and "player:{id}" for personal feeds.
type WSHub struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]*WSConn // room -> connID -> conn
	logger *slog.Logger
}

// WSConn is one subscriber. Send is closed when the hub shuts down.
type WSConn struct {
	ID   string
	Send chan []byte
}

// WSMessage is the payload sent over WebSocket.
type WSMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// NewWSHub creates a new WebSocket hub.
func NewWSHub(logger *slog.Logger) *WSHub {
	return &WSHub{
		rooms:  make(map[string]map[string]*WSConn),
		logger: logger,
	}
}

// Join adds a connection to a room.
func (h *WSHub) Join(room string, conn *WSConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]*WSConn)
	}
	h.rooms[room][conn.ID] = conn
}

// Leave removes a connection from a room.
func (h *WSHub) Leave(room string, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[room]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Publish sends a message to all connections in a room. Slow subscribers miss
// messages rather than block the publisher.
func (h *WSHub) Publish(room string, event string, data any) {
	msg := WSMessage{Event: event, Data: data}
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("ws marshal error", "error", err, "room", room, "event", event)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	conns, ok := h.rooms[room]
	if !ok {
		return
	}

	for _, conn := range conns {
		select {
		case conn.Send <- payload:
		default:
			h.logger.Warn("ws send buffer full", "conn_id", conn.ID, "room", room)
		}
	}
}

// PublishToPlayer is a convenience method to publish to a player-scoped room.
func (h *WSHub) PublishToPlayer(playerID int64, event string, data any) {
	h.Publish(PlayerRoom(playerID), event, data)
}

// PlayerRoom names a player's personal room.
func PlayerRoom(playerID int64) string {
	return "player:" + strconv.FormatInt(playerID, 10)
}

// Serve upgrades the request and streams room events until the client or the
// request context goes away.
func (h *WSHub) Serve(w http.ResponseWriter, r *http.Request, room string) error {
	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		return err
	}
	conn := &WSConn{ID: uuid.NewString(), Send: make(chan []byte, wsSendBuffer)}
	h.Join(room, conn)
	defer h.Leave(room, conn.ID)
	h.logger.Debug("ws subscriber joined", "conn_id", conn.ID, "room", room)

	// clients only listen; CloseRead cancels ctx when they disconnect
	ctx := ws.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			ws.Close(websocket.StatusNormalClosure, "")
			return nil
		case payload, ok := <-conn.Send:
			if !ok {
				ws.Close(websocket.StatusGoingAway, "server shutting down")
				return nil
			}
			wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := ws.Write(wctx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}

// ConnectionCount returns the total number of active connections.
func (h *WSHub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	count := 0
	for _, conns := range h.rooms {
		count += len(conns)
	}
	return count
}

// RoomCount returns the number of active rooms.
func (h *WSHub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// Shutdown closes all connections gracefully.
func (h *WSHub) Shutdown(_ context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room, conns := range h.rooms {
		for _, conn := range conns {
			close(conn.Send)
		}
		delete(h.rooms, room)
	}
}
