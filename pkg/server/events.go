package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// EventMessage is one exec lifecycle event pushed to /events clients.
type EventMessage struct {
	Type      string         `json:"type"`
	Event     string         `json:"event"`
	Data      map[string]any `json:"data"`
	Timestamp int64          `json:"timestamp"`
	Seq       int64          `json:"seq"`
}

// Broadcaster pushes exec lifecycle events to all connected websocket
// clients. Clients that fail a write are dropped.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]struct{}
	seq     uint64
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{clients: make(map[*websocket.Conn]struct{})}
}

// Broadcast sends an event to all connected clients.
func (b *Broadcaster) Broadcast(event string, data map[string]any) {
	msg := EventMessage{
		Type:      "event",
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
		Seq:       int64(atomic.AddUint64(&b.seq, 1)),
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("Failed to marshal event")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for conn := range b.clients {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Warn().Err(err).Str("event", event).Msg("Dropping client after failed broadcast")
			conn.Close()
			delete(b.clients, conn)
		}
	}
}

// ClientCount returns the number of connected clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// CloseAll disconnects every client.
func (b *Broadcaster) CloseAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for conn := range b.clients {
		conn.Close()
	}
	b.clients = make(map[*websocket.Conn]struct{})
}

func (b *Broadcaster) add(conn *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[conn] = struct{}{}
}

func (b *Broadcaster) remove(conn *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.clients, conn)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Local tool protocol; the server binds to loopback by default.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleEvents upgrades the connection and streams exec lifecycle
// events until the client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	s.broadcaster.add(conn)
	log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("Event client connected")

	// Reader loop only to detect disconnects; clients do not send.
	go func() {
		defer func() {
			s.broadcaster.remove(conn)
			conn.Close()
			log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("Event client disconnected")
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
