package admin

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Event is one line of the /debug/watch stream: a health state
// transition or a conf_version/status_ver bump.
type Event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// Hub fans Events out to every connected /debug/watch client, the same
// register/unregister/broadcast shape the teacher's WebSocketHub uses
// for silence events.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan Event
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.RWMutex
	logger     *slog.Logger
}

// NewHub builds a Hub. Call Run in its own goroutine before serving
// ServeWS.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan Event, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		logger:     logger,
	}
}

// Run drives the hub's event loop until the process exits; the admin
// surface has no shutdown path separate from the process itself.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				c.Close()
			}
			h.mu.Unlock()

		case ev := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				go h.send(c, ev)
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) send(c *websocket.Conn, ev Event) {
	c.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := c.WriteJSON(ev); err != nil {
		h.logger.Debug("admin watch: send failed, dropping client", "err", err)
		h.unregister <- c
	}
}

// Broadcast queues ev for delivery to every connected client.
// Non-blocking: a full channel drops the event rather than stalling
// the health/trie code paths that call it.
func (h *Hub) Broadcast(ev Event) {
	select {
	case h.broadcast <- ev:
	default:
		h.logger.Warn("admin watch: broadcast channel full, dropping event", "type", ev.Type)
	}
}

// ServeWS upgrades r to a websocket connection and registers it with
// the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("admin watch: upgrade failed", "err", err)
		return
	}
	h.register <- conn
	go h.readPump(conn)
}

// readPump keeps the connection alive and detects client disconnects;
// /debug/watch is push-only, so any inbound message is ignored.
func (h *Hub) readPump(conn *websocket.Conn) {
	defer func() { h.unregister <- conn }()

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
