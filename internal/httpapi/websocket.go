package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"quantopia/internal/domain"
	"quantopia/internal/scheduler"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The HTTP surface is CORS-open; the socket follows suit.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client is a single WebSocket connection managed by a Hub.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub manages the WebSocket clients and pushes periodic task-state
// snapshots to all of them.
type Hub struct {
	logger *slog.Logger
	sched  *scheduler.Scheduler

	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
}

// NewHub creates a Hub wired to the scheduler.
func NewHub(logger *slog.Logger, sched *scheduler.Scheduler) *Hub {
	return &Hub{
		logger:     logger,
		sched:      sched,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// taskSnapshot is the message pushed to every connected client.
type taskSnapshot struct {
	Type       string              `json:"type"`
	FetchTasks []scheduler.Summary `json:"fetch_tasks"`
	TradeTasks []scheduler.Summary `json:"trade_tasks"`
	Timestamp  string              `json:"timestamp"`
}

// Run drives the hub: client bookkeeping plus a periodic snapshot
// broadcast. Returns when ctx is cancelled.
func (h *Hub) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			return

		case client := <-h.register:
			h.clients[client] = true

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}

		case message := <-h.broadcast:
			h.send(message)

		case <-ticker.C:
			if len(h.clients) == 0 {
				continue
			}
			snap := taskSnapshot{
				Type:       "task_update",
				FetchTasks: h.sched.List(domain.TaskFetch),
				TradeTasks: h.sched.List(domain.TaskTrade),
				Timestamp:  time.Now().UTC().Format(time.RFC3339),
			}
			payload, err := json.Marshal(snap)
			if err != nil {
				h.logger.Warn("snapshot encode failed", "error", err)
				continue
			}
			h.send(payload)
		}
	}
}

func (h *Hub) send(message []byte) {
	for client := range h.clients {
		select {
		case client.send <- message:
		default:
			close(client.send)
			delete(h.clients, client)
		}
	}
}

// Broadcast queues a message for every connected client. Drops the message
// when the queue is full rather than blocking the caller.
func (h *Hub) Broadcast(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		h.logger.Warn("broadcast encode failed", "error", err)
		return
	}
	select {
	case h.broadcast <- payload:
	default:
	}
}

// PublishEvent is the scheduler's event sink: wraps the event in a typed
// envelope and queues it for broadcast.
func (h *Hub) PublishEvent(ev scheduler.Event) {
	h.Broadcast(map[string]any{"type": "event", "event": ev})
}

// handleWebSocket upgrades the connection and starts the client pumps.
func (h *Hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	client := &Client{hub: h, conn: conn, send: make(chan []byte, 16)}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

// readPump drains inbound frames so pings are answered, and unregisters the
// client on error.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump pushes queued messages and keepalive pings to the peer.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
