package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	logger "github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// RunEvent is a single run lifecycle transition pushed to subscribers.
type RunEvent struct {
	RunID  string    `json:"run_id"`
	Status string    `json:"status"`
	Time   time.Time `json:"time"`
}

// Client represents a single WebSocket connection managed by a Hub. A client
// with a runID only receives events for that run.
type Client struct {
	hub   *Hub
	conn  *websocket.Conn
	send  chan []byte
	runID string
}

// Hub manages a set of WebSocket clients and fans run events out to the
// clients subscribed to each run.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan RunEvent
	register   chan *Client
	unregister chan *Client
}

// NewHub creates a new Hub with initialised channels and client map.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan RunEvent, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run starts the Hub's main event loop. It should be launched as a goroutine
// and stops when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
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
		case event := <-h.broadcast:
			payload, err := json.Marshal(event)
			if err != nil {
				logger.WithError(err).Error("Failed to encode run event")
				continue
			}
			for client := range h.clients {
				if client.runID != "" && client.runID != event.RunID {
					continue
				}
				select {
				case client.send <- payload:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
		}
	}
}

// PublishRunEvent queues a lifecycle transition for broadcast. It never
// blocks the caller; events are dropped when the hub queue is full.
func (h *Hub) PublishRunEvent(runID string, status string) {
	event := RunEvent{RunID: runID, Status: status, Time: time.Now().UTC()}
	select {
	case h.broadcast <- event:
	default:
		logger.WithFields(map[string]interface{}{
			"runID":  runID,
			"status": status,
		}).Warn("Dropping run event, hub queue is full")
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The dashboard is served from a different origin in development.
	CheckOrigin: func(*http.Request) bool { return true },
}

// HandleRunEvents upgrades the connection to a WebSocket and streams the
// run's lifecycle events until the client disconnects.
func HandleRunEvents(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.WithError(err).Error("Failed to upgrade run events connection")
			return
		}
		client := &Client{
			hub:   hub,
			conn:  conn,
			send:  make(chan []byte, 16),
			runID: chi.URLParam(r, "runID"),
		}
		hub.register <- client

		go client.writePump()
		go client.readPump()
	}
}

// readPump discards inbound messages and keeps the connection's read
// deadline fresh through pong frames.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump forwards hub payloads to the connection and pings on an
// interval shorter than the read deadline.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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
