package ws

import (
	"encoding/json"
	"time"

	"github.com/agrilink/chat-api/internal/model"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024
)

// Client represents a single WebSocket connection
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	UserID uuid.UUID
	Name   string

	// conversation rooms this connection has joined; guarded by hub.mu
	rooms map[uuid.UUID]bool
}

func NewClient(hub *Hub, conn *websocket.Conn, userID uuid.UUID, name string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, 256),
		UserID: userID,
		Name:   name,
		rooms:  make(map[uuid.UUID]bool),
	}
}

// EventHandler processes a parsed inbound frame.
type EventHandler func(client *Client, event model.WSEvent)

// ReadPump pumps frames from the connection to the handler. Runs in a
// per-client goroutine; returning unregisters the client.
func (c *Client) ReadPump(handler EventHandler) {
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
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket read failed",
					zap.String("user_id", c.UserID.String()), zap.Error(err))
			}
			break
		}

		var event model.WSEvent
		if err := json.Unmarshal(message, &event); err != nil {
			c.hub.SendToClient(c, model.NewWSEvent(model.WSEventError, model.ErrorEvent{
				Message: "malformed event",
			}))
			continue
		}

		if handler != nil {
			handler(c, event)
		}
	}
}

// WritePump pumps queued frames to the connection and keeps the peer alive
// with pings. Runs in a per-client goroutine.
func (c *Client) WritePump() {
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
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Drain any frames queued behind this one
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte("\n"))
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
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
