package websocket

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// pingEvery must stay below pongTimeout
const (
	writeTimeout   = 10 * time.Second
	pongTimeout    = 60 * time.Second
	pingEvery      = pongTimeout * 9 / 10
	maxInboundSize = 4 << 10 // clients only send PING
	sendBuffer     = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Client is one open notification socket of a user
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte // closed by the hub on unregister

	ID     string
	UserID string
}

// controlMessage is the only inbound shape the server understands
type controlMessage struct {
	Type  string `json:"type"`
	MsgID string `json:"msgId,omitempty"`
}

// readPump keeps the connection alive and answers PING messages.
// Notifications only flow server -> client.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	extend := func(string) error { return c.conn.SetReadDeadline(time.Now().Add(pongTimeout)) }
	c.conn.SetReadLimit(maxInboundSize)
	extend("")
	c.conn.SetPongHandler(extend)

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("⚠️ WS %s: %v", c.ID, err)
			}
			return
		}
		var msg controlMessage
		if json.Unmarshal(raw, &msg) == nil && msg.Type == "PING" {
			c.trySend(map[string]string{"type": "PONG", "msgId": msg.MsgID})
		}
	}
}

// writePump is the only writer on the connection
func (c *Client) writePump() {
	pings := time.NewTicker(pingEvery)
	defer func() {
		pings.Stop()
		c.conn.Close()
	}()

	write := func(kind int, payload []byte) error {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		return c.conn.WriteMessage(kind, payload)
	}
	for {
		select {
		case payload, open := <-c.send:
			if !open {
				write(websocket.CloseMessage, nil)
				return
			}
			if write(websocket.TextMessage, payload) != nil {
				return
			}
		case <-pings.C:
			if write(websocket.PingMessage, nil) != nil {
				return
			}
		}
	}
}

// trySend queues a JSON message without blocking the read loop
func (c *Client) trySend(v interface{}) {
	msg, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.users[c.UserID][c]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// ServeWs upgrades the request and registers the connection for userID
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("⚠️ WS upgrade for %s failed: %v", userID, err)
		return
	}
	client := &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		ID:     "web_" + uuid.New().String(),
		UserID: userID,
	}
	select {
	case hub.register <- client:
	case <-hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
