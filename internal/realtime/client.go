package realtime

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Configure properly in production
	},
}

// ConfigureUpgrader applies deployment settings to the shared upgrader.
// Called once at startup, before any connection is served.
func ConfigureUpgrader(readBufferSize, writeBufferSize int, handshakeTimeout time.Duration, allowedOrigins []string) {
	upgrader.ReadBufferSize = readBufferSize
	upgrader.WriteBufferSize = writeBufferSize
	upgrader.HandshakeTimeout = handshakeTimeout

	allowAll := len(allowedOrigins) == 0
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
		}
	}
	if !allowAll {
		origins := append([]string(nil), allowedOrigins...)
		upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			for _, allowed := range origins {
				if origin == allowed {
					return true
				}
			}
			return false
		}
	}
}

type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	sub       *Subscription
	RequestID string
	Role      Role
}

func NewClient(hub *Hub, conn *websocket.Conn, requestID string, role Role) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, 256),
		RequestID: requestID,
		Role:      role,
	}
}

// ServeWS upgrades the HTTP request and runs the client pumps until the
// connection drops. The caller has already authenticated the participant and
// resolved its request id and role.
func ServeWS(hub *Hub, w http.ResponseWriter, r *http.Request, requestID string, role Role) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := NewClient(hub, conn, requestID, role)
	hub.subscribe(client)
	hub.register <- client

	go client.writePump()
	go client.readPump()

	return nil
}

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
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.WithError(err).Warn("WebSocket read error")
			}
			break
		}

		c.hub.handleFrame(c, message)
	}
}

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
