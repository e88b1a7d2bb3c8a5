package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/campus-canteen/api/internal/auth"
	"github.com/campus-canteen/api/internal/enum"
	"github.com/campus-canteen/api/internal/logger"
	"github.com/campus-canteen/api/internal/notify"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512

	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Room access is checked per join, not per origin
	},
}

const (
	actionJoin  = "join"
	actionLeave = "leave"
)

const (
	ackJoined = "joined"
	ackLeft   = "left"
	ackError  = "error"
)

var (
	errUnknownChannel = errors.New("unknown channel")
	errRoomForbidden  = errors.New("not allowed to join this channel")
	errUnknownAction  = errors.New("unknown action")
	errBadMessage     = errors.New("malformed message")
)

// inbound is a message sent by a client
type inbound struct {
	Action  string `json:"action"`
	Channel string `json:"channel"`
}

type ack struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
	Error   string `json:"error,omitempty"`
}

func encodeAck(kind, channel, reason string) []byte {
	b, _ := json.Marshal(ack{Type: kind, Channel: channel, Error: reason})
	return b
}

// Client represents a single WebSocket connection
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	claims *auth.Claims // nil for anonymous customers
	send   chan []byte

	// Owned by the hub goroutine
	rooms map[string]bool
}

func newClient(hub *Hub, conn *websocket.Conn, claims *auth.Claims) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		claims: claims,
		send:   make(chan []byte, sendBufferSize),
		rooms:  make(map[string]bool),
	}
}

// authorize decides whether claims may join channel.
func authorize(claims *auth.Claims, channel string) error {
	role := ""
	if claims != nil {
		role = claims.Role
	}

	switch channel {
	case enum.ChannelKitchen:
		if role == enum.UserRoleKitchen || role == enum.UserRoleAdmin {
			return nil
		}
		return errRoomForbidden
	case enum.ChannelAdmin:
		if role == enum.UserRoleAdmin {
			return nil
		}
		return errRoomForbidden
	}

	if _, ok := notify.OrderIDFromChannel(channel); ok {
		return nil
	}
	return errUnknownChannel
}

// handleMessage applies one client message. Errors are acknowledged to the
// client; the connection stays open.
func (c *Client) handleMessage(data []byte) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		c.hub.reply(c, encodeAck(ackError, "", errBadMessage.Error()))
		return
	}

	switch msg.Action {
	case actionJoin:
		if err := authorize(c.claims, msg.Channel); err != nil {
			c.hub.reply(c, encodeAck(ackError, msg.Channel, err.Error()))
			return
		}
		c.hub.join(c, msg.Channel)
	case actionLeave:
		c.hub.leave(c, msg.Channel)
	default:
		c.hub.reply(c, encodeAck(ackError, msg.Channel, errUnknownAction.Error()))
	}
}

// ReadPump pumps join/leave messages from the WebSocket connection to the hub
// The application runs ReadPump in a per-connection goroutine
func (c *Client) ReadPump() {
	defer func() {
		c.hub.removeClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Log.Warn("websocket read error", zap.Error(err))
			}
			break
		}
		c.handleMessage(data)
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
// The application runs WritePump in a per-connection goroutine
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
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One frame per message so clients can JSON-decode each frame
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

// ServeWS handles WebSocket requests from clients
// Endpoint: WS /ws?token=JWT (token optional; required for kitchen and admin rooms)
func ServeWS(hub *Hub, jwtSecret string, w http.ResponseWriter, r *http.Request) {
	var claims *auth.Claims
	if tokenStr := r.URL.Query().Get("token"); tokenStr != "" {
		c, err := auth.ValidateToken(jwtSecret, tokenStr)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		claims = c
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := newClient(hub, conn, claims)
	hub.addClient(client)

	go client.WritePump()
	go client.ReadPump()
}
