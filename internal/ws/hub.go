package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vitalguard/vitalguard/internal/fanout"
)

const (
	// writeTimeout is the deadline for a single write to a peer.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a protocol-level pong frame before
	// treating the connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod controls how often the server sends WebSocket ping frames.
	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds inbound client frames. Clients only ever send
	// small control messages.
	maxMessageSize = 512

	// sendBufSize is the per-connection outgoing message buffer depth.
	sendBufSize = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Allow all origins — callers should apply CORS at the reverse-proxy level.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub upgrades connections at /ws/{subject} and wires them into the registry.
type Hub struct {
	reg *fanout.Registry
}

// New creates a Hub registering connections in reg.
func New(reg *fanout.Registry) *Hub {
	return &Hub{reg: reg}
}

// clientFrame is the decoded form of an inbound control message.
type clientFrame struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
}

// ServeHTTP upgrades the connection, registers it for the subject named in
// the path, and serves it until the peer disconnects. Blocks for the life of
// the connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	subject := strings.TrimPrefix(r.URL.Path, "/ws/")
	if subject == "" || strings.Contains(subject, "/") {
		http.NotFound(w, r)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	ch := newChannel(sendBufSize)
	handle := h.reg.Register(subject, ch)
	slog.Info("ws: connected", "subject", subject, "remote", conn.RemoteAddr())

	c := &client{conn: conn, ch: ch, subject: subject}
	go c.writePump()
	c.readPump() // blocks until the connection closes

	h.reg.Unregister(handle)
	ch.Close() //nolint:errcheck
	slog.Info("ws: disconnected", "subject", subject, "remote", conn.RemoteAddr())
}

// client is one live connection: the socket plus its registered outgoing channel.
type client struct {
	conn    *websocket.Conn
	ch      *channel
	subject string
}

// readPump consumes inbound frames: control messages get their protocol
// replies, everything else is ignored. Returns when the connection dies.
func (c *client) readPump() {
	defer c.conn.Close()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("ws: read error", "subject", c.subject, "err", err)
			}
			return
		}
		c.handleFrame(msg)
	}
}

func (c *client) handleFrame(msg []byte) {
	var frame clientFrame
	if err := json.Unmarshal(msg, &frame); err != nil {
		slog.Debug("ws: ignoring malformed frame", "subject", c.subject, "err", err)
		return
	}

	switch frame.Type {
	case fanout.EventPing:
		c.reply(fanout.NewEvent(fanout.EventPong, nil))
	case "subscribe":
		ev := fanout.NewEvent(fanout.EventSubscribed, nil)
		ev.Channel = frame.Channel
		c.reply(ev)
	default:
		slog.Debug("ws: ignoring unknown frame type", "subject", c.subject, "type", frame.Type)
	}
}

// reply queues a protocol response on the connection's own channel so it is
// ordered with any concurrent dispatches.
func (c *client) reply(ev fanout.Event) {
	msg, err := ev.Encode()
	if err != nil {
		return
	}
	if err := c.ch.Send(msg); err != nil {
		slog.Debug("ws: dropping protocol reply", "subject", c.subject, "err", err)
	}
}

// writePump drains the channel buffer onto the socket and keeps the
// connection alive with periodic ping frames. Exits when the channel closes
// or a write fails.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.ch.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			if !ok {
				// Channel was closed (pruned by the dispatcher or shutdown).
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
