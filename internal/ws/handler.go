package ws

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"aeroguardian/internal/console"
	"aeroguardian/internal/frame"
	"aeroguardian/internal/mode"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	sendBufferSize = 8
	// DefaultMaxFrameBytes bounds one binary camera frame
	DefaultMaxFrameBytes = 8 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 256 * 1024, // 256KB for base64 encoded JPEG frames
	CheckOrigin: func(r *http.Request) bool {
		// the console is served from arbitrary hosts in the field; auth is token based
		return true
	},
}

// Console is the subset of the command dispatcher the socket needs
type Console interface {
	Mode() mode.Mode
	SelectMode(ctx context.Context, m mode.Mode) (mode.Visibility, error)
	SubmitLive(ctx context.Context, img image.Image) (uint64, error)
}

// Handler serves /ws/live: binary messages are JPEG/PNG camera frames, text
// messages are JSON commands, and reports come back as JSON.
type Handler struct {
	hub           *Hub
	console       Console
	maxFrameBytes int64
}

// NewHandler creates a WebSocket handler
func NewHandler(hub *Hub, c Console) *Handler {
	return &Handler{hub: hub, console: c, maxFrameBytes: DefaultMaxFrameBytes}
}

// ServeHTTP handles WebSocket upgrade requests
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.hub.log.Warn().Err(err).Msg("upgrade failed")
		return
	}

	c := newClient(conn, r.RemoteAddr)
	h.hub.register(c)
	go c.writePump()

	// greet with the current mode so the client can pick its panel
	if data, err := json.Marshal(NewModeMessage(h.console.Mode())); err == nil {
		c.enqueue(data)
	}

	go h.readPump(c)
}

// readPump reads frames and commands until the client disconnects
func (h *Handler) readPump(c *client) {
	defer h.hub.unregister(c)

	c.conn.SetReadLimit(h.maxFrameBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.hub.log.Warn().Err(err).Str("remote", c.remote).Msg("read error")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		switch msgType {
		case websocket.BinaryMessage:
			h.handleFrame(c, data)
		case websocket.TextMessage:
			h.handleCommand(c, data)
		}
	}
}

func (h *Handler) handleFrame(c *client, data []byte) {
	var img image.Image
	if len(data) > 0 {
		decoded, err := frame.DecodeBytes(data)
		if err != nil {
			c.sendJSON(NewErrorMessage("bad_frame", err))
			return
		}
		img = decoded
	}
	// an empty message is an absent camera frame and yields NO SIGNAL

	seq, err := h.console.SubmitLive(context.Background(), img)
	if err != nil {
		c.sendJSON(NewErrorMessage(errorCode(err), err))
		return
	}
	c.sendJSON(&AckMessage{Type: TypeAck, Seq: seq})
}

func (h *Handler) handleCommand(c *client, data []byte) {
	var cmd ClientCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		c.sendJSON(NewErrorMessage("bad_command", err))
		return
	}

	switch cmd.Type {
	case "get_mode":
		c.sendJSON(NewModeMessage(h.console.Mode()))
	case "select_mode":
		m, err := mode.Parse(cmd.Mode)
		if err != nil {
			c.sendJSON(NewErrorMessage("unknown_mode", err))
			return
		}
		if _, err := h.console.SelectMode(context.Background(), m); err != nil {
			c.sendJSON(NewErrorMessage(errorCode(err), err))
			return
		}
		// the hub broadcasts the change to everyone, this client included
	default:
		c.sendJSON(NewErrorMessage("bad_command", errors.New("unknown command type "+cmd.Type)))
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, console.ErrSourceInactive):
		return "source_inactive"
	case errors.Is(err, mode.ErrUnknownMode):
		return "unknown_mode"
	default:
		return "internal"
	}
}

// client is one socket. Only writePump writes to conn.
type client struct {
	conn   *websocket.Conn
	remote string
	send   chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func newClient(conn *websocket.Conn, remote string) *client {
	return &client{
		conn:   conn,
		remote: remote,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
	}
}

func (c *client) enqueue(message []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

func (c *client) sendJSON(v any) {
	if data, err := json.Marshal(v); err == nil {
		c.enqueue(data)
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
