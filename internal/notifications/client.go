package notifications

import (
	"log/slog"
	"sync"
	"time"

	"marketplace/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 16384

	sendBuffer = 256
)

// Client is the middleman between one websocket connection and the session registry.
type Client struct {
	registry *SessionRegistry

	// ConnID is the opaque session-connection id.
	ConnID string

	// The websocket connection.
	Conn *websocket.Conn

	// Buffered channel of outbound messages.
	Send chan []byte

	closeOnce sync.Once
}

// NewClient creates a new Client instance
func NewClient(registry *SessionRegistry, conn *websocket.Conn, connID string) *Client {
	return &Client{
		registry: registry,
		ConnID:   connID,
		Conn:     conn,
		Send:     make(chan []byte, sendBuffer),
	}
}

// ReadPump drains the connection until it fails, then ends the session.
// Inbound frames only refresh presence.
func (c *Client) ReadPump() {
	defer func() {
		c.registry.OnSessionEnd(c.ConnID)
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		c.registry.touch(c.ConnID)
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				observability.GlobalLogger.Warn("websocket read failed",
					slog.String("conn_id", c.ConnID), observability.ErrAttr(err))
			}
			return
		}
		c.registry.touch(c.ConnID)
	}
}

// WritePump pumps messages from the registry to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The registry closed the channel.
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// TrySend queues a message without blocking. It reports false when the message was dropped.
func (c *Client) TrySend(message []byte) (sent bool) {
	defer func() {
		if r := recover(); r != nil {
			observability.WebSocketBackpressureDrops.WithLabelValues(registryName, "closed").Inc()
			sent = false
		}
	}()

	select {
	case c.Send <- message:
		return true
	default:
		observability.WebSocketBackpressureDrops.WithLabelValues(registryName, "full").Inc()
		observability.GlobalLogger.Warn("websocket buffer full, dropped message", slog.String("conn_id", c.ConnID))

		// The client re-fetches its unseen count when it sees the gap.
		dropNotice := []byte(`{"type":"messages_dropped","payload":{"reason":"buffer_full"}}`)
		select {
		case c.Send <- dropNotice:
		default:
		}
		return false
	}
}

// Close stops the write pump, which sends the close frame.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.Send) })
	return nil
}
