package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 2 * 1024 * 1024
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Conn is one UI connection. Outbound messages go through a buffered send
// queue drained by the write pump; inbound frames are decoded and handed
// to the session by the read pump.
type Conn struct {
	ws     *websocket.Conn
	logger *slog.Logger
	send   chan *Message

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewConn(ws *websocket.Conn, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	return &Conn{
		ws:     ws,
		logger: logger,
		send:   make(chan *Message, 128),
		done:   make(chan struct{}),
	}
}

// Send enqueues a message for the write pump. A full buffer drops the
// message rather than block the engine; audio clips are the only large
// frames and the buffer is sized for them.
func (c *Conn) Send(msg *Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	// The lock spans the enqueue: Close closes the channel under the
	// write lock, so a send on a closed channel cannot happen here.
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}

	select {
	case c.send <- msg:
	default:
		c.logger.Warn("send buffer full, dropping message", "type", msg.Type)
	}
}

func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	close(c.send)
	c.mu.Unlock()

	return c.ws.Close()
}

func (c *Conn) readPump(handle func(env *envelope)) {
	defer func() {
		c.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket read error", "error", err)
			}
			return
		}

		var env envelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.logger.Error("failed to unmarshal message", "error", err)
			continue
		}

		handle(&env)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(msg)
			if err != nil {
				c.logger.Error("failed to marshal message", "error", err)
				continue
			}

			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Error("websocket write error", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}
