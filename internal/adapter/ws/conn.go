package ws

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/templehubsakshi/FlowSpace/internal/domain/event"
	"github.com/templehubsakshi/FlowSpace/internal/domain/user"
)

// conn is one authenticated websocket. Frames reach the socket only through
// send, drained by writeLoop, so hub fan-out never blocks on a slow peer.
type conn struct {
	id   string
	user *user.User
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once

	// room is the workspace the connection is joined to. Guarded by Hub.mu.
	room string
}

func newConn(id string, u *user.User, ws *websocket.Conn, buffer int) *conn {
	return &conn{
		id:   id,
		user: u,
		ws:   ws,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

// enqueue hands frame to the writer without blocking. It reports false when
// the buffer is full or the connection is closing.
func (c *conn) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// reply sends p to this connection only, unsequenced.
func (c *conn) reply(ctx context.Context, p event.Payload) {
	frame, err := event.Encode(0, p)
	if err != nil {
		slog.ErrorContext(ctx, "encode reply", "type", p.EventType(), "error", err)
		return
	}
	if !c.enqueue(frame) {
		slog.DebugContext(ctx, "reply dropped", "conn_id", c.id, "type", p.EventType())
	}
}

// reject tells the connection an intent was refused.
func (c *conn) reject(ctx context.Context, intent event.Type, msg string) {
	slog.DebugContext(ctx, "intent rejected", "conn_id", c.id, "user_id", c.user.ID, "intent", intent, "reason", msg)
	c.reply(ctx, &event.Error{Message: msg, Intent: intent})
}

// close stops the writer and closes the socket with code. Safe to call
// more than once; only the first call has an effect.
func (c *conn) close(code websocket.StatusCode, reason string) {
	c.once.Do(func() {
		close(c.done)
		// Close waits for the peer's close frame; do not hold up the caller.
		go func() { _ = c.ws.Close(code, reason) }()
	})
}

func (c *conn) writeLoop(ctx context.Context, writeTimeout, pingInterval time.Duration) {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case frame := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.ws.Write(wctx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				slog.DebugContext(ctx, "websocket write failed", "conn_id", c.id, "error", err)
				c.close(websocket.StatusInternalError, "write failed")
				return
			}
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.ws.Ping(pctx)
			cancel()
			if err != nil {
				slog.DebugContext(ctx, "websocket ping failed", "conn_id", c.id, "error", err)
				c.close(websocket.StatusGoingAway, "ping timeout")
				return
			}
		}
	}
}
