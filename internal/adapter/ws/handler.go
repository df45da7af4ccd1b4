package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/templehubsakshi/FlowSpace/internal/middleware"
)

// HandleWS upgrades an authenticated request to a realtime connection.
// The auth middleware has already resolved the user; an anonymous request
// is refused before the upgrade with 401.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	u := middleware.UserFromContext(r.Context())
	if u == nil {
		http.Error(w, `{"error":"authorization required","code":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.opts.OriginPatterns,
	})
	if err != nil {
		slog.Error("websocket accept failed", "user_id", u.ID, "error", err)
		return
	}
	wsConn.SetReadLimit(h.opts.MaxMessageSize)

	// The request context ends with the handler; the connection outlives
	// the middleware chain only through this goroutine.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	c := newConn(uuid.New().String(), u, wsConn, h.opts.SendBuffer)
	h.register(c)
	if h.metrics != nil {
		h.metrics.Connections.Add(ctx, 1)
	}
	slog.InfoContext(ctx, "websocket connected", "conn_id", c.id, "user_id", u.ID)

	go c.writeLoop(ctx, h.opts.WriteTimeout, h.opts.PingInterval)

	h.readLoop(ctx, c)

	c.close(websocket.StatusNormalClosure, "")
	h.unregister(ctx, c)
	if h.metrics != nil {
		h.metrics.Connections.Add(ctx, -1)
	}
	slog.InfoContext(ctx, "websocket disconnected", "conn_id", c.id, "user_id", u.ID)
}

func (h *Hub) readLoop(ctx context.Context, c *conn) {
	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == -1 && !errors.Is(err, context.Canceled) {
				slog.DebugContext(ctx, "websocket read ended", "conn_id", c.id, "error", err)
			}
			return
		}
		if typ != websocket.MessageText {
			c.reject(ctx, "", "binary frames are not supported")
			continue
		}
		h.route(ctx, c, data)
	}
}
