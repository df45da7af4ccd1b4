// Package nats implements the message queue port using core NATS pub/sub.
// Realtime relay traffic is best effort, so no JetStream persistence is used.
package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/templehubsakshi/FlowSpace/internal/logger"
	"github.com/templehubsakshi/FlowSpace/internal/port/messagequeue"
)

const headerRequestID = "X-Request-ID"

// Queue implements messagequeue.Queue using core NATS.
type Queue struct {
	nc *nats.Conn
}

// Connect establishes a connection to NATS. The client reconnects on its own
// for as long as the process runs.
func Connect(_ context.Context, url string) (*Queue, error) {
	nc, err := nats.Connect(url,
		nats.Name("flowspace"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	slog.Info("nats connected", "url", url)
	return &Queue{nc: nc}, nil
}

// Publish sends a message to the given subject. The request ID in ctx, if
// any, travels as a header.
func (q *Queue) Publish(ctx context.Context, subject string, data []byte) error {
	msg := nats.NewMsg(subject)
	msg.Data = data
	if id := logger.RequestID(ctx); id != "" {
		msg.Header.Set(headerRequestID, id)
	}
	if err := q.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe registers a handler for messages on the given subject.
// Handler errors are logged; core NATS has no redelivery.
func (q *Queue) Subscribe(ctx context.Context, subject string, handler messagequeue.Handler) (func(), error) {
	sub, err := q.nc.Subscribe(subject, func(msg *nats.Msg) {
		hctx := ctx
		if id := msg.Header.Get(headerRequestID); id != "" {
			hctx = logger.WithRequestID(hctx, id)
		}
		if err := handler(hctx, msg.Subject, msg.Data); err != nil {
			slog.ErrorContext(hctx, "message handler failed", "subject", msg.Subject, "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	return func() {
		if err := sub.Unsubscribe(); err != nil {
			slog.Warn("nats unsubscribe failed", "subject", subject, "error", err)
		}
	}, nil
}

// Drain gracefully drains all subscriptions and closes the connection.
func (q *Queue) Drain() error {
	if err := q.nc.Drain(); err != nil {
		return fmt.Errorf("nats drain: %w", err)
	}
	return nil
}

// Close shuts down the NATS connection.
func (q *Queue) Close() error {
	q.nc.Close()
	return nil
}

// IsConnected reports whether the NATS connection is currently active.
func (q *Queue) IsConnected() bool {
	return q.nc.IsConnected()
}
