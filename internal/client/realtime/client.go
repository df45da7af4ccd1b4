// Package realtime is the client side of the workspace connection: it
// dials the server, joins a room, sends intents and turns incoming frames
// into typed events. Dropped connections are re-dialed with capped
// exponential backoff and the room is rejoined automatically.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"

	"github.com/templehubsakshi/FlowSpace/internal/domain/event"
)

// ErrUnauthorized means the server refused the handshake. Reconnecting
// with the same token cannot succeed.
var ErrUnauthorized = errors.New("realtime: connection refused, token invalid or expired")

// State is the connection status shown to the user.
type State int

const (
	Connected State = iota
	Reconnecting
	Disconnected
)

func (s State) String() string {
	switch s {
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// Event is one frame from the server.
type Event struct {
	Envelope event.Envelope
	Payload  event.Payload
	// Gap is set when sequence numbers were skipped since the previous
	// mutation in this room; the local board may be stale.
	Gap bool
	// Reconnected marks the synthetic event emitted after the connection
	// was re-established and the room rejoined. Payload is nil.
	Reconnected bool
}

// Options configures a Client.
type Options struct {
	Token          string
	HTTPClient     *http.Client
	MaxReconnects  uint
	ReconnectDelay time.Duration
	Buffer         int
	MaxMessageSize int64
	OnState        func(State)
}

func (o *Options) defaults() {
	if o.MaxReconnects == 0 {
		o.MaxReconnects = 5
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = 500 * time.Millisecond
	}
	if o.Buffer <= 0 {
		o.Buffer = 256
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 1 << 20
	}
}

// Client is one realtime connection. Send, Join and Leave may be called
// from any goroutine; Run must be running for events to arrive.
type Client struct {
	url    string
	opts   Options
	events chan Event

	mu     sync.Mutex
	conn   *websocket.Conn
	room   string
	seq    seqTracker
	closed bool
}

// Dial connects to the server at baseURL (http, https, ws or wss).
func Dial(ctx context.Context, baseURL string, opts Options) (*Client, error) {
	opts.defaults()
	c := &Client{
		url:    wsURL(baseURL),
		opts:   opts,
		events: make(chan Event, opts.Buffer),
	}
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	return c, nil
}

func wsURL(base string) string {
	base = strings.TrimRight(base, "/")
	switch {
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	}
	return base + "/ws"
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.opts.Token != "" {
		header.Set("Authorization", "Bearer "+c.opts.Token)
	}
	conn, resp, err := websocket.Dial(ctx, c.url, &websocket.DialOptions{
		HTTPClient: c.opts.HTTPClient,
		HTTPHeader: header,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("dial %s: %w", c.url, err)
	}
	conn.SetReadLimit(c.opts.MaxMessageSize)
	return conn, nil
}

// Events delivers incoming frames. It is closed when Run returns.
func (c *Client) Events() <-chan Event { return c.events }

// Room returns the workspace the client is joined to.
func (c *Client) Room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

// Join switches the connection to workspaceID's room. The server answers
// with the room's roster.
func (c *Client) Join(ctx context.Context, workspaceID string) error {
	c.mu.Lock()
	c.room = workspaceID
	c.seq.reset()
	c.mu.Unlock()
	return c.Send(ctx, &event.Join{WorkspaceID: workspaceID})
}

// Leave removes the connection from its room.
func (c *Client) Leave(ctx context.Context) error {
	c.mu.Lock()
	room := c.room
	c.room = ""
	c.seq.reset()
	c.mu.Unlock()
	if room == "" {
		return nil
	}
	return c.Send(ctx, &event.Leave{WorkspaceID: room})
}

// Send writes one intent.
func (c *Client) Send(ctx context.Context, p event.Payload) error {
	frame, err := event.Encode(0, p)
	if err != nil {
		return err
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errors.New("realtime: not connected")
	}
	if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
		return fmt.Errorf("send %s: %w", p.EventType(), err)
	}
	return nil
}

// Close ends the connection; Run returns nil afterwards.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close(websocket.StatusNormalClosure, "")
}

// Run reads frames until ctx ends, Close is called, or reconnecting fails
// MaxReconnects times in a row.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.events)
	c.setState(Connected)
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		err := c.readLoop(ctx, conn)
		if ctx.Err() != nil {
			c.setState(Disconnected)
			return ctx.Err()
		}
		if c.isClosed() {
			c.setState(Disconnected)
			return nil
		}
		slog.Debug("realtime connection lost", "url", c.url, "error", err)

		if err := c.reconnect(ctx); err != nil {
			c.setState(Disconnected)
			return err
		}
		if c.isClosed() {
			c.setState(Disconnected)
			return nil
		}
		if !c.emit(ctx, Event{Reconnected: true}) {
			c.setState(Disconnected)
			return ctx.Err()
		}
		c.setState(Connected)
	}
}

func (c *Client) reconnect(ctx context.Context) error {
	c.setState(Reconnecting)
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.ReconnectDelay
	b.MaxInterval = 10 * c.opts.ReconnectDelay

	conn, err := backoff.Retry(ctx, func() (*websocket.Conn, error) {
		conn, err := c.dial(ctx)
		if errors.Is(err, ErrUnauthorized) {
			return nil, backoff.Permanent(err)
		}
		return conn, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(c.opts.MaxReconnects),
		backoff.WithNotify(func(err error, wait time.Duration) {
			slog.Debug("realtime reconnect failed", "wait", wait, "error", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("reconnect: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "")
		return nil
	}
	c.conn = conn
	room := c.room
	c.seq.reset()
	c.mu.Unlock()

	if room != "" {
		if err := c.Send(ctx, &event.Join{WorkspaceID: room}); err != nil {
			return fmt.Errorf("rejoin %s: %w", room, err)
		}
	}
	return nil
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			continue
		}
		env, p, err := event.Decode(data)
		if err != nil {
			slog.Warn("dropping undecodable frame", "error", err)
			continue
		}
		ev := Event{Envelope: env, Payload: p}
		if rm, ok := p.(*event.MemberRemoved); ok {
			c.mu.Lock()
			if c.room == rm.WorkspaceID {
				c.room = ""
			}
			c.mu.Unlock()
		}
		if env.Type.Sequenced() || env.Type == event.TypeRelayAck {
			c.mu.Lock()
			dup, gap := c.seq.observe(env.Seq)
			c.mu.Unlock()
			if dup {
				continue
			}
			ev.Gap = gap
			// An ack only advances the tracker unless it exposes a gap.
			if env.Type == event.TypeRelayAck && !gap {
				continue
			}
		}
		if !c.emit(ctx, ev) {
			return ctx.Err()
		}
	}
}

func (c *Client) emit(ctx context.Context, ev Event) bool {
	select {
	case c.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) setState(s State) {
	if c.opts.OnState != nil {
		c.opts.OnState(s)
	}
}
