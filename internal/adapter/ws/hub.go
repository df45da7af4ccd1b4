// Package ws implements the realtime channel: authenticated websocket
// connections, one workspace room per connection, room presence and the
// relay of mutation events to the other members of a room.
package ws

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	cfotel "github.com/templehubsakshi/FlowSpace/internal/adapter/otel"
	"github.com/templehubsakshi/FlowSpace/internal/domain/event"
	"github.com/templehubsakshi/FlowSpace/internal/port/broadcast"
)

// Presence modes.
const (
	// PresenceMulti tracks every connection of a user. A user appears in a
	// room while any of their connections is joined, and personal events
	// reach all of their connections.
	PresenceMulti = "multi"
	// PresenceLastWriteWins keeps one connection per user for personal
	// events (the most recent) and announces every join and leave.
	PresenceLastWriteWins = "last_write_wins"
)

// Authorizer decides whether a user may join a workspace room.
type Authorizer interface {
	Require(ctx context.Context, workspaceID, userID string) error
}

// Options tunes the hub.
type Options struct {
	SendBuffer     int
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
	PresenceMode   string
	OriginPatterns []string
}

func (o *Options) defaults() {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 25 * time.Second
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 64 << 10
	}
	if o.PresenceMode != PresenceLastWriteWins {
		o.PresenceMode = PresenceMulti
	}
}

// Hub owns all connections of this process. It implements
// broadcast.Broadcaster.
type Hub struct {
	opts    Options
	members Authorizer
	seq     broadcast.Sequencer
	relay   *Relay
	metrics *cfotel.Metrics

	mu     sync.RWMutex
	conns  map[string]*conn
	rooms  map[string]map[string]*conn // workspaceID -> connID -> conn
	byUser map[string]map[string]*conn // userID -> connID -> conn
	latest map[string]*conn            // userID -> newest conn, last_write_wins only

	// roomLocks serialize sequence assignment and fan-out per room so
	// delivery order matches sequence order.
	roomLocks sync.Map // workspaceID -> *sync.Mutex
}

var (
	_ broadcast.Broadcaster = (*Hub)(nil)
	_ broadcast.Evictor     = (*Hub)(nil)
)

// NewHub creates a hub. seq numbers relayed mutations.
func NewHub(opts Options, members Authorizer, seq broadcast.Sequencer) *Hub {
	opts.defaults()
	return &Hub{
		opts:    opts,
		members: members,
		seq:     seq,
		conns:   make(map[string]*conn),
		rooms:   make(map[string]map[string]*conn),
		byUser:  make(map[string]map[string]*conn),
		latest:  make(map[string]*conn),
	}
}

// SetMetrics enables realtime metrics.
func (h *Hub) SetMetrics(m *cfotel.Metrics) {
	h.metrics = m
}

// ConnectionCount returns the number of open connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// OnlineUsers returns the presence roster of a room.
func (h *Hub) OnlineUsers(workspaceID string) []event.Presence {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rosterLocked(workspaceID)
}

// BroadcastToRoom delivers p to every connection in the room except
// exceptConnID, here and on other instances. Mutation events are stamped
// with the next workspace sequence number.
func (h *Hub) BroadcastToRoom(ctx context.Context, workspaceID, exceptConnID string, p event.Payload) {
	h.broadcast(ctx, workspaceID, exceptConnID, p, nil)
}

// relayFrom broadcasts a translated intent of sender. When the event is
// sequenced the sender gets a relay:ack carrying the same number, so its
// own mutations do not look like gaps.
func (h *Hub) relayFrom(ctx context.Context, sender *conn, workspaceID string, intent event.Type, p event.Payload) {
	h.broadcast(ctx, workspaceID, sender.id, p, &ackTarget{conn: sender, intent: intent})
}

type ackTarget struct {
	conn   *conn
	intent event.Type
}

func (h *Hub) broadcast(ctx context.Context, workspaceID, exceptConnID string, p event.Payload, ack *ackTarget) {
	var seq uint64
	if p.EventType().Sequenced() {
		lock := h.roomLock(workspaceID)
		lock.Lock()
		defer lock.Unlock()
		n, err := h.seq.Next(ctx, workspaceID)
		if err != nil {
			// Deliver unsequenced rather than not at all.
			slog.WarnContext(ctx, "sequence assignment failed", "workspace_id", workspaceID, "error", err)
		}
		seq = n
	}
	frame, err := event.Encode(seq, p)
	if err != nil {
		slog.ErrorContext(ctx, "encode broadcast", "type", p.EventType(), "error", err)
		return
	}
	h.deliverRoom(ctx, workspaceID, exceptConnID, frame)
	// Still under the room lock, so the ack is queued in sequence order.
	if ack != nil && seq != 0 {
		if af, err := event.Encode(seq, &event.RelayAck{WorkspaceID: workspaceID, Intent: ack.intent}); err == nil {
			h.fanOut(ctx, []*conn{ack.conn}, af)
		}
	}
	h.relay.publish(ctx, roomSubject, workspaceID, exceptConnID, frame)
	if h.metrics != nil {
		h.metrics.EventsRelayed.Add(ctx, 1, metric.WithAttributes(attribute.String("type", string(p.EventType()))))
	}
}

// SendToUser delivers p to the user's connections regardless of room.
func (h *Hub) SendToUser(ctx context.Context, userID string, p event.Payload) {
	frame, err := event.Encode(0, p)
	if err != nil {
		slog.ErrorContext(ctx, "encode user event", "type", p.EventType(), "error", err)
		return
	}
	h.deliverUser(ctx, userID, frame)
	h.relay.publish(ctx, userSubject, userID, "", frame)
}

// EvictFromRoom removes the user's connections from the room on every
// instance. Each instance that held one tells the room the user left.
func (h *Hub) EvictFromRoom(ctx context.Context, workspaceID, userID string) {
	if left := h.evictLocal(ctx, workspaceID, userID); left != nil {
		h.BroadcastToRoom(ctx, workspaceID, "", left)
	}
	h.relay.publishEviction(ctx, workspaceID, userID)
}

// evictLocal removes the user's connections on this instance and returns
// the departure to announce, or nil when none of them was in the room.
func (h *Hub) evictLocal(ctx context.Context, workspaceID, userID string) *event.UserLeft {
	h.mu.Lock()
	var evicted []*conn
	var left *event.UserLeft
	for _, c := range h.rooms[workspaceID] {
		if c.user.ID != userID {
			continue
		}
		if l := h.leaveLocked(c); l != nil {
			left = l
		}
		evicted = append(evicted, c)
	}
	h.mu.Unlock()

	for _, c := range evicted {
		c.reply(ctx, &event.MemberRemoved{WorkspaceID: workspaceID, UserID: userID})
	}
	if len(evicted) > 0 {
		slog.InfoContext(ctx, "evicted from workspace room", "workspace_id", workspaceID, "user_id", userID, "connections", len(evicted))
	}
	return left
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	conns := make([]*conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	for _, c := range conns {
		c.close(websocket.StatusGoingAway, "server shutting down")
	}
}

func (h *Hub) deliverRoom(ctx context.Context, workspaceID, exceptConnID string, frame []byte) {
	h.mu.RLock()
	targets := make([]*conn, 0, len(h.rooms[workspaceID]))
	for id, c := range h.rooms[workspaceID] {
		if id != exceptConnID {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	h.fanOut(ctx, targets, frame)
}

func (h *Hub) deliverUser(ctx context.Context, userID string, frame []byte) {
	h.mu.RLock()
	var targets []*conn
	if h.opts.PresenceMode == PresenceLastWriteWins {
		if c := h.latest[userID]; c != nil {
			targets = append(targets, c)
		}
	} else {
		for _, c := range h.byUser[userID] {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	h.fanOut(ctx, targets, frame)
}

// fanOut never blocks: a connection whose buffer is full is evicted and
// will resync when it reconnects.
func (h *Hub) fanOut(ctx context.Context, targets []*conn, frame []byte) {
	for _, c := range targets {
		if c.enqueue(frame) {
			continue
		}
		select {
		case <-c.done:
			continue
		default:
		}
		slog.WarnContext(ctx, "evicting slow consumer", "conn_id", c.id, "user_id", c.user.ID, "buffer", cap(c.send))
		if h.metrics != nil {
			h.metrics.EventsDropped.Add(ctx, 1)
			h.metrics.SlowEvictions.Add(ctx, 1)
		}
		c.close(websocket.StatusPolicyViolation, "slow consumer")
	}
}

func (h *Hub) roomLock(workspaceID string) *sync.Mutex {
	l, _ := h.roomLocks.LoadOrStore(workspaceID, &sync.Mutex{})
	return l.(*sync.Mutex)
}

func (h *Hub) register(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c.id] = c
	if h.byUser[c.user.ID] == nil {
		h.byUser[c.user.ID] = make(map[string]*conn)
	}
	h.byUser[c.user.ID][c.id] = c
	h.latest[c.user.ID] = c
}

// unregister removes c and announces its departure from its room.
func (h *Hub) unregister(ctx context.Context, c *conn) {
	h.mu.Lock()
	room := c.room
	left := h.leaveLocked(c)
	delete(h.conns, c.id)
	if set := h.byUser[c.user.ID]; set != nil {
		delete(set, c.id)
		if len(set) == 0 {
			delete(h.byUser, c.user.ID)
		}
	}
	if h.latest[c.user.ID] == c {
		delete(h.latest, c.user.ID)
	}
	h.mu.Unlock()

	if left != nil {
		h.BroadcastToRoom(ctx, room, "", left)
	}
}

// join moves c into workspaceID, leaving its previous room first. The
// joining connection gets the roster; the rest of the room is told the
// user arrived.
func (h *Hub) join(ctx context.Context, c *conn, workspaceID string) {
	if workspaceID == "" {
		c.reject(ctx, event.TypeJoin, "workspaceId is required")
		return
	}
	if err := h.members.Require(ctx, workspaceID, c.user.ID); err != nil {
		c.reject(ctx, event.TypeJoin, "not a member of this workspace")
		return
	}

	h.mu.Lock()
	prev := c.room
	var left *event.UserLeft
	announce := false
	if prev != workspaceID {
		left = h.leaveLocked(c)
		announce = h.addLocked(c, workspaceID)
	}
	roster := h.rosterLocked(workspaceID)
	h.mu.Unlock()

	if left != nil {
		h.BroadcastToRoom(ctx, prev, "", left)
	}
	c.reply(ctx, &event.OnlineUsers{WorkspaceID: workspaceID, Users: roster})
	if announce {
		h.BroadcastToRoom(ctx, workspaceID, c.id, &event.UserJoined{
			WorkspaceID: workspaceID,
			Presence:    presenceOf(c),
		})
	}
	slog.InfoContext(ctx, "joined workspace room", "conn_id", c.id, "user_id", c.user.ID, "workspace_id", workspaceID, "previous", prev)
}

// leave removes c from workspaceID if it is joined there.
func (h *Hub) leave(ctx context.Context, c *conn, workspaceID string) {
	h.mu.Lock()
	if c.room != workspaceID {
		h.mu.Unlock()
		return
	}
	left := h.leaveLocked(c)
	h.mu.Unlock()
	if left != nil {
		h.BroadcastToRoom(ctx, workspaceID, "", left)
	}
	slog.InfoContext(ctx, "left workspace room", "conn_id", c.id, "user_id", c.user.ID, "workspace_id", workspaceID)
}

func (h *Hub) roomOf(c *conn) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return c.room
}

// addLocked puts c in the room and reports whether the arrival should be
// announced. Caller holds h.mu.
func (h *Hub) addLocked(c *conn, workspaceID string) bool {
	room := h.rooms[workspaceID]
	if room == nil {
		room = make(map[string]*conn)
		h.rooms[workspaceID] = room
	}
	first := !h.userInRoomLocked(room, c.user.ID)
	room[c.id] = c
	c.room = workspaceID
	return first || h.opts.PresenceMode == PresenceLastWriteWins
}

// leaveLocked takes c out of its room and returns the departure event to
// announce, or nil. Caller holds h.mu.
func (h *Hub) leaveLocked(c *conn) *event.UserLeft {
	if c.room == "" {
		return nil
	}
	workspaceID := c.room
	room := h.rooms[workspaceID]
	delete(room, c.id)
	if len(room) == 0 {
		delete(h.rooms, workspaceID)
	}
	c.room = ""
	if h.opts.PresenceMode == PresenceMulti && h.userInRoomLocked(room, c.user.ID) {
		return nil
	}
	return &event.UserLeft{WorkspaceID: workspaceID, UserID: c.user.ID, UserName: c.user.Name}
}

func (h *Hub) userInRoomLocked(room map[string]*conn, userID string) bool {
	for _, other := range room {
		if other.user.ID == userID {
			return true
		}
	}
	return false
}

// rosterLocked lists the distinct users present in a room, by name.
func (h *Hub) rosterLocked(workspaceID string) []event.Presence {
	seen := make(map[string]bool)
	users := []event.Presence{}
	for _, c := range h.rooms[workspaceID] {
		if seen[c.user.ID] {
			continue
		}
		seen[c.user.ID] = true
		users = append(users, presenceOf(c))
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].UserName != users[j].UserName {
			return users[i].UserName < users[j].UserName
		}
		return users[i].UserID < users[j].UserID
	})
	return users
}

func presenceOf(c *conn) event.Presence {
	return event.Presence{UserID: c.user.ID, UserName: c.user.Name, UserEmail: c.user.Email}
}
