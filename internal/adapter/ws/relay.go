package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/templehubsakshi/FlowSpace/internal/port/messagequeue"
	"github.com/templehubsakshi/FlowSpace/internal/resilience"
)

const (
	roomSubject = messagequeue.SubjectRoom
	userSubject = messagequeue.SubjectUser
)

// relayMsg is what one instance publishes for the others. Frame is the
// already encoded envelope, so every instance delivers identical bytes
// with the same sequence number.
type relayMsg struct {
	Origin string          `json:"origin"`
	Except string          `json:"except,omitempty"`
	Frame  json.RawMessage `json:"frame,omitempty"`
	// Evict names a user to take out of the room instead of a frame.
	Evict string `json:"evict,omitempty"`
}

// Relay forwards room and user deliveries between instances over a
// message queue. Delivery is best effort: a failed publish is logged and
// the local fan-out has already happened.
type Relay struct {
	hub     *Hub
	queue   messagequeue.Queue
	prefix  string
	origin  string
	breaker *resilience.Breaker
	cancels []func()
}

// AttachRelay connects the hub to other instances through queue. breaker
// may be nil.
func (h *Hub) AttachRelay(queue messagequeue.Queue, prefix string, breaker *resilience.Breaker) *Relay {
	if prefix == "" {
		prefix = "flowspace"
	}
	r := &Relay{
		hub:     h,
		queue:   queue,
		prefix:  prefix,
		origin:  uuid.New().String(),
		breaker: breaker,
	}
	h.relay = r
	return r
}

// Start subscribes to the other instances' traffic.
func (r *Relay) Start(ctx context.Context) error {
	for _, kind := range []string{roomSubject, userSubject} {
		subject := fmt.Sprintf("%s.%s.*", r.prefix, kind)
		cancel, err := r.queue.Subscribe(ctx, subject, r.handle)
		if err != nil {
			r.Stop()
			return fmt.Errorf("relay subscribe %s: %w", subject, err)
		}
		r.cancels = append(r.cancels, cancel)
	}
	slog.Info("realtime relay started", "prefix", r.prefix, "origin", r.origin)
	return nil
}

// Stop cancels the subscriptions.
func (r *Relay) Stop() {
	for _, cancel := range r.cancels {
		cancel()
	}
	r.cancels = nil
}

func (r *Relay) publish(ctx context.Context, kind, id, except string, frame []byte) {
	if r == nil {
		return
	}
	r.send(ctx, kind, id, relayMsg{Origin: r.origin, Except: except, Frame: frame})
}

func (r *Relay) publishEviction(ctx context.Context, workspaceID, userID string) {
	if r == nil {
		return
	}
	r.send(ctx, roomSubject, workspaceID, relayMsg{Origin: r.origin, Evict: userID})
}

func (r *Relay) send(ctx context.Context, kind, id string, msg relayMsg) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.ErrorContext(ctx, "relay encode", "error", err)
		return
	}
	subject := r.prefix + "." + kind + "." + id
	send := func() error { return r.queue.Publish(ctx, subject, data) }
	if r.breaker != nil {
		err = r.breaker.Execute(send)
	} else {
		err = send()
	}
	if err != nil {
		slog.WarnContext(ctx, "relay publish failed", "subject", subject, "error", err)
	}
}

func (r *Relay) handle(ctx context.Context, subject string, data []byte) error {
	var msg relayMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("relay decode: %w", err)
	}
	if msg.Origin == r.origin {
		return nil
	}
	kind, id, ok := r.parseSubject(subject)
	if !ok {
		return fmt.Errorf("relay: unexpected subject %q", subject)
	}
	switch kind {
	case roomSubject:
		if msg.Evict != "" {
			if left := r.hub.evictLocal(ctx, id, msg.Evict); left != nil {
				r.hub.BroadcastToRoom(ctx, id, "", left)
			}
			return nil
		}
		r.hub.deliverRoom(ctx, id, msg.Except, msg.Frame)
	case userSubject:
		r.hub.deliverUser(ctx, id, msg.Frame)
	}
	return nil
}

func (r *Relay) parseSubject(subject string) (kind, id string, ok bool) {
	rest, found := strings.CutPrefix(subject, r.prefix+".")
	if !found {
		return "", "", false
	}
	kind, id, found = strings.Cut(rest, ".")
	if !found || id == "" {
		return "", "", false
	}
	return kind, id, kind == roomSubject || kind == userSubject
}
