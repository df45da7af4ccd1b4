package ws

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/templehubsakshi/FlowSpace/internal/domain/event"
	"github.com/templehubsakshi/FlowSpace/internal/port/messagequeue"
	"github.com/templehubsakshi/FlowSpace/internal/resilience"
)

// memQueue delivers published messages synchronously to matching
// subscriptions. "*" matches one subject token.
type memQueue struct {
	mu   sync.Mutex
	subs map[int]memSub
	next int
	fail bool
}

type memSub struct {
	pattern string
	handler messagequeue.Handler
}

func newMemQueue() *memQueue { return &memQueue{subs: map[int]memSub{}} }

func (q *memQueue) Publish(ctx context.Context, subject string, data []byte) error {
	q.mu.Lock()
	if q.fail {
		q.mu.Unlock()
		return errors.New("queue down")
	}
	var targets []messagequeue.Handler
	for _, s := range q.subs {
		if subjectMatches(s.pattern, subject) {
			targets = append(targets, s.handler)
		}
	}
	q.mu.Unlock()
	for _, h := range targets {
		_ = h(ctx, subject, data)
	}
	return nil
}

func (q *memQueue) Subscribe(_ context.Context, subject string, h messagequeue.Handler) (func(), error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	id := q.next
	q.next++
	q.subs[id] = memSub{pattern: subject, handler: h}
	return func() {
		q.mu.Lock()
		delete(q.subs, id)
		q.mu.Unlock()
	}, nil
}

func subjectMatches(pattern, subject string) bool {
	p := strings.Split(pattern, ".")
	s := strings.Split(subject, ".")
	if len(p) != len(s) {
		return false
	}
	for i := range p {
		if p[i] != "*" && p[i] != s[i] {
			return false
		}
	}
	return true
}

// joinedConn registers a writer-less connection in a room; frames pile up
// in its send buffer for inspection.
func joinedConn(h *Hub, workspaceID string, c *conn) *conn {
	h.register(c)
	h.mu.Lock()
	h.addLocked(c, workspaceID)
	h.mu.Unlock()
	return c
}

func drain(c *conn) [][]byte {
	var frames [][]byte
	for {
		select {
		case f := <-c.send:
			frames = append(frames, f)
		default:
			return frames
		}
	}
}

func TestRelay_FansOutAcrossInstances(t *testing.T) {
	q := newMemQueue()
	seq := NewMemorySequencer() // stands in for the shared Redis counter
	hubA := NewHub(Options{}, testMembers(), seq)
	hubB := NewHub(Options{}, testMembers(), seq)
	relayA := hubA.AttachRelay(q, "test", nil)
	relayB := hubB.AttachRelay(q, "test", nil)
	ctx := context.Background()
	for _, r := range []*Relay{relayA, relayB} {
		if err := r.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer r.Stop()
	}

	onA := joinedConn(hubA, "ws1", newConn("a", ada, nil, 8))
	onB := joinedConn(hubB, "ws1", newConn("b", bob, nil, 8))
	elsewhere := joinedConn(hubB, "ws2", newConn("c", carol, nil, 8))

	hubA.BroadcastToRoom(ctx, "ws1", "", &event.TaskDeleted{WorkspaceID: "ws1", TaskID: "t1", DeletedBy: "Ada"})

	local, remote := drain(onA), drain(onB)
	if len(local) != 1 {
		t.Fatalf("local frames = %d, want 1 (own relay echo must be ignored)", len(local))
	}
	if len(remote) != 1 || string(remote[0]) != string(local[0]) {
		t.Fatalf("remote = %q, want the local frame %q", remote, local)
	}
	env, _, err := event.Decode(remote[0])
	if err != nil || env.Seq != 1 {
		t.Errorf("remote envelope = %+v, %v; want seq 1", env, err)
	}
	if n := len(drain(elsewhere)); n != 0 {
		t.Errorf("other room got %d frames", n)
	}
}

func TestRelay_ExceptSenderOnEveryInstance(t *testing.T) {
	q := newMemQueue()
	hubA := NewHub(Options{}, testMembers(), NewMemorySequencer())
	hubB := NewHub(Options{}, testMembers(), NewMemorySequencer())
	hubA.AttachRelay(q, "test", nil)
	relayB := hubB.AttachRelay(q, "test", nil)
	if err := relayB.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer relayB.Stop()

	sender := joinedConn(hubA, "ws1", newConn("a", ada, nil, 8))
	other := joinedConn(hubB, "ws1", newConn("b", bob, nil, 8))

	hubA.BroadcastToRoom(context.Background(), "ws1", sender.id, &event.CommentTyping{WorkspaceID: "ws1", TaskID: "t1"})
	if n := len(drain(sender)); n != 0 {
		t.Errorf("sender got %d frames", n)
	}
	if n := len(drain(other)); n != 1 {
		t.Errorf("remote member got %d frames, want 1", n)
	}
}

func TestRelay_SendToUserAcrossInstances(t *testing.T) {
	q := newMemQueue()
	hubA := NewHub(Options{}, testMembers(), NewMemorySequencer())
	hubB := NewHub(Options{}, testMembers(), NewMemorySequencer())
	hubA.AttachRelay(q, "test", nil)
	relayB := hubB.AttachRelay(q, "test", nil)
	if err := relayB.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer relayB.Stop()

	// Bob is connected to instance B only and has not joined any room.
	c := newConn("b", bob, nil, 8)
	hubB.register(c)

	hubA.SendToUser(context.Background(), bob.ID, &event.Error{Message: "hi"})
	if n := len(drain(c)); n != 1 {
		t.Errorf("frames = %d, want 1", n)
	}
}

func TestRelay_EvictsOnEveryInstance(t *testing.T) {
	q := newMemQueue()
	hubA := NewHub(Options{}, testMembers(), NewMemorySequencer())
	hubB := NewHub(Options{}, testMembers(), NewMemorySequencer())
	relayA := hubA.AttachRelay(q, "test", nil)
	relayB := hubB.AttachRelay(q, "test", nil)
	ctx := context.Background()
	for _, r := range []*Relay{relayA, relayB} {
		if err := r.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer r.Stop()
	}

	// Bob is only connected to instance B; Ada watches from A.
	watcher := joinedConn(hubA, "ws1", newConn("a", ada, nil, 8))
	evicted := joinedConn(hubB, "ws1", newConn("b", bob, nil, 8))

	hubA.EvictFromRoom(ctx, "ws1", bob.ID)

	frames := drain(evicted)
	if len(frames) != 1 {
		t.Fatalf("evicted frames = %d, want 1", len(frames))
	}
	if env, _, err := event.Decode(frames[0]); err != nil || env.Type != event.TypeMemberRemoved {
		t.Errorf("evicted got %+v, %v; want member removed", env, err)
	}
	if users := hubB.OnlineUsers("ws1"); len(users) != 0 {
		t.Errorf("instance B still lists %+v", users)
	}

	frames = drain(watcher)
	if len(frames) != 1 {
		t.Fatalf("watcher frames = %d, want 1", len(frames))
	}
	env, p, err := event.Decode(frames[0])
	if err != nil || env.Type != event.TypeUserLeft || p.(*event.UserLeft).UserID != bob.ID {
		t.Errorf("watcher got %+v, %v", env, err)
	}
}

func TestRelay_BreakerStopsPublishing(t *testing.T) {
	q := newMemQueue()
	q.fail = true
	hub := NewHub(Options{}, testMembers(), NewMemorySequencer())
	breaker := resilience.NewBreaker("relay", 2, time.Minute)
	hub.AttachRelay(q, "test", breaker)
	local := joinedConn(hub, "ws1", newConn("a", ada, nil, 8))

	for range 3 {
		hub.BroadcastToRoom(context.Background(), "ws1", "", &event.CommentTyping{WorkspaceID: "ws1"})
	}
	if got := breaker.State(); got != resilience.StateOpen {
		t.Errorf("breaker = %v, want open", got)
	}
	if n := len(drain(local)); n != 3 {
		t.Errorf("local delivery = %d, want 3 despite relay failure", n)
	}
}

func TestRelay_ParseSubject(t *testing.T) {
	r := &Relay{prefix: "fs"}
	tests := []struct {
		subject  string
		kind, id string
		ok       bool
	}{
		{"fs.room.ws1", roomSubject, "ws1", true},
		{"fs.user.u1", userSubject, "u1", true},
		{"fs.other.x", "", "", false},
		{"fs.room.", "", "", false},
		{"other.room.ws1", "", "", false},
	}
	for _, tt := range tests {
		kind, id, ok := r.parseSubject(tt.subject)
		if ok != tt.ok || (ok && (kind != tt.kind || id != tt.id)) {
			t.Errorf("parseSubject(%q) = %q, %q, %v; want %q, %q, %v", tt.subject, kind, id, ok, tt.kind, tt.id, tt.ok)
		}
	}
}

func TestMemorySequencer(t *testing.T) {
	s := NewMemorySequencer()
	ctx := context.Background()
	for want := uint64(1); want <= 3; want++ {
		if got, _ := s.Next(ctx, "ws1"); got != want {
			t.Errorf("Next = %d, want %d", got, want)
		}
	}
	if got, _ := s.Next(ctx, "ws2"); got != 1 {
		t.Errorf("other workspace Next = %d, want 1", got)
	}
}
