package session_test

import (
	"context"
	"errors"
	"reflect"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/templehubsakshi/FlowSpace/internal/client/api"
	"github.com/templehubsakshi/FlowSpace/internal/client/board"
	"github.com/templehubsakshi/FlowSpace/internal/client/clienttest"
	"github.com/templehubsakshi/FlowSpace/internal/client/realtime"
	"github.com/templehubsakshi/FlowSpace/internal/client/session"
	"github.com/templehubsakshi/FlowSpace/internal/domain"
	"github.com/templehubsakshi/FlowSpace/internal/domain/event"
	"github.com/templehubsakshi/FlowSpace/internal/domain/task"
)

// fakeAPI serves snap and confirms every move unless moveErr is set.
type fakeAPI struct {
	mu         sync.Mutex
	snap       task.Board
	boardCalls int
	moveErr    error
}

func (f *fakeAPI) Board(context.Context, string) (task.Board, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.boardCalls++
	return f.snap, nil
}

func (f *fakeAPI) MoveTask(_ context.Context, id string, req task.MoveRequest) (*task.Task, error) {
	if f.moveErr != nil {
		return nil, f.moveErr
	}
	return &task.Task{ID: id, WorkspaceID: "ws1", Status: req.NewStatus, Order: req.NewOrder, Version: 2}, nil
}

func (f *fakeAPI) CreateTask(_ context.Context, req task.CreateRequest) (*task.Task, error) {
	return &task.Task{ID: "new", WorkspaceID: req.WorkspaceID, Title: req.Title, Status: task.StatusTodo, Order: 9}, nil
}

func (f *fakeAPI) UpdateTask(_ context.Context, id string, req task.UpdateRequest) (*task.Task, error) {
	return &task.Task{ID: id, WorkspaceID: "ws1", Title: *req.Title, Status: task.StatusTodo}, nil
}

func (f *fakeAPI) DeleteTask(_ context.Context, id string) (*task.Task, error) {
	return &task.Task{ID: id}, nil
}

func (f *fakeAPI) AddComment(_ context.Context, _ string, req task.CommentRequest) (*task.Comment, error) {
	return &task.Comment{ID: "c1", Text: req.Text}, nil
}

// fakeConn records what the session sends and lets the test push events.
type fakeConn struct {
	mu     sync.Mutex
	joined string
	sent   []event.Payload
	events chan realtime.Event
}

func newFakeConn() *fakeConn { return &fakeConn{events: make(chan realtime.Event, 8)} }

func (c *fakeConn) Join(_ context.Context, ws string) error {
	c.joined = ws
	return nil
}

func (c *fakeConn) Send(_ context.Context, p event.Payload) error {
	c.mu.Lock()
	c.sent = append(c.sent, p)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Events() <-chan realtime.Event { return c.events }

func (c *fakeConn) sentTypes() []event.Type {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []event.Type
	for _, p := range c.sent {
		out = append(out, p.EventType())
	}
	return out
}

func testBoard() task.Board {
	return task.Board{
		task.StatusTodo: {
			{ID: "a", WorkspaceID: "ws1", Status: task.StatusTodo, Order: 0},
			{ID: "b", WorkspaceID: "ws1", Status: task.StatusTodo, Order: 1},
		},
		task.StatusDone: {{ID: "c", WorkspaceID: "ws1", Status: task.StatusDone, Order: 0}},
	}
}

func open(t *testing.T, f *fakeAPI) (*session.Session, *fakeConn) {
	t.Helper()
	conn := newFakeConn()
	s, err := session.Open(context.Background(), f, conn, "ws1")
	if err != nil {
		t.Fatal(err)
	}
	if conn.joined != "ws1" {
		t.Fatalf("joined %q, want ws1", conn.joined)
	}
	return s, conn
}

func TestSession_MoveAnnouncesConfirmedMove(t *testing.T) {
	s, conn := open(t, &fakeAPI{snap: testBoard()})

	got, err := s.Move(context.Background(), "a", task.StatusDone, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != task.StatusDone {
		t.Errorf("status = %s, want done", got.Status)
	}
	if len(conn.sent) != 1 {
		t.Fatalf("sent %v, want one intent", conn.sentTypes())
	}
	mv, ok := conn.sent[0].(*event.TaskMove)
	if !ok || mv.OldStatus != task.StatusTodo || mv.NewStatus != task.StatusDone || mv.NewOrder != 0 {
		t.Errorf("intent = %+v", conn.sent[0])
	}
}

func TestSession_RejectedMoveIsNotAnnounced(t *testing.T) {
	s, conn := open(t, &fakeAPI{snap: testBoard(), moveErr: &api.Error{Status: 403, Message: "not a member"}})
	before := s.Board().Snapshot()

	var changes int
	s.OnChange = func(*board.Board) { changes++ }
	_, err := s.Move(context.Background(), "b", task.StatusDone, 0)
	if !errors.Is(err, board.ErrReconciliation) || !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("err = %v, want reconciliation failure wrapping forbidden", err)
	}
	if len(conn.sent) != 0 {
		t.Errorf("sent %v after a rejected move", conn.sentTypes())
	}
	if !reflect.DeepEqual(s.Board().Snapshot(), before) {
		t.Error("board not restored")
	}
	if changes == 0 {
		t.Error("OnChange not called after rollback")
	}
}

func TestSession_LocalEditsAreAnnounced(t *testing.T) {
	s, conn := open(t, &fakeAPI{snap: testBoard()})
	ctx := context.Background()

	if _, err := s.Create(ctx, task.CreateRequest{Title: "new one"}); err != nil {
		t.Fatal(err)
	}
	title := "renamed"
	if _, err := s.Update(ctx, "a", task.UpdateRequest{Title: &title}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Comment(ctx, "b", task.CommentRequest{Text: "hi"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "c"); err != nil {
		t.Fatal(err)
	}
	if err := s.Editing(ctx, "a", true); err != nil {
		t.Fatal(err)
	}
	if err := s.Typing(ctx, "a"); err != nil {
		t.Fatal(err)
	}

	want := []event.Type{
		event.TypeTaskCreate, event.TypeTaskUpdate, event.TypeCommentAdd,
		event.TypeTaskDelete, event.TypeEditingStart, event.TypeCommentTyping,
	}
	if got := conn.sentTypes(); !slices.Equal(got, want) {
		t.Errorf("sent = %v, want %v", got, want)
	}

	b := s.Board()
	if _, ok := b.Get("new"); !ok {
		t.Error("created task missing from local board")
	}
	if a, _ := b.Get("a"); a.Title != "renamed" {
		t.Errorf("a.Title = %q", a.Title)
	}
	if _, ok := b.Get("c"); ok {
		t.Error("deleted task still on board")
	}
}

func TestSession_RunAppliesAndResyncs(t *testing.T) {
	f := &fakeAPI{snap: testBoard()}
	s, conn := open(t, f)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	conn.events <- realtime.Event{
		Envelope: event.Envelope{Type: event.TypeTaskMoved, Seq: 1},
		Payload:  &event.TaskMoved{WorkspaceID: "ws1", TaskID: "b", OldStatus: task.StatusTodo, NewStatus: task.StatusDone, NewOrder: 0},
	}

	f.mu.Lock()
	f.snap = task.Board{task.StatusInProgress: {{ID: "z", WorkspaceID: "ws1", Status: task.StatusInProgress}}}
	f.mu.Unlock()
	conn.events <- realtime.Event{Reconnected: true}
	close(conn.events)

	if err := <-done; err != nil {
		t.Fatalf("Run = %v", err)
	}
	cancel()

	b := s.Board()
	if b.Len() != 1 {
		t.Errorf("board has %d tasks after resync, want 1", b.Len())
	}
	if _, ok := b.Get("z"); !ok {
		t.Error("resync did not load the server board")
	}
	if f.boardCalls != 2 {
		t.Errorf("board fetched %d times, want 2", f.boardCalls)
	}
}

func TestSession_GapTriggersResync(t *testing.T) {
	f := &fakeAPI{snap: testBoard()}
	s, conn := open(t, f)

	conn.events <- realtime.Event{
		Envelope: event.Envelope{Type: event.TypeTaskDeleted, Seq: 7},
		Payload:  &event.TaskDeleted{WorkspaceID: "ws1", TaskID: "a"},
		Gap:      true,
	}
	close(conn.events)
	if err := s.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.boardCalls != 2 {
		t.Errorf("board fetched %d times, want 2", f.boardCalls)
	}
	// The gapped event is covered by the reload, not applied on top of it.
	if _, ok := s.Board().Get("a"); !ok {
		t.Error("task a missing after reload")
	}
}

func TestSession_RunStopsWhenRemoved(t *testing.T) {
	f := &fakeAPI{snap: testBoard()}
	s, conn := open(t, f)

	conn.events <- realtime.Event{
		Envelope: event.Envelope{Type: event.TypeMemberRemoved},
		Payload:  &event.MemberRemoved{WorkspaceID: "other", UserID: "u1"},
	}
	conn.events <- realtime.Event{
		Envelope: event.Envelope{Type: event.TypeMemberRemoved},
		Payload:  &event.MemberRemoved{WorkspaceID: "ws1", UserID: "u1"},
	}
	if err := s.Run(context.Background()); !errors.Is(err, session.ErrRemoved) {
		t.Errorf("Run = %v, want ErrRemoved", err)
	}
}

// Two members on a real server: a move by one shows up on the other's
// board in the same place.
func TestSession_TwoMembersConverge(t *testing.T) {
	srv := clienttest.NewServer(t)
	ada, adaTok := srv.User(t, "ada")
	bob, bobTok := srv.User(t, "bob")
	wsID := srv.Workspace(t, ada, bob)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	adaAPI := api.New(srv.URL, api.WithToken(adaTok))
	for _, title := range []string{"one", "two", "three"} {
		if _, err := adaAPI.CreateTask(ctx, task.CreateRequest{WorkspaceID: wsID, Title: title, Status: task.StatusInProgress}); err != nil {
			t.Fatal(err)
		}
	}
	drag, err := adaAPI.CreateTask(ctx, task.CreateRequest{WorkspaceID: wsID, Title: "drag me"})
	if err != nil {
		t.Fatal(err)
	}

	openMember := func(token string) (*session.Session, chan *board.Board) {
		rt, err := realtime.Dial(ctx, srv.URL, realtime.Options{Token: token})
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { _ = rt.Close() })
		go func() { _ = rt.Run(ctx) }()
		s, err := session.Open(ctx, api.New(srv.URL, api.WithToken(token)), rt, wsID)
		if err != nil {
			t.Fatal(err)
		}
		changes := make(chan *board.Board, 16)
		s.OnChange = func(b *board.Board) { changes <- b }
		go func() { _ = s.Run(ctx) }()
		return s, changes
	}
	adaSess, _ := openMember(adaTok)
	bobSess, bobChanges := openMember(bobTok)

	// Wait until both connections sit in the room.
	deadline := time.Now().Add(3 * time.Second)
	for len(srv.Hub.OnlineUsers(wsID)) < 2 {
		if time.Now().After(deadline) {
			t.Fatal("members never joined")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if _, err := adaSess.Move(ctx, drag.ID, task.StatusInProgress, 1); err != nil {
		t.Fatalf("Move: %v", err)
	}

	select {
	case <-bobChanges:
	case <-ctx.Done():
		t.Fatal("bob never saw the move")
	}
	want := adaSess.Board().Column(task.StatusInProgress)
	got := bobSess.Board().Column(task.StatusInProgress)
	if len(got) != 4 || got[1].ID != drag.ID {
		t.Fatalf("bob's column = %v, want drag me at index 1", titles(got))
	}
	for i := range want {
		if want[i].ID != got[i].ID || want[i].Order != got[i].Order {
			t.Errorf("index %d: ada %s/%d, bob %s/%d", i, want[i].Title, want[i].Order, got[i].Title, got[i].Order)
		}
	}
}

func titles(ts []task.Task) []string {
	var out []string
	for _, t := range ts {
		out = append(out, t.Title)
	}
	return out
}
