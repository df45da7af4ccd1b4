package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/templehubsakshi/FlowSpace/internal/adapter/memstore"
	"github.com/templehubsakshi/FlowSpace/internal/domain/event"
	"github.com/templehubsakshi/FlowSpace/internal/domain/user"
	"github.com/templehubsakshi/FlowSpace/internal/domain/workspace"
)

// mockBroadcaster records what the services push to users and rooms.
type mockBroadcaster struct {
	mu     sync.Mutex
	toUser map[string][]event.Payload
	toRoom map[string][]event.Payload
	// evicted records workspaceID/userID pairs taken out of rooms.
	evicted []string
}

func newMockBroadcaster() *mockBroadcaster {
	return &mockBroadcaster{toUser: map[string][]event.Payload{}, toRoom: map[string][]event.Payload{}}
}

func (b *mockBroadcaster) BroadcastToRoom(_ context.Context, workspaceID, _ string, p event.Payload) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.toRoom[workspaceID] = append(b.toRoom[workspaceID], p)
}

func (b *mockBroadcaster) SendToUser(_ context.Context, userID string, p event.Payload) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.toUser[userID] = append(b.toUser[userID], p)
}

func (b *mockBroadcaster) EvictFromRoom(_ context.Context, workspaceID, userID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.evicted = append(b.evicted, workspaceID+"/"+userID)
}

func (b *mockBroadcaster) evictions() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.evicted...)
}

func (b *mockBroadcaster) userEvents(userID string) []event.Payload {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]event.Payload(nil), b.toUser[userID]...)
}

// fixture is a workspace with an owner, a plain member and an outsider,
// wired to services backed by the in-memory store.
type fixture struct {
	store     *memstore.Store
	bus       *mockBroadcaster
	members   *MembershipService
	notify    *NotificationService
	tasks     *TaskService
	spaces    *WorkspaceService
	owner     *user.Ref
	member    *user.Ref
	outsider  *user.Ref
	workspace *workspace.Workspace
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()
	f := &fixture{store: store, bus: newMockBroadcaster()}
	f.members = NewMembershipService(store, nil, time.Minute)
	f.notify = NewNotificationService(store, 30*24*time.Hour)
	f.notify.SetBroadcaster(f.bus)
	f.tasks = NewTaskService(store, f.members, f.notify, nil, 0)
	f.spaces = NewWorkspaceService(store, f.members, f.notify)

	f.owner = mustUser(t, store, "owner", "Olivia")
	f.member = mustUser(t, store, "member", "Max")
	f.outsider = mustUser(t, store, "outsider", "Otto")

	ws, err := f.spaces.Create(ctx, f.owner, workspace.CreateRequest{Name: "Launch"})
	if err != nil {
		t.Fatalf("create workspace: %v", err)
	}
	f.workspace = ws
	if _, err := f.spaces.AddMember(ctx, f.owner, ws.ID, workspace.AddMemberRequest{Email: "member@example.com"}); err != nil {
		t.Fatalf("add member: %v", err)
	}
	// Drop the invite so tests only see what they caused.
	f.bus = newMockBroadcaster()
	f.notify.SetBroadcaster(f.bus)
	f.spaces.SetEvictor(f.bus)
	return f
}

func mustUser(t *testing.T, store *memstore.Store, id, name string) *user.Ref {
	t.Helper()
	u := &user.User{ID: id, Email: id + "@example.com", Name: name, PasswordHash: "x"}
	if err := store.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("create user %s: %v", id, err)
	}
	return u.Ref()
}
