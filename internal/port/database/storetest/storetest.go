// Package storetest holds the behavioural suite every database.Store adapter must pass.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/templehubsakshi/FlowSpace/internal/domain"
	"github.com/templehubsakshi/FlowSpace/internal/domain/notification"
	"github.com/templehubsakshi/FlowSpace/internal/domain/task"
	"github.com/templehubsakshi/FlowSpace/internal/domain/user"
	"github.com/templehubsakshi/FlowSpace/internal/domain/workspace"
	"github.com/templehubsakshi/FlowSpace/internal/port/database"
)

// Run executes the suite. newStore must return a store that is safe to
// share between subtests; all fixtures use fresh ids.
func Run(t *testing.T, newStore func(t *testing.T) database.Store) {
	t.Helper()

	t.Run("UserEmailUnique", func(t *testing.T) { testUserEmailUnique(t, newStore(t)) })
	t.Run("WorkspaceOwnerMembership", func(t *testing.T) { testWorkspaceOwner(t, newStore(t)) })
	t.Run("CreateAssignsNextOrder", func(t *testing.T) { testCreateOrder(t, newStore(t)) })
	t.Run("CrossColumnMoveRightShifts", func(t *testing.T) { testRightShift(t, newStore(t)) })
	t.Run("SameColumnMoveDoesNotShift", func(t *testing.T) { testSameColumnMove(t, newStore(t)) })
	t.Run("StaleVersionConflicts", func(t *testing.T) { testStaleVersion(t, newStore(t)) })
	t.Run("MissingTask", func(t *testing.T) { testMissingTask(t, newStore(t)) })
	t.Run("Comments", func(t *testing.T) { testComments(t, newStore(t)) })
	t.Run("Notifications", func(t *testing.T) { testNotifications(t, newStore(t)) })
	t.Run("WorkspaceLifecycle", func(t *testing.T) { testWorkspaceLifecycle(t, newStore(t)) })
	t.Run("NotificationCleanup", func(t *testing.T) { testNotificationCleanup(t, newStore(t)) })
}

// Fixture is a user with a workspace of their own.
type Fixture struct {
	User      *user.User
	Workspace *workspace.Workspace
}

// Seed creates a user and a workspace owned by them.
func Seed(t *testing.T, s database.Store) Fixture {
	t.Helper()
	ctx := context.Background()
	u := &user.User{ID: uuid.NewString(), Name: "Ada", Email: uuid.NewString() + "@example.com", PasswordHash: "x"}
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	ws := &workspace.Workspace{ID: uuid.NewString(), Name: "Board", OwnerID: u.ID}
	if err := s.CreateWorkspace(ctx, ws); err != nil {
		t.Fatalf("create workspace: %v", err)
	}
	return Fixture{User: u, Workspace: ws}
}

// NewTask inserts a task in the given column and returns it.
func NewTask(t *testing.T, s database.Store, f Fixture, title string, status task.Status) *task.Task {
	t.Helper()
	tk := &task.Task{
		ID: uuid.NewString(), WorkspaceID: f.Workspace.ID, Title: title,
		Status: status, Priority: task.PriorityMedium, CreatorID: f.User.ID,
	}
	if err := s.CreateTask(context.Background(), tk); err != nil {
		t.Fatalf("create task %s: %v", title, err)
	}
	return tk
}

func orders(t *testing.T, s database.Store, ids ...string) []int {
	t.Helper()
	out := make([]int, len(ids))
	for i, id := range ids {
		tk, err := s.GetTask(context.Background(), id)
		if err != nil {
			t.Fatalf("get task: %v", err)
		}
		out[i] = tk.Order
	}
	return out
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func testUserEmailUnique(t *testing.T, s database.Store) {
	ctx := context.Background()
	email := uuid.NewString() + "@example.com"
	if err := s.CreateUser(ctx, &user.User{ID: uuid.NewString(), Name: "A", Email: email, PasswordHash: "x"}); err != nil {
		t.Fatal(err)
	}
	err := s.CreateUser(ctx, &user.User{ID: uuid.NewString(), Name: "B", Email: email, PasswordHash: "x"})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate email, got %v", err)
	}
	got, err := s.GetUserByEmail(ctx, email)
	if err != nil || got.Name != "A" {
		t.Fatalf("GetUserByEmail = %+v, %v", got, err)
	}
	if _, err := s.GetUser(ctx, uuid.NewString()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testWorkspaceOwner(t *testing.T, s database.Store) {
	ctx := context.Background()
	f := Seed(t, s)

	m, err := s.GetMember(ctx, f.Workspace.ID, f.User.ID)
	if err != nil {
		t.Fatal(err)
	}
	if m.Role != workspace.RoleOwner || m.User == nil || m.User.Name != "Ada" {
		t.Fatalf("unexpected owner membership %+v", m)
	}

	other := &user.User{ID: uuid.NewString(), Name: "Bob", Email: uuid.NewString() + "@example.com", PasswordHash: "x"}
	_ = s.CreateUser(ctx, other)
	if err := s.AddMember(ctx, &workspace.Member{WorkspaceID: f.Workspace.ID, UserID: other.ID, Role: workspace.RoleMember}); err != nil {
		t.Fatal(err)
	}
	err = s.AddMember(ctx, &workspace.Member{WorkspaceID: f.Workspace.ID, UserID: other.ID, Role: workspace.RoleAdmin})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate member, got %v", err)
	}

	members, err := s.ListMembers(ctx, f.Workspace.ID)
	if err != nil || len(members) != 2 {
		t.Fatalf("ListMembers = %d members, %v", len(members), err)
	}
	wss, err := s.ListWorkspacesForUser(ctx, other.ID)
	if err != nil || len(wss) != 1 || wss[0].ID != f.Workspace.ID {
		t.Fatalf("ListWorkspacesForUser = %+v, %v", wss, err)
	}
	if _, err := s.GetMember(ctx, f.Workspace.ID, uuid.NewString()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for non-member, got %v", err)
	}
}

func testCreateOrder(t *testing.T, s database.Store) {
	f := Seed(t, s)
	a := NewTask(t, s, f, "A", task.StatusTodo)
	b := NewTask(t, s, f, "B", task.StatusTodo)
	c := NewTask(t, s, f, "C", task.StatusDone)

	if a.Order != 0 || b.Order != 1 {
		t.Fatalf("todo orders = %d,%d, want 0,1", a.Order, b.Order)
	}
	if c.Order != 0 {
		t.Fatalf("first done order = %d, want 0", c.Order)
	}
	if a.Version != 1 {
		t.Fatalf("new task version = %d, want 1", a.Version)
	}
	if a.Creator == nil || a.Creator.ID != f.User.ID {
		t.Fatalf("creator not populated: %+v", a.Creator)
	}
}

func testRightShift(t *testing.T, s database.Store) {
	ctx := context.Background()
	f := Seed(t, s)
	a := NewTask(t, s, f, "A", task.StatusTodo)
	b := NewTask(t, s, f, "B", task.StatusTodo)
	c := NewTask(t, s, f, "C", task.StatusTodo)
	d := NewTask(t, s, f, "D", task.StatusInProgress)
	e := NewTask(t, s, f, "E", task.StatusInProgress)

	old := d.Move(task.MoveRequest{NewStatus: task.StatusTodo, NewOrder: 1})
	if err := s.MoveTask(ctx, d, old); err != nil {
		t.Fatal(err)
	}

	if got := orders(t, s, a.ID, b.ID, c.ID, d.ID); !equalInts(got, []int{0, 2, 3, 1}) {
		t.Fatalf("A,B,C,D orders = %v, want [0 2 3 1]", got)
	}
	// The source column keeps its gap.
	if got := orders(t, s, e.ID); !equalInts(got, []int{1}) {
		t.Fatalf("E order = %v, want [1]", got)
	}
	moved, _ := s.GetTask(ctx, d.ID)
	if moved.Status != task.StatusTodo || moved.Version != 2 {
		t.Fatalf("moved task = %s v%d", moved.Status, moved.Version)
	}
}

func testSameColumnMove(t *testing.T, s database.Store) {
	ctx := context.Background()
	f := Seed(t, s)
	a := NewTask(t, s, f, "A", task.StatusTodo)
	b := NewTask(t, s, f, "B", task.StatusTodo)
	c := NewTask(t, s, f, "C", task.StatusTodo)

	old := c.Move(task.MoveRequest{NewStatus: task.StatusTodo, NewOrder: 0})
	if err := s.MoveTask(ctx, c, old); err != nil {
		t.Fatal(err)
	}
	if got := orders(t, s, a.ID, b.ID, c.ID); !equalInts(got, []int{0, 1, 0}) {
		t.Fatalf("orders = %v, want [0 1 0]", got)
	}
}

func testStaleVersion(t *testing.T, s database.Store) {
	ctx := context.Background()
	f := Seed(t, s)
	a := NewTask(t, s, f, "A", task.StatusTodo)

	first, _ := s.GetTask(ctx, a.ID)
	second, _ := s.GetTask(ctx, a.ID)

	first.Title = "first"
	if err := s.UpdateTask(ctx, first); err != nil {
		t.Fatal(err)
	}
	if first.Version != 2 {
		t.Fatalf("version after update = %d, want 2", first.Version)
	}

	old := second.Move(task.MoveRequest{NewStatus: task.StatusDone, NewOrder: 0})
	if err := s.MoveTask(ctx, second, old); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict for stale move, got %v", err)
	}
	second.Title = "second"
	if err := s.UpdateTask(ctx, second); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict for stale update, got %v", err)
	}

	got, _ := s.GetTask(ctx, a.ID)
	if got.Title != "first" || got.Status != task.StatusTodo {
		t.Fatalf("stale writes leaked: %+v", got)
	}
}

func testMissingTask(t *testing.T, s database.Store) {
	ctx := context.Background()
	ghost := &task.Task{ID: uuid.NewString(), WorkspaceID: uuid.NewString(), Status: task.StatusDone, Version: 1}
	if err := s.MoveTask(ctx, ghost, task.StatusTodo); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("move: expected ErrNotFound, got %v", err)
	}
	if err := s.DeleteTask(ctx, ghost.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("delete: expected ErrNotFound, got %v", err)
	}
	if _, err := s.GetTask(ctx, ghost.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("get: expected ErrNotFound, got %v", err)
	}
}

func testComments(t *testing.T, s database.Store) {
	ctx := context.Background()
	f := Seed(t, s)
	a := NewTask(t, s, f, "A", task.StatusTodo)

	c := &task.Comment{ID: uuid.NewString(), AuthorID: f.User.ID, Text: "looks good"}
	if err := s.AddComment(ctx, a.ID, c); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetTask(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Comments) != 1 || got.Comments[0].Text != "looks good" || got.Comments[0].Author == nil {
		t.Fatalf("unexpected comments %+v", got.Comments)
	}

	if err := s.DeleteComment(ctx, a.ID, c.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteComment(ctx, a.ID, c.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	if err := s.AddComment(ctx, uuid.NewString(), &task.Comment{ID: uuid.NewString(), AuthorID: f.User.ID, Text: "x"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing task, got %v", err)
	}
}

func testNotifications(t *testing.T, s database.Store) {
	ctx := context.Background()
	f := Seed(t, s)
	sender := Seed(t, s).User

	old := &notification.Notification{
		ID: uuid.NewString(), RecipientID: f.User.ID, SenderID: sender.ID,
		Type: notification.TypeTaskAssigned, Message: "old", CreatedAt: time.Now().Add(-40 * 24 * time.Hour),
	}
	fresh := &notification.Notification{
		ID: uuid.NewString(), RecipientID: f.User.ID, SenderID: sender.ID,
		Type: notification.TypeTaskMentioned, Message: "fresh",
	}
	for _, n := range []*notification.Notification{old, fresh} {
		if err := s.CreateNotification(ctx, n); err != nil {
			t.Fatal(err)
		}
	}

	list, err := s.ListNotifications(ctx, f.User.ID, notification.ListFilter{})
	if err != nil || len(list) != 2 || list[0].ID != fresh.ID {
		t.Fatalf("ListNotifications = %+v, %v", list, err)
	}
	if list[0].Sender == nil || list[0].Sender.ID != sender.ID {
		t.Fatalf("sender not populated: %+v", list[0].Sender)
	}

	if err := s.MarkNotificationRead(ctx, sender.ID, fresh.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("marking someone else's notification: expected ErrNotFound, got %v", err)
	}
	if err := s.MarkNotificationRead(ctx, f.User.ID, fresh.ID); err != nil {
		t.Fatal(err)
	}
	unread, _ := s.ListNotifications(ctx, f.User.ID, notification.ListFilter{UnreadOnly: true})
	if len(unread) != 1 || unread[0].ID != old.ID {
		t.Fatalf("unread = %+v", unread)
	}

	n, err := s.DeleteNotificationsBefore(ctx, time.Now().Add(-30*24*time.Hour))
	if err != nil || n < 1 {
		t.Fatalf("DeleteNotificationsBefore = %d, %v", n, err)
	}
	if marked, _ := s.MarkAllNotificationsRead(ctx, f.User.ID); marked != 0 {
		t.Fatalf("expected nothing left unread, marked %d", marked)
	}
}

func testWorkspaceLifecycle(t *testing.T, s database.Store) {
	ctx := context.Background()
	f := Seed(t, s)
	other := Seed(t, s).User
	if err := s.AddMember(ctx, &workspace.Member{WorkspaceID: f.Workspace.ID, UserID: other.ID, Role: workspace.RoleMember}); err != nil {
		t.Fatal(err)
	}

	f.Workspace.Name, f.Workspace.Description = "Renamed", "now with a description"
	if err := s.UpdateWorkspace(ctx, f.Workspace); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetWorkspace(ctx, f.Workspace.ID)
	if err != nil || got.Name != "Renamed" || got.Description != "now with a description" || got.OwnerID != f.User.ID {
		t.Fatalf("GetWorkspace after update = %+v, %v", got, err)
	}
	if err := s.UpdateWorkspace(ctx, &workspace.Workspace{ID: uuid.NewString(), Name: "x"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("updating a missing workspace: expected ErrNotFound, got %v", err)
	}

	if err := s.RemoveMember(ctx, f.Workspace.ID, other.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetMember(ctx, f.Workspace.ID, other.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("removed member still present: %v", err)
	}
	if err := s.RemoveMember(ctx, f.Workspace.ID, other.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("removing twice: expected ErrNotFound, got %v", err)
	}

	tk := NewTask(t, s, f, "A", task.StatusTodo)
	if err := s.DeleteWorkspace(ctx, f.Workspace.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetWorkspace(ctx, f.Workspace.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("deleted workspace still readable: %v", err)
	}
	if _, err := s.GetTask(ctx, tk.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("task survived its workspace: %v", err)
	}
	if _, err := s.GetMember(ctx, f.Workspace.ID, f.User.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("owner membership survived its workspace: %v", err)
	}
}

func testNotificationCleanup(t *testing.T, s database.Store) {
	ctx := context.Background()
	f := Seed(t, s)
	sender := Seed(t, s).User

	var ids []string
	for i, wsID := range []string{f.Workspace.ID, f.Workspace.ID, ""} {
		n := &notification.Notification{
			ID: uuid.NewString(), RecipientID: f.User.ID, SenderID: sender.ID,
			Type: notification.TypeTaskAssigned, Message: "n", WorkspaceID: wsID, Read: i == 0,
		}
		if err := s.CreateNotification(ctx, n); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, n.ID)
	}

	if n, err := s.CountUnreadNotifications(ctx, f.User.ID); err != nil || n != 2 {
		t.Fatalf("CountUnreadNotifications = %d, %v; want 2", n, err)
	}
	if err := s.DeleteNotification(ctx, sender.ID, ids[2]); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("deleting someone else's notification: expected ErrNotFound, got %v", err)
	}
	if err := s.DeleteNotification(ctx, f.User.ID, ids[2]); err != nil {
		t.Fatal(err)
	}
	if n, err := s.DeleteNotifications(ctx, f.User.ID, f.Workspace.ID); err != nil || n != 2 {
		t.Fatalf("DeleteNotifications = %d, %v; want 2", n, err)
	}
	if list, _ := s.ListNotifications(ctx, f.User.ID, notification.ListFilter{}); len(list) != 0 {
		t.Fatalf("notifications left = %d", len(list))
	}
}
