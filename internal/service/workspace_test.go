package service

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/templehubsakshi/FlowSpace/internal/domain"
	"github.com/templehubsakshi/FlowSpace/internal/domain/event"
	"github.com/templehubsakshi/FlowSpace/internal/domain/notification"
	"github.com/templehubsakshi/FlowSpace/internal/domain/task"
	"github.com/templehubsakshi/FlowSpace/internal/domain/user"
	"github.com/templehubsakshi/FlowSpace/internal/domain/workspace"
)

func TestWorkspaceService_CreateMakesOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	role, err := f.members.Role(ctx, f.workspace.ID, f.owner.ID)
	if err != nil {
		t.Fatal(err)
	}
	if role != workspace.RoleOwner {
		t.Errorf("creator role = %q, want owner", role)
	}

	mine, err := f.spaces.List(ctx, f.owner)
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 1 || mine[0].ID != f.workspace.ID {
		t.Errorf("owner workspaces = %+v", mine)
	}
	theirs, err := f.spaces.List(ctx, f.outsider)
	if err != nil {
		t.Fatal(err)
	}
	if len(theirs) != 0 {
		t.Errorf("outsider sees %d workspaces", len(theirs))
	}

	if _, err := f.spaces.Create(ctx, f.owner, workspace.CreateRequest{Name: "   "}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("blank name: err = %v, want ErrValidation", err)
	}
}

func TestWorkspaceService_AddMember(t *testing.T) {
	tests := []struct {
		name    string
		actor   func(*fixture) *user.Ref
		email   string
		wantErr error
	}{
		{"plain member cannot add", func(f *fixture) *user.Ref { return f.member }, "outsider@example.com", domain.ErrForbidden},
		{"outsider cannot add", func(f *fixture) *user.Ref { return f.outsider }, "outsider@example.com", domain.ErrForbidden},
		{"unknown account", func(f *fixture) *user.Ref { return f.owner }, "nobody@example.com", domain.ErrNotFound},
		{"already a member", func(f *fixture) *user.Ref { return f.owner }, "member@example.com", domain.ErrConflict},
		{"missing email", func(f *fixture) *user.Ref { return f.owner }, "", domain.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.spaces.AddMember(context.Background(), tt.actor(f), f.workspace.ID, workspace.AddMemberRequest{Email: tt.email})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestWorkspaceService_AddMemberInvites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m, err := f.spaces.AddMember(ctx, f.owner, f.workspace.ID, workspace.AddMemberRequest{Email: "OUTSIDER@example.com", Role: workspace.RoleAdmin})
	if err != nil {
		t.Fatal(err)
	}
	if m.UserID != f.outsider.ID || m.Role != workspace.RoleAdmin {
		t.Errorf("member = %+v", m)
	}
	if err := f.members.Require(ctx, f.workspace.ID, f.outsider.ID); err != nil {
		t.Errorf("new member not admitted: %v", err)
	}

	got := f.bus.userEvents(f.outsider.ID)
	if len(got) != 1 {
		t.Fatalf("invitee got %d events, want 1", len(got))
	}
	n, ok := got[0].(*event.NotificationNew)
	if !ok || n.Notification.Type != notification.TypeWorkspaceInvite {
		t.Errorf("event = %#v, want workspace invite", got[0])
	}
}

func TestWorkspaceService_Members(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	list, err := f.spaces.Members(ctx, f.member, f.workspace.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Errorf("members = %d, want 2", len(list))
	}
	if _, err := f.spaces.Members(ctx, f.outsider, f.workspace.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("outsider listing: err = %v, want ErrForbidden", err)
	}
}

func TestWorkspaceService_AddMemberAsAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.spaces.AddMemberAsAdmin(ctx, "missing", workspace.AddMemberRequest{Email: "outsider@example.com"}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown workspace: err = %v, want ErrNotFound", err)
	}
	if _, err := f.spaces.AddMemberAsAdmin(ctx, f.workspace.ID, workspace.AddMemberRequest{Email: "outsider@example.com"}); err != nil {
		t.Fatal(err)
	}
	if got := f.bus.userEvents(f.outsider.ID); len(got) != 0 {
		t.Errorf("operator add sent %d notifications, want none", len(got))
	}
}

func TestWorkspaceService_RemovedMemberLosesAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tk, err := f.tasks.Create(ctx, f.member, task.CreateRequest{WorkspaceID: f.workspace.ID, Title: "Draft"})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.spaces.RemoveMember(ctx, f.owner, f.workspace.ID, f.member.ID); err != nil {
		t.Fatal(err)
	}
	if got, want := f.bus.evictions(), []string{f.workspace.ID + "/" + f.member.ID}; !slices.Equal(got, want) {
		t.Errorf("evictions = %v, want %v", got, want)
	}

	if _, err := f.tasks.Board(ctx, f.member, f.workspace.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("board: err = %v, want ErrForbidden", err)
	}
	if _, err := f.tasks.Create(ctx, f.member, task.CreateRequest{WorkspaceID: f.workspace.ID, Title: "x"}); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("create: err = %v, want ErrForbidden", err)
	}
	if _, err := f.tasks.Move(ctx, f.member, tk.ID, task.MoveRequest{NewStatus: task.StatusDone}); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("move: err = %v, want ErrForbidden", err)
	}
	if err := f.spaces.RemoveMember(ctx, f.owner, f.workspace.ID, f.member.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("second removal: err = %v, want ErrNotFound", err)
	}
}

func TestWorkspaceService_RemoveMemberRules(t *testing.T) {
	tests := []struct {
		name    string
		actor   func(*fixture) *user.Ref
		target  func(*fixture) string
		wantErr error
	}{
		{"member cannot remove", func(f *fixture) *user.Ref { return f.member }, func(f *fixture) string { return f.owner.ID }, domain.ErrForbidden},
		{"outsider cannot remove", func(f *fixture) *user.Ref { return f.outsider }, func(f *fixture) string { return f.member.ID }, domain.ErrForbidden},
		{"owner cannot be removed", func(f *fixture) *user.Ref { return f.owner }, func(f *fixture) string { return f.owner.ID }, domain.ErrValidation},
		{"not a member", func(f *fixture) *user.Ref { return f.owner }, func(f *fixture) string { return f.outsider.ID }, domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			err := f.spaces.RemoveMember(context.Background(), tt.actor(f), f.workspace.ID, tt.target(f))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if n := len(f.bus.evictions()); n != 0 {
				t.Errorf("evictions = %d after a refused removal", n)
			}
		})
	}
}

func TestWorkspaceService_Leave(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.spaces.Leave(ctx, f.owner, f.workspace.ID); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("owner leave: err = %v, want ErrValidation", err)
	}
	if err := f.spaces.Leave(ctx, f.outsider, f.workspace.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("outsider leave: err = %v, want ErrForbidden", err)
	}
	if err := f.spaces.Leave(ctx, f.member, f.workspace.ID); err != nil {
		t.Fatal(err)
	}
	if err := f.members.Require(ctx, f.workspace.ID, f.member.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("after leave: err = %v, want ErrForbidden", err)
	}
	mine, err := f.spaces.List(ctx, f.member)
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 0 {
		t.Errorf("member still lists %d workspaces", len(mine))
	}
}

func TestWorkspaceService_Update(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	name := "  Relaunch "

	if _, err := f.spaces.Update(ctx, f.member, f.workspace.ID, workspace.UpdateRequest{Name: &name}); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("member update: err = %v, want ErrForbidden", err)
	}
	blank := " "
	if _, err := f.spaces.Update(ctx, f.owner, f.workspace.ID, workspace.UpdateRequest{Name: &blank}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("blank name: err = %v, want ErrValidation", err)
	}
	ws, err := f.spaces.Update(ctx, f.owner, f.workspace.ID, workspace.UpdateRequest{Name: &name})
	if err != nil {
		t.Fatal(err)
	}
	if ws.Name != "Relaunch" {
		t.Errorf("name = %q", ws.Name)
	}
	got, err := f.spaces.Get(ctx, f.member, f.workspace.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Relaunch" {
		t.Errorf("stored name = %q", got.Name)
	}
}

func TestWorkspaceService_Delete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.tasks.Create(ctx, f.owner, task.CreateRequest{WorkspaceID: f.workspace.ID, Title: "Draft"}); err != nil {
		t.Fatal(err)
	}
	if err := f.spaces.Delete(ctx, f.member, f.workspace.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("member delete: err = %v, want ErrForbidden", err)
	}
	if err := f.spaces.Delete(ctx, f.owner, f.workspace.ID); err != nil {
		t.Fatal(err)
	}

	got := f.bus.evictions()
	slices.Sort(got)
	want := []string{f.workspace.ID + "/" + f.member.ID, f.workspace.ID + "/" + f.owner.ID}
	slices.Sort(want)
	if !slices.Equal(got, want) {
		t.Errorf("evictions = %v, want %v", got, want)
	}
	if _, err := f.spaces.Get(ctx, f.owner, f.workspace.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("get after delete: err = %v, want ErrForbidden", err)
	}
	if _, err := f.store.GetWorkspace(ctx, f.workspace.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("stored workspace: err = %v, want ErrNotFound", err)
	}
}
