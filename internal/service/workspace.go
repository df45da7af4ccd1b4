package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/templehubsakshi/FlowSpace/internal/domain"
	"github.com/templehubsakshi/FlowSpace/internal/domain/notification"
	"github.com/templehubsakshi/FlowSpace/internal/domain/user"
	"github.com/templehubsakshi/FlowSpace/internal/domain/workspace"
	"github.com/templehubsakshi/FlowSpace/internal/port/broadcast"
	"github.com/templehubsakshi/FlowSpace/internal/port/database"
)

// WorkspaceService manages workspaces and their member lists.
type WorkspaceService struct {
	store   database.Store
	members *MembershipService
	notify  *NotificationService

	mu      sync.RWMutex
	evictor broadcast.Evictor
}

// NewWorkspaceService creates a WorkspaceService.
func NewWorkspaceService(store database.Store, members *MembershipService, notify *NotificationService) *WorkspaceService {
	return &WorkspaceService{store: store, members: members, notify: notify}
}

// SetEvictor wires the realtime hub so revoked members lose their room.
func (s *WorkspaceService) SetEvictor(e broadcast.Evictor) {
	s.mu.Lock()
	s.evictor = e
	s.mu.Unlock()
}

// Create makes a workspace owned by actor.
func (s *WorkspaceService) Create(ctx context.Context, actor *user.Ref, req workspace.CreateRequest) (*workspace.Workspace, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	ws := &workspace.Workspace{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Description: req.Description,
		OwnerID:     actor.ID,
	}
	if err := s.store.CreateWorkspace(ctx, ws); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	slog.InfoContext(ctx, "workspace created", "workspace_id", ws.ID, "owner_id", actor.ID)
	return ws, nil
}

// List returns the workspaces actor belongs to.
func (s *WorkspaceService) List(ctx context.Context, actor *user.Ref) ([]workspace.Workspace, error) {
	return s.store.ListWorkspacesForUser(ctx, actor.ID)
}

// Get returns a workspace the actor belongs to.
func (s *WorkspaceService) Get(ctx context.Context, actor *user.Ref, id string) (*workspace.Workspace, error) {
	if err := s.members.Require(ctx, id, actor.ID); err != nil {
		return nil, err
	}
	return s.store.GetWorkspace(ctx, id)
}

// Members lists a workspace's members with their display identity.
func (s *WorkspaceService) Members(ctx context.Context, actor *user.Ref, id string) ([]workspace.Member, error) {
	if err := s.members.Require(ctx, id, actor.ID); err != nil {
		return nil, err
	}
	return s.store.ListMembers(ctx, id)
}

// AddMember adds an existing account to the workspace. Requires admin or owner.
func (s *WorkspaceService) AddMember(ctx context.Context, actor *user.Ref, workspaceID string, req workspace.AddMemberRequest) (*workspace.Member, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.members.RequireManager(ctx, workspaceID, actor.ID); err != nil {
		return nil, err
	}
	return s.addMember(ctx, actor, workspaceID, req)
}

// AddMemberAsAdmin skips the actor check. It backs the operator CLI.
func (s *WorkspaceService) AddMemberAsAdmin(ctx context.Context, workspaceID string, req workspace.AddMemberRequest) (*workspace.Member, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.store.GetWorkspace(ctx, workspaceID); err != nil {
		return nil, err
	}
	return s.addMember(ctx, nil, workspaceID, req)
}

func (s *WorkspaceService) addMember(ctx context.Context, actor *user.Ref, workspaceID string, req workspace.AddMemberRequest) (*workspace.Member, error) {
	u, err := s.store.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: no account with email %s", domain.ErrNotFound, req.Email)
		}
		return nil, err
	}
	m := &workspace.Member{WorkspaceID: workspaceID, UserID: u.ID, Role: req.Role}
	if err := s.store.AddMember(ctx, m); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("%w: %s is already a member", domain.ErrConflict, req.Email)
		}
		return nil, fmt.Errorf("add member: %w", err)
	}
	m.User = u.Ref()
	s.members.Invalidate(ctx, workspaceID, u.ID)
	slog.InfoContext(ctx, "member added", "workspace_id", workspaceID, "user_id", u.ID, "role", m.Role)

	if actor != nil && s.notify != nil {
		ws, err := s.store.GetWorkspace(ctx, workspaceID)
		if err == nil {
			n := notification.Notification{
				RecipientID: u.ID,
				SenderID:    actor.ID,
				Sender:      actor,
				Type:        notification.TypeWorkspaceInvite,
				Message:     fmt.Sprintf("%s added you to %s", actor.Name, ws.Name),
				WorkspaceID: workspaceID,
			}
			if err := s.notify.Notify(ctx, n); err != nil {
				slog.WarnContext(ctx, "invite notification failed", "workspace_id", workspaceID, "error", err)
			}
		}
	}
	return m, nil
}

// Update renames or redescribes a workspace. Requires admin or owner.
func (s *WorkspaceService) Update(ctx context.Context, actor *user.Ref, id string, req workspace.UpdateRequest) (*workspace.Workspace, error) {
	if _, err := s.members.RequireManager(ctx, id, actor.ID); err != nil {
		return nil, err
	}
	ws, err := s.store.GetWorkspace(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := req.Apply(ws); err != nil {
		return nil, err
	}
	if err := s.store.UpdateWorkspace(ctx, ws); err != nil {
		return nil, fmt.Errorf("update workspace: %w", err)
	}
	slog.InfoContext(ctx, "workspace updated", "workspace_id", id, "actor_id", actor.ID)
	return ws, nil
}

// Delete removes a workspace with its tasks and memberships. Only the
// owner may delete it. Every member still in the room is evicted.
func (s *WorkspaceService) Delete(ctx context.Context, actor *user.Ref, id string) error {
	role, err := s.members.Role(ctx, id, actor.ID)
	if err != nil {
		return err
	}
	if role != workspace.RoleOwner {
		return domain.Denied("only the owner can delete a workspace")
	}
	members, err := s.store.ListMembers(ctx, id)
	if err != nil {
		return fmt.Errorf("list members: %w", err)
	}
	if err := s.store.DeleteWorkspace(ctx, id); err != nil {
		return fmt.Errorf("delete workspace: %w", err)
	}
	for _, m := range members {
		s.revoked(ctx, id, m.UserID)
	}
	slog.InfoContext(ctx, "workspace deleted", "workspace_id", id, "members", len(members))
	return nil
}

// RemoveMember revokes a user's membership. Requires admin or owner; the
// owner cannot be removed.
func (s *WorkspaceService) RemoveMember(ctx context.Context, actor *user.Ref, workspaceID, userID string) error {
	if _, err := s.members.RequireManager(ctx, workspaceID, actor.ID); err != nil {
		return err
	}
	return s.removeMember(ctx, workspaceID, userID)
}

// Leave ends actor's own membership. The owner cannot leave.
func (s *WorkspaceService) Leave(ctx context.Context, actor *user.Ref, workspaceID string) error {
	if err := s.members.Require(ctx, workspaceID, actor.ID); err != nil {
		return err
	}
	return s.removeMember(ctx, workspaceID, actor.ID)
}

func (s *WorkspaceService) removeMember(ctx context.Context, workspaceID, userID string) error {
	m, err := s.store.GetMember(ctx, workspaceID, userID)
	if err != nil {
		return err
	}
	if m.Role == workspace.RoleOwner {
		return domain.Invalid("the workspace owner cannot be removed")
	}
	if err := s.store.RemoveMember(ctx, workspaceID, userID); err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	s.revoked(ctx, workspaceID, userID)
	slog.InfoContext(ctx, "member removed", "workspace_id", workspaceID, "user_id", userID)
	return nil
}

// revoked drops the cached role and takes the user's connections out of
// the room.
func (s *WorkspaceService) revoked(ctx context.Context, workspaceID, userID string) {
	s.members.Invalidate(ctx, workspaceID, userID)
	s.mu.RLock()
	e := s.evictor
	s.mu.RUnlock()
	if e != nil {
		e.EvictFromRoom(ctx, workspaceID, userID)
	}
}
