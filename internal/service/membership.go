package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/templehubsakshi/FlowSpace/internal/domain"
	"github.com/templehubsakshi/FlowSpace/internal/domain/workspace"
	"github.com/templehubsakshi/FlowSpace/internal/port/cache"
	"github.com/templehubsakshi/FlowSpace/internal/port/database"
)

// MembershipService answers "may this user act in this workspace" for the
// task service and the realtime router. Positive answers are cached; a
// missing membership is never cached so a freshly added member is let in
// immediately.
type MembershipService struct {
	store database.WorkspaceStore
	cache cache.Cache // nil disables caching
	ttl   time.Duration
	group singleflight.Group
}

// NewMembershipService creates the oracle. c may be nil.
func NewMembershipService(store database.WorkspaceStore, c cache.Cache, ttl time.Duration) *MembershipService {
	return &MembershipService{store: store, cache: c, ttl: ttl}
}

func memberKey(workspaceID, userID string) string {
	return "member:" + workspaceID + ":" + userID
}

// Role returns the user's role in the workspace. A non-member gets
// domain.ErrForbidden; an unknown workspace also reads as not a member.
func (s *MembershipService) Role(ctx context.Context, workspaceID, userID string) (workspace.Role, error) {
	if workspaceID == "" || userID == "" {
		return "", domain.Invalid("workspace and user are required")
	}
	key := memberKey(workspaceID, userID)
	if s.cache != nil {
		if raw, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			return workspace.Role(raw), nil
		}
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		m, err := s.store.GetMember(ctx, workspaceID, userID)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			if err := s.cache.Set(ctx, key, []byte(m.Role), s.ttl); err != nil {
				slog.WarnContext(ctx, "membership cache set failed", "key", key, "error", err)
			}
		}
		return m.Role, nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", domain.Denied("not a member of this workspace")
		}
		return "", fmt.Errorf("lookup membership: %w", err)
	}
	return v.(workspace.Role), nil
}

// Require is Role for callers that only need the yes/no answer.
func (s *MembershipService) Require(ctx context.Context, workspaceID, userID string) error {
	_, err := s.Role(ctx, workspaceID, userID)
	return err
}

// RequireManager allows owners and admins only.
func (s *MembershipService) RequireManager(ctx context.Context, workspaceID, userID string) (workspace.Role, error) {
	role, err := s.Role(ctx, workspaceID, userID)
	if err != nil {
		return "", err
	}
	if !role.CanManage() {
		return role, domain.Denied("requires workspace admin or owner")
	}
	return role, nil
}

// Invalidate drops a cached answer after the membership changed.
func (s *MembershipService) Invalidate(ctx context.Context, workspaceID, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, memberKey(workspaceID, userID)); err != nil {
		slog.WarnContext(ctx, "membership cache delete failed", "workspace_id", workspaceID, "user_id", userID, "error", err)
	}
}
