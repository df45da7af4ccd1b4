// Package workspace defines workspaces and their membership roles.
package workspace

import (
	"strings"
	"time"

	"github.com/templehubsakshi/FlowSpace/internal/domain"
	"github.com/templehubsakshi/FlowSpace/internal/domain/user"
)

// Role is a member's authority inside one workspace.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleOwner || r == RoleAdmin || r == RoleMember
}

// CanManage reports whether the role may delete other users' tasks and add members.
func (r Role) CanManage() bool {
	return r == RoleOwner || r == RoleAdmin
}

// Workspace groups a board and its members.
type Workspace struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	OwnerID     string    `json:"ownerId"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Member is one user's membership in a workspace.
type Member struct {
	WorkspaceID string    `json:"workspaceId"`
	UserID      string    `json:"userId"`
	Role        Role      `json:"role"`
	User        *user.Ref `json:"user,omitempty"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// CreateRequest is the input for creating a workspace.
type CreateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Validate checks the workspace name.
func (r *CreateRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return domain.Invalid("name is required")
	}
	if len([]rune(r.Name)) > 100 {
		return domain.Invalid("name must be at most 100 characters")
	}
	return nil
}

// UpdateRequest renames a workspace or changes its description. Nil
// fields are left unchanged.
type UpdateRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// Apply validates the request and writes it into ws.
func (r *UpdateRequest) Apply(ws *Workspace) error {
	next := *ws
	if r.Name != nil {
		next.Name = strings.TrimSpace(*r.Name)
		if next.Name == "" {
			return domain.Invalid("name cannot be empty")
		}
		if len([]rune(next.Name)) > 100 {
			return domain.Invalid("name must be at most 100 characters")
		}
	}
	if r.Description != nil {
		next.Description = *r.Description
	}
	*ws = next
	return nil
}

// AddMemberRequest adds an existing user, looked up by email, to a workspace.
type AddMemberRequest struct {
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// Validate checks the email and role. Owner cannot be granted.
func (r *AddMemberRequest) Validate() error {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	if r.Email == "" {
		return domain.Invalid("email is required")
	}
	if r.Role == "" {
		r.Role = RoleMember
	}
	if r.Role != RoleAdmin && r.Role != RoleMember {
		return domain.Invalid("role must be admin or member")
	}
	return nil
}
