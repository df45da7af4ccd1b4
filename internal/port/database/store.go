// Package database defines the database store port (interface).
package database

import (
	"context"
	"time"

	"github.com/templehubsakshi/FlowSpace/internal/domain/notification"
	"github.com/templehubsakshi/FlowSpace/internal/domain/task"
	"github.com/templehubsakshi/FlowSpace/internal/domain/user"
	"github.com/templehubsakshi/FlowSpace/internal/domain/workspace"
)

// UserStore persists accounts.
type UserStore interface {
	CreateUser(ctx context.Context, u *user.User) error
	GetUser(ctx context.Context, id string) (*user.User, error)
	GetUserByEmail(ctx context.Context, email string) (*user.User, error)
	ListUsers(ctx context.Context) ([]user.User, error)
}

// WorkspaceStore persists workspaces and memberships.
type WorkspaceStore interface {
	// CreateWorkspace inserts ws together with the owner's membership.
	CreateWorkspace(ctx context.Context, ws *workspace.Workspace) error
	GetWorkspace(ctx context.Context, id string) (*workspace.Workspace, error)
	ListWorkspacesForUser(ctx context.Context, userID string) ([]workspace.Workspace, error)
	// UpdateWorkspace writes ws.Name and ws.Description.
	UpdateWorkspace(ctx context.Context, ws *workspace.Workspace) error
	// DeleteWorkspace removes the workspace with its members and tasks.
	DeleteWorkspace(ctx context.Context, id string) error
	// AddMember returns domain.ErrConflict if the user is already a member.
	AddMember(ctx context.Context, m *workspace.Member) error
	GetMember(ctx context.Context, workspaceID, userID string) (*workspace.Member, error)
	ListMembers(ctx context.Context, workspaceID string) ([]workspace.Member, error)
	// RemoveMember returns domain.ErrNotFound if the user is not a member.
	RemoveMember(ctx context.Context, workspaceID, userID string) error
}

// TaskStore persists tasks. Reads return tasks with Creator, Assignee and
// comment Author display fields populated.
type TaskStore interface {
	// CreateTask assigns t.Order = max(order in column)+1, or 0 for an
	// empty column, and inserts t in one atomic step.
	CreateTask(ctx context.Context, t *task.Task) error
	GetTask(ctx context.Context, id string) (*task.Task, error)
	ListTasks(ctx context.Context, workspaceID string) ([]task.Task, error)
	// UpdateTask writes the mutable fields of t if t.Version still matches
	// the stored version, then increments t.Version.
	// Returns domain.ErrConflict on a version mismatch.
	UpdateTask(ctx context.Context, t *task.Task) error
	// MoveTask persists t's new Status and Order under the same version
	// check as UpdateTask. When oldStatus differs from t.Status, every other
	// task in the destination column with order >= t.Order is incremented
	// by one in the same transaction. The source column is left untouched.
	MoveTask(ctx context.Context, t *task.Task, oldStatus task.Status) error
	DeleteTask(ctx context.Context, id string) error
	AddComment(ctx context.Context, taskID string, c *task.Comment) error
	GetComment(ctx context.Context, taskID, commentID string) (*task.Comment, error)
	DeleteComment(ctx context.Context, taskID, commentID string) error
}

// NotificationStore persists personal notifications.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *notification.Notification) error
	ListNotifications(ctx context.Context, recipientID string, f notification.ListFilter) ([]notification.Notification, error)
	MarkNotificationRead(ctx context.Context, recipientID, id string) error
	MarkAllNotificationsRead(ctx context.Context, recipientID string) (int64, error)
	CountUnreadNotifications(ctx context.Context, recipientID string) (int64, error)
	DeleteNotification(ctx context.Context, recipientID, id string) error
	// DeleteNotifications clears the recipient's notifications, only those
	// of workspaceID when it is not empty.
	DeleteNotifications(ctx context.Context, recipientID, workspaceID string) (int64, error)
	DeleteNotificationsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Store is the port interface for database operations.
type Store interface {
	UserStore
	WorkspaceStore
	TaskStore
	NotificationStore

	Ping(ctx context.Context) error
}
