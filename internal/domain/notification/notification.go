// Package notification defines personal notifications delivered out-of-band
// to a user regardless of which workspace room they are in.
package notification

import (
	"time"

	"github.com/templehubsakshi/FlowSpace/internal/domain/user"
)

// Type of notification.
type Type string

const (
	TypeTaskAssigned      Type = "TASK_ASSIGNED"
	TypeTaskMentioned     Type = "TASK_MENTIONED"
	TypeTaskStatusChanged Type = "TASK_STATUS_CHANGED"
	TypeTaskCommented     Type = "TASK_COMMENTED"
	TypeWorkspaceInvite   Type = "WORKSPACE_INVITE"
)

// Notification is addressed to one recipient.
type Notification struct {
	ID          string    `json:"id"`
	RecipientID string    `json:"recipientId"`
	SenderID    string    `json:"senderId"`
	Sender      *user.Ref `json:"sender,omitempty"`
	Type        Type      `json:"type"`
	Message     string    `json:"message"`
	WorkspaceID string    `json:"workspaceId,omitempty"`
	TaskID      string    `json:"taskId,omitempty"`
	Read        bool      `json:"read"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ListFilter narrows a recipient's notification listing.
type ListFilter struct {
	UnreadOnly bool
	Limit      int
}
