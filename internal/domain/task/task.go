// Package task defines the Task domain entity and the kanban ordering rules.
package task

import (
	"strings"
	"time"

	"github.com/templehubsakshi/FlowSpace/internal/domain"
	"github.com/templehubsakshi/FlowSpace/internal/domain/user"
)

// Field limits.
const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 2000
	MaxCommentLength     = 1000
)

// Status is the kanban column a task sits in.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
)

// Statuses lists the columns in board order.
var Statuses = []Status{StatusTodo, StatusInProgress, StatusDone}

// Valid reports whether s is one of the three columns.
func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// Priority of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Task is a card on a workspace board. Order is its position within the
// Status column; it is not unique and gaps are allowed.
type Task struct {
	ID          string     `json:"id"`
	WorkspaceID string     `json:"workspaceId"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      Status     `json:"status"`
	Priority    Priority   `json:"priority"`
	Order       int        `json:"order"`
	AssigneeID  string     `json:"assigneeId,omitempty"`
	Assignee    *user.Ref  `json:"assignee,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Tags        []string   `json:"tags"`
	Comments    []Comment  `json:"comments"`
	CreatorID   string     `json:"creatorId"`
	Creator     *user.Ref  `json:"creator,omitempty"`
	Version     int        `json:"version"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Comment is an entry in a task's discussion thread.
type Comment struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"authorId"`
	Author    *user.Ref `json:"author,omitempty"`
	Text      string    `json:"text"`
	Mentions  []string  `json:"mentions,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// CreateRequest holds the fields needed to create a new task.
type CreateRequest struct {
	WorkspaceID string     `json:"workspaceId"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      Status     `json:"status"`
	Priority    Priority   `json:"priority"`
	AssigneeID  string     `json:"assigneeId,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
}

// Validate fills defaults and checks field constraints.
func (r *CreateRequest) Validate() error {
	r.Title = strings.TrimSpace(r.Title)
	if r.WorkspaceID == "" {
		return domain.Invalid("workspaceId is required")
	}
	if r.Title == "" {
		return domain.Invalid("title is required")
	}
	if r.Status == "" {
		r.Status = StatusTodo
	}
	if r.Priority == "" {
		r.Priority = PriorityMedium
	}
	return validateFields(r.Title, r.Description, r.Status, r.Priority)
}

// UpdateRequest is a partial update; nil fields are left unchanged.
// ClearAssignee and ClearDueDate unset the optional references.
type UpdateRequest struct {
	Title         *string    `json:"title,omitempty"`
	Description   *string    `json:"description,omitempty"`
	Status        *Status    `json:"status,omitempty"`
	Priority      *Priority  `json:"priority,omitempty"`
	AssigneeID    *string    `json:"assigneeId,omitempty"`
	ClearAssignee bool       `json:"clearAssignee,omitempty"`
	DueDate       *time.Time `json:"dueDate,omitempty"`
	ClearDueDate  bool       `json:"clearDueDate,omitempty"`
	Tags          []string   `json:"tags,omitempty"`
}

// Apply validates req against t and writes the changes into t.
func (r *UpdateRequest) Apply(t *Task) error {
	next := *t
	r.Merge(&next)
	if r.Title != nil && next.Title == "" {
		return domain.Invalid("title cannot be empty")
	}
	if err := validateFields(next.Title, next.Description, next.Status, next.Priority); err != nil {
		return err
	}
	*t = next
	return nil
}

// Merge writes the set fields into t without validating the result. It
// applies updates the server already accepted.
func (r *UpdateRequest) Merge(t *Task) {
	if r.Title != nil {
		t.Title = strings.TrimSpace(*r.Title)
	}
	if r.Description != nil {
		t.Description = *r.Description
	}
	if r.Status != nil {
		t.Status = *r.Status
	}
	if r.Priority != nil {
		t.Priority = *r.Priority
	}
	switch {
	case r.ClearAssignee:
		t.AssigneeID, t.Assignee = "", nil
	case r.AssigneeID != nil:
		t.AssigneeID = *r.AssigneeID
		t.Assignee = nil
	}
	switch {
	case r.ClearDueDate:
		t.DueDate = nil
	case r.DueDate != nil:
		d := *r.DueDate
		t.DueDate = &d
	}
	if r.Tags != nil {
		t.Tags = append([]string(nil), r.Tags...)
	}
}

// MoveRequest is the body of the move endpoint.
type MoveRequest struct {
	NewStatus Status `json:"newStatus"`
	NewOrder  int    `json:"newOrder"`
}

// Validate checks the destination column and position.
func (r MoveRequest) Validate() error {
	if !r.NewStatus.Valid() {
		return domain.Invalid("newStatus must be one of todo, in_progress, done")
	}
	if r.NewOrder < 0 {
		return domain.Invalid("newOrder must be >= 0")
	}
	return nil
}

// Move sets t's column and position and returns the column it left.
// The caller must right-shift the destination column when the status changed.
func (t *Task) Move(req MoveRequest) (oldStatus Status) {
	oldStatus = t.Status
	t.Status = req.NewStatus
	t.Order = req.NewOrder
	return oldStatus
}

// ShiftsDestination reports whether a move from old to new requires the
// right-shift of the destination column. Same-column moves never shift.
func ShiftsDestination(oldStatus, newStatus Status) bool {
	return oldStatus != newStatus
}

// CommentRequest is the input for adding a comment.
type CommentRequest struct {
	Text     string   `json:"text"`
	Mentions []string `json:"mentions,omitempty"`
}

// Validate checks the comment text.
func (r *CommentRequest) Validate() error {
	r.Text = strings.TrimSpace(r.Text)
	if r.Text == "" {
		return domain.Invalid("comment text is required")
	}
	if len([]rune(r.Text)) > MaxCommentLength {
		return domain.Invalid("comment must be at most %d characters", MaxCommentLength)
	}
	return nil
}

func validateFields(title, description string, status Status, priority Priority) error {
	if len([]rune(title)) > MaxTitleLength {
		return domain.Invalid("title must be at most %d characters", MaxTitleLength)
	}
	if len([]rune(description)) > MaxDescriptionLength {
		return domain.Invalid("description must be at most %d characters", MaxDescriptionLength)
	}
	if !status.Valid() {
		return domain.Invalid("invalid status %q", status)
	}
	if !priority.Valid() {
		return domain.Invalid("invalid priority %q", priority)
	}
	return nil
}
