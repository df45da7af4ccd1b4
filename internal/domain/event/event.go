// Package event defines the closed, versioned set of realtime messages
// exchanged over the workspace connection. Every message travels in an
// Envelope whose Type selects exactly one payload variant.
package event

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/templehubsakshi/FlowSpace/internal/domain/notification"
	"github.com/templehubsakshi/FlowSpace/internal/domain/task"
)

// Version is the envelope schema version written by this build.
const Version = 1

// ErrUnknownType is returned when decoding an envelope whose type is not a known variant.
var ErrUnknownType = errors.New("unknown event type")

// ErrUnsupportedVersion is returned for envelopes written by a newer schema.
var ErrUnsupportedVersion = errors.New("unsupported event version")

// Type identifies a message variant.
type Type string

// Server to client.
const (
	TypeOnlineUsers   Type = "workspace:online-users"
	TypeUserJoined    Type = "user:joined"
	TypeUserLeft      Type = "user:left"
	TypeTaskCreated   Type = "task:created"
	TypeTaskUpdated   Type = "task:updated"
	TypeTaskMoved     Type = "task:moved"
	TypeTaskDeleted   Type = "task:deleted"
	TypeCommentAdded  Type = "comment:added"
	TypeTaskLocked    Type = "task:locked"
	TypeTaskUnlocked  Type = "task:unlocked"
	TypeNotification  Type = "notification:new"
	TypeError         Type = "error"
	TypeCommentTyping Type = "comment:typing" // both directions
	TypeRelayAck      Type = "relay:ack"
	TypeMemberRemoved Type = "workspace:member-removed"
)

// Client to server intents.
const (
	TypeJoin         Type = "workspace:join"
	TypeLeave        Type = "workspace:leave"
	TypeTaskCreate   Type = "task:create"
	TypeTaskUpdate   Type = "task:update"
	TypeTaskMove     Type = "task:move"
	TypeTaskDelete   Type = "task:delete"
	TypeCommentAdd   Type = "comment:add"
	TypeEditingStart Type = "task:editing-start"
	TypeEditingEnd   Type = "task:editing-end"
)

// Sequenced reports whether events of this type are task mutations that
// carry a per-workspace sequence number.
func (t Type) Sequenced() bool {
	switch t {
	case TypeTaskCreated, TypeTaskUpdated, TypeTaskMoved, TypeTaskDeleted, TypeCommentAdded:
		return true
	}
	return false
}

// Envelope is the wire frame.
type Envelope struct {
	V       int             `json:"v"`
	Type    Type            `json:"type"`
	Seq     uint64          `json:"seq,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// Payload is implemented by every variant in this package and nothing else.
type Payload interface {
	EventType() Type
	sealed()
}

// Scoped is implemented by intents that name the workspace they target.
type Scoped interface {
	Payload
	Workspace() string
}

// Encode wraps p in a versioned envelope.
func Encode(seq uint64, p Payload) ([]byte, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", p.EventType(), err)
	}
	return json.Marshal(Envelope{V: Version, Type: p.EventType(), Seq: seq, Payload: raw})
}

// Decode parses a frame into its envelope and typed payload.
func Decode(data []byte) (Envelope, Payload, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return env, nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.V > Version {
		return env, nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, env.V)
	}
	p, err := newPayload(env.Type)
	if err != nil {
		return env, nil, err
	}
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, p); err != nil {
			return env, nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
	}
	return env, p, nil
}

func newPayload(t Type) (Payload, error) {
	switch t {
	case TypeOnlineUsers:
		return &OnlineUsers{}, nil
	case TypeUserJoined:
		return &UserJoined{}, nil
	case TypeUserLeft:
		return &UserLeft{}, nil
	case TypeTaskCreated:
		return &TaskCreated{}, nil
	case TypeTaskUpdated:
		return &TaskUpdated{}, nil
	case TypeTaskMoved:
		return &TaskMoved{}, nil
	case TypeTaskDeleted:
		return &TaskDeleted{}, nil
	case TypeCommentAdded:
		return &CommentAdded{}, nil
	case TypeTaskLocked:
		return &TaskLocked{}, nil
	case TypeTaskUnlocked:
		return &TaskUnlocked{}, nil
	case TypeNotification:
		return &NotificationNew{}, nil
	case TypeError:
		return &Error{}, nil
	case TypeCommentTyping:
		return &CommentTyping{}, nil
	case TypeRelayAck:
		return &RelayAck{}, nil
	case TypeMemberRemoved:
		return &MemberRemoved{}, nil
	case TypeJoin:
		return &Join{}, nil
	case TypeLeave:
		return &Leave{}, nil
	case TypeTaskCreate:
		return &TaskCreate{}, nil
	case TypeTaskUpdate:
		return &TaskUpdate{}, nil
	case TypeTaskMove:
		return &TaskMove{}, nil
	case TypeTaskDelete:
		return &TaskDelete{}, nil
	case TypeCommentAdd:
		return &CommentAdd{}, nil
	case TypeEditingStart:
		return &EditingStart{}, nil
	case TypeEditingEnd:
		return &EditingEnd{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
}

// Presence is a user's display identity in a room roster.
type Presence struct {
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	UserEmail string `json:"userEmail,omitempty"`
}

// OnlineUsers is the roster snapshot sent to a connection that just joined.
type OnlineUsers struct {
	WorkspaceID string     `json:"workspaceId"`
	Users       []Presence `json:"users"`
}

// UserJoined tells the rest of the room a user arrived.
type UserJoined struct {
	WorkspaceID string `json:"workspaceId"`
	Presence
}

// UserLeft tells the rest of the room a user is gone.
type UserLeft struct {
	WorkspaceID string `json:"workspaceId"`
	UserID      string `json:"userId"`
	UserName    string `json:"userName"`
}

// TaskCreated relays a newly created task.
type TaskCreated struct {
	WorkspaceID string    `json:"workspaceId"`
	Task        task.Task `json:"task"`
	CreatedBy   string    `json:"createdBy"`
}

// TaskUpdated relays a field edit as the partial update that produced it.
type TaskUpdated struct {
	WorkspaceID string             `json:"workspaceId"`
	TaskID      string             `json:"taskId"`
	Updates     task.UpdateRequest `json:"updates"`
	UpdatedBy   string             `json:"updatedBy"`
}

// TaskMoved relays a move as the minimal delta.
type TaskMoved struct {
	WorkspaceID string      `json:"workspaceId"`
	TaskID      string      `json:"taskId"`
	OldStatus   task.Status `json:"oldStatus"`
	NewStatus   task.Status `json:"newStatus"`
	NewOrder    int         `json:"newOrder"`
	MovedBy     string      `json:"movedBy"`
}

// TaskDeleted relays a deletion.
type TaskDeleted struct {
	WorkspaceID string `json:"workspaceId"`
	TaskID      string `json:"taskId"`
	DeletedBy   string `json:"deletedBy"`
}

// CommentAdded relays a comment appended to a task.
type CommentAdded struct {
	WorkspaceID string       `json:"workspaceId"`
	TaskID      string       `json:"taskId"`
	Comment     task.Comment `json:"comment"`
	AddedBy     string       `json:"addedBy"`
}

// CommentTyping is an ephemeral "someone is typing" signal. Clients send
// WorkspaceID and TaskID; the server fills in the user.
type CommentTyping struct {
	WorkspaceID string `json:"workspaceId"`
	TaskID      string `json:"taskId"`
	UserID      string `json:"userId,omitempty"`
	UserName    string `json:"userName,omitempty"`
}

// TaskLocked tells the room another user started editing a task.
type TaskLocked struct {
	WorkspaceID string `json:"workspaceId"`
	TaskID      string `json:"taskId"`
	UserID      string `json:"userId"`
	LockedBy    string `json:"lockedBy"`
}

// TaskUnlocked tells the room editing ended.
type TaskUnlocked struct {
	WorkspaceID string `json:"workspaceId"`
	TaskID      string `json:"taskId"`
}

// NotificationNew delivers a personal notification.
type NotificationNew struct {
	Notification notification.Notification `json:"notification"`
}

// RelayAck tells the sender of a mutation intent which sequence number
// the relayed event was given. The number travels in the envelope.
type RelayAck struct {
	WorkspaceID string `json:"workspaceId"`
	Intent      Type   `json:"intent"`
}

// MemberRemoved tells a user's connections they were taken out of a
// workspace room because their membership ended or the workspace is gone.
type MemberRemoved struct {
	WorkspaceID string `json:"workspaceId"`
	UserID      string `json:"userId"`
}

// Error reports a rejected intent to the connection that sent it.
type Error struct {
	Message string `json:"message"`
	Intent  Type   `json:"intent,omitempty"`
}

// Join asks the server to move the connection into a workspace room.
type Join struct {
	WorkspaceID string `json:"workspaceId"`
}

// Leave asks the server to remove the connection from its room.
type Leave struct {
	WorkspaceID string `json:"workspaceId"`
}

// TaskCreate is sent after the HTTP create succeeded.
type TaskCreate struct {
	WorkspaceID string    `json:"workspaceId"`
	Task        task.Task `json:"task"`
}

// TaskUpdate is sent after the HTTP update succeeded.
type TaskUpdate struct {
	WorkspaceID string             `json:"workspaceId"`
	TaskID      string             `json:"taskId"`
	Updates     task.UpdateRequest `json:"updates"`
}

// TaskMove is sent after the HTTP move succeeded.
type TaskMove struct {
	WorkspaceID string      `json:"workspaceId"`
	TaskID      string      `json:"taskId"`
	OldStatus   task.Status `json:"oldStatus"`
	NewStatus   task.Status `json:"newStatus"`
	NewOrder    int         `json:"newOrder"`
}

// TaskDelete is sent after the HTTP delete succeeded.
type TaskDelete struct {
	WorkspaceID string `json:"workspaceId"`
	TaskID      string `json:"taskId"`
}

// CommentAdd is sent after the HTTP comment call succeeded.
type CommentAdd struct {
	WorkspaceID string       `json:"workspaceId"`
	TaskID      string       `json:"taskId"`
	Comment     task.Comment `json:"comment"`
}

// EditingStart announces the sender opened a task for editing.
type EditingStart struct {
	WorkspaceID string `json:"workspaceId"`
	TaskID      string `json:"taskId"`
}

// EditingEnd announces the sender closed the editor.
type EditingEnd struct {
	WorkspaceID string `json:"workspaceId"`
	TaskID      string `json:"taskId"`
}

func (*OnlineUsers) EventType() Type     { return TypeOnlineUsers }
func (*UserJoined) EventType() Type      { return TypeUserJoined }
func (*UserLeft) EventType() Type        { return TypeUserLeft }
func (*TaskCreated) EventType() Type     { return TypeTaskCreated }
func (*TaskUpdated) EventType() Type     { return TypeTaskUpdated }
func (*TaskMoved) EventType() Type       { return TypeTaskMoved }
func (*TaskDeleted) EventType() Type     { return TypeTaskDeleted }
func (*CommentAdded) EventType() Type    { return TypeCommentAdded }
func (*CommentTyping) EventType() Type   { return TypeCommentTyping }
func (*TaskLocked) EventType() Type      { return TypeTaskLocked }
func (*TaskUnlocked) EventType() Type    { return TypeTaskUnlocked }
func (*NotificationNew) EventType() Type { return TypeNotification }
func (*Error) EventType() Type           { return TypeError }
func (*RelayAck) EventType() Type        { return TypeRelayAck }
func (*MemberRemoved) EventType() Type   { return TypeMemberRemoved }
func (*Join) EventType() Type            { return TypeJoin }
func (*Leave) EventType() Type           { return TypeLeave }
func (*TaskCreate) EventType() Type      { return TypeTaskCreate }
func (*TaskUpdate) EventType() Type      { return TypeTaskUpdate }
func (*TaskMove) EventType() Type        { return TypeTaskMove }
func (*TaskDelete) EventType() Type      { return TypeTaskDelete }
func (*CommentAdd) EventType() Type      { return TypeCommentAdd }
func (*EditingStart) EventType() Type    { return TypeEditingStart }
func (*EditingEnd) EventType() Type      { return TypeEditingEnd }

func (*OnlineUsers) sealed()     {}
func (*UserJoined) sealed()      {}
func (*UserLeft) sealed()        {}
func (*TaskCreated) sealed()     {}
func (*TaskUpdated) sealed()     {}
func (*TaskMoved) sealed()       {}
func (*TaskDeleted) sealed()     {}
func (*CommentAdded) sealed()    {}
func (*CommentTyping) sealed()   {}
func (*TaskLocked) sealed()      {}
func (*TaskUnlocked) sealed()    {}
func (*NotificationNew) sealed() {}
func (*Error) sealed()           {}
func (*RelayAck) sealed()        {}
func (*MemberRemoved) sealed()   {}
func (*Join) sealed()            {}
func (*Leave) sealed()           {}
func (*TaskCreate) sealed()      {}
func (*TaskUpdate) sealed()      {}
func (*TaskMove) sealed()        {}
func (*TaskDelete) sealed()      {}
func (*CommentAdd) sealed()      {}
func (*EditingStart) sealed()    {}
func (*EditingEnd) sealed()      {}

func (j *Join) Workspace() string          { return j.WorkspaceID }
func (l *Leave) Workspace() string         { return l.WorkspaceID }
func (c *TaskCreate) Workspace() string    { return c.WorkspaceID }
func (u *TaskUpdate) Workspace() string    { return u.WorkspaceID }
func (m *TaskMove) Workspace() string      { return m.WorkspaceID }
func (d *TaskDelete) Workspace() string    { return d.WorkspaceID }
func (c *CommentAdd) Workspace() string    { return c.WorkspaceID }
func (c *CommentTyping) Workspace() string { return c.WorkspaceID }
func (e *EditingStart) Workspace() string  { return e.WorkspaceID }
func (e *EditingEnd) Workspace() string    { return e.WorkspaceID }
