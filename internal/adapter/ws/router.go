package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	cfotel "github.com/templehubsakshi/FlowSpace/internal/adapter/otel"
	"github.com/templehubsakshi/FlowSpace/internal/domain/event"
)

var errWrongRoom = errors.New("intent targets a workspace this connection has not joined")

// route dispatches one client frame. Mutation intents are announcements of
// an HTTP call that already succeeded; the server does not persist them,
// it stamps the sender's identity and relays the matching event to the
// rest of the room.
func (h *Hub) route(ctx context.Context, c *conn, data []byte) {
	env, p, err := event.Decode(data)
	if err != nil {
		c.reject(ctx, env.Type, fmt.Sprintf("malformed message: %v", err))
		return
	}

	switch in := p.(type) {
	case *event.Join:
		h.join(ctx, c, in.WorkspaceID)
		return
	case *event.Leave:
		h.leave(ctx, c, in.WorkspaceID)
		return
	}

	scoped, ok := p.(event.Scoped)
	if !ok {
		c.reject(ctx, env.Type, "not a client intent")
		return
	}
	room := h.roomOf(c)
	if room == "" || scoped.Workspace() != room {
		c.reject(ctx, env.Type, errWrongRoom.Error())
		return
	}

	out, err := h.translate(c, scoped)
	if err != nil {
		c.reject(ctx, env.Type, err.Error())
		return
	}

	sctx, span := cfotel.StartRelaySpan(ctx, string(out.EventType()), room, c.id)
	h.relayFrom(sctx, c, room, env.Type, out)
	cfotel.EndSpan(span, nil)
	slog.DebugContext(ctx, "intent relayed", "conn_id", c.id, "intent", env.Type, "event", out.EventType(), "workspace_id", room)
}

// translate turns an intent into the event the other members receive.
func (h *Hub) translate(c *conn, in event.Scoped) (event.Payload, error) {
	name := c.user.Name
	switch in := in.(type) {
	case *event.TaskCreate:
		if in.Task.ID == "" {
			return nil, errors.New("task.id is required")
		}
		return &event.TaskCreated{WorkspaceID: in.WorkspaceID, Task: in.Task, CreatedBy: name}, nil
	case *event.TaskUpdate:
		if in.TaskID == "" {
			return nil, errors.New("taskId is required")
		}
		return &event.TaskUpdated{WorkspaceID: in.WorkspaceID, TaskID: in.TaskID, Updates: in.Updates, UpdatedBy: name}, nil
	case *event.TaskMove:
		if in.TaskID == "" {
			return nil, errors.New("taskId is required")
		}
		if !in.OldStatus.Valid() || !in.NewStatus.Valid() {
			return nil, errors.New("invalid status")
		}
		if in.NewOrder < 0 {
			return nil, errors.New("newOrder must not be negative")
		}
		return &event.TaskMoved{
			WorkspaceID: in.WorkspaceID,
			TaskID:      in.TaskID,
			OldStatus:   in.OldStatus,
			NewStatus:   in.NewStatus,
			NewOrder:    in.NewOrder,
			MovedBy:     name,
		}, nil
	case *event.TaskDelete:
		if in.TaskID == "" {
			return nil, errors.New("taskId is required")
		}
		return &event.TaskDeleted{WorkspaceID: in.WorkspaceID, TaskID: in.TaskID, DeletedBy: name}, nil
	case *event.CommentAdd:
		if in.TaskID == "" {
			return nil, errors.New("taskId is required")
		}
		return &event.CommentAdded{WorkspaceID: in.WorkspaceID, TaskID: in.TaskID, Comment: in.Comment, AddedBy: name}, nil
	case *event.CommentTyping:
		return &event.CommentTyping{WorkspaceID: in.WorkspaceID, TaskID: in.TaskID, UserID: c.user.ID, UserName: name}, nil
	case *event.EditingStart:
		return &event.TaskLocked{WorkspaceID: in.WorkspaceID, TaskID: in.TaskID, UserID: c.user.ID, LockedBy: name}, nil
	case *event.EditingEnd:
		return &event.TaskUnlocked{WorkspaceID: in.WorkspaceID, TaskID: in.TaskID}, nil
	}
	return nil, fmt.Errorf("not a client intent: %s", in.EventType())
}
