// Package session keeps one workspace board live on the client: it loads
// the board over HTTP, joins the workspace room, applies the room's events
// and runs local edits through the optimistic engine before announcing
// them to the other members.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/templehubsakshi/FlowSpace/internal/client/board"
	"github.com/templehubsakshi/FlowSpace/internal/client/realtime"
	"github.com/templehubsakshi/FlowSpace/internal/domain/event"
	"github.com/templehubsakshi/FlowSpace/internal/domain/task"
)

// ErrRemoved is returned by Run when the user's membership of the
// workspace ends while the session is live.
var ErrRemoved = errors.New("removed from workspace")

// API is the slice of the REST client a session uses.
type API interface {
	board.Mover
	Board(ctx context.Context, workspaceID string) (task.Board, error)
	CreateTask(ctx context.Context, req task.CreateRequest) (*task.Task, error)
	UpdateTask(ctx context.Context, id string, req task.UpdateRequest) (*task.Task, error)
	DeleteTask(ctx context.Context, id string) (*task.Task, error)
	AddComment(ctx context.Context, taskID string, req task.CommentRequest) (*task.Comment, error)
}

// Conn is the realtime connection a session rides on.
type Conn interface {
	Join(ctx context.Context, workspaceID string) error
	Send(ctx context.Context, p event.Payload) error
	Events() <-chan realtime.Event
}

// Session is a live board for one workspace.
type Session struct {
	api         API
	conn        Conn
	workspaceID string
	engine      *board.Engine

	// OnChange, when set, is called after every change to the local board.
	OnChange func(*board.Board)
	// OnEvent, when set, sees every event from the room, including
	// presence and collaboration signals the board does not track.
	OnEvent func(realtime.Event)
}

// Open loads the board and joins the room.
func Open(ctx context.Context, api API, conn Conn, workspaceID string) (*Session, error) {
	snap, err := api.Board(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("load board: %w", err)
	}
	s := &Session{
		api:         api,
		conn:        conn,
		workspaceID: workspaceID,
		engine:      board.NewEngine(board.New(workspaceID, snap)),
	}
	if err := conn.Join(ctx, workspaceID); err != nil {
		return nil, fmt.Errorf("join %s: %w", workspaceID, err)
	}
	return s, nil
}

// WorkspaceID returns the workspace the session shows.
func (s *Session) WorkspaceID() string { return s.workspaceID }

// Board returns a copy of the local board.
func (s *Session) Board() *board.Board { return s.engine.View() }

// Move drags a task to index within status. The board changes at once;
// when the server agrees the move is announced to the room, otherwise it
// is rolled back and the error wraps board.ErrReconciliation.
func (s *Session) Move(ctx context.Context, taskID string, status task.Status, index int) (*task.Task, error) {
	from, _, ok := s.engine.View().Locate(taskID)
	if !ok {
		return nil, board.ErrUnknownTask
	}
	t, err := s.engine.Move(ctx, s.api, taskID, status, index)
	s.changed()
	if err != nil || t == nil {
		return nil, err
	}
	s.announce(ctx, &event.TaskMove{
		WorkspaceID: s.workspaceID,
		TaskID:      t.ID,
		OldStatus:   from,
		NewStatus:   t.Status,
		NewOrder:    t.Order,
	})
	return t, nil
}

// Create adds a task to the workspace.
func (s *Session) Create(ctx context.Context, req task.CreateRequest) (*task.Task, error) {
	req.WorkspaceID = s.workspaceID
	t, err := s.api.CreateTask(ctx, req)
	if err != nil {
		return nil, err
	}
	s.engine.Upsert(*t)
	s.changed()
	s.announce(ctx, &event.TaskCreate{WorkspaceID: s.workspaceID, Task: *t})
	return t, nil
}

// Update edits a task's fields.
func (s *Session) Update(ctx context.Context, taskID string, req task.UpdateRequest) (*task.Task, error) {
	t, err := s.api.UpdateTask(ctx, taskID, req)
	if err != nil {
		return nil, err
	}
	s.engine.Upsert(*t)
	s.changed()
	s.announce(ctx, &event.TaskUpdate{WorkspaceID: s.workspaceID, TaskID: taskID, Updates: req})
	return t, nil
}

// Delete removes a task.
func (s *Session) Delete(ctx context.Context, taskID string) error {
	if _, err := s.api.DeleteTask(ctx, taskID); err != nil {
		return err
	}
	s.apply(&event.TaskDeleted{WorkspaceID: s.workspaceID, TaskID: taskID})
	s.announce(ctx, &event.TaskDelete{WorkspaceID: s.workspaceID, TaskID: taskID})
	return nil
}

// Comment adds a comment to a task.
func (s *Session) Comment(ctx context.Context, taskID string, req task.CommentRequest) (*task.Comment, error) {
	c, err := s.api.AddComment(ctx, taskID, req)
	if err != nil {
		return nil, err
	}
	s.apply(&event.CommentAdded{WorkspaceID: s.workspaceID, TaskID: taskID, Comment: *c})
	s.announce(ctx, &event.CommentAdd{WorkspaceID: s.workspaceID, TaskID: taskID, Comment: *c})
	return c, nil
}

// Editing announces that the user opened (true) or closed (false) the
// editor for a task.
func (s *Session) Editing(ctx context.Context, taskID string, open bool) error {
	if open {
		return s.conn.Send(ctx, &event.EditingStart{WorkspaceID: s.workspaceID, TaskID: taskID})
	}
	return s.conn.Send(ctx, &event.EditingEnd{WorkspaceID: s.workspaceID, TaskID: taskID})
}

// Typing announces that the user is writing a comment on a task.
func (s *Session) Typing(ctx context.Context, taskID string) error {
	return s.conn.Send(ctx, &event.CommentTyping{WorkspaceID: s.workspaceID, TaskID: taskID})
}

// Resync replaces the local board with a fresh copy from the server.
func (s *Session) Resync(ctx context.Context) error {
	snap, err := s.api.Board(ctx, s.workspaceID)
	if err != nil {
		return fmt.Errorf("resync board: %w", err)
	}
	s.engine.Reset(board.New(s.workspaceID, snap))
	s.changed()
	return nil
}

// Run applies room events until the connection's event stream ends, ctx
// is done or the user is removed from the workspace. After a reconnect or a sequence gap the board is reloaded
// instead of patched.
func (s *Session) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-s.conn.Events():
			if !ok {
				return nil
			}
			if s.OnEvent != nil {
				s.OnEvent(ev)
			}
			if rm, ok := ev.Payload.(*event.MemberRemoved); ok && rm.WorkspaceID == s.workspaceID {
				slog.Info("removed from workspace", "workspace_id", s.workspaceID)
				return ErrRemoved
			}
			if ev.Reconnected || ev.Gap {
				slog.Info("reloading board", "workspace_id", s.workspaceID, "reconnected", ev.Reconnected, "gap", ev.Gap)
				if err := s.Resync(ctx); err != nil {
					if errors.Is(err, context.Canceled) {
						return err
					}
					slog.Warn("board reload failed", "workspace_id", s.workspaceID, "error", err)
				}
				continue
			}
			if ev.Payload != nil {
				s.apply(ev.Payload)
			}
		}
	}
}

func (s *Session) apply(p event.Payload) {
	if s.engine.Apply(p) {
		s.changed()
	}
}

func (s *Session) changed() {
	if s.OnChange != nil {
		s.OnChange(s.engine.View())
	}
}

// announce relays a persisted change to the room. Relay is best effort;
// a failure leaves the other members to catch up on their next reload.
func (s *Session) announce(ctx context.Context, p event.Payload) {
	if err := s.conn.Send(ctx, p); err != nil {
		slog.Warn("relay failed", "workspace_id", s.workspaceID, "type", p.EventType(), "error", err)
	}
}
