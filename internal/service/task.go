package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	cfotel "github.com/templehubsakshi/FlowSpace/internal/adapter/otel"
	"github.com/templehubsakshi/FlowSpace/internal/domain"
	"github.com/templehubsakshi/FlowSpace/internal/domain/notification"
	"github.com/templehubsakshi/FlowSpace/internal/domain/task"
	"github.com/templehubsakshi/FlowSpace/internal/domain/user"
	"github.com/templehubsakshi/FlowSpace/internal/port/cache"
	"github.com/templehubsakshi/FlowSpace/internal/port/database"
)

// maxMoveAttempts bounds how often a move is re-read and re-applied after a
// version conflict before the conflict is reported to the caller.
const maxMoveAttempts = 3

// TaskService implements the move protocol and its sibling task mutations.
// It never broadcasts: clients relay their own successful mutations over
// the realtime channel.
type TaskService struct {
	store   database.Store
	members *MembershipService
	notify  *NotificationService
	boards  *boardCache
	group   singleflight.Group
	metrics *cfotel.Metrics
}

// NewTaskService creates a TaskService. boards may be nil to disable board
// snapshot caching; notify may be nil to disable personal notifications.
func NewTaskService(store database.Store, members *MembershipService, notify *NotificationService, boards cache.Cache, boardTTL time.Duration) *TaskService {
	s := &TaskService{store: store, members: members, notify: notify}
	if boards != nil {
		s.boards = &boardCache{c: boards, ttl: boardTTL}
	}
	return s
}

// SetMetrics enables move metrics.
func (s *TaskService) SetMetrics(m *cfotel.Metrics) {
	s.metrics = m
}

// Board returns the workspace's tasks grouped by column in display order.
func (s *TaskService) Board(ctx context.Context, actor *user.Ref, workspaceID string) (task.Board, error) {
	if err := s.members.Require(ctx, workspaceID, actor.ID); err != nil {
		return nil, err
	}
	if b, ok := s.boards.get(ctx, workspaceID); ok {
		return b, nil
	}
	// Loads are shared only within one generation, so a caller arriving
	// after a write never receives a snapshot read before it.
	gen := s.boards.generation(workspaceID)
	v, err, _ := s.group.Do(fmt.Sprintf("%s#%d", workspaceID, gen), func() (any, error) {
		tasks, err := s.store.ListTasks(ctx, workspaceID)
		if err != nil {
			return nil, err
		}
		b := task.GroupBoard(tasks)
		s.boards.set(ctx, workspaceID, gen, b)
		return b, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return v.(task.Board), nil
}

// Get returns one task if the actor is a member of its workspace.
func (s *TaskService) Get(ctx context.Context, actor *user.Ref, id string) (*task.Task, error) {
	t, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.members.Require(ctx, t.WorkspaceID, actor.ID); err != nil {
		return nil, err
	}
	return t, nil
}

// Create appends a new task to the end of its column.
func (s *TaskService) Create(ctx context.Context, actor *user.Ref, req task.CreateRequest) (*task.Task, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := s.members.Require(ctx, req.WorkspaceID, actor.ID); err != nil {
		return nil, err
	}
	if err := s.checkAssignee(ctx, req.WorkspaceID, req.AssigneeID); err != nil {
		return nil, err
	}
	t := &task.Task{
		ID:          uuid.NewString(),
		WorkspaceID: req.WorkspaceID,
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Priority:    req.Priority,
		AssigneeID:  req.AssigneeID,
		DueDate:     req.DueDate,
		Tags:        req.Tags,
		CreatorID:   actor.ID,
	}
	if err := s.store.CreateTask(ctx, t); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	s.boards.invalidate(ctx, t.WorkspaceID)
	slog.InfoContext(ctx, "task created", "task_id", t.ID, "workspace_id", t.WorkspaceID, "status", t.Status, "order", t.Order)

	if t.AssigneeID != "" {
		s.notify.notifyTask(ctx, notification.TypeTaskAssigned, t.AssigneeID, actor, t,
			fmt.Sprintf("%s assigned %q to you", actor.Name, t.Title))
	}
	return s.reload(ctx, t)
}

// Update applies a partial field edit. Like Move, a version conflict is
// retried against a fresh read because the request carries absolute values.
func (s *TaskService) Update(ctx context.Context, actor *user.Ref, id string, req task.UpdateRequest) (*task.Task, error) {
	var (
		t    *task.Task
		prev task.Task
	)
	for attempt := 1; ; attempt++ {
		cur, err := s.store.GetTask(ctx, id)
		if err != nil {
			return nil, err
		}
		if attempt == 1 {
			if err := s.members.Require(ctx, cur.WorkspaceID, actor.ID); err != nil {
				return nil, err
			}
		}
		prev = *cur
		if err := req.Apply(cur); err != nil {
			return nil, err
		}
		if cur.AssigneeID != prev.AssigneeID {
			if err := s.checkAssignee(ctx, cur.WorkspaceID, cur.AssigneeID); err != nil {
				return nil, err
			}
		}
		err = s.store.UpdateTask(ctx, cur)
		if err == nil {
			t = cur
			break
		}
		if !errors.Is(err, domain.ErrConflict) || attempt == maxMoveAttempts {
			return nil, fmt.Errorf("update task: %w", err)
		}
	}
	s.boards.invalidate(ctx, t.WorkspaceID)

	if t.AssigneeID != "" && t.AssigneeID != prev.AssigneeID {
		s.notify.notifyTask(ctx, notification.TypeTaskAssigned, t.AssigneeID, actor, t,
			fmt.Sprintf("%s assigned %q to you", actor.Name, t.Title))
	}
	if t.Status != prev.Status {
		s.notifyStatusChange(ctx, actor, t)
	}
	return s.reload(ctx, t)
}

// Move places a task at (NewStatus, NewOrder). A cross-column move shifts
// every destination task at or after NewOrder down by one; the source
// column keeps its gaps. Stale reads are retried up to maxMoveAttempts
// times, after which domain.ErrConflict is returned.
func (s *TaskService) Move(ctx context.Context, actor *user.Ref, id string, req task.MoveRequest) (_ *task.Task, err error) {
	ctx, span := cfotel.StartMoveSpan(ctx, id, string(req.NewStatus), req.NewOrder)
	started := time.Now()
	defer func() { cfotel.EndSpan(span, err) }()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	var (
		t         *task.Task
		oldStatus task.Status
	)
	for attempt := 1; ; attempt++ {
		cur, err := s.store.GetTask(ctx, id)
		if err != nil {
			return nil, err
		}
		if attempt == 1 {
			if err := s.members.Require(ctx, cur.WorkspaceID, actor.ID); err != nil {
				return nil, err
			}
		}
		oldStatus = cur.Move(req)
		err = s.store.MoveTask(ctx, cur, oldStatus)
		if err == nil {
			t = cur
			span.SetAttributes(attribute.Int("task.move_attempts", attempt))
			break
		}
		if !errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("move task: %w", err)
		}
		if s.metrics != nil {
			s.metrics.MoveConflicts.Add(ctx, 1)
		}
		slog.DebugContext(ctx, "move conflict, retrying", "task_id", id, "attempt", attempt)
		if attempt == maxMoveAttempts {
			return nil, fmt.Errorf("move task %s after %d attempts: %w", id, attempt, err)
		}
	}
	s.boards.invalidate(ctx, t.WorkspaceID)

	if s.metrics != nil {
		attrs := metric.WithAttributes(attribute.Bool("cross_column", oldStatus != t.Status))
		s.metrics.Moves.Add(ctx, 1, attrs)
		s.metrics.MoveDuration.Record(ctx, time.Since(started).Seconds(), attrs)
	}
	slog.InfoContext(ctx, "task moved",
		"task_id", t.ID, "workspace_id", t.WorkspaceID,
		"old_status", oldStatus, "new_status", t.Status, "new_order", t.Order)

	if oldStatus != t.Status {
		s.notifyStatusChange(ctx, actor, t)
	}
	return s.reload(ctx, t)
}

// Delete removes a task. Only its creator or a workspace admin/owner may.
func (s *TaskService) Delete(ctx context.Context, actor *user.Ref, id string) (*task.Task, error) {
	t, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	role, err := s.members.Role(ctx, t.WorkspaceID, actor.ID)
	if err != nil {
		return nil, err
	}
	if t.CreatorID != actor.ID && !role.CanManage() {
		return nil, domain.Denied("only the creator or a workspace admin can delete this task")
	}
	if err := s.store.DeleteTask(ctx, id); err != nil {
		return nil, fmt.Errorf("delete task: %w", err)
	}
	s.boards.invalidate(ctx, t.WorkspaceID)
	slog.InfoContext(ctx, "task deleted", "task_id", id, "workspace_id", t.WorkspaceID)
	return t, nil
}

// AddComment appends a comment and notifies mentioned members and the
// task's creator and assignee.
func (s *TaskService) AddComment(ctx context.Context, actor *user.Ref, taskID string, req task.CommentRequest) (*task.Comment, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	t, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.members.Require(ctx, t.WorkspaceID, actor.ID); err != nil {
		return nil, err
	}
	c := &task.Comment{
		ID:       uuid.NewString(),
		AuthorID: actor.ID,
		Text:     req.Text,
		Mentions: dedupe(req.Mentions),
	}
	if err := s.store.AddComment(ctx, taskID, c); err != nil {
		return nil, fmt.Errorf("add comment: %w", err)
	}
	s.boards.invalidate(ctx, t.WorkspaceID)

	mentioned := make(map[string]bool, len(c.Mentions))
	for _, uid := range c.Mentions {
		if s.members.Require(ctx, t.WorkspaceID, uid) != nil {
			continue
		}
		mentioned[uid] = true
		s.notify.notifyTask(ctx, notification.TypeTaskMentioned, uid, actor, t,
			fmt.Sprintf("%s mentioned you in %q", actor.Name, t.Title))
	}
	for _, uid := range dedupe([]string{t.CreatorID, t.AssigneeID}) {
		if uid == "" || mentioned[uid] {
			continue
		}
		s.notify.notifyTask(ctx, notification.TypeTaskCommented, uid, actor, t,
			fmt.Sprintf("%s commented on %q", actor.Name, t.Title))
	}
	return c, nil
}

// DeleteComment removes a comment. Only its author or a workspace
// admin/owner may.
func (s *TaskService) DeleteComment(ctx context.Context, actor *user.Ref, taskID, commentID string) error {
	t, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	role, err := s.members.Role(ctx, t.WorkspaceID, actor.ID)
	if err != nil {
		return err
	}
	c, err := s.store.GetComment(ctx, taskID, commentID)
	if err != nil {
		return err
	}
	if c.AuthorID != actor.ID && !role.CanManage() {
		return domain.Denied("only the author or a workspace admin can delete this comment")
	}
	if err := s.store.DeleteComment(ctx, taskID, commentID); err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	s.boards.invalidate(ctx, t.WorkspaceID)
	return nil
}

func (s *TaskService) checkAssignee(ctx context.Context, workspaceID, assigneeID string) error {
	if assigneeID == "" {
		return nil
	}
	if err := s.members.Require(ctx, workspaceID, assigneeID); err != nil {
		if errors.Is(err, domain.ErrForbidden) {
			return domain.Invalid("assignee must be a member of the workspace")
		}
		return err
	}
	return nil
}

func (s *TaskService) notifyStatusChange(ctx context.Context, actor *user.Ref, t *task.Task) {
	for _, uid := range dedupe([]string{t.CreatorID, t.AssigneeID}) {
		if uid == "" {
			continue
		}
		s.notify.notifyTask(ctx, notification.TypeTaskStatusChanged, uid, actor, t,
			fmt.Sprintf("%s moved %q to %s", actor.Name, t.Title, t.Status))
	}
}

// reload returns the stored copy so display fields (creator, assignee,
// comment authors) are populated. On a read failure the written copy is
// returned; the write already succeeded.
func (s *TaskService) reload(ctx context.Context, t *task.Task) (*task.Task, error) {
	fresh, err := s.store.GetTask(ctx, t.ID)
	if err != nil {
		slog.WarnContext(ctx, "reload after write failed", "task_id", t.ID, "error", err)
		return t, nil
	}
	return fresh, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
