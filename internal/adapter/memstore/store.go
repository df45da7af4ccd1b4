// Package memstore implements database.Store in process memory. It backs
// the "memory" storage driver for local development and the service tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/templehubsakshi/FlowSpace/internal/domain"
	"github.com/templehubsakshi/FlowSpace/internal/domain/notification"
	"github.com/templehubsakshi/FlowSpace/internal/domain/task"
	"github.com/templehubsakshi/FlowSpace/internal/domain/user"
	"github.com/templehubsakshi/FlowSpace/internal/domain/workspace"
)

type memberKey struct{ workspaceID, userID string }

// Store is a mutex-guarded map store. All values are copied on the way in
// and out so callers never share memory with the store.
type Store struct {
	mu            sync.RWMutex
	users         map[string]user.User
	workspaces    map[string]workspace.Workspace
	members       map[memberKey]workspace.Member
	tasks         map[string]task.Task
	notifications map[string]notification.Notification
	now           func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		users:         make(map[string]user.User),
		workspaces:    make(map[string]workspace.Workspace),
		members:       make(map[memberKey]workspace.Member),
		tasks:         make(map[string]task.Task),
		notifications: make(map[string]notification.Notification),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// --- Users ---

func (s *Store) CreateUser(_ context.Context, u *user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return fmt.Errorf("create user %s: %w", u.Email, domain.ErrConflict)
		}
	}
	now := s.now()
	u.CreatedAt, u.UpdatedAt = now, now
	s.users[u.ID] = *u
	return nil
}

func (s *Store) GetUser(_ context.Context, id string) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("get user %s: %w", id, domain.ErrNotFound)
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, fmt.Errorf("get user by email %s: %w", email, domain.ErrNotFound)
}

func (s *Store) ListUsers(_ context.Context) ([]user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]user.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// --- Workspaces ---

func (s *Store) CreateWorkspace(_ context.Context, ws *workspace.Workspace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws.CreatedAt = s.now()
	s.workspaces[ws.ID] = *ws
	s.members[memberKey{ws.ID, ws.OwnerID}] = workspace.Member{
		WorkspaceID: ws.ID, UserID: ws.OwnerID, Role: workspace.RoleOwner, JoinedAt: ws.CreatedAt,
	}
	return nil
}

func (s *Store) GetWorkspace(_ context.Context, id string) (*workspace.Workspace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ws, ok := s.workspaces[id]
	if !ok {
		return nil, fmt.Errorf("get workspace %s: %w", id, domain.ErrNotFound)
	}
	return &ws, nil
}

func (s *Store) ListWorkspacesForUser(_ context.Context, userID string) ([]workspace.Workspace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []workspace.Workspace{}
	for k := range s.members {
		if k.userID == userID {
			out = append(out, s.workspaces[k.workspaceID])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) AddMember(_ context.Context, m *workspace.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workspaces[m.WorkspaceID]; !ok {
		return fmt.Errorf("add member: workspace %s: %w", m.WorkspaceID, domain.ErrNotFound)
	}
	k := memberKey{m.WorkspaceID, m.UserID}
	if _, ok := s.members[k]; ok {
		return fmt.Errorf("add member %s: %w", m.UserID, domain.ErrConflict)
	}
	if m.JoinedAt.IsZero() {
		m.JoinedAt = s.now()
	}
	stored := *m
	stored.User = nil
	s.members[k] = stored
	return nil
}

func (s *Store) GetMember(_ context.Context, workspaceID, userID string) (*workspace.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[memberKey{workspaceID, userID}]
	if !ok {
		return nil, fmt.Errorf("get member %s/%s: %w", workspaceID, userID, domain.ErrNotFound)
	}
	m.User = s.refLocked(m.UserID)
	return &m, nil
}

func (s *Store) ListMembers(_ context.Context, workspaceID string) ([]workspace.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []workspace.Member{}
	for k, m := range s.members {
		if k.workspaceID == workspaceID {
			m.User = s.refLocked(m.UserID)
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (s *Store) UpdateWorkspace(_ context.Context, ws *workspace.Workspace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.workspaces[ws.ID]
	if !ok {
		return fmt.Errorf("update workspace %s: %w", ws.ID, domain.ErrNotFound)
	}
	cur.Name, cur.Description = ws.Name, ws.Description
	s.workspaces[ws.ID] = cur
	return nil
}

// DeleteWorkspace cascades to members and tasks like the SQL schema does.
func (s *Store) DeleteWorkspace(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workspaces[id]; !ok {
		return fmt.Errorf("delete workspace %s: %w", id, domain.ErrNotFound)
	}
	delete(s.workspaces, id)
	for k := range s.members {
		if k.workspaceID == id {
			delete(s.members, k)
		}
	}
	for tid, t := range s.tasks {
		if t.WorkspaceID == id {
			delete(s.tasks, tid)
		}
	}
	return nil
}

func (s *Store) RemoveMember(_ context.Context, workspaceID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := memberKey{workspaceID, userID}
	if _, ok := s.members[k]; !ok {
		return fmt.Errorf("remove member %s/%s: %w", workspaceID, userID, domain.ErrNotFound)
	}
	delete(s.members, k)
	return nil
}

// --- Tasks ---

func (s *Store) CreateTask(_ context.Context, t *task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	t.CreatedAt, t.UpdatedAt = now, now
	t.Version = 1
	t.Order = task.NextOrder(s.columnLocked(t.WorkspaceID, t.Status))
	if t.Tags == nil {
		t.Tags = []string{}
	}
	t.Comments = []task.Comment{}
	s.tasks[t.ID] = cloneTask(*t)
	s.decorateLocked(t)
	return nil
}

func (s *Store) GetTask(_ context.Context, id string) (*task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("get task %s: %w", id, domain.ErrNotFound)
	}
	t = cloneTask(t)
	s.decorateLocked(&t)
	return &t, nil
}

func (s *Store) ListTasks(_ context.Context, workspaceID string) ([]task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []task.Task{}
	for _, t := range s.tasks {
		if t.WorkspaceID == workspaceID {
			t = cloneTask(t)
			s.decorateLocked(&t)
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Status < out[j].Status })
	for _, st := range task.Statuses {
		lo := sort.Search(len(out), func(i int) bool { return out[i].Status >= st })
		hi := sort.Search(len(out), func(i int) bool { return out[i].Status > st })
		task.SortColumn(out[lo:hi])
	}
	return out, nil
}

func (s *Store) UpdateTask(_ context.Context, t *task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.casLocked("update task", t)
	if err != nil {
		return err
	}
	cur.Title, cur.Description = t.Title, t.Description
	cur.Status, cur.Priority = t.Status, t.Priority
	cur.AssigneeID, cur.DueDate = t.AssigneeID, t.DueDate
	cur.Tags = append([]string{}, t.Tags...)
	cur.Version++
	cur.UpdatedAt = s.now()
	s.tasks[cur.ID] = cur

	t.Version, t.UpdatedAt = cur.Version, cur.UpdatedAt
	return nil
}

func (s *Store) MoveTask(_ context.Context, t *task.Task, oldStatus task.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.casLocked("move task", t)
	if err != nil {
		return err
	}
	now := s.now()
	cur.Status, cur.Order = t.Status, t.Order
	cur.Version++
	cur.UpdatedAt = now
	s.tasks[cur.ID] = cur

	if task.ShiftsDestination(oldStatus, t.Status) {
		for id, other := range s.tasks {
			if id == t.ID || other.WorkspaceID != t.WorkspaceID || other.Status != t.Status {
				continue
			}
			if other.Order >= t.Order {
				other.Order++
				s.tasks[id] = other
			}
		}
	}

	t.Version, t.UpdatedAt = cur.Version, now
	return nil
}

func (s *Store) DeleteTask(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return fmt.Errorf("delete task %s: %w", id, domain.ErrNotFound)
	}
	delete(s.tasks, id)
	return nil
}

func (s *Store) AddComment(_ context.Context, taskID string, c *task.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return fmt.Errorf("add comment to task %s: %w", taskID, domain.ErrNotFound)
	}
	c.CreatedAt = s.now()
	stored := *c
	stored.Author = nil
	stored.Mentions = append([]string(nil), c.Mentions...)
	t.Comments = append(t.Comments, stored)
	t.UpdatedAt = c.CreatedAt
	s.tasks[taskID] = t
	c.Author = s.refLocked(c.AuthorID)
	return nil
}

func (s *Store) GetComment(_ context.Context, taskID, commentID string) (*task.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("get comment %s: %w", commentID, domain.ErrNotFound)
	}
	for _, c := range t.Comments {
		if c.ID == commentID {
			c.Author = s.refLocked(c.AuthorID)
			return &c, nil
		}
	}
	return nil, fmt.Errorf("get comment %s: %w", commentID, domain.ErrNotFound)
}

func (s *Store) DeleteComment(_ context.Context, taskID, commentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if ok {
		for i, c := range t.Comments {
			if c.ID == commentID {
				t.Comments = append(t.Comments[:i:i], t.Comments[i+1:]...)
				s.tasks[taskID] = t
				return nil
			}
		}
	}
	return fmt.Errorf("delete comment %s: %w", commentID, domain.ErrNotFound)
}

// --- Notifications ---

func (s *Store) CreateNotification(_ context.Context, n *notification.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	stored := *n
	stored.Sender = nil
	s.notifications[n.ID] = stored
	return nil
}

func (s *Store) ListNotifications(_ context.Context, recipientID string, f notification.ListFilter) ([]notification.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []notification.Notification{}
	for _, n := range s.notifications {
		if n.RecipientID != recipientID || (f.UnreadOnly && n.Read) {
			continue
		}
		n.Sender = s.refLocked(n.SenderID)
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MarkNotificationRead(_ context.Context, recipientID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok || n.RecipientID != recipientID {
		return fmt.Errorf("mark notification %s read: %w", id, domain.ErrNotFound)
	}
	n.Read = true
	s.notifications[id] = n
	return nil
}

func (s *Store) MarkAllNotificationsRead(_ context.Context, recipientID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, nt := range s.notifications {
		if nt.RecipientID == recipientID && !nt.Read {
			nt.Read = true
			s.notifications[id] = nt
			n++
		}
	}
	return n, nil
}

func (s *Store) CountUnreadNotifications(_ context.Context, recipientID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, nt := range s.notifications {
		if nt.RecipientID == recipientID && !nt.Read {
			n++
		}
	}
	return n, nil
}

func (s *Store) DeleteNotification(_ context.Context, recipientID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok || n.RecipientID != recipientID {
		return fmt.Errorf("delete notification %s: %w", id, domain.ErrNotFound)
	}
	delete(s.notifications, id)
	return nil
}

func (s *Store) DeleteNotifications(_ context.Context, recipientID, workspaceID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, nt := range s.notifications {
		if nt.RecipientID == recipientID && (workspaceID == "" || nt.WorkspaceID == workspaceID) {
			delete(s.notifications, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) DeleteNotificationsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, nt := range s.notifications {
		if nt.CreatedAt.Before(cutoff) {
			delete(s.notifications, id)
			n++
		}
	}
	return n, nil
}

// --- helpers (caller holds s.mu) ---

func (s *Store) casLocked(op string, t *task.Task) (task.Task, error) {
	cur, ok := s.tasks[t.ID]
	if !ok {
		return task.Task{}, fmt.Errorf("%s %s: %w", op, t.ID, domain.ErrNotFound)
	}
	if cur.Version != t.Version {
		return task.Task{}, fmt.Errorf("%s %s: %w", op, t.ID, domain.ErrConflict)
	}
	return cur, nil
}

func (s *Store) columnLocked(workspaceID string, status task.Status) []task.Task {
	var col []task.Task
	for _, t := range s.tasks {
		if t.WorkspaceID == workspaceID && t.Status == status {
			col = append(col, t)
		}
	}
	return col
}

func (s *Store) refLocked(userID string) *user.Ref {
	u, ok := s.users[userID]
	if !ok {
		return &user.Ref{ID: userID}
	}
	return u.Ref()
}

func (s *Store) decorateLocked(t *task.Task) {
	t.Creator = s.refLocked(t.CreatorID)
	t.Assignee = nil
	if t.AssigneeID != "" {
		t.Assignee = s.refLocked(t.AssigneeID)
	}
	for i := range t.Comments {
		t.Comments[i].Author = s.refLocked(t.Comments[i].AuthorID)
	}
}

func cloneTask(t task.Task) task.Task {
	t.Tags = append([]string{}, t.Tags...)
	t.Comments = append([]task.Comment{}, t.Comments...)
	if t.DueDate != nil {
		d := *t.DueDate
		t.DueDate = &d
	}
	t.Creator, t.Assignee = nil, nil
	return t
}
