// Package service contains application services.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/templehubsakshi/FlowSpace/internal/domain/event"
	"github.com/templehubsakshi/FlowSpace/internal/domain/notification"
	"github.com/templehubsakshi/FlowSpace/internal/domain/task"
	"github.com/templehubsakshi/FlowSpace/internal/domain/user"
	"github.com/templehubsakshi/FlowSpace/internal/port/broadcast"
	"github.com/templehubsakshi/FlowSpace/internal/port/database"
)

// NotificationService persists personal notifications and pushes them to
// every live connection of the recipient. Delivery over the socket is best
// effort; the stored copy is what the notification list shows.
type NotificationService struct {
	store     database.NotificationStore
	retention time.Duration
	now       func() time.Time

	mu  sync.RWMutex
	bus broadcast.Broadcaster
}

// NewNotificationService creates a NotificationService. Notifications older
// than retention are removed by Sweep.
func NewNotificationService(store database.NotificationStore, retention time.Duration) *NotificationService {
	return &NotificationService{store: store, retention: retention, now: time.Now}
}

// SetBroadcaster wires the realtime hub. The hub depends on the other
// services, so it is attached after construction.
func (s *NotificationService) SetBroadcaster(b broadcast.Broadcaster) {
	s.mu.Lock()
	s.bus = b
	s.mu.Unlock()
}

// Notify stores n and pushes it to the recipient. Notifications addressed
// to their own sender are dropped.
func (s *NotificationService) Notify(ctx context.Context, n notification.Notification) error {
	if n.RecipientID == "" || n.RecipientID == n.SenderID {
		return nil
	}
	n.ID = uuid.NewString()
	n.CreatedAt = s.now().UTC()
	n.Read = false
	if err := s.store.CreateNotification(ctx, &n); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}

	s.mu.RLock()
	bus := s.bus
	s.mu.RUnlock()
	if bus != nil {
		bus.SendToUser(ctx, n.RecipientID, &event.NotificationNew{Notification: n})
	}
	slog.DebugContext(ctx, "notification sent", "type", n.Type, "recipient_id", n.RecipientID, "task_id", n.TaskID)
	return nil
}

// notifyTask is the fire-and-forget form used by the task service: a
// failed notification never fails the mutation that caused it.
func (s *NotificationService) notifyTask(ctx context.Context, typ notification.Type, recipientID string, sender *user.Ref, t *task.Task, message string) {
	if s == nil {
		return
	}
	n := notification.Notification{
		RecipientID: recipientID,
		SenderID:    sender.ID,
		Sender:      sender,
		Type:        typ,
		Message:     message,
		WorkspaceID: t.WorkspaceID,
		TaskID:      t.ID,
	}
	if err := s.Notify(ctx, n); err != nil {
		slog.WarnContext(ctx, "notification failed", "type", typ, "task_id", t.ID, "error", err)
	}
}

// List returns the recipient's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, recipientID string, f notification.ListFilter) ([]notification.Notification, error) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}
	return s.store.ListNotifications(ctx, recipientID, f)
}

// MarkRead marks one of the recipient's notifications read.
func (s *NotificationService) MarkRead(ctx context.Context, recipientID, id string) error {
	return s.store.MarkNotificationRead(ctx, recipientID, id)
}

// MarkAllRead marks every unread notification of the recipient read.
func (s *NotificationService) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	return s.store.MarkAllNotificationsRead(ctx, recipientID)
}

// UnreadCount returns how many of the recipient's notifications are unread.
func (s *NotificationService) UnreadCount(ctx context.Context, recipientID string) (int64, error) {
	return s.store.CountUnreadNotifications(ctx, recipientID)
}

// Delete removes one of the recipient's notifications.
func (s *NotificationService) Delete(ctx context.Context, recipientID, id string) error {
	return s.store.DeleteNotification(ctx, recipientID, id)
}

// Clear removes the recipient's notifications, only those of workspaceID
// when it is not empty.
func (s *NotificationService) Clear(ctx context.Context, recipientID, workspaceID string) (int64, error) {
	n, err := s.store.DeleteNotifications(ctx, recipientID, workspaceID)
	if err != nil {
		return 0, fmt.Errorf("clear notifications: %w", err)
	}
	return n, nil
}

// Sweep deletes notifications older than the retention window.
func (s *NotificationService) Sweep(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.retention)
	n, err := s.store.DeleteNotificationsBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep notifications: %w", err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "notifications swept", "deleted", n, "cutoff", cutoff)
	}
	return n, nil
}

// StartSweeper runs Sweep on the cron schedule until the returned stop
// function is called.
func (s *NotificationService) StartSweeper(ctx context.Context, schedule string) (stop func(), err error) {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		if _, err := s.Sweep(ctx); err != nil {
			slog.ErrorContext(ctx, "notification sweep failed", "error", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("schedule %q: %w", schedule, err)
	}
	c.Start()
	return func() { <-c.Stop().Done() }, nil
}
