package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/templehubsakshi/FlowSpace/internal/domain/notification"
	"github.com/templehubsakshi/FlowSpace/internal/domain/user"
)

func (s *Store) CreateNotification(ctx context.Context, n *notification.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notifications (id, recipient_id, sender_id, type, message, workspace_id, task_id, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		n.ID, n.RecipientID, n.SenderID, n.Type, n.Message,
		nullIfEmpty(n.WorkspaceID), nullIfEmpty(n.TaskID), n.Read, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

func (s *Store) ListNotifications(ctx context.Context, recipientID string, f notification.ListFilter) ([]notification.Notification, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT n.id, n.recipient_id, n.sender_id, n.type, n.message,
		       COALESCE(n.workspace_id, ''), COALESCE(n.task_id, ''), n.read, n.created_at, u.name, u.email
		FROM notifications n JOIN users u ON u.id = n.sender_id
		WHERE n.recipient_id = $1 AND ($2 = false OR n.read = false)
		ORDER BY n.created_at DESC
		LIMIT $3`, recipientID, f.UnreadOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []notification.Notification
	for rows.Next() {
		var n notification.Notification
		var sender user.Ref
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.SenderID, &n.Type, &n.Message,
			&n.WorkspaceID, &n.TaskID, &n.Read, &n.CreatedAt, &sender.Name, &sender.Email); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		sender.ID = n.SenderID
		n.Sender = &sender
		out = append(out, n)
	}
	return orEmpty(out), rows.Err()
}

func (s *Store) MarkNotificationRead(ctx context.Context, recipientID, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE notifications SET read = true WHERE id = $1 AND recipient_id = $2`, id, recipientID)
	return execExpectOne(tag, err, "mark notification %s read", id)
}

func (s *Store) MarkAllNotificationsRead(ctx context.Context, recipientID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE notifications SET read = true WHERE recipient_id = $1 AND read = false`, recipientID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) DeleteNotificationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM notifications WHERE created_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete old notifications: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) CountUnreadNotifications(ctx context.Context, recipientID string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM notifications WHERE recipient_id = $1 AND read = false`, recipientID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return n, nil
}

func (s *Store) DeleteNotification(ctx context.Context, recipientID, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM notifications WHERE id = $1 AND recipient_id = $2`, id, recipientID)
	return execExpectOne(tag, err, "delete notification %s", id)
}

func (s *Store) DeleteNotifications(ctx context.Context, recipientID, workspaceID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM notifications
		WHERE recipient_id = $1 AND ($2 = '' OR workspace_id = $2)`, recipientID, workspaceID)
	if err != nil {
		return 0, fmt.Errorf("clear notifications: %w", err)
	}
	return tag.RowsAffected(), nil
}
