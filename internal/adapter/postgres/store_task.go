package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/templehubsakshi/FlowSpace/internal/domain"
	"github.com/templehubsakshi/FlowSpace/internal/domain/task"
	"github.com/templehubsakshi/FlowSpace/internal/domain/user"
)

const taskSelect = `
	SELECT t.id, t.workspace_id, t.title, t.description, t.status, t.priority, t.sort_order,
	       COALESCE(t.assignee_id, ''), t.due_date, t.tags, t.creator_id, t.version, t.created_at, t.updated_at,
	       c.name, c.email, COALESCE(a.name, ''), COALESCE(a.email, '')
	FROM tasks t
	JOIN users c ON c.id = t.creator_id
	LEFT JOIN users a ON a.id = t.assignee_id`

func (s *Store) CreateTask(ctx context.Context, t *task.Task) error {
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	t.Version = 1
	t.Tags = pgTextArray(t.Tags)
	t.Comments = orEmpty(t.Comments)

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := lockColumn(ctx, tx, t.WorkspaceID, t.Status); err != nil {
			return err
		}
		err := tx.QueryRow(ctx, `
			INSERT INTO tasks (id, workspace_id, title, description, status, priority, sort_order,
			                   assignee_id, due_date, tags, creator_id, version, created_at, updated_at)
			SELECT $1, $2, $3, $4, $5, $6, COALESCE(MAX(sort_order) + 1, 0), $7, $8, $9, $10, 1, $11, $11
			FROM tasks WHERE workspace_id = $2 AND status = $5
			RETURNING sort_order`,
			t.ID, t.WorkspaceID, t.Title, t.Description, t.Status, t.Priority,
			nullIfEmpty(t.AssigneeID), nullTime(t.DueDate), t.Tags, t.CreatorID, now,
		).Scan(&t.Order)
		if err != nil {
			return fmt.Errorf("create task: %w", err)
		}
		return nil
	})
}

func (s *Store) GetTask(ctx context.Context, id string) (*task.Task, error) {
	t, err := scanTask(s.pool.QueryRow(ctx, taskSelect+` WHERE t.id = $1`, id))
	if err != nil {
		return nil, notFoundWrap(err, "get task %s", id)
	}
	comments, err := s.loadComments(ctx, []string{t.ID})
	if err != nil {
		return nil, err
	}
	t.Comments = orEmpty(comments[t.ID])
	return t, nil
}

func (s *Store) ListTasks(ctx context.Context, workspaceID string) ([]task.Task, error) {
	rows, err := s.pool.Query(ctx, taskSelect+`
		WHERE t.workspace_id = $1
		ORDER BY t.status, t.sort_order ASC, t.updated_at DESC`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []task.Task
	var ids []string
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
		ids = append(ids, t.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	comments, err := s.loadComments(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range tasks {
		tasks[i].Comments = orEmpty(comments[tasks[i].ID])
	}
	return orEmpty(tasks), nil
}

func (s *Store) UpdateTask(ctx context.Context, t *task.Task) error {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx, `
		UPDATE tasks SET title = $2, description = $3, status = $4, priority = $5,
		                 assignee_id = $6, due_date = $7, tags = $8, version = version + 1, updated_at = $9
		WHERE id = $1 AND version = $10`,
		t.ID, t.Title, t.Description, t.Status, t.Priority,
		nullIfEmpty(t.AssigneeID), nullTime(t.DueDate), pgTextArray(t.Tags), now, t.Version)
	if err != nil {
		return fmt.Errorf("update task %s: %w", t.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return s.missOrConflict(ctx, s.pool, "update task", t.ID)
	}
	t.Version++
	t.UpdatedAt = now
	return nil
}

func (s *Store) MoveTask(ctx context.Context, t *task.Task, oldStatus task.Status) error {
	now := time.Now().UTC()
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := lockColumn(ctx, tx, t.WorkspaceID, t.Status); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `
			UPDATE tasks SET status = $2, sort_order = $3, version = version + 1, updated_at = $4
			WHERE id = $1 AND version = $5`,
			t.ID, t.Status, t.Order, now, t.Version)
		if err != nil {
			return fmt.Errorf("move task %s: %w", t.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return s.missOrConflict(ctx, tx, "move task", t.ID)
		}
		if !task.ShiftsDestination(oldStatus, t.Status) {
			return nil
		}
		if _, err := tx.Exec(ctx, `
			UPDATE tasks SET sort_order = sort_order + 1
			WHERE workspace_id = $1 AND status = $2 AND sort_order >= $3 AND id <> $4`,
			t.WorkspaceID, t.Status, t.Order, t.ID); err != nil {
			return fmt.Errorf("shift column %s: %w", t.Status, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	t.Version++
	t.UpdatedAt = now
	return nil
}

func (s *Store) DeleteTask(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	return execExpectOne(tag, err, "delete task %s", id)
}

func (s *Store) AddComment(ctx context.Context, taskID string, c *task.Comment) error {
	c.CreatedAt = time.Now().UTC()
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE tasks SET updated_at = $2 WHERE id = $1`, taskID, c.CreatedAt)
		if err := execExpectOne(tag, err, "add comment to task %s", taskID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO task_comments (id, task_id, author_id, text, mentions, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			c.ID, taskID, c.AuthorID, c.Text, pgTextArray(c.Mentions), c.CreatedAt); err != nil {
			return fmt.Errorf("add comment: %w", err)
		}
		return nil
	})
}

func (s *Store) GetComment(ctx context.Context, taskID, commentID string) (*task.Comment, error) {
	c, _, err := scanComment(s.pool.QueryRow(ctx, commentSelect+` WHERE cm.task_id = $1 AND cm.id = $2`, taskID, commentID))
	if err != nil {
		return nil, notFoundWrap(err, "get comment %s", commentID)
	}
	return c, nil
}

func (s *Store) DeleteComment(ctx context.Context, taskID, commentID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM task_comments WHERE task_id = $1 AND id = $2`, taskID, commentID)
	return execExpectOne(tag, err, "delete comment %s", commentID)
}

const commentSelect = `
	SELECT cm.id, cm.task_id, cm.author_id, cm.text, cm.mentions, cm.created_at, u.name, u.email
	FROM task_comments cm JOIN users u ON u.id = cm.author_id`

func (s *Store) loadComments(ctx context.Context, taskIDs []string) (map[string][]task.Comment, error) {
	out := make(map[string][]task.Comment, len(taskIDs))
	if len(taskIDs) == 0 {
		return out, nil
	}
	rows, err := s.pool.Query(ctx, commentSelect+` WHERE cm.task_id = ANY($1) ORDER BY cm.created_at`, taskIDs)
	if err != nil {
		return nil, fmt.Errorf("load comments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		c, taskID, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		out[taskID] = append(out[taskID], *c)
	}
	return out, rows.Err()
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// missOrConflict tells a vanished row apart from a stale version after a
// conditional write touched nothing.
func (s *Store) missOrConflict(ctx context.Context, q querier, op, id string) error {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tasks WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("%s %s: %w", op, id, err)
	}
	if !exists {
		return fmt.Errorf("%s %s: %w", op, id, domain.ErrNotFound)
	}
	return fmt.Errorf("%s %s: %w", op, id, domain.ErrConflict)
}

func scanTask(row scannable) (*task.Task, error) {
	var t task.Task
	var creator, assignee user.Ref
	err := row.Scan(&t.ID, &t.WorkspaceID, &t.Title, &t.Description, &t.Status, &t.Priority, &t.Order,
		&t.AssigneeID, &t.DueDate, &t.Tags, &t.CreatorID, &t.Version, &t.CreatedAt, &t.UpdatedAt,
		&creator.Name, &creator.Email, &assignee.Name, &assignee.Email)
	if err != nil {
		return nil, err
	}
	creator.ID = t.CreatorID
	t.Creator = &creator
	if t.AssigneeID != "" {
		assignee.ID = t.AssigneeID
		t.Assignee = &assignee
	}
	t.Tags = pgTextArray(t.Tags)
	return &t, nil
}

func scanComment(row scannable) (*task.Comment, string, error) {
	var c task.Comment
	var taskID string
	var author user.Ref
	if err := row.Scan(&c.ID, &taskID, &c.AuthorID, &c.Text, &c.Mentions, &c.CreatedAt, &author.Name, &author.Email); err != nil {
		return nil, "", err
	}
	author.ID = c.AuthorID
	c.Author = &author
	if len(c.Mentions) == 0 {
		c.Mentions = nil
	}
	return &c, taskID, nil
}

