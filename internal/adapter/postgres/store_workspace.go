package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/templehubsakshi/FlowSpace/internal/domain"
	"github.com/templehubsakshi/FlowSpace/internal/domain/user"
	"github.com/templehubsakshi/FlowSpace/internal/domain/workspace"
)

func (s *Store) CreateWorkspace(ctx context.Context, ws *workspace.Workspace) error {
	ws.CreatedAt = time.Now().UTC()
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO workspaces (id, name, description, owner_id, created_at)
			VALUES ($1, $2, $3, $4, $5)`,
			ws.ID, ws.Name, ws.Description, ws.OwnerID, ws.CreatedAt); err != nil {
			return fmt.Errorf("create workspace: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO workspace_members (workspace_id, user_id, role, joined_at)
			VALUES ($1, $2, $3, $4)`,
			ws.ID, ws.OwnerID, workspace.RoleOwner, ws.CreatedAt); err != nil {
			return fmt.Errorf("create workspace owner: %w", err)
		}
		return nil
	})
}

func (s *Store) GetWorkspace(ctx context.Context, id string) (*workspace.Workspace, error) {
	var ws workspace.Workspace
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, description, owner_id, created_at FROM workspaces WHERE id = $1`, id).
		Scan(&ws.ID, &ws.Name, &ws.Description, &ws.OwnerID, &ws.CreatedAt)
	if err != nil {
		return nil, notFoundWrap(err, "get workspace %s", id)
	}
	return &ws, nil
}

func (s *Store) ListWorkspacesForUser(ctx context.Context, userID string) ([]workspace.Workspace, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT w.id, w.name, w.description, w.owner_id, w.created_at
		FROM workspaces w JOIN workspace_members m ON m.workspace_id = w.id
		WHERE m.user_id = $1
		ORDER BY w.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	defer rows.Close()

	var out []workspace.Workspace
	for rows.Next() {
		var ws workspace.Workspace
		if err := rows.Scan(&ws.ID, &ws.Name, &ws.Description, &ws.OwnerID, &ws.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan workspace: %w", err)
		}
		out = append(out, ws)
	}
	return orEmpty(out), rows.Err()
}

func (s *Store) AddMember(ctx context.Context, m *workspace.Member) error {
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO workspace_members (workspace_id, user_id, role, joined_at)
		VALUES ($1, $2, $3, $4)`,
		m.WorkspaceID, m.UserID, m.Role, m.JoinedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("add member %s: %w", m.UserID, domain.ErrConflict)
		}
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

const memberSelect = `
	SELECT m.workspace_id, m.user_id, m.role, m.joined_at, u.name, u.email
	FROM workspace_members m JOIN users u ON u.id = m.user_id`

func (s *Store) GetMember(ctx context.Context, workspaceID, userID string) (*workspace.Member, error) {
	m, err := scanMember(s.pool.QueryRow(ctx, memberSelect+` WHERE m.workspace_id = $1 AND m.user_id = $2`, workspaceID, userID))
	if err != nil {
		return nil, notFoundWrap(err, "get member %s/%s", workspaceID, userID)
	}
	return m, nil
}

func (s *Store) ListMembers(ctx context.Context, workspaceID string) ([]workspace.Member, error) {
	rows, err := s.pool.Query(ctx, memberSelect+` WHERE m.workspace_id = $1 ORDER BY m.joined_at`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var out []workspace.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		out = append(out, *m)
	}
	return orEmpty(out), rows.Err()
}

func scanMember(row scannable) (*workspace.Member, error) {
	var m workspace.Member
	var ref user.Ref
	if err := row.Scan(&m.WorkspaceID, &m.UserID, &m.Role, &m.JoinedAt, &ref.Name, &ref.Email); err != nil {
		return nil, err
	}
	ref.ID = m.UserID
	m.User = &ref
	return &m, nil
}

func (s *Store) UpdateWorkspace(ctx context.Context, ws *workspace.Workspace) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE workspaces SET name = $2, description = $3 WHERE id = $1`,
		ws.ID, ws.Name, ws.Description)
	return execExpectOne(tag, err, "update workspace %s", ws.ID)
}

// DeleteWorkspace relies on ON DELETE CASCADE for members, tasks and comments.
func (s *Store) DeleteWorkspace(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM workspaces WHERE id = $1`, id)
	return execExpectOne(tag, err, "delete workspace %s", id)
}

func (s *Store) RemoveMember(ctx context.Context, workspaceID, userID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM workspace_members WHERE workspace_id = $1 AND user_id = $2`, workspaceID, userID)
	return execExpectOne(tag, err, "remove member %s/%s", workspaceID, userID)
}
