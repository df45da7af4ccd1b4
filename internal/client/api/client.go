// Package api is the HTTP client for the FlowSpace REST API.
//
// Only transport failures are retried, with capped exponential backoff and
// a small attempt limit. Every response the server actually produced,
// including 5xx, is final for the call and surfaces as an *Error.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/templehubsakshi/FlowSpace/internal/domain/notification"
	"github.com/templehubsakshi/FlowSpace/internal/domain/task"
	"github.com/templehubsakshi/FlowSpace/internal/domain/user"
	"github.com/templehubsakshi/FlowSpace/internal/domain/workspace"
)

const (
	defaultMaxAttempts = 3
	maxResponseSize    = 4 << 20
)

// Client talks to one FlowSpace server.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	maxAttempts uint
	retryDelay  time.Duration

	mu    sync.RWMutex
	token string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithMaxAttempts caps how many times a request is sent when the transport
// fails. Values below 1 are treated as 1.
func WithMaxAttempts(n uint) Option {
	return func(c *Client) { c.maxAttempts = max(n, 1) }
}

// WithRetryDelay sets the first backoff interval.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) { c.retryDelay = d }
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		maxAttempts: defaultMaxAttempts,
		retryDelay:  200 * time.Millisecond,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BaseURL returns the server address the client was created with.
func (c *Client) BaseURL() string { return c.baseURL }

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetToken replaces the bearer token.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Register creates an account and keeps the returned token.
func (c *Client) Register(ctx context.Context, req user.RegisterRequest) (*user.LoginResponse, error) {
	var resp user.LoginResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/register", req, &resp); err != nil {
		return nil, err
	}
	c.SetToken(resp.Token)
	return &resp, nil
}

// Login authenticates and keeps the returned token.
func (c *Client) Login(ctx context.Context, email, password string) (*user.LoginResponse, error) {
	var resp user.LoginResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", user.LoginRequest{Email: email, Password: password}, &resp)
	if err != nil {
		return nil, err
	}
	c.SetToken(resp.Token)
	return &resp, nil
}

// Me returns the account the token belongs to.
func (c *Client) Me(ctx context.Context) (*user.User, error) {
	var u user.User
	if err := c.do(ctx, http.MethodGet, "/api/v1/auth/me", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Workspaces lists the workspaces the caller belongs to.
func (c *Client) Workspaces(ctx context.Context) ([]workspace.Workspace, error) {
	var list []workspace.Workspace
	if err := c.do(ctx, http.MethodGet, "/api/v1/workspaces", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// CreateWorkspace creates a workspace owned by the caller.
func (c *Client) CreateWorkspace(ctx context.Context, req workspace.CreateRequest) (*workspace.Workspace, error) {
	var w workspace.Workspace
	if err := c.do(ctx, http.MethodPost, "/api/v1/workspaces", req, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// AddMember invites an existing account into a workspace.
func (c *Client) AddMember(ctx context.Context, workspaceID string, req workspace.AddMemberRequest) (*workspace.Member, error) {
	var m workspace.Member
	if err := c.do(ctx, http.MethodPost, "/api/v1/workspaces/"+url.PathEscape(workspaceID)+"/members", req, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// UpdateWorkspace renames or redescribes a workspace.
func (c *Client) UpdateWorkspace(ctx context.Context, workspaceID string, req workspace.UpdateRequest) (*workspace.Workspace, error) {
	var w workspace.Workspace
	if err := c.do(ctx, http.MethodPut, workspacePath(workspaceID), req, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// DeleteWorkspace removes a workspace the caller owns.
func (c *Client) DeleteWorkspace(ctx context.Context, workspaceID string) error {
	return c.do(ctx, http.MethodDelete, workspacePath(workspaceID), nil, nil)
}

// RemoveMember revokes a user's membership.
func (c *Client) RemoveMember(ctx context.Context, workspaceID, userID string) error {
	return c.do(ctx, http.MethodDelete, workspacePath(workspaceID)+"/members/"+url.PathEscape(userID), nil, nil)
}

// LeaveWorkspace ends the caller's own membership.
func (c *Client) LeaveWorkspace(ctx context.Context, workspaceID string) error {
	return c.do(ctx, http.MethodPost, workspacePath(workspaceID)+"/leave", nil, nil)
}

// Board fetches every task of a workspace grouped by column.
func (c *Client) Board(ctx context.Context, workspaceID string) (task.Board, error) {
	var b task.Board
	if err := c.do(ctx, http.MethodGet, "/api/v1/workspaces/"+url.PathEscape(workspaceID)+"/tasks", nil, &b); err != nil {
		return nil, err
	}
	return b, nil
}

// CreateTask creates a task at the end of its column.
func (c *Client) CreateTask(ctx context.Context, req task.CreateRequest) (*task.Task, error) {
	var t task.Task
	if err := c.do(ctx, http.MethodPost, "/api/v1/tasks", req, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTask fetches one task.
func (c *Client) GetTask(ctx context.Context, id string) (*task.Task, error) {
	var t task.Task
	if err := c.do(ctx, http.MethodGet, taskPath(id), nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateTask applies a partial update.
func (c *Client) UpdateTask(ctx context.Context, id string, req task.UpdateRequest) (*task.Task, error) {
	var t task.Task
	if err := c.do(ctx, http.MethodPut, taskPath(id), req, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// MoveTask persists a move and returns the server's copy of the task.
func (c *Client) MoveTask(ctx context.Context, id string, req task.MoveRequest) (*task.Task, error) {
	var t task.Task
	if err := c.do(ctx, http.MethodPatch, taskPath(id)+"/move", req, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// DeleteTask removes a task and returns it as it was.
func (c *Client) DeleteTask(ctx context.Context, id string) (*task.Task, error) {
	var t task.Task
	if err := c.do(ctx, http.MethodDelete, taskPath(id), nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// AddComment appends a comment to a task.
func (c *Client) AddComment(ctx context.Context, taskID string, req task.CommentRequest) (*task.Comment, error) {
	var cm task.Comment
	if err := c.do(ctx, http.MethodPost, taskPath(taskID)+"/comments", req, &cm); err != nil {
		return nil, err
	}
	return &cm, nil
}

// DeleteComment removes a comment.
func (c *Client) DeleteComment(ctx context.Context, taskID, commentID string) error {
	return c.do(ctx, http.MethodDelete, taskPath(taskID)+"/comments/"+url.PathEscape(commentID), nil, nil)
}

// Notifications lists the caller's notifications, newest first. A zero
// limit leaves the server default.
func (c *Client) Notifications(ctx context.Context, unreadOnly bool, limit int) ([]notification.Notification, error) {
	q := url.Values{}
	if unreadOnly {
		q.Set("unread", "true")
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/v1/notifications"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var list []notification.Notification
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// MarkNotificationRead marks one notification as read.
func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPatch, "/api/v1/notifications/"+url.PathEscape(id), nil, nil)
}

// MarkAllNotificationsRead marks every notification read and returns how
// many changed.
func (c *Client) MarkAllNotificationsRead(ctx context.Context) (int64, error) {
	var resp struct {
		Updated int64 `json:"updated"`
	}
	if err := c.do(ctx, http.MethodPatch, "/api/v1/notifications/mark-all-read", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Updated, nil
}

// UnreadNotificationCount returns how many notifications are unread.
func (c *Client) UnreadNotificationCount(ctx context.Context) (int64, error) {
	var resp struct {
		Count int64 `json:"count"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/notifications/unread-count", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// DeleteNotification removes one notification.
func (c *Client) DeleteNotification(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/notifications/"+url.PathEscape(id), nil, nil)
}

// ClearNotifications removes the caller's notifications, only those of
// workspaceID when it is not empty, and returns how many went.
func (c *Client) ClearNotifications(ctx context.Context, workspaceID string) (int64, error) {
	path := "/api/v1/notifications"
	if workspaceID != "" {
		path += "?" + url.Values{"workspaceId": {workspaceID}}.Encode()
	}
	var resp struct {
		Deleted int64 `json:"deleted"`
	}
	if err := c.do(ctx, http.MethodDelete, path, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Deleted, nil
}

func workspacePath(id string) string {
	return "/api/v1/workspaces/" + url.PathEscape(id)
}

func taskPath(id string) string {
	return "/api/v1/tasks/" + url.PathEscape(id)
}

func (c *Client) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryDelay
	b.MaxInterval = 2 * time.Second
	return b
}

// do sends in as JSON and decodes a successful response into out.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	tries := c.maxAttempts
	if method == http.MethodPost {
		// Not idempotent: a request lost after the server acted would be
		// applied twice.
		tries = 1
	}
	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		return struct{}{}, c.send(ctx, method, path, body, out)
	},
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(tries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			slog.Debug("retrying request", "method", method, "path", path, "attempt", attempt, "wait", wait, "error", err)
		}),
	)
	if err == nil {
		return nil
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return &Error{Message: err.Error(), Err: err}
}

// send performs one attempt. Transport failures come back retryable;
// anything the server answered is wrapped in backoff.Permanent.
func (c *Client) send(ctx context.Context, method, path string, body []byte, out any) error {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(&Error{Message: "request canceled", Err: ctx.Err()})
		}
		return &Error{Message: "server unreachable", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return &Error{Message: "reading response", Err: err}
	}
	if resp.StatusCode >= 400 {
		return backoff.Permanent(errorFromResponse(resp.StatusCode, data))
	}
	if out != nil && resp.StatusCode != http.StatusNoContent && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return backoff.Permanent(&Error{Status: resp.StatusCode, Message: "malformed response", Err: err})
		}
	}
	return nil
}
