package api_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/templehubsakshi/FlowSpace/internal/client/api"
	"github.com/templehubsakshi/FlowSpace/internal/client/clienttest"
	"github.com/templehubsakshi/FlowSpace/internal/domain"
	"github.com/templehubsakshi/FlowSpace/internal/domain/task"
	"github.com/templehubsakshi/FlowSpace/internal/domain/user"
	"github.com/templehubsakshi/FlowSpace/internal/domain/workspace"
)

func TestClient_BoardFlow(t *testing.T) {
	srv := clienttest.NewServer(t)
	ctx := context.Background()

	c := api.New(srv.URL)
	resp, err := c.Register(ctx, user.RegisterRequest{Name: "Ada", Email: "ada@example.com", Password: "password123"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if c.Token() == "" || resp.User.Name != "Ada" {
		t.Fatalf("Register did not keep the session: %+v", resp)
	}
	wsID := srv.Workspace(t, resp.User)

	a, err := c.CreateTask(ctx, task.CreateRequest{WorkspaceID: wsID, Title: "write docs"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if _, err := c.CreateTask(ctx, task.CreateRequest{WorkspaceID: wsID, Title: "ship", Status: task.StatusDone}); err != nil {
		t.Fatal(err)
	}

	moved, err := c.MoveTask(ctx, a.ID, task.MoveRequest{NewStatus: task.StatusDone, NewOrder: 0})
	if err != nil {
		t.Fatalf("MoveTask: %v", err)
	}
	if moved.Status != task.StatusDone || moved.Order != 0 {
		t.Errorf("moved = %s/%d, want done/0", moved.Status, moved.Order)
	}

	b, err := c.Board(ctx, wsID)
	if err != nil {
		t.Fatalf("Board: %v", err)
	}
	done := b[task.StatusDone]
	if len(done) != 2 || done[0].ID != a.ID || done[1].Order != 1 {
		t.Errorf("done column = %+v, want moved task first and a shifted neighbour", done)
	}

	cm, err := c.AddComment(ctx, a.ID, task.CommentRequest{Text: "looks good"})
	if err != nil || cm.Text != "looks good" {
		t.Fatalf("AddComment = %+v, %v", cm, err)
	}
	if err := c.DeleteComment(ctx, a.ID, cm.ID); err != nil {
		t.Fatalf("DeleteComment: %v", err)
	}
	if _, err := c.DeleteTask(ctx, a.ID); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	if _, err := c.GetTask(ctx, a.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetTask after delete err = %v, want not found", err)
	}
}

func TestClient_MembershipFlow(t *testing.T) {
	srv := clienttest.NewServer(t)
	ctx := context.Background()
	ada, adaToken := srv.User(t, "ada")
	bob, bobToken := srv.User(t, "bob")
	wsID := srv.Workspace(t, ada)

	owner := api.New(srv.URL, api.WithToken(adaToken))
	member := api.New(srv.URL, api.WithToken(bobToken))
	if _, err := owner.AddMember(ctx, wsID, workspace.AddMemberRequest{Email: bob.Email}); err != nil {
		t.Fatal(err)
	}
	if n, err := member.UnreadNotificationCount(ctx); err != nil || n != 1 {
		t.Errorf("unread = %d, %v; want the invite", n, err)
	}
	if _, err := member.Board(ctx, wsID); err != nil {
		t.Fatalf("member board: %v", err)
	}

	name := "Renamed"
	w, err := owner.UpdateWorkspace(ctx, wsID, workspace.UpdateRequest{Name: &name})
	if err != nil || w.Name != name {
		t.Fatalf("UpdateWorkspace = %+v, %v", w, err)
	}
	if err := owner.RemoveMember(ctx, wsID, bob.ID); err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}
	if _, err := member.Board(ctx, wsID); api.KindOf(err) != api.KindAuthorization {
		t.Errorf("removed member board: kind = %q, want authorization", api.KindOf(err))
	}
	if err := member.LeaveWorkspace(ctx, wsID); api.KindOf(err) != api.KindAuthorization {
		t.Errorf("removed member leave: kind = %q, want authorization", api.KindOf(err))
	}

	if n, err := member.ClearNotifications(ctx, wsID); err != nil || n != 1 {
		t.Errorf("ClearNotifications = %d, %v; want 1", n, err)
	}
	if err := owner.DeleteWorkspace(ctx, wsID); err != nil {
		t.Fatalf("DeleteWorkspace: %v", err)
	}
	if list, err := owner.Workspaces(ctx); err != nil || len(list) != 0 {
		t.Errorf("workspaces after delete = %+v, %v", list, err)
	}
}

func TestClient_ErrorKinds(t *testing.T) {
	srv := clienttest.NewServer(t)
	ctx := context.Background()
	ada, adaToken := srv.User(t, "ada")
	_, bobToken := srv.User(t, "bob")
	wsID := srv.Workspace(t, ada)

	owner := api.New(srv.URL, api.WithToken(adaToken))
	tk, err := owner.CreateTask(ctx, task.CreateRequest{WorkspaceID: wsID, Title: "x"})
	if err != nil {
		t.Fatal(err)
	}
	outsider := api.New(srv.URL, api.WithToken(bobToken))

	tests := []struct {
		name     string
		call     func() error
		want     api.Kind
		sentinel error
	}{
		{"validation", func() error {
			_, err := owner.MoveTask(ctx, tk.ID, task.MoveRequest{NewStatus: "review"})
			return err
		}, api.KindValidation, domain.ErrValidation},
		{"forbidden", func() error {
			_, err := outsider.MoveTask(ctx, tk.ID, task.MoveRequest{NewStatus: task.StatusDone})
			return err
		}, api.KindAuthorization, domain.ErrForbidden},
		{"unauthenticated", func() error {
			_, err := api.New(srv.URL).Me(ctx)
			return err
		}, api.KindAuthorization, domain.ErrUnauthorized},
		{"not found", func() error {
			_, err := owner.GetTask(ctx, "missing")
			return err
		}, api.KindNotFound, domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			if got := api.KindOf(err); got != tt.want {
				t.Errorf("kind = %q, want %q (err %v)", got, tt.want, err)
			}
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("errors.Is(%v, %v) = false", err, tt.sentinel)
			}
		})
	}
}

func TestClient_ErrorMessageFromBody(t *testing.T) {
	srv := clienttest.NewServer(t)
	_, err := api.New(srv.URL).Register(context.Background(), user.RegisterRequest{Name: "x", Email: "x@example.com"})
	var apiErr *api.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %T, want *api.Error", err)
	}
	if apiErr.Status != http.StatusBadRequest || apiErr.Message == "" || apiErr.Message == "Bad Request" {
		t.Errorf("err = %+v, want 400 with the server's reason", apiErr)
	}
}

// flaky drops the first n connections without answering.
func flaky(t *testing.T, n int32, hits *atomic.Int32) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= n {
			conn, _, err := w.(http.Hijacker).Hijack()
			if err != nil {
				t.Error(err)
				return
			}
			_ = conn.Close()
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"u1","name":"Ada","email":"ada@example.com"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_RetriesTransportFailures(t *testing.T) {
	var hits atomic.Int32
	srv := flaky(t, 2, &hits)

	c := api.New(srv.URL, api.WithRetryDelay(5*time.Millisecond))
	u, err := c.Me(context.Background())
	if err != nil {
		t.Fatalf("Me: %v", err)
	}
	if u.Name != "Ada" || hits.Load() != 3 {
		t.Errorf("user = %q after %d attempts, want Ada after 3", u.Name, hits.Load())
	}
}

func TestClient_DoesNotRetryPost(t *testing.T) {
	var hits atomic.Int32
	srv := flaky(t, 1, &hits)

	c := api.New(srv.URL, api.WithRetryDelay(5*time.Millisecond))
	_, err := c.CreateWorkspace(context.Background(), workspace.CreateRequest{Name: "Launch"})
	if api.KindOf(err) != api.KindTransport {
		t.Errorf("kind = %q, want transport (err %v)", api.KindOf(err), err)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}

	// The same dropped connection on a GET is retried.
	hits.Store(0)
	if _, err := c.Me(context.Background()); err != nil {
		t.Fatalf("Me: %v", err)
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("GET attempts = %d, want 2", got)
	}
}

func TestClient_GivesUpAfterMaxAttempts(t *testing.T) {
	var hits atomic.Int32
	srv := flaky(t, 10, &hits)

	c := api.New(srv.URL, api.WithRetryDelay(5*time.Millisecond), api.WithMaxAttempts(3))
	_, err := c.Me(context.Background())
	if api.KindOf(err) != api.KindTransport {
		t.Errorf("kind = %q, want transport (err %v)", api.KindOf(err), err)
	}
	if got := hits.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestClient_DoesNotRetryServerAnswers(t *testing.T) {
	for _, status := range []int{http.StatusConflict, http.StatusInternalServerError} {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			hits.Add(1)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":"nope"}`))
		}))

		c := api.New(srv.URL, api.WithRetryDelay(5*time.Millisecond))
		_, err := c.MoveTask(context.Background(), "t1", task.MoveRequest{NewStatus: task.StatusDone})
		srv.Close()

		if hits.Load() != 1 {
			t.Errorf("status %d: %d attempts, want 1", status, hits.Load())
		}
		var apiErr *api.Error
		if !errors.As(err, &apiErr) || apiErr.Status != status || apiErr.Message != "nope" {
			t.Errorf("status %d: err = %v", status, err)
		}
	}
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		status int
		want   api.Kind
	}{
		{0, api.KindTransport},
		{400, api.KindValidation},
		{401, api.KindAuthorization},
		{403, api.KindAuthorization},
		{404, api.KindNotFound},
		{409, api.KindConflict},
		{500, api.KindServer},
		{502, api.KindServer},
	}
	for _, tt := range tests {
		if got := (&api.Error{Status: tt.status}).Kind(); got != tt.want {
			t.Errorf("Kind(%d) = %q, want %q", tt.status, got, tt.want)
		}
	}
	if got := api.KindOf(errors.New("plain")); got != api.KindServer {
		t.Errorf("KindOf(plain) = %q, want server", got)
	}
}
