package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	cfhttp "github.com/templehubsakshi/FlowSpace/internal/adapter/http"
	"github.com/templehubsakshi/FlowSpace/internal/adapter/memstore"
	"github.com/templehubsakshi/FlowSpace/internal/config"
	"github.com/templehubsakshi/FlowSpace/internal/domain/notification"
	"github.com/templehubsakshi/FlowSpace/internal/domain/task"
	"github.com/templehubsakshi/FlowSpace/internal/domain/user"
	"github.com/templehubsakshi/FlowSpace/internal/domain/workspace"
	"github.com/templehubsakshi/FlowSpace/internal/middleware"
	"github.com/templehubsakshi/FlowSpace/internal/service"
)

type testAPI struct {
	t      *testing.T
	srv    *httptest.Server
	health *cfhttp.Health
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store := memstore.New()
	auth, err := service.NewAuthService(store, &config.Auth{
		JWTSecret: "handlers-test-secret", Issuer: "flowspace", Audience: "flowspace-api",
		TokenExpiry: time.Hour, BcryptCost: 4,
	})
	if err != nil {
		t.Fatal(err)
	}
	members := service.NewMembershipService(store, nil, time.Minute)
	notify := service.NewNotificationService(store, time.Hour)
	health := cfhttp.NewHealth("test", func() int { return 0 })
	health.Add("store", store.Ping)

	h := &cfhttp.Handlers{
		Auth:          auth,
		Members:       members,
		Workspaces:    service.NewWorkspaceService(store, members, notify),
		Tasks:         service.NewTaskService(store, members, notify, nil, 0),
		Notifications: notify,
		Health:        health,
	}
	r := chi.NewRouter()
	r.Use(middleware.Auth(auth))
	cfhttp.MountRoutes(r, h)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testAPI{t: t, srv: srv, health: health}
}

// do sends body as JSON and decodes the response into out when non-nil.
func (a *testAPI) do(method, path, token string, body, out any) int {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			a.t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, a.srv.URL+path, &buf)
	if err != nil {
		a.t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		a.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			a.t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func (a *testAPI) register(name, email string) *user.LoginResponse {
	a.t.Helper()
	var resp user.LoginResponse
	code := a.do(http.MethodPost, "/api/v1/auth/register", "", user.RegisterRequest{Name: name, Email: email, Password: "secret1"}, &resp)
	if code != http.StatusCreated {
		a.t.Fatalf("register %s: status %d", email, code)
	}
	return &resp
}

func TestAuthRoutes(t *testing.T) {
	api := newTestAPI(t)
	reg := api.register("Ada", "ada@example.com")

	var login user.LoginResponse
	if code := api.do(http.MethodPost, "/api/v1/auth/login", "", user.LoginRequest{Email: "ada@example.com", Password: "secret1"}, &login); code != http.StatusOK {
		t.Fatalf("login status = %d, want 200", code)
	}
	if code := api.do(http.MethodPost, "/api/v1/auth/login", "", user.LoginRequest{Email: "ada@example.com", Password: "wrong!!"}, nil); code != http.StatusUnauthorized {
		t.Errorf("bad password status = %d, want 401", code)
	}
	if code := api.do(http.MethodPost, "/api/v1/auth/register", "", user.RegisterRequest{Name: "Ada", Email: "ada@example.com", Password: "secret1"}, nil); code != http.StatusConflict {
		t.Errorf("duplicate register status = %d, want 409", code)
	}

	var me user.User
	if code := api.do(http.MethodGet, "/api/v1/auth/me", login.Token, nil, &me); code != http.StatusOK {
		t.Fatalf("me status = %d", code)
	}
	if me.ID != reg.User.ID {
		t.Errorf("me = %q, want %q", me.ID, reg.User.ID)
	}
	if code := api.do(http.MethodGet, "/api/v1/auth/me", "", nil, nil); code != http.StatusUnauthorized {
		t.Errorf("anonymous me status = %d, want 401", code)
	}
}

func TestBoardAndMoveRoutes(t *testing.T) {
	api := newTestAPI(t)
	owner := api.register("Olivia", "olivia@example.com")
	bob := api.register("Bob", "bob@example.com")
	outsider := api.register("Otto", "otto@example.com")

	var ws workspace.Workspace
	if code := api.do(http.MethodPost, "/api/v1/workspaces", owner.Token, workspace.CreateRequest{Name: "Launch"}, &ws); code != http.StatusCreated {
		t.Fatalf("create workspace status = %d", code)
	}
	if code := api.do(http.MethodPost, "/api/v1/workspaces/"+ws.ID+"/members", owner.Token, workspace.AddMemberRequest{Email: "bob@example.com"}, nil); code != http.StatusCreated {
		t.Fatalf("add member status = %d", code)
	}

	ids := map[string]string{}
	for _, title := range []string{"A", "B", "C"} {
		var tk task.Task
		req := task.CreateRequest{WorkspaceID: ws.ID, Title: title, AssigneeID: bob.User.ID}
		if code := api.do(http.MethodPost, "/api/v1/tasks", owner.Token, req, &tk); code != http.StatusCreated {
			t.Fatalf("create %s status = %d", title, code)
		}
		ids[title] = tk.ID
	}

	var moved task.Task
	code := api.do(http.MethodPatch, "/api/v1/tasks/"+ids["C"]+"/move", bob.Token, task.MoveRequest{NewStatus: task.StatusDone, NewOrder: 0}, &moved)
	if code != http.StatusOK {
		t.Fatalf("move status = %d, want 200", code)
	}
	if moved.Status != task.StatusDone || moved.Order != 0 {
		t.Errorf("moved = %s/%d, want done/0", moved.Status, moved.Order)
	}

	var board task.Board
	if code := api.do(http.MethodGet, "/api/v1/workspaces/"+ws.ID+"/tasks", bob.Token, nil, &board); code != http.StatusOK {
		t.Fatalf("board status = %d", code)
	}
	if len(board[task.StatusTodo]) != 2 || len(board[task.StatusDone]) != 1 {
		t.Errorf("board columns = %d todo, %d done; want 2, 1", len(board[task.StatusTodo]), len(board[task.StatusDone]))
	}

	tests := []struct {
		name  string
		token string
		path  string
		body  any
		want  int
	}{
		{"bad status", bob.Token, "/api/v1/tasks/" + ids["A"] + "/move", task.MoveRequest{NewStatus: "review"}, http.StatusBadRequest},
		{"negative order", bob.Token, "/api/v1/tasks/" + ids["A"] + "/move", task.MoveRequest{NewStatus: task.StatusDone, NewOrder: -1}, http.StatusBadRequest},
		{"unknown task", bob.Token, "/api/v1/tasks/missing/move", task.MoveRequest{NewStatus: task.StatusDone}, http.StatusNotFound},
		{"outsider", outsider.Token, "/api/v1/tasks/" + ids["A"] + "/move", task.MoveRequest{NewStatus: task.StatusDone}, http.StatusForbidden},
		{"anonymous", "", "/api/v1/tasks/" + ids["A"] + "/move", task.MoveRequest{NewStatus: task.StatusDone}, http.StatusUnauthorized},
		{"malformed body", bob.Token, "/api/v1/tasks/" + ids["A"] + "/move", "not an object", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := api.do(http.MethodPatch, tt.path, tt.token, tt.body, nil); got != tt.want {
				t.Errorf("status = %d, want %d", got, tt.want)
			}
		})
	}

	if code := api.do(http.MethodGet, "/api/v1/workspaces/"+ws.ID+"/tasks", outsider.Token, nil, nil); code != http.StatusForbidden {
		t.Errorf("outsider board status = %d, want 403", code)
	}

	var unread []notification.Notification
	if code := api.do(http.MethodGet, "/api/v1/notifications?unread=true", bob.Token, nil, &unread); code != http.StatusOK {
		t.Fatalf("notifications status = %d", code)
	}
	// Invite plus three assignments.
	if len(unread) != 4 {
		t.Errorf("unread notifications = %d, want 4", len(unread))
	}
	if code := api.do(http.MethodPatch, "/api/v1/notifications/"+unread[0].ID, bob.Token, nil, nil); code != http.StatusNoContent {
		t.Errorf("mark read status = %d, want 204", code)
	}
	if code := api.do(http.MethodGet, "/api/v1/notifications?limit=x", bob.Token, nil, nil); code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", code)
	}

	var marked map[string]int64
	if code := api.do(http.MethodPatch, "/api/v1/notifications/mark-all-read", bob.Token, nil, &marked); code != http.StatusOK {
		t.Fatalf("mark all read status = %d, want 200", code)
	}
	if marked["updated"] != 3 {
		t.Errorf("updated = %d, want 3", marked["updated"])
	}
	var left []notification.Notification
	api.do(http.MethodGet, "/api/v1/notifications?unread=true", bob.Token, nil, &left)
	if len(left) != 0 {
		t.Errorf("unread after mark all = %d, want 0", len(left))
	}
}

func TestTaskCommentRoutes(t *testing.T) {
	api := newTestAPI(t)
	owner := api.register("Olivia", "olivia@example.com")

	var ws workspace.Workspace
	api.do(http.MethodPost, "/api/v1/workspaces", owner.Token, workspace.CreateRequest{Name: "Launch"}, &ws)
	var tk task.Task
	api.do(http.MethodPost, "/api/v1/tasks", owner.Token, task.CreateRequest{WorkspaceID: ws.ID, Title: "Write docs"}, &tk)

	var c task.Comment
	if code := api.do(http.MethodPost, "/api/v1/tasks/"+tk.ID+"/comments", owner.Token, task.CommentRequest{Text: "on it"}, &c); code != http.StatusCreated {
		t.Fatalf("comment status = %d", code)
	}
	if code := api.do(http.MethodPost, "/api/v1/tasks/"+tk.ID+"/comments", owner.Token, task.CommentRequest{Text: "  "}, nil); code != http.StatusBadRequest {
		t.Errorf("empty comment status = %d, want 400", code)
	}
	if code := api.do(http.MethodDelete, "/api/v1/tasks/"+tk.ID+"/comments/"+c.ID, owner.Token, nil, nil); code != http.StatusNoContent {
		t.Errorf("delete comment status = %d, want 204", code)
	}

	title := "Write better docs"
	var updated task.Task
	if code := api.do(http.MethodPut, "/api/v1/tasks/"+tk.ID, owner.Token, task.UpdateRequest{Title: &title}, &updated); code != http.StatusOK {
		t.Fatalf("update status = %d", code)
	}
	if updated.Title != title {
		t.Errorf("title = %q, want %q", updated.Title, title)
	}
	if code := api.do(http.MethodDelete, "/api/v1/tasks/"+tk.ID, owner.Token, nil, nil); code != http.StatusOK {
		t.Errorf("delete status = %d, want 200", code)
	}
	if code := api.do(http.MethodGet, "/api/v1/tasks/"+tk.ID, owner.Token, nil, nil); code != http.StatusNotFound {
		t.Errorf("get deleted status = %d, want 404", code)
	}
}

func TestWorkspaceMembershipRoutes(t *testing.T) {
	api := newTestAPI(t)
	owner := api.register("Olivia", "olivia@example.com")
	bob := api.register("Bob", "bob@example.com")
	carol := api.register("Carol", "carol@example.com")

	var ws workspace.Workspace
	api.do(http.MethodPost, "/api/v1/workspaces", owner.Token, workspace.CreateRequest{Name: "Launch"}, &ws)
	for _, email := range []string{"bob@example.com", "carol@example.com"} {
		if code := api.do(http.MethodPost, "/api/v1/workspaces/"+ws.ID+"/members", owner.Token, workspace.AddMemberRequest{Email: email}, nil); code != http.StatusCreated {
			t.Fatalf("add %s status = %d", email, code)
		}
	}
	base := "/api/v1/workspaces/" + ws.ID

	name := "Relaunch"
	if code := api.do(http.MethodPut, base, bob.Token, workspace.UpdateRequest{Name: &name}, nil); code != http.StatusForbidden {
		t.Errorf("member rename status = %d, want 403", code)
	}
	var renamed workspace.Workspace
	if code := api.do(http.MethodPut, base, owner.Token, workspace.UpdateRequest{Name: &name}, &renamed); code != http.StatusOK || renamed.Name != name {
		t.Errorf("rename = %d %q", code, renamed.Name)
	}

	if code := api.do(http.MethodDelete, base+"/members/"+owner.User.ID, owner.Token, nil, nil); code != http.StatusBadRequest {
		t.Errorf("remove owner status = %d, want 400", code)
	}
	if code := api.do(http.MethodDelete, base+"/members/"+bob.User.ID, carol.Token, nil, nil); code != http.StatusForbidden {
		t.Errorf("member removing member status = %d, want 403", code)
	}
	if code := api.do(http.MethodDelete, base+"/members/"+bob.User.ID, owner.Token, nil, nil); code != http.StatusNoContent {
		t.Fatalf("remove status = %d, want 204", code)
	}

	// A removed member can no longer read the board or mutate it.
	if code := api.do(http.MethodGet, base+"/tasks", bob.Token, nil, nil); code != http.StatusForbidden {
		t.Errorf("removed member board status = %d, want 403", code)
	}
	if code := api.do(http.MethodPost, "/api/v1/tasks", bob.Token, task.CreateRequest{WorkspaceID: ws.ID, Title: "x"}, nil); code != http.StatusForbidden {
		t.Errorf("removed member create status = %d, want 403", code)
	}

	if code := api.do(http.MethodPost, base+"/leave", owner.Token, nil, nil); code != http.StatusBadRequest {
		t.Errorf("owner leave status = %d, want 400", code)
	}
	if code := api.do(http.MethodPost, base+"/leave", carol.Token, nil, nil); code != http.StatusNoContent {
		t.Errorf("leave status = %d, want 204", code)
	}
	var members []workspace.Member
	api.do(http.MethodGet, base+"/members", owner.Token, nil, &members)
	if len(members) != 1 {
		t.Errorf("members after removals = %d, want 1", len(members))
	}

	if code := api.do(http.MethodDelete, base, owner.Token, nil, nil); code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", code)
	}
	if code := api.do(http.MethodGet, base, owner.Token, nil, nil); code != http.StatusForbidden {
		t.Errorf("get deleted workspace status = %d, want 403", code)
	}
}

func TestNotificationCleanupRoutes(t *testing.T) {
	api := newTestAPI(t)
	owner := api.register("Olivia", "olivia@example.com")
	bob := api.register("Bob", "bob@example.com")

	// Each workspace invite leaves Bob one notification.
	var first, second workspace.Workspace
	api.do(http.MethodPost, "/api/v1/workspaces", owner.Token, workspace.CreateRequest{Name: "One"}, &first)
	api.do(http.MethodPost, "/api/v1/workspaces", owner.Token, workspace.CreateRequest{Name: "Two"}, &second)
	for _, id := range []string{first.ID, second.ID, second.ID + "-missing"} {
		api.do(http.MethodPost, "/api/v1/workspaces/"+id+"/members", owner.Token, workspace.AddMemberRequest{Email: "bob@example.com"}, nil)
	}

	var count map[string]int64
	if code := api.do(http.MethodGet, "/api/v1/notifications/unread-count", bob.Token, nil, &count); code != http.StatusOK || count["count"] != 2 {
		t.Fatalf("unread count = %d %v, want 200 with 2", code, count)
	}

	var all []notification.Notification
	api.do(http.MethodGet, "/api/v1/notifications", bob.Token, nil, &all)
	if code := api.do(http.MethodDelete, "/api/v1/notifications/"+all[0].ID, owner.Token, nil, nil); code != http.StatusNotFound {
		t.Errorf("delete someone else's status = %d, want 404", code)
	}
	if code := api.do(http.MethodDelete, "/api/v1/notifications/"+all[0].ID, bob.Token, nil, nil); code != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", code)
	}

	var cleared map[string]int64
	if code := api.do(http.MethodDelete, "/api/v1/notifications", bob.Token, nil, &cleared); code != http.StatusOK || cleared["deleted"] != 1 {
		t.Errorf("clear = %d %v, want 200 with 1 deleted", code, cleared)
	}
	api.do(http.MethodGet, "/api/v1/notifications/unread-count", bob.Token, nil, &count)
	if count["count"] != 0 {
		t.Errorf("unread after clear = %d, want 0", count["count"])
	}
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)

	var body map[string]any
	if code := api.do(http.MethodGet, "/health", "", nil, &body); code != http.StatusOK {
		t.Fatalf("health status = %d, want 200", code)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
	if _, ok := body["uptimeSeconds"]; !ok {
		t.Error("uptime missing")
	}

	api.health.Add("nats", func(context.Context) error { return errors.New("not connected") })
	if code := api.do(http.MethodGet, "/health", "", nil, nil); code != http.StatusServiceUnavailable {
		t.Errorf("degraded health status = %d, want 503", code)
	}
}
