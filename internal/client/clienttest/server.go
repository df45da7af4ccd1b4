// Package clienttest runs an in-memory FlowSpace server for client tests.
package clienttest

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	cfhttp "github.com/templehubsakshi/FlowSpace/internal/adapter/http"
	"github.com/templehubsakshi/FlowSpace/internal/adapter/memstore"
	"github.com/templehubsakshi/FlowSpace/internal/adapter/ws"
	"github.com/templehubsakshi/FlowSpace/internal/config"
	"github.com/templehubsakshi/FlowSpace/internal/domain/user"
	"github.com/templehubsakshi/FlowSpace/internal/domain/workspace"
	"github.com/templehubsakshi/FlowSpace/internal/middleware"
	"github.com/templehubsakshi/FlowSpace/internal/service"
)

// Server is a full REST and realtime stack backed by memstore.
type Server struct {
	URL        string
	Hub        *ws.Hub
	Auth       *service.AuthService
	Workspaces *service.WorkspaceService
	Tasks      *service.TaskService

	srv *httptest.Server
}

// NewServer starts a server that is shut down when t finishes.
func NewServer(t testing.TB) *Server {
	t.Helper()
	store := memstore.New()
	auth, err := service.NewAuthService(store, &config.Auth{
		JWTSecret: "clienttest-secret", Issuer: "flowspace", Audience: "flowspace-api",
		TokenExpiry: time.Hour, BcryptCost: 4,
	})
	if err != nil {
		t.Fatal(err)
	}
	members := service.NewMembershipService(store, nil, time.Minute)
	notify := service.NewNotificationService(store, time.Hour)
	hub := ws.NewHub(ws.Options{}, members, ws.NewMemorySequencer())
	notify.SetBroadcaster(hub)

	s := &Server{
		Hub:        hub,
		Auth:       auth,
		Workspaces: service.NewWorkspaceService(store, members, notify),
		Tasks:      service.NewTaskService(store, members, notify, nil, 0),
	}
	s.Workspaces.SetEvictor(hub)
	h := &cfhttp.Handlers{
		Auth:          auth,
		Members:       members,
		Workspaces:    s.Workspaces,
		Tasks:         s.Tasks,
		Notifications: notify,
		Health:        cfhttp.NewHealth("test", hub.ConnectionCount),
	}
	r := chi.NewRouter()
	r.Use(middleware.Auth(auth))
	cfhttp.MountRoutes(r, h)
	r.Get(middleware.WSPath, hub.HandleWS)

	s.srv = httptest.NewServer(r)
	s.URL = s.srv.URL
	t.Cleanup(s.Close)
	return s
}

// Close shuts the server down. It is safe to call more than once.
func (s *Server) Close() {
	s.Hub.Close()
	s.srv.Close()
}

// DropConnections closes every client connection, websockets included,
// while the server keeps listening.
func (s *Server) DropConnections() {
	s.Hub.Close()
	s.srv.CloseClientConnections()
}

// User registers an account named name and returns it with a token.
func (s *Server) User(t testing.TB, name string) (*user.User, string) {
	t.Helper()
	resp, err := s.Auth.Register(context.Background(), user.RegisterRequest{
		Name: name, Email: name + "@example.com", Password: "password123",
	})
	if err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
	return resp.User, resp.Token
}

// Workspace creates a workspace owned by owner with members added as
// plain members, and returns its id.
func (s *Server) Workspace(t testing.TB, owner *user.User, members ...*user.User) string {
	t.Helper()
	ctx := context.Background()
	w, err := s.Workspaces.Create(ctx, owner.Ref(), workspace.CreateRequest{Name: owner.Name + "'s board"})
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range members {
		if _, err := s.Workspaces.AddMemberAsAdmin(ctx, w.ID, workspace.AddMemberRequest{Email: m.Email, Role: workspace.RoleMember}); err != nil {
			t.Fatalf("add %s: %v", m.Name, err)
		}
	}
	return w.ID
}
