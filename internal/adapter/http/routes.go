package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/templehubsakshi/FlowSpace/internal/middleware"
)

// MountRoutes registers the REST API on r. Authentication is applied by
// the caller's middleware chain; handlers here assume an authenticated
// user on every route except register and login.
func MountRoutes(r chi.Router, h *Handlers) {
	if h.Health != nil {
		r.Method(http.MethodGet, "/health", h.Health)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"1"}`))
		})

		// Auth
		r.Post("/auth/register", h.Register)
		r.Post("/auth/login", h.Login)
		r.Get("/auth/me", h.Me)

		// Workspaces
		r.Post("/workspaces", handleCreate(h.Workspaces.Create))
		r.Get("/workspaces", handleList(h.Workspaces.List))
		r.Route("/workspaces/{workspaceId}", func(r chi.Router) {
			r.Use(middleware.RequireWorkspaceMember(h.Members, "workspaceId"))
			r.Get("/", handleGet("workspaceId", h.Workspaces.Get, "workspace not found"))
			r.Put("/", h.UpdateWorkspace)
			r.Delete("/", h.DeleteWorkspace)
			r.Get("/members", handleListByParam("workspaceId", h.Workspaces.Members, "workspace not found"))
			r.Post("/members", h.AddMember)
			r.Delete("/members/{memberId}", h.RemoveMember)
			r.Post("/leave", h.LeaveWorkspace)
			r.Get("/tasks", h.GetBoard)
		})

		// Tasks
		r.Post("/tasks", handleCreate(h.Tasks.Create))
		r.Get("/tasks/{id}", handleGet("id", h.Tasks.Get, "task not found"))
		r.Put("/tasks/{id}", handleUpdate(h.Tasks.Update, "task not found"))
		r.Patch("/tasks/{id}/move", handleUpdate(h.Tasks.Move, "task not found"))
		r.Delete("/tasks/{id}", h.DeleteTask)
		r.Post("/tasks/{id}/comments", h.AddComment)
		r.Delete("/tasks/{id}/comments/{commentId}", h.DeleteComment)

		// Notifications
		r.Get("/notifications", h.ListNotifications)
		r.Delete("/notifications", h.ClearNotifications)
		r.Get("/notifications/unread-count", h.CountUnreadNotifications)
		r.Patch("/notifications/mark-all-read", h.MarkAllNotificationsRead)
		r.Patch("/notifications/{id}", h.MarkNotificationRead)
		r.Delete("/notifications/{id}", h.DeleteNotification)
	})
}
