package http

import (
	"net/http"

	"github.com/templehubsakshi/FlowSpace/internal/domain/notification"
	"github.com/templehubsakshi/FlowSpace/internal/domain/task"
	"github.com/templehubsakshi/FlowSpace/internal/domain/workspace"
	"github.com/templehubsakshi/FlowSpace/internal/service"
)

// Handlers holds the services the REST routes call into.
type Handlers struct {
	Auth          *service.AuthService
	Members       *service.MembershipService
	Workspaces    *service.WorkspaceService
	Tasks         *service.TaskService
	Notifications *service.NotificationService
	Health        *Health
}

// GetBoard handles GET /api/v1/workspaces/{workspaceId}/tasks
func (h *Handlers) GetBoard(w http.ResponseWriter, r *http.Request) {
	board, err := h.Tasks.Board(r.Context(), actor(r), urlParam(r, "workspaceId"))
	if err != nil {
		writeDomainError(w, err, "workspace not found")
		return
	}
	writeJSON(w, http.StatusOK, board)
}

// AddMember handles POST /api/v1/workspaces/{workspaceId}/members
func (h *Handlers) AddMember(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[workspace.AddMemberRequest](w, r)
	if !ok {
		return
	}
	m, err := h.Workspaces.AddMember(r.Context(), actor(r), urlParam(r, "workspaceId"), req)
	if err != nil {
		writeDomainError(w, err, "user not found")
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// UpdateWorkspace handles PUT /api/v1/workspaces/{workspaceId}
func (h *Handlers) UpdateWorkspace(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[workspace.UpdateRequest](w, r)
	if !ok {
		return
	}
	ws, err := h.Workspaces.Update(r.Context(), actor(r), urlParam(r, "workspaceId"), req)
	if err != nil {
		writeDomainError(w, err, "workspace not found")
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

// DeleteWorkspace handles DELETE /api/v1/workspaces/{workspaceId}
func (h *Handlers) DeleteWorkspace(w http.ResponseWriter, r *http.Request) {
	if err := h.Workspaces.Delete(r.Context(), actor(r), urlParam(r, "workspaceId")); err != nil {
		writeDomainError(w, err, "workspace not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveMember handles DELETE /api/v1/workspaces/{workspaceId}/members/{memberId}
func (h *Handlers) RemoveMember(w http.ResponseWriter, r *http.Request) {
	if err := h.Workspaces.RemoveMember(r.Context(), actor(r), urlParam(r, "workspaceId"), urlParam(r, "memberId")); err != nil {
		writeDomainError(w, err, "member not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LeaveWorkspace handles POST /api/v1/workspaces/{workspaceId}/leave
func (h *Handlers) LeaveWorkspace(w http.ResponseWriter, r *http.Request) {
	if err := h.Workspaces.Leave(r.Context(), actor(r), urlParam(r, "workspaceId")); err != nil {
		writeDomainError(w, err, "workspace not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteTask handles DELETE /api/v1/tasks/{id}
// The deleted task is returned so the caller can announce it to the room.
func (h *Handlers) DeleteTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.Tasks.Delete(r.Context(), actor(r), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// AddComment handles POST /api/v1/tasks/{id}/comments
func (h *Handlers) AddComment(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[task.CommentRequest](w, r)
	if !ok {
		return
	}
	c, err := h.Tasks.AddComment(r.Context(), actor(r), urlParam(r, "id"), req)
	if err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// DeleteComment handles DELETE /api/v1/tasks/{id}/comments/{commentId}
func (h *Handlers) DeleteComment(w http.ResponseWriter, r *http.Request) {
	if err := h.Tasks.DeleteComment(r.Context(), actor(r), urlParam(r, "id"), urlParam(r, "commentId")); err != nil {
		writeDomainError(w, err, "comment not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListNotifications handles GET /api/v1/notifications?unread=true&limit=N
func (h *Handlers) ListNotifications(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeDomainError(w, err, "")
		return
	}
	f := notification.ListFilter{
		UnreadOnly: r.URL.Query().Get("unread") == "true",
		Limit:      limit,
	}
	list, err := h.Notifications.List(r.Context(), actor(r).ID, f)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if list == nil {
		list = []notification.Notification{}
	}
	writeJSON(w, http.StatusOK, list)
}

// MarkNotificationRead handles PATCH /api/v1/notifications/{id}
func (h *Handlers) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	if err := h.Notifications.MarkRead(r.Context(), actor(r).ID, urlParam(r, "id")); err != nil {
		writeDomainError(w, err, "notification not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkAllNotificationsRead handles PATCH /api/v1/notifications/mark-all-read
func (h *Handlers) MarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.Notifications.MarkAllRead(r.Context(), actor(r).ID)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

// CountUnreadNotifications handles GET /api/v1/notifications/unread-count
func (h *Handlers) CountUnreadNotifications(w http.ResponseWriter, r *http.Request) {
	n, err := h.Notifications.UnreadCount(r.Context(), actor(r).ID)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": n})
}

// DeleteNotification handles DELETE /api/v1/notifications/{id}
func (h *Handlers) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	if err := h.Notifications.Delete(r.Context(), actor(r).ID, urlParam(r, "id")); err != nil {
		writeDomainError(w, err, "notification not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearNotifications handles DELETE /api/v1/notifications?workspaceId=ID
func (h *Handlers) ClearNotifications(w http.ResponseWriter, r *http.Request) {
	n, err := h.Notifications.Clear(r.Context(), actor(r).ID, r.URL.Query().Get("workspaceId"))
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}
