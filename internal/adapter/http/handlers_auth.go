package http

import (
	"log/slog"
	"net/http"

	"github.com/templehubsakshi/FlowSpace/internal/domain/user"
)

// Register handles POST /api/v1/auth/register
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[user.RegisterRequest](w, r)
	if !ok {
		return
	}
	resp, err := h.Auth.Register(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "not found")
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// Login handles POST /api/v1/auth/login
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[user.LoginRequest](w, r)
	if !ok {
		return
	}
	resp, err := h.Auth.Login(r.Context(), req)
	if err != nil {
		slog.Debug("login failed", "email", req.Email, "error", err)
		writeDomainError(w, err, "invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Me handles GET /api/v1/auth/me
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.Auth.GetUser(r.Context(), actor(r).ID)
	if err != nil {
		writeDomainError(w, err, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, u)
}
