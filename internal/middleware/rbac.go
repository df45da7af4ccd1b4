package middleware

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/templehubsakshi/FlowSpace/internal/domain"
	"github.com/templehubsakshi/FlowSpace/internal/service"
)

// RequireWorkspaceMember returns middleware that rejects callers who are not
// members of the workspace named by the chi URL parameter param.
func RequireWorkspaceMember(members *service.MembershipService, param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u := UserFromContext(r.Context())
			if u == nil {
				unauthorized(w, "authorization required")
				return
			}

			err := members.Require(r.Context(), chi.URLParam(r, param), u.ID)
			switch {
			case err == nil:
				next.ServeHTTP(w, r)
			case errors.Is(err, domain.ErrForbidden):
				http.Error(w, `{"error":"not a member of this workspace"}`, http.StatusForbidden)
			case errors.Is(err, domain.ErrValidation):
				http.Error(w, `{"error":"workspace id is required"}`, http.StatusBadRequest)
			default:
				http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
			}
		})
	}
}
