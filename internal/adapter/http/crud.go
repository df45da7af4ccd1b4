package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/templehubsakshi/FlowSpace/internal/domain/user"
)

// ---------------------------------------------------------------------------
// Generic handler factories. Every call is made on behalf of the
// authenticated caller.
// ---------------------------------------------------------------------------

// handleList creates a handler that lists the caller's resources.
func handleList[T any](listFn func(ctx context.Context, actor *user.Ref) ([]T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := listFn(r.Context(), actor(r))
		if err != nil {
			writeDomainError(w, err, "not found")
			return
		}
		if items == nil {
			items = []T{}
		}
		writeJSON(w, http.StatusOK, items)
	}
}

// handleListByParam creates a handler that lists resources scoped by a URL parameter.
func handleListByParam[T any](param string, listFn func(ctx context.Context, actor *user.Ref, paramVal string) ([]T, error), notFoundMsg string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := listFn(r.Context(), actor(r), chi.URLParam(r, param))
		if err != nil {
			writeDomainError(w, err, notFoundMsg)
			return
		}
		if items == nil {
			items = []T{}
		}
		writeJSON(w, http.StatusOK, items)
	}
}

// handleGet creates a handler that retrieves a single resource by URL param.
func handleGet[T any](param string, getFn func(ctx context.Context, actor *user.Ref, id string) (*T, error), notFoundMsg string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		item, err := getFn(r.Context(), actor(r), chi.URLParam(r, param))
		if err != nil {
			writeDomainError(w, err, notFoundMsg)
			return
		}
		writeJSON(w, http.StatusOK, item)
	}
}

// handleCreate creates a handler that decodes a JSON body and creates a resource.
func handleCreate[Req any, Res any](createFn func(ctx context.Context, actor *user.Ref, req Req) (*Res, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := readJSON[Req](w, r)
		if !ok {
			return
		}
		res, err := createFn(r.Context(), actor(r), req)
		if err != nil {
			writeDomainError(w, err, "not found")
			return
		}
		writeJSON(w, http.StatusCreated, res)
	}
}

// handleUpdate creates a handler that decodes a JSON body and applies it to
// the resource named by URL param "id".
func handleUpdate[Req any, Res any](updateFn func(ctx context.Context, actor *user.Ref, id string, req Req) (*Res, error), notFoundMsg string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := readJSON[Req](w, r)
		if !ok {
			return
		}
		res, err := updateFn(r.Context(), actor(r), chi.URLParam(r, "id"), req)
		if err != nil {
			writeDomainError(w, err, notFoundMsg)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
