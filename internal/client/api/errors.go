package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/templehubsakshi/FlowSpace/internal/domain"
)

// Kind classifies a failed call for the user interface.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindAuthorization Kind = "authorization"
	KindNotFound      Kind = "not_found"
	KindConflict      Kind = "conflict"
	KindServer        Kind = "server"
	KindTransport     Kind = "transport"
)

// Error is a failed API call. Status is zero when no response arrived.
type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Status == 0 {
		if e.Err != nil {
			return "flowspace: " + e.Message + ": " + e.Err.Error()
		}
		return "flowspace: " + e.Message
	}
	return "flowspace: " + http.StatusText(e.Status) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Kind reports the failure class.
func (e *Error) Kind() Kind {
	switch {
	case e.Status == 0:
		return KindTransport
	case e.Status == http.StatusBadRequest:
		return KindValidation
	case e.Status == http.StatusUnauthorized, e.Status == http.StatusForbidden:
		return KindAuthorization
	case e.Status == http.StatusNotFound:
		return KindNotFound
	case e.Status == http.StatusConflict:
		return KindConflict
	default:
		return KindServer
	}
}

// Is lets callers match server answers against the domain sentinels, so
// errors.Is(err, domain.ErrForbidden) works on both sides of the wire.
func (e *Error) Is(target error) bool {
	switch target {
	case domain.ErrValidation:
		return e.Status == http.StatusBadRequest
	case domain.ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case domain.ErrForbidden:
		return e.Status == http.StatusForbidden
	case domain.ErrNotFound:
		return e.Status == http.StatusNotFound
	case domain.ErrConflict:
		return e.Status == http.StatusConflict
	}
	return false
}

// KindOf returns the Kind of err, or KindServer when err did not come
// from this package.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind()
	}
	return KindServer
}

func errorFromResponse(status int, body []byte) *Error {
	var payload struct {
		Error string `json:"error"`
	}
	msg := http.StatusText(status)
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		msg = payload.Error
	}
	return &Error{Status: status, Message: msg}
}
