package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/templehubsakshi/FlowSpace/internal/domain/user"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func hit(h http.Handler, remote string, u *user.User) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/workspaces", http.NoBody)
	req.RemoteAddr = remote
	if u != nil {
		req = req.WithContext(WithUser(req.Context(), u))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiterBurst(t *testing.T) {
	rl := NewRateLimiter(10, 3)
	h := rl.Handler(okHandler())

	for i := range 3 {
		if rec := hit(h, "192.168.1.1:5000", nil); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, rec.Code)
		}
	}
	rec := hit(h, "192.168.1.1:5000", nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("remaining = %q, want 0", rec.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestRateLimiterKeys(t *testing.T) {
	rl := NewRateLimiter(10, 1)
	h := rl.Handler(okHandler())
	ada := &user.User{ID: "ada"}
	bob := &user.User{ID: "bob"}

	// Same IP, different users: separate buckets.
	if rec := hit(h, "10.0.0.1:1", ada); rec.Code != http.StatusOK {
		t.Fatalf("ada first: %d", rec.Code)
	}
	if rec := hit(h, "10.0.0.1:1", bob); rec.Code != http.StatusOK {
		t.Fatalf("bob first: %d", rec.Code)
	}
	if rec := hit(h, "10.0.0.9:1", ada); rec.Code != http.StatusTooManyRequests {
		t.Errorf("ada from another IP: %d, want 429", rec.Code)
	}
	// Anonymous traffic from the shared IP has its own bucket.
	if rec := hit(h, "10.0.0.1:1", nil); rec.Code != http.StatusOK {
		t.Errorf("anonymous: %d, want 200", rec.Code)
	}
	if rl.Len() != 3 {
		t.Errorf("buckets = %d, want 3", rl.Len())
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(10, 5)
	h := rl.Handler(okHandler())
	hit(h, "10.0.0.1:1", nil)
	hit(h, "10.0.0.2:1", nil)

	rl.cleanup(time.Now().Add(-time.Hour))
	if rl.Len() != 2 {
		t.Fatalf("fresh buckets removed: len = %d", rl.Len())
	}
	rl.cleanup(time.Now().Add(time.Second))
	if rl.Len() != 0 {
		t.Errorf("stale buckets kept: len = %d", rl.Len())
	}
}
