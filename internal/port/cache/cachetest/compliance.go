// Package cachetest holds the behavioural suite every cache.Cache adapter must pass.
package cachetest

import (
	"context"
	"testing"
	"time"

	"github.com/templehubsakshi/FlowSpace/internal/port/cache"
)

// Run runs the compliance suite against c. settle is called after writes
// for adapters that apply them asynchronously; pass nil otherwise.
func Run(t *testing.T, c cache.Cache, settle func()) {
	t.Helper()
	ctx := context.Background()
	if settle == nil {
		settle = func() {}
	}

	t.Run("SetAndGet", func(t *testing.T) {
		if err := c.Set(ctx, "board:w1", []byte(`{"todo":[]}`), time.Minute); err != nil {
			t.Fatal(err)
		}
		settle()
		val, found, err := c.Get(ctx, "board:w1")
		if err != nil {
			t.Fatal(err)
		}
		if !found {
			t.Fatal("expected found after Set")
		}
		if string(val) != `{"todo":[]}` {
			t.Fatalf("unexpected value %s", val)
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		_, found, err := c.Get(ctx, "board:missing")
		if err != nil {
			t.Fatal(err)
		}
		if found {
			t.Fatal("expected miss for nonexistent key")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = c.Set(ctx, "member:w1:u1", []byte("member"), time.Minute)
		settle()
		if err := c.Delete(ctx, "member:w1:u1"); err != nil {
			t.Fatal(err)
		}
		settle()
		_, found, err := c.Get(ctx, "member:w1:u1")
		if err != nil {
			t.Fatal(err)
		}
		if found {
			t.Fatal("expected miss after Delete")
		}
	})

	t.Run("DeleteNonexistent", func(t *testing.T) {
		if err := c.Delete(ctx, "never-existed"); err != nil {
			t.Fatal("Delete of nonexistent key should not error")
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		_ = c.Set(ctx, "board:w2", []byte("v1"), time.Minute)
		settle()
		_ = c.Set(ctx, "board:w2", []byte("v2"), time.Minute)
		settle()
		val, found, err := c.Get(ctx, "board:w2")
		if err != nil {
			t.Fatal(err)
		}
		if !found || string(val) != "v2" {
			t.Fatalf("expected v2 after overwrite, got %q (found=%v)", val, found)
		}
	})
}
