package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/templehubsakshi/FlowSpace/internal/port/cache/cachetest"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestCacheCompliance(t *testing.T) {
	_, client := newTestClient(t)
	cachetest.Run(t, NewCache(client, "flowspace"), nil)
}

func TestCachePrefixAndTTL(t *testing.T) {
	mr, client := newTestClient(t)
	c := NewCache(client, "fs")
	ctx := context.Background()

	if err := c.Set(ctx, "board:w1", []byte("x"), time.Minute); err != nil {
		t.Fatal(err)
	}
	if !mr.Exists("fs:board:w1") {
		t.Fatal("expected prefixed key in redis")
	}

	mr.FastForward(2 * time.Minute)
	if _, found, _ := c.Get(ctx, "board:w1"); found {
		t.Fatal("expected entry to expire")
	}
}

func TestCacheGetErrorWhenDown(t *testing.T) {
	mr, client := newTestClient(t)
	c := NewCache(client, "")
	mr.Close()

	if _, _, err := c.Get(context.Background(), "k"); err == nil {
		t.Fatal("expected error with redis down")
	}
}

func TestSequencerMonotonicPerWorkspace(t *testing.T) {
	_, client := newTestClient(t)
	s := NewSequencer(client, "fs")
	ctx := context.Background()

	for want := uint64(1); want <= 3; want++ {
		got, err := s.Next(ctx, "w1")
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Fatalf("w1 seq = %d, want %d", got, want)
		}
	}
	if got, _ := s.Next(ctx, "w2"); got != 1 {
		t.Fatalf("w2 should start at 1, got %d", got)
	}
}

func TestSequencerConcurrentUnique(t *testing.T) {
	_, client := newTestClient(t)
	s := NewSequencer(client, "fs")

	const n = 50
	var (
		mu   sync.Mutex
		seen = make(map[uint64]bool)
		wg   sync.WaitGroup
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := s.Next(context.Background(), "w1")
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			seen[v] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	if len(seen) != n {
		t.Fatalf("expected %d distinct values, got %d", n, len(seen))
	}
}
