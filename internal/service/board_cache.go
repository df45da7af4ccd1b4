package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/templehubsakshi/FlowSpace/internal/domain/task"
	"github.com/templehubsakshi/FlowSpace/internal/port/cache"
)

// boardCache keeps grouped board snapshots keyed by workspace. Every task
// mutation in the workspace drops the snapshot and bumps the workspace's
// generation; a snapshot loaded under an older generation is never
// stored. Cache failures are logged and treated as misses.
type boardCache struct {
	c   cache.Cache
	ttl time.Duration

	// mu orders store against invalidate so a stale snapshot cannot be
	// written after the delete that should have removed it.
	mu  sync.Mutex
	gen map[string]uint64
}

func boardKey(workspaceID string) string { return "board:" + workspaceID }

func (b *boardCache) get(ctx context.Context, workspaceID string) (task.Board, bool) {
	if b == nil || b.c == nil {
		return nil, false
	}
	raw, ok, err := b.c.Get(ctx, boardKey(workspaceID))
	if err != nil || !ok {
		return nil, false
	}
	var board task.Board
	if err := json.Unmarshal(raw, &board); err != nil {
		slog.WarnContext(ctx, "discarding corrupt board snapshot", "workspace_id", workspaceID, "error", err)
		return nil, false
	}
	return board, true
}

// generation returns the current invalidation count for workspaceID.
// Read it before loading from the store and pass it to set.
func (b *boardCache) generation(workspaceID string) uint64 {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.gen[workspaceID]
}

// set stores board unless the workspace was invalidated since gen was read.
func (b *boardCache) set(ctx context.Context, workspaceID string, gen uint64, board task.Board) {
	if b == nil || b.c == nil {
		return
	}
	raw, err := json.Marshal(board)
	if err != nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.gen[workspaceID] != gen {
		slog.DebugContext(ctx, "skipping stale board snapshot", "workspace_id", workspaceID)
		return
	}
	if err := b.c.Set(ctx, boardKey(workspaceID), raw, b.ttl); err != nil {
		slog.WarnContext(ctx, "board cache set failed", "workspace_id", workspaceID, "error", err)
	}
}

func (b *boardCache) invalidate(ctx context.Context, workspaceID string) {
	if b == nil || b.c == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.gen == nil {
		b.gen = make(map[string]uint64)
	}
	b.gen[workspaceID]++
	if err := b.c.Delete(ctx, boardKey(workspaceID)); err != nil {
		slog.WarnContext(ctx, "board cache delete failed", "workspace_id", workspaceID, "error", err)
	}
}
