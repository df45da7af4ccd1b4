package ws

import (
	"context"
	"sync"
)

// MemorySequencer numbers relayed mutations per workspace within one
// process. Multi-instance deployments use the Redis sequencer instead so
// every instance draws from the same counter.
type MemorySequencer struct {
	mu   sync.Mutex
	last map[string]uint64
}

// NewMemorySequencer creates an empty sequencer.
func NewMemorySequencer() *MemorySequencer {
	return &MemorySequencer{last: make(map[string]uint64)}
}

// Next returns the next sequence number for the workspace, starting at 1.
func (s *MemorySequencer) Next(_ context.Context, workspaceID string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last[workspaceID]++
	return s.last[workspaceID], nil
}
