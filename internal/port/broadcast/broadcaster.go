// Package broadcast defines the port for pushing realtime events to connected clients.
package broadcast

import (
	"context"

	"github.com/templehubsakshi/FlowSpace/internal/domain/event"
)

// Broadcaster delivers events to connections. Delivery is best effort:
// a recipient that cannot keep up or has gone away is skipped silently.
type Broadcaster interface {
	// BroadcastToRoom sends p to every connection joined to the workspace
	// room except the connection identified by exceptConnID (may be empty).
	BroadcastToRoom(ctx context.Context, workspaceID, exceptConnID string, p event.Payload)

	// SendToUser sends p to every connection of the user regardless of room.
	SendToUser(ctx context.Context, userID string, p event.Payload)
}

// Evictor takes a user's connections out of a workspace room once they
// may no longer see it. The connections stay open; they are told with
// event.MemberRemoved and must join another room.
type Evictor interface {
	EvictFromRoom(ctx context.Context, workspaceID, userID string)
}

// Sequencer hands out monotonically increasing per-workspace sequence
// numbers for relayed mutation events. The first value for a workspace is 1.
type Sequencer interface {
	Next(ctx context.Context, workspaceID string) (uint64, error)
}
