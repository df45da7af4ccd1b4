// Package messagequeue is the pub/sub port the realtime relay fans out
// through when several server instances share traffic.
package messagequeue

import "context"

// Handler receives one message. Returning an error only gets it logged;
// nothing is redelivered.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue publishes and subscribes at most once. Connection lifecycle
// (drain, close, liveness) belongs to the concrete adapter.
type Queue interface {
	Publish(ctx context.Context, subject string, data []byte) error
	// Subscribe accepts the ">" wildcard as the last token. The returned
	// func unsubscribes.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)
}

// Subjects are "<prefix>.room.<workspaceID>" and "<prefix>.user.<userID>".
const (
	SubjectRoom = "room"
	SubjectUser = "user"
)
