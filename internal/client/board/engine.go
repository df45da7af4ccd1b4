package board

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/templehubsakshi/FlowSpace/internal/domain/event"
	"github.com/templehubsakshi/FlowSpace/internal/domain/task"
)

var (
	// ErrMoveInFlight rejects a drag on a task whose previous move has not
	// settled yet.
	ErrMoveInFlight = errors.New("a move for this task is still in flight")
	// ErrReconciliation wraps the server error of a move that was rolled back.
	ErrReconciliation = errors.New("move rejected by server, change rolled back")
	// ErrUnknownTask is returned for a drag on a task the board does not hold.
	ErrUnknownTask = errors.New("task is not on this board")
)

// Mover persists a move. The HTTP client implements it.
type Mover interface {
	MoveTask(ctx context.Context, id string, req task.MoveRequest) (*task.Task, error)
}

// Snapshot records where a dragged task came from and where it was dropped.
// It lives only while the move request is in flight.
type Snapshot struct {
	TaskID       string
	SourceStatus task.Status
	SourceIndex  int
	DestStatus   task.Status
	DestIndex    int
}

// Pending is a move that has been applied locally but not yet confirmed.
type Pending struct {
	Snapshot
	Request task.MoveRequest

	prevOrder int
	shifted   []string
}

// Engine applies moves to the local board ahead of the server and settles
// them when the server answers. It is safe for concurrent use; the remote
// event feed and user gestures may run on different goroutines.
type Engine struct {
	mu       sync.Mutex
	board    *Board
	inflight map[string]*Pending
}

// NewEngine wraps b. The engine owns b from here on.
func NewEngine(b *Board) *Engine {
	return &Engine{board: b, inflight: make(map[string]*Pending)}
}

// View returns a copy of the current local board.
func (e *Engine) View() *Board {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.board.Clone()
}

// Reset replaces the local board with a fresh server snapshot. Moves still
// in flight settle against the new board.
func (e *Engine) Reset(b *Board) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.board = b
}

// InFlight reports whether taskID has an unsettled move.
func (e *Engine) InFlight(taskID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.inflight[taskID]
	return ok
}

// Begin applies a drop of taskID at (destStatus, destIndex) to the local
// board. It returns nil, nil when the drop is where the task already is:
// nothing changes and nothing should be sent.
func (e *Engine) Begin(taskID string, destStatus task.Status, destIndex int) (*Pending, error) {
	if !destStatus.Valid() {
		return nil, fmt.Errorf("invalid status %q", destStatus)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, busy := e.inflight[taskID]; busy {
		return nil, ErrMoveInFlight
	}
	srcStatus, srcIndex, ok := e.board.Locate(taskID)
	if !ok {
		return nil, ErrUnknownTask
	}
	dst := e.board.column(destStatus)
	limit := dst.Len()
	if srcStatus == destStatus {
		limit--
	}
	destIndex = max(0, min(destIndex, limit))
	if srcStatus == destStatus && srcIndex == destIndex {
		return nil, nil
	}

	src := e.board.cols[srcStatus]
	t, _, _ := src.remove(taskID)
	newOrder := dst.orderAt(destIndex, taskID)
	p := &Pending{
		Snapshot: Snapshot{
			TaskID:       taskID,
			SourceStatus: srcStatus,
			SourceIndex:  srcIndex,
			DestStatus:   destStatus,
		},
		Request:   task.MoveRequest{NewStatus: destStatus, NewOrder: newOrder},
		prevOrder: t.Order,
	}
	if srcStatus != destStatus {
		p.shifted = dst.shiftFrom(newOrder, taskID)
	}
	t.Status = destStatus
	t.Order = newOrder
	// Equal orders cannot express a slot between them, so the task lands
	// where the server will list it, which is destIndex unless the column
	// holds ties.
	p.DestIndex = dst.positionFor(newOrder, taskID)
	dst.insert(t, p.DestIndex)
	e.board.where[taskID] = destStatus
	e.inflight[taskID] = p
	return p, nil
}

// Confirm settles p with the server's copy of the task, which replaces the
// optimistic one.
func (e *Engine) Confirm(p *Pending, server *task.Task) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inflight, p.TaskID)
	if server != nil {
		e.board.Put(*server)
	}
}

// Rollback undoes p: the task goes back to its source column and index
// wherever it currently is, and the orders shifted to make room for it
// are restored. The returned error wraps cause in ErrReconciliation.
func (e *Engine) Rollback(p *Pending, cause error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inflight, p.TaskID)

	if s, ok := e.board.where[p.TaskID]; ok {
		t, _, _ := e.board.cols[s].remove(p.TaskID)
		if dst := e.board.cols[p.DestStatus]; dst != nil {
			for _, id := range p.shifted {
				if st, ok := dst.tasks[id]; ok {
					st.Order--
					dst.tasks[id] = st
				}
			}
		}
		t.Status = p.SourceStatus
		t.Order = p.prevOrder
		e.board.column(p.SourceStatus).insert(t, p.SourceIndex)
		e.board.where[p.TaskID] = p.SourceStatus
	}
	return fmt.Errorf("%w: %w", ErrReconciliation, cause)
}

// Upsert stores the server's copy of t, placing it by its order.
func (e *Engine) Upsert(t task.Task) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t.WorkspaceID == "" || t.WorkspaceID == e.board.WorkspaceID {
		e.board.Put(t)
	}
}

// Move runs one drag gesture end to end: apply locally, persist, then
// confirm or roll back. A no-op drop returns nil, nil without calling m.
func (e *Engine) Move(ctx context.Context, m Mover, taskID string, destStatus task.Status, destIndex int) (*task.Task, error) {
	p, err := e.Begin(taskID, destStatus, destIndex)
	if err != nil || p == nil {
		return nil, err
	}
	server, err := m.MoveTask(ctx, taskID, p.Request)
	if err != nil {
		slog.DebugContext(ctx, "move rolled back", "task_id", taskID, "error", err)
		return nil, e.Rollback(p, err)
	}
	e.Confirm(p, server)
	return server, nil
}

// Apply folds a relayed event from another client into the local board.
// Deltas are applied as received; the sender already passed the server's
// checks. It reports whether the board changed.
func (e *Engine) Apply(p event.Payload) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	b := e.board

	switch ev := p.(type) {
	case *event.TaskCreated:
		if ev.WorkspaceID != b.WorkspaceID {
			return false
		}
		b.Put(ev.Task)
		return true
	case *event.TaskUpdated:
		t, ok := b.Get(ev.TaskID)
		if !ok {
			return false
		}
		ev.Updates.Merge(&t)
		b.Put(t)
		return true
	case *event.TaskMoved:
		return b.ApplyMove(ev.TaskID, ev.NewStatus, ev.NewOrder)
	case *event.TaskDeleted:
		delete(e.inflight, ev.TaskID)
		return b.Remove(ev.TaskID)
	case *event.CommentAdded:
		t, ok := b.Get(ev.TaskID)
		if !ok {
			return false
		}
		t.Comments = append(t.Comments, ev.Comment)
		b.Put(t)
		return true
	}
	return false
}
