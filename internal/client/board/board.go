// Package board holds the client's local copy of a workspace board and the
// optimistic move engine that edits it ahead of server confirmation.
//
// Columns are ordered maps keyed by task id: a task's position is derived
// from where its id sits, never stored separately, so concurrent local and
// remote edits cannot leave stale indices behind.
package board

import (
	"slices"

	"github.com/templehubsakshi/FlowSpace/internal/domain/task"
)

// Column is the ordered set of tasks in one status.
type Column struct {
	ids   []string
	tasks map[string]task.Task
}

func newColumn() *Column {
	return &Column{tasks: make(map[string]task.Task)}
}

// Len returns the number of tasks in the column.
func (c *Column) Len() int { return len(c.ids) }

// IndexOf returns the position of id, or -1.
func (c *Column) IndexOf(id string) int {
	if _, ok := c.tasks[id]; !ok {
		return -1
	}
	return slices.Index(c.ids, id)
}

// Tasks returns the column in display order.
func (c *Column) Tasks() []task.Task {
	out := make([]task.Task, len(c.ids))
	for i, id := range c.ids {
		out[i] = c.tasks[id]
	}
	return out
}

// IDs returns the task ids in display order.
func (c *Column) IDs() []string {
	return slices.Clone(c.ids)
}

func (c *Column) insert(t task.Task, index int) {
	index = max(0, min(index, len(c.ids)))
	c.ids = slices.Insert(c.ids, index, t.ID)
	c.tasks[t.ID] = t
}

func (c *Column) remove(id string) (task.Task, int, bool) {
	i := c.IndexOf(id)
	if i < 0 {
		return task.Task{}, -1, false
	}
	t := c.tasks[id]
	c.ids = slices.Delete(c.ids, i, i+1)
	delete(c.tasks, id)
	return t, i, true
}

// positionFor is where a task with the given order belongs: before the
// first task whose order is not smaller. The newest write wins ties, the
// same rule the server uses when it lists a column.
func (c *Column) positionFor(order int, skip string) int {
	pos := 0
	for _, id := range c.ids {
		if id == skip {
			continue
		}
		if c.tasks[id].Order >= order {
			return pos
		}
		pos++
	}
	return pos
}

// orderAt is the order value that lands a task at index: the order of the
// task currently there, or one past the last task when index is the end.
func (c *Column) orderAt(index int, skip string) int {
	pos := 0
	last := -1
	for _, id := range c.ids {
		if id == skip {
			continue
		}
		o := c.tasks[id].Order
		if pos == index {
			return o
		}
		last = o
		pos++
	}
	return last + 1
}

// shiftFrom increments the order of every task at or past order, except
// skip, and returns the ids it touched.
func (c *Column) shiftFrom(order int, skip string) []string {
	var shifted []string
	for _, id := range c.ids {
		t := c.tasks[id]
		if id == skip || t.Order < order {
			continue
		}
		t.Order++
		c.tasks[id] = t
		shifted = append(shifted, id)
	}
	return shifted
}

func (c *Column) clone() *Column {
	out := &Column{ids: slices.Clone(c.ids), tasks: make(map[string]task.Task, len(c.tasks))}
	for id, t := range c.tasks {
		out.tasks[id] = t
	}
	return out
}

// Board is one workspace's columns.
type Board struct {
	WorkspaceID string
	cols        map[task.Status]*Column
	where       map[string]task.Status
}

// New builds a board from a server snapshot. Columns are taken in the
// order the server listed them.
func New(workspaceID string, snap task.Board) *Board {
	b := &Board{
		WorkspaceID: workspaceID,
		cols:        make(map[task.Status]*Column, len(task.Statuses)),
		where:       make(map[string]task.Status),
	}
	for _, s := range task.Statuses {
		b.cols[s] = newColumn()
		for _, t := range snap[s] {
			b.cols[s].insert(t, b.cols[s].Len())
			b.where[t.ID] = s
		}
	}
	return b
}

// Column returns the tasks of status s in display order.
func (b *Board) Column(s task.Status) []task.Task {
	if c := b.cols[s]; c != nil {
		return c.Tasks()
	}
	return nil
}

// Locate returns where a task sits.
func (b *Board) Locate(id string) (status task.Status, index int, ok bool) {
	s, ok := b.where[id]
	if !ok {
		return "", -1, false
	}
	return s, b.cols[s].IndexOf(id), true
}

// Get returns a task by id.
func (b *Board) Get(id string) (task.Task, bool) {
	s, ok := b.where[id]
	if !ok {
		return task.Task{}, false
	}
	t, ok := b.cols[s].tasks[id]
	return t, ok
}

// Len returns the number of tasks on the board.
func (b *Board) Len() int { return len(b.where) }

// Snapshot returns the board in the server's listing shape.
func (b *Board) Snapshot() task.Board {
	out := make(task.Board, len(task.Statuses))
	for _, s := range task.Statuses {
		out[s] = b.cols[s].Tasks()
	}
	return out
}

// Clone returns an independent copy.
func (b *Board) Clone() *Board {
	out := &Board{
		WorkspaceID: b.WorkspaceID,
		cols:        make(map[task.Status]*Column, len(b.cols)),
		where:       make(map[string]task.Status, len(b.where)),
	}
	for s, c := range b.cols {
		out.cols[s] = c.clone()
	}
	for id, s := range b.where {
		out.where[id] = s
	}
	return out
}

// Put inserts or replaces t, positioning it by its order within its
// status. A task already in that column keeps its place when its order
// is unchanged.
func (b *Board) Put(t task.Task) {
	if s, ok := b.where[t.ID]; ok {
		col := b.cols[s]
		if s == t.Status && col.tasks[t.ID].Order == t.Order {
			col.tasks[t.ID] = t
			return
		}
		col.remove(t.ID)
	}
	col := b.column(t.Status)
	col.insert(t, col.positionFor(t.Order, t.ID))
	b.where[t.ID] = t.Status
}

// Remove deletes a task and reports whether it was present.
func (b *Board) Remove(id string) bool {
	s, ok := b.where[id]
	if !ok {
		return false
	}
	b.cols[s].remove(id)
	delete(b.where, id)
	return true
}

// ApplyMove mirrors the server's move: the task takes newOrder in
// newStatus and, when the column changed, every destination task at or
// past newOrder shifts right by one. The source column is left as is.
func (b *Board) ApplyMove(id string, newStatus task.Status, newOrder int) bool {
	s, ok := b.where[id]
	if !ok {
		return false
	}
	t, _, _ := b.cols[s].remove(id)
	dst := b.column(newStatus)
	if s != newStatus {
		dst.shiftFrom(newOrder, id)
	}
	t.Status = newStatus
	t.Order = newOrder
	dst.insert(t, dst.positionFor(newOrder, id))
	b.where[id] = newStatus
	return true
}

func (b *Board) column(s task.Status) *Column {
	c := b.cols[s]
	if c == nil {
		c = newColumn()
		b.cols[s] = c
	}
	return c
}
