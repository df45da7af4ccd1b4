package task

import (
	"testing"
	"time"
)

func TestNextOrder(t *testing.T) {
	if got := NextOrder(nil); got != 0 {
		t.Errorf("empty column: got %d, want 0", got)
	}
	col := []Task{{Order: 3}, {Order: 7}, {Order: 1}}
	if got := NextOrder(col); got != 8 {
		t.Errorf("got %d, want 8", got)
	}
}

func TestGroupBoard(t *testing.T) {
	now := time.Now()
	tasks := []Task{
		{ID: "c", Status: StatusTodo, Order: 2, UpdatedAt: now},
		{ID: "a", Status: StatusTodo, Order: 0, UpdatedAt: now},
		{ID: "old", Status: StatusTodo, Order: 1, UpdatedAt: now.Add(-time.Hour)},
		{ID: "new", Status: StatusTodo, Order: 1, UpdatedAt: now},
		{ID: "d", Status: StatusDone, Order: 0, UpdatedAt: now},
	}

	b := GroupBoard(tasks)
	if len(b[StatusInProgress]) != 0 || b[StatusInProgress] == nil {
		t.Errorf("in_progress should be an empty, non-nil column")
	}
	want := []string{"a", "new", "old", "c"}
	got := b[StatusTodo]
	if len(got) != len(want) {
		t.Fatalf("todo has %d tasks, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("todo[%d] = %s, want %s", i, got[i].ID, id)
		}
	}
	if len(b[StatusDone]) != 1 {
		t.Errorf("done has %d tasks", len(b[StatusDone]))
	}
}
