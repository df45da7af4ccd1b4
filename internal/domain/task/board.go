package task

import "sort"

// Board is a workspace's tasks grouped by column, each column in display order.
type Board map[Status][]Task

// NextOrder returns the order a new task gets when appended to column:
// one past the largest existing order, or 0 for an empty column.
func NextOrder(column []Task) int {
	if len(column) == 0 {
		return 0
	}
	maxOrder := column[0].Order
	for _, t := range column[1:] {
		if t.Order > maxOrder {
			maxOrder = t.Order
		}
	}
	return maxOrder + 1
}

// SortColumn orders tasks by Order ascending. Ties go to the most recently
// updated task, then to ID so the result is deterministic.
func SortColumn(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.ID < b.ID
	})
}

// GroupBoard splits tasks into their columns. Every column is present,
// possibly empty.
func GroupBoard(tasks []Task) Board {
	b := make(Board, len(Statuses))
	for _, s := range Statuses {
		b[s] = []Task{}
	}
	for i := range tasks {
		b[tasks[i].Status] = append(b[tasks[i].Status], tasks[i])
	}
	for s := range b {
		SortColumn(b[s])
	}
	return b
}
