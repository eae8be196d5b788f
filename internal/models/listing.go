package models

import (
	"fmt"
	"sort"
	"strings"
)

// View is the status filter offered by the task list.
type View string

const (
	ViewAll       View = "all"
	ViewPending   View = "pending"
	ViewCompleted View = "completed"
)

// ParseView converts user input into a View. Empty input selects ViewAll.
func ParseView(raw string) (View, error) {
	v := View(strings.ToLower(strings.TrimSpace(raw)))
	switch v {
	case "":
		return ViewAll, nil
	case ViewAll, ViewPending, ViewCompleted:
		return v, nil
	}
	return "", fmt.Errorf("invalid view %q", raw)
}

// Includes reports whether a task with status s belongs to the view.
// The pending view also shows tasks that are in progress.
func (v View) Includes(s Status) bool {
	switch v {
	case ViewPending:
		return s == StatusPending || s == StatusInProgress
	case ViewCompleted:
		return s == StatusCompleted
	}
	return true
}

// SortMode selects the read-time ordering of a listing.
type SortMode string

const (
	SortNewest   SortMode = "newest"
	SortOldest   SortMode = "oldest"
	SortPriority SortMode = "priority"
	SortDueDate  SortMode = "due_date"
)

// ParseSortMode converts user input into a SortMode. Empty input selects SortNewest.
func ParseSortMode(raw string) (SortMode, error) {
	m := SortMode(strings.ToLower(strings.TrimSpace(raw)))
	switch m {
	case "":
		return SortNewest, nil
	case SortNewest, SortOldest, SortPriority, SortDueDate:
		return m, nil
	}
	return "", fmt.Errorf("invalid sort mode %q", raw)
}

// noDueDate stands in for a missing due date so undated tasks sort last.
var noDueDate = NewDate(9999, 12, 31)

func dueKey(t Task) Date {
	if t.DueDate == nil {
		return noDueDate
	}
	return *t.DueDate
}

// SortTasks reorders tasks in place. Ties keep their relative order.
func SortTasks(tasks []Task, mode SortMode) {
	switch mode {
	case SortNewest:
		sort.SliceStable(tasks, func(i, j int) bool {
			return tasks[j].CreatedAt.Before(tasks[i].CreatedAt)
		})
	case SortOldest:
		sort.SliceStable(tasks, func(i, j int) bool {
			return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
		})
	case SortPriority:
		sort.SliceStable(tasks, func(i, j int) bool {
			return tasks[i].Priority.Rank() < tasks[j].Priority.Rank()
		})
	case SortDueDate:
		sort.SliceStable(tasks, func(i, j int) bool {
			return dueKey(tasks[i]).Before(dueKey(tasks[j]))
		})
	}
}

// MatchesSearch reports whether query is a case-insensitive substring of the
// task description or category. An empty query matches everything.
func MatchesSearch(t Task, query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(t.Description), q) ||
		strings.Contains(strings.ToLower(t.Category), q)
}

// ListQuery is what the task list asks for: a view, an optional category,
// a free text search and a sort order.
type ListQuery struct {
	View     View
	Category string
	Search   string
	Sort     SortMode
}

// Apply filters and sorts a copy of tasks. The input slice is not modified.
func (q ListQuery) Apply(tasks []Task) []Task {
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if q.View != "" && !q.View.Includes(t.Status) {
			continue
		}
		if q.Category != "" && q.Category != "all" && t.Category != q.Category {
			continue
		}
		if !MatchesSearch(t, q.Search) {
			continue
		}
		out = append(out, t)
	}
	SortTasks(out, q.Sort)
	return out
}
