package models

import (
	"fmt"
	"strings"
)

// DefaultCategory is assigned to tasks created without a category.
const DefaultCategory = "general"

// KnownCategories lists the categories offered to users when creating a task.
// Categories remain free-form; this list is only a suggestion.
var KnownCategories = []string{"general", "work", "personal", "shopping", "health"}

// Priority is the urgency of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ParsePriority converts user input into a Priority.
func ParsePriority(raw string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(raw)))
	if !p.Valid() {
		return "", fmt.Errorf("invalid priority %q", raw)
	}
	return p, nil
}

// Valid reports whether p is one of the supported priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Rank orders priorities from most to least urgent.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	}
	return 1
}

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// ParseStatus converts user input into a Status.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("invalid status %q", raw)
	}
	return s, nil
}

// Valid reports whether s is one of the supported statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// Task represents a single to-do item.
type Task struct {
	ID          int64      `json:"id"`
	Description string     `json:"description"`
	Priority    Priority   `json:"priority"`
	Status      Status     `json:"status"`
	CreatedAt   Timestamp  `json:"created_at"`
	DueDate     *Date      `json:"due_date"`
	Category    string     `json:"category"`
	CompletedAt *Timestamp `json:"completed_at"`
}

// Clone returns a deep copy so callers never share pointers with the store.
func (t Task) Clone() Task {
	if t.DueDate != nil {
		d := *t.DueDate
		t.DueDate = &d
	}
	if t.CompletedAt != nil {
		c := *t.CompletedAt
		t.CompletedAt = &c
	}
	return t
}

// NewTask carries the caller supplied fields of a task to create.
// Zero values fall back to the defaults: medium priority, "general" category.
type NewTask struct {
	Description string
	Priority    Priority
	DueDate     *Date
	Category    string
}

// TaskUpdate lists the fields to change on an existing task. Nil fields are
// left untouched.
type TaskUpdate struct {
	Description  *string
	Priority     *Priority
	DueDate      *Date
	ClearDueDate bool
	Category     *string
}

// TaskFilter narrows a listing. Every non-nil field must match.
type TaskFilter struct {
	Status   *Status
	Category *string
	Priority *Priority
}

// Matches reports whether t satisfies every supplied predicate.
func (f TaskFilter) Matches(t Task) bool {
	if f.Status != nil && t.Status != *f.Status {
		return false
	}
	if f.Category != nil && t.Category != *f.Category {
		return false
	}
	if f.Priority != nil && t.Priority != *f.Priority {
		return false
	}
	return true
}
