// Package storage defines the persistence contract shared by the task store
// backends: a backend loads and saves the whole collection at once.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"taskdesk/internal/models"
)

// ErrLocked is returned when another process already owns the backing file.
var ErrLocked = errors.New("backing file is in use by another process")

// Snapshot is the full persisted state of a task store.
type Snapshot struct {
	Tasks       []models.Task
	LastUpdated models.Timestamp
}

// Backend persists snapshots. Load returns an empty snapshot and no error
// when nothing has been stored yet. Save replaces the previous contents.
type Backend interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
	Close() error
}

// Record is the serialized form of a task shared by every backend. Pointer
// fields distinguish a missing key from an empty value when decoding.
type Record struct {
	ID          *int64  `json:"id" yaml:"id" db:"id"`
	Description *string `json:"description" yaml:"description" db:"description"`
	Priority    string  `json:"priority" yaml:"priority" db:"priority"`
	Status      string  `json:"status" yaml:"status" db:"status"`
	CreatedAt   *string `json:"created_at" yaml:"created_at" db:"created_at"`
	DueDate     *string `json:"due_date" yaml:"due_date" db:"due_date"`
	Category    *string `json:"category" yaml:"category" db:"category"`
	CompletedAt *string `json:"completed_at" yaml:"completed_at" db:"completed_at"`
}

// NewRecord converts a task into its serialized form.
func NewRecord(t models.Task) Record {
	id := t.ID
	desc := t.Description
	category := t.Category
	created := t.CreatedAt.String()
	rec := Record{
		ID:          &id,
		Description: &desc,
		Priority:    string(t.Priority),
		Status:      string(t.Status),
		CreatedAt:   &created,
		Category:    &category,
	}
	if t.DueDate != nil {
		due := t.DueDate.String()
		rec.DueDate = &due
	}
	if t.CompletedAt != nil {
		done := t.CompletedAt.String()
		rec.CompletedAt = &done
	}
	return rec
}

// Task decodes a record, applying defaults for missing optional fields.
// now stamps tasks stored without a creation time and completed tasks
// stored without a completion time.
func (r Record) Task(now time.Time) (models.Task, error) {
	if r.ID == nil {
		return models.Task{}, errors.New("task record without id")
	}
	if r.Description == nil {
		return models.Task{}, fmt.Errorf("task %d: missing description", *r.ID)
	}

	t := models.Task{
		ID:          *r.ID,
		Description: *r.Description,
		Priority:    models.PriorityMedium,
		Status:      models.StatusPending,
		Category:    models.DefaultCategory,
	}

	if r.Priority != "" {
		p, err := models.ParsePriority(r.Priority)
		if err != nil {
			return models.Task{}, fmt.Errorf("task %d: %w", t.ID, err)
		}
		t.Priority = p
	}
	if r.Status != "" {
		s, err := models.ParseStatus(r.Status)
		if err != nil {
			return models.Task{}, fmt.Errorf("task %d: %w", t.ID, err)
		}
		t.Status = s
	}
	if r.Category != nil {
		t.Category = *r.Category
	}

	if r.CreatedAt != nil {
		ts, err := models.ParseTimestamp(*r.CreatedAt)
		if err != nil {
			return models.Task{}, fmt.Errorf("task %d: %w", t.ID, err)
		}
		t.CreatedAt = ts
	} else {
		t.CreatedAt = models.NewTimestamp(now)
	}

	if r.DueDate != nil {
		d, err := models.ParseDate(*r.DueDate)
		if err != nil {
			return models.Task{}, fmt.Errorf("task %d: %w", t.ID, err)
		}
		t.DueDate = &d
	}

	// completed_at is kept only for completed tasks.
	if t.Status == models.StatusCompleted {
		done := models.NewTimestamp(now)
		if r.CompletedAt != nil {
			ts, err := models.ParseTimestamp(*r.CompletedAt)
			if err != nil {
				return models.Task{}, fmt.Errorf("task %d: %w", t.ID, err)
			}
			done = ts
		}
		t.CompletedAt = &done
	}
	return t, nil
}

// DecodeRecords converts records into tasks, failing on the first bad record
// or on a duplicated id.
func DecodeRecords(records []Record, now time.Time) ([]models.Task, error) {
	tasks := make([]models.Task, 0, len(records))
	seen := make(map[int64]struct{}, len(records))
	for _, rec := range records {
		t, err := rec.Task(now)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[t.ID]; dup {
			return nil, fmt.Errorf("duplicate task id %d", t.ID)
		}
		seen[t.ID] = struct{}{}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// EncodeRecords converts tasks into records, preserving order.
func EncodeRecords(tasks []models.Task) []Record {
	records := make([]Record, 0, len(tasks))
	for _, t := range tasks {
		records = append(records, NewRecord(t))
	}
	return records
}
