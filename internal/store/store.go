// Package store holds the ordered task collection. It is the only component
// that assigns task identifiers and the only writer of the backing storage.
package store

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"taskdesk/internal/models"
	"taskdesk/internal/storage"
)

// Store is an in-memory, insertion ordered task collection persisted in full
// after every mutation.
//
// A failed save is returned to the caller but the in-memory change is kept;
// the next successful save writes it out.
type Store struct {
	mu          sync.RWMutex
	backend     storage.Backend
	logger      *slog.Logger
	now         func() time.Time
	tasks       []models.Task
	nextID      int64
	lastUpdated models.Timestamp
	recovered   error
}

// Open loads the collection from backend. Unreadable or malformed data is not
// fatal: the store starts empty and the cause is reported by Recovered.
func Open(ctx context.Context, backend storage.Backend, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Store{
		backend: backend,
		logger:  logger,
		now:     time.Now,
		nextID:  1,
	}
	s.load(ctx)
	return s
}

func (s *Store) load(ctx context.Context) {
	snap, err := s.backend.Load(ctx)
	if err != nil {
		s.logger.Warn("stored tasks could not be loaded; starting with an empty list", slog.String("error", err.Error()))
		s.recovered = err
		s.tasks = nil
		s.nextID = 1
		return
	}

	s.tasks = snap.Tasks
	s.lastUpdated = snap.LastUpdated
	s.nextID = 1
	for _, t := range s.tasks {
		if t.ID >= s.nextID {
			s.nextID = t.ID + 1
		}
	}
	s.logger.Info("tasks loaded", slog.Int("count", len(s.tasks)), slog.Int64("next_id", s.nextID))
}

// Recovered returns the load error that was discarded when the store started
// empty, or nil when the stored data loaded cleanly.
func (s *Store) Recovered() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recovered
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// persist writes the whole collection. Callers must hold the write lock.
func (s *Store) persist(ctx context.Context) error {
	s.lastUpdated = models.NewTimestamp(s.now())
	snap := storage.Snapshot{
		Tasks:       s.tasks,
		LastUpdated: s.lastUpdated,
	}
	if err := s.backend.Save(ctx, snap); err != nil {
		s.logger.Error("failed to persist tasks", slog.String("error", err.Error()))
		return fmt.Errorf("persist tasks: %w", err)
	}
	return nil
}

func (s *Store) indexOf(id int64) int {
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			return i
		}
	}
	return -1
}

// Create appends a new pending task and returns it. Empty descriptions are
// accepted; validating input is the caller's job. An unknown priority is
// rejected since it could not be loaded back.
func (s *Store) Create(ctx context.Context, in models.NewTask) (models.Task, error) {
	priority := in.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}
	if !priority.Valid() {
		return models.Task{}, fmt.Errorf("unknown priority %q", priority)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	category := in.Category
	if category == "" {
		category = models.DefaultCategory
	}

	t := models.Task{
		ID:          s.nextID,
		Description: in.Description,
		Priority:    priority,
		Status:      models.StatusPending,
		CreatedAt:   models.NewTimestamp(s.now()),
		Category:    category,
	}
	if in.DueDate != nil {
		due := *in.DueDate
		t.DueDate = &due
	}

	s.tasks = append(s.tasks, t)
	s.nextID++

	s.logger.Debug("task created", slog.Int64("id", t.ID))
	return t.Clone(), s.persist(ctx)
}

// Delete removes the task with id. It reports false when no such task exists.
func (s *Store) Delete(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return false, nil
	}
	s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)

	s.logger.Debug("task deleted", slog.Int64("id", id))
	return true, s.persist(ctx)
}

// SetStatus moves a task to status. Completing a task stamps completed_at;
// any other status clears it.
func (s *Store) SetStatus(ctx context.Context, id int64, status models.Status) (bool, error) {
	if !status.Valid() {
		return false, fmt.Errorf("unknown status %q", status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return false, nil
	}

	t := &s.tasks[i]
	t.Status = status
	switch status {
	case models.StatusCompleted:
		done := models.NewTimestamp(s.now())
		t.CompletedAt = &done
	case models.StatusPending, models.StatusInProgress:
		t.CompletedAt = nil
	}

	s.logger.Debug("task status changed", slog.Int64("id", id), slog.String("status", string(status)))
	return true, s.persist(ctx)
}

// Complete marks a task as completed.
func (s *Store) Complete(ctx context.Context, id int64) (bool, error) {
	return s.SetStatus(ctx, id, models.StatusCompleted)
}

// Update applies the supplied fields. Status and timestamps are not touched.
func (s *Store) Update(ctx context.Context, id int64, upd models.TaskUpdate) (bool, error) {
	if upd.Priority != nil && !upd.Priority.Valid() {
		return false, fmt.Errorf("unknown priority %q", *upd.Priority)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return false, nil
	}

	t := &s.tasks[i]
	if upd.Description != nil {
		t.Description = *upd.Description
	}
	if upd.Priority != nil {
		t.Priority = *upd.Priority
	}
	switch {
	case upd.ClearDueDate:
		t.DueDate = nil
	case upd.DueDate != nil:
		due := *upd.DueDate
		t.DueDate = &due
	}
	if upd.Category != nil {
		t.Category = *upd.Category
	}

	s.logger.Debug("task updated", slog.Int64("id", id))
	return true, s.persist(ctx)
}

// ClearCompleted deletes every completed task and returns how many were removed.
// Nothing is written when there is nothing to remove.
func (s *Store) ClearCompleted(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.tasks[:0]
	removed := 0
	for _, t := range s.tasks {
		if t.Status == models.StatusCompleted {
			removed++
			continue
		}
		kept = append(kept, t)
	}
	s.tasks = kept
	if removed == 0 {
		return 0, nil
	}

	s.logger.Debug("completed tasks cleared", slog.Int("count", removed))
	return removed, s.persist(ctx)
}

// Get returns a copy of the task with id.
func (s *Store) Get(id int64) (models.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexOf(id)
	if i < 0 {
		return models.Task{}, false
	}
	return s.tasks[i].Clone(), true
}

// List returns copies of the tasks matching every supplied filter, in
// collection order.
func (s *Store) List(filter models.TaskFilter) []models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if filter.Matches(t) {
			out = append(out, t.Clone())
		}
	}
	return out
}

// Statistics summarises the whole collection.
func (s *Store) Statistics() models.Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.Summarize(s.tasks)
}

// Categories returns the known categories followed by any other category in
// use, sorted.
func (s *Store) Categories() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{}, len(models.KnownCategories))
	out := make([]string, 0, len(models.KnownCategories))
	for _, c := range models.KnownCategories {
		seen[c] = struct{}{}
		out = append(out, c)
	}
	var extra []string
	for _, t := range s.tasks {
		if _, ok := seen[t.Category]; ok {
			continue
		}
		seen[t.Category] = struct{}{}
		extra = append(extra, t.Category)
	}
	sort.Strings(extra)
	return append(out, extra...)
}

// Count returns the number of tasks.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// LastUpdated returns when the collection was last persisted, if known.
func (s *Store) LastUpdated() (models.Timestamp, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdated, !s.lastUpdated.IsZero()
}
