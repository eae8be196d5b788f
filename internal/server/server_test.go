package server

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskdesk/internal/models"
	"taskdesk/internal/storage"
	"taskdesk/internal/store"
)

type taskResponse struct {
	Task models.Task `json:"task"`
}

type listResponse struct {
	Tasks []models.Task `json:"tasks"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	backend, err := store.OpenBackend(filepath.Join(t.TempDir(), "todo_data.json"), quietLogger())
	require.NoError(t, err)
	st := store.Open(context.Background(), backend, quietLogger())
	t.Cleanup(func() { _ = st.Close() })
	return New(st, quietLogger(), ""), st
}

func doRequest(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func createTask(t *testing.T, srv *Server, body map[string]any) models.Task {
	t.Helper()
	rec := doRequest(t, srv, http.MethodPost, "/api/tasks", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[taskResponse](t, rec).Task
}

func TestHealth(t *testing.T) {
	srv, _ := setupServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/healthz", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","tasks":0}`, rec.Body.String())
}

func TestRequestIDHeader(t *testing.T) {
	srv, _ := setupServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/healthz", nil)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/api/healthz", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))
}

func TestCreateTask(t *testing.T) {
	srv, st := setupServer(t)

	task := createTask(t, srv, map[string]any{
		"description": "  Finish report  ",
		"priority":    "high",
		"due_date":    "2025-01-10",
		"category":    "work",
	})

	assert.Equal(t, int64(1), task.ID)
	assert.Equal(t, "Finish report", task.Description)
	assert.Equal(t, models.PriorityHigh, task.Priority)
	assert.Equal(t, models.StatusPending, task.Status)
	require.NotNil(t, task.DueDate)
	assert.Equal(t, "2025-01-10", task.DueDate.String())
	assert.Nil(t, task.CompletedAt)
	assert.Equal(t, 1, st.Count())
}

func TestCreateTask_Defaults(t *testing.T) {
	srv, _ := setupServer(t)

	task := createTask(t, srv, map[string]any{"description": "Buy milk"})

	assert.Equal(t, models.PriorityMedium, task.Priority)
	assert.Equal(t, models.DefaultCategory, task.Category)
	assert.Nil(t, task.DueDate)
}

func TestCreateTask_Validation(t *testing.T) {
	srv, st := setupServer(t)

	tests := []struct {
		name string
		body any
		want string
	}{
		{name: "empty description", body: map[string]any{"description": "   "}, want: "please enter a task description"},
		{name: "bad due date", body: map[string]any{"description": "x", "due_date": "10/01/2025"}, want: "YYYY-MM-DD"},
		{name: "bad priority", body: map[string]any{"description": "x", "priority": "urgent"}, want: "invalid priority"},
		{name: "not json", body: "plain text", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, srv, http.MethodPost, "/api/tasks", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decode[errorResponse](t, rec)
			assert.Contains(t, resp.Error, tt.want)
		})
	}
	assert.Equal(t, 0, st.Count())
}

func TestListTasks_Query(t *testing.T) {
	srv, _ := setupServer(t)
	createTask(t, srv, map[string]any{"description": "Buy milk", "priority": "low", "category": "shopping"})
	createTask(t, srv, map[string]any{"description": "Finish report", "priority": "high", "category": "work", "due_date": "2025-02-01"})
	createTask(t, srv, map[string]any{"description": "Email boss", "priority": "medium", "category": "work", "due_date": "2025-01-15"})
	createTask(t, srv, map[string]any{"description": "Book dentist", "priority": "high", "category": "health"})
	require.Equal(t, http.StatusOK, doRequest(t, srv, http.MethodPost, "/api/tasks/4/complete", nil).Code)

	ids := func(path string) []int64 {
		rec := doRequest(t, srv, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var out []int64
		for _, task := range decode[listResponse](t, rec).Tasks {
			out = append(out, task.ID)
		}
		return out
	}

	assert.ElementsMatch(t, []int64{1, 2, 3, 4}, ids("/api/tasks"))
	assert.Equal(t, []int64{1, 2, 3, 4}, ids("/api/tasks?sort=oldest"))
	assert.Equal(t, []int64{2, 4, 3, 1}, ids("/api/tasks?sort=priority"))
	assert.Equal(t, []int64{3, 2, 1, 4}, ids("/api/tasks?sort=due_date"))
	assert.Equal(t, []int64{1, 2, 3}, ids("/api/tasks?view=pending&sort=oldest"))
	assert.Equal(t, []int64{4}, ids("/api/tasks?view=completed"))
	assert.Equal(t, []int64{2, 3}, ids("/api/tasks?category=work&sort=oldest"))
	assert.Equal(t, []int64{1, 2, 3, 4}, ids("/api/tasks?category=all&sort=oldest"))
	assert.Equal(t, []int64{2, 4}, ids("/api/tasks?priority=high&sort=oldest"))
	assert.Equal(t, []int64{4}, ids("/api/tasks?status=completed"))
	assert.Equal(t, []int64{2, 3}, ids("/api/tasks?search=WORK&sort=oldest"))
	assert.Equal(t, []int64{1}, ids("/api/tasks?search=milk"))
	assert.Empty(t, ids("/api/tasks?search=nothing-matches"))
}

func TestListTasks_BadQuery(t *testing.T) {
	srv, _ := setupServer(t)

	for _, path := range []string{
		"/api/tasks?status=archived",
		"/api/tasks?priority=urgent",
		"/api/tasks?view=someday",
		"/api/tasks?sort=alphabetical",
	} {
		rec := doRequest(t, srv, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
}

func TestGetTask(t *testing.T) {
	srv, _ := setupServer(t)
	created := createTask(t, srv, map[string]any{"description": "Buy milk"})

	rec := doRequest(t, srv, http.MethodGet, "/api/tasks/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created, decode[taskResponse](t, rec).Task)

	rec = doRequest(t, srv, http.MethodGet, "/api/tasks/99", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "task not found", decode[errorResponse](t, rec).Error)

	rec = doRequest(t, srv, http.MethodGet, "/api/tasks/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateTask(t *testing.T) {
	srv, _ := setupServer(t)
	createTask(t, srv, map[string]any{"description": "Draft", "priority": "low", "due_date": "2025-01-10", "category": "work"})

	rec := doRequest(t, srv, http.MethodPut, "/api/tasks/1", map[string]any{"priority": "high"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	task := decode[taskResponse](t, rec).Task
	assert.Equal(t, models.PriorityHigh, task.Priority)
	assert.Equal(t, "Draft", task.Description)
	assert.Equal(t, "2025-01-10", task.DueDate.String())

	rec = doRequest(t, srv, http.MethodPut, "/api/tasks/1", map[string]any{"due_date": ""})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decode[taskResponse](t, rec).Task.DueDate)

	rec = doRequest(t, srv, http.MethodPut, "/api/tasks/1", map[string]any{"description": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, srv, http.MethodPut, "/api/tasks/7", map[string]any{"description": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetStatus(t *testing.T) {
	srv, _ := setupServer(t)
	createTask(t, srv, map[string]any{"description": "Buy milk"})

	rec := doRequest(t, srv, http.MethodPut, "/api/tasks/1/status", map[string]any{"status": "completed"})
	require.Equal(t, http.StatusOK, rec.Code)
	task := decode[taskResponse](t, rec).Task
	assert.Equal(t, models.StatusCompleted, task.Status)
	assert.NotNil(t, task.CompletedAt)

	rec = doRequest(t, srv, http.MethodPut, "/api/tasks/1/status", map[string]any{"status": "pending"})
	require.Equal(t, http.StatusOK, rec.Code)
	task = decode[taskResponse](t, rec).Task
	assert.Equal(t, models.StatusPending, task.Status)
	assert.Nil(t, task.CompletedAt)

	rec = doRequest(t, srv, http.MethodPut, "/api/tasks/1/status", map[string]any{"status": "archived"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, srv, http.MethodPut, "/api/tasks/1/status", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, srv, http.MethodPut, "/api/tasks/5/status", map[string]any{"status": "completed"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCompleteTask(t *testing.T) {
	srv, _ := setupServer(t)
	createTask(t, srv, map[string]any{"description": "Buy milk"})

	rec := doRequest(t, srv, http.MethodPost, "/api/tasks/1/complete", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.StatusCompleted, decode[taskResponse](t, rec).Task.Status)

	rec = doRequest(t, srv, http.MethodPost, "/api/tasks/2/complete", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteTask(t *testing.T) {
	srv, st := setupServer(t)
	createTask(t, srv, map[string]any{"description": "one"})
	createTask(t, srv, map[string]any{"description": "two"})

	rec := doRequest(t, srv, http.MethodDelete, "/api/tasks/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"deleted"}`, rec.Body.String())

	rec = doRequest(t, srv, http.MethodDelete, "/api/tasks/1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	third := createTask(t, srv, map[string]any{"description": "three"})
	assert.Equal(t, int64(3), third.ID)
	assert.Equal(t, 2, st.Count())
}

func TestClearCompleted(t *testing.T) {
	srv, st := setupServer(t)
	createTask(t, srv, map[string]any{"description": "one"})
	createTask(t, srv, map[string]any{"description": "two"})
	doRequest(t, srv, http.MethodPost, "/api/tasks/2/complete", nil)

	rec := doRequest(t, srv, http.MethodDelete, "/api/tasks/completed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"removed":1}`, rec.Body.String())
	assert.Equal(t, 1, st.Count())
}

func TestStatistics(t *testing.T) {
	srv, _ := setupServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/statistics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"statistics":{"total":0,"completed":0,"pending":0,"in_progress":0,"completion_rate":0}}`, rec.Body.String())

	createTask(t, srv, map[string]any{"description": "one"})
	createTask(t, srv, map[string]any{"description": "two"})
	doRequest(t, srv, http.MethodPost, "/api/tasks/1/complete", nil)

	rec = doRequest(t, srv, http.MethodGet, "/api/statistics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Statistics  models.Statistics `json:"statistics"`
		LastUpdated string            `json:"last_updated"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Statistics.Total)
	assert.Equal(t, 1, resp.Statistics.Completed)
	assert.Equal(t, 1, resp.Statistics.Pending)
	assert.InDelta(t, 50.0, resp.Statistics.CompletionRate, 0.001)
	_, err := models.ParseTimestamp(resp.LastUpdated)
	assert.NoError(t, err)
}

func TestCategories(t *testing.T) {
	srv, _ := setupServer(t)
	createTask(t, srv, map[string]any{"description": "x", "category": "garden"})

	rec := doRequest(t, srv, http.MethodGet, "/api/categories", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"categories":["general","work","personal","shopping","health","garden"]}`, rec.Body.String())
}

func TestExportCSV(t *testing.T) {
	srv, _ := setupServer(t)
	createTask(t, srv, map[string]any{"description": "Buy milk", "category": "shopping"})
	createTask(t, srv, map[string]any{"description": "Finish, report", "due_date": "2025-01-10"})

	rec := doRequest(t, srv, http.MethodGet, "/api/export.csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `attachment; filename="tasks-`)

	records, err := csv.NewReader(strings.NewReader(rec.Body.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "id", records[0][0])
	assert.Equal(t, []string{"1", "Buy milk", "medium", "pending"}, records[1][:4])
	assert.Equal(t, "Finish, report", records[2][1])
	assert.Equal(t, "2025-01-10", records[2][5])
}

// brokenBackend loads nothing and refuses every save.
type brokenBackend struct{}

func (brokenBackend) Load(context.Context) (storage.Snapshot, error) { return storage.Snapshot{}, nil }
func (brokenBackend) Save(context.Context, storage.Snapshot) error {
	return errors.New("read-only file system")
}
func (brokenBackend) Close() error { return nil }

func TestPersistFailureReturns500(t *testing.T) {
	st := store.Open(context.Background(), brokenBackend{}, quietLogger())
	srv := New(st, quietLogger(), "")

	rec := doRequest(t, srv, http.MethodPost, "/api/tasks", map[string]any{"description": "x"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decode[errorResponse](t, rec).Error, "read-only file system")
}

func TestStaticFrontend(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>tasks</html>"), 0o644))
	st := store.Open(context.Background(), brokenBackend{}, quietLogger())
	srv := New(st, quietLogger(), dir)

	rec := doRequest(t, srv, http.MethodGet, "/some/page", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tasks")

	rec = doRequest(t, srv, http.MethodGet, "/api/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
