package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"taskdesk/internal/models"
)

var errEmptyDescription = errors.New("please enter a task description")

type createTaskRequest struct {
	Description string `json:"description"`
	Priority    string `json:"priority"`
	DueDate     string `json:"due_date"`
	Category    string `json:"category"`
}

type updateTaskRequest struct {
	Description *string `json:"description"`
	Priority    *string `json:"priority"`
	DueDate     *string `json:"due_date"`
	Category    *string `json:"category"`
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

// toNewTask validates the request the way the task form does before
// anything reaches the store.
func (r createTaskRequest) toNewTask() (models.NewTask, error) {
	in := models.NewTask{
		Description: strings.TrimSpace(r.Description),
		Category:    strings.TrimSpace(r.Category),
	}
	if in.Description == "" {
		return models.NewTask{}, errEmptyDescription
	}
	if r.Priority != "" {
		p, err := models.ParsePriority(r.Priority)
		if err != nil {
			return models.NewTask{}, err
		}
		in.Priority = p
	}
	if strings.TrimSpace(r.DueDate) != "" {
		d, err := models.ParseDate(r.DueDate)
		if err != nil {
			return models.NewTask{}, err
		}
		in.DueDate = &d
	}
	return in, nil
}

func (r updateTaskRequest) toUpdate() (models.TaskUpdate, error) {
	var upd models.TaskUpdate
	if r.Description != nil {
		desc := strings.TrimSpace(*r.Description)
		if desc == "" {
			return models.TaskUpdate{}, errEmptyDescription
		}
		upd.Description = &desc
	}
	if r.Priority != nil {
		p, err := models.ParsePriority(*r.Priority)
		if err != nil {
			return models.TaskUpdate{}, err
		}
		upd.Priority = &p
	}
	if r.DueDate != nil {
		if strings.TrimSpace(*r.DueDate) == "" {
			upd.ClearDueDate = true
		} else {
			d, err := models.ParseDate(*r.DueDate)
			if err != nil {
				return models.TaskUpdate{}, err
			}
			upd.DueDate = &d
		}
	}
	if r.Category != nil {
		category := strings.TrimSpace(*r.Category)
		upd.Category = &category
	}
	return upd, nil
}

// parseListQuery reads the store filter and the view/search/sort options
// from the query string.
func parseListQuery(c *gin.Context) (models.TaskFilter, models.ListQuery, error) {
	var (
		filter models.TaskFilter
		query  models.ListQuery
		err    error
	)

	if raw := c.Query("status"); raw != "" {
		st, err := models.ParseStatus(raw)
		if err != nil {
			return filter, query, err
		}
		filter.Status = &st
	}
	if raw := c.Query("priority"); raw != "" {
		p, err := models.ParsePriority(raw)
		if err != nil {
			return filter, query, err
		}
		filter.Priority = &p
	}
	if raw := strings.TrimSpace(c.Query("category")); raw != "" && raw != "all" {
		filter.Category = &raw
	}

	if query.View, err = models.ParseView(c.Query("view")); err != nil {
		return filter, query, err
	}
	if query.Sort, err = models.ParseSortMode(c.Query("sort")); err != nil {
		return filter, query, err
	}
	query.Search = c.Query("search")
	return filter, query, nil
}

// handleListTasks returns tasks matching the query string, sorted for display.
func (s *Server) handleListTasks(c *gin.Context) {
	filter, query, err := parseListQuery(c)
	if err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	tasks := query.Apply(s.store.List(filter))
	respondSuccess(c, http.StatusOK, gin.H{"tasks": tasks})
}

// handleGetTask returns a single task.
func (s *Server) handleGetTask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	task, found := s.store.Get(id)
	if !found {
		respondNotFound(c)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"task": task})
}

// handleCreateTask adds a task to the end of the list.
func (s *Server) handleCreateTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	in, err := req.toNewTask()
	if err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	task, err := s.store.Create(c.Request.Context(), in)
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"task": task})
}

// handleUpdateTask edits description, priority, due date or category.
func (s *Server) handleUpdateTask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req updateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	upd, err := req.toUpdate()
	if err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	found, err := s.store.Update(c.Request.Context(), id, upd)
	s.respondMutation(c, id, found, err)
}

// handleSetStatus moves a task between pending, in progress and completed.
func (s *Server) handleSetStatus(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	status, err := models.ParseStatus(req.Status)
	if err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	found, err := s.store.SetStatus(c.Request.Context(), id, status)
	s.respondMutation(c, id, found, err)
}

// handleCompleteTask marks a task as done.
func (s *Server) handleCompleteTask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	found, err := s.store.Complete(c.Request.Context(), id)
	s.respondMutation(c, id, found, err)
}

// handleDeleteTask removes a task completely.
func (s *Server) handleDeleteTask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	found, err := s.store.Delete(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}
	if !found {
		respondNotFound(c)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": "deleted"})
}

// handleClearCompleted removes every completed task.
func (s *Server) handleClearCompleted(c *gin.Context) {
	removed, err := s.store.ClearCompleted(c.Request.Context())
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"removed": removed})
}

// respondMutation answers an update style request with the task's new state.
func (s *Server) respondMutation(c *gin.Context, id int64, found bool, err error) {
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}
	if !found {
		respondNotFound(c)
		return
	}
	task, _ := s.store.Get(id)
	respondSuccess(c, http.StatusOK, gin.H{"task": task})
}
