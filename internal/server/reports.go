package server

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"taskdesk/internal/export"
	"taskdesk/internal/models"
)

// handleStatistics returns per-status counts and the completion rate.
func (s *Server) handleStatistics(c *gin.Context) {
	stats := s.store.Statistics()
	payload := gin.H{"statistics": stats}
	if ts, ok := s.store.LastUpdated(); ok {
		payload["last_updated"] = ts
	}
	respondSuccess(c, http.StatusOK, payload)
}

// handleCategories lists the categories a task can be filed under.
func (s *Server) handleCategories(c *gin.Context) {
	respondSuccess(c, http.StatusOK, gin.H{"categories": s.store.Categories()})
}

// handleExport streams every task as CSV in list order.
func (s *Server) handleExport(c *gin.Context) {
	tasks := s.store.List(models.TaskFilter{})
	name := fmt.Sprintf("tasks-%s.csv", time.Now().Format("20060102-150405"))

	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, tasks); err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}
