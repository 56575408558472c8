package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"sharedtodo/internal/models"
	"sharedtodo/internal/todo"
)

type taskRequest struct {
	Title string `json:"title" binding:"required"`
}

type taskUpdateRequest struct {
	Title     *string `json:"title"`
	Completed *bool   `json:"completed"`
	Order     *int    `json:"order" binding:"omitempty,min=0"`
}

type importRequest struct {
	Text string `json:"text" binding:"required"`
}

// handleListTasks fetches the tasks of a category, split into active and
// completed.
func (s *Server) handleListTasks(c *gin.Context) {
	tasks, err := s.tasks.ListTasks(c.Request.Context(), identity(c).UID, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"active":    models.ActiveTasks(tasks),
		"completed": models.CompletedTasks(tasks),
	})
}

// handleCreateTask appends a task to a category.
func (s *Server) handleCreateTask(c *gin.Context) {
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	task, err := s.tasks.AppendTask(c.Request.Context(), identity(c).UID, c.Param("id"), req.Title)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"task": task})
}

// handleImportTasks creates tasks from a pasted list.
func (s *Server) handleImportTasks(c *gin.Context) {
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	tasks, err := s.tasks.ImportTasks(c.Request.Context(), identity(c).UID, c.Param("id"), req.Text)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"tasks": tasks})
}

// handleExportTasks renders a category as shareable text.
func (s *Server) handleExportTasks(c *gin.Context) {
	text, err := s.tasks.ExportTasks(c.Request.Context(), identity(c).UID, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"text": text})
}

// handleReorderTasks moves one active task to a new position.
func (s *Server) handleReorderTasks(c *gin.Context) {
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	tasks, err := s.tasks.MoveTask(c.Request.Context(), identity(c).UID, c.Param("id"), *req.From, *req.To)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"tasks": tasks})
}

// handleUpdateTask toggles, renames or repositions a task.
func (s *Server) handleUpdateTask(c *gin.Context) {
	var req taskUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	task, err := s.tasks.UpdateTask(c.Request.Context(), identity(c).UID, c.Param("id"), todo.TaskUpdate{
		Title:     req.Title,
		Completed: req.Completed,
		Order:     req.Order,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"task": task})
}

// handleDeleteTask removes a task completely.
func (s *Server) handleDeleteTask(c *gin.Context) {
	if err := s.tasks.DeleteTask(c.Request.Context(), identity(c).UID, c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": "deleted"})
}
