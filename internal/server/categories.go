package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type categoryRequest struct {
	Name   string `json:"name" binding:"required"`
	Shared bool   `json:"shared"`
}

type renameRequest struct {
	Name string `json:"name" binding:"required"`
}

// moveRequest is a drag-and-drop gesture: the item at From lands at To.
type moveRequest struct {
	From *int `json:"from" binding:"required,min=0"`
	To   *int `json:"to" binding:"required,min=0"`
}

type joinRequest struct {
	Code string `json:"code" binding:"required"`
}

// handleListCategories returns the caller's personal categories.
func (s *Server) handleListCategories(c *gin.Context) {
	categories, err := s.categories.ListPersonal(c.Request.Context(), identity(c).UID)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"categories": categories})
}

// handleListShared returns the shared categories the caller belongs to.
func (s *Server) handleListShared(c *gin.Context) {
	categories, err := s.categories.ListShared(c.Request.Context(), identity(c).UID)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"categories": categories})
}

// handleCreateCategory appends a personal or shared category.
func (s *Server) handleCreateCategory(c *gin.Context) {
	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	category, err := s.categories.AppendCategory(c.Request.Context(), identity(c).UID, req.Name, req.Shared)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"category": category})
}

// handleRenameCategory renames a category the caller can access.
func (s *Server) handleRenameCategory(c *gin.Context) {
	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	ctx := c.Request.Context()
	id := c.Param("id")
	if err := s.categories.RenameCategory(ctx, identity(c).UID, id, req.Name); err != nil {
		s.fail(c, err)
		return
	}
	category, err := s.categories.Get(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"category": category})
}

// handleDeleteCategory deletes a category with its tasks. For a member who
// does not own a shared category, deleting it means leaving it.
func (s *Server) handleDeleteCategory(c *gin.Context) {
	ctx := c.Request.Context()
	uid := identity(c).UID
	category, err := s.categories.GetForUser(ctx, uid, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}

	if category.IsShared && category.OwnerID != uid {
		if err := s.categories.LeaveShared(ctx, category.ID, uid); err != nil {
			s.fail(c, err)
			return
		}
		respondSuccess(c, http.StatusOK, gin.H{"status": "left"})
		return
	}

	if err := s.categories.DeleteCategory(ctx, uid, category.ID); err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": "deleted"})
}

// handleReorderCategories moves one personal category to a new position.
func (s *Server) handleReorderCategories(c *gin.Context) {
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	categories, err := s.categories.MoveCategory(c.Request.Context(), identity(c).UID, *req.From, *req.To)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"categories": categories})
}

// handleJoin adds the caller to the shared category behind a share code.
func (s *Server) handleJoin(c *gin.Context) {
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	category, err := s.categories.JoinByCode(c.Request.Context(), identity(c).UID, req.Code)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"category": category})
}

// handleLeave removes the caller from a shared category.
func (s *Server) handleLeave(c *gin.Context) {
	if err := s.categories.LeaveShared(c.Request.Context(), c.Param("id"), identity(c).UID); err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": "left"})
}

// handleMembers lists the profiles of a category's members.
func (s *Server) handleMembers(c *gin.Context) {
	members, err := s.categories.Members(c.Request.Context(), identity(c).UID, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"members": members})
}
