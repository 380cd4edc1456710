package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shenikar/incident_reporting_system/internal/apperr"
)

// @Summary List users
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Items per page" default(10)
// @Success 200 {object} models.Page[models.User]
// @Failure 403 {object} ErrorResponse "Forbidden"
// @Router /admin/users [get]
func (h *Handler) listUsers(c *gin.Context) {
	log := h.logger.WithField("method", "listUsers")
	page, perPage := pagination(c)

	users, err := h.users.ListUsers(c.Request.Context(), actor(c), page, perPage)
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

// @Summary Change user role
// @Description Admins cannot demote themselves
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Param role body RoleRequest true "New role"
// @Success 200 {object} models.User
// @Failure 400 {object} ErrorResponse "Invalid role"
// @Failure 403 {object} ErrorResponse "Forbidden"
// @Failure 404 {object} ErrorResponse "User not found"
// @Router /admin/users/{id}/role [patch]
func (h *Handler) updateUserRole(c *gin.Context) {
	log := h.logger.WithField("method", "updateUserRole")
	id, err := parseID(c, "id")
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	log = log.WithField("target_id", id)

	var input RoleRequest
	if err := h.bindJSON(c, &input); err != nil {
		h.respondError(c, log, err)
		return
	}

	user, err := h.users.UpdateRole(c.Request.Context(), actor(c), id, input.Role)
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// @Summary Activate or deactivate a user
// @Description Admins cannot deactivate themselves
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Param status body ActiveRequest true "Account state"
// @Success 200 {object} models.User
// @Failure 400 {object} ErrorResponse "Validation error"
// @Failure 403 {object} ErrorResponse "Forbidden"
// @Failure 404 {object} ErrorResponse "User not found"
// @Router /admin/users/{id}/status [patch]
func (h *Handler) setUserActive(c *gin.Context) {
	log := h.logger.WithField("method", "setUserActive")
	id, err := parseID(c, "id")
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	log = log.WithField("target_id", id)

	var input ActiveRequest
	if err := h.bindJSON(c, &input); err != nil {
		h.respondError(c, log, err)
		return
	}

	user, err := h.users.SetActive(c.Request.Context(), actor(c), id, *input.IsActive)
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// @Summary Delete a user
// @Description Admins cannot delete themselves
// @Tags Admin
// @Security BearerAuth
// @Param id path string true "User ID"
// @Success 204 "No Content"
// @Failure 403 {object} ErrorResponse "Forbidden"
// @Failure 404 {object} ErrorResponse "User not found"
// @Router /admin/users/{id} [delete]
func (h *Handler) deleteUser(c *gin.Context) {
	log := h.logger.WithField("method", "deleteUser")
	id, err := parseID(c, "id")
	if err != nil {
		h.respondError(c, log, err)
		return
	}

	if err := h.users.DeleteUser(c.Request.Context(), actor(c), id); err != nil {
		h.respondError(c, log.WithField("target_id", id), err)
		return
	}
	c.Status(http.StatusNoContent)
}

// @Summary Activity log
// @Description All activities, or those of one user (admin only), newest first
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param user_id query string false "User ID"
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Items per page" default(10)
// @Success 200 {object} models.Page[models.Activity]
// @Failure 400 {object} ErrorResponse "Invalid user_id"
// @Failure 403 {object} ErrorResponse "Forbidden"
// @Router /admin/activities [get]
func (h *Handler) listActivities(c *gin.Context) {
	log := h.logger.WithField("method", "listActivities")
	page, perPage := pagination(c)

	var userID *uuid.UUID
	if raw := c.Query("user_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.respondError(c, log, apperr.Validation("invalid user_id").WithFields("user_id"))
			return
		}
		userID = &id
	}

	activities, err := h.activities.ListActivities(c.Request.Context(), actor(c), userID, page, perPage)
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, activities)
}
