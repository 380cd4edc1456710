package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// @Summary List incident comments
// @Description Comments of an incident, oldest first. Anyone who may read the incident may list them.
// @Tags Comments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Incident ID"
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Items per page" default(10)
// @Success 200 {object} models.Page[models.Comment]
// @Failure 403 {object} ErrorResponse "Forbidden"
// @Failure 404 {object} ErrorResponse "Incident not found"
// @Router /incidents/{id}/comments [get]
func (h *Handler) listComments(c *gin.Context) {
	log := h.logger.WithField("method", "listComments")
	id, err := parseID(c, "id")
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	page, perPage := pagination(c)

	comments, err := h.comments.ListComments(c.Request.Context(), actor(c), id, page, perPage)
	if err != nil {
		h.respondError(c, log.WithField("incident_id", id), err)
		return
	}
	c.JSON(http.StatusOK, comments)
}

// @Summary Comment on an incident
// @Tags Comments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Incident ID"
// @Param comment body CommentRequest true "Comment"
// @Success 201 {object} models.Comment
// @Failure 400 {object} ErrorResponse "Validation error"
// @Failure 403 {object} ErrorResponse "Forbidden"
// @Failure 404 {object} ErrorResponse "Incident not found"
// @Router /incidents/{id}/comments [post]
func (h *Handler) addComment(c *gin.Context) {
	log := h.logger.WithField("method", "addComment")
	id, err := parseID(c, "id")
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	log = log.WithField("incident_id", id)

	var input CommentRequest
	if err := h.bindJSON(c, &input); err != nil {
		h.respondError(c, log, err)
		return
	}

	comment, err := h.comments.AddComment(c.Request.Context(), actor(c), id, input.Content)
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}
