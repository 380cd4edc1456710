package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// @Summary List categories
// @Tags Categories
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.Category
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Router /categories [get]
func (h *Handler) listCategories(c *gin.Context) {
	log := h.logger.WithField("method", "listCategories")

	categories, err := h.categories.ListCategories(c.Request.Context(), actor(c))
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, categories)
}

// @Summary Create a category
// @Description Admin only
// @Tags Categories
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param category body CategoryRequest true "Category"
// @Success 201 {object} models.Category
// @Failure 400 {object} ErrorResponse "Validation error"
// @Failure 403 {object} ErrorResponse "Forbidden"
// @Failure 409 {object} ErrorResponse "Name already taken"
// @Router /categories [post]
func (h *Handler) createCategory(c *gin.Context) {
	log := h.logger.WithField("method", "createCategory")

	var input CategoryRequest
	if err := h.bindJSON(c, &input); err != nil {
		h.respondError(c, log, err)
		return
	}

	category, err := h.categories.CreateCategory(c.Request.Context(), actor(c), DTOToCategoryInput(input))
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	c.JSON(http.StatusCreated, category)
}

// @Summary Update a category
// @Description Admin only
// @Tags Categories
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Category ID"
// @Param category body CategoryRequest true "Category"
// @Success 200 {object} models.Category
// @Failure 400 {object} ErrorResponse "Validation error"
// @Failure 403 {object} ErrorResponse "Forbidden"
// @Failure 404 {object} ErrorResponse "Category not found"
// @Router /categories/{id} [put]
func (h *Handler) updateCategory(c *gin.Context) {
	log := h.logger.WithField("method", "updateCategory")
	id, err := parseID(c, "id")
	if err != nil {
		h.respondError(c, log, err)
		return
	}

	var input CategoryRequest
	if err := h.bindJSON(c, &input); err != nil {
		h.respondError(c, log, err)
		return
	}

	category, err := h.categories.UpdateCategory(c.Request.Context(), actor(c), id, DTOToCategoryInput(input))
	if err != nil {
		h.respondError(c, log.WithField("id", id), err)
		return
	}
	c.JSON(http.StatusOK, category)
}

// @Summary Delete a category
// @Description Admin only. Incidents of the category are left without one.
// @Tags Categories
// @Security BearerAuth
// @Param id path string true "Category ID"
// @Success 204 "No Content"
// @Failure 403 {object} ErrorResponse "Forbidden"
// @Failure 404 {object} ErrorResponse "Category not found"
// @Router /categories/{id} [delete]
func (h *Handler) deleteCategory(c *gin.Context) {
	log := h.logger.WithField("method", "deleteCategory")
	id, err := parseID(c, "id")
	if err != nil {
		h.respondError(c, log, err)
		return
	}

	if err := h.categories.DeleteCategory(c.Request.Context(), actor(c), id); err != nil {
		h.respondError(c, log.WithField("id", id), err)
		return
	}
	c.Status(http.StatusNoContent)
}
