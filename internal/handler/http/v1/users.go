package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shenikar/incident_reporting_system/internal/service"
)

// @Summary Register a new account
// @Description Create a user account with role "user" and return an access token
// @Tags Auth
// @Accept json
// @Produce json
// @Param account body RegisterRequest true "Registration request"
// @Success 201 {object} AuthResponse
// @Failure 400 {object} ErrorResponse "Validation error"
// @Failure 409 {object} ErrorResponse "Username or email already taken"
// @Router /auth/register [post]
func (h *Handler) register(c *gin.Context) {
	log := h.logger.WithField("method", "register")

	var input RegisterRequest
	if err := h.bindJSON(c, &input); err != nil {
		h.respondError(c, log, err)
		return
	}

	result, err := h.users.Register(c.Request.Context(), service.RegisterInput{
		Username:    input.Username,
		Email:       input.Email,
		Password:    input.Password,
		PhoneNumber: input.PhoneNumber,
	})
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	c.JSON(http.StatusCreated, ModelToAuthResponse(result))
}

// @Summary Log in
// @Description Exchange email and password for an access token
// @Tags Auth
// @Accept json
// @Produce json
// @Param credentials body LoginRequest true "Login request"
// @Success 200 {object} AuthResponse
// @Failure 400 {object} ErrorResponse "Validation error"
// @Failure 401 {object} ErrorResponse "Invalid credentials"
// @Failure 403 {object} ErrorResponse "Account locked or deactivated"
// @Router /auth/login [post]
func (h *Handler) login(c *gin.Context) {
	log := h.logger.WithField("method", "login")

	var input LoginRequest
	if err := h.bindJSON(c, &input); err != nil {
		h.respondError(c, log, err)
		return
	}

	result, err := h.users.Login(c.Request.Context(), input.Email, input.Password)
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelToAuthResponse(result))
}

// @Summary Log out
// @Description Revoke the current access token
// @Tags Auth
// @Produce json
// @Security BearerAuth
// @Success 204 "No Content"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Router /auth/logout [post]
func (h *Handler) logout(c *gin.Context) {
	log := h.logger.WithField("method", "logout")

	if err := h.users.Logout(c.Request.Context(), actor(c), c.GetString(tokenKey)); err != nil {
		h.respondError(c, log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// @Summary Current user
// @Description Get the authenticated user's account
// @Tags Auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.User
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Router /auth/me [get]
func (h *Handler) me(c *gin.Context) {
	c.JSON(http.StatusOK, actor(c))
}

// @Summary Update own profile
// @Description Change phone number, notification preferences and UI preferences
// @Tags Users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param profile body ProfileRequest true "Profile update"
// @Success 200 {object} models.User
// @Failure 400 {object} ErrorResponse "Validation error"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Router /users/me [patch]
func (h *Handler) updateProfile(c *gin.Context) {
	log := h.logger.WithField("method", "updateProfile")

	var input ProfileRequest
	if _, err := requestKeys(c, input); err != nil {
		h.respondError(c, log, err)
		return
	}
	if err := h.bindJSON(c, &input); err != nil {
		h.respondError(c, log, err)
		return
	}

	user, err := h.users.UpdateProfile(c.Request.Context(), actor(c), DTOToProfileUpdate(input))
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// @Summary Own activity log
// @Description List the authenticated user's activities, newest first
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Items per page" default(10)
// @Success 200 {object} models.Page[models.Activity]
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Router /users/me/activities [get]
func (h *Handler) myActivities(c *gin.Context) {
	log := h.logger.WithField("method", "myActivities")
	page, perPage := pagination(c)
	user := actor(c)

	activities, err := h.activities.ListActivities(c.Request.Context(), user, &user.ID, page, perPage)
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, activities)
}
