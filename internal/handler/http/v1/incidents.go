package v1

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shenikar/incident_reporting_system/internal/apperr"
	"github.com/shenikar/incident_reporting_system/internal/models"
	"github.com/shenikar/incident_reporting_system/internal/service"
	"github.com/sirupsen/logrus"
)

const mediaFormField = "media"

// @Summary Create a new incident
// @Description Report an incident. Media files with disallowed extensions or over the size limit are skipped.
// @Tags Incidents
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param title formData string true "Title"
// @Param description formData string true "Description"
// @Param latitude formData number true "Latitude"
// @Param longitude formData number true "Longitude"
// @Param priority formData string false "Priority" Enums(low, medium, high, critical)
// @Param category_id formData string false "Category ID"
// @Param address formData string false "Address"
// @Param affected_area_radius formData number false "Affected area radius"
// @Param media formData file false "Media files"
// @Success 201 {object} models.Incident
// @Failure 400 {object} ErrorResponse "Validation error"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 413 {object} ErrorResponse "Request body too large"
// @Failure 502 {object} ErrorResponse "Media upload failed"
// @Router /incidents [post]
func (h *Handler) createIncident(c *gin.Context) {
	log := h.logger.WithField("method", "createIncident")

	input, err := h.parseCreateForm(c, log)
	if err != nil {
		h.respondError(c, log, err)
		return
	}

	incident, err := h.incidents.CreateIncident(c.Request.Context(), actor(c), input)
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	c.JSON(http.StatusCreated, incident)
}

// parseCreateForm собирает входные данные создания из multipart-формы
// (или из обычной формы, если файлов нет)
func (h *Handler) parseCreateForm(c *gin.Context, log *logrus.Entry) (service.CreateIncidentInput, error) {
	var input service.CreateIncidentInput

	// форма разбирается до чтения полей, иначе превышение лимита тела
	// превратилось бы в ошибку обязательного поля
	form, err := multipartForm(c)
	if err != nil {
		return input, err
	}

	input = service.CreateIncidentInput{
		Title:       c.PostForm("title"),
		Description: c.PostForm("description"),
		Priority:    c.PostForm("priority"),
		Address:     c.PostForm("address"),
	}
	if input.Latitude, err = requiredFloat(c, "latitude"); err != nil {
		return input, err
	}
	if input.Longitude, err = requiredFloat(c, "longitude"); err != nil {
		return input, err
	}
	if raw := strings.TrimSpace(c.PostForm("affected_area_radius")); raw != "" {
		radius, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return input, apperr.Validation("affected_area_radius must be a number").WithFields("affected_area_radius")
		}
		input.Radius = &radius
	}
	if raw := strings.TrimSpace(c.PostForm("category_id")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return input, apperr.Validation("invalid category_id").WithFields("category_id")
		}
		input.CategoryID = &id
	}

	if input.Media, _, err = h.readMedia(form, log); err != nil {
		return input, err
	}
	return input, nil
}

func requiredFloat(c *gin.Context, field string) (float64, error) {
	raw := strings.TrimSpace(c.PostForm(field))
	if raw == "" {
		return 0, apperr.Validation("%s is required", field).WithFields(field)
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, apperr.Validation("%s must be a number", field).WithFields(field)
	}
	return value, nil
}

// multipartForm разбирает multipart-тело. Для другого типа тела возвращает nil без ошибки.
func multipartForm(c *gin.Context) (*multipart.Form, error) {
	form, err := c.MultipartForm()
	if err == nil {
		return form, nil
	}
	if errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return nil, apperr.TooLarge("request body exceeds %d bytes", tooLarge.Limit)
	}
	return nil, apperr.Validation("invalid multipart form")
}

// readMedia читает файлы из поля media. Файлы с неразрешенным расширением
// или размером пропускаются по заголовку части, их содержимое не читается.
// Второе значение - число пропущенных файлов.
func (h *Handler) readMedia(form *multipart.Form, log *logrus.Entry) ([]service.MediaFile, int, error) {
	if form == nil {
		return nil, 0, nil
	}

	headers := form.File[mediaFormField]
	files := make([]service.MediaFile, 0, len(headers))
	skipped := 0
	for _, header := range headers {
		if !h.uploads.Rules.Allows(header.Filename, header.Size) {
			log.WithFields(logrus.Fields{"filename": header.Filename, "size": header.Size}).Warn("Skipping media file that is not allowed")
			skipped++
			continue
		}
		file, err := readFile(header)
		if err != nil {
			return nil, skipped, apperr.Validation("could not read file %q", header.Filename).WithFields(mediaFormField)
		}
		files = append(files, file)
	}
	return files, skipped, nil
}

func readFile(header *multipart.FileHeader) (service.MediaFile, error) {
	f, err := header.Open()
	if err != nil {
		return service.MediaFile{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return service.MediaFile{}, err
	}
	return service.MediaFile{Filename: header.Filename, Size: header.Size, Data: data}, nil
}

// limitBody ограничивает размер тела запроса. Запрос с заведомо большим
// Content-Length отклоняется сразу, остальные обрезаются при чтении.
func (h *Handler) limitBody() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := h.uploads.MaxRequestBytes
		if limit <= 0 {
			c.Next()
			return
		}
		if c.Request.ContentLength > limit {
			h.respondError(c, h.logger.WithField("method", "limitBody"),
				apperr.TooLarge("request body exceeds %d bytes", limit))
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

// @Summary Get a list of incidents
// @Description Non-admin users only see their own incidents whatever the filters say
// @Tags Incidents
// @Produce json
// @Security BearerAuth
// @Param status query string false "Status filter"
// @Param priority query string false "Priority filter"
// @Param category_id query string false "Category filter"
// @Param search query string false "Substring of title or description"
// @Param date_from query string false "Created at or after (RFC3339 or YYYY-MM-DD)"
// @Param date_to query string false "Created at or before (RFC3339 or YYYY-MM-DD)"
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Items per page" default(10)
// @Success 200 {object} models.Page[models.Incident]
// @Failure 400 {object} ErrorResponse "Invalid filter"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Router /incidents [get]
func (h *Handler) listIncidents(c *gin.Context) {
	log := h.logger.WithField("method", "listIncidents")

	filter, err := parseIncidentFilter(c)
	if err != nil {
		h.respondError(c, log, err)
		return
	}

	incidents, err := h.incidents.ListIncidents(c.Request.Context(), actor(c), filter)
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, incidents)
}

func parseIncidentFilter(c *gin.Context) (models.IncidentFilter, error) {
	var filter models.IncidentFilter
	filter.Page, filter.PerPage = pagination(c)
	filter.Search = strings.TrimSpace(c.Query("search"))

	if raw := c.Query("status"); raw != "" {
		status, err := models.ParseStatus(raw)
		if err != nil {
			return filter, err
		}
		filter.Status = &status
	}
	if raw := c.Query("priority"); raw != "" {
		priority, err := models.ParsePriority(raw)
		if err != nil {
			return filter, err
		}
		filter.Priority = &priority
	}
	if raw := c.Query("category_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return filter, apperr.Validation("invalid category_id").WithFields("category_id")
		}
		filter.CategoryID = &id
	}

	var err error
	if filter.From, err = parseDate(c.Query("date_from"), "date_from", false); err != nil {
		return filter, err
	}
	if filter.To, err = parseDate(c.Query("date_to"), "date_to", true); err != nil {
		return filter, err
	}
	return filter, nil
}

// parseDate принимает RFC3339 или дату; дата в конце диапазона включает весь день
func parseDate(raw, field string, endOfDay bool) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, apperr.Validation("%s must be RFC3339 or YYYY-MM-DD", field).WithFields(field)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

// @Summary Get incident by ID
// @Description Owners and admins may read an incident
// @Tags Incidents
// @Produce json
// @Security BearerAuth
// @Param id path string true "Incident ID"
// @Success 200 {object} models.Incident
// @Failure 400 {object} ErrorResponse "Invalid incident ID"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 403 {object} ErrorResponse "Forbidden"
// @Failure 404 {object} ErrorResponse "Incident not found"
// @Router /incidents/{id} [get]
func (h *Handler) getIncident(c *gin.Context) {
	log := h.logger.WithField("method", "getIncident")
	id, err := parseID(c, "id")
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	log = log.WithField("id", id)

	incident, err := h.incidents.GetIncident(c.Request.Context(), actor(c), id)
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, incident)
}

// @Summary Update an existing incident
// @Description Owners may change title and description only. Admins may change every field; status goes through the lifecycle rules.
// @Tags Incidents
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Incident ID"
// @Param incident body UpdateIncidentRequest true "Incident update request"
// @Success 200 {object} models.Incident
// @Header 200 {string} X-Notification-Status "queued or degraded when the status changed"
// @Failure 400 {object} ErrorResponse "Invalid incident ID or request body"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 403 {object} ErrorResponse "Forbidden fields"
// @Failure 404 {object} ErrorResponse "Incident not found"
// @Router /incidents/{id} [put]
func (h *Handler) updateIncident(c *gin.Context) {
	log := h.logger.WithField("method", "updateIncident")
	id, err := parseID(c, "id")
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	log = log.WithField("id", id)

	var input UpdateIncidentRequest
	keys, err := requestKeys(c, input)
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	if err := h.bindJSON(c, &input); err != nil {
		h.respondError(c, log, err)
		return
	}
	patch, err := DTOToIncidentPatch(input, keys)
	if err != nil {
		h.respondError(c, log, err)
		return
	}

	result, err := h.incidents.UpdateIncident(c.Request.Context(), actor(c), id, patch)
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	setNotificationHeader(c, result.Notification)
	c.JSON(http.StatusOK, result.Incident)
}

// @Summary Attach media to an incident
// @Description Upload additional media files. Only admins may attach media after creation.
// @Tags Incidents
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param id path string true "Incident ID"
// @Param media formData file true "Media files"
// @Success 200 {object} models.Incident
// @Failure 400 {object} ErrorResponse "No acceptable files"
// @Failure 403 {object} ErrorResponse "Forbidden"
// @Failure 404 {object} ErrorResponse "Incident not found"
// @Failure 413 {object} ErrorResponse "Request body too large"
// @Failure 502 {object} ErrorResponse "Media upload failed"
// @Router /incidents/{id}/media [post]
func (h *Handler) addMedia(c *gin.Context) {
	log := h.logger.WithField("method", "addMedia")
	id, err := parseID(c, "id")
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	log = log.WithField("id", id)

	form, err := multipartForm(c)
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	files, skipped, err := h.readMedia(form, log)
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	if len(files) == 0 {
		if skipped > 0 {
			h.respondError(c, log, apperr.Validation("no acceptable media files provided").WithFields(mediaFormField))
			return
		}
		h.respondError(c, log, apperr.Validation("at least one file is required").WithFields(mediaFormField))
		return
	}

	result, err := h.incidents.AddMedia(c.Request.Context(), actor(c), id, files)
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	setNotificationHeader(c, result.Notification)
	c.JSON(http.StatusOK, result.Incident)
}

// @Summary Delete an incident
// @Description Owners and admins may delete an incident
// @Tags Incidents
// @Security BearerAuth
// @Param id path string true "Incident ID"
// @Success 204 "No Content"
// @Failure 400 {object} ErrorResponse "Invalid incident ID"
// @Failure 403 {object} ErrorResponse "Forbidden"
// @Failure 404 {object} ErrorResponse "Incident not found"
// @Router /incidents/{id} [delete]
func (h *Handler) deleteIncident(c *gin.Context) {
	log := h.logger.WithField("method", "deleteIncident")
	id, err := parseID(c, "id")
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	log = log.WithField("id", id)

	if err := h.incidents.DeleteIncident(c.Request.Context(), actor(c), id); err != nil {
		h.respondError(c, log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// @Summary Change incident status
// @Description Move an incident through its lifecycle (admin only)
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Incident ID"
// @Param status body StatusRequest true "New status"
// @Success 200 {object} models.Incident
// @Header 200 {string} X-Notification-Status "queued or degraded"
// @Failure 400 {object} ErrorResponse "Invalid status or transition"
// @Failure 403 {object} ErrorResponse "Forbidden"
// @Failure 404 {object} ErrorResponse "Incident not found"
// @Router /admin/incidents/{id}/status [put]
func (h *Handler) transitionStatus(c *gin.Context) {
	log := h.logger.WithField("method", "transitionStatus")
	id, err := parseID(c, "id")
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	log = log.WithField("id", id)

	var input StatusRequest
	if err := h.bindJSON(c, &input); err != nil {
		h.respondError(c, log, err)
		return
	}

	result, err := h.incidents.TransitionStatus(c.Request.Context(), actor(c), id, input.Status, input.ResolutionNotes)
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	setNotificationHeader(c, result.Notification)
	c.JSON(http.StatusOK, result.Incident)
}

// @Summary Change status of several incidents
// @Description Each incident is committed separately; failures are reported per incident (admin only)
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param batch body BatchStatusRequest true "Incidents and new status"
// @Success 200 {object} service.BatchResult
// @Header 200 {string} X-Notification-Status "queued or degraded"
// @Failure 400 {object} ErrorResponse "Invalid status"
// @Failure 403 {object} ErrorResponse "Forbidden"
// @Router /admin/incidents/status [post]
func (h *Handler) transitionBatch(c *gin.Context) {
	log := h.logger.WithField("method", "transitionBatch")

	var input BatchStatusRequest
	if err := h.bindJSON(c, &input); err != nil {
		h.respondError(c, log, err)
		return
	}

	result, err := h.incidents.TransitionBatch(c.Request.Context(), actor(c), input.IncidentIDs, input.Status)
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	setNotificationHeader(c, result.Notification)
	log.WithField("failed", len(result.Failed)).Debug("Batch processed")
	c.JSON(http.StatusOK, result)
}

// @Summary Dashboard statistics
// @Description Totals, counts by status and the most recent incidents (admin only)
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.DashboardStats
// @Failure 403 {object} ErrorResponse "Forbidden"
// @Router /admin/stats [get]
func (h *Handler) getStats(c *gin.Context) {
	log := h.logger.WithField("method", "getStats")

	stats, err := h.incidents.GetStats(c.Request.Context(), actor(c))
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
