package v1

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shenikar/incident_reporting_system/internal/apperr"
	"github.com/shenikar/incident_reporting_system/internal/models"
	"github.com/shenikar/incident_reporting_system/internal/service"
	"github.com/shenikar/incident_reporting_system/internal/storage"
	"github.com/sirupsen/logrus"
)

const (
	actorKey = "actor"
	tokenKey = "token"

	notificationHeader = "X-Notification-Status"
	healthCheckTimeout = 2 * time.Second
)

// Services - сервисы, которые обслуживает HTTP-слой
type Services struct {
	Users      service.UserService
	Incidents  service.IncidentService
	Comments   service.CommentService
	Categories service.CategoryService
	Activities service.ActivityService
}

// UploadLimits - ограничения загрузки медиафайлов: правила для отдельного
// файла и предел всего тела multipart-запроса
type UploadLimits struct {
	Rules           storage.MediaRules
	MaxRequestBytes int64
}

// HealthCheck проверяет доступность зависимости
type HealthCheck func(ctx context.Context) error

type Handler struct {
	users      service.UserService
	incidents  service.IncidentService
	comments   service.CommentService
	categories service.CategoryService
	activities service.ActivityService
	uploads    UploadLimits
	logger     *logrus.Logger
	validate   *validator.Validate
	health     map[string]HealthCheck
}

func NewHandler(services Services, uploads UploadLimits, logger *logrus.Logger, health map[string]HealthCheck) *Handler {
	validate := validator.New()
	// В ошибках валидации используем имена полей из JSON
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Handler{
		users:      services.Users,
		incidents:  services.Incidents,
		comments:   services.Comments,
		categories: services.Categories,
		activities: services.Activities,
		uploads:    uploads,
		logger:     logger,
		validate:   validate,
		health:     health,
	}
}

// respondError отображает ошибку в HTTP-ответ. Внутренние ошибки логируются,
// клиент получает только безопасное сообщение.
func (h *Handler) respondError(c *gin.Context, log *logrus.Entry, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.WithError(err).Error("Request failed")
	} else {
		log.WithError(err).Warn("Request rejected")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:  apperr.PublicMessage(err),
		Fields: apperr.FieldsOf(err),
	})
}

// bindJSON разбирает и валидирует тело запроса
func (h *Handler) bindJSON(c *gin.Context, dst any) error {
	if err := c.ShouldBindBodyWith(dst, binding.JSON); err != nil {
		return apperr.Validation("invalid request body")
	}
	return h.validateStruct(dst)
}

func (h *Handler) validateStruct(dst any) error {
	err := h.validate.Struct(dst)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Validation("invalid request body")
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	return apperr.Validation("invalid value for: %s", strings.Join(fields, ", ")).WithFields(fields...)
}

// requestKeys возвращает отсортированные ключи тела запроса и отклоняет
// ключи, которых нет в dto. Ключ со значением null тоже считается переданным.
func requestKeys(c *gin.Context, dto any) ([]string, error) {
	var raw map[string]any
	if err := c.ShouldBindBodyWith(&raw, binding.JSON); err != nil {
		return nil, apperr.Validation("invalid request body")
	}
	known := jsonKeys(reflect.TypeOf(dto))
	keys := make([]string, 0, len(raw))
	var unknown []string
	for key := range raw {
		if _, ok := known[key]; !ok {
			unknown = append(unknown, key)
			continue
		}
		keys = append(keys, key)
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, apperr.Validation("unknown fields: %s", strings.Join(unknown, ", ")).WithFields(unknown...)
	}
	sort.Strings(keys)
	return keys, nil
}

func jsonKeys(t reflect.Type) map[string]struct{} {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	keys := make(map[string]struct{}, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		name := strings.SplitN(t.Field(i).Tag.Get("json"), ",", 2)[0]
		if name != "" && name != "-" {
			keys[name] = struct{}{}
		}
	}
	return keys
}

// actor возвращает пользователя, установленного AuthMiddleware
func actor(c *gin.Context) *models.User {
	user, _ := c.Get(actorKey)
	u, _ := user.(*models.User)
	return u
}

func parseID(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid %s", name).WithFields(name)
	}
	return id, nil
}

// pagination читает page и per_page; нормализация выполняется в сервисе
func pagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", strconv.Itoa(models.DefaultPerPage)))
	return page, perPage
}

func setNotificationHeader(c *gin.Context, status service.NotificationStatus) {
	if status != service.NotificationNone {
		c.Header(notificationHeader, string(status))
	}
}

// @Summary Get application health status
// @Description Get health status of the application and its dependencies
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /system/health [get]
func (h *Handler) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	resp := HealthResponse{Status: "ok"}
	code := http.StatusOK
	if len(h.health) > 0 {
		resp.Checks = make(map[string]string, len(h.health))
	}
	for name, check := range h.health {
		if err := check(ctx); err != nil {
			h.logger.WithField("dependency", name).WithError(err).Warn("Health check failed")
			resp.Checks[name] = "unavailable"
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	c.JSON(code, resp)
}
