package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shenikar/incident_reporting_system/internal/apperr"
	"github.com/shenikar/incident_reporting_system/internal/handler/http/v1/mocks"
	"github.com/shenikar/incident_reporting_system/internal/models"
	"github.com/shenikar/incident_reporting_system/internal/service"
	"github.com/shenikar/incident_reporting_system/internal/storage"
	"github.com/shenikar/incident_reporting_system/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const testToken = "test-token"

// testUploads разрешает png и jpg до 1 КиБ на файл и 16 КиБ на запрос
var testUploads = UploadLimits{
	Rules:           storage.NewMediaRules([]string{"png", "jpg"}, 1024),
	MaxRequestBytes: 16 << 10,
}

type handlerMocks struct {
	users      *mocks.MockUserService
	incidents  *mocks.MockIncidentService
	comments   *mocks.MockCommentService
	categories *mocks.MockCategoryService
	activities *mocks.MockActivityService
}

// newTestHandler создает Handler с мокированными сервисами и роутер gin
func newTestHandler(t *testing.T, health map[string]HealthCheck) (*handlerMocks, *gin.Engine) {
	ctrl := gomock.NewController(t)
	m := &handlerMocks{
		users:      mocks.NewMockUserService(ctrl),
		incidents:  mocks.NewMockIncidentService(ctrl),
		comments:   mocks.NewMockCommentService(ctrl),
		categories: mocks.NewMockCategoryService(ctrl),
		activities: mocks.NewMockActivityService(ctrl),
	}

	handler := NewHandler(Services{
		Users:      m.users,
		Incidents:  m.incidents,
		Comments:   m.comments,
		Categories: m.categories,
		Activities: m.activities,
	}, testUploads, logger.Discard(), health)

	// Настройка Gin роутера для тестов
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handler.RegisterRoutes(router.Group("/api/v1"))

	return m, router
}

// authAs настраивает мок аутентификации на выдачу user по testToken
func (m *handlerMocks) authAs(user *models.User) {
	m.users.EXPECT().Authenticate(gomock.Any(), testToken).Return(user, nil).AnyTimes()
}

func newUser(role models.Role) *models.User {
	return &models.User{ID: uuid.New(), Username: "user-" + string(role), Email: string(role) + "@example.com", Role: role, IsActive: true}
}

// makeRequest - вспомогательная функция для выполнения HTTP-запросов
func makeRequest(router *gin.Engine, method, url string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, url, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Authorization", "Bearer "+testToken)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func jsonRequest(router *gin.Engine, method, url string, body any) *httptest.ResponseRecorder {
	if body == nil {
		return makeRequest(router, method, url, nil, "")
	}
	var buf bytes.Buffer
	switch v := body.(type) {
	case string:
		buf.WriteString(v)
	default:
		_ = json.NewEncoder(&buf).Encode(v)
	}
	return makeRequest(router, method, url, &buf, "application/json")
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := newTestHandler(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/incidents", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "access token required", decodeError(t, w).Error)
}

func TestAuthMiddleware_InvalidToken(t *testing.T) {
	m, router := newTestHandler(t, nil)
	m.users.EXPECT().Authenticate(gomock.Any(), testToken).Return(nil, apperr.Unauthenticated("invalid or expired token"))
	m.incidents.EXPECT().ListIncidents(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	w := jsonRequest(router, http.MethodGet, "/api/v1/incidents", nil)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid or expired token", decodeError(t, w).Error)
}

func TestCreateIncident_Multipart(t *testing.T) {
	// Подготовка
	m, router := newTestHandler(t, nil)
	reporter := newUser(models.RoleUser)
	m.authAs(reporter)
	categoryID := uuid.New()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("title", "Прорыв трубы")
	_ = mw.WriteField("description", "Вода на улице")
	_ = mw.WriteField("latitude", "55.75")
	_ = mw.WriteField("longitude", "37.61")
	_ = mw.WriteField("category_id", categoryID.String())
	_ = mw.WriteField("affected_area_radius", "150")
	for _, name := range []string{"a.png", "b.jpg"} {
		fw, err := mw.CreateFormFile("media", name)
		require.NoError(t, err)
		_, _ = fw.Write([]byte("image-" + name))
	}
	require.NoError(t, mw.Close())

	// Ожидания
	m.incidents.EXPECT().
		CreateIncident(gomock.Any(), reporter, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ *models.User, input service.CreateIncidentInput) (*models.Incident, error) {
			assert.Equal(t, "Прорыв трубы", input.Title)
			assert.Equal(t, 55.75, input.Latitude)
			assert.Equal(t, 37.61, input.Longitude)
			require.NotNil(t, input.CategoryID)
			assert.Equal(t, categoryID, *input.CategoryID)
			require.NotNil(t, input.Radius)
			assert.Equal(t, 150.0, *input.Radius)
			require.Len(t, input.Media, 2)
			assert.Equal(t, "a.png", input.Media[0].Filename)
			assert.Equal(t, []byte("image-b.jpg"), input.Media[1].Data)
			return &models.Incident{ID: uuid.New(), Title: input.Title, Status: models.StatusReported, ReporterID: reporter.ID}, nil
		})

	// Действие
	w := makeRequest(router, http.MethodPost, "/api/v1/incidents", &body, mw.FormDataContentType())

	// Проверки
	assert.Equal(t, http.StatusCreated, w.Code)
	var resp models.Incident
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.StatusReported, resp.Status)
	assert.Equal(t, reporter.ID, resp.ReporterID)
}

// mediaForm собирает multipart-форму создания инцидента с файлами name -> содержимое
func mediaForm(t *testing.T, files [][2]string) (*bytes.Buffer, string) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("title", "Прорыв трубы")
	_ = mw.WriteField("description", "Вода на улице")
	_ = mw.WriteField("latitude", "55.75")
	_ = mw.WriteField("longitude", "37.61")
	for _, f := range files {
		fw, err := mw.CreateFormFile("media", f[0])
		require.NoError(t, err)
		_, _ = fw.Write([]byte(f[1]))
	}
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func TestCreateIncident_SkipsDisallowedMedia(t *testing.T) {
	// Подготовка
	m, router := newTestHandler(t, nil)
	m.authAs(newUser(models.RoleUser))
	body, contentType := mediaForm(t, [][2]string{
		{"photo.png", "png-bytes"},
		{"script.exe", "MZ"},
		{"huge.jpg", strings.Repeat("x", 2048)},
		{"empty.png", ""},
	})

	// Ожидания
	m.incidents.EXPECT().
		CreateIncident(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ *models.User, input service.CreateIncidentInput) (*models.Incident, error) {
			require.Len(t, input.Media, 1)
			assert.Equal(t, "photo.png", input.Media[0].Filename)
			assert.Equal(t, []byte("png-bytes"), input.Media[0].Data)
			return &models.Incident{ID: uuid.New(), Status: models.StatusReported}, nil
		})

	// Действие
	w := makeRequest(router, http.MethodPost, "/api/v1/incidents", body, contentType)

	// Проверки
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestCreateIncident_BodyTooLarge(t *testing.T) {
	big := strings.Repeat("x", 20<<10)

	t.Run("известный Content-Length", func(t *testing.T) {
		m, router := newTestHandler(t, nil)
		m.authAs(newUser(models.RoleUser))
		m.incidents.EXPECT().CreateIncident(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
		body, contentType := mediaForm(t, [][2]string{{"a.png", big}})

		w := makeRequest(router, http.MethodPost, "/api/v1/incidents", body, contentType)

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})

	t.Run("потоковое тело без Content-Length", func(t *testing.T) {
		m, router := newTestHandler(t, nil)
		m.authAs(newUser(models.RoleUser))
		m.incidents.EXPECT().CreateIncident(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
		body, contentType := mediaForm(t, [][2]string{{"a.png", big}})

		// io.MultiReader скрывает длину тела от httptest
		w := makeRequest(router, http.MethodPost, "/api/v1/incidents", io.MultiReader(body), contentType)

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Equal(t, "request body exceeds 16384 bytes", decodeError(t, w).Error)
	})
}

func TestCreateIncident_MissingLatitude(t *testing.T) {
	m, router := newTestHandler(t, nil)
	m.authAs(newUser(models.RoleUser))
	m.incidents.EXPECT().CreateIncident(gomock.Any(), gomock.Any(), gomock.Any()).Times(0) // Сервис не должен вызываться

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("title", "t")
	_ = mw.WriteField("description", "d")
	_ = mw.WriteField("longitude", "37.61")
	require.NoError(t, mw.Close())

	w := makeRequest(router, http.MethodPost, "/api/v1/incidents", &body, mw.FormDataContentType())

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, []string{"latitude"}, decodeError(t, w).Fields)
}

func TestCreateIncident_UploadFailure(t *testing.T) {
	m, router := newTestHandler(t, nil)
	m.authAs(newUser(models.RoleUser))
	m.incidents.EXPECT().
		CreateIncident(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, apperr.Upstream(errors.New("s3 down"), "media upload failed"))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("title", "t")
	_ = mw.WriteField("description", "d")
	_ = mw.WriteField("latitude", "1")
	_ = mw.WriteField("longitude", "2")
	require.NoError(t, mw.Close())

	w := makeRequest(router, http.MethodPost, "/api/v1/incidents", &body, mw.FormDataContentType())

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "media upload failed", decodeError(t, w).Error)
}

func TestGetIncident_InvalidID(t *testing.T) {
	m, router := newTestHandler(t, nil)
	m.authAs(newUser(models.RoleUser))
	m.incidents.EXPECT().GetIncident(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	w := jsonRequest(router, http.MethodGet, "/api/v1/incidents/not-a-uuid", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid id", decodeError(t, w).Error)
}

func TestGetIncident_ErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
		msg  string
	}{
		{"not found", apperr.NotFound("incident not found"), http.StatusNotFound, "incident not found"},
		{"forbidden", apperr.Permission("you can only view your own incidents"), http.StatusForbidden, "you can only view your own incidents"},
		{"internal", errors.New("connection reset"), http.StatusInternalServerError, "internal server error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, router := newTestHandler(t, nil)
			m.authAs(newUser(models.RoleUser))
			m.incidents.EXPECT().GetIncident(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, tc.err)

			w := jsonRequest(router, http.MethodGet, "/api/v1/incidents/"+uuid.NewString(), nil)

			assert.Equal(t, tc.code, w.Code)
			assert.Equal(t, tc.msg, decodeError(t, w).Error)
		})
	}
}

func TestUpdateIncident_UnknownKeys(t *testing.T) {
	m, router := newTestHandler(t, nil)
	m.authAs(newUser(models.RoleAdmin))
	m.incidents.EXPECT().UpdateIncident(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	w := jsonRequest(router, http.MethodPut, "/api/v1/incidents/"+uuid.NewString(), `{"title":"x","reporter_id":"1","zzz":true}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, []string{"reporter_id", "zzz"}, decodeError(t, w).Fields)
}

func TestUpdateIncident_ForbiddenFields(t *testing.T) {
	m, router := newTestHandler(t, nil)
	owner := newUser(models.RoleUser)
	m.authAs(owner)
	m.incidents.EXPECT().
		UpdateIncident(gomock.Any(), owner, gomock.Any(), gomock.Any()).
		Return(nil, apperr.Permission("you can only update: title, description").WithFields("priority", "status"))

	w := jsonRequest(router, http.MethodPut, "/api/v1/incidents/"+uuid.NewString(), `{"status":"resolved","priority":"high"}`)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, []string{"priority", "status"}, decodeError(t, w).Fields)
}

func TestUpdateIncident_NullValuedKeysReachPermissionCheck(t *testing.T) {
	// Подготовка
	m, router := newTestHandler(t, nil)
	owner := newUser(models.RoleUser)
	m.authAs(owner)

	// Ожидания
	m.incidents.EXPECT().
		UpdateIncident(gomock.Any(), owner, gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ *models.User, _ uuid.UUID, patch service.IncidentPatch) (*service.IncidentResult, error) {
			assert.Nil(t, patch.Status)
			assert.Nil(t, patch.Priority)
			assert.Equal(t, []string{"priority", "status", "title"}, patch.Present)
			assert.Equal(t, []string{"title", "status", "priority"}, patch.Fields())
			return nil, apperr.Permission("you can only update: title, description").WithFields("priority", "status")
		})

	// Действие
	w := jsonRequest(router, http.MethodPut, "/api/v1/incidents/"+uuid.NewString(), `{"title":"x","status":null,"priority":null}`)

	// Проверки
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, []string{"priority", "status"}, decodeError(t, w).Fields)
}

func TestUpdateIncident_StatusChangeSetsNotificationHeader(t *testing.T) {
	// Подготовка
	m, router := newTestHandler(t, nil)
	admin := newUser(models.RoleAdmin)
	m.authAs(admin)
	id := uuid.New()
	assignee := uuid.New()

	// Ожидания
	m.incidents.EXPECT().
		UpdateIncident(gomock.Any(), admin, id, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ *models.User, _ uuid.UUID, patch service.IncidentPatch) (*service.IncidentResult, error) {
			require.NotNil(t, patch.Status)
			assert.Equal(t, "resolved", *patch.Status)
			require.NotNil(t, patch.AssignedTo)
			assert.Equal(t, assignee, *patch.AssignedTo)
			require.NotNil(t, patch.CategoryID)
			assert.Equal(t, uuid.Nil, *patch.CategoryID)
			assert.Nil(t, patch.Title)
			return &service.IncidentResult{
				Incident:     &models.Incident{ID: id, Status: models.StatusResolved},
				Notification: service.NotificationDegraded,
			}, nil
		})

	// Действие
	w := jsonRequest(router, http.MethodPut, "/api/v1/incidents/"+id.String(), map[string]any{
		"status":      "resolved",
		"assigned_to": assignee.String(),
		"category_id": "",
	})

	// Проверки
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "degraded", w.Header().Get(notificationHeader))
}

func TestUpdateIncident_InvalidAssignee(t *testing.T) {
	m, router := newTestHandler(t, nil)
	m.authAs(newUser(models.RoleAdmin))
	m.incidents.EXPECT().UpdateIncident(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	w := jsonRequest(router, http.MethodPut, "/api/v1/incidents/"+uuid.NewString(), `{"assigned_to":"bob"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, []string{"assigned_to"}, decodeError(t, w).Fields)
}

func TestAddMedia_NoFiles(t *testing.T) {
	m, router := newTestHandler(t, nil)
	m.authAs(newUser(models.RoleAdmin))
	m.incidents.EXPECT().AddMedia(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.Close())

	w := makeRequest(router, http.MethodPost, "/api/v1/incidents/"+uuid.NewString()+"/media", &body, mw.FormDataContentType())

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAddMedia_OnlyDisallowedFiles(t *testing.T) {
	m, router := newTestHandler(t, nil)
	m.authAs(newUser(models.RoleAdmin))
	m.incidents.EXPECT().AddMedia(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("media", "notes.txt")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("text"))
	require.NoError(t, mw.Close())

	w := makeRequest(router, http.MethodPost, "/api/v1/incidents/"+uuid.NewString()+"/media", &body, mw.FormDataContentType())

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "no acceptable media files provided", decodeError(t, w).Error)
}

func TestListIncidents_Filters(t *testing.T) {
	// Подготовка
	m, router := newTestHandler(t, nil)
	user := newUser(models.RoleUser)
	m.authAs(user)

	// Ожидания
	m.incidents.EXPECT().
		ListIncidents(gomock.Any(), user, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ *models.User, filter models.IncidentFilter) (*models.Page[*models.Incident], error) {
			require.NotNil(t, filter.Status)
			assert.Equal(t, models.StatusUnderInvestigation, *filter.Status)
			require.NotNil(t, filter.Priority)
			assert.Equal(t, models.PriorityHigh, *filter.Priority)
			assert.Equal(t, "вода", filter.Search)
			require.NotNil(t, filter.From)
			require.NotNil(t, filter.To)
			assert.Equal(t, 1, filter.To.Day())
			assert.Equal(t, 23, filter.To.Hour())
			assert.Equal(t, 2, filter.Page)
			assert.Equal(t, 5, filter.PerPage)
			return models.NewPage[*models.Incident](nil, 0, 2, 5), nil
		})

	// Действие
	w := jsonRequest(router, http.MethodGet,
		"/api/v1/incidents?status=under+investigation&priority=high&search=%D0%B2%D0%BE%D0%B4%D0%B0&date_from=2025-02-01&date_to=2025-03-01&page=2&per_page=5", nil)

	// Проверки
	assert.Equal(t, http.StatusOK, w.Code)
	var resp models.Page[*models.Incident]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Items)
	assert.Equal(t, 2, resp.Page)
}

func TestListIncidents_InvalidStatus(t *testing.T) {
	m, router := newTestHandler(t, nil)
	m.authAs(newUser(models.RoleUser))
	m.incidents.EXPECT().ListIncidents(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	w := jsonRequest(router, http.MethodGet, "/api/v1/incidents?status=closed", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, []string{"status"}, decodeError(t, w).Fields)
}

func TestDeleteIncident_Success(t *testing.T) {
	m, router := newTestHandler(t, nil)
	owner := newUser(models.RoleUser)
	m.authAs(owner)
	id := uuid.New()
	m.incidents.EXPECT().DeleteIncident(gomock.Any(), owner, id).Return(nil)

	w := jsonRequest(router, http.MethodDelete, "/api/v1/incidents/"+id.String(), nil)

	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestTransitionStatus(t *testing.T) {
	m, router := newTestHandler(t, nil)
	admin := newUser(models.RoleAdmin)
	m.authAs(admin)
	id := uuid.New()
	m.incidents.EXPECT().
		TransitionStatus(gomock.Any(), admin, id, "resolved", gomock.Not(gomock.Nil())).
		Return(&service.IncidentResult{
			Incident:     &models.Incident{ID: id, Status: models.StatusResolved},
			Notification: service.NotificationQueued,
		}, nil)

	w := jsonRequest(router, http.MethodPut, "/api/v1/admin/incidents/"+id.String()+"/status", StatusRequest{
		Status:          "resolved",
		ResolutionNotes: func() *string { s := "fixed"; return &s }(),
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "queued", w.Header().Get(notificationHeader))
}

func TestTransitionBatch_PartialFailure(t *testing.T) {
	m, router := newTestHandler(t, nil)
	m.authAs(newUser(models.RoleAdmin))
	ok, missing := uuid.New(), uuid.New()
	m.incidents.EXPECT().
		TransitionBatch(gomock.Any(), gomock.Any(), []uuid.UUID{ok, missing}, "rejected").
		Return(&service.BatchResult{
			Status:       models.StatusRejected,
			Updated:      []*models.Incident{{ID: ok, Status: models.StatusRejected}},
			Failed:       []service.BatchFailure{{ID: missing, Error: "incident not found"}},
			Notification: service.NotificationQueued,
		}, nil)

	w := jsonRequest(router, http.MethodPost, "/api/v1/admin/incidents/status", BatchStatusRequest{
		IncidentIDs: []uuid.UUID{ok, missing},
		Status:      "rejected",
	})

	assert.Equal(t, http.StatusOK, w.Code)
	var resp service.BatchResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Failed, 1)
	assert.Equal(t, missing, resp.Failed[0].ID)
	assert.Len(t, resp.Updated, 1)
}

func TestTransitionBatch_EmptyIDs(t *testing.T) {
	m, router := newTestHandler(t, nil)
	m.authAs(newUser(models.RoleAdmin))
	m.incidents.EXPECT().TransitionBatch(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	w := jsonRequest(router, http.MethodPost, "/api/v1/admin/incidents/status", `{"incident_ids":[],"status":"resolved"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, []string{"incident_ids"}, decodeError(t, w).Fields)
}

func TestHealthCheck(t *testing.T) {
	_, router := newTestHandler(t, map[string]HealthCheck{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/system/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, map[string]string{"postgres": "ok", "redis": "unavailable"}, resp.Checks)
}
