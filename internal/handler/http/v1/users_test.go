package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/incident_reporting_system/internal/apperr"
	"github.com/shenikar/incident_reporting_system/internal/models"
	"github.com/shenikar/incident_reporting_system/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestRegister_Success(t *testing.T) {
	// Подготовка
	m, router := newTestHandler(t, nil)
	user := newUser(models.RoleUser)
	expires := time.Now().Add(time.Hour)

	// Ожидания
	m.users.EXPECT().
		Register(gomock.Any(), service.RegisterInput{Username: "ivan", Email: "ivan@example.com", Password: "secret123"}).
		Return(&service.AuthResult{User: user, Token: "jwt", ExpiresAt: expires}, nil)

	// Действие
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register",
		strings.NewReader(`{"username":"ivan","email":"ivan@example.com","password":"secret123"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	// Проверки
	assert.Equal(t, http.StatusCreated, w.Code)
	var resp AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "jwt", resp.AccessToken)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, user.ID, resp.User.ID)
}

func TestRegister_ValidationFields(t *testing.T) {
	m, router := newTestHandler(t, nil)
	m.users.EXPECT().Register(gomock.Any(), gomock.Any()).Times(0)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register",
		strings.NewReader(`{"username":"iv","email":"not-an-email","password":"short"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.ElementsMatch(t, []string{"username", "email", "password"}, decodeError(t, w).Fields)
}

func TestLogin_Locked(t *testing.T) {
	m, router := newTestHandler(t, nil)
	m.users.EXPECT().
		Login(gomock.Any(), "ivan@example.com", "secret123").
		Return(nil, apperr.Permission("account is locked, try again later"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
		strings.NewReader(`{"email":"ivan@example.com","password":"secret123"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestLogin_PassesClientIP(t *testing.T) {
	m, router := newTestHandler(t, nil)
	m.users.EXPECT().
		Login(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _, _ string) (*service.AuthResult, error) {
			assert.Equal(t, "192.0.2.10", service.ClientIP(ctx))
			return &service.AuthResult{User: newUser(models.RoleUser), Token: "jwt"}, nil
		})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
		strings.NewReader(`{"email":"ivan@example.com","password":"secret123"}`))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "192.0.2.10:5555"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLogout_RevokesCurrentToken(t *testing.T) {
	m, router := newTestHandler(t, nil)
	user := newUser(models.RoleUser)
	m.authAs(user)
	m.users.EXPECT().Logout(gomock.Any(), user, testToken).Return(nil)

	w := jsonRequest(router, http.MethodPost, "/api/v1/auth/logout", nil)

	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestMe(t *testing.T) {
	m, router := newTestHandler(t, nil)
	user := newUser(models.RoleUser)
	m.authAs(user)

	w := jsonRequest(router, http.MethodGet, "/api/v1/auth/me", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp models.User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, user.ID, resp.ID)
	assert.NotContains(t, w.Body.String(), "password")
}

func TestUpdateProfile(t *testing.T) {
	m, router := newTestHandler(t, nil)
	user := newUser(models.RoleUser)
	m.authAs(user)
	m.users.EXPECT().
		UpdateProfile(gomock.Any(), user, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ *models.User, update service.ProfileUpdate) (*models.User, error) {
			require.NotNil(t, update.SMSNotifications)
			assert.True(t, *update.SMSNotifications)
			assert.Nil(t, update.EmailNotifications)
			return user, nil
		})

	w := jsonRequest(router, http.MethodPatch, "/api/v1/users/me", `{"sms_notifications":true}`)
	assert.Equal(t, http.StatusOK, w.Code)

	w = jsonRequest(router, http.MethodPatch, "/api/v1/users/me", `{"role":"admin"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, []string{"role"}, decodeError(t, w).Fields)
}

func TestMyActivities_ScopedToActor(t *testing.T) {
	m, router := newTestHandler(t, nil)
	user := newUser(models.RoleUser)
	m.authAs(user)
	m.activities.EXPECT().
		ListActivities(gomock.Any(), user, &user.ID, 1, 10).
		Return(models.NewPage([]*models.Activity{{ID: 1, UserID: user.ID, Type: models.ActivityLogin}}, 1, 1, 10), nil)

	w := jsonRequest(router, http.MethodGet, "/api/v1/users/me/activities", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"activity_type":"login"`)
}

func TestAdminActivities_InvalidUserID(t *testing.T) {
	m, router := newTestHandler(t, nil)
	m.authAs(newUser(models.RoleAdmin))
	m.activities.EXPECT().ListActivities(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	w := jsonRequest(router, http.MethodGet, "/api/v1/admin/activities?user_id=42", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminUpdateRole_SelfDemotion(t *testing.T) {
	m, router := newTestHandler(t, nil)
	admin := newUser(models.RoleAdmin)
	m.authAs(admin)
	m.users.EXPECT().
		UpdateRole(gomock.Any(), admin, admin.ID, "user").
		Return(nil, apperr.Permission("cannot change your own role"))

	w := jsonRequest(router, http.MethodPatch, "/api/v1/admin/users/"+admin.ID.String()+"/role", RoleRequest{Role: "user"})

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "cannot change your own role", decodeError(t, w).Error)
}

func TestAdminSetActive(t *testing.T) {
	m, router := newTestHandler(t, nil)
	admin := newUser(models.RoleAdmin)
	m.authAs(admin)
	target := newUser(models.RoleUser)
	m.users.EXPECT().
		SetActive(gomock.Any(), admin, target.ID, false).
		Return(&models.User{ID: target.ID, IsActive: false}, nil)

	w := jsonRequest(router, http.MethodPatch, "/api/v1/admin/users/"+target.ID.String()+"/status", `{"is_active":false}`)
	assert.Equal(t, http.StatusOK, w.Code)

	// is_active обязателен: отсутствие не должно трактоваться как false
	w = jsonRequest(router, http.MethodPatch, "/api/v1/admin/users/"+target.ID.String()+"/status", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminListUsers_Forbidden(t *testing.T) {
	m, router := newTestHandler(t, nil)
	user := newUser(models.RoleUser)
	m.authAs(user)
	m.users.EXPECT().ListUsers(gomock.Any(), user, 1, 10).Return(nil, apperr.Permission("admin access required"))

	w := jsonRequest(router, http.MethodGet, "/api/v1/admin/users", nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdminDeleteUser(t *testing.T) {
	m, router := newTestHandler(t, nil)
	admin := newUser(models.RoleAdmin)
	m.authAs(admin)
	target := uuid.New()
	m.users.EXPECT().DeleteUser(gomock.Any(), admin, target).Return(nil)

	w := jsonRequest(router, http.MethodDelete, "/api/v1/admin/users/"+target.String(), nil)

	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestAdminStats(t *testing.T) {
	m, router := newTestHandler(t, nil)
	m.authAs(newUser(models.RoleAdmin))
	m.incidents.EXPECT().GetStats(gomock.Any(), gomock.Any()).Return(&models.DashboardStats{
		TotalIncidents: 3,
		TotalUsers:     2,
		StatusStats:    map[models.Status]int{models.StatusReported: 2, models.StatusResolved: 1},
	}, nil)

	w := jsonRequest(router, http.MethodGet, "/api/v1/admin/stats", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp models.DashboardStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.StatusStats[models.StatusReported])
}

func TestCategories(t *testing.T) {
	m, router := newTestHandler(t, nil)
	admin := newUser(models.RoleAdmin)
	m.authAs(admin)
	id := uuid.New()

	m.categories.EXPECT().
		CreateCategory(gomock.Any(), admin, service.CategoryInput{Name: "Дороги", Color: "#FF0000"}).
		Return(&models.Category{ID: id, Name: "Дороги", Color: "#FF0000"}, nil)
	m.categories.EXPECT().ListCategories(gomock.Any(), admin).Return([]*models.Category{{ID: id, Name: "Дороги"}}, nil)
	m.categories.EXPECT().DeleteCategory(gomock.Any(), admin, id).Return(nil)

	w := jsonRequest(router, http.MethodPost, "/api/v1/categories", CategoryRequest{Name: "Дороги", Color: "#FF0000"})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = jsonRequest(router, http.MethodPost, "/api/v1/categories", CategoryRequest{Name: "Дороги", Color: "red"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, []string{"color"}, decodeError(t, w).Fields)

	w = jsonRequest(router, http.MethodGet, "/api/v1/categories", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Дороги")

	w = jsonRequest(router, http.MethodDelete, "/api/v1/categories/"+id.String(), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestComments(t *testing.T) {
	m, router := newTestHandler(t, nil)
	user := newUser(models.RoleUser)
	m.authAs(user)
	incidentID := uuid.New()

	m.comments.EXPECT().
		AddComment(gomock.Any(), user, incidentID, "Уже едут").
		Return(&models.Comment{ID: uuid.New(), IncidentID: incidentID, Content: "Уже едут"}, nil)
	m.comments.EXPECT().
		ListComments(gomock.Any(), user, incidentID, 1, 10).
		Return(nil, apperr.NotFound("incident not found"))

	w := jsonRequest(router, http.MethodPost, "/api/v1/incidents/"+incidentID.String()+"/comments", CommentRequest{Content: "Уже едут"})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = jsonRequest(router, http.MethodGet, "/api/v1/incidents/"+incidentID.String()+"/comments", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
