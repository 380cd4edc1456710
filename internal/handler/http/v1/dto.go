package v1

import (
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/incident_reporting_system/internal/models"
)

// ErrorResponse - тело ответа с ошибкой
// @Description Ошибка: сообщение и, если есть, поля запроса, к которым она относится
type ErrorResponse struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields,omitempty"`
}

// RegisterRequest DTO для регистрации
// @Description DTO для регистрации
type RegisterRequest struct {
	Username    string `json:"username" validate:"required,min=3,max=100"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
	PhoneNumber string `json:"phone_number,omitempty" validate:"omitempty,max=20"`
}

// LoginRequest DTO для входа
// @Description DTO для входа
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse DTO с токеном доступа
// @Description DTO с токеном доступа
type AuthResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresAt   time.Time    `json:"expires_at"`
	User        *models.User `json:"user"`
}

// ProfileRequest DTO для изменения собственного профиля
// @Description DTO для изменения собственного профиля
type ProfileRequest struct {
	PhoneNumber        *string        `json:"phone_number,omitempty" validate:"omitempty,max=20"`
	EmailNotifications *bool          `json:"email_notifications,omitempty"`
	SMSNotifications   *bool          `json:"sms_notifications,omitempty"`
	Preferences        map[string]any `json:"preferences,omitempty"`
}

// UpdateIncidentRequest DTO для изменения инцидента. Пустая строка в
// category_id или assigned_to снимает значение.
// @Description DTO для изменения инцидента
type UpdateIncidentRequest struct {
	Title              *string  `json:"title,omitempty"`
	Description        *string  `json:"description,omitempty"`
	Status             *string  `json:"status,omitempty"`
	Priority           *string  `json:"priority,omitempty"`
	CategoryID         *string  `json:"category_id,omitempty"`
	AssignedTo         *string  `json:"assigned_to,omitempty"`
	ResolutionNotes    *string  `json:"resolution_notes,omitempty"`
	Address            *string  `json:"address,omitempty"`
	Latitude           *float64 `json:"latitude,omitempty"`
	Longitude          *float64 `json:"longitude,omitempty"`
	AffectedAreaRadius *float64 `json:"affected_area_radius,omitempty"`
}

// StatusRequest DTO для смены статуса
// @Description DTO для смены статуса
type StatusRequest struct {
	Status          string  `json:"status" validate:"required"`
	ResolutionNotes *string `json:"resolution_notes,omitempty"`
}

// BatchStatusRequest DTO для массовой смены статуса
// @Description DTO для массовой смены статуса
type BatchStatusRequest struct {
	IncidentIDs []uuid.UUID `json:"incident_ids" validate:"required,min=1"`
	Status      string      `json:"status" validate:"required"`
}

// CommentRequest DTO для комментария
// @Description DTO для комментария
type CommentRequest struct {
	Content string `json:"content" validate:"required"`
}

// CategoryRequest DTO для создания и изменения категории
// @Description DTO для категории
type CategoryRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"icon,omitempty"`
	Color       string `json:"color,omitempty" validate:"omitempty,hexcolor"`
}

// RoleRequest DTO для смены роли
// @Description DTO для смены роли
type RoleRequest struct {
	Role string `json:"role" validate:"required"`
}

// ActiveRequest DTO для блокировки и разблокировки пользователя
// @Description DTO для блокировки и разблокировки пользователя
type ActiveRequest struct {
	IsActive *bool `json:"is_active" validate:"required"`
}

// HealthResponse DTO для проверки состояния
// @Description DTO для проверки состояния
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}
