package models

import (
	"time"

	"github.com/google/uuid"
)

// Role - роль пользователя
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid проверяет, что роль входит в допустимый набор
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

type User struct {
	ID                  uuid.UUID      `json:"id"`
	Username            string         `json:"username"`
	Email               string         `json:"email"`
	PasswordHash        string         `json:"-"`
	Role                Role           `json:"role"`
	IsActive            bool           `json:"is_active"`
	PhoneNumber         string         `json:"phone_number,omitempty"`
	EmailNotifications  bool           `json:"email_notifications"`
	SMSNotifications    bool           `json:"sms_notifications"`
	TwoFactorEnabled    bool           `json:"two_factor_enabled"`
	TwoFactorSecret     string         `json:"-"`
	LastLogin           *time.Time     `json:"last_login,omitempty"`
	FailedLoginAttempts int            `json:"failed_login_attempts"`
	AccountLockedUntil  *time.Time     `json:"account_locked_until,omitempty"`
	Preferences         map[string]any `json:"preferences"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// IsLocked сообщает, заблокирован ли вход на момент now
func (u *User) IsLocked(now time.Time) bool {
	return u.AccountLockedUntil != nil && u.AccountLockedUntil.After(now)
}

// UserSummary - сокращенное представление пользователя для вложения в инцидент и комментарий
type UserSummary struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email,omitempty"`
}
