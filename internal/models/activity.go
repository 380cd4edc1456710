package models

import (
	"time"

	"github.com/google/uuid"
)

// ActivityType - тег записи журнала действий
type ActivityType string

const (
	ActivityRegister          ActivityType = "register"
	ActivityLogin             ActivityType = "login"
	ActivityLoginFailed       ActivityType = "login_failed"
	ActivityLogout            ActivityType = "logout"
	ActivityProfileUpdated    ActivityType = "profile_updated"
	ActivityRoleChanged       ActivityType = "role_changed"
	ActivityUserStatusChanged ActivityType = "user_status_changed"
	ActivityUserDeleted       ActivityType = "user_deleted"
	ActivityIncidentCreated   ActivityType = "incident_created"
	ActivityIncidentUpdated   ActivityType = "incident_updated"
	ActivityIncidentDeleted   ActivityType = "incident_deleted"
	ActivityStatusChanged     ActivityType = "incident_status_changed"
	ActivityCommentAdded      ActivityType = "comment_added"
	ActivityCategoryChanged   ActivityType = "category_changed"
)

// Activity - запись журнала действий. Записи только добавляются.
type Activity struct {
	ID          int64        `json:"id"`
	UserID      uuid.UUID    `json:"user_id"`
	Type        ActivityType `json:"activity_type"`
	Description string       `json:"description"`
	IPAddress   string       `json:"ip_address,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

type ActivityFilter struct {
	UserID  *uuid.UUID
	Page    int
	PerPage int
}
