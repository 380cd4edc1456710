package models

import (
	"time"

	"github.com/google/uuid"
)

// Priority - приоритет инцидента
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

var priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}

// Priorities возвращает допустимые значения приоритета
func Priorities() []Priority {
	return append([]Priority(nil), priorities...)
}

func (p Priority) Valid() bool {
	for _, v := range priorities {
		if p == v {
			return true
		}
	}
	return false
}

// Location - геопривязка инцидента
type Location struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Address   string   `json:"address,omitempty"`
	Radius    *float64 `json:"affected_area_radius,omitempty"`
}

type Incident struct {
	ID              uuid.UUID    `json:"id"`
	Title           string       `json:"title"`
	Description     string       `json:"description"`
	Status          Status       `json:"status"`
	Priority        Priority     `json:"priority"`
	CategoryID      *uuid.UUID   `json:"category_id,omitempty"`
	Category        *Category    `json:"category"`
	Location        Location     `json:"location"`
	MediaURLs       []string     `json:"media_urls"`
	ResolutionNotes string       `json:"resolution_notes,omitempty"`
	AssignedTo      *uuid.UUID   `json:"assigned_to,omitempty"`
	Assignee        *UserSummary `json:"assignee"`
	ReporterID      uuid.UUID    `json:"user_id"`
	Reporter        *UserSummary `json:"reporter"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
	ResolvedAt      *time.Time   `json:"resolved_at"`
}

// IncidentFilter - параметры выборки списка инцидентов
type IncidentFilter struct {
	ReporterID *uuid.UUID
	Status     *Status
	Priority   *Priority
	CategoryID *uuid.UUID
	Search     string
	From       *time.Time
	To         *time.Time
	Page       int
	PerPage    int
}

// DashboardStats - сводка для панели администратора
type DashboardStats struct {
	TotalIncidents  int            `json:"total_incidents"`
	TotalUsers      int            `json:"total_users"`
	StatusStats     map[Status]int `json:"status_stats"`
	RecentIncidents []*Incident    `json:"recent_incidents"`
}
