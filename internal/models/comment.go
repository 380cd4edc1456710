package models

import (
	"time"

	"github.com/google/uuid"
)

type Comment struct {
	ID         uuid.UUID    `json:"id"`
	IncidentID uuid.UUID    `json:"incident_id"`
	AuthorID   uuid.UUID    `json:"user_id"`
	Author     *UserSummary `json:"author,omitempty"`
	Content    string       `json:"content"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}
