package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shenikar/incident_reporting_system/internal/models"
	"github.com/shenikar/incident_reporting_system/internal/service"
)

type CommentRepository struct {
	db DB
}

func NewCommentRepository(db DB) service.CommentRepository {
	return &CommentRepository{db: db}
}

func (r *CommentRepository) Create(ctx context.Context, comment *models.Comment) error {
	query := `
		INSERT INTO incident_comments (incident_id, user_id, content)
		VALUES ($1, $2, $3) RETURNING id, created_at, updated_at;
	`
	err := conn(ctx, r.db).QueryRow(ctx, query,
		comment.IncidentID,
		comment.AuthorID,
		comment.Content,
	).Scan(&comment.ID, &comment.CreatedAt, &comment.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create comment: %w", translate(err, "comment"))
	}
	return nil
}

// ListByIncident возвращает комментарии инцидента в порядке создания
func (r *CommentRepository) ListByIncident(ctx context.Context, incidentID uuid.UUID, page, perPage int) ([]*models.Comment, int, error) {
	db := conn(ctx, r.db)

	var total int
	if err := db.QueryRow(ctx, `SELECT COUNT(*) FROM incident_comments WHERE incident_id = $1;`, incidentID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count comments: %w", err)
	}

	query := `
		SELECT cm.id, cm.incident_id, cm.user_id, u.username, u.email, cm.content, cm.created_at, cm.updated_at
		FROM incident_comments cm
		JOIN users u ON u.id = cm.user_id
		WHERE cm.incident_id = $1
		ORDER BY cm.created_at ASC, cm.id ASC
		LIMIT $2 OFFSET $3;
	`
	rows, err := db.Query(ctx, query, incidentID, perPage, models.Offset(page, perPage))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	comments := make([]*models.Comment, 0)
	for rows.Next() {
		comment := &models.Comment{Author: &models.UserSummary{}}
		if err := rows.Scan(
			&comment.ID,
			&comment.IncidentID,
			&comment.AuthorID,
			&comment.Author.Username,
			&comment.Author.Email,
			&comment.Content,
			&comment.CreatedAt,
			&comment.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan comment row: %w", err)
		}
		comment.Author.ID = comment.AuthorID
		comments = append(comments, comment)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error list iteration: %w", err)
	}
	return comments, total, nil
}
