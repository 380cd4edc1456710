package repository

import (
	"context"
	"fmt"

	"github.com/shenikar/incident_reporting_system/internal/models"
	"github.com/shenikar/incident_reporting_system/internal/service"
)

type ActivityRepository struct {
	db DB
}

func NewActivityRepository(db DB) service.ActivityRepository {
	return &ActivityRepository{db: db}
}

// Create добавляет запись в журнал. Записи журнала не изменяются и не удаляются.
func (r *ActivityRepository) Create(ctx context.Context, activity *models.Activity) error {
	query := `
		INSERT INTO user_activities (user_id, activity_type, description, ip_address)
		VALUES ($1, $2, $3, $4) RETURNING id, created_at;
	`
	err := conn(ctx, r.db).QueryRow(ctx, query,
		activity.UserID,
		activity.Type,
		activity.Description,
		activity.IPAddress,
	).Scan(&activity.ID, &activity.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record activity: %w", err)
	}
	return nil
}

// List возвращает страницу журнала, новые записи первыми
func (r *ActivityRepository) List(ctx context.Context, filter models.ActivityFilter) ([]*models.Activity, int, error) {
	db := conn(ctx, r.db)
	where := ""
	var args []any
	if filter.UserID != nil {
		where = " WHERE user_id = $1"
		args = append(args, *filter.UserID)
	}

	var total int
	if err := db.QueryRow(ctx, `SELECT COUNT(*) FROM user_activities`+where+`;`, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count activities: %w", err)
	}

	args = append(args, filter.PerPage, models.Offset(filter.Page, filter.PerPage))
	query := `SELECT id, user_id, activity_type, description, ip_address, created_at FROM user_activities` + where +
		fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d;", len(args)-1, len(args))

	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list activities: %w", err)
	}
	defer rows.Close()

	activities := make([]*models.Activity, 0)
	for rows.Next() {
		a := &models.Activity{}
		if err := rows.Scan(&a.ID, &a.UserID, &a.Type, &a.Description, &a.IPAddress, &a.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan activity row: %w", err)
		}
		activities = append(activities, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error list iteration: %w", err)
	}
	return activities, total, nil
}
