package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shenikar/incident_reporting_system/internal/models"
	"github.com/shenikar/incident_reporting_system/internal/service"
)

type CategoryRepository struct {
	db DB
}

func NewCategoryRepository(db DB) service.CategoryRepository {
	return &CategoryRepository{db: db}
}

func (r *CategoryRepository) Create(ctx context.Context, category *models.Category) error {
	query := `
		INSERT INTO incident_categories (name, description, icon, color)
		VALUES ($1, $2, $3, $4) RETURNING id, created_at;
	`
	err := conn(ctx, r.db).QueryRow(ctx, query,
		category.Name,
		category.Description,
		category.Icon,
		category.Color,
	).Scan(&category.ID, &category.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create category: %w", translate(err, "category"))
	}
	return nil
}

func (r *CategoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	category := &models.Category{}
	query := `SELECT id, name, description, icon, color, created_at FROM incident_categories WHERE id = $1;`
	err := conn(ctx, r.db).QueryRow(ctx, query, id).Scan(
		&category.ID,
		&category.Name,
		&category.Description,
		&category.Icon,
		&category.Color,
		&category.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get category by id: %w", translate(err, "category"))
	}
	return category, nil
}

// List возвращает все категории в алфавитном порядке
func (r *CategoryRepository) List(ctx context.Context) ([]*models.Category, error) {
	query := `SELECT id, name, description, icon, color, created_at FROM incident_categories ORDER BY name;`
	rows, err := conn(ctx, r.db).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	categories := make([]*models.Category, 0)
	for rows.Next() {
		category := &models.Category{}
		if err := rows.Scan(
			&category.ID,
			&category.Name,
			&category.Description,
			&category.Icon,
			&category.Color,
			&category.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan category row: %w", err)
		}
		categories = append(categories, category)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error list iteration: %w", err)
	}
	return categories, nil
}

func (r *CategoryRepository) Update(ctx context.Context, category *models.Category) error {
	query := `
		UPDATE incident_categories SET
			name = $1,
			description = $2,
			icon = $3,
			color = $4
		WHERE id = $5;
	`
	cmdTag, err := conn(ctx, r.db).Exec(ctx, query,
		category.Name,
		category.Description,
		category.Icon,
		category.Color,
		category.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update category: %w", translate(err, "category"))
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("failed to update category: %w", translate(pgx.ErrNoRows, "category"))
	}
	return nil
}

// Delete удаляет категорию; у инцидентов category_id становится NULL
func (r *CategoryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	cmdTag, err := conn(ctx, r.db).Exec(ctx, `DELETE FROM incident_categories WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("failed to delete category: %w", translate(pgx.ErrNoRows, "category"))
	}
	return nil
}
