package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/shenikar/incident_reporting_system/internal/apperr"
	"github.com/shenikar/incident_reporting_system/internal/models"
	"github.com/shenikar/incident_reporting_system/internal/policy"
	"github.com/sirupsen/logrus"
)

//go:generate mockgen -source=category.go -destination=../handler/http/v1/mocks/category_service_mock.go -package=mocks

const maxCategoryNameLength = 100

var colorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// CategoryInput - поля категории при создании и изменении
type CategoryInput struct {
	Name        string
	Description string
	Icon        string
	Color       string
}

// CategoryService определяет контракт для справочника категорий
type CategoryService interface {
	ListCategories(ctx context.Context, actor *models.User) ([]*models.Category, error)
	CreateCategory(ctx context.Context, actor *models.User, input CategoryInput) (*models.Category, error)
	UpdateCategory(ctx context.Context, actor *models.User, id uuid.UUID, input CategoryInput) (*models.Category, error)
	DeleteCategory(ctx context.Context, actor *models.User, id uuid.UUID) error
}

type categoryService struct {
	repo      CategoryRepository
	incidents IncidentRepository
	activity  ActivityRecorder
	policy    *policy.Policy
	logger    *logrus.Logger
}

func NewCategoryService(repo CategoryRepository, incidents IncidentRepository, activity ActivityRecorder, p *policy.Policy, logger *logrus.Logger) CategoryService {
	return &categoryService{
		repo:      repo,
		incidents: incidents,
		activity:  activity,
		policy:    p,
		logger:    logger,
	}
}

func normalizeCategory(input CategoryInput) (CategoryInput, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Color = strings.TrimSpace(input.Color)
	if input.Name == "" {
		return input, apperr.Validation("category name is required").WithFields("name")
	}
	if len([]rune(input.Name)) > maxCategoryNameLength {
		return input, apperr.Validation("category name must be at most %d characters", maxCategoryNameLength).WithFields("name")
	}
	if input.Color != "" && !colorPattern.MatchString(input.Color) {
		return input, apperr.Validation("color must be in #RRGGBB format").WithFields("color")
	}
	return input, nil
}

func (s *categoryService) ListCategories(ctx context.Context, actor *models.User) ([]*models.Category, error) {
	if err := s.policy.CheckCategoryRead(actor); err != nil {
		return nil, err
	}
	categories, err := s.repo.List(ctx)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"service": "category",
			"method":  "ListCategories",
		}).WithError(err).Error("Failed to list categories from repository")
		return nil, fmt.Errorf("service: could not list categories: %w", err)
	}
	return categories, nil
}

// CreateCategory создает категорию (только администратор)
func (s *categoryService) CreateCategory(ctx context.Context, actor *models.User, input CategoryInput) (*models.Category, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service": "category",
		"method":  "CreateCategory",
		"name":    input.Name,
	})
	log.Info("Attempting to create category")

	if err := s.policy.CheckCategoryManage(actor); err != nil {
		log.WithError(err).Warn("Category creation denied")
		return nil, err
	}
	input, err := normalizeCategory(input)
	if err != nil {
		return nil, err
	}

	category := &models.Category{
		Name:        input.Name,
		Description: input.Description,
		Icon:        input.Icon,
		Color:       input.Color,
	}
	if err := s.repo.Create(ctx, category); err != nil {
		log.WithError(err).Warn("Failed to create category in repository")
		return nil, fmt.Errorf("service: could not create category: %w", err)
	}

	s.activity.Record(ctx, actor.ID, models.ActivityCategoryChanged, fmt.Sprintf("created category %s", category.Name))
	log.WithField("category_id", category.ID).Info("Category created successfully")
	return category, nil
}

// UpdateCategory меняет категорию и сбрасывает кеш инцидентов, в которые она вложена
func (s *categoryService) UpdateCategory(ctx context.Context, actor *models.User, id uuid.UUID, input CategoryInput) (*models.Category, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "category",
		"method":      "UpdateCategory",
		"category_id": id,
	})
	log.Info("Attempting to update category")

	if err := s.policy.CheckCategoryManage(actor); err != nil {
		log.WithError(err).Warn("Category update denied")
		return nil, err
	}
	input, err := normalizeCategory(input)
	if err != nil {
		return nil, err
	}

	category, err := s.repo.GetByID(ctx, id)
	if err != nil {
		log.WithError(err).Warn("Failed to load category")
		return nil, fmt.Errorf("service: could not update category: %w", err)
	}
	category.Name = input.Name
	category.Description = input.Description
	category.Icon = input.Icon
	category.Color = input.Color

	if err := s.repo.Update(ctx, category); err != nil {
		log.WithError(err).Warn("Failed to update category in repository")
		return nil, fmt.Errorf("service: could not update category: %w", err)
	}

	s.evictIncidents(ctx, log, id)
	s.activity.Record(ctx, actor.ID, models.ActivityCategoryChanged, fmt.Sprintf("updated category %s", category.Name))
	log.Info("Category updated successfully")
	return category, nil
}

// DeleteCategory удаляет категорию; у инцидентов категория становится пустой
func (s *categoryService) DeleteCategory(ctx context.Context, actor *models.User, id uuid.UUID) error {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "category",
		"method":      "DeleteCategory",
		"category_id": id,
	})
	log.Info("Attempting to delete category")

	if err := s.policy.CheckCategoryManage(actor); err != nil {
		log.WithError(err).Warn("Category deletion denied")
		return err
	}

	affected, err := s.incidents.IDsByCategory(ctx, id)
	if err != nil {
		log.WithError(err).Error("Failed to collect incidents of category")
		return fmt.Errorf("service: could not delete category: %w", err)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		log.WithError(err).Warn("Failed to delete category in repository")
		return fmt.Errorf("service: could not delete category: %w", err)
	}

	if err := s.incidents.InvalidateIncidentCache(ctx, affected...); err != nil {
		log.WithError(err).Warn("Failed to invalidate incident cache")
	}
	s.activity.Record(ctx, actor.ID, models.ActivityCategoryChanged, fmt.Sprintf("deleted category %s", id))
	log.Info("Category deleted successfully")
	return nil
}

func (s *categoryService) evictIncidents(ctx context.Context, log *logrus.Entry, categoryID uuid.UUID) {
	ids, err := s.incidents.IDsByCategory(ctx, categoryID)
	if err != nil {
		log.WithError(err).Warn("Failed to collect incidents of category")
		return
	}
	if err := s.incidents.InvalidateIncidentCache(ctx, ids...); err != nil {
		log.WithError(err).Warn("Failed to invalidate incident cache")
	}
}
