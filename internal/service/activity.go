package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shenikar/incident_reporting_system/internal/models"
	"github.com/shenikar/incident_reporting_system/internal/policy"
	"github.com/sirupsen/logrus"
)

//go:generate mockgen -source=activity.go -aux_files=github.com/shenikar/incident_reporting_system/internal/service=ports.go -destination=../handler/http/v1/mocks/activity_service_mock.go -package=mocks

type clientIPKey struct{}

// WithClientIP сохраняет IP клиента в контексте запроса для журнала действий
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// ClientIP возвращает IP клиента из контекста или пустую строку
func ClientIP(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

// ActivityService - запись и чтение журнала действий
type ActivityService interface {
	ActivityRecorder
	ListActivities(ctx context.Context, actor *models.User, userID *uuid.UUID, page, perPage int) (*models.Page[*models.Activity], error)
}

type activityService struct {
	repo   ActivityRepository
	policy *policy.Policy
	logger *logrus.Logger
}

func NewActivityService(repo ActivityRepository, p *policy.Policy, logger *logrus.Logger) ActivityService {
	return &activityService{
		repo:   repo,
		policy: p,
		logger: logger,
	}
}

// Record добавляет запись в журнал. Сбой записи только логируется и
// никогда не влияет на основную операцию.
func (s *activityService) Record(ctx context.Context, userID uuid.UUID, activityType models.ActivityType, description string) {
	activity := &models.Activity{
		UserID:      userID,
		Type:        activityType,
		Description: description,
		IPAddress:   ClientIP(ctx),
	}
	if err := s.repo.Create(ctx, activity); err != nil {
		s.logger.WithFields(logrus.Fields{
			"service":       "activity",
			"method":        "Record",
			"user_id":       userID,
			"activity_type": activityType,
		}).WithError(err).Error("Failed to record activity")
	}
}

// ListActivities возвращает журнал пользователя. Без userID администратор видит весь журнал,
// остальные - только свой.
func (s *activityService) ListActivities(ctx context.Context, actor *models.User, userID *uuid.UUID, page, perPage int) (*models.Page[*models.Activity], error) {
	page, perPage = models.NormalizePage(page, perPage)
	log := s.logger.WithFields(logrus.Fields{
		"service":  "activity",
		"method":   "ListActivities",
		"page":     page,
		"per_page": perPage,
	})

	filter := models.ActivityFilter{UserID: userID, Page: page, PerPage: perPage}
	switch {
	case userID != nil:
		if err := s.policy.CheckActivityRead(actor, *userID); err != nil {
			log.WithError(err).Warn("Activity access denied")
			return nil, err
		}
	case !actor.IsAdmin():
		id := actor.ID
		filter.UserID = &id
	}

	activities, total, err := s.repo.List(ctx, filter)
	if err != nil {
		log.WithError(err).Error("Failed to list activities from repository")
		return nil, fmt.Errorf("service: could not list activities: %w", err)
	}
	return models.NewPage(activities, total, page, perPage), nil
}
