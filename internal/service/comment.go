package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shenikar/incident_reporting_system/internal/apperr"
	"github.com/shenikar/incident_reporting_system/internal/models"
	"github.com/shenikar/incident_reporting_system/internal/policy"
	"github.com/sirupsen/logrus"
)

//go:generate mockgen -source=comment.go -destination=../handler/http/v1/mocks/comment_service_mock.go -package=mocks

const maxCommentLength = 5000

// CommentService определяет контракт для обсуждения инцидента
type CommentService interface {
	AddComment(ctx context.Context, actor *models.User, incidentID uuid.UUID, content string) (*models.Comment, error)
	ListComments(ctx context.Context, actor *models.User, incidentID uuid.UUID, page, perPage int) (*models.Page[*models.Comment], error)
}

type commentService struct {
	repo      CommentRepository
	incidents IncidentRepository
	activity  ActivityRecorder
	policy    *policy.Policy
	logger    *logrus.Logger
}

func NewCommentService(repo CommentRepository, incidents IncidentRepository, activity ActivityRecorder, p *policy.Policy, logger *logrus.Logger) CommentService {
	return &commentService{
		repo:      repo,
		incidents: incidents,
		activity:  activity,
		policy:    p,
		logger:    logger,
	}
}

// readableIncident загружает инцидент и проверяет право чтения
func (s *commentService) readableIncident(ctx context.Context, actor *models.User, incidentID uuid.UUID) (*models.Incident, error) {
	incident, err := s.incidents.GetByID(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.CheckRead(actor, incident); err != nil {
		return nil, err
	}
	return incident, nil
}

// AddComment добавляет комментарий. Комментировать может тот, кто может читать инцидент.
func (s *commentService) AddComment(ctx context.Context, actor *models.User, incidentID uuid.UUID, content string) (*models.Comment, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "comment",
		"method":      "AddComment",
		"incident_id": incidentID,
		"user_id":     actor.ID,
	})
	log.Info("Attempting to add comment")

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperr.Validation("comment content is required").WithFields("content")
	}
	if len([]rune(content)) > maxCommentLength {
		return nil, apperr.Validation("comment must be at most %d characters", maxCommentLength).WithFields("content")
	}

	if _, err := s.readableIncident(ctx, actor, incidentID); err != nil {
		log.WithError(err).Warn("Comment rejected")
		return nil, fmt.Errorf("service: could not add comment: %w", err)
	}

	comment := &models.Comment{
		IncidentID: incidentID,
		AuthorID:   actor.ID,
		Author:     &models.UserSummary{ID: actor.ID, Username: actor.Username, Email: actor.Email},
		Content:    content,
	}
	if err := s.repo.Create(ctx, comment); err != nil {
		log.WithError(err).Error("Failed to create comment in repository")
		return nil, fmt.Errorf("service: could not add comment: %w", err)
	}

	s.activity.Record(ctx, actor.ID, models.ActivityCommentAdded, fmt.Sprintf("commented on incident %s", incidentID))
	log.WithField("comment_id", comment.ID).Info("Comment added successfully")
	return comment, nil
}

// ListComments возвращает комментарии инцидента, старые первыми
func (s *commentService) ListComments(ctx context.Context, actor *models.User, incidentID uuid.UUID, page, perPage int) (*models.Page[*models.Comment], error) {
	page, perPage = models.NormalizePage(page, perPage)
	log := s.logger.WithFields(logrus.Fields{
		"service":     "comment",
		"method":      "ListComments",
		"incident_id": incidentID,
	})

	if _, err := s.readableIncident(ctx, actor, incidentID); err != nil {
		log.WithError(err).Warn("Comment listing rejected")
		return nil, fmt.Errorf("service: could not list comments: %w", err)
	}

	comments, total, err := s.repo.ListByIncident(ctx, incidentID, page, perPage)
	if err != nil {
		log.WithError(err).Error("Failed to list comments from repository")
		return nil, fmt.Errorf("service: could not list comments: %w", err)
	}
	return models.NewPage(comments, total, page, perPage), nil
}
