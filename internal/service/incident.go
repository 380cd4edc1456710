package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/incident_reporting_system/internal/apperr"
	"github.com/shenikar/incident_reporting_system/internal/models"
	"github.com/shenikar/incident_reporting_system/internal/policy"
	"github.com/shenikar/incident_reporting_system/internal/storage"
	"github.com/sirupsen/logrus"
)

//go:generate mockgen -source=incident.go -destination=../handler/http/v1/mocks/incident_service_mock.go -package=mocks

const (
	maxTitleLength      = 200
	recentIncidentLimit = 5
)

// События жизненного цикла инцидента
const (
	EventIncidentCreated       = "incident.created"
	EventIncidentUpdated       = "incident.updated"
	EventIncidentStatusChanged = "incident.status_changed"
	EventIncidentDeleted       = "incident.deleted"
)

// NotificationStatus - итог постановки уведомления в очередь
type NotificationStatus string

const (
	NotificationNone     NotificationStatus = ""
	NotificationQueued   NotificationStatus = "queued"
	NotificationDegraded NotificationStatus = "degraded"
)

// MediaFile - файл, приложенный к инциденту
type MediaFile struct {
	Filename string
	Size     int64
	Data     []byte
}

// CreateIncidentInput - данные нового инцидента
type CreateIncidentInput struct {
	Title       string
	Description string
	Latitude    float64
	Longitude   float64
	Priority    string
	CategoryID  *uuid.UUID
	Address     string
	Radius      *float64
	Media       []MediaFile
}

// IncidentPatch - изменение инцидента. nil - поле не передано.
// uuid.Nil в CategoryID и AssignedTo очищает значение.
type IncidentPatch struct {
	Title           *string
	Description     *string
	Status          *string
	Priority        *string
	CategoryID      *uuid.UUID
	AssignedTo      *uuid.UUID
	ResolutionNotes *string
	Address         *string
	Latitude        *float64
	Longitude       *float64
	Radius          *float64
	MediaURLs       []string
	// Present - ключи, переданные в теле запроса, включая ключи со значением null.
	// Такие поля тоже проходят проверку прав.
	Present []string
}

// Fields возвращает имена переданных полей
func (p IncidentPatch) Fields() []string {
	present := make(map[string]struct{}, len(p.Present))
	for _, key := range p.Present {
		present[key] = struct{}{}
	}
	var fields []string
	add := func(set bool, name string) {
		if _, ok := present[name]; set || ok {
			fields = append(fields, name)
		}
	}
	add(p.Title != nil, policy.FieldTitle)
	add(p.Description != nil, policy.FieldDescription)
	add(p.Status != nil, policy.FieldStatus)
	add(p.Priority != nil, policy.FieldPriority)
	add(p.CategoryID != nil, policy.FieldCategory)
	add(p.AssignedTo != nil, policy.FieldAssignedTo)
	add(p.ResolutionNotes != nil, policy.FieldResolutionNotes)
	add(p.Address != nil, policy.FieldAddress)
	add(p.Latitude != nil, policy.FieldLatitude)
	add(p.Longitude != nil, policy.FieldLongitude)
	add(p.Radius != nil, policy.FieldRadius)
	add(len(p.MediaURLs) > 0, policy.FieldMedia)
	return fields
}

// IncidentResult - инцидент после изменения и состояние уведомления автора
type IncidentResult struct {
	Incident     *models.Incident
	Notification NotificationStatus
}

// BatchFailure - инцидент, который не удалось перевести в новый статус
type BatchFailure struct {
	ID    uuid.UUID `json:"id"`
	Error string    `json:"error"`
}

// BatchResult - итог массовой смены статуса. Каждый инцидент фиксируется отдельно.
type BatchResult struct {
	Status       models.Status      `json:"status"`
	Updated      []*models.Incident `json:"updated"`
	Failed       []BatchFailure     `json:"failed"`
	Notification NotificationStatus `json:"-"`
}

// IncidentService определяет контракт для бизнес-логики управления инцидентами
type IncidentService interface {
	CreateIncident(ctx context.Context, actor *models.User, input CreateIncidentInput) (*models.Incident, error)
	GetIncident(ctx context.Context, actor *models.User, id uuid.UUID) (*models.Incident, error)
	UpdateIncident(ctx context.Context, actor *models.User, id uuid.UUID, patch IncidentPatch) (*IncidentResult, error)
	AddMedia(ctx context.Context, actor *models.User, id uuid.UUID, files []MediaFile) (*IncidentResult, error)
	DeleteIncident(ctx context.Context, actor *models.User, id uuid.UUID) error
	ListIncidents(ctx context.Context, actor *models.User, filter models.IncidentFilter) (*models.Page[*models.Incident], error)
	TransitionStatus(ctx context.Context, actor *models.User, id uuid.UUID, status string, resolutionNotes *string) (*IncidentResult, error)
	TransitionBatch(ctx context.Context, actor *models.User, ids []uuid.UUID, status string) (*BatchResult, error)
	GetStats(ctx context.Context, actor *models.User) (*models.DashboardStats, error)
}

// IncidentDeps - зависимости сервиса инцидентов
type IncidentDeps struct {
	Repo       IncidentRepository
	Users      UserRepository
	Categories CategoryRepository
	Tx         Transactor
	Uploader   Uploader
	Notifier   Notifier
	Events     EventPublisher
	Activity   ActivityRecorder
	Policy     *policy.Policy
	Media      storage.MediaRules
	Logger     *logrus.Logger
}

type incidentService struct {
	repo       IncidentRepository
	users      UserRepository
	categories CategoryRepository
	tx         Transactor
	uploader   Uploader
	notifier   Notifier
	events     EventPublisher
	activity   ActivityRecorder
	policy     *policy.Policy
	media      storage.MediaRules
	logger     *logrus.Logger
	now        func() time.Time
}

func NewIncidentService(deps IncidentDeps) IncidentService {
	return &incidentService{
		repo:       deps.Repo,
		users:      deps.Users,
		categories: deps.Categories,
		tx:         deps.Tx,
		uploader:   deps.Uploader,
		notifier:   deps.Notifier,
		events:     deps.Events,
		activity:   deps.Activity,
		policy:     deps.Policy,
		media:      deps.Media,
		logger:     deps.Logger,
		now:        time.Now,
	}
}

func validateText(value, field string, maxLen int) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", apperr.Validation("%s is required", field).WithFields(field)
	}
	if maxLen > 0 && len([]rune(value)) > maxLen {
		return "", apperr.Validation("%s must be at most %d characters", field, maxLen).WithFields(field)
	}
	return value, nil
}

func validateCoordinates(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || lat < -90 || lat > 90 {
		return apperr.Validation("latitude must be a number between -90 and 90").WithFields(policy.FieldLatitude)
	}
	if math.IsNaN(lon) || math.IsInf(lon, 0) || lon < -180 || lon > 180 {
		return apperr.Validation("longitude must be a number between -180 and 180").WithFields(policy.FieldLongitude)
	}
	return nil
}

func validateRadius(radius *float64) error {
	if radius == nil {
		return nil
	}
	if math.IsNaN(*radius) || math.IsInf(*radius, 0) || *radius < 0 {
		return apperr.Validation("affected area radius must be a non-negative number").WithFields(policy.FieldRadius)
	}
	return nil
}

// uploadMedia загружает допустимые файлы по порядку. Файлы с неразрешенным
// расширением или слишком большие пропускаются; сбой загрузки прерывает операцию.
func (s *incidentService) uploadMedia(ctx context.Context, log *logrus.Entry, files []MediaFile) ([]string, error) {
	urls := make([]string, 0, len(files))
	for _, f := range files {
		if !s.media.Allows(f.Filename, f.Size) {
			log.WithFields(logrus.Fields{"filename": f.Filename, "size": f.Size}).Warn("Skipping media file that is not allowed")
			continue
		}
		url, err := s.uploader.Upload(ctx, f.Data, f.Filename)
		if err != nil {
			log.WithError(err).WithField("filename", f.Filename).Error("Failed to upload media file")
			return nil, apperr.Upstream(err, "failed to upload media file %s", f.Filename)
		}
		urls = append(urls, url)
	}
	return urls, nil
}

func (s *incidentService) lookupCategory(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	category, err := s.categories.GetByID(ctx, id)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.Validation("category %s does not exist", id).WithFields(policy.FieldCategory)
		}
		return nil, err
	}
	return category, nil
}

// CreateIncident создает инцидент в статусе reported
func (s *incidentService) CreateIncident(ctx context.Context, actor *models.User, input CreateIncidentInput) (*models.Incident, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service": "incident",
		"method":  "CreateIncident",
		"user_id": actor.ID,
	})
	log.Info("Attempting to create a new incident")

	title, err := validateText(input.Title, policy.FieldTitle, maxTitleLength)
	if err != nil {
		return nil, err
	}
	description, err := validateText(input.Description, policy.FieldDescription, 0)
	if err != nil {
		return nil, err
	}
	if err := validateCoordinates(input.Latitude, input.Longitude); err != nil {
		return nil, err
	}
	if err := validateRadius(input.Radius); err != nil {
		return nil, err
	}

	priority := models.PriorityMedium
	if strings.TrimSpace(input.Priority) != "" {
		if priority, err = models.ParsePriority(input.Priority); err != nil {
			return nil, err
		}
	}

	var category *models.Category
	if input.CategoryID != nil && *input.CategoryID != uuid.Nil {
		if category, err = s.lookupCategory(ctx, *input.CategoryID); err != nil {
			log.WithError(err).Warn("Invalid category for new incident")
			return nil, err
		}
	}

	mediaURLs, err := s.uploadMedia(ctx, log, input.Media)
	if err != nil {
		return nil, err
	}

	incident := &models.Incident{
		Title:       title,
		Description: description,
		Status:      models.StatusReported,
		Priority:    priority,
		Category:    category,
		Location: models.Location{
			Latitude:  input.Latitude,
			Longitude: input.Longitude,
			Address:   strings.TrimSpace(input.Address),
			Radius:    input.Radius,
		},
		MediaURLs:  mediaURLs,
		ReporterID: actor.ID,
		Reporter:   &models.UserSummary{ID: actor.ID, Username: actor.Username, Email: actor.Email},
	}
	if category != nil {
		incident.CategoryID = &category.ID
	}

	if err := s.repo.Create(ctx, incident); err != nil {
		log.WithError(err).Error("Failed to create incident in repository")
		return nil, fmt.Errorf("service: could not create incident: %w", err)
	}

	s.activity.Record(ctx, actor.ID, models.ActivityIncidentCreated, fmt.Sprintf("created incident %s", incident.ID))
	s.publish(ctx, log, EventIncidentCreated, incident)
	log.WithField("incident_id", incident.ID).Info("Incident created successfully")
	return incident, nil
}

// GetIncident получает инцидент по ID, сначала из кеша
func (s *incidentService) GetIncident(ctx context.Context, actor *models.User, id uuid.UUID) (*models.Incident, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "incident",
		"method":      "GetIncident",
		"incident_id": id,
	})
	log.Info("Fetching incident by ID")

	// поколение читается до запроса в базу: если инцидент изменят между
	// чтением и заполнением кеша, заполнение будет пропущено
	incident, generation, err := s.repo.GetIncidentFromCache(ctx, id)
	cacheAvailable := err == nil
	if err != nil {
		log.WithError(err).Warn("Failed to read incident from cache")
		incident = nil
	}

	if incident == nil {
		incident, err = s.repo.GetByID(ctx, id)
		if err != nil {
			log.WithError(err).Warn("Failed to get incident in repository")
			return nil, fmt.Errorf("service: could not get incident: %w", err)
		}
		if cacheAvailable {
			if err := s.repo.SetIncidentCache(ctx, incident, generation); err != nil {
				log.WithError(err).Warn("Failed to cache incident")
			}
		}
	}

	if err := s.policy.CheckRead(actor, incident); err != nil {
		log.WithError(err).WithField("user_id", actor.ID).Warn("Incident read denied")
		return nil, err
	}

	log.Info("Incident fetched successfully")
	return incident, nil
}

// applyPatch применяет изменения к инциденту, заблокированному в текущей транзакции
func (s *incidentService) applyPatch(ctx context.Context, incident *models.Incident, patch IncidentPatch) error {
	if patch.Title != nil {
		title, err := validateText(*patch.Title, policy.FieldTitle, maxTitleLength)
		if err != nil {
			return err
		}
		incident.Title = title
	}
	if patch.Description != nil {
		description, err := validateText(*patch.Description, policy.FieldDescription, 0)
		if err != nil {
			return err
		}
		incident.Description = description
	}
	if patch.Status != nil {
		target, err := models.ParseStatus(*patch.Status)
		if err != nil {
			return err
		}
		if err := incident.TransitionTo(target, s.now()); err != nil {
			return err
		}
	}
	if patch.Priority != nil {
		priority, err := models.ParsePriority(*patch.Priority)
		if err != nil {
			return err
		}
		incident.Priority = priority
	}
	if patch.CategoryID != nil {
		if *patch.CategoryID == uuid.Nil {
			incident.CategoryID = nil
			incident.Category = nil
		} else {
			category, err := s.lookupCategory(ctx, *patch.CategoryID)
			if err != nil {
				return err
			}
			incident.CategoryID = &category.ID
			incident.Category = category
		}
	}
	if patch.AssignedTo != nil {
		if *patch.AssignedTo == uuid.Nil {
			incident.AssignedTo = nil
			incident.Assignee = nil
		} else {
			assignee, err := s.users.GetByID(ctx, *patch.AssignedTo)
			if err != nil {
				if apperr.Is(err, apperr.KindNotFound) {
					return apperr.Validation("assignee %s does not exist", *patch.AssignedTo).WithFields(policy.FieldAssignedTo)
				}
				return err
			}
			incident.AssignedTo = &assignee.ID
			incident.Assignee = &models.UserSummary{ID: assignee.ID, Username: assignee.Username, Email: assignee.Email}
		}
	}
	if patch.ResolutionNotes != nil {
		incident.ResolutionNotes = strings.TrimSpace(*patch.ResolutionNotes)
	}
	if patch.Address != nil {
		incident.Location.Address = strings.TrimSpace(*patch.Address)
	}
	if patch.Latitude != nil || patch.Longitude != nil {
		lat, lon := incident.Location.Latitude, incident.Location.Longitude
		if patch.Latitude != nil {
			lat = *patch.Latitude
		}
		if patch.Longitude != nil {
			lon = *patch.Longitude
		}
		if err := validateCoordinates(lat, lon); err != nil {
			return err
		}
		incident.Location.Latitude, incident.Location.Longitude = lat, lon
	}
	if patch.Radius != nil {
		if err := validateRadius(patch.Radius); err != nil {
			return err
		}
		radius := *patch.Radius
		incident.Location.Radius = &radius
	}
	if len(patch.MediaURLs) > 0 {
		// новые файлы только добавляются в конец списка
		incident.MediaURLs = append(incident.MediaURLs, patch.MediaURLs...)
	}
	return nil
}

// UpdateIncident проверяет права на все переданные поля до любого изменения,
// затем применяет изменения в одной транзакции
func (s *incidentService) UpdateIncident(ctx context.Context, actor *models.User, id uuid.UUID, patch IncidentPatch) (*IncidentResult, error) {
	fields := patch.Fields()
	log := s.logger.WithFields(logrus.Fields{
		"service":     "incident",
		"method":      "UpdateIncident",
		"incident_id": id,
		"user_id":     actor.ID,
		"fields":      fields,
	})
	log.Info("Attempting to update incident")

	if len(fields) == 0 {
		return nil, apperr.Validation("no fields to update")
	}

	var (
		updated    *models.Incident
		prevStatus models.Status
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		incident, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := s.policy.CheckWrite(actor, incident, fields); err != nil {
			return err
		}
		prevStatus = incident.Status
		if err := s.applyPatch(ctx, incident, patch); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, incident); err != nil {
			return err
		}
		updated = incident
		return nil
	})
	if err != nil {
		log.WithError(err).Warn("Failed to update incident")
		return nil, fmt.Errorf("service: could not update incident: %w", err)
	}

	s.invalidate(ctx, log, id)
	s.activity.Record(ctx, actor.ID, models.ActivityIncidentUpdated,
		fmt.Sprintf("updated incident %s: %s", id, strings.Join(fields, ", ")))
	s.publish(ctx, log, EventIncidentUpdated, updated)

	result := &IncidentResult{Incident: updated}
	if updated.Status != prevStatus {
		result.Notification = s.statusChanged(ctx, log, actor, updated, prevStatus)
	}

	log.Info("Incident updated successfully")
	return result, nil
}

// AddMedia загружает файлы и добавляет их URL к инциденту
func (s *incidentService) AddMedia(ctx context.Context, actor *models.User, id uuid.UUID, files []MediaFile) (*IncidentResult, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "incident",
		"method":      "AddMedia",
		"incident_id": id,
		"files":       len(files),
	})
	log.Info("Attempting to attach media")

	incident, err := s.repo.GetByID(ctx, id)
	if err != nil {
		log.WithError(err).Warn("Failed to get incident in repository")
		return nil, fmt.Errorf("service: could not attach media: %w", err)
	}
	if err := s.policy.CheckWrite(actor, incident, []string{policy.FieldMedia}); err != nil {
		log.WithError(err).Warn("Media attachment denied")
		return nil, err
	}

	urls, err := s.uploadMedia(ctx, log, files)
	if err != nil {
		return nil, err
	}
	if len(urls) == 0 {
		return nil, apperr.Validation("no acceptable media files provided").WithFields(policy.FieldMedia)
	}
	return s.UpdateIncident(ctx, actor, id, IncidentPatch{MediaURLs: urls})
}

// DeleteIncident удаляет инцидент вместе с комментариями
func (s *incidentService) DeleteIncident(ctx context.Context, actor *models.User, id uuid.UUID) error {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "incident",
		"method":      "DeleteIncident",
		"incident_id": id,
		"user_id":     actor.ID,
	})
	log.Info("Attempting to delete incident")

	incident, err := s.repo.GetByID(ctx, id)
	if err != nil {
		log.WithError(err).Warn("Attempted to delete a non-existent incident")
		return fmt.Errorf("service: could not delete incident: %w", err)
	}
	if err := s.policy.CheckDelete(actor, incident); err != nil {
		log.WithError(err).Warn("Incident deletion denied")
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		log.WithError(err).Error("Failed to delete incident in repository")
		return fmt.Errorf("service: could not delete incident: %w", err)
	}

	s.invalidate(ctx, log, id)
	s.activity.Record(ctx, actor.ID, models.ActivityIncidentDeleted, fmt.Sprintf("deleted incident %s", id))
	s.publish(ctx, log, EventIncidentDeleted, incident)
	log.Info("Incident deleted successfully")
	return nil
}

// ListIncidents возвращает список инцидентов с пагинацией. Обычный пользователь
// всегда видит только свои инциденты.
func (s *incidentService) ListIncidents(ctx context.Context, actor *models.User, filter models.IncidentFilter) (*models.Page[*models.Incident], error) {
	filter.Page, filter.PerPage = models.NormalizePage(filter.Page, filter.PerPage)
	log := s.logger.WithFields(logrus.Fields{
		"service":  "incident",
		"method":   "ListIncidents",
		"user_id":  actor.ID,
		"page":     filter.Page,
		"per_page": filter.PerPage,
	})
	log.Info("Listing incidents")

	if err := s.policy.ScopeFilter(actor, &filter); err != nil {
		log.WithError(err).Warn("Incident listing denied")
		return nil, err
	}
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return nil, apperr.Validation("date_from must not be after date_to").WithFields("date_from", "date_to")
	}

	incidents, total, err := s.repo.List(ctx, filter)
	if err != nil {
		log.WithError(err).Error("Failed to list incidents from repository")
		return nil, fmt.Errorf("service: could not list incidents: %w", err)
	}

	log.WithField("count", len(incidents)).Info("Incidents listed successfully")
	return models.NewPage(incidents, total, filter.Page, filter.PerPage), nil
}

// transitionOne переводит один инцидент в статус target в собственной транзакции
func (s *incidentService) transitionOne(ctx context.Context, id uuid.UUID, target models.Status, notes *string) (*models.Incident, models.Status, error) {
	var (
		updated    *models.Incident
		prevStatus models.Status
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		incident, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		prevStatus = incident.Status
		if err := incident.TransitionTo(target, s.now()); err != nil {
			return err
		}
		if notes != nil {
			incident.ResolutionNotes = strings.TrimSpace(*notes)
		}
		if err := s.repo.Update(ctx, incident); err != nil {
			return err
		}
		updated = incident
		return nil
	})
	return updated, prevStatus, err
}

// TransitionStatus меняет статус инцидента (только администратор)
func (s *incidentService) TransitionStatus(ctx context.Context, actor *models.User, id uuid.UUID, status string, resolutionNotes *string) (*IncidentResult, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "incident",
		"method":      "TransitionStatus",
		"incident_id": id,
		"status":      status,
	})
	log.Info("Attempting to change incident status")

	if err := s.policy.CheckTransition(actor); err != nil {
		log.WithError(err).Warn("Status change denied")
		return nil, err
	}
	target, err := models.ParseStatus(status)
	if err != nil {
		return nil, err
	}

	incident, prevStatus, err := s.transitionOne(ctx, id, target, resolutionNotes)
	if err != nil {
		log.WithError(err).Warn("Failed to change incident status")
		return nil, fmt.Errorf("service: could not change incident status: %w", err)
	}

	s.invalidate(ctx, log, id)
	notification := s.statusChanged(ctx, log, actor, incident, prevStatus)
	log.Info("Incident status changed successfully")
	return &IncidentResult{Incident: incident, Notification: notification}, nil
}

// TransitionBatch применяет смену статуса к каждому инциденту отдельно: ошибка
// на одном инциденте не откатывает остальные
func (s *incidentService) TransitionBatch(ctx context.Context, actor *models.User, ids []uuid.UUID, status string) (*BatchResult, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service": "incident",
		"method":  "TransitionBatch",
		"status":  status,
		"count":   len(ids),
	})
	log.Info("Attempting batch status change")

	if err := s.policy.CheckTransition(actor); err != nil {
		log.WithError(err).Warn("Batch status change denied")
		return nil, err
	}
	target, err := models.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, apperr.Validation("incident_ids must not be empty").WithFields("incident_ids")
	}

	result := &BatchResult{
		Status:  target,
		Updated: make([]*models.Incident, 0, len(ids)),
		Failed:  make([]BatchFailure, 0),
	}
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		incident, prevStatus, err := s.transitionOne(ctx, id, target, nil)
		if err != nil {
			entry := log.WithError(err).WithField("incident_id", id)
			if apperr.KindOf(err) == apperr.KindInternal {
				entry.Error("Batch item failed")
			} else {
				entry.Warn("Batch item rejected")
			}
			result.Failed = append(result.Failed, BatchFailure{ID: id, Error: apperr.PublicMessage(err)})
			continue
		}

		s.invalidate(ctx, log, id)
		result.Updated = append(result.Updated, incident)
		result.Notification = mergeNotification(result.Notification, s.statusChanged(ctx, log, actor, incident, prevStatus))
	}

	log.WithFields(logrus.Fields{
		"updated": len(result.Updated),
		"failed":  len(result.Failed),
	}).Info("Batch status change completed")
	return result, nil
}

func mergeNotification(current, next NotificationStatus) NotificationStatus {
	if current == NotificationDegraded || next == NotificationDegraded {
		return NotificationDegraded
	}
	if next == NotificationQueued {
		return NotificationQueued
	}
	return current
}

// statusChanged выполняет побочные действия после зафиксированной смены статуса.
// Сбой уведомления не отменяет смену статуса.
func (s *incidentService) statusChanged(ctx context.Context, log *logrus.Entry, actor *models.User, incident *models.Incident, prevStatus models.Status) NotificationStatus {
	s.activity.Record(ctx, actor.ID, models.ActivityStatusChanged,
		fmt.Sprintf("changed status of incident %s from %s to %s", incident.ID, prevStatus, incident.Status))
	s.publish(ctx, log, EventIncidentStatusChanged, incident)

	reporter, err := s.users.GetByID(ctx, incident.ReporterID)
	if err != nil {
		log.WithError(err).Warn("Failed to load reporter for notification")
		return NotificationDegraded
	}
	payload := map[string]string{
		"incident_id": incident.ID.String(),
		"title":       incident.Title,
		"old_status":  string(prevStatus),
		"new_status":  string(incident.Status),
	}
	if err := s.notifier.Notify(ctx, reporter, EventIncidentStatusChanged, payload); err != nil {
		log.WithError(err).Warn("Failed to enqueue status notification")
		return NotificationDegraded
	}
	return NotificationQueued
}

// GetStats возвращает сводку для панели администратора
func (s *incidentService) GetStats(ctx context.Context, actor *models.User) (*models.DashboardStats, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service": "incident",
		"method":  "GetStats",
	})

	if err := s.policy.CheckStats(actor); err != nil {
		log.WithError(err).Warn("Stats access denied")
		return nil, err
	}

	byStatus, err := s.repo.CountByStatus(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to count incidents by status")
		return nil, fmt.Errorf("service: could not get stats: %w", err)
	}
	totalUsers, err := s.users.Count(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to count users")
		return nil, fmt.Errorf("service: could not get stats: %w", err)
	}
	recent, err := s.repo.Recent(ctx, recentIncidentLimit)
	if err != nil {
		log.WithError(err).Error("Failed to get recent incidents")
		return nil, fmt.Errorf("service: could not get stats: %w", err)
	}

	total := 0
	for _, n := range byStatus {
		total += n
	}
	return &models.DashboardStats{
		TotalIncidents:  total,
		TotalUsers:      totalUsers,
		StatusStats:     byStatus,
		RecentIncidents: recent,
	}, nil
}

func (s *incidentService) invalidate(ctx context.Context, log *logrus.Entry, id uuid.UUID) {
	if err := s.repo.InvalidateIncidentCache(ctx, id); err != nil {
		log.WithError(err).Warn("Failed to invalidate incident cache")
	}
}

func (s *incidentService) publish(ctx context.Context, log *logrus.Entry, action string, incident *models.Incident) {
	if err := s.events.Publish(ctx, action, incident); err != nil {
		log.WithError(err).WithField("action", action).Warn("Failed to publish incident event")
	}
}
