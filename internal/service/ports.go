package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/incident_reporting_system/internal/models"
)

//go:generate mockgen -source=ports.go -destination=mocks/ports_mock.go -package=mocks

// Transactor выполняет последовательность операций в одной транзакции
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// UserRepository определяет контракт для работы с бд пользователей
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	// RecordFailedLogin атомарно увеличивает счетчик неудачных входов и
	// блокирует аккаунт до lockUntil при достижении maxAttempts
	RecordFailedLogin(ctx context.Context, user *models.User, maxAttempts int, now, lockUntil time.Time) error
	RecordLogin(ctx context.Context, user *models.User, at time.Time) error
	UpdateProfile(ctx context.Context, user *models.User) error
	UpdateRole(ctx context.Context, user *models.User) error
	SetActive(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, page, perPage int) ([]*models.User, int, error)
	Count(ctx context.Context) (int, error)
	ReleaseExpiredLocks(ctx context.Context, now time.Time) (int64, error)
}

// CategoryRepository определяет контракт для работы с бд категорий
type CategoryRepository interface {
	Create(ctx context.Context, category *models.Category) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Category, error)
	List(ctx context.Context) ([]*models.Category, error)
	Update(ctx context.Context, category *models.Category) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// IncidentRepository определяет контракт для работы с бд и кешем инцидентов
type IncidentRepository interface {
	Create(ctx context.Context, incident *models.Incident) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Incident, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Incident, error)
	Update(ctx context.Context, incident *models.Incident) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter models.IncidentFilter) ([]*models.Incident, int, error)
	CountByStatus(ctx context.Context) (map[models.Status]int, error)
	Recent(ctx context.Context, limit int) ([]*models.Incident, error)
	IDsByCategory(ctx context.Context, categoryID uuid.UUID) ([]uuid.UUID, error)
	IDsByReporter(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)

	// GetIncidentFromCache при промахе возвращает поколение кеша инцидента.
	// SetIncidentCache с этим поколением ничего не пишет, если инцидент успели инвалидировать.
	GetIncidentFromCache(ctx context.Context, id uuid.UUID) (*models.Incident, int64, error)
	SetIncidentCache(ctx context.Context, incident *models.Incident, generation int64) error
	InvalidateIncidentCache(ctx context.Context, ids ...uuid.UUID) error
}

// CommentRepository определяет контракт для работы с бд комментариев
type CommentRepository interface {
	Create(ctx context.Context, comment *models.Comment) error
	ListByIncident(ctx context.Context, incidentID uuid.UUID, page, perPage int) ([]*models.Comment, int, error)
}

// ActivityRepository определяет контракт для журнала действий
type ActivityRepository interface {
	Create(ctx context.Context, activity *models.Activity) error
	List(ctx context.Context, filter models.ActivityFilter) ([]*models.Activity, int, error)
}

// Uploader загружает файл во внешнее хранилище и возвращает его URL
type Uploader interface {
	Upload(ctx context.Context, data []byte, filename string) (string, error)
}

// Notifier ставит уведомление пользователю в очередь доставки
type Notifier interface {
	Notify(ctx context.Context, user *models.User, event string, payload map[string]string) error
}

// EventPublisher публикует события жизненного цикла инцидентов
type EventPublisher interface {
	Publish(ctx context.Context, action string, payload any) error
}

// ActivityRecorder записывает действие в журнал. Ошибки не возвращаются.
type ActivityRecorder interface {
	Record(ctx context.Context, userID uuid.UUID, activityType models.ActivityType, description string)
}
