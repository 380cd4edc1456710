package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shenikar/incident_reporting_system/internal/models"
	"github.com/shenikar/incident_reporting_system/internal/service"
)

type IncidentRepository struct {
	db          DB
	redisClient *redis.Client
	cacheTTL    time.Duration
}

func NewIncidentRepository(db DB, redisClient *redis.Client, cacheTTL time.Duration) service.IncidentRepository {
	return &IncidentRepository{
		db:          db,
		redisClient: redisClient,
		cacheTTL:    cacheTTL,
	}
}

// Выборка инцидента вместе с категорией, исполнителем и автором
const incidentSelect = `
	SELECT
		i.id,
		i.title,
		i.description,
		i.status,
		i.priority,
		i.category_id,
		c.name,
		c.description,
		c.icon,
		c.color,
		c.created_at,
		i.latitude,
		i.longitude,
		i.address,
		i.affected_area_radius,
		i.media_urls,
		i.resolution_notes,
		i.assigned_to,
		a.username,
		a.email,
		i.user_id,
		r.username,
		r.email,
		i.created_at,
		i.updated_at,
		i.resolved_at
	FROM incident_reports i
	LEFT JOIN incident_categories c ON c.id = i.category_id
	LEFT JOIN users a ON a.id = i.assigned_to
	JOIN users r ON r.id = i.user_id`

func scanIncident(row pgx.Row) (*models.Incident, error) {
	incident := &models.Incident{}
	var (
		catName, catDescription, catIcon, catColor *string
		catCreatedAt                               *time.Time
		assigneeName, assigneeEmail                *string
		reporterName, reporterEmail                string
	)
	err := row.Scan(
		&incident.ID,
		&incident.Title,
		&incident.Description,
		&incident.Status,
		&incident.Priority,
		&incident.CategoryID,
		&catName,
		&catDescription,
		&catIcon,
		&catColor,
		&catCreatedAt,
		&incident.Location.Latitude,
		&incident.Location.Longitude,
		&incident.Location.Address,
		&incident.Location.Radius,
		&incident.MediaURLs,
		&incident.ResolutionNotes,
		&incident.AssignedTo,
		&assigneeName,
		&assigneeEmail,
		&incident.ReporterID,
		&reporterName,
		&reporterEmail,
		&incident.CreatedAt,
		&incident.UpdatedAt,
		&incident.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}

	if incident.CategoryID != nil && catName != nil {
		incident.Category = &models.Category{
			ID:          *incident.CategoryID,
			Name:        *catName,
			Description: deref(catDescription),
			Icon:        deref(catIcon),
			Color:       deref(catColor),
		}
		if catCreatedAt != nil {
			incident.Category.CreatedAt = *catCreatedAt
		}
	}
	if incident.AssignedTo != nil && assigneeName != nil {
		incident.Assignee = &models.UserSummary{
			ID:       *incident.AssignedTo,
			Username: *assigneeName,
			Email:    deref(assigneeEmail),
		}
	}
	incident.Reporter = &models.UserSummary{
		ID:       incident.ReporterID,
		Username: reporterName,
		Email:    reporterEmail,
	}
	if incident.MediaURLs == nil {
		incident.MediaURLs = []string{}
	}
	return incident, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Create создает новую запись об инциденте в бд
func (r *IncidentRepository) Create(ctx context.Context, incident *models.Incident) error {
	if incident.MediaURLs == nil {
		incident.MediaURLs = []string{}
	}
	query := `
		INSERT INTO incident_reports (title, description, status, priority, category_id,
			latitude, longitude, address, affected_area_radius, media_urls, user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at;
	`
	err := conn(ctx, r.db).QueryRow(ctx, query,
		incident.Title,
		incident.Description,
		incident.Status,
		incident.Priority,
		incident.CategoryID,
		incident.Location.Latitude,
		incident.Location.Longitude,
		incident.Location.Address,
		incident.Location.Radius,
		incident.MediaURLs,
		incident.ReporterID,
	).Scan(&incident.ID, &incident.CreatedAt, &incident.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create incident: %w", translate(err, "incident"))
	}
	return nil
}

// GetByID возвращает инцидент по его UUID
func (r *IncidentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	incident, err := scanIncident(conn(ctx, r.db).QueryRow(ctx, incidentSelect+` WHERE i.id = $1;`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get incident by id: %w", translate(err, "incident"))
	}
	return incident, nil
}

// GetForUpdate читает инцидент с блокировкой строки до конца транзакции
func (r *IncidentRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	incident, err := scanIncident(conn(ctx, r.db).QueryRow(ctx, incidentSelect+` WHERE i.id = $1 FOR UPDATE OF i;`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to lock incident: %w", translate(err, "incident"))
	}
	return incident, nil
}

// Update сохраняет все изменяемые поля инцидента. Автор не меняется.
func (r *IncidentRepository) Update(ctx context.Context, incident *models.Incident) error {
	query := `
		UPDATE incident_reports SET
			title = $1,
			description = $2,
			status = $3,
			priority = $4,
			category_id = $5,
			latitude = $6,
			longitude = $7,
			address = $8,
			affected_area_radius = $9,
			media_urls = $10,
			resolution_notes = $11,
			assigned_to = $12,
			resolved_at = $13,
			updated_at = NOW()
		WHERE id = $14
		RETURNING updated_at;
	`
	err := conn(ctx, r.db).QueryRow(ctx, query,
		incident.Title,
		incident.Description,
		incident.Status,
		incident.Priority,
		incident.CategoryID,
		incident.Location.Latitude,
		incident.Location.Longitude,
		incident.Location.Address,
		incident.Location.Radius,
		incident.MediaURLs,
		incident.ResolutionNotes,
		incident.AssignedTo,
		incident.ResolvedAt,
		incident.ID,
	).Scan(&incident.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update incident: %w", translate(err, "incident"))
	}
	return nil
}

// Delete удаляет инцидент; комментарии удаляются каскадно
func (r *IncidentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	cmdTag, err := conn(ctx, r.db).Exec(ctx, `DELETE FROM incident_reports WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("failed to delete incident: %w", err)
	}

	// Если RowsAffected() == 0, инцидента с таким id не существует
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("failed to delete incident: %w", translate(pgx.ErrNoRows, "incident"))
	}
	return nil
}

// escapeLike экранирует спецсимволы шаблона LIKE
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// buildIncidentWhere собирает условие WHERE и аргументы по фильтру
func buildIncidentWhere(filter models.IncidentFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.ReporterID != nil {
		add("i.user_id = $%d", *filter.ReporterID)
	}
	if filter.Status != nil {
		add("i.status = $%d", *filter.Status)
	}
	if filter.Priority != nil {
		add("i.priority = $%d", *filter.Priority)
	}
	if filter.CategoryID != nil {
		add("i.category_id = $%d", *filter.CategoryID)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+escapeLike(search)+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf(`(i.title ILIKE $%d ESCAPE '\' OR i.description ILIKE $%d ESCAPE '\')`, n, n))
	}
	if filter.From != nil {
		add("i.created_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("i.created_at <= $%d", *filter.To)
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// List возвращает страницу инцидентов по фильтру, новые первыми
func (r *IncidentRepository) List(ctx context.Context, filter models.IncidentFilter) ([]*models.Incident, int, error) {
	where, args := buildIncidentWhere(filter)
	db := conn(ctx, r.db)

	var total int
	if err := db.QueryRow(ctx, `SELECT COUNT(*) FROM incident_reports i`+where+`;`, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count incidents: %w", err)
	}

	args = append(args, filter.PerPage, models.Offset(filter.Page, filter.PerPage))
	query := incidentSelect + where +
		fmt.Sprintf(" ORDER BY i.created_at DESC, i.id DESC LIMIT $%d OFFSET $%d;", len(args)-1, len(args))

	incidents, err := r.queryIncidents(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list incidents: %w", err)
	}
	return incidents, total, nil
}

func (r *IncidentRepository) queryIncidents(ctx context.Context, query string, args ...any) ([]*models.Incident, error) {
	rows, err := conn(ctx, r.db).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	incidents := make([]*models.Incident, 0)
	for rows.Next() {
		incident, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan incident row: %w", err)
		}
		incidents = append(incidents, incident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error list iteration: %w", err)
	}
	return incidents, nil
}

// CountByStatus возвращает количество инцидентов по каждому статусу
func (r *IncidentRepository) CountByStatus(ctx context.Context) (map[models.Status]int, error) {
	rows, err := conn(ctx, r.db).Query(ctx, `SELECT status, COUNT(*) FROM incident_reports GROUP BY status;`)
	if err != nil {
		return nil, fmt.Errorf("failed to count incidents by status: %w", err)
	}
	defer rows.Close()

	stats := make(map[models.Status]int, len(models.Statuses()))
	for _, s := range models.Statuses() {
		stats[s] = 0
	}
	for rows.Next() {
		var (
			status models.Status
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		stats[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error status count iteration: %w", err)
	}
	return stats, nil
}

// Recent возвращает последние созданные инциденты
func (r *IncidentRepository) Recent(ctx context.Context, limit int) ([]*models.Incident, error) {
	incidents, err := r.queryIncidents(ctx, incidentSelect+` ORDER BY i.created_at DESC, i.id DESC LIMIT $1;`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent incidents: %w", err)
	}
	return incidents, nil
}

func (r *IncidentRepository) IDsByCategory(ctx context.Context, categoryID uuid.UUID) ([]uuid.UUID, error) {
	return r.queryIDs(ctx, `SELECT id FROM incident_reports WHERE category_id = $1;`, categoryID)
}

// IDsByReporter возвращает инциденты пользователя и те, где он исполнитель
func (r *IncidentRepository) IDsByReporter(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	return r.queryIDs(ctx, `SELECT id FROM incident_reports WHERE user_id = $1 OR assigned_to = $1;`, userID)
}

func (r *IncidentRepository) queryIDs(ctx context.Context, query string, arg any) ([]uuid.UUID, error) {
	rows, err := conn(ctx, r.db).Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query incident ids: %w", err)
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan incident id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error id iteration: %w", err)
	}
	return ids, nil
}

// cacheGenerationTTL переживает любое окно между чтением поколения и записью в кеш
const cacheGenerationTTL = 24 * time.Hour

func incidentCacheKey(id uuid.UUID) string {
	return fmt.Sprintf("incident:%s", id.String())
}

// incidentGenerationKey хранит счетчик инвалидаций инцидента
func incidentGenerationKey(id uuid.UUID) string {
	return fmt.Sprintf("incident:%s:gen", id.String())
}

// fillIncidentScript записывает инцидент, только если с момента промаха
// поколение не изменилось. Иначе значение, прочитанное из базы до
// параллельного изменения, перезаписало бы инвалидацию.
var fillIncidentScript = redis.NewScript(`
local gen = redis.call('GET', KEYS[2])
if (gen or '0') ~= ARGV[1] then
	return 0
end
if ARGV[3] == '0' then
	redis.call('SET', KEYS[1], ARGV[2])
else
	redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
end
return 1
`)

// GetIncidentFromCache пытается получить инцидент из Redis. При промахе
// возвращает (nil, поколение, nil): поколение передается в SetIncidentCache.
func (r *IncidentRepository) GetIncidentFromCache(ctx context.Context, id uuid.UUID) (*models.Incident, int64, error) {
	pipe := r.redisClient.Pipeline()
	valCmd := pipe.Get(ctx, incidentCacheKey(id))
	genCmd := pipe.Get(ctx, incidentGenerationKey(id))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, fmt.Errorf("failed to get incident from cache: %w", err)
	}

	val, err := valCmd.Bytes()
	if err == nil {
		incident := &models.Incident{}
		if err := json.Unmarshal(val, incident); err != nil {
			return nil, 0, fmt.Errorf("failed to unmarshal incident from cache: %w", err)
		}
		return incident, 0, nil
	}
	if !errors.Is(err, redis.Nil) {
		return nil, 0, fmt.Errorf("failed to get incident from cache: %w", err)
	}

	generation, err := genCmd.Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, fmt.Errorf("failed to get incident cache generation: %w", err)
	}
	return nil, generation, nil
}

// SetIncidentCache сохраняет инцидент в Redis, если поколение все еще равно generation
func (r *IncidentRepository) SetIncidentCache(ctx context.Context, incident *models.Incident, generation int64) error {
	val, err := json.Marshal(incident)
	if err != nil {
		return fmt.Errorf("failed to marshal incident for cache: %w", err)
	}
	keys := []string{incidentCacheKey(incident.ID), incidentGenerationKey(incident.ID)}
	args := []any{strconv.FormatInt(generation, 10), val, r.cacheTTL.Milliseconds()}
	if err := fillIncidentScript.Run(ctx, r.redisClient, keys, args...).Err(); err != nil {
		return fmt.Errorf("failed to set incident in cache: %w", err)
	}
	return nil
}

// InvalidateIncidentCache удаляет инциденты из Redis кэша и сдвигает их
// поколение, чтобы запоздавшее заполнение кеша не вернуло старые данные
func (r *IncidentRepository) InvalidateIncidentCache(ctx context.Context, ids ...uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	pipe := r.redisClient.TxPipeline()
	for _, id := range ids {
		genKey := incidentGenerationKey(id)
		pipe.Incr(ctx, genKey)
		pipe.Expire(ctx, genKey, cacheGenerationTTL)
		pipe.Del(ctx, incidentCacheKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to invalidate incident cache: %w", err)
	}
	return nil
}
