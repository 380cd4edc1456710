package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shenikar/incident_reporting_system/internal/models"
	"github.com/shenikar/incident_reporting_system/internal/service"
)

type UserRepository struct {
	db DB
}

func NewUserRepository(db DB) service.UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `
	id, username, email, password_hash, role, is_active, phone_number,
	email_notifications, sms_notifications, two_factor_enabled, two_factor_secret,
	last_login, failed_login_attempts, account_locked_until, preferences,
	created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	user := &models.User{}
	var prefs []byte
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.IsActive,
		&user.PhoneNumber,
		&user.EmailNotifications,
		&user.SMSNotifications,
		&user.TwoFactorEnabled,
		&user.TwoFactorSecret,
		&user.LastLogin,
		&user.FailedLoginAttempts,
		&user.AccountLockedUntil,
		&prefs,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.Preferences = map[string]any{}
	if len(prefs) > 0 {
		if err := json.Unmarshal(prefs, &user.Preferences); err != nil {
			return nil, fmt.Errorf("failed to decode preferences: %w", err)
		}
	}
	return user, nil
}

func encodePreferences(prefs map[string]any) ([]byte, error) {
	if prefs == nil {
		prefs = map[string]any{}
	}
	return json.Marshal(prefs)
}

// Create создает пользователя
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	prefs, err := encodePreferences(user.Preferences)
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}
	query := `
		INSERT INTO users (username, email, password_hash, role, is_active, phone_number,
			email_notifications, sms_notifications, preferences)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at;
	`
	err = conn(ctx, r.db).QueryRow(ctx, query,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.Role,
		user.IsActive,
		user.PhoneNumber,
		user.EmailNotifications,
		user.SMSNotifications,
		prefs,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", translate(err, "user"))
	}
	return nil
}

// GetByID возвращает пользователя по UUID
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `SELECT` + userColumns + ` FROM users WHERE id = $1;`
	user, err := scanUser(conn(ctx, r.db).QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get user by id: %w", translate(err, "user"))
	}
	return user, nil
}

// GetByEmail ищет пользователя по email без учета регистра
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1);`
	user, err := scanUser(conn(ctx, r.db).QueryRow(ctx, query, email))
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", translate(err, "user"))
	}
	return user, nil
}

// recordFailedLoginQuery увеличивает счетчик в самой базе, чтобы параллельные
// попытки входа не теряли инкременты. Истекшая блокировка ($3 - текущее время)
// сбрасывает счетчик, блокировка до $4 ставится при достижении порога $2.
const recordFailedLoginQuery = `
	WITH next AS (
		SELECT id, CASE
			WHEN account_locked_until IS NOT NULL AND account_locked_until <= $3 THEN 1
			ELSE failed_login_attempts + 1
		END AS attempts
		FROM users WHERE id = $1
		FOR UPDATE
	)
	UPDATE users u SET
		failed_login_attempts = next.attempts,
		account_locked_until = CASE
			WHEN next.attempts >= $2 THEN $4::timestamptz
			WHEN u.account_locked_until <= $3 THEN NULL
			ELSE u.account_locked_until
		END,
		updated_at = NOW()
	FROM next
	WHERE u.id = next.id
	RETURNING u.failed_login_attempts, u.account_locked_until, u.updated_at;
`

// RecordFailedLogin атомарно учитывает неудачную попытку входа и возвращает
// в user новое значение счетчика и блокировки. Остальные колонки не трогаются.
func (r *UserRepository) RecordFailedLogin(ctx context.Context, user *models.User, maxAttempts int, now, lockUntil time.Time) error {
	err := conn(ctx, r.db).QueryRow(ctx, recordFailedLoginQuery, user.ID, maxAttempts, now, lockUntil).
		Scan(&user.FailedLoginAttempts, &user.AccountLockedUntil, &user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to record failed login: %w", translate(err, "user"))
	}
	return nil
}

// RecordLogin фиксирует успешный вход и сбрасывает счетчик и блокировку
func (r *UserRepository) RecordLogin(ctx context.Context, user *models.User, at time.Time) error {
	query := `
		UPDATE users SET
			last_login = $2,
			failed_login_attempts = 0,
			account_locked_until = NULL,
			updated_at = NOW()
		WHERE id = $1
		RETURNING last_login, updated_at;
	`
	err := conn(ctx, r.db).QueryRow(ctx, query, user.ID, at).Scan(&user.LastLogin, &user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to record login: %w", translate(err, "user"))
	}
	user.FailedLoginAttempts = 0
	user.AccountLockedUntil = nil
	return nil
}

// UpdateProfile сохраняет только поля профиля: телефон, уведомления и предпочтения
func (r *UserRepository) UpdateProfile(ctx context.Context, user *models.User) error {
	prefs, err := encodePreferences(user.Preferences)
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}
	query := `
		UPDATE users SET
			phone_number = $1,
			email_notifications = $2,
			sms_notifications = $3,
			preferences = $4,
			updated_at = NOW()
		WHERE id = $5
		RETURNING updated_at;
	`
	err = conn(ctx, r.db).QueryRow(ctx, query,
		user.PhoneNumber,
		user.EmailNotifications,
		user.SMSNotifications,
		prefs,
		user.ID,
	).Scan(&user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update user profile: %w", translate(err, "user"))
	}
	return nil
}

// UpdateRole меняет только роль пользователя
func (r *UserRepository) UpdateRole(ctx context.Context, user *models.User) error {
	query := `UPDATE users SET role = $1, updated_at = NOW() WHERE id = $2 RETURNING updated_at;`
	if err := conn(ctx, r.db).QueryRow(ctx, query, user.Role, user.ID).Scan(&user.UpdatedAt); err != nil {
		return fmt.Errorf("failed to update user role: %w", translate(err, "user"))
	}
	return nil
}

// SetActive меняет только флаг активности пользователя
func (r *UserRepository) SetActive(ctx context.Context, user *models.User) error {
	query := `UPDATE users SET is_active = $1, updated_at = NOW() WHERE id = $2 RETURNING updated_at;`
	if err := conn(ctx, r.db).QueryRow(ctx, query, user.IsActive, user.ID).Scan(&user.UpdatedAt); err != nil {
		return fmt.Errorf("failed to update user status: %w", translate(err, "user"))
	}
	return nil
}

// Delete удаляет пользователя вместе с его инцидентами, комментариями и журналом
func (r *UserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	cmdTag, err := conn(ctx, r.db).Exec(ctx, `DELETE FROM users WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("failed to delete user: %w", translate(pgx.ErrNoRows, "user"))
	}
	return nil
}

// List возвращает страницу пользователей и общее количество
func (r *UserRepository) List(ctx context.Context, page, perPage int) ([]*models.User, int, error) {
	total, err := r.Count(ctx)
	if err != nil {
		return nil, 0, err
	}

	query := `SELECT` + userColumns + ` FROM users ORDER BY created_at DESC LIMIT $1 OFFSET $2;`
	rows, err := conn(ctx, r.db).Query(ctx, query, perPage, models.Offset(page, perPage))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := make([]*models.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error list iteration: %w", err)
	}
	return users, total, nil
}

func (r *UserRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := conn(ctx, r.db).QueryRow(ctx, `SELECT COUNT(*) FROM users;`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

// ReleaseExpiredLocks снимает истекшие блокировки входа и сбрасывает счетчики
func (r *UserRepository) ReleaseExpiredLocks(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE users SET
			account_locked_until = NULL,
			failed_login_attempts = 0,
			updated_at = NOW()
		WHERE account_locked_until IS NOT NULL AND account_locked_until <= $1;
	`
	cmdTag, err := conn(ctx, r.db).Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to release expired locks: %w", err)
	}
	return cmdTag.RowsAffected(), nil
}
