package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shenikar/incident_reporting_system/internal/apperr"
	"github.com/shenikar/incident_reporting_system/internal/auth"
	"github.com/shenikar/incident_reporting_system/internal/config"
	"github.com/shenikar/incident_reporting_system/internal/models"
	"github.com/shenikar/incident_reporting_system/internal/policy"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

//go:generate mockgen -source=user.go -destination=../handler/http/v1/mocks/user_service_mock.go -package=mocks

const (
	minPasswordLength = 8
	minUsernameLength = 3
	maxUsernameLength = 100
	maxPhoneLength    = 20
)

// RegisterInput - данные регистрации
type RegisterInput struct {
	Username    string
	Email       string
	Password    string
	PhoneNumber string
}

// ProfileUpdate - изменение собственного профиля. nil - поле не меняется.
type ProfileUpdate struct {
	PhoneNumber        *string
	EmailNotifications *bool
	SMSNotifications   *bool
	Preferences        map[string]any
}

// AuthResult - пользователь и выпущенный токен доступа
type AuthResult struct {
	User      *models.User
	Token     string
	ExpiresAt time.Time
}

// UserService определяет контракт для учетных записей, входа и администрирования пользователей
type UserService interface {
	Register(ctx context.Context, input RegisterInput) (*AuthResult, error)
	Login(ctx context.Context, email, password string) (*AuthResult, error)
	Logout(ctx context.Context, actor *models.User, token string) error
	Authenticate(ctx context.Context, token string) (*models.User, error)
	UpdateProfile(ctx context.Context, actor *models.User, update ProfileUpdate) (*models.User, error)
	ListUsers(ctx context.Context, actor *models.User, page, perPage int) (*models.Page[*models.User], error)
	UpdateRole(ctx context.Context, actor *models.User, targetID uuid.UUID, role string) (*models.User, error)
	SetActive(ctx context.Context, actor *models.User, targetID uuid.UUID, active bool) (*models.User, error)
	DeleteUser(ctx context.Context, actor *models.User, targetID uuid.UUID) error
	ReleaseExpiredLocks(ctx context.Context) (int64, error)
}

type userService struct {
	repo      UserRepository
	incidents IncidentRepository
	tokens    *auth.Manager
	revoked   auth.RevocationStore
	activity  ActivityRecorder
	policy    *policy.Policy
	logger    *logrus.Logger
	cfg       *config.Config
	validate  *validator.Validate
	now       func() time.Time
}

func NewUserService(
	repo UserRepository,
	incidents IncidentRepository,
	tokens *auth.Manager,
	revoked auth.RevocationStore,
	activity ActivityRecorder,
	p *policy.Policy,
	logger *logrus.Logger,
	cfg *config.Config,
) UserService {
	return &userService{
		repo:      repo,
		incidents: incidents,
		tokens:    tokens,
		revoked:   revoked,
		activity:  activity,
		policy:    p,
		logger:    logger,
		cfg:       cfg,
		validate:  validator.New(),
		now:       time.Now,
	}
}

func (s *userService) validateRegistration(input RegisterInput) error {
	if n := len([]rune(input.Username)); n < minUsernameLength || n > maxUsernameLength {
		return apperr.Validation("username must be between %d and %d characters", minUsernameLength, maxUsernameLength).WithFields("username")
	}
	if err := s.validate.Var(input.Email, "required,email"); err != nil {
		return apperr.Validation("invalid email address").WithFields("email")
	}
	if len(input.Password) < minPasswordLength {
		return apperr.Validation("password must be at least %d characters", minPasswordLength).WithFields("password")
	}
	if len(input.PhoneNumber) > maxPhoneLength {
		return apperr.Validation("phone number must be at most %d characters", maxPhoneLength).WithFields("phone_number")
	}
	return nil
}

// Register создает учетную запись с ролью user и сразу выпускает токен
func (s *userService) Register(ctx context.Context, input RegisterInput) (*AuthResult, error) {
	input.Username = strings.TrimSpace(input.Username)
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	input.PhoneNumber = strings.TrimSpace(input.PhoneNumber)

	log := s.logger.WithFields(logrus.Fields{
		"service":  "user",
		"method":   "Register",
		"username": input.Username,
	})
	log.Info("Attempting to register a new user")

	if err := s.validateRegistration(input); err != nil {
		log.WithError(err).Warn("Registration validation failed")
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		log.WithError(err).Error("Failed to hash password")
		return nil, fmt.Errorf("service: could not hash password: %w", err)
	}

	user := &models.User{
		Username:           input.Username,
		Email:              input.Email,
		PasswordHash:       string(hash),
		Role:               models.RoleUser,
		IsActive:           true,
		PhoneNumber:        input.PhoneNumber,
		EmailNotifications: true,
		Preferences:        map[string]any{},
	}
	if err := s.repo.Create(ctx, user); err != nil {
		log.WithError(err).Warn("Failed to create user in repository")
		return nil, fmt.Errorf("service: could not register user: %w", err)
	}

	token, err := s.tokens.Issue(user.ID, string(user.Role))
	if err != nil {
		log.WithError(err).Error("Failed to issue token")
		return nil, fmt.Errorf("service: could not issue token: %w", err)
	}

	s.activity.Record(ctx, user.ID, models.ActivityRegister, "user registered")
	log.WithField("user_id", user.ID).Info("User registered successfully")
	return &AuthResult{User: user, Token: token.Value, ExpiresAt: token.ExpiresAt}, nil
}

var errBadCredentials = apperr.Unauthenticated("invalid email or password")

// Login проверяет пароль, ведет счетчик неудачных попыток и блокирует вход
// после MaxFailedLogins ошибок подряд
func (s *userService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	log := s.logger.WithFields(logrus.Fields{
		"service": "user",
		"method":  "Login",
		"email":   email,
	})
	log.Info("Login attempt")

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			log.Warn("Login with unknown email")
			return nil, errBadCredentials
		}
		log.WithError(err).Error("Failed to get user by email")
		return nil, fmt.Errorf("service: could not login: %w", err)
	}
	log = log.WithField("user_id", user.ID)

	now := s.now()
	if !user.IsActive {
		log.Warn("Login to deactivated account")
		return nil, apperr.Permission("account is deactivated")
	}
	if user.IsLocked(now) {
		log.Warn("Login to locked account")
		return nil, apperr.Permission("account is locked until %s", user.AccountLockedUntil.UTC().Format(time.RFC3339))
	}

	// счетчик и блокировку пересчитывает база: прочитанная выше строка могла
	// устареть, а роль и активность в этом пути не пишутся. Истекшую блокировку,
	// которую фоновая задача еще не сняла, запросы тоже сбрасывают.
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		if err := s.repo.RecordFailedLogin(ctx, user, s.cfg.MaxFailedLogins, now, now.Add(s.cfg.LockoutDuration)); err != nil {
			log.WithError(err).Error("Failed to store failed login attempt")
			return nil, fmt.Errorf("service: could not login: %w", err)
		}
		if user.IsLocked(now) {
			log.WithField("locked_until", *user.AccountLockedUntil).Warn("Account locked after repeated failed logins")
		}
		s.activity.Record(ctx, user.ID, models.ActivityLoginFailed,
			fmt.Sprintf("failed login attempt %d", user.FailedLoginAttempts))
		log.Warn("Wrong password")
		return nil, errBadCredentials
	}

	if err := s.repo.RecordLogin(ctx, user, now); err != nil {
		log.WithError(err).Error("Failed to store login state")
		return nil, fmt.Errorf("service: could not login: %w", err)
	}

	token, err := s.tokens.Issue(user.ID, string(user.Role))
	if err != nil {
		log.WithError(err).Error("Failed to issue token")
		return nil, fmt.Errorf("service: could not issue token: %w", err)
	}

	s.activity.Record(ctx, user.ID, models.ActivityLogin, "user logged in")
	log.Info("User logged in successfully")
	return &AuthResult{User: user, Token: token.Value, ExpiresAt: token.ExpiresAt}, nil
}

// Logout отзывает токен до истечения его срока
func (s *userService) Logout(ctx context.Context, actor *models.User, token string) error {
	log := s.logger.WithFields(logrus.Fields{
		"service": "user",
		"method":  "Logout",
		"user_id": actor.ID,
	})

	claims, err := s.tokens.Parse(token)
	if err != nil {
		log.WithError(err).Warn("Logout with invalid token")
		return apperr.Unauthenticated("invalid token")
	}
	if err := s.revoked.Revoke(ctx, claims.ID, claims.Expiry()); err != nil {
		log.WithError(err).Error("Failed to revoke token")
		return fmt.Errorf("service: could not logout: %w", err)
	}

	s.activity.Record(ctx, actor.ID, models.ActivityLogout, "user logged out")
	log.Info("User logged out")
	return nil
}

// Authenticate проверяет токен и возвращает активного пользователя
func (s *userService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, apperr.Unauthenticated("invalid or expired token")
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, apperr.Unauthenticated("invalid or expired token")
	}

	revoked, err := s.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"service": "user",
			"method":  "Authenticate",
			"user_id": userID,
		}).WithError(err).Error("Failed to check token revocation")
		return nil, fmt.Errorf("service: could not authenticate: %w", err)
	}
	if revoked {
		return nil, apperr.Unauthenticated("token has been revoked")
	}

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.Unauthenticated("user no longer exists")
		}
		return nil, fmt.Errorf("service: could not authenticate: %w", err)
	}
	if !user.IsActive {
		return nil, apperr.Permission("account is deactivated")
	}
	return user, nil
}

// UpdateProfile меняет телефон, настройки уведомлений и произвольные предпочтения
func (s *userService) UpdateProfile(ctx context.Context, actor *models.User, update ProfileUpdate) (*models.User, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service": "user",
		"method":  "UpdateProfile",
		"user_id": actor.ID,
	})
	log.Info("Attempting to update profile")

	user, err := s.repo.GetByID(ctx, actor.ID)
	if err != nil {
		log.WithError(err).Error("Failed to load user")
		return nil, fmt.Errorf("service: could not update profile: %w", err)
	}

	if update.PhoneNumber != nil {
		phone := strings.TrimSpace(*update.PhoneNumber)
		if len(phone) > maxPhoneLength {
			return nil, apperr.Validation("phone number must be at most %d characters", maxPhoneLength).WithFields("phone_number")
		}
		user.PhoneNumber = phone
	}
	if update.EmailNotifications != nil {
		user.EmailNotifications = *update.EmailNotifications
	}
	if update.SMSNotifications != nil {
		user.SMSNotifications = *update.SMSNotifications
	}
	if update.Preferences != nil {
		user.Preferences = update.Preferences
	}
	if user.SMSNotifications && user.PhoneNumber == "" {
		return nil, apperr.Validation("phone number is required for sms notifications").WithFields("phone_number")
	}

	if err := s.repo.UpdateProfile(ctx, user); err != nil {
		log.WithError(err).Error("Failed to update user in repository")
		return nil, fmt.Errorf("service: could not update profile: %w", err)
	}

	s.activity.Record(ctx, user.ID, models.ActivityProfileUpdated, "profile updated")
	log.Info("Profile updated successfully")
	return user, nil
}

// ListUsers возвращает страницу пользователей (только для администратора)
func (s *userService) ListUsers(ctx context.Context, actor *models.User, page, perPage int) (*models.Page[*models.User], error) {
	page, perPage = models.NormalizePage(page, perPage)
	log := s.logger.WithFields(logrus.Fields{
		"service":  "user",
		"method":   "ListUsers",
		"page":     page,
		"per_page": perPage,
	})

	if err := s.policy.CheckUserManage(actor); err != nil {
		log.WithError(err).Warn("User listing denied")
		return nil, err
	}

	users, total, err := s.repo.List(ctx, page, perPage)
	if err != nil {
		log.WithError(err).Error("Failed to list users from repository")
		return nil, fmt.Errorf("service: could not list users: %w", err)
	}
	return models.NewPage(users, total, page, perPage), nil
}

// UpdateRole меняет роль пользователя. Администратор не может снять роль с себя.
func (s *userService) UpdateRole(ctx context.Context, actor *models.User, targetID uuid.UUID, role string) (*models.User, error) {
	newRole := models.Role(strings.ToLower(strings.TrimSpace(role)))
	log := s.logger.WithFields(logrus.Fields{
		"service":   "user",
		"method":    "UpdateRole",
		"target_id": targetID,
		"role":      newRole,
	})
	log.Info("Attempting to change user role")

	if err := s.policy.CheckUserMutation(actor, targetID, policy.UserChange{Role: &newRole}); err != nil {
		log.WithError(err).Warn("Role change denied")
		return nil, err
	}
	if !newRole.Valid() {
		return nil, apperr.Validation("invalid role %q, must be one of: user, admin", role).WithFields("role")
	}

	user, err := s.repo.GetByID(ctx, targetID)
	if err != nil {
		log.WithError(err).Warn("Failed to load target user")
		return nil, fmt.Errorf("service: could not change role: %w", err)
	}
	oldRole := user.Role
	user.Role = newRole
	if err := s.repo.UpdateRole(ctx, user); err != nil {
		log.WithError(err).Error("Failed to update user role")
		return nil, fmt.Errorf("service: could not change role: %w", err)
	}

	s.activity.Record(ctx, actor.ID, models.ActivityRoleChanged,
		fmt.Sprintf("changed role of %s from %s to %s", user.Username, oldRole, newRole))
	log.Info("User role changed successfully")
	return user, nil
}

// SetActive активирует или деактивирует пользователя. Деактивировать себя нельзя.
func (s *userService) SetActive(ctx context.Context, actor *models.User, targetID uuid.UUID, active bool) (*models.User, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":   "user",
		"method":    "SetActive",
		"target_id": targetID,
		"active":    active,
	})
	log.Info("Attempting to change user status")

	if err := s.policy.CheckUserMutation(actor, targetID, policy.UserChange{IsActive: &active}); err != nil {
		log.WithError(err).Warn("User status change denied")
		return nil, err
	}

	user, err := s.repo.GetByID(ctx, targetID)
	if err != nil {
		log.WithError(err).Warn("Failed to load target user")
		return nil, fmt.Errorf("service: could not change user status: %w", err)
	}
	user.IsActive = active
	if err := s.repo.SetActive(ctx, user); err != nil {
		log.WithError(err).Error("Failed to update user status")
		return nil, fmt.Errorf("service: could not change user status: %w", err)
	}

	state := "deactivated"
	if active {
		state = "activated"
	}
	s.activity.Record(ctx, actor.ID, models.ActivityUserStatusChanged, fmt.Sprintf("%s user %s", state, user.Username))
	log.Info("User status changed successfully")
	return user, nil
}

// DeleteUser удаляет пользователя вместе с его инцидентами
func (s *userService) DeleteUser(ctx context.Context, actor *models.User, targetID uuid.UUID) error {
	log := s.logger.WithFields(logrus.Fields{
		"service":   "user",
		"method":    "DeleteUser",
		"target_id": targetID,
	})
	log.Info("Attempting to delete user")

	if err := s.policy.CheckUserMutation(actor, targetID, policy.UserChange{Delete: true}); err != nil {
		log.WithError(err).Warn("User deletion denied")
		return err
	}

	user, err := s.repo.GetByID(ctx, targetID)
	if err != nil {
		log.WithError(err).Warn("Failed to load target user")
		return fmt.Errorf("service: could not delete user: %w", err)
	}

	affected, err := s.incidents.IDsByReporter(ctx, targetID)
	if err != nil {
		log.WithError(err).Error("Failed to collect user incidents")
		return fmt.Errorf("service: could not delete user: %w", err)
	}

	if err := s.repo.Delete(ctx, targetID); err != nil {
		log.WithError(err).Error("Failed to delete user in repository")
		return fmt.Errorf("service: could not delete user: %w", err)
	}

	if err := s.incidents.InvalidateIncidentCache(ctx, affected...); err != nil {
		log.WithError(err).Warn("Failed to invalidate incident cache")
	}
	s.activity.Record(ctx, actor.ID, models.ActivityUserDeleted, fmt.Sprintf("deleted user %s", user.Username))
	log.Info("User deleted successfully")
	return nil
}

// ReleaseExpiredLocks снимает истекшие блокировки входа; вызывается планировщиком
func (s *userService) ReleaseExpiredLocks(ctx context.Context) (int64, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service": "user",
		"method":  "ReleaseExpiredLocks",
	})

	released, err := s.repo.ReleaseExpiredLocks(ctx, s.now())
	if err != nil {
		log.WithError(err).Error("Failed to release expired locks")
		return 0, fmt.Errorf("service: could not release locks: %w", err)
	}
	if released > 0 {
		log.WithField("released", released).Info("Expired account locks released")
	}
	return released, nil
}
