package service

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/incident_reporting_system/internal/apperr"
	"github.com/shenikar/incident_reporting_system/internal/auth"
	"github.com/shenikar/incident_reporting_system/internal/config"
	"github.com/shenikar/incident_reporting_system/internal/models"
	"github.com/shenikar/incident_reporting_system/internal/policy"
	"github.com/shenikar/incident_reporting_system/internal/service/mocks"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/crypto/bcrypt"
)

func newTestUserService(t *testing.T) (*userService, *mocks.MockUserRepository, *mocks.MockIncidentRepository) {
	ctrl := gomock.NewController(t)
	repoMock := mocks.NewMockUserRepository(ctrl)
	incidentMock := mocks.NewMockIncidentRepository(ctrl)
	activityMock := mocks.NewMockActivityRecorder(ctrl)
	activityMock.EXPECT().Record(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes()

	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})

	cfg := &config.Config{
		MaxFailedLogins: 3,
		LockoutDuration: 15 * time.Minute,
	}

	svc := NewUserService(
		repoMock,
		incidentMock,
		auth.NewManager("test-secret", time.Hour),
		auth.NewMemoryRevocationStore(),
		activityMock,
		policy.MustNew(),
		logger,
		cfg,
	).(*userService)
	svc.now = func() time.Time { return fixedNow }
	return svc, repoMock, incidentMock
}

func userWithPassword(t *testing.T, password string) *models.User {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	u := newUser(models.RoleUser)
	u.PasswordHash = string(hash)
	return u
}

func TestRegister_Success(t *testing.T) {
	// Подготовка
	svc, repoMock, _ := newTestUserService(t)
	ctx := context.Background()

	// Ожидания
	repoMock.EXPECT().
		Create(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, u *models.User) error {
			u.ID = uuid.New()
			return nil
		}).
		Times(1)

	// Действие
	result, err := svc.Register(ctx, RegisterInput{
		Username: "ivan",
		Email:    "  Ivan@Example.COM ",
		Password: "supersecret",
	})

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, "ivan@example.com", result.User.Email)
	assert.Equal(t, models.RoleUser, result.User.Role)
	assert.True(t, result.User.IsActive)
	assert.NotEqual(t, "supersecret", result.User.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(result.User.PasswordHash), []byte("supersecret")))
	assert.NotEmpty(t, result.Token)
	assert.True(t, result.ExpiresAt.After(time.Now()))
}

func TestRegister_Validation(t *testing.T) {
	testCases := []struct {
		name  string
		input RegisterInput
		field string
	}{
		{"короткое имя", RegisterInput{Username: "ab", Email: "a@b.co", Password: "12345678"}, "username"},
		{"неверный email", RegisterInput{Username: "abc", Email: "not-an-email", Password: "12345678"}, "email"},
		{"короткий пароль", RegisterInput{Username: "abc", Email: "a@b.co", Password: "1234567"}, "password"},
		{"длинный телефон", RegisterInput{Username: "abc", Email: "a@b.co", Password: "12345678", PhoneNumber: "+1234567890123456789012"}, "phone_number"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			svc, _, _ := newTestUserService(t)

			_, err := svc.Register(context.Background(), tc.input)

			require.Error(t, err)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
			assert.Equal(t, []string{tc.field}, apperr.FieldsOf(err))
		})
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc, repoMock, _ := newTestUserService(t)
	ctx := context.Background()

	repoMock.EXPECT().Create(ctx, gomock.Any()).Return(apperr.Conflict("email already registered")).Times(1)

	_, err := svc.Register(ctx, RegisterInput{Username: "ivan", Email: "ivan@example.com", Password: "supersecret"})

	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestLogin_Success(t *testing.T) {
	// Подготовка
	svc, repoMock, _ := newTestUserService(t)
	ctx := context.Background()
	user := userWithPassword(t, "supersecret")
	user.FailedLoginAttempts = 2

	// Ожидания
	repoMock.EXPECT().GetByEmail(ctx, user.Email).Return(user, nil).Times(1)
	repoMock.EXPECT().
		RecordLogin(ctx, user, fixedNow).
		DoAndReturn(func(_ context.Context, u *models.User, at time.Time) error {
			u.FailedLoginAttempts = 0
			u.LastLogin = &at
			return nil
		}).
		Times(1)

	// Действие
	result, err := svc.Login(ctx, user.Email, "supersecret")

	// Проверки
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
	assert.Equal(t, user.ID, result.User.ID)
}

func TestLogin_UnknownEmail(t *testing.T) {
	svc, repoMock, _ := newTestUserService(t)
	ctx := context.Background()

	repoMock.EXPECT().GetByEmail(ctx, "ghost@example.com").Return(nil, apperr.NotFound("user not found")).Times(1)

	_, err := svc.Login(ctx, "Ghost@Example.com", "whatever1")

	require.Error(t, err)
	assert.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(err))
	assert.Equal(t, "invalid email or password", apperr.PublicMessage(err))
}

func TestLogin_WrongPasswordLocksAccount(t *testing.T) {
	// Подготовка
	svc, repoMock, _ := newTestUserService(t)
	ctx := context.Background()
	user := userWithPassword(t, "supersecret")
	user.FailedLoginAttempts = 2

	// Ожидания
	lockUntil := fixedNow.Add(15 * time.Minute)
	repoMock.EXPECT().GetByEmail(ctx, user.Email).Return(user, nil).Times(1)
	repoMock.EXPECT().
		RecordFailedLogin(ctx, user, 3, fixedNow, lockUntil).
		DoAndReturn(func(_ context.Context, u *models.User, _ int, _, until time.Time) error {
			u.FailedLoginAttempts = 3
			u.AccountLockedUntil = &until
			return nil
		}).
		Times(1)

	// Действие
	_, err := svc.Login(ctx, user.Email, "wrong-password")

	// Проверки
	require.Error(t, err)
	assert.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(err))
	assert.Equal(t, 3, user.FailedLoginAttempts)
	require.NotNil(t, user.AccountLockedUntil)
	assert.Equal(t, fixedNow.Add(15*time.Minute), *user.AccountLockedUntil)
}

func TestLogin_LockedAccount(t *testing.T) {
	svc, repoMock, _ := newTestUserService(t)
	ctx := context.Background()
	user := userWithPassword(t, "supersecret")
	lockedUntil := fixedNow.Add(time.Minute)
	user.AccountLockedUntil = &lockedUntil

	repoMock.EXPECT().GetByEmail(ctx, user.Email).Return(user, nil).Times(1)
	repoMock.EXPECT().RecordLogin(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
	repoMock.EXPECT().RecordFailedLogin(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	// Даже правильный пароль не проходит
	_, err := svc.Login(ctx, user.Email, "supersecret")

	require.Error(t, err)
	assert.Equal(t, apperr.KindPermission, apperr.KindOf(err))
}

func TestLogin_ExpiredLockIsCleared(t *testing.T) {
	svc, repoMock, _ := newTestUserService(t)
	ctx := context.Background()
	user := userWithPassword(t, "supersecret")
	lockedUntil := fixedNow.Add(-time.Minute)
	user.AccountLockedUntil = &lockedUntil
	user.FailedLoginAttempts = 3

	repoMock.EXPECT().GetByEmail(ctx, user.Email).Return(user, nil).Times(1)
	repoMock.EXPECT().
		RecordLogin(ctx, user, fixedNow).
		DoAndReturn(func(_ context.Context, u *models.User, at time.Time) error {
			u.FailedLoginAttempts = 0
			u.AccountLockedUntil = nil
			u.LastLogin = &at
			return nil
		}).
		Times(1)

	_, err := svc.Login(ctx, user.Email, "supersecret")

	require.NoError(t, err)
	assert.Nil(t, user.AccountLockedUntil)
	assert.Equal(t, 0, user.FailedLoginAttempts)
}

// Неудачный вход пишет только счетчик попыток. Роль и активность, измененные
// администратором между чтением и записью, не перетираются устаревшей копией.
func TestLogin_WrongPasswordWritesOnlyLoginState(t *testing.T) {
	// Подготовка
	svc, repoMock, _ := newTestUserService(t)
	ctx := context.Background()
	user := userWithPassword(t, "supersecret")
	user.FailedLoginAttempts = 0

	// Ожидания
	repoMock.EXPECT().GetByEmail(ctx, user.Email).Return(user, nil).Times(1)
	repoMock.EXPECT().
		RecordFailedLogin(ctx, user, 3, fixedNow, fixedNow.Add(15*time.Minute)).
		DoAndReturn(func(_ context.Context, u *models.User, _ int, _, _ time.Time) error {
			// параллельный запрос уже успел записать две неудачи
			u.FailedLoginAttempts = 3
			return nil
		}).
		Times(1)
	repoMock.EXPECT().UpdateRole(gomock.Any(), gomock.Any()).Times(0)
	repoMock.EXPECT().SetActive(gomock.Any(), gomock.Any()).Times(0)
	repoMock.EXPECT().UpdateProfile(gomock.Any(), gomock.Any()).Times(0)

	// Действие
	_, err := svc.Login(ctx, user.Email, "wrong-password")

	// Проверки
	assert.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(err))
	assert.Equal(t, 3, user.FailedLoginAttempts, "счетчик берется из базы, а не считается в памяти")
}

func TestLogin_DeactivatedAccount(t *testing.T) {
	svc, repoMock, _ := newTestUserService(t)
	ctx := context.Background()
	user := userWithPassword(t, "supersecret")
	user.IsActive = false

	repoMock.EXPECT().GetByEmail(ctx, user.Email).Return(user, nil).Times(1)

	_, err := svc.Login(ctx, user.Email, "supersecret")

	assert.Equal(t, apperr.KindPermission, apperr.KindOf(err))
}

func TestLogoutRevokesToken(t *testing.T) {
	// Подготовка
	svc, repoMock, _ := newTestUserService(t)
	ctx := context.Background()
	user := newUser(models.RoleUser)
	token, err := svc.tokens.Issue(user.ID, string(user.Role))
	require.NoError(t, err)

	// Ожидания
	repoMock.EXPECT().GetByID(ctx, user.ID).Return(user, nil).Times(1)

	// Действие и проверки
	authenticated, err := svc.Authenticate(ctx, token.Value)
	require.NoError(t, err)
	assert.Equal(t, user.ID, authenticated.ID)

	require.NoError(t, svc.Logout(ctx, user, token.Value))

	_, err = svc.Authenticate(ctx, token.Value)
	require.Error(t, err)
	assert.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(err))
}

func TestAuthenticate_Failures(t *testing.T) {
	t.Run("мусорный токен", func(t *testing.T) {
		svc, _, _ := newTestUserService(t)
		_, err := svc.Authenticate(context.Background(), "not-a-token")
		assert.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(err))
	})

	t.Run("пользователь удален", func(t *testing.T) {
		svc, repoMock, _ := newTestUserService(t)
		id := uuid.New()
		token, err := svc.tokens.Issue(id, "user")
		require.NoError(t, err)
		repoMock.EXPECT().GetByID(gomock.Any(), id).Return(nil, apperr.NotFound("user not found")).Times(1)

		_, err = svc.Authenticate(context.Background(), token.Value)
		assert.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(err))
	})

	t.Run("пользователь деактивирован", func(t *testing.T) {
		svc, repoMock, _ := newTestUserService(t)
		user := newUser(models.RoleUser)
		user.IsActive = false
		token, err := svc.tokens.Issue(user.ID, "user")
		require.NoError(t, err)
		repoMock.EXPECT().GetByID(gomock.Any(), user.ID).Return(user, nil).Times(1)

		_, err = svc.Authenticate(context.Background(), token.Value)
		assert.Equal(t, apperr.KindPermission, apperr.KindOf(err))
	})
}

func TestUpdateProfile(t *testing.T) {
	t.Run("sms без телефона", func(t *testing.T) {
		svc, repoMock, _ := newTestUserService(t)
		user := newUser(models.RoleUser)
		on := true
		repoMock.EXPECT().GetByID(gomock.Any(), user.ID).Return(user, nil).Times(1)
		repoMock.EXPECT().UpdateProfile(gomock.Any(), gomock.Any()).Times(0)

		_, err := svc.UpdateProfile(context.Background(), user, ProfileUpdate{SMSNotifications: &on})

		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	})

	t.Run("телефон и предпочтения", func(t *testing.T) {
		svc, repoMock, _ := newTestUserService(t)
		user := newUser(models.RoleUser)
		on := true
		phone := " +79990000000 "
		repoMock.EXPECT().GetByID(gomock.Any(), user.ID).Return(user, nil).Times(1)
		repoMock.EXPECT().UpdateProfile(gomock.Any(), user).Return(nil).Times(1)

		updated, err := svc.UpdateProfile(context.Background(), user, ProfileUpdate{
			PhoneNumber:      &phone,
			SMSNotifications: &on,
			Preferences:      map[string]any{"theme": "dark"},
		})

		require.NoError(t, err)
		assert.Equal(t, "+79990000000", updated.PhoneNumber)
		assert.True(t, updated.SMSNotifications)
		assert.Equal(t, "dark", updated.Preferences["theme"])
	})
}

func TestListUsers_RequiresAdmin(t *testing.T) {
	svc, _, _ := newTestUserService(t)

	_, err := svc.ListUsers(context.Background(), newUser(models.RoleUser), 1, 10)

	assert.Equal(t, apperr.KindPermission, apperr.KindOf(err))
}

func TestUpdateRole(t *testing.T) {
	t.Run("администратор не может понизить себя", func(t *testing.T) {
		svc, _, _ := newTestUserService(t)
		admin := newUser(models.RoleAdmin)

		_, err := svc.UpdateRole(context.Background(), admin, admin.ID, "user")

		assert.Equal(t, apperr.KindPermission, apperr.KindOf(err))
	})

	t.Run("неизвестная роль", func(t *testing.T) {
		svc, _, _ := newTestUserService(t)

		_, err := svc.UpdateRole(context.Background(), newUser(models.RoleAdmin), uuid.New(), "superuser")

		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	})

	t.Run("успешное повышение", func(t *testing.T) {
		svc, repoMock, _ := newTestUserService(t)
		target := newUser(models.RoleUser)
		repoMock.EXPECT().GetByID(gomock.Any(), target.ID).Return(target, nil).Times(1)
		repoMock.EXPECT().UpdateRole(gomock.Any(), target).Return(nil).Times(1)

		updated, err := svc.UpdateRole(context.Background(), newUser(models.RoleAdmin), target.ID, "ADMIN")

		require.NoError(t, err)
		assert.Equal(t, models.RoleAdmin, updated.Role)
	})
}

func TestSetActive_CannotDeactivateSelf(t *testing.T) {
	svc, _, _ := newTestUserService(t)
	admin := newUser(models.RoleAdmin)

	_, err := svc.SetActive(context.Background(), admin, admin.ID, false)

	assert.Equal(t, apperr.KindPermission, apperr.KindOf(err))
}

func TestDeleteUser_InvalidatesIncidentCache(t *testing.T) {
	// Подготовка
	svc, repoMock, incidentMock := newTestUserService(t)
	ctx := context.Background()
	target := newUser(models.RoleUser)
	affected := []uuid.UUID{uuid.New(), uuid.New()}

	// Ожидания
	repoMock.EXPECT().GetByID(ctx, target.ID).Return(target, nil).Times(1)
	incidentMock.EXPECT().IDsByReporter(ctx, target.ID).Return(affected, nil).Times(1)
	repoMock.EXPECT().Delete(ctx, target.ID).Return(nil).Times(1)
	incidentMock.EXPECT().InvalidateIncidentCache(ctx, affected[0], affected[1]).Return(nil).Times(1)

	// Действие
	err := svc.DeleteUser(ctx, newUser(models.RoleAdmin), target.ID)

	// Проверки
	require.NoError(t, err)
}

func TestReleaseExpiredLocks(t *testing.T) {
	svc, repoMock, _ := newTestUserService(t)
	ctx := context.Background()

	repoMock.EXPECT().ReleaseExpiredLocks(ctx, fixedNow).Return(int64(2), nil).Times(1)

	released, err := svc.ReleaseExpiredLocks(ctx)

	require.NoError(t, err)
	assert.Equal(t, int64(2), released)
}
