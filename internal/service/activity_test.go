package service

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shenikar/incident_reporting_system/internal/apperr"
	"github.com/shenikar/incident_reporting_system/internal/models"
	"github.com/shenikar/incident_reporting_system/internal/policy"
	"github.com/shenikar/incident_reporting_system/internal/service/mocks"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newTestActivityService(t *testing.T) (ActivityService, *mocks.MockActivityRepository) {
	ctrl := gomock.NewController(t)
	repoMock := mocks.NewMockActivityRepository(ctrl)

	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})

	return NewActivityService(repoMock, policy.MustNew(), logger), repoMock
}

func TestRecord_StoresClientIP(t *testing.T) {
	// Подготовка
	svc, repoMock := newTestActivityService(t)
	ctx := WithClientIP(context.Background(), "10.0.0.7")
	userID := uuid.New()

	// Ожидания
	repoMock.EXPECT().
		Create(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, a *models.Activity) error {
			assert.Equal(t, userID, a.UserID)
			assert.Equal(t, models.ActivityLogin, a.Type)
			assert.Equal(t, "10.0.0.7", a.IPAddress)
			return nil
		}).
		Times(1)

	// Действие
	svc.Record(ctx, userID, models.ActivityLogin, "user logged in")
}

func TestRecord_SwallowsErrors(t *testing.T) {
	svc, repoMock := newTestActivityService(t)

	repoMock.EXPECT().Create(gomock.Any(), gomock.Any()).Return(errors.New("db down")).Times(1)

	assert.NotPanics(t, func() {
		svc.Record(context.Background(), uuid.New(), models.ActivityLogout, "user logged out")
	})
}

func TestClientIP_Empty(t *testing.T) {
	assert.Equal(t, "", ClientIP(context.Background()))
}

func TestListActivities(t *testing.T) {
	t.Run("пользователь без фильтра видит только свой журнал", func(t *testing.T) {
		svc, repoMock := newTestActivityService(t)
		actor := newUser(models.RoleUser)
		repoMock.EXPECT().
			List(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, f models.ActivityFilter) ([]*models.Activity, int, error) {
				require.NotNil(t, f.UserID)
				assert.Equal(t, actor.ID, *f.UserID)
				return nil, 0, nil
			}).
			Times(1)

		_, err := svc.ListActivities(context.Background(), actor, nil, 1, 10)
		require.NoError(t, err)
	})

	t.Run("чужой журнал недоступен", func(t *testing.T) {
		svc, _ := newTestActivityService(t)
		other := uuid.New()

		_, err := svc.ListActivities(context.Background(), newUser(models.RoleUser), &other, 1, 10)
		assert.Equal(t, apperr.KindPermission, apperr.KindOf(err))
	})

	t.Run("администратор видит весь журнал", func(t *testing.T) {
		svc, repoMock := newTestActivityService(t)
		repoMock.EXPECT().
			List(gomock.Any(), models.ActivityFilter{Page: 2, PerPage: 5}).
			Return([]*models.Activity{{ID: 1}}, 6, nil).
			Times(1)

		page, err := svc.ListActivities(context.Background(), newUser(models.RoleAdmin), nil, 2, 5)
		require.NoError(t, err)
		assert.Equal(t, 2, page.Pages)
	})
}
