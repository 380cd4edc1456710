package service

import (
	"bytes"
	"context"
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

func newTestCategoryService(t *testing.T) (CategoryService, *mocks.MockCategoryRepository, *mocks.MockIncidentRepository) {
	ctrl := gomock.NewController(t)
	repoMock := mocks.NewMockCategoryRepository(ctrl)
	incidentMock := mocks.NewMockIncidentRepository(ctrl)
	activityMock := mocks.NewMockActivityRecorder(ctrl)
	activityMock.EXPECT().Record(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes()

	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})

	return NewCategoryService(repoMock, incidentMock, activityMock, policy.MustNew(), logger), repoMock, incidentMock
}

func TestListCategories_AnyActiveUser(t *testing.T) {
	svc, repoMock, _ := newTestCategoryService(t)
	ctx := context.Background()
	expected := []*models.Category{{ID: uuid.New(), Name: "Вода"}}

	repoMock.EXPECT().List(ctx).Return(expected, nil).Times(1)

	categories, err := svc.ListCategories(ctx, newUser(models.RoleUser))

	require.NoError(t, err)
	assert.Equal(t, expected, categories)
}

func TestCreateCategory(t *testing.T) {
	t.Run("только администратор", func(t *testing.T) {
		svc, _, _ := newTestCategoryService(t)

		_, err := svc.CreateCategory(context.Background(), newUser(models.RoleUser), CategoryInput{Name: "Пожар"})

		assert.Equal(t, apperr.KindPermission, apperr.KindOf(err))
	})

	t.Run("неверный цвет", func(t *testing.T) {
		svc, _, _ := newTestCategoryService(t)

		_, err := svc.CreateCategory(context.Background(), newUser(models.RoleAdmin), CategoryInput{Name: "Пожар", Color: "red"})

		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		assert.Equal(t, []string{"color"}, apperr.FieldsOf(err))
	})

	t.Run("дубликат имени", func(t *testing.T) {
		svc, repoMock, _ := newTestCategoryService(t)
		repoMock.EXPECT().Create(gomock.Any(), gomock.Any()).Return(apperr.Conflict("category name already exists")).Times(1)

		_, err := svc.CreateCategory(context.Background(), newUser(models.RoleAdmin), CategoryInput{Name: "Пожар"})

		assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	})

	t.Run("успех", func(t *testing.T) {
		svc, repoMock, _ := newTestCategoryService(t)
		repoMock.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil).Times(1)

		category, err := svc.CreateCategory(context.Background(), newUser(models.RoleAdmin), CategoryInput{
			Name:  "  Пожар ",
			Color: "#FF0000",
			Icon:  "fire",
		})

		require.NoError(t, err)
		assert.Equal(t, "Пожар", category.Name)
		assert.Equal(t, "#FF0000", category.Color)
	})
}

func TestUpdateCategory_EvictsIncidentCache(t *testing.T) {
	// Подготовка
	svc, repoMock, incidentMock := newTestCategoryService(t)
	ctx := context.Background()
	category := &models.Category{ID: uuid.New(), Name: "Старое"}
	affected := []uuid.UUID{uuid.New()}

	// Ожидания
	repoMock.EXPECT().GetByID(ctx, category.ID).Return(category, nil).Times(1)
	repoMock.EXPECT().Update(ctx, category).Return(nil).Times(1)
	incidentMock.EXPECT().IDsByCategory(ctx, category.ID).Return(affected, nil).Times(1)
	incidentMock.EXPECT().InvalidateIncidentCache(ctx, affected[0]).Return(nil).Times(1)

	// Действие
	updated, err := svc.UpdateCategory(ctx, newUser(models.RoleAdmin), category.ID, CategoryInput{Name: "Новое"})

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, "Новое", updated.Name)
}

func TestDeleteCategory(t *testing.T) {
	// Подготовка
	svc, repoMock, incidentMock := newTestCategoryService(t)
	ctx := context.Background()
	id := uuid.New()
	affected := []uuid.UUID{uuid.New(), uuid.New()}

	// Ожидания
	incidentMock.EXPECT().IDsByCategory(ctx, id).Return(affected, nil).Times(1)
	repoMock.EXPECT().Delete(ctx, id).Return(nil).Times(1)
	incidentMock.EXPECT().InvalidateIncidentCache(ctx, affected[0], affected[1]).Return(nil).Times(1)

	// Действие
	err := svc.DeleteCategory(ctx, newUser(models.RoleAdmin), id)

	// Проверки
	require.NoError(t, err)
}

func TestDeleteCategory_NotFound(t *testing.T) {
	svc, repoMock, incidentMock := newTestCategoryService(t)
	ctx := context.Background()
	id := uuid.New()

	incidentMock.EXPECT().IDsByCategory(ctx, id).Return(nil, nil).Times(1)
	repoMock.EXPECT().Delete(ctx, id).Return(apperr.NotFound("category not found")).Times(1)

	err := svc.DeleteCategory(ctx, newUser(models.RoleAdmin), id)

	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}
