package service

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/shenikar/incident_reporting_system/internal/apperr"
	"github.com/shenikar/incident_reporting_system/internal/models"
	"github.com/shenikar/incident_reporting_system/internal/policy"
	"github.com/shenikar/incident_reporting_system/internal/service/mocks"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newTestCommentService(t *testing.T) (CommentService, *mocks.MockCommentRepository, *mocks.MockIncidentRepository) {
	ctrl := gomock.NewController(t)
	repoMock := mocks.NewMockCommentRepository(ctrl)
	incidentMock := mocks.NewMockIncidentRepository(ctrl)
	activityMock := mocks.NewMockActivityRecorder(ctrl)
	activityMock.EXPECT().Record(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes()

	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})

	return NewCommentService(repoMock, incidentMock, activityMock, policy.MustNew(), logger), repoMock, incidentMock
}

func TestAddComment_Success(t *testing.T) {
	// Подготовка
	svc, repoMock, incidentMock := newTestCommentService(t)
	ctx := context.Background()
	owner := newUser(models.RoleUser)
	incident := newIncident(owner, models.StatusReported)

	// Ожидания
	incidentMock.EXPECT().GetByID(ctx, incident.ID).Return(incident, nil).Times(1)
	repoMock.EXPECT().Create(ctx, gomock.Any()).Return(nil).Times(1)

	// Действие
	comment, err := svc.AddComment(ctx, owner, incident.ID, "  Уже течет сильнее  ")

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, "Уже течет сильнее", comment.Content)
	assert.Equal(t, owner.ID, comment.AuthorID)
	assert.Equal(t, incident.ID, comment.IncidentID)
}

func TestAddComment_Validation(t *testing.T) {
	svc, _, _ := newTestCommentService(t)
	ctx := context.Background()
	actor := newUser(models.RoleUser)

	_, err := svc.AddComment(ctx, actor, newIncident(actor, models.StatusReported).ID, "   ")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = svc.AddComment(ctx, actor, newIncident(actor, models.StatusReported).ID, strings.Repeat("я", maxCommentLength+1))
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestAddComment_ForeignIncident(t *testing.T) {
	svc, repoMock, incidentMock := newTestCommentService(t)
	ctx := context.Background()
	incident := newIncident(newUser(models.RoleUser), models.StatusReported)

	incidentMock.EXPECT().GetByID(ctx, incident.ID).Return(incident, nil).Times(1)
	repoMock.EXPECT().Create(gomock.Any(), gomock.Any()).Times(0)

	_, err := svc.AddComment(ctx, newUser(models.RoleUser), incident.ID, "Привет")

	assert.Equal(t, apperr.KindPermission, apperr.KindOf(err))
}

func TestListComments(t *testing.T) {
	// Подготовка
	svc, repoMock, incidentMock := newTestCommentService(t)
	ctx := context.Background()
	admin := newUser(models.RoleAdmin)
	incident := newIncident(newUser(models.RoleUser), models.StatusReported)
	comments := []*models.Comment{{Content: "первый"}, {Content: "второй"}}

	// Ожидания
	incidentMock.EXPECT().GetByID(ctx, incident.ID).Return(incident, nil).Times(1)
	repoMock.EXPECT().ListByIncident(ctx, incident.ID, 1, models.DefaultPerPage).Return(comments, 2, nil).Times(1)

	// Действие
	page, err := svc.ListComments(ctx, admin, incident.ID, 0, 0)

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, "первый", page.Items[0].Content)
}

func TestListComments_MissingIncident(t *testing.T) {
	svc, _, incidentMock := newTestCommentService(t)
	ctx := context.Background()
	incident := newIncident(newUser(models.RoleUser), models.StatusReported)

	incidentMock.EXPECT().GetByID(ctx, incident.ID).Return(nil, apperr.NotFound("incident not found")).Times(1)

	_, err := svc.ListComments(ctx, newUser(models.RoleAdmin), incident.ID, 1, 10)

	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}
