package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseworks/pulse-api/internal/models"
	"github.com/pulseworks/pulse-api/internal/service"
	appErrors "github.com/pulseworks/pulse-api/pkg/errors"
)

type inviteRepoStub struct {
	byToken map[string]*models.Invite
	batches int
}

func (s *inviteRepoStub) CreateBatch(ctx context.Context, invites []models.Invite) error {
	s.batches++
	return nil
}

func (s *inviteRepoStub) GetByToken(ctx context.Context, token string) (*models.Invite, error) {
	invite, ok := s.byToken[token]
	if !ok {
		return nil, appErrors.ErrInviteNotFound
	}
	return invite, nil
}

func (s *inviteRepoStub) ListBySurvey(ctx context.Context, surveyID string) ([]models.Invite, error) {
	return nil, nil
}

func (s *inviteRepoStub) ListOpenByEmail(ctx context.Context, email string, now time.Time) ([]models.Invite, error) {
	return nil, nil
}

func newInviteHandler(repo *inviteRepoStub, surveys *surveyRepoStub) *InviteHandler {
	svc := service.NewInviteService(repo, surveys, nil, service.InviteServiceConfig{})
	return NewInviteHandler(svc)
}

func TestInviteHandlerProbe(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &inviteRepoStub{byToken: map[string]*models.Invite{
		"tok-1": {SurveyID: "survey-1", Token: "tok-1", ExpiresAt: time.Now().Add(time.Hour)},
	}}
	handler := newInviteHandler(repo, newSurveyRepoStub())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/invites/tok-1", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "token", Value: "tok-1"}}

	handler.Probe(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"valid":true`)
}

func TestInviteHandlerProbeUnknownToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newInviteHandler(&inviteRepoStub{}, newSurveyRepoStub())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/invites/nope", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "token", Value: "nope"}}

	handler.Probe(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestInviteHandlerIssue(t *testing.T) {
	gin.SetMode(gin.TestMode)
	surveys := newSurveyRepoStub()
	surveys.surveys["survey-1"] = &models.Survey{ID: "survey-1", Status: models.SurveyStatusPublished}
	repo := &inviteRepoStub{}
	handler := newInviteHandler(repo, surveys)

	payload := []byte(`{"count": 5}`)
	w := httptest.NewRecorder()
	c := adminContext(t, w, http.MethodPost, "/surveys/survey-1/invites", payload)
	c.Params = gin.Params{{Key: "id", Value: "survey-1"}}

	handler.Issue(c)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, 1, repo.batches)
}

func TestInviteHandlerMineRequiresEmail(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newInviteHandler(&inviteRepoStub{}, newSurveyRepoStub())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/invites/mine", nil)
	c.Request = req

	handler.Mine(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
