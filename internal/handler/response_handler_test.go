package handler

import (
	"bytes"
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseworks/pulse-api/internal/models"
	"github.com/pulseworks/pulse-api/internal/repository"
	"github.com/pulseworks/pulse-api/internal/service"
	appErrors "github.com/pulseworks/pulse-api/pkg/errors"
)

type responseRepoStub struct {
	created   []*models.Response
	duplicate bool
}

func (s *responseRepoStub) Create(ctx context.Context, response *models.Response, claim *repository.InviteClaim) error {
	response.ID = "resp-1"
	s.created = append(s.created, response)
	return nil
}

func (s *responseRepoStub) ExistsForIdentity(ctx context.Context, surveyID, identity string) (bool, error) {
	return s.duplicate, nil
}

func (s *responseRepoStub) GetForIdentity(ctx context.Context, surveyID, identity string) (*models.Response, error) {
	return nil, sql.ErrNoRows
}

func (s *responseRepoStub) ListBySurvey(ctx context.Context, surveyID string, filter repository.ResponseFilter) ([]models.Response, error) {
	return nil, nil
}

func (s *responseRepoStub) GetAnswer(ctx context.Context, id string) (*models.Answer, error) {
	return nil, sql.ErrNoRows
}

func (s *responseRepoStub) UpdateAnswerModeration(ctx context.Context, id string, status models.ModerationStatus, flags models.AnswerFlags) error {
	return nil
}

type inviteTokenRepoStub struct{}

func (inviteTokenRepoStub) GetByToken(ctx context.Context, token string) (*models.Invite, error) {
	return nil, appErrors.ErrInviteNotFound
}

func activeSurveyRepo() *surveyRepoStub {
	repo := newSurveyRepoStub()
	now := time.Now().UTC()
	repo.surveys["survey-1"] = &models.Survey{
		ID:           "survey-1",
		Status:       models.SurveyStatusPublished,
		PublishStart: now.Add(-time.Hour),
		PublishEnd:   now.Add(time.Hour),
		KThreshold:   5,
		Sections: []models.Section{
			{ID: "sec-1", SurveyID: "survey-1", Questions: []models.Question{
				{
					ID: "q-1", SectionID: "sec-1", Type: models.QuestionNPS,
					Prompt: "Recommend us?", Required: true,
					AnonymityMode: models.AnonymityAnonymous,
					ScaleMin:      0, ScaleMax: 10,
				},
			}},
		},
	}
	return repo
}

func newResponseHandler(surveys *surveyRepoStub, responses *responseRepoStub) *ResponseHandler {
	svc := service.NewResponseService(surveys, responses, inviteTokenRepoStub{}, nil)
	return NewResponseHandler(svc)
}

func TestResponseHandlerSubmitAnonymous(t *testing.T) {
	gin.SetMode(gin.TestMode)
	responses := &responseRepoStub{}
	handler := newResponseHandler(activeSurveyRepo(), responses)

	payload := []byte(`{"answers": [{"question_id": "q-1", "number": 9}]}`)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/surveys/survey-1/responses", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "survey-1"}}

	handler.Submit(c)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.Len(t, responses.created, 1)
	assert.Nil(t, responses.created[0].Identity, "no token means no identity is stored")
}

func TestResponseHandlerSubmitDuplicate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	responses := &responseRepoStub{duplicate: true}
	handler := newResponseHandler(activeSurveyRepo(), responses)

	payload := []byte(`{"answers": [{"question_id": "q-1", "number": 9}]}`)
	w := httptest.NewRecorder()
	c := adminContext(t, w, http.MethodPost, "/surveys/survey-1/responses", payload)
	c.Params = gin.Params{{Key: "id", Value: "survey-1"}}

	handler.Submit(c)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Empty(t, responses.created)
}

func TestResponseHandlerSubmitInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newResponseHandler(activeSurveyRepo(), &responseRepoStub{})

	w := httptest.NewRecorder()
	c := adminContext(t, w, http.MethodPost, "/surveys/survey-1/responses", []byte(`{"answers":`))
	c.Params = gin.Params{{Key: "id", Value: "survey-1"}}

	handler.Submit(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResponseHandlerGetOwnRequiresIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newResponseHandler(activeSurveyRepo(), &responseRepoStub{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/surveys/survey-1/responses/me", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "survey-1"}}

	handler.GetOwn(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
