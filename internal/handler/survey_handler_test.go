package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseworks/pulse-api/internal/middleware"
	"github.com/pulseworks/pulse-api/internal/models"
	"github.com/pulseworks/pulse-api/internal/repository"
	"github.com/pulseworks/pulse-api/internal/service"
)

// surveyRepoStub backs a real SurveyService in handler tests; only the
// paths the tests exercise are populated.
type surveyRepoStub struct {
	surveys map[string]*models.Survey
}

func newSurveyRepoStub() *surveyRepoStub {
	return &surveyRepoStub{surveys: make(map[string]*models.Survey)}
}

func (s *surveyRepoStub) Create(ctx context.Context, survey *models.Survey) error {
	if survey.ID == "" {
		survey.ID = "survey-1"
	}
	s.surveys[survey.ID] = survey
	return nil
}

func (s *surveyRepoStub) GetByID(ctx context.Context, id string) (*models.Survey, error) {
	survey, ok := s.surveys[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return survey, nil
}

func (s *surveyRepoStub) GetWithSchema(ctx context.Context, id string) (*models.Survey, error) {
	return s.GetByID(ctx, id)
}

func (s *surveyRepoStub) List(ctx context.Context, filter repository.SurveyFilter) ([]models.Survey, int, error) {
	return nil, 0, nil
}

func (s *surveyRepoStub) UpdateStatus(ctx context.Context, id string, status models.SurveyStatus, updatedAt time.Time) error {
	survey, ok := s.surveys[id]
	if !ok {
		return sql.ErrNoRows
	}
	survey.Status = status
	return nil
}

func (s *surveyRepoStub) AddSection(ctx context.Context, section *models.Section) error { return nil }
func (s *surveyRepoStub) AddQuestion(ctx context.Context, question *models.Question) error {
	return nil
}
func (s *surveyRepoStub) GetSection(ctx context.Context, id string) (*models.Section, error) {
	return nil, sql.ErrNoRows
}
func (s *surveyRepoStub) Reorder(ctx context.Context, surveyID string, sections, questions map[string]int) error {
	return nil
}
func (s *surveyRepoStub) CountResponses(ctx context.Context, surveyID string) (int, error) {
	return 0, nil
}
func (s *surveyRepoStub) CountInvites(ctx context.Context, surveyID string) (int, error) {
	return 0, nil
}

func newSurveyHandler(repo *surveyRepoStub) *SurveyHandler {
	svc := service.NewSurveyService(repo, nil, nil, service.SurveyServiceConfig{})
	return NewSurveyHandler(svc, service.NewTemplateGenerator())
}

func adminContext(t *testing.T, w *httptest.ResponseRecorder, method, target string, body []byte) *gin.Context {
	t.Helper()
	c, _ := gin.CreateTestContext(w)
	var req *http.Request
	if body != nil {
		req, _ = http.NewRequest(method, target, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, _ = http.NewRequest(method, target, nil)
	}
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})
	return c
}

func TestSurveyHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := newSurveyRepoStub()
	handler := newSurveyHandler(repo)

	payload := []byte(`{
		"title": "Quarterly pulse",
		"sections": [
			{"title": "Sentiment", "questions": [{"type": "NPS", "prompt": "Recommend us?"}]}
		]
	}`)
	w := httptest.NewRecorder()
	c := adminContext(t, w, http.MethodPost, "/surveys", payload)

	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.Len(t, repo.surveys, 1)
	for _, survey := range repo.surveys {
		assert.Equal(t, "admin-1", survey.CreatedBy)
		assert.Equal(t, models.SurveyStatusDraft, survey.Status)
	}
}

func TestSurveyHandlerCreateInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newSurveyHandler(newSurveyRepoStub())

	w := httptest.NewRecorder()
	c := adminContext(t, w, http.MethodPost, "/surveys", []byte(`{"title":`))

	handler.Create(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSurveyHandlerGetNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newSurveyHandler(newSurveyRepoStub())

	w := httptest.NewRecorder()
	c := adminContext(t, w, http.MethodGet, "/surveys/missing", nil)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}

	handler.Get(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestSurveyHandlerTransitionIllegalEdge(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := newSurveyRepoStub()
	repo.surveys["survey-1"] = &models.Survey{ID: "survey-1", Status: models.SurveyStatusDraft}
	handler := newSurveyHandler(repo)

	payload, _ := json.Marshal(map[string]string{"target": "ARCHIVED"})
	w := httptest.NewRecorder()
	c := adminContext(t, w, http.MethodPost, "/surveys/survey-1/transition", payload)
	c.Params = gin.Params{{Key: "id", Value: "survey-1"}}

	handler.Transition(c)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, models.SurveyStatusDraft, repo.surveys["survey-1"].Status)
}

func TestSurveyHandlerGenerate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newSurveyHandler(newSurveyRepoStub())

	payload, _ := json.Marshal(map[string]string{"topic": "Onboarding"})
	w := httptest.NewRecorder()
	c := adminContext(t, w, http.MethodPost, "/surveys/generate", payload)

	handler.Generate(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Onboarding survey")
}
