package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseworks/pulse-api/internal/dto"
	"github.com/pulseworks/pulse-api/internal/models"
	"github.com/pulseworks/pulse-api/internal/repository"
	appErrors "github.com/pulseworks/pulse-api/pkg/errors"
)

type mockResponseRepo struct {
	created    []*models.Response
	claims     []repository.InviteClaim
	identities map[string]bool
	createErr  error
}

func (m *mockResponseRepo) Create(ctx context.Context, response *models.Response, claim *repository.InviteClaim) error {
	if m.createErr != nil {
		return m.createErr
	}
	if claim != nil {
		m.claims = append(m.claims, *claim)
	}
	response.ID = uuid.NewString()
	m.created = append(m.created, response)
	return nil
}

func (m *mockResponseRepo) ExistsForIdentity(ctx context.Context, surveyID, identity string) (bool, error) {
	return m.identities[identity], nil
}

func (m *mockResponseRepo) GetForIdentity(ctx context.Context, surveyID, identity string) (*models.Response, error) {
	return nil, sql.ErrNoRows
}

func (m *mockResponseRepo) ListBySurvey(ctx context.Context, surveyID string, filter repository.ResponseFilter) ([]models.Response, error) {
	return nil, nil
}

func (m *mockResponseRepo) GetAnswer(ctx context.Context, id string) (*models.Answer, error) {
	return nil, sql.ErrNoRows
}

func (m *mockResponseRepo) UpdateAnswerModeration(ctx context.Context, id string, status models.ModerationStatus, flags models.AnswerFlags) error {
	return nil
}

type mockInviteTokenRepo struct {
	invites map[string]*models.Invite
}

func (m *mockInviteTokenRepo) GetByToken(ctx context.Context, token string) (*models.Invite, error) {
	invite, ok := m.invites[token]
	if !ok {
		return nil, appErrors.ErrInviteNotFound
	}
	return invite, nil
}

type fixedSurveySchema struct {
	survey *models.Survey
}

func (f fixedSurveySchema) GetWithSchema(ctx context.Context, id string) (*models.Survey, error) {
	if f.survey == nil || f.survey.ID != id {
		return nil, sql.ErrNoRows
	}
	return f.survey, nil
}

func publishedSurvey(now time.Time) *models.Survey {
	return &models.Survey{
		ID:           "survey-1",
		Title:        "Pulse",
		Status:       models.SurveyStatusPublished,
		PublishStart: now.Add(-time.Hour),
		PublishEnd:   now.Add(time.Hour),
		KThreshold:   5,
		Sections: []models.Section{
			{
				ID:       "sec-1",
				SurveyID: "survey-1",
				Questions: []models.Question{
					{
						ID: "q-scale", SectionID: "sec-1",
						Type: models.QuestionLikert, Prompt: "Satisfied?",
						Required: true, AnonymityMode: models.AnonymityAnonymous,
						ScaleMin: 1, ScaleMax: 5,
					},
					{
						ID: "q-text", SectionID: "sec-1",
						Type: models.QuestionShortText, Prompt: "Why?",
						Required: false, AnonymityMode: models.AnonymityAnonymous,
					},
				},
			},
		},
	}
}

func submitFixture(now time.Time) (*ResponseService, *mockResponseRepo, *mockInviteTokenRepo) {
	responses := &mockResponseRepo{identities: map[string]bool{}}
	invites := &mockInviteTokenRepo{invites: map[string]*models.Invite{}}
	svc := NewResponseService(fixedSurveySchema{survey: publishedSurvey(now)}, responses, invites, nil)
	svc.WithClock(func() time.Time { return now })
	return svc, responses, invites
}

func scaleAnswer(n float64) dto.AnswerPayload {
	return dto.AnswerPayload{QuestionID: "q-scale", Number: &n}
}

func TestSubmitAnonymous(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, responses, _ := submitFixture(now)

	ack, err := svc.Submit(context.Background(), "survey-1", nil, "", dto.SubmitRequest{
		Answers: []dto.AnswerPayload{scaleAnswer(4)},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, ack.AnswerCount)

	require.Len(t, responses.created, 1)
	assert.Nil(t, responses.created[0].Identity)
}

func TestSubmitIdentifiedRejectsDuplicate(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, responses, _ := submitFixture(now)
	responses.identities["user-7"] = true

	identity := "user-7"
	_, err := svc.Submit(context.Background(), "survey-1", &identity, "", dto.SubmitRequest{
		Answers: []dto.AnswerPayload{scaleAnswer(4)},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDuplicateSubmission.Code, appErrors.FromError(err).Code)
	assert.Empty(t, responses.created)
}

func TestSubmitMissingRequiredAnswerWritesNothing(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, responses, _ := submitFixture(now)

	text := "optional only"
	_, err := svc.Submit(context.Background(), "survey-1", nil, "", dto.SubmitRequest{
		Answers: []dto.AnswerPayload{{QuestionID: "q-text", Text: &text}},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrMissingRequiredAnswer.Code, appErrors.FromError(err).Code)
	assert.Empty(t, responses.created, "all-or-nothing: nothing persisted")
}

func TestSubmitInvalidAnswerWritesNothing(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, responses, _ := submitFixture(now)

	_, err := svc.Submit(context.Background(), "survey-1", nil, "", dto.SubmitRequest{
		Answers: []dto.AnswerPayload{scaleAnswer(9)},
	})
	require.Error(t, err, "9 is outside the 1..5 scale")
	assert.Empty(t, responses.created)
}

func TestSubmitRejectsForeignAndDuplicateQuestions(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, _, _ := submitFixture(now)

	n := 4.0
	_, err := svc.Submit(context.Background(), "survey-1", nil, "", dto.SubmitRequest{
		Answers: []dto.AnswerPayload{scaleAnswer(4), {QuestionID: "q-other", Number: &n}},
	})
	require.Error(t, err, "answers for unknown questions are rejected")

	_, err = svc.Submit(context.Background(), "survey-1", nil, "", dto.SubmitRequest{
		Answers: []dto.AnswerPayload{scaleAnswer(4), scaleAnswer(5)},
	})
	require.Error(t, err, "a question answered twice is rejected")
}

func TestSubmitActivityWindow(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name   string
		mutate func(*models.Survey)
		code   string
	}{
		{"draft", func(s *models.Survey) { s.Status = models.SurveyStatusDraft }, appErrors.ErrSurveyNotActive.Code},
		{"closed", func(s *models.Survey) { s.Status = models.SurveyStatusClosed }, appErrors.ErrSurveyNotActive.Code},
		{"not started", func(s *models.Survey) { s.PublishStart = now.Add(time.Hour) }, appErrors.ErrSurveyNotStarted.Code},
		{"ended", func(s *models.Survey) { s.PublishEnd = now.Add(-time.Minute) }, appErrors.ErrSurveyEnded.Code},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			survey := publishedSurvey(now)
			tc.mutate(survey)
			svc := NewResponseService(fixedSurveySchema{survey: survey}, &mockResponseRepo{}, &mockInviteTokenRepo{}, nil)
			svc.WithClock(func() time.Time { return now })

			_, err := svc.Submit(context.Background(), "survey-1", nil, "", dto.SubmitRequest{
				Answers: []dto.AnswerPayload{scaleAnswer(4)},
			})
			require.Error(t, err)
			assert.Equal(t, tc.code, appErrors.FromError(err).Code)
		})
	}
}

func TestSubmitWithInviteClaimsInSameWrite(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, responses, invites := submitFixture(now)
	invites.invites["tok-1"] = &models.Invite{
		ID: "inv-1", SurveyID: "survey-1", Token: "tok-1", ExpiresAt: now.Add(24 * time.Hour),
	}

	_, err := svc.Submit(context.Background(), "survey-1", nil, "tok-1", dto.SubmitRequest{
		Answers: []dto.AnswerPayload{scaleAnswer(4)},
	})
	require.NoError(t, err)
	require.Len(t, responses.created, 1)
	require.Equal(t, []repository.InviteClaim{{Token: "tok-1", UsedAt: now}}, responses.claims,
		"token is consumed by the write that persists the answers")
}

func TestSubmitInviteRaceLoserWritesNothing(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, responses, invites := submitFixture(now)
	invites.invites["tok-1"] = &models.Invite{
		ID: "inv-1", SurveyID: "survey-1", Token: "tok-1", ExpiresAt: now.Add(24 * time.Hour),
	}
	responses.createErr = appErrors.ErrInviteUsed

	_, err := svc.Submit(context.Background(), "survey-1", nil, "tok-1", dto.SubmitRequest{
		Answers: []dto.AnswerPayload{scaleAnswer(4)},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInviteUsed.Code, appErrors.FromError(err).Code)
	assert.Empty(t, responses.created)
}

func TestSubmitInviteErrors(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	used := now.Add(-time.Hour)

	cases := []struct {
		name   string
		invite *models.Invite
		token  string
		code   string
	}{
		{"unknown token", nil, "nope", appErrors.ErrInviteNotFound.Code},
		{"used", &models.Invite{SurveyID: "survey-1", Token: "tok-1", ExpiresAt: now.Add(time.Hour), UsedAt: &used}, "tok-1", appErrors.ErrInviteUsed.Code},
		{"expired", &models.Invite{SurveyID: "survey-1", Token: "tok-1", ExpiresAt: now.Add(-time.Minute)}, "tok-1", appErrors.ErrInviteExpired.Code},
		{"wrong survey", &models.Invite{SurveyID: "survey-2", Token: "tok-1", ExpiresAt: now.Add(time.Hour)}, "tok-1", appErrors.ErrInviteNotFound.Code},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, responses, invites := submitFixture(now)
			if tc.invite != nil {
				invites.invites[tc.invite.Token] = tc.invite
			}
			_, err := svc.Submit(context.Background(), "survey-1", nil, tc.token, dto.SubmitRequest{
				Answers: []dto.AnswerPayload{scaleAnswer(4)},
			})
			require.Error(t, err)
			assert.Equal(t, tc.code, appErrors.FromError(err).Code)
			assert.Empty(t, responses.created)
		})
	}
}

func TestSubmitUnknownSurvey(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, _, _ := submitFixture(now)

	_, err := svc.Submit(context.Background(), "missing", nil, "", dto.SubmitRequest{
		Answers: []dto.AnswerPayload{scaleAnswer(4)},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestModerateAnswerRejectsUnknownStatus(t *testing.T) {
	svc := NewResponseService(fixedSurveySchema{}, &mockResponseRepo{}, &mockInviteTokenRepo{}, nil)
	_, err := svc.ModerateAnswer(context.Background(), "ans-1", dto.ModerationRequest{Status: "SHREDDED"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
