package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pulseworks/pulse-api/internal/dto"
	"github.com/pulseworks/pulse-api/internal/models"
	"github.com/pulseworks/pulse-api/internal/repository"
	appErrors "github.com/pulseworks/pulse-api/pkg/errors"
)

type responseRepository interface {
	Create(ctx context.Context, response *models.Response, claim *repository.InviteClaim) error
	ExistsForIdentity(ctx context.Context, surveyID, identity string) (bool, error)
	GetForIdentity(ctx context.Context, surveyID, identity string) (*models.Response, error)
	ListBySurvey(ctx context.Context, surveyID string, filter repository.ResponseFilter) ([]models.Response, error)
	GetAnswer(ctx context.Context, id string) (*models.Answer, error)
	UpdateAnswerModeration(ctx context.Context, id string, status models.ModerationStatus, flags models.AnswerFlags) error
}

type responseSurveyRepository interface {
	GetWithSchema(ctx context.Context, id string) (*models.Survey, error)
}

type inviteTokenRepository interface {
	GetByToken(ctx context.Context, token string) (*models.Invite, error)
}

// ResponseService accepts survey submissions. Validation is
// all-or-nothing: either every answer in the request is persisted or
// nothing is.
type ResponseService struct {
	surveys   responseSurveyRepository
	responses responseRepository
	invites   inviteTokenRepository
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
}

func NewResponseService(surveys responseSurveyRepository, responses responseRepository, invites inviteTokenRepository, logger *zap.Logger) *ResponseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResponseService{surveys: surveys, responses: responses, invites: invites, logger: logger, now: time.Now}
}

// WithClock overrides the time source for tests.
func (s *ResponseService) WithClock(now func() time.Time) *ResponseService {
	s.now = now
	return s
}

// WithMetrics attaches domain counters.
func (s *ResponseService) WithMetrics(metrics *MetricsService) *ResponseService {
	s.metrics = metrics
	return s
}

// Submit runs the full acceptance pipeline: the survey must be active,
// the invite token (when given) must be redeemable, the identity (when
// given) must not already have a response, every required question must
// be answered, and every answer must validate against its question. Only
// then is anything written. The invite is consumed in the same
// transaction that persists the answers, as its last step, so a failed
// submission leaves the token unused and retryable while a token can
// still never admit two submissions.
func (s *ResponseService) Submit(ctx context.Context, surveyID string, identity *string, inviteToken string, req dto.SubmitRequest) (*dto.SubmitResponse, error) {
	survey, err := s.surveys.GetWithSchema(ctx, surveyID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "survey not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load survey")
	}

	now := s.now().UTC()
	if err := activityError(survey, now); err != nil {
		return nil, err
	}

	var invite *models.Invite
	if inviteToken != "" {
		invite, err = s.invites.GetByToken(ctx, inviteToken)
		if err != nil {
			return nil, err
		}
		if invite.SurveyID != surveyID {
			return nil, appErrors.Clone(appErrors.ErrInviteNotFound, "invite token belongs to a different survey")
		}
		if invite.IsUsed() {
			return nil, appErrors.ErrInviteUsed
		}
		if invite.IsExpired(now) {
			return nil, appErrors.ErrInviteExpired
		}
	}

	if identity != nil {
		exists, err := s.responses.ExistsForIdentity(ctx, surveyID, *identity)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check for prior response")
		}
		if exists {
			return nil, appErrors.ErrDuplicateSubmission
		}
	}

	questions := indexQuestions(survey)
	seen := make(map[string]struct{}, len(req.Answers))
	answers := make([]models.Answer, 0, len(req.Answers))
	for _, payload := range req.Answers {
		question, ok := questions[payload.QuestionID]
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("question %s does not belong to this survey", payload.QuestionID))
		}
		if _, dup := seen[payload.QuestionID]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("question %s answered more than once", payload.QuestionID))
		}
		seen[payload.QuestionID] = struct{}{}

		answer, err := buildAnswer(question, payload, identity)
		if err != nil {
			return nil, err
		}
		answers = append(answers, answer)
	}

	for id, question := range questions {
		if !question.Required {
			continue
		}
		if _, ok := seen[id]; !ok {
			return nil, appErrors.Clone(appErrors.ErrMissingRequiredAnswer,
				fmt.Sprintf("required question %s was not answered", id))
		}
	}

	var claim *repository.InviteClaim
	if invite != nil {
		claim = &repository.InviteClaim{Token: inviteToken, UsedAt: now}
	}

	response := &models.Response{
		SurveyID:    surveyID,
		Identity:    identity,
		SubmittedAt: now,
		Cohort:      req.Cohort,
		Answers:     answers,
	}
	if err := s.responses.Create(ctx, response, claim); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			switch appErr.Code {
			case appErrors.ErrDuplicateSubmission.Code, appErrors.ErrInviteUsed.Code:
				return nil, err
			}
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist response")
	}

	if invite != nil {
		s.metrics.RecordInviteClaimed()
	}
	s.metrics.RecordResponseAccepted()
	s.logger.Info("response accepted",
		zap.String("survey_id", surveyID),
		zap.String("response_id", response.ID),
		zap.Bool("anonymous", identity == nil),
		zap.Int("answers", len(answers)))

	return &dto.SubmitResponse{
		ResponseID:  response.ID,
		SurveyID:    surveyID,
		SubmittedAt: response.SubmittedAt,
		AnswerCount: len(answers),
	}, nil
}

// activityError explains why a survey cannot accept a submission,
// distinguishing a window that has not opened from one that has closed.
func activityError(survey *models.Survey, now time.Time) error {
	if survey.IsActive(now) {
		return nil
	}
	if survey.Status != models.SurveyStatusPublished {
		return appErrors.ErrSurveyNotActive
	}
	if now.Before(survey.PublishStart) {
		return appErrors.ErrSurveyNotStarted
	}
	return appErrors.ErrSurveyEnded
}

func indexQuestions(survey *models.Survey) map[string]*models.Question {
	index := make(map[string]*models.Question)
	for si := range survey.Sections {
		for qi := range survey.Sections[si].Questions {
			question := &survey.Sections[si].Questions[qi]
			index[question.ID] = question
		}
	}
	return index
}

// GetOwn returns the caller's prior response to a survey, if any.
func (s *ResponseService) GetOwn(ctx context.Context, surveyID, identity string) (*models.Response, error) {
	response, err := s.responses.GetForIdentity(ctx, surveyID, identity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no response recorded for this survey")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load response")
	}
	return response, nil
}

// ModerateAnswer is the single permitted post-submission mutation:
// reviewers may flag or redact an answer, never edit its value.
func (s *ResponseService) ModerateAnswer(ctx context.Context, answerID string, req dto.ModerationRequest) (*models.Answer, error) {
	switch req.Status {
	case models.ModerationOK, models.ModerationFlagged, models.ModerationRedacted:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown moderation status %q", req.Status))
	}

	answer, err := s.responses.GetAnswer(ctx, answerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "answer not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load answer")
	}

	flags := req.Flags
	if flags == nil {
		flags = answer.Flags
	}
	if err := s.responses.UpdateAnswerModeration(ctx, answerID, req.Status, flags); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update moderation")
	}
	answer.ModerationStatus = req.Status
	answer.Flags = flags
	s.logger.Info("answer moderated",
		zap.String("answer_id", answerID),
		zap.String("status", string(req.Status)))
	return answer, nil
}
