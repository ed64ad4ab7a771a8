package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/pulseworks/pulse-api/internal/dto"
	"github.com/pulseworks/pulse-api/internal/models"
	"github.com/pulseworks/pulse-api/internal/repository"
	appErrors "github.com/pulseworks/pulse-api/pkg/errors"
)

type surveyRepository interface {
	Create(ctx context.Context, survey *models.Survey) error
	GetByID(ctx context.Context, id string) (*models.Survey, error)
	GetWithSchema(ctx context.Context, id string) (*models.Survey, error)
	List(ctx context.Context, filter repository.SurveyFilter) ([]models.Survey, int, error)
	UpdateStatus(ctx context.Context, id string, status models.SurveyStatus, updatedAt time.Time) error
	AddSection(ctx context.Context, section *models.Section) error
	AddQuestion(ctx context.Context, question *models.Question) error
	GetSection(ctx context.Context, id string) (*models.Section, error)
	Reorder(ctx context.Context, surveyID string, sections, questions map[string]int) error
	CountResponses(ctx context.Context, surveyID string) (int, error)
	CountInvites(ctx context.Context, surveyID string) (int, error)
}

// SurveyServiceConfig tunes authoring defaults.
type SurveyServiceConfig struct {
	DefaultKThreshold  int
	DefaultPublishDays int
}

// SurveyService owns survey authoring and the lifecycle state machine.
type SurveyService struct {
	repo      surveyRepository
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
	cfg       SurveyServiceConfig
}

// NewSurveyService constructs a SurveyService with sane defaults.
func NewSurveyService(repo surveyRepository, validate *validator.Validate, logger *zap.Logger, cfg SurveyServiceConfig) *SurveyService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultKThreshold <= 0 {
		cfg.DefaultKThreshold = 5
	}
	if cfg.DefaultPublishDays <= 0 {
		cfg.DefaultPublishDays = 14
	}
	return &SurveyService{repo: repo, validator: validate, logger: logger, now: time.Now, cfg: cfg}
}

// WithClock overrides the time source. Lifecycle activity and publication
// windows depend on "now", so tests inject a fixed clock instead of
// sleeping.
func (s *SurveyService) WithClock(now func() time.Time) *SurveyService {
	s.now = now
	return s
}

// CreateFromDocument validates an authoring document and persists it as a
// DRAFT survey. The document shape is identical whether a human form or
// the AI-assisted generator produced it.
func (s *SurveyService) CreateFromDocument(ctx context.Context, doc dto.SurveyDocument, creatorID string) (*models.Survey, error) {
	if err := s.validator.Struct(doc); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid survey document")
	}

	now := s.now().UTC()
	publishDays := s.cfg.DefaultPublishDays
	if doc.PublishDays != nil && *doc.PublishDays > 0 {
		publishDays = *doc.PublishDays
	}
	kThreshold := s.cfg.DefaultKThreshold
	if doc.KThreshold != nil {
		if *doc.KThreshold < 1 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "k_threshold must be at least 1")
		}
		kThreshold = *doc.KThreshold
	}

	survey := &models.Survey{
		Title:        doc.Title,
		Description:  doc.Description,
		PublishStart: now,
		PublishEnd:   now.AddDate(0, 0, publishDays),
		Status:       models.SurveyStatusDraft,
		CreatedBy:    creatorID,
		KThreshold:   kThreshold,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	for si, sectionDoc := range doc.Sections {
		section := models.Section{
			Title:       sectionDoc.Title,
			Description: sectionDoc.Description,
			Order:       si + 1,
		}
		for qi, questionDoc := range sectionDoc.Questions {
			question, err := buildQuestion(questionDoc, qi+1)
			if err != nil {
				return nil, err
			}
			section.Questions = append(section.Questions, question)
		}
		survey.Sections = append(survey.Sections, section)
	}

	if err := s.repo.Create(ctx, survey); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create survey")
	}
	s.logger.Info("survey created",
		zap.String("survey_id", survey.ID),
		zap.String("created_by", creatorID),
		zap.Int("sections", len(survey.Sections)))
	return survey, nil
}

// buildQuestion validates a question document and applies per-type scale
// defaults: LIKERT 1-5, NPS 0-10, NUMBER 1-5.
func buildQuestion(doc dto.QuestionDocument, order int) (models.Question, error) {
	question := models.Question{
		Type:          doc.Type,
		Prompt:        doc.Prompt,
		HelpText:      doc.HelpText,
		Required:      true,
		AnonymityMode: models.AnonymityEscrow,
		Order:         order,
	}
	if doc.Required != nil {
		question.Required = *doc.Required
	}
	if doc.AnonymityMode != "" {
		question.AnonymityMode = doc.AnonymityMode
	}

	if !validQuestionType(doc.Type) {
		return question, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown question type %q", doc.Type))
	}
	if !validAnonymityMode(question.AnonymityMode) {
		return question, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown anonymity mode %q", question.AnonymityMode))
	}

	switch {
	case question.IsScale():
		min, max := scaleDefaults(doc.Type)
		if doc.ScaleMin != nil {
			min = *doc.ScaleMin
		}
		if doc.ScaleMax != nil {
			max = *doc.ScaleMax
		}
		if max <= min {
			return question, appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("question %q: scale_max must exceed scale_min", doc.Prompt))
		}
		question.ScaleMin = min
		question.ScaleMax = max

	case question.IsChoice():
		if len(doc.Options) < 2 {
			return question, appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("question %q: choice questions need at least 2 options", doc.Prompt))
		}
		question.Options = models.QuestionOptions{Choices: doc.Options}

	case question.Type == models.QuestionMatrix:
		if len(doc.Rows) < 1 || len(doc.Columns) < 2 {
			return question, appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("question %q: matrix questions need rows and at least 2 columns", doc.Prompt))
		}
		question.Options = models.QuestionOptions{Rows: doc.Rows, Columns: doc.Columns}
	}

	return question, nil
}

func scaleDefaults(questionType models.QuestionType) (int, int) {
	if questionType == models.QuestionNPS {
		return 0, 10
	}
	return 1, 5
}

func validQuestionType(t models.QuestionType) bool {
	for _, known := range models.QuestionTypes {
		if known == t {
			return true
		}
	}
	return false
}

func validAnonymityMode(m models.AnonymityMode) bool {
	for _, known := range models.AnonymityModes {
		if known == m {
			return true
		}
	}
	return false
}

// Get returns a survey with its full schema.
func (s *SurveyService) Get(ctx context.Context, id string) (*models.Survey, error) {
	survey, err := s.repo.GetWithSchema(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "survey not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load survey")
	}
	return survey, nil
}

// List returns survey summaries matching the filter.
func (s *SurveyService) List(ctx context.Context, filter repository.SurveyFilter) ([]dto.SurveySummary, *models.Pagination, error) {
	surveys, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list surveys")
	}
	now := s.now().UTC()
	summaries := make([]dto.SurveySummary, 0, len(surveys))
	for _, survey := range surveys {
		count, err := s.repo.CountResponses(ctx, survey.ID)
		if err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count responses")
		}
		summaries = append(summaries, dto.SurveySummary{
			ID:            survey.ID,
			Title:         survey.Title,
			Description:   survey.Description,
			Status:        survey.Status,
			PublishStart:  survey.PublishStart,
			PublishEnd:    survey.PublishEnd,
			Active:        survey.IsActive(now),
			ResponseCount: count,
		})
	}
	return summaries, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Transition applies a lifecycle change, rejecting edges the state
// machine does not allow.
func (s *SurveyService) Transition(ctx context.Context, id string, target models.SurveyStatus) (*models.Survey, error) {
	survey, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "survey not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load survey")
	}
	if !survey.CanTransition(target) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("cannot transition %s -> %s", survey.Status, target))
	}
	now := s.now().UTC()
	if err := s.repo.UpdateStatus(ctx, id, target, now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update status")
	}
	s.logger.Info("survey transitioned",
		zap.String("survey_id", id),
		zap.String("from", string(survey.Status)),
		zap.String("to", string(target)))
	survey.Status = target
	survey.UpdatedAt = now
	return survey, nil
}

// AddSection appends a section to a DRAFT survey. Published surveys are
// structurally frozen.
func (s *SurveyService) AddSection(ctx context.Context, surveyID string, doc dto.SectionDocument) (*models.Section, error) {
	survey, err := s.repo.GetWithSchema(ctx, surveyID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "survey not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load survey")
	}
	if !survey.Editable() {
		return nil, appErrors.ErrSurveyFrozen
	}

	section := &models.Section{
		SurveyID:    surveyID,
		Title:       doc.Title,
		Description: doc.Description,
		Order:       len(survey.Sections) + 1,
	}
	if err := s.repo.AddSection(ctx, section); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add section")
	}
	return section, nil
}

// AddQuestion appends a question to a section of a DRAFT survey.
func (s *SurveyService) AddQuestion(ctx context.Context, sectionID string, doc dto.QuestionDocument) (*models.Question, error) {
	section, err := s.repo.GetSection(ctx, sectionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	survey, err := s.repo.GetWithSchema(ctx, section.SurveyID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load survey")
	}
	if !survey.Editable() {
		return nil, appErrors.ErrSurveyFrozen
	}

	order := 1
	for _, sec := range survey.Sections {
		if sec.ID == sectionID {
			order = len(sec.Questions) + 1
		}
	}
	question, err := buildQuestion(doc, order)
	if err != nil {
		return nil, err
	}
	question.SectionID = sectionID
	if err := s.repo.AddQuestion(ctx, &question); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add question")
	}
	return &question, nil
}

// Reorder repositions sections and questions of a DRAFT survey.
func (s *SurveyService) Reorder(ctx context.Context, surveyID string, req dto.ReorderRequest) error {
	survey, err := s.repo.GetByID(ctx, surveyID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "survey not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load survey")
	}
	if !survey.Editable() {
		return appErrors.ErrSurveyFrozen
	}

	sections := make(map[string]int, len(req.Sections))
	for _, item := range req.Sections {
		sections[item.ID] = item.Order
	}
	questions := make(map[string]int, len(req.Questions))
	for _, item := range req.Questions {
		questions[item.ID] = item.Order
	}
	if err := s.repo.Reorder(ctx, surveyID, sections, questions); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reorder")
	}
	return nil
}
