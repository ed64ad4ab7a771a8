package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/pulseworks/pulse-api/internal/models"
)

// SurveyRepository persists the survey aggregate: survey rows plus their
// ordered sections and questions.
type SurveyRepository struct {
	db *sqlx.DB
}

// NewSurveyRepository constructs the repository.
func NewSurveyRepository(db *sqlx.DB) *SurveyRepository {
	return &SurveyRepository{db: db}
}

const surveyColumns = `id, title, description, publish_start, publish_end, status, created_by, k_threshold, created_at, updated_at`

// Create inserts a survey with all its sections and questions in one
// transaction. IDs are generated for any entity missing one.
func (r *SurveyRepository) Create(ctx context.Context, survey *models.Survey) error {
	if survey.ID == "" {
		survey.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if survey.CreatedAt.IsZero() {
		survey.CreatedAt = now
	}
	survey.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create survey: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const insertSurvey = `INSERT INTO surveys (id, title, description, publish_start, publish_end, status, created_by, k_threshold, created_at, updated_at)
VALUES (:id, :title, :description, :publish_start, :publish_end, :status, :created_by, :k_threshold, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insertSurvey, survey); err != nil {
		return fmt.Errorf("insert survey: %w", err)
	}

	for si := range survey.Sections {
		section := &survey.Sections[si]
		if section.ID == "" {
			section.ID = uuid.NewString()
		}
		section.SurveyID = survey.ID
		if err := insertSection(ctx, tx, section); err != nil {
			return err
		}
		for qi := range section.Questions {
			question := &section.Questions[qi]
			if question.ID == "" {
				question.ID = uuid.NewString()
			}
			question.SectionID = section.ID
			if err := insertQuestion(ctx, tx, question); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create survey: %w", err)
	}
	return nil
}

func insertSection(ctx context.Context, tx *sqlx.Tx, section *models.Section) error {
	const query = `INSERT INTO sections (id, survey_id, title, description, position)
VALUES (:id, :survey_id, :title, :description, :position)`
	if _, err := tx.NamedExecContext(ctx, query, section); err != nil {
		return fmt.Errorf("insert section %q: %w", section.Title, err)
	}
	return nil
}

func insertQuestion(ctx context.Context, tx *sqlx.Tx, question *models.Question) error {
	const query = `INSERT INTO questions (id, section_id, type, prompt, help_text, required, anonymity_mode, options, scale_min, scale_max, position)
VALUES (:id, :section_id, :type, :prompt, :help_text, :required, :anonymity_mode, :options, :scale_min, :scale_max, :position)`
	if _, err := tx.NamedExecContext(ctx, query, question); err != nil {
		return fmt.Errorf("insert question %q: %w", question.Prompt, err)
	}
	return nil
}

// GetByID returns the survey row without its schema.
func (r *SurveyRepository) GetByID(ctx context.Context, id string) (*models.Survey, error) {
	query := fmt.Sprintf(`SELECT %s FROM surveys WHERE id = $1`, surveyColumns)
	var survey models.Survey
	if err := r.db.GetContext(ctx, &survey, query, id); err != nil {
		return nil, fmt.Errorf("get survey: %w", err)
	}
	return &survey, nil
}

// GetWithSchema returns the survey with its ordered sections and questions.
func (r *SurveyRepository) GetWithSchema(ctx context.Context, id string) (*models.Survey, error) {
	survey, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	const sectionQuery = `SELECT id, survey_id, title, description, position
FROM sections WHERE survey_id = $1 ORDER BY position ASC`
	if err := r.db.SelectContext(ctx, &survey.Sections, sectionQuery, id); err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}

	const questionQuery = `SELECT q.id, q.section_id, q.type, q.prompt, q.help_text, q.required, q.anonymity_mode, q.options, q.scale_min, q.scale_max, q.position
FROM questions q
JOIN sections s ON s.id = q.section_id
WHERE s.survey_id = $1
ORDER BY s.position ASC, q.position ASC`
	var questions []models.Question
	if err := r.db.SelectContext(ctx, &questions, questionQuery, id); err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	bySection := make(map[string][]models.Question, len(survey.Sections))
	for _, q := range questions {
		bySection[q.SectionID] = append(bySection[q.SectionID], q)
	}
	for i := range survey.Sections {
		survey.Sections[i].Questions = bySection[survey.Sections[i].ID]
	}
	return survey, nil
}

// SurveyFilter scopes survey listings.
type SurveyFilter struct {
	Status   models.SurveyStatus
	Page     int
	PageSize int
}

// List returns surveys matching the filter, newest first.
func (r *SurveyRepository) List(ctx context.Context, filter SurveyFilter) ([]models.Survey, int, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}

	where := ""
	args := []interface{}{}
	if filter.Status != "" {
		where = "WHERE status = $1"
		args = append(args, filter.Status)
	}

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM surveys %s`, where)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count surveys: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM surveys %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		surveyColumns, where, len(args)+1, len(args)+2)
	args = append(args, filter.PageSize, (filter.Page-1)*filter.PageSize)

	var surveys []models.Survey
	if err := r.db.SelectContext(ctx, &surveys, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list surveys: %w", err)
	}
	return surveys, total, nil
}

// UpdateStatus persists a lifecycle transition.
func (r *SurveyRepository) UpdateStatus(ctx context.Context, id string, status models.SurveyStatus, updatedAt time.Time) error {
	const query = `UPDATE surveys SET status = $1, updated_at = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, status, updatedAt, id)
	if err != nil {
		return fmt.Errorf("update survey status: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// AddSection appends a section to a survey.
func (r *SurveyRepository) AddSection(ctx context.Context, section *models.Section) error {
	if section.ID == "" {
		section.ID = uuid.NewString()
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin add section: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck
	if err := insertSection(ctx, tx, section); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit add section: %w", err)
	}
	return nil
}

// AddQuestion appends a question to a section.
func (r *SurveyRepository) AddQuestion(ctx context.Context, question *models.Question) error {
	if question.ID == "" {
		question.ID = uuid.NewString()
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin add question: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck
	if err := insertQuestion(ctx, tx, question); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit add question: %w", err)
	}
	return nil
}

// GetSection returns one section row.
func (r *SurveyRepository) GetSection(ctx context.Context, id string) (*models.Section, error) {
	const query = `SELECT id, survey_id, title, description, position FROM sections WHERE id = $1`
	var section models.Section
	if err := r.db.GetContext(ctx, &section, query, id); err != nil {
		return nil, fmt.Errorf("get section: %w", err)
	}
	return &section, nil
}

// Reorder applies new positions to sections and questions of one survey
// in a single transaction.
func (r *SurveyRepository) Reorder(ctx context.Context, surveyID string, sections, questions map[string]int) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reorder: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for id, position := range sections {
		const query = `UPDATE sections SET position = $1 WHERE id = $2 AND survey_id = $3`
		if _, err := tx.ExecContext(ctx, query, position, id, surveyID); err != nil {
			return fmt.Errorf("reorder section %s: %w", id, err)
		}
	}
	for id, position := range questions {
		const query = `UPDATE questions SET position = $1
WHERE id = $2 AND section_id IN (SELECT id FROM sections WHERE survey_id = $3)`
		if _, err := tx.ExecContext(ctx, query, position, id, surveyID); err != nil {
			return fmt.Errorf("reorder question %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reorder: %w", err)
	}
	return nil
}

// CountResponses returns the number of responses a survey has received.
func (r *SurveyRepository) CountResponses(ctx context.Context, surveyID string) (int, error) {
	const query = `SELECT COUNT(*) FROM responses WHERE survey_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, surveyID); err != nil {
		return 0, fmt.Errorf("count responses: %w", err)
	}
	return count, nil
}

// CountInvites returns the number of invites issued for a survey.
func (r *SurveyRepository) CountInvites(ctx context.Context, surveyID string) (int, error) {
	const query = `SELECT COUNT(*) FROM invites WHERE survey_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, surveyID); err != nil {
		return 0, fmt.Errorf("count invites: %w", err)
	}
	return count, nil
}
