package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/pulseworks/pulse-api/internal/models"
	appErrors "github.com/pulseworks/pulse-api/pkg/errors"
)

// ResponseRepository persists responses and their answers. The partial
// unique index on (survey_id, identity) is the authoritative guard
// against duplicate submissions; the service's pre-check is an early
// exit only.
type ResponseRepository struct {
	db *sqlx.DB
}

// NewResponseRepository constructs the repository.
func NewResponseRepository(db *sqlx.DB) *ResponseRepository {
	return &ResponseRepository{db: db}
}

const answerColumns = `id, response_id, question_id, value, is_signed, signed_by, followup_opt_in, preferred_contact, moderation_status, flags`

// InviteClaim marks an invite used in the same transaction that
// persists the response it admitted. Consuming the token is the last
// statement before commit, so a submission that fails for any earlier
// reason leaves the invite unused and retryable.
type InviteClaim struct {
	Token  string
	UsedAt time.Time
}

// Create inserts the response and all its answers atomically, claiming
// the invite (when one admitted the submission) as the final step.
// Either the whole submission lands or none of it does. A unique-index
// violation on the identity is surfaced as ErrDuplicateSubmission, and
// a claim that finds the token already used rolls everything back with
// ErrInviteUsed, so concurrent submissions resolve to exactly one
// success.
func (r *ResponseRepository) Create(ctx context.Context, response *models.Response, claim *InviteClaim) error {
	if response.ID == "" {
		response.ID = uuid.NewString()
	}
	if response.SubmittedAt.IsZero() {
		response.SubmittedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create response: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const insertResponse = `INSERT INTO responses (id, survey_id, identity, submitted_at, cohort)
VALUES (:id, :survey_id, :identity, :submitted_at, :cohort)`
	if _, err := tx.NamedExecContext(ctx, insertResponse, response); err != nil {
		if isUniqueViolation(err) {
			return appErrors.ErrDuplicateSubmission
		}
		return fmt.Errorf("insert response: %w", err)
	}

	const insertAnswer = `INSERT INTO answers (id, response_id, question_id, value, is_signed, signed_by, followup_opt_in, preferred_contact, moderation_status, flags)
VALUES (:id, :response_id, :question_id, :value, :is_signed, :signed_by, :followup_opt_in, :preferred_contact, :moderation_status, :flags)`
	for i := range response.Answers {
		answer := &response.Answers[i]
		if answer.ID == "" {
			answer.ID = uuid.NewString()
		}
		answer.ResponseID = response.ID
		if answer.ModerationStatus == "" {
			answer.ModerationStatus = models.ModerationOK
		}
		if _, err := tx.NamedExecContext(ctx, insertAnswer, answer); err != nil {
			return fmt.Errorf("insert answer for question %s: %w", answer.QuestionID, err)
		}
	}

	if claim != nil {
		// Conditional update, not read-then-write: the used_at IS NULL
		// clause lets exactly one of two racing redemptions win.
		const claimInvite = `UPDATE invites SET used_at = $1 WHERE token = $2 AND used_at IS NULL`
		result, err := tx.ExecContext(ctx, claimInvite, claim.UsedAt, claim.Token)
		if err != nil {
			return fmt.Errorf("claim invite: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("claim invite rows: %w", err)
		}
		if affected == 0 {
			return appErrors.ErrInviteUsed
		}
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return appErrors.ErrDuplicateSubmission
		}
		return fmt.Errorf("commit create response: %w", err)
	}
	return nil
}

// ExistsForIdentity reports whether a completed response already exists
// for the (survey, identity) pair.
func (r *ResponseRepository) ExistsForIdentity(ctx context.Context, surveyID, identity string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM responses WHERE survey_id = $1 AND identity = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, surveyID, identity); err != nil {
		return false, fmt.Errorf("check existing response: %w", err)
	}
	return exists, nil
}

// GetByID returns one response with its answers.
func (r *ResponseRepository) GetByID(ctx context.Context, id string) (*models.Response, error) {
	const query = `SELECT id, survey_id, identity, submitted_at, cohort FROM responses WHERE id = $1`
	var response models.Response
	if err := r.db.GetContext(ctx, &response, query, id); err != nil {
		return nil, fmt.Errorf("get response: %w", err)
	}
	answerQuery := fmt.Sprintf(`SELECT %s FROM answers WHERE response_id = $1`, answerColumns)
	if err := r.db.SelectContext(ctx, &response.Answers, answerQuery, id); err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	return &response, nil
}

// GetForIdentity returns the identity's response for a survey.
func (r *ResponseRepository) GetForIdentity(ctx context.Context, surveyID, identity string) (*models.Response, error) {
	const query = `SELECT id, survey_id, identity, submitted_at, cohort
FROM responses WHERE survey_id = $1 AND identity = $2`
	var response models.Response
	if err := r.db.GetContext(ctx, &response, query, surveyID, identity); err != nil {
		return nil, fmt.Errorf("get response for identity: %w", err)
	}
	answerQuery := fmt.Sprintf(`SELECT %s FROM answers WHERE response_id = $1`, answerColumns)
	if err := r.db.SelectContext(ctx, &response.Answers, answerQuery, response.ID); err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	return &response, nil
}

// ResponseFilter scopes report-feeding response listings.
type ResponseFilter struct {
	From *time.Time
	To   *time.Time
}

// ListBySurvey returns all responses for a survey matching the filter,
// each with its answers attached. Report computation reads through this
// and never mutates source rows.
func (r *ResponseRepository) ListBySurvey(ctx context.Context, surveyID string, filter ResponseFilter) ([]models.Response, error) {
	query := `SELECT id, survey_id, identity, submitted_at, cohort FROM responses WHERE survey_id = $1`
	args := []interface{}{surveyID}
	if filter.From != nil {
		args = append(args, *filter.From)
		query += fmt.Sprintf(" AND submitted_at >= $%d", len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		query += fmt.Sprintf(" AND submitted_at <= $%d", len(args))
	}
	query += " ORDER BY submitted_at ASC"

	var responses []models.Response
	if err := r.db.SelectContext(ctx, &responses, query, args...); err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	if len(responses) == 0 {
		return responses, nil
	}

	ids := make([]string, len(responses))
	index := make(map[string]int, len(responses))
	for i, resp := range responses {
		ids[i] = resp.ID
		index[resp.ID] = i
	}

	answerQuery := fmt.Sprintf(`SELECT %s FROM answers WHERE response_id = ANY($1)`, answerColumns)
	var answers []models.Answer
	if err := r.db.SelectContext(ctx, &answers, answerQuery, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	for _, answer := range answers {
		if i, ok := index[answer.ResponseID]; ok {
			responses[i].Answers = append(responses[i].Answers, answer)
		}
	}
	return responses, nil
}

// GetAnswer returns a single answer row.
func (r *ResponseRepository) GetAnswer(ctx context.Context, id string) (*models.Answer, error) {
	query := fmt.Sprintf(`SELECT %s FROM answers WHERE id = $1`, answerColumns)
	var answer models.Answer
	if err := r.db.GetContext(ctx, &answer, query, id); err != nil {
		return nil, fmt.Errorf("get answer: %w", err)
	}
	return &answer, nil
}

// UpdateAnswerModeration sets the moderation status and flags of one
// answer. This is the only mutation permitted on a submitted response.
func (r *ResponseRepository) UpdateAnswerModeration(ctx context.Context, id string, status models.ModerationStatus, flags models.AnswerFlags) error {
	const query = `UPDATE answers SET moderation_status = $1, flags = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, status, flags, id)
	if err != nil {
		return fmt.Errorf("update answer moderation: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
