package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseworks/pulse-api/internal/models"
	appErrors "github.com/pulseworks/pulse-api/pkg/errors"
)

func newResponseMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestResponseRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newResponseMock(t)
	defer cleanup()
	repo := NewResponseRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO responses").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO answers").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO answers").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	text := "fine"
	response := &models.Response{
		SurveyID: "survey-1",
		Answers: []models.Answer{
			{QuestionID: "q-1", Value: models.NumberValue(4)},
			{QuestionID: "q-2", Value: models.TextValue(text)},
		},
	}
	require.NoError(t, repo.Create(context.Background(), response, nil))

	assert.NotEmpty(t, response.ID)
	assert.Equal(t, response.ID, response.Answers[0].ResponseID)
	assert.Equal(t, models.ModerationOK, response.Answers[0].ModerationStatus)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResponseRepositoryCreateClaimsInvite(t *testing.T) {
	db, mock, cleanup := newResponseMock(t)
	defer cleanup()
	repo := NewResponseRepository(db)

	usedAt := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO responses").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO answers").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE invites SET used_at = $1 WHERE token = $2 AND used_at IS NULL")).
		WithArgs(usedAt, "tok-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	response := &models.Response{
		SurveyID: "survey-1",
		Answers:  []models.Answer{{QuestionID: "q-1", Value: models.NumberValue(4)}},
	}
	require.NoError(t, repo.Create(context.Background(), response, &InviteClaim{Token: "tok-1", UsedAt: usedAt}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResponseRepositoryCreateInviteAlreadyUsed(t *testing.T) {
	db, mock, cleanup := newResponseMock(t)
	defer cleanup()
	repo := NewResponseRepository(db)

	usedAt := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO responses").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO answers").WillReturnResult(sqlmock.NewResult(1, 1))
	// Zero rows affected: another submission burned the token first. The
	// whole write rolls back, including the already inserted answers.
	mock.ExpectExec("UPDATE invites SET used_at").
		WithArgs(usedAt, "tok-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	response := &models.Response{
		SurveyID: "survey-1",
		Answers:  []models.Answer{{QuestionID: "q-1", Value: models.NumberValue(4)}},
	}
	err := repo.Create(context.Background(), response, &InviteClaim{Token: "tok-1", UsedAt: usedAt})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInviteUsed.Code, appErrors.FromError(err).Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResponseRepositoryCreateDuplicateIdentity(t *testing.T) {
	db, mock, cleanup := newResponseMock(t)
	defer cleanup()
	repo := NewResponseRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO responses").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "responses_survey_identity_key"})
	mock.ExpectRollback()

	identity := "user-7"
	err := repo.Create(context.Background(), &models.Response{
		SurveyID: "survey-1",
		Identity: &identity,
		Answers:  []models.Answer{{QuestionID: "q-1", Value: models.NumberValue(4)}},
	}, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDuplicateSubmission.Code, appErrors.FromError(err).Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResponseRepositoryExistsForIdentity(t *testing.T) {
	db, mock, cleanup := newResponseMock(t)
	defer cleanup()
	repo := NewResponseRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM responses WHERE survey_id = $1 AND identity = $2)")).
		WithArgs("survey-1", "user-7").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ExistsForIdentity(context.Background(), "survey-1", "user-7")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestResponseRepositoryListBySurveyWindow(t *testing.T) {
	db, mock, cleanup := newResponseMock(t)
	defer cleanup()
	repo := NewResponseRepository(db)

	now := time.Now().UTC()
	from := now.Add(-24 * time.Hour)

	rows := sqlmock.NewRows([]string{"id", "survey_id", "identity", "submitted_at", "cohort"}).
		AddRow("resp-1", "survey-1", nil, now, []byte(`{}`))
	mock.ExpectQuery(`SELECT .+ FROM responses WHERE survey_id = \$1 AND submitted_at >= \$2 ORDER BY submitted_at ASC`).
		WithArgs("survey-1", from).
		WillReturnRows(rows)
	answerRows := sqlmock.NewRows([]string{"id", "response_id", "question_id", "value", "is_signed", "signed_by", "followup_opt_in", "preferred_contact", "moderation_status", "flags"}).
		AddRow("ans-1", "resp-1", "q-1", []byte(`{"number":4}`), false, nil, false, "", "OK", []byte(`{}`))
	mock.ExpectQuery(`SELECT .+ FROM answers WHERE response_id = ANY\(\$1\)`).
		WillReturnRows(answerRows)

	responses, err := repo.ListBySurvey(context.Background(), "survey-1", ResponseFilter{From: &from})
	require.NoError(t, err)
	require.Len(t, responses, 1)
	require.Len(t, responses[0].Answers, 1)
	assert.Equal(t, "q-1", responses[0].Answers[0].QuestionID)
}

func TestResponseRepositoryUpdateAnswerModerationMissing(t *testing.T) {
	db, mock, cleanup := newResponseMock(t)
	defer cleanup()
	repo := NewResponseRepository(db)

	mock.ExpectExec("UPDATE answers SET moderation_status").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateAnswerModeration(context.Background(), "missing", models.ModerationRedacted, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}
