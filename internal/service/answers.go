package service

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pulseworks/pulse-api/internal/dto"
	"github.com/pulseworks/pulse-api/internal/models"
	appErrors "github.com/pulseworks/pulse-api/pkg/errors"
)

const shortTextMaxLen = 500

// buildAnswer validates one submitted payload against its question and
// produces the answer to persist. The question's declared type statically
// determines which value variant is legal; anything else fails validation
// before any write happens.
func buildAnswer(question *models.Question, payload dto.AnswerPayload, identity *string) (models.Answer, error) {
	answer := models.Answer{
		QuestionID:       question.ID,
		ModerationStatus: models.ModerationOK,
		Flags:            models.AnswerFlags{},
	}

	switch question.Type {
	case models.QuestionLikert, models.QuestionNPS, models.QuestionNumber:
		if payload.Number == nil {
			return answer, answerError(question, "a numeric value is required")
		}
		value := *payload.Number
		if value < float64(question.ScaleMin) || value > float64(question.ScaleMax) {
			return answer, answerError(question, fmt.Sprintf("value %g outside scale [%d, %d]", value, question.ScaleMin, question.ScaleMax))
		}
		answer.Value = models.NumberValue(value)

	case models.QuestionShortText, models.QuestionLongText:
		if payload.Text == nil {
			return answer, answerError(question, "a text value is required")
		}
		text := strings.TrimSpace(*payload.Text)
		if text == "" {
			return answer, answerError(question, "text must not be empty")
		}
		// Characters, not bytes: multibyte text counts each rune once.
		if question.Type == models.QuestionShortText && utf8.RuneCountInString(text) > shortTextMaxLen {
			return answer, answerError(question, fmt.Sprintf("text exceeds %d characters", shortTextMaxLen))
		}
		answer.Value = models.TextValue(text)

	case models.QuestionMulti:
		if question.Required && len(payload.Selected) == 0 {
			return answer, answerError(question, "at least one option must be selected")
		}
		for _, option := range payload.Selected {
			if !question.HasChoice(option) {
				return answer, answerError(question, fmt.Sprintf("option %q is not among the declared choices", option))
			}
		}
		answer.Value = models.ChoicesValue(payload.Selected...)

	case models.QuestionSingle:
		if len(payload.Selected) != 1 {
			return answer, answerError(question, "exactly one option must be selected")
		}
		if !question.HasChoice(payload.Selected[0]) {
			return answer, answerError(question, fmt.Sprintf("option %q is not among the declared choices", payload.Selected[0]))
		}
		answer.Value = models.ChoicesValue(payload.Selected[0])

	case models.QuestionRank:
		if len(payload.Ordering) != len(question.Options.Choices) {
			return answer, answerError(question, "ranking must order every declared option exactly once")
		}
		seen := make(map[string]struct{}, len(payload.Ordering))
		for _, option := range payload.Ordering {
			if !question.HasChoice(option) {
				return answer, answerError(question, fmt.Sprintf("option %q is not among the declared choices", option))
			}
			if _, dup := seen[option]; dup {
				return answer, answerError(question, fmt.Sprintf("option %q ranked more than once", option))
			}
			seen[option] = struct{}{}
		}
		answer.Value = models.OrderingValue(payload.Ordering)

	case models.QuestionDate:
		if payload.Date == nil {
			return answer, answerError(question, "a date value is required")
		}
		if _, err := time.Parse("2006-01-02", *payload.Date); err != nil {
			return answer, answerError(question, "date must be formatted YYYY-MM-DD")
		}
		answer.Value = models.DateValue(*payload.Date)

	case models.QuestionMatrix:
		if len(payload.Matrix) == 0 {
			return answer, answerError(question, "a row/column selection is required")
		}
		columns := make(map[string]struct{}, len(question.Options.Columns))
		for _, col := range question.Options.Columns {
			columns[col] = struct{}{}
		}
		rows := make(map[string]struct{}, len(question.Options.Rows))
		for _, row := range question.Options.Rows {
			rows[row] = struct{}{}
		}
		for row, col := range payload.Matrix {
			if _, ok := rows[row]; !ok {
				return answer, answerError(question, fmt.Sprintf("row %q is not a declared matrix axis", row))
			}
			if _, ok := columns[col]; !ok {
				return answer, answerError(question, fmt.Sprintf("column %q is not a declared matrix axis", col))
			}
		}
		answer.Value = models.MatrixValue(payload.Matrix)

	default:
		return answer, answerError(question, fmt.Sprintf("unsupported question type %s", question.Type))
	}

	answer.IsSigned = payload.IsSigned
	answer.FollowupOptIn = payload.FollowupOptIn
	answer.PreferredContact = strings.TrimSpace(payload.PreferredContact)
	if answer.IsSigned && identity != nil {
		answer.SignedBy = identity
	}
	scrubAnonymityMeta(question, &answer)

	return answer, nil
}

func answerError(question *models.Question, reason string) error {
	return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("question %s: %s", question.ID, reason))
}
