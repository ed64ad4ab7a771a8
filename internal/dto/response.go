package dto

import (
	"time"

	"github.com/pulseworks/pulse-api/internal/models"
)

// AnswerPayload is one submitted answer. Exactly one value field must be
// populated, matching the question's declared type. The anonymity fields
// are only honoured where the question's mode permits them; against an
// ANONYMOUS question they are silently dropped, never stored.
type AnswerPayload struct {
	QuestionID string `json:"question_id" validate:"required"`

	Number   *float64          `json:"number,omitempty"`
	Text     *string           `json:"text,omitempty"`
	Selected []string          `json:"selected,omitempty"`
	Ordering []string          `json:"ordering,omitempty"`
	Date     *string           `json:"date,omitempty"`
	Matrix   map[string]string `json:"matrix,omitempty"`

	IsSigned         bool   `json:"is_signed,omitempty"`
	FollowupOptIn    bool   `json:"followup_opt_in,omitempty"`
	PreferredContact string `json:"preferred_contact,omitempty"`
}

// SubmitRequest is a full survey submission.
type SubmitRequest struct {
	Answers []AnswerPayload   `json:"answers" validate:"required,min=1"`
	Cohort  models.CohortTags `json:"cohort,omitempty"`
}

// SubmitResponse acknowledges an accepted submission.
type SubmitResponse struct {
	ResponseID  string    `json:"response_id"`
	SurveyID    string    `json:"survey_id"`
	SubmittedAt time.Time `json:"submitted_at"`
	AnswerCount int       `json:"answer_count"`
}

// ModerationRequest updates the moderation status of one answer.
type ModerationRequest struct {
	Status models.ModerationStatus `json:"status" validate:"required"`
	Flags  models.AnswerFlags      `json:"flags,omitempty"`
}
