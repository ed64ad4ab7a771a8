package models

import "time"

// SurveyStatus captures the survey lifecycle state.
type SurveyStatus string

const (
	SurveyStatusDraft     SurveyStatus = "DRAFT"
	SurveyStatusPublished SurveyStatus = "PUBLISHED"
	SurveyStatusClosed    SurveyStatus = "CLOSED"
	SurveyStatusArchived  SurveyStatus = "ARCHIVED"
)

// Survey is the root aggregate owning sections, questions, responses,
// invites and report snapshots. Surveys are never hard-deleted; ARCHIVED
// is a terminal status, not a removal.
type Survey struct {
	ID           string       `db:"id" json:"id"`
	Title        string       `db:"title" json:"title"`
	Description  string       `db:"description" json:"description"`
	PublishStart time.Time    `db:"publish_start" json:"publish_start"`
	PublishEnd   time.Time    `db:"publish_end" json:"publish_end"`
	Status       SurveyStatus `db:"status" json:"status"`
	CreatedBy    string       `db:"created_by" json:"created_by"`
	KThreshold   int          `db:"k_threshold" json:"k_threshold"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updated_at"`

	Sections []Section `json:"sections,omitempty"`
}

// IsActive reports whether the survey accepts responses at the given
// instant: PUBLISHED and inside [publish_start, publish_end).
func (s *Survey) IsActive(now time.Time) bool {
	return s.Status == SurveyStatusPublished &&
		!now.Before(s.PublishStart) &&
		now.Before(s.PublishEnd)
}

// Editable reports whether structural edits (sections/questions) are
// permitted. Once published the question set is frozen so in-flight
// responses stay interpretable against a fixed schema.
func (s *Survey) Editable() bool {
	return s.Status == SurveyStatusDraft
}

// Section groups ordered questions inside a survey. Order is unique per
// survey and defines both display and report sequence.
type Section struct {
	ID          string `db:"id" json:"id"`
	SurveyID    string `db:"survey_id" json:"survey_id"`
	Title       string `db:"title" json:"title"`
	Description string `db:"description" json:"description"`
	Order       int    `db:"position" json:"order"`

	Questions []Question `json:"questions,omitempty"`
}

// surveyTransitions enumerates the legal lifecycle edges. Unpublish
// (PUBLISHED -> DRAFT) is the only backward transition.
var surveyTransitions = map[SurveyStatus][]SurveyStatus{
	SurveyStatusDraft:     {SurveyStatusPublished},
	SurveyStatusPublished: {SurveyStatusDraft, SurveyStatusClosed},
	SurveyStatusClosed:    {SurveyStatusArchived},
	SurveyStatusArchived:  {},
}

// CanTransition reports whether moving from the survey's current status
// to the target is a legal lifecycle edge.
func (s *Survey) CanTransition(target SurveyStatus) bool {
	for _, next := range surveyTransitions[s.Status] {
		if next == target {
			return true
		}
	}
	return false
}
