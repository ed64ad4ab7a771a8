package dto

import (
	"time"

	"github.com/pulseworks/pulse-api/internal/models"
)

// QuestionDocument is one question in an authoring document. The same
// shape is produced by a human-driven form or the AI-assisted generator;
// ingestion is agnostic to the source.
type QuestionDocument struct {
	Type          models.QuestionType  `json:"type" validate:"required"`
	Prompt        string               `json:"prompt" validate:"required"`
	HelpText      string               `json:"help_text,omitempty"`
	Required      *bool                `json:"required,omitempty"`
	AnonymityMode models.AnonymityMode `json:"anonymity_mode,omitempty"`
	Options       []string             `json:"options,omitempty"`
	Rows          []string             `json:"rows,omitempty"`
	Columns       []string             `json:"columns,omitempty"`
	ScaleMin      *int                 `json:"scale_min,omitempty"`
	ScaleMax      *int                 `json:"scale_max,omitempty"`
}

// SectionDocument is one section in an authoring document.
type SectionDocument struct {
	Title       string             `json:"title" validate:"required"`
	Description string             `json:"description,omitempty"`
	Questions   []QuestionDocument `json:"questions" validate:"required,min=1"`
}

// SurveyDocument is the survey authoring input contract.
type SurveyDocument struct {
	Title       string            `json:"title" validate:"required,max=200"`
	Description string            `json:"description,omitempty"`
	KThreshold  *int              `json:"k_threshold,omitempty"`
	PublishDays *int              `json:"publish_days,omitempty"`
	Sections    []SectionDocument `json:"sections" validate:"required,min=1"`
}

// TransitionRequest asks for a lifecycle state change.
type TransitionRequest struct {
	Target models.SurveyStatus `json:"target" validate:"required"`
}

// ReorderItem assigns a new order position to a section or question.
type ReorderItem struct {
	ID    string `json:"id" validate:"required"`
	Order int    `json:"order" validate:"min=1"`
}

// ReorderRequest reorders sections and/or questions of a DRAFT survey.
type ReorderRequest struct {
	Sections  []ReorderItem `json:"sections,omitempty"`
	Questions []ReorderItem `json:"questions,omitempty"`
}

// SurveySummary is the list-view projection of a survey.
type SurveySummary struct {
	ID            string              `json:"id"`
	Title         string              `json:"title"`
	Description   string              `json:"description"`
	Status        models.SurveyStatus `json:"status"`
	PublishStart  time.Time           `json:"publish_start"`
	PublishEnd    time.Time           `json:"publish_end"`
	Active        bool                `json:"active"`
	ResponseCount int                 `json:"response_count"`
}
