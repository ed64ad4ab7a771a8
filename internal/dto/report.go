package dto

import (
	"time"

	"github.com/pulseworks/pulse-api/internal/models"
)

// ReportRequest scopes a report computation.
type ReportRequest struct {
	From       *time.Time `json:"from,omitempty"`
	To         *time.Time `json:"to,omitempty"`
	CohortKeys []string   `json:"cohort_keys,omitempty"`
}

// ReportResponse wraps a computed or fetched snapshot.
type ReportResponse struct {
	SnapshotID   string                  `json:"snapshot_id"`
	SurveyID     string                  `json:"survey_id"`
	ComputedAt   time.Time               `json:"computed_at"`
	ResponseRate float64                 `json:"response_rate"`
	ENPS         float64                 `json:"enps"`
	Aggregates   models.ReportAggregates `json:"aggregates"`
}

// ExportRequest asks for an offline render of the latest snapshot.
type ExportRequest struct {
	Format string `json:"format" validate:"required,oneof=csv pdf"`
}

// ExportResponse returns the signed download location once rendered,
// or the failure reason when rendering did not survive its retries.
type ExportResponse struct {
	ExportID string `json:"export_id"`
	Status   string `json:"status"`
	URL      string `json:"url,omitempty"`
	Error    string `json:"error,omitempty"`
}

// GenerateRequest drives the AI-assisted survey generator.
type GenerateRequest struct {
	Topic      string `json:"topic" validate:"required"`
	Goals      string `json:"goals,omitempty"`
	Audience   string `json:"audience,omitempty"`
	Tone       string `json:"tone,omitempty"`
	LengthHint string `json:"length_hint,omitempty"`
}
