package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ReportFilter scopes which responses feed a report computation.
type ReportFilter struct {
	From       *time.Time `json:"from,omitempty"`
	To         *time.Time `json:"to,omitempty"`
	CohortKeys []string   `json:"cohort_keys,omitempty"`
}

// ScaleStats summarises numeric answers to a scale question.
type ScaleStats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// TextEntry is one collected free-text answer. Identity is attached only
// when the anonymity classifier deems the answer attributable.
type TextEntry struct {
	Text             string           `json:"text"`
	Identity         *string          `json:"identity,omitempty"`
	PreferredContact string           `json:"preferred_contact,omitempty"`
	ModerationStatus ModerationStatus `json:"moderation_status"`
}

// QuestionAggregate holds the per-question statistics for one report.
// Exactly one of Scale/Frequencies/Texts is populated depending on the
// question type. Suppressed marks cells hidden by the k-anonymity gate;
// a zero Respondents with Suppressed false means genuinely no data.
type QuestionAggregate struct {
	QuestionID  string         `json:"question_id"`
	SectionID   string         `json:"section_id"`
	Prompt      string         `json:"prompt"`
	Type        QuestionType   `json:"type"`
	Respondents int            `json:"respondents"`
	Suppressed  bool           `json:"suppressed"`
	Scale       *ScaleStats    `json:"scale,omitempty"`
	Frequencies map[string]int `json:"frequencies,omitempty"`
	Texts       []TextEntry    `json:"texts,omitempty"`
}

// CohortCell is a joint (cohort group x question) aggregate. It is only
// released when the combined cell count itself meets the k-threshold,
// independent of the marginal counts.
type CohortCell struct {
	QuestionID  string         `json:"question_id"`
	Respondents int            `json:"respondents"`
	Suppressed  bool           `json:"suppressed"`
	Scale       *ScaleStats    `json:"scale,omitempty"`
	Frequencies map[string]int `json:"frequencies,omitempty"`
}

// CohortGroup is one value of a cohort attribute with its per-question
// cells.
type CohortGroup struct {
	Value       string       `json:"value"`
	Respondents int          `json:"respondents"`
	Suppressed  bool         `json:"suppressed"`
	Cells       []CohortCell `json:"cells,omitempty"`
}

// CohortBreakdown is the report section for one cohort attribute key.
// InsufficientData is set when every group fell below the k-threshold,
// so callers can distinguish "suppressed" from "no responses".
type CohortBreakdown struct {
	Key              string        `json:"key"`
	Groups           []CohortGroup `json:"groups"`
	InsufficientData bool          `json:"insufficient_data"`
}

// ReportSummary carries the survey-level derived metrics.
type ReportSummary struct {
	TotalResponses int        `json:"total_responses"`
	InvitesIssued  int        `json:"invites_issued"`
	ResponseRate   float64    `json:"response_rate"`
	ENPS           float64    `json:"enps"`
	NPSAnswerCount int        `json:"nps_answer_count"`
	From           *time.Time `json:"from,omitempty"`
	To             *time.Time `json:"to,omitempty"`
}

// ReportAggregates is the full computed report payload persisted as the
// snapshot's JSON blob.
type ReportAggregates struct {
	Summary   ReportSummary       `json:"summary"`
	Questions []QuestionAggregate `json:"questions"`
	Cohorts   []CohortBreakdown   `json:"cohorts,omitempty"`
}

// Value marshals aggregates to JSON for persistence.
func (a ReportAggregates) Value() (driver.Value, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal report aggregates: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the aggregates struct.
func (a *ReportAggregates) Scan(value interface{}) error {
	if value == nil {
		*a = ReportAggregates{}
		return nil
	}
	var data []byte
	switch raw := value.(type) {
	case []byte:
		data = raw
	case string:
		data = []byte(raw)
	default:
		return fmt.Errorf("unsupported type %T for ReportAggregates", value)
	}
	if len(data) == 0 {
		*a = ReportAggregates{}
		return nil
	}
	if err := json.Unmarshal(data, a); err != nil {
		return fmt.Errorf("unmarshal report aggregates: %w", err)
	}
	return nil
}

// ReportSnapshot is an immutable point-in-time report. Newer snapshots
// supersede older ones; history is retained for audit.
type ReportSnapshot struct {
	ID           string           `db:"id" json:"id"`
	SurveyID     string           `db:"survey_id" json:"survey_id"`
	ComputedAt   time.Time        `db:"computed_at" json:"computed_at"`
	ComputedBy   string           `db:"computed_by" json:"computed_by"`
	Aggregates   ReportAggregates `db:"aggregates" json:"aggregates"`
	ResponseRate float64          `db:"response_rate" json:"response_rate"`
	ENPS         float64          `db:"enps" json:"enps"`
}
