package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// CohortTags holds the demographic/categorical attributes a respondent
// self-reported at submission time (e.g. department, tenure bucket),
// persisted as JSONB and consumed by cohort breakdown reporting.
type CohortTags map[string]string

// Value marshals cohort tags to JSON for persistence.
func (t CohortTags) Value() (driver.Value, error) {
	if t == nil {
		t = CohortTags{}
	}
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("marshal cohort tags: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the cohort tags map.
func (t *CohortTags) Scan(value interface{}) error {
	if value == nil {
		*t = CohortTags{}
		return nil
	}
	var data []byte
	switch raw := value.(type) {
	case []byte:
		data = raw
	case string:
		data = []byte(raw)
	default:
		return fmt.Errorf("unsupported type %T for CohortTags", value)
	}
	if len(data) == 0 {
		*t = CohortTags{}
		return nil
	}
	if err := json.Unmarshal(data, t); err != nil {
		return fmt.Errorf("unmarshal cohort tags: %w", err)
	}
	return nil
}

// Response is one respondent's completed submission for a survey.
// Identity is nil for anonymous submissions. A completed response is
// immutable; reviewer moderation on its answers is the only permitted
// post-hoc mutation. At most one response exists per (survey, identity),
// enforced by a partial unique index rather than application checks.
type Response struct {
	ID          string     `db:"id" json:"id"`
	SurveyID    string     `db:"survey_id" json:"survey_id"`
	Identity    *string    `db:"identity" json:"identity,omitempty"`
	SubmittedAt time.Time  `db:"submitted_at" json:"submitted_at"`
	Cohort      CohortTags `db:"cohort" json:"cohort,omitempty"`

	Answers []Answer `json:"answers,omitempty"`
}

// IsAnonymous reports whether the response carries no identity at all.
func (r *Response) IsAnonymous() bool {
	return r.Identity == nil
}
