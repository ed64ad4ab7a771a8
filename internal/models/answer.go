package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// ModerationStatus tracks reviewer decisions on individual answers. It is
// the only field on a submitted answer a reviewer may mutate.
type ModerationStatus string

const (
	ModerationOK       ModerationStatus = "OK"
	ModerationFlagged  ModerationStatus = "FLAGGED"
	ModerationRedacted ModerationStatus = "REDACTED"
)

// AnswerValueKind tags the variant held by an AnswerValue.
type AnswerValueKind string

const (
	ValueNumber   AnswerValueKind = "number"
	ValueText     AnswerValueKind = "text"
	ValueChoices  AnswerValueKind = "choices"
	ValueOrdering AnswerValueKind = "ordering"
	ValueDate     AnswerValueKind = "date"
	ValueMatrix   AnswerValueKind = "matrix"
)

// AnswerValue is the tagged union holding a type-appropriate answer
// payload. The question's declared type determines which variant is
// legal; that mapping is enforced before persistence, not at render time.
type AnswerValue struct {
	Kind     AnswerValueKind   `json:"kind"`
	Number   *float64          `json:"number,omitempty"`
	Text     string            `json:"text,omitempty"`
	Choices  []string          `json:"choices,omitempty"`
	Ordering []string          `json:"ordering,omitempty"`
	Date     string            `json:"date,omitempty"`
	Matrix   map[string]string `json:"matrix,omitempty"`
}

// NumberValue builds a numeric answer value.
func NumberValue(n float64) AnswerValue {
	return AnswerValue{Kind: ValueNumber, Number: &n}
}

// TextValue builds a free-text answer value.
func TextValue(text string) AnswerValue {
	return AnswerValue{Kind: ValueText, Text: text}
}

// ChoicesValue builds a selection-set answer value.
func ChoicesValue(choices ...string) AnswerValue {
	return AnswerValue{Kind: ValueChoices, Choices: choices}
}

// OrderingValue builds a full-ranking answer value.
func OrderingValue(ordering []string) AnswerValue {
	return AnswerValue{Kind: ValueOrdering, Ordering: ordering}
}

// DateValue builds a calendar-date answer value (YYYY-MM-DD).
func DateValue(date string) AnswerValue {
	return AnswerValue{Kind: ValueDate, Date: date}
}

// MatrixValue builds a row-to-column selection answer value.
func MatrixValue(grid map[string]string) AnswerValue {
	return AnswerValue{Kind: ValueMatrix, Matrix: grid}
}

// Value marshals the answer value to JSON for persistence.
func (v AnswerValue) Value() (driver.Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal answer value: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the answer value.
func (v *AnswerValue) Scan(value interface{}) error {
	if value == nil {
		*v = AnswerValue{}
		return nil
	}
	var data []byte
	switch raw := value.(type) {
	case []byte:
		data = raw
	case string:
		data = []byte(raw)
	default:
		return fmt.Errorf("unsupported type %T for AnswerValue", value)
	}
	if len(data) == 0 {
		*v = AnswerValue{}
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal answer value: %w", err)
	}
	return nil
}

// AnswerFlags carries reviewer moderation annotations persisted as JSONB.
type AnswerFlags map[string]string

// Value marshals flags to JSON for persistence.
func (f AnswerFlags) Value() (driver.Value, error) {
	if f == nil {
		f = AnswerFlags{}
	}
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("marshal answer flags: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the flags map.
func (f *AnswerFlags) Scan(value interface{}) error {
	if value == nil {
		*f = AnswerFlags{}
		return nil
	}
	var data []byte
	switch raw := value.(type) {
	case []byte:
		data = raw
	case string:
		data = []byte(raw)
	default:
		return fmt.Errorf("unsupported type %T for AnswerFlags", value)
	}
	if len(data) == 0 {
		*f = AnswerFlags{}
		return nil
	}
	if err := json.Unmarshal(data, f); err != nil {
		return fmt.Errorf("unmarshal answer flags: %w", err)
	}
	return nil
}

// Answer holds one respondent's value for one question, unique per
// (response, question) pair, plus anonymity bookkeeping. SignedBy is only
// ever set together with IsSigned; FollowupOptIn and PreferredContact are
// ESCROW-mode consents. None of these fields are ever stored for
// ANONYMOUS-mode questions.
type Answer struct {
	ID               string           `db:"id" json:"id"`
	ResponseID       string           `db:"response_id" json:"response_id"`
	QuestionID       string           `db:"question_id" json:"question_id"`
	Value            AnswerValue      `db:"value" json:"value"`
	IsSigned         bool             `db:"is_signed" json:"is_signed"`
	SignedBy         *string          `db:"signed_by" json:"signed_by,omitempty"`
	FollowupOptIn    bool             `db:"followup_opt_in" json:"followup_opt_in"`
	PreferredContact string           `db:"preferred_contact" json:"preferred_contact,omitempty"`
	ModerationStatus ModerationStatus `db:"moderation_status" json:"moderation_status"`
	Flags            AnswerFlags      `db:"flags" json:"flags,omitempty"`
}
