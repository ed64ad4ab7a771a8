package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// QuestionType enumerates the closed set of supported question kinds.
type QuestionType string

const (
	QuestionLikert    QuestionType = "LIKERT"
	QuestionMulti     QuestionType = "MULTI"
	QuestionSingle    QuestionType = "SINGLE"
	QuestionMatrix    QuestionType = "MATRIX"
	QuestionShortText QuestionType = "SHORT_TEXT"
	QuestionLongText  QuestionType = "LONG_TEXT"
	QuestionNPS       QuestionType = "NPS"
	QuestionRank      QuestionType = "RANK"
	QuestionDate      QuestionType = "DATE"
	QuestionNumber    QuestionType = "NUMBER"
)

// QuestionTypes lists every legal question type.
var QuestionTypes = []QuestionType{
	QuestionLikert, QuestionMulti, QuestionSingle, QuestionMatrix,
	QuestionShortText, QuestionLongText, QuestionNPS, QuestionRank,
	QuestionDate, QuestionNumber,
}

// AnonymityMode governs whether an answer may ever be attributed to a
// respondent identity in report output.
type AnonymityMode string

const (
	// AnonymityAnonymous answers never carry identity into any report.
	AnonymityAnonymous AnonymityMode = "ANONYMOUS"
	// AnonymityEscrow answers are held privately and become attributable
	// only when the respondent opts in to follow-up contact.
	AnonymityEscrow AnonymityMode = "ESCROW"
	// AnonymitySigned answers are attributed when the respondent signs them.
	AnonymitySigned AnonymityMode = "SIGNED"
)

// AnonymityModes lists every legal anonymity mode.
var AnonymityModes = []AnonymityMode{AnonymityAnonymous, AnonymityEscrow, AnonymitySigned}

// QuestionOptions stores type-dependent parameters persisted as JSONB:
// Choices for MULTI/SINGLE/RANK, Rows/Columns for MATRIX.
type QuestionOptions struct {
	Choices []string `json:"choices,omitempty"`
	Rows    []string `json:"rows,omitempty"`
	Columns []string `json:"columns,omitempty"`
}

// Value marshals options to JSON for persistence.
func (o QuestionOptions) Value() (driver.Value, error) {
	data, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("marshal question options: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the options struct.
func (o *QuestionOptions) Scan(value interface{}) error {
	if value == nil {
		*o = QuestionOptions{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for QuestionOptions", value)
	}
	if len(data) == 0 {
		*o = QuestionOptions{}
		return nil
	}
	if err := json.Unmarshal(data, o); err != nil {
		return fmt.Errorf("unmarshal question options: %w", err)
	}
	return nil
}

// Question belongs to exactly one section. Its type statically determines
// which AnswerValue variant is legal, enforced at write time.
type Question struct {
	ID            string          `db:"id" json:"id"`
	SectionID     string          `db:"section_id" json:"section_id"`
	Type          QuestionType    `db:"type" json:"type"`
	Prompt        string          `db:"prompt" json:"prompt"`
	HelpText      string          `db:"help_text" json:"help_text,omitempty"`
	Required      bool            `db:"required" json:"required"`
	AnonymityMode AnonymityMode   `db:"anonymity_mode" json:"anonymity_mode"`
	Options       QuestionOptions `db:"options" json:"options,omitempty"`
	ScaleMin      int             `db:"scale_min" json:"scale_min,omitempty"`
	ScaleMax      int             `db:"scale_max" json:"scale_max,omitempty"`
	Order         int             `db:"position" json:"order"`
}

// IsScale reports whether the question carries a numeric scale.
func (q *Question) IsScale() bool {
	switch q.Type {
	case QuestionLikert, QuestionNPS, QuestionNumber:
		return true
	}
	return false
}

// IsChoice reports whether the question draws answers from a declared
// option list.
func (q *Question) IsChoice() bool {
	switch q.Type {
	case QuestionMulti, QuestionSingle, QuestionRank:
		return true
	}
	return false
}

// IsText reports whether the question collects free text. Anonymity
// metadata (signing, follow-up opt-in) is only accepted on text questions.
func (q *Question) IsText() bool {
	return q.Type == QuestionShortText || q.Type == QuestionLongText
}

// HasChoice reports whether the given option belongs to the declared set.
func (q *Question) HasChoice(option string) bool {
	for _, c := range q.Options.Choices {
		if c == option {
			return true
		}
	}
	return false
}
