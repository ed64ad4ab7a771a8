package service

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseworks/pulse-api/internal/dto"
	"github.com/pulseworks/pulse-api/internal/models"
)

func floatPtr(v float64) *float64 { return &v }
func strPtr(s string) *string     { return &s }

func TestBuildAnswerScaleRange(t *testing.T) {
	question := likertQuestion("q-1")

	answer, err := buildAnswer(&question, dto.AnswerPayload{QuestionID: "q-1", Number: floatPtr(4)}, nil)
	require.NoError(t, err)
	require.NotNil(t, answer.Value.Number)
	assert.InDelta(t, 4, *answer.Value.Number, 0.001)

	_, err = buildAnswer(&question, dto.AnswerPayload{QuestionID: "q-1", Number: floatPtr(6)}, nil)
	assert.Error(t, err, "value above scale_max must be rejected")

	_, err = buildAnswer(&question, dto.AnswerPayload{QuestionID: "q-1", Number: floatPtr(0)}, nil)
	assert.Error(t, err, "value below scale_min must be rejected")

	_, err = buildAnswer(&question, dto.AnswerPayload{QuestionID: "q-1"}, nil)
	assert.Error(t, err, "missing numeric value must be rejected")
}

func TestBuildAnswerText(t *testing.T) {
	question := models.Question{
		ID: "q-t", Type: models.QuestionShortText, Required: true,
		AnonymityMode: models.AnonymityEscrow,
	}

	answer, err := buildAnswer(&question, dto.AnswerPayload{QuestionID: "q-t", Text: strPtr("  fine  ")}, nil)
	require.NoError(t, err)
	assert.Equal(t, "fine", answer.Value.Text)

	_, err = buildAnswer(&question, dto.AnswerPayload{QuestionID: "q-t", Text: strPtr("   ")}, nil)
	assert.Error(t, err, "whitespace-only text must be rejected")

	_, err = buildAnswer(&question, dto.AnswerPayload{QuestionID: "q-t", Text: strPtr(strings.Repeat("x", shortTextMaxLen+1))}, nil)
	assert.Error(t, err, "short text past the limit must be rejected")

	// The limit counts characters, not bytes: 400 two-byte runes fit.
	answer, err = buildAnswer(&question, dto.AnswerPayload{QuestionID: "q-t", Text: strPtr(strings.Repeat("й", 400))}, nil)
	require.NoError(t, err)
	assert.Equal(t, 400, utf8.RuneCountInString(answer.Value.Text))

	_, err = buildAnswer(&question, dto.AnswerPayload{QuestionID: "q-t", Text: strPtr(strings.Repeat("й", shortTextMaxLen+1))}, nil)
	assert.Error(t, err, "multibyte text past the limit must be rejected")
}

func TestBuildAnswerSingleChoice(t *testing.T) {
	question := models.Question{
		ID: "q-s", Type: models.QuestionSingle, Required: true,
		AnonymityMode: models.AnonymityAnonymous,
		Options:       models.QuestionOptions{Choices: []string{"a", "b"}},
	}

	answer, err := buildAnswer(&question, dto.AnswerPayload{QuestionID: "q-s", Selected: []string{"a"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, answer.Value.Choices)

	_, err = buildAnswer(&question, dto.AnswerPayload{QuestionID: "q-s", Selected: []string{"a", "b"}}, nil)
	assert.Error(t, err, "multiple selections on SINGLE must be rejected")

	_, err = buildAnswer(&question, dto.AnswerPayload{QuestionID: "q-s", Selected: []string{"z"}}, nil)
	assert.Error(t, err, "undeclared option must be rejected")
}

func TestBuildAnswerMulti(t *testing.T) {
	question := models.Question{
		ID: "q-m", Type: models.QuestionMulti, Required: true,
		AnonymityMode: models.AnonymityAnonymous,
		Options:       models.QuestionOptions{Choices: []string{"a", "b", "c"}},
	}

	answer, err := buildAnswer(&question, dto.AnswerPayload{QuestionID: "q-m", Selected: []string{"a", "c"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, answer.Value.Choices)

	_, err = buildAnswer(&question, dto.AnswerPayload{QuestionID: "q-m"}, nil)
	assert.Error(t, err, "required MULTI with empty selection must be rejected")

	question.Required = false
	_, err = buildAnswer(&question, dto.AnswerPayload{QuestionID: "q-m"}, nil)
	assert.NoError(t, err, "optional MULTI may be answered empty")
}

func TestBuildAnswerRank(t *testing.T) {
	question := models.Question{
		ID: "q-r", Type: models.QuestionRank, Required: true,
		AnonymityMode: models.AnonymityAnonymous,
		Options:       models.QuestionOptions{Choices: []string{"x", "y", "z"}},
	}

	answer, err := buildAnswer(&question, dto.AnswerPayload{QuestionID: "q-r", Ordering: []string{"z", "x", "y"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "x", "y"}, answer.Value.Ordering)

	_, err = buildAnswer(&question, dto.AnswerPayload{QuestionID: "q-r", Ordering: []string{"z", "x"}}, nil)
	assert.Error(t, err, "partial ranking must be rejected")

	_, err = buildAnswer(&question, dto.AnswerPayload{QuestionID: "q-r", Ordering: []string{"z", "z", "y"}}, nil)
	assert.Error(t, err, "duplicate ranks must be rejected")
}

func TestBuildAnswerDate(t *testing.T) {
	question := models.Question{
		ID: "q-d", Type: models.QuestionDate, Required: true,
		AnonymityMode: models.AnonymityAnonymous,
	}

	answer, err := buildAnswer(&question, dto.AnswerPayload{QuestionID: "q-d", Date: strPtr("2026-03-01")}, nil)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01", answer.Value.Date)

	_, err = buildAnswer(&question, dto.AnswerPayload{QuestionID: "q-d", Date: strPtr("01/03/2026")}, nil)
	assert.Error(t, err, "non ISO date must be rejected")
}

func TestBuildAnswerMatrix(t *testing.T) {
	question := models.Question{
		ID: "q-x", Type: models.QuestionMatrix, Required: true,
		AnonymityMode: models.AnonymityAnonymous,
		Options: models.QuestionOptions{
			Rows:    []string{"speed", "quality"},
			Columns: []string{"poor", "ok", "great"},
		},
	}

	answer, err := buildAnswer(&question, dto.AnswerPayload{
		QuestionID: "q-x", Matrix: map[string]string{"speed": "ok", "quality": "great"},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", answer.Value.Matrix["speed"])

	_, err = buildAnswer(&question, dto.AnswerPayload{
		QuestionID: "q-x", Matrix: map[string]string{"price": "ok"},
	}, nil)
	assert.Error(t, err, "undeclared row must be rejected")

	_, err = buildAnswer(&question, dto.AnswerPayload{
		QuestionID: "q-x", Matrix: map[string]string{"speed": "amazing"},
	}, nil)
	assert.Error(t, err, "undeclared column must be rejected")
}

func TestBuildAnswerScrubsAnonymousMeta(t *testing.T) {
	question := models.Question{
		ID: "q-anon", Type: models.QuestionLongText, Required: true,
		AnonymityMode: models.AnonymityAnonymous,
	}
	identity := "mallory"

	answer, err := buildAnswer(&question, dto.AnswerPayload{
		QuestionID:       "q-anon",
		Text:             strPtr("smuggled signature"),
		IsSigned:         true,
		FollowupOptIn:    true,
		PreferredContact: "mallory@corp.test",
	}, &identity)
	require.NoError(t, err)

	assert.False(t, answer.IsSigned)
	assert.Nil(t, answer.SignedBy)
	assert.False(t, answer.FollowupOptIn)
	assert.Empty(t, answer.PreferredContact)
}

func TestBuildAnswerScrubsNonTextMeta(t *testing.T) {
	question := likertQuestion("q-1")
	question.AnonymityMode = models.AnonymitySigned
	identity := "alice"

	answer, err := buildAnswer(&question, dto.AnswerPayload{
		QuestionID: "q-1", Number: floatPtr(4), IsSigned: true,
	}, &identity)
	require.NoError(t, err)
	assert.False(t, answer.IsSigned, "signing only applies to text questions")
	assert.Nil(t, answer.SignedBy)
}

func TestBuildAnswerSignedMeta(t *testing.T) {
	question := models.Question{
		ID: "q-sig", Type: models.QuestionShortText, Required: true,
		AnonymityMode: models.AnonymitySigned,
	}
	identity := "alice"

	signed, err := buildAnswer(&question, dto.AnswerPayload{
		QuestionID: "q-sig", Text: strPtr("on the record"), IsSigned: true,
		FollowupOptIn: true, PreferredContact: "alice@corp.test",
	}, &identity)
	require.NoError(t, err)
	assert.True(t, signed.IsSigned)
	require.NotNil(t, signed.SignedBy)
	assert.Equal(t, "alice", *signed.SignedBy)
	assert.False(t, signed.FollowupOptIn, "escrow consents have no meaning on SIGNED questions")
	assert.Empty(t, signed.PreferredContact)

	unsigned, err := buildAnswer(&question, dto.AnswerPayload{
		QuestionID: "q-sig", Text: strPtr("off the record"),
	}, &identity)
	require.NoError(t, err)
	assert.False(t, unsigned.IsSigned)
	assert.Nil(t, unsigned.SignedBy)
}

func TestIsAttributable(t *testing.T) {
	anon := models.Question{Type: models.QuestionLongText, AnonymityMode: models.AnonymityAnonymous}
	escrow := models.Question{Type: models.QuestionLongText, AnonymityMode: models.AnonymityEscrow}
	signed := models.Question{Type: models.QuestionShortText, AnonymityMode: models.AnonymitySigned}

	assert.False(t, IsAttributable(&anon, &models.Answer{IsSigned: true, FollowupOptIn: true}))
	assert.True(t, IsAttributable(&escrow, &models.Answer{FollowupOptIn: true}))
	assert.False(t, IsAttributable(&escrow, &models.Answer{}))
	assert.True(t, IsAttributable(&signed, &models.Answer{IsSigned: true}))
	assert.False(t, IsAttributable(&signed, &models.Answer{}))
}
