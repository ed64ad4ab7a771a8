package service

import (
	"github.com/pulseworks/pulse-api/internal/models"
)

// IsAttributable decides whether an answer may ever be tied to a
// respondent identity in report output. It is the single gate consulted
// before any identity-bearing field enters a report payload, and it is
// evaluated per answer: ESCROW attributability varies with each
// respondent's opt-in, so caching at question granularity would be wrong.
func IsAttributable(question *models.Question, answer *models.Answer) bool {
	switch question.AnonymityMode {
	case models.AnonymityAnonymous:
		return false
	case models.AnonymityEscrow:
		return answer.FollowupOptIn
	case models.AnonymitySigned:
		return answer.IsSigned
	}
	return false
}

// scrubAnonymityMeta strips anonymity metadata a client attempted to
// attach where the question's mode does not permit it. A malicious client
// could otherwise smuggle identity onto a supposedly-anonymous answer, so
// forbidden fields are dropped silently rather than rejected: rejecting
// would leak that the fields were noticed.
func scrubAnonymityMeta(question *models.Question, answer *models.Answer) {
	if !question.IsText() || question.AnonymityMode == models.AnonymityAnonymous {
		answer.IsSigned = false
		answer.SignedBy = nil
		answer.FollowupOptIn = false
		answer.PreferredContact = ""
		return
	}
	if question.AnonymityMode == models.AnonymitySigned {
		// Signing is the only consent SIGNED mode carries.
		answer.FollowupOptIn = false
		answer.PreferredContact = ""
	}
	if !answer.IsSigned {
		answer.SignedBy = nil
	}
}
