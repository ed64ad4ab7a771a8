package models

import "time"

// Invite gates access to a survey with a single-use, expiring token.
// Tokens are cryptographically random since they are the sole
// authorization mechanism for anonymous-but-gated surveys.
type Invite struct {
	ID        string     `db:"id" json:"id"`
	SurveyID  string     `db:"survey_id" json:"survey_id"`
	Email     *string    `db:"email" json:"email,omitempty"`
	Token     string     `db:"token" json:"token"`
	ExpiresAt time.Time  `db:"expires_at" json:"expires_at"`
	UsedAt    *time.Time `db:"used_at" json:"used_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// IsExpired reports whether the invite's expiry has passed.
func (i *Invite) IsExpired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// IsUsed reports whether the invite has been redeemed.
func (i *Invite) IsUsed() bool {
	return i.UsedAt != nil
}

// IsValid reports whether the invite can still be redeemed.
func (i *Invite) IsValid(now time.Time) bool {
	return !i.IsExpired(now) && !i.IsUsed()
}
