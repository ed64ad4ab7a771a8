package dto

import "time"

// InviteRequest issues invites in bulk: either a manual email list or a
// count of anonymous tokens.
type InviteRequest struct {
	Emails        []string `json:"emails,omitempty" validate:"omitempty,dive,email"`
	Count         int      `json:"count,omitempty" validate:"omitempty,min=1,max=10000"`
	ExpiresInDays int      `json:"expires_in_days,omitempty" validate:"omitempty,min=1,max=365"`
}

// InviteSummary is the issued-invite projection returned to admins. The
// raw token only appears at issue time; listings carry a truncated form.
type InviteSummary struct {
	ID        string     `json:"id"`
	Email     *string    `json:"email,omitempty"`
	Token     string     `json:"token,omitempty"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	Valid     bool       `json:"valid"`
}

// InviteProbe reports whether a token can still be redeemed and why not.
type InviteProbe struct {
	SurveyID string `json:"survey_id"`
	Valid    bool   `json:"valid"`
	Reason   string `json:"reason,omitempty"`
}
