package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pulseworks/pulse-api/internal/dto"
	"github.com/pulseworks/pulse-api/internal/models"
	appErrors "github.com/pulseworks/pulse-api/pkg/errors"
)

type inviteRepository interface {
	CreateBatch(ctx context.Context, invites []models.Invite) error
	GetByToken(ctx context.Context, token string) (*models.Invite, error)
	ListBySurvey(ctx context.Context, surveyID string) ([]models.Invite, error)
	ListOpenByEmail(ctx context.Context, email string, now time.Time) ([]models.Invite, error)
}

type inviteSurveyRepository interface {
	GetByID(ctx context.Context, id string) (*models.Survey, error)
}

// InviteServiceConfig tunes token issuance.
type InviteServiceConfig struct {
	DefaultTTLDays int
	TokenBytes     int
}

// InviteService issues and validates single-use survey invite tokens.
type InviteService struct {
	invites inviteRepository
	surveys inviteSurveyRepository
	logger  *zap.Logger
	now     func() time.Time
	cfg     InviteServiceConfig
}

func NewInviteService(invites inviteRepository, surveys inviteSurveyRepository, logger *zap.Logger, cfg InviteServiceConfig) *InviteService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultTTLDays <= 0 {
		cfg.DefaultTTLDays = 14
	}
	if cfg.TokenBytes <= 0 {
		cfg.TokenBytes = 32
	}
	return &InviteService{invites: invites, surveys: surveys, logger: logger, now: time.Now, cfg: cfg}
}

// WithClock overrides the time source for tests.
func (s *InviteService) WithClock(now func() time.Time) *InviteService {
	s.now = now
	return s
}

// Issue creates a batch of invites: one per email in the request, or
// Count bare tokens when no emails are given. Raw tokens are returned
// once, here; listings never repeat them.
func (s *InviteService) Issue(ctx context.Context, surveyID string, req dto.InviteRequest) ([]dto.InviteSummary, error) {
	survey, err := s.surveys.GetByID(ctx, surveyID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "survey not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load survey")
	}
	if survey.Status == models.SurveyStatusArchived {
		return nil, appErrors.Clone(appErrors.ErrConflict, "archived surveys cannot be invited to")
	}

	count := len(req.Emails)
	if count == 0 {
		count = req.Count
	}
	if count == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "either emails or a token count is required")
	}

	ttlDays := req.ExpiresInDays
	if ttlDays <= 0 {
		ttlDays = s.cfg.DefaultTTLDays
	}
	now := s.now().UTC()
	expiresAt := now.AddDate(0, 0, ttlDays)

	invites := make([]models.Invite, 0, count)
	for i := 0; i < count; i++ {
		token, err := s.newToken()
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate token")
		}
		invite := models.Invite{
			SurveyID:  surveyID,
			Token:     token,
			ExpiresAt: expiresAt,
			CreatedAt: now,
		}
		if i < len(req.Emails) {
			email := req.Emails[i]
			invite.Email = &email
		}
		invites = append(invites, invite)
	}

	if err := s.invites.CreateBatch(ctx, invites); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist invites")
	}
	s.logger.Info("invites issued",
		zap.String("survey_id", surveyID),
		zap.Int("count", len(invites)),
		zap.Time("expires_at", expiresAt))

	summaries := make([]dto.InviteSummary, 0, len(invites))
	for _, invite := range invites {
		summaries = append(summaries, dto.InviteSummary{
			ID:        invite.ID,
			Email:     invite.Email,
			Token:     invite.Token,
			ExpiresAt: invite.ExpiresAt,
			Valid:     true,
		})
	}
	return summaries, nil
}

// newToken draws TokenBytes of cryptographic randomness and encodes it
// URL-safe so the token can travel in a query parameter.
func (s *InviteService) newToken() (string, error) {
	buf := make([]byte, s.cfg.TokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Probe reports whether a token is still redeemable without claiming it,
// so clients can render the survey form or an error page up front.
func (s *InviteService) Probe(ctx context.Context, token string) (*dto.InviteProbe, error) {
	invite, err := s.invites.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	probe := &dto.InviteProbe{SurveyID: invite.SurveyID}
	now := s.now().UTC()
	switch {
	case invite.IsUsed():
		probe.Reason = "already used"
	case invite.IsExpired(now):
		probe.Reason = "expired"
	default:
		probe.Valid = true
	}
	return probe, nil
}

// List returns an admin's view of a survey's invites with tokens
// truncated.
func (s *InviteService) List(ctx context.Context, surveyID string) ([]dto.InviteSummary, error) {
	invites, err := s.invites.ListBySurvey(ctx, surveyID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list invites")
	}
	now := s.now().UTC()
	summaries := make([]dto.InviteSummary, 0, len(invites))
	for _, invite := range invites {
		summaries = append(summaries, dto.InviteSummary{
			ID:        invite.ID,
			Email:     invite.Email,
			Token:     truncateToken(invite.Token),
			ExpiresAt: invite.ExpiresAt,
			UsedAt:    invite.UsedAt,
			Valid:     invite.IsValid(now),
		})
	}
	return summaries, nil
}

// OpenForEmail lists a member's still-redeemable invites across surveys.
func (s *InviteService) OpenForEmail(ctx context.Context, email string) ([]models.Invite, error) {
	invites, err := s.invites.ListOpenByEmail(ctx, email, s.now().UTC())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list invites")
	}
	return invites, nil
}

func truncateToken(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8] + "…"
}
