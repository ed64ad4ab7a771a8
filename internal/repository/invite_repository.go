package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/pulseworks/pulse-api/internal/models"
	appErrors "github.com/pulseworks/pulse-api/pkg/errors"
)

// InviteRepository persists survey invites. Redemption is an atomic
// conditional update so concurrent claims of the same token resolve to
// exactly one success.
type InviteRepository struct {
	db *sqlx.DB
}

// NewInviteRepository constructs the repository.
func NewInviteRepository(db *sqlx.DB) *InviteRepository {
	return &InviteRepository{db: db}
}

const inviteColumns = `id, survey_id, email, token, expires_at, used_at, created_at`

// CreateBatch inserts a batch of invites in one transaction.
func (r *InviteRepository) CreateBatch(ctx context.Context, invites []models.Invite) error {
	if len(invites) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create invites: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const query = `INSERT INTO invites (id, survey_id, email, token, expires_at, used_at, created_at)
VALUES (:id, :survey_id, :email, :token, :expires_at, :used_at, :created_at)`
	now := time.Now().UTC()
	for i := range invites {
		if invites[i].ID == "" {
			invites[i].ID = uuid.NewString()
		}
		if invites[i].CreatedAt.IsZero() {
			invites[i].CreatedAt = now
		}
		if _, err := tx.NamedExecContext(ctx, query, &invites[i]); err != nil {
			return fmt.Errorf("insert invite: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create invites: %w", err)
	}
	return nil
}

// GetByToken resolves an invite by its token.
func (r *InviteRepository) GetByToken(ctx context.Context, token string) (*models.Invite, error) {
	query := fmt.Sprintf(`SELECT %s FROM invites WHERE token = $1`, inviteColumns)
	var invite models.Invite
	if err := r.db.GetContext(ctx, &invite, query, token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrInviteNotFound
		}
		return nil, fmt.Errorf("get invite by token: %w", err)
	}
	return &invite, nil
}

// ListBySurvey returns all invites issued for a survey, newest expiry first.
func (r *InviteRepository) ListBySurvey(ctx context.Context, surveyID string) ([]models.Invite, error) {
	query := fmt.Sprintf(`SELECT %s FROM invites WHERE survey_id = $1 ORDER BY expires_at DESC`, inviteColumns)
	var invites []models.Invite
	if err := r.db.SelectContext(ctx, &invites, query, surveyID); err != nil {
		return nil, fmt.Errorf("list invites: %w", err)
	}
	return invites, nil
}

// ListOpenByEmail returns unredeemed, unexpired invites for an email.
func (r *InviteRepository) ListOpenByEmail(ctx context.Context, email string, now time.Time) ([]models.Invite, error) {
	query := fmt.Sprintf(`SELECT %s FROM invites
WHERE lower(email) = lower($1) AND used_at IS NULL AND expires_at > $2
ORDER BY expires_at ASC`, inviteColumns)
	var invites []models.Invite
	if err := r.db.SelectContext(ctx, &invites, query, email, now); err != nil {
		return nil, fmt.Errorf("list invites by email: %w", err)
	}
	return invites, nil
}
